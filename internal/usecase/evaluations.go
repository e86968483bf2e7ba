package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fairyhunter13/resume-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/resume-evaluator/internal/domain"
	obsctx "github.com/fairyhunter13/resume-evaluator/internal/observability"
)

// ResumeEvaluator scores text against criteria.
type ResumeEvaluator interface {
	Evaluate(ctx context.Context, resumeText string, criteria domain.Criteria) (domain.Evaluation, error)
}

// EvaluationService evaluates a single resume on demand.
type EvaluationService struct {
	Resumes     domain.ResumeRepository
	Evaluations domain.EvaluationRepository
	Evaluator   ResumeEvaluator
}

// NewEvaluationService constructs an EvaluationService.
func NewEvaluationService(r domain.ResumeRepository, e domain.EvaluationRepository, ev ResumeEvaluator) EvaluationService {
	return EvaluationService{Resumes: r, Evaluations: e, Evaluator: ev}
}

// Check validates criteria, evaluates the resume and stores the evaluation.
func (s EvaluationService) Check(ctx context.Context, resumeID string, criteria domain.Criteria) (EvaluationView, error) {
	if strings.TrimSpace(resumeID) == "" {
		return EvaluationView{}, fmt.Errorf("%w: resumeId is required", domain.ErrInvalidArgument)
	}
	if err := criteria.Validate(); err != nil {
		return EvaluationView{}, err
	}
	r, err := s.Resumes.Get(ctx, resumeID)
	if err != nil {
		return EvaluationView{}, fmt.Errorf("op=evaluation.Check: %w", err)
	}
	if !r.HasText() {
		return EvaluationView{}, fmt.Errorf("%w: resume has no extracted text", domain.ErrInvalidArgument)
	}
	eval, err := evaluateAndStore(ctx, s.Evaluator, s.Evaluations, r, criteria, false)
	if err != nil {
		return EvaluationView{}, fmt.Errorf("op=evaluation.Check: %w", err)
	}
	return ViewOf(eval), nil
}

// evaluateAndStore runs one evaluation and persists it. With replace, earlier evaluations of the
// resume are deleted first.
func evaluateAndStore(ctx context.Context, ev ResumeEvaluator, repo domain.EvaluationRepository, r domain.Resume, criteria domain.Criteria, replace bool) (domain.Evaluation, error) {
	eval, err := ev.Evaluate(ctx, r.ExtractedText, criteria)
	if err != nil {
		observability.ObserveEvaluation(observability.OutcomeError, 0)
		return domain.Evaluation{}, err
	}
	eval.ResumeID = r.ID
	eval.CreatedAt = time.Now().UTC()
	if replace {
		n, err := repo.DeleteByResume(ctx, r.ID)
		if err != nil {
			return domain.Evaluation{}, fmt.Errorf("replace: %w", err)
		}
		if n > 0 {
			obsctx.LoggerFromContext(ctx).Debug("previous evaluations replaced", "resume_id", r.ID, "deleted", n)
		}
	}
	id, err := repo.Create(ctx, eval)
	if err != nil {
		return domain.Evaluation{}, fmt.Errorf("persist: %w", err)
	}
	eval.ID = id
	observability.ObserveEvaluation(outcomeOf(eval), eval.FitScore)
	return eval, nil
}

func outcomeOf(e domain.Evaluation) string {
	switch {
	case !e.IsResume:
		return observability.OutcomeRejected
	case e.Status() == domain.StatusPass:
		return observability.OutcomePass
	default:
		return observability.OutcomeFail
	}
}
