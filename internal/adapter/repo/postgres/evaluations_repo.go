package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fairyhunter13/resume-evaluator/internal/domain"
)

// EvaluationRepo persists evaluations.
type EvaluationRepo struct{ Pool PgxPool }

// NewEvaluationRepo constructs an EvaluationRepo with the given pool.
func NewEvaluationRepo(p PgxPool) *EvaluationRepo { return &EvaluationRepo{Pool: p} }

const evaluationColumns = `id::text, resume_id::text, criteria, fit_score, missing_skills, feedback, raw_response, created_at`

// Create stores an evaluation and returns its id (generates one if empty).
func (r *EvaluationRepo) Create(ctx domain.Context, e domain.Evaluation) (string, error) {
	ctx, span := startSpan(ctx, "evaluations", "INSERT", "evaluations.Create")
	defer span.End()
	id := e.ID
	if id == "" {
		id = uuid.New().String()
	}
	criteria, err := json.Marshal(e.Criteria)
	if err != nil {
		return "", fmt.Errorf("op=evaluation.create: criteria: %w", err)
	}
	missing := e.MissingSkills
	if missing == nil {
		missing = []string{}
	}
	var raw []byte
	if len(e.RawResponse) > 0 {
		raw = e.RawResponse
	}
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	q := `INSERT INTO evaluations (id, resume_id, criteria, fit_score, missing_skills, feedback, raw_response, created_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	if _, err := r.Pool.Exec(ctx, q, id, e.ResumeID, criteria, e.FitScore, missing, e.Feedback, raw, createdAt); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("op=evaluation.create: %w", err)
	}
	return id, nil
}

// ListByResume returns the evaluations of a resume newest first.
func (r *EvaluationRepo) ListByResume(ctx domain.Context, resumeID string) ([]domain.Evaluation, error) {
	ctx, span := startSpan(ctx, "evaluations", "SELECT", "evaluations.ListByResume")
	defer span.End()
	if _, err := uuid.Parse(resumeID); err != nil {
		return []domain.Evaluation{}, nil
	}
	q := `SELECT ` + evaluationColumns + ` FROM evaluations WHERE resume_id=$1 ORDER BY created_at DESC`
	rows, err := r.Pool.Query(ctx, q, resumeID)
	if err != nil {
		return nil, fmt.Errorf("op=evaluation.list: %w", err)
	}
	out, err := collectEvaluations(rows)
	if err != nil {
		return nil, fmt.Errorf("op=evaluation.list: %w", err)
	}
	return out, nil
}

// LatestByResumes returns the newest evaluation per resume id; resumes without evaluations are absent.
func (r *EvaluationRepo) LatestByResumes(ctx domain.Context, resumeIDs []string) (map[string]domain.Evaluation, error) {
	ctx, span := startSpan(ctx, "evaluations", "SELECT", "evaluations.LatestByResumes")
	defer span.End()
	out := make(map[string]domain.Evaluation, len(resumeIDs))
	ids := make([]string, 0, len(resumeIDs))
	for _, id := range resumeIDs {
		if _, err := uuid.Parse(id); err == nil {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return out, nil
	}
	q := `SELECT DISTINCT ON (resume_id) ` + evaluationColumns + `
	FROM evaluations WHERE resume_id = ANY($1::uuid[]) ORDER BY resume_id, created_at DESC`
	rows, err := r.Pool.Query(ctx, q, ids)
	if err != nil {
		return nil, fmt.Errorf("op=evaluation.latest: %w", err)
	}
	list, err := collectEvaluations(rows)
	if err != nil {
		return nil, fmt.Errorf("op=evaluation.latest: %w", err)
	}
	for _, e := range list {
		out[e.ResumeID] = e
	}
	return out, nil
}

// DeleteByResume removes every evaluation of a resume and returns how many were deleted.
func (r *EvaluationRepo) DeleteByResume(ctx domain.Context, resumeID string) (int64, error) {
	ctx, span := startSpan(ctx, "evaluations", "DELETE", "evaluations.DeleteByResume")
	defer span.End()
	if _, err := uuid.Parse(resumeID); err != nil {
		return 0, nil
	}
	tag, err := r.Pool.Exec(ctx, `DELETE FROM evaluations WHERE resume_id=$1`, resumeID)
	if err != nil {
		return 0, fmt.Errorf("op=evaluation.delete_by_resume: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Delete removes one evaluation.
func (r *EvaluationRepo) Delete(ctx domain.Context, id string) error {
	ctx, span := startSpan(ctx, "evaluations", "DELETE", "evaluations.Delete")
	defer span.End()
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("op=evaluation.delete: %w", domain.ErrNotFound)
	}
	tag, err := r.Pool.Exec(ctx, `DELETE FROM evaluations WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("op=evaluation.delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=evaluation.delete: %w", domain.ErrNotFound)
	}
	return nil
}

func collectEvaluations(rows pgx.Rows) ([]domain.Evaluation, error) {
	defer rows.Close()
	out := make([]domain.Evaluation, 0)
	for rows.Next() {
		var (
			e        domain.Evaluation
			criteria []byte
			raw      []byte
		)
		if err := rows.Scan(&e.ID, &e.ResumeID, &criteria, &e.FitScore, &e.MissingSkills, &e.Feedback, &raw, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if err := json.Unmarshal(criteria, &e.Criteria); err != nil {
			return nil, fmt.Errorf("criteria: %w", err)
		}
		if e.MissingSkills == nil {
			e.MissingSkills = []string{}
		}
		if len(raw) > 0 {
			e.RawResponse = json.RawMessage(raw)
		}
		e.IsResume = isResumeFromRaw(raw)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// isResumeFromRaw reads is_resume from the stored model response; absent means true.
func isResumeFromRaw(raw []byte) bool {
	if len(raw) == 0 {
		return true
	}
	var v struct {
		IsResume *bool `json:"is_resume"`
	}
	if err := json.Unmarshal(raw, &v); err != nil || v.IsResume == nil {
		return true
	}
	return *v.IsResume
}

var _ domain.EvaluationRepository = (*EvaluationRepo)(nil)
