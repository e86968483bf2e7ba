package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/fairyhunter13/resume-evaluator/internal/domain"
	obsctx "github.com/fairyhunter13/resume-evaluator/internal/observability"
)

// Bulk event types.
const (
	EventMessage  = "message"
	EventProgress = "progress"
	EventResult   = "result"
	EventError    = "error"
	EventComplete = "complete"
)

// Summary counts bulk outcomes. Rejected documents are counted in neither Passed nor Failed.
type Summary struct {
	Total    int `json:"total"`
	Passed   int `json:"passed"`
	Failed   int `json:"failed"`
	Rejected int `json:"rejected"`
	Errors   int `json:"errors"`
}

// Event is one item of a bulk evaluation stream.
type Event struct {
	Type       string                  `json:"type"`
	ResumeID   string                  `json:"resumeId,omitempty"`
	FileName   string                  `json:"fileName,omitempty"`
	Index      int                     `json:"index,omitempty"`
	Total      int                     `json:"total,omitempty"`
	Evaluation *domain.Evaluation      `json:"evaluation,omitempty"`
	Status     domain.EvaluationStatus `json:"status,omitempty"`
	Error      string                  `json:"error,omitempty"`
	Summary    *Summary                `json:"summary,omitempty"`
	Message    string                  `json:"message,omitempty"`
	Criteria   *domain.Criteria        `json:"criteria,omitempty"`
}

// Sink receives bulk events in order. A Send error stops the run.
type Sink interface {
	Send(ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ev Event) error

// Send calls f.
func (f SinkFunc) Send(ev Event) error { return f(ev) }

// BulkEvaluator evaluates resumes one at a time with a fixed pause between items.
type BulkEvaluator struct {
	Resumes     domain.ResumeRepository
	Evaluations domain.EvaluationRepository
	Evaluator   ResumeEvaluator
	Delay       time.Duration
}

// NewBulkEvaluator constructs a BulkEvaluator.
func NewBulkEvaluator(r domain.ResumeRepository, e domain.EvaluationRepository, ev ResumeEvaluator, delay time.Duration) BulkEvaluator {
	return BulkEvaluator{Resumes: r, Evaluations: e, Evaluator: ev, Delay: delay}
}

// ValidateBulk checks the request before any event is sent.
func ValidateBulk(resumeIDs []string, criteria domain.Criteria) error {
	if len(resumeIDs) == 0 {
		return fmt.Errorf("%w: resumeIds must not be empty", domain.ErrInvalidArgument)
	}
	return criteria.Validate()
}

// Run evaluates each id in order, replacing earlier evaluations, and finishes with a complete event.
// Per-item failures become error events. It stops early when ctx is cancelled or the sink fails.
func (b BulkEvaluator) Run(ctx context.Context, resumeIDs []string, criteria domain.Criteria, sink Sink) (Summary, error) {
	lg := obsctx.LoggerFromContext(ctx)
	sum := Summary{Total: len(resumeIDs)}
	for i, id := range resumeIDs {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		if i > 0 && b.Delay > 0 {
			t := time.NewTimer(b.Delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return sum, ctx.Err()
			case <-t.C:
			}
		}
		itemCtx := obsctx.ContextWithAttrs(ctx, "resume_id", id, "index", i+1)
		ev := b.evaluateOne(itemCtx, id, i+1, len(resumeIDs), criteria, sink)
		switch {
		case ev.Type == EventError:
			sum.Errors++
		case ev.Evaluation != nil && !ev.Evaluation.IsResume:
			sum.Rejected++
		case ev.Status == domain.StatusPass:
			sum.Passed++
		default:
			sum.Failed++
		}
		if err := sink.Send(ev); err != nil {
			return sum, fmt.Errorf("op=bulk.Run: send: %w", err)
		}
		if ev.Type == EventError {
			obsctx.LoggerFromContext(itemCtx).Warn("bulk item failed", "error", ev.Error)
		}
	}
	final := sum
	if err := sink.Send(Event{Type: EventComplete, Summary: &final}); err != nil {
		return sum, fmt.Errorf("op=bulk.Run: send: %w", err)
	}
	lg.Info("bulk evaluation complete", "total", sum.Total, "passed", sum.Passed, "failed", sum.Failed, "rejected", sum.Rejected, "errors", sum.Errors)
	return sum, nil
}

// evaluateOne returns the result or error event for one resume; the progress event goes to sink directly.
func (b BulkEvaluator) evaluateOne(ctx context.Context, id string, index, total int, criteria domain.Criteria, sink Sink) Event {
	r, err := b.Resumes.Get(ctx, id)
	if err != nil {
		return Event{Type: EventError, ResumeID: id, Error: fmt.Sprintf("resume not found: %v", err)}
	}
	if !r.HasText() {
		return Event{Type: EventError, ResumeID: id, FileName: r.FileName, Error: "resume has no extracted text"}
	}
	if err := sink.Send(Event{Type: EventProgress, ResumeID: id, FileName: r.FileName, Index: index, Total: total}); err != nil {
		return Event{Type: EventError, ResumeID: id, Error: err.Error()}
	}
	eval, err := evaluateAndStore(ctx, b.Evaluator, b.Evaluations, r, criteria, true)
	if err != nil {
		return Event{Type: EventError, ResumeID: id, FileName: r.FileName, Error: err.Error()}
	}
	return Event{Type: EventResult, ResumeID: id, FileName: r.FileName, Evaluation: &eval, Status: eval.Status()}
}
