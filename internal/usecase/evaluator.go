// Package usecase contains application business logic services.
package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/fairyhunter13/resume-evaluator/internal/domain"
	obsctx "github.com/fairyhunter13/resume-evaluator/internal/observability"
	"github.com/fairyhunter13/resume-evaluator/pkg/textx"
)

// MaxResumeRunes is how much resume text is embedded in the evaluation prompt.
const MaxResumeRunes = 5000

const evaluationSystemPrompt = `You are an experienced technical recruiter. You evaluate a single document against hiring criteria.
First decide whether the document is actually a resume or CV. Then score how well the candidate fits the role and skills.
Respond with a single JSON object and nothing else, using exactly these keys:
{"is_resume": boolean, "fit_score": integer 0-100, "missing_skills": [string], "feedback": string}
fit_score 50 or higher means the candidate should advance. missing_skills lists required skills the resume does not show.
feedback is two to four sentences addressed to the hiring manager.`

const evaluationSchemaJSON = `{
  "type": "object",
  "required": ["is_resume", "fit_score", "missing_skills", "feedback"],
  "properties": {
    "is_resume": {"type": "boolean"},
    "fit_score": {"type": "number"},
    "missing_skills": {"type": "array", "items": {"type": "string"}},
    "feedback": {"type": "string"}
  }
}`

var evaluationSchema = mustSchema(evaluationSchemaJSON)

func mustSchema(s string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(err)
	}
	return schema
}

// ParseError reports a model reply that does not satisfy the evaluation contract.
type ParseError struct {
	Raw    string
	Reason string
}

func (e *ParseError) Error() string { return fmt.Sprintf("schema invalid: %s", e.Reason) }

// Unwrap lets errors.Is match domain.ErrSchemaInvalid.
func (e *ParseError) Unwrap() error { return domain.ErrSchemaInvalid }

// Evaluator scores resume text against criteria with an LLM.
type Evaluator struct {
	LLM       domain.LLM
	MaxTokens int
}

// NewEvaluator constructs an Evaluator.
func NewEvaluator(llm domain.LLM) Evaluator {
	return Evaluator{LLM: llm, MaxTokens: 1024}
}

// Evaluate returns an unsaved evaluation. Only ResumeID, ID and CreatedAt are left for the caller.
func (e Evaluator) Evaluate(ctx context.Context, resumeText string, criteria domain.Criteria) (domain.Evaluation, error) {
	criteria = criteria.Normalize()
	critJSON, err := json.Marshal(criteria)
	if err != nil {
		return domain.Evaluation{}, fmt.Errorf("op=evaluator.Evaluate: %w", err)
	}
	user := "Criteria:\n" + string(critJSON) + "\n\nDocument:\n" + textx.TruncateRunes(resumeText, MaxResumeRunes)
	resp, err := e.LLM.Complete(ctx, domain.ChatRequest{
		System:      evaluationSystemPrompt,
		Messages:    []domain.ChatMessage{{Role: domain.RoleUser, Content: user}},
		JSONMode:    true,
		MaxTokens:   e.MaxTokens,
		Temperature: 0.2,
	})
	if err != nil {
		return domain.Evaluation{}, fmt.Errorf("op=evaluator.Evaluate: %w", err)
	}
	eval, err := ParseEvaluation(resp.Text)
	if err != nil {
		obsctx.LoggerFromContext(ctx).Warn("evaluation reply rejected", "error", err, "model", resp.Model, "raw_len", len(resp.Text))
		return domain.Evaluation{}, fmt.Errorf("op=evaluator.Evaluate: %w", err)
	}
	eval.Criteria = criteria
	return eval, nil
}

type evaluationReply struct {
	IsResume      bool     `json:"is_resume"`
	FitScore      float64  `json:"fit_score"`
	MissingSkills []string `json:"missing_skills"`
	Feedback      string   `json:"feedback"`
}

// ParseEvaluation decodes a model reply into an evaluation and applies the scoring policy:
// scores are clamped to [0,100] and documents that are not resumes score 0.
func ParseEvaluation(raw string) (domain.Evaluation, error) {
	body := textx.StripCodeFences(raw)
	if !json.Valid([]byte(body)) {
		obj, ok := textx.ExtractJSONObject(body)
		if !ok {
			return domain.Evaluation{}, &ParseError{Raw: raw, Reason: "no JSON object in reply"}
		}
		body = obj
	}
	res, err := evaluationSchema.Validate(gojsonschema.NewStringLoader(body))
	if err != nil {
		return domain.Evaluation{}, &ParseError{Raw: raw, Reason: err.Error()}
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, re := range res.Errors() {
			msgs = append(msgs, re.String())
		}
		return domain.Evaluation{}, &ParseError{Raw: raw, Reason: strings.Join(msgs, "; ")}
	}
	var reply evaluationReply
	if err := json.Unmarshal([]byte(body), &reply); err != nil {
		return domain.Evaluation{}, &ParseError{Raw: raw, Reason: err.Error()}
	}

	score := int(math.Round(math.Max(0, math.Min(100, reply.FitScore))))
	if !reply.IsResume {
		score = 0
	}
	missing := make([]string, 0, len(reply.MissingSkills))
	for _, s := range reply.MissingSkills {
		if s = strings.TrimSpace(s); s != "" {
			missing = append(missing, s)
		}
	}
	return domain.Evaluation{
		FitScore:      score,
		MissingSkills: missing,
		Feedback:      strings.TrimSpace(reply.Feedback),
		RawResponse:   json.RawMessage(body),
		IsResume:      reply.IsResume,
	}, nil
}
