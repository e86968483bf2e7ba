package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fairyhunter13/resume-evaluator/internal/domain"
	obsctx "github.com/fairyhunter13/resume-evaluator/internal/observability"
	"github.com/fairyhunter13/resume-evaluator/internal/service/criteria"
)

// Chat tool names.
const (
	ToolEvaluateResumes = "evaluate_resumes"
	ToolSearchResumes   = "search_resumes"
)

const (
	greetingReply = "Hi! I can screen the uploaded resumes for you. Tell me the role you are hiring for and the key skills you need."
	offTopicReply = "I can only help with evaluating resumes. Describe the role and the skills you are looking for and I will screen the candidates."
	missingReply  = "To evaluate the resumes I need a role and at least one required skill. What position are you hiring for, and which skills matter most?"
	noResumeReply = "There are no resumes to evaluate yet. Upload some resumes first."
	noMatchReply  = "I could not find any resumes matching that search."
)

var chatTools = []domain.Tool{
	{
		Name:        ToolEvaluateResumes,
		Description: "Evaluate the uploaded resumes against a role, required skills and an optional job description.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"role":            map[string]any{"type": "string", "description": "Job title being hired for"},
				"skills":          map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Required skills"},
				"job_description": map[string]any{"type": "string", "description": "Free text job description"},
			},
			"required": []string{"role", "skills"},
		},
	},
	{
		Name:        ToolSearchResumes,
		Description: "Search resume contents semantically and evaluate only the best matching candidates.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query":  map[string]any{"type": "string", "description": "What to look for in resumes"},
				"role":   map[string]any{"type": "string"},
				"skills": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"top_k":  map[string]any{"type": "integer", "description": "Number of chunks to retrieve"},
			},
			"required": []string{"query", "role", "skills"},
		},
	},
}

// ChatTurnRequest is one chat-criteria call.
type ChatTurnRequest struct {
	Messages    []domain.ChatMessage `json:"messages" validate:"required,min=1,dive"`
	ResumeCount int                  `json:"resumeCount"`
	ResumeIDs   []string             `json:"resumeIds"`
	Stream      bool                 `json:"stream"`
}

// ChatPlan is what a chat turn resolved to. When Evaluate is false only Message is meaningful.
type ChatPlan struct {
	Intent    criteria.Intent
	Message   string
	Evaluate  bool
	Criteria  domain.Criteria
	ResumeIDs []string
	Tool      string
}

// ChatResult is the consolidated, non-streaming answer.
type ChatResult struct {
	Message  string           `json:"message"`
	Intent   criteria.Intent  `json:"intent"`
	Criteria *domain.Criteria `json:"criteria,omitempty"`
	Results  []Event          `json:"results,omitempty"`
	Summary  *Summary         `json:"summary,omitempty"`
}

// ChatService turns a recruiter conversation into a bulk evaluation.
type ChatService struct {
	LLM      domain.LLM
	Matcher  *criteria.Matcher
	Embedder Embedder
	Vectors  domain.VectorStore
	Resumes  domain.ResumeRepository
	Bulk     BulkEvaluator
	TopK     int
}

// NewChatService constructs a ChatService.
func NewChatService(llm domain.LLM, m *criteria.Matcher, e Embedder, v domain.VectorStore, r domain.ResumeRepository, bulk BulkEvaluator, topK int) ChatService {
	if topK <= 0 {
		topK = 20
	}
	return ChatService{LLM: llm, Matcher: m, Embedder: e, Vectors: v, Resumes: r, Bulk: bulk, TopK: topK}
}

type toolArgs struct {
	Role           string   `json:"role"`
	Skills         []string `json:"skills"`
	JobDescription string   `json:"job_description"`
	Query          string   `json:"query"`
	TopK           int      `json:"top_k"`
}

func (a toolArgs) criteria() domain.Criteria {
	return domain.Criteria{Role: a.Role, Skills: a.Skills, JobDescription: a.JobDescription}
}

// Plan classifies the last user message and, for evaluation requests, resolves criteria and targets.
// Tool calls are tried first; free text or unusable arguments fall back to vocabulary extraction.
func (s ChatService) Plan(ctx context.Context, req ChatTurnRequest) (ChatPlan, error) {
	lg := obsctx.LoggerFromContext(ctx)
	last := lastUserMessage(req.Messages)
	if last == "" {
		return ChatPlan{}, fmt.Errorf("%w: a user message is required", domain.ErrInvalidArgument)
	}
	intent := s.Matcher.Classify(last)
	switch intent {
	case criteria.IntentGreeting:
		return ChatPlan{Intent: intent, Message: greetingReply}, nil
	case criteria.IntentOffTopic:
		return ChatPlan{Intent: intent, Message: offTopicReply}, nil
	}

	plan := ChatPlan{Intent: intent}
	extracted := s.Matcher.Extract(userText(req.Messages))
	resp, err := s.LLM.Complete(ctx, domain.ChatRequest{
		System:      chatSystemPrompt(req.ResumeCount),
		Messages:    req.Messages,
		Tools:       chatTools,
		MaxTokens:   800,
		Temperature: 0.2,
	})
	switch {
	case errors.Is(err, domain.ErrSchemaInvalid):
		// an unparseable model reply is treated like free text
		lg.Warn("unusable chat completion, falling back to extraction", "error", err)
		resp, err = domain.ChatResponse{}, nil
	case err != nil:
		if !extracted.Complete() {
			return ChatPlan{}, fmt.Errorf("op=chat.Plan: %w", err)
		}
		lg.Warn("chat completion failed, using extracted criteria", "error", err)
	}

	if err == nil && resp.ToolCall != nil {
		var args toolArgs
		if jerr := json.Unmarshal(resp.ToolCall.Arguments, &args); jerr != nil {
			lg.Warn("malformed tool arguments", "tool", resp.ToolCall.Name, "error", jerr)
		} else if c := args.criteria(); c.Complete() {
			plan.Criteria = c.Normalize()
			plan.Tool = resp.ToolCall.Name
			if resp.ToolCall.Name == ToolSearchResumes {
				ids, serr := s.search(ctx, args, req.ResumeIDs)
				if serr != nil {
					return ChatPlan{}, fmt.Errorf("op=chat.Plan: %w", serr)
				}
				return s.finish(plan, ids), nil
			}
			return s.targetAll(ctx, plan, req.ResumeIDs)
		} else {
			extracted = criteria.Merge(c, extracted)
		}
	}

	if !extracted.Complete() {
		plan.Message = strings.TrimSpace(resp.Text)
		if plan.Message == "" {
			plan.Message = missingReply
		}
		return plan, nil
	}
	plan.Criteria = extracted
	plan.Tool = ToolEvaluateResumes
	return s.targetAll(ctx, plan, req.ResumeIDs)
}

func (s ChatService) targetAll(ctx context.Context, plan ChatPlan, requested []string) (ChatPlan, error) {
	if len(requested) > 0 {
		return s.finish(plan, requested), nil
	}
	list, err := s.Resumes.List(ctx)
	if err != nil {
		return ChatPlan{}, fmt.Errorf("op=chat.Plan: %w", err)
	}
	ids := make([]string, 0, len(list))
	for _, r := range list {
		ids = append(ids, r.ID)
	}
	if len(ids) == 0 {
		plan.Message = noResumeReply
		return plan, nil
	}
	return s.finish(plan, ids), nil
}

func (s ChatService) finish(plan ChatPlan, ids []string) ChatPlan {
	if len(ids) == 0 {
		plan.Message = noMatchReply
		return plan
	}
	plan.Evaluate = true
	plan.ResumeIDs = ids
	plan.Message = fmt.Sprintf("Evaluating %d resume(s) for the %s role against: %s.",
		len(ids), plan.Criteria.Role, strings.Join(plan.Criteria.Skills, ", "))
	return plan
}

// search embeds the query and returns distinct resume ids in rank order, restricted to allowed when set.
func (s ChatService) search(ctx context.Context, args toolArgs, allowed []string) ([]string, error) {
	query := strings.TrimSpace(args.Query)
	if query == "" {
		query = args.Role + " " + strings.Join(args.Skills, " ")
	}
	topK := s.TopK
	if args.TopK > 0 && args.TopK < topK {
		topK = args.TopK
	}
	vec, err := s.Embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	var filter domain.VectorFilter
	if len(allowed) > 0 {
		filter.ResumeIDs = allowed
	}
	matches, err := s.Vectors.Query(ctx, vec, topK, filter)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	seen := map[string]struct{}{}
	ids := make([]string, 0)
	for _, m := range matches {
		if _, ok := seen[m.ResumeID]; ok {
			continue
		}
		seen[m.ResumeID] = struct{}{}
		ids = append(ids, m.ResumeID)
	}
	obsctx.LoggerFromContext(ctx).Info("resume search", "query", query, "chunks", len(matches), "resumes", len(ids))
	return ids, nil
}

// Stream runs an evaluation plan, sending the acknowledgement message first.
func (s ChatService) Stream(ctx context.Context, plan ChatPlan, sink Sink) (Summary, error) {
	crit := plan.Criteria
	if err := sink.Send(Event{Type: EventMessage, Message: plan.Message, Criteria: &crit}); err != nil {
		return Summary{}, err
	}
	return s.Bulk.Run(ctx, plan.ResumeIDs, plan.Criteria, sink)
}

// Execute runs a plan without streaming and returns the consolidated answer.
func (s ChatService) Execute(ctx context.Context, plan ChatPlan) (ChatResult, error) {
	if !plan.Evaluate {
		return ChatResult{Message: plan.Message, Intent: plan.Intent}, nil
	}
	var results []Event
	collect := SinkFunc(func(ev Event) error {
		if ev.Type == EventResult || ev.Type == EventError {
			results = append(results, ev)
		}
		return nil
	})
	sum, err := s.Bulk.Run(ctx, plan.ResumeIDs, plan.Criteria, collect)
	if err != nil && !errors.Is(err, context.Canceled) {
		return ChatResult{}, fmt.Errorf("op=chat.Execute: %w", err)
	}
	crit := plan.Criteria
	return ChatResult{
		Message:  summarize(plan.Criteria, results, sum),
		Intent:   plan.Intent,
		Criteria: &crit,
		Results:  results,
		Summary:  &sum,
	}, nil
}

func summarize(c domain.Criteria, results []Event, sum Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Evaluated %d resume(s) for %s: %d passed, %d failed", sum.Total, c.Role, sum.Passed, sum.Failed)
	if sum.Rejected > 0 {
		fmt.Fprintf(&b, ", %d not resumes", sum.Rejected)
	}
	if sum.Errors > 0 {
		fmt.Fprintf(&b, ", %d errors", sum.Errors)
	}
	b.WriteString(".")
	for i, r := range results {
		name := r.FileName
		if name == "" {
			name = r.ResumeID
		}
		switch {
		case r.Type == EventError:
			fmt.Fprintf(&b, "\n%d. %s: error (%s)", i+1, name, r.Error)
		case r.Evaluation != nil && !r.Evaluation.IsResume:
			fmt.Fprintf(&b, "\n%d. %s: not a resume", i+1, name)
		case r.Evaluation != nil:
			fmt.Fprintf(&b, "\n%d. %s: %d/100 (%s)", i+1, name, r.Evaluation.FitScore, r.Status)
		}
	}
	return b.String()
}

func chatSystemPrompt(resumeCount int) string {
	return fmt.Sprintf(`You are a recruiting assistant for a resume screening tool. %d resume(s) are currently uploaded.
When the user describes who they want to hire, call evaluate_resumes with the role, the required skills and any job description.
When the user asks to find or search for candidates with specific experience, call search_resumes with a search query, the role and skills.
If the role or the skills are missing, do not call a tool; ask a short follow-up question instead.`, resumeCount)
}

func lastUserMessage(msgs []domain.ChatMessage) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == domain.RoleUser && strings.TrimSpace(msgs[i].Content) != "" {
			return msgs[i].Content
		}
	}
	return ""
}

func userText(msgs []domain.ChatMessage) string {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == domain.RoleUser {
			parts = append(parts, m.Content)
		}
	}
	return strings.Join(parts, "\n")
}
