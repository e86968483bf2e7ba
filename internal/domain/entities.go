package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrNotFound            = errors.New("not found")
	ErrRateLimited         = errors.New("rate limited")
	ErrUpstreamAuth        = errors.New("upstream auth failed")
	ErrUpstreamTimeout     = errors.New("upstream timeout")
	ErrUpstreamRateLimit   = errors.New("upstream rate limit")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrSchemaInvalid       = errors.New("schema invalid")
	ErrInternal            = errors.New("internal error")
)

// Context is an alias so ports read the same as the adapters implementing them.
type Context = context.Context

// Resume is an uploaded document and its extracted text.
// Invariants: created once on upload, never mutated, deleted on request.
type Resume struct {
	ID            string    `json:"id"`
	FileName      string    `json:"file_name"`
	FileURL       string    `json:"file_url"`
	FileType      string    `json:"file_type"`
	ExtractedText string    `json:"extracted_text,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// HasText reports whether extraction produced usable text.
func (r Resume) HasText() bool { return strings.TrimSpace(r.ExtractedText) != "" }

// Criteria is the role/skills/job-description triple a resume is evaluated against.
type Criteria struct {
	Role           string   `json:"role"`
	Skills         []string `json:"skills"`
	JobDescription string   `json:"job_description"`
}

// Normalize trims fields and drops empty or duplicate skills, keeping first-seen order.
func (c Criteria) Normalize() Criteria {
	out := Criteria{
		Role:           strings.TrimSpace(c.Role),
		JobDescription: strings.TrimSpace(c.JobDescription),
		Skills:         make([]string, 0, len(c.Skills)),
	}
	seen := make(map[string]struct{}, len(c.Skills))
	for _, s := range c.Skills {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		k := strings.ToLower(s)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out.Skills = append(out.Skills, s)
	}
	return out
}

// Complete reports whether the criteria carry a role and at least one skill.
func (c Criteria) Complete() bool {
	n := c.Normalize()
	return n.Role != "" && len(n.Skills) > 0
}

// Validate returns ErrInvalidArgument naming the missing fields.
func (c Criteria) Validate() error {
	n := c.Normalize()
	var missing []string
	if n.Role == "" {
		missing = append(missing, "role")
	}
	if len(n.Skills) == 0 {
		missing = append(missing, "skills")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: criteria incomplete, missing %s", ErrInvalidArgument, strings.Join(missing, ", "))
	}
	return nil
}

// EvaluationStatus is the pass/fail verdict derived from the fit score.
type EvaluationStatus string

const (
	StatusPass EvaluationStatus = "pass"
	StatusFail EvaluationStatus = "fail"
)

// PassThreshold is the minimum fit score that passes.
const PassThreshold = 50

// StatusFor maps a fit score to its verdict.
func StatusFor(score int) EvaluationStatus {
	if score >= PassThreshold {
		return StatusPass
	}
	return StatusFail
}

// Evaluation is one LLM judgement of a resume against criteria.
type Evaluation struct {
	ID            string          `json:"id"`
	ResumeID      string          `json:"resume_id"`
	Criteria      Criteria        `json:"criteria"`
	FitScore      int             `json:"fit_score"`
	MissingSkills []string        `json:"missing_skills"`
	Feedback      string          `json:"feedback"`
	RawResponse   json.RawMessage `json:"raw_response,omitempty"`
	IsResume      bool            `json:"is_resume"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Status returns the verdict; documents judged not to be resumes always fail.
func (e Evaluation) Status() EvaluationStatus {
	if !e.IsResume {
		return StatusFail
	}
	return StatusFor(e.FitScore)
}

// Chunk is a token-bounded slice of extracted text.
type Chunk struct {
	Text       string `json:"text"`
	Index      int    `json:"index"`
	TokenCount int    `json:"token_count"`
}

// ChunkKey is the external identifier of a resume chunk.
func ChunkKey(resumeID string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", resumeID, index)
}

// ChunkVector is a chunk with its embedding, ready for the vector store.
type ChunkVector struct {
	ResumeID string
	FileName string
	Chunk    Chunk
	Vector   []float32
}

// ChunkMatch is a similarity search hit.
type ChunkMatch struct {
	ResumeID   string  `json:"resume_id"`
	FileName   string  `json:"file_name"`
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

// VectorFilter restricts similarity search to chunks of the listed resumes; zero value matches everything.
type VectorFilter struct {
	ResumeIDs []string
}

// Repositories (ports)

type ResumeRepository interface {
	Create(ctx Context, r Resume) (string, error)
	Get(ctx Context, id string) (Resume, error)
	List(ctx Context) ([]Resume, error)
	Delete(ctx Context, id string) error
}

type EvaluationRepository interface {
	Create(ctx Context, e Evaluation) (string, error)
	ListByResume(ctx Context, resumeID string) ([]Evaluation, error)
	LatestByResumes(ctx Context, resumeIDs []string) (map[string]Evaluation, error)
	DeleteByResume(ctx Context, resumeID string) (int64, error)
	Delete(ctx Context, id string) error
}

// BlobStore (port) keeps original resume files.
type BlobStore interface {
	// Put stores data under key and returns the file URL recorded on the resume.
	Put(ctx Context, key string, data []byte, contentType string) (string, error)
	// Delete removes the object referenced by a URL returned from Put. Missing objects are not an error.
	Delete(ctx Context, fileURL string) error
}

// TextExtractor (port)
type TextExtractor interface {
	Extract(ctx Context, fileName string, data []byte) (string, error)
}

// EmbeddingProvider (port) embeds texts with an external model.
type EmbeddingProvider interface {
	Embed(ctx Context, texts []string) ([][]float32, error)
}

// VectorStore (port)
type VectorStore interface {
	Upsert(ctx Context, points []ChunkVector) error
	Query(ctx Context, vector []float32, topK int, filter VectorFilter) ([]ChunkMatch, error)
	DeleteByResume(ctx Context, resumeID string) error
	DeleteAll(ctx Context) error
}

// Chat roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one turn of a conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Tool declares a function the model may call. Parameters is a JSON schema object.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ChatRequest is a provider-neutral completion request.
type ChatRequest struct {
	System      string
	Messages    []ChatMessage
	Tools       []Tool
	JSONMode    bool
	MaxTokens   int
	Temperature float64
}

// ToolCall is a function invocation chosen by the model.
type ToolCall struct {
	Name      string
	Arguments json.RawMessage
}

// ChatResponse holds either free text or a tool call; Text is empty when ToolCall is set.
type ChatResponse struct {
	Text     string
	ToolCall *ToolCall
	Model    string
}

// LLM (port)
type LLM interface {
	Complete(ctx Context, req ChatRequest) (ChatResponse, error)
}

// Resume lifecycle event types
const (
	EventResumeUploaded = "resume.uploaded"
	EventResumeDeleted  = "resume.deleted"
)

// ResumeEvent is published on resume lifecycle changes.
type ResumeEvent struct {
	Type       string    `json:"type"`
	ResumeID   string    `json:"resume_id"`
	FileName   string    `json:"file_name,omitempty"`
	FileURL    string    `json:"file_url,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventPublisher (port)
type EventPublisher interface {
	Publish(ctx Context, ev ResumeEvent) error
}
