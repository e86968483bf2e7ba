package usecase_test

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/fairyhunter13/resume-evaluator/internal/domain"
	"github.com/fairyhunter13/resume-evaluator/internal/service/chunker"
	"github.com/fairyhunter13/resume-evaluator/internal/usecase"
)

const (
	idA = "aaaaaaaa-0000-4000-8000-000000000001"
	idB = "bbbbbbbb-0000-4000-8000-000000000002"
	idC = "cccccccc-0000-4000-8000-000000000003"
)

type wordCounter struct{}

func (wordCounter) Count(s string) int { return len(strings.Fields(s)) }

func newChunker(maxTokens int) *chunker.Chunker { return chunker.New(wordCounter{}, maxTokens, 0) }

// fakeEmbedder returns a one-dimensional vector holding the text length.
type fakeEmbedder struct {
	err     error
	queries []string
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, q string) ([]float32, error) {
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1}, nil
}

// stubEvaluator answers by resume text; unknown texts fail.
type stubEvaluator struct {
	mu      sync.Mutex
	byText  map[string]domain.Evaluation
	calls   []string
	lastCri domain.Criteria
}

func (s *stubEvaluator) Evaluate(_ context.Context, text string, c domain.Criteria) (domain.Evaluation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, text)
	s.lastCri = c
	e, ok := s.byText[text]
	if !ok {
		return domain.Evaluation{}, fmt.Errorf("%w: model timed out", domain.ErrUpstreamTimeout)
	}
	e.Criteria = c
	return e, nil
}

type recordingSink struct {
	events []usecase.Event
	failAt int
}

func (r *recordingSink) Send(ev usecase.Event) error {
	if r.failAt > 0 && len(r.events)+1 == r.failAt {
		return fmt.Errorf("client gone")
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingSink) types() []string {
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

var testCriteria = domain.Criteria{Role: "Backend Engineer", Skills: []string{"Go", "PostgreSQL"}}
