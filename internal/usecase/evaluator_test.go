package usecase_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/resume-evaluator/internal/domain"
	"github.com/fairyhunter13/resume-evaluator/internal/domain/mocks"
	"github.com/fairyhunter13/resume-evaluator/internal/usecase"
)

func TestParseEvaluation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		raw         string
		wantScore   int
		wantResume  bool
		wantMissing []string
		wantStatus  domain.EvaluationStatus
	}{
		{
			name:        "plain json",
			raw:         `{"is_resume":true,"fit_score":72,"missing_skills":["Kafka"],"feedback":"Strong Go background."}`,
			wantScore:   72,
			wantResume:  true,
			wantMissing: []string{"Kafka"},
			wantStatus:  domain.StatusPass,
		},
		{
			name:        "fenced json",
			raw:         "```json\n{\"is_resume\":true,\"fit_score\":49,\"missing_skills\":[],\"feedback\":\"Close.\"}\n```",
			wantScore:   49,
			wantResume:  true,
			wantMissing: []string{},
			wantStatus:  domain.StatusFail,
		},
		{
			name:        "object embedded in prose with braces in strings",
			raw:         `Here you go: {"is_resume":true,"fit_score":50,"missing_skills":[" "],"feedback":"uses {curly} text"} hope it helps`,
			wantScore:   50,
			wantResume:  true,
			wantMissing: []string{},
			wantStatus:  domain.StatusPass,
		},
		{
			name:        "not a resume forces zero",
			raw:         `{"is_resume":false,"fit_score":88,"missing_skills":["Go"],"feedback":"This is a cover letter."}`,
			wantScore:   0,
			wantResume:  false,
			wantMissing: []string{"Go"},
			wantStatus:  domain.StatusFail,
		},
		{
			name:        "score above range is clamped",
			raw:         `{"is_resume":true,"fit_score":140,"missing_skills":[],"feedback":""}`,
			wantScore:   100,
			wantResume:  true,
			wantMissing: []string{},
			wantStatus:  domain.StatusPass,
		},
		{
			name:        "huge score is clamped before conversion",
			raw:         `{"is_resume":true,"fit_score":1e19,"missing_skills":[],"feedback":""}`,
			wantScore:   100,
			wantResume:  true,
			wantMissing: []string{},
			wantStatus:  domain.StatusPass,
		},
		{
			name:        "huge negative score is clamped before conversion",
			raw:         `{"is_resume":true,"fit_score":-1e300,"missing_skills":[],"feedback":""}`,
			wantScore:   0,
			wantResume:  true,
			wantMissing: []string{},
			wantStatus:  domain.StatusFail,
		},
		{
			name:        "negative score is clamped",
			raw:         `{"is_resume":true,"fit_score":-3,"missing_skills":[],"feedback":""}`,
			wantScore:   0,
			wantResume:  true,
			wantMissing: []string{},
			wantStatus:  domain.StatusFail,
		},
		{
			name:        "fractional score rounds",
			raw:         `{"is_resume":true,"fit_score":49.6,"missing_skills":[],"feedback":""}`,
			wantScore:   50,
			wantResume:  true,
			wantMissing: []string{},
			wantStatus:  domain.StatusPass,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := usecase.ParseEvaluation(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.wantScore, got.FitScore)
			assert.Equal(t, tt.wantResume, got.IsResume)
			assert.Equal(t, tt.wantMissing, got.MissingSkills)
			assert.Equal(t, tt.wantStatus, got.Status())
			assert.NotEmpty(t, got.RawResponse)
		})
	}
}

func TestParseEvaluation_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
	}{
		{"no json", "I cannot evaluate this."},
		{"missing field", `{"is_resume":true,"fit_score":70,"feedback":"ok"}`},
		{"wrong type", `{"is_resume":"yes","fit_score":70,"missing_skills":[],"feedback":"ok"}`},
		{"array instead of object", `[1,2,3]`},
		{"unbalanced", `{"is_resume":true,"fit_score":70`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := usecase.ParseEvaluation(tt.raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrSchemaInvalid)
			var pe *usecase.ParseError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.raw, pe.Raw)
		})
	}
}

func TestEvaluator_Evaluate(t *testing.T) {
	t.Parallel()

	llm := mocks.NewLLM(t)
	longText := strings.Repeat("é", usecase.MaxResumeRunes+100)
	llm.On("Complete", mock.Anything, mock.MatchedBy(func(r domain.ChatRequest) bool {
		user := r.Messages[0].Content
		return r.JSONMode &&
			len(r.Tools) == 0 &&
			strings.Contains(user, `"role":"Backend Engineer"`) &&
			strings.Count(user, "é") == usecase.MaxResumeRunes
	})).Return(domain.ChatResponse{Text: `{"is_resume":true,"fit_score":64,"missing_skills":["PostgreSQL"],"feedback":"Good."}`, Model: "test"}, nil).Once()

	got, err := usecase.NewEvaluator(llm).Evaluate(context.Background(), longText, domain.Criteria{Role: " Backend Engineer ", Skills: []string{"Go", "go"}})
	require.NoError(t, err)
	assert.Equal(t, 64, got.FitScore)
	assert.Equal(t, domain.Criteria{Role: "Backend Engineer", Skills: []string{"Go"}}, got.Criteria)
}

func TestEvaluator_Evaluate_Errors(t *testing.T) {
	t.Parallel()

	t.Run("upstream error is wrapped", func(t *testing.T) {
		t.Parallel()
		llm := mocks.NewLLM(t)
		llm.On("Complete", mock.Anything, mock.Anything).Return(domain.ChatResponse{}, domain.ErrUpstreamRateLimit).Once()
		_, err := usecase.NewEvaluator(llm).Evaluate(context.Background(), "cv", testCriteria)
		assert.ErrorIs(t, err, domain.ErrUpstreamRateLimit)
	})

	t.Run("unparseable reply", func(t *testing.T) {
		t.Parallel()
		llm := mocks.NewLLM(t)
		llm.On("Complete", mock.Anything, mock.Anything).Return(domain.ChatResponse{Text: "sorry"}, nil).Once()
		_, err := usecase.NewEvaluator(llm).Evaluate(context.Background(), "cv", testCriteria)
		assert.ErrorIs(t, err, domain.ErrSchemaInvalid)
	})
}
