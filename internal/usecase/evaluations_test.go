package usecase_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/resume-evaluator/internal/domain"
	"github.com/fairyhunter13/resume-evaluator/internal/domain/mocks"
	"github.com/fairyhunter13/resume-evaluator/internal/usecase"
)

func TestEvaluationService_Check(t *testing.T) {
	t.Parallel()

	resumes := mocks.NewResumeRepository(t)
	evals := mocks.NewEvaluationRepository(t)
	ev := &stubEvaluator{byText: map[string]domain.Evaluation{
		"go resume": {FitScore: 77, IsResume: true, MissingSkills: []string{}, Feedback: "good"},
	}}
	svc := usecase.NewEvaluationService(resumes, evals, ev)

	resumes.On("Get", mock.Anything, idA).Return(domain.Resume{ID: idA, ExtractedText: "go resume"}, nil).Once()
	evals.On("Create", mock.Anything, mock.MatchedBy(func(e domain.Evaluation) bool {
		return e.ResumeID == idA && e.FitScore == 77 && e.Criteria.Role == testCriteria.Role && !e.CreatedAt.IsZero()
	})).Return("e1", nil).Once()

	got, err := svc.Check(context.Background(), idA, testCriteria)
	require.NoError(t, err)
	assert.Equal(t, "e1", got.ID)
	assert.Equal(t, domain.StatusPass, got.Status)
	evals.AssertNotCalled(t, "DeleteByResume", mock.Anything, mock.Anything)
}

func TestEvaluationService_Check_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		id       string
		criteria domain.Criteria
		setup    func(r *mocks.ResumeRepository)
		wantErr  error
	}{
		{name: "missing id", id: "", criteria: testCriteria, wantErr: domain.ErrInvalidArgument},
		{name: "missing skills", id: idA, criteria: domain.Criteria{Role: "SRE"}, wantErr: domain.ErrInvalidArgument},
		{
			name: "unknown resume", id: idA, criteria: testCriteria, wantErr: domain.ErrNotFound,
			setup: func(r *mocks.ResumeRepository) {
				r.On("Get", mock.Anything, idA).Return(domain.Resume{}, domain.ErrNotFound).Once()
			},
		},
		{
			name: "no extracted text", id: idA, criteria: testCriteria, wantErr: domain.ErrInvalidArgument,
			setup: func(r *mocks.ResumeRepository) {
				r.On("Get", mock.Anything, idA).Return(domain.Resume{ID: idA}, nil).Once()
			},
		},
		{
			name: "model failure", id: idA, criteria: testCriteria, wantErr: domain.ErrUpstreamTimeout,
			setup: func(r *mocks.ResumeRepository) {
				r.On("Get", mock.Anything, idA).Return(domain.Resume{ID: idA, ExtractedText: "unknown"}, nil).Once()
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			resumes := mocks.NewResumeRepository(t)
			if tt.setup != nil {
				tt.setup(resumes)
			}
			svc := usecase.NewEvaluationService(resumes, mocks.NewEvaluationRepository(t), &stubEvaluator{})
			_, err := svc.Check(context.Background(), tt.id, tt.criteria)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
