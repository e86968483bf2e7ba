package postgres_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/resume-evaluator/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/resume-evaluator/internal/domain"
)

const evaluationID = "9a8b7c6d-5e4f-4a3b-8c2d-1e0f9a8b7c6d"

var evaluationCols = []string{"id", "resume_id", "criteria", "fit_score", "missing_skills", "feedback", "raw_response", "created_at"}

func TestEvaluationRepo_Create(t *testing.T) {
	t.Parallel()

	m := newMock(t)
	eval := domain.Evaluation{
		ResumeID:    resumeID,
		Criteria:    domain.Criteria{Role: "SRE", Skills: []string{"Kubernetes"}},
		FitScore:    72,
		Feedback:    "solid",
		RawResponse: json.RawMessage(`{"is_resume":true}`),
	}
	criteria, _ := json.Marshal(eval.Criteria)
	m.ExpectExec("INSERT INTO evaluations").
		WithArgs(pgxmock.AnyArg(), resumeID, criteria, 72, []string{}, "solid", []byte(`{"is_resume":true}`), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	id, err := postgres.NewEvaluationRepo(m).Create(context.Background(), eval)
	require.NoError(t, err)
	assert.Len(t, id, 36)
}

func TestEvaluationRepo_Create_Error(t *testing.T) {
	t.Parallel()

	m := newMock(t)
	m.ExpectExec("INSERT INTO evaluations").WillReturnError(assert.AnError)

	_, err := postgres.NewEvaluationRepo(m).Create(context.Background(), domain.Evaluation{ResumeID: resumeID})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=evaluation.create")
}

func TestEvaluationRepo_ListByResume(t *testing.T) {
	t.Parallel()

	m := newMock(t)
	now := time.Now().UTC()
	m.ExpectQuery("FROM evaluations WHERE resume_id").WithArgs(resumeID).
		WillReturnRows(pgxmock.NewRows(evaluationCols).
			AddRow(evaluationID, resumeID, []byte(`{"role":"SRE","skills":["Go"],"job_description":""}`), 80, []string{"Terraform"}, "good", []byte(`{"is_resume":true,"fit_score":80}`), now).
			AddRow("0a8b7c6d-5e4f-4a3b-8c2d-1e0f9a8b7c6d", resumeID, []byte(`{"role":"SRE","skills":["Go"]}`), 0, []string{}, "not a resume", []byte(`{"is_resume":false}`), now.Add(-time.Minute)))

	got, err := postgres.NewEvaluationRepo(m).ListByResume(context.Background(), resumeID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "SRE", got[0].Criteria.Role)
	assert.Equal(t, []string{"Terraform"}, got[0].MissingSkills)
	assert.True(t, got[0].IsResume)
	assert.Equal(t, domain.StatusPass, got[0].Status())
	assert.False(t, got[1].IsResume)
	assert.Equal(t, domain.StatusFail, got[1].Status())
}

func TestEvaluationRepo_LatestByResumes(t *testing.T) {
	t.Parallel()

	m := newMock(t)
	now := time.Now().UTC()
	m.ExpectQuery("SELECT DISTINCT ON \\(resume_id\\)").WithArgs([]string{resumeID}).
		WillReturnRows(pgxmock.NewRows(evaluationCols).
			AddRow(evaluationID, resumeID, []byte(`{"role":"SRE","skills":["Go"]}`), 55, []string{}, "", []byte(`{}`), now))

	got, err := postgres.NewEvaluationRepo(m).LatestByResumes(context.Background(), []string{resumeID, "bad-id"})
	require.NoError(t, err)
	require.Contains(t, got, resumeID)
	assert.Equal(t, 55, got[resumeID].FitScore)
	assert.True(t, got[resumeID].IsResume)
}

func TestEvaluationRepo_LatestByResumes_NoIDs(t *testing.T) {
	t.Parallel()

	m := newMock(t)
	got, err := postgres.NewEvaluationRepo(m).LatestByResumes(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEvaluationRepo_DeleteByResume(t *testing.T) {
	t.Parallel()

	m := newMock(t)
	m.ExpectExec("DELETE FROM evaluations WHERE resume_id").WithArgs(resumeID).WillReturnResult(pgxmock.NewResult("DELETE", 3))

	n, err := postgres.NewEvaluationRepo(m).DeleteByResume(context.Background(), resumeID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestEvaluationRepo_Delete(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		affected int64
		wantErr  error
	}{
		{"deleted", 1, nil},
		{"absent", 0, domain.ErrNotFound},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := newMock(t)
			m.ExpectExec("DELETE FROM evaluations WHERE id").WithArgs(evaluationID).
				WillReturnResult(pgxmock.NewResult("DELETE", tt.affected))

			err := postgres.NewEvaluationRepo(m).Delete(context.Background(), evaluationID)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}
