package httpserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/resume-evaluator/internal/adapter/httpserver"
	"github.com/fairyhunter13/resume-evaluator/internal/domain"
	"github.com/fairyhunter13/resume-evaluator/internal/usecase"
)

var criteriaBody = map[string]any{"role": "Backend Engineer", "skills": []string{"Go"}}

const passReply = `{"is_resume":true,"fit_score":81,"missing_skills":[],"feedback":"Solid Go experience."}`

func TestGetResumesHandler(t *testing.T) {
	t.Parallel()

	srv, f := newServer(t)
	f.resumes.On("List", mock.Anything).Return([]domain.Resume{
		{ID: idA, FileName: "a.pdf", ExtractedText: "hidden", CreatedAt: time.Now()},
	}, nil).Once()
	f.evals.On("LatestByResumes", mock.Anything, []string{idA}).Return(map[string]domain.Evaluation{
		idA: {ID: "e1", ResumeID: idA, FitScore: 40, IsResume: true},
	}, nil).Once()

	rec := httptest.NewRecorder()
	srv.GetResumesHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/getResumes", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Resumes []map[string]any `json:"resumes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Resumes, 1)
	assert.NotContains(t, body.Resumes[0], "extracted_text")
	latest, ok := body.Resumes[0]["latest_evaluation"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "fail", latest["status"])
}

func TestGetResumeHandler(t *testing.T) {
	t.Parallel()

	t.Run("missing id", func(t *testing.T) {
		t.Parallel()
		srv, _ := newServer(t)
		rec := httptest.NewRecorder()
		srv.GetResumeHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/getResume", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "INVALID_ARGUMENT", decodeError(t, rec).Error.Code)
	})

	t.Run("not found", func(t *testing.T) {
		t.Parallel()
		srv, f := newServer(t)
		f.resumes.On("Get", mock.Anything, idA).Return(domain.Resume{}, domain.ErrNotFound).Once()
		rec := httptest.NewRecorder()
		srv.GetResumeHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/getResume?id="+idA, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "NOT_FOUND", decodeError(t, rec).Error.Code)
	})

	t.Run("found", func(t *testing.T) {
		t.Parallel()
		srv, f := newServer(t)
		f.resumes.On("Get", mock.Anything, idA).Return(domain.Resume{ID: idA, ExtractedText: "Go developer"}, nil).Once()
		f.evals.On("ListByResume", mock.Anything, idA).Return([]domain.Evaluation{}, nil).Once()
		rec := httptest.NewRecorder()
		srv.GetResumeHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/getResume?id="+idA, nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var body usecase.ResumeDetail
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "Go developer", body.Resume.ExtractedText)
		assert.Empty(t, body.Evaluations)
	})
}

func TestUploadResumeHandler(t *testing.T) {
	t.Parallel()

	srv, f := newServer(t)
	expectEmbeddings(f)
	data := []byte("Jane Doe. Senior Go developer.")
	f.blobs.On("Put", mock.Anything, mock.Anything, data, "text/plain").Return("http://blob/cv.txt", nil).Once()
	f.extract.On("Extract", mock.Anything, "cv.txt", data).Return(string(data), nil).Once()
	f.resumes.On("Create", mock.Anything, mock.Anything).Return(idA, nil).Once()
	f.vectors.On("DeleteByResume", mock.Anything, mock.Anything).Return(nil).Once()
	f.vectors.On("Upsert", mock.Anything, mock.Anything).Return(nil).Once()
	f.events.On("Publish", mock.Anything, mock.Anything).Return(nil).Once()

	rec := httptest.NewRecorder()
	srv.UploadResumeHandler().ServeHTTP(rec, multipartRequest(t, "file", "cv.txt", data))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body usecase.UploadResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Chunks)
	assert.Equal(t, "cv.txt", body.Resume.FileName)
	assert.Equal(t, "http://blob/cv.txt", body.Resume.FileURL)
}

func TestUploadResumeHandler_Rejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		req    func(t *testing.T) *http.Request
		status int
	}{
		{
			name: "not multipart",
			req: func(t *testing.T) *http.Request {
				return jsonRequest(t, http.MethodPost, "/api/uploadResume", "{}")
			},
			status: http.StatusBadRequest,
		},
		{
			name:   "missing file field",
			req:    func(t *testing.T) *http.Request { return multipartRequest(t, "", "", nil) },
			status: http.StatusBadRequest,
		},
		{
			name:   "wrong field name",
			req:    func(t *testing.T) *http.Request { return multipartRequest(t, "cv", "cv.txt", []byte("text")) },
			status: http.StatusBadRequest,
		},
		{
			name:   "unsupported extension",
			req:    func(t *testing.T) *http.Request { return multipartRequest(t, "file", "cv.exe", []byte("MZ binary")) },
			status: http.StatusBadRequest,
		},
		{
			name: "too large",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "file", "cv.txt", bytes.Repeat([]byte("a"), 2<<20))
			},
			status: http.StatusRequestEntityTooLarge,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv, _ := newServer(t)
			rec := httptest.NewRecorder()
			srv.UploadResumeHandler().ServeHTTP(rec, tt.req(t))
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, "INVALID_ARGUMENT", decodeError(t, rec).Error.Code)
		})
	}
}

func TestCheckResumeHandler(t *testing.T) {
	t.Parallel()

	t.Run("pass", func(t *testing.T) {
		t.Parallel()
		srv, f := newServer(t)
		f.resumes.On("Get", mock.Anything, idA).Return(domain.Resume{ID: idA, ExtractedText: "Go developer"}, nil).Once()
		f.llm.On("Complete", mock.Anything, mock.Anything).Return(domain.ChatResponse{Text: passReply}, nil).Once()
		f.evals.On("Create", mock.Anything, mock.Anything).Return("e1", nil).Once()

		rec := httptest.NewRecorder()
		srv.CheckResumeHandler().ServeHTTP(rec, jsonRequest(t, http.MethodPost, "/api/checkResume",
			map[string]any{"resumeId": idA, "criteria": criteriaBody}))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var body struct {
			Evaluation domain.Evaluation       `json:"evaluation"`
			Status     domain.EvaluationStatus `json:"status"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, domain.StatusPass, body.Status)
		assert.Equal(t, 81, body.Evaluation.FitScore)
		assert.Equal(t, "e1", body.Evaluation.ID)
	})

	t.Run("incomplete criteria", func(t *testing.T) {
		t.Parallel()
		srv, _ := newServer(t)
		rec := httptest.NewRecorder()
		srv.CheckResumeHandler().ServeHTTP(rec, jsonRequest(t, http.MethodPost, "/api/checkResume",
			map[string]any{"resumeId": idA, "criteria": map[string]any{"role": "SRE"}}))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decodeError(t, rec).Error.Message, "skills")
	})

	t.Run("missing resume id", func(t *testing.T) {
		t.Parallel()
		srv, _ := newServer(t)
		rec := httptest.NewRecorder()
		srv.CheckResumeHandler().ServeHTTP(rec, jsonRequest(t, http.MethodPost, "/api/checkResume",
			map[string]any{"criteria": criteriaBody}))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "required", decodeError(t, rec).Error.Details["resumeId"])
	})

	t.Run("invalid json", func(t *testing.T) {
		t.Parallel()
		srv, _ := newServer(t)
		rec := httptest.NewRecorder()
		srv.CheckResumeHandler().ServeHTTP(rec, jsonRequest(t, http.MethodPost, "/api/checkResume", "{"))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("model rate limited", func(t *testing.T) {
		t.Parallel()
		srv, f := newServer(t)
		f.resumes.On("Get", mock.Anything, idA).Return(domain.Resume{ID: idA, ExtractedText: "Go developer"}, nil).Once()
		f.llm.On("Complete", mock.Anything, mock.Anything).Return(domain.ChatResponse{}, domain.ErrUpstreamRateLimit).Once()

		rec := httptest.NewRecorder()
		srv.CheckResumeHandler().ServeHTTP(rec, jsonRequest(t, http.MethodPost, "/api/checkResume",
			map[string]any{"resumeId": idA, "criteria": criteriaBody}))
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "UPSTREAM_RATE_LIMIT", decodeError(t, rec).Error.Code)
	})

	t.Run("malformed model reply", func(t *testing.T) {
		t.Parallel()
		srv, f := newServer(t)
		f.resumes.On("Get", mock.Anything, idA).Return(domain.Resume{ID: idA, ExtractedText: "Go developer"}, nil).Once()
		f.llm.On("Complete", mock.Anything, mock.Anything).Return(domain.ChatResponse{Text: "no json here"}, nil).Once()

		rec := httptest.NewRecorder()
		srv.CheckResumeHandler().ServeHTTP(rec, jsonRequest(t, http.MethodPost, "/api/checkResume",
			map[string]any{"resumeId": idA, "criteria": criteriaBody}))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "SCHEMA_INVALID", decodeError(t, rec).Error.Code)
	})
}

func TestBulkEvaluateHandler(t *testing.T) {
	t.Parallel()

	t.Run("validation errors are json", func(t *testing.T) {
		t.Parallel()
		tests := []map[string]any{
			{"resumeIds": []string{}, "criteria": criteriaBody},
			{"resumeIds": []string{idA}, "criteria": map[string]any{"skills": []string{"Go"}}},
		}
		for _, body := range tests {
			srv, _ := newServer(t)
			rec := httptest.NewRecorder()
			srv.BulkEvaluateHandler().ServeHTTP(rec, jsonRequest(t, http.MethodPost, "/api/bulkEvaluate", body))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
		}
	})

	t.Run("streams events", func(t *testing.T) {
		t.Parallel()
		srv, f := newServer(t)
		f.resumes.On("Get", mock.Anything, idA).Return(domain.Resume{ID: idA, FileName: "a.pdf", ExtractedText: "Go developer"}, nil).Once()
		f.resumes.On("Get", mock.Anything, idB).Return(domain.Resume{}, domain.ErrNotFound).Once()
		f.llm.On("Complete", mock.Anything, mock.Anything).Return(domain.ChatResponse{Text: passReply}, nil).Once()
		f.evals.On("DeleteByResume", mock.Anything, idA).Return(int64(1), nil).Once()
		f.evals.On("Create", mock.Anything, mock.Anything).Return("e1", nil).Once()

		rec := httptest.NewRecorder()
		srv.BulkEvaluateHandler().ServeHTTP(rec, jsonRequest(t, http.MethodPost, "/api/bulkEvaluate",
			map[string]any{"resumeIds": []string{idA, idB}, "criteria": criteriaBody}))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

		evs := sseEvents(t, rec.Body.String())
		assert.Equal(t, []string{usecase.EventProgress, usecase.EventResult, usecase.EventError, usecase.EventComplete}, eventTypes(evs))
		assert.Equal(t, idA, evs[1].ResumeID)
		assert.Equal(t, domain.StatusPass, evs[1].Status)
		assert.Equal(t, idB, evs[2].ResumeID)
		require.NotNil(t, evs[3].Summary)
		assert.Equal(t, usecase.Summary{Total: 2, Passed: 1, Errors: 1}, *evs[3].Summary)
	})

	t.Run("client disconnect stops the run", func(t *testing.T) {
		t.Parallel()
		srv, _ := newServer(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		req := jsonRequest(t, http.MethodPost, "/api/bulkEvaluate",
			map[string]any{"resumeIds": []string{idA}, "criteria": criteriaBody}).WithContext(ctx)

		rec := httptest.NewRecorder()
		srv.BulkEvaluateHandler().ServeHTTP(rec, req)
		assert.Empty(t, sseEvents(t, rec.Body.String()))
	})
}

func TestChatCriteriaHandler(t *testing.T) {
	t.Parallel()

	t.Run("greeting json", func(t *testing.T) {
		t.Parallel()
		srv, _ := newServer(t)
		rec := httptest.NewRecorder()
		srv.ChatCriteriaHandler().ServeHTTP(rec, jsonRequest(t, http.MethodPost, "/api/chat-criteria", map[string]any{
			"messages": []map[string]string{{"role": "user", "content": "hello"}},
		}))
		require.Equal(t, http.StatusOK, rec.Code)
		var res usecase.ChatResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		assert.Equal(t, "greeting", string(res.Intent))
		assert.NotEmpty(t, res.Message)
		assert.Nil(t, res.Summary)
	})

	t.Run("messages required", func(t *testing.T) {
		t.Parallel()
		srv, _ := newServer(t)
		rec := httptest.NewRecorder()
		srv.ChatCriteriaHandler().ServeHTTP(rec, jsonRequest(t, http.MethodPost, "/api/chat-criteria", map[string]any{"resumeCount": 1}))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "required", decodeError(t, rec).Error.Details["messages"])
	})

	t.Run("streamed evaluation", func(t *testing.T) {
		t.Parallel()
		srv, f := newServer(t)
		args, _ := json.Marshal(criteriaBody)
		f.llm.On("Complete", mock.Anything, mock.MatchedBy(func(r domain.ChatRequest) bool { return len(r.Tools) > 0 })).
			Return(domain.ChatResponse{ToolCall: &domain.ToolCall{Name: usecase.ToolEvaluateResumes, Arguments: args}}, nil).Once()
		f.llm.On("Complete", mock.Anything, mock.MatchedBy(func(r domain.ChatRequest) bool { return r.JSONMode })).
			Return(domain.ChatResponse{Text: passReply}, nil).Once()
		f.resumes.On("Get", mock.Anything, idA).Return(domain.Resume{ID: idA, ExtractedText: "Go developer"}, nil).Once()
		f.evals.On("DeleteByResume", mock.Anything, idA).Return(int64(0), nil).Once()
		f.evals.On("Create", mock.Anything, mock.Anything).Return("e1", nil).Once()

		rec := httptest.NewRecorder()
		srv.ChatCriteriaHandler().ServeHTTP(rec, jsonRequest(t, http.MethodPost, "/api/chat-criteria", map[string]any{
			"messages":  []map[string]string{{"role": "user", "content": "screen them for a backend engineer with Go"}},
			"resumeIds": []string{idA},
			"stream":    true,
		}))
		require.Equal(t, http.StatusOK, rec.Code)
		evs := sseEvents(t, rec.Body.String())
		assert.Equal(t, []string{usecase.EventMessage, usecase.EventProgress, usecase.EventResult, usecase.EventComplete}, eventTypes(evs))
		require.NotNil(t, evs[0].Criteria)
		assert.Equal(t, "Backend Engineer", evs[0].Criteria.Role)
	})

	t.Run("streamed conversational reply", func(t *testing.T) {
		t.Parallel()
		srv, _ := newServer(t)
		rec := httptest.NewRecorder()
		srv.ChatCriteriaHandler().ServeHTTP(rec, jsonRequest(t, http.MethodPost, "/api/chat-criteria", map[string]any{
			"messages": []map[string]string{{"role": "user", "content": "hi"}},
			"stream":   true,
		}))
		evs := sseEvents(t, rec.Body.String())
		require.Len(t, evs, 1)
		assert.Equal(t, usecase.EventMessage, evs[0].Type)
	})

	t.Run("model failure without criteria", func(t *testing.T) {
		t.Parallel()
		srv, f := newServer(t)
		f.llm.On("Complete", mock.Anything, mock.Anything).Return(domain.ChatResponse{}, domain.ErrUpstreamTimeout).Once()
		rec := httptest.NewRecorder()
		srv.ChatCriteriaHandler().ServeHTTP(rec, jsonRequest(t, http.MethodPost, "/api/chat-criteria", map[string]any{
			"messages": []map[string]string{{"role": "user", "content": "we are hiring"}},
		}))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestDeleteHandlers(t *testing.T) {
	t.Parallel()

	t.Run("delete resume", func(t *testing.T) {
		t.Parallel()
		srv, f := newServer(t)
		f.resumes.On("Get", mock.Anything, idA).Return(domain.Resume{ID: idA, FileURL: "http://blob/a"}, nil).Once()
		f.evals.On("DeleteByResume", mock.Anything, idA).Return(int64(3), nil).Once()
		f.blobs.On("Delete", mock.Anything, "http://blob/a").Return(nil).Once()
		f.vectors.On("DeleteByResume", mock.Anything, idA).Return(errors.New("qdrant down")).Once()
		f.resumes.On("Delete", mock.Anything, idA).Return(nil).Once()
		f.events.On("Publish", mock.Anything, mock.Anything).Return(nil).Once()

		rec := httptest.NewRecorder()
		srv.DeleteResumeHandler().ServeHTTP(rec, jsonRequest(t, http.MethodDelete, "/api/deleteResume", map[string]string{"resumeId": idA}))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"success":true}`, rec.Body.String())
	})

	t.Run("delete unknown resume", func(t *testing.T) {
		t.Parallel()
		srv, f := newServer(t)
		f.resumes.On("Get", mock.Anything, idA).Return(domain.Resume{}, domain.ErrNotFound).Once()
		rec := httptest.NewRecorder()
		srv.DeleteResumeHandler().ServeHTTP(rec, jsonRequest(t, http.MethodDelete, "/api/deleteResume", map[string]string{"resumeId": idA}))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("delete evaluation", func(t *testing.T) {
		t.Parallel()
		srv, f := newServer(t)
		f.evals.On("Delete", mock.Anything, "e1").Return(nil).Once()
		f.evals.On("Delete", mock.Anything, "e2").Return(domain.ErrNotFound).Once()

		rec := httptest.NewRecorder()
		srv.DeleteEvaluationHandler().ServeHTTP(rec, jsonRequest(t, http.MethodDelete, "/api/deleteEvaluation", map[string]string{"evaluationId": "e1"}))
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = httptest.NewRecorder()
		srv.DeleteEvaluationHandler().ServeHTTP(rec, jsonRequest(t, http.MethodDelete, "/api/deleteEvaluation", map[string]string{"evaluationId": "e2"}))
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = httptest.NewRecorder()
		srv.DeleteEvaluationHandler().ServeHTTP(rec, jsonRequest(t, http.MethodDelete, "/api/deleteEvaluation", map[string]string{}))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "required", decodeError(t, rec).Error.Details["evaluationId"])
	})
}

func TestPurgeVectorsHandler(t *testing.T) {
	t.Parallel()

	srv, f := newServer(t)
	f.vectors.On("DeleteAll", mock.Anything).Return(nil).Once()
	rec := httptest.NewRecorder()
	srv.PurgeVectorsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/admin/vectors", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthAndReadiness(t *testing.T) {
	t.Parallel()

	ok := httpserver.ReadinessCheck{Name: "db", Check: func(context.Context) error { return nil }}
	bad := httpserver.ReadinessCheck{Name: "qdrant", Check: func(context.Context) error { return errors.New("connection refused") }}

	srv, _ := newServer(t, ok)
	rec := httptest.NewRecorder()
	srv.HealthzHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.ReadyzHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	srv, _ = newServer(t, ok, bad)
	rec = httptest.NewRecorder()
	srv.ReadyzHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}
