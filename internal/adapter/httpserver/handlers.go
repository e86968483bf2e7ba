package httpserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fairyhunter13/resume-evaluator/internal/config"
	"github.com/fairyhunter13/resume-evaluator/internal/domain"
	"github.com/fairyhunter13/resume-evaluator/internal/usecase"
)

// ReadinessCheck probes one dependency for /readyz.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Server aggregates handlers dependencies.
type Server struct {
	Cfg         config.Config
	Resumes     usecase.ResumeService
	Evaluations usecase.EvaluationService
	Bulk        usecase.BulkEvaluator
	Chat        usecase.ChatService
	Cleanup     usecase.CleanupService
	Checks      []ReadinessCheck
}

// NewServer constructs an HTTP server with all handlers and checks wired.
func NewServer(cfg config.Config, resumes usecase.ResumeService, evals usecase.EvaluationService, bulk usecase.BulkEvaluator, chat usecase.ChatService, cleanup usecase.CleanupService, checks ...ReadinessCheck) *Server {
	return &Server{Cfg: cfg, Resumes: resumes, Evaluations: evals, Bulk: bulk, Chat: chat, Cleanup: cleanup, Checks: checks}
}

// GetResumesHandler lists resumes newest first with their latest evaluation.
func (s *Server) GetResumesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := s.Resumes.List(r.Context())
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"resumes": list})
	}
}

// GetResumeHandler returns one resume with its extracted text and evaluation history.
func (s *Server) GetResumeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.URL.Query().Get("id"))
		if id == "" {
			writeError(w, r, fmt.Errorf("%w: id missing", domain.ErrInvalidArgument), map[string]string{"id": "required"})
			return
		}
		detail, err := s.Resumes.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, detail)
	}
}

// UploadResumeHandler accepts a multipart `file` field.
func (s *Server) UploadResumeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Content-Type"), "multipart/form-data") {
			writeError(w, r, fmt.Errorf("%w: content-type must be multipart/form-data", domain.ErrInvalidArgument), nil)
			return
		}
		maxBytes := s.Cfg.MaxUploadMB * 1024 * 1024
		// Room for multipart framing around a file of exactly maxBytes.
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes+64*1024)
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) || strings.Contains(err.Error(), "request body too large") {
				writeJSON(w, http.StatusRequestEntityTooLarge, errorEnvelope{Error: apiError{
					Code: "INVALID_ARGUMENT", Message: "payload too large", Details: map[string]any{"max_mb": s.Cfg.MaxUploadMB},
				}})
				return
			}
			writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err), nil)
			return
		}
		defer func() { _ = r.MultipartForm.RemoveAll() }()
		f, hdr, err := r.FormFile("file")
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: file required", domain.ErrInvalidArgument), map[string]string{"field": "file"})
			return
		}
		defer func() { _ = f.Close() }()
		data, err := io.ReadAll(f)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: file read: %v", domain.ErrInvalidArgument, err), nil)
			return
		}
		res, err := s.Resumes.Upload(r.Context(), hdr.Filename, data)
		if err != nil {
			writeError(w, r, err, map[string]string{"filename": hdr.Filename})
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// CheckResumeHandler evaluates one resume against criteria.
func (s *Server) CheckResumeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req checkResumeRequest
		if details, err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err, details)
			return
		}
		view, err := s.Evaluations.Check(r.Context(), req.ResumeID, req.Criteria)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"evaluation": view.Evaluation, "status": view.Status})
	}
}

// BulkEvaluateHandler validates the request as JSON, then streams one event per resume.
func (s *Server) BulkEvaluateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req bulkEvaluateRequest
		if details, err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err, details)
			return
		}
		if err := usecase.ValidateBulk(req.ResumeIDs, req.Criteria); err != nil {
			writeError(w, r, err, nil)
			return
		}
		sse := startSSE(w)
		if _, err := s.Bulk.Run(r.Context(), req.ResumeIDs, req.Criteria, sse); err != nil {
			logStreamEnd(r, err)
		}
	}
}

// ChatCriteriaHandler answers one chat turn, streaming the evaluation when requested.
func (s *Server) ChatCriteriaHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// A non-streaming turn still runs the whole evaluation before answering.
		_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
		var req usecase.ChatTurnRequest
		if details, err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err, details)
			return
		}
		plan, err := s.Chat.Plan(r.Context(), req)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		if !req.Stream {
			res, err := s.Chat.Execute(r.Context(), plan)
			if err != nil {
				writeError(w, r, err, nil)
				return
			}
			writeJSON(w, http.StatusOK, res)
			return
		}
		sse := startSSE(w)
		if !plan.Evaluate {
			if err := sse.Send(usecase.Event{Type: usecase.EventMessage, Message: plan.Message}); err != nil {
				logStreamEnd(r, err)
			}
			return
		}
		if _, err := s.Chat.Stream(r.Context(), plan, sse); err != nil {
			logStreamEnd(r, err)
		}
	}
}

// DeleteResumeHandler removes a resume and everything derived from it.
func (s *Server) DeleteResumeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req resumeIDRequest
		if details, err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err, details)
			return
		}
		if err := s.Resumes.Delete(r.Context(), req.ResumeID); err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

// DeleteEvaluationHandler removes one evaluation.
func (s *Server) DeleteEvaluationHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req evaluationIDRequest
		if details, err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err, details)
			return
		}
		if err := s.Resumes.DeleteEvaluation(r.Context(), req.EvaluationID); err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

// PurgeVectorsHandler wipes and recreates the vector collection.
func (s *Server) PurgeVectorsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.Cleanup.PurgeVectors(r.Context()); err != nil {
			writeError(w, r, err, nil)
			return
		}
		LoggerFrom(r).Warn("vector collection purged")
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

// HealthzHandler reports liveness.
func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadyzHandler runs every readiness check; any failure yields 503.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := make([]check, 0, len(s.Checks))
		ok := true
		for _, c := range s.Checks {
			res := check{Name: c.Name, OK: true}
			if err := c.Check(ctx); err != nil {
				res.OK, res.Details, ok = false, err.Error(), false
			}
			checks = append(checks, res)
		}
		st := http.StatusOK
		if !ok {
			st = http.StatusServiceUnavailable
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}

// logStreamEnd records why a stream stopped early; client disconnects are expected.
func logStreamEnd(r *http.Request, err error) {
	lg := LoggerFrom(r)
	if errors.Is(err, context.Canceled) || errors.Is(r.Context().Err(), context.Canceled) {
		lg.Info("stream closed by client", "error", err)
		return
	}
	lg.Error("stream aborted", "error", err)
}
