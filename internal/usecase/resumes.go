package usecase

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/fairyhunter13/resume-evaluator/internal/domain"
	obsctx "github.com/fairyhunter13/resume-evaluator/internal/observability"
	"github.com/fairyhunter13/resume-evaluator/pkg/textx"
)

// allowedTypes maps accepted extensions to the MIME types their content may sniff as.
var allowedTypes = map[string][]string{
	".pdf":  {"application/pdf"},
	".docx": {"application/vnd.openxmlformats-officedocument.wordprocessingml.document", "application/zip"},
	".txt":  {"text/plain"},
	".md":   {"text/plain"},
}

// SupportedExtensions lists the upload extensions in display order.
var SupportedExtensions = []string{".pdf", ".docx", ".txt", ".md"}

// ResumeService handles resume ingestion, listing and deletion.
type ResumeService struct {
	Resumes     domain.ResumeRepository
	Evaluations domain.EvaluationRepository
	Blobs       domain.BlobStore
	Extractor   domain.TextExtractor
	Indexer     Indexer
	Events      domain.EventPublisher
	MaxBytes    int64
}

// NewResumeService constructs a ResumeService. events may be nil.
func NewResumeService(r domain.ResumeRepository, e domain.EvaluationRepository, b domain.BlobStore, x domain.TextExtractor, ix Indexer, events domain.EventPublisher, maxBytes int64) ResumeService {
	return ResumeService{Resumes: r, Evaluations: e, Blobs: b, Extractor: x, Indexer: ix, Events: events, MaxBytes: maxBytes}
}

// UploadResult is the outcome of a successful upload.
type UploadResult struct {
	Resume domain.Resume `json:"resume"`
	Chunks int           `json:"chunks"`
}

// ResumeSummary is a resume in the list view with its newest evaluation.
type ResumeSummary struct {
	domain.Resume
	LatestEvaluation *EvaluationView `json:"latest_evaluation"`
}

// ResumeDetail is one resume with its evaluation history.
type ResumeDetail struct {
	Resume      domain.Resume    `json:"resume"`
	Evaluations []EvaluationView `json:"evaluations"`
}

// EvaluationView adds the derived status to an evaluation.
type EvaluationView struct {
	domain.Evaluation
	Status domain.EvaluationStatus `json:"status"`
}

// ViewOf wraps e with its status.
func ViewOf(e domain.Evaluation) EvaluationView {
	return EvaluationView{Evaluation: e, Status: e.Status()}
}

// ValidateUpload checks the extension allow-list and that the content sniffs as that type.
// It returns the detected MIME type without parameters.
func ValidateUpload(fileName string, data []byte, maxBytes int64) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: file is empty", domain.ErrInvalidArgument)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return "", fmt.Errorf("%w: file exceeds %d bytes", domain.ErrInvalidArgument, maxBytes)
	}
	ext := strings.ToLower(filepath.Ext(fileName))
	allowed, ok := allowedTypes[ext]
	if !ok {
		return "", fmt.Errorf("%w: unsupported file type %q, allowed: %s", domain.ErrInvalidArgument, ext, strings.Join(SupportedExtensions, ", "))
	}
	detected := mimetype.Detect(data)
	for m := detected; m != nil; m = m.Parent() {
		for _, a := range allowed {
			if m.Is(a) {
				return baseMIME(allowed[0]), nil
			}
		}
	}
	return "", fmt.Errorf("%w: content looks like %s, not %s", domain.ErrInvalidArgument, baseMIME(detected.String()), ext)
}

func baseMIME(m string) string {
	if i := strings.IndexByte(m, ';'); i >= 0 {
		return strings.TrimSpace(m[:i])
	}
	return m
}

// ObjectKey is the blob key of an uploaded file.
func ObjectKey(resumeID, fileName string) string {
	return "resumes/" + resumeID + "/" + textx.SafeFileName(fileName)
}

// Upload validates, stores, extracts, persists and indexes a resume file.
// Side effects of earlier steps are not rolled back when a later step fails.
func (s ResumeService) Upload(ctx context.Context, fileName string, data []byte) (UploadResult, error) {
	lg := obsctx.LoggerFromContext(ctx)
	fileType, err := ValidateUpload(fileName, data, s.MaxBytes)
	if err != nil {
		return UploadResult{}, err
	}
	id := uuid.New().String()
	fileURL, err := s.Blobs.Put(ctx, ObjectKey(id, fileName), data, fileType)
	if err != nil {
		return UploadResult{}, fmt.Errorf("op=resume.Upload: store: %w", err)
	}
	text, err := s.Extractor.Extract(ctx, fileName, data)
	if err != nil {
		return UploadResult{}, fmt.Errorf("op=resume.Upload: extract: %w", err)
	}
	r := domain.Resume{
		ID:            id,
		FileName:      filepath.Base(fileName),
		FileURL:       fileURL,
		FileType:      fileType,
		ExtractedText: text,
		CreatedAt:     time.Now().UTC(),
	}
	if _, err := s.Resumes.Create(ctx, r); err != nil {
		lg.Error("resume insert failed after blob upload", "resume_id", id, "file_url", fileURL, "error", err)
		return UploadResult{}, fmt.Errorf("op=resume.Upload: persist: %w", err)
	}
	n, err := s.Indexer.Index(ctx, r)
	if err != nil {
		return UploadResult{}, fmt.Errorf("op=resume.Upload: index: %w", err)
	}
	s.publish(ctx, domain.ResumeEvent{Type: domain.EventResumeUploaded, ResumeID: id, FileName: r.FileName, FileURL: fileURL})
	lg.Info("resume uploaded", "resume_id", id, "file_type", fileType, "bytes", len(data), "chunks", n)
	return UploadResult{Resume: r, Chunks: n}, nil
}

// List returns every resume newest first with its latest evaluation.
func (s ResumeService) List(ctx context.Context) ([]ResumeSummary, error) {
	resumes, err := s.Resumes.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("op=resume.List: %w", err)
	}
	ids := make([]string, len(resumes))
	for i, r := range resumes {
		ids[i] = r.ID
	}
	latest := map[string]domain.Evaluation{}
	if len(ids) > 0 {
		latest, err = s.Evaluations.LatestByResumes(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("op=resume.List: %w", err)
		}
	}
	out := make([]ResumeSummary, 0, len(resumes))
	for _, r := range resumes {
		r.ExtractedText = ""
		sum := ResumeSummary{Resume: r}
		if e, ok := latest[r.ID]; ok {
			v := ViewOf(e)
			sum.LatestEvaluation = &v
		}
		out = append(out, sum)
	}
	return out, nil
}

// Get returns a resume with its evaluations, newest first.
func (s ResumeService) Get(ctx context.Context, id string) (ResumeDetail, error) {
	if strings.TrimSpace(id) == "" {
		return ResumeDetail{}, fmt.Errorf("%w: id is required", domain.ErrInvalidArgument)
	}
	r, err := s.Resumes.Get(ctx, id)
	if err != nil {
		return ResumeDetail{}, fmt.Errorf("op=resume.Get: %w", err)
	}
	evals, err := s.Evaluations.ListByResume(ctx, id)
	if err != nil {
		return ResumeDetail{}, fmt.Errorf("op=resume.Get: %w", err)
	}
	views := make([]EvaluationView, 0, len(evals))
	for _, e := range evals {
		views = append(views, ViewOf(e))
	}
	return ResumeDetail{Resume: r, Evaluations: views}, nil
}

// Delete removes a resume: evaluations, then blob and vectors best-effort, then the row.
func (s ResumeService) Delete(ctx context.Context, id string) error {
	lg := obsctx.LoggerFromContext(ctx)
	r, err := s.Resumes.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("op=resume.Delete: %w", err)
	}
	if _, err := s.Evaluations.DeleteByResume(ctx, id); err != nil {
		return fmt.Errorf("op=resume.Delete: evaluations: %w", err)
	}
	if err := s.Blobs.Delete(ctx, r.FileURL); err != nil {
		lg.Warn("blob deletion failed", "resume_id", id, "file_url", r.FileURL, "error", err)
	}
	if err := s.Indexer.Vectors.DeleteByResume(ctx, id); err != nil {
		lg.Warn("vector deletion failed", "resume_id", id, "error", err)
	}
	if err := s.Resumes.Delete(ctx, id); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("op=resume.Delete: %w", err)
	}
	s.publish(ctx, domain.ResumeEvent{Type: domain.EventResumeDeleted, ResumeID: id, FileName: r.FileName, FileURL: r.FileURL})
	lg.Info("resume deleted", "resume_id", id)
	return nil
}

// DeleteEvaluation removes one evaluation.
func (s ResumeService) DeleteEvaluation(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: evaluationId is required", domain.ErrInvalidArgument)
	}
	if err := s.Evaluations.Delete(ctx, id); err != nil {
		return fmt.Errorf("op=resume.DeleteEvaluation: %w", err)
	}
	return nil
}

func (s ResumeService) publish(ctx context.Context, ev domain.ResumeEvent) {
	if s.Events == nil {
		return
	}
	ev.OccurredAt = time.Now().UTC()
	if err := s.Events.Publish(ctx, ev); err != nil {
		obsctx.LoggerFromContext(ctx).Warn("event publish failed", "type", ev.Type, "resume_id", ev.ResumeID, "error", err)
	}
}
