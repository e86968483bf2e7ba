package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/fairyhunter13/resume-evaluator/internal/domain"
)

// CleanupService re-runs best-effort side effects of a resume deletion. Both steps are idempotent.
type CleanupService struct {
	Vectors domain.VectorStore
	Blobs   domain.BlobStore
}

// NewCleanupService constructs a CleanupService. blobs may be nil.
func NewCleanupService(v domain.VectorStore, b domain.BlobStore) CleanupService {
	return CleanupService{Vectors: v, Blobs: b}
}

// HandleDeleted removes vectors and the blob of a deleted resume.
func (s CleanupService) HandleDeleted(ctx context.Context, ev domain.ResumeEvent) error {
	if ev.ResumeID == "" {
		return fmt.Errorf("%w: event without resume id", domain.ErrInvalidArgument)
	}
	var errs []error
	if err := s.Vectors.DeleteByResume(ctx, ev.ResumeID); err != nil {
		errs = append(errs, fmt.Errorf("vectors: %w", err))
	}
	if s.Blobs != nil && ev.FileURL != "" {
		if err := s.Blobs.Delete(ctx, ev.FileURL); err != nil {
			errs = append(errs, fmt.Errorf("blob: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("op=cleanup.HandleDeleted: %w", err)
	}
	return nil
}

// PurgeVectors wipes the whole vector collection.
func (s CleanupService) PurgeVectors(ctx context.Context) error {
	if err := s.Vectors.DeleteAll(ctx); err != nil {
		return fmt.Errorf("op=cleanup.PurgeVectors: %w", err)
	}
	return nil
}
