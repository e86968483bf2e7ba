package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fairyhunter13/resume-evaluator/internal/domain"
)

// ResumeRepo persists resumes.
type ResumeRepo struct{ Pool PgxPool }

// NewResumeRepo constructs a ResumeRepo with the given pool.
func NewResumeRepo(p PgxPool) *ResumeRepo { return &ResumeRepo{Pool: p} }

// Create stores a new resume and returns its id (generates one if empty).
func (r *ResumeRepo) Create(ctx domain.Context, res domain.Resume) (string, error) {
	ctx, span := startSpan(ctx, "resumes", "INSERT", "resumes.Create")
	defer span.End()
	id := res.ID
	if id == "" {
		id = uuid.New().String()
	}
	createdAt := res.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	q := `INSERT INTO resumes (id, file_name, file_url, file_type, extracted_text, created_at) VALUES ($1,$2,$3,$4,$5,$6)`
	if _, err := r.Pool.Exec(ctx, q, id, res.FileName, res.FileURL, res.FileType, res.ExtractedText, createdAt); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("op=resume.create: %w", err)
	}
	return id, nil
}

// Get loads a resume with its extracted text.
func (r *ResumeRepo) Get(ctx domain.Context, id string) (domain.Resume, error) {
	ctx, span := startSpan(ctx, "resumes", "SELECT", "resumes.Get")
	defer span.End()
	if _, err := uuid.Parse(id); err != nil {
		return domain.Resume{}, fmt.Errorf("op=resume.get: %w", domain.ErrNotFound)
	}
	q := `SELECT id::text, file_name, file_url, file_type, COALESCE(extracted_text, ''), created_at FROM resumes WHERE id=$1`
	var res domain.Resume
	err := r.Pool.QueryRow(ctx, q, id).Scan(&res.ID, &res.FileName, &res.FileURL, &res.FileType, &res.ExtractedText, &res.CreatedAt)
	if err != nil {
		return domain.Resume{}, fmt.Errorf("op=resume.get: %w", translate(err))
	}
	return res, nil
}

// List returns every resume newest first, without extracted text.
func (r *ResumeRepo) List(ctx domain.Context) ([]domain.Resume, error) {
	ctx, span := startSpan(ctx, "resumes", "SELECT", "resumes.List")
	defer span.End()
	q := `SELECT id::text, file_name, file_url, file_type, created_at FROM resumes ORDER BY created_at DESC, id`
	rows, err := r.Pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("op=resume.list: %w", err)
	}
	defer rows.Close()
	out := make([]domain.Resume, 0)
	for rows.Next() {
		var res domain.Resume
		if err := rows.Scan(&res.ID, &res.FileName, &res.FileURL, &res.FileType, &res.CreatedAt); err != nil {
			return nil, fmt.Errorf("op=resume.list: scan: %w", err)
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=resume.list: %w", err)
	}
	return out, nil
}

// Delete removes a resume row; evaluations cascade.
func (r *ResumeRepo) Delete(ctx domain.Context, id string) error {
	ctx, span := startSpan(ctx, "resumes", "DELETE", "resumes.Delete")
	defer span.End()
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("op=resume.delete: %w", domain.ErrNotFound)
	}
	tag, err := r.Pool.Exec(ctx, `DELETE FROM resumes WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("op=resume.delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=resume.delete: %w", domain.ErrNotFound)
	}
	return nil
}

func translate(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}

var _ domain.ResumeRepository = (*ResumeRepo)(nil)
