package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/safeworkhq/compliance-backend/internal/domain/errors"
	"github.com/safeworkhq/compliance-backend/internal/domain/submission"
)

// SubmissionRepository implements submission.Repository on PostgreSQL.
type SubmissionRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewSubmissionRepository(db *pgxpool.Pool, logger *zap.Logger) *SubmissionRepository {
	return &SubmissionRepository{db: db, logger: logger}
}

func (r *SubmissionRepository) Save(ctx context.Context, s *submission.Submission) error {
	query := `
		INSERT INTO submissions (id, template_id, source_system, doc_type, payload_hex, page_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.Exec(ctx, query,
		s.ID, s.TemplateID, s.SourceSystem, s.DocType, s.PayloadHex, s.PageCount, s.CreatedAt)
	if err != nil {
		return errors.NewStorageUnavailableError("failed to save submission").WithCause(err)
	}
	return nil
}

func (r *SubmissionRepository) Load(ctx context.Context, id uuid.UUID) (*submission.Submission, error) {
	query := `
		SELECT id, template_id, source_system, doc_type, payload_hex, page_count, created_at
		FROM submissions WHERE id = $1`

	var s submission.Submission
	err := r.db.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.TemplateID, &s.SourceSystem, &s.DocType, &s.PayloadHex, &s.PageCount, &s.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, errors.ErrSubmissionNotFound
	}
	if err != nil {
		return nil, errors.NewStorageUnavailableError("failed to load submission").WithCause(err)
	}
	return &s, nil
}

func (r *SubmissionRepository) CountByTemplate(ctx context.Context, templateID string) (int64, error) {
	query := `SELECT COUNT(*) FROM submissions WHERE template_id = $1`

	var count int64
	if err := r.db.QueryRow(ctx, query, templateID).Scan(&count); err != nil {
		return 0, errors.NewStorageUnavailableError("failed to count submissions").WithCause(err)
	}
	return count, nil
}
