package database

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/safeworkhq/compliance-backend/internal/domain/errors"
	"github.com/safeworkhq/compliance-backend/internal/domain/template"
)

// TemplateRepository implements template.Repository on PostgreSQL. The
// template body (sections, fields, metadata) is stored as a self-describing
// JSON document; id, name and the lock flag live in columns.
type TemplateRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewTemplateRepository(db *pgxpool.Pool, logger *zap.Logger) *TemplateRepository {
	return &TemplateRepository{db: db, logger: logger}
}

func (r *TemplateRepository) Save(ctx context.Context, t *template.Template) error {
	body, err := json.Marshal(t)
	if err != nil {
		return errors.NewInternalError("failed to serialize template").WithCause(err)
	}

	query := `
		INSERT INTO templates (id, name, language, body, locked, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (id)
		DO UPDATE SET name = EXCLUDED.name, language = EXCLUDED.language,
			body = EXCLUDED.body, updated_at = EXCLUDED.updated_at`

	_, err = r.db.Exec(ctx, query, t.ID, t.Name, t.Language, body, t.Locked, time.Now().UTC())
	if err != nil {
		return errors.NewStorageUnavailableError("failed to save template").WithCause(err)
	}
	return nil
}

func (r *TemplateRepository) Load(ctx context.Context, id string) (*template.Template, error) {
	query := `SELECT body, locked FROM templates WHERE id = $1`

	var (
		body   []byte
		locked bool
	)
	err := r.db.QueryRow(ctx, query, id).Scan(&body, &locked)
	if err == pgx.ErrNoRows {
		return nil, errors.ErrTemplateNotFound
	}
	if err != nil {
		return nil, errors.NewStorageUnavailableError("failed to load template").WithCause(err)
	}

	var t template.Template
	if err := json.Unmarshal(body, &t); err != nil {
		return nil, errors.NewInternalError("stored template is malformed").WithCause(err)
	}
	t.Locked = locked
	return &t, nil
}

// List returns all well-formed templates. A row whose body no longer parses
// is logged and skipped; one bad row must not take down the listing.
func (r *TemplateRepository) List(ctx context.Context) ([]*template.Template, error) {
	query := `SELECT id, body, locked FROM templates ORDER BY id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, errors.NewStorageUnavailableError("failed to list templates").WithCause(err)
	}
	defer rows.Close()

	templates := make([]*template.Template, 0)
	for rows.Next() {
		var (
			id     string
			body   []byte
			locked bool
		)
		if err := rows.Scan(&id, &body, &locked); err != nil {
			return nil, errors.NewStorageUnavailableError("failed to scan template row").WithCause(err)
		}

		var t template.Template
		if err := json.Unmarshal(body, &t); err != nil {
			r.logger.Warn("skipping malformed stored template",
				zap.String("template_id", id), zap.Error(err))
			continue
		}
		t.Locked = locked
		templates = append(templates, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorageUnavailableError("failed to read template rows").WithCause(err)
	}
	return templates, nil
}

func (r *TemplateRepository) MarkReferenced(ctx context.Context, id string) error {
	query := `UPDATE templates SET locked = TRUE, updated_at = $2 WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, time.Now().UTC())
	if err != nil {
		return errors.NewStorageUnavailableError("failed to lock template").WithCause(err)
	}
	if tag.RowsAffected() == 0 {
		return errors.ErrTemplateNotFound
	}
	return nil
}
