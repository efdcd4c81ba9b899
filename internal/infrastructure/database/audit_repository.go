package database

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/safeworkhq/compliance-backend/internal/domain/audit"
	"github.com/safeworkhq/compliance-backend/internal/domain/errors"
)

// AuditRepository implements audit.Repository on PostgreSQL. Appends are
// single-row inserts; atomicity under concurrent writers comes from the
// database, not from application locking. The repository performs no retries.
type AuditRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewAuditRepository creates a new PostgreSQL audit repository
func NewAuditRepository(db *pgxpool.Pool, logger *zap.Logger) *AuditRepository {
	return &AuditRepository{db: db, logger: logger}
}

// Append persists one record. The table has no UPDATE or DELETE path in this
// codebase; once the insert commits, the record is permanent.
func (r *AuditRepository) Append(ctx context.Context, rec *audit.Record) (uuid.UUID, error) {
	if err := rec.Validate(); err != nil {
		return uuid.Nil, err
	}

	detailsJSON, err := json.Marshal(rec.Details)
	if err != nil {
		return uuid.Nil, errors.NewInternalError("failed to marshal audit details").WithCause(err)
	}

	query := `
		INSERT INTO audit_records (id, ts, actor, action, object_type, object_id, details)
		VALUES ($1, $2, NULLIF($3, ''), $4, NULLIF($5, ''), NULLIF($6, ''), $7)`

	_, err = r.db.Exec(ctx, query,
		rec.ID,
		rec.Timestamp,
		rec.Actor,
		string(rec.Action),
		rec.ObjectType,
		rec.ObjectID,
		detailsJSON,
	)
	if err != nil {
		r.logger.Error("audit append failed", zap.Error(err), zap.String("action", string(rec.Action)))
		return uuid.Nil, errors.NewStorageUnavailableError("failed to append audit record").WithCause(err)
	}

	return rec.ID, nil
}

// TrailFor returns all records for the object, oldest first. The id column is
// the tiebreaker for identical timestamps so the order stays stable.
func (r *AuditRepository) TrailFor(ctx context.Context, objectID string) ([]*audit.Record, error) {
	query := `
		SELECT id, ts, COALESCE(actor, ''), action, COALESCE(object_type, ''), COALESCE(object_id, ''), details
		FROM audit_records
		WHERE object_id = $1
		ORDER BY ts ASC, id ASC`

	rows, err := r.db.Query(ctx, query, objectID)
	if err != nil {
		return nil, errors.NewStorageUnavailableError("failed to query audit trail").WithCause(err)
	}
	defer rows.Close()

	return r.scanRecords(rows)
}

// Recent returns at most limit records, newest first.
func (r *AuditRepository) Recent(ctx context.Context, limit int) ([]*audit.Record, error) {
	if limit <= 0 {
		return []*audit.Record{}, nil
	}

	query := `
		SELECT id, ts, COALESCE(actor, ''), action, COALESCE(object_type, ''), COALESCE(object_id, ''), details
		FROM audit_records
		ORDER BY ts DESC, id DESC
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, errors.NewStorageUnavailableError("failed to query recent audit records").WithCause(err)
	}
	defer rows.Close()

	return r.scanRecords(rows)
}

func (r *AuditRepository) scanRecords(rows pgx.Rows) ([]*audit.Record, error) {
	records := make([]*audit.Record, 0)
	for rows.Next() {
		var (
			rec         audit.Record
			action      string
			ts          time.Time
			detailsJSON []byte
		)
		if err := rows.Scan(&rec.ID, &ts, &rec.Actor, &action, &rec.ObjectType, &rec.ObjectID, &detailsJSON); err != nil {
			return nil, errors.NewStorageUnavailableError("failed to scan audit record").WithCause(err)
		}
		rec.Timestamp = ts.UTC()
		rec.Action = audit.Action(action)

		if len(detailsJSON) > 0 {
			if err := json.Unmarshal(detailsJSON, &rec.Details); err != nil {
				return nil, errors.NewInternalError("failed to unmarshal audit details").WithCause(err)
			}
		}

		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorageUnavailableError("failed to read audit records").WithCause(err)
	}
	return records, nil
}
