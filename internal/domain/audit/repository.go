package audit

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the append-only storage contract for audit records.
//
// Implementations must make Append a single atomic insert; concurrent callers
// rely on the underlying store's insert guarantee, not on application locking.
// There is intentionally no update or delete operation. Storage failures are
// reported as a retryable StorageUnavailable error and never retried here.
type Repository interface {
	// Append durably stores one record and returns its id.
	Append(ctx context.Context, rec *Record) (uuid.UUID, error)

	// TrailFor returns every record whose ObjectID matches, in ascending
	// timestamp order. No matches is an empty slice, not an error.
	TrailFor(ctx context.Context, objectID string) ([]*Record, error)

	// Recent returns at most limit records, most recent first.
	Recent(ctx context.Context, limit int) ([]*Record, error)
}
