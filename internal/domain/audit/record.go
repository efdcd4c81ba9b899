// Package audit models the append-only audit trail. A Record is written
// exactly once per auditable event and is never updated or deleted; the
// repository contract exposes no mutation beyond Append.
package audit

import (
	"time"

	"github.com/google/uuid"

	"github.com/safeworkhq/compliance-backend/internal/domain/errors"
)

// Action classifies what happened to the object under audit.
type Action string

const (
	ActionCreate       Action = "create"
	ActionAccess       Action = "access"
	ActionModification Action = "modification"
	ActionDelete       Action = "delete"
	ActionExport       Action = "export"
	ActionWebhook      Action = "webhook_received"
)

// Record is a single immutable audit trail entry.
//
// Actor, ObjectType and ObjectID are optional; an empty string maps to NULL in
// storage. Details carries heterogeneous caller context and is deliberately
// schema-less.
type Record struct {
	ID         uuid.UUID      `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	Actor      string         `json:"actor,omitempty"`
	Action     Action         `json:"action"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

// NewRecord creates a validated audit record stamped with the current UTC
// time. The details map is copied so later caller mutation cannot reach a
// record that has already been appended.
func NewRecord(actor string, action Action, objectType, objectID string, details map[string]any) (*Record, error) {
	if err := validateAction(action); err != nil {
		return nil, err
	}

	rec := &Record{
		ID:         uuid.New(),
		Timestamp:  time.Now().UTC(),
		Actor:      actor,
		Action:     action,
		ObjectType: objectType,
		ObjectID:   objectID,
	}

	if details != nil {
		rec.Details = make(map[string]any, len(details))
		for k, v := range details {
			rec.Details[k] = v
		}
	}

	return rec, nil
}

// Validate checks the record's invariants. Used by repositories before insert.
func (r *Record) Validate() error {
	if r.ID == uuid.Nil {
		return errors.NewValidationError("MISSING_RECORD_ID", "audit record id is required")
	}
	if r.Timestamp.IsZero() {
		return errors.NewValidationError("MISSING_TIMESTAMP", "audit record timestamp is required")
	}
	return validateAction(r.Action)
}

func validateAction(action Action) error {
	switch action {
	case ActionCreate, ActionAccess, ActionModification, ActionDelete, ActionExport, ActionWebhook:
		return nil
	case "":
		return errors.NewValidationError("MISSING_ACTION", "audit action is required")
	default:
		return errors.NewValidationError("UNKNOWN_ACTION", "unknown audit action")
	}
}
