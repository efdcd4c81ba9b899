// Package submission models stored compliance documents: the encrypted
// extraction payload plus intake provenance.
package submission

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/safeworkhq/compliance-backend/internal/domain/errors"
)

// Submission is one ingested document. PayloadHex is the hex-encoded
// encrypted blob of the extraction result; plaintext never reaches storage.
type Submission struct {
	ID           uuid.UUID `json:"id"`
	TemplateID   string    `json:"template_id"`
	SourceSystem string    `json:"source_system,omitempty"`
	DocType      string    `json:"doc_type,omitempty"`
	PayloadHex   string    `json:"-"`
	PageCount    int       `json:"page_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// New creates a validated submission.
func New(templateID, sourceSystem, docType, payloadHex string, pageCount int) (*Submission, error) {
	if templateID == "" {
		return nil, errors.NewValidationError("MISSING_TEMPLATE_ID", "submission requires a template id")
	}
	if payloadHex == "" {
		return nil, errors.NewValidationError("MISSING_PAYLOAD", "submission requires an encrypted payload")
	}

	return &Submission{
		ID:           uuid.New(),
		TemplateID:   templateID,
		SourceSystem: sourceSystem,
		DocType:      docType,
		PayloadHex:   payloadHex,
		PageCount:    pageCount,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// Repository is the storage contract for submissions.
type Repository interface {
	Save(ctx context.Context, sub *Submission) error

	// Load returns the submission or a NotFound error.
	Load(ctx context.Context, id uuid.UUID) (*Submission, error)

	// CountByTemplate reports how many stored submissions reference the
	// template; the registry uses this to lock templates in use.
	CountByTemplate(ctx context.Context, templateID string) (int64, error)
}
