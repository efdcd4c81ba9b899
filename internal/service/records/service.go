// Package records orchestrates the compliance record lifecycle: reading an
// incoming document, running structured extraction against its template,
// sealing the extracted values under envelope encryption, and keeping the
// audit trail in step with every write and read.
package records

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/safeworkhq/compliance-backend/internal/crypto"
	"github.com/safeworkhq/compliance-backend/internal/domain/audit"
	"github.com/safeworkhq/compliance-backend/internal/domain/document"
	"github.com/safeworkhq/compliance-backend/internal/domain/errors"
	"github.com/safeworkhq/compliance-backend/internal/domain/submission"
	"github.com/safeworkhq/compliance-backend/internal/domain/template"
	"github.com/safeworkhq/compliance-backend/internal/service/extraction"
)

// TemplateLoader resolves a template by id. Satisfied by the registry service.
type TemplateLoader interface {
	Load(ctx context.Context, id string) (*template.Template, error)
}

// IngestRequest carries one incoming document and its routing metadata.
type IngestRequest struct {
	TemplateID   string
	SourceSystem string
	DocType      string
	Actor        string
	Document     []byte
}

// Record is a decrypted compliance record as returned to authorized callers.
type Record struct {
	ID           uuid.UUID      `json:"id"`
	TemplateID   string         `json:"template_id"`
	SourceSystem string         `json:"source_system"`
	DocType      string         `json:"doc_type"`
	PageCount    int            `json:"page_count"`
	Values       map[string]any `json:"values"`
}

// Service ties document reading, extraction, encryption, storage and audit
// together. Every successful ingest locks the template it used.
type Service struct {
	templates   TemplateLoader
	submissions submission.Repository
	markers     template.Repository
	trail       audit.Repository
	reader      document.Reader
	engine      *extraction.Engine
	envelope    *crypto.Envelope
	logger      *zap.Logger
}

func NewService(
	templates TemplateLoader,
	submissions submission.Repository,
	markers template.Repository,
	trail audit.Repository,
	reader document.Reader,
	engine *extraction.Engine,
	envelope *crypto.Envelope,
	logger *zap.Logger,
) *Service {
	return &Service{
		templates:   templates,
		submissions: submissions,
		markers:     markers,
		trail:       trail,
		reader:      reader,
		engine:      engine,
		envelope:    envelope,
		logger:      logger,
	}
}

// Ingest reads the document, extracts the template's fields, encrypts the
// extracted values and stores the submission. The document must be readable
// before extraction starts; a read failure aborts the whole ingest.
func (s *Service) Ingest(ctx context.Context, req *IngestRequest) (*Record, error) {
	tpl, err := s.templates.Load(ctx, req.TemplateID)
	if err != nil {
		return nil, err
	}

	content, err := s.reader.Read(ctx, req.Document)
	if err != nil {
		return nil, err
	}

	result := s.engine.Extract(content, tpl)

	blob, err := s.envelope.EncryptValue(result.Values)
	if err != nil {
		return nil, err
	}

	sub, err := submission.New(req.TemplateID, req.SourceSystem, req.DocType,
		crypto.EncodeBlob(blob), content.PageCount)
	if err != nil {
		return nil, err
	}

	if err := s.submissions.Save(ctx, sub); err != nil {
		return nil, err
	}

	// A stored submission freezes its template. Failing to set the flag is
	// tolerable: the registry re-checks the submission count on save.
	if err := s.markers.MarkReferenced(ctx, req.TemplateID); err != nil {
		s.logger.Warn("failed to lock template after ingest",
			zap.String("template_id", req.TemplateID), zap.Error(err))
	}

	s.audit(ctx, req.Actor, audit.ActionCreate, sub.ID, map[string]any{
		"template_id":   req.TemplateID,
		"source_system": req.SourceSystem,
		"doc_type":      req.DocType,
		"page_count":    content.PageCount,
		"field_count":   len(result.Values),
	})

	return &Record{
		ID:           sub.ID,
		TemplateID:   sub.TemplateID,
		SourceSystem: sub.SourceSystem,
		DocType:      sub.DocType,
		PageCount:    sub.PageCount,
		Values:       result.Values,
	}, nil
}

// Get loads a stored submission, decrypts its values and records the access.
func (s *Service) Get(ctx context.Context, id uuid.UUID, actor string) (*Record, error) {
	sub, err := s.submissions.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	blob, err := crypto.DecodeBlob(sub.PayloadHex)
	if err != nil {
		// The payload was hex when stored; a decode failure now means the
		// stored column was corrupted, not that the caller sent bad input.
		return nil, errors.NewIntegrityError("stored payload is not a valid encrypted blob").WithCause(err)
	}

	var values map[string]any
	if err := s.envelope.DecryptValue(blob, &values); err != nil {
		return nil, err
	}

	s.audit(ctx, actor, audit.ActionAccess, sub.ID, map[string]any{
		"template_id": sub.TemplateID,
	})

	return &Record{
		ID:           sub.ID,
		TemplateID:   sub.TemplateID,
		SourceSystem: sub.SourceSystem,
		DocType:      sub.DocType,
		PageCount:    sub.PageCount,
		Values:       values,
	}, nil
}

// audit appends a trail record. The trail is best effort relative to the
// primary operation; a failed append is logged, never surfaced.
func (s *Service) audit(ctx context.Context, actor string, action audit.Action, objectID uuid.UUID, details map[string]any) {
	rec, err := audit.NewRecord(actor, action, "submission", objectID.String(), details)
	if err != nil {
		s.logger.Error("invalid audit record", zap.Error(err))
		return
	}
	if _, err := s.trail.Append(ctx, rec); err != nil {
		s.logger.Error("audit append failed",
			zap.String("action", string(action)),
			zap.String("object_id", objectID.String()),
			zap.Error(err))
	}
}
