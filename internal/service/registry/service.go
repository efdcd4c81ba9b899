// Package registry manages the template catalog: validated upserts, lookup,
// listing, and the immutability rule for templates already referenced by
// stored submissions.
package registry

import (
	"context"

	"go.uber.org/zap"

	"github.com/safeworkhq/compliance-backend/internal/domain/errors"
	"github.com/safeworkhq/compliance-backend/internal/domain/submission"
	"github.com/safeworkhq/compliance-backend/internal/domain/template"
)

// TemplateCache is the read-through cache the registry consults before the
// repository. Get returns (nil, nil) on a miss.
type TemplateCache interface {
	Get(ctx context.Context, id string) (*template.Template, error)
	Set(ctx context.Context, t *template.Template) error
	Invalidate(ctx context.Context, id string) error
}

// Service is the template registry.
type Service struct {
	templates   template.Repository
	submissions submission.Repository
	cache       TemplateCache
	logger      *zap.Logger
}

// NewService creates a registry service. cache may be nil; the registry then
// reads straight from the repository.
func NewService(
	templates template.Repository,
	submissions submission.Repository,
	cache TemplateCache,
	logger *zap.Logger,
) *Service {
	return &Service{
		templates:   templates,
		submissions: submissions,
		cache:       cache,
		logger:      logger,
	}
}

// Save validates the template and upserts it by id. A template that is
// already referenced by at least one stored submission is immutable: the
// caller must register the changed version under a new id.
func (s *Service) Save(ctx context.Context, t *template.Template) error {
	if err := t.Validate(); err != nil {
		return err
	}

	existing, err := s.templates.Load(ctx, t.ID)
	if err != nil && !errors.IsType(err, errors.ErrorTypeNotFound) {
		return err
	}

	if existing != nil {
		locked := existing.Locked
		if !locked {
			count, err := s.submissions.CountByTemplate(ctx, t.ID)
			if err != nil {
				return err
			}
			locked = count > 0
		}
		if locked {
			return errors.ErrTemplateInUse
		}
	}

	if err := s.templates.Save(ctx, t); err != nil {
		return err
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, t.ID); err != nil {
			s.logger.Warn("cache invalidation after save failed",
				zap.String("template_id", t.ID), zap.Error(err))
		}
	}
	return nil
}

// Load returns the template with the given id, consulting the cache first.
func (s *Service) Load(ctx context.Context, id string) (*template.Template, error) {
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, id); err == nil && cached != nil {
			return cached, nil
		}
	}

	t, err := s.templates.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, t); err != nil {
			s.logger.Warn("cache fill failed", zap.String("template_id", id), zap.Error(err))
		}
	}
	return t, nil
}

// List returns all well-formed registered templates.
func (s *Service) List(ctx context.Context) ([]*template.Template, error) {
	return s.templates.List(ctx)
}
