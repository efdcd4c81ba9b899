package template

import "context"

// Repository is the storage contract for templates.
type Repository interface {
	// Save validates nothing itself; it upserts the template by id.
	// Registry-level rules (validation, in-use locking) run before this.
	Save(ctx context.Context, t *Template) error

	// Load returns the template or a NotFound error.
	Load(ctx context.Context, id string) (*Template, error)

	// List returns every well-formed stored template. Malformed rows are
	// skipped and logged, never fail the whole listing.
	List(ctx context.Context) ([]*Template, error)

	// MarkReferenced locks the template once a stored submission references
	// it. Locking is one-way.
	MarkReferenced(ctx context.Context, id string) error
}
