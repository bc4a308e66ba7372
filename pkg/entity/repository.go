package entity

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines data access for the entity catalog.
//
// UpdateField is only called from inside a review-gate or manual-edit
// transaction; the repository picks the transaction up from the context.
type Repository interface {
	// GetByID returns one entity. Returns soerrors.ErrNotFound when absent.
	GetByID(ctx context.Context, id uuid.UUID) (*Entity, error)

	// ListAll returns the full catalog for a matcher scan. Entities whose
	// stored fields fail schema validation are returned with nil Fields so
	// the caller can decide to skip them.
	ListAll(ctx context.Context) ([]Entity, error)

	// GetFieldValue returns the live canonical value of one field
	// ("" when unset). Returns soerrors.ErrNotFound for an unknown entity.
	GetFieldValue(ctx context.Context, id uuid.UUID, field string) (string, error)

	// UpdateField sets a field to a schema-validated canonical value.
	// Must run inside the same transaction as the corresponding audit write.
	UpdateField(ctx context.Context, id uuid.UUID, field, value string) error
}
