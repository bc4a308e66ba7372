package suggest

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines data access for suggestions.
type Repository interface {
	// GetByID returns one suggestion. Returns soerrors.ErrNotFound when
	// absent.
	GetByID(ctx context.Context, id uuid.UUID) (*Suggestion, error)

	// GetPending returns the pending suggestion for (entity, field), or
	// soerrors.ErrNotFound. At most one can exist.
	GetPending(ctx context.Context, entityID uuid.UUID, field string) (*Suggestion, error)

	// ListByStatus returns suggestions in one state, newest first.
	ListByStatus(ctx context.Context, status Status, limit int) ([]Suggestion, error)

	// ListResolvedSince returns suggestions resolved at or after the cutoff,
	// oldest resolution first. The learner's input.
	ListResolvedSince(ctx context.Context, since time.Time) ([]Suggestion, error)

	// Create inserts a pending suggestion.
	Create(ctx context.Context, s *Suggestion) error

	// MarkStale retires a pending suggestion superseded by a newer one.
	// Returns soerrors.ErrInvalidState when it is no longer pending.
	MarkStale(ctx context.Context, id uuid.UUID) error

	// Resolve moves a pending suggestion to a terminal state. Returns
	// soerrors.ErrInvalidState when it is no longer pending.
	Resolve(ctx context.Context, id uuid.UUID, status Status, note, resolvedBy string) error
}
