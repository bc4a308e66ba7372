package pattern

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines data access for the pattern store.
type Repository interface {
	// GetByID returns one pattern. Returns soerrors.ErrNotFound when absent.
	GetByID(ctx context.Context, id uuid.UUID) (*Pattern, error)

	// ListByState returns patterns in one lifecycle state, in creation order.
	ListByState(ctx context.Context, state State) ([]Pattern, error)

	// Create inserts a validated pattern.
	Create(ctx context.Context, p *Pattern) error

	// UpdateWeight sets a pattern's weight and bumps the applied/confirmed
	// counters. Runs inside the learner's per-pattern transaction; the row
	// is locked for the duration so concurrent learners do not lose updates.
	UpdateWeight(ctx context.Context, id uuid.UUID, weight float64, appliedDelta, confirmedDelta int) error

	// SetState moves a pattern between lifecycle states. Activation of a
	// candidate is the human confirmation step; the learner never calls
	// this for candidates it created.
	SetState(ctx context.Context, id uuid.UUID, state State) error
}
