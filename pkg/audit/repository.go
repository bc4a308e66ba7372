package audit

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines access to the audit trail. There is no update or
// delete; the trail only grows.
type Repository interface {
	// Record appends one change record. Must run inside the transaction
	// that performs the mutation it describes.
	Record(ctx context.Context, entityID uuid.UUID, field, oldValue, newValue, actor, source string) error

	// History returns an entity's records matching the filter, oldest
	// first. Ordering is total: records sharing a timestamp come back in
	// insertion order.
	History(ctx context.Context, entityID uuid.UUID, filter Filter) ([]Record, error)
}
