package email

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines read access to the ingested message store.
type Repository interface {
	// GetByID returns one message. Returns soerrors.ErrNotFound when absent.
	GetByID(ctx context.Context, id uuid.UUID) (*Email, error)

	// ListUnprocessed returns up to limit messages linking has not handled
	// yet, oldest first.
	ListUnprocessed(ctx context.Context, limit int) ([]Email, error)

	// MarkProcessed stamps the message as handled by linking. Runs inside
	// the per-message transaction so a failed run leaves the message
	// eligible for retry.
	MarkProcessed(ctx context.Context, id uuid.UUID) error
}
