package link

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines data access for email-to-entity links.
type Repository interface {
	// UpsertAuto writes an automatic link. Re-matching the same
	// (email, entity) pair updates the existing row; a manual link for the
	// pair is left untouched and the new evidence is dropped.
	UpsertAuto(ctx context.Context, l *Link) error

	// CreateManual writes a human-created link with confidence 1.0.
	// Returns soerrors.ErrAlreadyExists when a manual link for the pair
	// already exists.
	CreateManual(ctx context.Context, emailID, entityID uuid.UUID) (*Link, error)

	// GetByPair returns the current link for (email, entity).
	GetByPair(ctx context.Context, emailID, entityID uuid.UUID) (*Link, error)

	// ListByEmail returns all links for one email, highest confidence first.
	ListByEmail(ctx context.Context, emailID uuid.UUID) ([]Link, error)

	// ListByEntity returns all links for one entity, newest first.
	ListByEntity(ctx context.Context, entityID uuid.UUID) ([]Link, error)
}
