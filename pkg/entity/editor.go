package entity

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/marloweandco/studio-ops/pkg/db"
	soerrors "github.com/marloweandco/studio-ops/pkg/errors"
	"github.com/marloweandco/studio-ops/pkg/logging"
)

// AuditHook records one field change. Satisfied by the audit repository.
type AuditHook interface {
	Record(ctx context.Context, entityID uuid.UUID, field, oldValue, newValue, actor, source string) error
}

// Editor applies manual field edits. Every edit runs in a single
// transaction with its audit record so neither can land without the other.
type Editor struct {
	repo  Repository
	audit AuditHook
	tx    db.Transactor
	log   logging.Logger
}

// NewEditor creates an Editor.
func NewEditor(repo Repository, audit AuditHook, tx db.Transactor, log logging.Logger) *Editor {
	return &Editor{repo: repo, audit: audit, tx: tx, log: log}
}

// SetField validates and applies a manual edit to one field.
// The actor must be a non-empty user identifier.
func (ed *Editor) SetField(ctx context.Context, entityID uuid.UUID, field, value, actor string) error {
	if actor == "" {
		return fmt.Errorf("actor is required: %w", soerrors.ErrValidation)
	}

	e, err := ed.repo.GetByID(ctx, entityID)
	if err != nil {
		return err
	}

	fv, err := ParseField(e.Type, field, value)
	if err != nil {
		return err
	}
	canonical := fv.String()

	err = ed.tx.RunInTx(ctx, func(txCtx context.Context) error {
		oldValue, err := ed.repo.GetFieldValue(txCtx, entityID, field)
		if err != nil {
			return err
		}

		if err := ed.repo.UpdateField(txCtx, entityID, field, canonical); err != nil {
			return err
		}

		return ed.audit.Record(txCtx, entityID, field, oldValue, canonical, actor, "manual")
	})
	if err != nil {
		return fmt.Errorf("applying manual edit: %w", err)
	}

	ed.log.Info("manual edit applied",
		logging.F("entity_id", entityID.String()),
		logging.F("field", field),
		logging.F("actor", actor),
	)

	return nil
}
