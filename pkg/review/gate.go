// Package review is the only write path from suggestions into entity
// values. Every decision runs in one transaction covering the suggestion
// transition, the entity mutation and the audit record, so no decision can
// half-land.
package review

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/marloweandco/studio-ops/pkg/db"
	"github.com/marloweandco/studio-ops/pkg/entity"
	soerrors "github.com/marloweandco/studio-ops/pkg/errors"
	"github.com/marloweandco/studio-ops/pkg/logging"
	"github.com/marloweandco/studio-ops/pkg/suggest"
)

// Result is the outcome of one review decision.
type Result string

const (
	// ResultApplied means the approved change landed on the entity.
	ResultApplied Result = "applied"
	// ResultStale means the entity moved on since generation; approval
	// changed nothing and the suggestion was retired.
	ResultStale Result = "stale"
	// ResultDenied means the reviewer rejected the suggestion.
	ResultDenied Result = "denied"
)

// Decision is the outcome handed back to the caller.
type Decision struct {
	SuggestionID uuid.UUID
	Result       Result
}

// Gate resolves pending suggestions.
type Gate struct {
	suggestions suggest.Repository
	entities    entity.Repository
	audit       entity.AuditHook
	tx          db.Transactor
	locks       *entityLocks
	log         logging.Logger
}

// NewGate creates a Gate.
func NewGate(suggestions suggest.Repository, entities entity.Repository, audit entity.AuditHook, tx db.Transactor, log logging.Logger) *Gate {
	return &Gate{
		suggestions: suggestions,
		entities:    entities,
		audit:       audit,
		tx:          tx,
		locks:       newEntityLocks(),
		log:         log,
	}
}

// Approve applies a pending suggestion. The captured current value is
// re-checked against the live entity inside the transaction: if anything
// changed the field since generation, the suggestion resolves stale and the
// entity is left exactly as it was.
func (g *Gate) Approve(ctx context.Context, suggestionID uuid.UUID, reviewer string) (*Decision, error) {
	if reviewer == "" {
		return nil, fmt.Errorf("%w: reviewer is required", soerrors.ErrValidation)
	}

	s, err := g.suggestions.GetByID(ctx, suggestionID)
	if err != nil {
		return nil, err
	}
	if s.Status != suggest.StatusPending {
		return nil, fmt.Errorf("suggestion %s is %s: %w", suggestionID, s.Status, soerrors.ErrInvalidState)
	}

	unlock := g.locks.Lock(s.EntityID)
	defer unlock()

	decision := &Decision{SuggestionID: suggestionID}
	err = g.tx.RunInTx(ctx, func(txCtx context.Context) error {
		live, err := g.entities.GetFieldValue(txCtx, s.EntityID, s.Field)
		if err != nil {
			return err
		}

		if live != s.CurrentValue {
			decision.Result = ResultStale
			return g.suggestions.Resolve(txCtx, suggestionID, suggest.StatusStale, "", reviewer)
		}

		if err := g.entities.UpdateField(txCtx, s.EntityID, s.Field, s.ProposedValue); err != nil {
			return err
		}
		source := fmt.Sprintf("suggestion:%s", suggestionID)
		if err := g.audit.Record(txCtx, s.EntityID, s.Field, live, s.ProposedValue, reviewer, source); err != nil {
			return err
		}

		decision.Result = ResultApplied
		return g.suggestions.Resolve(txCtx, suggestionID, suggest.StatusApplied, "", reviewer)
	})
	if err != nil {
		return nil, fmt.Errorf("approving suggestion: %w", err)
	}

	g.log.Info("suggestion resolved",
		logging.F("suggestion_id", suggestionID.String()),
		logging.F("entity_id", s.EntityID.String()),
		logging.F("field", s.Field),
		logging.F("result", string(decision.Result)),
		logging.F("reviewer", reviewer),
	)

	return decision, nil
}

// Deny rejects a pending suggestion. The note is mandatory: it is the raw
// material the learner clusters to propose new patterns.
func (g *Gate) Deny(ctx context.Context, suggestionID uuid.UUID, note, reviewer string) (*Decision, error) {
	if reviewer == "" {
		return nil, fmt.Errorf("%w: reviewer is required", soerrors.ErrValidation)
	}
	if note == "" {
		return nil, fmt.Errorf("%w: denial requires a note", soerrors.ErrValidation)
	}

	s, err := g.suggestions.GetByID(ctx, suggestionID)
	if err != nil {
		return nil, err
	}
	if s.Status != suggest.StatusPending {
		return nil, fmt.Errorf("suggestion %s is %s: %w", suggestionID, s.Status, soerrors.ErrInvalidState)
	}

	unlock := g.locks.Lock(s.EntityID)
	defer unlock()

	err = g.tx.RunInTx(ctx, func(txCtx context.Context) error {
		return g.suggestions.Resolve(txCtx, suggestionID, suggest.StatusDenied, note, reviewer)
	})
	if err != nil {
		return nil, fmt.Errorf("denying suggestion: %w", err)
	}

	g.log.Info("suggestion resolved",
		logging.F("suggestion_id", suggestionID.String()),
		logging.F("entity_id", s.EntityID.String()),
		logging.F("field", s.Field),
		logging.F("result", string(ResultDenied)),
		logging.F("reviewer", reviewer),
	)

	return &Decision{SuggestionID: suggestionID, Result: ResultDenied}, nil
}
