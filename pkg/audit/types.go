// Package audit is the append-only provenance trail. Every entity field
// mutation, whatever its path, writes exactly one record here in the same
// transaction as the mutation itself. Records are never updated or deleted;
// replaying a field's records in order reconstructs its current value.
package audit

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	soerrors "github.com/marloweandco/studio-ops/pkg/errors"
)

// Source values name the write path that produced a record.
const (
	// SourceManual marks a direct human edit.
	SourceManual = "manual"
	// SourceImport marks an external catalog import.
	SourceImport = "import"
	// sourceSuggestionPrefix marks an applied suggestion; the suggestion ID
	// follows the colon.
	sourceSuggestionPrefix = "suggestion:"
)

// SourceSuggestion renders the source string for an applied suggestion.
func SourceSuggestion(id uuid.UUID) string {
	return sourceSuggestionPrefix + id.String()
}

// SuggestionID extracts the suggestion behind a record's source, if any.
func SuggestionID(source string) (uuid.UUID, bool) {
	raw, ok := strings.CutPrefix(source, sourceSuggestionPrefix)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// Record is one field-level change.
type Record struct {
	ID       uuid.UUID
	EntityID uuid.UUID
	Field    string
	OldValue string // canonical value before, "" for an initial set
	NewValue string
	Actor    string // human or system identity that made the change
	Source   string // SourceManual, SourceImport, or SourceSuggestion(...)

	RecordedAt time.Time
}

// Validate checks the record's shape before writing.
func (r *Record) Validate() error {
	if r.EntityID == uuid.Nil {
		return fmt.Errorf("%w: audit record needs an entity", soerrors.ErrValidation)
	}
	if r.Field == "" {
		return fmt.Errorf("%w: audit record needs a field", soerrors.ErrValidation)
	}
	if r.Actor == "" {
		return fmt.Errorf("%w: audit record needs an actor", soerrors.ErrValidation)
	}
	if r.Source == "" {
		return fmt.Errorf("%w: audit record needs a source", soerrors.ErrValidation)
	}
	return nil
}

// Filter narrows a history query. Zero values mean no constraint.
type Filter struct {
	Field string
	Actor string
	Since time.Time
	Until time.Time
	Limit int
}
