// Package suggest turns high-confidence links into reviewable field-change
// suggestions. Every suggestion captures the value it saw at generation
// time, so review can detect when the world moved on underneath it.
package suggest

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	soerrors "github.com/marloweandco/studio-ops/pkg/errors"
)

// Status is the suggestion lifecycle state.
type Status string

const (
	// StatusPending suggestions await a review decision.
	StatusPending Status = "pending"
	// StatusApplied suggestions were approved and their change landed.
	StatusApplied Status = "applied"
	// StatusDenied suggestions were rejected with a reviewer note.
	StatusDenied Status = "denied"
	// StatusStale suggestions were superseded by a newer suggestion or
	// invalidated because the entity changed before review.
	StatusStale Status = "stale"
)

// IsValid reports whether the status is one of the known lifecycle states.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApplied, StatusDenied, StatusStale:
		return true
	}
	return false
}

// Resolved reports whether the status is terminal.
func (s Status) Resolved() bool {
	return s.IsValid() && s != StatusPending
}

// Suggestion is one proposed field change awaiting (or past) review.
type Suggestion struct {
	ID       uuid.UUID
	EntityID uuid.UUID
	EmailID  uuid.UUID // message whose link produced the suggestion

	Field         string
	CurrentValue  string // canonical entity value captured at generation
	ProposedValue string
	Confidence    float64 // candidate confidence × extraction-rule confidence

	Status     Status
	Note       string     // reviewer note, required on deny
	ResolvedBy string     // reviewer identifier, set on resolution
	ResolvedAt *time.Time // set on resolution

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks the suggestion's shape before writing.
func (s *Suggestion) Validate() error {
	if s.EntityID == uuid.Nil || s.EmailID == uuid.Nil {
		return fmt.Errorf("%w: suggestion needs an entity and an email", soerrors.ErrValidation)
	}
	if s.Field == "" {
		return fmt.Errorf("%w: suggestion has no field", soerrors.ErrValidation)
	}
	if s.ProposedValue == s.CurrentValue {
		return fmt.Errorf("%w: suggestion proposes no change", soerrors.ErrValidation)
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		return fmt.Errorf("%w: suggestion confidence %v outside [0,1]", soerrors.ErrValidation, s.Confidence)
	}
	if !s.Status.IsValid() {
		return fmt.Errorf("%w: unknown suggestion status %q", soerrors.ErrValidation, s.Status)
	}
	return nil
}
