// Package pattern holds the learned matching rules the matcher consults
// alongside the entity catalog: keyword, sender-domain, and regex expressions
// carrying a reliability weight that the learner adjusts from review
// outcomes. Patterns are never deleted; a weight that decays below the
// matching floor simply drops the pattern out of snapshots.
package pattern

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	soerrors "github.com/marloweandco/studio-ops/pkg/errors"
)

// Kind is the expression flavor of a pattern.
type Kind string

const (
	KindKeyword Kind = "keyword" // whole-word match in subject or body
	KindDomain  Kind = "domain"  // exact sender-domain match
	KindRegex   Kind = "regex"   // RE2 expression over subject and body
)

// IsValid reports whether the kind is one of the known pattern kinds.
func (k Kind) IsValid() bool {
	switch k {
	case KindKeyword, KindDomain, KindRegex:
		return true
	}
	return false
}

// State is the pattern lifecycle stage.
type State string

const (
	// StateCandidate patterns were synthesized by the learner and wait for
	// human activation. Never consulted by the matcher.
	StateCandidate State = "candidate"
	// StateActive patterns participate in matching (weight permitting).
	StateActive State = "active"
	// StateDeprecated patterns are retired by a human and never matched,
	// but kept for provenance.
	StateDeprecated State = "deprecated"
)

// IsValid reports whether the state is one of the known lifecycle stages.
func (s State) IsValid() bool {
	switch s {
	case StateCandidate, StateActive, StateDeprecated:
		return true
	}
	return false
}

// MatchFloor is the weight below which an active pattern is excluded from
// matching. The record itself stays in the store.
const MatchFloor = 0.3

// Pattern is one learned matching rule.
type Pattern struct {
	ID         uuid.UUID
	EntityID   uuid.UUID // entity the rule links to
	Kind       Kind
	Expression string
	Weight     float64 // historical reliability in [0,1]
	State      State

	TimesApplied   int // evidence contributions to links
	TimesConfirmed int // contributions whose suggestion was applied

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks the pattern's shape, including that a regex expression
// compiles. Malformed patterns are rejected at write time, never stored.
func (p *Pattern) Validate() error {
	if !p.Kind.IsValid() {
		return fmt.Errorf("%w: unknown pattern kind %q", soerrors.ErrValidation, p.Kind)
	}
	if !p.State.IsValid() {
		return fmt.Errorf("%w: unknown pattern state %q", soerrors.ErrValidation, p.State)
	}
	if strings.TrimSpace(p.Expression) == "" {
		return fmt.Errorf("%w: pattern expression is empty", soerrors.ErrValidation)
	}
	if p.EntityID == uuid.Nil {
		return fmt.Errorf("%w: pattern has no target entity", soerrors.ErrValidation)
	}
	if p.Weight < 0 || p.Weight > 1 {
		return fmt.Errorf("%w: pattern weight %v outside [0,1]", soerrors.ErrValidation, p.Weight)
	}
	if p.Kind == KindRegex {
		if _, err := regexp.Compile(p.Expression); err != nil {
			return fmt.Errorf("%w: pattern expression does not compile: %v", soerrors.ErrValidation, err)
		}
	}
	return nil
}

// Matchable reports whether the pattern participates in matching.
func (p *Pattern) Matchable() bool {
	return p.State == StateActive && p.Weight >= MatchFloor
}
