// Package link persists the email-to-entity links the matcher produces,
// together with the evidence that produced them. One email may link to
// several entities; re-matching updates auto links in place and never
// touches manual ones.
package link

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	soerrors "github.com/marloweandco/studio-ops/pkg/errors"
)

// Method records how a link came to exist.
type Method string

const (
	// MethodPattern links carry at least one pattern hit in their evidence.
	MethodPattern Method = "pattern"
	// MethodHeuristic links rest on catalog signals alone.
	MethodHeuristic Method = "heuristic"
	// MethodManual links are human-created, confidence 1.0, never
	// overwritten by re-matching.
	MethodManual Method = "manual"
)

// IsValid reports whether the method is one of the known link methods.
func (m Method) IsValid() bool {
	switch m {
	case MethodPattern, MethodHeuristic, MethodManual:
		return true
	}
	return false
}

// Evidence is one matched signal captured on a link. Weights are frozen at
// match time; later weight changes show up only after a re-match.
type Evidence struct {
	Category  string    `json:"category"`
	Detail    string    `json:"detail,omitempty"`
	Weight    float64   `json:"weight"`
	PatternID uuid.UUID `json:"pattern_id"`
}

// Link is one current (email, entity) association.
type Link struct {
	ID         uuid.UUID
	EmailID    uuid.UUID
	EntityID   uuid.UUID
	Confidence float64
	Method     Method
	Evidence   []Evidence
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Validate checks the link's shape before writing.
func (l *Link) Validate() error {
	if l.EmailID == uuid.Nil || l.EntityID == uuid.Nil {
		return fmt.Errorf("%w: link needs both an email and an entity", soerrors.ErrValidation)
	}
	if !l.Method.IsValid() {
		return fmt.Errorf("%w: unknown link method %q", soerrors.ErrValidation, l.Method)
	}
	if l.Confidence < 0 || l.Confidence > 1 {
		return fmt.Errorf("%w: link confidence %v outside [0,1]", soerrors.ErrValidation, l.Confidence)
	}
	if l.Method == MethodManual && l.Confidence != 1.0 {
		return fmt.Errorf("%w: manual links have confidence 1.0", soerrors.ErrValidation)
	}
	if l.Method != MethodManual && l.Confidence == 1.0 {
		return fmt.Errorf("%w: only manual links reach confidence 1.0", soerrors.ErrValidation)
	}
	return nil
}

// PatternIDs returns the distinct patterns contributing to the evidence, in
// evidence order. The learner uses this to find the patterns behind a
// resolved suggestion.
func (l *Link) PatternIDs() []uuid.UUID {
	var ids []uuid.UUID
	seen := map[uuid.UUID]struct{}{}
	for _, ev := range l.Evidence {
		if ev.PatternID == uuid.Nil {
			continue
		}
		if _, ok := seen[ev.PatternID]; ok {
			continue
		}
		seen[ev.PatternID] = struct{}{}
		ids = append(ids, ev.PatternID)
	}
	return ids
}

func encodeEvidence(evidence []Evidence) ([]byte, error) {
	if evidence == nil {
		evidence = []Evidence{}
	}
	raw, err := json.Marshal(evidence)
	if err != nil {
		return nil, fmt.Errorf("encoding link evidence: %w", err)
	}
	return raw, nil
}

func decodeEvidence(raw []byte) ([]Evidence, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var evidence []Evidence
	if err := json.Unmarshal(raw, &evidence); err != nil {
		return nil, fmt.Errorf("parsing link evidence: %w", err)
	}
	return evidence, nil
}
