package learn

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/marloweandco/studio-ops/pkg/db"
	soerrors "github.com/marloweandco/studio-ops/pkg/errors"
	"github.com/marloweandco/studio-ops/pkg/link"
	"github.com/marloweandco/studio-ops/pkg/logging"
	"github.com/marloweandco/studio-ops/pkg/pattern"
	"github.com/marloweandco/studio-ops/pkg/suggest"
)

const (
	// DefaultAlpha is the weight learning rate.
	DefaultAlpha = 0.1
	// DefaultDenialThreshold is how many matching denial notes it takes to
	// synthesize a candidate pattern.
	DefaultDenialThreshold = 3
	// candidateSeedWeight is the starting weight of a synthesized pattern.
	candidateSeedWeight = 0.5
)

// WeightUpdate reports one pattern weight adjustment.
type WeightUpdate struct {
	PatternID uuid.UUID
	OldWeight float64
	NewWeight float64
}

// Delta summarizes one learner run.
type Delta struct {
	SuggestionsSeen int
	WeightUpdates   []WeightUpdate
	Candidates      []pattern.Pattern // synthesized, awaiting activation
}

// Learner is the periodic batch that consumes resolved suggestions.
type Learner struct {
	suggestions suggest.Repository
	links       link.Repository
	patterns    pattern.Repository
	tx          db.Transactor

	alpha           float64
	denialThreshold int
	log             logging.Logger
}

// NewLearner creates a Learner. Zero alpha or threshold fall back to the
// defaults.
func NewLearner(suggestions suggest.Repository, links link.Repository, patterns pattern.Repository, tx db.Transactor, alpha float64, denialThreshold int, log logging.Logger) *Learner {
	if alpha <= 0 {
		alpha = DefaultAlpha
	}
	if denialThreshold <= 0 {
		denialThreshold = DefaultDenialThreshold
	}
	return &Learner{
		suggestions:     suggestions,
		links:           links,
		patterns:        patterns,
		tx:              tx,
		alpha:           alpha,
		denialThreshold: denialThreshold,
		log:             log,
	}
}

// Learn processes suggestions resolved at or after since. Applied outcomes
// pull contributing pattern weights toward 1, denied outcomes push them
// toward 0; both moves are asymptotic so a weight never leaves [0,1].
// Stale resolutions teach nothing.
func (l *Learner) Learn(ctx context.Context, since time.Time) (*Delta, error) {
	resolved, err := l.suggestions.ListResolvedSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("loading resolved suggestions: %w", err)
	}

	delta := &Delta{SuggestionsSeen: len(resolved)}

	for i := range resolved {
		s := &resolved[i]
		switch s.Status {
		case suggest.StatusApplied, suggest.StatusDenied:
		default:
			continue
		}

		ids, err := l.contributingPatterns(ctx, s)
		if err != nil {
			return delta, err
		}

		for _, id := range ids {
			update, err := l.adjustWeight(ctx, id, s.Status == suggest.StatusApplied)
			if err != nil {
				if soerrors.IsNotFound(err) {
					continue
				}
				return delta, err
			}
			delta.WeightUpdates = append(delta.WeightUpdates, *update)
		}
	}

	candidates, err := l.synthesizeFromDenials(ctx, resolved)
	if err != nil {
		return delta, err
	}
	delta.Candidates = candidates

	l.log.Info("learner run complete",
		logging.F("resolved_seen", delta.SuggestionsSeen),
		logging.F("weight_updates", len(delta.WeightUpdates)),
		logging.F("candidates_created", len(delta.Candidates)),
	)

	return delta, nil
}

// contributingPatterns finds the patterns behind the link that produced a
// suggestion. A link re-matched since generation may list different
// patterns; the current evidence is the best available provenance.
func (l *Learner) contributingPatterns(ctx context.Context, s *suggest.Suggestion) ([]uuid.UUID, error) {
	lk, err := l.links.GetByPair(ctx, s.EmailID, s.EntityID)
	if err != nil {
		if soerrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading link for suggestion %s: %w", s.ID, err)
	}
	return lk.PatternIDs(), nil
}

// adjustWeight moves one pattern weight. Each adjustment is its own short
// transaction; the repository locks the row so two learner runs touching
// the same pattern serialize instead of losing an update.
func (l *Learner) adjustWeight(ctx context.Context, id uuid.UUID, applied bool) (*WeightUpdate, error) {
	var update WeightUpdate
	err := l.tx.RunInTx(ctx, func(txCtx context.Context) error {
		p, err := l.patterns.GetByID(txCtx, id)
		if err != nil {
			return err
		}

		update = WeightUpdate{PatternID: id, OldWeight: p.Weight}
		confirmedDelta := 0
		if applied {
			update.NewWeight = p.Weight + l.alpha*(1-p.Weight)
			confirmedDelta = 1
		} else {
			update.NewWeight = p.Weight - l.alpha*p.Weight
		}

		return l.patterns.UpdateWeight(txCtx, id, update.NewWeight, 1, confirmedDelta)
	})
	if err != nil {
		return nil, err
	}

	l.log.Debug("pattern weight adjusted",
		logging.F("pattern_id", id.String()),
		logging.F("old_weight", update.OldWeight),
		logging.F("new_weight", update.NewWeight),
	)
	return &update, nil
}

// denialKey groups denials that point at the same correction.
type denialKey struct {
	entityID uuid.UUID
	field    string
	note     string
}

// synthesizeFromDenials turns recurring denial notes into candidate
// patterns. A group needs denialThreshold denials of the same entity and
// field whose normalized notes agree. Candidates are never activated here;
// a human flips them active or the matcher never sees them.
func (l *Learner) synthesizeFromDenials(ctx context.Context, resolved []suggest.Suggestion) ([]pattern.Pattern, error) {
	groups := map[denialKey]int{}
	for i := range resolved {
		s := &resolved[i]
		if s.Status != suggest.StatusDenied {
			continue
		}
		note := NormalizeNote(s.Note)
		if note == "" {
			continue
		}
		groups[denialKey{entityID: s.EntityID, field: s.Field, note: note}]++
	}

	keys := make([]denialKey, 0, len(groups))
	for k, n := range groups {
		if n >= l.denialThreshold {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].entityID != keys[j].entityID {
			return keys[i].entityID.String() < keys[j].entityID.String()
		}
		if keys[i].field != keys[j].field {
			return keys[i].field < keys[j].field
		}
		return keys[i].note < keys[j].note
	})

	existing, err := l.patterns.ListByState(ctx, pattern.StateCandidate)
	if err != nil {
		return nil, fmt.Errorf("loading candidate patterns: %w", err)
	}
	seen := map[string]struct{}{}
	for _, p := range existing {
		seen[p.EntityID.String()+"|"+p.Expression] = struct{}{}
	}

	var created []pattern.Pattern
	for _, k := range keys {
		if _, dup := seen[k.entityID.String()+"|"+k.note]; dup {
			continue
		}

		p := pattern.Pattern{
			EntityID:   k.entityID,
			Kind:       pattern.KindKeyword,
			Expression: k.note,
			Weight:     candidateSeedWeight,
			State:      pattern.StateCandidate,
		}
		err := l.tx.RunInTx(ctx, func(txCtx context.Context) error {
			return l.patterns.Create(txCtx, &p)
		})
		if err != nil {
			return created, fmt.Errorf("creating candidate pattern: %w", err)
		}

		l.log.Info("candidate pattern synthesized from denials",
			logging.F("pattern_id", p.ID.String()),
			logging.F("entity_id", k.entityID.String()),
			logging.F("field", k.field),
			logging.F("expression", k.note),
		)
		created = append(created, p)
	}

	return created, nil
}
