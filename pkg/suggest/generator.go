package suggest

import (
	"context"
	"fmt"
	"sort"

	"github.com/marloweandco/studio-ops/pkg/email"
	"github.com/marloweandco/studio-ops/pkg/entity"
	soerrors "github.com/marloweandco/studio-ops/pkg/errors"
	"github.com/marloweandco/studio-ops/pkg/logging"
	"github.com/marloweandco/studio-ops/pkg/match"
)

// EligibilityFloor is the minimum candidate confidence that can drive a
// suggestion. Weaker links are stored but never suggest anything.
const EligibilityFloor = 0.6

// Generator runs extraction rules over matched emails and persists the
// resulting suggestions.
type Generator struct {
	rules []Rule
	repo  Repository
	floor float64
	log   logging.Logger
}

// NewGenerator creates a Generator with the given rule set. A zero floor
// falls back to the standard eligibility floor.
func NewGenerator(rules []Rule, repo Repository, floor float64, log logging.Logger) *Generator {
	if floor <= 0 {
		floor = EligibilityFloor
	}
	return &Generator{rules: rules, repo: repo, floor: floor, log: log}
}

// Generate evaluates one (email, candidate) pair and persists at most one
// suggestion per field. Returns the suggestions created.
//
// Dedup rules, applied per field:
//   - several rules firing on the same field keep only the highest
//     confidence extraction;
//   - an existing pending suggestion with the same proposed value absorbs
//     the new one (nothing written);
//   - an existing pending suggestion with a different proposed value is
//     marked stale and the new one replaces it.
func (g *Generator) Generate(ctx context.Context, msg *email.Email, cand match.Candidate, e *entity.Entity) ([]Suggestion, error) {
	if cand.Confidence < g.floor {
		return nil, nil
	}

	text := match.Fold(msg.Subject + "\n" + msg.Body)

	best := map[string]Extraction{}
	for _, rule := range g.rules {
		for _, ex := range rule.Extract(text, e) {
			if cur, ok := best[ex.Field]; !ok || ex.Confidence > cur.Confidence {
				best[ex.Field] = ex
			}
		}
	}
	if len(best) == 0 {
		return nil, nil
	}

	fields := make([]string, 0, len(best))
	for field := range best {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var created []Suggestion
	for _, field := range fields {
		ex := best[field]

		current := e.FieldString(field)
		if ex.Value == current {
			continue
		}

		s := Suggestion{
			EntityID:      e.ID,
			EmailID:       msg.ID,
			Field:         field,
			CurrentValue:  current,
			ProposedValue: ex.Value,
			Confidence:    cand.Confidence * ex.Confidence,
			Status:        StatusPending,
		}

		skip, err := g.supersede(ctx, &s)
		if err != nil {
			return created, err
		}
		if skip {
			continue
		}

		if err := g.repo.Create(ctx, &s); err != nil {
			return created, fmt.Errorf("persisting suggestion: %w", err)
		}
		g.log.Info("suggestion created",
			logging.F("suggestion_id", s.ID.String()),
			logging.F("entity_id", s.EntityID.String()),
			logging.F("field", s.Field),
			logging.F("proposed_value", s.ProposedValue),
		)
		created = append(created, s)
	}

	return created, nil
}

// supersede retires a conflicting pending suggestion for the same
// (entity, field). When the pending one already proposes the same value,
// skip is true and the new suggestion is not written; the older one keeps
// its place in the review queue.
func (g *Generator) supersede(ctx context.Context, s *Suggestion) (skip bool, err error) {
	pending, err := g.repo.GetPending(ctx, s.EntityID, s.Field)
	if err != nil {
		if soerrors.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}

	if pending.ProposedValue == s.ProposedValue {
		return true, nil
	}

	g.log.Info("pending suggestion superseded",
		logging.F("old_suggestion_id", pending.ID.String()),
		logging.F("entity_id", s.EntityID.String()),
		logging.F("field", s.Field),
	)
	return false, g.repo.MarkStale(ctx, pending.ID)
}
