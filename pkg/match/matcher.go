package match

import (
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/marloweandco/studio-ops/pkg/email"
	"github.com/marloweandco/studio-ops/pkg/entity"
	"github.com/marloweandco/studio-ops/pkg/logging"
	"github.com/marloweandco/studio-ops/pkg/pattern"
)

// SignalCategory identifies which identity signal produced evidence.
// Order matters: lower rank wins candidate tie-breaks.
type SignalCategory int

const (
	SignalShortCode SignalCategory = iota
	SignalContact
	SignalDomain
	SignalName
	SignalPattern
)

func (c SignalCategory) String() string {
	switch c {
	case SignalShortCode:
		return "short_code"
	case SignalContact:
		return "contact"
	case SignalDomain:
		return "domain"
	case SignalName:
		return "name"
	case SignalPattern:
		return "pattern"
	}
	return "unknown"
}

// Signal is one piece of match evidence.
type Signal struct {
	Category  SignalCategory
	Detail    string  // what matched, e.g. the short code or folded name
	Weight    float64 // contribution in [0,1]
	PatternID uuid.UUID // set for SignalPattern only
}

// Candidate is one scored (entity, confidence, evidence) result.
type Candidate struct {
	EntityID   uuid.UUID
	EntityType entity.Type
	Confidence float64
	Evidence   []Signal // ordered by category rank, then weight descending
}

// bestRank returns the strongest signal category in the evidence.
func (c *Candidate) bestRank() SignalCategory {
	best := SignalPattern
	for _, s := range c.Evidence {
		if s.Category < best {
			best = s.Category
		}
	}
	return best
}

// Weights are the per-signal contributions. Defaults follow the signal
// hierarchy: an exact short code is near-certain, a known sender address
// strong, a bare domain weak, and a name mention scales with how much of
// the name actually appears.
type Weights struct {
	ShortCode float64
	Contact   float64
	Domain    float64
	NameMax   float64 // ceiling for the token-overlap name signal
	Floor     float64 // candidates below this are discarded
	Cap       float64 // automatic confidence never reaches 1.0
}

// DefaultWeights returns the standard signal weights.
func DefaultWeights() Weights {
	return Weights{
		ShortCode: 0.9,
		Contact:   0.8,
		Domain:    0.4,
		NameMax:   0.5,
		Floor:     0.3,
		Cap:       0.99,
	}
}

// Matcher scores one email against the catalog and a pattern snapshot.
//
// Matching is pure over its inputs: the same email against the same
// entities and snapshot always yields the same candidates, in the same
// order.
type Matcher struct {
	weights Weights
	log     logging.Logger
}

// NewMatcher creates a Matcher.
func NewMatcher(weights Weights, log logging.Logger) *Matcher {
	return &Matcher{weights: weights, log: log}
}

// Match scores msg against every entity. A message that fails validation
// (no parseable sender) yields an empty candidate list, not an error;
// entities without identity signals are skipped with a warning.
func (m *Matcher) Match(msg *email.Email, entities []entity.Entity, snap *pattern.Snapshot) []Candidate {
	if msg == nil || msg.Validate() != nil {
		return nil
	}
	text := Fold(msg.Subject + "\n" + msg.Body)

	textTokens := Tokenize(text)
	senderDomain := ExtractDomain(msg.Sender)

	patternHits := map[uuid.UUID][]pattern.Hit{}
	if snap != nil {
		for _, hit := range snap.Match(text, senderDomain) {
			patternHits[hit.EntityID] = append(patternHits[hit.EntityID], hit)
		}
	}

	var candidates []Candidate
	for i := range entities {
		e := &entities[i]
		if !e.HasIdentitySignals() {
			m.log.Warn("entity has no identity signals, skipping",
				logging.F("entity_id", e.ID.String()),
				logging.F("entity_type", e.Type.String()),
			)
			continue
		}

		evidence := m.scoreEntity(e, msg, text, textTokens, senderDomain, patternHits[e.ID])
		if len(evidence) == 0 {
			continue
		}

		confidence := combine(evidence, m.weights.Cap)
		if confidence < m.weights.Floor {
			continue
		}

		sortEvidence(evidence)
		candidates = append(candidates, Candidate{
			EntityID:   e.ID,
			EntityType: e.Type,
			Confidence: confidence,
			Evidence:   evidence,
		})
	}

	sortCandidates(candidates)
	return candidates
}

func (m *Matcher) scoreEntity(e *entity.Entity, msg *email.Email, text string, textTokens []string, senderDomain string, hits []pattern.Hit) []Signal {
	var evidence []Signal

	if e.ShortCode != "" && containsWord(text, Fold(e.ShortCode)) {
		evidence = append(evidence, Signal{
			Category: SignalShortCode,
			Detail:   e.ShortCode,
			Weight:   m.weights.ShortCode,
		})
	}

	if e.KnowsAddress(msg.Sender) {
		evidence = append(evidence, Signal{
			Category: SignalContact,
			Detail:   strings.ToLower(strings.TrimSpace(msg.Sender)),
			Weight:   m.weights.Contact,
		})
	} else if senderDomain != "" && e.KnowsDomain(senderDomain) {
		// Domain evidence is subsumed by a full address match.
		evidence = append(evidence, Signal{
			Category: SignalDomain,
			Detail:   senderDomain,
			Weight:   m.weights.Domain,
		})
	}

	if name, overlap := m.bestNameOverlap(e, textTokens); overlap > 0 {
		evidence = append(evidence, Signal{
			Category: SignalName,
			Detail:   name,
			Weight:   m.weights.NameMax * overlap,
		})
	}

	for _, hit := range hits {
		evidence = append(evidence, Signal{
			Category:  SignalPattern,
			Detail:    string(hit.Kind),
			Weight:    hit.Weight,
			PatternID: hit.PatternID,
		})
	}

	return evidence
}

// bestNameOverlap returns the strongest token-overlap among the entity's
// name, client name and aliases. Single-token overlaps only count when the
// token is reasonably distinctive.
func (m *Matcher) bestNameOverlap(e *entity.Entity, textTokens []string) (string, float64) {
	names := make([]string, 0, 2+len(e.Aliases))
	if e.Name != "" {
		names = append(names, e.Name)
	}
	if e.ClientName != "" {
		names = append(names, e.ClientName)
	}
	names = append(names, e.Aliases...)

	bestName, best := "", 0.0
	for _, name := range names {
		nameTokens := Tokenize(name)
		if len(nameTokens) == 0 {
			continue
		}
		if len(nameTokens) == 1 && len(nameTokens[0]) < 4 {
			continue
		}
		overlap := TokenOverlap(nameTokens, textTokens)
		if overlap > best {
			bestName, best = Fold(name), overlap
		}
	}
	return bestName, best
}

// combine folds evidence weights with a weighted OR: each additional
// independent signal reduces the remaining doubt instead of summing past 1.
func combine(evidence []Signal, limit float64) float64 {
	doubt := 1.0
	for _, s := range evidence {
		doubt *= 1 - s.Weight
	}
	return math.Min(1-doubt, limit)
}

func sortEvidence(evidence []Signal) {
	sort.SliceStable(evidence, func(i, j int) bool {
		if evidence[i].Category != evidence[j].Category {
			return evidence[i].Category < evidence[j].Category
		}
		return evidence[i].Weight > evidence[j].Weight
	})
}

// sortCandidates orders by confidence, then by strongest signal category,
// then by entity ID so equal candidates always come back in the same order.
// Ties after the category rank keep both candidates; ambiguity is surfaced
// to review rather than guessed away.
func sortCandidates(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := &candidates[i], &candidates[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		ra, rb := a.bestRank(), b.bestRank()
		if ra != rb {
			return ra < rb
		}
		return a.EntityID.String() < b.EntityID.String()
	})
}
