package suggest

import (
	"regexp"
	"strings"

	"github.com/marloweandco/studio-ops/pkg/entity"
)

// Extraction is one value a rule pulled out of a message body.
type Extraction struct {
	Field      string
	Value      string  // canonical form, ready for the field's schema
	Confidence float64 // rule confidence in [0,1]
}

// Rule extracts proposed field values from a message for one entity.
// text is the folded subject and body.
type Rule interface {
	Name() string
	Extract(text string, e *entity.Entity) []Extraction
}

// DefaultRules returns the standard extraction rule set.
func DefaultRules() []Rule {
	return []Rule{
		NewStatusKeywordRule(),
		NewMonetaryRule(),
	}
}

// statusCue maps a phrase to the status it implies per entity type.
type statusCue struct {
	phrase string
	status string
}

// StatusKeywordRule proposes status changes from characteristic phrases.
// Cues are checked in order and the first hit per entity wins, so a message
// saying both "kicked off" and "on hold" resolves the same way every run.
type StatusKeywordRule struct {
	cues       map[entity.Type][]statusCue
	confidence float64
}

// NewStatusKeywordRule creates the rule with the standard cue sets.
func NewStatusKeywordRule() *StatusKeywordRule {
	return &StatusKeywordRule{
		confidence: 0.8,
		cues: map[entity.Type][]statusCue{
			entity.TypeProposal: {
				{"regret to inform", "lost"},
				{"not been selected", "lost"},
				{"unsuccessful", "lost"},
				{"pleased to inform", "won"},
				{"awarded", "won"},
				{"shortlisted", "shortlisted"},
				{"withdraw", "withdrawn"},
			},
			entity.TypeProject: {
				{"on hold", "on_hold"},
				{"paused", "on_hold"},
				{"kickoff", "active"},
				{"kicked off", "active"},
				{"go-ahead", "active"},
				{"handover complete", "completed"},
				{"final delivery", "completed"},
			},
		},
	}
}

func (r *StatusKeywordRule) Name() string { return "status_keyword" }

// Extract returns at most one status proposal.
func (r *StatusKeywordRule) Extract(text string, e *entity.Entity) []Extraction {
	cues, ok := r.cues[e.Type]
	if !ok {
		return nil
	}
	for _, cue := range cues {
		if strings.Contains(text, cue.phrase) {
			return []Extraction{{
				Field:      "status",
				Value:      cue.status,
				Confidence: r.confidence,
			}}
		}
	}
	return nil
}

// amountPattern captures a monetary figure: optional currency marker, then
// digits with optional thousands separators and decimals.
var amountPattern = regexp.MustCompile(`(?:nok|eur|usd|kr|€|\$)?\s*(\d{1,3}(?:[, ]\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?)\s*(?:nok|eur|usd|kr)?`)

// MonetaryRule proposes fee/value changes when a monetary figure appears
// close to a fee cue word. Proximity is a character window around the cue,
// not sentence parsing; false positives are the review gate's problem by
// construction, but the window keeps them rare.
type MonetaryRule struct {
	cueWords   []string
	window     int
	confidence float64
}

// NewMonetaryRule creates the rule with the standard cue words.
func NewMonetaryRule() *MonetaryRule {
	return &MonetaryRule{
		cueWords:   []string{"fee", "budget", "value", "quote"},
		window:     80,
		confidence: 0.7,
	}
}

func (r *MonetaryRule) Name() string { return "monetary" }

// Extract returns at most one fee/value proposal, from the first cue word
// with an amount in range.
func (r *MonetaryRule) Extract(text string, e *entity.Entity) []Extraction {
	var field string
	switch e.Type {
	case entity.TypeProject:
		field = "fee"
	case entity.TypeProposal:
		field = "value"
	default:
		return nil
	}

	for _, cue := range r.cueWords {
		idx := indexWord(text, cue)
		if idx < 0 {
			continue
		}
		start := idx - r.window
		if start < 0 {
			start = 0
		}
		end := idx + len(cue) + r.window
		if end > len(text) {
			end = len(text)
		}

		m := amountPattern.FindStringSubmatch(text[start:end])
		if m == nil {
			continue
		}
		raw := strings.NewReplacer(",", "", " ", "").Replace(m[1])

		fv, err := entity.ParseField(e.Type, field, raw)
		if err != nil {
			continue
		}
		return []Extraction{{
			Field:      field,
			Value:      fv.String(),
			Confidence: r.confidence,
		}}
	}
	return nil
}

// indexWord finds cue as a whole word in folded text.
func indexWord(text, cue string) int {
	for start := 0; ; {
		idx := strings.Index(text[start:], cue)
		if idx < 0 {
			return -1
		}
		idx += start
		end := idx + len(cue)
		beforeOK := idx == 0 || !isWordByte(text[idx-1])
		afterOK := end == len(text) || !isWordByte(text[end])
		if beforeOK && afterOK {
			return idx
		}
		start = idx + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}
