package pattern

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

// compiled is one matchable pattern with its expression pre-compiled.
type compiled struct {
	Pattern
	keyword string         // lowercased, KindKeyword only
	domain  string         // lowercased, KindDomain only
	re      *regexp.Regexp // KindRegex only
}

// Hit is one pattern that matched a message.
type Hit struct {
	PatternID uuid.UUID
	EntityID  uuid.UUID
	Kind      Kind
	Weight    float64
}

// Snapshot is an immutable compiled view of the matchable patterns.
// The matcher reads a snapshot for a whole batch so concurrent learner
// writes never change scores mid-run.
type Snapshot struct {
	patterns []compiled
}

// NewSnapshot compiles the matchable subset of patterns. Candidate,
// deprecated and below-floor patterns are skipped; a stored pattern whose
// regex no longer compiles is skipped rather than failing the snapshot.
func NewSnapshot(patterns []Pattern) *Snapshot {
	s := &Snapshot{}
	for _, p := range patterns {
		if !p.Matchable() {
			continue
		}
		c := compiled{Pattern: p}
		switch p.Kind {
		case KindKeyword:
			c.keyword = strings.ToLower(strings.TrimSpace(p.Expression))
		case KindDomain:
			c.domain = strings.ToLower(strings.TrimSpace(p.Expression))
		case KindRegex:
			re, err := regexp.Compile(p.Expression)
			if err != nil {
				continue
			}
			c.re = re
		default:
			continue
		}
		s.patterns = append(s.patterns, c)
	}
	return s
}

// Len returns the number of matchable patterns in the snapshot.
func (s *Snapshot) Len() int { return len(s.patterns) }

// Match returns the patterns hitting a message. text is the lowercased
// subject and body; senderDomain is the lowercased sender domain. Hits are
// returned in stored pattern order, so matching stays deterministic.
func (s *Snapshot) Match(text, senderDomain string) []Hit {
	var hits []Hit
	for i := range s.patterns {
		p := &s.patterns[i]
		matched := false
		switch p.Kind {
		case KindKeyword:
			matched = containsWord(text, p.keyword)
		case KindDomain:
			matched = senderDomain != "" && senderDomain == p.domain
		case KindRegex:
			matched = p.re.MatchString(text)
		}
		if matched {
			hits = append(hits, Hit{
				PatternID: p.ID,
				EntityID:  p.EntityID,
				Kind:      p.Kind,
				Weight:    p.Weight,
			})
		}
	}
	return hits
}

// containsWord reports whether text contains kw bounded by non-alphanumeric
// runes, so "bk-033" does not hit inside "bk-0330".
func containsWord(text, kw string) bool {
	if kw == "" {
		return false
	}
	for start := 0; ; {
		idx := strings.Index(text[start:], kw)
		if idx < 0 {
			return false
		}
		idx += start
		end := idx + len(kw)
		beforeOK := idx == 0 || !isWordByte(text[idx-1])
		afterOK := end == len(text) || !isWordByte(text[end])
		if beforeOK && afterOK {
			return true
		}
		start = idx + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

// Store serves pattern snapshots to the matcher. Reload builds a fresh
// snapshot from the repository; readers keep whatever snapshot they loaded
// until they ask again, so the learner's writes never race a running match.
type Store struct {
	repo Repository
	snap atomic.Pointer[Snapshot]
}

// NewStore creates a Store with an empty snapshot.
func NewStore(repo Repository) *Store {
	s := &Store{repo: repo}
	s.snap.Store(NewSnapshot(nil))
	return s
}

// Snapshot returns the current snapshot.
func (s *Store) Snapshot() *Snapshot {
	return s.snap.Load()
}

// Reload rebuilds the snapshot from the repository.
func (s *Store) Reload(ctx context.Context) (*Snapshot, error) {
	patterns, err := s.repo.ListByState(ctx, StateActive)
	if err != nil {
		return nil, fmt.Errorf("reloading pattern snapshot: %w", err)
	}
	snap := NewSnapshot(patterns)
	s.snap.Store(snap)
	return snap, nil
}
