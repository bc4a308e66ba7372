package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marloweandco/studio-ops/pkg/email"
	"github.com/marloweandco/studio-ops/pkg/entity"
	soerrors "github.com/marloweandco/studio-ops/pkg/errors"
	"github.com/marloweandco/studio-ops/pkg/link"
	"github.com/marloweandco/studio-ops/pkg/logging"
	"github.com/marloweandco/studio-ops/pkg/match"
	"github.com/marloweandco/studio-ops/pkg/pattern"
	"github.com/marloweandco/studio-ops/pkg/suggest"
)

type passthroughTx struct{}

func (passthroughTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type memEmails struct {
	mu     sync.Mutex
	byID   map[uuid.UUID]*email.Email
	broken bool
}

func newMemEmails(msgs ...*email.Email) *memEmails {
	m := &memEmails{byID: map[uuid.UUID]*email.Email{}}
	for _, msg := range msgs {
		m.byID[msg.ID] = msg
	}
	return m
}

func (m *memEmails) GetByID(_ context.Context, id uuid.UUID) (*email.Email, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.broken {
		return nil, fmt.Errorf("getting email: %w", soerrors.ErrStoreUnavailable)
	}
	msg, ok := m.byID[id]
	if !ok {
		return nil, soerrors.ErrNotFound
	}
	cp := *msg
	return &cp, nil
}

func (m *memEmails) ListUnprocessed(_ context.Context, limit int) ([]email.Email, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []email.Email
	for _, msg := range m.byID {
		if !msg.Processed() {
			out = append(out, *msg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.Before(out[j].ReceivedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memEmails) MarkProcessed(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.byID[id]
	if !ok {
		return soerrors.ErrNotFound
	}
	now := time.Now()
	msg.MatchedAt = &now
	return nil
}

type memEntities struct {
	list []entity.Entity
}

func (m *memEntities) GetByID(_ context.Context, id uuid.UUID) (*entity.Entity, error) {
	for i := range m.list {
		if m.list[i].ID == id {
			cp := m.list[i]
			return &cp, nil
		}
	}
	return nil, soerrors.ErrNotFound
}

func (m *memEntities) ListAll(_ context.Context) ([]entity.Entity, error) {
	out := make([]entity.Entity, len(m.list))
	copy(out, m.list)
	return out, nil
}

func (m *memEntities) GetFieldValue(ctx context.Context, id uuid.UUID, field string) (string, error) {
	e, err := m.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return e.FieldString(field), nil
}

func (m *memEntities) UpdateField(_ context.Context, id uuid.UUID, field, value string) error {
	for i := range m.list {
		if m.list[i].ID == id {
			fv, err := entity.ParseField(m.list[i].Type, field, value)
			if err != nil {
				return err
			}
			m.list[i].Fields[field] = fv
			return nil
		}
	}
	return soerrors.ErrNotFound
}

type pairKey struct {
	emailID  uuid.UUID
	entityID uuid.UUID
}

type memLinks struct {
	mu     sync.Mutex
	byPair map[pairKey]*link.Link
}

func newMemLinks() *memLinks {
	return &memLinks{byPair: map[pairKey]*link.Link{}}
}

func (m *memLinks) UpsertAuto(_ context.Context, l *link.Link) error {
	if l.Method == link.MethodManual {
		return fmt.Errorf("%w: manual links go through CreateManual", soerrors.ErrValidation)
	}
	if err := l.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey{l.EmailID, l.EntityID}
	if existing, ok := m.byPair[key]; ok && existing.Method == link.MethodManual {
		return nil
	}
	cp := *l
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	m.byPair[key] = &cp
	return nil
}

func (m *memLinks) CreateManual(_ context.Context, emailID, entityID uuid.UUID) (*link.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey{emailID, entityID}
	if existing, ok := m.byPair[key]; ok && existing.Method == link.MethodManual {
		return nil, soerrors.ErrAlreadyExists
	}
	l := &link.Link{
		ID: uuid.New(), EmailID: emailID, EntityID: entityID,
		Confidence: 1.0, Method: link.MethodManual,
	}
	m.byPair[key] = l
	return l, nil
}

func (m *memLinks) GetByPair(_ context.Context, emailID, entityID uuid.UUID) (*link.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.byPair[pairKey{emailID, entityID}]
	if !ok {
		return nil, soerrors.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *memLinks) ListByEmail(_ context.Context, emailID uuid.UUID) ([]link.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []link.Link
	for key, l := range m.byPair {
		if key.emailID == emailID {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out, nil
}

func (m *memLinks) ListByEntity(_ context.Context, entityID uuid.UUID) ([]link.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []link.Link
	for key, l := range m.byPair {
		if key.entityID == entityID {
			out = append(out, *l)
		}
	}
	return out, nil
}

type memSuggestions struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*suggest.Suggestion
}

func newMemSuggestions() *memSuggestions {
	return &memSuggestions{byID: map[uuid.UUID]*suggest.Suggestion{}}
}

func (m *memSuggestions) GetByID(_ context.Context, id uuid.UUID) (*suggest.Suggestion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return nil, soerrors.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memSuggestions) GetPending(_ context.Context, entityID uuid.UUID, field string) (*suggest.Suggestion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.byID {
		if s.EntityID == entityID && s.Field == field && s.Status == suggest.StatusPending {
			cp := *s
			return &cp, nil
		}
	}
	return nil, soerrors.ErrNotFound
}

func (m *memSuggestions) ListByStatus(_ context.Context, status suggest.Status, limit int) ([]suggest.Suggestion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []suggest.Suggestion
	for _, s := range m.byID {
		if s.Status == status {
			out = append(out, *s)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memSuggestions) ListResolvedSince(_ context.Context, since time.Time) ([]suggest.Suggestion, error) {
	return nil, nil
}

func (m *memSuggestions) Create(_ context.Context, s *suggest.Suggestion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.Status = suggest.StatusPending
	cp := *s
	m.byID[cp.ID] = &cp
	return nil
}

func (m *memSuggestions) MarkStale(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return soerrors.ErrNotFound
	}
	if s.Status != suggest.StatusPending {
		return soerrors.ErrInvalidState
	}
	s.Status = suggest.StatusStale
	return nil
}

func (m *memSuggestions) Resolve(_ context.Context, id uuid.UUID, status suggest.Status, note, resolvedBy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return soerrors.ErrNotFound
	}
	if s.Status != suggest.StatusPending {
		return soerrors.ErrInvalidState
	}
	now := time.Now()
	s.Status = status
	s.Note = note
	s.ResolvedBy = resolvedBy
	s.ResolvedAt = &now
	return nil
}

func mustField(t *testing.T, typ entity.Type, field, raw string) entity.FieldValue {
	t.Helper()
	fv, err := entity.ParseField(typ, field, raw)
	require.NoError(t, err)
	return fv
}

// fixedSnapshot serves one pre-built snapshot.
type fixedSnapshot struct {
	snap *pattern.Snapshot
}

func (f fixedSnapshot) Snapshot() *pattern.Snapshot { return f.snap }

func newTestProcessor(t *testing.T, emails *memEmails, ents entity.Repository) (*Processor, *memLinks, *memSuggestions) {
	t.Helper()
	links := newMemLinks()
	suggestions := newMemSuggestions()
	log := logging.NewNopLogger()
	matcher := match.NewMatcher(match.DefaultWeights(), log)
	gen := suggest.NewGenerator(suggest.DefaultRules(), suggestions, 0, log)
	snaps := fixedSnapshot{snap: pattern.NewSnapshot(nil)}
	proc := NewProcessor(emails, ents, links, snaps, matcher, gen, passthroughTx{}, nil, log)
	return proc, links, suggestions
}

func TestProcessEmailLinksAndSuggests(t *testing.T) {
	propID := uuid.New()
	ents := &memEntities{list: []entity.Entity{{
		ID:            propID,
		Type:          entity.TypeProposal,
		ShortCode:     "BK-033",
		Name:          "Fjordhus Visitor Centre",
		ContactEmails: []string{"anna@fjordhus.no"},
		Fields: map[string]entity.FieldValue{
			"status": mustField(t, entity.TypeProposal, "status", "sent"),
		},
	}}}

	msg := &email.Email{
		ID:         uuid.New(),
		Sender:     "anna@fjordhus.no",
		Subject:    "BK-033 decision",
		Body:       "We are pleased to inform you that your proposal has been selected.",
		ReceivedAt: time.Now(),
	}
	emails := newMemEmails(msg)

	proc, links, suggestions := newTestProcessor(t, emails, ents)

	out, err := proc.ProcessEmail(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.False(t, out.AlreadyProcessed)
	assert.Equal(t, 1, out.Candidates)
	assert.Equal(t, 1, out.Links)
	assert.Equal(t, 1, out.Suggestions)

	l, err := links.GetByPair(context.Background(), msg.ID, propID)
	require.NoError(t, err)
	assert.Equal(t, link.MethodHeuristic, l.Method)
	assert.GreaterOrEqual(t, l.Confidence, 0.9)
	assert.Less(t, l.Confidence, 1.0)
	assert.NotEmpty(t, l.Evidence)

	pending, err := suggestions.GetPending(context.Background(), propID, "status")
	require.NoError(t, err)
	assert.Equal(t, "won", pending.ProposedValue)
	assert.Equal(t, "sent", pending.CurrentValue)
	assert.Equal(t, msg.ID, pending.EmailID)

	stored, err := emails.GetByID(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.True(t, stored.Processed())
}

func TestProcessEmailPatternEvidenceMarksLinkMethod(t *testing.T) {
	projID := uuid.New()
	patID := uuid.New()
	ents := &memEntities{list: []entity.Entity{{
		ID:   projID,
		Type: entity.TypeProject,
		Name: "Harbour Baths",
		Fields: map[string]entity.FieldValue{
			"status": mustField(t, entity.TypeProject, "status", "active"),
		},
	}}}

	msg := &email.Email{
		ID:         uuid.New(),
		Sender:     "ops@example.org",
		Subject:    "site visit",
		Body:       "Notes from the badeanlegget walkthrough.",
		ReceivedAt: time.Now(),
	}
	emails := newMemEmails(msg)

	proc, links, _ := newTestProcessor(t, emails, ents)
	proc.patterns = fixedSnapshot{snap: pattern.NewSnapshot([]pattern.Pattern{{
		ID:         patID,
		EntityID:   projID,
		Kind:       pattern.KindKeyword,
		Expression: "badeanlegget",
		Weight:     0.7,
		State:      pattern.StateActive,
	}})}

	out, err := proc.ProcessEmail(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Links)

	l, err := links.GetByPair(context.Background(), msg.ID, projID)
	require.NoError(t, err)
	assert.Equal(t, link.MethodPattern, l.Method)
	require.Len(t, l.PatternIDs(), 1)
	assert.Equal(t, patID, l.PatternIDs()[0])
}

func TestProcessEmailAlreadyProcessed(t *testing.T) {
	now := time.Now()
	msg := &email.Email{
		ID:         uuid.New(),
		Sender:     "anna@fjordhus.no",
		Subject:    "re: decision",
		ReceivedAt: now,
		MatchedAt:  &now,
	}
	emails := newMemEmails(msg)
	proc, links, _ := newTestProcessor(t, emails, &memEntities{})

	out, err := proc.ProcessEmail(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.True(t, out.AlreadyProcessed)

	got, err := links.ListByEmail(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestProcessEmailNoCandidatesStillMarksProcessed(t *testing.T) {
	msg := &email.Email{
		ID:         uuid.New(),
		Sender:     "stranger@nowhere.example",
		Subject:    "newsletter",
		Body:       "unrelated content",
		ReceivedAt: time.Now(),
	}
	emails := newMemEmails(msg)
	proc, _, _ := newTestProcessor(t, emails, &memEntities{})

	out, err := proc.ProcessEmail(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Zero(t, out.Candidates)
	assert.Zero(t, out.Links)

	stored, err := emails.GetByID(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.True(t, stored.Processed())
}

func TestProcessBatch(t *testing.T) {
	propID := uuid.New()
	ents := &memEntities{list: []entity.Entity{{
		ID:            propID,
		Type:          entity.TypeProposal,
		ShortCode:     "BK-021",
		Name:          "Kulturhus Extension",
		ContactEmails: []string{"post@kulturhus.no"},
		Fields:        map[string]entity.FieldValue{},
	}}}

	base := time.Now()
	var msgs []*email.Email
	for i := 0; i < 5; i++ {
		msgs = append(msgs, &email.Email{
			ID:         uuid.New(),
			Sender:     "post@kulturhus.no",
			Subject:    fmt.Sprintf("BK-021 update %d", i),
			Body:       "progress notes",
			ReceivedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	done := time.Now()
	msgs = append(msgs, &email.Email{
		ID:         uuid.New(),
		Sender:     "post@kulturhus.no",
		Subject:    "already handled",
		ReceivedAt: base,
		MatchedAt:  &done,
	})
	emails := newMemEmails(msgs...)

	proc, _, _ := newTestProcessor(t, emails, ents)

	result, err := proc.ProcessBatch(context.Background(), 100, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, result.Total) // processed one excluded by ListUnprocessed
	assert.Equal(t, 5, result.Processed)
	assert.Equal(t, 5, result.Links)
	assert.Zero(t, result.Failed)
}

func TestProcessBatchStoreOutageAborts(t *testing.T) {
	msg := &email.Email{
		ID:         uuid.New(),
		Sender:     "a@b.example",
		Subject:    "x",
		ReceivedAt: time.Now(),
	}
	emails := newMemEmails(msg)
	proc, _, _ := newTestProcessor(t, emails, &memEntities{})
	emails.broken = true

	_, err := proc.ProcessBatch(context.Background(), 10, 2)
	require.Error(t, err)
	assert.True(t, soerrors.IsStoreUnavailable(err))
}

func TestLinkFromCandidateEvidenceCarriedOver(t *testing.T) {
	emailID := uuid.New()
	entityID := uuid.New()
	patID := uuid.New()

	cand := match.Candidate{
		EntityID:   entityID,
		EntityType: entity.TypeProject,
		Confidence: 0.85,
		Evidence: []match.Signal{
			{Category: match.SignalShortCode, Detail: "bk-033", Weight: 0.9},
			{Category: match.SignalPattern, Detail: "badeanlegget", Weight: 0.7, PatternID: patID},
		},
	}

	l := linkFromCandidate(emailID, cand)
	assert.Equal(t, link.MethodPattern, l.Method)
	assert.InDelta(t, 0.85, l.Confidence, 1e-9)
	require.Len(t, l.Evidence, 2)
	assert.Equal(t, "short_code", l.Evidence[0].Category)
	assert.Equal(t, patID, l.Evidence[1].PatternID)
	require.NoError(t, l.Validate())
}
