package suggest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marloweandco/studio-ops/pkg/email"
	"github.com/marloweandco/studio-ops/pkg/entity"
	soerrors "github.com/marloweandco/studio-ops/pkg/errors"
	"github.com/marloweandco/studio-ops/pkg/logging"
	"github.com/marloweandco/studio-ops/pkg/match"
)

// memRepo is an in-memory Repository for generator and gate tests.
type memRepo struct {
	suggestions map[uuid.UUID]*Suggestion
}

func newMemRepo() *memRepo {
	return &memRepo{suggestions: map[uuid.UUID]*Suggestion{}}
}

func (m *memRepo) GetByID(_ context.Context, id uuid.UUID) (*Suggestion, error) {
	s, ok := m.suggestions[id]
	if !ok {
		return nil, fmt.Errorf("suggestion %s: %w", id, soerrors.ErrNotFound)
	}
	cp := *s
	return &cp, nil
}

func (m *memRepo) GetPending(_ context.Context, entityID uuid.UUID, field string) (*Suggestion, error) {
	for _, s := range m.suggestions {
		if s.EntityID == entityID && s.Field == field && s.Status == StatusPending {
			cp := *s
			return &cp, nil
		}
	}
	return nil, soerrors.ErrNotFound
}

func (m *memRepo) ListByStatus(_ context.Context, status Status, _ int) ([]Suggestion, error) {
	var out []Suggestion
	for _, s := range m.suggestions {
		if s.Status == status {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memRepo) ListResolvedSince(_ context.Context, since time.Time) ([]Suggestion, error) {
	var out []Suggestion
	for _, s := range m.suggestions {
		if s.ResolvedAt != nil && !s.ResolvedAt.Before(since) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memRepo) Create(_ context.Context, s *Suggestion) error {
	if s.Status == "" {
		s.Status = StatusPending
	}
	if err := s.Validate(); err != nil {
		return err
	}
	for _, existing := range m.suggestions {
		if existing.EntityID == s.EntityID && existing.Field == s.Field && existing.Status == StatusPending {
			return soerrors.ErrConflict
		}
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.CreatedAt = time.Now()
	s.UpdatedAt = s.CreatedAt
	cp := *s
	m.suggestions[s.ID] = &cp
	return nil
}

func (m *memRepo) MarkStale(ctx context.Context, id uuid.UUID) error {
	return m.Resolve(ctx, id, StatusStale, "", "")
}

func (m *memRepo) Resolve(_ context.Context, id uuid.UUID, status Status, note, resolvedBy string) error {
	s, ok := m.suggestions[id]
	if !ok {
		return fmt.Errorf("suggestion %s: %w", id, soerrors.ErrNotFound)
	}
	if s.Status != StatusPending {
		return fmt.Errorf("suggestion %s is not pending: %w", id, soerrors.ErrInvalidState)
	}
	now := time.Now()
	s.Status = status
	s.Note = note
	s.ResolvedBy = resolvedBy
	s.ResolvedAt = &now
	s.UpdatedAt = now
	return nil
}

func (m *memRepo) pendingCount(entityID uuid.UUID, field string) int {
	n := 0
	for _, s := range m.suggestions {
		if s.EntityID == entityID && s.Field == field && s.Status == StatusPending {
			n++
		}
	}
	return n
}

func newTestGenerator(repo Repository) *Generator {
	return NewGenerator(DefaultRules(), repo, 0, logging.NewNopLogger())
}

func statusMsg(body string) *email.Email {
	return &email.Email{
		ID:      uuid.New(),
		Sender:  "lena@fjordline.no",
		Subject: "Project update",
		Body:    body,
	}
}

func candidateFor(e *entity.Entity, confidence float64) match.Candidate {
	return match.Candidate{EntityID: e.ID, EntityType: e.Type, Confidence: confidence}
}

func TestGenerateStatusSuggestion(t *testing.T) {
	repo := newMemRepo()
	gen := newTestGenerator(repo)

	e := testProject()
	e.Fields = map[string]entity.FieldValue{
		"status": {Kind: entity.FieldKindEnum, Text: "won"},
	}

	created, err := gen.Generate(context.Background(),
		statusMsg("great news, the kickoff is set for monday"),
		candidateFor(e, 0.9), e)
	require.NoError(t, err)
	require.Len(t, created, 1)

	s := created[0]
	assert.Equal(t, "status", s.Field)
	assert.Equal(t, "won", s.CurrentValue)
	assert.Equal(t, "active", s.ProposedValue)
	assert.InDelta(t, 0.9*0.8, s.Confidence, 1e-9)
	assert.Equal(t, StatusPending, s.Status)
}

func TestGenerateBelowFloorDoesNothing(t *testing.T) {
	repo := newMemRepo()
	gen := newTestGenerator(repo)

	e := testProject()
	created, err := gen.Generate(context.Background(),
		statusMsg("kickoff monday"), candidateFor(e, 0.59), e)
	require.NoError(t, err)
	assert.Empty(t, created)
	assert.Empty(t, repo.suggestions)
}

func TestGenerateNoChangeNoSuggestion(t *testing.T) {
	repo := newMemRepo()
	gen := newTestGenerator(repo)

	e := testProject()
	e.Fields = map[string]entity.FieldValue{
		"status": {Kind: entity.FieldKindEnum, Text: "active"},
	}

	created, err := gen.Generate(context.Background(),
		statusMsg("kickoff monday"), candidateFor(e, 0.9), e)
	require.NoError(t, err)
	assert.Empty(t, created)
}

func TestGenerateSupersedesPending(t *testing.T) {
	repo := newMemRepo()
	gen := newTestGenerator(repo)

	e := testProject()
	e.Fields = map[string]entity.FieldValue{
		"status": {Kind: entity.FieldKindEnum, Text: "won"},
	}

	first, err := gen.Generate(context.Background(),
		statusMsg("kickoff monday"), candidateFor(e, 0.9), e)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// A later email implies a different status; the old pending suggestion
	// goes stale, the new one takes its place.
	second, err := gen.Generate(context.Background(),
		statusMsg("the client put everything on hold"), candidateFor(e, 0.9), e)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "on_hold", second[0].ProposedValue)

	old, err := repo.GetByID(context.Background(), first[0].ID)
	require.NoError(t, err)
	assert.Equal(t, StatusStale, old.Status)

	assert.Equal(t, 1, repo.pendingCount(e.ID, "status"))
}

func TestGenerateSameProposalAbsorbed(t *testing.T) {
	repo := newMemRepo()
	gen := newTestGenerator(repo)

	e := testProject()
	e.Fields = map[string]entity.FieldValue{
		"status": {Kind: entity.FieldKindEnum, Text: "won"},
	}

	first, err := gen.Generate(context.Background(),
		statusMsg("kickoff monday"), candidateFor(e, 0.9), e)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := gen.Generate(context.Background(),
		statusMsg("reminder: kickoff is monday"), candidateFor(e, 0.95), e)
	require.NoError(t, err)
	assert.Empty(t, second, "an identical pending proposal absorbs the new one")

	old, err := repo.GetByID(context.Background(), first[0].ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, old.Status)
	assert.Equal(t, 1, repo.pendingCount(e.ID, "status"))
}

func TestGenerateMultipleFields(t *testing.T) {
	repo := newMemRepo()
	gen := newTestGenerator(repo)

	e := testProject()
	e.Fields = map[string]entity.FieldValue{
		"status": {Kind: entity.FieldKindEnum, Text: "won"},
	}

	created, err := gen.Generate(context.Background(),
		statusMsg("kickoff confirmed, agreed fee is NOK 120,000"),
		candidateFor(e, 0.9), e)
	require.NoError(t, err)
	require.Len(t, created, 2)

	// Deterministic field order: fee before status.
	assert.Equal(t, "fee", created[0].Field)
	assert.Equal(t, "120000", created[0].ProposedValue)
	assert.Equal(t, "status", created[1].Field)
	assert.Equal(t, "active", created[1].ProposedValue)
}
