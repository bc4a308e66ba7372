package audit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	soerrors "github.com/marloweandco/studio-ops/pkg/errors"
)

func TestSourceSuggestionRoundTrip(t *testing.T) {
	id := uuid.New()
	source := SourceSuggestion(id)

	got, ok := SuggestionID(source)
	require.True(t, ok)
	assert.Equal(t, id, got)

	_, ok = SuggestionID(SourceManual)
	assert.False(t, ok)
	_, ok = SuggestionID("suggestion:not-a-uuid")
	assert.False(t, ok)
}

func TestRecordValidate(t *testing.T) {
	valid := Record{
		EntityID: uuid.New(),
		Field:    "status",
		OldValue: "won",
		NewValue: "active",
		Actor:    "mari",
		Source:   SourceManual,
	}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Record)
	}{
		{"missing entity", func(r *Record) { r.EntityID = uuid.Nil }},
		{"missing field", func(r *Record) { r.Field = "" }},
		{"missing actor", func(r *Record) { r.Actor = "" }},
		{"missing source", func(r *Record) { r.Source = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.mutate(&r)
			assert.True(t, soerrors.IsValidation(r.Validate()))
		})
	}

	t.Run("initial set has empty old value", func(t *testing.T) {
		r := valid
		r.OldValue = ""
		assert.NoError(t, r.Validate())
	})
}

func historyFor(values ...string) []Record {
	var records []Record
	prev := ""
	for _, v := range values {
		records = append(records, Record{
			ID:       uuid.New(),
			EntityID: uuid.Nil,
			Field:    "status",
			OldValue: prev,
			NewValue: v,
		})
		prev = v
	}
	return records
}

func TestReplay(t *testing.T) {
	assert.Equal(t, "", Replay(nil))
	assert.Equal(t, "archived", Replay(historyFor("draft", "won", "active", "archived")))
}

func TestReplayConsistent(t *testing.T) {
	assert.True(t, ReplayConsistent(nil))
	assert.True(t, ReplayConsistent(historyFor("draft", "won", "active")))

	broken := historyFor("draft", "won")
	broken[1].OldValue = "sent" // does not chain onto "draft"
	assert.False(t, ReplayConsistent(broken))
}

// memAudit backs VerifyField without a database.
type memAudit struct {
	records []Record
}

func (m *memAudit) Record(_ context.Context, entityID uuid.UUID, field, oldValue, newValue, actor, source string) error {
	m.records = append(m.records, Record{
		ID:         uuid.New(),
		EntityID:   entityID,
		Field:      field,
		OldValue:   oldValue,
		NewValue:   newValue,
		Actor:      actor,
		Source:     source,
		RecordedAt: time.Now(),
	})
	return nil
}

func (m *memAudit) History(_ context.Context, entityID uuid.UUID, filter Filter) ([]Record, error) {
	var out []Record
	for _, r := range m.records {
		if r.EntityID != entityID {
			continue
		}
		if filter.Field != "" && r.Field != filter.Field {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func TestVerifyField(t *testing.T) {
	repo := &memAudit{}
	entityID := uuid.New()
	ctx := context.Background()

	require.NoError(t, repo.Record(ctx, entityID, "status", "", "won", "import", SourceImport))
	require.NoError(t, repo.Record(ctx, entityID, "status", "won", "active", "mari", SourceManual))

	assert.NoError(t, VerifyField(ctx, repo, entityID, "status", "active"))
	assert.Error(t, VerifyField(ctx, repo, entityID, "status", "archived"))
}
