package suggest

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marloweandco/studio-ops/pkg/entity"
	"github.com/marloweandco/studio-ops/pkg/match"
)

func testProject() *entity.Entity {
	return &entity.Entity{ID: uuid.New(), Type: entity.TypeProject, Name: "Harbour Pavilion"}
}

func testProposal() *entity.Entity {
	return &entity.Entity{ID: uuid.New(), Type: entity.TypeProposal, Name: "Bakklandet Housing"}
}

func TestStatusKeywordRule(t *testing.T) {
	rule := NewStatusKeywordRule()

	tests := []struct {
		name string
		e    *entity.Entity
		text string
		want string // "" means no extraction
	}{
		{name: "project kickoff", e: testProject(), text: "the kickoff went well", want: "active"},
		{name: "project on hold", e: testProject(), text: "client put the work on hold", want: "on_hold"},
		{name: "project completed", e: testProject(), text: "handover complete as of friday", want: "completed"},
		{name: "proposal won", e: testProposal(), text: "we are pleased to inform you", want: "won"},
		{name: "proposal lost", e: testProposal(), text: "we regret to inform you", want: "lost"},
		{name: "first cue wins", e: testProposal(), text: "regret to inform; you were shortlisted earlier", want: "lost"},
		{name: "no cue", e: testProject(), text: "see attached drawings", want: ""},
		{name: "contacts have no status", e: &entity.Entity{ID: uuid.New(), Type: entity.TypeContact}, text: "kickoff", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rule.Extract(match.Fold(tt.text), tt.e)
			if tt.want == "" {
				assert.Empty(t, got)
				return
			}
			require.Len(t, got, 1)
			assert.Equal(t, "status", got[0].Field)
			assert.Equal(t, tt.want, got[0].Value)
			assert.Equal(t, 0.8, got[0].Confidence)
		})
	}
}

func TestMonetaryRule(t *testing.T) {
	rule := NewMonetaryRule()

	tests := []struct {
		name      string
		e         *entity.Entity
		text      string
		wantField string
		wantValue string
	}{
		{
			name:      "project fee with thousands separator",
			e:         testProject(),
			text:      "the agreed fee is NOK 120,000 excl vat",
			wantField: "fee",
			wantValue: "120000",
		},
		{
			name:      "proposal value plain number",
			e:         testProposal(),
			text:      "total value 85000 for phase one",
			wantField: "value",
			wantValue: "85000",
		},
		{
			name:      "budget cue",
			e:         testProject(),
			text:      "budget approved at 45,500.50",
			wantField: "fee",
			wantValue: "45500.5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rule.Extract(match.Fold(tt.text), tt.e)
			require.Len(t, got, 1)
			assert.Equal(t, tt.wantField, got[0].Field)
			assert.Equal(t, tt.wantValue, got[0].Value)
			assert.Equal(t, 0.7, got[0].Confidence)
		})
	}

	t.Run("no amount near cue", func(t *testing.T) {
		assert.Empty(t, rule.Extract("the fee will be discussed later", testProject()))
	})

	t.Run("amount without cue word", func(t *testing.T) {
		assert.Empty(t, rule.Extract("invoice 120,000 attached", testProject()))
	})

	t.Run("contacts have no monetary field", func(t *testing.T) {
		e := &entity.Entity{ID: uuid.New(), Type: entity.TypeContact}
		assert.Empty(t, rule.Extract("fee 120,000", e))
	})
}
