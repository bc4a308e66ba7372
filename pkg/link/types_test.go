package link

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	soerrors "github.com/marloweandco/studio-ops/pkg/errors"
)

func validAutoLink() Link {
	return Link{
		ID:         uuid.New(),
		EmailID:    uuid.New(),
		EntityID:   uuid.New(),
		Confidence: 0.85,
		Method:     MethodHeuristic,
	}
}

func TestLinkValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Link)
		wantErr bool
	}{
		{name: "valid heuristic", mutate: func(l *Link) {}},
		{name: "missing email", mutate: func(l *Link) { l.EmailID = uuid.Nil }, wantErr: true},
		{name: "missing entity", mutate: func(l *Link) { l.EntityID = uuid.Nil }, wantErr: true},
		{name: "unknown method", mutate: func(l *Link) { l.Method = "guessed" }, wantErr: true},
		{name: "confidence above 1", mutate: func(l *Link) { l.Confidence = 1.2 }, wantErr: true},
		{name: "negative confidence", mutate: func(l *Link) { l.Confidence = -0.1 }, wantErr: true},
		{
			name: "auto link at 1.0 rejected",
			mutate: func(l *Link) {
				l.Confidence = 1.0
			},
			wantErr: true,
		},
		{
			name: "manual below 1.0 rejected",
			mutate: func(l *Link) {
				l.Method = MethodManual
				l.Confidence = 0.9
			},
			wantErr: true,
		},
		{
			name: "manual at 1.0 valid",
			mutate: func(l *Link) {
				l.Method = MethodManual
				l.Confidence = 1.0
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := validAutoLink()
			tt.mutate(&l)
			err := l.Validate()
			if tt.wantErr {
				assert.True(t, soerrors.IsValidation(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestPatternIDs(t *testing.T) {
	p1, p2 := uuid.New(), uuid.New()
	l := validAutoLink()
	l.Evidence = []Evidence{
		{Category: "short_code", Weight: 0.9},
		{Category: "pattern", Weight: 0.6, PatternID: p1},
		{Category: "pattern", Weight: 0.5, PatternID: p2},
		{Category: "pattern", Weight: 0.6, PatternID: p1},
	}

	assert.Equal(t, []uuid.UUID{p1, p2}, l.PatternIDs())

	l.Evidence = nil
	assert.Empty(t, l.PatternIDs())
}

func TestEvidenceRoundTrip(t *testing.T) {
	evidence := []Evidence{
		{Category: "short_code", Detail: "BK-033", Weight: 0.9},
		{Category: "pattern", Detail: "keyword", Weight: 0.6, PatternID: uuid.New()},
	}

	raw, err := encodeEvidence(evidence)
	require.NoError(t, err)

	decoded, err := decodeEvidence(raw)
	require.NoError(t, err)
	assert.Equal(t, evidence, decoded)
}

func TestDecodeEvidenceEmpty(t *testing.T) {
	decoded, err := decodeEvidence(nil)
	require.NoError(t, err)
	assert.Nil(t, decoded)
}
