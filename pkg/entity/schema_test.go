package entity

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	soerrors "github.com/marloweandco/studio-ops/pkg/errors"
)

func TestParseField(t *testing.T) {
	tests := []struct {
		name    string
		typ     Type
		field   string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "proposal status valid", typ: TypeProposal, field: "status", raw: "won", want: "won"},
		{name: "enum is case-insensitive", typ: TypeProposal, field: "status", raw: "Won", want: "won"},
		{name: "enum rejects unknown value", typ: TypeProposal, field: "status", raw: "maybe", wantErr: true},
		{name: "project status uses project enum", typ: TypeProject, field: "status", raw: "on_hold", want: "on_hold"},
		{name: "proposal enum not valid for project", typ: TypeProject, field: "status", raw: "shortlisted", wantErr: true},
		{name: "number strips thousands separators", typ: TypeProject, field: "fee", raw: "120,000", want: "120000"},
		{name: "number keeps decimals", typ: TypeProposal, field: "value", raw: "4500.50", want: "4500.5"},
		{name: "number rejects garbage", typ: TypeProject, field: "fee", raw: "a lot", wantErr: true},
		{name: "text trims whitespace", typ: TypeContact, field: "company", raw: "  Nordisk Form  ", want: "Nordisk Form"},
		{name: "unknown field", typ: TypeContact, field: "fee", raw: "100", wantErr: true},
		{name: "unknown type", typ: Type("invoice"), field: "status", raw: "won", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fv, err := ParseField(tt.typ, tt.field, tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, soerrors.ErrValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, fv.String())
		})
	}
}

func TestParseFieldNumberValue(t *testing.T) {
	fv, err := ParseField(TypeProject, "fee", "85,000")
	require.NoError(t, err)
	assert.Equal(t, FieldKindNumber, fv.Kind)
	assert.Equal(t, 85000.0, fv.Number)
}

func TestValidateFields(t *testing.T) {
	t.Run("valid set", func(t *testing.T) {
		fields, err := ValidateFields(TypeProposal, map[string]string{
			"status": "sent",
			"value":  "12,500",
		})
		require.NoError(t, err)
		assert.Equal(t, "sent", fields["status"].String())
		assert.Equal(t, "12500", fields["value"].String())
	})

	t.Run("one bad field fails the set", func(t *testing.T) {
		_, err := ValidateFields(TypeProposal, map[string]string{
			"status": "sent",
			"value":  "n/a",
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, soerrors.ErrValidation))
	})
}

func TestFieldWireRoundTrip(t *testing.T) {
	fields := map[string]FieldValue{
		"status":  {Kind: FieldKindEnum, Text: "active"},
		"fee":     {Kind: FieldKindNumber, Text: "120000", Number: 120000},
		"country": {Kind: FieldKindText, Text: "Norway"},
	}

	encoded := encodeFields(fields)
	require.Len(t, encoded, 3)

	raw, err := json.Marshal(encoded)
	require.NoError(t, err)

	decoded, err := decodeFields(raw)
	require.NoError(t, err)
	assert.Equal(t, fields, decoded)
}

func TestDecodeFieldsRebuildsNumberText(t *testing.T) {
	// Stored number fields carry only the numeric value; the canonical
	// text must come back on decode or every loaded fee reads as "".
	raw := []byte(`{"fee":{"kind":"number","number":120000},"value":{"kind":"number","number":1250.5}}`)

	decoded, err := decodeFields(raw)
	require.NoError(t, err)

	assert.Equal(t, "120000", decoded["fee"].String())
	assert.Equal(t, float64(120000), decoded["fee"].Number)
	assert.Equal(t, "1250.5", decoded["value"].String())
}

func TestDecodeFieldsEmpty(t *testing.T) {
	fields, err := decodeFields(nil)
	require.NoError(t, err)
	assert.Empty(t, fields)
}
