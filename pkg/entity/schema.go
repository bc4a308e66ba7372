package entity

import (
	"fmt"
	"strconv"
	"strings"

	soerrors "github.com/marloweandco/studio-ops/pkg/errors"
)

// FieldKind is the value type of a mutable entity field.
type FieldKind string

const (
	FieldKindText   FieldKind = "text"
	FieldKindNumber FieldKind = "number"
	FieldKindEnum   FieldKind = "enum"
)

// FieldValue is a typed field value. Text always holds the canonical string
// form; Number is additionally set for number fields.
type FieldValue struct {
	Kind   FieldKind
	Text   string
	Number float64
}

// String returns the canonical string form of the value.
func (v FieldValue) String() string { return v.Text }

// FieldSpec describes one mutable field in a type's schema.
type FieldSpec struct {
	Kind FieldKind
	Enum []string // allowed values when Kind == FieldKindEnum
}

// Schema maps entity types to their mutable fields. Entities of different
// types carry different field sets; suggestion and audit code stays generic
// over field names while values remain validated here.
var Schema = map[Type]map[string]FieldSpec{
	TypeProposal: {
		"status":  {Kind: FieldKindEnum, Enum: []string{"draft", "sent", "shortlisted", "won", "lost", "withdrawn"}},
		"value":   {Kind: FieldKindNumber},
		"country": {Kind: FieldKindText},
	},
	TypeProject: {
		"status":  {Kind: FieldKindEnum, Enum: []string{"pitch", "won", "active", "on_hold", "completed", "archived"}},
		"fee":     {Kind: FieldKindNumber},
		"country": {Kind: FieldKindText},
	},
	TypeContact: {
		"company": {Kind: FieldKindText},
		"role":    {Kind: FieldKindText},
		"country": {Kind: FieldKindText},
	},
}

// FieldSpecFor returns the schema entry for (typ, field).
func FieldSpecFor(typ Type, field string) (FieldSpec, bool) {
	fields, ok := Schema[typ]
	if !ok {
		return FieldSpec{}, false
	}
	spec, ok := fields[field]
	return spec, ok
}

// ParseField validates a raw string against the schema for (typ, field) and
// returns the typed value in canonical form. Number values are normalized
// (no thousands separators, trimmed); enum values are lowercased.
func ParseField(typ Type, field, raw string) (FieldValue, error) {
	spec, ok := FieldSpecFor(typ, field)
	if !ok {
		return FieldValue{}, fmt.Errorf("%w: field %q is not defined for %s entities", soerrors.ErrValidation, field, typ)
	}

	raw = strings.TrimSpace(raw)

	switch spec.Kind {
	case FieldKindText:
		return FieldValue{Kind: FieldKindText, Text: raw}, nil

	case FieldKindNumber:
		cleaned := strings.ReplaceAll(raw, ",", "")
		n, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return FieldValue{}, fmt.Errorf("%w: field %q wants a number, got %q", soerrors.ErrValidation, field, raw)
		}
		return FieldValue{Kind: FieldKindNumber, Text: canonicalNumber(n), Number: n}, nil

	case FieldKindEnum:
		val := strings.ToLower(raw)
		for _, allowed := range spec.Enum {
			if val == allowed {
				return FieldValue{Kind: FieldKindEnum, Text: val}, nil
			}
		}
		return FieldValue{}, fmt.Errorf("%w: field %q does not allow value %q", soerrors.ErrValidation, field, raw)

	default:
		return FieldValue{}, fmt.Errorf("%w: unknown field kind %q", soerrors.ErrValidation, spec.Kind)
	}
}

// ValidateFields parses every field of an entity against its schema,
// returning the typed field map. Used when loading entities from the store.
func ValidateFields(typ Type, raw map[string]string) (map[string]FieldValue, error) {
	out := make(map[string]FieldValue, len(raw))
	for field, value := range raw {
		fv, err := ParseField(typ, field, value)
		if err != nil {
			return nil, err
		}
		out[field] = fv
	}
	return out, nil
}

// canonicalNumber renders a float in the canonical stored form: integers
// without a decimal point, everything else with the shortest exact rendering.
func canonicalNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}
