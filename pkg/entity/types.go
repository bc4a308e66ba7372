// Package entity provides the catalog of business entities the linking core
// matches emails against: proposals, projects, and contacts. Entities are
// created by external import and are read-only to the matcher; field values
// change only through the review gate or the audited manual-edit path.
package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Type identifies the kind of business entity.
type Type string

const (
	TypeProposal Type = "proposal"
	TypeProject  Type = "project"
	TypeContact  Type = "contact"
)

func (t Type) String() string { return string(t) }

// IsValid reports whether the type is one of the known entity types.
func (t Type) IsValid() bool {
	switch t {
	case TypeProposal, TypeProject, TypeContact:
		return true
	}
	return false
}

// Entity is one catalog record with its identity signals and mutable fields.
//
// Identity signals (short code, contact emails, domains, aliases) drive
// matching; Fields holds the canonical values subject to change suggestions
// (status, fee, country, ...), validated against the per-type schema.
type Entity struct {
	ID   uuid.UUID
	Type Type

	// Identity signals.
	ShortCode     string   // e.g. "BK-033"
	Name          string   // project/proposal title or contact full name
	ClientName    string   // client the work is for (empty for contacts)
	Domains       []string // known email domains, lowercase
	ContactEmails []string // known addresses, lowercase
	Aliases       []string // alternate names used in correspondence

	// Mutable canonical fields, keyed by field name.
	Fields map[string]FieldValue

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasIdentitySignals reports whether the entity carries at least one signal
// the matcher can use. Entities without any are skipped with a warning, not
// treated as fatal.
func (e *Entity) HasIdentitySignals() bool {
	return e.ShortCode != "" ||
		e.Name != "" ||
		len(e.Domains) > 0 ||
		len(e.ContactEmails) > 0 ||
		len(e.Aliases) > 0
}

// KnowsAddress reports whether addr is one of the entity's known contact
// addresses. Comparison is case-insensitive.
func (e *Entity) KnowsAddress(addr string) bool {
	addr = strings.ToLower(strings.TrimSpace(addr))
	if addr == "" {
		return false
	}
	for _, known := range e.ContactEmails {
		if strings.ToLower(known) == addr {
			return true
		}
	}
	return false
}

// KnowsDomain reports whether domain is one of the entity's known email
// domains. Comparison is case-insensitive.
func (e *Entity) KnowsDomain(domain string) bool {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return false
	}
	for _, known := range e.Domains {
		if strings.ToLower(known) == domain {
			return true
		}
	}
	return false
}

// FieldString returns the canonical string form of a field value, or "" when
// the field is unset.
func (e *Entity) FieldString(field string) string {
	fv, ok := e.Fields[field]
	if !ok {
		return ""
	}
	return fv.String()
}
