package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypeIsValid(t *testing.T) {
	assert.True(t, TypeProposal.IsValid())
	assert.True(t, TypeProject.IsValid())
	assert.True(t, TypeContact.IsValid())
	assert.False(t, Type("invoice").IsValid())
	assert.False(t, Type("").IsValid())
}

func TestHasIdentitySignals(t *testing.T) {
	t.Run("no signals", func(t *testing.T) {
		e := &Entity{Type: TypeProject}
		assert.False(t, e.HasIdentitySignals())
	})

	t.Run("short code alone is enough", func(t *testing.T) {
		e := &Entity{Type: TypeProject, ShortCode: "BK-033"}
		assert.True(t, e.HasIdentitySignals())
	})

	t.Run("contact email alone is enough", func(t *testing.T) {
		e := &Entity{Type: TypeContact, ContactEmails: []string{"lena@fjordline.no"}}
		assert.True(t, e.HasIdentitySignals())
	})
}

func TestKnowsAddress(t *testing.T) {
	e := &Entity{ContactEmails: []string{"lena@fjordline.no", "post@fjordline.no"}}

	assert.True(t, e.KnowsAddress("lena@fjordline.no"))
	assert.True(t, e.KnowsAddress("Lena@Fjordline.NO"))
	assert.True(t, e.KnowsAddress("  lena@fjordline.no "))
	assert.False(t, e.KnowsAddress("other@fjordline.no"))
	assert.False(t, e.KnowsAddress(""))
}

func TestKnowsDomain(t *testing.T) {
	e := &Entity{Domains: []string{"fjordline.no"}}

	assert.True(t, e.KnowsDomain("fjordline.no"))
	assert.True(t, e.KnowsDomain("FJORDLINE.NO"))
	assert.False(t, e.KnowsDomain("fjordline.com"))
	assert.False(t, e.KnowsDomain(""))
}

func TestFieldString(t *testing.T) {
	e := &Entity{
		Fields: map[string]FieldValue{
			"status": {Kind: FieldKindEnum, Text: "active"},
		},
	}

	assert.Equal(t, "active", e.FieldString("status"))
	assert.Equal(t, "", e.FieldString("fee"))
}
