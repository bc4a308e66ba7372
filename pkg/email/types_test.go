package email

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	soerrors "github.com/marloweandco/studio-ops/pkg/errors"
)

func TestEmailValidate(t *testing.T) {
	tests := []struct {
		name    string
		sender  string
		wantErr bool
	}{
		{name: "valid address", sender: "lena@fjordline.no"},
		{name: "empty sender", sender: "", wantErr: true},
		{name: "whitespace only", sender: "   ", wantErr: true},
		{name: "no at sign", sender: "lena.fjordline.no", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Email{Sender: tt.sender, Subject: "Re: BK-033"}
			err := e.Validate()
			if tt.wantErr {
				assert.True(t, soerrors.IsValidation(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestEmailProcessed(t *testing.T) {
	e := &Email{}
	assert.False(t, e.Processed())

	now := time.Now()
	e.MatchedAt = &now
	assert.True(t, e.Processed())
}
