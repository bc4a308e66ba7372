// Package email provides access to the ingested message store the linking
// core reads from. Messages arrive through external ingestion; this package
// only reads them and records when linking has processed each one.
package email

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	soerrors "github.com/marloweandco/studio-ops/pkg/errors"
)

// Email is one ingested message.
type Email struct {
	ID         uuid.UUID
	Sender     string // RFC 5321 address, as ingested
	Subject    string
	Body       string // plain text
	ReceivedAt time.Time
	MatchedAt  *time.Time // set once linking has processed the message
}

// Validate checks the minimum shape linking needs. A message without a
// parseable sender address cannot produce identity signals.
func (e *Email) Validate() error {
	sender := strings.TrimSpace(e.Sender)
	if sender == "" || !strings.Contains(sender, "@") {
		return fmt.Errorf("%w: message has no parseable sender address", soerrors.ErrValidation)
	}
	return nil
}

// Processed reports whether linking has already handled this message.
func (e *Email) Processed() bool {
	return e.MatchedAt != nil
}
