package audit

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Replay folds a field's history into its resulting value. The trail is the
// source of provenance, not of truth: the result must always equal the live
// entity value, and VerifyField exists to check exactly that.
func Replay(records []Record) string {
	value := ""
	for _, rec := range records {
		value = rec.NewValue
	}
	return value
}

// ReplayConsistent reports whether each record's old value chains onto the
// previous record's new value. A false result means a mutation bypassed the
// audited write path.
func ReplayConsistent(records []Record) bool {
	value := ""
	for _, rec := range records {
		if rec.OldValue != value {
			return false
		}
		value = rec.NewValue
	}
	return true
}

// VerifyField replays one field's full history and compares it with the
// live value.
func VerifyField(ctx context.Context, repo Repository, entityID uuid.UUID, field, liveValue string) error {
	records, err := repo.History(ctx, entityID, Filter{Field: field})
	if err != nil {
		return err
	}
	if !ReplayConsistent(records) {
		return fmt.Errorf("audit history for entity %s field %q does not chain", entityID, field)
	}
	if got := Replay(records); got != liveValue {
		return fmt.Errorf("audit replay for entity %s field %q yields %q, live value is %q",
			entityID, field, got, liveValue)
	}
	return nil
}
