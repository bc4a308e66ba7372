package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		stage string
		want  ErrorCode
	}{
		{"nil", nil, "match", ""},
		{"cancelled", context.Canceled, "match", ErrCodeContextCancelled},
		{"deadline", context.DeadlineExceeded, "suggest", ErrCodeContextCancelled},
		{"store unavailable", fmt.Errorf("acquire: %w", ErrStoreUnavailable), "link", ErrCodeStoreUnreachable},
		{"conflict", fmt.Errorf("upsert: %w", ErrConflict), "link", ErrCodeContention},
		{"not found", fmt.Errorf("entity: %w", ErrNotFound), "suggest", ErrCodeEntityNotVisible},
		{"deadlock text", errors.New("ERROR: deadlock detected"), "review", ErrCodeContention},
		{"serialize text", errors.New("could not serialize access"), "review", ErrCodeContention},
		{"conn refused", errors.New("dial tcp: connection refused"), "match", ErrCodeStoreUnreachable},
		{"unknown", errors.New("boom"), "match", ErrCodeProcessing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pe := Classify(tt.err, tt.stage)
			if tt.err == nil {
				if pe != nil {
					t.Fatalf("Classify(nil) = %v, want nil", pe)
				}
				return
			}
			if pe.Code != tt.want {
				t.Errorf("Classify(%v).Code = %s, want %s", tt.err, pe.Code, tt.want)
			}
			if pe.Stage != tt.stage {
				t.Errorf("stage = %q, want %q", pe.Stage, tt.stage)
			}
			if !errors.Is(pe, tt.err) && pe.Cause != tt.err {
				t.Errorf("cause not preserved: %v", pe.Cause)
			}
		})
	}
}

func TestClassifyPreservesProcessingError(t *testing.T) {
	orig := NewProcessingError(ErrCodeEmptyNote, "review", "note required", ErrValidation)
	got := Classify(fmt.Errorf("deny: %w", orig), "other")
	if got.Code != ErrCodeEmptyNote {
		t.Errorf("code = %s, want %s", got.Code, ErrCodeEmptyNote)
	}
}

func TestRetryable(t *testing.T) {
	retryable := []ErrorCode{ErrCodeContention, ErrCodeStoreUnreachable, ErrCodeEntityNotVisible}
	terminal := []ErrorCode{
		ErrCodeContextCancelled, ErrCodeMalformedEmail, ErrCodeMissingIdentity,
		ErrCodeInvalidPattern, ErrCodeEmptyNote, ErrCodeStaleSuggestion, ErrCodeProcessing,
	}

	for _, c := range retryable {
		if !c.Retryable() {
			t.Errorf("%s should be retryable", c)
		}
	}
	for _, c := range terminal {
		if c.Retryable() {
			t.Errorf("%s should not be retryable", c)
		}
	}
	if ErrorCode("bogus").Retryable() {
		t.Error("unknown code should not be retryable")
	}
}

func TestRegistryCoversAllCodes(t *testing.T) {
	codes := []ErrorCode{
		ErrCodeContention, ErrCodeStoreUnreachable, ErrCodeEntityNotVisible,
		ErrCodeContextCancelled, ErrCodeMalformedEmail, ErrCodeMissingIdentity,
		ErrCodeInvalidPattern, ErrCodeEmptyNote, ErrCodeStaleSuggestion, ErrCodeProcessing,
	}
	for _, c := range codes {
		info, ok := CodeRegistry[c]
		if !ok {
			t.Errorf("code %s missing from registry", c)
			continue
		}
		if info.Description == "" {
			t.Errorf("code %s has empty description", c)
		}
	}
}

func TestProcessingErrorFormat(t *testing.T) {
	withStage := NewProcessingError(ErrCodeMalformedEmail, "match", "empty body", nil)
	if withStage.Error() != "malformed_email: match: empty body" {
		t.Errorf("unexpected format: %q", withStage.Error())
	}

	noStage := NewProcessingError(ErrCodeProcessing, "", "boom", nil)
	if noStage.Error() != "processing_error: boom" {
		t.Errorf("unexpected format: %q", noStage.Error())
	}
}
