package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorCode classifies a processing failure for retry and reporting decisions.
type ErrorCode string

const (
	// ErrCodeContention is transient write contention in the store.
	ErrCodeContention ErrorCode = "db_contention"
	// ErrCodeStoreUnreachable means the store cannot be reached. The batch halts.
	ErrCodeStoreUnreachable ErrorCode = "store_unreachable"
	// ErrCodeEntityNotVisible means an upstream entity is not yet visible.
	ErrCodeEntityNotVisible ErrorCode = "entity_not_visible"
	// ErrCodeContextCancelled means the operation was cancelled by caller or signal.
	ErrCodeContextCancelled ErrorCode = "context_cancelled"
	// ErrCodeMalformedEmail means an email had no usable sender/subject/body.
	ErrCodeMalformedEmail ErrorCode = "malformed_email"
	// ErrCodeMissingIdentity means an entity lacks the identity signals matching needs.
	ErrCodeMissingIdentity ErrorCode = "missing_identity_signals"
	// ErrCodeInvalidPattern means a pattern expression failed to compile.
	ErrCodeInvalidPattern ErrorCode = "invalid_pattern"
	// ErrCodeEmptyNote means a denial was submitted without a reviewer note.
	ErrCodeEmptyNote ErrorCode = "empty_note"
	// ErrCodeStaleSuggestion means the entity diverged from the value captured
	// at suggestion time. Expected concurrency outcome, never retried.
	ErrCodeStaleSuggestion ErrorCode = "stale_suggestion"
	// ErrCodeProcessing is the fallback for unclassified failures.
	ErrCodeProcessing ErrorCode = "processing_error"
)

// CodeInfo contains metadata about an error code.
type CodeInfo struct {
	Code        ErrorCode
	Retryable   bool
	Description string
}

// CodeRegistry maps error codes to their metadata. Retryable codes are safe
// to re-run with the same inputs; match and approve are idempotent.
var CodeRegistry = map[ErrorCode]CodeInfo{
	ErrCodeContention: {
		Code:        ErrCodeContention,
		Retryable:   true,
		Description: "Write contention in the store; retry with backoff",
	},
	ErrCodeStoreUnreachable: {
		Code:        ErrCodeStoreUnreachable,
		Retryable:   true,
		Description: "Store unreachable; batch halted, resume from last committed email",
	},
	ErrCodeEntityNotVisible: {
		Code:        ErrCodeEntityNotVisible,
		Retryable:   true,
		Description: "Referenced entity not yet imported; retry after next entity sync",
	},
	ErrCodeContextCancelled: {
		Code:        ErrCodeContextCancelled,
		Retryable:   false,
		Description: "Operation cancelled by user or shutdown",
	},
	ErrCodeMalformedEmail: {
		Code:        ErrCodeMalformedEmail,
		Retryable:   false,
		Description: "Email missing usable content; skipped, does not abort the batch",
	},
	ErrCodeMissingIdentity: {
		Code:        ErrCodeMissingIdentity,
		Retryable:   false,
		Description: "Entity has no identity signals; skipped with a warning",
	},
	ErrCodeInvalidPattern: {
		Code:        ErrCodeInvalidPattern,
		Retryable:   false,
		Description: "Pattern expression does not compile; rejected at write time",
	},
	ErrCodeEmptyNote: {
		Code:        ErrCodeEmptyNote,
		Retryable:   false,
		Description: "Denial requires a non-empty reviewer note",
	},
	ErrCodeStaleSuggestion: {
		Code:        ErrCodeStaleSuggestion,
		Retryable:   false,
		Description: "Entity value diverged since suggestion was generated; needs re-review",
	},
	ErrCodeProcessing: {
		Code:        ErrCodeProcessing,
		Retryable:   false,
		Description: "Unclassified processing failure",
	},
}

// Retryable reports whether the code is safe to retry with the same inputs.
func (c ErrorCode) Retryable() bool {
	info, ok := CodeRegistry[c]
	return ok && info.Retryable
}

// ProcessingError is a classified error raised while processing one email or
// one review action. Stage names the pipeline step that failed.
type ProcessingError struct {
	Code    ErrorCode
	Stage   string
	Message string
	Cause   error
}

func (e *ProcessingError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// NewProcessingError builds a ProcessingError with an explicit code.
func NewProcessingError(code ErrorCode, stage, message string, cause error) *ProcessingError {
	return &ProcessingError{Code: code, Stage: stage, Message: message, Cause: cause}
}

// Classify inspects an error and returns a *ProcessingError with the
// appropriate code. Unrecognized errors classify as ErrCodeProcessing.
func Classify(err error, stage string) *ProcessingError {
	if err == nil {
		return nil
	}

	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe
	}

	out := &ProcessingError{Stage: stage, Cause: err, Message: err.Error()}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		out.Code = ErrCodeContextCancelled
	case errors.Is(err, ErrStoreUnavailable):
		out.Code = ErrCodeStoreUnreachable
	case errors.Is(err, ErrConflict):
		out.Code = ErrCodeContention
	case errors.Is(err, ErrNotFound):
		out.Code = ErrCodeEntityNotVisible
	case errors.Is(err, ErrValidation):
		out.Code = ErrCodeProcessing
	default:
		lower := strings.ToLower(err.Error())
		switch {
		case strings.Contains(lower, "deadlock") || strings.Contains(lower, "could not serialize"):
			out.Code = ErrCodeContention
		case strings.Contains(lower, "connection refused") || strings.Contains(lower, "broken pipe"):
			out.Code = ErrCodeStoreUnreachable
		default:
			out.Code = ErrCodeProcessing
		}
	}

	return out
}
