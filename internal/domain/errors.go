// Package domain holds the shared value types and error taxonomy of the
// conversion engine.
package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure for retry decisions and user-facing messaging.
type ErrorKind string

const (
	// ErrorKindUnreadableDocument marks corrupt or encrypted input. Fatal.
	ErrorKindUnreadableDocument ErrorKind = "unreadable_document"
	// ErrorKindUnsupportedFormatPair marks a conversion with no backend. Fatal.
	ErrorKindUnsupportedFormatPair ErrorKind = "unsupported_format_pair"
	// ErrorKindBackendTimeout marks a backend process exceeding its wall-clock limit. Retryable.
	ErrorKindBackendTimeout ErrorKind = "backend_timeout"
	// ErrorKindBackendCrashed marks a backend process exiting nonzero. Retryable.
	ErrorKindBackendCrashed ErrorKind = "backend_crashed"
	// ErrorKindStorageQuotaExceeded marks a tenant over its storage plan. Fatal.
	ErrorKindStorageQuotaExceeded ErrorKind = "storage_quota_exceeded"
	// ErrorKindModificationRegionMismatch marks stale extraction coordinates. Fatal.
	ErrorKindModificationRegionMismatch ErrorKind = "modification_region_mismatch"
	// ErrorKindInvalidInput marks requests the caller must fix. Fatal.
	ErrorKindInvalidInput ErrorKind = "invalid_input"
	// ErrorKindInternal marks unexpected failures. Retryable.
	ErrorKindInternal ErrorKind = "internal"
)

// Error is a typed failure carrying the kind used by the job state machine to
// decide retry-vs-fail.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is transient. The state machine never
// retries fatal kinds even when attempts remain.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case ErrorKindBackendTimeout, ErrorKindBackendCrashed, ErrorKindInternal:
		return true
	default:
		return false
	}
}

// NewError creates a typed error.
func NewError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Common constructors, one per taxonomy entry.

func UnreadableDocument(message string, err error) *Error {
	return NewError(ErrorKindUnreadableDocument, message, err)
}

func UnsupportedFormatPair(from, to string) *Error {
	return NewError(ErrorKindUnsupportedFormatPair, fmt.Sprintf("no backend converts %s to %s", from, to), nil)
}

func BackendTimeout(message string, err error) *Error {
	return NewError(ErrorKindBackendTimeout, message, err)
}

func BackendCrashed(message string, err error) *Error {
	return NewError(ErrorKindBackendCrashed, message, err)
}

func StorageQuotaExceeded(message string) *Error {
	return NewError(ErrorKindStorageQuotaExceeded, message, nil)
}

func ModificationRegionMismatch(message string) *Error {
	return NewError(ErrorKindModificationRegionMismatch, message, nil)
}

func InvalidInput(message string) *Error {
	return NewError(ErrorKindInvalidInput, message, nil)
}

// KindOf extracts the kind from an error chain, defaulting to internal for
// untyped errors.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ErrorKindInternal
}

// IsRetryable reports whether an error chain represents a transient failure.
// Untyped errors are treated as transient so infrastructure blips get retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Retryable()
	}
	return true
}
