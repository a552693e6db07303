package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Retryable_ByKind(t *testing.T) {
	retryable := []*Error{
		BackendTimeout("soffice timed out", nil),
		BackendCrashed("soffice exited 1", nil),
		NewError(ErrorKindInternal, "boom", nil),
	}
	for _, err := range retryable {
		assert.True(t, err.Retryable(), "kind %s should be retryable", err.Kind)
	}

	fatal := []*Error{
		UnreadableDocument("bad header", nil),
		UnsupportedFormatPair("png", "xlsx"),
		StorageQuotaExceeded("over quota"),
		ModificationRegionMismatch("stale box"),
		InvalidInput("missing field"),
	}
	for _, err := range fatal {
		assert.False(t, err.Retryable(), "kind %s should be fatal", err.Kind)
	}
}

func TestKindOf_UnwrapsThroughChain(t *testing.T) {
	inner := UnsupportedFormatPair("docx", "tiff")
	wrapped := fmt.Errorf("job failed: %w", inner)

	assert.Equal(t, ErrorKindUnsupportedFormatPair, KindOf(wrapped))
	assert.False(t, IsRetryable(wrapped))
}

func TestKindOf_UntypedDefaultsToInternal(t *testing.T) {
	err := errors.New("connection reset")

	assert.Equal(t, ErrorKindInternal, KindOf(err))
	assert.True(t, IsRetryable(err), "infrastructure errors should be retried")
}

func TestKindOf_Nil(t *testing.T) {
	assert.Equal(t, ErrorKind(""), KindOf(nil))
	assert.False(t, IsRetryable(nil))
}

func TestError_MessageIncludesKindAndCause(t *testing.T) {
	cause := errors.New("EOF")
	err := UnreadableDocument("parse xref", cause)

	assert.Contains(t, err.Error(), "unreadable_document")
	assert.Contains(t, err.Error(), "parse xref")
	assert.ErrorIs(t, err, cause)
}
