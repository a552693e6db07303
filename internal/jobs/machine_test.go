package jobs

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/docuforge/conversion-engine/internal/storage"
)

func TestNext_LegalTransitions(t *testing.T) {
	cases := []struct {
		from  storage.ConversionStatus
		event Event
		to    storage.ConversionStatus
	}{
		{storage.ConversionStatusPending, EventClaim, storage.ConversionStatusProcessing},
		{storage.ConversionStatusPending, EventCancel, storage.ConversionStatusCancelled},
		{storage.ConversionStatusProcessing, EventComplete, storage.ConversionStatusCompleted},
		{storage.ConversionStatusProcessing, EventFail, storage.ConversionStatusFailed},
		{storage.ConversionStatusProcessing, EventCancel, storage.ConversionStatusCancelled},
		{storage.ConversionStatusFailed, EventRetry, storage.ConversionStatusPending},
	}
	for _, tc := range cases {
		got, err := Next(tc.from, tc.event)
		assert.NoError(t, err, "%s + %s", tc.from, tc.event)
		assert.Equal(t, tc.to, got)
	}
}

func TestNext_TerminalStatesAdmitNothingButRetry(t *testing.T) {
	events := []Event{EventClaim, EventComplete, EventFail, EventCancel, EventRetry}

	for _, event := range events {
		_, err := Next(storage.ConversionStatusCompleted, event)
		assert.Error(t, err, "completed must be final, rejected %s", event)

		_, err = Next(storage.ConversionStatusCancelled, event)
		assert.Error(t, err, "cancelled must be final, rejected %s", event)
	}

	// Failed admits exactly one event: retry.
	for _, event := range events {
		_, err := Next(storage.ConversionStatusFailed, event)
		if event == EventRetry {
			assert.NoError(t, err)
		} else {
			assert.Error(t, err, "failed should reject %s", event)
		}
	}
}

func TestNext_NoDirectPendingToTerminalResult(t *testing.T) {
	// A job can only complete or fail out of processing; a pending job that
	// was never claimed cannot jump to a result.
	_, err := Next(storage.ConversionStatusPending, EventComplete)
	assert.Error(t, err)
	_, err = Next(storage.ConversionStatusPending, EventFail)
	assert.Error(t, err)
}

func TestCanTransition_MatchesNext(t *testing.T) {
	statuses := []storage.ConversionStatus{
		storage.ConversionStatusPending,
		storage.ConversionStatusProcessing,
		storage.ConversionStatusCompleted,
		storage.ConversionStatusFailed,
		storage.ConversionStatusCancelled,
	}
	events := []Event{EventClaim, EventComplete, EventFail, EventCancel, EventRetry}

	for _, status := range statuses {
		for _, event := range events {
			_, err := Next(status, event)
			assert.Equal(t, err == nil, CanTransition(status, event), "%s + %s", status, event)
		}
	}
}
