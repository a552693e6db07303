// Package jobs runs the conversion pipeline: a pure state machine governing
// job transitions, a service layer the API submits through, and a worker pool
// that claims queued jobs and executes them.
package jobs

import (
	"fmt"

	"github.com/docuforge/conversion-engine/internal/domain"
	"github.com/docuforge/conversion-engine/internal/storage"
)

// Event is a requested job transition.
type Event string

const (
	EventClaim    Event = "claim"
	EventComplete Event = "complete"
	EventFail     Event = "fail"
	EventCancel   Event = "cancel"
	EventRetry    Event = "retry"
)

// transitions maps (status, event) to the next status. Anything absent is an
// illegal transition. The repository enforces the same rules with conditional
// updates; this table is the single written-down form of the lifecycle.
var transitions = map[storage.ConversionStatus]map[Event]storage.ConversionStatus{
	storage.ConversionStatusPending: {
		EventClaim:  storage.ConversionStatusProcessing,
		EventCancel: storage.ConversionStatusCancelled,
	},
	storage.ConversionStatusProcessing: {
		EventComplete: storage.ConversionStatusCompleted,
		EventFail:     storage.ConversionStatusFailed,
		EventCancel:   storage.ConversionStatusCancelled,
	},
	storage.ConversionStatusFailed: {
		EventRetry: storage.ConversionStatusPending,
	},
}

// Next returns the status that event moves from into, or an error when the
// transition is not allowed.
func Next(from storage.ConversionStatus, event Event) (storage.ConversionStatus, error) {
	if to, ok := transitions[from][event]; ok {
		return to, nil
	}
	return "", domain.InvalidInput(fmt.Sprintf("cannot %s a %s conversion", event, from))
}

// CanTransition reports whether event is legal from the given status.
func CanTransition(from storage.ConversionStatus, event Event) bool {
	_, ok := transitions[from][event]
	return ok
}
