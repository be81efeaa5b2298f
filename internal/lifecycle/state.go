package lifecycle

import (
	"errors"
	"fmt"
	"time"
)

// State is the client-side lifecycle state of a document or draft.
type State string

const (
	StateNone        State = "NONE"
	StateDrafting    State = "DRAFTING"
	StateGenerating  State = "GENERATING"
	StateGenerated   State = "GENERATED"
	StateSent        State = "SENT"
	StateSigned      State = "SIGNED"
	StateSummarizing State = "SUMMARIZING"
	StateSummarized  State = "SUMMARIZED"
	StateError       State = "ERROR"
)

// SummaryPhase tracks the request/poll protocol of summary generation.
type SummaryPhase string

const (
	SummaryAbsent    SummaryPhase = ""
	SummaryRequested SummaryPhase = "requested"
	SummaryAvailable SummaryPhase = "available"
)

var (
	// ErrInvalidTransition indicates the intent is not valid in the current state.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
	// ErrSignerScopeRequired indicates signing was attempted with an owner session.
	ErrSignerScopeRequired = errors.New("signing requires a signer-scoped session")
)

// TransitionError reports a rejected intent. It matches ErrInvalidTransition.
type TransitionError struct {
	DocumentID int64
	Action     string
	From       State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s document %d in state %s", e.Action, e.DocumentID, e.From)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// Entry is the tracked lifecycle of one generated document. Base is the
// furthest confirmed signing step (GENERATED, SENT or SIGNED); the summary
// phase and failure flag layer on top of it.
type Entry struct {
	Base      State        `json:"base"`
	Summary   SummaryPhase `json:"summary,omitempty"`
	Failed    bool         `json:"failed,omitempty"`
	LastError string       `json:"last_error,omitempty"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// State derives the displayed state. Summary progress is shown on top of any
// base, SIGNED included; a signed document is never reported as ERROR.
func (e Entry) State() State {
	switch {
	case e.Base == "":
		return StateNone
	case e.Failed && e.Base != StateSigned:
		return StateError
	case e.Summary == SummaryRequested:
		return StateSummarizing
	case e.Summary == SummaryAvailable:
		return StateSummarized
	default:
		return e.Base
	}
}

func (e Entry) baseIn(states ...State) bool {
	for _, s := range states {
		if e.Base == s {
			return true
		}
	}
	return false
}
