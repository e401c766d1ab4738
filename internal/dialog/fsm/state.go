// Package fsm implements the Dialog State Machine (component E) as a
// single tagged-enum state plus one reducer, replacing the "boolean soup"
// of independently-tracked flags the design notes warn against.
package fsm

import "github.com/brightline-voice/dialogd/internal/dialogmodel"

// State is one of the dialog's named states.
type State string

const (
	Greeting         State = "Greeting"
	Collecting       State = "Collecting"
	ConfirmingTime   State = "ConfirmingTime"
	AwaitingOperator State = "AwaitingOperator"
	Reprompt         State = "Reprompt"
	Farewell         State = "Farewell"
	Aborted          State = "Aborted"
)

// IsTerminal reports whether no further caller-visible output will occur
// from this state.
func (s State) IsTerminal() bool { return s == Farewell || s == Aborted }

// Machine is the per-call dialog state, exclusively owned and mutated by
// one Session (via Reduce).
type Machine struct {
	State           State
	Draft           dialogmodel.BookingDraft
	History         []dialogmodel.HistoryTurn
	RepromptStreak  int
	RepromptTotal   int
	contestedSlot   string
}

// GreetingText is the Session's first outbound turn, pushed to F directly
// before the machine transitions out of Greeting.
const GreetingText = "Thanks for calling! How can I help you today?"

// NewMachine starts a fresh dialog in Greeting with an empty draft.
func NewMachine(callID string) *Machine {
	return &Machine{
		State: Greeting,
		Draft: dialogmodel.BookingDraft{ID: callID, Slots: map[string]string{}, Status: dialogmodel.BookingCollecting},
	}
}
