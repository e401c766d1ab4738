// Package dialogmodel defines the data model shared by every dialog
// component: the immutable records that flow A -> B -> C -> D -> E -> F and
// the per-call session state exclusively owned by one Session.
package dialogmodel

import "time"

// Frame is 20 or 30 ms of PCM16 mono audio at 16 kHz plus its arrival
// timestamp. Transient: not retained once the VAD segmenter classifies it.
type Frame struct {
	PCM     []int16
	Arrival time.Time
}

// Speaker identifies who produced a turn of conversation history.
type Speaker string

const (
	SpeakerCaller Speaker = "caller"
	SpeakerAgent  Speaker = "agent"
)

// HistoryTurn is one entry in a Call Session's append-only conversation
// history.
type HistoryTurn struct {
	Speaker Speaker
	Text    string
	At      time.Time
}

// Utterance is contiguous PCM between a SpeechStart and SpeechEnd boundary.
type Utterance struct {
	ID       uint64
	PCM      []int16
	Start    time.Time
	End      time.Time
	PeakRMS  float64
}

// Transcript is the accepted output of the Transcription Gateway.
type Transcript struct {
	UtteranceID uint64
	Text        string
	AvgLogProb  float64
	At          time.Time
}

// Intent is the tag assigned to a caller turn by E. This supplements the
// affirmative/negative/correction distinction spec.md's tie-break rules
// need; "collecting" is the default when no special intent is detected.
type Intent string

const (
	IntentCollecting Intent = "collecting"
	IntentAffirm     Intent = "affirm"
	IntentNegate     Intent = "negate"
	IntentCorrection Intent = "correction"
	IntentUnclear    Intent = "unclear"
)

// NLUResult is the structured output of the external intent extractor:
// (history, utterance, slots) -> intent + any newly observed slot values.
type NLUResult struct {
	Intent       Intent
	SlotUpdates  map[string]string
	CorrectedKey string // set when Intent == IntentCorrection
}

// TurnIntent tags an Agent Turn's conversational role.
type TurnIntent string

const (
	TurnPrompt   TurnIntent = "prompt"
	TurnConfirm  TurnIntent = "confirm"
	TurnFarewell TurnIntent = "farewell"
)

// AgentTurn is produced by E and consumed by F.
type AgentTurn struct {
	Text          string
	Intent        TurnIntent
	Interruptible bool
	// Terminal marks the turn that, once fully played, should cause F to
	// signal G to close the media WebSocket (the final farewell sentence).
	Terminal bool
}

// BookingStatus is the lifecycle of a Booking Draft.
type BookingStatus string

const (
	BookingCollecting      BookingStatus = "collecting"
	BookingAwaitingOperator BookingStatus = "awaiting-operator"
	BookingApproved        BookingStatus = "approved"
	BookingRejected        BookingStatus = "rejected"
)

// Slot names, in the fixed priority order the dialog state machine asks
// for them.
const (
	SlotServiceType     = "service_type"
	SlotAddress         = "address"
	SlotAppointmentTime = "appointment_time"
	SlotPhone           = "phone"
	SlotName            = "name"
)

// SlotOrder is the fixed priority order for follow-up prompts.
var SlotOrder = []string{SlotServiceType, SlotAddress, SlotAppointmentTime, SlotPhone, SlotName}

// BookingDraft is mutated only by the dialog state machine (E).
type BookingDraft struct {
	ID     string
	Slots  map[string]string
	Status BookingStatus
}

// Missing returns the mandatory slots, in priority order, not yet present.
func (b *BookingDraft) Missing() []string {
	var missing []string
	for _, k := range SlotOrder {
		if b.Slots[k] == "" {
			missing = append(missing, k)
		}
	}
	return missing
}

// OperatorVerdict is the human decision on an AwaitingOperator booking.
type OperatorVerdict string

const (
	VerdictApprove OperatorVerdict = "approve"
	VerdictReject  OperatorVerdict = "reject"
	VerdictTimeout OperatorVerdict = "timeout"
)

// EventType enumerates the typed records published to the Event Bus (H).
type EventType string

const (
	EventCallStarted      EventType = "call_started"
	EventTranscript       EventType = "transcript"
	EventAgentSaid        EventType = "agent_said"
	EventBookingPending   EventType = "booking_pending"
	EventBookingConfirmed EventType = "booking_confirmed"
	EventBookingRejected  EventType = "booking_rejected"
	EventCallEnded        EventType = "call_ended"
	EventDegraded         EventType = "degraded"
	EventKeepalive        EventType = "keepalive"
	EventLagged           EventType = "lagged"
)

// OperatorEvent is a typed record fanned out to operator subscribers.
type OperatorEvent struct {
	Type   EventType
	CallID string
	Seq    uint64
	At     time.Time
	Data   map[string]any
}
