package fsm

import "github.com/brightline-voice/dialogd/internal/dialogmodel"

// EventKind tags the union of inputs the reducer accepts. The reducer is
// pure: every blocking external call (NLU extraction, STT) happens in the
// Session before an Event is constructed and handed to Reduce.
type EventKind int

const (
	// EvGreetingScheduled fires once the first agent greeting turn has
	// been scheduled onto F, regardless of caller input.
	EvGreetingScheduled EventKind = iota
	// EvTranscriptAccepted carries an accepted transcript plus the NLU
	// extraction already run against it.
	EvTranscriptAccepted
	// EvTranscriptDropped marks an utterance that produced no usable
	// transcript (STT failure, confidence filter, or NLU failure) — it
	// still counts toward the reprompt streak.
	EvTranscriptDropped
	// EvOperatorVerdict carries a human approve/reject/timeout decision.
	EvOperatorVerdict
	// EvBargeIn marks that the caller spoke over an in-flight agent turn;
	// the reducer does not itself cancel playback (F owns that), but logs
	// nothing special — barge-in only affects E by virtue of the new
	// transcript event that follows it, which is processed normally.
	EvBargeIn
	// EvSilenceTimeout fires once per CALLER_SILENCE_SEC window with no
	// caller speech. Final marks the last window (call ends); earlier
	// windows only produce a reprompt turn, keeping the reprompt itself
	// owned by the reducer rather than by the Session's timeout watcher.
	EvSilenceTimeout
	// EvSTTPermanentFailure marks a Transcription Gateway result the
	// Session has classified as unrecoverable (dialogerr.STTPermanent),
	// as opposed to a transient failure or confidence-filtered drop.
	EvSTTPermanentFailure
)

// Event is one input to Reduce.
type Event struct {
	Kind      EventKind
	Text      string
	NLU       dialogmodel.NLUResult
	NLUFailed bool
	Verdict   dialogmodel.OperatorVerdict
	Final     bool // EvSilenceTimeout only: the last silence window before hangup
}
