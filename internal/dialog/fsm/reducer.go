package fsm

import (
	"fmt"
	"time"

	"github.com/brightline-voice/dialogd/internal/dialog/nlu"
	"github.com/brightline-voice/dialogd/internal/dialogmodel"
)

// maxReprompts is the fallback-transfer limit from spec.md §4.5.
const maxReprompts = 3

// EffectKind tags the side effects Reduce asks the Session to perform.
// Side effects of E are limited to exactly these per spec.md §4.5.
type EffectKind int

const (
	EffectAppendHistory EffectKind = iota
	EffectAgentTurn
	EffectPublishEvent
	EffectInvokePersistenceHook
	EffectRequestHangup
)

// Effect is one instruction the reducer asks the Session to carry out.
// The reducer never performs I/O itself.
type Effect struct {
	Kind    EffectKind
	Turn    dialogmodel.AgentTurn
	History dialogmodel.HistoryTurn
	Event   dialogmodel.OperatorEvent
	Draft   dialogmodel.BookingDraft
}

// Reduce applies one Event to the machine and returns the ordered Effects
// the Session must carry out (appending to history, scheduling an Agent
// Turn, publishing to the Event Bus, invoking the persistence hook).
func (m *Machine) Reduce(ev Event) []Effect {
	switch ev.Kind {
	case EvGreetingScheduled:
		return m.onGreetingScheduled()
	case EvTranscriptAccepted:
		return m.onTranscript(ev)
	case EvTranscriptDropped:
		return m.onUnclear()
	case EvOperatorVerdict:
		return m.onOperatorVerdict(ev.Verdict)
	case EvBargeIn:
		return nil
	case EvSilenceTimeout:
		return m.onSilenceTimeout(ev.Final)
	case EvSTTPermanentFailure:
		return m.terminate("I'm sorry, I'm having trouble hearing you clearly. Please call back and we'll get you booked.")
	default:
		return nil
	}
}

func (m *Machine) onGreetingScheduled() []Effect {
	if m.State != Greeting {
		return nil
	}
	m.State = Collecting
	return nil
}

func (m *Machine) onTranscript(ev Event) []Effect {
	m.appendHistory(dialogmodel.SpeakerCaller, ev.Text)

	if ev.NLUFailed {
		return append([]Effect{m.historyEffect(dialogmodel.SpeakerCaller, ev.Text)}, m.onUnclear()...)
	}

	// The reprompt streak is reset inside reduceCollecting/reduceConfirming,
	// not here, since an accepted transcript can still carry IntentUnclear
	// and must count toward the streak rather than clear it.
	switch m.State {
	case ConfirmingTime:
		return m.reduceConfirming(ev)
	case Collecting, Reprompt:
		m.State = Collecting
		return m.reduceCollecting(ev)
	default:
		return []Effect{m.historyEffect(dialogmodel.SpeakerCaller, ev.Text)}
	}
}

// reduceCollecting merges slot updates and either asks for the next
// missing slot or transitions to ConfirmingTime.
func (m *Machine) reduceCollecting(ev Event) []Effect {
	effects := []Effect{m.historyEffect(dialogmodel.SpeakerCaller, ev.Text)}

	// An unclear/low-confidence transcript counts toward the reprompt
	// streak the same as it does in ConfirmingTime, rather than falling
	// through to the slot-merge path below with nothing to merge.
	if ev.NLU.Intent == dialogmodel.IntentUnclear {
		return append(effects, m.onUnclear()...)
	}
	m.RepromptStreak = 0

	// Tie-break: correction + affirmative together is treated as correction.
	if ev.NLU.Intent == dialogmodel.IntentCorrection {
		return append(effects, m.applyCorrection(ev.NLU.CorrectedKey)...)
	}

	for k, v := range ev.NLU.SlotUpdates {
		if v != "" {
			m.Draft.Slots[k] = v
		}
	}

	missing := m.Draft.Missing()
	if len(missing) == 0 {
		m.State = ConfirmingTime
		turn := dialogmodel.AgentTurn{
			Text:          m.summaryPrompt(),
			Intent:        dialogmodel.TurnConfirm,
			Interruptible: true,
		}
		return append(effects, m.agentTurnEffect(turn)...)
	}

	next := missing[0]
	turn := dialogmodel.AgentTurn{
		Text:          promptForSlot(next),
		Intent:        dialogmodel.TurnPrompt,
		Interruptible: true,
	}
	return append(effects, m.agentTurnEffect(turn)...)
}

func (m *Machine) reduceConfirming(ev Event) []Effect {
	effects := []Effect{m.historyEffect(dialogmodel.SpeakerCaller, ev.Text)}

	// A correction always wins over an affirmative/negative in the same
	// transcript. Short of that, the configurable affirmative/negative
	// lexicon is checked as a local pre-filter ahead of whatever intent
	// the external NLU provider returned, so "yes"/"no" never depend
	// entirely on an out-of-process collaborator getting it right.
	intent := ev.NLU.Intent
	if intent != dialogmodel.IntentCorrection {
		switch {
		case nlu.IsAffirmative(ev.Text):
			intent = dialogmodel.IntentAffirm
		case nlu.IsNegative(ev.Text):
			intent = dialogmodel.IntentNegate
		}
	}

	if intent == dialogmodel.IntentCorrection {
		return append(effects, m.applyCorrection(ev.NLU.CorrectedKey)...)
	}
	if intent == dialogmodel.IntentAffirm {
		m.RepromptStreak = 0
		m.State = AwaitingOperator
		m.Draft.Status = dialogmodel.BookingAwaitingOperator
		farewell := dialogmodel.AgentTurn{
			Text: "You'll be sent an SMS with your booking details once your appointment is confirmed. " +
				"Thanks for calling, have a great rest of your day.",
			Intent:        dialogmodel.TurnFarewell,
			Interruptible: false,
			Terminal:      true,
		}
		effects = append(effects, m.agentTurnEffect(farewell)...)
		effects = append(effects, m.publishEffect(dialogmodel.EventBookingPending, m.draftData()))
		return effects
	}
	if intent == dialogmodel.IntentNegate {
		// Generic negative with no specific corrected slot: re-ask time.
		return append(effects, m.applyCorrection(dialogmodel.SlotAppointmentTime)...)
	}

	return append(effects, m.onUnclear()...)
}

func (m *Machine) applyCorrection(key string) []Effect {
	if key == "" {
		key = dialogmodel.SlotAppointmentTime
	}
	m.RepromptStreak = 0
	m.contestedSlot = key
	delete(m.Draft.Slots, key)
	m.State = Collecting
	turn := dialogmodel.AgentTurn{Text: promptForSlot(key), Intent: dialogmodel.TurnPrompt, Interruptible: true}
	return m.agentTurnEffect(turn)
}

func (m *Machine) onUnclear() []Effect {
	if m.State.IsTerminal() || m.State == AwaitingOperator {
		return nil
	}
	m.RepromptStreak++
	if m.RepromptStreak < 2 {
		return nil
	}
	m.RepromptStreak = 0
	m.RepromptTotal++

	if m.RepromptTotal > maxReprompts {
		m.State = Aborted
		turn := dialogmodel.AgentTurn{
			Text:          "Let me transfer you to someone who can help.",
			Intent:        dialogmodel.TurnFarewell,
			Interruptible: false,
			Terminal:      true,
		}
		return m.agentTurnEffect(turn)
	}

	// "Any -> Reprompt -> Collecting": the reprompt turn is produced, then
	// the dialog returns to Collecting regardless of which state it was
	// reprompting from, per spec.md §4.5.
	turn := dialogmodel.AgentTurn{
		Text:          "Sorry, could you repeat that?",
		Intent:        dialogmodel.TurnPrompt,
		Interruptible: true,
	}
	effects := m.agentTurnEffect(turn)
	m.State = Collecting
	return effects
}

// onSilenceTimeout is reached once per CALLER_SILENCE_SEC window with no
// caller speech, keeping the reprompt/farewell turn owned by the reducer
// per spec.md §4.5's "side effects of E are limited to..." invariant
// rather than produced directly by the Session's timeout watcher.
func (m *Machine) onSilenceTimeout(final bool) []Effect {
	if !final {
		return m.onUnclear()
	}
	return m.terminate("I'm sorry, I haven't heard from you in a while, so I need to end this call. " +
		"Please call back if you'd still like to book.")
}

// terminate ends the call immediately with an apology/farewell turn,
// outside the normal reprompt-streak or confirmation flow. A no-op once
// the dialog is already terminal or waiting on a human operator, since an
// operator-awaited booking must settle through its own verdict path.
func (m *Machine) terminate(text string) []Effect {
	if m.State.IsTerminal() || m.State == AwaitingOperator {
		return nil
	}
	m.State = Aborted
	turn := dialogmodel.AgentTurn{
		Text:          text,
		Intent:        dialogmodel.TurnFarewell,
		Interruptible: false,
		Terminal:      true,
	}
	return m.agentTurnEffect(turn)
}

func (m *Machine) onOperatorVerdict(v dialogmodel.OperatorVerdict) []Effect {
	if m.State != AwaitingOperator {
		return nil
	}
	switch v {
	case dialogmodel.VerdictApprove:
		m.State = Farewell
		m.Draft.Status = dialogmodel.BookingApproved
		return []Effect{
			m.publishEffect(dialogmodel.EventBookingConfirmed, m.draftData()),
			{Kind: EffectInvokePersistenceHook, Draft: m.Draft},
		}
	case dialogmodel.VerdictReject, dialogmodel.VerdictTimeout:
		m.State = Aborted
		m.Draft.Status = dialogmodel.BookingRejected
		return []Effect{m.publishEffect(dialogmodel.EventBookingRejected, m.draftData())}
	}
	return nil
}

func (m *Machine) appendHistory(speaker dialogmodel.Speaker, text string) {
	m.History = append(m.History, dialogmodel.HistoryTurn{Speaker: speaker, Text: text, At: time.Now()})
}

func (m *Machine) historyEffect(speaker dialogmodel.Speaker, text string) Effect {
	return Effect{Kind: EffectAppendHistory, History: dialogmodel.HistoryTurn{Speaker: speaker, Text: text}}
}

// agentTurnEffect both appends the agent's own turn to history and asks the
// Session to speak it, so every fsm-produced turn (not just the greeting)
// shows up in machine.History and is published as an agent_said event.
func (m *Machine) agentTurnEffect(turn dialogmodel.AgentTurn) []Effect {
	m.appendHistory(dialogmodel.SpeakerAgent, turn.Text)
	return []Effect{
		{Kind: EffectAppendHistory, History: dialogmodel.HistoryTurn{Speaker: dialogmodel.SpeakerAgent, Text: turn.Text}},
		{Kind: EffectAgentTurn, Turn: turn},
	}
}

func (m *Machine) publishEffect(t dialogmodel.EventType, data map[string]any) Effect {
	return Effect{Kind: EffectPublishEvent, Event: dialogmodel.OperatorEvent{Type: t, Data: data}}
}

func (m *Machine) draftData() map[string]any {
	data := make(map[string]any, len(m.Draft.Slots)+1)
	for k, v := range m.Draft.Slots {
		data[k] = v
	}
	data["booking_id"] = m.Draft.ID
	return data
}

func (m *Machine) summaryPrompt() string {
	s := m.Draft.Slots
	return fmt.Sprintf("I have %s at %s, %s, phone %s, name %s, is that correct?",
		s[dialogmodel.SlotServiceType], s[dialogmodel.SlotAddress], s[dialogmodel.SlotAppointmentTime],
		s[dialogmodel.SlotPhone], s[dialogmodel.SlotName])
}

func promptForSlot(slot string) string {
	switch slot {
	case dialogmodel.SlotServiceType:
		return "What service would you like to book?"
	case dialogmodel.SlotAddress:
		return "What's the address for the appointment?"
	case dialogmodel.SlotAppointmentTime:
		return "What time would you like the appointment?"
	case dialogmodel.SlotPhone:
		return "What's the best phone number to reach you?"
	case dialogmodel.SlotName:
		return "And what name should we put the booking under?"
	default:
		return "Could you tell me more about that?"
	}
}
