package session

import (
	"context"
	"time"

	"github.com/brightline-voice/dialogd/internal/dialog/fsm"
	"github.com/brightline-voice/dialogd/internal/dialog/vad"
	"github.com/brightline-voice/dialogd/internal/dialogerr"
	"github.com/brightline-voice/dialogd/internal/dialogmodel"
	"github.com/brightline-voice/dialogd/internal/ratelimit"
)

// runInbound classifies every inbound frame into VAD boundaries and feeds
// the utterance buffer. It is the sole caller of s.seg and s.buf, matching
// their single-writer contract.
func (s *Session) runInbound() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case f := <-s.inbound:
			b := s.seg.Classify(f.PCM, f.Arrival)
			switch {
			case b != nil && b.Kind == vad.SpeechStart:
				if s.sched.Interrupt() {
					s.shared.Metrics.BargeIns.Add(s.ctx, 1)
					s.dispatch(fsm.Event{Kind: fsm.EvBargeIn})
				}
				s.buf.Begin(b.At)
				s.buf.Append(f.PCM)
				s.markSpeechActivity()
			case b != nil && b.Kind == vad.SpeechEnd:
				s.buf.End(b.At)
			case b == nil && s.seg.InSpeech():
				s.buf.Append(f.PCM)
			}
		}
	}
}

// runOutbound forwards the TTS Scheduler's paced frames to the transport
// and watches for the Hangup signal that ends the call.
func (s *Session) runOutbound() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case frame, ok := <-s.sched.Frames():
			if !ok {
				return
			}
			if err := s.transport.SendAudio(frame); err != nil {
				s.log.Warn("send audio failed: %v", err)
			}
		case <-s.sched.Hangup():
			// A Terminal turn only closes the media connection. The dialog
			// may still be waiting on an operator verdict; the Session
			// itself ends only once that settles (or times out).
			s.drainFrames()
			s.closeTransport()
			return
		}
	}
}

// drainFrames flushes any frames already queued before Hangup fired, since
// Speak enqueues a turn's audio before signaling completion.
func (s *Session) drainFrames() {
	for {
		select {
		case frame, ok := <-s.sched.Frames():
			if !ok {
				return
			}
			if err := s.transport.SendAudio(frame); err != nil {
				s.log.Warn("send audio failed: %v", err)
			}
		default:
			return
		}
	}
}

// runUtterances consumes accepted utterances off the buffer, runs them
// through the Transcription Gateway and the NLU provider, and dispatches
// the resulting event into the dialog state machine.
func (s *Session) runUtterances() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case u, ok := <-s.buf.Out():
			if !ok {
				return
			}
			s.handleUtterance(u)
		}
	}
}

func (s *Session) handleUtterance(u *dialogmodel.Utterance) {
	if err := ratelimit.Wait(s.ctx, s.shared.Limits.STT); err != nil {
		return
	}
	result := s.gw.Transcribe(s.ctx, u)
	if result.Degraded {
		s.publish(dialogmodel.OperatorEvent{Type: dialogmodel.EventDegraded})
	}
	if result.Err != nil || result.Transcript == nil {
		if result.Err != nil {
			s.shared.Metrics.RecordSTTFailure(s.ctx, sttFailureKind(result.Err))
		}
		s.shared.Metrics.RecordUtteranceDropped(s.ctx, "stt")
		if dialogerr.Is(result.Err, dialogerr.STTPermanent) {
			// Unrecoverable, not a transient miss or confidence-filtered
			// drop: reprompting forever would just repeat the failure, so
			// the call ends with an apology turn instead.
			s.dispatch(fsm.Event{Kind: fsm.EvSTTPermanentFailure})
			return
		}
		s.dispatch(fsm.Event{Kind: fsm.EvTranscriptDropped})
		return
	}
	s.shared.Metrics.UtterancesAccepted.Add(s.ctx, 1)

	s.machineMu.Lock()
	history := append([]dialogmodel.HistoryTurn(nil), s.machine.History...)
	slots := make(map[string]string, len(s.machine.Draft.Slots))
	for k, v := range s.machine.Draft.Slots {
		slots[k] = v
	}
	s.machineMu.Unlock()

	if err := ratelimit.Wait(s.ctx, s.shared.Limits.NLU); err != nil {
		return
	}
	nluResult, err := s.nlu.Extract(s.ctx, history, result.Transcript.Text, slots)
	if err != nil {
		s.log.Warn("nlu extraction failed: %v", err)
		s.shared.Metrics.RecordUtteranceDropped(s.ctx, "nlu")
		s.dispatch(fsm.Event{Kind: fsm.EvTranscriptAccepted, Text: result.Transcript.Text, NLUFailed: true})
		return
	}
	s.dispatch(fsm.Event{Kind: fsm.EvTranscriptAccepted, Text: result.Transcript.Text, NLU: nluResult})
}

func sttFailureKind(err error) string {
	switch {
	case dialogerr.Is(err, dialogerr.STTPermanent):
		return "permanent"
	case dialogerr.Is(err, dialogerr.STTTransient):
		return "transient"
	default:
		return "unknown"
	}
}

// dispatch applies ev to the dialog state machine under lock, then carries
// out the returned effects and checks for an AwaitingOperator transition.
func (s *Session) dispatch(ev fsm.Event) {
	s.machineMu.Lock()
	effects := s.machine.Reduce(ev)
	state := s.machine.State
	s.machineMu.Unlock()

	s.applyEffects(effects)

	switch {
	case state == fsm.AwaitingOperator:
		s.beginAwaitingOperator()
	case state.IsTerminal():
		s.shutdown("dialog_complete")
	}
}

func (s *Session) applyEffects(effects []fsm.Effect) {
	for _, e := range effects {
		switch e.Kind {
		case fsm.EffectAppendHistory:
			ev := dialogmodel.OperatorEvent{Data: map[string]any{"text": e.History.Text}}
			if e.History.Speaker == dialogmodel.SpeakerCaller {
				ev.Type = dialogmodel.EventTranscript
			} else {
				ev.Type = dialogmodel.EventAgentSaid
			}
			s.publish(ev)

		case fsm.EffectAgentTurn:
			if err := ratelimit.Wait(s.ctx, s.shared.Limits.TTS); err != nil {
				return
			}
			if err := s.sched.Speak(s.ctx, e.Turn); err != nil {
				s.log.Warn("agent turn synthesis failed: %v", err)
			}

		case fsm.EffectPublishEvent:
			s.publish(e.Event)
			switch e.Event.Type {
			case dialogmodel.EventBookingConfirmed:
				s.shared.Metrics.OperatorApprovals.Add(s.ctx, 1)
			case dialogmodel.EventBookingRejected:
				s.shared.Metrics.OperatorRejections.Add(s.ctx, 1)
			}

		case fsm.EffectInvokePersistenceHook:
			draft := e.Draft
			go func() {
				if err := s.shared.Hook.OnBookingApproved(context.Background(), draft); err != nil {
					s.log.Error("persistence hook failed for booking %s: %v", draft.ID, err)
				}
			}()

		case fsm.EffectRequestHangup:
			s.shutdown("requested")
		}
	}
}

// beginAwaitingOperator registers a one-shot verdict channel with the Event
// Bus and starts the OPERATOR_TIMEOUT_SEC watchdog. Guarded so a call can
// only be AwaitingOperator once per booking.
func (s *Session) beginAwaitingOperator() {
	s.awaitingMu.Lock()
	if s.awaiting {
		s.awaitingMu.Unlock()
		return
	}
	s.awaiting = true
	ch := make(chan dialogmodel.OperatorVerdict, 1)
	s.verdictCh = ch
	s.awaitingMu.Unlock()

	s.shared.Bus.RegisterVerdictHandler(s.callID, func(v dialogmodel.OperatorVerdict) {
		select {
		case ch <- v:
		default:
		}
	})

	go s.watchOperatorVerdict(ch)
}

func (s *Session) watchOperatorVerdict(ch chan dialogmodel.OperatorVerdict) {
	timeout := time.Duration(s.cfg.OperatorTimeoutSec) * time.Second
	var v dialogmodel.OperatorVerdict
	select {
	case v = <-ch:
	case <-time.After(timeout):
		v = dialogmodel.VerdictTimeout
		s.log.Warn("operator verdict timed out after %s", timeout)
	case <-s.ctx.Done():
		return
	}
	s.unregisterOperator()
	s.dispatch(fsm.Event{Kind: fsm.EvOperatorVerdict, Verdict: v})
}

func (s *Session) unregisterOperator() {
	s.awaitingMu.Lock()
	wasAwaiting := s.awaiting
	s.awaiting = false
	s.verdictCh = nil
	s.awaitingMu.Unlock()
	if wasAwaiting {
		s.shared.Bus.UnregisterVerdictHandler(s.callID)
	}
}

func (s *Session) markSpeechActivity() {
	s.lastSpeechMu.Lock()
	s.lastSpeechAt = time.Now()
	s.lastSpeechMu.Unlock()
}
