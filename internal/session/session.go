// Package session implements the Session Manager (component G): the one
// place that owns a call's VAD segmenter, utterance buffer, transcription
// gateway, dialog state machine, and TTS scheduler end to end, and the only
// place that knows about the three wall-clock timeouts spec.md mandates
// (call duration, caller silence, operator verdict).
//
// Everything else in internal/dialog is pure or single-purpose; Session is
// the orchestrator that wires A through F into one call's lifecycle,
// mirroring the way the teacher's PipelineTask owns a pipeline's ctx,
// cancellation, and started/finished bookkeeping.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/brightline-voice/dialogd/internal/config"
	"github.com/brightline-voice/dialogd/internal/dialog/fsm"
	"github.com/brightline-voice/dialogd/internal/dialog/nlu"
	"github.com/brightline-voice/dialogd/internal/dialog/stt"
	"github.com/brightline-voice/dialogd/internal/dialog/tts"
	"github.com/brightline-voice/dialogd/internal/dialog/utterance"
	"github.com/brightline-voice/dialogd/internal/dialog/vad"
	"github.com/brightline-voice/dialogd/internal/dialoglog"
	"github.com/brightline-voice/dialogd/internal/dialogmodel"
	"github.com/brightline-voice/dialogd/internal/eventbus"
	"github.com/brightline-voice/dialogd/internal/metrics"
	"github.com/brightline-voice/dialogd/internal/persistence"
	"github.com/brightline-voice/dialogd/internal/ratelimit"
)

// Transport is the media sink a Session drives. Implementations own the
// actual WebSocket (or any other wire) connection; Session never imports
// the transport package, only this interface.
type Transport interface {
	SendAudio(pcm []int16) error
	Close()
}

// Providers groups the external collaborators a Session needs to build its
// own per-call Gateway and Scheduler.
type Providers struct {
	STT         stt.Provider
	TTS         tts.Provider
	TTSFallback tts.Provider // nil if no fallback voice/vendor configured
	NLU         nlu.Provider
}

// Shared groups the process-wide singletons every Session shares.
type Shared struct {
	Bus     *eventbus.Bus
	Limits  *ratelimit.Limiters
	Hook    persistence.Hook
	Metrics *metrics.Metrics
	Cfg     *config.Config
}

const inboundQueueDepth = 64

// Session is the per-call orchestrator. Not safe for concurrent use from
// outside its own goroutines except via PushFrame, Command, and Stop, which
// are the only methods a Transport is expected to call.
type Session struct {
	callID string
	log    *dialoglog.Logger
	cfg    *config.Config
	shared Shared

	seg       *vad.Segmenter
	buf       *utterance.Buffer
	gw        *stt.Gateway
	nlu       nlu.Provider
	sched     *tts.Scheduler
	transport Transport

	machineMu sync.Mutex
	machine   *fsm.Machine

	inbound chan dialogmodel.Frame

	lastSpeechAt time.Time
	lastSpeechMu sync.Mutex

	awaitingMu sync.Mutex
	awaiting   bool
	verdictCh  chan dialogmodel.OperatorVerdict

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	transportCloseOnce sync.Once

	lifecycleMu    sync.Mutex
	started        bool
	finished       bool
	shutdownOnce   sync.Once
	shutdownReason string
	onFinished     func()
}

// New builds a Session for one inbound call. It is not started until Run is
// called.
func New(callID string, providers Providers, shared Shared, transport Transport, log *dialoglog.Logger) *Session {
	log = log.With("call_id", callID)

	vadParams := vad.Params{
		Aggressiveness:    shared.Cfg.VADAggressiveness,
		FrameMS:           shared.Cfg.VADFrameMS,
		SilenceTimeoutSec: shared.Cfg.SilenceTimeoutSec,
		PrerollIgnoreSec:  shared.Cfg.PrerollIgnoreSec,
		MinStartRMS:       float64(shared.Cfg.MinStartRMS),
	}
	gates := utterance.Gates{MinDurationMS: shared.Cfg.MinUtteranceMS, MinPeakRMS: float64(shared.Cfg.MinUtteranceRMS)}
	sttCfg := stt.DefaultConfig()
	sttCfg.Model = shared.Cfg.STTModel
	sttCfg.ConfidenceThreshold = shared.Cfg.STTConfThreshold

	ttsCfg := tts.DefaultConfig()
	ttsCfg.VoiceID = shared.Cfg.TTSVoiceID

	return &Session{
		callID:    callID,
		log:       log,
		cfg:       shared.Cfg,
		shared:    shared,
		seg:       vad.New(vadParams, log),
		buf:       utterance.New(gates, 4, log),
		gw:        stt.New(sttCfg, providers.STT, log),
		nlu:       providers.NLU,
		sched:     tts.New(ttsCfg, providers.TTS, providers.TTSFallback, log),
		transport: transport,
		machine:   fsm.NewMachine(callID),
		inbound:   make(chan dialogmodel.Frame, inboundQueueDepth),
	}
}

// PushFrame hands one decoded PCM16 frame to the Session's inbound loop.
// Called by the Transport's read loop. Drops the oldest queued frame rather
// than blocking the media read loop when the Session has fallen behind.
func (s *Session) PushFrame(f dialogmodel.Frame) {
	select {
	case s.inbound <- f:
		return
	default:
	}
	select {
	case <-s.inbound:
		s.log.Warn("inbound frame queue full, dropped oldest frame")
	default:
	}
	select {
	case s.inbound <- f:
	default:
	}
}

// Command routes an operator's approve/reject verdict into this Session, if
// it is currently AwaitingOperator. Returns false if no verdict is expected
// right now.
func (s *Session) Command(v dialogmodel.OperatorVerdict) bool {
	s.awaitingMu.Lock()
	ch := s.verdictCh
	s.awaitingMu.Unlock()
	if ch == nil {
		return false
	}
	select {
	case ch <- v:
		return true
	default:
		return false
	}
}

// OnFinished registers a callback invoked exactly once when the Session's
// lifecycle completes, so the owner (cmd/dialogd's registry) can forget it.
func (s *Session) OnFinished(cb func()) { s.onFinished = cb }

// Run drives the Session to completion: the greeting, the inbound/outbound
// pipelines, and every timeout, returning only once the call has fully
// wound down. Safe to call exactly once.
func (s *Session) Run(ctx context.Context) error {
	s.lifecycleMu.Lock()
	if s.started {
		s.lifecycleMu.Unlock()
		return fmt.Errorf("session %s already started", s.callID)
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.lifecycleMu.Unlock()

	s.shared.Metrics.ActiveSessions.Add(s.ctx, 1)
	s.publish(dialogmodel.OperatorEvent{Type: dialogmodel.EventCallStarted})

	s.wg.Add(4)
	go s.runInbound()
	go s.runOutbound()
	go s.runUtterances()
	go s.runSilenceMonitor()
	go s.runCallMaxWatcher()

	s.speakGreeting()

	s.wg.Wait()
	s.finish()
	return nil
}

// Stop requests an immediate, graceful shutdown. Idempotent; safe to call
// from any goroutine, including after the Session has already finished.
func (s *Session) Stop() { s.shutdown("shutdown") }

// closeTransport closes the media connection. Idempotent: a Terminal agent
// turn closes it as soon as it finishes playing, well before the Session
// itself finishes — a pending operator verdict is still processed after
// that, per spec's call-ends-before-verdict-arrives case.
func (s *Session) closeTransport() {
	s.transportCloseOnce.Do(s.transport.Close)
}

func (s *Session) finish() {
	s.unregisterOperator()
	s.publish(dialogmodel.OperatorEvent{
		Type: dialogmodel.EventCallEnded,
		Data: map[string]any{"reason": s.shutdownReason},
	})
	s.closeTransport()
	s.shared.Metrics.ActiveSessions.Add(context.Background(), -1)

	s.lifecycleMu.Lock()
	s.finished = true
	cb := s.onFinished
	s.lifecycleMu.Unlock()
	if cb != nil {
		cb()
	}
}

func (s *Session) shutdown(reason string) {
	s.shutdownOnce.Do(func() {
		s.shutdownReason = reason
		// call_max is a hard wall-clock ceiling enforced outside the dialog
		// state machine, so it speaks its own farewell directly. Shutdowns
		// that follow a terminal dialog state (including caller silence and
		// STT permanent failure) are reached only after the reducer has
		// already produced and spoken its own Terminal turn via dispatch;
		// Stop speaks nothing.
		if reason == "call_max" {
			s.speakForcedFarewell()
		}
		s.cancel()
	})
}

func (s *Session) speakGreeting() {
	turn := dialogmodel.AgentTurn{Text: fsm.GreetingText, Intent: dialogmodel.TurnPrompt, Interruptible: true}
	if err := ratelimit.Wait(s.ctx, s.shared.Limits.TTS); err != nil {
		return
	}
	if err := s.sched.Speak(s.ctx, turn); err != nil {
		s.log.Error("greeting synthesis failed: %v", err)
	}
	s.machineMu.Lock()
	s.machine.History = append(s.machine.History, dialogmodel.HistoryTurn{Speaker: dialogmodel.SpeakerAgent, Text: turn.Text, At: time.Now()})
	s.machineMu.Unlock()
	s.publish(dialogmodel.OperatorEvent{Type: dialogmodel.EventAgentSaid, Data: map[string]any{"text": turn.Text}})
	s.dispatch(fsm.Event{Kind: fsm.EvGreetingScheduled})
}

// speakForcedFarewell is used by the call-duration timeout, the one path
// that ends a call outside the dialog state machine's own Aborted/Farewell
// transitions. It runs against a short-lived background context so the
// apology is not itself cut off by s.cancel().
func (s *Session) speakForcedFarewell() {
	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()
	turn := dialogmodel.AgentTurn{
		Text:          "I'm sorry, I need to end this call now. Please call back if you'd still like to book.",
		Intent:        dialogmodel.TurnFarewell,
		Interruptible: false,
	}
	if err := s.sched.Speak(ctx, turn); err != nil {
		s.log.Warn("forced farewell synthesis failed: %v", err)
	}
}

func (s *Session) publish(ev dialogmodel.OperatorEvent) {
	ev.CallID = s.callID
	ev.At = time.Now()
	s.shared.Bus.Publish(ev)
}
