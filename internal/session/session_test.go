package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/brightline-voice/dialogd/internal/config"
	"github.com/brightline-voice/dialogd/internal/dialog/stt"
	"github.com/brightline-voice/dialogd/internal/dialogerr"
	"github.com/brightline-voice/dialogd/internal/dialoglog"
	"github.com/brightline-voice/dialogd/internal/dialogmodel"
	"github.com/brightline-voice/dialogd/internal/eventbus"
	"github.com/brightline-voice/dialogd/internal/metrics"
	"github.com/brightline-voice/dialogd/internal/persistence"
	"github.com/brightline-voice/dialogd/internal/ratelimit"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

type fakeSTT struct{}

func (fakeSTT) Transcribe(ctx context.Context, pcm []int16, model string) (string, float64, error) {
	return "book a haircut", 0, nil
}

// fakePermanentFailureSTT always fails with an unrecoverable error, the way
// an invalid API key or a 4xx from the provider would.
type fakePermanentFailureSTT struct{}

func (fakePermanentFailureSTT) Transcribe(ctx context.Context, pcm []int16, model string) (string, float64, error) {
	return "", 0, dialogerr.New(dialogerr.STTPermanent, "stt.Transcribe", errors.New("invalid api key"))
}

type fakeTTS struct{}

func (fakeTTS) Synthesize(ctx context.Context, text, voiceID string) ([]int16, error) {
	return []int16{1}, nil
}

type fakeNLU struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeNLU) Extract(ctx context.Context, history []dialogmodel.HistoryTurn, text string, slots map[string]string) (dialogmodel.NLUResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls == 1 {
		return dialogmodel.NLUResult{
			Intent: dialogmodel.IntentCollecting,
			SlotUpdates: map[string]string{
				dialogmodel.SlotServiceType:     "haircut",
				dialogmodel.SlotAddress:         "1 Main St",
				dialogmodel.SlotAppointmentTime: "tomorrow 10am",
				dialogmodel.SlotPhone:           "555-0100",
				dialogmodel.SlotName:            "Alex",
			},
		}, nil
	}
	return dialogmodel.NLUResult{Intent: dialogmodel.IntentAffirm}, nil
}

type fakeTransport struct {
	mu     sync.Mutex
	frames int
	closed int
}

func (f *fakeTransport) SendAudio(pcm []int16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames++
	return nil
}

func (f *fakeTransport) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
}

func testConfig() *config.Config {
	return &config.Config{
		VADAggressiveness: 2,
		VADFrameMS:        30,
		SilenceTimeoutSec: 0.05,
		PrerollIgnoreSec:  0,
		MinStartRMS:       100,
		STTConfThreshold:  -5,
		MinUtteranceMS:    10,
		MinUtteranceRMS:   50,
		CallMaxSec:        60,
		CallerSilenceSec:  60,
		OperatorTimeoutSec: 5,
	}
}

func speechFrame(n int, amp int16) []int16 {
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		if (i/4)%2 == 0 {
			out[i] = amp
		} else {
			out[i] = -amp
		}
	}
	return out
}

func silenceFrame(n int) []int16 { return make([]int16, n) }

// pushUtterance pushes a minimal speech-then-silence pattern that satisfies
// the VAD and utterance-buffer gates under testConfig, starting at base.
func pushUtterance(s *Session, base time.Time) time.Time {
	t := base
	s.PushFrame(dialogmodel.Frame{PCM: speechFrame(40, 150), Arrival: t})
	t = t.Add(10 * time.Millisecond)
	s.PushFrame(dialogmodel.Frame{PCM: speechFrame(40, 150), Arrival: t})
	t = t.Add(10 * time.Millisecond)
	s.PushFrame(dialogmodel.Frame{PCM: silenceFrame(40), Arrival: t})
	t = t.Add(10 * time.Millisecond)
	s.PushFrame(dialogmodel.Frame{PCM: silenceFrame(40), Arrival: t})
	return t.Add(10 * time.Millisecond)
}

func waitForEvent(t *testing.T, ch <-chan dialogmodel.OperatorEvent, want dialogmodel.EventType) dialogmodel.OperatorEvent {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event %s", want)
		}
	}
}

func newTestSession(t *testing.T, transport *fakeTransport, bus *eventbus.Bus) *Session {
	t.Helper()
	return newTestSessionWithSTT(t, transport, bus, fakeSTT{})
}

func newTestSessionWithSTT(t *testing.T, transport *fakeTransport, bus *eventbus.Bus, sttProvider stt.Provider) *Session {
	t.Helper()
	log := dialoglog.GetDefault()
	m, err := metrics.New(otel.GetMeterProvider())
	require.NoError(t, err)
	shared := Shared{
		Bus:     bus,
		Limits:  ratelimit.New(1000, 1000, 1000),
		Hook:    persistence.NewLoggingHook(log),
		Metrics: m,
		Cfg:     testConfig(),
	}
	providers := Providers{STT: sttProvider, TTS: fakeTTS{}, NLU: &fakeNLU{}}
	return New("call-1", providers, shared, transport, log)
}

func TestSession_BookingApprovedAfterHangupStillConfirms(t *testing.T) {
	bus := eventbus.New(dialoglog.GetDefault())
	_, events := bus.Subscribe("")
	transport := &fakeTransport{}
	s := newTestSession(t, transport, bus)

	done := make(chan struct{})
	go func() {
		_ = s.Run(context.Background())
		close(done)
	}()

	base := time.Now()
	base = pushUtterance(s, base)
	pushUtterance(s, base)

	waitForEvent(t, events, dialogmodel.EventBookingPending)

	require.True(t, s.Command(dialogmodel.VerdictApprove))

	confirmed := waitForEvent(t, events, dialogmodel.EventBookingConfirmed)
	require.Equal(t, "call-1", confirmed.CallID)

	waitForEvent(t, events, dialogmodel.EventCallEnded)

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("session did not finish after operator approval")
	}

	transport.mu.Lock()
	require.GreaterOrEqual(t, transport.closed, 1)
	transport.mu.Unlock()
}

func TestSession_STTPermanentFailureEndsCallWithApology(t *testing.T) {
	bus := eventbus.New(dialoglog.GetDefault())
	_, events := bus.Subscribe("")
	transport := &fakeTransport{}
	s := newTestSessionWithSTT(t, transport, bus, fakePermanentFailureSTT{})

	done := make(chan struct{})
	go func() {
		_ = s.Run(context.Background())
		close(done)
	}()

	pushUtterance(s, time.Now())

	agentSaid := waitForEvent(t, events, dialogmodel.EventAgentSaid)
	require.NotEmpty(t, agentSaid.Data["text"])

	waitForEvent(t, events, dialogmodel.EventCallEnded)

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("session did not finish after stt permanent failure")
	}

	s.machineMu.Lock()
	history := s.machine.History
	s.machineMu.Unlock()
	require.NotEmpty(t, history)
	require.Equal(t, dialogmodel.SpeakerAgent, history[len(history)-1].Speaker)
}

func TestSession_CallerSilenceRoutesThroughDialogMachine(t *testing.T) {
	bus := eventbus.New(dialoglog.GetDefault())
	_, events := bus.Subscribe("")
	transport := &fakeTransport{}
	s := newTestSession(t, transport, bus)
	s.cfg.CallerSilenceSec = 1

	done := make(chan struct{})
	go func() {
		_ = s.Run(context.Background())
		close(done)
	}()

	// No caller speech at all: three silence windows should reprompt twice
	// through the dialog state machine, then end the call, all of it
	// visible as agent_said events (never a raw, fsm-bypassing farewell).
	agentSaid := waitForEvent(t, events, dialogmodel.EventAgentSaid)
	require.NotEmpty(t, agentSaid.Data["text"])

	deadline := time.After(8 * time.Second)
	var sawCallEnded bool
	for !sawCallEnded {
		select {
		case ev := <-events:
			if ev.Type == dialogmodel.EventCallEnded {
				sawCallEnded = true
			}
		case <-deadline:
			t.Fatal("timed out waiting for call to end after caller silence")
		}
	}

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("session did not finish after caller silence")
	}

	s.machineMu.Lock()
	state := s.machine.State
	s.machineMu.Unlock()
	require.Equal(t, "Aborted", string(state))
}

func TestSession_OperatorTimeoutRejectsBooking(t *testing.T) {
	bus := eventbus.New(dialoglog.GetDefault())
	_, events := bus.Subscribe("")
	transport := &fakeTransport{}
	s := newTestSession(t, transport, bus)
	s.cfg.OperatorTimeoutSec = 0

	done := make(chan struct{})
	go func() {
		_ = s.Run(context.Background())
		close(done)
	}()

	base := time.Now()
	base = pushUtterance(s, base)
	pushUtterance(s, base)

	waitForEvent(t, events, dialogmodel.EventBookingPending)
	waitForEvent(t, events, dialogmodel.EventBookingRejected)
	waitForEvent(t, events, dialogmodel.EventCallEnded)

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("session did not finish after operator timeout")
	}
}
