package tts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brightline-voice/dialogd/internal/dialoglog"
	"github.com/brightline-voice/dialogd/internal/dialogmodel"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	pcm     []int16
	err     error
	delay   time.Duration
}

func (f *fakeProvider) Synthesize(ctx context.Context, text, voiceID string) ([]int16, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.pcm, nil
}

func testConfig() Config {
	c := DefaultConfig()
	c.FrameMS = 5
	return c
}

func drain(t *testing.T, s *Scheduler, want int) [][]int16 {
	t.Helper()
	var frames [][]int16
	timeout := time.After(2 * time.Second)
	for len(frames) < want {
		select {
		case f := <-s.Frames():
			frames = append(frames, f)
		case <-timeout:
			t.Fatalf("timed out waiting for frames, got %d want %d", len(frames), want)
		}
	}
	return frames
}

func TestScheduler_StreamsFullTurn(t *testing.T) {
	pcm := make([]int16, 80*6) // 6 frames at 5ms/80 samples each
	p := &fakeProvider{pcm: pcm}
	s := New(testConfig(), p, nil, dialoglog.GetDefault())

	done := make(chan error, 1)
	go func() { done <- s.Speak(context.Background(), dialogmodel.AgentTurn{Text: "hi", Interruptible: true}) }()

	frames := drain(t, s, len(pcm)/s.frameSamples)
	require.Len(t, frames, len(pcm)/s.frameSamples)
	require.NoError(t, <-done)
}

func TestScheduler_TerminalTurnSignalsHangup(t *testing.T) {
	pcm := make([]int16, 80)
	p := &fakeProvider{pcm: pcm}
	s := New(testConfig(), p, nil, dialoglog.GetDefault())

	done := make(chan error, 1)
	go func() {
		done <- s.Speak(context.Background(), dialogmodel.AgentTurn{Text: "bye", Terminal: true, Interruptible: false})
	}()
	drain(t, s, 1)
	require.NoError(t, <-done)

	select {
	case <-s.Hangup():
	case <-time.After(time.Second):
		t.Fatal("expected hangup signal after terminal turn completed")
	}
}

func TestScheduler_InterruptStopsInterruptibleTurn(t *testing.T) {
	pcm := make([]int16, 80*50) // long turn
	p := &fakeProvider{pcm: pcm}
	s := New(testConfig(), p, nil, dialoglog.GetDefault())

	done := make(chan error, 1)
	go func() {
		done <- s.Speak(context.Background(), dialogmodel.AgentTurn{Text: "long", Interruptible: true})
	}()

	drain(t, s, 1)
	require.True(t, s.Interrupt())
	require.NoError(t, <-done)
}

func TestScheduler_NonInterruptibleIgnoresInterrupt(t *testing.T) {
	pcm := make([]int16, 80)
	p := &fakeProvider{pcm: pcm}
	s := New(testConfig(), p, nil, dialoglog.GetDefault())

	done := make(chan error, 1)
	go func() {
		done <- s.Speak(context.Background(), dialogmodel.AgentTurn{Text: "final", Terminal: true, Interruptible: false})
	}()

	time.Sleep(10 * time.Millisecond)
	require.False(t, s.Interrupt())
	<-done
}

func TestScheduler_FallbackClipOnTotalFailure(t *testing.T) {
	p := &fakeProvider{err: errors.New("boom")}
	cfg := testConfig()
	cfg.FallbackClip = []int16{1, 2, 3, 4}
	s := New(cfg, p, nil, dialoglog.GetDefault())
	s.frameSamples = 4

	done := make(chan error, 1)
	go func() { done <- s.Speak(context.Background(), dialogmodel.AgentTurn{Text: "oops"}) }()

	frames := drain(t, s, 1)
	require.Equal(t, cfg.FallbackClip, frames[0])
	require.NoError(t, <-done)
}

func TestScheduler_FallbackProviderUsedWhenPrimaryFails(t *testing.T) {
	primary := &fakeProvider{err: errors.New("down")}
	fallback := &fakeProvider{pcm: []int16{9, 9, 9, 9}}
	cfg := testConfig()
	s := New(cfg, primary, fallback, dialoglog.GetDefault())
	s.frameSamples = 4

	done := make(chan error, 1)
	go func() { done <- s.Speak(context.Background(), dialogmodel.AgentTurn{Text: "hi"}) }()

	frames := drain(t, s, 1)
	require.Equal(t, fallback.pcm, frames[0])
	require.NoError(t, <-done)
}
