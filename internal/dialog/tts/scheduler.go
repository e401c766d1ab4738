// Package tts implements the TTS Output Scheduler (component F): it turns
// one dialogmodel.AgentTurn at a time into a rate-paced stream of PCM16
// frames, with barge-in cancellation wired to the caller's VAD boundary.
package tts

import (
	"context"
	"sync"
	"time"

	"github.com/brightline-voice/dialogd/internal/dialogerr"
	"github.com/brightline-voice/dialogd/internal/dialoglog"
	"github.com/brightline-voice/dialogd/internal/dialogmodel"
	"github.com/brightline-voice/dialogd/internal/resilience"
)

// Provider synthesizes one turn of text into 16kHz PCM16 samples.
type Provider interface {
	Synthesize(ctx context.Context, text, voiceID string) ([]int16, error)
}

// Config controls pacing and fallback behavior.
type Config struct {
	VoiceID          string
	FallbackVoiceID  string
	FrameMS          int     // outbound pacing quantum; matches the wire frame size
	FallbackClip     []int16 // pre-recorded apology clip played when every provider fails
	CircuitBreaker   resilience.CircuitBreakerConfig
}

// DefaultConfig mirrors the spec's default frame cadence.
func DefaultConfig() Config {
	return Config{
		FrameMS: 30,
		CircuitBreaker: resilience.CircuitBreakerConfig{
			Name:        "tts",
			MaxFailures: 3,
			ResetTimeout: 15 * time.Second,
			HalfOpenMax:  2,
		},
	}
}

const pipelineSampleRate = 16000

// Scheduler streams one AgentTurn's audio at a time onto Frames, honoring
// cancellation from barge-in for interruptible turns only.
type Scheduler struct {
	cfg          Config
	fallback     *resilience.FallbackGroup[Provider]
	frameSamples int
	log          *dialoglog.Logger

	out     chan []int16
	hangup  chan struct{}
	hangupOnce sync.Once

	mu            sync.Mutex
	cancelCurrent context.CancelFunc
	interruptible bool
	speaking      bool
}

// New builds a Scheduler around a primary provider and, when
// fallbackProvider is non-nil, a fallback provider tried after the primary
// fails. Both are asked for cfg.VoiceID; cfg.FallbackVoiceID is not used.
func New(cfg Config, primary Provider, fallbackProvider Provider, log *dialoglog.Logger) *Scheduler {
	if cfg.FrameMS <= 0 {
		cfg.FrameMS = 30
	}
	fg := resilience.NewFallbackGroup[Provider](primary, "tts-primary", resilience.FallbackConfig{CircuitBreaker: cfg.CircuitBreaker})
	if fallbackProvider != nil {
		fg.AddFallback("tts-fallback", fallbackProvider)
	}
	return &Scheduler{
		cfg:          cfg,
		fallback:     fg,
		frameSamples: cfg.FrameMS * pipelineSampleRate / 1000,
		log:          log,
		out:          make(chan []int16, 64),
		hangup:       make(chan struct{}),
	}
}

// Frames is the paced outbound stream; the Session forwards each slice to
// the Frame Codec for re-encoding onto the media WebSocket.
func (s *Scheduler) Frames() <-chan []int16 { return s.out }

// Hangup closes once a Terminal turn finishes playing without interruption;
// the Session is expected to close the media WebSocket in response.
func (s *Scheduler) Hangup() <-chan struct{} { return s.hangup }

// Interrupt cancels the in-flight turn if, and only if, it was marked
// Interruptible. Called by the Session when the caller's VAD reports a new
// SpeechStart boundary while the agent is speaking.
func (s *Scheduler) Interrupt() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.speaking || !s.interruptible || s.cancelCurrent == nil {
		return false
	}
	s.cancelCurrent()
	return true
}

// Speak synthesizes and streams one turn to completion, or until ctx is
// canceled or Interrupt() fires on an interruptible turn. It blocks until
// the turn's audio has been fully queued or cut short.
func (s *Scheduler) Speak(ctx context.Context, turn dialogmodel.AgentTurn) error {
	turnCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancelCurrent = cancel
	s.interruptible = turn.Interruptible
	s.speaking = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.speaking = false
		s.cancelCurrent = nil
		s.mu.Unlock()
		cancel()
	}()

	pcm, err := s.synthesize(turnCtx, turn.Text)
	if err != nil {
		if len(s.cfg.FallbackClip) == 0 {
			return dialogerr.New(dialogerr.TTSFailure, "tts.Speak", err)
		}
		s.log.Warn("tts: all providers failed, playing fallback clip: %v", err)
		pcm = s.cfg.FallbackClip
	}

	completed := s.stream(turnCtx, pcm)
	if completed && turn.Terminal {
		s.hangupOnce.Do(func() { close(s.hangup) })
	}
	return nil
}

func (s *Scheduler) synthesize(ctx context.Context, text string) ([]int16, error) {
	return resilience.ExecuteWithResult[Provider, []int16](s.fallback, func(p Provider) ([]int16, error) {
		voice := s.cfg.VoiceID
		return p.Synthesize(ctx, text, voice)
	})
}

// stream paces audio out in FrameMS-sized chunks, returning true only if it
// ran to completion without the context being canceled.
func (s *Scheduler) stream(ctx context.Context, pcm []int16) bool {
	if s.frameSamples <= 0 {
		s.frameSamples = DefaultConfig().FrameMS * pipelineSampleRate / 1000
	}
	ticker := time.NewTicker(time.Duration(s.cfg.FrameMS) * time.Millisecond)
	defer ticker.Stop()

	for offset := 0; offset < len(pcm); offset += s.frameSamples {
		end := offset + s.frameSamples
		if end > len(pcm) {
			end = len(pcm)
		}
		frame := pcm[offset:end]

		select {
		case <-ctx.Done():
			return false
		default:
		}

		select {
		case s.out <- frame:
		case <-ctx.Done():
			return false
		}

		if end < len(pcm) {
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return false
			}
		}
	}
	return true
}
