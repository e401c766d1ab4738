// Package vad implements the VAD Segmenter (component B): it classifies
// fixed-duration PCM frames as speech or silence and emits SpeechStart /
// SpeechEnd boundary events. It is the sole source of utterance
// boundaries in the pipeline.
package vad

import (
	"time"

	"github.com/brightline-voice/dialogd/internal/codec"
	"github.com/brightline-voice/dialogd/internal/dialoglog"
)

// BoundaryKind distinguishes the two events the segmenter emits.
type BoundaryKind int

const (
	SpeechStart BoundaryKind = iota
	SpeechEnd
)

// Boundary is one speech/silence transition observed by the segmenter.
type Boundary struct {
	Kind BoundaryKind
	At   time.Time
}

// Params are the segmenter's tunable knobs; defaults mirror spec §6/§4.2.
type Params struct {
	Aggressiveness    int     // 0-3
	FrameMS           int     // 20 or 30
	SilenceTimeoutSec float64 // silence required, while speaking, to emit SpeechEnd
	PrerollIgnoreSec  float64 // leading window always treated as silence
	MinStartRMS       float64 // RMS floor, scaled by Aggressiveness
}

// DefaultParams returns spec.md §4.2/§6's documented defaults.
func DefaultParams() Params {
	return Params{
		Aggressiveness:    2,
		FrameMS:           30,
		SilenceTimeoutSec: 2.0,
		PrerollIgnoreSec:  0.5,
		MinStartRMS:       100,
	}
}

// aggressivenessMultiplier scales MinStartRMS: more aggressive settings
// require a stronger signal before a frame counts as speech, trading
// sensitivity for noise rejection. Level 2 (the default) is multiplier 1.0
// so the documented defaults compose cleanly.
var aggressivenessMultiplier = [4]float64{0: 0.6, 1: 0.8, 2: 1.0, 3: 1.3}

// zcrBandHalfWidth, around zcrCenter, bounds the fraction of sign changes per frame treated as
// voice-like; pure tones and line noise fall outside this band even at
// high RMS. Aggressiveness narrows the band.
var zcrBandHalfWidth = [4]float64{0: 0.30, 1: 0.24, 2: 0.18, 3: 0.12}

const zcrCenter = 0.12

type state int

const (
	stateQuiet state = iota
	stateSpeaking
)

// Segmenter is the VAD state machine for a single call. Not safe for
// concurrent use; the Session's inbound loop is its sole caller.
type Segmenter struct {
	params      Params
	frameDurSec float64
	threshold   float64

	state          state
	silenceRunSec  float64
	elapsedSinceStart float64

	log *dialoglog.Logger
}

// New builds a Segmenter for one call.
func New(p Params, log *dialoglog.Logger) *Segmenter {
	return &Segmenter{
		params:      p,
		frameDurSec: float64(p.FrameMS) / 1000.0,
		threshold:   p.MinStartRMS * aggressivenessMultiplier[clampAgg(p.Aggressiveness)],
		state:       stateQuiet,
		log:         log,
	}
}

func clampAgg(a int) int {
	if a < 0 {
		return 0
	}
	if a > 3 {
		return 3
	}
	return a
}

// Classify consumes one fixed-duration PCM frame and returns any boundary
// it produced (nil if none). at is the frame's arrival time, used to stamp
// emitted boundaries.
func (s *Segmenter) Classify(pcm []int16, at time.Time) *Boundary {
	s.elapsedSinceStart += s.frameDurSec

	// Pre-roll: ignore telephony connect noise entirely, never classify.
	if s.elapsedSinceStart <= s.params.PrerollIgnoreSec {
		return nil
	}

	isSpeech := s.isSpeechFrame(pcm)

	switch s.state {
	case stateQuiet:
		if isSpeech {
			s.state = stateSpeaking
			s.silenceRunSec = 0
			s.log.Debug("vad quiet -> speaking")
			return &Boundary{Kind: SpeechStart, At: at}
		}
		return nil

	case stateSpeaking:
		if isSpeech {
			s.silenceRunSec = 0
			return nil
		}
		s.silenceRunSec += s.frameDurSec
		if s.silenceRunSec >= s.params.SilenceTimeoutSec {
			s.state = stateQuiet
			s.silenceRunSec = 0
			s.log.Debug("vad speaking -> quiet (silence timeout)")
			return &Boundary{Kind: SpeechEnd, At: at}
		}
		return nil
	}
	return nil
}

// ForceEnd emits a synthetic SpeechEnd if the segmenter is mid-utterance,
// used by the Session Manager on shutdown/cancellation per spec.md §4.2
// ("MUST be able to emit a forced SpeechEnd on session termination").
func (s *Segmenter) ForceEnd(at time.Time) *Boundary {
	if s.state != stateSpeaking {
		return nil
	}
	s.state = stateQuiet
	s.silenceRunSec = 0
	return &Boundary{Kind: SpeechEnd, At: at}
}

// InSpeech reports whether the segmenter currently considers the call to
// be mid-utterance.
func (s *Segmenter) InSpeech() bool { return s.state == stateSpeaking }

func (s *Segmenter) isSpeechFrame(pcm []int16) bool {
	rms := codec.RMS(pcm)
	if rms < s.threshold {
		return false
	}
	zcr := zeroCrossingRate(pcm)
	half := zcrBandHalfWidth[clampAgg(s.params.Aggressiveness)]
	return zcr >= zcrCenter-half && zcr <= zcrCenter+half
}

func zeroCrossingRate(pcm []int16) float64 {
	if len(pcm) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(pcm); i++ {
		if (pcm[i-1] >= 0) != (pcm[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(pcm)-1)
}
