// Package utterance implements the Utterance Buffer (component C): it
// accumulates PCM between SpeechStart/SpeechEnd boundaries, applies the
// duration and energy gates, and hands accepted utterances to the
// Transcription Gateway over a bounded, drop-oldest queue.
package utterance

import (
	"time"

	"github.com/brightline-voice/dialogd/internal/codec"
	"github.com/brightline-voice/dialogd/internal/dialoglog"
	"github.com/brightline-voice/dialogd/internal/dialogmodel"
)

// Gates are the acceptance thresholds from spec.md §4.3/§6.
type Gates struct {
	MinDurationMS int
	MinPeakRMS    float64
}

// DefaultGates returns the documented defaults (500ms, RMS 60).
func DefaultGates() Gates { return Gates{MinDurationMS: 500, MinPeakRMS: 60} }

// Buffer is single-writer: only the Session's inbound loop calls Append/
// Flush. Handoff to D is via a bounded channel of depth queueDepth; when
// full, the oldest queued utterance is dropped and a warning logged,
// rather than blocking the inbound loop.
type Buffer struct {
	gates Gates
	out   chan *dialogmodel.Utterance
	log   *dialoglog.Logger

	nextID  uint64
	pcm     []int16
	start   time.Time
	peakRMS float64

	dropped int
}

// New builds a Buffer with the given acceptance gates and queue depth K.
func New(gates Gates, queueDepth int, log *dialoglog.Logger) *Buffer {
	if queueDepth <= 0 {
		queueDepth = 4
	}
	return &Buffer{
		gates: gates,
		out:   make(chan *dialogmodel.Utterance, queueDepth),
		log:   log,
	}
}

// Out is the bounded queue of accepted utterances consumed by D.
func (b *Buffer) Out() <-chan *dialogmodel.Utterance { return b.out }

// Begin starts accumulation at a SpeechStart boundary.
func (b *Buffer) Begin(at time.Time) {
	b.pcm = b.pcm[:0]
	b.start = at
	b.peakRMS = 0
}

// Append adds one classified-speech PCM frame to the in-progress
// utterance.
func (b *Buffer) Append(pcm []int16) {
	b.pcm = append(b.pcm, pcm...)
	if rms := codec.RMS(pcm); rms > b.peakRMS {
		b.peakRMS = rms
	}
}

// End closes the in-progress utterance at a SpeechEnd boundary, applies
// the duration/RMS gates, and enqueues it if accepted. Returns whether the
// utterance was accepted.
func (b *Buffer) End(at time.Time) bool {
	durationMS := int(at.Sub(b.start).Milliseconds())
	if durationMS < b.gates.MinDurationMS {
		b.log.Debug("utterance discarded: duration %dms < %dms", durationMS, b.gates.MinDurationMS)
		return false
	}
	if b.peakRMS < b.gates.MinPeakRMS {
		b.log.Debug("utterance discarded: peak RMS %.1f < %.1f", b.peakRMS, b.gates.MinPeakRMS)
		return false
	}

	b.nextID++
	u := &dialogmodel.Utterance{
		ID:      b.nextID,
		PCM:     append([]int16(nil), b.pcm...),
		Start:   b.start,
		End:     at,
		PeakRMS: b.peakRMS,
	}

	select {
	case b.out <- u:
	default:
		select {
		case dropped := <-b.out:
			b.dropped++
			b.log.Warn("utterance queue full, dropped utterance %d (total dropped %d)", dropped.ID, b.dropped)
		default:
		}
		select {
		case b.out <- u:
		default:
			b.log.Warn("utterance queue still full after drop, discarding utterance %d", u.ID)
			return false
		}
	}
	return true
}

// Dropped reports how many queued utterances have been dropped for
// capacity since the buffer was created.
func (b *Buffer) Dropped() int { return b.dropped }
