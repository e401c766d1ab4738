package vad

import (
	"math"
	"testing"
	"time"

	"github.com/brightline-voice/dialogd/internal/dialoglog"
	"github.com/stretchr/testify/require"
)

func speechFrame(n int) []int16 {
	pcm := make([]int16, n)
	for i := range pcm {
		// A synthetic tone around the voice ZCR band at strong amplitude.
		pcm[i] = int16(8000 * sin(float64(i)*0.3))
	}
	return pcm
}

func sin(x float64) float64 { return math.Sin(x) }

func silenceFrame(n int) []int16 {
	return make([]int16, n)
}

func testParams() Params {
	p := DefaultParams()
	p.PrerollIgnoreSec = 0
	p.SilenceTimeoutSec = 0.06 // 2 frames at 30ms
	return p
}

func TestSegmenter_EmitsStartThenEndAfterSilenceTimeout(t *testing.T) {
	seg := New(testParams(), dialoglog.GetDefault())
	now := time.Now()
	frameN := 16 * 30 // 30ms @16kHz

	b := seg.Classify(speechFrame(frameN), now)
	require.NotNil(t, b)
	require.Equal(t, SpeechStart, b.Kind)
	require.True(t, seg.InSpeech())

	// More speech: no boundary.
	require.Nil(t, seg.Classify(speechFrame(frameN), now))

	// Silence frames until the timeout elapses.
	require.Nil(t, seg.Classify(silenceFrame(frameN), now))
	b = seg.Classify(silenceFrame(frameN), now)
	require.NotNil(t, b)
	require.Equal(t, SpeechEnd, b.Kind)
	require.False(t, seg.InSpeech())
}

func TestSegmenter_PrerollIgnoresLeadingFrames(t *testing.T) {
	p := DefaultParams()
	p.PrerollIgnoreSec = 1.0
	seg := New(p, dialoglog.GetDefault())
	frameN := 16 * 30

	// First frame is within the 0.5s+ preroll window (30ms elapsed < 1s).
	require.Nil(t, seg.Classify(speechFrame(frameN), time.Now()))
	require.False(t, seg.InSpeech())
}

func TestSegmenter_SilenceNeverTriggersStart(t *testing.T) {
	seg := New(testParams(), dialoglog.GetDefault())
	frameN := 16 * 30
	require.Nil(t, seg.Classify(silenceFrame(frameN), time.Now()))
	require.False(t, seg.InSpeech())
}

func TestSegmenter_ForceEndOnlyWhileSpeaking(t *testing.T) {
	seg := New(testParams(), dialoglog.GetDefault())
	require.Nil(t, seg.ForceEnd(time.Now()))

	frameN := 16 * 30
	seg.Classify(speechFrame(frameN), time.Now())
	b := seg.ForceEnd(time.Now())
	require.NotNil(t, b)
	require.Equal(t, SpeechEnd, b.Kind)
	require.False(t, seg.InSpeech())
}
