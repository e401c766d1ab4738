package stt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brightline-voice/dialogd/internal/dialogerr"
	"github.com/brightline-voice/dialogd/internal/dialoglog"
	"github.com/brightline-voice/dialogd/internal/dialogmodel"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	text       string
	avgLogProb float64
	err        error
}

func (f *fakeProvider) Transcribe(ctx context.Context, pcm []int16, model string) (string, float64, error) {
	return f.text, f.avgLogProb, f.err
}

func utteranceFixture() *dialogmodel.Utterance {
	return &dialogmodel.Utterance{ID: 1, PCM: make([]int16, 160), End: time.Now()}
}

func TestGateway_AcceptsCleanHighConfidence(t *testing.T) {
	cfg := DefaultConfig()
	g := New(cfg, &fakeProvider{text: "  I need   a haircut  ", avgLogProb: -0.2}, dialoglog.GetDefault())
	res := g.Transcribe(context.Background(), utteranceFixture())
	require.NoError(t, res.Err)
	require.NotNil(t, res.Transcript)
	require.Equal(t, "I need a haircut", res.Transcript.Text)
}

func TestGateway_RejectsLowConfidence(t *testing.T) {
	cfg := DefaultConfig()
	g := New(cfg, &fakeProvider{text: "hello", avgLogProb: -0.9}, dialoglog.GetDefault())
	res := g.Transcribe(context.Background(), utteranceFixture())
	require.NoError(t, res.Err)
	require.Nil(t, res.Transcript)
}

func TestGateway_StripsHallucinationPhrase(t *testing.T) {
	cfg := DefaultConfig()
	g := New(cfg, &fakeProvider{text: "Thank you for watching", avgLogProb: -0.1}, dialoglog.GetDefault())
	res := g.Transcribe(context.Background(), utteranceFixture())
	require.NoError(t, res.Err)
	require.Nil(t, res.Transcript)
}

func TestGateway_DegradedAfterStreak(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DegradedStreak = 3
	provErr := errors.New("timeout")
	g := New(cfg, &fakeProvider{err: provErr}, dialoglog.GetDefault())

	var last Result
	for i := 0; i < 3; i++ {
		last = g.Transcribe(context.Background(), utteranceFixture())
		require.Error(t, last.Err)
		require.True(t, dialogerr.Is(last.Err, dialogerr.STTTransient))
	}
	require.True(t, last.Degraded)
}

func TestGateway_PermanentFailureBypassesStreak(t *testing.T) {
	cfg := DefaultConfig()
	permErr := dialogerr.New(dialogerr.STTPermanent, "fake", errors.New("401"))
	g := New(cfg, &fakeProvider{err: permErr}, dialoglog.GetDefault())

	res := g.Transcribe(context.Background(), utteranceFixture())
	require.Error(t, res.Err)
	require.True(t, dialogerr.Is(res.Err, dialogerr.STTPermanent))
	require.False(t, res.Degraded)
}
