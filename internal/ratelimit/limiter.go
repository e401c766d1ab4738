// Package ratelimit provides the shared, process-wide token buckets that
// gate outbound calls to the STT, TTS, and NLU providers, so one noisy call
// can't starve every other concurrent call of provider quota.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiters groups the three provider-facing buckets a Session needs.
type Limiters struct {
	STT *rate.Limiter
	TTS *rate.Limiter
	NLU *rate.Limiter
}

// New builds token buckets at qps requests/second per provider, with a
// burst of one extra request so a single call doesn't stall on the very
// first utterance while the bucket is still filling.
func New(sttQPS, ttsQPS, nluQPS float64) *Limiters {
	return &Limiters{
		STT: rate.NewLimiter(rate.Limit(sttQPS), burst(sttQPS)),
		TTS: rate.NewLimiter(rate.Limit(ttsQPS), burst(ttsQPS)),
		NLU: rate.NewLimiter(rate.Limit(nluQPS), burst(nluQPS)),
	}
}

func burst(qps float64) int {
	if qps < 1 {
		return 1
	}
	return int(qps) + 1
}

// Wait blocks until l permits one more request or ctx is canceled.
func Wait(ctx context.Context, l *rate.Limiter) error {
	return l.Wait(ctx)
}
