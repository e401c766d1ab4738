// Package stt implements the Transcription Gateway (component D): it
// submits utterances to the external STT provider, applies confidence
// filtering and hallucination text cleaning, and tracks a consecutive
// failure streak for the degraded-mode event.
package stt

import (
	"context"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/brightline-voice/dialogd/internal/dialogerr"
	"github.com/brightline-voice/dialogd/internal/dialoglog"
	"github.com/brightline-voice/dialogd/internal/dialogmodel"
	"github.com/brightline-voice/dialogd/internal/resilience"
)

// Provider maps utterance PCM to a raw transcript + average log-prob
// confidence. Implementations call out to the external STT service; the
// core never knows its wire protocol.
type Provider interface {
	Transcribe(ctx context.Context, pcm16k []int16, model string) (text string, avgLogProb float64, err error)
}

// Config holds the tunables from spec.md §4.4/§6.
type Config struct {
	Model               string
	ConfidenceThreshold float64 // default -0.7
	RequestTimeout      time.Duration
	DenyList            []string // hallucination phrases to strip
	DegradedStreak      int      // consecutive failures before a degraded event (default 5)
}

// DefaultConfig returns the documented defaults plus a starter deny-list of
// generic STT hallucinations seen on short/low-energy segments.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: -0.7,
		RequestTimeout:      8 * time.Second,
		DegradedStreak:      5,
		DenyList: []string{
			"thank you for watching",
			"thanks for watching",
			"please subscribe",
			"like and subscribe",
		},
	}
}

// Gateway is the Transcription Gateway. One Gateway is created per Session
// so each call's consecutive-failure streak is independent, matching
// spec.md's per-call error handling ("the Session is not terminated").
type Gateway struct {
	cfg     Config
	primary Provider
	breaker *resilience.CircuitBreaker
	log     *dialoglog.Logger
}

// New builds a Gateway around the STT provider.
func New(cfg Config, primary Provider, log *dialoglog.Logger) *Gateway {
	return &Gateway{
		cfg:     cfg,
		primary: primary,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:        "stt",
			MaxFailures: cfg.DegradedStreak,
		}),
		log: log,
	}
}

// Result is the outcome of Transcribe: either an accepted Transcript, or a
// reason the utterance was dropped.
type Result struct {
	Transcript *dialogmodel.Transcript
	Degraded   bool // consecutive-failure streak crossed the threshold this call
	Err        error
}

// Transcribe submits one utterance. Per spec.md §4.4 the utterance is
// dropped (not a fatal error) whenever the provider fails, the confidence
// is below threshold, or the cleaned text is empty/too short.
func (g *Gateway) Transcribe(ctx context.Context, u *dialogmodel.Utterance) Result {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.RequestTimeout)
	defer cancel()

	var text string
	var avgLogProb float64
	var permanentErr error
	callErr := g.breaker.Execute(func() error {
		t, lp, e := g.primary.Transcribe(ctx, u.PCM, g.cfg.Model)
		text, avgLogProb = t, lp
		if dialogerr.Is(e, dialogerr.STTPermanent) {
			// Auth/4xx failures will not recover by retrying; surface them
			// directly rather than counting toward the transient streak.
			permanentErr = e
			return nil
		}
		return e
	})

	if permanentErr != nil {
		g.log.Error("stt permanent failure: %v", permanentErr)
		return Result{Err: permanentErr}
	}

	if callErr != nil {
		streak := g.breaker.ConsecutiveFailures()
		degraded := streak >= g.cfg.DegradedStreak
		g.log.Warn("stt transcribe failed for utterance %d (streak=%d): %v", u.ID, streak, callErr)
		return Result{Err: dialogerr.New(dialogerr.STTTransient, "stt.Transcribe", callErr), Degraded: degraded}
	}

	if avgLogProb < g.cfg.ConfidenceThreshold {
		g.log.Debug("transcript for utterance %d below confidence threshold (%.2f < %.2f)",
			u.ID, avgLogProb, g.cfg.ConfidenceThreshold)
		return Result{}
	}

	cleaned := g.clean(text)
	if len(cleaned) < 2 {
		g.log.Debug("transcript for utterance %d discarded after cleaning (too short)", u.ID)
		return Result{}
	}

	return Result{Transcript: &dialogmodel.Transcript{
		UtteranceID: u.ID,
		Text:        cleaned,
		AvgLogProb:  avgLogProb,
		At:          u.End,
	}}
}

func (g *Gateway) clean(text string) string {
	for _, phrase := range g.cfg.DenyList {
		re := regexp.MustCompile("(?i)" + regexp.QuoteMeta(phrase))
		text = re.ReplaceAllString(text, " ")
	}
	text = collapseWhitespace(text)
	if onlyPunctuation(text) {
		return ""
	}
	return text
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func onlyPunctuation(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			return false
		}
	}
	return true
}
