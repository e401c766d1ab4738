package resilience

import (
	"errors"
	"fmt"

	"github.com/brightline-voice/dialogd/internal/dialoglog"
)

// ErrAllFailed is returned when every entry in a FallbackGroup fails or has
// an open circuit breaker.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig configures the per-entry circuit breaker created for each
// provider in a FallbackGroup.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup wraps a primary and zero or more fallback instances of the
// same provider type. When the primary fails, or its breaker is open, the
// next healthy fallback is tried in registration order.
type FallbackGroup[T any] struct {
	entries []fallbackEntry[T]
	cfg     FallbackConfig
}

// NewFallbackGroup creates a FallbackGroup with primary as the first entry.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	cbCfg := cfg.CircuitBreaker
	cbCfg.Name = primaryName
	return &FallbackGroup[T]{
		entries: []fallbackEntry[T]{{name: primaryName, value: primary, breaker: NewCircuitBreaker(cbCfg)}},
		cfg:     cfg,
	}
}

// AddFallback appends a fallback provider, tried after the primary and any
// previously added fallback.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = name
	fg.entries = append(fg.entries, fallbackEntry[T]{name: name, value: fallback, breaker: NewCircuitBreaker(cbCfg)})
}

// Len reports how many providers (primary + fallbacks) are registered.
func (fg *FallbackGroup[T]) Len() int { return len(fg.entries) }

// Execute tries fn against each entry in order until one succeeds.
func (fg *FallbackGroup[T]) Execute(fn func(T) error) error {
	var lastErr error
	for i := range fg.entries {
		entry := &fg.entries[i]
		err := entry.breaker.Execute(func() error { return fn(entry.value) })
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			dialoglog.GetDefault().Debug("skipping provider %s (circuit open)", entry.name)
		} else {
			dialoglog.GetDefault().Warn("provider %s failed, trying next: %v", entry.name, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}

// ExecuteWithResult tries fn against each entry until one succeeds,
// returning both result and error. A package-level function because Go
// does not support method-level type parameters.
func ExecuteWithResult[T any, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var (
		lastErr error
		zero    R
	)
	for i := range fg.entries {
		entry := &fg.entries[i]
		var result R
		err := entry.breaker.Execute(func() error {
			var innerErr error
			result, innerErr = fn(entry.value)
			return innerErr
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			dialoglog.GetDefault().Debug("skipping provider %s (circuit open)", entry.name)
		} else {
			dialoglog.GetDefault().Warn("provider %s failed, trying next: %v", entry.name, err)
		}
	}
	return zero, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}
