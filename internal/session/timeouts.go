package session

import (
	"time"

	"github.com/brightline-voice/dialogd/internal/dialog/fsm"
)

// runSilenceMonitor watches for CALLER_SILENCE_SEC stretches with no new
// caller speech. Every silent window is dispatched into the dialog state
// machine as EvSilenceTimeout, so E itself owns producing the reprompt
// turn (windows 1-2) and the forced farewell (window 3) per spec.md §4.5's
// "side effects of E are limited to..." invariant — the monitor only
// tracks wall-clock idle time, never speaks on its own.
func (s *Session) runSilenceMonitor() {
	defer s.wg.Done()

	s.lastSpeechMu.Lock()
	s.lastSpeechAt = time.Now()
	s.lastSpeechMu.Unlock()

	interval := time.Duration(s.cfg.CallerSilenceSec) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	streak := 0
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.lastSpeechMu.Lock()
			idle := time.Since(s.lastSpeechAt)
			s.lastSpeechMu.Unlock()

			if idle >= interval {
				streak++
				s.log.Warn("caller silence period %d/3 (idle %s)", streak, idle)
				final := streak >= 3
				s.dispatch(fsm.Event{Kind: fsm.EvSilenceTimeout, Final: final})
				if final {
					return
				}
			} else {
				streak = 0
			}
		}
	}
}

// runCallMaxWatcher ends the call once CALL_MAX_SEC has elapsed, regardless
// of dialog state, per spec.md's hard ceiling on call duration.
func (s *Session) runCallMaxWatcher() {
	timer := time.NewTimer(time.Duration(s.cfg.CallMaxSec) * time.Second)
	defer timer.Stop()
	select {
	case <-timer.C:
		s.shutdown("call_max")
	case <-s.ctx.Done():
	}
}
