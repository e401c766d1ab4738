// Package persistence defines the one seam between a confirmed booking and
// whatever system of record a deployment points it at. The core dialog
// pipeline never knows about that system's schema, retry policy, or
// durability guarantees — that is entirely this hook's concern.
package persistence

import (
	"context"

	"github.com/brightline-voice/dialogd/internal/dialogmodel"
)

// Hook is invoked once, after the operator approves a booking, with the
// completed draft. Implementations own their own retries; a failure here
// must never unwind the call that already told the caller "you're booked."
type Hook interface {
	OnBookingApproved(ctx context.Context, draft dialogmodel.BookingDraft) error
}

// LoggingHook is the default no-op hook: it records that a booking was
// approved without writing it anywhere durable. Suitable for local
// development and for deployments that haven't wired a CRM yet.
type LoggingHook struct {
	log interface{ Info(format string, args ...interface{}) }
}

// NewLoggingHook builds a Hook that only logs.
func NewLoggingHook(log interface{ Info(format string, args ...interface{}) }) *LoggingHook {
	return &LoggingHook{log: log}
}

func (h *LoggingHook) OnBookingApproved(ctx context.Context, draft dialogmodel.BookingDraft) error {
	h.log.Info("persistence: booking %s approved (slots=%v) — no system of record configured, logging only", draft.ID, draft.Slots)
	return nil
}
