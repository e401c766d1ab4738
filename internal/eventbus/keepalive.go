package eventbus

import (
	"context"
	"time"

	"github.com/brightline-voice/dialogd/internal/dialogmodel"
)

// KeepaliveInterval matches the idle-connection keepalive the operator
// WebSocket promises clients per spec.md's external interface.
const KeepaliveInterval = 20 * time.Second

// RunKeepalive broadcasts EventKeepalive on a fixed interval until ctx is
// canceled, so operator clients (and any proxy between them) never see the
// connection go quiet during a long wait for caller input.
func (b *Bus) RunKeepalive(ctx context.Context) {
	ticker := time.NewTicker(KeepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.Publish(dialogmodel.OperatorEvent{Type: dialogmodel.EventKeepalive})
		}
	}
}
