package session

import (
	"fmt"
	"sync"

	"github.com/brightline-voice/dialogd/internal/dialoglog"
)

// Registry tracks the one live Session per call id, the seam between the
// transport layer (which only knows about WebSocket connections and call
// ids) and the per-call pipeline. Safe for concurrent use: Create,
// Lookup, and the cleanup callback all take the same lock for as short a
// critical section as possible, matching the discipline the Event Bus
// uses for its own subscriber map.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session

	providers Providers
	shared    Shared
	log       *dialoglog.Logger
}

// NewRegistry builds an empty Registry sharing one set of providers and
// process-wide singletons across every call it creates.
func NewRegistry(providers Providers, shared Shared, log *dialoglog.Logger) *Registry {
	return &Registry{
		sessions:  make(map[string]*Session),
		providers: providers,
		shared:    shared,
		log:       log,
	}
}

// Create allocates a new Session for callID and registers it. Returns an
// error if a Session for this call id is already active — the media
// WebSocket must open at most once per call.
func (r *Registry) Create(callID string, transport Transport) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[callID]; exists {
		return nil, fmt.Errorf("session: call %s already has an active session", callID)
	}
	s := New(callID, r.providers, r.shared, transport, r.log)
	s.OnFinished(func() { r.remove(callID) })
	r.sessions[callID] = s
	return s, nil
}

// Lookup returns the live Session for callID, if any.
func (r *Registry) Lookup(callID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[callID]
	return s, ok
}

// Len reports the number of currently live sessions, for diagnostics.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Shutdown requests a graceful stop of every live session, used on process
// signal shutdown.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()
	for _, s := range sessions {
		s.Stop()
	}
}

func (r *Registry) remove(callID string) {
	r.mu.Lock()
	delete(r.sessions, callID)
	r.mu.Unlock()
}
