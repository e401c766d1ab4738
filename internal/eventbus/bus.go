// Package eventbus implements the Event Bus (component H): a pub/sub layer
// over the operator WebSocket. Publishers (one per call, via the Dialog
// State Machine's EffectPublishEvent) never block on a slow subscriber;
// falling behind costs the subscriber a dropped event and a lagged notice,
// never the call itself.
package eventbus

import (
	"errors"
	"sync"

	"github.com/brightline-voice/dialogd/internal/dialoglog"
	"github.com/brightline-voice/dialogd/internal/dialogmodel"
)

// ErrUnknownCall is returned by Command when no live call matches call_id,
// or the call has already left AwaitingOperator (e.g. it timed out).
var ErrUnknownCall = errors.New("eventbus: unknown or terminated call")

const subscriberQueueDepth = 32

// VerdictHandler receives a routed operator decision for one call.
type VerdictHandler func(dialogmodel.OperatorVerdict)

type subscriber struct {
	id         uint64
	callFilter string // "" subscribes to every call
	ch         chan dialogmodel.OperatorEvent

	deliverMu   sync.Mutex
	lagNotified bool
	dropped     int // events dropped since the last EventLagged notice
}

// Bus is the process-wide operator event hub. Safe for concurrent use by
// every Session and every operator WebSocket connection.
type Bus struct {
	mu   sync.Mutex
	subs map[uint64]*subscriber
	next uint64

	seq      map[string]uint64
	verdicts map[string]VerdictHandler

	log *dialoglog.Logger
}

// New builds an empty Bus.
func New(log *dialoglog.Logger) *Bus {
	return &Bus{
		subs:     make(map[uint64]*subscriber),
		seq:      make(map[string]uint64),
		verdicts: make(map[string]VerdictHandler),
		log:      log,
	}
}

// Subscribe registers an operator connection. callFilter narrows the stream
// to one call_id, or "" for every call (the dashboard view). Keepalives
// reach every subscriber regardless of filter.
func (b *Bus) Subscribe(callFilter string) (id uint64, events <-chan dialogmodel.OperatorEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	sub := &subscriber{id: b.next, callFilter: callFilter, ch: make(chan dialogmodel.OperatorEvent, subscriberQueueDepth)}
	b.subs[sub.id] = sub
	return sub.id, sub.ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[id]; ok {
		close(sub.ch)
		delete(b.subs, id)
	}
}

// Publish stamps ev with the next per-call sequence number and fans it out.
// A subscriber whose queue is full has its oldest event dropped to make
// room, followed by an EventLagged notice in its place.
func (b *Bus) Publish(ev dialogmodel.OperatorEvent) {
	b.mu.Lock()
	b.seq[ev.CallID]++
	ev.Seq = b.seq[ev.CallID]
	recipients := make([]*subscriber, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.callFilter == "" || sub.callFilter == ev.CallID || ev.Type == dialogmodel.EventKeepalive {
			recipients = append(recipients, sub)
		}
	}
	b.mu.Unlock()

	for _, sub := range recipients {
		b.deliver(sub, ev)
	}
}

// deliver sends ev to sub, dropping the oldest queued event to make room
// when full. A lagged notice is spliced in once per lag episode (not once
// per drop), so a slow subscriber sees one warning rather than the notice
// itself crowding out the events it's meant to explain.
func (b *Bus) deliver(sub *subscriber, ev dialogmodel.OperatorEvent) {
	sub.deliverMu.Lock()
	defer sub.deliverMu.Unlock()

	select {
	case sub.ch <- ev:
		sub.lagNotified = false
		return
	default:
	}

	select {
	case <-sub.ch:
		sub.dropped++
		b.log.Warn("eventbus: subscriber %d lagging, dropped oldest event for call %s", sub.id, ev.CallID)
	default:
	}

	if !sub.lagNotified {
		select {
		case <-sub.ch:
			sub.dropped++
		default:
		}
		notice := dialogmodel.OperatorEvent{
			Type:   dialogmodel.EventLagged,
			CallID: ev.CallID,
			Data:   map[string]any{"dropped": sub.dropped},
		}
		select {
		case sub.ch <- notice:
			sub.lagNotified = true
			sub.dropped = 0
		default:
		}
	}

	select {
	case sub.ch <- ev:
	default:
		sub.dropped++
		b.log.Warn("eventbus: subscriber %d still full after drop, discarding event for call %s", sub.id, ev.CallID)
	}
}

// RegisterVerdictHandler wires up the Session that should receive the next
// Command routed to call_id. Replaces any prior handler for the same call.
func (b *Bus) RegisterVerdictHandler(callID string, h VerdictHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.verdicts[callID] = h
}

// UnregisterVerdictHandler removes the handler once a call leaves
// AwaitingOperator (approved, rejected, or timed out), so a stray Command
// for a finished call correctly reports ErrUnknownCall.
func (b *Bus) UnregisterVerdictHandler(callID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.verdicts, callID)
}

// Command routes an operator's approve/reject decision to the Session
// awaiting it. bookingID is accepted for parity with the external interface
// but routing is keyed on call_id, since each call has exactly one booking
// in flight.
func (b *Bus) Command(callID, bookingID string, verdict dialogmodel.OperatorVerdict) error {
	b.mu.Lock()
	h, ok := b.verdicts[callID]
	b.mu.Unlock()
	if !ok {
		return ErrUnknownCall
	}
	h(verdict)
	return nil
}
