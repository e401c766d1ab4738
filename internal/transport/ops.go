package transport

import (
	"net/http"
	"time"

	"github.com/brightline-voice/dialogd/internal/dialoglog"
	"github.com/brightline-voice/dialogd/internal/dialogmodel"
	"github.com/brightline-voice/dialogd/internal/eventbus"
	"github.com/gorilla/websocket"
)

var opsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// opsOutbound is the wire shape of every server->client message on /ops,
// exactly spec.md §6's operator WebSocket contract.
type opsOutbound struct {
	Type   dialogmodel.EventType `json:"type"`
	Seq    uint64                `json:"seq"`
	CallID string                `json:"call_id"`
	TS     time.Time             `json:"ts"`
	Data   map[string]any        `json:"data,omitempty"`
}

// opsInbound is the wire shape of a client->server approve/reject command.
type opsInbound struct {
	Type      string `json:"type"`
	CallID    string `json:"call_id"`
	BookingID string `json:"booking_id"`
	Note      string `json:"note,omitempty"`
}

// OpsHandler serves /ops: it subscribes every connection to the Event Bus
// (optionally filtered to one call id via ?call_id=), streams every
// OperatorEvent as JSON, and routes approve/reject commands it reads back
// into the Bus for the owning Session to pick up.
type OpsHandler struct {
	bus *eventbus.Bus
	log *dialoglog.Logger
}

// NewOpsHandler builds an OpsHandler over bus.
func NewOpsHandler(bus *eventbus.Bus, log *dialoglog.Logger) *OpsHandler {
	return &OpsHandler{bus: bus, log: log}
}

func (h *OpsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := opsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ops: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	callFilter := r.URL.Query().Get("call_id")
	subID, events := h.bus.Subscribe(callFilter)
	defer h.bus.Unsubscribe(subID)

	done := make(chan struct{})
	go h.readCommands(conn, done)

	for {
		select {
		case <-done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			out := opsOutbound{Type: ev.Type, Seq: ev.Seq, CallID: ev.CallID, TS: ev.At, Data: ev.Data}
			if err := conn.WriteJSON(out); err != nil {
				h.log.Debug("ops: write failed: %v", err)
				return
			}
		}
	}
}

// readCommands drains approve/reject commands from the operator's
// connection until it closes, routing each one to the Bus. Closes done so
// the write loop above can stop once the read side sees the connection go
// away — a WebSocket with only an outbound stream otherwise never detects
// the peer hanging up.
func (h *OpsHandler) readCommands(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		var cmd opsInbound
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		var verdict dialogmodel.OperatorVerdict
		switch cmd.Type {
		case "approve":
			verdict = dialogmodel.VerdictApprove
		case "reject":
			verdict = dialogmodel.VerdictReject
		default:
			h.log.Warn("ops: unknown command type %q", cmd.Type)
			continue
		}
		if err := h.bus.Command(cmd.CallID, cmd.BookingID, verdict); err != nil {
			h.writeError(conn, cmd.CallID, err)
		}
	}
}

func (h *OpsHandler) writeError(conn *websocket.Conn, callID string, err error) {
	_ = conn.WriteJSON(map[string]any{
		"type":    "error",
		"call_id": callID,
		"reason":  err.Error(),
	})
}

// NotFound is the HTTP status that corresponds to eventbus.ErrUnknownCall.
// readCommands does not send it: a command naming an unknown or
// already-terminated call is answered with a {"type":"error"} message
// carrying the bus error's text as its reason.
var NotFound = http.StatusNotFound
