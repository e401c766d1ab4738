package transport

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/brightline-voice/dialogd/internal/codec"
	"github.com/brightline-voice/dialogd/internal/dialogerr"
	"github.com/brightline-voice/dialogd/internal/dialoglog"
	"github.com/brightline-voice/dialogd/internal/dialogmodel"
	"github.com/brightline-voice/dialogd/internal/session"
	"github.com/gorilla/websocket"
)

var mediaUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// MediaHandler serves the /media/<call_id> WebSocket: it decodes inbound
// frames through the Frame Codec (A) and feeds them to the call's
// Session, and hands the Session a wsTransport, the session.Transport
// implementation that encodes outbound PCM the same way on the way back out.
type MediaHandler struct {
	registry *session.Registry
	log      *dialoglog.Logger
	frameMS  int
}

// NewMediaHandler builds a MediaHandler backed by registry. frameMS must
// match VAD_FRAME_MS so inbound frames are the size the segmenter expects.
func NewMediaHandler(registry *session.Registry, frameMS int, log *dialoglog.Logger) *MediaHandler {
	return &MediaHandler{registry: registry, log: log, frameMS: frameMS}
}

// callIDFromPath extracts the trailing path segment of /media/<call_id>.
func callIDFromPath(path string) string {
	path = strings.TrimPrefix(path, "/media/")
	path = strings.TrimSuffix(path, "/")
	return path
}

func (h *MediaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	callID := callIDFromPath(r.URL.Path)
	if callID == "" {
		http.Error(w, "missing call id", http.StatusBadRequest)
		return
	}

	conn, err := mediaUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("media: upgrade failed for call %s: %v", callID, err)
		return
	}

	wsTransport := newWSTransport(conn, h.log.With("call_id", callID))
	sess, err := h.registry.Create(callID, wsTransport)
	if err != nil {
		h.log.Warn("media: %v", err)
		conn.Close()
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		sess.Run(r.Context())
	}()

	h.readLoop(conn, callID, sess)
	<-done
}

// readLoop decodes every inbound WebSocket text message into the Frame
// Codec envelope shape and hands decoded PCM16 to the Session, chunked to
// the configured frame duration exactly as A specifies. A malformed
// envelope is dropped, not fatal, per spec.md §4.1.
func (h *MediaHandler) readLoop(conn *websocket.Conn, callID string, sess *session.Session) {
	framer := codec.NewFramer(h.frameMS)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warn("media: call %s dropped: %v", callID, dialogerr.New(dialogerr.WebSocketDropped, "media.readLoop", err))
			}
			sess.Stop()
			return
		}

		env, err := codec.ParseInbound(raw)
		if err != nil {
			h.log.Debug("media: call %s: %v", callID, err)
			continue
		}

		switch env.Event {
		case "stop":
			sess.Stop()
			return
		case "media":
			pcm, err := codec.DecodeMediaPayload(env.Media.Payload)
			if err != nil {
				h.log.Debug("media: call %s: %v", callID, err)
				continue
			}
			now := time.Now()
			for _, frame := range framer.Push(pcm) {
				sess.PushFrame(dialogmodel.Frame{PCM: frame, Arrival: now})
			}
		}
	}
}

// wsTransport adapts a gorilla websocket.Conn to session.Transport: it
// serializes outbound PCM16 through the Frame Codec into the provider's
// outbound envelope shape. Writes are serialized with a mutex since
// gorilla's Conn forbids concurrent writers, and the outbound pipeline
// (F's frame stream) and the final mark/close can both call SendAudio.
type wsTransport struct {
	conn *websocket.Conn
	log  *dialoglog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newWSTransport(conn *websocket.Conn, log *dialoglog.Logger) *wsTransport {
	return &wsTransport{conn: conn, log: log}
}

func (t *wsTransport) SendAudio(pcm []int16) error {
	env := codec.EncodeMediaEnvelope(pcm)
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteMessage(websocket.TextMessage, payload)
}

func (t *wsTransport) Close() {
	t.closeOnce.Do(func() {
		t.writeMu.Lock()
		_ = t.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		t.writeMu.Unlock()
		t.conn.Close()
	})
}
