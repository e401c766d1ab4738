package transport

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/brightline-voice/dialogd/internal/dialoglog"
	"github.com/brightline-voice/dialogd/internal/dialogmodel"
	"github.com/brightline-voice/dialogd/internal/eventbus"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func dialOps(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ops" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestOpsHandler_StreamsEventsToSubscriber(t *testing.T) {
	bus := eventbus.New(dialoglog.GetDefault())
	h := NewOpsHandler(bus, dialoglog.GetDefault())
	srv := httptest.NewServer(http.HandlerFunc(h.ServeHTTP))
	defer srv.Close()

	conn := dialOps(t, srv, "")

	bus.Publish(dialogmodel.OperatorEvent{Type: dialogmodel.EventCallStarted, CallID: "CA1"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var out opsOutbound
	require.NoError(t, conn.ReadJSON(&out))
	require.Equal(t, dialogmodel.EventCallStarted, out.Type)
	require.Equal(t, "CA1", out.CallID)
	require.Equal(t, uint64(1), out.Seq)
}

func TestOpsHandler_FiltersByCallID(t *testing.T) {
	bus := eventbus.New(dialoglog.GetDefault())
	h := NewOpsHandler(bus, dialoglog.GetDefault())
	srv := httptest.NewServer(http.HandlerFunc(h.ServeHTTP))
	defer srv.Close()

	conn := dialOps(t, srv, "?call_id=CA1")

	bus.Publish(dialogmodel.OperatorEvent{Type: dialogmodel.EventTranscript, CallID: "CA2"})
	bus.Publish(dialogmodel.OperatorEvent{Type: dialogmodel.EventTranscript, CallID: "CA1"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var out opsOutbound
	require.NoError(t, conn.ReadJSON(&out))
	require.Equal(t, "CA1", out.CallID)
}

func TestOpsHandler_RoutesApproveCommand(t *testing.T) {
	bus := eventbus.New(dialoglog.GetDefault())
	h := NewOpsHandler(bus, dialoglog.GetDefault())
	srv := httptest.NewServer(http.HandlerFunc(h.ServeHTTP))
	defer srv.Close()

	received := make(chan dialogmodel.OperatorVerdict, 1)
	bus.RegisterVerdictHandler("CA1", func(v dialogmodel.OperatorVerdict) { received <- v })

	conn := dialOps(t, srv, "")
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "approve", "call_id": "CA1", "booking_id": "B1"}))

	select {
	case v := <-received:
		require.Equal(t, dialogmodel.VerdictApprove, v)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for routed verdict")
	}
}

func TestOpsHandler_UnknownCallReturnsError(t *testing.T) {
	bus := eventbus.New(dialoglog.GetDefault())
	h := NewOpsHandler(bus, dialoglog.GetDefault())
	srv := httptest.NewServer(http.HandlerFunc(h.ServeHTTP))
	defer srv.Close()

	conn := dialOps(t, srv, "")
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "approve", "call_id": "missing", "booking_id": "B1"}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var out map[string]any
	require.NoError(t, conn.ReadJSON(&out))
	require.Equal(t, "error", out["type"])
}
