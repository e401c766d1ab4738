// Package transport implements the HTTP surface spec.md's external
// interfaces describe: the telephony control webhook, the media WebSocket
// that carries framed audio for one call, and the operator WebSocket that
// fans out OperatorEvents and routes approve/reject commands back in. None
// of it mutates Session state directly — every handler here does nothing
// more than decode the wire, call into a Session or the Registry, and
// re-encode the wire, the same separation of transport from pipeline the
// teacher's transports package draws between its processors and its
// WebSocket plumbing.
package transport

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/brightline-voice/dialogd/internal/dialoglog"
	"github.com/google/uuid"
)

// WebhookRequest is the minimal shape spec.md §6 requires of the inbound
// control webhook: call id, from number, to number. Providers send this as
// form or JSON; both are accepted.
type WebhookRequest struct {
	CallID string `json:"call_id"`
	From   string `json:"from"`
	To     string `json:"to"`
}

// WebhookResponse is a provider-agnostic directive telling the caller's
// telephony provider to connect its media stream to our WebSocket. Real
// deployments render this as TwiML, an Asterisk AGI response, or whatever
// their provider expects; the JSON shape here is the server's own
// canonical form and is also a perfectly valid response for providers that
// accept a bare stream directive.
type WebhookResponse struct {
	Action   string `json:"action"`
	StreamURL string `json:"stream_url"`
	CallID   string `json:"call_id"`
}

// MediaWSURL builds the wss:// URL a WebhookResponse points a provider at
// for a given call id and request host, per spec.md §6.
func MediaWSURL(host, callID string) string {
	return fmt.Sprintf("wss://%s/media/%s", host, callID)
}

// WebhookHandler accepts a telephony provider's call-control POST and
// returns a directive to open the media WebSocket at /media/<call_id>. It
// does not itself create a Session — that happens when the media
// WebSocket actually opens, mirroring how Twilio's Stream TwiML precedes
// the Stream connecting by an unbounded interval.
type WebhookHandler struct {
	log *dialoglog.Logger
}

// NewWebhookHandler builds a WebhookHandler.
func NewWebhookHandler(log *dialoglog.Logger) *WebhookHandler {
	return &WebhookHandler{log: log}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, err := parseWebhookRequest(r)
	if err != nil {
		h.log.Warn("webhook: malformed request from %s: %v", r.RemoteAddr, err)
		http.Error(w, "malformed request", http.StatusBadRequest)
		return
	}
	if req.CallID == "" {
		req.CallID = uuid.NewString()
	}

	h.log.Info("webhook: call accepted call_id=%s from=%s to=%s", req.CallID, req.From, req.To)

	resp := WebhookResponse{
		Action:    "connect_media",
		StreamURL: MediaWSURL(r.Host, req.CallID),
		CallID:    req.CallID,
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func parseWebhookRequest(r *http.Request) (WebhookRequest, error) {
	var req WebhookRequest
	ct := r.Header.Get("Content-Type")
	if ct == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, err
		}
		return req, nil
	}
	if err := r.ParseForm(); err != nil {
		return req, err
	}
	req.CallID = r.Form.Get("call_id")
	req.From = r.Form.Get("from")
	req.To = r.Form.Get("to")
	return req, nil
}
