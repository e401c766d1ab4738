package transport

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/brightline-voice/dialogd/internal/dialoglog"
	"github.com/stretchr/testify/require"
)

func TestWebhookHandler_AssignsCallIDWhenMissing(t *testing.T) {
	h := NewWebhookHandler(dialoglog.GetDefault())
	form := url.Values{"from": {"+15550100"}, "to": {"+15550199"}}
	req := httptest.NewRequest(http.MethodPost, "http://dialogd.example/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"action":"connect_media"`)
	require.Contains(t, rec.Body.String(), "wss://dialogd.example/media/")
}

func TestWebhookHandler_PreservesProvidedCallID(t *testing.T) {
	h := NewWebhookHandler(dialoglog.GetDefault())
	body := `{"call_id":"CA123","from":"+15550100","to":"+15550199"}`
	req := httptest.NewRequest(http.MethodPost, "http://dialogd.example/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "/media/CA123")
}

func TestWebhookHandler_RejectsNonPost(t *testing.T) {
	h := NewWebhookHandler(dialoglog.GetDefault())
	req := httptest.NewRequest(http.MethodGet, "http://dialogd.example/webhook", nil)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCallIDFromPath(t *testing.T) {
	require.Equal(t, "CA123", callIDFromPath("/media/CA123"))
	require.Equal(t, "CA123", callIDFromPath("/media/CA123/"))
	require.Equal(t, "", callIDFromPath("/media/"))
}
