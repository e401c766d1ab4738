// Package http implements nlu.Provider against a generic JSON HTTP
// endpoint, configured via NLU_ENDPOINT/NLU_API_KEY.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/brightline-voice/dialogd/internal/dialogerr"
	"github.com/brightline-voice/dialogd/internal/dialogmodel"
)

// Provider calls a hosted NLU endpoint that accepts the conversation
// history, the latest utterance, and current slots, and returns a
// structured intent.
type Provider struct {
	Endpoint string
	APIKey   string
	Client   *http.Client
}

// New builds an HTTP-backed NLU provider.
func New(endpoint, apiKey string) *Provider {
	return &Provider{Endpoint: endpoint, APIKey: apiKey, Client: &http.Client{Timeout: 5 * time.Second}}
}

type request struct {
	History []dialogmodel.HistoryTurn `json:"history"`
	Text    string                    `json:"text"`
	Slots   map[string]string         `json:"slots"`
}

type response struct {
	Intent       string            `json:"intent"`
	SlotUpdates  map[string]string `json:"slot_updates"`
	CorrectedKey string            `json:"corrected_key"`
}

// Extract implements nlu.Provider.
func (p *Provider) Extract(ctx context.Context, history []dialogmodel.HistoryTurn, utterance string, slots map[string]string) (dialogmodel.NLUResult, error) {
	body, err := json.Marshal(request{History: history, Text: utterance, Slots: slots})
	if err != nil {
		return dialogmodel.NLUResult{}, dialogerr.New(dialogerr.NLUFailure, "nlu/http.Extract", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, bytes.NewReader(body))
	if err != nil {
		return dialogmodel.NLUResult{}, dialogerr.New(dialogerr.NLUFailure, "nlu/http.Extract", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.APIKey)
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return dialogmodel.NLUResult{}, dialogerr.New(dialogerr.NLUFailure, "nlu/http.Extract", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return dialogmodel.NLUResult{}, dialogerr.New(dialogerr.NLUFailure, "nlu/http.Extract",
			fmt.Errorf("nlu endpoint returned status %d", resp.StatusCode))
	}

	var r response
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return dialogmodel.NLUResult{}, dialogerr.New(dialogerr.NLUFailure, "nlu/http.Extract", err)
	}

	return dialogmodel.NLUResult{
		Intent:       dialogmodel.Intent(r.Intent),
		SlotUpdates:  r.SlotUpdates,
		CorrectedKey: r.CorrectedKey,
	}, nil
}
