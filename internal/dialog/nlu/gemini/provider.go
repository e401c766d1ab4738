// Package gemini implements nlu.Provider on top of Google's Gemini models
// via the google.golang.org/genai SDK, as an alternative to the generic
// HTTP NLU endpoint for deployments that want a hosted LLM doing slot
// extraction directly.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/brightline-voice/dialogd/internal/dialogerr"
	"github.com/brightline-voice/dialogd/internal/dialogmodel"
)

// Provider extracts booking intent/slots by asking Gemini to return a
// small JSON object describing the caller's latest utterance.
type Provider struct {
	client *genai.Client
	model  string
}

// New builds a Gemini-backed NLU provider. apiKey comes from NLU_API_KEY
// when NLU_ENDPOINT is left pointing at a Gemini model name rather than an
// HTTP URL.
func New(ctx context.Context, apiKey, model string) (*Provider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, dialogerr.New(dialogerr.NLUFailure, "nlu/gemini.New", err)
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &Provider{client: client, model: model}, nil
}

type extraction struct {
	Intent       string            `json:"intent"`
	SlotUpdates  map[string]string `json:"slot_updates"`
	CorrectedKey string            `json:"corrected_key"`
}

// Extract implements nlu.Provider.
func (p *Provider) Extract(ctx context.Context, history []dialogmodel.HistoryTurn, utterance string, slots map[string]string) (dialogmodel.NLUResult, error) {
	prompt := buildPrompt(history, utterance, slots)

	result, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return dialogmodel.NLUResult{}, dialogerr.New(dialogerr.NLUFailure, "nlu/gemini.Extract", err)
	}

	text := result.Text()
	var ex extraction
	if err := json.Unmarshal([]byte(text), &ex); err != nil {
		return dialogmodel.NLUResult{}, dialogerr.New(dialogerr.NLUFailure, "nlu/gemini.Extract",
			fmt.Errorf("unparseable model output: %w", err))
	}

	return dialogmodel.NLUResult{
		Intent:       dialogmodel.Intent(ex.Intent),
		SlotUpdates:  ex.SlotUpdates,
		CorrectedKey: ex.CorrectedKey,
	}, nil
}

func buildPrompt(history []dialogmodel.HistoryTurn, utterance string, slots map[string]string) string {
	var b strings.Builder
	b.WriteString("You extract booking intent from a phone call transcript. ")
	b.WriteString("Respond with JSON: {\"intent\": \"collecting|affirm|negate|correction|unclear\", ")
	b.WriteString("\"slot_updates\": {\"service_type\":\"\",\"address\":\"\",\"appointment_time\":\"\",\"phone\":\"\",\"name\":\"\"}, ")
	b.WriteString("\"corrected_key\": \"\"}.\n\n")
	b.WriteString("Known slots so far:\n")
	for _, k := range dialogmodel.SlotOrder {
		fmt.Fprintf(&b, "- %s: %q\n", k, slots[k])
	}
	b.WriteString("\nRecent history:\n")
	for _, h := range history {
		fmt.Fprintf(&b, "%s: %s\n", h.Speaker, h.Text)
	}
	fmt.Fprintf(&b, "\nLatest caller utterance: %q\n", utterance)
	return b.String()
}
