// Package elevenlabs adapts ElevenLabs' text-to-speech HTTP API into the
// tts.Provider shape: one request per agent turn, decoded straight to
// 16 kHz linear PCM so the Output Scheduler never touches wire-format
// concerns (that is the Frame Codec's job alone).
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/brightline-voice/dialogd/internal/codec"
	"github.com/brightline-voice/dialogd/internal/dialogerr"
)

// Provider calls ElevenLabs' non-streaming synthesis endpoint, requesting
// raw pcm_16000 output so no resampling is needed beyond byte decoding.
type Provider struct {
	APIKey string
	Model  string
	Client *http.Client
}

// New builds a Provider defaulting to ElevenLabs' low-latency flash model.
func New(apiKey string) *Provider {
	model := "eleven_flash_v2_5"
	return &Provider{APIKey: apiKey, Model: model, Client: &http.Client{}}
}

// Synthesize requests pcm_16000 audio for text spoken in voiceID.
func (p *Provider) Synthesize(ctx context.Context, text, voiceID string) ([]int16, error) {
	url := fmt.Sprintf("https://api.elevenlabs.io/v1/text-to-speech/%s?output_format=pcm_16000", voiceID)
	reqBody, err := json.Marshal(struct {
		Text    string `json:"text"`
		ModelID string `json:"model_id"`
	}{Text: text, ModelID: p.Model})
	if err != nil {
		return nil, dialogerr.New(dialogerr.TTSFailure, "elevenlabs.Synthesize", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, dialogerr.New(dialogerr.TTSFailure, "elevenlabs.Synthesize", err)
	}
	req.Header.Set("xi-api-key", p.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, dialogerr.New(dialogerr.TTSFailure, "elevenlabs.Synthesize", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, dialogerr.New(dialogerr.TTSFailure, "elevenlabs.Synthesize", fmt.Errorf("status %d: %s", resp.StatusCode, body))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, dialogerr.New(dialogerr.TTSFailure, "elevenlabs.Synthesize", err)
	}
	return codec.BytesPCM(audio), nil
}
