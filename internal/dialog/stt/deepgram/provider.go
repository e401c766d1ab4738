// Package deepgram adapts Deepgram's speech-to-text API into the stt.Provider
// shape: one blocking call per utterance rather than a persistent streaming
// connection, since utterance boundaries are already decided upstream of
// the Transcription Gateway (the VAD segmenter and utterance buffer have
// fixed where an utterance starts and ends by the time this is called).
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"

	"github.com/brightline-voice/dialogd/internal/codec"
	"github.com/brightline-voice/dialogd/internal/dialogerr"
)

// Provider calls Deepgram's prerecorded-audio endpoint with one utterance's
// worth of linear16 PCM at a time.
type Provider struct {
	APIKey   string
	Language string
	Client   *http.Client
}

// New builds a Provider whose http.Client sets no timeout of its own; each
// request is bounded by the context the Transcription Gateway passes in.
func New(apiKey, language string) *Provider {
	return &Provider{APIKey: apiKey, Language: language, Client: &http.Client{}}
}

type response struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// Transcribe sends raw linear16 PCM (at codec.PipelineSampleRate) and
// returns the top alternative's transcript plus a log-probability proxy
// derived from Deepgram's 0..1 confidence score.
func (p *Provider) Transcribe(ctx context.Context, pcm16k []int16, model string) (string, float64, error) {
	params := url.Values{}
	params.Set("model", model)
	params.Set("encoding", "linear16")
	params.Set("sample_rate", fmt.Sprintf("%d", codec.PipelineSampleRate))
	params.Set("channels", "1")
	if p.Language != "" {
		params.Set("language", p.Language)
	}

	body := codec.PCMBytes(pcm16k)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		"https://api.deepgram.com/v1/listen?"+params.Encode(), bytes.NewReader(body))
	if err != nil {
		return "", 0, dialogerr.New(dialogerr.STTTransient, "deepgram.Transcribe", err)
	}
	req.Header.Set("Authorization", "Token "+p.APIKey)
	req.Header.Set("Content-Type", "audio/raw")

	resp, err := p.Client.Do(req)
	if err != nil {
		return "", 0, dialogerr.New(dialogerr.STTTransient, "deepgram.Transcribe", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", 0, dialogerr.New(dialogerr.STTPermanent, "deepgram.Transcribe", fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return "", 0, dialogerr.New(dialogerr.STTTransient, "deepgram.Transcribe", fmt.Errorf("status %d: %s", resp.StatusCode, data))
	}

	var r response
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return "", 0, dialogerr.New(dialogerr.STTTransient, "deepgram.Transcribe", err)
	}
	if len(r.Results.Channels) == 0 || len(r.Results.Channels[0].Alternatives) == 0 {
		return "", -1, nil
	}
	alt := r.Results.Channels[0].Alternatives[0]
	// Deepgram reports a 0..1 confidence, not a log-probability; approximate
	// the avg-log-prob scale the Gateway's threshold is calibrated against
	// by mapping confidence through log() so 1.0 -> 0 and lower scores go
	// increasingly negative, matching how an STT log-prob behaves.
	avgLogProb := confidenceToLogProb(alt.Confidence)
	return alt.Transcript, avgLogProb, nil
}

func confidenceToLogProb(confidence float64) float64 {
	if confidence <= 0 {
		return -10
	}
	if confidence >= 1 {
		return 0
	}
	return math.Log(confidence)
}
