package codec

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/brightline-voice/dialogd/internal/dialogerr"
)

// InboundEnvelope is the JSON shape of a media-WebSocket frame sent by the
// telephony provider: {"event":"media","media":{"payload":"<base64>",
// "timestamp":"..."}} or {"event":"start"|"stop"}.
type InboundEnvelope struct {
	Event string `json:"event"`
	Media struct {
		Payload   string `json:"payload"`
		Timestamp string `json:"timestamp"`
	} `json:"media"`
}

// OutboundMediaEnvelope is the JSON shape dialogd writes back for outbound
// audio: {"event":"media","media":{"payload":"<base64>"}}.
type OutboundMediaEnvelope struct {
	Event string `json:"event"`
	Media struct {
		Payload string `json:"payload"`
	} `json:"media"`
}

// OutboundMarkEnvelope requests a provider-side playback sync mark.
type OutboundMarkEnvelope struct {
	Event string `json:"event"`
	Mark  struct {
		Name string `json:"name"`
	} `json:"mark"`
}

// ParseInbound decodes a raw media-WebSocket text message. A malformed
// envelope is reported as dialogerr.FrameMalformed; callers drop the frame
// rather than treat the error as fatal.
func ParseInbound(raw []byte) (*InboundEnvelope, error) {
	var env InboundEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, dialogerr.New(dialogerr.FrameMalformed, "codec.ParseInbound", err)
	}
	switch env.Event {
	case "media", "start", "stop":
	default:
		return nil, dialogerr.New(dialogerr.FrameMalformed, "codec.ParseInbound",
			fmt.Errorf("unknown event %q", env.Event))
	}
	return &env, nil
}

// DecodeMediaPayload base64-decodes and mu-law-decompands a "media" event's
// payload into 16 kHz PCM16. Returns CodecError on bad base64.
func DecodeMediaPayload(payloadB64 string) ([]int16, error) {
	raw, err := base64.StdEncoding.DecodeString(payloadB64)
	if err != nil {
		return nil, dialogerr.New(dialogerr.CodecError, "codec.DecodeMediaPayload", err)
	}
	return Decode(raw), nil
}

// EncodeMediaEnvelope compands 16 kHz PCM16 to the wire codec and wraps it
// in the outbound media envelope, base64-encoded.
func EncodeMediaEnvelope(pcm16k []int16) OutboundMediaEnvelope {
	wire := Encode(pcm16k)
	env := OutboundMediaEnvelope{Event: "media"}
	env.Media.Payload = base64.StdEncoding.EncodeToString(wire)
	return env
}

// Mark builds a synchronization mark envelope for the given name.
func Mark(name string) OutboundMarkEnvelope {
	env := OutboundMarkEnvelope{Event: "mark"}
	env.Mark.Name = name
	return env
}

// Framer slices a running PCM16 stream into fixed-duration frames
// (20 or 30 ms at 16 kHz, per VAD_FRAME_MS) and carries the remainder
// across calls — the only per-frame state the codec keeps.
type Framer struct {
	frameSamples int
	carry        []int16
}

// NewFramer builds a Framer for the given frame duration in milliseconds.
func NewFramer(frameMS int) *Framer {
	return &Framer{frameSamples: PipelineSampleRate * frameMS / 1000}
}

// Push appends newly decoded PCM16 and returns as many complete frames as
// are now available; any partial remainder is carried to the next call.
func (f *Framer) Push(pcm []int16) [][]int16 {
	f.carry = append(f.carry, pcm...)
	var frames [][]int16
	for len(f.carry) >= f.frameSamples {
		frame := make([]int16, f.frameSamples)
		copy(frame, f.carry[:f.frameSamples])
		frames = append(frames, frame)
		f.carry = f.carry[f.frameSamples:]
	}
	return frames
}

// FrameSamples reports the configured frame length in samples.
func (f *Framer) FrameSamples() int { return f.frameSamples }
