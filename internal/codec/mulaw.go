// Package codec implements Frame Codec (component A): decoding telephony
// 8 kHz mu-law audio to 16 kHz mono PCM16 for the internal pipeline, and
// the inverse for outbound playback. It is the only place in dialogd that
// resamples; every other component operates exclusively at 16 kHz.
package codec

import (
	"encoding/binary"
	"math"
)

const (
	// WireSampleRate is the telephony provider's native sample rate.
	WireSampleRate = 8000
	// PipelineSampleRate is the sample rate every internal component
	// (VAD, utterance buffer, STT, TTS synthesis) operates at.
	PipelineSampleRate = 16000
)

const (
	mulawBias = 0x84
	mulawClip = 32635
)

var mulawDecodeTable = [256]int16{
	-32124, -31100, -30076, -29052, -28028, -27004, -25980, -24956,
	-23932, -22908, -21884, -20860, -19836, -18812, -17788, -16764,
	-15996, -15484, -14972, -14460, -13948, -13436, -12924, -12412,
	-11900, -11388, -10876, -10364, -9852, -9340, -8828, -8316,
	-7932, -7676, -7420, -7164, -6908, -6652, -6396, -6140,
	-5884, -5628, -5372, -5116, -4860, -4604, -4348, -4092,
	-3900, -3772, -3644, -3516, -3388, -3260, -3132, -3004,
	-2876, -2748, -2620, -2492, -2364, -2236, -2108, -1980,
	-1884, -1820, -1756, -1692, -1628, -1564, -1500, -1436,
	-1372, -1308, -1244, -1180, -1116, -1052, -988, -924,
	-876, -844, -812, -780, -748, -716, -684, -652,
	-620, -588, -556, -524, -492, -460, -428, -396,
	-372, -356, -340, -324, -308, -292, -276, -260,
	-244, -228, -212, -196, -180, -164, -148, -132,
	-120, -112, -104, -96, -88, -80, -72, -64,
	-56, -48, -40, -32, -24, -16, -8, 0,
	32124, 31100, 30076, 29052, 28028, 27004, 25980, 24956,
	23932, 22908, 21884, 20860, 19836, 18812, 17788, 16764,
	15996, 15484, 14972, 14460, 13948, 13436, 12924, 12412,
	11900, 11388, 10876, 10364, 9852, 9340, 8828, 8316,
	7932, 7676, 7420, 7164, 6908, 6652, 6396, 6140,
	5884, 5628, 5372, 5116, 4860, 4604, 4348, 4092,
	3900, 3772, 3644, 3516, 3388, 3260, 3132, 3004,
	2876, 2748, 2620, 2492, 2364, 2236, 2108, 1980,
	1884, 1820, 1756, 1692, 1628, 1564, 1500, 1436,
	1372, 1308, 1244, 1180, 1116, 1052, 988, 924,
	876, 844, 812, 780, 748, 716, 684, 652,
	620, 588, 556, 524, 492, 460, 428, 396,
	372, 356, 340, 324, 308, 292, 276, 260,
	244, 228, 212, 196, 180, 164, 148, 132,
	120, 112, 104, 96, 88, 80, 72, 64,
	56, 48, 40, 32, 24, 16, 8, 0,
}

func mulawDecode(b byte) int16 { return mulawDecodeTable[b] }

func mulawEncode(pcm int16) byte {
	sign := uint8(0)
	if pcm < 0 {
		sign = 0x80
		pcm = -pcm
	}
	if pcm > mulawClip {
		pcm = mulawClip
	}
	pcm += mulawBias

	var exponent, mantissa uint8
	switch {
	case pcm >= 0x4000:
		exponent, mantissa = 7, uint8((pcm>>10)&0x0F)
	case pcm >= 0x2000:
		exponent, mantissa = 6, uint8((pcm>>9)&0x0F)
	case pcm >= 0x1000:
		exponent, mantissa = 5, uint8((pcm>>8)&0x0F)
	case pcm >= 0x800:
		exponent, mantissa = 4, uint8((pcm>>7)&0x0F)
	case pcm >= 0x400:
		exponent, mantissa = 3, uint8((pcm>>6)&0x0F)
	case pcm >= 0x200:
		exponent, mantissa = 2, uint8((pcm>>5)&0x0F)
	case pcm >= 0x100:
		exponent, mantissa = 1, uint8((pcm>>4)&0x0F)
	default:
		exponent, mantissa = 0, uint8((pcm>>3)&0x0F)
	}

	out := sign | (exponent << 4) | mantissa
	return ^out
}

// mulawToPCM decompands a mu-law byte stream to linear PCM16.
func mulawToPCM(mulaw []byte) []int16 {
	pcm := make([]int16, len(mulaw))
	for i, b := range mulaw {
		pcm[i] = mulawDecode(b)
	}
	return pcm
}

// pcmToMulaw compands linear PCM16 to mu-law.
func pcmToMulaw(pcm []int16) []byte {
	out := make([]byte, len(pcm))
	for i, v := range pcm {
		out[i] = mulawEncode(v)
	}
	return out
}

// pcmToBytes serializes PCM16 samples little-endian, as written over the
// wire inside a base64 payload by nothing — this is for internal buffers.
func pcmToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*2)
	for i, v := range pcm {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(v))
	}
	return b
}

func bytesToPCM(b []byte) []int16 {
	pcm := make([]int16, len(b)/2)
	for i := range pcm {
		pcm[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return pcm
}

// resample performs linear-interpolation resampling between two integer
// sample rates. Stateless beyond the input slice: the filter has no memory
// across calls, matching the codec's per-frame statelessness requirement.
func resample(input []int16, inputRate, outputRate int) []int16 {
	if inputRate == outputRate {
		return input
	}
	ratio := float64(inputRate) / float64(outputRate)
	outLen := int(float64(len(input)) / ratio)
	out := make([]int16, outLen)
	for i := 0; i < outLen; i++ {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)
		switch {
		case srcIdx+1 < len(input):
			s1, s2 := float64(input[srcIdx]), float64(input[srcIdx+1])
			out[i] = int16(s1 + (s2-s1)*frac)
		case srcIdx < len(input):
			out[i] = input[srcIdx]
		}
	}
	return out
}

// Decode turns a base64-decoded mu-law wire payload into 16 kHz mono PCM16.
func Decode(wireMulaw []byte) []int16 {
	pcm8k := mulawToPCM(wireMulaw)
	return resample(pcm8k, WireSampleRate, PipelineSampleRate)
}

// Encode turns 16 kHz mono PCM16 into an 8 kHz mu-law wire payload.
func Encode(pcm16k []int16) []byte {
	pcm8k := resample(pcm16k, PipelineSampleRate, WireSampleRate)
	return pcmToMulaw(pcm8k)
}

// RMS computes the root-mean-square amplitude of a PCM16 buffer, used by
// the VAD segmenter and utterance buffer energy gates.
func RMS(pcm []int16) float64 {
	if len(pcm) == 0 {
		return 0
	}
	var sumSq float64
	for _, v := range pcm {
		f := float64(v)
		sumSq += f * f
	}
	return math.Sqrt(sumSq / float64(len(pcm)))
}

// PCMBytes exposes the little-endian PCM16<->bytes helpers for callers that
// buffer raw PCM (the Deepgram STT provider sends raw linear16 bytes, and
// the ElevenLabs TTS provider decodes its pcm_16000 response).
func PCMBytes(pcm []int16) []byte  { return pcmToBytes(pcm) }
func BytesPCM(b []byte) []int16    { return bytesToPCM(b) }
