package config

import (
	"testing"

	"github.com/brightline-voice/dialogd/internal/dialogerr"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"STT_ENDPOINT", "STT_API_KEY", "STT_MODEL",
		"TTS_ENDPOINT", "TTS_API_KEY", "TTS_VOICE_ID",
		"NLU_ENDPOINT", "NLU_API_KEY",
		"VAD_AGGRESSIVENESS", "VAD_FRAME_MS", "SILENCE_TIMEOUT_SEC",
		"MIN_SPEECH_SEC", "PREROLL_IGNORE_SEC", "MIN_START_RMS",
		"STT_CONF_THRESHOLD", "MIN_UTTERANCE_MS", "MIN_UTTERANCE_RMS",
		"CALL_MAX_SEC", "CALLER_SILENCE_SEC", "OPERATOR_TIMEOUT_SEC",
		"HTTP_PORT", "LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("STT_ENDPOINT", "https://stt.example.com")
	t.Setenv("TTS_ENDPOINT", "https://tts.example.com")

	c, err := Load()
	require.NoError(t, err)
	require.Equal(t, 2, c.VADAggressiveness)
	require.Equal(t, 30, c.VADFrameMS)
	require.Equal(t, 2.0, c.SilenceTimeoutSec)
	require.Equal(t, 0.5, c.MinSpeechSec)
	require.Equal(t, 100, c.MinStartRMS)
	require.Equal(t, -0.7, c.STTConfThreshold)
	require.Equal(t, 500, c.MinUtteranceMS)
	require.Equal(t, 60, c.MinUtteranceRMS)
	require.Equal(t, 900, c.CallMaxSec)
	require.Equal(t, 30, c.CallerSilenceSec)
	require.Equal(t, 600, c.OperatorTimeoutSec)
	require.Equal(t, "8080", c.HTTPPort)
}

func TestLoad_MissingRequired(t *testing.T) {
	clearEnv(t)
	_, err := Load()
	require.Error(t, err)
	require.True(t, dialogerr.Is(err, dialogerr.ConfigMissing))
}

func TestLoad_InvalidAggressiveness(t *testing.T) {
	clearEnv(t)
	t.Setenv("STT_ENDPOINT", "https://stt.example.com")
	t.Setenv("TTS_ENDPOINT", "https://tts.example.com")
	t.Setenv("VAD_AGGRESSIVENESS", "9")

	_, err := Load()
	require.Error(t, err)
	require.True(t, dialogerr.Is(err, dialogerr.ConfigMissing))
}
