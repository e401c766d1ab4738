// Package config loads dialogd's configuration from the environment
// variables enumerated in the server's external interface, applying
// documented defaults and validating ranges at startup.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/brightline-voice/dialogd/internal/dialogerr"
)

// Config is the fully resolved, validated runtime configuration.
type Config struct {
	STTEndpoint string
	STTAPIKey   string
	STTModel    string

	TTSEndpoint string
	TTSAPIKey   string
	TTSVoiceID  string

	NLUEndpoint string
	NLUAPIKey   string

	VADAggressiveness int
	VADFrameMS        int
	SilenceTimeoutSec float64
	MinSpeechSec      float64
	PrerollIgnoreSec  float64
	MinStartRMS       int

	STTConfThreshold float64
	MinUtteranceMS   int
	MinUtteranceRMS  int

	CallMaxSec        int
	CallerSilenceSec  int
	OperatorTimeoutSec int

	HTTPPort string
	LogLevel string
}

// Load reads and validates configuration from the process environment.
func Load() (*Config, error) {
	c := &Config{
		STTEndpoint: os.Getenv("STT_ENDPOINT"),
		STTAPIKey:   os.Getenv("STT_API_KEY"),
		STTModel:    os.Getenv("STT_MODEL"),

		TTSEndpoint: os.Getenv("TTS_ENDPOINT"),
		TTSAPIKey:   os.Getenv("TTS_API_KEY"),
		TTSVoiceID:  os.Getenv("TTS_VOICE_ID"),

		NLUEndpoint: os.Getenv("NLU_ENDPOINT"),
		NLUAPIKey:   os.Getenv("NLU_API_KEY"),

		HTTPPort: os.Getenv("HTTP_PORT"),
		LogLevel: os.Getenv("LOG_LEVEL"),
	}

	var err error
	if c.VADAggressiveness, err = intEnv("VAD_AGGRESSIVENESS", 2); err != nil {
		return nil, err
	}
	if c.VADAggressiveness < 0 || c.VADAggressiveness > 3 {
		return nil, configErr("VAD_AGGRESSIVENESS", fmt.Errorf("must be 0-3, got %d", c.VADAggressiveness))
	}
	if c.VADFrameMS, err = intEnv("VAD_FRAME_MS", 30); err != nil {
		return nil, err
	}
	if c.VADFrameMS != 20 && c.VADFrameMS != 30 {
		return nil, configErr("VAD_FRAME_MS", fmt.Errorf("must be 20 or 30, got %d", c.VADFrameMS))
	}
	if c.SilenceTimeoutSec, err = floatEnv("SILENCE_TIMEOUT_SEC", 2.0); err != nil {
		return nil, err
	}
	if c.MinSpeechSec, err = floatEnv("MIN_SPEECH_SEC", 0.5); err != nil {
		return nil, err
	}
	if c.PrerollIgnoreSec, err = floatEnv("PREROLL_IGNORE_SEC", 0.5); err != nil {
		return nil, err
	}
	if c.MinStartRMS, err = intEnv("MIN_START_RMS", 100); err != nil {
		return nil, err
	}

	if c.STTConfThreshold, err = floatEnv("STT_CONF_THRESHOLD", -0.7); err != nil {
		return nil, err
	}
	if c.MinUtteranceMS, err = intEnv("MIN_UTTERANCE_MS", 500); err != nil {
		return nil, err
	}
	if c.MinUtteranceRMS, err = intEnv("MIN_UTTERANCE_RMS", 60); err != nil {
		return nil, err
	}

	if c.CallMaxSec, err = intEnv("CALL_MAX_SEC", 900); err != nil {
		return nil, err
	}
	if c.CallerSilenceSec, err = intEnv("CALLER_SILENCE_SEC", 30); err != nil {
		return nil, err
	}
	if c.OperatorTimeoutSec, err = intEnv("OPERATOR_TIMEOUT_SEC", 600); err != nil {
		return nil, err
	}

	if c.HTTPPort == "" {
		c.HTTPPort = "8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	if c.STTEndpoint == "" {
		return nil, configErr("STT_ENDPOINT", fmt.Errorf("required"))
	}
	if c.TTSEndpoint == "" {
		return nil, configErr("TTS_ENDPOINT", fmt.Errorf("required"))
	}

	return c, nil
}

func configErr(name string, err error) error {
	return dialogerr.New(dialogerr.ConfigMissing, "config."+name, err)
}

func intEnv(name string, def int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, configErr(name, err)
	}
	return n, nil
}

func floatEnv(name string, def float64) (float64, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, configErr(name, err)
	}
	return f, nil
}
