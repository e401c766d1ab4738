// Command dialogd runs the real-time voice dialog server: the telephony
// control webhook, the per-call media WebSocket, and the operator
// WebSocket, wired to whichever STT/TTS/NLU providers the environment
// names. It owns nothing the Session package doesn't already own — main's
// only job is assembling the shared singletons once and handing them to
// net/http.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/brightline-voice/dialogd/internal/config"
	"github.com/brightline-voice/dialogd/internal/dialog/nlu"
	nluGemini "github.com/brightline-voice/dialogd/internal/dialog/nlu/gemini"
	nluHTTP "github.com/brightline-voice/dialogd/internal/dialog/nlu/http"
	"github.com/brightline-voice/dialogd/internal/dialog/stt/deepgram"
	"github.com/brightline-voice/dialogd/internal/dialog/tts/elevenlabs"
	"github.com/brightline-voice/dialogd/internal/dialoglog"
	"github.com/brightline-voice/dialogd/internal/eventbus"
	"github.com/brightline-voice/dialogd/internal/metrics"
	"github.com/brightline-voice/dialogd/internal/persistence"
	"github.com/brightline-voice/dialogd/internal/ratelimit"
	"github.com/brightline-voice/dialogd/internal/session"
	"github.com/brightline-voice/dialogd/internal/transport"
)

// exit codes per spec.md §6.
const (
	exitOK          = 0
	exitConfigError = 2
	exitBindFailure = 3
	exitSignal      = 130
)

func main() {
	os.Exit(run())
}

func run() int {
	dialoglog.Init()
	log := dialoglog.GetDefault()

	cfg, err := config.Load()
	if err != nil {
		log.Error("config: %v", err)
		return exitConfigError
	}

	nluProvider, err := buildNLUProvider(cfg, log)
	if err != nil {
		log.Error("nlu: %v", err)
		return exitConfigError
	}

	providers := session.Providers{
		STT: deepgram.New(cfg.STTAPIKey, "en"),
		TTS: elevenlabs.New(cfg.TTSAPIKey),
		NLU: nluProvider,
	}

	bus := eventbus.New(log)
	shared := session.Shared{
		Bus:     bus,
		Limits:  ratelimit.New(8, 8, 8),
		Hook:    persistence.NewLoggingHook(log),
		Metrics: metrics.Default(),
		Cfg:     cfg,
	}

	registry := session.NewRegistry(providers, shared, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go bus.RunKeepalive(ctx)

	mux := http.NewServeMux()
	mux.Handle("/webhook", transport.NewWebhookHandler(log))
	mux.Handle("/media/", transport.NewMediaHandler(registry, cfg.VADFrameMS, log))
	mux.Handle("/ops", transport.NewOpsHandler(bus, log))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	handler := otelhttp.NewHandler(mux, "dialogd")

	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: handler,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("dialogd listening on :%s", cfg.HTTPPort)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			log.Error("server: %v", err)
			return exitBindFailure
		}
		return exitOK
	case <-ctx.Done():
		log.Info("shutdown signal received, draining %d active session(s)", registry.Len())
		registry.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("server shutdown: %v", err)
		}
		_ = log.Sync()
		return exitSignal
	}
}

// buildNLUProvider chooses the Gemini-backed provider when NLU_ENDPOINT
// names a Gemini model ("gemini:<model>") and falls back to the generic
// HTTP provider for any other endpoint value, matching the two concrete
// nlu.Provider implementations the dialog package ships.
func buildNLUProvider(cfg *config.Config, log *dialoglog.Logger) (nlu.Provider, error) {
	if model, ok := strings.CutPrefix(cfg.NLUEndpoint, "gemini:"); ok {
		log.Info("nlu: using Gemini provider model=%s", model)
		return nluGemini.New(context.Background(), cfg.NLUAPIKey, model)
	}
	log.Info("nlu: using HTTP provider endpoint=%s", cfg.NLUEndpoint)
	return nluHTTP.New(cfg.NLUEndpoint, cfg.NLUAPIKey), nil
}
