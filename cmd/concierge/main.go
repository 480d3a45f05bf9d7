package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/afroluxe/concierge/internal/call"
	"github.com/afroluxe/concierge/internal/capture"
	"github.com/afroluxe/concierge/internal/config"
	"github.com/afroluxe/concierge/internal/httpapi"
	"github.com/afroluxe/concierge/internal/live"
	"github.com/afroluxe/concierge/internal/observability"
	"github.com/afroluxe/concierge/internal/persona"
	"github.com/afroluxe/concierge/internal/playback"
	"github.com/afroluxe/concierge/internal/session"
	"github.com/afroluxe/concierge/internal/store"
	"github.com/afroluxe/concierge/internal/summary"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	callStore := store.NewStore(ctx, cfg.DatabaseURL)
	defer callStore.Close()

	agent := persona.Load(cfg.PersonaPath)
	log.Printf("persona: %s (%s), voice %s", agent.Name, agent.Company, agent.Voice)

	var summarizer *summary.LeadSummarizer
	if cfg.SummaryEnabled {
		completer, err := summary.NewGeminiCompleter(ctx, cfg.GeminiAPIKey, cfg.SummaryModel)
		if err != nil {
			log.Printf("lead summaries disabled: %v", err)
		} else {
			summarizer = summary.NewLeadSummarizer(completer)
			log.Printf("lead summaries: %s", cfg.SummaryModel)
		}
	} else {
		log.Printf("lead summaries disabled")
	}

	if err := portaudio.Initialize(); err != nil {
		log.Fatalf("audio init failed: %v", err)
	}
	defer portaudio.Terminate()

	records := session.NewManager(cfg.CallInactivityTimeout)

	controller := call.NewController(call.Options{
		Live: live.Config{
			Endpoint:         cfg.LiveEndpoint,
			APIKey:           cfg.GeminiAPIKey,
			Model:            cfg.LiveModel,
			VoiceName:        agent.Voice,
			SystemPrompt:     agent.SystemPrompt,
			TranscribeInput:  true,
			TranscribeOutput: true,
			SendQueueSize:    cfg.SendQueueSize,
		},
		Persona:      agent,
		FrameSamples: cfg.CaptureFrameSamples,
		Devices: call.Devices{
			OpenMic: func(frameSamples int) (capture.Device, error) {
				return capture.OpenMic(frameSamples)
			},
			OpenPlayer: func() (playback.Player, playback.Clock, io.Closer, error) {
				speaker, err := playback.OpenSpeaker()
				if err != nil {
					return nil, nil, nil, err
				}
				return speaker, speaker, speaker, nil
			},
		},
		Dial: func(ctx context.Context, liveCfg live.Config) (live.Transport, error) {
			return live.Dial(ctx, liveCfg)
		},
		Records:    records,
		Store:      callStore,
		Summarizer: summarizer,
		Metrics:    metrics,
	})

	api := httpapi.New(cfg, controller, callStore, metrics)
	controller.SetNotifier(api)

	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	records.StartJanitor(runCtx, 5*time.Second)

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	controller.Hangup()
	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
