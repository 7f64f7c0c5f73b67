package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ent0n29/voicerelay/internal/config"
	"github.com/ent0n29/voicerelay/internal/httpapi"
	"github.com/ent0n29/voicerelay/internal/observability"
	"github.com/ent0n29/voicerelay/internal/relay"
	"github.com/ent0n29/voicerelay/internal/upload"
	"github.com/ent0n29/voicerelay/internal/upstream"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Fatalf("dotenv error: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if !cfg.HasAPIKey() {
		log.Printf("OPENAI_API_KEY is not set; /api/chat and /api/voice-chat will return 500")
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ucfg := upstream.Config{
		APIKey:       cfg.OpenAIAPIKey,
		BaseURL:      cfg.OpenAIBaseURL,
		ChatModel:    cfg.ChatModel,
		STTModel:     cfg.STTModel,
		TTSModel:     cfg.TTSModel,
		TTSVoice:     cfg.TTSVoice,
		SystemPrompt: cfg.SystemPrompt,
		Timeout:      cfg.UpstreamTimeout,
	}
	chat := upstream.NewChatClient(ucfg)
	voice := upstream.NewVoiceClient(ucfg)
	pipeline := relay.NewPipeline(voice, voice, voice, metrics)
	uploads := upload.NewStore(cfg.UploadDir)

	api := httpapi.New(cfg, chat, pipeline, uploads, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Printf("server listening on %s (http://localhost:%d)", cfg.BindAddr, cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
