package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/mnemosyne/server/adapters/ffmpegx"
	"github.com/mnemosyne/server/adapters/googlestt"
	"github.com/mnemosyne/server/adapters/llm"
	"github.com/mnemosyne/server/adapters/memory"
	"github.com/mnemosyne/server/adapters/mongo"
	"github.com/mnemosyne/server/adapters/pipewire"
	"github.com/mnemosyne/server/adapters/whisperx"
	"github.com/mnemosyne/server/domain/repositories"
	"github.com/mnemosyne/server/internal/api"
	"github.com/mnemosyne/server/internal/capture"
	"github.com/mnemosyne/server/internal/config"
	"github.com/mnemosyne/server/internal/gateway"
	"github.com/mnemosyne/server/internal/mixer"
	"github.com/mnemosyne/server/internal/pipeline"
	"github.com/mnemosyne/server/internal/session"
	"github.com/mnemosyne/server/internal/watcher"
	"github.com/mnemosyne/server/usecase"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := config.Load()

	// Session persistence. Mongo when reachable, otherwise an in-memory
	// store so the recorder still works offline.
	sessionRepo := newSessionRepository(cfg, logger)

	sessions := session.NewService(sessionRepo, cfg.RecordingsDir, logger)

	// Capture and encoding adapters
	devices := pipewire.NewRegistry(logger)
	encoder := ffmpegx.NewEncoder(cfg.OpusBitrate, logger)
	if !encoder.Available() {
		logger.Warn("ffmpeg not found in PATH, recordings will stay as raw WAV")
	}
	mix := mixer.New(cfg.SampleRate, encoder, logger)

	controller := capture.NewController(
		sessions,
		devices,
		mix,
		cfg.RecordingsDir,
		capture.PipeWireCommand(cfg.SampleRate),
		logger,
	)

	// Inference pipeline
	engine := newInferenceEngine(cfg, logger)
	bounds := repositories.DiarizationBounds{
		MinSpeakers: cfg.MinSpeakers,
		MaxSpeakers: cfg.MaxSpeakers,
	}

	hub := gateway.NewHub(sessions, nil, logger)
	orchestrator := pipeline.NewOrchestrator(engine, sessions, hub, bounds, logger)
	hub.SetRunner(orchestrator)
	go hub.Run()

	// Summarization providers. Ollama is always registered; the hosted
	// providers join when their keys are configured.
	providers := []repositories.SummarizationProvider{
		llm.NewOllamaProvider(cfg.OllamaURL, logger),
	}
	if cfg.OpenAIKey != "" {
		providers = append(providers, llm.NewOpenAIProvider(cfg.OpenAIBaseURL, cfg.OpenAIKey, logger))
	}
	if cfg.GeminiKey != "" {
		gemini, err := llm.NewGeminiProvider(cfg.GeminiKey, logger)
		if err != nil {
			logger.Warn("Gemini provider unavailable", zap.Error(err))
		} else {
			providers = append(providers, gemini)
		}
	}
	summarizer := usecase.NewSummarizeService(providers, sessions, logger)

	// Create Echo instance
	e := echo.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Initialize API routes
	handler := api.NewHandler(sessions, devices, controller, orchestrator, summarizer, hub, logger)
	api.InitRoutes(e, handler)

	// Drop-directory ingest
	watchCtx, cancelWatch := context.WithCancel(context.Background())
	defer cancelWatch()
	if cfg.WatchDir != "" {
		w := watcher.New(cfg.WatchDir, sessions, orchestrator, logger)
		go func() {
			if err := w.Watch(watchCtx); err != nil && err != context.Canceled {
				logger.Error("Watcher stopped", zap.Error(err))
			}
		}()
	}

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("port", cfg.Port))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	cancelWatch()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	// Capture subprocesses do not die with the server process group
	// cleanly on their own.
	controller.Shutdown()

	logger.Info("Server exited")
}

func newInferenceEngine(cfg *config.Config, logger *zap.Logger) repositories.InferenceEngine {
	switch cfg.InferenceEngine {
	case "google":
		return googlestt.NewEngine(cfg.SampleRate, logger)
	case "mock":
		return whisperx.NewMockEngine(logger)
	default:
		return whisperx.NewEngine(cfg.InferenceURL, cfg.BatchSize, logger)
	}
}

func newSessionRepository(cfg *config.Config, logger *zap.Logger) repositories.SessionRepository {
	client, err := mongo.NewClient(cfg.MongoURI, cfg.MongoDatabase, logger)
	if err != nil {
		logger.Warn("MongoDB unreachable, using in-memory session store",
			zap.String("uri", cfg.MongoURI),
			zap.Error(err))
		return memory.NewSessionRepository()
	}
	return mongo.NewSessionRepository(client.Database)
}
