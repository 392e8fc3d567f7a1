// mindloopd serves the conversational agent: chat streaming over SSE and
// websocket, per-user long-term memory, document search, and a small tool
// belt (calculator, document search, web search, page fetch).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mindloop/mindloop/checkpoint"
	"github.com/mindloop/mindloop/config"
	"github.com/mindloop/mindloop/engine"
	"github.com/mindloop/mindloop/index"
	"github.com/mindloop/mindloop/index/embed"
	"github.com/mindloop/mindloop/memory"
	"github.com/mindloop/mindloop/server"
	"github.com/mindloop/mindloop/tools"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("mindloopd failed", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	checkpoints, err := checkpoint.Open(filepath.Join(cfg.Storage.DataDir, "threads.db"), log)
	if err != nil {
		return fmt.Errorf("open checkpoint store: %w", err)
	}
	defer checkpoints.Close()

	facts, err := memory.OpenFactStore(filepath.Join(cfg.Storage.DataDir, "facts.db"), log)
	if err != nil {
		return fmt.Errorf("open fact store: %w", err)
	}
	defer facts.Close()

	embedder, err := newEmbedder(cfg.Embedding)
	if err != nil {
		return fmt.Errorf("create embedder: %w", err)
	}

	idx, err := index.NewManager(filepath.Join(cfg.Storage.DataDir, "index"), embedder, log)
	if err != nil {
		return fmt.Errorf("open document index: %w", err)
	}
	defer idx.Close()

	client := anthropic.NewClient(option.WithAPIKey(cfg.Anthropic.APIKey))

	registry := tools.NewRegistry(log,
		tools.NewCalculator(),
		tools.NewDocumentSearch(idx, log),
		tools.NewWebSearch(cfg.Search.APIKey, cfg.Search.EngineID, log),
		tools.NewFetchPage(),
	)

	eng, err := engine.New(engine.Config{
		Backend:     engine.NewAnthropicBackend(&client, cfg.Anthropic.Model, log),
		Registry:    registry,
		Checkpoints: checkpoints,
		Facts:       facts,
		Extractor:   memory.NewExtractor(&client, cfg.Anthropic.Model, log),
		Logger:      log,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      server.New(eng, idx, log).Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // streaming responses stay open
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("mindloopd listening", zap.String("addr", cfg.Addr()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case sig := <-stop:
		log.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newEmbedder(cfg config.EmbeddingConfig) (embed.Embedder, error) {
	switch cfg.Provider {
	case "mock":
		return embed.NewMock(cfg.Dimensions), nil
	case "openai":
		return embed.NewOpenAI(embed.OpenAIConfig{
			BaseURL:    cfg.BaseURL,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		}), nil
	case "onnx":
		return newONNXEmbedder(cfg)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	var zc zap.Config
	if cfg.Format == "text" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
