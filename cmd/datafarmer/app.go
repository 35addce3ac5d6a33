package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"

	"github.com/datafarmer/datafarmer/internal/cache"
	"github.com/datafarmer/datafarmer/internal/config"
	"github.com/datafarmer/datafarmer/internal/generation"
	"github.com/datafarmer/datafarmer/internal/metrics"
	"github.com/datafarmer/datafarmer/internal/platform/gemini"
	"github.com/datafarmer/datafarmer/internal/platform/logger"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

// modelFactory builds the remote model used by generation commands.
type modelFactory func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (generation.Model, error)

// app carries the state shared by every command once flags are parsed.
type app struct {
	configPath  string
	envFile     string
	logLevel    string
	metricsAddr string

	cfg      *config.Config
	logger   *slog.Logger
	ui       *ui
	registry *prometheus.Registry
	recorder *metrics.Recorder

	newModel modelFactory
}

func newApp() *app {
	return &app{
		ui:       newUI(),
		newModel: geminiModel,
	}
}

func geminiModel(ctx context.Context, cfg *config.Config, logger *slog.Logger) (generation.Model, error) {
	m, err := gemini.NewModel(ctx, gemini.ModelConfigFromSettings(cfg), logger)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// init loads the environment file, the configuration and the logger.
// Log records go to stderr so that command output on stdout stays clean.
func (a *app) init(stderr io.Writer) error {
	if a.envFile != "" {
		if err := godotenv.Load(a.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", a.envFile, err)
		}
	}

	cfg, err := config.LoadFile(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}

	l, err := logger.Setup(cfg.Log, stderr)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	a.cfg = cfg
	a.logger = l
	a.logger.Debug("Configuration loaded",
		"backend", cfg.Gemini.Backend,
		"model", cfg.Gemini.Model,
		"project_present", cfg.GCP.ProjectID != "",
		"cache_enabled", cfg.Cache.RedisURL != "")
	return nil
}

// generationClient wires the model, the optional response cache and the
// metrics recorder into a batch client. The returned func releases them.
func (a *app) generationClient(ctx context.Context) (*generation.Client, func(), error) {
	genCfg, err := generation.ConfigFromSettings(a.cfg.Gemini)
	if err != nil {
		return nil, nil, err
	}
	genCfg.Options.Retrieval = generation.RetrievalFromSettings(a.cfg.RAG)

	model, err := a.newModel(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create model: %w", err)
	}

	recorder, err := a.metricsRecorder()
	if err != nil {
		return nil, nil, err
	}
	opts := []generation.Option{generation.WithRecorder(recorder)}

	cleanup := func() {}
	if url := a.cfg.Cache.RedisURL; url != "" {
		rc, err := cache.Open(ctx, url, a.cfg.Cache.TTL)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, generation.WithCache(rc))
		cleanup = func() {
			if err := rc.Close(); err != nil {
				a.logger.Warn("Failed to close response cache", "error", err)
			}
		}
		a.logger.Info("Response cache enabled", "ttl", a.cfg.Cache.TTL.String())
	}

	client, err := generation.NewClient(model, genCfg, a.logger, opts...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return client, cleanup, nil
}

func (a *app) metricsRecorder() (*metrics.Recorder, error) {
	if a.recorder != nil {
		return a.recorder, nil
	}
	a.registry = prometheus.NewRegistry()
	recorder, err := metrics.NewRecorder(a.registry)
	if err != nil {
		return nil, err
	}
	a.recorder = recorder
	return recorder, nil
}

// serveMetrics exposes the recorder on --metrics-addr for the lifetime of
// ctx. It is a no-op when the flag is empty.
func (a *app) serveMetrics(ctx context.Context) {
	if a.metricsAddr == "" {
		return
	}
	if _, err := a.metricsRecorder(); err != nil {
		a.logger.Warn("Metrics disabled", "error", err)
		return
	}
	go func() {
		if err := metrics.Serve(ctx, a.metricsAddr, a.registry, a.logger); err != nil {
			a.logger.Error("Metrics server stopped", "error", err, "addr", a.metricsAddr)
		}
	}()
}
