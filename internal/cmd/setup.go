package cmd

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/runger/sheetql/internal/config"
	"github.com/runger/sheetql/internal/ingest"
	"github.com/runger/sheetql/internal/llm"
	"github.com/runger/sheetql/internal/logging"
	"github.com/runger/sheetql/internal/pipeline"
)

// app bundles what every command needs after startup.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	pipeline *pipeline.Pipeline
}

// setup loads config, prepares directories and wires the pipeline.
// Interactive commands pass console=false to keep stdout clean.
func setup(console bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	paths := config.DefaultPaths()
	if err := paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to prepare data directories: %w", err)
	}
	if cfg.Log.File == "" {
		cfg.Log.File = paths.LogFile()
	}

	logger := logging.New(cfg.Log, console)

	completer := llm.NewOpenAIClientWithOptions(
		cfg.Model.BaseURL,
		os.Getenv(cfg.Model.APIKeyEnv),
		cfg.Model.Name,
	)
	if !completer.Available() {
		return nil, fmt.Errorf("no API key configured: set %s", cfg.Model.APIKeyEnv)
	}

	cache := ingest.NewCacheWithTTL(time.Duration(cfg.Cache.TTLHours) * time.Hour)
	p := pipeline.New(completer, cache, logger, paths.StoreDir())

	return &app{cfg: cfg, logger: logger, pipeline: p}, nil
}

func (a *app) close() {
	_ = a.logger.Sync()
}
