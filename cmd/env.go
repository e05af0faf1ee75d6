package main

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/greengrowth/internal/advisor"
	"github.com/sells-group/greengrowth/internal/config"
	"github.com/sells-group/greengrowth/internal/datacommons"
	"github.com/sells-group/greengrowth/internal/indices"
	"github.com/sells-group/greengrowth/internal/pipeline"
	"github.com/sells-group/greengrowth/internal/raster"
	"github.com/sells-group/greengrowth/internal/resilience"
	"github.com/sells-group/greengrowth/internal/signal"
	"github.com/sells-group/greengrowth/internal/store"
	anthropicpkg "github.com/sells-group/greengrowth/pkg/anthropic"
)

// appEnv holds the clients and pipeline shared by the analyze and serve
// commands.
type appEnv struct {
	Catalog  store.Catalog
	Raster   *raster.Client
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Catalog != nil {
		_ = e.Catalog.Close()
	}
}

// initCatalog opens the store catalog and seeds it from the configured CSV
// when empty.
func initCatalog(ctx context.Context, c *config.Config) (store.Catalog, error) {
	cat, err := store.Open(ctx, c.Store.Driver, c.Store.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if c.Store.CSVPath != "" {
		if _, err := store.SeedFile(ctx, cat, c.Store.CSVPath); err != nil {
			_ = cat.Close()
			return nil, err
		}
	}
	return cat, nil
}

// loadThresholds returns the configured thresholds profile or the built-in
// default.
func loadThresholds(c *config.Config) (signal.Thresholds, error) {
	if c.Signals.ThresholdsFile == "" {
		return signal.DefaultThresholds(), nil
	}
	return signal.LoadThresholds(c.Signals.ThresholdsFile)
}

// buildPipeline wires the raster, knowledge-graph and generative clients
// into a Pipeline. It performs no network calls.
func buildPipeline(c *config.Config, th signal.Thresholds) (*raster.Client, *pipeline.Pipeline) {
	rc := raster.NewClient(c.Raster.BaseURL,
		raster.WithProject(c.Raster.Project),
		raster.WithAPIKey(c.Raster.Key),
		raster.WithRateLimit(c.Raster.RateLimit),
		raster.WithRetry(resilience.Attempts(c.Raster.RetryAttempts)),
		raster.WithHTTPClient(&http.Client{Timeout: time.Duration(c.Raster.TimeoutSecs) * time.Second}),
	)
	computer := indices.NewComputer(rc, th)

	dc := datacommons.NewClient(c.DataCommons.Key,
		datacommons.WithBaseURL(c.DataCommons.BaseURL),
		datacommons.WithRateLimit(c.DataCommons.RateLimit),
		datacommons.WithRetry(resilience.Attempts(c.DataCommons.RetryAttempts)),
		datacommons.WithHTTPClient(&http.Client{Timeout: time.Duration(c.DataCommons.TimeoutSecs) * time.Second}),
	)
	if !dc.HasKey() {
		zap.L().Debug("datacommons key not set, location context disabled")
	}
	resolver := datacommons.NewResolver(dc, c.DataCommons.Variables)

	var ac anthropicpkg.Client
	if c.Anthropic.Key != "" {
		ac = anthropicpkg.NewClient(c.Anthropic.Key)
	} else {
		zap.L().Debug("anthropic key not set, stocking actions use fallback text")
	}
	writer := advisor.New(ac, c.Anthropic.Model, c.Anthropic.MaxTokens)

	p := pipeline.New(computer, resolver, writer, th,
		pipeline.WithInlineActions(c.Signals.InlineActions),
	)
	return rc, p
}

// initEnv validates config for mode, opens the catalog and builds the
// pipeline. Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	th, err := loadThresholds(cfg)
	if err != nil {
		return nil, err
	}

	cat, err := initCatalog(ctx, cfg)
	if err != nil {
		return nil, err
	}

	rc, p := buildPipeline(cfg, th)

	zap.L().Info("environment ready",
		zap.String("store_driver", cfg.Store.Driver),
		zap.String("raster", cfg.Raster.BaseURL),
		zap.String("thresholds_version", th.Version),
		zap.Bool("inline_actions", cfg.Signals.InlineActions),
	)

	return &appEnv{Catalog: cat, Raster: rc, Pipeline: p}, nil
}
