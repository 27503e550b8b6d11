package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/amishk599/nutrilens/internal/adapter"
	"github.com/amishk599/nutrilens/internal/config"
	"github.com/amishk599/nutrilens/internal/jobs"
	"github.com/amishk599/nutrilens/internal/model"
	"github.com/amishk599/nutrilens/internal/notifier"
	"github.com/amishk599/nutrilens/internal/nutrition"
	"github.com/amishk599/nutrilens/internal/observability"
	"github.com/amishk599/nutrilens/internal/ratelimit"
	"github.com/amishk599/nutrilens/internal/retry"
	"github.com/amishk599/nutrilens/internal/store"
)

var (
	cfgPath string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "nutrilens",
	Short: "Food photo detection and nutrition lookup",
	Long:  "nutrilens detects foods in uploaded photos and enriches each one with nutrition facts from OpenFoodFacts and USDA FoodData Central.",
	// Default to `serve` so that `nutrilens` with no args runs the API.
	RunE:         runServe,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default: NUTRILENS_CONFIG env var or ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// loadConfig resolves the config path and parses it.
// Priority: explicit path arg > NUTRILENS_CONFIG env var > "./config.yaml".
// Only the implicit ./config.yaml may be absent, in which case defaults apply.
func loadConfig(path string) (*config.Config, error) {
	explicit := true
	if path == "" {
		if env := os.Getenv("NUTRILENS_CONFIG"); env != "" {
			path = env
		} else {
			path = "config.yaml"
			explicit = false
		}
	}
	cfg, err := config.Load(path)
	if err != nil && !explicit && errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return cfg, err
}

func setupLogger(dbg bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if dbg {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}

// buildSources returns the primary and secondary nutrition sources, each
// wrapped with retries and paced per source. Pacing sits outside the retry
// loop so queueing for a slot never eats into an attempt's timeout.
func buildSources(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) (model.NutritionSource, model.NutritionSource) {
	off := adapter.NewOpenFoodFactsAdapter(cfg.Sources.OpenFoodFacts.BaseURL, cfg.Sources.OpenFoodFacts.PageSize, httpClient)
	usda := adapter.NewUSDAAdapter(cfg.Sources.USDA.BaseURL, cfg.Sources.USDA.APIKey, httpClient)

	// Shared per-source limiter - every worker querying the same source waits on this instance.
	limiter := ratelimit.NewSourceRateLimiter(map[string]time.Duration{
		off.Name():  cfg.Sources.OpenFoodFacts.MinDelay,
		usda.Name(): cfg.Sources.USDA.MinDelay,
	})

	wrap := func(src model.NutritionSource) model.NutritionSource {
		retried := retry.NewRetrySource(src, cfg.Retry.MaxAttempts, cfg.Retry.BaseDelay, cfg.Retry.Timeout, logger)
		return ratelimit.NewRateLimitedSource(retried, limiter)
	}
	return wrap(off), wrap(usda)
}

// setupCache opens the SQLite nutrition cache, or a no-op cache when disabled.
// The returned close func is always safe to call.
func setupCache(cfg *config.Config, logger *slog.Logger) (model.NutritionCache, func(), error) {
	if !cfg.Cache.Enabled {
		return store.NewNopCache(), func() {}, nil
	}
	c, err := store.NewSQLiteCache(cfg.Cache.Path, cfg.Cache.TTL)
	if err != nil {
		return nil, nil, fmt.Errorf("opening nutrition cache: %w", err)
	}
	logger.Info("nutrition cache enabled", "path", cfg.Cache.Path, "ttl", cfg.Cache.TTL.String())
	return c, func() { _ = c.Close() }, nil
}

func setupNotifier(cfg *config.Config, logger *slog.Logger) (model.JobNotifier, func(), error) {
	switch cfg.Events.Type {
	case "nats":
		n, err := notifier.NewNATSNotifier(cfg.Events.URL, cfg.Events.Subject)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using nats notifier", "url", cfg.Events.URL, "subject", cfg.Events.Subject)
		return n, n.Close, nil
	default:
		return notifier.NewLogNotifier(logger), func() {}, nil
	}
}

// pipeline bundles everything a job manager needs, plus the cleanup for it.
type pipeline struct {
	manager *jobs.Manager
	store   *jobs.Store
	cache   model.NutritionCache
	closers []func()
}

func (p *pipeline) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		p.closers[i]()
	}
}

func buildResolver(cfg *config.Config, cache model.NutritionCache, logger *slog.Logger) *nutrition.Resolver {
	httpClient := &http.Client{Timeout: 30 * time.Second}
	primary, secondary := buildSources(cfg, httpClient, logger)
	return nutrition.NewResolver(primary, secondary, cache, logger)
}

func buildPipeline(cfg *config.Config, metrics *observability.JobMetrics, logger *slog.Logger) (*pipeline, error) {
	if cfg.Detector.URL == "" {
		return nil, errors.New("detector.url is required to run detection jobs")
	}

	p := &pipeline{}
	cache, closeCache, err := setupCache(cfg, logger)
	if err != nil {
		return nil, err
	}
	p.cache = cache
	p.closers = append(p.closers, closeCache)

	n, closeNotifier, err := setupNotifier(cfg, logger)
	if err != nil {
		p.Close()
		return nil, err
	}
	p.closers = append(p.closers, closeNotifier)

	detector := adapter.NewHTTPDetector(cfg.Detector.URL, cfg.Detector.MaxDimension, &http.Client{Timeout: cfg.Detector.Timeout})
	resolver := buildResolver(cfg, cache, logger)

	p.store = jobs.NewStore(0)
	p.manager = jobs.NewManager(p.store, detector, resolver, logger,
		jobs.WithMaxConcurrent(cfg.Jobs.MaxConcurrent),
		jobs.WithNotifier(n),
		jobs.WithMetrics(metrics),
	)
	return p, nil
}
