package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/amishk599/nutrilens/internal/jobs"
	"github.com/amishk599/nutrilens/internal/observability"
	"github.com/amishk599/nutrilens/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long:  "Serve the upload and result API; blocks until SIGINT/SIGTERM.",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("config loaded",
		"addr", cfg.Server.Addr,
		"detector", cfg.Detector.URL,
		"max_concurrent", cfg.Jobs.MaxConcurrent,
		"retention", cfg.Jobs.Retention.String(),
		"cache", cfg.Cache.Enabled,
		"events", cfg.Events.Type,
		"metrics", cfg.Metrics.Enabled,
	)

	var (
		metricsHandler http.Handler
		jobMetrics     *observability.JobMetrics
	)
	if cfg.Metrics.Enabled {
		handler, shutdownMetrics, err := observability.InitMetrics()
		if err != nil {
			logger.Error("failed to init metrics", "error", err)
			os.Exit(1)
		}
		defer func() { _ = shutdownMetrics(context.Background()) }()
		metricsHandler = handler

		jobMetrics, err = observability.NewJobMetrics()
		if err != nil {
			logger.Error("failed to create job metrics", "error", err)
			os.Exit(1)
		}
	}

	p, err := buildPipeline(cfg, jobMetrics, logger)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}
	defer p.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	janitor := jobs.NewJanitor(p.store, p.cache, cfg.Jobs.Retention, cfg.Cache.TTL, cfg.Jobs.SweepInterval, logger)
	janitorDone := make(chan struct{})
	go func() {
		defer close(janitorDone)
		_ = janitor.Run(ctx)
	}()

	srv := server.New(cfg.Server.Addr, p.manager, server.Options{
		MaxUploadBytes:   cfg.Server.MaxUploadBytes,
		AllowedMIMETypes: cfg.Server.AllowedMIMETypes,
		RateLimit:        cfg.Server.RateLimit.RequestsPerSecond,
		Burst:            cfg.Server.RateLimit.Burst,
		Metrics:          metricsHandler,
	}, logger)

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		stop()
	}
	<-janitorDone

	drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := p.manager.Shutdown(drainCtx); err != nil {
		logger.Warn("jobs still running at exit", "error", err)
	}

	logger.Info("goodbye")
	return nil
}
