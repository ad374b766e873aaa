package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/couchcryptid/storm-data-radar/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/storm-data-radar/internal/adapter/kafka"
	"github.com/couchcryptid/storm-data-radar/internal/adapter/netcdf"
	"github.com/couchcryptid/storm-data-radar/internal/config"
	"github.com/couchcryptid/storm-data-radar/internal/observability"
	"github.com/couchcryptid/storm-data-radar/internal/pipeline"
	"github.com/couchcryptid/storm-data-radar/internal/radar"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	strides, err := radar.ParseStrideTable(cfg.GateStrides)
	if err != nil {
		logger.Error("invalid gate strides", "error", err)
		os.Exit(1)
	}

	opener := netcdf.Opener{Root: cfg.VolumeRoot}
	summarizer := pipeline.NewCachedSummarizer(
		pipeline.NewVolumeSummarizer(opener, logger, metrics,
			radar.WithLogger(logger),
			radar.WithRecorder(metrics),
			radar.WithStrideTable(strides),
			radar.WithSweepCache(cfg.SweepCache),
		),
		opener,
		cfg.SummaryCacheSize,
		metrics,
	)
	logger.Info("volume access configured",
		"volume_root", cfg.VolumeRoot,
		"summary_cache_size", cfg.SummaryCacheSize,
		"sweep_cache", cfg.SweepCache,
		"gate_strides", strides.String(),
		"read_attempts", cfg.ReadAttempts,
	)

	reader := kafkaadapter.NewReader(cfg, logger)
	writer := kafkaadapter.NewWriter(cfg, logger)
	transformer := pipeline.NewTransformer(summarizer, logger)

	p := pipeline.New(reader, transformer, writer, logger, metrics, cfg.BatchSize,
		pipeline.WithReadRetry(cfg.ReadAttempts, 500*time.Millisecond),
	)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, summarizer, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start indexing pipeline.
	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}

	logger.Info("shutdown complete")
}
