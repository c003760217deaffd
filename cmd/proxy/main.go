package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/WillKirkmanM/cacheproxy/internal/cache"
	"github.com/WillKirkmanM/cacheproxy/internal/config"
	"github.com/WillKirkmanM/cacheproxy/internal/logging"
	"github.com/WillKirkmanM/cacheproxy/internal/metrics"
	"github.com/WillKirkmanM/cacheproxy/internal/originpool"
	"github.com/WillKirkmanM/cacheproxy/internal/server"
	"github.com/WillKirkmanM/cacheproxy/internal/tracing"
)

// main wires configuration, tracing, metrics, the cache core, the origin
// connection pool, and the raw-socket server into a running proxy, then
// blocks for SIGINT/SIGTERM and drains in-flight connections on exit.
func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	if err := config.LoadConfig(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg := config.GetInstance()

	logger := logging.NewLogger(cfg.Tracing.ServiceName, logging.ParseLevel(cfg.Logging.Level))

	shutdownTracing, err := tracing.InitTracing(toTracingConfig(cfg.Tracing))
	if err != nil {
		log.Fatalf("failed to initialise tracing: %v", err)
	}
	defer shutdownTracing()

	m := metrics.NewMetrics()
	if cfg.Metrics.Enabled {
		go func() {
			logger.Info(context.Background(), "metrics endpoint listening",
				slog.String("addr", cfg.Metrics.ListenAddr))
			if err := m.ListenAndServe(cfg.Metrics.ListenAddr); err != nil {
				logger.Error(context.Background(), "metrics server stopped", err)
			}
		}()
	}

	cacheInstance := cache.New(cfg.Cache.Capacity, cfg.Cache.MaxChunkSize)
	cacheInstance.OnEvict(m.RecordCacheEviction)

	pool, err := originpool.New(originpool.Config{
		Algorithm:   cfg.OriginPool.Algorithm,
		MaxPerHost:  cfg.OriginPool.MaxPerHost,
		DialTimeout: cfg.OriginPool.DialTimeout,
		IdleTimeout: cfg.OriginPool.IdleTimeout,
	})
	if err != nil {
		log.Fatalf("failed to create origin pool: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if len(cfg.OriginPool.WarmHosts) > 0 {
		if err := pool.WarmUp(ctx, cfg.OriginPool.WarmHosts); err != nil {
			logger.Warn(ctx, "origin pool warm-up failed", slog.String("error", err.Error()))
		}
	}

	srv := server.New(cfg, cacheInstance, pool, logger, m)

	go reportCacheStats(ctx, cacheInstance, m)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info(ctx, "starting proxy server", slog.String("addr", cfg.Server.ListenAddr))
		if err := srv.Start(ctx); err != nil {
			logger.Fatal(ctx, "server failed to start", err)
		}
	}()

	<-sigChan
	logger.Info(ctx, "received termination signal, shutting down gracefully")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(context.Background(), "error during shutdown", err)
	}

	logger.Info(context.Background(), "proxy server stopped")
}

// reportCacheStats polls the cache's size and pushes it into the gauge
// instruments on an interval, rather than on every hit/miss/evict.
func reportCacheStats(ctx context.Context, c *cache.Cache, m *metrics.Metrics) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.SetCacheStats(c.Len(), c.TotalBytes())
		}
	}
}

// toTracingConfig adapts the config package's TracingConfig into the
// tracing package's own type. The two are defined separately because
// config owns the YAML schema while tracing owns OpenTelemetry exporter
// wiring; they happen to share shape today but are not the same type.
func toTracingConfig(c config.TracingConfig) tracing.TracingConfig {
	return tracing.TracingConfig{
		Enabled:        c.Enabled,
		ServiceName:    c.ServiceName,
		ServiceVersion: c.ServiceVersion,
		Environment:    c.Environment,
		JaegerEndpoint: c.JaegerEndpoint,
		OTLPEndpoint:   c.OTLPEndpoint,
		SamplingRatio:  c.SamplingRatio,
	}
}
