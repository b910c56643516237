// Command termdexd starts the document API front end.
//
// termdexd is the single entry point for external clients: it authenticates
// requests via API keys (SHA-256 validated against PostgreSQL), applies
// per-key rate limiting, drains the bulk-ingest Kafka topic into
// per-collection write sessions, and serves paged queries straight out of
// each collection's published batches, through a Redis-backed result cache.
//
// Usage:
//
//	go run ./cmd/termdexd [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lattice-io/termdex/internal/adminrpc"
	"github.com/lattice-io/termdex/internal/auth/apikey"
	"github.com/lattice-io/termdex/internal/auth/ratelimit"
	"github.com/lattice-io/termdex/internal/collection"
	"github.com/lattice-io/termdex/internal/httpapi"
	"github.com/lattice-io/termdex/internal/ingest"
	"github.com/lattice-io/termdex/internal/media"
	"github.com/lattice-io/termdex/internal/querycache"
	"github.com/lattice-io/termdex/internal/write"
	"github.com/lattice-io/termdex/pkg/config"
	"github.com/lattice-io/termdex/pkg/health"
	"github.com/lattice-io/termdex/pkg/kafka"
	"github.com/lattice-io/termdex/pkg/logger"
	"github.com/lattice-io/termdex/pkg/metrics"
	"github.com/lattice-io/termdex/pkg/postgres"
	pkgredis "github.com/lattice-io/termdex/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting termdexd",
		"port", cfg.Server.Port,
		"data_dir", cfg.Engine.DataDir,
		"admin_addr", cfg.Admin.ListenAddr,
	)

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to postgres")

	validator := apikey.NewValidator(db)
	limiter := ratelimit.New(time.Minute)

	m := metrics.New()

	registry := media.Default()
	resolve := func(name string) collection.Config {
		return collection.Config{
			WorkerCount:         cfg.Engine.WorkerCount,
			QueueDepth:          cfg.Engine.QueueDepth,
			ValidatorSampleRate: cfg.Engine.ValidatorSampleRate,
		}
	}

	loader := ingest.New(cfg.Engine.DataDir, registry, resolve, ingest.Config{
		BatchMaxDocs:  cfg.Engine.BatchMaxDocs,
		FlushInterval: cfg.Engine.FlushInterval,
		SessionConfig: write.Config{WorkerCount: cfg.Engine.WorkerCount, QueueDepth: cfg.Engine.QueueDepth},
	}, m)

	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.IngestTopic, loader.Handler())

	var cache *querycache.QueryCache
	redisClient, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("query cache unavailable, queries will always compute directly", "error", err)
	} else {
		cache = querycache.New(redisClient, cfg.Redis)
	}

	h := httpapi.New(cfg.Engine.DataDir, registry, resolve, loader, cache, m)
	checker := health.NewChecker()
	checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
		if err := db.DB.PingContext(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	chain := httpapi.NewRouter(h, checker, m, validator, limiter, cfg.Server.RequestTimeout)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	adminStats := func(name string) (string, uint64, error) {
		return cfg.Engine.DataDir, collection.HashName(name), nil
	}
	admin := adminrpc.New(loader, adminStats)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("ingest consumer starting", "topic", cfg.Kafka.IngestTopic)
		if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
			slog.Error("ingest consumer stopped unexpectedly", "error", err)
		}
	}()

	go func() {
		slog.Info("admin rpc listening", "addr", cfg.Admin.ListenAddr)
		if err := admin.Serve(cfg.Admin.ListenAddr); err != nil {
			slog.Error("admin rpc server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		if err := loader.Flush(); err != nil {
			slog.Error("final flush failed", "error", err)
		}
		admin.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("termdexd listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("termdexd stopped")
}
