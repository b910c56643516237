// Command termdex-postsvc serves one collection's postings store over the
// binary write/read-reduce wire protocol; remote callers reach it through
// postingsrpc.Client. termdexd's write sessions and evaluators open the
// postings store in-process and do not dial this service.
//
// Usage:
//
//	go run ./cmd/termdex-postsvc -config configs/development.yaml -collection movies
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lattice-io/termdex/internal/collection"
	"github.com/lattice-io/termdex/internal/postingsrpc"
	"github.com/lattice-io/termdex/pkg/config"
	"github.com/lattice-io/termdex/pkg/logger"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	collectionName := flag.String("collection", "", "name of the collection to serve")
	flag.Parse()

	if *collectionName == "" {
		fmt.Fprintln(os.Stderr, "-collection is required")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting termdex-postsvc", "collection", *collectionName, "addr", cfg.Postings.ListenAddr)

	col, err := collection.Open(cfg.Engine.DataDir, *collectionName, collection.Config{})
	if err != nil {
		slog.Error("failed to open collection", "collection", *collectionName, "error", err)
		os.Exit(1)
	}
	defer col.Close()

	srv := postingsrpc.NewServer(col.Postings, col.ID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		srv.Stop()
	}()

	slog.Info("termdex-postsvc listening", "addr", cfg.Postings.ListenAddr)
	if err := srv.Serve(cfg.Postings.ListenAddr); err != nil {
		slog.Error("postings server error", "error", err)
		os.Exit(1)
	}

	slog.Info("termdex-postsvc stopped")
}
