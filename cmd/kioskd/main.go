// Command kioskd serves the storefront API the kiosk client talks to, backed
// by a local SQLite database. It is meant for development and demos.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/five82/kiosk/internal/config"
	"github.com/five82/kiosk/internal/devapi"
)

func main() {
	os.Exit(run())
}

func run() int {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.LoadServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "kioskd: %v\n", err)
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "kioskd: create data dir: %v\n", err)
			return 1
		}
	}
	store, err := devapi.Open(ctx, cfg.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kioskd: %v\n", err)
		return 1
	}
	defer store.Close()

	logger.Info("kioskd starting", "db", cfg.DBPath, "processing_delay", cfg.ProcessingDelay, "seed", cfg.Seed)
	srv := devapi.NewServer(devapi.Options{
		Store:           store,
		Logger:          logger,
		ProcessingDelay: cfg.ProcessingDelay,
		Seed:            cfg.Seed,
	})
	if err := srv.ListenAndServe(ctx, cfg.Addr); err != nil {
		fmt.Fprintf(os.Stderr, "kioskd: %v\n", err)
		return 1
	}
	return 0
}
