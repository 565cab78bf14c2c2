package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/five82/kiosk/internal/app"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "override kiosk config path (optional)")
	prefsPath := flag.String("prefs", "", "override UI preferences path (optional)")
	refresh := flag.Duration("refresh", 0, "background refresh interval (optional, defaults to refresh_interval from config)")
	debug := flag.Bool("debug", false, "write debug records to the log")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts := app.Options{
		ConfigPath: *configPath,
		PrefsPath:  *prefsPath,
		Debug:      *debug,
	}
	if every := *refresh; every > 0 {
		opts.RefreshEvery = max(every, time.Second)
	}

	if err := app.Run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "kiosk: %v\n", err)
		return 1
	}
	return 0
}
