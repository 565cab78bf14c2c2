package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/five82/kiosk/internal/cache"
	"github.com/five82/kiosk/internal/config"
	"github.com/five82/kiosk/internal/notify"
	"github.com/five82/kiosk/internal/optimistic"
	"github.com/five82/kiosk/internal/poll"
	"github.com/five82/kiosk/internal/prefs"
	"github.com/five82/kiosk/internal/shop"
	"github.com/five82/kiosk/internal/state"
	"github.com/five82/kiosk/internal/ui"
)

// Options configure the kiosk application.
type Options struct {
	ConfigPath   string
	PrefsPath    string        // empty uses default ~/.config/kiosk/prefs.toml
	RefreshEvery time.Duration // zero uses the configured refresh_interval
	Debug        bool
}

// Services is the wired object graph behind the UI.
type Services struct {
	Client   *shop.Client
	Cache    *cache.Cache
	Notices  *notify.Feed
	Catalog  *catalogService
	Cart     *optimistic.Coordinator
	Wishlist *optimistic.Coordinator
	Poller   *poll.Poller
}

// Run boots the kiosk TUI until the context is cancelled.
func Run(ctx context.Context, opts Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	userPrefs, err := prefs.Load(opts.PrefsPath)
	if err != nil {
		userPrefs = prefs.Default()
	}

	logFile, err := openLog(cfg.LogPath())
	if err != nil {
		return err
	}
	defer logFile.Close()
	logger := newLogger(logFile, opts.Debug)
	logger.Info("kiosk starting", "api", cfg.APIURL, "tenant", cfg.Tenant, "customer", cfg.Customer)

	svc, err := Wire(cfg, logger)
	if err != nil {
		return err
	}

	interval := cfg.RefreshInterval
	if opts.RefreshEvery > 0 {
		interval = opts.RefreshEvery
	}

	// Populate the collections before the UI starts so the first frame is
	// not empty. Failures are recorded on the stores.
	_ = refreshAll(ctx, []Refresher{svc.Cart, svc.Wishlist})

	StartRefresher(ctx, interval, logger.With("component", "refresher"),
		svc.Cart,
		svc.Wishlist,
		RefreshFunc(func(context.Context) error {
			svc.Cache.Scope(cache.ScopeProducts).InvalidateList()
			return nil
		}),
	)

	err = ui.Run(ui.Options{
		Context:   ctx,
		Catalog:   svc.Catalog,
		Cart:      svc.Cart,
		Wishlist:  svc.Wishlist,
		Poller:    svc.Poller,
		Cache:     svc.Cache,
		Notices:   svc.Notices,
		LogPath:   cfg.LogPath(),
		Prefs:     userPrefs,
		PrefsPath: opts.PrefsPath,
		Logger:    logger,
	})
	logger.Info("kiosk stopped", "error", err)
	return err
}

// Wire builds the client, cache, coordinators and poller for cfg.
func Wire(cfg config.Config, logger *slog.Logger) (*Services, error) {
	client, err := shop.NewClient(shop.Options{
		APIURL:   cfg.APIURL,
		Tenant:   cfg.Tenant,
		Customer: cfg.Customer,
	})
	if err != nil {
		return nil, fmt.Errorf("init shop client: %w", err)
	}

	qc := cache.New()
	feed := notify.NewFeed(100)
	catalog := newCatalogService(client, qc)

	cart, err := optimistic.New(optimistic.Options{
		Kind:        shop.KindCart,
		Backend:     collectionBackend{client: client, kind: shop.KindCart},
		Catalog:     catalog,
		Store:       state.NewStore(),
		Invalidator: qc.Scope(cache.ScopeCart),
		Notifier:    feed,
		Logger:      logger,
		Accumulate:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("init cart: %w", err)
	}

	wishlist, err := optimistic.New(optimistic.Options{
		Kind:        shop.KindWishlist,
		Backend:     collectionBackend{client: client, kind: shop.KindWishlist},
		Catalog:     catalog,
		Store:       state.NewStore(),
		Invalidator: qc.Scope(cache.ScopeWishlist),
		Notifier:    feed,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init wishlist: %w", err)
	}

	poller := poll.New(client, poll.Options{
		InitialDelay: cfg.Poll.InitialDelay,
		MaxDelay:     cfg.Poll.MaxDelay,
		Multiplier:   cfg.Poll.Multiplier,
		Timeout:      cfg.Poll.Timeout,
		Logger:       logger,
	})

	return &Services{
		Client:   client,
		Cache:    qc,
		Notices:  feed,
		Catalog:  catalog,
		Cart:     cart,
		Wishlist: wishlist,
		Poller:   poller,
	}, nil
}

func openLog(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	return f, nil
}

func newLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
