package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/boltdb/bolt"
	"github.com/go-resty/resty/v2"
)

// App wires the store, the offline cache and the providers together. It
// is shared by the HTTP server and the CLI commands.
type App struct {
	Config    Config
	Logger    *slog.Logger
	Store     Store
	Prefs     *Preferences
	Cache     *OfflineCache
	Transport *CachingTransport
	Client    *resty.Client
	Wallpaper *WallpaperProvider
	Weather   *WeatherProvider
}

// NewApp opens the configured store and offline cache and builds the
// providers. The caller must Close the App.
func NewApp(ctx context.Context, cfg Config, logger *slog.Logger) (*App, error) {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app := &App{Config: cfg, Logger: logger, Store: store}

	var transport http.RoundTripper
	if cfg.Offline.Enabled {
		cache, err := OpenOfflineCache(cfg.Offline.Path, cfg.Offline.Generation)
		switch {
		case errors.Is(err, bolt.ErrTimeout):
			// another process (usually serve) holds the cache file
			logger.Warn("offline cache is locked, continuing without it", "path", cfg.Offline.Path)
		case err != nil:
			store.Close()
			return nil, err
		default:
			app.Cache = cache
			app.Transport = NewCachingTransport(cache, http.DefaultTransport, networkFirstHosts(cfg), logger)
			transport = app.Transport
		}
	}

	app.Client = NewHTTPClient(cfg.HTTP, transport, logger)
	app.Prefs = NewPreferences(store, cfg.Defaults, logger)
	app.Wallpaper = NewWallpaperProvider(app.Prefs, NewBingRelayClient(app.Client, cfg.Wallpaper), cfg.Wallpaper, logger)
	app.Weather = NewWeatherProvider(app.Prefs, NewWttrClient(app.Client, cfg.Weather.BaseURL), cfg.Weather, logger)

	return app, nil
}

func openStore(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Store.Backend {
	case "dynamodb":
		store, err := NewDynamoStore(ctx, cfg.Store, cfg.Auth.DeviceID)
		if err != nil {
			return nil, fmt.Errorf("creating DynamoDB store: %w", err)
		}
		return store, nil
	default:
		store, err := NewSQLiteStore(cfg.Store)
		if err != nil {
			return nil, fmt.Errorf("creating SQLite store: %w", err)
		}
		return store, nil
	}
}

// networkFirstHosts are the live data services: the weather service and
// the wallpaper relay.
func networkFirstHosts(cfg Config) []string {
	var hosts []string
	for _, raw := range []string{cfg.Weather.BaseURL, cfg.Wallpaper.RelayURL} {
		if u, err := url.Parse(raw); err == nil && u.Hostname() != "" {
			hosts = append(hosts, u.Hostname())
		}
	}
	return hosts
}

// InstallCache purges stale cache generations and precaches the configured
// assets. Precache failures are logged; the page works without them.
func (a *App) InstallCache(ctx context.Context) error {
	if a.Cache == nil {
		return nil
	}

	purged, err := a.Cache.Activate()
	if err != nil {
		return fmt.Errorf("activating offline cache: %w", err)
	}
	if len(purged) > 0 {
		a.Logger.Info("purged stale cache generations", "generations", purged)
	}

	if len(a.Config.Offline.Precache) > 0 {
		if err := a.Transport.Precache(ctx, a.Config.Offline.Precache); err != nil {
			a.Logger.Warn("precache incomplete", "error", err)
		}
	}
	return nil
}

func (a *App) Close() error {
	var errs []error
	if a.Cache != nil {
		errs = append(errs, a.Cache.Close())
	}
	errs = append(errs, a.Store.Close())
	return errors.Join(errs...)
}
