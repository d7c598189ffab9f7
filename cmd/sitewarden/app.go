// cmd/sitewarden/app.go - wires the stores, fetcher and engine together
package main

import (
    "context"
    "errors"
    "fmt"

    "github.com/sirupsen/logrus"
    "sitewarden/internal/artifacts"
    "sitewarden/internal/config"
    "sitewarden/internal/database"
    "sitewarden/internal/fetcher"
    "sitewarden/internal/metrics"
    "sitewarden/internal/monitoring"
    "sitewarden/internal/netinfo"
    "sitewarden/internal/notifications"
    "sitewarden/internal/registry"
)

type app struct {
    config   *config.Config
    store    *database.BoltStore
    notifier *notifications.Service
    metrics  *metrics.Collector
    engine   *monitoring.Engine

    closers []func()
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
    rt := &app{config: cfg}

    store, err := database.NewBoltStore(cfg.Database.Path)
    if err != nil {
        return nil, fmt.Errorf("failed to initialize database: %w", err)
    }
    rt.store = store
    rt.closers = append(rt.closers, func() { store.Close() })

    synced, err := registry.Sync(ctx, store, cfg.Targets, true)
    if err != nil {
        rt.Close()
        return nil, fmt.Errorf("failed to sync targets: %w", err)
    }
    logrus.WithFields(logrus.Fields{
        "created": synced.Created,
        "updated": synced.Updated,
        "purged":  synced.Purged,
        "failed":  synced.Failed,
    }).Info("Target registry synchronized")

    f, err := newFetcher(cfg)
    if err != nil {
        rt.Close()
        return nil, err
    }
    if closer, ok := f.(interface{ Close() }); ok {
        rt.closers = append(rt.closers, closer.Close)
    }

    var locator netinfo.GeoLocator
    if cfg.Geo.Enabled {
        locator = netinfo.NewIPAPILocator(cfg.Geo)
    }
    enricher := netinfo.NewEnricher(nil, locator, cfg.Geo.Timeout)

    rt.notifier, err = notifications.NewService(&cfg.Notifications)
    if err != nil {
        rt.Close()
        return nil, fmt.Errorf("failed to initialize notifications: %w", err)
    }

    rt.metrics = metrics.NewCollector(store)

    rt.engine, err = monitoring.NewEngine(cfg, store, f, enricher, rt.notifier, rt.metrics)
    if err != nil {
        rt.Close()
        return nil, fmt.Errorf("failed to initialize monitoring engine: %w", err)
    }

    return rt, nil
}

func newFetcher(cfg *config.Config) (fetcher.Fetcher, error) {
    switch cfg.Browser.Engine {
    case "http":
        logrus.Info("Using plain HTTP fetcher; screenshots are disabled")
        return fetcher.NewHTTPFetcher(cfg.Monitoring.UserAgent, cfg.Monitoring.FetchTimeout), nil
    case "", "chrome":
        shots, err := artifacts.NewFilesystemStore(cfg.Artifacts.Dir, cfg.Artifacts.URLPrefix)
        if err != nil {
            return nil, fmt.Errorf("failed to initialize screenshot store: %w", err)
        }
        chrome, err := fetcher.NewChromeFetcher(cfg.Browser, cfg.Monitoring, shots)
        if err != nil {
            return nil, fmt.Errorf("failed to start browser: %w", err)
        }
        return chrome, nil
    default:
        return nil, errors.New("unknown browser engine " + cfg.Browser.Engine)
    }
}

// Close releases resources in reverse order of acquisition.
func (rt *app) Close() {
    for i := len(rt.closers) - 1; i >= 0; i-- {
        rt.closers[i]()
    }
    rt.closers = nil
}
