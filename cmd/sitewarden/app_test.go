package main

import (
    "context"
    "errors"
    "path/filepath"
    "testing"
    "time"

    "github.com/sirupsen/logrus"
    "sitewarden/internal/config"
    "sitewarden/internal/database"
    "sitewarden/internal/fetcher"
    "sitewarden/internal/monitoring"
    "sitewarden/internal/netinfo"
)

func TestNewFetcherSelectsEngine(t *testing.T) {
    cfg := &config.Config{}
    config.SetDefaults(cfg)

    cfg.Browser.Engine = "http"
    f, err := newFetcher(cfg)
    if err != nil {
        t.Fatalf("newFetcher: %v", err)
    }
    if _, ok := f.(*fetcher.HTTPFetcher); !ok {
        t.Errorf("expected an HTTP fetcher, got %T", f)
    }

    cfg.Browser.Engine = "lynx"
    if _, err := newFetcher(cfg); err == nil {
        t.Error("expected an error for an unknown engine")
    }
}

func TestSetupLogging(t *testing.T) {
    defer logrus.SetFormatter(&logrus.TextFormatter{})
    defer logrus.SetLevel(logrus.InfoLevel)

    setupLogging(config.LoggingConfig{Level: "debug", Format: "json"})
    if logrus.GetLevel() != logrus.DebugLevel {
        t.Errorf("expected debug level, got %s", logrus.GetLevel())
    }
    if _, ok := logrus.StandardLogger().Formatter.(*logrus.JSONFormatter); !ok {
        t.Error("expected JSON formatter")
    }

    setupLogging(config.LoggingConfig{Level: "bogus"})
    if logrus.GetLevel() != logrus.InfoLevel {
        t.Errorf("expected fallback to info, got %s", logrus.GetLevel())
    }
}

type noEnrich struct{}

func (noEnrich) Enrich(ctx context.Context, rawURL string) netinfo.Info {
    return netinfo.Info{IP: netinfo.UnknownIP, GeoLocation: netinfo.GeoUnavailable}
}

type blockingFetcher struct {
    release chan struct{}
}

func (b blockingFetcher) Fetch(ctx context.Context, url string) *fetcher.Result {
    <-b.release
    return fetcher.Failed(ctx, errors.New("released"), time.Now())
}

func TestWaitForSweepBlocksUntilSweepEnds(t *testing.T) {
    cfg := &config.Config{}
    config.SetDefaults(cfg)

    store, err := database.NewBoltStore(filepath.Join(t.TempDir(), "app.db"))
    if err != nil {
        t.Fatalf("NewBoltStore: %v", err)
    }
    defer store.Close()
    store.CreateTarget(context.Background(), &database.Target{ID: "a", URL: "https://a.example", Enabled: true})

    f := blockingFetcher{release: make(chan struct{})}
    engine, err := monitoring.NewEngine(cfg, store, f, noEnrich{}, nil, nil)
    if err != nil {
        t.Fatalf("NewEngine: %v", err)
    }
    if err := engine.StartSweep(context.Background()); err != nil {
        t.Fatalf("StartSweep: %v", err)
    }

    if waitForSweep(engine, 50*time.Millisecond) {
        t.Fatal("waitForSweep returned before the sweep finished")
    }

    close(f.release)
    if !waitForSweep(engine, 5*time.Second) {
        t.Fatal("waitForSweep timed out after the sweep was released")
    }
    if engine.Sweeping() {
        t.Error("engine still reports a sweep in progress")
    }
}
