package monitoring

import (
    "context"
    "sync/atomic"
    "testing"
    "time"

    "sitewarden/internal/fetcher"
)

func TestScheduler_SkipsOverlappingTicks(t *testing.T) {
    store := newStore(t)
    addTarget(t, store, "slow", "https://slow.example", "")

    var calls atomic.Int32
    release := make(chan struct{})
    f := fetcher.Func(func(ctx context.Context, url string) *fetcher.Result {
        calls.Add(1)
        select {
        case <-release:
        case <-ctx.Done():
        }
        return &fetcher.Result{OK: true, HTML: examplePage}
    })

    cfg := testConfig()
    cfg.Monitoring.Interval = 20 * time.Millisecond
    cfg.Monitoring.FetchTimeout = 5 * time.Second
    cfg.Monitoring.PipelineTimeout = 5 * time.Second
    cfg.Monitoring.RunOnStart = true
    cfg.Database.CleanupInterval = 0

    engine := newTestEngine(t, cfg, store, f, nil)
    scheduler := NewScheduler(engine)
    if err := scheduler.Start(context.Background()); err != nil {
        t.Fatalf("Start: %v", err)
    }

    time.Sleep(150 * time.Millisecond)
    if got := calls.Load(); got != 1 {
        t.Errorf("expected a single running sweep, saw %d fetches", got)
    }

    close(release)
    scheduler.Stop()
    for engine.Sweeping() {
        time.Sleep(5 * time.Millisecond)
    }
}
