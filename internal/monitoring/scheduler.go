// internal/monitoring/scheduler.go - periodic sweeps and retention
package monitoring

import (
    "context"
    "errors"
    "sync"
    "time"

    "github.com/sirupsen/logrus"
)

// Scheduler fires a sweep every interval. A tick that lands while the previous
// sweep is still running is dropped, not queued.
type Scheduler struct {
    engine        *Engine
    interval      time.Duration
    purgeInterval time.Duration
    runOnStart    bool

    mu      sync.Mutex
    running bool
    cancel  context.CancelFunc
    wg      sync.WaitGroup
}

func NewScheduler(engine *Engine) *Scheduler {
    return &Scheduler{
        engine:        engine,
        interval:      engine.config.Monitoring.Interval,
        purgeInterval: engine.config.Database.CleanupInterval,
        runOnStart:    engine.config.Monitoring.RunOnStart,
    }
}

func (s *Scheduler) Start(ctx context.Context) error {
    s.mu.Lock()
    defer s.mu.Unlock()

    if s.running {
        return nil
    }
    if s.interval <= 0 {
        return errors.New("sweep interval must be positive")
    }

    ctx, s.cancel = context.WithCancel(ctx)
    s.running = true

    s.wg.Add(1)
    go s.scheduleSweeps(ctx)

    if s.purgeInterval > 0 {
        s.wg.Add(1)
        go s.schedulePurges(ctx)
    }

    logrus.WithFields(logrus.Fields{
        "interval":       s.interval,
        "purge_interval": s.purgeInterval,
        "run_on_start":   s.runOnStart,
    }).Info("Scheduler started")
    return nil
}

// Stop halts the tickers and waits for their goroutines. A sweep already
// running is cancelled through its context.
func (s *Scheduler) Stop() {
    s.mu.Lock()
    if !s.running {
        s.mu.Unlock()
        return
    }
    s.running = false
    s.cancel()
    s.mu.Unlock()

    s.wg.Wait()
    logrus.Info("Scheduler stopped")
}

func (s *Scheduler) scheduleSweeps(ctx context.Context) {
    defer s.wg.Done()

    ticker := time.NewTicker(s.interval)
    defer ticker.Stop()

    if s.runOnStart {
        s.trigger(ctx)
    }

    for {
        select {
        case <-ctx.Done():
            return
        case <-ticker.C:
            s.trigger(ctx)
        }
    }
}

func (s *Scheduler) trigger(ctx context.Context) {
    err := s.engine.StartSweep(ctx)
    if errors.Is(err, ErrSweepInProgress) {
        logrus.WithField("interval", s.interval).Warn("Previous sweep still running, skipping this tick")
    }
}

func (s *Scheduler) schedulePurges(ctx context.Context) {
    defer s.wg.Done()

    ticker := time.NewTicker(s.purgeInterval)
    defer ticker.Stop()

    purge := func() {
        if _, err := s.engine.PurgeHistory(ctx); err != nil {
            logrus.WithError(err).Error("Scheduled purge failed")
        }
    }
    purge()

    for {
        select {
        case <-ctx.Done():
            logrus.Debug("Stopping periodic purge scheduler")
            return
        case <-ticker.C:
            purge()
        }
    }
}
