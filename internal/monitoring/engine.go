// internal/monitoring/engine.go
package monitoring

import (
    "context"
    "errors"
    "fmt"
    "net/url"
    "strings"
    "sync"
    "sync/atomic"
    "time"

    "github.com/sirupsen/logrus"
    "golang.org/x/sync/errgroup"
    "sitewarden/internal/analyzers"
    "sitewarden/internal/config"
    "sitewarden/internal/database"
    "sitewarden/internal/fetcher"
    "sitewarden/internal/metrics"
    "sitewarden/internal/netinfo"
)

var ErrSweepInProgress = errors.New("sweep already in progress")

// Enricher adds network facts about a target. It never fails.
type Enricher interface {
    Enrich(ctx context.Context, rawURL string) netinfo.Info
}

type Engine struct {
    config     *config.Config
    store      database.Store
    fetcher    fetcher.Fetcher
    enricher   Enricher
    analyzers  *analyzers.Set
    dispatcher *Dispatcher
    metrics    *metrics.Collector

    sweeping atomic.Bool
    active   sync.WaitGroup

    mu         sync.RWMutex
    listeners  []func(*database.CheckResult)
    lastReport *SweepReport

    now func() time.Time
}

// PersistenceError records a store write that failed for one target.
type PersistenceError struct {
    TargetID  string
    Operation string
    Err       error
}

func (e *PersistenceError) Error() string {
    return fmt.Sprintf("%s for target %s: %v", e.Operation, e.TargetID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// SweepReport describes one sweep. Results holds every check that ran, even
// when storing it failed.
type SweepReport struct {
    StartedAt         time.Time               `json:"started_at"`
    FinishedAt        time.Time               `json:"finished_at"`
    Targets           int                     `json:"targets"`
    Results           []*database.CheckResult `json:"-"`
    Alerts            []*database.Alert       `json:"alerts"`
    PersistenceErrors []error                 `json:"-"`
    Cancelled         bool                    `json:"cancelled"`
}

// Err joins the persistence failures of the sweep, or returns nil.
func (r *SweepReport) Err() error {
    return errors.Join(r.PersistenceErrors...)
}

// Counts tallies results by status.
func (r *SweepReport) Counts() map[database.Status]int {
    counts := make(map[database.Status]int)
    for _, res := range r.Results {
        counts[res.Status]++
    }
    return counts
}

func NewEngine(cfg *config.Config, store database.Store, f fetcher.Fetcher, enricher Enricher, notifier Notifier, metricsCollector *metrics.Collector) (*Engine, error) {
    catalog := analyzers.DefaultCatalog()
    if cfg.Monitoring.MalwareCatalog != "" {
        loaded, err := analyzers.LoadCatalog(cfg.Monitoring.MalwareCatalog)
        if err != nil {
            return nil, fmt.Errorf("failed to load malware catalog: %w", err)
        }
        catalog = loaded
    }

    fingerprints := make([]analyzers.Fingerprint, 0, len(cfg.Monitoring.TechFingerprints))
    for _, fp := range cfg.Monitoring.TechFingerprints {
        fingerprints = append(fingerprints, analyzers.Fingerprint{Name: fp.Name, Markers: fp.Markers})
    }
    set := analyzers.ConfiguredSet(catalog, fingerprints, cfg.Monitoring.SecurityHeaders)
    logrus.WithFields(logrus.Fields{
        "analyzers":        set.Names(),
        "malware_patterns": len(catalog.Patterns),
        "catalog_version":  catalog.Version,
    }).Info("Loaded analyzers")

    dispatcher := NewDispatcher(store, notifier, metricsCollector, cfg.Monitoring.AlertCooldown)
    dispatcher.SetDelivery(cfg.Notifications.Timeout, cfg.Notifications.Queue)

    return &Engine{
        config:     cfg,
        store:      store,
        fetcher:    f,
        enricher:   enricher,
        analyzers:  set,
        dispatcher: dispatcher,
        metrics:    metricsCollector,
        now:        time.Now,
    }, nil
}

// Analyzers exposes the analyzer set so callers can register more before the
// first sweep.
func (e *Engine) Analyzers() *analyzers.Set {
    return e.analyzers
}

// OnResult registers a callback run after each stored check.
func (e *Engine) OnResult(fn func(*database.CheckResult)) {
    e.mu.Lock()
    defer e.mu.Unlock()
    e.listeners = append(e.listeners, fn)
}

func (e *Engine) Sweeping() bool {
    return e.sweeping.Load()
}

func (e *Engine) LastReport() *SweepReport {
    e.mu.RLock()
    defer e.mu.RUnlock()
    return e.lastReport
}

// Wait blocks until the running sweep, if any, and every notification it
// started have finished. Stop all triggers before calling it.
func (e *Engine) Wait() {
    e.active.Wait()
    e.dispatcher.Wait()
}

// RunSweep checks every enabled target once and waits for the result. It
// returns ErrSweepInProgress without doing anything if a sweep is running.
func (e *Engine) RunSweep(ctx context.Context) (*SweepReport, error) {
    if !e.sweeping.CompareAndSwap(false, true) {
        e.metrics.RecordSweepSkipped()
        return nil, ErrSweepInProgress
    }
    e.active.Add(1)
    defer e.active.Done()
    defer e.sweeping.Store(false)

    return e.sweep(ctx)
}

// StartSweep is RunSweep without waiting. The in-progress check happens
// before it returns.
func (e *Engine) StartSweep(ctx context.Context) error {
    if !e.sweeping.CompareAndSwap(false, true) {
        e.metrics.RecordSweepSkipped()
        return ErrSweepInProgress
    }

    e.active.Add(1)
    go func() {
        defer e.active.Done()
        defer e.sweeping.Store(false)
        if _, err := e.sweep(ctx); err != nil {
            logrus.WithError(err).Error("Sweep failed")
        }
    }()
    return nil
}

func (e *Engine) sweep(ctx context.Context) (*SweepReport, error) {
    report := &SweepReport{StartedAt: e.now()}

    enabled := true
    listed, err := e.store.ListTargets(ctx, database.TargetFilters{Enabled: &enabled})
    e.metrics.RecordDatabaseOperation("list_targets", err)
    if err != nil {
        return nil, fmt.Errorf("failed to list targets: %w", err)
    }

    // one in-flight check per target id
    seen := make(map[string]bool, len(listed))
    targets := make([]database.Target, 0, len(listed))
    for _, t := range listed {
        if seen[t.ID] {
            continue
        }
        seen[t.ID] = true
        targets = append(targets, t)
    }
    report.Targets = len(targets)
    e.metrics.SetActiveTargets(len(targets))

    logrus.WithFields(logrus.Fields{
        "targets": len(targets),
        "workers": e.config.Monitoring.Workers,
    }).Info("Sweep started")

    jobs := make(chan database.Target)
    results := make(chan *targetOutcome)

    workerCount := e.config.Monitoring.Workers
    if workerCount > len(targets) {
        workerCount = len(targets)
    }

    var wg sync.WaitGroup
    for i := 0; i < workerCount; i++ {
        wg.Add(1)
        worker := &Worker{id: i, engine: e, jobs: jobs, results: results}
        go func() {
            defer wg.Done()
            worker.start(ctx)
        }()
    }

    go func() {
        defer close(jobs)
        for _, t := range targets {
            select {
            case jobs <- t:
            case <-ctx.Done():
                return
            }
        }
    }()

    go func() {
        wg.Wait()
        close(results)
    }()

    for outcome := range results {
        report.Results = append(report.Results, outcome.result)
        if outcome.alert != nil {
            report.Alerts = append(report.Alerts, outcome.alert)
        }
        report.PersistenceErrors = append(report.PersistenceErrors, outcome.errs...)
    }

    report.Cancelled = ctx.Err() != nil
    report.FinishedAt = e.now()
    e.metrics.RecordSweep(report.FinishedAt.Sub(report.StartedAt))

    e.mu.Lock()
    e.lastReport = report
    e.mu.Unlock()

    counts := report.Counts()
    fields := logrus.Fields{
        "targets":  report.Targets,
        "ok":       counts[database.StatusOK],
        "alterado": counts[database.StatusChanged],
        "erro":     counts[database.StatusError],
        "alerts":   len(report.Alerts),
        "duration": report.FinishedAt.Sub(report.StartedAt),
    }
    if err := report.Err(); err != nil {
        logrus.WithFields(fields).WithError(err).Warn("Sweep finished with persistence errors")
    } else {
        logrus.WithFields(fields).Info("Sweep finished")
    }

    return report, nil
}

type targetOutcome struct {
    result *database.CheckResult
    alert  *database.Alert
    errs   []error
}

// Worker pulls targets off the sweep's job channel.
type Worker struct {
    id      int
    engine  *Engine
    jobs    <-chan database.Target
    results chan<- *targetOutcome
}

func (w *Worker) start(ctx context.Context) {
    for target := range w.jobs {
        outcome := w.engine.checkTarget(ctx, target)
        w.results <- outcome
    }
}

// checkTarget runs the pipeline for one target under the pipeline timeout and
// stores the outcome. It always yields exactly one result.
func (e *Engine) checkTarget(ctx context.Context, target database.Target) *targetOutcome {
    started := e.now()
    timeout := e.config.Monitoring.PipelineTimeout

    pctx, cancel := context.WithTimeout(ctx, timeout)
    defer cancel()

    done := make(chan *database.CheckResult, 1)
    go func() {
        defer func() {
            if r := recover(); r != nil {
                logrus.WithFields(logrus.Fields{
                    "target": target.ID,
                    "panic":  fmt.Sprint(r),
                }).Error("Check pipeline panicked")
                done <- e.failedResult(target, started, fmt.Sprintf("internal error: %v", r))
            }
        }()
        done <- e.runPipeline(pctx, target, started)
    }()

    var result *database.CheckResult
    select {
    case result = <-done:
    case <-pctx.Done():
        result = e.failedResult(target, started, fmt.Sprintf("timeout: check exceeded %s", timeout))
    }

    outcome := &targetOutcome{result: result}

    // a check cut short by shutdown says nothing about the target
    if ctx.Err() != nil {
        return outcome
    }

    outcome.alert, outcome.errs = e.persist(ctx, target, result)
    e.metrics.RecordCheckResult(target.ID, result.Status, time.Duration(result.LoadDurationMs)*time.Millisecond, len(result.Malware))
    e.notifyListeners(result)

    logrus.WithFields(logrus.Fields{
        "target":   target.ID,
        "status":   result.Status,
        "http":     result.HTTPStatus,
        "duration": time.Since(started),
    }).Debug("Check completed")

    return outcome
}

func (e *Engine) runPipeline(ctx context.Context, target database.Target, started time.Time) *database.CheckResult {
    fctx, cancel := context.WithTimeout(ctx, e.config.Monitoring.FetchTimeout)
    fetched := e.fetcher.Fetch(fctx, target.URL)
    cancel()

    if fetched == nil {
        return e.failedResult(target, started, "transport: fetcher returned no result")
    }
    if !fetched.OK {
        result := e.failedResult(target, started, fetched.Message())
        result.LoadDurationMs = fetched.Duration.Milliseconds()
        info := e.enricher.Enrich(ctx, target.URL)
        result.IP, result.GeoLocation = info.IP, info.GeoLocation
        return result
    }

    hash := Fingerprint(fetched.HTML)

    var info netinfo.Info
    var report analyzers.Report
    g, gctx := errgroup.WithContext(ctx)
    g.Go(func() error {
        info = e.enricher.Enrich(gctx, target.URL)
        return nil
    })
    g.Go(func() error {
        report = e.analyzers.Run(fetched.HTML, fetched.Headers)
        return nil
    })
    g.Wait()

    status := Transition(true, target.LastHash, hash)

    finalURL := fetched.FinalURL
    if finalURL == "" {
        finalURL = target.URL
    }

    return &database.CheckResult{
        TargetID:       target.ID,
        TargetName:     target.Name,
        URL:            target.URL,
        Timestamp:      started,
        Status:         status,
        HTTPStatus:     fetched.StatusCode,
        Hash:           hash,
        LoadDurationMs: fetched.Duration.Milliseconds(),
        HTTPS:          strings.HasPrefix(strings.ToLower(finalURL), "https://"),
        Headers:        fetched.Headers,
        Title:          fetched.Title,
        HTMLBytes:      len(fetched.HTML),
        Images:         fetched.Images,
        Screenshot:     fetched.Screenshot,
        Host:           info.Host,
        IP:             info.IP,
        GeoLocation:    info.GeoLocation,
        Message:        statusMessage(status, target.LastHash),
        Report:         report,
    }
}

// failedResult builds an erro result. It keeps the previous hash out of the
// result so nothing downstream can mistake it for a new observation.
func (e *Engine) failedResult(target database.Target, started time.Time, message string) *database.CheckResult {
    var host string
    if u, err := url.Parse(target.URL); err == nil {
        host = u.Hostname()
    }

    return &database.CheckResult{
        TargetID:       target.ID,
        TargetName:     target.Name,
        URL:            target.URL,
        Timestamp:      started,
        Status:         Transition(false, target.LastHash, ""),
        HTTPStatus:     0,
        LoadDurationMs: e.now().Sub(started).Milliseconds(),
        HTTPS:          strings.HasPrefix(strings.ToLower(target.URL), "https://"),
        Headers:        map[string]string{},
        Images:         []database.Image{},
        Host:           host,
        IP:             netinfo.UnknownIP,
        GeoLocation:    netinfo.GeoUnavailable,
        Message:        message,
        Report: analyzers.Report{
            TechStack: []string{},
            Malware:   []analyzers.MalwareFinding{},
        },
    }
}

func statusMessage(status database.Status, priorHash string) string {
    switch {
    case status == database.StatusChanged:
        return MessageChanged
    case priorHash == "":
        return "first observation recorded"
    default:
        return "no changes detected"
    }
}

// persist writes the check back to the registry and history, then raises any
// alert. Failures are collected, never retried.
func (e *Engine) persist(ctx context.Context, target database.Target, result *database.CheckResult) (*database.Alert, []error) {
    var errs []error

    update := database.TargetCheckUpdate{
        TargetID:  target.ID,
        Status:    result.Status,
        CheckedAt: result.Timestamp,
    }
    if result.Status != database.StatusError {
        update.Hash = result.Hash
    }

    err := e.store.RecordCheck(ctx, update)
    e.metrics.RecordDatabaseOperation("record_check", err)
    if err != nil {
        errs = append(errs, &PersistenceError{TargetID: target.ID, Operation: "record check", Err: err})
    }

    err = e.store.AppendCheckResult(ctx, result)
    e.metrics.RecordDatabaseOperation("append_check_result", err)
    if err != nil {
        errs = append(errs, &PersistenceError{TargetID: target.ID, Operation: "append check result", Err: err})
    }

    alert, err := e.dispatcher.Dispatch(ctx, result)
    if err != nil {
        errs = append(errs, &PersistenceError{TargetID: target.ID, Operation: "append alert", Err: err})
    }

    for _, err := range errs {
        logrus.WithError(err).WithField("target", target.ID).Error("Failed to persist check")
    }
    return alert, errs
}

func (e *Engine) notifyListeners(result *database.CheckResult) {
    e.mu.RLock()
    listeners := e.listeners
    e.mu.RUnlock()

    for _, fn := range listeners {
        fn(result)
    }
}
