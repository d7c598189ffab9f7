// internal/metrics/prometheus.go
package metrics

import (
    "context"
    "time"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promauto"
    "sitewarden/internal/database"
)

// Prometheus metrics
var (
    CheckDuration = promauto.NewHistogramVec(
        prometheus.HistogramOpts{
            Name:    "sitewarden_check_duration_seconds",
            Help:    "Time spent on one target pipeline",
            Buckets: []float64{0.5, 1, 2.5, 5, 10, 15, 30, 45, 60},
        },
        []string{"target", "status"},
    )

    CheckTotal = promauto.NewCounterVec(
        prometheus.CounterOpts{
            Name: "sitewarden_checks_total",
            Help: "Total number of target checks",
        },
        []string{"target", "status"},
    )

    TargetStatus = promauto.NewGaugeVec(
        prometheus.GaugeOpts{
            Name: "sitewarden_target_status",
            Help: "Current status of targets (0=ok, 1=alterado, 2=erro, 3=unknown)",
        },
        []string{"target"},
    )

    MalwareFindings = promauto.NewGaugeVec(
        prometheus.GaugeOpts{
            Name: "sitewarden_malware_findings",
            Help: "Malware findings on the latest check of a target",
        },
        []string{"target"},
    )

    SweepsTotal = promauto.NewCounterVec(
        prometheus.CounterOpts{
            Name: "sitewarden_sweeps_total",
            Help: "Sweeps started or skipped because one was already running",
        },
        []string{"outcome"},
    )

    SweepDuration = promauto.NewHistogram(
        prometheus.HistogramOpts{
            Name:    "sitewarden_sweep_duration_seconds",
            Help:    "Wall time of a full sweep",
            Buckets: prometheus.ExponentialBuckets(1, 2, 10),
        },
    )

    AlertsTotal = promauto.NewCounterVec(
        prometheus.CounterOpts{
            Name: "sitewarden_alerts_total",
            Help: "Alerts emitted or suppressed by cooldown",
        },
        []string{"type", "outcome"},
    )

    ActiveTargets = promauto.NewGauge(
        prometheus.GaugeOpts{
            Name: "sitewarden_active_targets_total",
            Help: "Number of enabled targets being monitored",
        },
    )

    DatabaseOperations = promauto.NewCounterVec(
        prometheus.CounterOpts{
            Name: "sitewarden_database_operations_total",
            Help: "Total database operations performed",
        },
        []string{"operation", "status"},
    )

    WebSocketConnections = promauto.NewGauge(
        prometheus.GaugeOpts{
            Name: "sitewarden_websocket_connections_active",
            Help: "Number of active WebSocket connections",
        },
    )
)

type Collector struct {
    store database.TargetRegistry
}

func NewCollector(store database.TargetRegistry) *Collector {
    return &Collector{store: store}
}

func (c *Collector) RecordCheckResult(target string, status database.Status, duration time.Duration, malwareFindings int) {
    CheckDuration.WithLabelValues(target, string(status)).Observe(duration.Seconds())
    CheckTotal.WithLabelValues(target, string(status)).Inc()
    TargetStatus.WithLabelValues(target).Set(statusValue(status))
    MalwareFindings.WithLabelValues(target).Set(float64(malwareFindings))
}

func (c *Collector) RecordSweep(duration time.Duration) {
    SweepsTotal.WithLabelValues("completed").Inc()
    SweepDuration.Observe(duration.Seconds())
}

func (c *Collector) RecordSweepSkipped() {
    SweepsTotal.WithLabelValues("skipped").Inc()
}

func (c *Collector) RecordAlert(typ database.AlertType, suppressed bool) {
    outcome := "emitted"
    if suppressed {
        outcome = "suppressed"
    }
    AlertsTotal.WithLabelValues(string(typ), outcome).Inc()
}

func (c *Collector) RecordDatabaseOperation(operation string, err error) {
    status := "success"
    if err != nil {
        status = "error"
    }
    DatabaseOperations.WithLabelValues(operation, status).Inc()
}

func (c *Collector) UpdateSystemMetrics(ctx context.Context) error {
    if c == nil || c.store == nil {
        return nil
    }
    enabled := true
    targets, err := c.store.ListTargets(ctx, database.TargetFilters{Enabled: &enabled})
    c.RecordDatabaseOperation("list_targets", err)
    if err != nil {
        return err
    }
    ActiveTargets.Set(float64(len(targets)))
    return nil
}

func (c *Collector) SetActiveTargets(n int) {
    ActiveTargets.Set(float64(n))
}

func (c *Collector) RecordWebSocketConnection(delta int) {
    WebSocketConnections.Add(float64(delta))
}

func statusValue(status database.Status) float64 {
    switch status {
    case database.StatusOK:
        return 0
    case database.StatusChanged:
        return 1
    case database.StatusError:
        return 2
    default:
        return 3
    }
}
