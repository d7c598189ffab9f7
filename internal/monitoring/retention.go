// internal/monitoring/retention.go - history and alert retention
package monitoring

import (
    "context"
    "errors"
    "time"

    "github.com/sirupsen/logrus"
    "sitewarden/internal/database"
)

var ErrRetentionUnsupported = errors.New("store does not support retention")

type PurgeReport struct {
    Cutoff         time.Time `json:"cutoff"`
    HistoryDeleted int       `json:"history_deleted"`
    AlertsDeleted  int       `json:"alerts_deleted"`
}

// PurgeHistory drops check results and alerts older than the configured
// retention. Stores without retention support are left alone.
func (e *Engine) PurgeHistory(ctx context.Context) (*PurgeReport, error) {
    extended, ok := e.store.(database.ExtendedStore)
    if !ok {
        return nil, ErrRetentionUnsupported
    }

    retention := e.config.Database.HistoryRetention
    if retention <= 0 {
        return &PurgeReport{}, nil
    }

    report := &PurgeReport{Cutoff: e.now().Add(-retention)}
    var errs []error

    deleted, err := extended.DeleteHistoryBefore(ctx, report.Cutoff)
    e.metrics.RecordDatabaseOperation("delete_history", err)
    if err != nil {
        errs = append(errs, err)
    }
    report.HistoryDeleted = deleted

    deleted, err = extended.DeleteAlertsBefore(ctx, report.Cutoff)
    e.metrics.RecordDatabaseOperation("delete_alerts", err)
    if err != nil {
        errs = append(errs, err)
    }
    report.AlertsDeleted = deleted

    logrus.WithFields(logrus.Fields{
        "cutoff":          report.Cutoff,
        "history_deleted": report.HistoryDeleted,
        "alerts_deleted":  report.AlertsDeleted,
    }).Info("Retention purge completed")

    return report, errors.Join(errs...)
}
