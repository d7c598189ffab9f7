// internal/database/store.go
package database

import (
    "context"
    "errors"
    "time"
)

var ErrTargetNotFound = errors.New("target not found")

// TargetRegistry is the set of monitored sites.
type TargetRegistry interface {
    ListTargets(ctx context.Context, filters TargetFilters) ([]Target, error)
    GetTarget(ctx context.Context, id string) (*Target, error)
    CreateTarget(ctx context.Context, target *Target) error
    UpdateTarget(ctx context.Context, target *Target) error
    DeleteTarget(ctx context.Context, id string) error

    // RecordCheck stores the outcome of a check on the target itself.
    RecordCheck(ctx context.Context, update TargetCheckUpdate) error
}

// HistoryStore is append-only.
type HistoryStore interface {
    AppendCheckResult(ctx context.Context, result *CheckResult) error
    GetCheckHistory(ctx context.Context, targetID string, filters HistoryFilters) ([]CheckResult, error)
}

type AlertStore interface {
    AppendAlert(ctx context.Context, alert *Alert) error
    // RecentAlerts returns alerts for target of type typ created after since.
    RecentAlerts(ctx context.Context, targetID string, typ AlertType, since time.Time) ([]Alert, error)
    ListAlerts(ctx context.Context, filters AlertFilters) ([]Alert, error)
}

// Store defines the interface for database operations
type Store interface {
    TargetRegistry
    HistoryStore
    AlertStore

    Close() error
}
