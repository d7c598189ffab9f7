// internal/database/store_extensions.go - maintenance operations for retention
package database

import (
    "context"
    "time"
)

// ExtendedStore extends the basic Store interface with purging operations
type ExtendedStore interface {
    Store

    DeleteHistoryBefore(ctx context.Context, cutoff time.Time) (int, error)
    DeleteAlertsBefore(ctx context.Context, cutoff time.Time) (int, error)
    GetDatabaseStats(ctx context.Context) (*DatabaseStats, error)
}

// DatabaseStats provides information about database size and health
type DatabaseStats struct {
    TotalTargets      int       `json:"total_targets"`
    TotalHistory      int       `json:"total_history"`
    TotalAlerts       int       `json:"total_alerts"`
    DatabaseSize      int64     `json:"database_size_bytes"`
    OldestHistory     time.Time `json:"oldest_history"`
    NewestHistory     time.Time `json:"newest_history"`
}
