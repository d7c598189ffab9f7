// internal/database/boltstore_extended.go - retention and statistics
package database

import (
    "context"
    "encoding/json"
    "fmt"
    "os"
    "time"

    "github.com/sirupsen/logrus"
    "go.etcd.io/bbolt"
)

var _ ExtendedStore = (*BoltStore)(nil)

// DeleteHistoryBefore removes check results older than cutoff.
func (s *BoltStore) DeleteHistoryBefore(ctx context.Context, cutoff time.Time) (int, error) {
    deleted, err := s.deleteBefore(HistoryBucket, cutoff, func(v []byte) (time.Time, error) {
        var result CheckResult
        err := json.Unmarshal(v, &result)
        return result.Timestamp, err
    })
    if err != nil {
        return 0, fmt.Errorf("failed to delete old history: %w", err)
    }

    logrus.WithFields(logrus.Fields{
        "deleted_count": deleted,
        "cutoff_time":   cutoff,
    }).Info("Deleted old check history entries")
    return deleted, nil
}

// DeleteAlertsBefore removes alerts older than cutoff.
func (s *BoltStore) DeleteAlertsBefore(ctx context.Context, cutoff time.Time) (int, error) {
    deleted, err := s.deleteBefore(AlertsBucket, cutoff, func(v []byte) (time.Time, error) {
        var alert Alert
        err := json.Unmarshal(v, &alert)
        return alert.CreatedAt, err
    })
    if err != nil {
        return 0, fmt.Errorf("failed to delete old alerts: %w", err)
    }

    logrus.WithFields(logrus.Fields{
        "deleted_count": deleted,
        "cutoff_time":   cutoff,
    }).Info("Deleted old alerts")
    return deleted, nil
}

func (s *BoltStore) deleteBefore(bucket []byte, cutoff time.Time, timestamp func([]byte) (time.Time, error)) (int, error) {
    deleted := 0

    err := s.db.Update(func(tx *bbolt.Tx) error {
        b := tx.Bucket(bucket)
        cursor := b.Cursor()

        var keysToDelete [][]byte
        for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
            ts, err := timestamp(v)
            if err != nil {
                continue
            }
            if ts.Before(cutoff) {
                keysToDelete = append(keysToDelete, copyBytes(k))
            }
        }

        for _, key := range keysToDelete {
            if err := b.Delete(key); err != nil {
                return err
            }
            deleted++
        }
        return nil
    })

    return deleted, err
}

// GetDatabaseStats returns information about database size and health
func (s *BoltStore) GetDatabaseStats(ctx context.Context) (*DatabaseStats, error) {
    stats := &DatabaseStats{}

    err := s.db.View(func(tx *bbolt.Tx) error {
        stats.TotalTargets = tx.Bucket(TargetsBucket).Stats().KeyN
        stats.TotalAlerts = tx.Bucket(AlertsBucket).Stats().KeyN

        // history keys are grouped by target, so the time range needs a full scan
        return tx.Bucket(HistoryBucket).ForEach(func(k, v []byte) error {
            stats.TotalHistory++

            var result CheckResult
            if err := json.Unmarshal(v, &result); err != nil {
                return nil
            }
            if stats.OldestHistory.IsZero() || result.Timestamp.Before(stats.OldestHistory) {
                stats.OldestHistory = result.Timestamp
            }
            if result.Timestamp.After(stats.NewestHistory) {
                stats.NewestHistory = result.Timestamp
            }
            return nil
        })
    })
    if err != nil {
        return nil, fmt.Errorf("failed to get database stats: %w", err)
    }

    if fileInfo, err := os.Stat(s.path); err == nil {
        stats.DatabaseSize = fileInfo.Size()
    }

    return stats, nil
}

// copyBytes creates a copy of a byte slice
func copyBytes(b []byte) []byte {
    if b == nil {
        return nil
    }
    copied := make([]byte, len(b))
    copy(copied, b)
    return copied
}
