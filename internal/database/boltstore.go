// internal/database/boltstore.go - BoltDB implementation
package database

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "os"
    "path/filepath"
    "sort"
    "strings"
    "time"

    "github.com/google/uuid"
    "go.etcd.io/bbolt"
)

var (
    TargetsBucket = []byte("targets")
    HistoryBucket = []byte("history")
    AlertsBucket  = []byte("alerts")
    MetaBucket    = []byte("meta")

    allBuckets = [][]byte{TargetsBucket, HistoryBucket, AlertsBucket, MetaBucket}
)

type BoltStore struct {
    db   *bbolt.DB
    path string
}

func NewBoltStore(path string) (*BoltStore, error) {
    if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
        return nil, fmt.Errorf("failed to create data directory: %w", err)
    }

    db, err := bbolt.Open(path, 0600, &bbolt.Options{
        Timeout: 1 * time.Second,
    })
    if err != nil {
        return nil, fmt.Errorf("failed to open BoltDB: %w", err)
    }

    store := &BoltStore{db: db, path: path}

    if err := store.initBuckets(); err != nil {
        db.Close()
        return nil, fmt.Errorf("failed to initialize buckets: %w", err)
    }

    return store, nil
}

func (s *BoltStore) initBuckets() error {
    return s.db.Update(func(tx *bbolt.Tx) error {
        for _, bucket := range allBuckets {
            if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
                return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
            }
        }
        return nil
    })
}

// Keys sort by target, then time. Timestamps are zero padded so byte order
// matches chronological order.
func historyPrefix(targetID string) string {
    return targetID + ":"
}

func historyKey(targetID string, ts time.Time, id string) []byte {
    return []byte(fmt.Sprintf("%s%020d:%s", historyPrefix(targetID), ts.UnixNano(), id))
}

func alertPrefix(targetID string, typ AlertType) string {
    return fmt.Sprintf("%s:%s:", targetID, typ)
}

func alertKey(targetID string, typ AlertType, ts time.Time, id string) []byte {
    return []byte(fmt.Sprintf("%s%020d:%s", alertPrefix(targetID, typ), ts.UnixNano(), id))
}

func (s *BoltStore) ListTargets(ctx context.Context, filters TargetFilters) ([]Target, error) {
    var targets []Target

    err := s.db.View(func(tx *bbolt.Tx) error {
        b := tx.Bucket(TargetsBucket)
        return b.ForEach(func(k, v []byte) error {
            var target Target
            if err := json.Unmarshal(v, &target); err != nil {
                return fmt.Errorf("failed to unmarshal target %s: %w", k, err)
            }

            if filters.Enabled != nil && target.Enabled != *filters.Enabled {
                return nil
            }

            targets = append(targets, target)
            return nil
        })
    })

    return targets, err
}

func (s *BoltStore) GetTarget(ctx context.Context, id string) (*Target, error) {
    var target Target

    err := s.db.View(func(tx *bbolt.Tx) error {
        v := tx.Bucket(TargetsBucket).Get([]byte(id))
        if v == nil {
            return ErrTargetNotFound
        }
        return json.Unmarshal(v, &target)
    })

    if err != nil {
        return nil, err
    }
    return &target, nil
}

func (s *BoltStore) CreateTarget(ctx context.Context, target *Target) error {
    if target.ID == "" {
        target.ID = uuid.New().String()
    }
    if strings.Contains(target.ID, ":") {
        return fmt.Errorf("target id %q must not contain ':'", target.ID)
    }
    if target.LastStatus == "" {
        target.LastStatus = StatusUnknown
    }
    target.CreatedAt = time.Now()
    target.UpdatedAt = target.CreatedAt

    return s.putTarget(target)
}

func (s *BoltStore) UpdateTarget(ctx context.Context, target *Target) error {
    target.UpdatedAt = time.Now()
    return s.putTarget(target)
}

func (s *BoltStore) putTarget(target *Target) error {
    return s.db.Update(func(tx *bbolt.Tx) error {
        data, err := json.Marshal(target)
        if err != nil {
            return fmt.Errorf("failed to marshal target: %w", err)
        }
        return tx.Bucket(TargetsBucket).Put([]byte(target.ID), data)
    })
}

func (s *BoltStore) DeleteTarget(ctx context.Context, id string) error {
    return s.db.Update(func(tx *bbolt.Tx) error {
        return tx.Bucket(TargetsBucket).Delete([]byte(id))
    })
}

func (s *BoltStore) RecordCheck(ctx context.Context, update TargetCheckUpdate) error {
    return s.db.Update(func(tx *bbolt.Tx) error {
        b := tx.Bucket(TargetsBucket)
        v := b.Get([]byte(update.TargetID))
        if v == nil {
            return ErrTargetNotFound
        }

        var target Target
        if err := json.Unmarshal(v, &target); err != nil {
            return fmt.Errorf("failed to unmarshal target %s: %w", update.TargetID, err)
        }

        target.LastStatus = update.Status
        target.LastCheckedAt = update.CheckedAt
        if update.Hash != "" {
            target.LastHash = update.Hash
        }

        data, err := json.Marshal(&target)
        if err != nil {
            return fmt.Errorf("failed to marshal target: %w", err)
        }
        return b.Put([]byte(target.ID), data)
    })
}

func (s *BoltStore) AppendCheckResult(ctx context.Context, result *CheckResult) error {
    if result.ID == "" {
        result.ID = uuid.New().String()
    }

    return s.db.Update(func(tx *bbolt.Tx) error {
        data, err := json.Marshal(result)
        if err != nil {
            return fmt.Errorf("failed to marshal check result: %w", err)
        }
        return tx.Bucket(HistoryBucket).Put(historyKey(result.TargetID, result.Timestamp, result.ID), data)
    })
}

// GetCheckHistory returns results in chronological order. With a limit only the
// newest entries are kept.
func (s *BoltStore) GetCheckHistory(ctx context.Context, targetID string, filters HistoryFilters) ([]CheckResult, error) {
    var results []CheckResult

    err := s.db.View(func(tx *bbolt.Tx) error {
        c := tx.Bucket(HistoryBucket).Cursor()
        prefix := []byte(historyPrefix(targetID))

        start := prefix
        if !filters.Since.IsZero() {
            start = []byte(fmt.Sprintf("%s%020d", prefix, filters.Since.UnixNano()))
        }

        for k, v := c.Seek(start); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
            var result CheckResult
            if err := json.Unmarshal(v, &result); err != nil {
                continue
            }
            results = append(results, result)
        }
        return nil
    })

    if filters.Limit > 0 && len(results) > filters.Limit {
        results = results[len(results)-filters.Limit:]
    }
    return results, err
}

func (s *BoltStore) AppendAlert(ctx context.Context, alert *Alert) error {
    if alert.ID == "" {
        alert.ID = uuid.New().String()
    }
    if alert.CreatedAt.IsZero() {
        alert.CreatedAt = time.Now()
    }

    return s.db.Update(func(tx *bbolt.Tx) error {
        data, err := json.Marshal(alert)
        if err != nil {
            return fmt.Errorf("failed to marshal alert: %w", err)
        }
        return tx.Bucket(AlertsBucket).Put(alertKey(alert.TargetID, alert.Type, alert.CreatedAt, alert.ID), data)
    })
}

func (s *BoltStore) RecentAlerts(ctx context.Context, targetID string, typ AlertType, since time.Time) ([]Alert, error) {
    var alerts []Alert

    err := s.db.View(func(tx *bbolt.Tx) error {
        c := tx.Bucket(AlertsBucket).Cursor()
        prefix := []byte(alertPrefix(targetID, typ))
        start := prefix
        if !since.IsZero() {
            start = []byte(fmt.Sprintf("%s%020d", prefix, since.UnixNano()))
        }

        for k, v := c.Seek(start); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
            var alert Alert
            if err := json.Unmarshal(v, &alert); err != nil {
                continue
            }
            if alert.CreatedAt.After(since) {
                alerts = append(alerts, alert)
            }
        }
        return nil
    })

    return alerts, err
}

// ListAlerts returns alerts newest first.
func (s *BoltStore) ListAlerts(ctx context.Context, filters AlertFilters) ([]Alert, error) {
    var alerts []Alert

    err := s.db.View(func(tx *bbolt.Tx) error {
        return tx.Bucket(AlertsBucket).ForEach(func(k, v []byte) error {
            var alert Alert
            if err := json.Unmarshal(v, &alert); err != nil {
                return nil // Skip malformed entries
            }

            if filters.TargetID != "" && alert.TargetID != filters.TargetID {
                return nil
            }
            if filters.Type != "" && alert.Type != filters.Type {
                return nil
            }
            if !filters.Since.IsZero() && !alert.CreatedAt.After(filters.Since) {
                return nil
            }

            alerts = append(alerts, alert)
            return nil
        })
    })
    if err != nil {
        return nil, err
    }

    sort.SliceStable(alerts, func(i, j int) bool {
        return alerts[i].CreatedAt.After(alerts[j].CreatedAt)
    })
    if filters.Limit > 0 && len(alerts) > filters.Limit {
        alerts = alerts[:filters.Limit]
    }
    return alerts, nil
}

func (s *BoltStore) Close() error {
    return s.db.Close()
}
