// internal/registry/sync.go - keeps stored targets in line with the config file
package registry

import (
    "context"
    "errors"
    "fmt"

    "github.com/sirupsen/logrus"
    "sitewarden/internal/config"
    "sitewarden/internal/database"
)

// SyncResult counts what Sync changed.
type SyncResult struct {
    Created int `json:"created"`
    Updated int `json:"updated"`
    Purged  int `json:"purged"`
    Failed  int `json:"failed"`
}

// Sync creates or updates a stored target for every configured one. Only the
// registry fields are touched; hash and status belong to the engine. With
// purge set, stored targets missing from the config are deleted.
func Sync(ctx context.Context, store database.TargetRegistry, targets []config.TargetConfig, purge bool) (*SyncResult, error) {
    result := &SyncResult{}
    configured := make(map[string]bool, len(targets))

    for _, targetCfg := range targets {
        configured[targetCfg.ID] = true

        existing, err := store.GetTarget(ctx, targetCfg.ID)
        if errors.Is(err, database.ErrTargetNotFound) {
            target := &database.Target{
                ID:      targetCfg.ID,
                Name:    targetCfg.Name,
                URL:     targetCfg.URL,
                Enabled: targetCfg.IsEnabled(),
            }
            if err := store.CreateTarget(ctx, target); err != nil {
                logrus.WithError(err).WithField("target", targetCfg.ID).Error("Failed to create target")
                result.Failed++
                continue
            }
            logrus.WithFields(logrus.Fields{
                "target": target.ID,
                "url":    target.URL,
            }).Info("Created target")
            result.Created++
            continue
        }
        if err != nil {
            return result, fmt.Errorf("failed to load target %s: %w", targetCfg.ID, err)
        }

        if existing.Name == targetCfg.Name && existing.URL == targetCfg.URL && existing.Enabled == targetCfg.IsEnabled() {
            continue
        }

        // a new URL is a different page, so the old fingerprint no longer applies
        if existing.URL != targetCfg.URL {
            existing.LastHash = ""
            existing.LastStatus = database.StatusUnknown
        }
        existing.Name = targetCfg.Name
        existing.URL = targetCfg.URL
        existing.Enabled = targetCfg.IsEnabled()

        if err := store.UpdateTarget(ctx, existing); err != nil {
            logrus.WithError(err).WithField("target", targetCfg.ID).Error("Failed to update target")
            result.Failed++
            continue
        }
        result.Updated++
    }

    if purge {
        if err := purgeOrphaned(ctx, store, configured, result); err != nil {
            return result, err
        }
    }

    logrus.WithFields(logrus.Fields{
        "created": result.Created,
        "updated": result.Updated,
        "purged":  result.Purged,
        "failed":  result.Failed,
    }).Info("Target registry synced")

    return result, nil
}

func purgeOrphaned(ctx context.Context, store database.TargetRegistry, configured map[string]bool, result *SyncResult) error {
    stored, err := store.ListTargets(ctx, database.TargetFilters{})
    if err != nil {
        return fmt.Errorf("failed to list stored targets: %w", err)
    }

    for _, target := range stored {
        if configured[target.ID] {
            continue
        }

        logrus.WithFields(logrus.Fields{
            "target": target.ID,
            "name":   target.Name,
        }).Info("Purging orphaned target")

        if err := store.DeleteTarget(ctx, target.ID); err != nil {
            logrus.WithError(err).WithField("target", target.ID).Error("Failed to delete orphaned target")
            result.Failed++
            continue
        }
        result.Purged++
    }
    return nil
}
