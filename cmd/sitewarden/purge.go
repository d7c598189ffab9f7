// cmd/sitewarden/purge.go
package main

import (
    "context"
    "fmt"

    "github.com/spf13/cobra"
    "sitewarden/internal/config"
    "sitewarden/internal/database"
    "sitewarden/internal/metrics"
    "sitewarden/internal/monitoring"
)

var purgeCmd = &cobra.Command{
    Use:   "purge",
    Short: "Delete check history and alerts older than database.history_retention",
    RunE: func(cmd *cobra.Command, args []string) error {
        cfg, err := loadConfig()
        if err != nil {
            return err
        }

        store, err := database.NewBoltStore(cfg.Database.Path)
        if err != nil {
            return fmt.Errorf("failed to initialize database: %w", err)
        }
        defer store.Close()

        engine, err := retentionEngine(cfg, store)
        if err != nil {
            return err
        }

        report, err := engine.PurgeHistory(context.Background())
        if err != nil {
            return err
        }
        fmt.Printf("Deleted %d check results and %d alerts older than %s\n",
            report.HistoryDeleted, report.AlertsDeleted, report.Cutoff.Format("2006-01-02 15:04:05"))
        return nil
    },
}

// retentionEngine builds an engine that never fetches; purge only needs the store.
func retentionEngine(cfg *config.Config, store *database.BoltStore) (*monitoring.Engine, error) {
    return monitoring.NewEngine(cfg, store, nil, nil, nil, metrics.NewCollector(store))
}
