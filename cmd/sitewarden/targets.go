// cmd/sitewarden/targets.go
package main

import (
    "context"
    "fmt"
    "os"
    "text/tabwriter"
    "time"

    "github.com/spf13/cobra"
    "sitewarden/internal/database"
    "sitewarden/internal/registry"
)

var targetsCmd = &cobra.Command{
    Use:   "targets",
    Short: "Sync configured targets into the registry and list them",
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

        ctx := context.Background()
        if _, err := registry.Sync(ctx, store, cfg.Targets, true); err != nil {
            return fmt.Errorf("failed to sync targets: %w", err)
        }

        targets, err := store.ListTargets(ctx, database.TargetFilters{})
        if err != nil {
            return err
        }

        w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
        fmt.Fprintln(w, "ID\tNAME\tURL\tENABLED\tSTATUS\tLAST CHECK")
        for _, t := range targets {
            lastCheck := "never"
            if !t.LastCheckedAt.IsZero() {
                lastCheck = t.LastCheckedAt.Format(time.RFC3339)
            }
            fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\t%s\n", t.ID, t.Name, t.URL, t.Enabled, t.LastStatus, lastCheck)
        }
        return w.Flush()
    },
}
