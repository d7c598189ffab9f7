// cmd/sitewarden/sweep.go
package main

import (
    "context"
    "encoding/json"
    "fmt"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/spf13/cobra"
    "sitewarden/internal/database"
)

type sweepOutput struct {
    StartedAt  time.Time               `json:"started_at"`
    FinishedAt time.Time               `json:"finished_at"`
    Targets    int                     `json:"targets"`
    Counts     map[database.Status]int `json:"counts"`
    Cancelled  bool                    `json:"cancelled"`
    Results    []*database.CheckResult `json:"results"`
    Alerts     []*database.Alert       `json:"alerts"`
    Errors     []string                `json:"errors,omitempty"`
}

var sweepCmd = &cobra.Command{
    Use:   "sweep",
    Short: "Check every enabled target once and print the report as JSON",
    RunE: func(cmd *cobra.Command, args []string) error {
        cfg, err := loadConfig()
        if err != nil {
            return err
        }

        ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
        defer stop()

        rt, err := newApp(ctx, cfg)
        if err != nil {
            return err
        }
        defer rt.Close()

        report, err := rt.engine.RunSweep(ctx)
        if err != nil {
            return err
        }

        out := sweepOutput{
            StartedAt:  report.StartedAt,
            FinishedAt: report.FinishedAt,
            Targets:    report.Targets,
            Counts:     report.Counts(),
            Cancelled:  report.Cancelled,
            Results:    report.Results,
            Alerts:     report.Alerts,
        }
        for _, perr := range report.PersistenceErrors {
            out.Errors = append(out.Errors, perr.Error())
        }

        enc := json.NewEncoder(os.Stdout)
        enc.SetIndent("", "  ")
        if err := enc.Encode(out); err != nil {
            return fmt.Errorf("failed to write report: %w", err)
        }

        if err := report.Err(); err != nil {
            return fmt.Errorf("sweep finished with %d storage errors", len(report.PersistenceErrors))
        }
        return nil
    },
}
