// cmd/sitewarden/serve.go
package main

import (
    "context"
    "os/signal"
    "syscall"
    "time"

    "github.com/sirupsen/logrus"
    "github.com/spf13/cobra"
    "sitewarden/internal/monitoring"
    "sitewarden/internal/web"
)

var serveCmd = &cobra.Command{
    Use:   "serve",
    Short: "Run the scheduler and the HTTP API until interrupted",
    RunE: func(cmd *cobra.Command, args []string) error {
        cfg, err := loadConfig()
        if err != nil {
            return err
        }

        logrus.WithFields(logrus.Fields{
            "config_file": cfgFile,
            "port":        cfg.Server.Port,
            "workers":     cfg.Monitoring.Workers,
            "interval":    cfg.Monitoring.Interval,
            "engine":      cfg.Browser.Engine,
        }).Info("Starting sitewarden")

        ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
        defer stop()

        rt, err := newApp(ctx, cfg)
        if err != nil {
            return err
        }
        defer rt.Close()

        webServer := web.NewServer(cfg, rt.store, rt.engine, rt.notifier, rt.metrics)
        if err := webServer.Start(ctx); err != nil {
            return err
        }

        scheduler := monitoring.NewScheduler(rt.engine)
        if err := scheduler.Start(ctx); err != nil {
            return err
        }

        <-ctx.Done()
        logrus.Info("Received shutdown signal")

        scheduler.Stop()

        shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
        defer cancel()
        if err := webServer.Stop(shutdownCtx); err != nil {
            logrus.WithError(err).Warn("Web server did not shut down cleanly")
        }

        waitForSweep(rt.engine, 30*time.Second)
        logrus.Info("Shutdown complete")
        return nil
    },
}

// waitForSweep blocks until the engine's in-flight sweep and notifications
// finish, so the store outlives them. limit caps the wait.
func waitForSweep(engine *monitoring.Engine, limit time.Duration) bool {
    done := make(chan struct{})
    go func() {
        engine.Wait()
        close(done)
    }()

    select {
    case <-done:
        return true
    case <-time.After(limit):
        logrus.WithField("limit", limit).Warn("Sweep still running at shutdown")
        return false
    }
}
