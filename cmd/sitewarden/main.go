// cmd/sitewarden/main.go
package main

import (
    "fmt"
    "os"

    "github.com/sirupsen/logrus"
    "github.com/spf13/cobra"
    "sitewarden/internal/config"
)

var (
    cfgFile  string
    logLevel string
)

var rootCmd = &cobra.Command{
    Use:           "sitewarden",
    Short:         "Site integrity monitoring: change detection, security headers and malware heuristics",
    SilenceUsage:  true,
    SilenceErrors: true,
}

func main() {
    if err := rootCmd.Execute(); err != nil {
        fmt.Fprintln(os.Stderr, err)
        os.Exit(1)
    }
}

func init() {
    rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "Configuration file path")
    rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override logging.level from the config file")

    rootCmd.AddCommand(serveCmd)
    rootCmd.AddCommand(sweepCmd)
    rootCmd.AddCommand(targetsCmd)
    rootCmd.AddCommand(purgeCmd)
    rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the config file and applies logging settings before
// anything else logs.
func loadConfig() (*config.Config, error) {
    cfg, err := config.Load(cfgFile)
    if err != nil {
        return nil, fmt.Errorf("failed to load config: %w", err)
    }
    if logLevel != "" {
        cfg.Logging.Level = logLevel
    }
    setupLogging(cfg.Logging)
    return cfg, nil
}

func setupLogging(cfg config.LoggingConfig) {
    level, err := logrus.ParseLevel(cfg.Level)
    if err != nil {
        level = logrus.InfoLevel
    }
    logrus.SetLevel(level)

    if cfg.Format == "json" {
        logrus.SetFormatter(&logrus.JSONFormatter{})
    } else {
        logrus.SetFormatter(&logrus.TextFormatter{
            FullTimestamp: true,
        })
    }
}
