// internal/config/config.go
package config

import (
    "fmt"
    "net/url"
    "os"
    "path/filepath"
    "sort"
    "strings"
    "time"

    "gopkg.in/yaml.v3"
)

type Config struct {
    Server        ServerConfig       `yaml:"server"`
    Database      DatabaseConfig     `yaml:"database"`
    Prometheus    PrometheusConfig   `yaml:"prometheus"`
    Monitoring    MonitoringConfig   `yaml:"monitoring"`
    Browser       BrowserConfig      `yaml:"browser"`
    Artifacts     ArtifactsConfig    `yaml:"artifacts"`
    Geo           GeoConfig          `yaml:"geo"`
    Logging       LoggingConfig      `yaml:"logging"`
    Notifications NotificationConfig `yaml:"notifications"`
    Targets       []TargetConfig     `yaml:"targets"`
    Include       IncludeConfig      `yaml:"include"`
}

type NotificationConfig struct {
    Enabled  bool           `yaml:"enabled"`
    Timeout  time.Duration  `yaml:"timeout"`    // per alert, across all channels
    Queue    int            `yaml:"queue_size"` // deliveries in flight before new ones are dropped
    Pushover PushoverConfig `yaml:"pushover"`
    Email    EmailConfig    `yaml:"email"`
    Throttle ThrottleConfig `yaml:"throttle"`
}

type PushoverConfig struct {
    Enabled  bool   `yaml:"enabled"`
    APIToken string `yaml:"api_token"`
    UserKey  string `yaml:"user_key"`
    Priority int    `yaml:"priority"` // -2 (silent) .. 2 (emergency)
    Retry    int    `yaml:"retry"`    // emergency priority only (seconds)
    Expire   int    `yaml:"expire"`   // emergency priority only (seconds)
    Sound    string `yaml:"sound"`
    Device   string `yaml:"device"`
    Title    string `yaml:"title"`    // text/template over the alert
    Template string `yaml:"template"` // text/template over the alert
    APIURL   string `yaml:"api_url"`
}

type EmailConfig struct {
    Enabled  bool     `yaml:"enabled"`
    Host     string   `yaml:"host"`
    Port     int      `yaml:"port"`
    Username string   `yaml:"username"`
    Password string   `yaml:"password"`
    From     string   `yaml:"from"`
    To       []string `yaml:"to"`
    Subject  string   `yaml:"subject"`
}

// ThrottleConfig caps outbound notifications. It never affects which alerts are stored.
type ThrottleConfig struct {
    Enabled      bool          `yaml:"enabled"`
    Window       time.Duration `yaml:"window"`
    MaxPerTarget int           `yaml:"max_per_target"`
    MaxTotal     int           `yaml:"max_total"`
}

type IncludeConfig struct {
    Directory string `yaml:"directory"`
    Pattern   string `yaml:"pattern"`
    Enabled   bool   `yaml:"enabled"`
}

type ServerConfig struct {
    Port         string        `yaml:"port"`
    ReadTimeout  time.Duration `yaml:"read_timeout"`
    WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
    Type             string        `yaml:"type"`
    Path             string        `yaml:"path"`
    CleanupInterval  time.Duration `yaml:"cleanup_interval"`
    HistoryRetention time.Duration `yaml:"history_retention"`
}

type PrometheusConfig struct {
    Enabled     bool   `yaml:"enabled"`
    MetricsPath string `yaml:"metrics_path"`
}

type MonitoringConfig struct {
    Interval        time.Duration `yaml:"interval"`
    Workers         int           `yaml:"workers"`
    FetchTimeout    time.Duration `yaml:"fetch_timeout"`
    PipelineTimeout time.Duration `yaml:"pipeline_timeout"`
    IdleWait        time.Duration `yaml:"idle_wait"`
    UserAgent       string        `yaml:"user_agent"`
    AlertCooldown   time.Duration `yaml:"alert_cooldown"`
    MalwareCatalog  string        `yaml:"malware_catalog"`
    RunOnStart      bool          `yaml:"run_on_start"`

    // TechFingerprints add to the built-in ones; an entry reusing a built-in
    // name replaces its markers.
    TechFingerprints []TechFingerprintConfig `yaml:"tech_fingerprints"`
    // SecurityHeaders are checked in addition to the recommended set.
    SecurityHeaders []string `yaml:"security_headers"`
}

type TechFingerprintConfig struct {
    Name    string   `yaml:"name"`
    Markers []string `yaml:"markers"`
}

type BrowserConfig struct {
    Engine         string `yaml:"engine"` // chrome or http
    ExecPath       string `yaml:"exec_path"`
    Headless       *bool  `yaml:"headless"`
    ViewportWidth  int    `yaml:"viewport_width"`
    ViewportHeight int    `yaml:"viewport_height"`
    NoSandbox      bool   `yaml:"no_sandbox"`
}

type ArtifactsConfig struct {
    Dir       string `yaml:"dir"`
    URLPrefix string `yaml:"url_prefix"`
}

type GeoConfig struct {
    Enabled       bool          `yaml:"enabled"`
    Endpoint      string        `yaml:"endpoint"` // %s is replaced by the IP
    RatePerMinute int           `yaml:"rate_per_minute"`
    Timeout       time.Duration `yaml:"timeout"`
}

type LoggingConfig struct {
    Level  string `yaml:"level"`
    Format string `yaml:"format"`
}

type TargetConfig struct {
    ID      string `yaml:"id"`
    Name    string `yaml:"name"`
    URL     string `yaml:"url"`
    Enabled *bool  `yaml:"enabled"`
}

// IsEnabled treats a missing flag as enabled.
func (t TargetConfig) IsEnabled() bool {
    return t.Enabled == nil || *t.Enabled
}

// PartialConfig represents a partial configuration that can be merged
type PartialConfig struct {
    Server        *ServerConfig       `yaml:"server,omitempty"`
    Database      *DatabaseConfig     `yaml:"database,omitempty"`
    Prometheus    *PrometheusConfig   `yaml:"prometheus,omitempty"`
    Monitoring    *MonitoringConfig   `yaml:"monitoring,omitempty"`
    Logging       *LoggingConfig      `yaml:"logging,omitempty"`
    Notifications *NotificationConfig `yaml:"notifications,omitempty"`
    Targets       []TargetConfig      `yaml:"targets,omitempty"`
}

func Load(filename string) (*Config, error) {
    config, err := loadConfigFile(filename)
    if err != nil {
        return nil, fmt.Errorf("failed to load main config file: %w", err)
    }

    if config.Include.Enabled && config.Include.Directory != "" {
        if err := loadIncludes(config, filepath.Dir(filename)); err != nil {
            return nil, fmt.Errorf("failed to load includes: %w", err)
        }
    }

    SetDefaults(config)

    if err := Validate(config); err != nil {
        return nil, fmt.Errorf("invalid configuration: %w", err)
    }

    return config, nil
}

func loadConfigFile(filename string) (*Config, error) {
    data, err := os.ReadFile(filename)
    if err != nil {
        return nil, fmt.Errorf("failed to read config file: %w", err)
    }

    var config Config
    if err := yaml.Unmarshal(data, &config); err != nil {
        return nil, fmt.Errorf("failed to parse YAML: %w", err)
    }

    return &config, nil
}

func loadIncludes(config *Config, baseDir string) error {
    includeDir := config.Include.Directory
    if !filepath.IsAbs(includeDir) {
        includeDir = filepath.Join(baseDir, includeDir)
    }

    if _, err := os.Stat(includeDir); os.IsNotExist(err) {
        return fmt.Errorf("include directory does not exist: %s", includeDir)
    }

    pattern := config.Include.Pattern
    if pattern == "" {
        pattern = "*.yaml"
    }

    matches, err := filepath.Glob(filepath.Join(includeDir, pattern))
    if err != nil {
        return fmt.Errorf("failed to glob include pattern: %w", err)
    }

    if pattern == "*.yaml" {
        ymlMatches, err := filepath.Glob(filepath.Join(includeDir, "*.yml"))
        if err != nil {
            return fmt.Errorf("failed to glob .yml files: %w", err)
        }
        matches = append(matches, ymlMatches...)
    }

    sort.Slice(matches, func(i, j int) bool {
        return filepath.Base(matches[i]) < filepath.Base(matches[j])
    })

    for _, match := range matches {
        if err := loadAndMergeInclude(config, match); err != nil {
            return fmt.Errorf("failed to load include file %s: %w", match, err)
        }
    }

    return nil
}

func loadAndMergeInclude(config *Config, filename string) error {
    data, err := os.ReadFile(filename)
    if err != nil {
        return fmt.Errorf("failed to read include file: %w", err)
    }

    var partial PartialConfig
    if err := yaml.Unmarshal(data, &partial); err != nil {
        return fmt.Errorf("failed to parse include file YAML: %w", err)
    }

    mergePartialConfig(config, &partial)
    return nil
}

func mergePartialConfig(config *Config, partial *PartialConfig) {
    // Targets append. A repeated ID replaces the earlier definition.
    for _, target := range partial.Targets {
        replaced := false
        for i := range config.Targets {
            if config.Targets[i].ID == target.ID {
                config.Targets[i] = target
                replaced = true
                break
            }
        }
        if !replaced {
            config.Targets = append(config.Targets, target)
        }
    }

    if partial.Server != nil {
        mergeServerConfig(&config.Server, partial.Server)
    }
    if partial.Database != nil {
        mergeDatabaseConfig(&config.Database, partial.Database)
    }
    if partial.Prometheus != nil {
        config.Prometheus.Enabled = partial.Prometheus.Enabled
        if partial.Prometheus.MetricsPath != "" {
            config.Prometheus.MetricsPath = partial.Prometheus.MetricsPath
        }
    }
    if partial.Monitoring != nil {
        mergeMonitoringConfig(&config.Monitoring, partial.Monitoring)
    }
    if partial.Logging != nil {
        if partial.Logging.Level != "" {
            config.Logging.Level = partial.Logging.Level
        }
        if partial.Logging.Format != "" {
            config.Logging.Format = partial.Logging.Format
        }
    }
    if partial.Notifications != nil {
        config.Notifications = *partial.Notifications
    }
}

func mergeServerConfig(main *ServerConfig, partial *ServerConfig) {
    if partial.Port != "" {
        main.Port = partial.Port
    }
    if partial.ReadTimeout != 0 {
        main.ReadTimeout = partial.ReadTimeout
    }
    if partial.WriteTimeout != 0 {
        main.WriteTimeout = partial.WriteTimeout
    }
}

func mergeDatabaseConfig(main *DatabaseConfig, partial *DatabaseConfig) {
    if partial.Type != "" {
        main.Type = partial.Type
    }
    if partial.Path != "" {
        main.Path = partial.Path
    }
    if partial.CleanupInterval != 0 {
        main.CleanupInterval = partial.CleanupInterval
    }
    if partial.HistoryRetention != 0 {
        main.HistoryRetention = partial.HistoryRetention
    }
}

func mergeMonitoringConfig(main *MonitoringConfig, partial *MonitoringConfig) {
    if partial.Interval != 0 {
        main.Interval = partial.Interval
    }
    if partial.Workers != 0 {
        main.Workers = partial.Workers
    }
    if partial.FetchTimeout != 0 {
        main.FetchTimeout = partial.FetchTimeout
    }
    if partial.PipelineTimeout != 0 {
        main.PipelineTimeout = partial.PipelineTimeout
    }
    if partial.IdleWait != 0 {
        main.IdleWait = partial.IdleWait
    }
    if partial.UserAgent != "" {
        main.UserAgent = partial.UserAgent
    }
    if partial.AlertCooldown != 0 {
        main.AlertCooldown = partial.AlertCooldown
    }
    if partial.MalwareCatalog != "" {
        main.MalwareCatalog = partial.MalwareCatalog
    }
    main.RunOnStart = partial.RunOnStart
    if len(partial.TechFingerprints) > 0 {
        main.TechFingerprints = append(main.TechFingerprints, partial.TechFingerprints...)
    }
    if len(partial.SecurityHeaders) > 0 {
        main.SecurityHeaders = append(main.SecurityHeaders, partial.SecurityHeaders...)
    }
}

// SetDefaults fills every zero value with its default. Exported so tests and the
// one-shot CLI can build a config without a file.
func SetDefaults(cfg *Config) {
    if cfg.Server.Port == "" {
        cfg.Server.Port = ":8000"
    }
    if cfg.Server.ReadTimeout == 0 {
        cfg.Server.ReadTimeout = 15 * time.Second
    }
    if cfg.Server.WriteTimeout == 0 {
        // sweeps triggered over HTTP run synchronously
        cfg.Server.WriteTimeout = 10 * time.Minute
    }

    if cfg.Database.Type == "" {
        cfg.Database.Type = "boltdb"
    }
    if cfg.Database.Path == "" {
        cfg.Database.Path = "./data/sitewarden.db"
    }
    if cfg.Database.HistoryRetention == 0 {
        cfg.Database.HistoryRetention = 30 * 24 * time.Hour
    }
    if cfg.Database.CleanupInterval == 0 {
        cfg.Database.CleanupInterval = 6 * time.Hour
    }

    if cfg.Include.Pattern == "" {
        cfg.Include.Pattern = "*.yaml"
    }

    if cfg.Monitoring.Interval == 0 {
        cfg.Monitoring.Interval = 30 * time.Minute
    }
    if cfg.Monitoring.Workers == 0 {
        cfg.Monitoring.Workers = 5
    }
    if cfg.Monitoring.FetchTimeout == 0 {
        cfg.Monitoring.FetchTimeout = 15 * time.Second
    }
    if cfg.Monitoring.PipelineTimeout == 0 {
        cfg.Monitoring.PipelineTimeout = 3 * cfg.Monitoring.FetchTimeout
    }
    if cfg.Monitoring.IdleWait == 0 {
        cfg.Monitoring.IdleWait = 500 * time.Millisecond
    }
    if cfg.Monitoring.UserAgent == "" {
        cfg.Monitoring.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
    }
    if cfg.Monitoring.AlertCooldown == 0 {
        cfg.Monitoring.AlertCooldown = time.Hour
    }

    if cfg.Browser.Engine == "" {
        cfg.Browser.Engine = "chrome"
    }
    if cfg.Browser.Headless == nil {
        headless := true
        cfg.Browser.Headless = &headless
    }
    if cfg.Browser.ViewportWidth == 0 {
        cfg.Browser.ViewportWidth = 1366
    }
    if cfg.Browser.ViewportHeight == 0 {
        cfg.Browser.ViewportHeight = 768
    }

    if cfg.Artifacts.Dir == "" {
        cfg.Artifacts.Dir = "./data/screenshots"
    }
    if cfg.Artifacts.URLPrefix == "" {
        cfg.Artifacts.URLPrefix = "/screenshots"
    }

    if cfg.Geo.Endpoint == "" {
        cfg.Geo.Endpoint = "https://ipapi.co/%s/json/"
    }
    if cfg.Geo.RatePerMinute == 0 {
        cfg.Geo.RatePerMinute = 30
    }
    if cfg.Geo.Timeout == 0 {
        cfg.Geo.Timeout = 5 * time.Second
    }

    if cfg.Prometheus.MetricsPath == "" {
        cfg.Prometheus.MetricsPath = "/metrics"
    }

    if cfg.Logging.Level == "" {
        cfg.Logging.Level = "info"
    }
    if cfg.Logging.Format == "" {
        cfg.Logging.Format = "text"
    }

    if cfg.Notifications.Timeout == 0 {
        cfg.Notifications.Timeout = 30 * time.Second
    }
    if cfg.Notifications.Queue == 0 {
        cfg.Notifications.Queue = 32
    }

    p := &cfg.Notifications.Pushover
    if p.Title == "" {
        p.Title = "Sitewarden: {{.TargetName}}"
    }
    if p.Template == "" {
        p.Template = "{{.URL}} - {{.Message}}"
    }
    if p.Sound == "" {
        p.Sound = "pushover"
    }
    if p.APIURL == "" {
        p.APIURL = "https://api.pushover.net/1/messages.json"
    }

    e := &cfg.Notifications.Email
    if e.Port == 0 {
        e.Port = 587
    }
    if e.Subject == "" {
        e.Subject = "[sitewarden] {{.Type}}: {{.TargetName}}"
    }

    t := &cfg.Notifications.Throttle
    if t.Window == 0 {
        t.Window = 15 * time.Minute
    }
    if t.MaxPerTarget == 0 {
        t.MaxPerTarget = 5
    }
    if t.MaxTotal == 0 {
        t.MaxTotal = 20
    }
}

func Validate(cfg *Config) error {
    if cfg.Monitoring.Workers < 1 {
        return fmt.Errorf("monitoring.workers must be at least 1")
    }
    if cfg.Database.Type != "boltdb" {
        return fmt.Errorf("only boltdb is supported currently")
    }
    if cfg.Monitoring.Interval <= 0 {
        return fmt.Errorf("monitoring.interval must be positive")
    }
    if cfg.Monitoring.FetchTimeout <= 0 {
        return fmt.Errorf("monitoring.fetch_timeout must be positive")
    }
    if cfg.Monitoring.PipelineTimeout < cfg.Monitoring.FetchTimeout {
        return fmt.Errorf("monitoring.pipeline_timeout must not be shorter than monitoring.fetch_timeout")
    }
    if cfg.Monitoring.AlertCooldown < 0 {
        return fmt.Errorf("monitoring.alert_cooldown cannot be negative")
    }
    for i, fp := range cfg.Monitoring.TechFingerprints {
        if strings.TrimSpace(fp.Name) == "" || len(fp.Markers) == 0 {
            return fmt.Errorf("monitoring.tech_fingerprints[%d] needs a name and at least one marker", i)
        }
    }
    if cfg.Notifications.Timeout < 0 || cfg.Notifications.Queue < 0 {
        return fmt.Errorf("notifications.timeout and notifications.queue_size cannot be negative")
    }
    if cfg.Browser.Engine != "chrome" && cfg.Browser.Engine != "http" {
        return fmt.Errorf("browser.engine must be chrome or http, got %q", cfg.Browser.Engine)
    }

    if cfg.Notifications.Enabled && cfg.Notifications.Pushover.Enabled {
        p := cfg.Notifications.Pushover
        if p.APIToken == "" {
            return fmt.Errorf("notifications.pushover.api_token is required when Pushover is enabled")
        }
        if p.UserKey == "" {
            return fmt.Errorf("notifications.pushover.user_key is required when Pushover is enabled")
        }
        if p.Priority < -2 || p.Priority > 2 {
            return fmt.Errorf("notifications.pushover.priority must be between -2 and 2")
        }
        if p.Priority == 2 {
            if p.Retry < 30 {
                return fmt.Errorf("notifications.pushover.retry must be at least 30 seconds for emergency priority")
            }
            if p.Expire < 60 || p.Expire > 10800 {
                return fmt.Errorf("notifications.pushover.expire must be between 60 and 10800 seconds for emergency priority")
            }
        }
    }
    if cfg.Notifications.Enabled && cfg.Notifications.Email.Enabled {
        e := cfg.Notifications.Email
        if e.Host == "" || e.From == "" || len(e.To) == 0 {
            return fmt.Errorf("notifications.email requires host, from and at least one recipient")
        }
    }

    if cfg.Include.Enabled {
        if cfg.Include.Directory == "" {
            return fmt.Errorf("include.directory must be specified when include.enabled is true")
        }
        if !isValidGlobPattern(cfg.Include.Pattern) {
            return fmt.Errorf("include.pattern contains invalid glob pattern: %s", cfg.Include.Pattern)
        }
    }

    targetIDs := make(map[string]bool)
    for _, target := range cfg.Targets {
        if target.ID == "" {
            return fmt.Errorf("target %q has no id", target.URL)
        }
        // ':' separates key segments in the store
        if strings.Contains(target.ID, ":") {
            return fmt.Errorf("target ID %q must not contain ':'", target.ID)
        }
        if targetIDs[target.ID] {
            return fmt.Errorf("duplicate target ID: %s", target.ID)
        }
        targetIDs[target.ID] = true

        if !isValidURL(target.URL) {
            return fmt.Errorf("target '%s' has invalid url %q (http:// or https:// required)", target.ID, target.URL)
        }
    }

    return nil
}

// isValidURL accepts absolute http(s) URLs with a host.
func isValidURL(str string) bool {
    u, err := url.Parse(str)
    if err != nil || u.Host == "" {
        return false
    }
    return u.Scheme == "http" || u.Scheme == "https"
}

func isValidGlobPattern(pattern string) bool {
    if strings.Contains(pattern, "/") || strings.Contains(pattern, "\\") {
        return false
    }
    _, err := filepath.Match(pattern, "test.yaml")
    return err == nil
}
