// internal/notifications/service.go - fan-out of alerts to notification channels
package notifications

import (
    "bytes"
    "context"
    "errors"
    "fmt"
    "text/template"
    "time"

    "github.com/sirupsen/logrus"
    "sitewarden/internal/config"
    "sitewarden/internal/database"
)

const UserAgent = "Sitewarden/1.0"

// Channel delivers one rendered alert.
type Channel interface {
    Name() string
    Send(ctx context.Context, alert *database.Alert) error
}

// AlertView is the data templates are executed against.
type AlertView struct {
    TargetID   string
    TargetName string
    URL        string
    Type       string
    Message    string
    Emoji      string
    Timestamp  string
}

func newAlertView(alert *database.Alert) AlertView {
    name := alert.TargetName
    if name == "" {
        name = alert.TargetID
    }
    return AlertView{
        TargetID:   alert.TargetID,
        TargetName: name,
        URL:        alert.URL,
        Type:       string(alert.Type),
        Message:    alert.Message,
        Emoji:      alertEmoji(alert.Type),
        Timestamp:  alert.CreatedAt.Format("2006-01-02 15:04:05"),
    }
}

// Service sends alerts through every enabled channel.
type Service struct {
    config    *config.NotificationConfig
    channels  []Channel
    throttler *Throttler
}

func NewService(cfg *config.NotificationConfig) (*Service, error) {
    service := &Service{config: cfg}

    if cfg.Enabled && cfg.Pushover.Enabled {
        pushover, err := NewPushoverChannel(&cfg.Pushover, nil)
        if err != nil {
            return nil, fmt.Errorf("failed to initialize Pushover: %w", err)
        }
        service.channels = append(service.channels, pushover)
    }
    if cfg.Enabled && cfg.Email.Enabled {
        email, err := NewEmailChannel(&cfg.Email, nil)
        if err != nil {
            return nil, fmt.Errorf("failed to initialize e-mail: %w", err)
        }
        service.channels = append(service.channels, email)
    }
    if cfg.Throttle.Enabled {
        service.throttler = NewThrottler(&cfg.Throttle)
    }

    logrus.WithFields(logrus.Fields{
        "notifications_enabled": cfg.Enabled,
        "pushover_enabled":      cfg.Pushover.Enabled,
        "email_enabled":         cfg.Email.Enabled,
        "throttle_enabled":      cfg.Throttle.Enabled,
    }).Info("Notification service initialized")

    return service, nil
}

// NewServiceWithChannels builds a service over explicit channels.
func NewServiceWithChannels(cfg *config.NotificationConfig, channels ...Channel) *Service {
    service := &Service{config: cfg, channels: channels}
    if cfg.Throttle.Enabled {
        service.throttler = NewThrottler(&cfg.Throttle)
    }
    return service
}

func (s *Service) Enabled() bool {
    return s != nil && s.config.Enabled && len(s.channels) > 0
}

// Notify delivers alert to all channels. A channel failure does not stop the
// others; the joined error is returned for the caller to log.
func (s *Service) Notify(ctx context.Context, alert *database.Alert) error {
    if !s.Enabled() {
        return nil
    }

    // the slot is taken before sending, so a failed delivery still counts
    if s.throttler != nil && !s.throttler.Allow(alert.TargetID) {
        logrus.WithFields(logrus.Fields{
            "target": alert.TargetID,
            "type":   alert.Type,
        }).Debug("Notification throttled")
        return nil
    }

    var errs []error
    for _, ch := range s.channels {
        if err := ch.Send(ctx, alert); err != nil {
            errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
        }
    }
    return errors.Join(errs...)
}

// TestNotification sends a synthetic info alert through every channel.
func (s *Service) TestNotification(ctx context.Context, message string) error {
    if !s.Enabled() {
        return fmt.Errorf("notifications are not enabled or configured")
    }

    alert := &database.Alert{
        TargetID:   "test",
        TargetName: "Sitewarden test notification",
        Type:       database.AlertInfo,
        Message:    message,
        CreatedAt:  time.Now(),
    }

    var errs []error
    for _, ch := range s.channels {
        if err := ch.Send(ctx, alert); err != nil {
            errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
        }
    }
    return errors.Join(errs...)
}

// Stats returns notification statistics
func (s *Service) Stats() map[string]interface{} {
    names := make([]string, 0, len(s.channels))
    for _, ch := range s.channels {
        names = append(names, ch.Name())
    }

    stats := map[string]interface{}{
        "enabled":          s.config.Enabled,
        "channels":         names,
        "throttle_enabled": s.throttler != nil,
    }
    if s.throttler != nil {
        for k, v := range s.throttler.Stats() {
            stats[k] = v
        }
    }
    return stats
}

func parseTemplate(name, text string) (*template.Template, error) {
    tmpl, err := template.New(name).Option("missingkey=zero").Parse(text)
    if err != nil {
        return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
    }
    return tmpl, nil
}

func render(tmpl *template.Template, view AlertView) (string, error) {
    var buf bytes.Buffer
    if err := tmpl.Execute(&buf, view); err != nil {
        return "", fmt.Errorf("failed to execute template %s: %w", tmpl.Name(), err)
    }
    return buf.String(), nil
}

func alertEmoji(typ database.AlertType) string {
    switch typ {
    case database.AlertError:
        return "🚨"
    case database.AlertChanged:
        return "⚠️"
    default:
        return "ℹ️"
    }
}

func priorityFor(base int, typ database.AlertType) int {
    // informational notices never page at emergency level
    if typ == database.AlertInfo && base > 0 {
        return 0
    }
    return base
}
