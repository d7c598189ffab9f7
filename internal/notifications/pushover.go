// internal/notifications/pushover.go - Pushover notification channel
package notifications

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "net/http"
    "text/template"
    "time"

    "github.com/sirupsen/logrus"
    "sitewarden/internal/config"
    "sitewarden/internal/database"
)

const PushoverAPIURL = "https://api.pushover.net/1/messages.json"

type PushoverChannel struct {
    config     *config.PushoverConfig
    httpClient *http.Client
    title      *template.Template
    body       *template.Template
}

// PushoverMessage represents a message sent to Pushover API
type PushoverMessage struct {
    Token     string `json:"token"`
    User      string `json:"user"`
    Message   string `json:"message"`
    Title     string `json:"title,omitempty"`
    URL       string `json:"url,omitempty"`
    Priority  int    `json:"priority,omitempty"`
    Retry     int    `json:"retry,omitempty"`
    Expire    int    `json:"expire,omitempty"`
    Sound     string `json:"sound,omitempty"`
    Device    string `json:"device,omitempty"`
    Timestamp int64  `json:"timestamp,omitempty"`
}

// PushoverResponse represents the API response
type PushoverResponse struct {
    Status int      `json:"status"`
    Errors []string `json:"errors,omitempty"`
}

func NewPushoverChannel(cfg *config.PushoverConfig, httpClient *http.Client) (*PushoverChannel, error) {
    if httpClient == nil {
        httpClient = &http.Client{Timeout: 30 * time.Second}
    }

    title, err := parseTemplate("pushover_title", cfg.Title)
    if err != nil {
        return nil, err
    }
    body, err := parseTemplate("pushover_message", cfg.Template)
    if err != nil {
        return nil, err
    }

    return &PushoverChannel{
        config:     cfg,
        httpClient: httpClient,
        title:      title,
        body:       body,
    }, nil
}

func (p *PushoverChannel) Name() string { return "pushover" }

func (p *PushoverChannel) Send(ctx context.Context, alert *database.Alert) error {
    message, err := p.buildMessage(alert)
    if err != nil {
        return fmt.Errorf("failed to build message: %w", err)
    }
    return p.post(ctx, message)
}

func (p *PushoverChannel) buildMessage(alert *database.Alert) (*PushoverMessage, error) {
    view := newAlertView(alert)

    title, err := render(p.title, view)
    if err != nil {
        return nil, err
    }
    text, err := render(p.body, view)
    if err != nil {
        return nil, err
    }

    message := &PushoverMessage{
        Token:     p.config.APIToken,
        User:      p.config.UserKey,
        Title:     title,
        Message:   view.Emoji + " " + text,
        URL:       alert.URL,
        Priority:  priorityFor(p.config.Priority, alert.Type),
        Sound:     p.config.Sound,
        Device:    p.config.Device,
        Timestamp: alert.CreatedAt.Unix(),
    }

    if message.Priority == 2 {
        message.Retry = p.config.Retry
        message.Expire = p.config.Expire
    }
    return message, nil
}

func (p *PushoverChannel) post(ctx context.Context, message *PushoverMessage) error {
    jsonData, err := json.Marshal(message)
    if err != nil {
        return fmt.Errorf("failed to marshal message: %w", err)
    }

    endpoint := p.config.APIURL
    if endpoint == "" {
        endpoint = PushoverAPIURL
    }

    req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonData))
    if err != nil {
        return fmt.Errorf("failed to create request: %w", err)
    }
    req.Header.Set("Content-Type", "application/json")
    req.Header.Set("User-Agent", UserAgent)

    resp, err := p.httpClient.Do(req)
    if err != nil {
        return fmt.Errorf("failed to send request: %w", err)
    }
    defer resp.Body.Close()

    var pushoverResp PushoverResponse
    if err := json.NewDecoder(resp.Body).Decode(&pushoverResp); err != nil {
        return fmt.Errorf("failed to decode response (status %d): %w", resp.StatusCode, err)
    }
    if pushoverResp.Status != 1 {
        return fmt.Errorf("pushover API error: %v", pushoverResp.Errors)
    }

    logrus.WithFields(logrus.Fields{
        "title":    message.Title,
        "priority": message.Priority,
    }).Info("Pushover notification sent")

    return nil
}
