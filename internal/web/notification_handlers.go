// internal/web/notification_handlers.go - visibility into alert delivery
package web

import (
    "context"
    "net/http"
    "strings"
    "time"

    "github.com/gin-gonic/gin"
    "github.com/sirupsen/logrus"
)

// NotificationSettingsResponse is the configured delivery setup with secrets masked.
type NotificationSettingsResponse struct {
    Enabled  bool                     `json:"enabled"`
    Pushover PushoverSettingsResponse `json:"pushover"`
    Email    EmailSettingsResponse    `json:"email"`
    Throttle ThrottleSettingsResponse `json:"throttle"`
}

type PushoverSettingsResponse struct {
    Enabled  bool   `json:"enabled"`
    APIToken string `json:"api_token"`
    UserKey  string `json:"user_key"`
    Priority int    `json:"priority"`
    Sound    string `json:"sound,omitempty"`
    Device   string `json:"device,omitempty"`
}

type EmailSettingsResponse struct {
    Enabled bool     `json:"enabled"`
    Host    string   `json:"host,omitempty"`
    Port    int      `json:"port,omitempty"`
    From    string   `json:"from,omitempty"`
    To      []string `json:"to,omitempty"`
}

type ThrottleSettingsResponse struct {
    Enabled       bool `json:"enabled"`
    WindowMinutes int  `json:"window_minutes"`
    MaxPerTarget  int  `json:"max_per_target"`
    MaxTotal      int  `json:"max_total"`
}

// TestNotificationRequest represents a test notification request
type TestNotificationRequest struct {
    Message string `json:"message"`
}

func (s *Server) setupNotificationRoutes(api *gin.RouterGroup) {
    notifications := api.Group("/notifications")
    {
        notifications.GET("/settings", s.getNotificationSettings)
        notifications.GET("/stats", s.getNotificationStats)
        notifications.POST("/test", s.sendTestNotification)
    }
}

// GET /api/notifications/settings
func (s *Server) getNotificationSettings(c *gin.Context) {
    cfg := s.config.Notifications

    c.JSON(http.StatusOK, gin.H{"data": NotificationSettingsResponse{
        Enabled: cfg.Enabled,
        Pushover: PushoverSettingsResponse{
            Enabled:  cfg.Pushover.Enabled,
            APIToken: maskToken(cfg.Pushover.APIToken),
            UserKey:  maskToken(cfg.Pushover.UserKey),
            Priority: cfg.Pushover.Priority,
            Sound:    cfg.Pushover.Sound,
            Device:   cfg.Pushover.Device,
        },
        Email: EmailSettingsResponse{
            Enabled: cfg.Email.Enabled,
            Host:    cfg.Email.Host,
            Port:    cfg.Email.Port,
            From:    cfg.Email.From,
            To:      cfg.Email.To,
        },
        Throttle: ThrottleSettingsResponse{
            Enabled:       cfg.Throttle.Enabled,
            WindowMinutes: int(cfg.Throttle.Window.Minutes()),
            MaxPerTarget:  cfg.Throttle.MaxPerTarget,
            MaxTotal:      cfg.Throttle.MaxTotal,
        },
    }})
}

// POST /api/notifications/test - Send a test notification
func (s *Server) sendTestNotification(c *gin.Context) {
    var req TestNotificationRequest
    if c.Request.ContentLength > 0 {
        if err := c.ShouldBindJSON(&req); err != nil {
            c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
            return
        }
    }
    if strings.TrimSpace(req.Message) == "" {
        req.Message = "Test notification from sitewarden"
    }

    if !s.notifier.Enabled() {
        c.JSON(http.StatusBadRequest, gin.H{"error": "Notifications are not enabled"})
        return
    }

    ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
    defer cancel()

    if err := s.notifier.TestNotification(ctx, req.Message); err != nil {
        logrus.WithError(err).Error("Failed to send test notification")
        c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to send test notification: " + err.Error()})
        return
    }

    logrus.Info("Test notification sent successfully")
    c.JSON(http.StatusOK, gin.H{
        "message":   "Test notification sent successfully",
        "timestamp": time.Now(),
    })
}

// GET /api/notifications/stats
func (s *Server) getNotificationStats(c *gin.Context) {
    if s.notifier == nil {
        c.JSON(http.StatusOK, gin.H{"data": gin.H{"enabled": false}})
        return
    }
    c.JSON(http.StatusOK, gin.H{"data": s.notifier.Stats()})
}

func maskToken(token string) string {
    if len(token) <= 8 {
        return strings.Repeat("*", len(token))
    }
    return token[:4] + strings.Repeat("*", len(token)-8) + token[len(token)-4:]
}
