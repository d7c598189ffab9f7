// internal/web/handlers.go - read-only target, history, alert and sweep endpoints
package web

import (
    "errors"
    "net/http"
    "strconv"
    "time"

    "github.com/gin-gonic/gin"
    "github.com/sirupsen/logrus"
    "sitewarden/internal/database"
    "sitewarden/internal/monitoring"
)

const (
    defaultHistoryLimit = 100
    defaultAlertLimit   = 100
    maxListLimit        = 1000
)

// SweepResponse is what the trigger endpoints return.
type SweepResponse struct {
    StartedAt         time.Time               `json:"started_at"`
    FinishedAt        time.Time               `json:"finished_at"`
    DurationMs        int64                   `json:"duration_ms"`
    Targets           int                     `json:"targets"`
    Counts            map[database.Status]int `json:"counts"`
    Cancelled         bool                    `json:"cancelled"`
    Results           []*database.CheckResult `json:"results,omitempty"`
    Alerts            []*database.Alert       `json:"alerts"`
    PersistenceErrors []string                `json:"persistence_errors,omitempty"`
}

func summarizeReport(report *monitoring.SweepReport) *SweepResponse {
    resp := &SweepResponse{
        StartedAt:  report.StartedAt,
        FinishedAt: report.FinishedAt,
        DurationMs: report.FinishedAt.Sub(report.StartedAt).Milliseconds(),
        Targets:    report.Targets,
        Counts:     report.Counts(),
        Cancelled:  report.Cancelled,
        Alerts:     report.Alerts,
    }
    if resp.Alerts == nil {
        resp.Alerts = []*database.Alert{}
    }
    for _, err := range report.PersistenceErrors {
        resp.PersistenceErrors = append(resp.PersistenceErrors, err.Error())
    }
    return resp
}

func (s *Server) getTargets(c *gin.Context) {
    filters := database.TargetFilters{}
    if raw := c.Query("enabled"); raw != "" {
        enabled, err := strconv.ParseBool(raw)
        if err != nil {
            c.JSON(http.StatusBadRequest, gin.H{"error": "enabled must be a boolean"})
            return
        }
        filters.Enabled = &enabled
    }

    targets, err := s.store.ListTargets(c.Request.Context(), filters)
    if err != nil {
        logrus.WithError(err).Error("Failed to get targets")
        c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get targets"})
        return
    }

    c.JSON(http.StatusOK, gin.H{
        "data":  targets,
        "count": len(targets),
    })
}

func (s *Server) getTarget(c *gin.Context) {
    id := c.Param("id")

    target, err := s.store.GetTarget(c.Request.Context(), id)
    if err != nil {
        if errors.Is(err, database.ErrTargetNotFound) {
            c.JSON(http.StatusNotFound, gin.H{"error": "Target not found"})
            return
        }
        logrus.WithError(err).WithField("target", id).Error("Failed to get target")
        c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get target"})
        return
    }

    c.JSON(http.StatusOK, gin.H{"data": target})
}

// GET /api/targets/:id/history?since=RFC3339&limit=N
func (s *Server) getTargetHistory(c *gin.Context) {
    id := c.Param("id")
    ctx := c.Request.Context()

    if _, err := s.store.GetTarget(ctx, id); err != nil {
        if errors.Is(err, database.ErrTargetNotFound) {
            c.JSON(http.StatusNotFound, gin.H{"error": "Target not found"})
            return
        }
        c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get target"})
        return
    }

    since, err := parseSince(c)
    if err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    limit, err := parseLimit(c, defaultHistoryLimit)
    if err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }

    history, err := s.store.GetCheckHistory(ctx, id, database.HistoryFilters{Since: since, Limit: limit})
    if err != nil {
        logrus.WithError(err).WithField("target", id).Error("Failed to get check history")
        c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get check history"})
        return
    }

    c.JSON(http.StatusOK, gin.H{
        "data":  history,
        "count": len(history),
    })
}

// GET /api/alerts?target=ID&type=erro&since=RFC3339&limit=N, newest first
func (s *Server) getAlerts(c *gin.Context) {
    filters := database.AlertFilters{
        TargetID: c.Query("target"),
        Type:     database.AlertType(c.Query("type")),
    }

    switch filters.Type {
    case "", database.AlertError, database.AlertChanged, database.AlertInfo:
    default:
        c.JSON(http.StatusBadRequest, gin.H{"error": "type must be one of erro, alterado, info"})
        return
    }

    var err error
    if filters.Since, err = parseSince(c); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    if filters.Limit, err = parseLimit(c, defaultAlertLimit); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }

    alerts, err := s.store.ListAlerts(c.Request.Context(), filters)
    if err != nil {
        logrus.WithError(err).Error("Failed to get alerts")
        c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get alerts"})
        return
    }

    c.JSON(http.StatusOK, gin.H{
        "data":  alerts,
        "count": len(alerts),
    })
}

// POST /api/sweep and GET /api/monitor. The sweep runs on the server context,
// so a client hanging up does not abort it. With async=true the handler
// answers 202 immediately.
func (s *Server) triggerSweep(c *gin.Context) {
    if async, _ := strconv.ParseBool(c.Query("async")); async {
        if err := s.engine.StartSweep(s.baseCtx); err != nil {
            s.sweepRejected(c, err)
            return
        }
        c.JSON(http.StatusAccepted, gin.H{
            "message":   "Sweep started",
            "timestamp": time.Now(),
        })
        return
    }

    report, err := s.engine.RunSweep(s.baseCtx)
    if err != nil {
        s.sweepRejected(c, err)
        return
    }

    resp := summarizeReport(report)
    resp.Results = report.Results
    c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) sweepRejected(c *gin.Context, err error) {
    if errors.Is(err, monitoring.ErrSweepInProgress) {
        c.JSON(http.StatusConflict, gin.H{"error": "A sweep is already in progress"})
        return
    }
    logrus.WithError(err).Error("Sweep failed")
    c.JSON(http.StatusInternalServerError, gin.H{"error": "Sweep failed: " + err.Error()})
}

func (s *Server) getLastSweep(c *gin.Context) {
    report := s.engine.LastReport()
    if report == nil {
        c.JSON(http.StatusNotFound, gin.H{"error": "No sweep has completed yet"})
        return
    }
    c.JSON(http.StatusOK, gin.H{"data": summarizeReport(report)})
}

func parseSince(c *gin.Context) (time.Time, error) {
    raw := c.Query("since")
    if raw == "" {
        return time.Time{}, nil
    }
    since, err := time.Parse(time.RFC3339, raw)
    if err != nil {
        return time.Time{}, errors.New("since must be an RFC3339 timestamp")
    }
    return since, nil
}

func parseLimit(c *gin.Context, def int) (int, error) {
    raw := c.Query("limit")
    if raw == "" {
        return def, nil
    }
    limit, err := strconv.Atoi(raw)
    if err != nil || limit < 1 {
        return 0, errors.New("limit must be a positive integer")
    }
    if limit > maxListLimit {
        limit = maxListLimit
    }
    return limit, nil
}
