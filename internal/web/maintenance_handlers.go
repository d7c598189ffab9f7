// internal/web/maintenance_handlers.go
package web

import (
    "context"
    "errors"
    "net/http"
    "time"

    "github.com/gin-gonic/gin"
    "github.com/sirupsen/logrus"
    "sitewarden/internal/monitoring"
)

func (s *Server) setupMaintenanceRoutes(api *gin.RouterGroup) {
    maintenance := api.Group("/maintenance")
    {
        maintenance.POST("/purge", s.purgeHistory)
    }
}

// POST /api/maintenance/purge - delete history and alerts past retention
func (s *Server) purgeHistory(c *gin.Context) {
    ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
    defer cancel()

    report, err := s.engine.PurgeHistory(ctx)
    if err != nil {
        if errors.Is(err, monitoring.ErrRetentionUnsupported) {
            c.JSON(http.StatusNotImplemented, gin.H{"error": err.Error()})
            return
        }
        logrus.WithError(err).Error("Failed to purge history")
        c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to purge history"})
        return
    }

    c.JSON(http.StatusOK, gin.H{
        "message":   "History purged",
        "data":      report,
        "timestamp": time.Now(),
    })
}
