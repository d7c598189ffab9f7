// internal/web/server.go
package web

import (
    "context"
    "net/http"
    "time"

    "github.com/gin-gonic/gin"
    "github.com/prometheus/client_golang/prometheus/promhttp"
    "github.com/sirupsen/logrus"
    "sitewarden/internal/config"
    "sitewarden/internal/database"
    "sitewarden/internal/metrics"
    "sitewarden/internal/monitoring"
    "sitewarden/internal/notifications"
)

type Server struct {
    config   *config.Config
    store    database.Store
    engine   *monitoring.Engine
    notifier *notifications.Service
    metrics  *metrics.Collector
    router   *gin.Engine
    hub      *hub
    server   *http.Server

    // sweeps triggered over HTTP outlive the request that started them
    baseCtx context.Context
}

func NewServer(cfg *config.Config, store database.Store, engine *monitoring.Engine, notifier *notifications.Service, metricsCollector *metrics.Collector) *Server {
    if cfg.Logging.Level != "debug" {
        gin.SetMode(gin.ReleaseMode)
    }

    router := gin.New()
    router.Use(gin.Logger())
    router.Use(gin.Recovery())
    router.Use(corsMiddleware())

    server := &Server{
        config:   cfg,
        store:    store,
        engine:   engine,
        notifier: notifier,
        metrics:  metricsCollector,
        router:   router,
        hub:      newHub(metricsCollector),
        baseCtx:  context.Background(),
    }

    engine.OnResult(server.publishResult)
    server.setupRoutes()
    return server
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
    return s.router
}

func (s *Server) Start(ctx context.Context) error {
    s.baseCtx = ctx
    s.server = &http.Server{
        Addr:         s.config.Server.Port,
        Handler:      s.router,
        ReadTimeout:  s.config.Server.ReadTimeout,
        WriteTimeout: s.config.Server.WriteTimeout,
    }

    logrus.WithField("port", s.config.Server.Port).Info("Starting web server")

    go s.updateMetricsRoutine(ctx)

    go func() {
        if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
            logrus.WithError(err).Fatal("Failed to start server")
        }
    }()

    return nil
}

func (s *Server) Stop(ctx context.Context) error {
    s.hub.closeAll()
    if s.server != nil {
        return s.server.Shutdown(ctx)
    }
    return nil
}

func (s *Server) setupRoutes() {
    api := s.router.Group("/api")
    {
        api.GET("/health", s.healthCheck)
        api.GET("/build-info", s.getBuildInfo)
        api.GET("/stats", s.getStats)

        api.GET("/targets", s.getTargets)
        api.GET("/targets/:id", s.getTarget)
        api.GET("/targets/:id/history", s.getTargetHistory)

        api.GET("/alerts", s.getAlerts)

        api.POST("/sweep", s.triggerSweep)
        api.GET("/monitor", s.triggerSweep)
        api.GET("/sweep/last", s.getLastSweep)
    }

    s.setupMaintenanceRoutes(api)
    s.setupNotificationRoutes(api)

    s.router.GET("/ws", s.handleWebSocket)

    if s.config.Artifacts.Dir != "" && s.config.Artifacts.URLPrefix != "" {
        s.router.Static(s.config.Artifacts.URLPrefix, s.config.Artifacts.Dir)
    }

    if s.config.Prometheus.Enabled {
        s.router.GET(s.config.Prometheus.MetricsPath, gin.WrapH(promhttp.Handler()))
    }
}

func (s *Server) healthCheck(c *gin.Context) {
    c.JSON(http.StatusOK, gin.H{
        "status":    "healthy",
        "timestamp": time.Now(),
        "version":   Version,
        "sweeping":  s.engine.Sweeping(),
    })
}

func (s *Server) getStats(c *gin.Context) {
    ctx := c.Request.Context()

    targets, err := s.store.ListTargets(ctx, database.TargetFilters{})
    if err != nil {
        logrus.WithError(err).Error("Failed to list targets")
        c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list targets"})
        return
    }

    byStatus := map[database.Status]int{
        database.StatusOK:      0,
        database.StatusChanged: 0,
        database.StatusError:   0,
        database.StatusUnknown: 0,
    }
    enabled := 0
    for _, target := range targets {
        byStatus[target.LastStatus]++
        if target.Enabled {
            enabled++
        }
    }

    data := gin.H{
        "targets":         len(targets),
        "enabled_targets": enabled,
        "by_status":       byStatus,
        "sweeping":        s.engine.Sweeping(),
        "ws_clients":      s.hub.count(),
    }

    if report := s.engine.LastReport(); report != nil {
        data["last_sweep"] = summarizeReport(report)
    }

    if ext, ok := s.store.(database.ExtendedStore); ok {
        dbStats, err := ext.GetDatabaseStats(ctx)
        if err != nil {
            logrus.WithError(err).Warn("Failed to get database stats")
        } else {
            data["database"] = dbStats
        }
    }

    c.JSON(http.StatusOK, gin.H{"data": data})
}

func (s *Server) updateMetricsRoutine(ctx context.Context) {
    ticker := time.NewTicker(30 * time.Second)
    defer ticker.Stop()

    for {
        select {
        case <-ctx.Done():
            return
        case <-ticker.C:
            if err := s.metrics.UpdateSystemMetrics(ctx); err != nil {
                logrus.WithError(err).Debug("Failed to update system metrics")
            }
        }
    }
}

func corsMiddleware() gin.HandlerFunc {
    return func(c *gin.Context) {
        c.Header("Access-Control-Allow-Origin", "*")
        c.Header("Access-Control-Allow-Credentials", "true")
        c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
        c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET, DELETE")

        if c.Request.Method == "OPTIONS" {
            c.AbortWithStatus(204)
            return
        }

        c.Next()
    }
}
