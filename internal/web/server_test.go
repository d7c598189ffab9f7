package web

import (
    "context"
    "encoding/json"
    "errors"
    "net/http"
    "net/http/httptest"
    "path/filepath"
    "strings"
    "sync"
    "testing"
    "time"

    "github.com/gin-gonic/gin"
    "github.com/gorilla/websocket"
    "sitewarden/internal/config"
    "sitewarden/internal/database"
    "sitewarden/internal/fetcher"
    "sitewarden/internal/metrics"
    "sitewarden/internal/monitoring"
    "sitewarden/internal/netinfo"
    "sitewarden/internal/notifications"
)

const testPage = `<html><head><title>Home</title></head><body><p>hello</p></body></html>`

type staticEnricher struct{}

func (staticEnricher) Enrich(ctx context.Context, rawURL string) netinfo.Info {
    return netinfo.Info{Host: "example.com", IP: "93.184.216.34", GeoLocation: "Somewhere"}
}

type recordingChannel struct {
    mu     sync.Mutex
    alerts []*database.Alert
    err    error
}

func (r *recordingChannel) Name() string { return "recording" }

func (r *recordingChannel) Send(ctx context.Context, alert *database.Alert) error {
    r.mu.Lock()
    defer r.mu.Unlock()
    r.alerts = append(r.alerts, alert)
    return r.err
}

type testEnv struct {
    server  *Server
    engine  *monitoring.Engine
    store   *database.BoltStore
    channel *recordingChannel
}

func okFetcher() fetcher.Fetcher {
    return fetcher.Func(func(ctx context.Context, url string) *fetcher.Result {
        return &fetcher.Result{
            OK:         true,
            FinalURL:   url,
            HTML:       testPage,
            StatusCode: 200,
            Headers:    map[string]string{"content-type": "text/html"},
            Duration:   10 * time.Millisecond,
        }
    })
}

func newTestEnv(t *testing.T, f fetcher.Fetcher) *testEnv {
    t.Helper()
    gin.SetMode(gin.TestMode)

    cfg := &config.Config{}
    config.SetDefaults(cfg)
    cfg.Logging.Level = "debug"
    cfg.Artifacts.Dir = t.TempDir()
    cfg.Notifications.Enabled = true

    store, err := database.NewBoltStore(filepath.Join(t.TempDir(), "web.db"))
    if err != nil {
        t.Fatalf("NewBoltStore: %v", err)
    }
    t.Cleanup(func() { store.Close() })

    ctx := context.Background()
    for _, target := range []*database.Target{
        {ID: "home", Name: "Home", URL: "https://example.com", Enabled: true},
        {ID: "old", Name: "Old", URL: "https://old.example.com", Enabled: false},
    } {
        if err := store.CreateTarget(ctx, target); err != nil {
            t.Fatalf("CreateTarget: %v", err)
        }
    }

    channel := &recordingChannel{}
    notifier := notifications.NewServiceWithChannels(&cfg.Notifications, channel)
    collector := metrics.NewCollector(store)

    engine, err := monitoring.NewEngine(cfg, store, f, staticEnricher{}, notifier, collector)
    if err != nil {
        t.Fatalf("NewEngine: %v", err)
    }

    return &testEnv{
        server:  NewServer(cfg, store, engine, notifier, collector),
        engine:  engine,
        store:   store,
        channel: channel,
    }
}

func (env *testEnv) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
    t.Helper()
    var req *http.Request
    if body != "" {
        req = httptest.NewRequest(method, path, strings.NewReader(body))
        req.Header.Set("Content-Type", "application/json")
    } else {
        req = httptest.NewRequest(method, path, nil)
    }
    rec := httptest.NewRecorder()
    env.server.Handler().ServeHTTP(rec, req)

    var decoded map[string]interface{}
    if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
        if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
            t.Fatalf("invalid JSON from %s %s: %v", method, path, err)
        }
    }
    return rec, decoded
}

func TestHealth(t *testing.T) {
    env := newTestEnv(t, okFetcher())

    rec, body := env.do(t, http.MethodGet, "/api/health", "")
    if rec.Code != http.StatusOK {
        t.Fatalf("expected 200, got %d", rec.Code)
    }
    if body["status"] != "healthy" || body["sweeping"] != false {
        t.Errorf("unexpected health body %v", body)
    }
}

func TestTargetsEndpoints(t *testing.T) {
    env := newTestEnv(t, okFetcher())

    tests := []struct {
        name      string
        path      string
        wantCode  int
        wantCount float64
    }{
        {"all targets", "/api/targets", http.StatusOK, 2},
        {"enabled only", "/api/targets?enabled=true", http.StatusOK, 1},
        {"bad filter", "/api/targets?enabled=maybe", http.StatusBadRequest, 0},
        {"history of unknown target", "/api/targets/missing/history", http.StatusNotFound, 0},
        {"empty history", "/api/targets/home/history", http.StatusOK, 0},
        {"bad limit", "/api/targets/home/history?limit=0", http.StatusBadRequest, 0},
        {"bad since", "/api/targets/home/history?since=yesterday", http.StatusBadRequest, 0},
    }

    for _, tt := range tests {
        t.Run(tt.name, func(t *testing.T) {
            rec, body := env.do(t, http.MethodGet, tt.path, "")
            if rec.Code != tt.wantCode {
                t.Fatalf("expected %d, got %d (%s)", tt.wantCode, rec.Code, rec.Body.String())
            }
            if tt.wantCode == http.StatusOK && body["count"] != tt.wantCount {
                t.Errorf("expected count %v, got %v", tt.wantCount, body["count"])
            }
        })
    }

    rec, _ := env.do(t, http.MethodGet, "/api/targets/missing", "")
    if rec.Code != http.StatusNotFound {
        t.Errorf("expected 404 for unknown target, got %d", rec.Code)
    }

    rec, body := env.do(t, http.MethodGet, "/api/targets/home", "")
    if rec.Code != http.StatusOK {
        t.Fatalf("expected 200, got %d", rec.Code)
    }
    data := body["data"].(map[string]interface{})
    if data["last_status"] != string(database.StatusUnknown) {
        t.Errorf("expected unknown status before any sweep, got %v", data["last_status"])
    }
}

func TestSweepEndpointRunsAndRecords(t *testing.T) {
    env := newTestEnv(t, okFetcher())

    rec, body := env.do(t, http.MethodPost, "/api/sweep", "")
    if rec.Code != http.StatusOK {
        t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
    }
    data := body["data"].(map[string]interface{})
    if data["targets"] != float64(1) {
        t.Errorf("expected 1 enabled target swept, got %v", data["targets"])
    }
    results := data["results"].([]interface{})
    if len(results) != 1 || results[0].(map[string]interface{})["status"] != string(database.StatusOK) {
        t.Errorf("expected one ok result, got %v", results)
    }

    rec, body = env.do(t, http.MethodGet, "/api/targets/home/history", "")
    if rec.Code != http.StatusOK || body["count"] != float64(1) {
        t.Errorf("expected one stored check, got %d %v", rec.Code, body)
    }

    rec, body = env.do(t, http.MethodGet, "/api/sweep/last", "")
    if rec.Code != http.StatusOK {
        t.Errorf("expected last sweep to be available, got %d", rec.Code)
    }

    rec, body = env.do(t, http.MethodGet, "/api/stats", "")
    if rec.Code != http.StatusOK {
        t.Fatalf("expected 200, got %d", rec.Code)
    }
    stats := body["data"].(map[string]interface{})
    if stats["targets"] != float64(2) || stats["enabled_targets"] != float64(1) {
        t.Errorf("unexpected stats %v", stats)
    }
    if _, ok := stats["database"]; !ok {
        t.Error("expected database stats from a bolt store")
    }
    if _, ok := stats["last_sweep"]; !ok {
        t.Error("expected last sweep summary in stats")
    }
}

func TestMonitorRejectsConcurrentSweep(t *testing.T) {
    release := make(chan struct{})
    blocking := fetcher.Func(func(ctx context.Context, url string) *fetcher.Result {
        select {
        case <-release:
        case <-ctx.Done():
        }
        return fetcher.Failed(ctx, errors.New("released"), time.Now())
    })
    env := newTestEnv(t, blocking)

    if err := env.engine.StartSweep(context.Background()); err != nil {
        t.Fatalf("StartSweep: %v", err)
    }

    rec, _ := env.do(t, http.MethodGet, "/api/monitor", "")
    if rec.Code != http.StatusConflict {
        t.Errorf("expected 409 while a sweep runs, got %d", rec.Code)
    }
    rec, _ = env.do(t, http.MethodPost, "/api/sweep?async=true", "")
    if rec.Code != http.StatusConflict {
        t.Errorf("expected 409 for async trigger too, got %d", rec.Code)
    }

    close(release)
    env.engine.Wait()
    if env.engine.Sweeping() {
        t.Fatal("sweep did not finish")
    }
}

func TestAlertsEndpoint(t *testing.T) {
    env := newTestEnv(t, okFetcher())
    ctx := context.Background()
    now := time.Now()

    env.store.AppendAlert(ctx, &database.Alert{TargetID: "home", Type: database.AlertError, Message: "down", CreatedAt: now.Add(-time.Hour)})
    env.store.AppendAlert(ctx, &database.Alert{TargetID: "home", Type: database.AlertChanged, Message: "changed", CreatedAt: now})

    rec, body := env.do(t, http.MethodGet, "/api/alerts", "")
    if rec.Code != http.StatusOK || body["count"] != float64(2) {
        t.Fatalf("expected 2 alerts, got %d %v", rec.Code, body)
    }
    first := body["data"].([]interface{})[0].(map[string]interface{})
    if first["type"] != string(database.AlertChanged) {
        t.Errorf("expected newest alert first, got %v", first)
    }

    _, body = env.do(t, http.MethodGet, "/api/alerts?type=erro", "")
    if body["count"] != float64(1) {
        t.Errorf("expected 1 erro alert, got %v", body["count"])
    }

    rec, _ = env.do(t, http.MethodGet, "/api/alerts?type=warning", "")
    if rec.Code != http.StatusBadRequest {
        t.Errorf("expected 400 for unknown alert type, got %d", rec.Code)
    }
}

func TestNotificationEndpoints(t *testing.T) {
    env := newTestEnv(t, okFetcher())

    rec, _ := env.do(t, http.MethodPost, "/api/notifications/test", `{"message":"ping"}`)
    if rec.Code != http.StatusOK {
        t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
    }
    if len(env.channel.alerts) != 1 || env.channel.alerts[0].Message != "ping" {
        t.Errorf("expected the test message to reach the channel, got %+v", env.channel.alerts)
    }

    env.channel.err = errors.New("smtp down")
    rec, _ = env.do(t, http.MethodPost, "/api/notifications/test", "")
    if rec.Code != http.StatusBadGateway {
        t.Errorf("expected 502 when delivery fails, got %d", rec.Code)
    }

    rec, body := env.do(t, http.MethodGet, "/api/notifications/stats", "")
    if rec.Code != http.StatusOK || body["data"].(map[string]interface{})["enabled"] != true {
        t.Errorf("unexpected stats %d %v", rec.Code, body)
    }
}

func TestMaskToken(t *testing.T) {
    tests := map[string]string{
        "":                 "",
        "short":            "*****",
        "abcd1234efgh5678": "abcd********5678",
    }
    for in, want := range tests {
        if got := maskToken(in); got != want {
            t.Errorf("maskToken(%q) = %q, want %q", in, got, want)
        }
    }
}

func TestMaintenancePurge(t *testing.T) {
    env := newTestEnv(t, okFetcher())
    env.server.config.Database.HistoryRetention = time.Hour

    ctx := context.Background()
    env.store.AppendCheckResult(ctx, &database.CheckResult{TargetID: "home", Timestamp: time.Now().Add(-2 * time.Hour), Status: database.StatusOK})
    env.store.AppendCheckResult(ctx, &database.CheckResult{TargetID: "home", Timestamp: time.Now(), Status: database.StatusOK})

    rec, body := env.do(t, http.MethodPost, "/api/maintenance/purge", "")
    if rec.Code != http.StatusOK {
        t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
    }
    data := body["data"].(map[string]interface{})
    if data["history_deleted"] != float64(1) {
        t.Errorf("expected one expired check deleted, got %v", data["history_deleted"])
    }
}

func TestWebSocketFeed(t *testing.T) {
    env := newTestEnv(t, okFetcher())
    ts := httptest.NewServer(env.server.Handler())
    defer ts.Close()

    conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
    if err != nil {
        t.Fatalf("dial: %v", err)
    }
    defer conn.Close()
    conn.SetReadDeadline(time.Now().Add(5 * time.Second))

    var msg WSMessage
    if err := conn.ReadJSON(&msg); err != nil {
        t.Fatalf("read snapshot: %v", err)
    }
    if msg.Type != MessageTargets {
        t.Fatalf("expected targets snapshot first, got %q", msg.Type)
    }

    if _, err := env.engine.RunSweep(context.Background()); err != nil {
        t.Fatalf("RunSweep: %v", err)
    }

    if err := conn.ReadJSON(&msg); err != nil {
        t.Fatalf("read result: %v", err)
    }
    if msg.Type != MessageCheckResult {
        t.Errorf("expected a check result, got %q", msg.Type)
    }
    result := msg.Data.(map[string]interface{})
    if result["target_id"] != "home" {
        t.Errorf("unexpected result %v", result)
    }
}
