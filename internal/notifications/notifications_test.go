package notifications

import (
    "context"
    "encoding/json"
    "errors"
    "net/http"
    "net/http/httptest"
    "strings"
    "sync"
    "testing"
    "time"

    "gopkg.in/gomail.v2"
    "sitewarden/internal/config"
    "sitewarden/internal/database"
)

func testAlert() *database.Alert {
    return &database.Alert{
        TargetID:   "shop",
        TargetName: "Shop",
        URL:        "https://shop.example",
        Type:       database.AlertChanged,
        Message:    "content changed since last check",
        CreatedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
    }
}

func TestPushoverChannel_Send(t *testing.T) {
    var got PushoverMessage
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if r.Header.Get("Content-Type") != "application/json" {
            t.Errorf("unexpected content type %q", r.Header.Get("Content-Type"))
        }
        json.NewDecoder(r.Body).Decode(&got)
        w.Write([]byte(`{"status":1}`))
    }))
    defer srv.Close()

    ch, err := NewPushoverChannel(&config.PushoverConfig{
        APIToken: "token",
        UserKey:  "user",
        Title:    "Sitewarden: {{.TargetName}}",
        Template: "{{.URL}} - {{.Message}}",
        APIURL:   srv.URL,
        Priority: 1,
    }, srv.Client())
    if err != nil {
        t.Fatalf("NewPushoverChannel: %v", err)
    }

    if err := ch.Send(context.Background(), testAlert()); err != nil {
        t.Fatalf("Send: %v", err)
    }
    if got.Title != "Sitewarden: Shop" {
        t.Errorf("unexpected title %q", got.Title)
    }
    if !strings.HasSuffix(got.Message, "https://shop.example - content changed since last check") {
        t.Errorf("unexpected message %q", got.Message)
    }
    if got.Token != "token" || got.User != "user" || got.Priority != 1 {
        t.Errorf("unexpected credentials or priority: %+v", got)
    }
}

func TestPushoverChannel_APIError(t *testing.T) {
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        w.WriteHeader(http.StatusBadRequest)
        w.Write([]byte(`{"status":0,"errors":["user key is invalid"]}`))
    }))
    defer srv.Close()

    ch, _ := NewPushoverChannel(&config.PushoverConfig{APIURL: srv.URL, Title: "t", Template: "m"}, srv.Client())
    err := ch.Send(context.Background(), testAlert())
    if err == nil || !strings.Contains(err.Error(), "user key is invalid") {
        t.Fatalf("expected API error, got %v", err)
    }
}

type recordingSender struct {
    messages []*gomail.Message
    err      error
}

func (r *recordingSender) DialAndSend(m ...*gomail.Message) error {
    r.messages = append(r.messages, m...)
    return r.err
}

func TestEmailChannel_Send(t *testing.T) {
    sender := &recordingSender{}
    ch, err := NewEmailChannel(&config.EmailConfig{
        From:    "monitor@example.com",
        To:      []string{"ops@example.com"},
        Subject: "[sitewarden] {{.Type}}: {{.TargetName}}",
    }, sender)
    if err != nil {
        t.Fatalf("NewEmailChannel: %v", err)
    }

    alert := testAlert()
    alert.TargetName = "<script>x</script>"
    if err := ch.Send(context.Background(), alert); err != nil {
        t.Fatalf("Send: %v", err)
    }
    if len(sender.messages) != 1 {
        t.Fatalf("expected one message, got %d", len(sender.messages))
    }

    m := sender.messages[0]
    if subj := m.GetHeader("Subject"); len(subj) != 1 || subj[0] != "[sitewarden] alterado: <script>x</script>" {
        t.Errorf("unexpected subject %v", subj)
    }

    var raw strings.Builder
    m.WriteTo(&raw)
    _, body, found := strings.Cut(raw.String(), "\r\n\r\n")
    if !found {
        t.Fatal("message has no header/body separator")
    }
    if strings.Contains(body, "<script>x</script>") {
        t.Error("e-mail body must escape page-controlled fields")
    }
    if !strings.Contains(body, "&lt;script&gt;x&lt;/script&gt;") {
        t.Errorf("expected the escaped target name in the body, got %q", body)
    }
}

type stalledSender struct {
    release chan struct{}
}

func (s *stalledSender) DialAndSend(m ...*gomail.Message) error {
    <-s.release
    return nil
}

func TestEmailChannel_SendHonoursContext(t *testing.T) {
    sender := &stalledSender{release: make(chan struct{})}
    defer close(sender.release)

    ch, err := NewEmailChannel(&config.EmailConfig{From: "a@example.com", To: []string{"b@example.com"}, Subject: "s"}, sender)
    if err != nil {
        t.Fatalf("NewEmailChannel: %v", err)
    }

    ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
    defer cancel()

    started := time.Now()
    err = ch.Send(ctx, testAlert())
    if !errors.Is(err, context.DeadlineExceeded) {
        t.Fatalf("expected deadline exceeded from a stalled SMTP server, got %v", err)
    }
    if elapsed := time.Since(started); elapsed > time.Second {
        t.Errorf("Send returned after %s, expected it to stop at the deadline", elapsed)
    }
}

type fakeChannel struct {
    name string
    err  error
    mu   sync.Mutex
    sent []*database.Alert
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) Send(ctx context.Context, alert *database.Alert) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    f.sent = append(f.sent, alert)
    return f.err
}

func TestService_ChannelFailureDoesNotStopOthers(t *testing.T) {
    broken := &fakeChannel{name: "broken", err: errors.New("smtp down")}
    healthy := &fakeChannel{name: "healthy"}
    svc := NewServiceWithChannels(&config.NotificationConfig{Enabled: true}, broken, healthy)

    err := svc.Notify(context.Background(), testAlert())
    if err == nil || !strings.Contains(err.Error(), "broken") {
        t.Errorf("expected the broken channel error, got %v", err)
    }
    if len(healthy.sent) != 1 {
        t.Errorf("healthy channel should still deliver, got %d", len(healthy.sent))
    }
}

func TestService_Disabled(t *testing.T) {
    ch := &fakeChannel{name: "c"}
    svc := NewServiceWithChannels(&config.NotificationConfig{Enabled: false}, ch)
    if err := svc.Notify(context.Background(), testAlert()); err != nil {
        t.Fatalf("Notify: %v", err)
    }
    if len(ch.sent) != 0 {
        t.Error("disabled service must not send")
    }
}

func TestThrottler(t *testing.T) {
    cfg := &config.ThrottleConfig{Enabled: true, Window: time.Minute, MaxPerTarget: 2, MaxTotal: 3}
    th := NewThrottler(cfg)
    now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
    th.now = func() time.Time { return now }

    if !th.Allow("a") || !th.Allow("a") {
        t.Fatal("first two notifications for a should pass")
    }
    if th.Allow("a") {
        t.Error("a should hit its per-target limit")
    }
    if th.IsThrottled("b") {
        t.Error("b should not be throttled yet")
    }

    if !th.Allow("b") {
        t.Fatal("b should pass")
    }
    if th.Allow("c") {
        t.Error("total limit should throttle every target")
    }

    now = now.Add(2 * time.Minute)
    if th.IsThrottled("a") {
        t.Error("window expiry should lift the throttle")
    }
}

func TestThrottler_AllowIsAtomic(t *testing.T) {
    cfg := &config.ThrottleConfig{Enabled: true, Window: time.Hour, MaxPerTarget: 5, MaxTotal: 100}
    th := NewThrottler(cfg)

    var wg sync.WaitGroup
    var mu sync.Mutex
    allowed := 0
    for i := 0; i < 50; i++ {
        wg.Add(1)
        go func() {
            defer wg.Done()
            if th.Allow("a") {
                mu.Lock()
                allowed++
                mu.Unlock()
            }
        }()
    }
    wg.Wait()

    if allowed != 5 {
        t.Errorf("expected exactly 5 notifications through, got %d", allowed)
    }
}
