// internal/fetcher/fetcher.go
package fetcher

import (
    "context"
    "errors"
    "strings"
    "time"

    "sitewarden/internal/database"
)

// Fetcher loads one page. Failures are reported on the Result, never returned.
type Fetcher interface {
    Fetch(ctx context.Context, url string) *Result
}

// Func adapts a plain function to Fetcher.
type Func func(ctx context.Context, url string) *Result

func (f Func) Fetch(ctx context.Context, url string) *Result {
    return f(ctx, url)
}

type ErrorKind string

const (
    KindNone       ErrorKind = ""
    KindTimeout    ErrorKind = "timeout"
    KindTransport  ErrorKind = "transport"
    KindNavigation ErrorKind = "navigation"
)

// Result carries what a page load observed. Headers keys are lowercase.
type Result struct {
    OK         bool
    Err        error
    Kind       ErrorKind
    FinalURL   string
    HTML       string
    StatusCode int
    Headers    map[string]string
    Duration   time.Duration
    Screenshot string
    Images     []database.Image
    Title      string
}

// Failed builds a failure result for err, classifying it.
func Failed(ctx context.Context, err error, started time.Time) *Result {
    return &Result{
        Err:      err,
        Kind:     Classify(ctx, err),
        Duration: time.Since(started),
    }
}

func (r *Result) Message() string {
    if r.Err == nil {
        return ""
    }
    if r.Kind == KindTimeout {
        return "timeout: " + r.Err.Error()
    }
    return string(r.Kind) + ": " + r.Err.Error()
}

// Classify maps a load error to a kind. An expired context always wins, since
// browser errors raised after the deadline are only a symptom of it.
func Classify(ctx context.Context, err error) ErrorKind {
    if err == nil {
        return KindNone
    }
    if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
        return KindTimeout
    }
    msg := err.Error()
    if strings.Contains(msg, "net::ERR_TIMED_OUT") || strings.Contains(msg, "Client.Timeout") {
        return KindTimeout
    }
    if strings.Contains(msg, "net::ERR_") || strings.Contains(msg, "page load error") {
        return KindNavigation
    }
    return KindTransport
}

func normalizeHeaders[V any](raw map[string]V, format func(V) string) map[string]string {
    headers := make(map[string]string, len(raw))
    for k, v := range raw {
        headers[strings.ToLower(k)] = format(v)
    }
    return headers
}
