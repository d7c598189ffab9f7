// internal/fetcher/http.go - plain HTTP loads for hosts without a browser
package fetcher

import (
    "context"
    "fmt"
    "io"
    "net/http"
    "strings"
    "time"

    "github.com/PuerkitoBio/goquery"
    "sitewarden/internal/database"
)

// HTTPFetcher fetches the raw document without rendering it. Scripts never
// run, so the HTML is what the server sent and no screenshot is taken.
type HTTPFetcher struct {
    Client    *http.Client
    UserAgent string
    Timeout   time.Duration
}

func NewHTTPFetcher(userAgent string, timeout time.Duration) *HTTPFetcher {
    return &HTTPFetcher{
        Client:    &http.Client{},
        UserAgent: userAgent,
        Timeout:   timeout,
    }
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) *Result {
    started := time.Now()

    if _, ok := ctx.Deadline(); !ok && f.Timeout > 0 {
        var cancel context.CancelFunc
        ctx, cancel = context.WithTimeout(ctx, f.Timeout)
        defer cancel()
    }

    req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
    if err != nil {
        return Failed(ctx, fmt.Errorf("invalid request: %w", err), started)
    }
    if f.UserAgent != "" {
        req.Header.Set("User-Agent", f.UserAgent)
    }

    resp, err := f.Client.Do(req)
    if err != nil {
        return Failed(ctx, err, started)
    }
    defer resp.Body.Close()

    body, err := io.ReadAll(resp.Body)
    if err != nil {
        return Failed(ctx, fmt.Errorf("failed to read body: %w", err), started)
    }

    result := &Result{
        OK:         true,
        FinalURL:   resp.Request.URL.String(),
        HTML:       string(body),
        StatusCode: resp.StatusCode,
        Headers:    normalizeHeaders(resp.Header, func(v []string) string { return strings.Join(v, ", ") }),
        Duration:   time.Since(started),
        Images:     []database.Image{},
    }

    if doc, err := goquery.NewDocumentFromReader(strings.NewReader(result.HTML)); err == nil {
        result.Title = strings.TrimSpace(doc.Find("title").First().Text())
        doc.Find("img").Each(func(_ int, sel *goquery.Selection) {
            src, _ := sel.Attr("src")
            alt, _ := sel.Attr("alt")
            result.Images = append(result.Images, database.Image{Src: src, Alt: alt})
        })
    }

    return result
}
