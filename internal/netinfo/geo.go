// internal/netinfo/geo.go
package netinfo

import (
    "context"
    "encoding/json"
    "fmt"
    "io"
    "net"
    "net/http"
    "strings"
    "time"

    "github.com/sirupsen/logrus"
    "golang.org/x/time/rate"
    "sitewarden/internal/config"
)

// IPAPILocator queries an ipapi.co compatible endpoint. Requests share one
// limiter so a large sweep stays inside the provider's free quota.
type IPAPILocator struct {
    endpoint string
    client   *http.Client
    limiter  *rate.Limiter
}

type ipapiResponse struct {
    City        string `json:"city"`
    Region      string `json:"region"`
    CountryName string `json:"country_name"`
    Error       bool   `json:"error"`
    Reason      string `json:"reason"`
}

func NewIPAPILocator(cfg config.GeoConfig) *IPAPILocator {
    perMinute := cfg.RatePerMinute
    if perMinute <= 0 {
        perMinute = 30
    }
    timeout := cfg.Timeout
    if timeout <= 0 {
        timeout = 5 * time.Second
    }

    return &IPAPILocator{
        endpoint: cfg.Endpoint,
        client:   &http.Client{Timeout: timeout},
        limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
    }
}

func (l *IPAPILocator) Locate(ctx context.Context, ip string) string {
    location, err := l.lookup(ctx, ip)
    if err != nil {
        logrus.WithFields(logrus.Fields{
            "ip":    ip,
            "error": err,
        }).Debug("Geolocation lookup failed")
        return GeoUnavailable
    }
    return location
}

func (l *IPAPILocator) lookup(ctx context.Context, ip string) (string, error) {
    parsed := net.ParseIP(ip)
    if parsed == nil {
        return "", fmt.Errorf("invalid ip %q", ip)
    }
    if parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsUnspecified() || parsed.IsLinkLocalUnicast() {
        return "", fmt.Errorf("ip %s is not publicly routable", ip)
    }

    if err := l.limiter.Wait(ctx); err != nil {
        return "", fmt.Errorf("rate limiter: %w", err)
    }

    req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(l.endpoint, ip), nil)
    if err != nil {
        return "", err
    }
    req.Header.Set("Accept", "application/json")

    resp, err := l.client.Do(req)
    if err != nil {
        return "", err
    }
    defer resp.Body.Close()

    if resp.StatusCode != http.StatusOK {
        io.Copy(io.Discard, resp.Body)
        return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
    }

    var body ipapiResponse
    if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err != nil {
        return "", fmt.Errorf("malformed response: %w", err)
    }
    if body.Error {
        return "", fmt.Errorf("provider error: %s", body.Reason)
    }

    var parts []string
    for _, part := range []string{body.City, body.Region, body.CountryName} {
        if part = strings.TrimSpace(part); part != "" {
            parts = append(parts, part)
        }
    }
    if len(parts) == 0 {
        return "", fmt.Errorf("response carried no location")
    }
    return strings.Join(parts, ", "), nil
}
