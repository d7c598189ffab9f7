// internal/netinfo/enricher.go - DNS and geolocation enrichment
package netinfo

import (
    "context"
    "net"
    "net/url"
    "time"

    "github.com/sirupsen/logrus"
)

const (
    UnknownIP      = "unknown"
    GeoUnavailable = "unavailable"
)

// Info is what enrichment adds to a check. It never carries an error; failed
// lookups leave the sentinel values in place.
type Info struct {
    Host        string `json:"host"`
    IP          string `json:"ip"`
    GeoLocation string `json:"geo_location"`
}

type HostResolver interface {
    LookupHost(ctx context.Context, host string) ([]string, error)
}

type GeoLocator interface {
    Locate(ctx context.Context, ip string) string
}

type Enricher struct {
    resolver HostResolver
    locator  GeoLocator
    timeout  time.Duration
}

// NewEnricher builds an enricher. A nil resolver uses the Go resolver; a nil
// locator disables geolocation.
func NewEnricher(resolver HostResolver, locator GeoLocator, timeout time.Duration) *Enricher {
    if resolver == nil {
        resolver = &net.Resolver{PreferGo: true}
    }
    if timeout <= 0 {
        timeout = 5 * time.Second
    }
    return &Enricher{resolver: resolver, locator: locator, timeout: timeout}
}

func (e *Enricher) Enrich(ctx context.Context, rawURL string) Info {
    info := Info{IP: UnknownIP, GeoLocation: GeoUnavailable}

    u, err := url.Parse(rawURL)
    if err != nil || u.Hostname() == "" {
        return info
    }
    info.Host = u.Hostname()

    if ip := net.ParseIP(info.Host); ip != nil {
        info.IP = ip.String()
    } else {
        lookupCtx, cancel := context.WithTimeout(ctx, e.timeout)
        addrs, err := e.resolver.LookupHost(lookupCtx, info.Host)
        cancel()
        if err != nil || len(addrs) == 0 {
            logrus.WithFields(logrus.Fields{
                "host":  info.Host,
                "error": err,
            }).Debug("DNS lookup failed")
            return info
        }
        info.IP = preferIPv4(addrs)
    }

    if e.locator != nil {
        info.GeoLocation = e.locator.Locate(ctx, info.IP)
    }
    return info
}

func preferIPv4(addrs []string) string {
    for _, addr := range addrs {
        if ip := net.ParseIP(addr); ip != nil && ip.To4() != nil {
            return addr
        }
    }
    return addrs[0]
}
