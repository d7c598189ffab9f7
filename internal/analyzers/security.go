// internal/analyzers/security.go
package analyzers

import (
    "strings"
)

const (
    HeaderContentSecurityPolicy = "content-security-policy"
    HeaderStrictTransport       = "strict-transport-security"
)

// DefaultSecurityHeaders lists the response headers a hardened site is expected to send.
var DefaultSecurityHeaders = []string{
    HeaderContentSecurityPolicy,
    HeaderStrictTransport,
    "x-frame-options",
    "x-content-type-options",
    "referrer-policy",
    "permissions-policy",
}

type SecurityFindings struct {
    HasContentSecurityPolicy bool            `json:"has_content_security_policy"`
    HasStrictTransport       bool            `json:"has_strict_transport_security"`
    Headers                  map[string]bool `json:"headers"`
    Missing                  []string        `json:"missing"`
    Score                    int             `json:"score"` // percentage of Headers present
}

// SecurityHeaderAnalyzer reports which security headers the response carried.
type SecurityHeaderAnalyzer struct {
    headers []string
}

// NewSecurityHeaderAnalyzer checks DefaultSecurityHeaders plus any extra names.
func NewSecurityHeaderAnalyzer(extra ...string) *SecurityHeaderAnalyzer {
    headers := make([]string, 0, len(DefaultSecurityHeaders)+len(extra))
    seen := make(map[string]bool)
    for _, h := range append(append([]string{}, DefaultSecurityHeaders...), extra...) {
        h = strings.ToLower(strings.TrimSpace(h))
        if h == "" || seen[h] {
            continue
        }
        seen[h] = true
        headers = append(headers, h)
    }
    return &SecurityHeaderAnalyzer{headers: headers}
}

func (a *SecurityHeaderAnalyzer) Name() string {
    return "security_headers"
}

func (a *SecurityHeaderAnalyzer) Analyze(doc *Document, report *Report) {
    findings := SecurityFindings{
        Headers: make(map[string]bool, len(a.headers)),
        Missing: []string{},
    }

    present := 0
    for _, name := range a.headers {
        value, ok := doc.Header(name)
        ok = ok && strings.TrimSpace(value) != ""
        findings.Headers[name] = ok
        if ok {
            present++
        } else {
            findings.Missing = append(findings.Missing, name)
        }
    }

    findings.HasContentSecurityPolicy = findings.Headers[HeaderContentSecurityPolicy]
    findings.HasStrictTransport = findings.Headers[HeaderStrictTransport]
    if len(a.headers) > 0 {
        findings.Score = present * 100 / len(a.headers)
    }

    report.Security = findings
}
