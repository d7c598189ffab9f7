package analyzers

import (
    "reflect"
    "strings"
    "testing"
)

const samplePage = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>Example Store</title>
  <meta name="Description" content="Shoes and more">
  <meta name="viewport" content="width=device-width">
  <link rel="stylesheet" href="/wp-content/themes/shop/style.css">
</head>
<body>
  <h1>Welcome</h1>
  <h1>Offers</h1>
  <img src="/a.png" alt="">
  <img src="/b.png" alt="Red shoes">
  <script src="https://cdn.shopify.com/s/app.js"></script>
</body>
</html>`

func TestSEOAnalyzer(t *testing.T) {
    report := DefaultSet(nil).Run(samplePage, nil)

    if !report.SEO.HasTitle || report.SEO.Title != "Example Store" {
        t.Errorf("expected title to be detected, got %+v", report.SEO)
    }
    if !report.SEO.HasMetaDescription {
        t.Error("expected meta description to be detected regardless of name case")
    }
    if !report.SEO.HasImageAlt {
        t.Error("expected an image with alt text")
    }
    if report.SEO.H1Count != 2 {
        t.Errorf("expected 2 h1 tags, got %d", report.SEO.H1Count)
    }
}

func TestSEOAnalyzer_EmptyAndMalformed(t *testing.T) {
    for _, html := range []string{"", "<html><body><h1>unclosed", "<<<>>>", "<img alt='   '>"} {
        report := DefaultSet(nil).Run(html, nil)
        if report.SEO.HasTitle || report.SEO.HasMetaDescription || report.SEO.HasImageAlt {
            t.Errorf("expected nothing detected for %q, got %+v", html, report.SEO)
        }
    }
}

func TestSecurityHeaderAnalyzer(t *testing.T) {
    headers := map[string]string{
        "Strict-Transport-Security": "max-age=31536000",
        "X-Frame-Options":           "DENY",
        "Content-Security-Policy":   "  ",
    }
    report := NewSet(NewSecurityHeaderAnalyzer()).Run("", headers)

    if report.Security.HasContentSecurityPolicy {
        t.Error("blank content-security-policy must not count as present")
    }
    if !report.Security.HasStrictTransport {
        t.Error("expected strict-transport-security to be found case-insensitively")
    }
    if report.Security.Score != 2*100/len(DefaultSecurityHeaders) {
        t.Errorf("unexpected score %d", report.Security.Score)
    }
    if len(report.Security.Missing) != len(DefaultSecurityHeaders)-2 {
        t.Errorf("unexpected missing list %v", report.Security.Missing)
    }
}

func TestSecurityHeaderAnalyzer_Extra(t *testing.T) {
    a := NewSecurityHeaderAnalyzer("Cross-Origin-Opener-Policy", "x-frame-options")
    report := NewSet(a).Run("", map[string]string{"cross-origin-opener-policy": "same-origin"})

    if !report.Security.Headers["cross-origin-opener-policy"] {
        t.Error("expected extra header to be checked")
    }
    if len(report.Security.Headers) != len(DefaultSecurityHeaders)+1 {
        t.Errorf("expected duplicates to be ignored, got %d headers", len(report.Security.Headers))
    }
}

func TestTechStackAnalyzer(t *testing.T) {
    got := NewTechStackAnalyzer().Detect(samplePage + `<div id="__NEXT_DATA__"></div><span>wp-includes</span>`)
    want := []string{"WordPress", "Shopify", "Next.js"}
    if !reflect.DeepEqual(got, want) {
        t.Errorf("expected %v, got %v", want, got)
    }
}

func TestTechStackAnalyzer_CaseSensitive(t *testing.T) {
    got := NewTechStackAnalyzer().Detect("WP-CONTENT REACT")
    if len(got) != 0 {
        t.Errorf("expected no match for upper-case markers, got %v", got)
    }
}

func TestMergeFingerprints(t *testing.T) {
    base := []Fingerprint{
        {Name: "WordPress", Markers: []string{"wp-content"}},
        {Name: "Shopify", Markers: []string{"cdn.shopify.com"}},
    }
    merged := MergeFingerprints(base, []Fingerprint{
        {Name: "wordpress", Markers: []string{"/blog/wp-json"}},
        {Name: "Ghost", Markers: []string{"ghost-sdk"}},
    })

    if len(merged) != 3 || merged[0].Name != "WordPress" || merged[2].Name != "Ghost" {
        t.Fatalf("unexpected merge result %+v", merged)
    }
    if !reflect.DeepEqual(merged[0].Markers, []string{"/blog/wp-json"}) {
        t.Errorf("expected same-name entry to replace markers, got %v", merged[0].Markers)
    }
    if !reflect.DeepEqual(base[0].Markers, []string{"wp-content"}) {
        t.Error("base fingerprints must not be modified")
    }
}

func TestConfiguredSet(t *testing.T) {
    set := ConfiguredSet(nil,
        []Fingerprint{{Name: "Ghost", Markers: []string{"ghost-sdk"}}},
        []string{"Cross-Origin-Opener-Policy"},
    )
    report := set.Run(samplePage+`<script src="/ghost-sdk.min.js"></script>`, nil)

    want := []string{"WordPress", "Shopify", "Ghost"}
    if !reflect.DeepEqual(report.TechStack, want) {
        t.Errorf("expected %v, got %v", want, report.TechStack)
    }
    if _, ok := report.Security.Headers["cross-origin-opener-policy"]; !ok {
        t.Error("expected configured header to be checked")
    }
}

func TestMetadataAnalyzer(t *testing.T) {
    report := NewSet(NewMetadataAnalyzer()).Run(samplePage, nil)
    want := Metadata{Description: "Shoes and more", Viewport: "width=device-width", Charset: "utf-8"}
    if report.Metadata != want {
        t.Errorf("expected %+v, got %+v", want, report.Metadata)
    }
}

func TestMalwareAnalyzer_DocumentOrder(t *testing.T) {
    html := "<html><body>\n" +
        `<iframe src="http://evil.example" width="0" height="0"></iframe>` + "\n" +
        `<script>eval(atob("ZG9jdW1lbnQ="))</script>` + "\n" +
        `<script src="https://coinhive.com/lib/coinhive.min.js"></script>` + "\n" +
        "</body></html>"

    a := NewMalwareAnalyzer(nil)
    first := a.Scan(html)

    ids := make([]string, 0, len(first))
    for _, f := range first {
        ids = append(ids, f.PatternID)
    }
    want := []string{"hidden-iframe", "eval-obfuscation", "malicious-script-src"}
    if !reflect.DeepEqual(ids, want) {
        t.Fatalf("expected %v, got %v", want, ids)
    }

    if first[0].Line != 2 || first[1].Line != 3 {
        t.Errorf("unexpected line numbers: %d, %d", first[0].Line, first[1].Line)
    }
    if first[2].File != "https://coinhive.com/lib/coinhive.min.js" {
        t.Errorf("expected script src as file reference, got %q", first[2].File)
    }
    for _, f := range first {
        if f.Suggestion == "" || f.Alert == "" {
            t.Errorf("finding %s lacks label or remediation", f.PatternID)
        }
    }

    for i := 0; i < 20; i++ {
        if again := a.Scan(html); !reflect.DeepEqual(first, again) {
            t.Fatalf("scan is not deterministic on run %d", i)
        }
    }
}

func TestMalwareAnalyzer_SnippetBounded(t *testing.T) {
    blob := strings.Repeat("QUJD", 300)
    html := strings.Repeat("é", 100) + `<script>var p = "` + blob + `";</script>`

    findings := NewMalwareAnalyzer(nil).Scan(html)
    if len(findings) != 1 || findings[0].PatternID != "base64-blob" {
        t.Fatalf("expected one base64-blob finding, got %+v", findings)
    }
    if len(findings[0].Snippet) > DefaultSnippetLength {
        t.Errorf("snippet exceeds bound: %d bytes", len(findings[0].Snippet))
    }
    if !strings.Contains(findings[0].Snippet, "QUJD") {
        t.Errorf("snippet does not show the payload: %q", findings[0].Snippet)
    }
}

func TestMalwareAnalyzer_CleanPage(t *testing.T) {
    if findings := NewMalwareAnalyzer(nil).Scan(samplePage); len(findings) != 0 {
        t.Errorf("expected no findings on a clean page, got %+v", findings)
    }
}

func TestParseCatalog_Errors(t *testing.T) {
    tests := map[string]string{
        "bad regex":    "patterns:\n  - id: x\n    expression: '('\n",
        "duplicate id": "patterns:\n  - id: x\n    expression: a\n  - id: x\n    expression: b\n",
        "missing id":   "patterns:\n  - expression: a\n",
    }
    for name, data := range tests {
        t.Run(name, func(t *testing.T) {
            if _, err := ParseCatalog([]byte(data)); err == nil {
                t.Error("expected error")
            }
        })
    }
}

func TestDefaultCatalogLoads(t *testing.T) {
    c := DefaultCatalog()
    if c.Version == 0 || len(c.Patterns) == 0 {
        t.Fatalf("embedded catalog looks empty: %+v", c)
    }
}

type panickingAnalyzer struct{}

func (panickingAnalyzer) Name() string                 { return "boom" }
func (panickingAnalyzer) Analyze(*Document, *Report)   { panic("bad input") }

func TestSet_RecoversFromPanics(t *testing.T) {
    set := NewSet(panickingAnalyzer{}, NewTechStackAnalyzer())
    report := set.Run("wp-content", nil)
    if !reflect.DeepEqual(report.TechStack, []string{"WordPress"}) {
        t.Errorf("expected later analyzers to still run, got %v", report.TechStack)
    }
}
