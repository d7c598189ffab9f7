// internal/analyzers/techstack.go
package analyzers

import (
    "strings"
)

// Fingerprint maps a technology to the raw substrings that betray it.
// Matching is case-sensitive.
type Fingerprint struct {
    Name    string
    Markers []string
}

// DefaultFingerprints is checked in order; the order of the result follows it.
var DefaultFingerprints = []Fingerprint{
    {Name: "WordPress", Markers: []string{"wp-content", "wp-includes"}},
    {Name: "Shopify", Markers: []string{"cdn.shopify.com"}},
    {Name: "Wix", Markers: []string{"static.wixstatic.com", "wix-bolt"}},
    {Name: "Drupal", Markers: []string{"/sites/default/files", "Drupal.settings"}},
    {Name: "Joomla", Markers: []string{"/media/jui/", "/components/com_"}},
    {Name: "Nuxt.js", Markers: []string{"data-n-head", "__NUXT__"}},
    {Name: "Next.js", Markers: []string{"__NEXT_DATA__", "/_next/static"}},
    {Name: "React", Markers: []string{"react", "data-reactroot"}},
    {Name: "Vue.js", Markers: []string{"vue", "data-v-"}},
    {Name: "Angular", Markers: []string{"ng-version"}},
    {Name: "jQuery", Markers: []string{"jquery"}},
    {Name: "Bootstrap", Markers: []string{"bootstrap.min.css", "bootstrap.bundle"}},
    {Name: "Firebase", Markers: []string{"firebase"}},
    {Name: "Google Tag Manager", Markers: []string{"googletagmanager.com"}},
    {Name: "Google Analytics", Markers: []string{"google-analytics.com", "gtag("}},
    {Name: "Cloudflare", Markers: []string{"cdnjs.cloudflare.com", "/cdn-cgi/"}},
}

// TechStackAnalyzer detects technologies by substring fingerprints.
type TechStackAnalyzer struct {
    fingerprints []Fingerprint
}

func NewTechStackAnalyzer(fingerprints ...Fingerprint) *TechStackAnalyzer {
    if len(fingerprints) == 0 {
        fingerprints = DefaultFingerprints
    }
    return &TechStackAnalyzer{fingerprints: fingerprints}
}

// MergeFingerprints returns base with extra applied: an extra entry named like a
// base one replaces its markers in place, the rest are appended in order.
func MergeFingerprints(base, extra []Fingerprint) []Fingerprint {
    merged := make([]Fingerprint, len(base), len(base)+len(extra))
    copy(merged, base)
    index := make(map[string]int, len(base))
    for i, fp := range merged {
        index[strings.ToLower(fp.Name)] = i
    }
    for _, fp := range extra {
        key := strings.ToLower(fp.Name)
        if i, ok := index[key]; ok {
            merged[i].Markers = fp.Markers
            continue
        }
        index[key] = len(merged)
        merged = append(merged, fp)
    }
    return merged
}

func (a *TechStackAnalyzer) Name() string {
    return "tech_stack"
}

func (a *TechStackAnalyzer) Analyze(doc *Document, report *Report) {
    report.TechStack = a.Detect(doc.HTML)
}

// Detect returns matched technology names in fingerprint order, without duplicates.
func (a *TechStackAnalyzer) Detect(html string) []string {
    found := []string{}
    seen := make(map[string]bool)

    for _, fp := range a.fingerprints {
        if seen[fp.Name] {
            continue
        }
        for _, marker := range fp.Markers {
            if marker != "" && strings.Contains(html, marker) {
                found = append(found, fp.Name)
                seen[fp.Name] = true
                break
            }
        }
    }
    return found
}
