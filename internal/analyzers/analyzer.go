// internal/analyzers/analyzer.go
package analyzers

import (
    "fmt"
    "strings"

    "github.com/PuerkitoBio/goquery"
    "github.com/sirupsen/logrus"
)

// Document is the read-only input shared by every analyzer of one check.
type Document struct {
    HTML    string
    Headers map[string]string // keys are lower-case
    dom     *goquery.Document
}

// NewDocument parses html once. A parse failure leaves the DOM nil and the
// DOM based analyzers report nothing.
func NewDocument(html string, headers map[string]string) *Document {
    doc := &Document{
        HTML:    html,
        Headers: make(map[string]string, len(headers)),
    }
    for k, v := range headers {
        doc.Headers[strings.ToLower(k)] = v
    }

    dom, err := goquery.NewDocumentFromReader(strings.NewReader(html))
    if err == nil {
        doc.dom = dom
    }
    return doc
}

// DOM returns the parsed document, or nil.
func (d *Document) DOM() *goquery.Document {
    return d.dom
}

// Header looks a header up case-insensitively.
func (d *Document) Header(name string) (string, bool) {
    v, ok := d.Headers[strings.ToLower(name)]
    return v, ok
}

// Analyzer inspects a document and records what it found in its own part of the report.
type Analyzer interface {
    Name() string
    Analyze(doc *Document, report *Report)
}

// Report collects the findings of all analyzers for one check.
type Report struct {
    SEO       SEOFindings            `json:"seo"`
    Security  SecurityFindings       `json:"security"`
    TechStack []string               `json:"tech_stack"`
    Malware   []MalwareFinding       `json:"malware"`
    Metadata  Metadata               `json:"metadata"`
    Extra     map[string]interface{} `json:"extra,omitempty"`
}

// SetExtra stores findings of analyzers that have no dedicated field.
func (r *Report) SetExtra(key string, value interface{}) {
    if r.Extra == nil {
        r.Extra = make(map[string]interface{})
    }
    r.Extra[key] = value
}

// Set runs a list of analyzers in registration order.
type Set struct {
    analyzers []Analyzer
}

func NewSet(analyzers ...Analyzer) *Set {
    return &Set{analyzers: analyzers}
}

// DefaultSet wires the built-in analyzers with the given malware catalog.
func DefaultSet(catalog *Catalog) *Set {
    return ConfiguredSet(catalog, nil, nil)
}

// ConfiguredSet is DefaultSet with extra tech fingerprints and security headers.
// Fingerprints are merged into DefaultFingerprints by name.
func ConfiguredSet(catalog *Catalog, fingerprints []Fingerprint, extraHeaders []string) *Set {
    return NewSet(
        NewSEOAnalyzer(),
        NewSecurityHeaderAnalyzer(extraHeaders...),
        NewTechStackAnalyzer(MergeFingerprints(DefaultFingerprints, fingerprints)...),
        NewMalwareAnalyzer(catalog),
        NewMetadataAnalyzer(),
    )
}

// Register appends an analyzer. Call before the set is used concurrently.
func (s *Set) Register(a Analyzer) {
    s.analyzers = append(s.analyzers, a)
}

func (s *Set) Names() []string {
    names := make([]string, 0, len(s.analyzers))
    for _, a := range s.analyzers {
        names = append(names, a.Name())
    }
    return names
}

// Run executes every analyzer against html and headers. It never fails: an
// analyzer that panics on hostile input contributes nothing.
func (s *Set) Run(html string, headers map[string]string) Report {
    doc := NewDocument(html, headers)
    report := Report{
        TechStack: []string{},
        Malware:   []MalwareFinding{},
    }

    for _, a := range s.analyzers {
        runSafely(a, doc, &report)
    }
    return report
}

func runSafely(a Analyzer, doc *Document, report *Report) {
    defer func() {
        if r := recover(); r != nil {
            logrus.WithFields(logrus.Fields{
                "analyzer": a.Name(),
                "panic":    fmt.Sprint(r),
            }).Warn("Analyzer recovered from panic")
        }
    }()
    a.Analyze(doc, report)
}
