// internal/analyzers/malware.go
package analyzers

import (
    _ "embed"
    "fmt"
    "os"
    "regexp"
    "sort"
    "strings"
    "unicode/utf8"

    "gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

const (
    DefaultSnippetLength = 160
    defaultMaxHits       = 20
)

type MalwareFinding struct {
    PatternID  string `json:"pattern_id"`
    Alert      string `json:"alert"`
    Snippet    string `json:"snippet"`
    File       string `json:"file,omitempty"`
    Line       int    `json:"line,omitempty"`
    Suggestion string `json:"suggestion"`
}

// Pattern is one catalog entry.
type Pattern struct {
    ID          string `yaml:"id"`
    Label       string `yaml:"label"`
    Expression  string `yaml:"expression"`
    Remediation string `yaml:"remediation"`
    MaxHits     int    `yaml:"max_hits"`

    re      *regexp.Regexp
    fileIdx int
}

// Catalog is a versioned, ordered list of suspicious patterns.
type Catalog struct {
    Version  int       `yaml:"version"`
    Patterns []Pattern `yaml:"patterns"`
}

// DefaultCatalog returns the catalog embedded in the binary.
func DefaultCatalog() *Catalog {
    catalog, err := ParseCatalog(defaultCatalogYAML)
    if err != nil {
        panic(fmt.Sprintf("embedded malware catalog is invalid: %v", err))
    }
    return catalog
}

// LoadCatalog reads a catalog file, falling back to the embedded one when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
    if path == "" {
        return DefaultCatalog(), nil
    }
    data, err := os.ReadFile(path)
    if err != nil {
        return nil, fmt.Errorf("failed to read malware catalog: %w", err)
    }
    return ParseCatalog(data)
}

func ParseCatalog(data []byte) (*Catalog, error) {
    var catalog Catalog
    if err := yaml.Unmarshal(data, &catalog); err != nil {
        return nil, fmt.Errorf("failed to parse malware catalog: %w", err)
    }

    ids := make(map[string]bool)
    for i := range catalog.Patterns {
        p := &catalog.Patterns[i]
        if p.ID == "" {
            return nil, fmt.Errorf("pattern %d has no id", i)
        }
        if ids[p.ID] {
            return nil, fmt.Errorf("duplicate pattern id: %s", p.ID)
        }
        ids[p.ID] = true

        re, err := regexp.Compile(strings.TrimSpace(p.Expression))
        if err != nil {
            return nil, fmt.Errorf("pattern %s: %w", p.ID, err)
        }
        p.re = re
        p.fileIdx = re.SubexpIndex("file")
        if p.MaxHits <= 0 {
            p.MaxHits = defaultMaxHits
        }
    }

    return &catalog, nil
}

// MalwareAnalyzer matches the catalog against the page HTML.
type MalwareAnalyzer struct {
    catalog    *Catalog
    snippetLen int
}

func NewMalwareAnalyzer(catalog *Catalog) *MalwareAnalyzer {
    if catalog == nil {
        catalog = DefaultCatalog()
    }
    return &MalwareAnalyzer{catalog: catalog, snippetLen: DefaultSnippetLength}
}

func (a *MalwareAnalyzer) Name() string {
    return "malware"
}

func (a *MalwareAnalyzer) Analyze(doc *Document, report *Report) {
    report.Malware = a.Scan(doc.HTML)
}

type hit struct {
    start, end int
    pattern    int
    file       string
}

// Scan returns findings in document order. Hits at the same offset keep catalog order.
func (a *MalwareAnalyzer) Scan(html string) []MalwareFinding {
    var hits []hit
    for i := range a.catalog.Patterns {
        p := &a.catalog.Patterns[i]
        for _, m := range p.re.FindAllStringSubmatchIndex(html, p.MaxHits) {
            h := hit{start: m[0], end: m[1], pattern: i}
            if p.fileIdx > 0 && m[2*p.fileIdx] >= 0 {
                h.file = html[m[2*p.fileIdx]:m[2*p.fileIdx+1]]
            }
            hits = append(hits, h)
        }
    }

    sort.SliceStable(hits, func(i, j int) bool {
        if hits[i].start != hits[j].start {
            return hits[i].start < hits[j].start
        }
        return hits[i].pattern < hits[j].pattern
    })

    findings := make([]MalwareFinding, 0, len(hits))
    for _, h := range hits {
        p := a.catalog.Patterns[h.pattern]
        findings = append(findings, MalwareFinding{
            PatternID:  p.ID,
            Alert:      p.Label,
            Snippet:    snippet(html, h.start, h.end, a.snippetLen),
            File:       h.file,
            Line:       strings.Count(html[:h.start], "\n") + 1,
            Suggestion: p.Remediation,
        })
    }
    return findings
}

// snippet cuts at most limit bytes around [start,end), on rune boundaries, and
// collapses whitespace.
func snippet(s string, start, end, limit int) string {
    const lead = 40

    from := start - lead
    if from < 0 {
        from = 0
    }
    to := end + lead
    if to > len(s) {
        to = len(s)
    }
    if to-from > limit {
        to = from + limit
    }

    for from > 0 && !utf8.RuneStart(s[from]) {
        from++
    }
    for to < len(s) && to > from && !utf8.RuneStart(s[to]) {
        to--
    }

    return strings.Join(strings.Fields(s[from:to]), " ")
}
