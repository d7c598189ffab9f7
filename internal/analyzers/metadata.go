// internal/analyzers/metadata.go
package analyzers

import (
    "strings"

    "github.com/PuerkitoBio/goquery"
)

type Metadata struct {
    Description string `json:"description,omitempty"`
    Keywords    string `json:"keywords,omitempty"`
    Viewport    string `json:"viewport,omitempty"`
    Charset     string `json:"charset,omitempty"`
}

// MetadataAnalyzer extracts the descriptive <meta> tags of a page.
type MetadataAnalyzer struct{}

func NewMetadataAnalyzer() *MetadataAnalyzer {
    return &MetadataAnalyzer{}
}

func (a *MetadataAnalyzer) Name() string {
    return "metadata"
}

func (a *MetadataAnalyzer) Analyze(doc *Document, report *Report) {
    dom := doc.DOM()
    if dom == nil {
        return
    }

    meta := Metadata{}
    dom.Find("meta").Each(func(_ int, s *goquery.Selection) {
        if charset, ok := s.Attr("charset"); ok && meta.Charset == "" {
            meta.Charset = strings.TrimSpace(charset)
            return
        }

        name, _ := s.Attr("name")
        content, _ := s.Attr("content")
        content = strings.TrimSpace(content)

        switch strings.ToLower(strings.TrimSpace(name)) {
        case "description":
            if meta.Description == "" {
                meta.Description = content
            }
        case "keywords":
            if meta.Keywords == "" {
                meta.Keywords = content
            }
        case "viewport":
            if meta.Viewport == "" {
                meta.Viewport = content
            }
        }
    })

    report.Metadata = meta
}
