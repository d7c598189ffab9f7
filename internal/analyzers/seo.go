// internal/analyzers/seo.go
package analyzers

import (
    "strings"

    "github.com/PuerkitoBio/goquery"
)

type SEOFindings struct {
    HasTitle           bool   `json:"has_title"`
    Title              string `json:"title,omitempty"`
    HasMetaDescription bool   `json:"has_meta_description"`
    HasImageAlt        bool   `json:"has_image_alt"`
    H1Count            int    `json:"h1_count"`
}

// SEOAnalyzer checks the on-page basics search engines look at.
type SEOAnalyzer struct{}

func NewSEOAnalyzer() *SEOAnalyzer {
    return &SEOAnalyzer{}
}

func (a *SEOAnalyzer) Name() string {
    return "seo"
}

func (a *SEOAnalyzer) Analyze(doc *Document, report *Report) {
    dom := doc.DOM()
    if dom == nil {
        return
    }

    findings := SEOFindings{}

    title := dom.Find("title").First()
    if title.Length() > 0 {
        findings.HasTitle = true
        findings.Title = strings.TrimSpace(title.Text())
    }

    dom.Find("meta").EachWithBreak(func(_ int, s *goquery.Selection) bool {
        name, _ := s.Attr("name")
        if strings.EqualFold(strings.TrimSpace(name), "description") {
            findings.HasMetaDescription = true
            return false
        }
        return true
    })

    dom.Find("img").EachWithBreak(func(_ int, s *goquery.Selection) bool {
        alt, ok := s.Attr("alt")
        if ok && strings.TrimSpace(alt) != "" {
            findings.HasImageAlt = true
            return false
        }
        return true
    })

    findings.H1Count = dom.Find("h1").Length()

    report.SEO = findings
}
