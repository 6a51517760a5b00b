package models

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// CrawlSchemaVersion is the newest crawl payload version this service understands.
const CrawlSchemaVersion = 1

// ErrInvalidPayload is returned when a collaborator payload fails validation.
var ErrInvalidPayload = errors.New("invalid payload")

// Heading is a single heading found on a crawled page
type Heading struct {
	Level           int    `json:"level"`
	Text            string `json:"text"`
	HasDirectAnswer bool   `json:"hasDirectAnswer"`
}

// SchemaMarkup is one schema.org entity found on a page
type SchemaMarkup struct {
	Type string `json:"type"`
}

type ContentStats struct {
	WordCount         int     `json:"wordCount"`
	ParagraphCount    int     `json:"paragraphCount"`
	AvgSentenceLength float64 `json:"avgSentenceLength"`
	ReadabilityScore  float64 `json:"readabilityScore"`
}

type TechnicalSignals struct {
	HasHTTPS       bool `json:"hasHttps"`
	HasCanonical   bool `json:"hasCanonical"`
	HasOpenGraph   bool `json:"hasOpenGraph"`
	HasTwitterCard bool `json:"hasTwitterCard"`
	MobileViewport bool `json:"mobileViewport"`
	LoadTime       int  `json:"loadTime"` // milliseconds
}

type KeywordAnalysis struct {
	TitleContainsKeyword bool    `json:"titleContainsKeyword"`
	H1ContainsKeyword    bool    `json:"h1ContainsKeyword"`
	MetaContainsKeyword  bool    `json:"metaContainsKeyword"`
	KeywordDensity       float64 `json:"keywordDensity"` // percent
}

// PageSummary is the per-page breakdown of a multi-page crawl
type PageSummary struct {
	URL            string `json:"url"`
	Title          string `json:"title"`
	WordCount      int    `json:"wordCount"`
	ParagraphCount int    `json:"paragraphCount"`
	HeadingCount   int    `json:"headingCount"`
}

// CrawlData is the structured page content returned by a crawl collaborator.
type CrawlData struct {
	Version          int              `json:"version,omitempty"`
	URL              string           `json:"url"`
	Title            string           `json:"title"`
	MetaDescription  string           `json:"metaDescription"`
	Headings         []Heading        `json:"headings"`
	SchemaMarkup     []SchemaMarkup   `json:"schemaMarkup"`
	ContentStats     ContentStats     `json:"contentStats"`
	TechnicalSignals TechnicalSignals `json:"technicalSignals"`
	KeywordAnalysis  KeywordAnalysis  `json:"keywordAnalysis"`
	PagesAnalyzed    int              `json:"pagesAnalyzed,omitempty"`
	Pages            []PageSummary    `json:"pages,omitempty"`
}

// Normalize validates the payload in place so scoring never sees
// out-of-range or missing values.
func (c *CrawlData) Normalize() error {
	if c == nil {
		return fmt.Errorf("%w: crawl data is empty", ErrInvalidPayload)
	}
	if c.Version < 0 || c.Version > CrawlSchemaVersion {
		return fmt.Errorf("%w: unsupported crawl version %d", ErrInvalidPayload, c.Version)
	}
	c.URL = strings.TrimSpace(c.URL)
	if c.URL == "" {
		return fmt.Errorf("%w: crawl data has no url", ErrInvalidPayload)
	}

	if len(c.Pages) > 0 {
		words, paragraphs := 0, 0
		for i := range c.Pages {
			p := &c.Pages[i]
			p.WordCount = max(0, p.WordCount)
			p.ParagraphCount = max(0, p.ParagraphCount)
			p.HeadingCount = max(0, p.HeadingCount)
			words += p.WordCount
			paragraphs += p.ParagraphCount
		}
		c.ContentStats.WordCount = words
		if c.ContentStats.ParagraphCount <= 0 {
			c.ContentStats.ParagraphCount = paragraphs
		}
		if c.PagesAnalyzed < len(c.Pages) {
			c.PagesAnalyzed = len(c.Pages)
		}
	}
	if c.PagesAnalyzed < 1 {
		c.PagesAnalyzed = 1
	}

	c.ContentStats.WordCount = max(0, c.ContentStats.WordCount)
	c.ContentStats.ParagraphCount = max(0, c.ContentStats.ParagraphCount)
	c.ContentStats.AvgSentenceLength = nonNegative(c.ContentStats.AvgSentenceLength)
	c.ContentStats.ReadabilityScore = Clamp(finite(c.ContentStats.ReadabilityScore), 0, 100)
	c.KeywordAnalysis.KeywordDensity = nonNegative(c.KeywordAnalysis.KeywordDensity)
	c.TechnicalSignals.LoadTime = max(0, c.TechnicalSignals.LoadTime)

	headings := c.Headings[:0]
	for _, h := range c.Headings {
		if h.Level < 1 || h.Level > 6 {
			continue
		}
		h.Text = strings.TrimSpace(h.Text)
		headings = append(headings, h)
	}
	c.Headings = headings

	schema := c.SchemaMarkup[:0]
	for _, s := range c.SchemaMarkup {
		s.Type = strings.TrimSpace(s.Type)
		if s.Type == "" {
			continue
		}
		schema = append(schema, s)
	}
	c.SchemaMarkup = schema
	return nil
}

// PageCount returns the number of analyzed pages, never less than one.
func (c *CrawlData) PageCount() int {
	if c.PagesAnalyzed < 1 {
		return 1
	}
	return c.PagesAnalyzed
}

// H1Count counts level-one headings.
func (c *CrawlData) H1Count() int {
	n := 0
	for _, h := range c.Headings {
		if h.Level == 1 {
			n++
		}
	}
	return n
}

// HasSchema reports whether any schema entity of the given type is present.
func (c *CrawlData) HasSchema(schemaType string) bool {
	for _, s := range c.SchemaMarkup {
		if strings.EqualFold(s.Type, schemaType) {
			return true
		}
	}
	return false
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func nonNegative(v float64) float64 {
	return math.Max(0, finite(v))
}
