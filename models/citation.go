package models

import (
	"slices"
	"strings"
	"time"
)

type ProviderName string

const (
	ProviderOpenAI     ProviderName = "openai"
	ProviderAnthropic  ProviderName = "anthropic"
	ProviderPerplexity ProviderName = "perplexity"
	ProviderLocal      ProviderName = "local"
)

// Providers lists every supported provider in canonical order.
var Providers = []ProviderName{ProviderOpenAI, ProviderAnthropic, ProviderPerplexity, ProviderLocal}

// ParseProvider resolves a provider name case-insensitively.
func ParseProvider(raw string) (ProviderName, bool) {
	name := ProviderName(strings.ToLower(strings.TrimSpace(raw)))
	if slices.Contains(Providers, name) {
		return name, true
	}
	return "", false
}

// Prompt is a natural-language question checked against AI providers
type Prompt struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type CompetitorMention struct {
	Domain   string `json:"domain"`
	Context  string `json:"context,omitempty"`
	Position int    `json:"position"`
}

// CitationResult is the outcome of one (prompt, provider) check.
type CitationResult struct {
	PromptID         string              `json:"promptId"`
	Prompt           string              `json:"prompt"`
	Provider         ProviderName        `json:"provider"`
	Response         string              `json:"response"`
	IsCited          bool                `json:"isCited"`
	CitationContext  string              `json:"citationContext,omitempty"`
	CompetitorsCited []CompetitorMention `json:"competitorsCited"`
	TokensUsed       int                 `json:"tokensUsed"`
	Cost             float64             `json:"cost"`
}

// CompetitorCount is one row of the competitor frequency table
type CompetitorCount struct {
	Domain string `json:"domain"`
	Count  int    `json:"count"`
}

// NormalizeDomain lower-cases a domain and strips scheme, www. and any path.
func NormalizeDomain(raw string) string {
	d := strings.ToLower(strings.TrimSpace(raw))
	if i := strings.Index(d, "://"); i >= 0 {
		d = d[i+3:]
	}
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	if i := strings.LastIndexByte(d, ':'); i >= 0 {
		d = d[:i]
	}
	d = strings.TrimPrefix(d, "www.")
	return strings.Trim(d, ".")
}

// RankCompetitors reduces citation results to a competitor frequency table.
// Every mention counts, including repeats within one result. Rows are ordered by
// descending count, then domain, so the output does not depend on input order.
// This is the only place competitor rankings are derived.
func RankCompetitors(results []CitationResult) []CompetitorCount {
	counts := make(map[string]int)
	for _, r := range results {
		for _, c := range r.CompetitorsCited {
			d := NormalizeDomain(c.Domain)
			if d == "" {
				continue
			}
			counts[d]++
		}
	}

	table := make([]CompetitorCount, 0, len(counts))
	for d, n := range counts {
		table = append(table, CompetitorCount{Domain: d, Count: n})
	}
	slices.SortFunc(table, func(a, b CompetitorCount) int {
		if a.Count != b.Count {
			return b.Count - a.Count
		}
		return strings.Compare(a.Domain, b.Domain)
	})
	return table
}

// TopCompetitors returns at most n rows of RankCompetitors.
func TopCompetitors(results []CitationResult, n int) []CompetitorCount {
	table := RankCompetitors(results)
	if n >= 0 && len(table) > n {
		table = table[:n]
	}
	return table
}

// CitationRate is the percentage of results that cite the subject; 0 for no results.
func CitationRate(results []CitationResult) float64 {
	if len(results) == 0 {
		return 0
	}
	cited := 0
	for _, r := range results {
		if r.IsCited {
			cited++
		}
	}
	return 100 * float64(cited) / float64(len(results))
}

// PromptCoverage reports, per prompt id, how many providers cited the subject.
func PromptCoverage(results []CitationResult) map[string]int {
	coverage := make(map[string]int)
	for _, r := range results {
		if _, ok := coverage[r.PromptID]; !ok {
			coverage[r.PromptID] = 0
		}
		if r.IsCited {
			coverage[r.PromptID]++
		}
	}
	return coverage
}

// ContentAnalysis holds the secondary scores derived from a crawl in the AEO path
type ContentAnalysis struct {
	SchemaScore      int `json:"schemaScore"`
	BlufScore        int `json:"blufScore"`
	ReadabilityScore int `json:"readabilityScore"`
	OverallScore     int `json:"overallScore"`
}

// AEOAnalysis is the result of one answer-engine analysis. Competitor
// rankings are not stored; call Competitors.
type AEOAnalysis struct {
	ID                  string           `json:"id"`
	UserID              string           `json:"userId"`
	Website             string           `json:"website"`
	BrandName           string           `json:"brandName,omitempty"`
	Prompts             []Prompt         `json:"prompts"`
	Providers           []ProviderName   `json:"providers"`
	CitationResults     []CitationResult `json:"citationResults"`
	OverallCitationRate float64          `json:"overallCitationRate"`
	ContentAnalysis     *ContentAnalysis `json:"contentAnalysis,omitempty"`
	Recommendations     []Recommendation `json:"recommendations"`
	CostInfo            CostInfo         `json:"costInfo"`
	CreatedAt           time.Time        `json:"createdAt"`
}

// Competitors recomputes the competitor table from the citation results.
func (a *AEOAnalysis) Competitors() []CompetitorCount {
	return RankCompetitors(a.CitationResults)
}
