package analyzer

import (
	"math"
	"strings"

	"github.com/aeo-scorer/backend/models"
)

// Schema types that weigh extra in structuredData.
var highValueSchema = map[string]bool{
	"faqpage":       true,
	"howto":         true,
	"article":       true,
	"product":       true,
	"organization":  true,
	"localbusiness": true,
}

const optimalSentenceLength = 17

// ComputeMetrics maps crawl data to the five quality scores.
func ComputeMetrics(crawl *models.CrawlData) models.Metrics {
	readability := crawl.ContentStats.ReadabilityScore
	return models.Metrics{
		ContentClarity:   clampScore(readability*0.4 + BlufScore(crawl)*0.3 + math.Min(100, float64(len(crawl.Headings))*10)*0.3),
		SemanticRichness: clampScore(semanticRichness(crawl)),
		StructuredData:   StructuredDataScore(crawl),
		NaturalLanguage:  clampScore(readability*0.6 + sentenceLengthScore(crawl.ContentStats.AvgSentenceLength)*0.4),
		KeywordRelevance: keywordRelevance(crawl.KeywordAnalysis),
	}
}

// BlufScore is the share of headings followed by a direct answer, 0-100.
func BlufScore(crawl *models.CrawlData) float64 {
	if len(crawl.Headings) == 0 {
		return 0
	}
	answered := 0
	for _, h := range crawl.Headings {
		if h.HasDirectAnswer {
			answered++
		}
	}
	return 100 * float64(answered) / float64(len(crawl.Headings))
}

func semanticRichness(crawl *models.CrawlData) float64 {
	pages := float64(crawl.PageCount())
	avgWords := float64(crawl.ContentStats.WordCount) / pages

	var length float64
	switch {
	case avgWords < 500:
		length = avgWords / 500 * 60
	case avgWords <= 1500:
		length = 60 + (avgWords-500)/1000*30
	default:
		length = 90
	}

	levels := make(map[int]bool)
	for _, h := range crawl.Headings {
		levels[h.Level] = true
	}
	variety := math.Min(25, float64(len(levels))*5)
	density := math.Min(25, float64(crawl.ContentStats.ParagraphCount)/pages*2)

	return length + variety + density
}

// StructuredDataScore rewards schema entities, high-value types doubly.
func StructuredDataScore(crawl *models.CrawlData) int {
	highValue := 0
	for _, s := range crawl.SchemaMarkup {
		if highValueSchema[strings.ToLower(s.Type)] {
			highValue++
		}
	}
	return min(100, len(crawl.SchemaMarkup)*15+highValue*20)
}

func sentenceLengthScore(avg float64) float64 {
	return math.Max(0, 100-math.Abs(avg-optimalSentenceLength)*5)
}

func keywordRelevance(k models.KeywordAnalysis) int {
	score := 0
	if k.TitleContainsKeyword {
		score += 35
	}
	if k.H1ContainsKeyword {
		score += 25
	}
	if k.MetaContainsKeyword {
		score += 20
	}
	switch d := k.KeywordDensity; {
	case d >= 1 && d <= 3:
		score += 20
	case d > 0:
		score += 10
	}
	return min(100, max(0, score))
}

// ContentAnalysisFor derives the secondary AEO scores from a crawl.
func ContentAnalysisFor(crawl *models.CrawlData) *models.ContentAnalysis {
	c := &models.ContentAnalysis{
		SchemaScore:      StructuredDataScore(crawl),
		BlufScore:        clampScore(BlufScore(crawl)),
		ReadabilityScore: clampScore(crawl.ContentStats.ReadabilityScore),
	}
	c.OverallScore = int(math.Round(float64(c.SchemaScore+c.BlufScore+c.ReadabilityScore) / 3))
	return c
}

func clampScore(v float64) int {
	return int(math.Round(models.Clamp(v, 0, 100)))
}
