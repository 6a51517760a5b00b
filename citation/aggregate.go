package citation

import (
	"fmt"
	"strings"

	"github.com/aeo-scorer/backend/models"
)

// TopCompetitorCount is how many competitors the study recommendation names.
const TopCompetitorCount = 3

// Summary is the reduction of a set of citation results.
type Summary struct {
	OverallCitationRate float64
	Competitors         []models.CompetitorCount
	UncitedPrompts      []models.Prompt
	Recommendations     []models.Recommendation
}

// Aggregate reduces citation results into a citation rate, the competitor
// table and AEO recommendations. content may be nil when the site could not
// be crawled.
func Aggregate(results []models.CitationResult, content *models.ContentAnalysis, prompts []models.Prompt) Summary {
	s := Summary{
		OverallCitationRate: models.CitationRate(results),
		Competitors:         models.RankCompetitors(results),
		UncitedPrompts:      uncitedPrompts(results, prompts),
	}

	in := aeoInput{
		rate:        s.OverallCitationRate,
		results:     len(results),
		competitors: s.Competitors,
		uncited:     s.UncitedPrompts,
		content:     content,
	}
	var recs []models.Recommendation
	for _, rule := range aeoRules {
		if rec, ok := rule(in); ok {
			recs = append(recs, rec)
		}
	}
	s.Recommendations = models.RankRecommendations(recs)
	return s
}

// uncitedPrompts returns, in prompt order, the prompts no provider cited.
func uncitedPrompts(results []models.CitationResult, prompts []models.Prompt) []models.Prompt {
	cited := make(map[string]bool)
	for _, r := range results {
		if r.IsCited {
			cited[r.PromptID] = true
		}
	}
	out := []models.Prompt{}
	for _, p := range prompts {
		if !cited[p.ID] {
			out = append(out, p)
		}
	}
	return out
}

type aeoInput struct {
	rate        float64
	results     int
	competitors []models.CompetitorCount
	uncited     []models.Prompt
	content     *models.ContentAnalysis
}

func (in aeoInput) uncitedTexts() []string {
	texts := make([]string, 0, len(in.uncited))
	for _, p := range in.uncited {
		texts = append(texts, p.Text)
	}
	return texts
}

type aeoRule func(aeoInput) (models.Recommendation, bool)

// aeoRules run in order; ties after ranking keep this order.
var aeoRules = []aeoRule{
	lowCitationRate,
	moderateCitationRate,
	aeoStructuredData,
	aeoAnswerFirst,
	uncitedCoverage,
	studyCompetitors,
	aeoReadability,
	crawlUnavailable,
	maintainLeadership,
}

func lowCitationRate(in aeoInput) (models.Recommendation, bool) {
	if in.results == 0 || in.rate >= 20 {
		return models.Recommendation{}, false
	}
	return models.Recommendation{
		ID:             "aeo-low-citation-rate",
		Title:          "Become a citable source for your core questions",
		Description:    fmt.Sprintf("AI assistants cited your site in only %.0f%% of answers. Publish authoritative pages that answer these questions directly and link them from your navigation.", in.rate),
		Priority:       models.PriorityHigh,
		Difficulty:     models.DifficultyHard,
		EstimatedTime:  "2-4 weeks",
		ExpectedImpact: 30,
		RelatedPrompts: in.uncitedTexts(),
	}, true
}

func moderateCitationRate(in aeoInput) (models.Recommendation, bool) {
	if in.rate < 20 || in.rate >= 50 {
		return models.Recommendation{}, false
	}
	return models.Recommendation{
		ID:             "aeo-moderate-citation-rate",
		Title:          "Broaden citation coverage",
		Description:    fmt.Sprintf("Your site appears in %.0f%% of AI answers. Expand existing pages with concrete facts, figures and comparisons that assistants can quote.", in.rate),
		Priority:       models.PriorityMedium,
		Difficulty:     models.DifficultyMedium,
		EstimatedTime:  "1-2 weeks",
		ExpectedImpact: 20,
		RelatedPrompts: in.uncitedTexts(),
	}, true
}

func aeoStructuredData(in aeoInput) (models.Recommendation, bool) {
	if in.content == nil || in.content.SchemaScore >= 50 {
		return models.Recommendation{}, false
	}
	return models.Recommendation{
		ID:             "aeo-structured-data",
		Title:          "Add FAQ and organization schema",
		Description:    "Structured data helps answer engines verify who you are and what you answer. Add FAQPage, Organization and Article JSON-LD to key pages.",
		Priority:       models.PriorityHigh,
		Difficulty:     models.DifficultyMedium,
		EstimatedTime:  "2-3 hours",
		ExpectedImpact: 25,
	}, true
}

func aeoAnswerFirst(in aeoInput) (models.Recommendation, bool) {
	if in.content == nil || in.content.BlufScore >= 50 {
		return models.Recommendation{}, false
	}
	return models.Recommendation{
		ID:             "aeo-answer-first",
		Title:          "Lead every section with the answer",
		Description:    "Few headings are followed by a direct answer. Open each section with a one or two sentence answer before adding detail.",
		Priority:       models.PriorityHigh,
		Difficulty:     models.DifficultyEasy,
		EstimatedTime:  "1-2 hours per page",
		ExpectedImpact: 20,
	}, true
}

func uncitedCoverage(in aeoInput) (models.Recommendation, bool) {
	if len(in.uncited) == 0 || in.results == 0 {
		return models.Recommendation{}, false
	}
	return models.Recommendation{
		ID:             "aeo-uncited-prompts",
		Title:          "Create content for questions where you are never cited",
		Description:    fmt.Sprintf("No provider cited you for %d of the checked questions. Write a dedicated answer for each one.", len(in.uncited)),
		Priority:       models.PriorityMedium,
		Difficulty:     models.DifficultyMedium,
		EstimatedTime:  "1 week",
		ExpectedImpact: 18,
		RelatedPrompts: in.uncitedTexts(),
	}, true
}

func studyCompetitors(in aeoInput) (models.Recommendation, bool) {
	if len(in.competitors) == 0 {
		return models.Recommendation{}, false
	}
	top := in.competitors
	if len(top) > TopCompetitorCount {
		top = top[:TopCompetitorCount]
	}
	names := make([]string, 0, len(top))
	for _, c := range top {
		names = append(names, fmt.Sprintf("%s (%d)", c.Domain, c.Count))
	}
	return models.Recommendation{
		ID:             "aeo-study-competitors",
		Title:          "Study the sites AI assistants cite instead",
		Description:    "The most cited competitors were " + strings.Join(names, ", ") + ". Review how their pages structure answers, evidence and schema.",
		Priority:       models.PriorityMedium,
		Difficulty:     models.DifficultyEasy,
		EstimatedTime:  "2-3 hours",
		ExpectedImpact: 15,
	}, true
}

func aeoReadability(in aeoInput) (models.Recommendation, bool) {
	if in.content == nil || in.content.ReadabilityScore >= 60 {
		return models.Recommendation{}, false
	}
	return models.Recommendation{
		ID:             "aeo-readability",
		Title:          "Simplify your writing",
		Description:    "Shorter sentences and plain words are easier for assistants to quote accurately.",
		Priority:       models.PriorityMedium,
		Difficulty:     models.DifficultyMedium,
		EstimatedTime:  "3-5 hours",
		ExpectedImpact: 10,
	}, true
}

func crawlUnavailable(in aeoInput) (models.Recommendation, bool) {
	if in.content != nil {
		return models.Recommendation{}, false
	}
	return models.Recommendation{
		ID:             "aeo-crawlability",
		Title:          "Make your site crawlable",
		Description:    "Your site could not be crawled for content analysis. Check robots rules, server errors and client-side rendering.",
		Priority:       models.PriorityLow,
		Difficulty:     models.DifficultyMedium,
		EstimatedTime:  "1-2 hours",
		ExpectedImpact: 8,
	}, true
}

func maintainLeadership(in aeoInput) (models.Recommendation, bool) {
	if in.rate < 50 {
		return models.Recommendation{}, false
	}
	return models.Recommendation{
		ID:             "aeo-maintain",
		Title:          "Keep cited pages fresh",
		Description:    "You are cited in most answers. Review cited pages quarterly so facts and dates stay current.",
		Priority:       models.PriorityLow,
		Difficulty:     models.DifficultyEasy,
		EstimatedTime:  "1 hour per month",
		ExpectedImpact: 5,
	}, true
}
