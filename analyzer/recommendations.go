package analyzer

import (
	"fmt"
	"strings"

	"github.com/aeo-scorer/backend/models"
)

const (
	thinContentWords   = 300
	lowReadability     = 50
	wordsPerSubheading = 300
	minFAQQuestions    = 2
)

var questionWords = []string{
	"what", "why", "how", "when", "where", "who", "which",
	"can", "does", "do", "is", "are", "should", "will",
}

// ruleInput is the evidence every rule sees.
type ruleInput struct {
	crawl   *models.CrawlData
	metrics models.Metrics
}

// rule emits at most one recommendation.
type rule func(ruleInput) (models.Recommendation, bool)

// rules are evaluated in order; equal priority and impact keep this order.
var rules = []rule{
	schemaMissing,
	faqOpportunity,
	answerFirst,
	titleKeyword,
	metaKeyword,
	mobileViewport,
	thinContent,
	lowReadabilityRule,
	h1Structure,
	sparseSubheadings,
	openGraph,
	httpsMissing,
	canonicalMissing,
}

// ComputeRecommendations evaluates every rule against the crawl and returns
// the ranked list. The output depends only on its inputs.
func ComputeRecommendations(crawl *models.CrawlData, metrics models.Metrics) []models.Recommendation {
	in := ruleInput{crawl: crawl, metrics: metrics}
	var recs []models.Recommendation
	for _, r := range rules {
		if rec, ok := r(in); ok {
			recs = append(recs, rec)
		}
	}
	return models.RankRecommendations(recs)
}

func schemaMissing(in ruleInput) (models.Recommendation, bool) {
	if len(in.crawl.SchemaMarkup) == 0 {
		return models.Recommendation{
			ID:             "add-structured-data",
			Title:          "Add structured data markup",
			Description:    "No schema.org markup was found. Add JSON-LD for your organization and main content types so AI systems can verify and quote your pages.",
			Priority:       models.PriorityHigh,
			Difficulty:     models.DifficultyMedium,
			EstimatedTime:  "2-4 hours",
			ExpectedImpact: 25,
		}, true
	}
	for _, s := range in.crawl.SchemaMarkup {
		if highValueSchema[strings.ToLower(s.Type)] {
			return models.Recommendation{}, false
		}
	}
	return models.Recommendation{
		ID:             "upgrade-structured-data",
		Title:          "Use high-value schema types",
		Description:    "Your markup uses only generic types. Add FAQPage, HowTo, Article, Product or Organization where they fit your content.",
		Priority:       models.PriorityMedium,
		Difficulty:     models.DifficultyMedium,
		EstimatedTime:  "1-2 hours",
		ExpectedImpact: 15,
	}, true
}

func isQuestion(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	if strings.HasSuffix(t, "?") {
		return true
	}
	first, _, _ := strings.Cut(t, " ")
	for _, w := range questionWords {
		if first == w {
			return true
		}
	}
	return false
}

func faqOpportunity(in ruleInput) (models.Recommendation, bool) {
	if in.crawl.HasSchema("FAQPage") {
		return models.Recommendation{}, false
	}
	questions := 0
	for _, h := range in.crawl.Headings {
		if isQuestion(h.Text) {
			questions++
		}
	}
	if questions < minFAQQuestions {
		return models.Recommendation{}, false
	}
	return models.Recommendation{
		ID:             "add-faq-schema",
		Title:          "Mark up your questions as an FAQ",
		Description:    fmt.Sprintf("%d headings are phrased as questions. Wrap them and their answers in FAQPage schema so answer engines can lift them directly.", questions),
		Priority:       models.PriorityHigh,
		Difficulty:     models.DifficultyEasy,
		EstimatedTime:  "1 hour",
		ExpectedImpact: 20,
	}, true
}

func answerFirst(in ruleInput) (models.Recommendation, bool) {
	if len(in.crawl.Headings) == 0 || BlufScore(in.crawl) >= 50 {
		return models.Recommendation{}, false
	}
	return models.Recommendation{
		ID:             "answer-first",
		Title:          "Put the answer first",
		Description:    "Most sections do not open with a direct answer. Start each section with a short sentence that answers its heading, then elaborate.",
		Priority:       models.PriorityHigh,
		Difficulty:     models.DifficultyEasy,
		EstimatedTime:  "30 minutes per page",
		ExpectedImpact: 18,
	}, true
}

func titleKeyword(in ruleInput) (models.Recommendation, bool) {
	if in.crawl.KeywordAnalysis.TitleContainsKeyword {
		return models.Recommendation{}, false
	}
	return models.Recommendation{
		ID:             "title-keyword",
		Title:          "Include your main keyword in the title",
		Description:    "The page title does not mention any target keyword. Lead the title with the topic you want to be cited for.",
		Priority:       models.PriorityHigh,
		Difficulty:     models.DifficultyEasy,
		EstimatedTime:  "10 minutes",
		ExpectedImpact: 15,
	}, true
}

func metaKeyword(in ruleInput) (models.Recommendation, bool) {
	if in.crawl.KeywordAnalysis.MetaContainsKeyword {
		return models.Recommendation{}, false
	}
	desc := "The meta description does not mention any target keyword. Summarize the page in one sentence that includes it."
	if strings.TrimSpace(in.crawl.MetaDescription) == "" {
		desc = "The page has no meta description. Add a one-sentence summary that includes your target keyword."
	}
	return models.Recommendation{
		ID:             "meta-keyword",
		Title:          "Improve the meta description",
		Description:    desc,
		Priority:       models.PriorityMedium,
		Difficulty:     models.DifficultyEasy,
		EstimatedTime:  "15 minutes",
		ExpectedImpact: 10,
	}, true
}

func mobileViewport(in ruleInput) (models.Recommendation, bool) {
	if in.crawl.TechnicalSignals.MobileViewport {
		return models.Recommendation{}, false
	}
	return models.Recommendation{
		ID:             "mobile-viewport",
		Title:          "Add a mobile viewport",
		Description:    `Add <meta name="viewport" content="width=device-width, initial-scale=1"> so the page renders correctly on mobile devices.`,
		Priority:       models.PriorityHigh,
		Difficulty:     models.DifficultyEasy,
		EstimatedTime:  "5 minutes",
		ExpectedImpact: 12,
	}, true
}

func thinContent(in ruleInput) (models.Recommendation, bool) {
	avg := in.crawl.ContentStats.WordCount / in.crawl.PageCount()
	if avg >= thinContentWords {
		return models.Recommendation{}, false
	}
	return models.Recommendation{
		ID:             "thin-content",
		Title:          "Expand thin content",
		Description:    fmt.Sprintf("Pages average %d words. Aim for at least 500 words of substantive, specific content on key pages.", avg),
		Priority:       models.PriorityMedium,
		Difficulty:     models.DifficultyHard,
		EstimatedTime:  "3-6 hours",
		ExpectedImpact: 15,
	}, true
}

func lowReadabilityRule(in ruleInput) (models.Recommendation, bool) {
	if in.crawl.ContentStats.WordCount == 0 || in.crawl.ContentStats.ReadabilityScore >= lowReadability {
		return models.Recommendation{}, false
	}
	return models.Recommendation{
		ID:             "improve-readability",
		Title:          "Make the text easier to read",
		Description:    fmt.Sprintf("Reading ease is %.0f. Use shorter sentences, plain words and lists for steps.", in.crawl.ContentStats.ReadabilityScore),
		Priority:       models.PriorityMedium,
		Difficulty:     models.DifficultyMedium,
		EstimatedTime:  "2-4 hours",
		ExpectedImpact: 12,
	}, true
}

func h1Structure(in ruleInput) (models.Recommendation, bool) {
	switch n := in.crawl.H1Count(); {
	case n == 0:
		return models.Recommendation{
			ID:             "missing-h1",
			Title:          "Add an H1 heading",
			Description:    "The page has no H1. Add one heading that states the page topic.",
			Priority:       models.PriorityHigh,
			Difficulty:     models.DifficultyEasy,
			EstimatedTime:  "10 minutes",
			ExpectedImpact: 10,
		}, true
	case n > in.crawl.PageCount():
		return models.Recommendation{
			ID:             "duplicate-h1",
			Title:          "Use a single H1 per page",
			Description:    fmt.Sprintf("Found %d H1 headings across %d pages. Keep one H1 per page and demote the rest.", n, in.crawl.PageCount()),
			Priority:       models.PriorityLow,
			Difficulty:     models.DifficultyEasy,
			EstimatedTime:  "15 minutes",
			ExpectedImpact: 5,
		}, true
	}
	return models.Recommendation{}, false
}

func sparseSubheadings(in ruleInput) (models.Recommendation, bool) {
	words := in.crawl.ContentStats.WordCount
	if words < wordsPerSubheading {
		return models.Recommendation{}, false
	}
	sub := 0
	for _, h := range in.crawl.Headings {
		if h.Level >= 2 {
			sub++
		}
	}
	if sub >= words/wordsPerSubheading {
		return models.Recommendation{}, false
	}
	return models.Recommendation{
		ID:             "add-subheadings",
		Title:          "Break content into sections",
		Description:    fmt.Sprintf("%d words are organized under only %d subheadings. Add an H2 or H3 every few paragraphs.", words, sub),
		Priority:       models.PriorityMedium,
		Difficulty:     models.DifficultyEasy,
		EstimatedTime:  "1 hour",
		ExpectedImpact: 8,
	}, true
}

func openGraph(in ruleInput) (models.Recommendation, bool) {
	if in.crawl.TechnicalSignals.HasOpenGraph {
		return models.Recommendation{}, false
	}
	return models.Recommendation{
		ID:             "open-graph",
		Title:          "Add Open Graph tags",
		Description:    "Add og:title, og:description and og:image so shared links and AI previews show accurate summaries.",
		Priority:       models.PriorityLow,
		Difficulty:     models.DifficultyEasy,
		EstimatedTime:  "20 minutes",
		ExpectedImpact: 6,
	}, true
}

func httpsMissing(in ruleInput) (models.Recommendation, bool) {
	if in.crawl.TechnicalSignals.HasHTTPS {
		return models.Recommendation{}, false
	}
	return models.Recommendation{
		ID:             "enable-https",
		Title:          "Serve the site over HTTPS",
		Description:    "The site is served without TLS. Sources without HTTPS are less likely to be trusted or cited.",
		Priority:       models.PriorityHigh,
		Difficulty:     models.DifficultyMedium,
		EstimatedTime:  "1-2 hours",
		ExpectedImpact: 10,
	}, true
}

func canonicalMissing(in ruleInput) (models.Recommendation, bool) {
	if in.crawl.TechnicalSignals.HasCanonical {
		return models.Recommendation{}, false
	}
	return models.Recommendation{
		ID:             "canonical-url",
		Title:          "Declare a canonical URL",
		Description:    `Add <link rel="canonical"> so duplicate URLs consolidate to one citable page.`,
		Priority:       models.PriorityLow,
		Difficulty:     models.DifficultyEasy,
		EstimatedTime:  "10 minutes",
		ExpectedImpact: 4,
	}, true
}
