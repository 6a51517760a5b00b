package analyzer

import (
	"math/rand/v2"
	"sync"

	"github.com/aeo-scorer/backend/models"
)

// RandSource is the randomness used by simulated analyses. *rand.Rand
// satisfies it.
type RandSource interface {
	IntN(n int) int
}

// lockedRand serializes a RandSource shared across requests.
type lockedRand struct {
	mu  sync.Mutex
	src RandSource
}

func (r *lockedRand) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.src.IntN(n)
}

func newDefaultRand() RandSource {
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

const (
	simBaseMin    = 45
	simBaseSpread = 41 // base score in [45,85]
	simVariance   = 15 // per-metric offset in [-15,15]
)

// simulateMetrics synthesizes representative metrics without any network call.
func simulateMetrics(r RandSource) models.Metrics {
	base := simBaseMin + r.IntN(simBaseSpread)
	metric := func() int {
		return min(100, max(0, base+r.IntN(2*simVariance+1)-simVariance))
	}
	return models.Metrics{
		ContentClarity:   metric(),
		SemanticRichness: metric(),
		StructuredData:   metric(),
		NaturalLanguage:  metric(),
		KeywordRelevance: metric(),
	}
}

// simulatedThreshold is the metric value below which its template applies.
const simulatedThreshold = 70

var simulatedTemplates = [5]models.Recommendation{
	{
		ID:             "sim-content-clarity",
		Title:          "Lead sections with direct answers",
		Description:    "Open each section with a concise answer to its heading before adding detail.",
		Priority:       models.PriorityHigh,
		Difficulty:     models.DifficultyEasy,
		EstimatedTime:  "1-2 hours",
		ExpectedImpact: 18,
	},
	{
		ID:             "sim-semantic-richness",
		Title:          "Deepen topical coverage",
		Description:    "Expand key pages with specific facts, examples and related subtopics.",
		Priority:       models.PriorityMedium,
		Difficulty:     models.DifficultyHard,
		EstimatedTime:  "3-6 hours",
		ExpectedImpact: 15,
	},
	{
		ID:             "sim-structured-data",
		Title:          "Add structured data markup",
		Description:    "Add FAQPage and Organization JSON-LD so AI systems can verify your content.",
		Priority:       models.PriorityHigh,
		Difficulty:     models.DifficultyMedium,
		EstimatedTime:  "2-4 hours",
		ExpectedImpact: 25,
	},
	{
		ID:             "sim-natural-language",
		Title:          "Write in a conversational tone",
		Description:    "Use shorter sentences and phrase headings the way people ask questions.",
		Priority:       models.PriorityMedium,
		Difficulty:     models.DifficultyMedium,
		EstimatedTime:  "2-3 hours",
		ExpectedImpact: 12,
	},
	{
		ID:             "sim-keyword-relevance",
		Title:          "Align titles with target keywords",
		Description:    "Mention your main keyword in the title, H1 and meta description.",
		Priority:       models.PriorityHigh,
		Difficulty:     models.DifficultyEasy,
		EstimatedTime:  "30 minutes",
		ExpectedImpact: 15,
	},
}

// simulatedRecommendations picks templates for the weaker metrics.
func simulatedRecommendations(m models.Metrics) []models.Recommendation {
	var recs []models.Recommendation
	for i, v := range m.Values() {
		if v < simulatedThreshold {
			recs = append(recs, simulatedTemplates[i])
		}
	}
	if len(recs) == 0 {
		recs = append(recs, simulatedTemplates[2])
	}
	return models.RankRecommendations(recs)
}
