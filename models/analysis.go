package models

import (
	"math"
	"slices"
	"time"
)

// Metrics holds the five quality scores, each bounded to [0,100].
type Metrics struct {
	ContentClarity   int `json:"contentClarity"`
	SemanticRichness int `json:"semanticRichness"`
	StructuredData   int `json:"structuredData"`
	NaturalLanguage  int `json:"naturalLanguage"`
	KeywordRelevance int `json:"keywordRelevance"`
}

// Values returns the scores in a fixed order.
func (m Metrics) Values() [5]int {
	return [5]int{m.ContentClarity, m.SemanticRichness, m.StructuredData, m.NaturalLanguage, m.KeywordRelevance}
}

// Score is the rounded unweighted mean of the five scores.
func (m Metrics) Score() int {
	sum := 0
	for _, v := range m.Values() {
		sum += v
	}
	return int(math.Round(float64(sum) / 5))
}

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func (p Priority) rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// MaxRecommendations caps every recommendation list.
const MaxRecommendations = 6

type Recommendation struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Priority       Priority   `json:"priority"`
	Difficulty     Difficulty `json:"difficulty"`
	EstimatedTime  string     `json:"estimatedTime"`
	ExpectedImpact int        `json:"expectedImpact"`
	RelatedPrompts []string   `json:"relatedPrompts,omitempty"`
}

// RankRecommendations sorts by priority then descending impact, keeping
// generation order for ties, and truncates to MaxRecommendations.
func RankRecommendations(recs []Recommendation) []Recommendation {
	out := slices.Clone(recs)
	slices.SortStableFunc(out, func(a, b Recommendation) int {
		if d := a.Priority.rank() - b.Priority.rank(); d != 0 {
			return d
		}
		return b.ExpectedImpact - a.ExpectedImpact
	})
	if len(out) > MaxRecommendations {
		out = out[:MaxRecommendations]
	}
	if out == nil {
		out = []Recommendation{}
	}
	return out
}

// CostInfo describes the model usage accrued by one analysis.
type CostInfo struct {
	Model         string  `json:"model"`
	TokensUsed    int     `json:"tokensUsed"`
	EstimatedCost float64 `json:"estimatedCost"`
}

// Analysis is the immutable result of one website analysis.
type Analysis struct {
	ID              string           `json:"id"`
	UserID          string           `json:"userId"`
	Website         string           `json:"website"`
	Keywords        []string         `json:"keywords"`
	Metrics         Metrics          `json:"metrics"`
	Score           int              `json:"score"`
	Insights        string           `json:"insights"`
	PredictedRank   int              `json:"predictedRank"`
	Category        string           `json:"category"`
	Recommendations []Recommendation `json:"recommendations"`
	IsSimulated     bool             `json:"isSimulated"`
	CostInfo        CostInfo         `json:"costInfo"`
	CreatedAt       time.Time        `json:"createdAt"`
}
