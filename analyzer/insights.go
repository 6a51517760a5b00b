package analyzer

import (
	"fmt"

	"github.com/aeo-scorer/backend/models"
)

// rankBands map a minimum score to a predicted position in AI answers.
var rankBands = []struct {
	min  int
	rank int
}{
	{90, 1},
	{80, 3},
	{70, 5},
	{60, 10},
	{45, 20},
}

const worstRank = 50

// PredictedRank maps an overall score to a fixed rank band.
func PredictedRank(score int) int {
	for _, b := range rankBands {
		if score >= b.min {
			return b.rank
		}
	}
	return worstRank
}

// Category labels an overall score.
func Category(score int) string {
	switch {
	case score >= 80:
		return "Excellent"
	case score >= 60:
		return "Good"
	case score >= 40:
		return "Fair"
	default:
		return "Poor"
	}
}

var metricLabels = [5]string{
	"content clarity",
	"semantic richness",
	"structured data",
	"natural language",
	"keyword relevance",
}

// Insights assembles summary text from the score band and the strongest and
// weakest metrics. Ties resolve to the first metric in Values order.
func Insights(website string, metrics models.Metrics, score int) string {
	values := metrics.Values()
	best, worst := 0, 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
		if v < values[worst] {
			worst = i
		}
	}

	var band string
	switch Category(score) {
	case "Excellent":
		band = "is highly discoverable by AI assistants and is likely to be cited for its core topics"
	case "Good":
		band = "is reasonably discoverable by AI assistants, with clear room to improve"
	case "Fair":
		band = "is only occasionally surfaced by AI assistants"
	default:
		band = "is rarely surfaced by AI assistants in its current form"
	}

	return fmt.Sprintf("%s %s (score %d/100). Strongest area: %s (%d). Biggest opportunity: %s (%d).",
		website, band, score,
		metricLabels[best], values[best],
		metricLabels[worst], values[worst])
}
