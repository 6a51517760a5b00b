package analyzer

import (
	"errors"
	"math"
	"strings"

	"github.com/aeo-scorer/backend/models"
)

var (
	// ErrInvalidRequest reports a request that cannot be analyzed.
	ErrInvalidRequest = errors.New("invalid analysis request")
	// ErrCitationCheck wraps a failed citation check in the AEO path.
	ErrCitationCheck = errors.New("citation check failed")
)

// AEORequest is one answer-engine analysis request.
type AEORequest struct {
	Website   string
	Prompts   []models.Prompt
	BrandName string
	Identity  models.Identity
	Providers []string
}

// PlanLookup resolves an identity's plan name.
type PlanLookup interface {
	Lookup(name string) models.Plan
}

// ModelInfo describes a model an analysis can be billed against.
type ModelInfo struct {
	Key           string              `json:"key"`
	Name          string              `json:"name"`
	Provider      models.ProviderName `json:"provider"`
	PricePer1K    float64             `json:"pricePer1K"`
	ContextTokens int                 `json:"contextTokens"`
}

// DefaultModel is used when no or an unknown model key is requested.
const DefaultModel = "gpt-4o-mini"

var modelRegistry = map[string]ModelInfo{
	"gpt-4o-mini":      {Key: "gpt-4o-mini", Name: "GPT-4o mini", Provider: models.ProviderOpenAI, PricePer1K: 0.00015, ContextTokens: 128000},
	"gpt-4o":           {Key: "gpt-4o", Name: "GPT-4o", Provider: models.ProviderOpenAI, PricePer1K: 0.0025, ContextTokens: 128000},
	"claude-3-5-haiku": {Key: "claude-3-5-haiku", Name: "Claude 3.5 Haiku", Provider: models.ProviderAnthropic, PricePer1K: 0.0008, ContextTokens: 200000},
	"claude-sonnet-4":  {Key: "claude-sonnet-4", Name: "Claude Sonnet 4", Provider: models.ProviderAnthropic, PricePer1K: 0.003, ContextTokens: 200000},
	"sonar":            {Key: "sonar", Name: "Perplexity Sonar", Provider: models.ProviderPerplexity, PricePer1K: 0.001, ContextTokens: 127000},
	"local":            {Key: "local", Name: "Local model", Provider: models.ProviderLocal, PricePer1K: 0, ContextTokens: 32000},
}

// LookupModel resolves a model key case-insensitively.
func LookupModel(key string) (ModelInfo, bool) {
	m, ok := modelRegistry[strings.ToLower(strings.TrimSpace(key))]
	return m, ok
}

const (
	promptOverheadTokens = 500
	tokensPerWord        = 4.0 / 3.0
)

// estimateCost approximates the tokens a real analysis of wordCount words
// sends to the model, bounded by its context budget.
func (m ModelInfo) estimateCost(wordCount int) models.CostInfo {
	tokens := promptOverheadTokens + int(math.Ceil(float64(wordCount)*tokensPerWord))
	if m.ContextTokens > 0 {
		tokens = min(tokens, m.ContextTokens)
	}
	return models.CostInfo{
		Model:         m.Key,
		TokensUsed:    tokens,
		EstimatedCost: float64(tokens) / 1000 * m.PricePer1K,
	}
}
