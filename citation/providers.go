package citation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	anthropicclient "github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	openaiclient "github.com/openai/openai-go/v2"
	openaioption "github.com/openai/openai-go/v2/option"
	jetai "go.jetify.com/ai"
	jetapi "go.jetify.com/ai/api"
	jetanthropic "go.jetify.com/ai/provider/anthropic"
	jetopenai "go.jetify.com/ai/provider/openai"

	"github.com/aeo-scorer/backend/models"
)

const (
	systemPrompt    = "You are a helpful assistant. Answer the question directly and name the specific websites, products or companies you would recommend."
	maxOutputTokens = 500
	perplexityURL   = "https://api.perplexity.ai/"
)

// Completer answers a single prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, prompt string) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Provider is a named completer with its price per 1K tokens in USD.
type Provider struct {
	Name       models.ProviderName
	Completer  Completer
	PricePer1K float64
}

// Default prices per 1K tokens.
var prices = map[models.ProviderName]float64{
	models.ProviderOpenAI:     0.0006,
	models.ProviderAnthropic:  0.004,
	models.ProviderPerplexity: 0.001,
	models.ProviderLocal:      0,
}

// ProviderConfig holds credentials for the built-in providers. A provider
// without credentials is not registered.
type ProviderConfig struct {
	OpenAIKey      string
	OpenAIModel    string
	AnthropicKey   string
	AnthropicModel string
	PerplexityKey  string
	LocalURL       string
	LocalModel     string
}

// BuildProviders returns the providers that have credentials configured.
func BuildProviders(cfg ProviderConfig) []Provider {
	var out []Provider
	if key := strings.TrimSpace(cfg.OpenAIKey); key != "" {
		out = append(out, Provider{
			Name:       models.ProviderOpenAI,
			Completer:  newOpenAICompleter(key, orDefault(cfg.OpenAIModel, "gpt-4o-mini")),
			PricePer1K: prices[models.ProviderOpenAI],
		})
	}
	if key := strings.TrimSpace(cfg.AnthropicKey); key != "" {
		out = append(out, Provider{
			Name:       models.ProviderAnthropic,
			Completer:  newAnthropicCompleter(key, orDefault(cfg.AnthropicModel, "claude-3-5-haiku-latest")),
			PricePer1K: prices[models.ProviderAnthropic],
		})
	}
	if key := strings.TrimSpace(cfg.PerplexityKey); key != "" {
		out = append(out, Provider{
			Name:       models.ProviderPerplexity,
			Completer:  newChatCompleter(perplexityURL, key, "sonar"),
			PricePer1K: prices[models.ProviderPerplexity],
		})
	}
	if base := strings.TrimSpace(cfg.LocalURL); base != "" {
		out = append(out, Provider{
			Name:       models.ProviderLocal,
			Completer:  newChatCompleter(strings.TrimRight(base, "/")+"/", "local", orDefault(cfg.LocalModel, "llama3")),
			PricePer1K: prices[models.ProviderLocal],
		})
	}
	return out
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}

// languageModelCompleter runs prompts through a jetify language model.
type languageModelCompleter struct {
	model jetapi.LanguageModel
}

func newOpenAICompleter(apiKey, modelID string) *languageModelCompleter {
	client := openaiclient.NewClient(
		openaioption.WithAPIKey(apiKey),
		openaioption.WithMaxRetries(0),
	)
	return &languageModelCompleter{model: jetopenai.NewLanguageModel(modelID, jetopenai.WithClient(client))}
}

func newAnthropicCompleter(apiKey, modelID string) *languageModelCompleter {
	client := anthropicclient.NewClient(
		anthropicoption.WithAPIKey(apiKey),
		anthropicoption.WithMaxRetries(0),
	)
	return &languageModelCompleter{model: jetanthropic.NewLanguageModel(modelID, jetanthropic.WithClient(client))}
}

func (c *languageModelCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := jetai.GenerateText(
		ctx,
		[]jetapi.Message{
			&jetapi.SystemMessage{Content: systemPrompt},
			&jetapi.UserMessage{Content: jetapi.ContentFromText(prompt)},
		},
		jetai.WithModel(c.model),
		jetai.WithMaxOutputTokens(maxOutputTokens),
	)
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", errors.New("empty response from provider")
	}
	var full strings.Builder
	for _, block := range resp.Content {
		if text, ok := block.(*jetapi.TextBlock); ok {
			full.WriteString(text.Text)
		}
	}
	if strings.TrimSpace(full.String()) == "" {
		return "", errors.New("empty response from provider")
	}
	return full.String(), nil
}

// chatCompleter talks to OpenAI-compatible chat completion endpoints.
type chatCompleter struct {
	client openaiclient.Client
	model  string
}

func newChatCompleter(baseURL, apiKey, model string) *chatCompleter {
	return &chatCompleter{
		client: openaiclient.NewClient(
			openaioption.WithBaseURL(baseURL),
			openaioption.WithAPIKey(apiKey),
			openaioption.WithMaxRetries(0),
		),
		model: model,
	}
}

func (c *chatCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openaiclient.ChatCompletionNewParams{
		Model: openaiclient.ChatModel(c.model),
		Messages: []openaiclient.ChatCompletionMessageParamUnion{
			openaiclient.SystemMessage(systemPrompt),
			openaiclient.UserMessage(prompt),
		},
		MaxTokens: openaiclient.Int(maxOutputTokens),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("empty response from %s", c.model)
	}
	return resp.Choices[0].Message.Content, nil
}
