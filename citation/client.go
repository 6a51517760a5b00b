// Package citation asks AI providers about a set of prompts and reduces
// their answers to citation evidence.
package citation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aeo-scorer/backend/functions"
	"github.com/aeo-scorer/backend/models"
)

// ErrCheckFailed is returned when no citation evidence could be produced.
var ErrCheckFailed = errors.New("citation check failed")

// Request is one citation check across prompts and providers.
type Request struct {
	Prompts   []models.Prompt       `json:"prompts"`
	Website   string                `json:"website"`
	BrandName string                `json:"brandName,omitempty"`
	Providers []models.ProviderName `json:"providers"`
}

// Response carries one result per successful (prompt, provider) pair.
type Response struct {
	Results   []models.CitationResult
	TotalCost float64
}

// Client produces citation results for a request.
type Client interface {
	Check(ctx context.Context, req Request) (*Response, error)
}

const checkFunction = "check-citations"

type checkResponse struct {
	Success bool `json:"success"`
	Data    *struct {
		Results []models.CitationResult `json:"results"`
		Summary struct {
			TotalCost float64 `json:"totalCost"`
		} `json:"summary"`
	} `json:"data"`
	Error string `json:"error"`
}

// RemoteClient calls the citation service through a remote function.
type RemoteClient struct {
	invoker functions.Invoker
}

func NewRemoteClient(invoker functions.Invoker) *RemoteClient {
	return &RemoteClient{invoker: invoker}
}

func (c *RemoteClient) Check(ctx context.Context, req Request) (*Response, error) {
	var resp checkResponse
	if err := c.invoker.Invoke(ctx, checkFunction, req, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCheckFailed, err)
	}
	if !resp.Success {
		msg := strings.TrimSpace(resp.Error)
		if msg == "" {
			msg = "citation service reported failure"
		}
		return nil, fmt.Errorf("%w: %s", ErrCheckFailed, msg)
	}
	if resp.Data == nil {
		return nil, fmt.Errorf("%w: citation response has no data", models.ErrInvalidPayload)
	}

	results := make([]models.CitationResult, 0, len(resp.Data.Results))
	for _, r := range resp.Data.Results {
		if r.PromptID == "" || r.Provider == "" {
			continue
		}
		r.TokensUsed = max(0, r.TokensUsed)
		r.Cost = max(0, r.Cost)
		if r.CompetitorsCited == nil {
			r.CompetitorsCited = []models.CompetitorMention{}
		}
		results = append(results, r)
	}
	return &Response{Results: results, TotalCost: max(0, resp.Data.Summary.TotalCost)}, nil
}
