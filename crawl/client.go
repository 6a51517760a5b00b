package crawl

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aeo-scorer/backend/functions"
	"github.com/aeo-scorer/backend/models"
)

// ErrCrawlFailed is returned when the crawl collaborator reports a failure.
var ErrCrawlFailed = errors.New("crawl failed")

// Client returns structured page content for a website.
type Client interface {
	Crawl(ctx context.Context, url string, keywords []string) (*models.CrawlData, error)
}

const crawlFunction = "crawl-website"

type crawlRequest struct {
	URL      string   `json:"url"`
	Keywords []string `json:"keywords"`
}

type crawlResponse struct {
	Success bool              `json:"success"`
	Data    *models.CrawlData `json:"data"`
	Error   string            `json:"error"`
}

// RemoteClient calls the crawl service through a remote function.
type RemoteClient struct {
	invoker functions.Invoker
}

func NewRemoteClient(invoker functions.Invoker) *RemoteClient {
	return &RemoteClient{invoker: invoker}
}

func (c *RemoteClient) Crawl(ctx context.Context, url string, keywords []string) (*models.CrawlData, error) {
	if keywords == nil {
		keywords = []string{}
	}
	var resp crawlResponse
	if err := c.invoker.Invoke(ctx, crawlFunction, crawlRequest{URL: url, Keywords: keywords}, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrawlFailed, err)
	}
	if !resp.Success {
		msg := strings.TrimSpace(resp.Error)
		if msg == "" {
			msg = "crawl service reported failure"
		}
		return nil, fmt.Errorf("%w: %s", ErrCrawlFailed, msg)
	}
	if resp.Data == nil {
		return nil, fmt.Errorf("%w: crawl response has no data", models.ErrInvalidPayload)
	}
	if err := resp.Data.Normalize(); err != nil {
		return nil, err
	}
	return resp.Data, nil
}
