package citation

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/aeo-scorer/backend/models"
)

const (
	defaultWorkers = 4
	contextRadius  = 80
	charsPerToken  = 4
)

// domainRe matches bare or linked host names such as example.com or
// https://www.shop.example.co.uk/path.
var domainRe = regexp.MustCompile(`(?i)\b(?:https?://)?((?:[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z]{2,24})\b`)

// Suffixes that look like domains in prose but are file names or tools.
var notDomains = map[string]bool{
	"js": true, "ts": true, "py": true, "md": true, "txt": true,
	"html": true, "php": true, "json": true, "yaml": true, "exe": true,
}

// Checker queries AI providers directly.
type Checker struct {
	providers map[models.ProviderName]Provider
	workers   int
	log       *zap.Logger
}

func NewChecker(log *zap.Logger, providers ...Provider) *Checker {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Checker{
		providers: make(map[models.ProviderName]Provider, len(providers)),
		workers:   defaultWorkers,
		log:       log,
	}
	for _, p := range providers {
		c.providers[p.Name] = p
	}
	return c
}

// Available lists the configured providers in canonical order.
func (c *Checker) Available() []models.ProviderName {
	var out []models.ProviderName
	for _, name := range models.Providers {
		if _, ok := c.providers[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

type pair struct {
	prompt   models.Prompt
	provider Provider
}

func (c *Checker) Check(ctx context.Context, req Request) (*Response, error) {
	var pairs []pair
	for _, prompt := range req.Prompts {
		for _, name := range req.Providers {
			p, ok := c.providers[name]
			if !ok {
				continue
			}
			pairs = append(pairs, pair{prompt: prompt, provider: p})
		}
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("%w: no configured provider among %v", ErrCheckFailed, req.Providers)
	}

	subject := newSubject(req.Website, req.BrandName)
	results := make([]*models.CitationResult, len(pairs))
	errs := make([]error, len(pairs))
	sem := make(chan struct{}, c.workers)
	var wg sync.WaitGroup
	for i, pr := range pairs {
		wg.Add(1)
		go func(i int, pr pair) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				errs[i] = ctx.Err()
				return
			}
			defer func() { <-sem }()

			text, err := pr.provider.Completer.Complete(ctx, pr.prompt.Text)
			if err != nil {
				errs[i] = err
				c.log.Warn("citation provider failed",
					zap.String("provider", string(pr.provider.Name)),
					zap.String("prompt_id", pr.prompt.ID),
					zap.Error(err))
				return
			}
			r := subject.evaluate(pr.prompt, pr.provider.Name, text)
			r.TokensUsed = estimateTokens(pr.prompt.Text) + estimateTokens(text)
			r.Cost = float64(r.TokensUsed) / 1000 * pr.provider.PricePer1K
			results[i] = &r
		}(i, pr)
	}
	wg.Wait()

	resp := &Response{Results: make([]models.CitationResult, 0, len(pairs))}
	for _, r := range results {
		if r == nil {
			continue
		}
		resp.Results = append(resp.Results, *r)
		resp.TotalCost += r.Cost
	}
	if len(resp.Results) == 0 {
		return nil, fmt.Errorf("%w: all %d provider calls failed: %v", ErrCheckFailed, len(pairs), firstError(errs))
	}
	return resp, nil
}

func firstError(errs []error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func estimateTokens(s string) int {
	return (len(s) + charsPerToken - 1) / charsPerToken
}

// subject is the site being checked for citations.
type subject struct {
	domain string
	brand  *regexp.Regexp
}

func newSubject(website, brand string) subject {
	s := subject{domain: models.NormalizeDomain(website)}
	if brand = strings.TrimSpace(brand); brand != "" {
		s.brand = regexp.MustCompile(`(?i)` + wordBoundary(brand[0]) + regexp.QuoteMeta(brand) + wordBoundary(brand[len(brand)-1]))
	}
	return s
}

// wordBoundary anchors a brand edge only when that edge is a word character.
func wordBoundary(b byte) string {
	if b == '_' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' {
		return `\b`
	}
	return ""
}

// owns reports whether domain is the subject's domain or one of its subdomains.
func (s subject) owns(domain string) bool {
	return s.domain != "" && (domain == s.domain || strings.HasSuffix(domain, "."+s.domain))
}

func (s subject) evaluate(prompt models.Prompt, provider models.ProviderName, text string) models.CitationResult {
	r := models.CitationResult{
		PromptID:         prompt.ID,
		Prompt:           prompt.Text,
		Provider:         provider,
		Response:         text,
		CompetitorsCited: []models.CompetitorMention{},
	}

	citeAt, citeLen := -1, 0
	for _, m := range domainRe.FindAllStringSubmatchIndex(text, -1) {
		domain := models.NormalizeDomain(text[m[2]:m[3]])
		if domain == "" {
			continue
		}
		if s.owns(domain) {
			if citeAt < 0 {
				citeAt, citeLen = m[2], m[3]-m[2]
			}
			continue
		}
		if notDomains[domain[strings.LastIndexByte(domain, '.')+1:]] {
			continue
		}
		r.CompetitorsCited = append(r.CompetitorsCited, models.CompetitorMention{
			Domain:   domain,
			Context:  excerpt(text, m[2], m[3]-m[2]),
			Position: len(r.CompetitorsCited) + 1,
		})
	}
	if s.brand != nil {
		if loc := s.brand.FindStringIndex(text); loc != nil && (citeAt < 0 || loc[0] < citeAt) {
			citeAt, citeLen = loc[0], loc[1]-loc[0]
		}
	}
	if citeAt >= 0 {
		r.IsCited = true
		r.CitationContext = excerpt(text, citeAt, citeLen)
	}
	return r
}

// excerpt returns up to 2*contextRadius characters of text around
// text[at:at+n], aligned to rune boundaries.
func excerpt(text string, at, n int) string {
	at = min(max(0, at), len(text))
	start := max(0, at-contextRadius)
	end := min(len(text), at+n+contextRadius)
	for start > 0 && !isRuneStart(text[start]) {
		start--
	}
	for end < len(text) && !isRuneStart(text[end]) {
		end++
	}
	out := strings.TrimSpace(text[start:end])
	if r := []rune(out); len(r) > 2*contextRadius {
		out = string(r[:2*contextRadius])
	}
	return out
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
