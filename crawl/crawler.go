package crawl

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aeo-scorer/backend/models"
)

const (
	defaultMaxPages = 5
	maxBodySize     = 5 << 20
	subpageWorkers  = 4
	userAgent       = "AEOScorer/1.0"
)

// Crawler fetches a site's landing page and up to maxPages-1 same-host
// pages linked from it, and aggregates them into one CrawlData.
type Crawler struct {
	client   *http.Client
	maxPages int
	log      *zap.Logger
}

func NewCrawler(maxPages int, timeout time.Duration, log *zap.Logger) *Crawler {
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &Crawler{
		client:   &http.Client{Timeout: timeout, Transport: transport},
		maxPages: maxPages,
		log:      log,
	}
}

func (c *Crawler) Crawl(ctx context.Context, rawURL string, keywords []string) (*models.CrawlData, error) {
	target, err := normalizeURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrawlFailed, err)
	}

	start := time.Now()
	first, err := c.fetch(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrawlFailed, err)
	}
	loadTime := time.Since(start)

	pages := []*page{first}
	if c.maxPages > 1 {
		pages = append(pages, c.fetchSubpages(ctx, withoutPage(first.Links, target))...)
	}

	data := aggregate(target, pages, keywords, loadTime)
	if err := data.Normalize(); err != nil {
		return nil, err
	}
	return data, nil
}

// fetchSubpages fetches linked pages concurrently. Failed pages are skipped;
// the result keeps link order.
func (c *Crawler) fetchSubpages(ctx context.Context, links []string) []*page {
	if len(links) > c.maxPages-1 {
		links = links[:c.maxPages-1]
	}
	results := make([]*page, len(links))
	sem := make(chan struct{}, subpageWorkers)
	var wg sync.WaitGroup
	for i, link := range links {
		wg.Add(1)
		go func(i int, link string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()
			p, err := c.fetch(ctx, link)
			if err != nil {
				c.log.Debug("subpage fetch failed", zap.String("url", link), zap.Error(err))
				return
			}
			results[i] = p
		}(i, link)
	}
	wg.Wait()

	out := make([]*page, 0, len(results))
	for _, p := range results {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

func (c *Crawler) fetch(ctx context.Context, pageURL string) (*page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return nil, fmt.Errorf("http status %d", resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType != "" {
		mt, _, err := mime.ParseMediaType(contentType)
		if err == nil && mt != "text/html" && mt != "application/xhtml+xml" {
			return nil, fmt.Errorf("unsupported content type %q", mt)
		}
	}
	finalURL := pageURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	return parsePage(io.LimitReader(resp.Body, maxBodySize), contentType, finalURL)
}

// withoutPage drops links naming the same page as target. The landing page
// may have been parsed under a redirected URL, so its own links can still
// point back at the requested one.
func withoutPage(links []string, target string) []string {
	t, err := url.Parse(target)
	if err != nil {
		return links
	}
	self := pageKey(t)
	out := make([]string, 0, len(links))
	for _, l := range links {
		if u, err := url.Parse(l); err == nil && pageKey(u) == self {
			continue
		}
		out = append(out, l)
	}
	return out
}

func normalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty url")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid url %q", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return u.String(), nil
}

// aggregate merges pages into one record. Title, meta and technical signals
// come from the first page; counts are summed; schema types are deduplicated.
func aggregate(target string, pages []*page, keywords []string, loadTime time.Duration) *models.CrawlData {
	first := pages[0]
	data := &models.CrawlData{
		Version:         models.CrawlSchemaVersion,
		URL:             target,
		Title:           first.Title,
		MetaDescription: first.MetaDescription,
		Headings:        []models.Heading{},
		SchemaMarkup:    []models.SchemaMarkup{},
		PagesAnalyzed:   len(pages),
		TechnicalSignals: models.TechnicalSignals{
			HasHTTPS:       strings.HasPrefix(first.URL, "https://"),
			HasCanonical:   first.HasCanonical,
			HasOpenGraph:   first.HasOpenGraph,
			HasTwitterCard: first.HasTwitterCard,
			MobileViewport: first.MobileViewport,
			LoadTime:       int(loadTime.Milliseconds()),
		},
	}

	var (
		stats    textStats
		allText  []string
		seenType = map[string]bool{}
	)
	for _, p := range pages {
		data.Headings = append(data.Headings, p.Headings...)
		for _, t := range p.SchemaTypes {
			key := strings.ToLower(t)
			if !seenType[key] {
				seenType[key] = true
				data.SchemaMarkup = append(data.SchemaMarkup, models.SchemaMarkup{Type: t})
			}
		}
		stats.add(p.Stats)
		allText = append(allText, p.Text)
		data.ContentStats.ParagraphCount += p.Paragraphs
		data.Pages = append(data.Pages, models.PageSummary{
			URL:            p.URL,
			Title:          p.Title,
			WordCount:      p.Stats.Words,
			ParagraphCount: p.Paragraphs,
			HeadingCount:   len(p.Headings),
		})
	}
	data.ContentStats.WordCount = stats.Words
	data.ContentStats.AvgSentenceLength = stats.AvgSentenceLength()
	data.ContentStats.ReadabilityScore = stats.Readability()

	data.KeywordAnalysis = models.KeywordAnalysis{
		TitleContainsKeyword: containsKeyword(first.Title, keywords),
		H1ContainsKeyword:    containsKeyword(strings.Join(first.H1, " "), keywords),
		MetaContainsKeyword:  containsKeyword(first.MetaDescription, keywords),
		KeywordDensity:       keywordDensity(strings.Join(allText, " "), keywords),
	}
	return data
}
