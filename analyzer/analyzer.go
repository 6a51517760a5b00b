package analyzer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aeo-scorer/backend/citation"
	"github.com/aeo-scorer/backend/crawl"
	"github.com/aeo-scorer/backend/models"
	"github.com/aeo-scorer/backend/stats"
	"github.com/aeo-scorer/backend/usage"
)

// Deps are the collaborators of an Analyzer. Stats and Logger are optional.
type Deps struct {
	Crawler   crawl.Client
	Citations citation.Client
	Policy    usage.Policy
	Plans     PlanLookup
	Stats     *stats.Storage
	Logger    *zap.Logger
}

// Analyzer orchestrates website and AEO analyses
type Analyzer struct {
	crawler      crawl.Client
	citations    citation.Client
	policy       usage.Policy
	plans        PlanLookup
	stats        *stats.Storage
	log          *zap.Logger
	rand         RandSource
	now          func() time.Time
	newID        func() string
	defaultModel string

	cache           *crawlCache
	cacheTTL        time.Duration
	maxCacheSize    int
	cleanupInterval time.Duration
	stop            chan struct{}
	stopOnce        sync.Once
}

type Option func(*Analyzer)

// WithRand makes simulated analyses draw from src.
func WithRand(src RandSource) Option {
	return func(a *Analyzer) { a.rand = src }
}

func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

// WithIDs replaces uuid generation.
func WithIDs(newID func() string) Option {
	return func(a *Analyzer) { a.newID = newID }
}

// WithDefaultModel sets the model used when a request names none. Unknown
// keys are ignored.
func WithDefaultModel(key string) Option {
	return func(a *Analyzer) {
		if m, ok := LookupModel(key); ok {
			a.defaultModel = m.Key
		}
	}
}

// WithCache configures the crawl cache.
func WithCache(ttl time.Duration, maxSize int, cleanupInterval time.Duration) Option {
	return func(a *Analyzer) {
		a.cacheTTL, a.maxCacheSize, a.cleanupInterval = ttl, maxSize, cleanupInterval
	}
}

// New creates an Analyzer and starts the cache cleanup goroutine
func New(deps Deps, opts ...Option) *Analyzer {
	a := &Analyzer{
		crawler:         deps.Crawler,
		citations:       deps.Citations,
		policy:          deps.Policy,
		plans:           deps.Plans,
		stats:           deps.Stats,
		log:             deps.Logger,
		now:             time.Now,
		newID:           uuid.NewString,
		defaultModel:    DefaultModel,
		cacheTTL:        30 * time.Minute,
		maxCacheSize:    1000,
		cleanupInterval: 5 * time.Minute,
		stop:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.log == nil {
		a.log = zap.NewNop()
	}
	if a.rand == nil {
		a.rand = newDefaultRand()
	}
	if a.cleanupInterval <= 0 {
		a.cleanupInterval = 5 * time.Minute
	}
	a.rand = &lockedRand{src: a.rand}
	a.cache = newCrawlCache(a.cacheTTL, a.maxCacheSize, a.now)

	go a.periodicCleanup()
	return a
}

func (a *Analyzer) periodicCleanup() {
	ticker := time.NewTicker(a.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.cache.cleanup()
		case <-a.stop:
			return
		}
	}
}

// AnalyzeWebsite runs one website analysis for identity. An empty or
// unknown modelKey selects the default model.
func (a *Analyzer) AnalyzeWebsite(ctx context.Context, website string, keywords []string, identity models.Identity, modelKey string) (*models.Analysis, error) {
	website = strings.TrimSpace(website)
	if website == "" {
		return nil, fmt.Errorf("%w: website is required", ErrInvalidRequest)
	}
	keywords = cleanKeywords(keywords)

	plan := a.plans.Lookup(identity.Plan)
	if err := a.policy.Admit(ctx, identity, plan); err != nil {
		return nil, err
	}
	model := a.resolveModel(modelKey)

	analysis := &models.Analysis{
		ID:        a.newID(),
		UserID:    identity.UserID,
		Website:   website,
		Keywords:  keywords,
		CreatedAt: a.now().UTC(),
	}
	event := stats.Event{Analyses: 1}

	var data *models.CrawlData
	if a.useReal(identity, plan) {
		var err error
		data, err = a.crawlCached(ctx, website, keywords, &event)
		if err != nil {
			a.log.Warn("crawl failed, falling back to simulated analysis",
				zap.String("website", website),
				zap.String("user_id", identity.UserID),
				zap.Error(err))
			event.Fallbacks++
			data = nil
		}
	}

	if data != nil {
		analysis.Metrics = ComputeMetrics(data)
		analysis.Recommendations = ComputeRecommendations(data, analysis.Metrics)
		analysis.CostInfo = model.estimateCost(data.ContentStats.WordCount)
		event.Real++
	} else {
		analysis.Metrics = simulateMetrics(a.rand)
		analysis.Recommendations = simulatedRecommendations(analysis.Metrics)
		analysis.IsSimulated = true
		analysis.CostInfo = models.CostInfo{Model: model.Key}
		event.Simulated++
	}
	analysis.Score = analysis.Metrics.Score()
	analysis.PredictedRank = PredictedRank(analysis.Score)
	analysis.Category = Category(analysis.Score)
	analysis.Insights = Insights(website, analysis.Metrics, analysis.Score)

	a.recordCost(ctx, identity.UserID, analysis.CostInfo.EstimatedCost)
	event.Cost = analysis.CostInfo.EstimatedCost
	a.record(event)

	a.log.Info("analysis assembled",
		zap.String("id", analysis.ID),
		zap.String("website", website),
		zap.Bool("simulated", analysis.IsSimulated),
		zap.Int("score", analysis.Score),
		zap.Float64("cost", analysis.CostInfo.EstimatedCost))
	return analysis, nil
}

// AnalyzeAEO checks how often AI providers cite the website for req.Prompts.
// A crawl failure only drops the content analysis; a citation failure fails
// the call.
func (a *Analyzer) AnalyzeAEO(ctx context.Context, req AEORequest) (*models.AEOAnalysis, error) {
	website := strings.TrimSpace(req.Website)
	if website == "" {
		return nil, fmt.Errorf("%w: website is required", ErrInvalidRequest)
	}
	prompts := cleanPrompts(req.Prompts)
	if len(prompts) == 0 {
		return nil, fmt.Errorf("%w: at least one prompt is required", ErrInvalidRequest)
	}
	if a.citations == nil {
		return nil, fmt.Errorf("%w: no citation client configured", ErrCitationCheck)
	}
	providers := a.resolveProviders(req.Providers)

	plan := a.plans.Lookup(req.Identity.Plan)
	if err := a.policy.Admit(ctx, req.Identity, plan); err != nil {
		return nil, err
	}

	event := stats.Event{AEO: 1}
	var content *models.ContentAnalysis
	if data, err := a.crawlCached(ctx, website, nil, &event); err != nil {
		a.log.Warn("aeo crawl failed, continuing without content analysis",
			zap.String("website", website),
			zap.Error(err))
	} else {
		content = ContentAnalysisFor(data)
	}

	resp, err := a.citations.Check(ctx, citation.Request{
		Prompts:   prompts,
		Website:   website,
		BrandName: strings.TrimSpace(req.BrandName),
		Providers: providers,
	})
	if err != nil {
		event.AEO = 0
		a.record(event)
		if rerr := a.policy.Release(ctx, req.Identity, plan); rerr != nil {
			a.log.Warn("release analysis failed", zap.String("user", req.Identity.UserID), zap.Error(rerr))
		}
		return nil, fmt.Errorf("%w: %w", ErrCitationCheck, err)
	}

	summary := citation.Aggregate(resp.Results, content, prompts)
	tokens := 0
	for _, r := range resp.Results {
		tokens += r.TokensUsed
	}
	names := make([]string, len(providers))
	for i, p := range providers {
		names[i] = string(p)
	}

	result := &models.AEOAnalysis{
		ID:                  a.newID(),
		UserID:              req.Identity.UserID,
		Website:             website,
		BrandName:           strings.TrimSpace(req.BrandName),
		Prompts:             prompts,
		Providers:           providers,
		CitationResults:     resp.Results,
		OverallCitationRate: summary.OverallCitationRate,
		ContentAnalysis:     content,
		Recommendations:     summary.Recommendations,
		CostInfo: models.CostInfo{
			Model:         strings.Join(names, ","),
			TokensUsed:    tokens,
			EstimatedCost: resp.TotalCost,
		},
		CreatedAt: a.now().UTC(),
	}

	a.recordCost(ctx, req.Identity.UserID, resp.TotalCost)
	event.Cost = resp.TotalCost
	a.record(event)

	a.log.Info("aeo analysis assembled",
		zap.String("id", result.ID),
		zap.String("website", website),
		zap.Int("results", len(resp.Results)),
		zap.Float64("citation_rate", result.OverallCitationRate),
		zap.Float64("cost", resp.TotalCost))
	return result, nil
}

// useReal reports whether identity gets a crawled analysis.
func (a *Analyzer) useReal(identity models.Identity, plan models.Plan) bool {
	return plan.RealAnalysis || identity.IsAdmin() || identity.IsDemo()
}

func (a *Analyzer) resolveModel(key string) ModelInfo {
	if strings.TrimSpace(key) != "" {
		if m, ok := LookupModel(key); ok {
			return m
		}
		a.log.Warn("unknown model, using default", zap.String("model", key), zap.String("default", a.defaultModel))
	}
	m, _ := LookupModel(a.defaultModel)
	return m
}

// resolveProviders keeps known providers in request order without
// duplicates and defaults to openai.
func (a *Analyzer) resolveProviders(raw []string) []models.ProviderName {
	var out []models.ProviderName
	seen := make(map[models.ProviderName]bool)
	for _, r := range raw {
		p, ok := models.ParseProvider(r)
		if !ok {
			a.log.Warn("unknown provider dropped", zap.String("provider", r))
			continue
		}
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		out = []models.ProviderName{models.ProviderOpenAI}
	}
	return out
}

func (a *Analyzer) crawlCached(ctx context.Context, website string, keywords []string, event *stats.Event) (*models.CrawlData, error) {
	if a.crawler == nil {
		return nil, fmt.Errorf("%w: no crawler configured", crawl.ErrCrawlFailed)
	}
	key := cacheKey(website, keywords)
	if data, ok := a.cache.get(key); ok {
		event.CacheHits++
		return data, nil
	}
	event.CacheMisses++

	data, err := a.crawler.Crawl(ctx, website, keywords)
	if err != nil {
		return nil, err
	}
	if err := data.Normalize(); err != nil {
		return nil, err
	}
	a.cache.put(key, data)
	return data, nil
}

func (a *Analyzer) recordCost(ctx context.Context, userID string, cost float64) {
	if err := a.policy.RecordCost(ctx, userID, cost); err != nil {
		a.log.Error("record cost failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func (a *Analyzer) record(e stats.Event) {
	if a.stats != nil {
		a.stats.Record(e)
	}
}

func cleanKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// cleanPrompts drops empty prompts and assigns missing or duplicate ids.
func cleanPrompts(prompts []models.Prompt) []models.Prompt {
	out := make([]models.Prompt, 0, len(prompts))
	seen := make(map[string]bool)
	for _, p := range prompts {
		p.Text = strings.TrimSpace(p.Text)
		if p.Text == "" {
			continue
		}
		p.ID = strings.TrimSpace(p.ID)
		for n := len(out) + 1; p.ID == "" || seen[p.ID]; n++ {
			p.ID = fmt.Sprintf("prompt-%d", n)
		}
		seen[p.ID] = true
		out = append(out, p)
	}
	return out
}

// CacheStats returns statistics about the crawl cache
func (a *Analyzer) CacheStats() CacheStats {
	cs := CacheStats{Entries: a.cache.size(), TTL: a.cacheTTL}
	if a.stats != nil {
		current := a.stats.GetCurrentStats()
		cs.Hits, cs.Misses = current.CrawlCacheHits, current.CrawlCacheMisses
	}
	return cs
}

// ClearCache drops every cached crawl
func (a *Analyzer) ClearCache() {
	a.cache.clear()
}

// GetStats returns the ledger, or nil when none is configured
func (a *Analyzer) GetStats() *stats.Storage {
	return a.stats
}

// Shutdown stops cache cleanup and flushes the ledger
func (a *Analyzer) Shutdown() error {
	if a == nil {
		return nil
	}
	a.stopOnce.Do(func() { close(a.stop) })
	a.cache.clear()

	if a.stats != nil {
		if err := a.stats.Shutdown(); err != nil {
			return fmt.Errorf("failed to shutdown stats storage: %w", err)
		}
	}
	return nil
}
