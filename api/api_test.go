package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aeo-scorer/backend/analyzer"
	"github.com/aeo-scorer/backend/citation"
	"github.com/aeo-scorer/backend/config"
	"github.com/aeo-scorer/backend/logging"
	"github.com/aeo-scorer/backend/middleware"
	"github.com/aeo-scorer/backend/models"
	"github.com/aeo-scorer/backend/store"
	"github.com/aeo-scorer/backend/usage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubCrawler struct{}

func (stubCrawler) Crawl(_ context.Context, url string, _ []string) (*models.CrawlData, error) {
	return &models.CrawlData{
		URL:           url,
		Title:         "Acme",
		PagesAnalyzed: 1,
		Headings:      []models.Heading{{Level: 1, Text: "Acme", HasDirectAnswer: true}},
		ContentStats:  models.ContentStats{WordCount: 900, ParagraphCount: 6, AvgSentenceLength: 18, ReadabilityScore: 55},
	}, nil
}

type stubCitations struct{ err error }

func (s stubCitations) Check(_ context.Context, req citation.Request) (*citation.Response, error) {
	if s.err != nil {
		return nil, s.err
	}
	var resp citation.Response
	for _, p := range req.Prompts {
		resp.Results = append(resp.Results, models.CitationResult{
			PromptID: p.ID, Prompt: p.Text, Provider: req.Providers[0], TokensUsed: 10, Cost: 0.001,
			CompetitorsCited: []models.CompetitorMention{{Domain: "rival.test", Position: 1}},
		})
		resp.TotalCost += 0.001
	}
	return &resp, nil
}

type testServer struct {
	router *gin.Engine
	auth   *middleware.Authenticator
}

func newTestServer(t *testing.T, cites citation.Client) *testServer {
	t.Helper()
	db, err := store.Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	policy := usage.NewService(usage.NewMemoryStore())
	plans := config.DefaultPlans()
	a := analyzer.New(analyzer.Deps{Crawler: stubCrawler{}, Citations: cites, Policy: policy, Plans: plans})
	t.Cleanup(func() { a.Shutdown() })
	traffic, _ := logging.NewStatistics("", false)

	auth := middleware.NewAuthenticator("secret")
	r := gin.New()
	r.Use(middleware.StatsMiddleware(traffic, nil, AnalysisPaths...))
	New(Deps{Analyzer: a, Store: db, Policy: policy, Plans: plans, Traffic: traffic}).Register(r, auth.Auth())
	return &testServer{router: r, auth: auth}
}

func (ts *testServer) do(t *testing.T, id *models.Identity, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if id != nil {
		token, err := ts.auth.Sign(*id, time.Hour)
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

var (
	alice = &models.Identity{UserID: "alice", Plan: "pro", Role: models.RoleUser}
	bob   = &models.Identity{UserID: "bob", Plan: "pro", Role: models.RoleUser}
	root  = &models.Identity{UserID: "root", Plan: "free", Role: models.RoleAdmin}
)

func TestHealthIsPublic(t *testing.T) {
	ts := newTestServer(t, stubCitations{})
	if w := ts.do(t, nil, http.MethodGet, "/api/health", nil); w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
	if w := ts.do(t, nil, http.MethodGet, "/api/usage", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", w.Code)
	}
}

func TestAnalyzeAndRead(t *testing.T) {
	ts := newTestServer(t, stubCitations{})

	w := ts.do(t, alice, http.MethodPost, "/api/analyze", gin.H{"website": "https://acme.test", "keywords": []string{"acme"}})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	created := decode[models.Analysis](t, w)
	if created.IsSimulated || created.UserID != "alice" {
		t.Errorf("Unexpected analysis %+v", created)
	}

	path := "/api/analyses/" + created.ID
	if w := ts.do(t, alice, http.MethodGet, path, nil); w.Code != http.StatusOK {
		t.Errorf("Owner read: expected 200, got %d", w.Code)
	}
	if w := ts.do(t, bob, http.MethodGet, path, nil); w.Code != http.StatusNotFound {
		t.Errorf("Foreign read: expected 404, got %d", w.Code)
	}
	if w := ts.do(t, root, http.MethodGet, path, nil); w.Code != http.StatusOK {
		t.Errorf("Admin read: expected 200, got %d", w.Code)
	}
	if w := ts.do(t, alice, http.MethodGet, "/api/analyses/nope", nil); w.Code != http.StatusNotFound {
		t.Errorf("Missing read: expected 404, got %d", w.Code)
	}

	list := decode[struct {
		Data []store.Record `json:"data"`
	}](t, ts.do(t, alice, http.MethodGet, "/api/analyses?limit=5", nil))
	if len(list.Data) != 1 || list.Data[0].ID != created.ID {
		t.Errorf("Expected alice's analysis listed, got %+v", list.Data)
	}
	if other := decode[struct {
		Data []store.Record `json:"data"`
	}](t, ts.do(t, bob, http.MethodGet, "/api/analyses", nil)); len(other.Data) != 0 {
		t.Errorf("Bob should see no analyses, got %+v", other.Data)
	}

	if w := ts.do(t, alice, http.MethodPost, "/api/analyze", gin.H{"keywords": []string{"x"}}); w.Code != http.StatusBadRequest {
		t.Errorf("Missing website: expected 400, got %d", w.Code)
	}

	u := decode[struct {
		Usage usage.Record `json:"usage"`
		Plan  models.Plan  `json:"plan"`
	}](t, ts.do(t, alice, http.MethodGet, "/api/usage", nil))
	if u.Usage.Analyses != 1 || u.Plan.Name != "pro" || u.Usage.Cost <= 0 {
		t.Errorf("Unexpected usage %+v", u)
	}

	st := decode[map[string]map[string]any](t, ts.do(t, alice, http.MethodGet, "/api/statistics", nil))
	if st["traffic"]["totalRequests"] != 2.0 {
		t.Errorf("Expected two tracked analysis requests, got %v", st["traffic"])
	}
}

func TestRateLimited(t *testing.T) {
	ts := newTestServer(t, stubCitations{})
	trial := &models.Identity{UserID: "t", Plan: "trial"}
	limit := config.DefaultPlans().Lookup("trial").MonthlyAnalyses

	for i := 0; i < limit; i++ {
		if w := ts.do(t, trial, http.MethodPost, "/api/analyze", gin.H{"website": "acme.test"}); w.Code != http.StatusOK {
			t.Fatalf("request %d: %d %s", i+1, w.Code, w.Body.String())
		}
	}
	w := ts.do(t, trial, http.MethodPost, "/api/analyze", gin.H{"website": "acme.test"})
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Expected Retry-After header")
	}
	body := decode[map[string]any](t, w)
	if body["ok"] != 0.0 || body["resetTime"] == nil || body["message"] == "" {
		t.Errorf("Unexpected envelope %v", body)
	}
}

func TestAEORoutes(t *testing.T) {
	ts := newTestServer(t, stubCitations{})
	req := gin.H{
		"website":   "https://acme.test",
		"brandName": "Acme",
		"providers": []string{"anthropic"},
		"prompts":   []gin.H{{"text": "best shoes"}, {"id": "q2", "text": "trail shoes"}},
	}

	w := ts.do(t, alice, http.MethodPost, "/api/aeo", req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	type aeoBody struct {
		models.AEOAnalysis
		Competitors []models.CompetitorCount `json:"competitors"`
	}
	created := decode[aeoBody](t, w)
	if len(created.Competitors) != 1 || created.Competitors[0].Count != 2 {
		t.Errorf("Expected derived competitors, got %+v", created.Competitors)
	}

	loaded := decode[aeoBody](t, ts.do(t, alice, http.MethodGet, "/api/aeo/"+created.ID, nil))
	if len(loaded.Competitors) != 1 || loaded.Competitors[0] != created.Competitors[0] {
		t.Errorf("Expected recomputed competitors on read, got %+v", loaded.Competitors)
	}

	top := decode[struct {
		Data  []models.CompetitorCount `json:"data"`
		Total int                      `json:"total"`
	}](t, ts.do(t, alice, http.MethodGet, "/api/aeo/"+created.ID+"/competitors?limit=1", nil))
	if len(top.Data) != 1 || top.Total != 1 || top.Data[0].Domain != "rival.test" {
		t.Errorf("Unexpected competitor table %+v", top)
	}

	if w := ts.do(t, bob, http.MethodGet, "/api/aeo/"+created.ID+"/competitors", nil); w.Code != http.StatusNotFound {
		t.Errorf("Foreign competitor read: expected 404, got %d", w.Code)
	}

	empty := gin.H{"website": "acme.test", "prompts": []gin.H{{"text": " "}}}
	if w := ts.do(t, alice, http.MethodPost, "/api/aeo", empty); w.Code != http.StatusBadRequest {
		t.Errorf("Blank prompts: expected 400, got %d", w.Code)
	}
}

func TestAEOCitationFailure(t *testing.T) {
	ts := newTestServer(t, stubCitations{err: citation.ErrCheckFailed})
	req := gin.H{"website": "acme.test", "prompts": []gin.H{{"text": "q"}}}
	w := ts.do(t, alice, http.MethodPost, "/api/aeo", req)
	if w.Code != http.StatusBadGateway {
		t.Errorf("Expected 502, got %d: %s", w.Code, w.Body.String())
	}
}
