package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aeo-scorer/backend/models"
)

func openTestStore(t *testing.T) *SQL {
	t.Helper()
	s, err := Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "db", "aeo.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAnalysisRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	created := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

	a := &models.Analysis{
		ID: "a1", UserID: "u1", Website: "https://acme.test", Keywords: []string{"shoes"},
		Metrics: models.Metrics{ContentClarity: 50, SemanticRichness: 60, StructuredData: 70, NaturalLanguage: 80, KeywordRelevance: 90},
		Score:   70, IsSimulated: true, CreatedAt: created,
	}
	if err := s.SaveAnalysis(ctx, a); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.GetAnalysis(ctx, "a1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Metrics != a.Metrics || got.Score != 70 || !got.IsSimulated || !got.CreatedAt.Equal(created) {
		t.Errorf("Expected %+v, got %+v", a, got)
	}

	if _, err := s.GetAnalysis(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := s.GetAEO(ctx, "a1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Website analyses must not load as AEO, got %v", err)
	}
	if err := s.SaveAnalysis(ctx, a); err == nil {
		t.Error("Expected duplicate id to fail")
	}
}

func TestAEOPayloadHasNoCompetitorTable(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	a := &models.AEOAnalysis{
		ID: "x1", UserID: "u1", Website: "acme.test",
		CitationResults: []models.CitationResult{
			{PromptID: "p1", Provider: models.ProviderOpenAI, CompetitorsCited: []models.CompetitorMention{{Domain: "rival.test", Position: 1}}},
			{PromptID: "p1", Provider: models.ProviderAnthropic, CompetitorsCited: []models.CompetitorMention{{Domain: "www.Rival.test", Position: 1}}},
		},
		CreatedAt: time.Now(),
	}
	if err := s.SaveAEO(ctx, a); err != nil {
		t.Fatalf("save: %v", err)
	}

	var payload string
	if err := s.db.QueryRow(`SELECT payload FROM analyses WHERE id = ?`, "x1").Scan(&payload); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(payload, `"count"`) || strings.Contains(payload, "competitors\"") {
		t.Errorf("Stored payload should not carry a competitor table: %s", payload)
	}

	got, err := s.GetAEO(ctx, "x1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	comp := got.Competitors()
	if len(comp) != 1 || comp[0] != (models.CompetitorCount{Domain: "rival.test", Count: 2}) {
		t.Errorf("Expected recomputed competitors, got %+v", comp)
	}
}

func TestListAnalyses(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		created := base.Add(time.Duration(i) * time.Hour)
		if i == 2 {
			created = created.Add(500 * time.Millisecond)
		}
		if err := s.SaveAnalysis(ctx, &models.Analysis{ID: id, UserID: "u1", Website: "w", CreatedAt: created}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.SaveAEO(ctx, &models.AEOAnalysis{ID: "d", UserID: "u2", Website: "w", CreatedAt: base}); err != nil {
		t.Fatal(err)
	}

	recs, err := s.ListAnalyses(ctx, "u1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 || recs[0].ID != "c" || recs[1].ID != "b" {
		t.Errorf("Expected newest first [c b], got %+v", recs)
	}

	all, err := s.ListAnalyses(ctx, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 || all[3].Kind != KindAEO {
		t.Errorf("Expected every record, got %+v", all)
	}
}

func TestRebind(t *testing.T) {
	pg := &SQL{driver: "postgres"}
	if got := pg.rebind("a = ? AND b = ?"); got != "a = $1 AND b = $2" {
		t.Errorf("Unexpected rebind %q", got)
	}
	lite := &SQL{driver: "sqlite"}
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Errorf("sqlite queries should be unchanged, got %q", got)
	}
	if _, err := Open(context.Background(), "mysql", "x"); err == nil {
		t.Error("Expected unsupported driver error")
	}
}
