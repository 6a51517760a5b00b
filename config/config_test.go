package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("CRAWL_MAX_PAGES", "12")
	t.Setenv("IP_RATE", "0.5")
	t.Setenv("DEV_MODE", "true")
	t.Setenv("ALLOWED_ORIGINS", "https://app.example.com, ,https://admin.example.com")
	t.Setenv("CRAWL_MODE", "LOCAL")

	cfg := Load()
	if cfg.Port != "9090" {
		t.Errorf("Expected port 9090, got %s", cfg.Port)
	}
	if cfg.CrawlMaxPages != 12 {
		t.Errorf("Expected 12 pages, got %d", cfg.CrawlMaxPages)
	}
	if cfg.IPRate != 0.5 {
		t.Errorf("Expected ip rate 0.5, got %v", cfg.IPRate)
	}
	if !cfg.DevMode {
		t.Error("Expected dev mode")
	}
	if len(cfg.AllowedOrigins) != 2 {
		t.Errorf("Expected 2 origins, got %v", cfg.AllowedOrigins)
	}
	if cfg.CrawlMode != "local" {
		t.Errorf("Expected local crawl mode, got %s", cfg.CrawlMode)
	}
	if cfg.DefaultModel != "gpt-4o-mini" {
		t.Errorf("Expected default model gpt-4o-mini, got %s", cfg.DefaultModel)
	}
}

func TestLoadInvalidNumbersUseDefaults(t *testing.T) {
	t.Setenv("CRAWL_MAX_PAGES", "lots")
	t.Setenv("IP_BURST", "")
	cfg := Load()
	if cfg.CrawlMaxPages != 5 || cfg.IPBurst != 5 {
		t.Errorf("Expected defaults, got pages=%d burst=%d", cfg.CrawlMaxPages, cfg.IPBurst)
	}
}

func TestPlans(t *testing.T) {
	t.Run("Lookup", func(t *testing.T) {
		plans := DefaultPlans()
		if p := plans.Lookup(" PRO "); p.Name != "pro" || !p.RealAnalysis {
			t.Errorf("Expected pro plan, got %+v", p)
		}
		if p := plans.Lookup("platinum"); p.Name != FallbackPlan {
			t.Errorf("Expected fallback plan, got %+v", p)
		}
		if p := plans.Lookup("admin"); !p.Unlimited {
			t.Error("admin plan should be unlimited")
		}
	})

	t.Run("LoadPlansOverlay", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "plans.yml")
		doc := `
plans:
  pro:
    rate_limit: 60
  agency:
    monthly_analyses: 2000
    real_analysis: true
`
		if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
			t.Fatalf("write: %v", err)
		}
		plans, err := LoadPlans(path)
		if err != nil {
			t.Fatalf("LoadPlans: %v", err)
		}
		pro := plans.Lookup("pro")
		if pro.RateLimit != 60 || pro.MonthlyAnalyses != 500 {
			t.Errorf("Expected overridden rate and kept quota, got %+v", pro)
		}
		agency := plans.Lookup("agency")
		if agency.Name != "agency" || agency.MonthlyAnalyses != 2000 || !agency.RealAnalysis {
			t.Errorf("Expected new agency plan, got %+v", agency)
		}
	})

	t.Run("RejectsNegative", func(t *testing.T) {
		plans := DefaultPlans()
		if err := plans.Merge([]byte("plans:\n  free:\n    rate_limit: -1\n")); err == nil {
			t.Error("Expected error for negative limit")
		}
	})

	t.Run("MissingFile", func(t *testing.T) {
		if _, err := LoadPlans(filepath.Join(t.TempDir(), "nope.yml")); err == nil {
			t.Error("Expected error for missing file")
		}
	})
}
