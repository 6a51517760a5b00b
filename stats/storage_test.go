package stats

import (
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestStorage(t *testing.T) {
	tempDir := t.TempDir()

	storage, err := NewStorage(tempDir, nil)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	storage.now = func() time.Time { return now }

	t.Run("Record", func(t *testing.T) {
		storage.Record(Event{Analyses: 1, Real: 1, CacheMisses: 1, Cost: 0.25})
		storage.Record(Event{Analyses: 1, Simulated: 1, Fallbacks: 1})
		storage.Record(Event{AEO: 1, CacheHits: 1, Cost: 0.5})
		stats := storage.GetCurrentStats()

		if stats.Analyses != 2 || stats.RealAnalyses != 1 || stats.SimulatedAnalyses != 1 {
			t.Errorf("Unexpected analysis counts %+v", stats)
		}
		if stats.AEOAnalyses != 1 || stats.CrawlFallbacks != 1 {
			t.Errorf("Unexpected aeo/fallback counts %+v", stats)
		}
		if stats.CrawlCacheHits != 1 || stats.CrawlCacheMisses != 1 {
			t.Errorf("Unexpected cache counts %+v", stats)
		}
		if math.Abs(stats.TotalCost-0.75) > 1e-9 {
			t.Errorf("Expected cost 0.75, got %v", stats.TotalCost)
		}
	})

	t.Run("Cleanup", func(t *testing.T) {
		storage.stats["2026-09"] = &MonthlyStats{Analyses: 5}
		storage.stats["2026-07"] = &MonthlyStats{Analyses: 100}

		storage.Cleanup()

		if _, ok := storage.GetMonthlyStats("2026-07"); ok {
			t.Error("Old stats should have been cleaned up")
		}
		if _, ok := storage.GetMonthlyStats("2026-09"); !ok {
			t.Error("Previous month should be retained")
		}
		months := storage.GetAllMonths()
		if len(months) != 2 || months[0] != "2026-10" {
			t.Errorf("Expected newest first, got %v", months)
		}
	})

	t.Run("ConcurrentAccess", func(t *testing.T) {
		before := storage.GetCurrentStats().Analyses
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					storage.Record(Event{Analyses: 1})
					storage.GetCurrentStats()
				}
			}()
		}
		wg.Wait()

		if got := storage.GetCurrentStats().Analyses - before; got != 1000 {
			t.Errorf("Expected 1000 new analyses, got %d", got)
		}
	})

	t.Run("Persistence", func(t *testing.T) {
		want := storage.GetCurrentStats().Analyses
		if err := storage.Shutdown(); err != nil {
			t.Fatalf("Shutdown: %v", err)
		}
		if _, err := os.Stat(filepath.Join(tempDir, "stats.json")); err != nil {
			t.Fatalf("Failed to stat file: %v", err)
		}

		storage2, err := NewStorage(tempDir, nil)
		if err != nil {
			t.Fatalf("Failed to create second storage: %v", err)
		}
		defer storage2.Shutdown()

		stats, ok := storage2.GetMonthlyStats("2026-10")
		if !ok || stats.Analyses != want {
			t.Errorf("Expected %d analyses after reload, got %+v", want, stats)
		}
	})
}
