package logging

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestStatistics(t *testing.T) {
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	s, err := NewStatistics("", true)
	if err != nil {
		t.Fatal(err)
	}
	s.now = func() time.Time { return now }

	s.TrackVisitor("1.1.1.1")
	s.TrackVisitor("2.2.2.2")
	s.UniqueVisitors["3.3.3.3"] = now.Add(-25 * time.Hour)

	sites := []string{"acme.test", "https://acme.test/", "b.test", "c.test", "d.test", "e.test", "f.test", "http://localhost:8082", "b.test"}
	for i, site := range sites {
		s.TrackAnalysis(site, 100*time.Millisecond, i == 0)
	}

	got := s.GetStatistics()
	if got["uniqueVisitors24h"] != 2 {
		t.Errorf("Expected 2 unique visitors, got %v", got["uniqueVisitors24h"])
	}
	if got["totalRequests"] != len(sites) {
		t.Errorf("Expected %d requests, got %v", len(sites), got["totalRequests"])
	}
	if got["averageLoadTime"] != 100.0 {
		t.Errorf("Expected average 100ms, got %v", got["averageLoadTime"])
	}

	popular, ok := got["popularSites"].([]PopularSite)
	if !ok {
		t.Fatalf("Expected popular sites in dev mode, got %T", got["popularSites"])
	}
	if len(popular) != PopularLimit {
		t.Fatalf("Expected %d popular sites, got %d", PopularLimit, len(popular))
	}
	if popular[0] != (PopularSite{"https://acme.test", 2}) || popular[1] != (PopularSite{"https://b.test", 2}) {
		t.Errorf("Unexpected ordering %+v", popular)
	}

	s.devMode = false
	if _, ok := s.GetStatistics()["popularSites"]; ok {
		t.Error("Popular sites must be hidden outside dev mode")
	}
}

func TestCleanSite(t *testing.T) {
	cases := map[string]string{
		"Acme.test":                   "https://acme.test",
		"http://acme.test/blog/":      "http://acme.test/blog",
		"https://127.0.0.1/x":         "",
		"https://acme.test/api/other": "",
		"":                            "",
	}
	for in, want := range cases {
		if got := cleanSite(in); got != want {
			t.Errorf("cleanSite(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStatisticsPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "statistics.json")
	s, err := NewStatistics(path, false)
	if err != nil {
		t.Fatal(err)
	}
	s.TrackVisitor("1.1.1.1")
	s.TrackAnalysis("acme.test", time.Second, true)
	if err := s.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := NewStatistics(path, false)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Requests() != 1 || loaded.ErrorCount != 1 || loaded.PopularSites["https://acme.test"] != 1 {
		t.Errorf("Expected persisted statistics, got %+v", loaded.GetStatistics())
	}
}

func TestConcurrentSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "statistics.json")
	s, err := NewStatistics(path, false)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.TrackAnalysis("acme.test", time.Millisecond, false)
			if err := s.Save(); err != nil {
				t.Errorf("save: %v", err)
			}
		}()
	}
	wg.Wait()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "statistics.json" {
		t.Errorf("Expected only statistics.json left behind, got %v", entries)
	}
	loaded, err := NewStatistics(path, false)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Requests() != 20 {
		t.Errorf("Expected 20 requests after the last save, got %d", loaded.Requests())
	}
}

func TestPruneVisitors(t *testing.T) {
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	s, _ := NewStatistics("", false)
	s.now = func() time.Time { return now }

	s.TrackVisitor("1.1.1.1")
	s.UniqueVisitors["2.2.2.2"] = now.Add(-23 * time.Hour)
	s.UniqueVisitors["3.3.3.3"] = now.Add(-25 * time.Hour)
	s.UniqueVisitors["4.4.4.4"] = now.Add(-24 * time.Hour)

	s.Prune()
	if len(s.UniqueVisitors) != 2 {
		t.Errorf("Expected 2 recent visitors kept, got %v", s.UniqueVisitors)
	}
	if _, ok := s.UniqueVisitors["3.3.3.3"]; ok {
		t.Error("Expected stale visitor to be pruned")
	}
	if got := s.GetStatistics()["uniqueVisitors24h"]; got != 2 {
		t.Errorf("Expected count unchanged by pruning, got %v", got)
	}
}

func TestNewLogger(t *testing.T) {
	if _, err := New("development", "debug"); err != nil {
		t.Errorf("Expected dev logger, got %v", err)
	}
	if _, err := New("production", ""); err != nil {
		t.Errorf("Expected prod logger, got %v", err)
	}
	if _, err := New("production", "loud"); err == nil {
		t.Error("Expected error for unknown level")
	}
}
