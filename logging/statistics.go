package logging

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

// PopularLimit caps the popular sites returned in development mode
const PopularLimit = 5

// Statistics represents the collected traffic statistics
type Statistics struct {
	UniqueVisitors   map[string]time.Time `json:"uniqueVisitors"`   // IP -> Last Visit Time
	AnalysisRequests int                  `json:"analysisRequests"` // analyze + aeo requests
	ErrorCount       int                  `json:"errorCount"`
	PopularSites     map[string]int       `json:"popularSites"` // site -> Count
	TotalLoadTime    float64              `json:"totalLoadTime"`
	LastPersisted    time.Time            `json:"lastPersisted"`

	mutex    sync.RWMutex
	saveMu   sync.Mutex
	filePath string
	devMode  bool
	now      func() time.Time
}

// PopularSite is one row of the popular-sites table
type PopularSite struct {
	Site  string `json:"site"`
	Count int    `json:"count"`
}

// NewStatistics creates the tracker and loads filePath if it exists. An empty
// filePath keeps statistics in memory only.
func NewStatistics(filePath string, devMode bool) (*Statistics, error) {
	s := &Statistics{
		UniqueVisitors: make(map[string]time.Time),
		PopularSites:   make(map[string]int),
		filePath:       filePath,
		devMode:        devMode,
		now:            time.Now,
	}
	if err := s.load(); err != nil {
		return s, err
	}
	return s, nil
}

// TrackVisitor records a unique visitor
func (s *Statistics) TrackVisitor(ip string) {
	if ip == "" {
		return
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.UniqueVisitors[ip] = s.now()
}

// cleanSite reduces a submitted website to scheme://host[/path], or "" for
// local and API addresses
func cleanSite(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}

	host := strings.ToLower(u.Host)
	if strings.Contains(host, "localhost") ||
		strings.Contains(host, "127.0.0.1") ||
		strings.Contains(strings.ToLower(u.Path), "/api/") {
		return ""
	}

	site := u.Scheme + "://" + host
	if u.Path != "" && u.Path != "/" {
		site += u.Path
	}
	return strings.TrimSuffix(site, "/")
}

// TrackAnalysis records one analysis request for website
func (s *Statistics) TrackAnalysis(website string, loadTime time.Duration, hasError bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.AnalysisRequests++
	if site := cleanSite(website); site != "" {
		s.PopularSites[site]++
	}
	if hasError {
		s.ErrorCount++
	}
	s.TotalLoadTime += float64(loadTime.Milliseconds())
}

// Requests returns the number of tracked analysis requests
func (s *Statistics) Requests() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.AnalysisRequests
}

// uniqueVisitors counts visitors in the last 24 hours. Callers hold the lock.
func (s *Statistics) uniqueVisitors() int {
	cutoff := s.now().Add(-24 * time.Hour)
	count := 0
	for _, lastVisit := range s.UniqueVisitors {
		if lastVisit.After(cutoff) {
			count++
		}
	}
	return count
}

func (s *Statistics) errorRate() float64 {
	if s.AnalysisRequests == 0 {
		return 0
	}
	return float64(s.ErrorCount) / float64(s.AnalysisRequests) * 100
}

func (s *Statistics) averageLoadTime() float64 {
	if s.AnalysisRequests == 0 {
		return 0
	}
	return s.TotalLoadTime / float64(s.AnalysisRequests)
}

// popular returns the n most analyzed sites, ties ordered by site
func (s *Statistics) popular(n int) []PopularSite {
	rows := make([]PopularSite, 0, len(s.PopularSites))
	for site, count := range s.PopularSites {
		rows = append(rows, PopularSite{Site: site, Count: count})
	}
	slices.SortFunc(rows, func(a, b PopularSite) int {
		if a.Count != b.Count {
			return b.Count - a.Count
		}
		return strings.Compare(a.Site, b.Site)
	})
	if len(rows) > n {
		rows = rows[:n]
	}
	return rows
}

// GetStatistics returns a snapshot. Popular sites are included only in
// development mode.
func (s *Statistics) GetStatistics() map[string]any {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	out := map[string]any{
		"uniqueVisitors24h": s.uniqueVisitors(),
		"totalRequests":     s.AnalysisRequests,
		"errorRate":         s.errorRate(),
		"averageLoadTime":   s.averageLoadTime(),
	}
	if s.devMode {
		out["popularSites"] = s.popular(PopularLimit)
	}
	return out
}

// Prune drops visitors not seen in the last 24 hours
func (s *Statistics) Prune() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	cutoff := s.now().Add(-24 * time.Hour)
	for ip, lastVisit := range s.UniqueVisitors {
		if !lastVisit.After(cutoff) {
			delete(s.UniqueVisitors, ip)
		}
	}
}

// Save persists the statistics, replacing the file atomically. Concurrent
// saves are serialized.
func (s *Statistics) Save() error {
	if s.filePath == "" {
		return nil
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mutex.Lock()
	s.LastPersisted = s.now()
	data, err := json.Marshal(s)
	s.mutex.Unlock()
	if err != nil {
		return fmt.Errorf("could not encode statistics: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o755); err != nil {
		return fmt.Errorf("could not create statistics dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.filePath), filepath.Base(s.filePath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("could not create statistics file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("could not write statistics file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("could not write statistics file: %w", err)
	}
	return os.Rename(tmp.Name(), s.filePath)
}

func (s *Statistics) load() error {
	if s.filePath == "" {
		return nil
	}
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("could not open statistics file: %w", err)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if err := json.Unmarshal(data, s); err != nil {
		return fmt.Errorf("could not decode statistics: %w", err)
	}
	if s.UniqueVisitors == nil {
		s.UniqueVisitors = make(map[string]time.Time)
	}
	if s.PopularSites == nil {
		s.PopularSites = make(map[string]int)
	}
	return nil
}
