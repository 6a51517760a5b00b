package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MonthlyStats is the analysis ledger for one month
type MonthlyStats struct {
	Analyses          int       `json:"analyses"`
	RealAnalyses      int       `json:"real_analyses"`
	SimulatedAnalyses int       `json:"simulated_analyses"`
	AEOAnalyses       int       `json:"aeo_analyses"`
	CrawlFallbacks    int       `json:"crawl_fallbacks"`
	CrawlCacheHits    int       `json:"crawl_cache_hits"`
	CrawlCacheMisses  int       `json:"crawl_cache_misses"`
	TotalCost         float64   `json:"total_cost"`
	LastUpdated       time.Time `json:"last_updated"`
}

// Event is a set of increments applied to the current month.
type Event struct {
	Analyses    int
	Real        int
	Simulated   int
	AEO         int
	Fallbacks   int
	CacheHits   int
	CacheMisses int
	Cost        float64
}

// Storage keeps the monthly ledger in memory and persists it to disk
type Storage struct {
	mutex       sync.RWMutex
	stats       map[string]*MonthlyStats // key: "YYYY-MM"
	filePath    string
	lastWrite   time.Time
	writeBuffer chan struct{}
	stop        chan struct{}
	done        chan struct{}
	stopOnce    sync.Once
	now         func() time.Time
	log         *zap.Logger
}

// NewStorage loads DATA_DIR/stats.json if present and starts the background writer
func NewStorage(dataDir string, log *zap.Logger) (*Storage, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}

	s := &Storage{
		stats:       make(map[string]*MonthlyStats),
		filePath:    filepath.Join(dataDir, "stats.json"),
		writeBuffer: make(chan struct{}, 1),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
		now:         time.Now,
		log:         log,
	}

	if err := s.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load stats: %w", err)
	}

	go s.backgroundWriter()
	return s, nil
}

func (s *Storage) load() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	return json.Unmarshal(data, &s.stats)
}

// save writes the ledger to a temporary file and renames it into place
func (s *Storage) save() error {
	s.mutex.RLock()
	data, err := json.Marshal(s.stats)
	s.mutex.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}

	tempFile := s.filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := os.Rename(tempFile, s.filePath); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}

func (s *Storage) backgroundWriter() {
	defer close(s.done)
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.writeBuffer:
		case <-ticker.C:
		case <-s.stop:
			return
		}
		if err := s.save(); err != nil {
			s.log.Error("stats write failed", zap.Error(err))
		}
	}
}

func (s *Storage) currentMonth() string {
	return s.now().UTC().Format("2006-01")
}

// requestWrite signals the writer without blocking
func (s *Storage) requestWrite() {
	select {
	case s.writeBuffer <- struct{}{}:
	default:
	}
}

// Record applies e to the current month
func (s *Storage) Record(e Event) {
	month := s.currentMonth()

	s.mutex.Lock()
	defer s.mutex.Unlock()

	m, ok := s.stats[month]
	if !ok {
		m = &MonthlyStats{}
		s.stats[month] = m
	}
	m.Analyses += e.Analyses
	m.RealAnalyses += e.Real
	m.SimulatedAnalyses += e.Simulated
	m.AEOAnalyses += e.AEO
	m.CrawlFallbacks += e.Fallbacks
	m.CrawlCacheHits += e.CacheHits
	m.CrawlCacheMisses += e.CacheMisses
	m.TotalCost += e.Cost
	m.LastUpdated = s.now()

	if s.now().Sub(s.lastWrite) > time.Minute {
		s.requestWrite()
		s.lastWrite = s.now()
	}
}

// GetCurrentStats returns the ledger for the current month
func (s *Storage) GetCurrentStats() MonthlyStats {
	month := s.currentMonth()

	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if m, ok := s.stats[month]; ok {
		return *m
	}
	return MonthlyStats{}
}

// Cleanup keeps only the current and previous month
func (s *Storage) Cleanup() {
	now := s.now().UTC()
	current := now.Format("2006-01")
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	previous := first.AddDate(0, -1, 0).Format("2006-01")

	s.mutex.Lock()
	for key := range s.stats {
		if key != current && key != previous {
			delete(s.stats, key)
		}
	}
	s.mutex.Unlock()

	s.requestWrite()
	s.log.Debug("stats cleanup", zap.String("current", current), zap.String("previous", previous))
}

// GetMonthlyStats returns the ledger for a YYYY-MM month
func (s *Storage) GetMonthlyStats(yearMonth string) (MonthlyStats, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if m, ok := s.stats[yearMonth]; ok {
		return *m, true
	}
	return MonthlyStats{}, false
}

// GetAllMonths lists months with data, newest first
func (s *Storage) GetAllMonths() []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	months := make([]string, 0, len(s.stats))
	for month := range s.stats {
		months = append(months, month)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(months)))
	return months
}

// Shutdown stops the writer and flushes the ledger to disk
func (s *Storage) Shutdown() error {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
	return s.save()
}
