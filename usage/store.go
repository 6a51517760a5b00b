package usage

import (
	"context"
	"time"
)

// Record is a user's usage for one billing period.
type Record struct {
	UserID   string  `json:"userId"`
	Period   string  `json:"period"`
	Analyses int     `json:"analyses"`
	Cost     float64 `json:"cost"`
	Requests int     `json:"requests"` // inside the current rate window
}

// Store persists usage counters. Implementations must make
// IncrementAnalyses and AppendRequest atomic per user.
type Store interface {
	// Usage returns the counters for a period; a missing record is zero.
	Usage(ctx context.Context, userID, period string) (Record, error)
	// IncrementAnalyses adds one analysis unless the count already reached
	// limit (limit <= 0 means no limit). It reports the resulting count.
	IncrementAnalyses(ctx context.Context, userID, period string, limit int) (int, bool, error)
	// ReleaseAnalysis takes back one analysis, never going below zero.
	ReleaseAnalysis(ctx context.Context, userID, period string) error
	// AddCost adds cost to the period total.
	AddCost(ctx context.Context, userID, period string, cost float64) error
	// AppendRequest prunes timestamps older than window and appends now
	// unless limit entries remain (limit <= 0 means no limit). When refused
	// it returns the oldest timestamp still in the window.
	AppendRequest(ctx context.Context, userID string, now time.Time, window time.Duration, limit int) (bool, time.Time, error)
	// Requests counts the timestamps inside the window ending at now.
	Requests(ctx context.Context, userID string, now time.Time, window time.Duration) (int, error)
}

// PeriodKey returns the billing period containing t.
func PeriodKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// PeriodReset returns the first instant of the period after t.
func PeriodReset(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month()+1, 1, 0, 0, 0, 0, time.UTC)
}
