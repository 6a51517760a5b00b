package models

import "time"

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
	RoleDemo  Role = "demo"
)

// Identity is the authenticated caller of an analysis.
type Identity struct {
	UserID string `json:"userId"`
	Plan   string `json:"plan"`
	Role   Role   `json:"role"`
}

func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

func (i Identity) IsDemo() bool { return i.Role == RoleDemo }

// Plan describes the limits and capabilities of a subscription tier.
type Plan struct {
	Name              string  `json:"name" yaml:"name"`
	MonthlyAnalyses   int     `json:"monthlyAnalyses" yaml:"monthly_analyses"`
	MonthlyCostLimit  float64 `json:"monthlyCostLimit" yaml:"monthly_cost_limit"`
	RateLimit         int     `json:"rateLimit" yaml:"rate_limit"`
	RateWindowSeconds int     `json:"rateWindowSeconds" yaml:"rate_window_seconds"`
	RealAnalysis      bool    `json:"realAnalysis" yaml:"real_analysis"`
	Unlimited         bool    `json:"unlimited" yaml:"unlimited"`
}

// RateWindow is the sliding window used for request-rate limiting.
func (p Plan) RateWindow() time.Duration {
	if p.RateWindowSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(p.RateWindowSeconds) * time.Second
}
