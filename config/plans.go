package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aeo-scorer/backend/models"
)

// FallbackPlan is used for identities whose plan is unknown.
const FallbackPlan = "free"

// Plans is the plan catalogue keyed by lower-case name.
type Plans map[string]models.Plan

// DefaultPlans returns the built-in catalogue.
func DefaultPlans() Plans {
	return Plans{
		"trial":      {Name: "trial", MonthlyAnalyses: 3, RateLimit: 3, RateWindowSeconds: 60},
		"free":       {Name: "free", MonthlyAnalyses: 5, RateLimit: 5, RateWindowSeconds: 60},
		"starter":    {Name: "starter", MonthlyAnalyses: 50, MonthlyCostLimit: 10, RateLimit: 10, RateWindowSeconds: 60, RealAnalysis: true},
		"pro":        {Name: "pro", MonthlyAnalyses: 500, MonthlyCostLimit: 100, RateLimit: 30, RateWindowSeconds: 60, RealAnalysis: true},
		"enterprise": {Name: "enterprise", RateLimit: 120, RateWindowSeconds: 60, RealAnalysis: true, Unlimited: true},
		"admin":      {Name: "admin", RealAnalysis: true, Unlimited: true},
	}
}

// Lookup resolves a plan name, falling back to FallbackPlan.
func (p Plans) Lookup(name string) models.Plan {
	if plan, ok := p[strings.ToLower(strings.TrimSpace(name))]; ok {
		return plan
	}
	if plan, ok := p[FallbackPlan]; ok {
		return plan
	}
	return models.Plan{Name: FallbackPlan, MonthlyAnalyses: 1, RateLimit: 1}
}

type rawPlan struct {
	MonthlyAnalyses   *int     `yaml:"monthly_analyses"`
	MonthlyCostLimit  *float64 `yaml:"monthly_cost_limit"`
	RateLimit         *int     `yaml:"rate_limit"`
	RateWindowSeconds *int     `yaml:"rate_window_seconds"`
	RealAnalysis      *bool    `yaml:"real_analysis"`
	Unlimited         *bool    `yaml:"unlimited"`
}

type rawPlansFile struct {
	Plans map[string]rawPlan `yaml:"plans"`
}

// LoadPlans returns the default catalogue overlaid with the YAML file at
// path. An empty path returns the defaults.
func LoadPlans(path string) (Plans, error) {
	plans := DefaultPlans()
	if strings.TrimSpace(path) == "" {
		return plans, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plans file: %w", err)
	}
	if err := plans.Merge(data); err != nil {
		return nil, fmt.Errorf("parse plans file %s: %w", path, err)
	}
	return plans, nil
}

// Merge overlays a YAML plans document onto p. Omitted fields keep their
// current values; unknown plans start from zero limits.
func (p Plans) Merge(data []byte) error {
	var raw rawPlansFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return err
	}
	for name, rp := range raw.Plans {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			continue
		}
		plan, ok := p[key]
		if !ok {
			plan = models.Plan{Name: key}
		}
		if rp.MonthlyAnalyses != nil {
			plan.MonthlyAnalyses = *rp.MonthlyAnalyses
		}
		if rp.MonthlyCostLimit != nil {
			plan.MonthlyCostLimit = *rp.MonthlyCostLimit
		}
		if rp.RateLimit != nil {
			plan.RateLimit = *rp.RateLimit
		}
		if rp.RateWindowSeconds != nil {
			plan.RateWindowSeconds = *rp.RateWindowSeconds
		}
		if rp.RealAnalysis != nil {
			plan.RealAnalysis = *rp.RealAnalysis
		}
		if rp.Unlimited != nil {
			plan.Unlimited = *rp.Unlimited
		}
		if plan.MonthlyAnalyses < 0 || plan.RateLimit < 0 || plan.MonthlyCostLimit < 0 {
			return fmt.Errorf("plan %s: limits must not be negative", key)
		}
		p[key] = plan
	}
	return nil
}
