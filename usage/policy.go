package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aeo-scorer/backend/models"
)

var (
	ErrQuotaExceeded = errors.New("quota exceeded")
	ErrRateLimited   = errors.New("rate limited")
)

type LimitKind string

const (
	LimitQuota LimitKind = "quota"
	LimitRate  LimitKind = "rate"
)

// LimitError is returned when a policy check refuses a request. It is
// recoverable: the caller may retry after ResetTime.
type LimitError struct {
	Kind      LimitKind
	Reason    string
	ResetTime time.Time
}

func (e *LimitError) Error() string {
	if e.ResetTime.IsZero() {
		return fmt.Sprintf("%s limit: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("%s limit: %s (resets %s)", e.Kind, e.Reason, e.ResetTime.UTC().Format(time.RFC3339))
}

func (e *LimitError) Is(target error) bool {
	switch e.Kind {
	case LimitQuota:
		return target == ErrQuotaExceeded
	case LimitRate:
		return target == ErrRateLimited
	}
	return false
}

// Decision is the outcome of a single policy check.
type Decision struct {
	Allowed   bool      `json:"allowed"`
	Reason    string    `json:"reason,omitempty"`
	ResetTime time.Time `json:"resetTime,omitempty"`
}

// Policy tracks per-user budgets and request rates.
type Policy interface {
	CheckUsageLimits(ctx context.Context, userID string, plan models.Plan) (Decision, error)
	CheckRateLimit(ctx context.Context, userID string, plan models.Plan) (Decision, error)
	RecordRequest(ctx context.Context, userID string, plan models.Plan) error
	// Admit runs every check for one analysis and records it atomically.
	// Refusals are returned as *LimitError and spend nothing.
	Admit(ctx context.Context, id models.Identity, plan models.Plan) error
	// Release returns the monthly analysis taken by an admitted call that
	// then failed. The rate-window slot stays spent.
	Release(ctx context.Context, id models.Identity, plan models.Plan) error
	RecordCost(ctx context.Context, userID string, cost float64) error
	Usage(ctx context.Context, userID string, plan models.Plan) (Record, error)
}

// Bypass reports whether an identity skips usage and rate checks.
func Bypass(id models.Identity, plan models.Plan) bool {
	return id.IsAdmin() || plan.Unlimited
}

// Service implements Policy over a Store.
type Service struct {
	store Store
	now   func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) CheckUsageLimits(ctx context.Context, userID string, plan models.Plan) (Decision, error) {
	now := s.now()
	rec, err := s.store.Usage(ctx, userID, PeriodKey(now))
	if err != nil {
		return Decision{}, fmt.Errorf("load usage: %w", err)
	}
	if plan.MonthlyAnalyses > 0 && rec.Analyses >= plan.MonthlyAnalyses {
		return Decision{
			Reason:    fmt.Sprintf("monthly analysis limit of %d reached for the %s plan", plan.MonthlyAnalyses, plan.Name),
			ResetTime: PeriodReset(now),
		}, nil
	}
	if plan.MonthlyCostLimit > 0 && rec.Cost >= plan.MonthlyCostLimit {
		return Decision{
			Reason:    fmt.Sprintf("monthly cost budget of $%.2f reached for the %s plan", plan.MonthlyCostLimit, plan.Name),
			ResetTime: PeriodReset(now),
		}, nil
	}
	return Decision{Allowed: true}, nil
}

func (s *Service) CheckRateLimit(ctx context.Context, userID string, plan models.Plan) (Decision, error) {
	if plan.RateLimit <= 0 {
		return Decision{Allowed: true}, nil
	}
	n, err := s.store.Requests(ctx, userID, s.now(), plan.RateWindow())
	if err != nil {
		return Decision{}, fmt.Errorf("load requests: %w", err)
	}
	if n >= plan.RateLimit {
		return Decision{Reason: rateReason(plan)}, nil
	}
	return Decision{Allowed: true}, nil
}

func (s *Service) RecordRequest(ctx context.Context, userID string, plan models.Plan) error {
	_, _, err := s.store.AppendRequest(ctx, userID, s.now(), plan.RateWindow(), 0)
	return err
}

func (s *Service) Admit(ctx context.Context, id models.Identity, plan models.Plan) error {
	if Bypass(id, plan) {
		return s.RecordRequest(ctx, id.UserID, plan)
	}

	d, err := s.CheckUsageLimits(ctx, id.UserID, plan)
	if err != nil {
		return err
	}
	if !d.Allowed {
		return &LimitError{Kind: LimitQuota, Reason: d.Reason, ResetTime: d.ResetTime}
	}

	now := s.now()
	period := PeriodKey(now)
	_, ok, err := s.store.IncrementAnalyses(ctx, id.UserID, period, plan.MonthlyAnalyses)
	if err != nil {
		return fmt.Errorf("record analysis: %w", err)
	}
	if !ok {
		return &LimitError{
			Kind:      LimitQuota,
			Reason:    fmt.Sprintf("monthly analysis limit of %d reached for the %s plan", plan.MonthlyAnalyses, plan.Name),
			ResetTime: PeriodReset(now),
		}
	}

	ok, oldest, err := s.store.AppendRequest(ctx, id.UserID, now, plan.RateWindow(), plan.RateLimit)
	if err == nil && ok {
		return nil
	}
	if rerr := s.store.ReleaseAnalysis(ctx, id.UserID, period); rerr != nil {
		return fmt.Errorf("release analysis: %w", rerr)
	}
	if err != nil {
		return fmt.Errorf("record request: %w", err)
	}
	return &LimitError{Kind: LimitRate, Reason: rateReason(plan), ResetTime: oldest.Add(plan.RateWindow())}
}

func (s *Service) Release(ctx context.Context, id models.Identity, plan models.Plan) error {
	if Bypass(id, plan) {
		return nil
	}
	return s.store.ReleaseAnalysis(ctx, id.UserID, PeriodKey(s.now()))
}

func (s *Service) RecordCost(ctx context.Context, userID string, cost float64) error {
	if cost <= 0 {
		return nil
	}
	return s.store.AddCost(ctx, userID, PeriodKey(s.now()), cost)
}

func (s *Service) Usage(ctx context.Context, userID string, plan models.Plan) (Record, error) {
	now := s.now()
	rec, err := s.store.Usage(ctx, userID, PeriodKey(now))
	if err != nil {
		return rec, err
	}
	rec.Requests, err = s.store.Requests(ctx, userID, now, plan.RateWindow())
	return rec, err
}

func rateReason(plan models.Plan) string {
	return fmt.Sprintf("at most %d requests per %s on the %s plan", plan.RateLimit, plan.RateWindow(), plan.Name)
}
