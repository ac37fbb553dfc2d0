// Package healthcheck provides a small multi-component health checker used
// by the HTTP surface's /health/ready and /health/detailed endpoints.
package healthcheck

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// HealthCheck is the interface that must be implemented to be compatible
// with HealthChecker.
type HealthCheck interface {
	Name() string
	Check(context.Context) error
}

// HealthChecker helps with writing multi component health checkers.
type HealthChecker struct {
	checks []HealthCheck
}

// NewHealthChecker configures a new health checker with the passed in checks.
func NewHealthChecker(checks ...HealthCheck) *HealthChecker {
	return &HealthChecker{
		checks: checks,
	}
}

// Check runs all configured health checks and returns an error if any of the
// checks fail.
func (c *HealthChecker) Check(ctx context.Context) error {
	var eg errgroup.Group

	for _, check := range c.checks {
		eg.Go(func() error {
			return check.Check(ctx)
		})
	}

	return eg.Wait()
}

// ComponentStatus is the per-component result used by /health/detailed.
type ComponentStatus struct {
	Name      string `json:"name"`
	Healthy   bool   `json:"healthy"`
	Error     string `json:"error,omitempty"`
	DurationMS int64 `json:"duration_ms"`
}

// CheckDetailed runs every configured check independently (one failing check
// does not short-circuit the rest) and reports a status per component, for
// callers that need the full picture rather than a single pass/fail bit.
func (c *HealthChecker) CheckDetailed(ctx context.Context) []ComponentStatus {
	statuses := make([]ComponentStatus, len(c.checks))
	var eg errgroup.Group

	for i, check := range c.checks {
		i, check := i, check
		eg.Go(func() error {
			start := time.Now()
			err := check.Check(ctx)
			statuses[i] = ComponentStatus{
				Name:       check.Name(),
				Healthy:    err == nil,
				DurationMS: time.Since(start).Milliseconds(),
			}
			if err != nil {
				statuses[i].Error = err.Error()
			}
			return nil
		})
	}

	_ = eg.Wait()
	return statuses
}
