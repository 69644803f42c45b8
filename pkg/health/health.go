package health

import (
	"context"
	"time"
)

// CheckType represents the type of health check
type CheckType string

const (
	CheckTypeStore   CheckType = "store"
	CheckTypeDataDir CheckType = "datadir"
	CheckTypeExec    CheckType = "exec"
)

// Result represents the outcome of a health check
type Result struct {
	Healthy   bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration
}

// Checker is the interface that all health checkers must implement
type Checker interface {
	// Check performs the health check and returns the result
	Check(ctx context.Context) Result

	// Type returns the type of health check
	Type() CheckType
}

// Named attaches a display name to a checker
type Named struct {
	Name    string
	Checker Checker
	// Optional checks do not make the report unhealthy
	Optional bool
}

// Report is the outcome of one named check
type Report struct {
	Name     string
	Type     CheckType
	Optional bool
	Result   Result
}

// Config contains common configuration for all health checks
type Config struct {
	// Timeout is the maximum time to wait for a single check
	Timeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Timeout: 10 * time.Second,
	}
}

// Run performs every check in order, each bounded by cfg.Timeout, and
// reports whether all required checks passed.
func Run(ctx context.Context, cfg Config, checks []Named) ([]Report, bool) {
	reports := make([]Report, 0, len(checks))
	healthy := true

	for _, c := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		result := c.Checker.Check(checkCtx)
		cancel()

		if !result.Healthy && !c.Optional {
			healthy = false
		}
		reports = append(reports, Report{
			Name:     c.Name,
			Type:     c.Checker.Type(),
			Optional: c.Optional,
			Result:   result,
		})
	}

	return reports, healthy
}

func failed(start time.Time, message string) Result {
	return Result{
		Healthy:   false,
		Message:   message,
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

func passed(start time.Time, message string) Result {
	return Result{
		Healthy:   true,
		Message:   message,
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}
