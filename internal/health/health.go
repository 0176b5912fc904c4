// Package health derives the service health status from data-source reachability,
// shutdown state and recent traffic.
package health

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/climate-api/internal/traffic"
)

// Status values reported by /health.
const (
	StatusHealthy      = "healthy"
	StatusIdle         = "idle"
	StatusDegraded     = "degraded"
	StatusOverloaded   = "overloaded"
	StatusShuttingDown = "shutting-down"
)

// Pinger checks data-source reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds lifecycle thresholds. Zero windows or percentages disable the matching check.
type Config struct {
	OverloadWindow         time.Duration
	OverloadThresholdPct   int
	RateLimitRPS           int // 0 when the rate limiter is disabled
	IdleWindow             time.Duration
	IdleThresholdReqPerMin int
	MinimumLifespan        time.Duration
	DegradedWindow         time.Duration
	DegradedErrorPct       int
	PingTimeout            time.Duration
	StartTime              time.Time
}

// Report is the outcome of one evaluation.
type Report struct {
	Status     string
	StatusCode int
	Reason     string
	Checks     map[string]string
}

// Checker evaluates health. Safe for concurrent use.
type Checker struct {
	cfg          Config
	db           Pinger
	traffic      *traffic.Tracker
	logger       *zap.Logger
	shuttingDown atomic.Bool

	mu         sync.Mutex
	lastStatus string
}

// NewChecker returns a Checker. tracker may be nil, which disables traffic-based states.
func NewChecker(cfg Config, db Pinger, tracker *traffic.Tracker, logger *zap.Logger) *Checker {
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = time.Second
	}
	if cfg.StartTime.IsZero() {
		cfg.StartTime = time.Now()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{cfg: cfg, db: db, traffic: tracker, logger: logger}
}

// SetShuttingDown sets the drain flag. Call when SIGTERM/SIGINT is received.
func (c *Checker) SetShuttingDown(v bool) {
	c.shuttingDown.Store(v)
}

// IsShuttingDown reports whether the process is draining.
func (c *Checker) IsShuttingDown() bool {
	return c.shuttingDown.Load()
}

// Evaluate computes the current status. Decision order:
// shutting-down > database unreachable > overloaded > idle > degraded > healthy.
// Status changes are logged.
func (c *Checker) Evaluate(ctx context.Context) Report {
	r := c.evaluate(ctx)

	c.mu.Lock()
	prev := c.lastStatus
	c.lastStatus = r.Status
	c.mu.Unlock()
	if prev != "" && prev != r.Status {
		c.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", r.Status),
			zap.String("reason", r.Reason))
	}
	return r
}

func (c *Checker) evaluate(ctx context.Context) Report {
	checks := map[string]string{"database": "healthy"}

	if c.IsShuttingDown() {
		return Report{StatusShuttingDown, http.StatusServiceUnavailable, "signal", checks}
	}

	if c.db != nil {
		pingCtx, cancel := context.WithTimeout(ctx, c.cfg.PingTimeout)
		err := c.db.Ping(pingCtx)
		cancel()
		if err != nil {
			checks["database"] = "unhealthy"
			c.logger.Debug("database ping failed", zap.Error(err))
			return Report{StatusDegraded, http.StatusServiceUnavailable, "database_unreachable", checks}
		}
	}

	if c.traffic == nil {
		return Report{StatusHealthy, http.StatusOK, "", checks}
	}

	if c.cfg.RateLimitRPS > 0 && c.cfg.OverloadWindow > 0 && c.cfg.OverloadThresholdPct > 0 {
		threshold := float64(c.cfg.RateLimitRPS) * c.cfg.OverloadWindow.Seconds() * float64(c.cfg.OverloadThresholdPct) / 100
		if float64(c.traffic.Counts(c.cfg.OverloadWindow).Total()) > threshold {
			return Report{StatusOverloaded, http.StatusServiceUnavailable, "overload_threshold", checks}
		}
	}

	if c.cfg.IdleWindow > 0 && c.cfg.MinimumLifespan > 0 && time.Since(c.cfg.StartTime) >= c.cfg.MinimumLifespan {
		minRequests := float64(c.cfg.IdleThresholdReqPerMin) * c.cfg.IdleWindow.Minutes()
		if float64(c.traffic.Counts(c.cfg.IdleWindow).Total()) < minRequests {
			return Report{StatusIdle, http.StatusOK, "low_traffic", checks}
		}
	}

	if c.cfg.DegradedWindow > 0 && c.cfg.DegradedErrorPct > 0 {
		counts := c.traffic.Counts(c.cfg.DegradedWindow)
		if counts.Success+counts.Failure > 0 && counts.ErrorPct() >= float64(c.cfg.DegradedErrorPct) {
			return Report{StatusDegraded, http.StatusServiceUnavailable, "error_rate_breach", checks}
		}
	}

	return Report{StatusHealthy, http.StatusOK, "", checks}
}
