// Package lifecycle owns the process health state reported by /health.
package lifecycle

import (
	"sync/atomic"
	"time"

	"github.com/kjstillabower/weather-screen-service/internal/traffic"
)

// Health statuses, most severe first.
const (
	StatusShuttingDown = "shutting-down"
	StatusOverloaded   = "overloaded"
	StatusDegraded     = "degraded"
	StatusHealthy      = "healthy"
)

var shuttingDown atomic.Bool

// SetShuttingDown sets the drain flag. Call when SIGTERM/SIGINT is received.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown reports whether the process is draining.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}

// Policy holds the overload and degraded thresholds. A zero window or
// percentage disables that check.
type Policy struct {
	OverloadWindow    time.Duration
	OverloadDeniedPct int
	DegradedWindow    time.Duration
	DegradedErrorPct  int
}

// Health is one evaluation of the process state.
type Health struct {
	Status   string
	Reason   string
	Failures int
	Served   int
	Denied   int
	Total    int
}

// Evaluate checks shutting-down, then the share of requests rejected by the
// rate limiter, then the failure rate of served screens.
func (p Policy) Evaluate() Health {
	if IsShuttingDown() {
		return Health{Status: StatusShuttingDown, Reason: "signal"}
	}
	h := Health{Status: StatusHealthy}
	if p.OverloadWindow > 0 && p.OverloadDeniedPct > 0 {
		h.Denied = traffic.Count(traffic.Denied, p.OverloadWindow)
		h.Total = traffic.Total(p.OverloadWindow)
		if h.Denied > 0 && h.Denied*100 >= p.OverloadDeniedPct*h.Total {
			h.Status = StatusOverloaded
			h.Reason = "overload_threshold"
			return h
		}
	}
	if p.DegradedWindow <= 0 || p.DegradedErrorPct <= 0 {
		return h
	}
	h.Failures, h.Served = traffic.FailureRate(p.DegradedWindow)
	if h.Served > 0 && h.Failures*100 >= p.DegradedErrorPct*h.Served {
		h.Status = StatusDegraded
		h.Reason = "error_rate_breach"
	}
	return h
}
