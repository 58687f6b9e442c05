// Package traffic keeps sliding windows of screen request outcomes. The health
// endpoint reads the failure rate from here.
package traffic

import (
	"sync"
	"time"
)

// Outcome classifies one served screen request.
type Outcome int

const (
	// Success means every slot the session attempted was filled.
	Success Outcome = iota
	// Failure means a location lookup or weather fetch failed.
	Failure
	// Denied means the inbound rate limiter rejected the request.
	Denied
	numOutcomes
)

// retention bounds how far back any window can look.
const retention = 5 * time.Minute

var defaultTracker = NewTracker()

// Record adds one outcome to the process-wide tracker.
func Record(o Outcome) { defaultTracker.Record(o) }

// RecordN adds n identical outcomes at once. Used by the testing-mode endpoints.
func RecordN(o Outcome, n int) { defaultTracker.RecordN(o, n) }

// Count returns how many o outcomes fall inside window.
func Count(o Outcome, window time.Duration) int { return defaultTracker.Count(o, window) }

// Total returns all outcomes inside window, denials included.
func Total(window time.Duration) int { return defaultTracker.Total(window) }

// FailureRate returns (failures, served) inside window. Denied requests were
// never served and do not count toward either.
func FailureRate(window time.Duration) (failures, served int) {
	return defaultTracker.FailureRate(window)
}

// Reset clears the process-wide tracker.
func Reset() { defaultTracker.Reset() }

// Tracker holds outcome timestamps, oldest first, per Outcome.
type Tracker struct {
	mu     sync.Mutex
	events [numOutcomes][]time.Time
	now    func() time.Time
}

// NewTracker returns an empty Tracker on the wall clock.
func NewTracker() *Tracker {
	return &Tracker{now: time.Now}
}

// Record adds one outcome.
func (t *Tracker) Record(o Outcome) {
	t.RecordN(o, 1)
}

// RecordN adds n outcomes stamped with the same instant.
func (t *Tracker) RecordN(o Outcome, n int) {
	if o < 0 || o >= numOutcomes || n <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	for i := 0; i < n; i++ {
		t.events[o] = append(t.events[o], now)
	}
	t.pruneLocked(now)
}

// Count returns how many o outcomes fall inside window.
func (t *Tracker) Count(o Outcome, window time.Duration) int {
	if o < 0 || o >= numOutcomes {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return countSince(t.events[o], t.now().Add(-window))
}

// Total returns all outcomes inside window.
func (t *Tracker) Total(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	n := 0
	for o := range t.events {
		n += countSince(t.events[o], cutoff)
	}
	return n
}

// FailureRate returns (failures, successes+failures) inside window.
func (t *Tracker) FailureRate(window time.Duration) (failures, served int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	failures = countSince(t.events[Failure], cutoff)
	return failures, failures + countSince(t.events[Success], cutoff)
}

// Reset drops every recorded outcome.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for o := range t.events {
		t.events[o] = nil
	}
}

// countSince counts timestamps at or after cutoff. times is sorted.
func countSince(times []time.Time, cutoff time.Time) int {
	for i, ts := range times {
		if !ts.Before(cutoff) {
			return len(times) - i
		}
	}
	return 0
}

// pruneLocked drops timestamps older than retention. Caller holds t.mu.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-retention)
	for o, times := range t.events {
		i := 0
		for i < len(times) && times[i].Before(cutoff) {
			i++
		}
		if i > 0 {
			t.events[o] = append(times[:0], times[i:]...)
		}
	}
}
