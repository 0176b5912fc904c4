// Package traffic keeps sliding windows of request outcomes for health evaluation.
package traffic

import (
	"sync"
	"time"
)

// Outcome classifies one API request.
type Outcome int

const (
	Success Outcome = iota // answered, including 4xx caused by client input
	Failure                // data source or server error
	Denied                 // rejected by the rate limiter
)

// retention bounds memory; windows longer than this undercount.
const retention = 30 * time.Minute

// Counts holds outcome totals within a window.
type Counts struct {
	Success int
	Failure int
	Denied  int
}

// Total returns all outcomes, denials included.
func (c Counts) Total() int {
	return c.Success + c.Failure + c.Denied
}

// ErrorPct returns failures as a percentage of answered requests (denials excluded).
// Zero when nothing was answered.
func (c Counts) ErrorPct() float64 {
	answered := c.Success + c.Failure
	if answered == 0 {
		return 0
	}
	return float64(c.Failure) * 100 / float64(answered)
}

type event struct {
	at      time.Time
	outcome Outcome
}

// Tracker records timestamped outcomes. Safe for concurrent use; the zero value is ready.
type Tracker struct {
	mu     sync.Mutex
	events []event
	now    func() time.Time
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

func (t *Tracker) clock() time.Time {
	if t.now != nil {
		return t.now()
	}
	return time.Now()
}

// Record adds one outcome at the current time.
func (t *Tracker) Record(o Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock()
	t.events = append(t.events, event{at: now, outcome: o})
	t.pruneLocked(now)
}

// Counts returns outcome totals within the window ending now.
func (t *Tracker) Counts(window time.Duration) Counts {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.clock().Add(-window)
	var c Counts
	for i := len(t.events) - 1; i >= 0 && !t.events[i].at.Before(cutoff); i-- {
		switch t.events[i].outcome {
		case Success:
			c.Success++
		case Failure:
			c.Failure++
		case Denied:
			c.Denied++
		}
	}
	return c
}

// Reset clears all recorded outcomes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = nil
}

// pruneLocked drops events older than retention. Events are appended in time order.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-retention)
	i := 0
	for ; i < len(t.events) && t.events[i].at.Before(cutoff); i++ {
	}
	if i > 0 {
		t.events = append(t.events[:0], t.events[i:]...)
	}
}
