// Package interrupt provides a time-budget token that evaluation polls at safe
// points. The token never stops anything by itself; it only answers whether the
// budget is spent.
package interrupt

import "time"

// Interrupt is polled by the evaluator between units of work.
type Interrupt interface {
	ShouldInterrupt() bool
}

// Timeout fires once the wall-clock time elapsed since its creation exceeds its budget.
type Timeout struct {
	start  time.Time
	budget time.Duration
	now    func() time.Time
}

// New returns a token with a budget of timeoutMs milliseconds, starting now.
// Negative budgets are treated as zero.
func New(timeoutMs int64) *Timeout {
	return NewAt(time.Now(), time.Duration(timeoutMs)*time.Millisecond, time.Now)
}

// NewAt builds a token from an explicit start and clock.
func NewAt(start time.Time, budget time.Duration, now func() time.Time) *Timeout {
	if budget < 0 {
		budget = 0
	}
	if now == nil {
		now = time.Now
	}
	return &Timeout{
		start:  start,
		budget: budget,
		now:    now,
	}
}

// ShouldInterrupt reports whether the elapsed time is strictly greater than the budget.
// time.Now carries a monotonic reading, so once this is true it stays true.
func (t *Timeout) ShouldInterrupt() bool {
	return t.now().Sub(t.start) > t.budget
}

func (t *Timeout) Budget() time.Duration {
	return t.budget
}

// Remaining is the unspent part of the budget, never negative.
func (t *Timeout) Remaining() time.Duration {
	left := t.budget - t.now().Sub(t.start)
	if left < 0 {
		return 0
	}
	return left
}

// Never is an Interrupt that never fires.
var Never Interrupt = never{}

type never struct{}

func (never) ShouldInterrupt() bool { return false }
