// Package budget enforces the daily request allowance for a polled upstream.
// The comment source API meters by calendar day, so the tracker counts
// requests between UTC reset boundaries and refuses once the allowance is
// spent. Warnings start before the hard stop so operators see exhaustion
// coming in the logs.
package budget

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ExhaustedError is returned once the daily allowance is fully spent.
type ExhaustedError struct {
	Upstream string
	Used     int64
	Limit    int64
	ResetsAt time.Time
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("daily budget exhausted for %s: %d/%d requests used, resets at %s",
		e.Upstream, e.Used, e.Limit, e.ResetsAt.Format("15:04 UTC"))
}

// WarningError is returned while the allowance is above the warning
// threshold but not yet spent. Requests are still permitted.
type WarningError struct {
	Upstream  string
	Used      int64
	Limit     int64
	Threshold float64
}

func (e *WarningError) Error() string {
	utilization := float64(e.Used) / float64(e.Limit) * 100
	return fmt.Sprintf("budget warning for %s: %.1f%% used (%d/%d), threshold %.1f%%",
		e.Upstream, utilization, e.Used, e.Limit, e.Threshold*100)
}

// IsExhausted reports whether err means the budget is spent for the day.
func IsExhausted(err error) bool {
	var e *ExhaustedError
	return errors.As(err, &e)
}

// IsWarning reports whether err is only the soft warning threshold.
func IsWarning(err error) bool {
	var e *WarningError
	return errors.As(err, &e)
}

// Tracker tracks daily request usage for a single upstream.
type Tracker struct {
	upstream      string
	limit         int64   // Daily request allowance
	used          int64   // Requests used today (atomic)
	resetHour     int     // UTC hour to reset (0-23)
	warnThreshold float64 // Warning threshold (0.0-1.0)
	lastReset     time.Time
	mu            sync.RWMutex
}

// NewTracker creates a budget tracker for the named upstream.
func NewTracker(upstream string, limit int64, resetHour int, warnThreshold float64) *Tracker {
	if resetHour < 0 || resetHour > 23 {
		resetHour = 0
	}
	if warnThreshold <= 0 || warnThreshold > 1 {
		warnThreshold = 0.8
	}

	now := time.Now().UTC()
	return &Tracker{
		upstream:      upstream,
		limit:         limit,
		resetHour:     resetHour,
		warnThreshold: warnThreshold,
		lastReset:     lastResetTime(now, resetHour),
	}
}

// lastResetTime calculates the most recent reset boundary before now.
func lastResetTime(now time.Time, resetHour int) time.Time {
	today := time.Date(now.Year(), now.Month(), now.Day(), resetHour, 0, 0, 0, time.UTC)
	if now.Hour() >= resetHour {
		return today
	}
	return today.AddDate(0, 0, -1)
}

func (t *Tracker) nextResetTime() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.lastReset.Add(24 * time.Hour)
}

// checkAndResetIfNeeded rolls the counter over when a reset boundary passed.
func (t *Tracker) checkAndResetIfNeeded() {
	now := time.Now().UTC()
	if !now.After(t.nextResetTime()) {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// Double-check after acquiring write lock
	if now.After(t.lastReset.Add(24 * time.Hour)) {
		atomic.StoreInt64(&t.used, 0)
		t.lastReset = lastResetTime(now, t.resetHour)
	}
}

// Allow reports whether another request fits in today's allowance without
// consuming it. An ExhaustedError blocks the request; a WarningError does not.
func (t *Tracker) Allow() error {
	t.checkAndResetIfNeeded()

	used := atomic.LoadInt64(&t.used)

	if used >= t.limit {
		return &ExhaustedError{
			Upstream: t.upstream,
			Used:     used,
			Limit:    t.limit,
			ResetsAt: t.nextResetTime(),
		}
	}

	if float64(used)/float64(t.limit) >= t.warnThreshold {
		return &WarningError{
			Upstream:  t.upstream,
			Used:      used,
			Limit:     t.limit,
			Threshold: t.warnThreshold,
		}
	}

	return nil
}

// Consume records one request against today's allowance. The request is
// rejected, and the counter unchanged, when the allowance is already spent.
func (t *Tracker) Consume() error {
	t.checkAndResetIfNeeded()

	used := atomic.AddInt64(&t.used, 1)

	if used > t.limit {
		atomic.AddInt64(&t.used, -1)
		return &ExhaustedError{
			Upstream: t.upstream,
			Used:     used - 1,
			Limit:    t.limit,
			ResetsAt: t.nextResetTime(),
		}
	}

	if float64(used)/float64(t.limit) >= t.warnThreshold {
		return &WarningError{
			Upstream:  t.upstream,
			Used:      used,
			Limit:     t.limit,
			Threshold: t.warnThreshold,
		}
	}

	return nil
}

// Remaining returns how many requests are left before the hard stop.
func (t *Tracker) Remaining() int64 {
	t.checkAndResetIfNeeded()

	remaining := t.limit - atomic.LoadInt64(&t.used)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Stats returns current budget statistics.
func (t *Tracker) Stats() Stats {
	t.checkAndResetIfNeeded()

	t.mu.RLock()
	defer t.mu.RUnlock()

	used := atomic.LoadInt64(&t.used)
	utilization := float64(used) / float64(t.limit)

	return Stats{
		Upstream:        t.upstream,
		Limit:           t.limit,
		Used:            used,
		Remaining:       t.limit - used,
		UtilizationRate: utilization,
		WarnThreshold:   t.warnThreshold,
		ResetHour:       t.resetHour,
		LastReset:       t.lastReset,
		NextReset:       t.lastReset.Add(24 * time.Hour),
		IsWarning:       utilization >= t.warnThreshold,
		IsExhausted:     used >= t.limit,
	}
}

// Reset manually clears the usage counter, starting a fresh day now.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	atomic.StoreInt64(&t.used, 0)
	t.lastReset = time.Now().UTC()
}

// Stats represents budget tracker statistics.
type Stats struct {
	Upstream        string    `json:"upstream"`
	Limit           int64     `json:"limit"`
	Used            int64     `json:"used"`
	Remaining       int64     `json:"remaining"`
	UtilizationRate float64   `json:"utilization_rate"`
	WarnThreshold   float64   `json:"warn_threshold"`
	ResetHour       int       `json:"reset_hour"`
	LastReset       time.Time `json:"last_reset"`
	NextReset       time.Time `json:"next_reset"`
	IsWarning       bool      `json:"is_warning"`
	IsExhausted     bool      `json:"is_exhausted"`
}

// TimeToReset returns the duration until the next budget reset.
func (s *Stats) TimeToReset() time.Duration {
	return time.Until(s.NextReset)
}
