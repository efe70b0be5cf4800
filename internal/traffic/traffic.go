// Package traffic keeps sliding windows of upstream call outcomes and
// inbound rate-limit denials. The health endpoint reads it to report
// degraded upstreams.
package traffic

import (
	"sort"
	"sync"
	"time"
)

var defaultTracker = NewTracker()

// RecordSuccess records a successful call to upstream.
func RecordSuccess(upstream string) {
	defaultTracker.RecordSuccess(upstream)
}

// RecordError records a failed call to upstream (5xx, timeout, parse failure).
func RecordError(upstream string) {
	defaultTracker.RecordError(upstream)
}

// RecordDenied records an inbound rate-limit denial (429).
func RecordDenied() {
	defaultTracker.RecordDenied()
}

// DenialCount returns the number of denials within the window.
func DenialCount(window time.Duration) int {
	return defaultTracker.DenialCount(window)
}

// ErrorRate returns (errorCount, totalCount) for upstream within the window.
func ErrorRate(upstream string, window time.Duration) (errors, total int) {
	return defaultTracker.ErrorRate(upstream, window)
}

// Upstreams returns the names of all upstreams with recorded outcomes, sorted.
func Upstreams() []string {
	return defaultTracker.Upstreams()
}

// Reset clears all recorded outcomes. For tests only.
func Reset() {
	defaultTracker.Reset()
}

// maxAge bounds memory: nothing older is ever queried.
const maxAge = 5 * time.Minute

type outcomes struct {
	successTimes []time.Time
	errorTimes   []time.Time
}

// Tracker maintains per-upstream sliding windows of outcome timestamps.
type Tracker struct {
	mu          sync.Mutex
	upstreams   map[string]*outcomes
	deniedTimes []time.Time
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{upstreams: make(map[string]*outcomes)}
}

// RecordSuccess records a successful call to upstream.
func (t *Tracker) RecordSuccess(upstream string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	o := t.outcomesLocked(upstream)
	now := time.Now()
	o.successTimes = append(prune(o.successTimes, now), now)
}

// RecordError records a failed call to upstream.
func (t *Tracker) RecordError(upstream string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	o := t.outcomesLocked(upstream)
	now := time.Now()
	o.errorTimes = append(prune(o.errorTimes, now), now)
}

// RecordDenied records a rate-limit denial.
func (t *Tracker) RecordDenied() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	t.deniedTimes = append(prune(t.deniedTimes, now), now)
}

// DenialCount returns the number of rate-limit denials within the window.
func (t *Tracker) DenialCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return countInWindow(t.deniedTimes, time.Now().Add(-window))
}

// ErrorRate returns (errorCount, totalCount) for upstream within the window.
// totalCount includes successes and errors.
func (t *Tracker) ErrorRate(upstream string, window time.Duration) (errors, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	o, ok := t.upstreams[upstream]
	if !ok {
		return 0, 0
	}
	cutoff := time.Now().Add(-window)
	errCount := countInWindow(o.errorTimes, cutoff)
	return errCount, errCount + countInWindow(o.successTimes, cutoff)
}

// Upstreams returns the names of all upstreams with recorded outcomes, sorted.
func (t *Tracker) Upstreams() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.upstreams))
	for name := range t.upstreams {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reset clears all recorded outcomes from the tracker.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.upstreams = make(map[string]*outcomes)
	t.deniedTimes = nil
}

func (t *Tracker) outcomesLocked(upstream string) *outcomes {
	o, ok := t.upstreams[upstream]
	if !ok {
		o = &outcomes{}
		t.upstreams[upstream] = o
	}
	return o
}

// countInWindow counts timestamps that are not before the cutoff time.
func countInWindow(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// prune drops timestamps older than maxAge. Slices are append-ordered.
func prune(times []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-maxAge)
	i := 0
	for ; i < len(times) && times[i].Before(cutoff); i++ {
	}
	if i == 0 {
		return times
	}
	return append(times[:0], times[i:]...)
}
