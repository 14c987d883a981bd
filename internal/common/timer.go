// Package common provides small shared helpers for timing pipeline stages.
package common

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Timer measures a single named span.
type Timer struct {
	start    time.Time
	name     string
	duration time.Duration
}

// NewNamedTimer starts a timer with the given name.
func NewNamedTimer(name string) *Timer {
	return &Timer{name: name, start: time.Now()}
}

// Stop records and returns the elapsed duration.
func (t *Timer) Stop() time.Duration {
	t.duration = time.Since(t.start)
	return t.duration
}

// Duration returns the recorded duration (only valid after Stop).
func (t *Timer) Duration() time.Duration { return t.duration }

// Name returns the timer name.
func (t *Timer) Name() string { return t.name }

func (t *Timer) String() string {
	return fmt.Sprintf("%s: %v", t.name, t.duration)
}

// StageTimings accumulates durations per stage. Safe for concurrent use so
// workers can report the time spent in each stage of a render job.
type StageTimings struct {
	mu     sync.Mutex
	totals map[string]time.Duration
	counts map[string]int
}

// NewStageTimings returns an empty accumulator.
func NewStageTimings() *StageTimings {
	return &StageTimings{
		totals: make(map[string]time.Duration),
		counts: make(map[string]int),
	}
}

// Add records one observation for stage.
func (s *StageTimings) Add(stage string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totals[stage] += d
	s.counts[stage]++
}

// Record stops t and adds it under its name.
func (s *StageTimings) Record(t *Timer) {
	s.Add(t.Name(), t.Stop())
}

// Total returns the accumulated duration for stage.
func (s *StageTimings) Total(stage string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totals[stage]
}

// Count returns how many observations were recorded for stage.
func (s *StageTimings) Count(stage string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[stage]
}

// Snapshot returns a copy of the totals.
func (s *StageTimings) Snapshot() map[string]time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]time.Duration, len(s.totals))
	for k, v := range s.totals {
		out[k] = v
	}
	return out
}

// String renders stages sorted by name, e.g. "analyze=1.2s render=3s".
func (s *StageTimings) String() string {
	snap := s.Snapshot()
	names := make([]string, 0, len(snap))
	for k := range snap {
		names = append(names, k)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, n := range names {
		parts = append(parts, fmt.Sprintf("%s=%v", n, snap[n].Round(time.Millisecond)))
	}
	return strings.Join(parts, " ")
}
