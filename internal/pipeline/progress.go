package pipeline

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// ProgressCallback receives progress of a batch of work items.
type ProgressCallback interface {
	// OnStart announces the number of items.
	OnStart(total int)
	// OnProgress reports that current of total items are done.
	OnProgress(current, total int)
	OnComplete()
	// OnError reports a failed item without stopping the batch.
	OnError(current int, err error)
}

// NoOpProgressCallback discards all progress.
type NoOpProgressCallback struct{}

func (NoOpProgressCallback) OnStart(int)         {}
func (NoOpProgressCallback) OnProgress(int, int) {}
func (NoOpProgressCallback) OnComplete()         {}
func (NoOpProgressCallback) OnError(int, error)  {}

// ETA extrapolates the remaining time from the average pace so far.
func ETA(elapsed time.Duration, current, total int) time.Duration {
	if current <= 0 || total <= current || elapsed <= 0 {
		return 0
	}
	perItem := elapsed / time.Duration(current)
	return perItem * time.Duration(total-current)
}

// ConsoleProgressCallback renders a single-line progress bar with rate and
// ETA, redrawn in place with a carriage return.
type ConsoleProgressCallback struct {
	mu       sync.Mutex
	w        io.Writer
	label    string
	width    int
	interval time.Duration
	started  time.Time
	drawn    time.Time
	rate     bool
	eta      bool
	now      func() time.Time
}

// NewConsoleProgressCallback writes to w (stderr when nil).
func NewConsoleProgressCallback(w io.Writer, label string) *ConsoleProgressCallback {
	if w == nil {
		w = os.Stderr
	}
	return &ConsoleProgressCallback{
		w:        w,
		label:    label,
		width:    40,
		interval: 100 * time.Millisecond,
		rate:     true,
		eta:      true,
		now:      time.Now,
	}
}

// WithWidth sets the bar width in cells.
func (c *ConsoleProgressCallback) WithWidth(width int) *ConsoleProgressCallback {
	c.width = width
	return c
}

// WithUpdateInterval limits how often the bar is redrawn.
func (c *ConsoleProgressCallback) WithUpdateInterval(d time.Duration) *ConsoleProgressCallback {
	c.interval = d
	return c
}

// WithOptions toggles the ETA and rate suffixes.
func (c *ConsoleProgressCallback) WithOptions(showETA, showRate bool) *ConsoleProgressCallback {
	c.eta, c.rate = showETA, showRate
	return c
}

func (c *ConsoleProgressCallback) OnStart(total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = c.now()
	c.drawn = time.Time{}
	_, _ = fmt.Fprintf(c.w, "%s%d items\n", c.label, total)
}

func (c *ConsoleProgressCallback) OnProgress(current, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if current < total && now.Sub(c.drawn) < c.interval {
		return
	}
	c.drawn = now
	_, _ = fmt.Fprint(c.w, c.line(current, total, now))
}

func (c *ConsoleProgressCallback) OnComplete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.w, "\n%sdone in %v\n", c.label, c.now().Sub(c.started).Round(time.Millisecond))
}

func (c *ConsoleProgressCallback) OnError(current int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.w, "\n%sitem %d failed: %v\n", c.label, current, err)
}

func (c *ConsoleProgressCallback) line(current, total int, now time.Time) string {
	if total <= 0 {
		return ""
	}
	current = min(current, total)
	filled := c.width * current / total

	var sb strings.Builder
	fmt.Fprintf(&sb, "\r%s[%s%s] %d/%d (%.1f%%)", c.label,
		strings.Repeat("█", filled), strings.Repeat("░", c.width-filled),
		current, total, 100*float64(current)/float64(total))

	elapsed := now.Sub(c.started)
	if current == 0 || elapsed <= 0 {
		return sb.String()
	}
	if c.rate {
		fmt.Fprintf(&sb, " %.1f/s", float64(current)/elapsed.Seconds())
	}
	if c.eta && current < total {
		fmt.Fprintf(&sb, " ETA %v", ETA(elapsed, current, total).Round(time.Second))
	}
	return sb.String()
}

// LogProgressCallback reports progress through slog every N items.
type LogProgressCallback struct {
	mu      sync.Mutex
	logger  *slog.Logger
	level   slog.Level
	msg     string
	every   int
	last    int
	started time.Time
}

// NewLogProgressCallback logs at level with msg as the message prefix.
func NewLogProgressCallback(logger *slog.Logger, level slog.Level, msg string) *LogProgressCallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogProgressCallback{logger: logger, level: level, msg: msg, every: 10}
}

// WithInterval logs every n items.
func (l *LogProgressCallback) WithInterval(n int) *LogProgressCallback {
	l.every = max(1, n)
	return l
}

func (l *LogProgressCallback) OnStart(total int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.started, l.last = time.Now(), 0
	l.logger.Log(nil, l.level, l.msg+" started", "total", total)
}

func (l *LogProgressCallback) OnProgress(current, total int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if current-l.last < l.every && current != total {
		return
	}
	l.last = current
	elapsed := time.Since(l.started)
	l.logger.Log(nil, l.level, l.msg+" progress",
		"current", current,
		"total", total,
		"elapsed", elapsed.Round(time.Millisecond),
		"eta", ETA(elapsed, current, total).Round(time.Second),
	)
}

func (l *LogProgressCallback) OnComplete() {
	l.logger.Log(nil, l.level, l.msg+" finished", "elapsed", time.Since(l.started).Round(time.Millisecond))
}

func (l *LogProgressCallback) OnError(current int, err error) {
	l.logger.Log(nil, slog.LevelWarn, l.msg+" item failed", "current", current, "error", err)
}

// MultiProgressCallback fans progress out to several callbacks.
type MultiProgressCallback struct {
	callbacks []ProgressCallback
}

// NewMultiProgressCallback skips nil callbacks.
func NewMultiProgressCallback(callbacks ...ProgressCallback) *MultiProgressCallback {
	m := &MultiProgressCallback{}
	for _, cb := range callbacks {
		m.Add(cb)
	}
	return m
}

func (m *MultiProgressCallback) Add(cb ProgressCallback) {
	if cb != nil {
		m.callbacks = append(m.callbacks, cb)
	}
}

func (m *MultiProgressCallback) OnStart(total int) {
	for _, cb := range m.callbacks {
		cb.OnStart(total)
	}
}

func (m *MultiProgressCallback) OnProgress(current, total int) {
	for _, cb := range m.callbacks {
		cb.OnProgress(current, total)
	}
}

func (m *MultiProgressCallback) OnComplete() {
	for _, cb := range m.callbacks {
		cb.OnComplete()
	}
}

func (m *MultiProgressCallback) OnError(current int, err error) {
	for _, cb := range m.callbacks {
		cb.OnError(current, err)
	}
}

// ProgressTracker is a callback that keeps the latest counts so they can be
// polled from another goroutine, e.g. an HTTP status handler.
type ProgressTracker struct {
	mu      sync.RWMutex
	started time.Time
	total   int
	current int
	failed  int
	done    bool
}

// ProgressSnapshot is a point-in-time view of a tracker.
type ProgressSnapshot struct {
	Total   int           `json:"total"`
	Current int           `json:"current"`
	Failed  int           `json:"failed"`
	Percent float64       `json:"percent"`
	Elapsed time.Duration `json:"elapsed_ns"`
	ETA     time.Duration `json:"eta_ns"`
	Done    bool          `json:"done"`
}

func NewProgressTracker() *ProgressTracker { return &ProgressTracker{} }

func (p *ProgressTracker) OnStart(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started, p.total, p.current, p.failed, p.done = time.Now(), total, 0, 0, false
}

func (p *ProgressTracker) OnProgress(current, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current, p.total = current, total
}

func (p *ProgressTracker) OnComplete() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done = true
}

func (p *ProgressTracker) OnError(int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed++
}

// Snapshot returns the current state.
func (p *ProgressTracker) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s := ProgressSnapshot{Total: p.total, Current: p.current, Failed: p.failed, Done: p.done}
	if !p.started.IsZero() {
		s.Elapsed = time.Since(p.started)
	}
	if p.total > 0 {
		s.Percent = 100 * float64(p.current) / float64(p.total)
	}
	s.ETA = ETA(s.Elapsed, p.current, p.total)
	return s
}

// FuncProgressCallback adapts a plain function receiving (current, total).
type FuncProgressCallback func(current, total int)

func (FuncProgressCallback) OnStart(int)           {}
func (f FuncProgressCallback) OnProgress(c, t int) { f(c, t) }
func (FuncProgressCallback) OnComplete()           {}
func (FuncProgressCallback) OnError(int, error)    {}
