package pipeline

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances only when told to.
type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestConsole(buf *bytes.Buffer) (*ConsoleProgressCallback, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewConsoleProgressCallback(buf, "render ").WithWidth(10)
	c.now = clock.now
	return c, clock
}

func TestETA(t *testing.T) {
	assert.Equal(t, 30*time.Second, ETA(10*time.Second, 1, 4))
	assert.Equal(t, 5*time.Second, ETA(10*time.Second, 2, 3))
	assert.Zero(t, ETA(10*time.Second, 0, 4))
	assert.Zero(t, ETA(10*time.Second, 4, 4))
	assert.Zero(t, ETA(0, 1, 4))
}

func TestConsoleProgressCallback_Bar(t *testing.T) {
	var buf bytes.Buffer
	c, clock := newTestConsole(&buf)

	c.OnStart(4)
	assert.Equal(t, "render 4 items\n", buf.String())

	buf.Reset()
	clock.advance(2 * time.Second)
	c.OnProgress(1, 4)
	assert.Equal(t, "\rrender [██░░░░░░░░] 1/4 (25.0%) 0.5/s ETA 6s", buf.String())

	buf.Reset()
	clock.advance(time.Second)
	c.OnComplete()
	assert.Equal(t, "\nrender done in 3s\n", buf.String())

	buf.Reset()
	c.OnError(2, assert.AnError)
	assert.Contains(t, buf.String(), "item 2 failed")
}

func TestConsoleProgressCallback_Throttling(t *testing.T) {
	var buf bytes.Buffer
	c, clock := newTestConsole(&buf)
	c.OnStart(10)

	buf.Reset()
	clock.advance(time.Second)
	c.OnProgress(1, 10)
	assert.NotEmpty(t, buf.String())

	buf.Reset()
	clock.advance(10 * time.Millisecond)
	c.OnProgress(2, 10)
	assert.Empty(t, buf.String(), "redraw inside the interval is skipped")

	c.OnProgress(10, 10)
	assert.Contains(t, buf.String(), "10/10 (100.0%)")
	assert.NotContains(t, buf.String(), "ETA", "no ETA once finished")
}

func TestConsoleProgressCallback_Options(t *testing.T) {
	var buf bytes.Buffer
	c, clock := newTestConsole(&buf)
	c.WithOptions(false, false)
	c.OnStart(2)
	clock.advance(time.Second)
	buf.Reset()
	c.OnProgress(1, 2)
	assert.NotContains(t, buf.String(), "/s")
	assert.NotContains(t, buf.String(), "ETA")
}

func TestLogProgressCallback(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	l := NewLogProgressCallback(logger, slog.LevelInfo, "render").WithInterval(3)

	l.OnStart(7)
	for i := 1; i <= 7; i++ {
		l.OnProgress(i, 7)
	}
	l.OnError(4, assert.AnError)
	l.OnComplete()

	out := buf.String()
	assert.Contains(t, out, "render started")
	// Logged at 3, 6 and the final 7.
	assert.Equal(t, 3, strings.Count(out, "render progress"))
	assert.Contains(t, out, "current=7")
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "render finished")
}

type recordingCallback struct {
	starts, progress, completes, errors int
}

func (r *recordingCallback) OnStart(int)         { r.starts++ }
func (r *recordingCallback) OnProgress(int, int) { r.progress++ }
func (r *recordingCallback) OnComplete()         { r.completes++ }
func (r *recordingCallback) OnError(int, error)  { r.errors++ }

func TestMultiProgressCallback(t *testing.T) {
	a, b := &recordingCallback{}, &recordingCallback{}
	m := NewMultiProgressCallback(a, nil)
	m.Add(b)
	m.Add(nil)

	m.OnStart(2)
	m.OnProgress(1, 2)
	m.OnProgress(2, 2)
	m.OnError(1, assert.AnError)
	m.OnComplete()

	for _, r := range []*recordingCallback{a, b} {
		assert.Equal(t, recordingCallback{starts: 1, progress: 2, completes: 1, errors: 1}, *r)
	}
}

func TestProgressTracker(t *testing.T) {
	p := NewProgressTracker()
	assert.Zero(t, p.Snapshot().Percent)

	p.OnStart(8)
	p.OnProgress(2, 8)
	p.OnError(2, assert.AnError)
	snap := p.Snapshot()
	assert.Equal(t, 8, snap.Total)
	assert.Equal(t, 2, snap.Current)
	assert.Equal(t, 1, snap.Failed)
	assert.InDelta(t, 25.0, snap.Percent, 1e-9)
	assert.False(t, snap.Done)

	p.OnComplete()
	require.True(t, p.Snapshot().Done)
}

func TestFuncProgressCallback(t *testing.T) {
	var got [2]int
	var cb ProgressCallback = FuncProgressCallback(func(c, total int) { got = [2]int{c, total} })
	cb.OnStart(3)
	cb.OnProgress(2, 3)
	cb.OnComplete()
	assert.Equal(t, [2]int{2, 3}, got)
}
