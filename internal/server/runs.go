package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/MeKo-Tech/prodshot/internal/batch"
	"github.com/MeKo-Tech/prodshot/internal/metrics"
	"github.com/MeKo-Tech/prodshot/internal/pipeline"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// RunStatus is the lifecycle state of a submitted run.
type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Finished reports whether the run has stopped.
func (s RunStatus) Finished() bool {
	return s == RunCompleted || s == RunFailed || s == RunCancelled
}

var errOutsideRoot = errors.New("path outside the server root")

// Run is one batch submitted over HTTP.
type Run struct {
	ID      string
	Request RunRequest

	mu         sync.RWMutex
	status     RunStatus
	err        string
	createdAt  time.Time
	startedAt  time.Time
	finishedAt time.Time
	stage      string
	stages     map[string]*pipeline.ProgressTracker
	result     *batch.Result
	// changed is closed and replaced on every update.
	changed chan struct{}
}

// RunSnapshot is the JSON view of a run.
type RunSnapshot struct {
	ID         string                               `json:"id"`
	Status     RunStatus                            `json:"status"`
	Error      string                               `json:"error,omitempty"`
	Request    RunRequest                           `json:"request"`
	CreatedAt  time.Time                            `json:"created_at"`
	StartedAt  *time.Time                           `json:"started_at,omitempty"`
	FinishedAt *time.Time                           `json:"finished_at,omitempty"`
	Stage      string                               `json:"stage,omitempty"`
	Progress   map[string]pipeline.ProgressSnapshot `json:"progress,omitempty"`
	Summary    *batch.Summary                       `json:"summary,omitempty"`
	Mapping    []batch.MappingRecord                `json:"mapping,omitempty"`
	Failures   []batch.Failure                      `json:"failures,omitempty"`
	Warnings   []string                             `json:"warnings,omitempty"`
}

func newRun(req RunRequest) *Run {
	return &Run{
		ID:        uuid.NewString(),
		Request:   req,
		status:    RunQueued,
		createdAt: time.Now().UTC(),
		stages:    make(map[string]*pipeline.ProgressTracker),
		changed:   make(chan struct{}),
	}
}

// Snapshot returns the current state.
func (r *Run) Snapshot() RunSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := RunSnapshot{
		ID: r.ID, Status: r.status, Error: r.err, Request: r.Request,
		CreatedAt: r.createdAt, Stage: r.stage,
	}
	if !r.startedAt.IsZero() {
		t := r.startedAt
		snap.StartedAt = &t
	}
	if !r.finishedAt.IsZero() {
		t := r.finishedAt
		snap.FinishedAt = &t
	}
	if len(r.stages) > 0 {
		snap.Progress = make(map[string]pipeline.ProgressSnapshot, len(r.stages))
		for name, tr := range r.stages {
			snap.Progress[name] = tr.Snapshot()
		}
	}
	if r.result != nil {
		sum := r.result.Summary
		snap.Summary = &sum
		snap.Mapping = r.result.Mapping
		snap.Failures = r.result.Failures
		snap.Warnings = r.result.Warnings
	}
	return snap
}

// Changed returns a channel that is closed on the next update.
func (r *Run) Changed() <-chan struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.changed
}

// update applies fn under the lock and wakes waiting subscribers.
func (r *Run) update(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if fn != nil {
		fn()
	}
	close(r.changed)
	r.changed = make(chan struct{})
}

// progress returns the callback for a stage. It tracks counts for polling
// and wakes websocket subscribers.
func (r *Run) progress(stage string) pipeline.ProgressCallback {
	tracker := pipeline.NewProgressTracker()
	r.update(func() {
		r.stage = stage
		r.stages[stage] = tracker
	})
	notify := pipeline.FuncProgressCallback(func(int, int) { r.update(nil) })
	return pipeline.NewMultiProgressCallback(tracker, notify)
}

// submit validates req, registers the run and starts it in the background.
func (s *Server) submit(req RunRequest) (*Run, error) {
	cfg := s.base
	cfg.InputDir = req.InputDir
	cfg.OutputDir = req.OutputDir
	cfg.DryRun = req.DryRun
	cfg.Foreground.ForceFallback = cfg.Foreground.ForceFallback || req.ForceFallback
	cfg.ShowProgress = false
	if err := s.checkRoot(cfg.InputDir, cfg.OutputDir); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	run := newRun(req)
	// Unfinished runs never expire; finish re-adds them with the TTL.
	s.runs.Set(run.ID, run, cache.NoExpiration)
	s.wg.Add(1)
	go s.execute(run, &cfg)
	slog.Info("run submitted", "id", run.ID, "input", cfg.InputDir, "output", cfg.OutputDir, "dry_run", cfg.DryRun)
	return run, nil
}

func (s *Server) execute(run *Run, cfg *batch.Config) {
	defer s.wg.Done()

	select {
	case s.slots <- struct{}{}:
		defer func() { <-s.slots }()
	case <-s.ctx.Done():
		s.finish(run, nil, s.ctx.Err())
		return
	}

	metrics.RunStarted()
	defer metrics.RunFinished()
	run.update(func() {
		run.status = RunRunning
		run.startedAt = time.Now().UTC()
	})

	res, err := s.runFn(s.ctx, cfg, batch.Deps{Segmenter: s.segmenter, Progress: run.progress})
	s.finish(run, res, err)
}

func (s *Server) finish(run *Run, res *batch.Result, err error) {
	run.update(func() {
		run.finishedAt = time.Now().UTC()
		run.result = res
		switch {
		case errors.Is(err, context.Canceled):
			run.status = RunCancelled
			run.err = err.Error()
		case err != nil:
			run.status = RunFailed
			run.err = err.Error()
		default:
			run.status = RunCompleted
		}
	})
	s.runs.SetDefault(run.ID, run)
	if err != nil {
		slog.Warn("run finished with error", "id", run.ID, "error", err)
		return
	}
	slog.Info("run completed", "id", run.ID, "written", res.Summary.Written, "failed", res.Summary.Failed)
}

// lookup returns a registered run.
func (s *Server) lookup(id string) (*Run, bool) {
	v, ok := s.runs.Get(id)
	if !ok {
		return nil, false
	}
	run, ok := v.(*Run)
	return run, ok
}

// checkRoot rejects directories outside the configured root.
func (s *Server) checkRoot(dirs ...string) error {
	if s.root == "" {
		return nil
	}
	root, err := filepath.Abs(s.root)
	if err != nil {
		return fmt.Errorf("resolve root: %w", err)
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", dir, err)
		}
		rel, err := filepath.Rel(root, abs)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return fmt.Errorf("%w: %s", errOutsideRoot, dir)
		}
	}
	return nil
}
