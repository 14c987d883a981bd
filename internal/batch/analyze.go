package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/MeKo-Tech/prodshot/internal/metrics"
	"github.com/MeKo-Tech/prodshot/internal/photo"
	"golang.org/x/sync/errgroup"
)

const (
	stageAnalyze = "analyze"
	stageRender  = "render"
)

// analyze computes the metrics of every photo, in parallel. Photos that
// cannot be decoded are recorded as failures and left out. The second
// return value counts photos served from the analysis cache.
func (r *runner) analyze(ctx context.Context, paths []string) ([]*photo.Photo, int, error) {
	progress := r.deps.Progress(stageAnalyze)
	progress.OnStart(len(paths))
	defer progress.OnComplete()

	results := make([]*photo.Photo, len(paths))
	fromCache := make([]bool, len(paths))
	done := make(chan struct{}, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.workers())

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		n := 0
		for range done {
			n++
			progress.OnProgress(n, len(paths))
		}
	}()

	for i, path := range paths {
		g.Go(func() error {
			defer func() { done <- struct{}{} }()
			if err := gctx.Err(); err != nil {
				return err
			}
			p, cached, err := r.analyzeOne(path)
			if err != nil {
				r.fail(path, stageAnalyze, err)
				progress.OnError(i, err)
				metrics.RecordPhoto("failed")
				return nil
			}
			results[i], fromCache[i] = p, cached
			if cached {
				metrics.RecordPhoto("cached")
			} else {
				metrics.RecordPhoto("analyzed")
			}
			return nil
		})
	}
	err := g.Wait()
	close(done)
	<-drained
	if err != nil {
		return nil, 0, err
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	photos := make([]*photo.Photo, 0, len(paths))
	cached := 0
	for i, p := range results {
		if p == nil {
			continue
		}
		photos = append(photos, p)
		if fromCache[i] {
			cached++
		}
	}
	return photos, cached, nil
}

// analyzeOne serves a photo from the cache when its size and modification
// time are unchanged, and decodes it otherwise.
func (r *runner) analyzeOne(path string) (*photo.Photo, bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, false, fmt.Errorf("stat: %w", err)
	}
	key := r.cacheKey(path)
	if row, ok := r.cache[key]; ok && row.SizeBytes == info.Size() && row.ModTimeUnixNano == info.ModTime().UnixNano() {
		return row.photo(path), true, nil
	}

	img, err := r.load(path)
	if err != nil {
		return nil, false, err
	}
	p := photo.Analyze(path, img)
	if t, ok := photo.CaptureTime(path); ok {
		p.CapturedAt = t
	}
	return p, false, nil
}

// cacheKey is the slash-separated path relative to the input directory, so
// the cache survives moving the whole shoot.
func (r *runner) cacheKey(path string) string {
	rel, err := filepath.Rel(r.cfg.InputDir, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
