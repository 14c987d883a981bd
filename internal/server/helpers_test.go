package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MeKo-Tech/prodshot/internal/batch"
	"github.com/stretchr/testify/require"
)

// fakeRunner reports progress for n items, then waits for release.
type fakeRunner struct {
	n       int
	started chan struct{}
	release chan struct{}
	err     error
}

func newFakeRunner(n int) *fakeRunner {
	return &fakeRunner{n: n, started: make(chan struct{}, 8), release: make(chan struct{})}
}

func (f *fakeRunner) run(ctx context.Context, cfg *batch.Config, deps batch.Deps) (*batch.Result, error) {
	f.started <- struct{}{}
	p := deps.Progress("render")
	p.OnStart(f.n)
	for i := 1; i <= f.n; i++ {
		p.OnProgress(i, f.n)
	}
	select {
	case <-f.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	p.OnComplete()
	if f.err != nil {
		return nil, f.err
	}
	return &batch.Result{
		DryRun:  cfg.DryRun,
		Summary: batch.Summary{Items: 1, Written: 2},
		Mapping: []batch.MappingRecord{{ItemIndex: 1, PhotoRange: "1-2", TotalPhotos: 2, FrontFile: "item-001-front.jpg"}},
	}, nil
}

func newTestServer(t *testing.T, cfg Config) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer(cfg)
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(func() {
		ts.Close()
		_ = s.Close()
	})
	return s, ts
}

func postRun(t *testing.T, url string, req any) *http.Response {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)
	resp, err := http.Post(url+"/runs", "application/json", bytes.NewReader(body)) //nolint:noctx // test helper
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func getSnapshot(t *testing.T, url, id string) (int, RunSnapshot) {
	t.Helper()
	resp, err := http.Get(url + "/runs/" + id) //nolint:noctx // test helper
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	var snap RunSnapshot
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	}
	return resp.StatusCode, snap
}
