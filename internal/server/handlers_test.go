package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MeKo-Tech/prodshot/internal/batch"
	"github.com/MeKo-Tech/prodshot/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_HealthHandler(t *testing.T) {
	server := &Server{}

	tests := []struct {
		name           string
		method         string
		expectedStatus int
	}{
		{"GET request success", http.MethodGet, http.StatusOK},
		{"POST request not allowed", http.MethodPost, http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/health", nil)
			w := httptest.NewRecorder()

			server.healthHandler(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus == http.StatusOK {
				var response HealthResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
				assert.Equal(t, "healthy", response.Status)
				assert.NotEmpty(t, response.Time)
				assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			}
		})
	}
}

func TestServer_RunLifecycle(t *testing.T) {
	fake := newFakeRunner(3)
	_, ts := newTestServer(t, Config{CORSOrigin: "*", RunFunc: fake.run})
	in := t.TempDir()

	resp := postRun(t, ts.URL, RunRequest{InputDir: in, OutputDir: t.TempDir()})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var created RunCreatedResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "/runs/"+created.ID, resp.Header.Get("Location"))
	assert.Equal(t, "/ws/runs/"+created.ID, created.Events)

	<-fake.started
	require.Eventually(t, func() bool {
		_, snap := getSnapshot(t, ts.URL, created.ID)
		return snap.Status == RunRunning && snap.Progress["render"].Current == 3
	}, 2*time.Second, 10*time.Millisecond)

	close(fake.release)
	var snap RunSnapshot
	require.Eventually(t, func() bool {
		_, snap = getSnapshot(t, ts.URL, created.ID)
		return snap.Status == RunCompleted
	}, 2*time.Second, 10*time.Millisecond)

	require.NotNil(t, snap.Summary)
	assert.Equal(t, 2, snap.Summary.Written)
	require.Len(t, snap.Mapping, 1)
	assert.Equal(t, "item-001-front.jpg", snap.Mapping[0].FrontFile)
	assert.NotNil(t, snap.FinishedAt)
	assert.Equal(t, in, snap.Request.InputDir)
}

func TestServer_RunFailure(t *testing.T) {
	fake := newFakeRunner(1)
	fake.err = errors.New("boom")
	close(fake.release)
	_, ts := newTestServer(t, Config{RunFunc: fake.run})

	resp := postRun(t, ts.URL, RunRequest{InputDir: t.TempDir(), OutputDir: t.TempDir()})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var created RunCreatedResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))

	require.Eventually(t, func() bool {
		_, snap := getSnapshot(t, ts.URL, created.ID)
		return snap.Status == RunFailed && snap.Error == "boom"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServer_CloseCancelsRuns(t *testing.T) {
	fake := newFakeRunner(1)
	s, ts := newTestServer(t, Config{RunFunc: fake.run})

	resp := postRun(t, ts.URL, RunRequest{InputDir: t.TempDir(), DryRun: true})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var created RunCreatedResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	<-fake.started

	require.NoError(t, s.Close())
	run, ok := s.lookup(created.ID)
	require.True(t, ok)
	assert.Equal(t, RunCancelled, run.Snapshot().Status)
}

func TestServer_CreateRunRejects(t *testing.T) {
	root := t.TempDir()
	_, ts := newTestServer(t, Config{Root: root, RunFunc: newFakeRunner(0).run})

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"invalid json", `{`, http.StatusBadRequest},
		{"unknown field", `{"input":"x"}`, http.StatusBadRequest},
		{"missing input", `{"output_dir":"` + filepath.ToSlash(filepath.Join(root, "out")) + `"}`, http.StatusBadRequest},
		{"missing output", `{"input_dir":"` + filepath.ToSlash(root) + `"}`, http.StatusBadRequest},
		{"outside root", `{"input_dir":"/etc","dry_run":true}`, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+"/runs", "application/json", strings.NewReader(tt.body)) //nolint:noctx // test
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, tt.status, resp.StatusCode)

			var body ErrorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.NotEmpty(t, body.Error)
		})
	}

	resp, err := http.Get(ts.URL + "/runs") //nolint:noctx // test
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_UnknownRun(t *testing.T) {
	_, ts := newTestServer(t, Config{})
	status, _ := getSnapshot(t, ts.URL, "nope")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestServer_RealBatchDryRun(t *testing.T) {
	in := t.TempDir()
	for _, name := range []string{"DSC_0001.png", "DSC_0002.png"} {
		testutil.SaveImage(t, in, name, testutil.ProductShot(testutil.DefaultShot()))
	}
	base := batch.DefaultConfig()
	base.Workers = 2
	_, ts := newTestServer(t, Config{Batch: base})

	resp := postRun(t, ts.URL, RunRequest{InputDir: in, DryRun: true})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var created RunCreatedResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))

	var snap RunSnapshot
	require.Eventually(t, func() bool {
		_, snap = getSnapshot(t, ts.URL, created.ID)
		return snap.Status.Finished()
	}, 10*time.Second, 20*time.Millisecond)
	require.Equal(t, RunCompleted, snap.Status, snap.Error)
	require.Len(t, snap.Mapping, 1)
	assert.Equal(t, 2, snap.Mapping[0].TotalPhotos)
	assert.Equal(t, 2, snap.Progress["analyze"].Current)
}

func TestServer_Metrics(t *testing.T) {
	_, ts := newTestServer(t, Config{})
	resp, err := http.Get(ts.URL + "/health") //nolint:noctx // test
	require.NoError(t, err)
	_ = resp.Body.Close()

	resp, err = http.Get(ts.URL + "/metrics") //nolint:noctx // test
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `prodshot_http_requests_total{endpoint="/health",method="GET",status="200"}`)
}
