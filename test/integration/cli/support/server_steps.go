package support

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/MeKo-Tech/prodshot/internal/batch"
	"github.com/MeKo-Tech/prodshot/internal/segment"
	"github.com/MeKo-Tech/prodshot/internal/server"
	"github.com/cucumber/godog"
	"github.com/gorilla/websocket"
)

// HTTPTestServerWrapper runs the real server in-process.
type HTTPTestServerWrapper struct {
	Server     *httptest.Server
	TestServer *server.Server
}

// theServerIsRunning starts a server whose runs are confined to the
// scenario's temp dir.
func (testCtx *TestContext) theServerIsRunning() error {
	if testCtx.HTTPTestServer != nil {
		return errors.New("server already running")
	}
	cfg := batch.DefaultConfig()
	cfg.Canvas.Size = 128
	cfg.Workers = 2

	srv := server.NewServer(server.Config{
		CORSOrigin: "*",
		Batch:      cfg,
		Segmenter:  segment.NewKeyer(segment.DefaultConfig()),
		Root:       testCtx.TempDir,
		MaxRuns:    1,
	})
	mux := http.NewServeMux()
	srv.SetupRoutes(mux)

	testCtx.HTTPTestServer = &HTTPTestServerWrapper{Server: httptest.NewServer(mux), TestServer: srv}
	return nil
}

func (testCtx *TestContext) stopTestHTTPServer() {
	w := testCtx.HTTPTestServer
	w.Server.Close()
	_ = w.TestServer.Close()
	testCtx.HTTPTestServer = nil
}

func (testCtx *TestContext) baseURL() (string, error) {
	if testCtx.HTTPTestServer == nil {
		return "", errors.New("server is not running")
	}
	return testCtx.HTTPTestServer.Server.URL, nil
}

func (testCtx *TestContext) storeResponse(resp *http.Response) error {
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	testCtx.LastHTTPStatusCode = resp.StatusCode
	testCtx.LastHTTPResponse = string(body)
	testCtx.LastHTTPHeaders = map[string]string{}
	for k := range resp.Header {
		testCtx.LastHTTPHeaders[k] = resp.Header.Get(k)
	}
	return nil
}

// iSubmitARun posts the JSON docstring after placeholder substitution.
func (testCtx *TestContext) iSubmitARun(body *godog.DocString) error {
	base, err := testCtx.baseURL()
	if err != nil {
		return err
	}
	payload := testCtx.substituteCommandVariables(body.Content)
	resp, err := http.Post(base+"/runs", "application/json", bytes.NewBufferString(payload)) //nolint:noctx // test step
	if err != nil {
		return fmt.Errorf("POST /runs: %w", err)
	}
	if err := testCtx.storeResponse(resp); err != nil {
		return err
	}
	if testCtx.LastHTTPStatusCode == http.StatusAccepted {
		var created server.RunCreatedResponse
		if err := json.Unmarshal([]byte(testCtx.LastHTTPResponse), &created); err != nil {
			return fmt.Errorf("decoding run response: %w", err)
		}
		testCtx.LastRunID = created.ID
	}
	return nil
}

func (testCtx *TestContext) iGET(path string) error {
	base, err := testCtx.baseURL()
	if err != nil {
		return err
	}
	resp, err := http.Get(base + strings.ReplaceAll(path, "{run}", testCtx.LastRunID)) //nolint:noctx // test step
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	return testCtx.storeResponse(resp)
}

// theRunShouldFinishWithStatus polls the run until it is finished.
func (testCtx *TestContext) theRunShouldFinishWithStatus(want string) error {
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		if err := testCtx.iGET("/runs/{run}"); err != nil {
			return err
		}
		var snap server.RunSnapshot
		if err := json.Unmarshal([]byte(testCtx.LastHTTPResponse), &snap); err != nil {
			return fmt.Errorf("decoding run: %w", err)
		}
		if snap.Status.Finished() {
			if string(snap.Status) != want {
				return fmt.Errorf("run finished as %s (%s), want %s", snap.Status, snap.Error, want)
			}
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return errors.New("run did not finish in time")
}

// iWatchTheRunOverWebSocket reads progress frames until the done frame.
func (testCtx *TestContext) iWatchTheRunOverWebSocket() error {
	base, err := testCtx.baseURL()
	if err != nil {
		return err
	}
	url := "ws" + strings.TrimPrefix(base, "http") + "/ws/runs/" + testCtx.LastRunID
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer func() { _ = conn.Close() }()
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	for {
		var msg server.ProgressMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("reading progress: %w", err)
		}
		if msg.Type == "done" {
			data, _ := json.Marshal(msg.Run)
			testCtx.LastHTTPResponse = string(data)
			return nil
		}
	}
}

func (testCtx *TestContext) theResponseStatusShouldBe(want int) error {
	if testCtx.LastHTTPStatusCode != want {
		return fmt.Errorf("status %d, want %d\nBody: %s", testCtx.LastHTTPStatusCode, want, testCtx.LastHTTPResponse)
	}
	return nil
}

func (testCtx *TestContext) theResponseShouldContain(text string) error {
	if !strings.Contains(testCtx.LastHTTPResponse, text) {
		return fmt.Errorf("response does not contain '%s'\nBody: %s", text, testCtx.LastHTTPResponse)
	}
	return nil
}

func (testCtx *TestContext) theResponseHeaderShouldBe(name, want string) error {
	if got := testCtx.LastHTTPHeaders[name]; got != want {
		return fmt.Errorf("header %s is %q, want %q", name, got, want)
	}
	return nil
}

// RegisterServerSteps registers the HTTP and websocket steps.
func (testCtx *TestContext) RegisterServerSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the server is running$`, testCtx.theServerIsRunning)
	sc.Step(`^I submit a run:$`, testCtx.iSubmitARun)
	sc.Step(`^I GET "([^"]*)"$`, testCtx.iGET)
	sc.Step(`^the run should finish with status "([^"]*)"$`, testCtx.theRunShouldFinishWithStatus)
	sc.Step(`^I watch the run over WebSocket$`, testCtx.iWatchTheRunOverWebSocket)
	sc.Step(`^the response status should be (\d+)$`, testCtx.theResponseStatusShouldBe)
	sc.Step(`^the response should contain "([^"]*)"$`, testCtx.theResponseShouldContain)
	sc.Step(`^the response header "([^"]*)" should be "([^"]*)"$`, testCtx.theResponseHeaderShouldBe)
}
