package support

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// TestContext holds the state for integration tests.
type TestContext struct {
	// Command execution state
	LastCommand   string
	LastOutput    string
	LastError     error
	LastExitCode  int
	LastStartTime time.Time
	LastDuration  time.Duration

	// Test environment
	WorkingDir string
	TempDir    string
	SessionDir string
	OutputDir  string
	EnvVars    []string

	// Server under test
	HTTPTestServer *HTTPTestServerWrapper
	LastRunID      string

	// HTTP response state
	LastHTTPStatusCode int
	LastHTTPResponse   string
	LastHTTPHeaders    map[string]string

	// Modification times captured before a re-run.
	ModTimes map[string]time.Time

	CreatedDirectories []string
}

// NewTestContext creates a new test context.
func NewTestContext() (*TestContext, error) {
	tempDir, err := os.MkdirTemp("", "prodshot-test-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	// Commands run from an empty directory so no prodshot.yaml or .env of
	// the checkout is picked up.
	workingDir := filepath.Join(tempDir, "work")
	if err := os.MkdirAll(workingDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create working directory: %w", err)
	}

	return &TestContext{
		WorkingDir: workingDir,
		TempDir:    tempDir,
		OutputDir:  filepath.Join(tempDir, "catalog"),
		ModTimes:   map[string]time.Time{},
	}, nil
}

// Cleanup removes all temporary files and directories created during tests.
func (testCtx *TestContext) Cleanup() error {
	var errs []error

	if testCtx.HTTPTestServer != nil {
		testCtx.stopTestHTTPServer()
	}
	for _, dir := range testCtx.CreatedDirectories {
		if err := os.RemoveAll(dir); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("failed to remove directory %s: %w", dir, err))
		}
	}
	if err := os.RemoveAll(testCtx.TempDir); err != nil && !os.IsNotExist(err) {
		errs = append(errs, fmt.Errorf("failed to remove temp directory %s: %w", testCtx.TempDir, err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("cleanup errors: %v", errs)
	}
	return nil
}

// AddEnvVar adds an environment variable for command execution.
func (testCtx *TestContext) AddEnvVar(name, value string) {
	testCtx.EnvVars = append(testCtx.EnvVars, fmt.Sprintf("%s=%s", name, value))
}

// TrackDirectory adds a directory to be cleaned up after tests.
func (testCtx *TestContext) TrackDirectory(dirname string) {
	testCtx.CreatedDirectories = append(testCtx.CreatedDirectories, dirname)
}

// GetTempDir returns a path to a fresh directory below the temp dir.
func (testCtx *TestContext) GetTempDir(prefix string) string {
	return filepath.Join(testCtx.TempDir, fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano()))
}

// substituteCommandVariables expands the placeholders used in feature
// files: {session}, {output} and {tmp}.
func (testCtx *TestContext) substituteCommandVariables(command string) string {
	return strings.NewReplacer(
		"{session}", testCtx.SessionDir,
		"{output}", testCtx.OutputDir,
		"{tmp}", testCtx.TempDir,
	).Replace(command)
}
