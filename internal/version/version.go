package version

import (
	"fmt"
	"runtime"
)

// Build-time variables set by ldflags:
//
//	-X github.com/MeKo-Tech/prodshot/internal/version.Version=v1.2.0
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info returns version information
func Info() (string, string, string) {
	return Version, GitCommit, BuildDate
}

// String renders the build for --version output.
func String() string {
	return fmt.Sprintf("%s (commit: %s, built: %s, %s/%s)", Version, GitCommit, BuildDate, runtime.GOOS, runtime.GOARCH)
}
