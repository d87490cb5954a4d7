package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set via ldflags at build time:
//
//	go build -ldflags "-X github.com/opensymbolicai/opensymbolicai-cli/internal/version.Version=0.3.0
//	  -X github.com/opensymbolicai/opensymbolicai-cli/internal/version.Commit=abc123
//	  -X github.com/opensymbolicai/opensymbolicai-cli/internal/version.Date=2026-01-01"
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info returns a formatted version string.
func Info() string {
	return fmt.Sprintf("opensymbolicai %s (commit: %s, built: %s, %s/%s)",
		resolved(), short(Commit), Date, runtime.GOOS, runtime.GOARCH)
}

// UserAgent is sent with provider HTTP requests.
func UserAgent() string {
	return "opensymbolicai-cli/" + resolved()
}

// resolved prefers the ldflags value and falls back to the module version
// recorded by `go install`.
func resolved() string {
	if Version != "dev" {
		return Version
	}
	if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		return bi.Main.Version
	}
	return Version
}

func short(s string) string {
	if len(s) > 7 {
		return s[:7]
	}
	return s
}
