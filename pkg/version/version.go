// Package version holds build information injected with -ldflags.
package version

import (
	"fmt"
	"runtime"
)

// Build information. Release builds set these with
// -X github.com/Aman-CERP/labsearch/pkg/version.Version=... and friends.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// BuildInfo is the JSON form of the build information.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// String returns a one-line description of the build.
func String() string {
	return fmt.Sprintf("labsearch %s (commit %s, built %s, %s)", Version, Commit, Date, runtime.Version())
}

// Info returns the build information.
func Info() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}
