package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// MarkerFile records the last passing run in the data directory.
const MarkerFile = ".preflight-passed"

// NeedsCheck reports whether checks should run: no marker exists, or it
// was written for a different provider.
func NeedsCheck(dataDir, provider string) bool {
	_, passedFor, ok := readMarker(dataDir)
	return !ok || passedFor != provider
}

// MarkPassed writes the marker for provider.
func MarkPassed(dataDir, provider string) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create marker directory: %w", err)
	}
	data := time.Now().UTC().Format(time.RFC3339) + " " + provider
	return os.WriteFile(filepath.Join(dataDir, MarkerFile), []byte(data), 0o644)
}

// ClearMarker removes the marker. A missing marker is not an error.
func ClearMarker(dataDir string) error {
	err := os.Remove(filepath.Join(dataDir, MarkerFile))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove marker file: %w", err)
	}
	return nil
}

// MarkerAge returns how long ago checks passed, or zero without a marker.
func MarkerAge(dataDir string) time.Duration {
	at, _, ok := readMarker(dataDir)
	if !ok {
		return 0
	}
	return time.Since(at)
}

func readMarker(dataDir string) (time.Time, string, bool) {
	data, err := os.ReadFile(filepath.Join(dataDir, MarkerFile))
	if err != nil {
		return time.Time{}, "", false
	}
	stamp, provider, _ := strings.Cut(strings.TrimSpace(string(data)), " ")
	at, err := time.Parse(time.RFC3339, stamp)
	if err != nil {
		return time.Time{}, "", false
	}
	return at, provider, true
}
