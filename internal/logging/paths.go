package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns ~/.labsearch/logs, or a temp-dir equivalent when
// the home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".labsearch", "logs")
	}
	return filepath.Join(home, ".labsearch", "logs")
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "labsearch.log")
}
