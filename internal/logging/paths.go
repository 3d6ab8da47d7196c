package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns ~/.indexedsearch/logs, or a directory under the
// temp dir when there is no home directory.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".indexedsearch", "logs")
	}
	return filepath.Join(home, ".indexedsearch", "logs")
}

// DefaultLogPath returns the default server log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "server.log")
}
