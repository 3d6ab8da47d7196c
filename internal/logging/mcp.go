package logging

import (
	"log/slog"
)

// SetupMCPMode installs a file-only logger for the MCP stdio server.
// stdout carries JSON-RPC and must stay clean, so nothing goes to
// stdout or stderr. An empty path uses DefaultLogPath.
func SetupMCPMode(level, path string) (func(), error) {
	if path == "" {
		path = DefaultLogPath()
	}
	cfg := Config{
		Level:         level,
		FilePath:      path,
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: false,
	}

	cleanup, err := SetupDefault(cfg)
	if err != nil {
		return nil, err
	}

	slog.Info("mcp_logging_initialized",
		slog.String("log_file", cfg.FilePath),
		slog.String("level", level))
	return cleanup, nil
}
