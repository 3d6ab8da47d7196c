// Package logging configures structured slog output for indexedsearch.
// Logs go to stderr by default; with --debug they are also written as
// JSON to a size-rotated file under ~/.indexedsearch/logs/. The MCP stdio
// server logs to the file only, since stdout carries the protocol.
package logging
