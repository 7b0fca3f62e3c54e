// ABOUTME: Builds the process logger from the log_level and log_format settings
// ABOUTME: Logs go to stderr so stdout stays clean for command output and the MCP transport

package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

func newLogger(level, format string, w io.Writer) (*slog.Logger, error) {
	var lvl slog.Level
	if level == "" {
		level = "info"
	}
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log_level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log_format %q: use text or json", format)
	}
}
