// Package logging builds the leveled logger shared by every command.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const prefix = "postsweep"

// New returns a logger writing to w at the named level.
func New(w io.Writer, level string) (*log.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
		Prefix:          prefix,
		Level:           lvl,
	}), nil
}

// ParseLevel accepts debug, info, warn or error. Empty means info.
func ParseLevel(level string) (log.Level, error) {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "" {
		return log.InfoLevel, nil
	}
	switch level {
	case "debug", "info", "warn", "error":
	default:
		return 0, fmt.Errorf("unknown log level %q", level)
	}
	return log.ParseLevel(level)
}

// Open returns a logger writing to stderr and, when path is set, appending
// to that file too. The returned close func is always non-nil.
func Open(path, level string, stderr io.Writer) (*log.Logger, func() error, error) {
	noop := func() error { return nil }
	if path == "" {
		logger, err := New(stderr, level)
		return logger, noop, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, noop, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, noop, fmt.Errorf("open log file: %w", err)
	}

	logger, err := New(io.MultiWriter(stderr, f), level)
	if err != nil {
		_ = f.Close()
		return nil, noop, err
	}
	return logger, f.Close, nil
}
