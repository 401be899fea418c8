// Package logger builds the process logger: logr over slog, writing to
// stderr or to a rotating file. Stdout is never used because it may carry
// the DAP or MCP stream.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-logr/logr"
	lj "gopkg.in/natefinch/lumberjack.v2"

	"github.com/ctagard/gdbmi-dap/internal/config"
)

// Default rotation settings, used when the configuration leaves them unset.
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// ParseLevel maps a configured level name to a slog level. Unknown names
// mean info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Writer returns the log destination for cfg: a lumberjack logger when a
// file is configured, stderr otherwise.
func Writer(cfg config.LogConfig) io.WriteCloser {
	if cfg.File == "" {
		return nopCloser{os.Stderr}
	}
	return &lj.Logger{
		Filename:   cfg.File,
		MaxSize:    valOr(cfg.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(cfg.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(cfg.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   cfg.Compress,
	}
}

// New creates the logger described by cfg. The returned function closes the
// log file, if any.
func New(cfg config.LogConfig) (logr.Logger, func()) {
	w := Writer(cfg)
	return NewWithWriter(w, cfg.Level), func() { _ = w.Close() }
}

// NewWithWriter creates a logger writing text records at level or above to w.
// Debug enables V(1) messages.
func NewWithWriter(w io.Writer, level string) logr.Logger {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})
	return logr.FromSlogHandler(handler)
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
