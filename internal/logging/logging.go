// Package logging builds the operational slog logger and the protocol
// capture logger for the rapiduino binaries.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/rapiduino/rapiduino-go/internal/config"
	"github.com/rapiduino/rapiduino-go/pkg/log"
)

// ParseLevel maps a config level name to a slog level. Unknown names map
// to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Rotator returns a lumberjack writer for cfg, or nil when no file is set.
func Rotator(cfg config.LumberjackConfig) *lumberjack.Logger {
	if cfg.Filename == "" {
		return nil
	}
	return &lumberjack.Logger{
		Filename:   cfg.Filename,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
}

// New returns a slog logger writing to stderr and, if configured, to a
// rotated file. The returned closer releases the file.
func New(cfg config.LoggingConfig) (*slog.Logger, io.Closer) {
	return newWithWriter(cfg, os.Stderr)
}

func newWithWriter(cfg config.LoggingConfig, console io.Writer) (*slog.Logger, io.Closer) {
	var w io.Writer = console
	var closer io.Closer = nopCloser{}
	if lj := Rotator(cfg.File); lj != nil {
		w = io.MultiWriter(console, lj)
		closer = lj
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	var h slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h), closer
}

// ProtocolLogger builds the protocol event logger: CBOR capture to the
// rotated protocol log file when configured, plus the slog adapter when
// the operational logger runs at debug level. It returns nil when neither
// applies.
func ProtocolLogger(cfg config.LoggingConfig, op *slog.Logger) (log.Logger, io.Closer, error) {
	var loggers []log.Logger
	var closer io.Closer = nopCloser{}

	if lj := Rotator(cfg.ProtocolLog); lj != nil {
		if err := os.MkdirAll(filepath.Dir(cfg.ProtocolLog.Filename), 0o755); err != nil {
			return nil, nil, fmt.Errorf("protocol log: %w", err)
		}
		fl := log.NewStreamLogger(lj)
		loggers = append(loggers, fl)
		closer = fl
	}
	if op != nil && ParseLevel(cfg.Level) <= slog.LevelDebug {
		loggers = append(loggers, log.NewSlogAdapter(op))
	}

	switch len(loggers) {
	case 0:
		return nil, closer, nil
	case 1:
		return loggers[0], closer, nil
	default:
		return log.NewMultiLogger(loggers...), closer, nil
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
