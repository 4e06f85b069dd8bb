// Package logging configures the process-wide slog logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/emunx/nxmeta/internal/config"
	"github.com/emunx/nxmeta/internal/pathutil"
)

// ParseLevel maps a config level name to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

// NewHandler builds a text handler when out is a terminal and a JSON handler
// otherwise. When cfg.File is set, records are also written to a rotating
// log file. The returned closer releases the file.
func NewHandler(cfg config.LogConfig, out *os.File) (slog.Handler, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	var console slog.Handler
	if out != nil && term.IsTerminal(int(out.Fd())) {
		console = slog.NewTextHandler(out, opts)
	} else {
		console = slog.NewJSONHandler(out, opts)
	}

	if cfg.File == "" {
		return console, nopCloser{}, nil
	}

	if err := pathutil.CheckFileDirectoryWritable(afero.NewOsFs(), cfg.File, "log"); err != nil {
		return nil, nil, err
	}
	rotator := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}
	file := slog.NewJSONHandler(rotator, opts)

	return slog.NewMultiHandler(console, file), rotator, nil
}

// Setup installs the handler from NewHandler as slog's default.
func Setup(cfg config.LogConfig) (io.Closer, error) {
	h, closer, err := NewHandler(cfg, os.Stderr)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(slog.New(h))
	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
