package logging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emunx/nxmeta/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"":      slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNewHandler_ConsoleAndFile(t *testing.T) {
	dir := t.TempDir()
	console, err := os.Create(filepath.Join(dir, "console.log"))
	require.NoError(t, err)
	defer console.Close()

	cfg := config.LogConfig{
		Level:   "info",
		File:    filepath.Join(dir, "logs", "nxmeta.log"),
		MaxSize: 1,
	}
	h, closer, err := NewHandler(cfg, console)
	require.NoError(t, err)

	logger := slog.New(h).With("component", "test")
	logger.Debug("hidden")
	logger.InfoContext(context.Background(), "Scanned ROM", "title_id", "01006B601380E000")
	require.NoError(t, closer.Close())

	for _, path := range []string{console.Name(), cfg.File} {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"msg":"Scanned ROM"`)
		assert.Contains(t, string(data), `"component":"test"`)
		assert.NotContains(t, string(data), "hidden")
	}
}

func TestNewHandler_BadLevel(t *testing.T) {
	_, _, err := NewHandler(config.LogConfig{Level: "chatty"}, os.Stderr)
	assert.Error(t, err)
}
