package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedLogger(buf *bytes.Buffer, level slog.Level) *slog.Logger {
	h := NewLineHandler(buf, &slog.HandlerOptions{Level: level})
	h.now = func() time.Time { return time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC) }
	return slog.New(h)
}

func TestLineHandlerFormat(t *testing.T) {
	var buf bytes.Buffer
	fixedLogger(&buf, slog.LevelInfo).Info("merged stores", "output", "out.sqlite", "variants", 12)

	assert.Equal(t, "2026-01-02T15:04:05Z [info] merged stores | output=out.sqlite variants=12\n", buf.String())
}

func TestLineHandlerNoAttrs(t *testing.T) {
	var buf bytes.Buffer
	fixedLogger(&buf, slog.LevelInfo).Warn("nothing to do")

	assert.Equal(t, "2026-01-02T15:04:05Z [warn] nothing to do\n", buf.String())
}

func TestLineHandlerQuoting(t *testing.T) {
	var buf bytes.Buffer
	fixedLogger(&buf, slog.LevelInfo).Error("failed",
		"path", "/tmp/my store.sqlite",
		"error", errors.New("disk full"),
		"empty", "")

	out := buf.String()
	assert.Contains(t, out, `path="/tmp/my store.sqlite"`)
	assert.Contains(t, out, `error="disk full"`)
	assert.Contains(t, out, `empty=""`)
}

func TestLineHandlerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := fixedLogger(&buf, slog.LevelWarn)

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	out := buf.String()
	assert.NotContains(t, out, "debug message")
	assert.NotContains(t, out, "info message")
	assert.Contains(t, out, "[warn] warn message")
	assert.Contains(t, out, "[error] error message")
}

func TestLineHandlerAttrsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	logger := fixedLogger(&buf, slog.LevelDebug).
		With("op", "filter").
		WithGroup("store").
		With("path", "a.sqlite")

	logger.Debug("copied", "rows", 3, slog.Group("table", "name", "variant"))

	line := strings.TrimSpace(buf.String())
	assert.True(t, strings.HasSuffix(line,
		"[debug] copied | op=filter store.path=a.sqlite store.rows=3 store.table.name=variant"), line)
}

func TestLineHandlerLevelVarIsLive(t *testing.T) {
	var buf bytes.Buffer
	var lv slog.LevelVar
	lv.Set(slog.LevelError)
	logger := slog.New(NewLineHandler(&buf, &slog.HandlerOptions{Level: &lv}))

	logger.Info("hidden")
	lv.Set(slog.LevelInfo)
	logger.Info("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"Warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestLevelFromFlags(t *testing.T) {
	assert.Equal(t, LevelSilent, LevelFromFlags(slog.LevelDebug, 2, true))
	assert.Equal(t, slog.LevelDebug, LevelFromFlags(slog.LevelWarn, 2, false))
	assert.Equal(t, slog.LevelInfo, LevelFromFlags(slog.LevelWarn, 1, false))
	assert.Equal(t, slog.LevelDebug, LevelFromFlags(slog.LevelDebug, 1, false))
	assert.Equal(t, slog.LevelWarn, LevelFromFlags(slog.LevelWarn, 0, false))
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	require.NotNil(t, logger)
	assert.False(t, logger.Enabled(context.Background(), slog.LevelError))
	assert.Same(t, logger, OrDiscard(logger))
	assert.NotNil(t, OrDiscard(nil))
}
