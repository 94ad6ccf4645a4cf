package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_CustomWriter(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{
		Level:  slog.LevelInfo,
		Format: "json",
		Writer: &buf,
	})

	logger.Info("sync finished", "account_id", "acct-1")

	assert.Contains(t, buf.String(), "sync finished")
	assert.Contains(t, buf.String(), "\"level\":\"INFO\"")
	assert.Contains(t, buf.String(), "acct-1")
}

func TestNew_FormatAutoDetection(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{
		Environment: "production",
		Writer:      &buf,
	})
	logger.Info("hello")
	assert.True(t, strings.HasPrefix(buf.String(), "{"), "production should default to JSON")

	buf.Reset()
	logger = New(Config{
		Environment: "development",
		Writer:      &buf,
	})
	logger.Info("hello")
	assert.False(t, strings.HasPrefix(buf.String(), "{"), "development should default to pretty")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARNING"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestPrettyHandler_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})

	assert.False(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, h.Enabled(context.Background(), slog.LevelError))
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Format: "json", Writer: &buf})

	logger.WithError(assert.AnError).Warn("remote push failed")
	assert.Contains(t, buf.String(), assert.AnError.Error())
}
