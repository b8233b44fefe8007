package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/jimbolo/convtrack/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_Levels(t *testing.T) {
	tests := []struct {
		levelName   string
		expectInfo  bool
		expectDebug bool
	}{
		{"debug", true, true},
		{"info", true, false},
		{"warn", false, false},
		{"error", false, false},
		{"INFO", true, false},
		{"", true, false},
	}

	originalLogger := slog.Default()
	defer slog.SetDefault(originalLogger)

	for _, tt := range tests {
		t.Run(tt.levelName, func(t *testing.T) {
			var buf bytes.Buffer
			err := Init(models.ApplicationSettings{LogLevel: tt.levelName, LogFormat: "text"}, &buf)
			require.NoError(t, err)

			L().Info("Info message")
			L().Debug("Debug message")

			output := buf.String()
			if tt.expectInfo {
				assert.Contains(t, output, "Info message")
			} else {
				assert.NotContains(t, output, "Info message")
			}
			if tt.expectDebug {
				assert.Contains(t, output, "Debug message")
			} else {
				assert.NotContains(t, output, "Debug message")
			}
		})
	}
}

func TestInit_DebugFlagForcesDebugLevel(t *testing.T) {
	originalLogger := slog.Default()
	defer slog.SetDefault(originalLogger)

	var buf bytes.Buffer
	err := Init(models.ApplicationSettings{LogLevel: "error", Debug: true}, &buf)
	require.NoError(t, err)

	L().Debug("Event queued", "source", "custom-event")
	assert.Contains(t, buf.String(), "Event queued")
	assert.Contains(t, buf.String(), "source=custom-event")
}

func TestInit_Formats(t *testing.T) {
	tests := []struct {
		formatName   string
		expectJSON   bool
		expectedText string
	}{
		{"text", false, "level=INFO msg=\"Test message\""},
		{"json", true, `"level":"INFO","msg":"Test message"`},
		{"JSON", true, `"level":"INFO","msg":"Test message"`},
	}

	originalLogger := slog.Default()
	defer slog.SetDefault(originalLogger)

	for _, tt := range tests {
		t.Run(tt.formatName, func(t *testing.T) {
			var buf bytes.Buffer
			err := Init(models.ApplicationSettings{LogLevel: "info", LogFormat: tt.formatName}, &buf)
			require.NoError(t, err)

			L().Info("Test message")
			output := buf.String()

			assert.Equal(t, tt.expectJSON, strings.HasPrefix(output, "{"))
			assert.Contains(t, output, tt.expectedText)
			assert.Contains(t, output, "convtrack")
		})
	}
}

func TestInit_InvalidSettings(t *testing.T) {
	var buf bytes.Buffer
	err := Init(models.ApplicationSettings{LogLevel: "loud"}, &buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level specified")

	err = Init(models.ApplicationSettings{LogLevel: "info", LogFormat: "xml"}, &buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log format specified")
}

func TestL_ReturnsConfiguredLogger(t *testing.T) {
	originalLogger := slog.Default()
	defer slog.SetDefault(originalLogger)

	var buf bytes.Buffer
	require.NoError(t, Init(models.ApplicationSettings{LogLevel: "debug"}, &buf))
	assert.Equal(t, slog.Default(), L())
}
