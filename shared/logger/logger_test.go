package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// decodeLines parses every JSON record written to buf
func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()

	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		entries = append(entries, entry)
	}
	return entries
}

func TestNew_LevelFiltering(t *testing.T) {
	tests := []struct {
		level      string
		wantLevels []string
	}{
		{level: "debug", wantLevels: []string{"DEBUG", "INFO", "WARN", "ERROR"}},
		{level: "info", wantLevels: []string{"INFO", "WARN", "ERROR"}},
		{level: "warning", wantLevels: []string{"WARN", "ERROR"}},
		{level: "error", wantLevels: []string{"ERROR"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			output := &bytes.Buffer{}
			logger, err := New(&Config{Level: tt.level, Format: "json", writer: output})
			require.NoError(t, err)

			logger.Debug("Fetched runnable jobs", slog.Int("count", 2))
			logger.Info("Cron [Triggered]")
			logger.Warn("Jobs stuck in started state", slog.Int("count", 1))
			logger.Error("Export dispatch failed", slog.Int64("job_id", 9))

			var got []string
			for _, entry := range decodeLines(t, output) {
				got = append(got, entry["level"].(string))
			}
			assert.Equal(t, tt.wantLevels, got)
		})
	}
}

func TestNew_Formats(t *testing.T) {
	t.Run("json carries attributes", func(t *testing.T) {
		output := &bytes.Buffer{}
		logger, err := New(&Config{Level: "info", Format: "json", writer: output})
		require.NoError(t, err)

		logger.Info("Job Task [update] [Synced]",
			slog.Int64("job_id", 42),
			slog.Int("customer_count", 2),
			slog.Bool("auto", false),
		)

		entries := decodeLines(t, output)
		require.Len(t, entries, 1)
		assert.Equal(t, "Job Task [update] [Synced]", entries[0]["msg"])
		assert.Equal(t, float64(42), entries[0]["job_id"])
		assert.Equal(t, float64(2), entries[0]["customer_count"])
		assert.Equal(t, false, entries[0]["auto"])
		assert.Contains(t, entries[0], "time")
	})

	t.Run("console uses tint short levels", func(t *testing.T) {
		output := &bytes.Buffer{}
		logger, err := New(&Config{Level: "info", Format: "console", NoColor: true, writer: output})
		require.NoError(t, err)

		logger.Info("Cron [Completed]", slog.Int("jobs", 3))

		assert.Contains(t, output.String(), "INF")
		assert.Contains(t, output.String(), "Cron [Completed]")
		assert.Contains(t, output.String(), "jobs=3")
	})

	t.Run("unknown format falls back to json", func(t *testing.T) {
		output := &bytes.Buffer{}
		logger, err := New(&Config{Level: "info", Format: "logfmt", writer: output})
		require.NoError(t, err)

		logger.Info("fallback")
		require.Len(t, decodeLines(t, output), 1)
	})

	t.Run("source location", func(t *testing.T) {
		output := &bytes.Buffer{}
		logger, err := New(&Config{Level: "info", Format: "json", EnableSource: true, writer: output})
		require.NoError(t, err)

		logger.Info("with source")

		entries := decodeLines(t, output)
		require.Len(t, entries, 1)
		source, ok := entries[0]["source"].(map[string]interface{})
		require.True(t, ok)
		assert.Contains(t, source, "file")
		assert.Contains(t, source, "line")
	})
}

func TestNewDefault(t *testing.T) {
	logger := NewDefault()
	require.NotNil(t, logger)
	assert.NotNil(t, logger.Logger)
	assert.NoError(t, logger.Close())
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "cron.log")

	logger, err := New(&Config{
		Level:    "info",
		Format:   "console",
		Output:   "file",
		FilePath: path,
	})
	require.NoError(t, err)

	logger.Info("Cron [Triggered]", slog.Int64("job_id", 7))
	require.NoError(t, logger.Close())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "Cron [Triggered]")
	assert.Contains(t, string(content), "job_id=7")
	assert.NotContains(t, string(content), "\x1b[", "file output is written without colors")
}

func TestNew_InvalidOutput(t *testing.T) {
	tests := []struct {
		name      string
		config    *Config
		errString string
	}{
		{
			name:      "file output without path",
			config:    &Config{Output: "file"},
			errString: "log file path is required",
		},
		{
			name:      "unknown output",
			config:    &Config{Output: "syslog"},
			errString: "unsupported log output",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.config)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errString)
			assert.Nil(t, logger)
		})
	}
}

func TestLogger_Component(t *testing.T) {
	output := &bytes.Buffer{}

	logger, err := New(&Config{Level: "info", Format: "json", writer: output})
	require.NoError(t, err)

	logger.Component("cron-runner").Info("Cron [Completed]")

	var logEntry map[string]interface{}
	require.NoError(t, json.Unmarshal(output.Bytes(), &logEntry))
	assert.Equal(t, "cron-runner", logEntry["component"])
	assert.Equal(t, "Cron [Completed]", logEntry["msg"])
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"DEBUG":   slog.LevelInfo,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	}

	for level, want := range tests {
		t.Run(level, func(t *testing.T) {
			assert.Equal(t, want, parseLevel(level))
		})
	}
}

func TestLogger_With(t *testing.T) {
	output := &bytes.Buffer{}

	logger, err := New(&Config{Level: "info", Format: "json", writer: output})
	require.NoError(t, err)

	runLogger := logger.With(slog.String("lock_key", "mailupcronrun"), slog.Int("attempt", 1))
	runLogger.Info("Lock acquired")

	entries := decodeLines(t, output)
	require.Len(t, entries, 1)
	assert.Equal(t, "mailupcronrun", entries[0]["lock_key"])
	assert.Equal(t, float64(1), entries[0]["attempt"])
	assert.NoError(t, runLogger.Close())
}
