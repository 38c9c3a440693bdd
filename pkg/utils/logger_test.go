package utils

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger_WritesJSONToEveryFile(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a", "server.log")
	second := filepath.Join(dir, "b.log")

	logger, err := NewLogger(LoggerConfig{
		Level:      "info",
		OutputPath: first + ", " + second,
		Format:     "json",
		Service:    "receipt-scan",
	})
	require.NoError(t, err)

	logger.Debug("dropped")
	logger.Info("job started")
	require.NoError(t, logger.Sync())

	for _, path := range []string{first, second} {
		raw, err := os.ReadFile(path)
		require.NoError(t, err)

		lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
		require.Len(t, lines, 1, path)

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
		assert.Equal(t, "job started", entry["msg"])
		assert.Equal(t, "receipt-scan", entry["service"])
		assert.Contains(t, entry, "timestamp")
	}
}

func TestNewLogger_RejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  LoggerConfig
	}{
		{"unknown level", LoggerConfig{Level: "loud"}},
		{"unknown format", LoggerConfig{Format: "xml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLogger(tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestNewLogger_Defaults(t *testing.T) {
	logger, err := NewLogger(LoggerConfig{})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel), "debug is off by default")
}
