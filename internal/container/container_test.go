package container

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func testConfig(t *testing.T) *Config {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Database.Path = filepath.Join(dir, "test.db")
	cfg.Storage.BlobDir = filepath.Join(dir, "blobs")
	cfg.Storage.WorkDir = filepath.Join(dir, "work")
	cfg.Storage.SigningSecret = "secret"
	cfg.Inference.OpenAIAPIKey = "sk-test"
	cfg.Worker.PollInterval = time.Hour
	return cfg
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		ok     bool
	}{
		{"complete", func(c *Config) {}, true},
		{"gemini without key", func(c *Config) { c.Inference.Provider = "gemini" }, false},
		{"unknown provider", func(c *Config) { c.Inference.Provider = "local" }, false},
		{"no secret", func(c *Config) { c.Storage.SigningSecret = "" }, false},
		{"no database", func(c *Config) { c.Database.Path = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(cfg)
			if tt.ok {
				assert.NoError(t, cfg.Validate())
			} else {
				assert.Error(t, cfg.Validate())
			}
		})
	}
}

func TestContainerLifecycle(t *testing.T) {
	c, err := NewContainer(testConfig(t), zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, c.Start(ctx))
	assert.True(t, c.Ready())
	assert.Error(t, c.Start(ctx))

	health := c.Health(ctx)
	assert.True(t, health.Overall, health.Components)
	assert.Equal(t, "openai:gpt-4o", health.Components["inference"].Message)
	assert.NotNil(t, c.Services().Jobs)
	assert.NotNil(t, c.Orchestrator())

	require.NoError(t, c.Close())
	assert.False(t, c.Ready())
	assert.Error(t, c.Close())
	assert.Error(t, c.Start(ctx))
}

func TestNewContainerRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Inference.OpenAIAPIKey = ""

	_, err := NewContainer(cfg, zap.NewNop())
	assert.Error(t, err)

	_, err = NewContainer(nil, zap.NewNop())
	assert.Error(t, err)
}

func TestZapLoggerAdapter(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	a := &zapLoggerAdapter{logger: zap.New(core)}

	a.Error("upload failed", "job_id", "job-1", "error", errors.New("boom"), 42, "dropped", "dangling")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "job-1", fields["job_id"])
	assert.Equal(t, "boom", fields["error"])
	assert.Len(t, fields, 2)
}
