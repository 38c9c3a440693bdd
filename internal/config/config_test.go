package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// clearEnv hides credentials of the developer running the tests
func clearEnv(t *testing.T) {
	for _, key := range []string{"OPENAI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY", "BLOB_SIGNING_SECRET", "INFERENCE_PROVIDER", "LARK_APP_ID", "LARK_APP_SECRET", "LARK_CHAT_ID"} {
		t.Setenv(key, "")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
openai:
  api_key: sk-test
storage:
  signing_secret: s3cret
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Inference.Provider)
	assert.Equal(t, 3, cfg.Inference.MaxAttempts)
	assert.Equal(t, 60*time.Second, cfg.Inference.Timeout)
	assert.Equal(t, 1280, cfg.FFmpeg.MaxWidth)
	assert.Equal(t, "現金", cfg.Accounting.CreditAccount)
	assert.Equal(t, "*/5 * * * *", cfg.Worker.SweepSchedule)

	cc := cfg.ToContainerConfig()
	assert.Equal(t, "sk-test", cc.Inference.OpenAIAPIKey)
	assert.Equal(t, "s3cret", cc.Storage.SigningSecret)
	assert.NoError(t, cc.Validate())
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("INFERENCE_PROVIDER", "gemini")
	t.Setenv("BLOB_SIGNING_SECRET", "from-env")

	path := writeConfig(t, "worker:\n  concurrency: 4\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "gemini", cfg.Inference.Provider)
	assert.Equal(t, "g-key", cfg.Gemini.APIKey)
	assert.Equal(t, "from-env", cfg.Storage.SigningSecret)
	assert.Equal(t, 4, cfg.Worker.Concurrency)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "missing openai key",
			body:    "storage:\n  signing_secret: x\n",
			wantErr: "openai.api_key",
		},
		{
			name:    "unknown provider",
			body:    "inference:\n  provider: llama\nstorage:\n  signing_secret: x\n",
			wantErr: "inference.provider",
		},
		{
			name:    "missing signing secret",
			body:    "openai:\n  api_key: k\n",
			wantErr: "storage.signing_secret",
		},
		{
			name:    "lark without chat",
			body:    "openai:\n  api_key: k\nstorage:\n  signing_secret: x\nlark:\n  app_id: cli_a\n  app_secret: s\n",
			wantErr: "lark.chat_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
