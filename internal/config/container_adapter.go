package config

import (
	"github.com/garyjia/receipt-scan/internal/container"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
		},
		Inference: container.InferenceConfig{
			Provider:      c.Inference.Provider,
			PromptsPath:   c.Inference.PromptsPath,
			Timeout:       c.Inference.Timeout,
			MaxAttempts:   c.Inference.MaxAttempts,
			Backoff:       c.Inference.Backoff,
			OpenAIAPIKey:  c.OpenAI.APIKey,
			OpenAIModel:   c.OpenAI.Model,
			OpenAIBaseURL: c.OpenAI.BaseURL,
			GeminiAPIKey:  c.Gemini.APIKey,
			GeminiModel:   c.Gemini.Model,
		},
		Frames: container.FramesConfig{
			Binary:   c.FFmpeg.Binary,
			FPS:      c.FFmpeg.FPS,
			MaxWidth: c.FFmpeg.MaxWidth,
			Quality:  c.FFmpeg.Quality,
		},
		Storage: container.StorageConfig{
			BlobDir:       c.Storage.BlobDir,
			WorkDir:       c.Storage.WorkDir,
			PublicURL:     c.Storage.PublicURL,
			SigningSecret: c.Storage.SigningSecret,
			UploadURLTTL:  c.Storage.UploadURLTTL,
			DownloadTTL:   c.Storage.DownloadTTL,
		},
		Server: container.ServerConfig{
			Host:         c.Server.Host,
			Port:         c.Server.Port,
			ReadTimeout:  c.Server.ReadTimeout,
			WriteTimeout: c.Server.WriteTimeout,
		},
		Worker: container.WorkerConfig{
			PollInterval:  c.Worker.PollInterval,
			BatchSize:     c.Worker.BatchSize,
			Concurrency:   c.Worker.Concurrency,
			ShutdownGrace: c.Worker.ShutdownGrace,
			SweepSchedule: c.Worker.SweepSchedule,
			StaleAfter:    c.Worker.StaleAfter,
		},
		Lark: container.LarkConfig{
			AppID:     c.Lark.AppID,
			AppSecret: c.Lark.AppSecret,
			ChatID:    c.Lark.ChatID,
			BaseURL:   c.Lark.BaseURL,
		},
		CreditAccount: c.Accounting.CreditAccount,
	}
}
