// Package container provides dependency injection and lifecycle management
// for the receipt scanning service following Clean Architecture principles.
package container

import (
	"fmt"
	"time"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	Database  DatabaseConfig
	Inference InferenceConfig
	Frames    FramesConfig
	Storage   StorageConfig
	Server    ServerConfig
	Worker    WorkerConfig

	// Lark notifier settings. Notifications are off when AppID is empty.
	Lark LarkConfig

	// CreditAccount is the credit side written on every journal row
	CreditAccount string
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// InferenceConfig holds AI provider settings.
type InferenceConfig struct {
	// Provider is "openai" or "gemini"
	Provider string

	// PromptsPath optionally overrides the built-in prompts
	PromptsPath string

	// Timeout, MaxAttempts and Backoff apply to every stage call
	Timeout     time.Duration
	MaxAttempts int
	Backoff     time.Duration

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	GeminiAPIKey string
	GeminiModel  string
}

// FramesConfig holds ffmpeg sampling settings.
type FramesConfig struct {
	Binary   string
	FPS      float64
	MaxWidth int
	Quality  int
}

// StorageConfig holds blob store settings.
type StorageConfig struct {
	// BlobDir is the root of the local blob store
	BlobDir string

	// WorkDir holds per-job scratch directories; empty means the OS temp dir
	WorkDir string

	// PublicURL prefixes signed URLs
	PublicURL     string
	SigningSecret string

	UploadURLTTL time.Duration
	DownloadTTL  time.Duration
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// WorkerConfig holds background worker settings.
type WorkerConfig struct {
	// Job runner settings
	PollInterval  time.Duration
	BatchSize     int
	Concurrency   int
	ShutdownGrace time.Duration

	// Stale job sweeper settings
	SweepSchedule string
	StaleAfter    time.Duration
}

// LarkConfig holds Lark notifier settings.
type LarkConfig struct {
	AppID     string
	AppSecret string
	ChatID    string
	BaseURL   string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:         "data/receipt-scan.db",
			MaxOpenConns: 1,
			MaxIdleConns: 1,
		},
		Inference: InferenceConfig{
			Provider:    "openai",
			Timeout:     60 * time.Second,
			MaxAttempts: 3,
			Backoff:     time.Second,
			OpenAIModel: "gpt-4o",
			GeminiModel: "gemini-1.5-flash",
		},
		Frames: FramesConfig{
			Binary:   "ffmpeg",
			FPS:      1,
			MaxWidth: 1280,
			Quality:  5,
		},
		Storage: StorageConfig{
			BlobDir:      "data/blobs",
			PublicURL:    "http://localhost:8080",
			UploadURLTTL: 15 * time.Minute,
			DownloadTTL:  time.Hour,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  5 * time.Minute,
			WriteTimeout: 5 * time.Minute,
		},
		Worker: WorkerConfig{
			PollInterval:  5 * time.Second,
			BatchSize:     5,
			Concurrency:   2,
			ShutdownGrace: 30 * time.Second,
			SweepSchedule: "*/5 * * * *",
			StaleAfter:    30 * time.Minute,
		},
		CreditAccount: "現金",
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	switch c.Inference.Provider {
	case "openai":
		if c.Inference.OpenAIAPIKey == "" {
			return fmt.Errorf("openai api key is required")
		}
	case "gemini":
		if c.Inference.GeminiAPIKey == "" {
			return fmt.Errorf("gemini api key is required")
		}
	default:
		return fmt.Errorf("unknown inference provider %q", c.Inference.Provider)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Storage.BlobDir == "" {
		return fmt.Errorf("storage blob dir is required")
	}
	if c.Storage.SigningSecret == "" {
		return fmt.Errorf("storage signing secret is required")
	}

	return nil
}
