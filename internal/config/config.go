package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Inference  InferenceConfig  `mapstructure:"inference"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	Gemini     GeminiConfig     `mapstructure:"gemini"`
	FFmpeg     FFmpegConfig     `mapstructure:"ffmpeg"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Worker     WorkerConfig     `mapstructure:"worker"`
	Lark       LarkConfig       `mapstructure:"lark"`
	Accounting AccountingConfig `mapstructure:"accounting"`
	Logger     LoggerConfig     `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// InferenceConfig selects the AI provider and how calls to it are retried
type InferenceConfig struct {
	Provider    string        `mapstructure:"provider"` // openai or gemini
	PromptsPath string        `mapstructure:"prompts_path"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	Backoff     time.Duration `mapstructure:"backoff"`
}

// OpenAIConfig holds OpenAI API configuration
type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

// GeminiConfig holds Gemini API configuration
type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// FFmpegConfig controls frame sampling
type FFmpegConfig struct {
	Binary   string  `mapstructure:"binary"`
	FPS      float64 `mapstructure:"fps"`
	MaxWidth int     `mapstructure:"max_width"`
	Quality  int     `mapstructure:"quality"`
}

// StorageConfig holds blob store and scratch space configuration
type StorageConfig struct {
	BlobDir       string        `mapstructure:"blob_dir"`
	WorkDir       string        `mapstructure:"work_dir"`
	PublicURL     string        `mapstructure:"public_url"`
	SigningSecret string        `mapstructure:"signing_secret"`
	UploadURLTTL  time.Duration `mapstructure:"upload_url_ttl"`
	DownloadTTL   time.Duration `mapstructure:"download_url_ttl"`
}

// WorkerConfig holds job runner and sweeper configuration
type WorkerConfig struct {
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	BatchSize     int           `mapstructure:"batch_size"`
	Concurrency   int           `mapstructure:"concurrency"`
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace"`
	SweepSchedule string        `mapstructure:"sweep_schedule"`
	StaleAfter    time.Duration `mapstructure:"stale_after"`
}

// LarkConfig holds Lark notifier configuration. The notifier is off without an app id.
type LarkConfig struct {
	AppID     string `mapstructure:"app_id"`
	AppSecret string `mapstructure:"app_secret"`
	ChatID    string `mapstructure:"chat_id"`
	BaseURL   string `mapstructure:"base_url"`
}

// AccountingConfig holds journal defaults
type AccountingConfig struct {
	CreditAccount string `mapstructure:"credit_account"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables.
// A missing file is not an error when configPath is empty.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 5*time.Minute)
	v.SetDefault("server.write_timeout", 5*time.Minute)

	v.SetDefault("database.path", "data/receipt-scan.db")
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", 0)

	v.SetDefault("inference.provider", "openai")
	v.SetDefault("inference.timeout", 60*time.Second)
	v.SetDefault("inference.max_attempts", 3)
	v.SetDefault("inference.backoff", time.Second)

	v.SetDefault("openai.model", "gpt-4o")
	v.SetDefault("gemini.model", "gemini-1.5-flash")

	v.SetDefault("ffmpeg.binary", "ffmpeg")
	v.SetDefault("ffmpeg.fps", 1.0)
	v.SetDefault("ffmpeg.max_width", 1280)
	v.SetDefault("ffmpeg.quality", 5)

	v.SetDefault("storage.blob_dir", "data/blobs")
	v.SetDefault("storage.work_dir", "")
	v.SetDefault("storage.public_url", "http://localhost:8080")
	v.SetDefault("storage.upload_url_ttl", 15*time.Minute)
	v.SetDefault("storage.download_url_ttl", time.Hour)

	v.SetDefault("worker.poll_interval", 5*time.Second)
	v.SetDefault("worker.batch_size", 5)
	v.SetDefault("worker.concurrency", 2)
	v.SetDefault("worker.shutdown_grace", 30*time.Second)
	v.SetDefault("worker.sweep_schedule", "*/5 * * * *")
	v.SetDefault("worker.stale_after", 30*time.Minute)

	v.SetDefault("accounting.credit_account", "現金")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars(v *viper.Viper) {
	// Sensitive credentials from environment
	_ = v.BindEnv("openai.api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("gemini.api_key", "GEMINI_API_KEY", "GOOGLE_API_KEY")
	_ = v.BindEnv("storage.signing_secret", "BLOB_SIGNING_SECRET")
	_ = v.BindEnv("lark.app_id", "LARK_APP_ID")
	_ = v.BindEnv("lark.app_secret", "LARK_APP_SECRET")
	_ = v.BindEnv("lark.chat_id", "LARK_CHAT_ID")
	_ = v.BindEnv("inference.provider", "INFERENCE_PROVIDER")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Inference.Provider {
	case "openai":
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("openai.api_key is required")
		}
	case "gemini":
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("gemini.api_key is required")
		}
	default:
		return fmt.Errorf("inference.provider must be openai or gemini, got %q", c.Inference.Provider)
	}

	if c.Storage.SigningSecret == "" {
		return fmt.Errorf("storage.signing_secret is required")
	}
	if c.Inference.MaxAttempts < 1 {
		return fmt.Errorf("inference.max_attempts must be at least 1")
	}
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("worker.concurrency must be at least 1")
	}
	if c.Lark.AppID != "" && (c.Lark.AppSecret == "" || c.Lark.ChatID == "") {
		return fmt.Errorf("lark.app_secret and lark.chat_id are required when lark.app_id is set")
	}

	return nil
}
