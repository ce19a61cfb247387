package internal

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AI provider names accepted by AI_PROVIDER.
const (
	AIProviderXAI       = "xai"
	AIProviderOpenAI    = "openai"
	AIProviderAnthropic = "anthropic"
	AIProviderMock      = "mock"
)

type Config struct {
	Env         string
	Port        int
	LogLevel    string
	DatabaseUrl string

	// Public base URL and the path prefix of the report API.
	BaseURL   string
	APIPrefix string

	// Storage Configuration
	StorageProvider string // "local" or "r2"

	// Local Storage (development)
	LocalStoragePath string

	// R2 Storage (production)
	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string

	// Worker Configuration
	WorkerEnabled           bool
	WorkerPollInterval      time.Duration
	WorkerReconnectDelay    time.Duration
	WorkerReconnectAttempts int
	WorkerStaleJobThreshold time.Duration
	WorkerShutdownTimeout   time.Duration

	// Narrative Configuration
	AIProvider              string
	XAIAPIKey               string
	XAIBaseURL              string
	XAIModel                string
	OpenAIAPIKey            string
	OpenAIModel             string
	AnthropicAPIKey         string
	AnthropicModel          string
	AIMaxRetries            int // narrative calls are made once unless raised
	AIRequestTimeout        time.Duration
	NarrativeMaxConcurrency int

	// Rendering Configuration
	ReportAssetsDir   string
	ReportTempDir     string
	LatexCommand      string
	ZipCommand        string
	PhotoMaxDimension int

	// Submissions allowed per client address per hour; 0 disables the limit.
	SubmitRateLimit int

	// Metrics endpoint authentication
	// If both are empty, the /metrics endpoint will be unprotected (not recommended)
	MetricsUsername string
	MetricsPassword string
}

// IsDevelopment reports whether the service runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func NewConfig() (*Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	var env envReader
	cfg := &Config{
		Env:      env.String("ENV", "development"),
		Port:     env.Int("PORT", 8080),
		LogLevel: env.String("LOG_LEVEL", "debug"),

		BaseURL:   env.String("BASE_URL", "http://localhost:8080"),
		APIPrefix: env.String("API_PREFIX", "/api"),

		// Storage defaults to local filesystem for development
		StorageProvider:  env.String("STORAGE_PROVIDER", "local"),
		LocalStoragePath: env.String("LOCAL_STORAGE_PATH", "./storage"),

		// R2 configuration (production only)
		R2AccountID:       env.String("R2_ACCOUNT_ID", ""),
		R2AccessKeyID:     env.String("R2_ACCESS_KEY_ID", ""),
		R2SecretAccessKey: env.String("R2_SECRET_ACCESS_KEY", ""),
		R2BucketName:      env.String("R2_BUCKET_NAME", ""),

		// Worker defaults
		WorkerEnabled:           env.Bool("WORKER_ENABLED", true),
		WorkerPollInterval:      env.Duration("WORKER_POLL_INTERVAL", 5*time.Second),
		WorkerReconnectDelay:    env.Duration("WORKER_RECONNECT_DELAY", 2*time.Second),
		WorkerReconnectAttempts: env.Int("WORKER_RECONNECT_ATTEMPTS", 5),
		WorkerStaleJobThreshold: env.Duration("WORKER_STALE_JOB_THRESHOLD", 30*time.Minute),
		WorkerShutdownTimeout:   env.Duration("WORKER_SHUTDOWN_TIMEOUT", 2*time.Minute),

		// Narrative defaults
		AIProvider:              strings.ToLower(env.String("AI_PROVIDER", AIProviderMock)),
		XAIAPIKey:               env.String("XAI_API_KEY", ""),
		XAIBaseURL:              env.String("XAI_BASE_URL", "https://api.x.ai/v1"),
		XAIModel:                env.String("XAI_MODEL", "grok-3-mini-latest"),
		OpenAIAPIKey:            env.String("OPENAI_API_KEY", ""),
		OpenAIModel:             env.String("OPENAI_MODEL", "gpt-4o-mini"),
		AnthropicAPIKey:         env.String("ANTHROPIC_API_KEY", ""),
		AnthropicModel:          env.String("ANTHROPIC_MODEL", "claude-3-5-sonnet-20241022"),
		AIMaxRetries:            env.Int("AI_MAX_RETRIES", 0),
		AIRequestTimeout:        env.Duration("AI_REQUEST_TIMEOUT", 120*time.Second),
		NarrativeMaxConcurrency: env.Int("NARRATIVE_MAX_CONCURRENCY", 0),

		// Rendering defaults
		ReportAssetsDir:   env.String("REPORT_ASSETS_DIR", ""),
		ReportTempDir:     env.String("REPORT_TEMP_DIR", ""),
		LatexCommand:      env.String("LATEX_COMMAND", "pdflatex"),
		ZipCommand:        env.String("ZIP_COMMAND", "zip"),
		PhotoMaxDimension: env.Int("PHOTO_MAX_DIMENSION", 0),

		SubmitRateLimit: env.Int("SUBMIT_RATE_LIMIT", 30),

		// Metrics authentication
		MetricsUsername: env.String("METRICS_USERNAME", ""),
		MetricsPassword: env.String("METRICS_PASSWORD", ""),
	}
	if err := env.Err(); err != nil {
		return nil, err
	}

	cfg.APIPrefix = "/" + strings.Trim(cfg.APIPrefix, "/")
	if cfg.APIPrefix == "/" {
		cfg.APIPrefix = ""
	}

	// Required
	cfg.DatabaseUrl = os.Getenv("DATABASE_URL")
	if cfg.DatabaseUrl == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) validate() error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got: %d", cfg.Port)
	}

	// Validate storage configuration
	switch cfg.StorageProvider {
	case "local":
	case "r2":
		if cfg.R2AccountID == "" {
			return fmt.Errorf("R2_ACCOUNT_ID is required when STORAGE_PROVIDER is 'r2'")
		}
		if cfg.R2AccessKeyID == "" {
			return fmt.Errorf("R2_ACCESS_KEY_ID is required when STORAGE_PROVIDER is 'r2'")
		}
		if cfg.R2SecretAccessKey == "" {
			return fmt.Errorf("R2_SECRET_ACCESS_KEY is required when STORAGE_PROVIDER is 'r2'")
		}
		if cfg.R2BucketName == "" {
			return fmt.Errorf("R2_BUCKET_NAME is required when STORAGE_PROVIDER is 'r2'")
		}
	default:
		return fmt.Errorf("STORAGE_PROVIDER must be either 'local' or 'r2', got: %s", cfg.StorageProvider)
	}

	// Validate AI provider configuration
	switch cfg.AIProvider {
	case AIProviderXAI:
		if cfg.XAIAPIKey == "" {
			return fmt.Errorf("XAI_API_KEY is required when AI_PROVIDER is 'xai'")
		}
	case AIProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when AI_PROVIDER is 'openai'")
		}
	case AIProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required when AI_PROVIDER is 'anthropic'")
		}
	case AIProviderMock:
	default:
		return fmt.Errorf("AI_PROVIDER must be one of 'xai', 'openai', 'anthropic' or 'mock', got: %s", cfg.AIProvider)
	}

	if cfg.AIMaxRetries < 0 {
		return fmt.Errorf("AI_MAX_RETRIES cannot be negative, got: %d", cfg.AIMaxRetries)
	}
	if cfg.NarrativeMaxConcurrency < 0 {
		return fmt.Errorf("NARRATIVE_MAX_CONCURRENCY cannot be negative, got: %d", cfg.NarrativeMaxConcurrency)
	}
	if cfg.PhotoMaxDimension < 0 {
		return fmt.Errorf("PHOTO_MAX_DIMENSION cannot be negative, got: %d", cfg.PhotoMaxDimension)
	}
	if cfg.SubmitRateLimit < 0 {
		return fmt.Errorf("SUBMIT_RATE_LIMIT cannot be negative, got: %d", cfg.SubmitRateLimit)
	}
	if cfg.LatexCommand == "" {
		return fmt.Errorf("LATEX_COMMAND cannot be empty")
	}
	if cfg.ZipCommand == "" {
		return fmt.Errorf("ZIP_COMMAND cannot be empty")
	}
	if cfg.ReportAssetsDir != "" {
		info, err := os.Stat(cfg.ReportAssetsDir)
		if err != nil || !info.IsDir() {
			return fmt.Errorf("REPORT_ASSETS_DIR %q is not a directory", cfg.ReportAssetsDir)
		}
	}

	return nil
}

// envReader reads typed environment variables and remembers every value
// that failed to parse.
type envReader struct {
	errs []error
}

func (e *envReader) Err() error {
	return errors.Join(e.errs...)
}

func (e *envReader) String(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func (e *envReader) Int(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s must be an integer, got: %s", key, value))
		return fallback
	}
	return i
}

func (e *envReader) Bool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s must be a boolean, got: %s", key, value))
		return fallback
	}
	return b
}

func (e *envReader) Duration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s must be a duration such as 30s or 5m, got: %s", key, value))
		return fallback
	}
	return d
}
