package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var ErrMissingRequired = errors.New("missing required configuration")

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"vectorloom"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"vectorloom"`

	NSQLookupd string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost   string `envconfig:"NSQD_HOST" default:"nsqd:4150"`

	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com"`
	GeminiAPIKey  string `envconfig:"GEMINI_API_KEY"`

	// Concurrent provider calls per tenant in direct mode.
	EmbedConcurrency int `envconfig:"EMBED_CONCURRENCY" default:"8"`

	ServerPort    int    `envconfig:"SERVER_PORT" default:"8081"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Env vars may be set in the shell, so .env load errors are ignored.
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	rootEnv := filepath.Join(cwd, "../.env")
	_ = godotenv.Load(rootEnv)

	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}
	if c.EmbedConcurrency < 1 {
		return fmt.Errorf("%w: EMBED_CONCURRENCY must be >= 1", ErrMissingRequired)
	}
	return nil
}
