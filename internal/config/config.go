// Package config loads process-wide settings from the environment.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig holds all application-level configuration loaded from environment
// variables. Field names mirror the settings enumerated in the external
// interfaces specification.
type AppConfig struct {
	AppEnv   string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	LogDir   string `envconfig:"LOG_DIR" default:"./logs"`

	// DatabaseURL is the relational database the conversational backend
	// executes generated SQL against. Required.
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	// LLM configuration. The LLM is treated as a generic OpenAI-compatible
	// text completer; LLMBaseURL lets operators point at Groq, OpenAI, or a
	// compatible gateway without code changes.
	LLMAPIKey   string        `envconfig:"LLM_API_KEY"`
	LLMBaseURL  string        `envconfig:"LLM_BASE_URL" default:"https://api.groq.com/openai/v1"`
	LLMModel    string        `envconfig:"LLM_MODEL" default:"llama-3.3-70b-versatile"`
	LLMTimeout  time.Duration `envconfig:"LLM_TIMEOUT" default:"60s"`
	OpenAIAPIKey string       `envconfig:"OPENAI_API_KEY"`

	// GroqAPIKey is a legacy alias for LLMAPIKey, honored when LLMAPIKey is unset.
	GroqAPIKey string `envconfig:"GROQ_API_KEY"`

	ElasticsearchURL string `envconfig:"ELASTICSEARCH_URL" default:"http://localhost:9200"`
	RedisURL         string `envconfig:"REDIS_URL" default:"redis://localhost:6379"`

	// ManifestPath points at the read-only schema manifest JSON file.
	ManifestPath string `envconfig:"MANIFEST_PATH" default:"./schema_manifest.json"`

	Port int `envconfig:"PORT" default:"8080"`
}

// Load reads AppConfig from environment variables and applies the legacy
// GROQ_API_KEY -> LLM_API_KEY mapping.
func Load() (*AppConfig, error) {
	var c AppConfig
	if err := envconfig.Process("", &c); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if c.LLMAPIKey == "" && c.GroqAPIKey != "" {
		c.LLMAPIKey = c.GroqAPIKey
	}
	return &c, nil
}

// SlogLevel converts LogLevel to a slog.Level. Unknown values default to info.
func (c *AppConfig) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
