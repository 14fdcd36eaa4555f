package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	GeminiAPIKey string `envconfig:"GEMINI_API_KEY" default:""`
	// Empty means the AI adapter picks its default model.
	GenModel string `envconfig:"GEN_MODEL" default:""`
	DatabaseURL  string `envconfig:"DATABASE_URL" default:"dreamjournal.db"`
	HTTPPort     string `envconfig:"HTTP_PORT" default:"8080"`
	LogLevel     string `envconfig:"LOG_LEVEL" default:"info"`
	JWTSecret    string `envconfig:"JWT_SECRET" default:""`
}

// Load reads .env if present and parses configuration from the environment.
// A missing GEMINI_API_KEY is deliberately not fatal: the AI adapter reports
// it per call so entries can still be recorded without interpretations.
func Load() (*Config, error) {
	_ = godotenv.Load() // Load .env file if it exists

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}
	return &cfg, nil
}
