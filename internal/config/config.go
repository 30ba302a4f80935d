package config

import (
	"os"

	"invoicedesk/internal/logger"
)

// Config carries process configuration, sourced from environment variables.
// The .env file, if any, is loaded by main before Load runs.
type Config struct {
	// Google Cloud / Document AI
	GoogleCloudProject         string
	GoogleCloudLocation        string
	DocumentAIProcessorID      string
	DocumentAIProcessorVersion string

	// OpenAI (LLM normalization fallback)
	OpenAIAPIKey string
	OpenAIModel  string

	// HTTP server
	ListenAddr string

	// Logging
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

// Load reads configuration from the environment. Extraction credentials are
// validated lazily by the commands that need them, not here: the ledger and
// its HTTP transport work without any cloud access.
func Load() (*Config, error) {
	config := &Config{
		GoogleCloudProject:         getEnv("GOOGLE_CLOUD_PROJECT", getEnv("GOOGLE_PROJECT_ID", "")),
		GoogleCloudLocation:        getEnv("GOOGLE_CLOUD_LOCATION", "us"),
		DocumentAIProcessorID:      getEnv("DOCUMENT_AI_PROCESSOR_ID", ""),
		DocumentAIProcessorVersion: getEnv("DOCUMENT_AI_PROCESSOR_VERSION", ""),
		OpenAIAPIKey:               getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:                getEnv("OPENAI_MODEL", ""),
		ListenAddr:                 getEnv("LISTEN_ADDR", ":8080"),
		LogLevel:                   getEnv("LOG_LEVEL", "info"),
		LogFormat:                  getEnv("LOG_FORMAT", "console"),
		LogTimeFormat:              getEnv("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"),
		LogOutput:                  getEnv("LOG_OUTPUT", "stderr"),
	}

	return config, nil
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
