// Package config provides configuration management for Facet. Settings
// load from environment variables with the FACET_ prefix, with sensible
// defaults for every option.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration settings for the Facet server.
type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	LLM      LLMConfig
	Security SecurityConfig
	Sessions SessionsConfig
	Prompts  PromptsConfig
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port int    // Server port (default: 8080)
	Host string // Server host (default: 127.0.0.1)
}

// StorageConfig contains database and storage configuration.
type StorageConfig struct {
	Engine      string // Storage engine: sqlite, postgres (default: sqlite)
	DataPath    string // Path to the sqlite data directory (default: ./data)
	PostgresDSN string // Postgres connection string (required when engine is postgres)
}

// LLMConfig contains LLM provider configuration.
type LLMConfig struct {
	Provider             string        // LLM provider: ollama, openai (default: ollama)
	OllamaURL            string        // Ollama API URL (default: http://localhost:11434)
	OllamaModel          string        // Ollama model for completions (default: llama3.2)
	OllamaEmbeddingModel string        // Ollama model for embeddings (default: nomic-embed-text)
	OpenAIAPIKey         string        // OpenAI API key
	OpenAIModel          string        // OpenAI model name (default: gpt-4o-mini)
	OpenAIEmbeddingModel string        // OpenAI embedding model (default: text-embedding-3-small)
	Timeout              time.Duration // Request timeout (default: 60s)
	EnableEmbeddings     bool          // Index entity embeddings for similarity search (default: true)
}

// SecurityConfig contains security and authentication settings.
type SecurityConfig struct {
	APIToken  string  // Bearer token; empty disables auth (development mode)
	RateLimit float64 // Requests per second per client (default: 10)
	RateBurst int     // Burst size per client (default: 20)
}

// SessionsConfig controls chat session expiry.
type SessionsConfig struct {
	CleanupInterval time.Duration // How often to sweep (default: 1h)
	MaxAge          time.Duration // Idle age before removal (default: 24h)
}

// PromptsConfig points at optional prompt template overrides.
type PromptsConfig struct {
	// Path to a YAML file of prompt overrides, hot-reloaded on change.
	// Empty uses the built-in templates.
	Path string
}

// LoadConfig loads configuration from environment variables with the
// FACET_ prefix, falling back to defaults.
func LoadConfig() (*Config, error) {
	return &Config{
		Server: ServerConfig{
			Port: getEnvInt("FACET_PORT", 8080),
			Host: getEnv("FACET_HOST", "127.0.0.1"),
		},
		Storage: StorageConfig{
			Engine:      getEnv("FACET_STORAGE_ENGINE", "sqlite"),
			DataPath:    getEnv("FACET_DATA_PATH", "./data"),
			PostgresDSN: getEnv("FACET_POSTGRES_DSN", ""),
		},
		LLM: LLMConfig{
			Provider:             getEnv("FACET_LLM_PROVIDER", "ollama"),
			OllamaURL:            getEnv("FACET_OLLAMA_URL", "http://localhost:11434"),
			OllamaModel:          getEnv("FACET_OLLAMA_MODEL", "llama3.2"),
			OllamaEmbeddingModel: getEnv("FACET_EMBEDDING_MODEL", "nomic-embed-text"),
			OpenAIAPIKey:         getEnv("FACET_OPENAI_API_KEY", ""),
			OpenAIModel:          getEnv("FACET_OPENAI_MODEL", "gpt-4o-mini"),
			OpenAIEmbeddingModel: getEnv("FACET_OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			Timeout:              getEnvDuration("FACET_LLM_TIMEOUT", 60*time.Second),
			EnableEmbeddings:     getEnvBool("FACET_ENABLE_EMBEDDINGS", true),
		},
		Security: SecurityConfig{
			APIToken:  getEnv("FACET_API_TOKEN", ""),
			RateLimit: getEnvFloat("FACET_RATE_LIMIT", 10),
			RateBurst: getEnvInt("FACET_RATE_BURST", 20),
		},
		Sessions: SessionsConfig{
			CleanupInterval: getEnvDuration("FACET_SESSION_CLEANUP_INTERVAL", time.Hour),
			MaxAge:          getEnvDuration("FACET_SESSION_MAX_AGE", 24*time.Hour),
		},
		Prompts: PromptsConfig{
			Path: getEnv("FACET_PROMPTS_PATH", ""),
		},
	}, nil
}

// getEnv retrieves a string environment variable or returns a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable. Unparseable values
// fall back to the default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable. Unparseable values
// fall back to the default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable. It recognizes
// true/1/yes and false/0/no, case-insensitive. Unparseable values fall
// back to the default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
			return true
		case "false", "0", "no", "False", "FALSE", "No", "NO":
			return false
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable (Go duration
// syntax, e.g. "30s"). Unparseable values fall back to the default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
