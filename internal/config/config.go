// Package config provides configuration management for Engram.
// Settings come from environment variables with sensible defaults for every
// option; a .env file in the working directory is honored when present.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Storage engine identifiers accepted by STORAGE_ENGINE.
const (
	EngineSQLite   = "sqlite"
	EnginePostgres = "postgres"
)

// Embedding provider identifiers accepted by EMBEDDINGS_PROVIDER.
const (
	EmbeddingsLocal      = "local"
	EmbeddingsOpenRouter = "openrouter"
)

// Config holds all configuration settings for the Engram memory service.
type Config struct {
	Storage    StorageConfig
	Summarizer SummarizerConfig
	Embeddings EmbeddingsConfig
	Retrieval  RetrievalConfig
	Backup     BackupConfig
}

// StorageConfig contains storage engine and data path configuration.
type StorageConfig struct {
	Engine      string // Storage engine: sqlite or postgres (default: sqlite)
	DBPath      string // Data directory for the embedded engine (default: ./memory_db)
	DatabaseURL string // Postgres DSN; required when Engine is postgres
}

// SummarizerConfig contains OpenRouter summarization settings.
type SummarizerConfig struct {
	APIKey   string  // OpenRouter API key; summarization degrades without it
	Endpoint string  // OpenRouter base URL (default: https://api.openrouter.ai/v1)
	Model    string  // Chat model used for summaries (default: openai/gpt-4o-mini)
	RPS      float64 // Outbound request budget in requests per second (default: 2)
}

// EmbeddingsConfig selects the embedding backend for the vector index.
// The remote provider reuses the summarizer's OpenRouter key and endpoint.
// Switching providers on an existing index requires re-embedding it; the
// collections are created with the provider's dimensionality.
type EmbeddingsConfig struct {
	Provider   string // Embedding backend: local or openrouter (default: local)
	Model      string // Remote embedding model (default: openai/text-embedding-3-small)
	Dimensions int    // Remote embedding width (default: 1536)
}

// RetrievalConfig contains retrieval defaults and summary tier thresholds.
type RetrievalConfig struct {
	DefaultMaxResults     int // Default result count for retrieval (default: 5)
	TinyContentThreshold  int // Below this size the content is its own summary (default: 500)
	SmallContentThreshold int // Below this size a short extractive summary is used (default: 2000)
}

// BackupConfig contains scheduled backup settings.
type BackupConfig struct {
	Enabled        bool   // Enable automatic backups (default: true)
	IntervalHours  int    // Minimum hours between snapshots (default: 24)
	RetentionCount int    // Number of snapshots to keep (default: 10)
	Path           string // Snapshot directory (default: ./backups)
}

// LoadConfig loads configuration from environment variables with sensible
// defaults. A .env file in the working directory is applied first when one
// exists; a missing file is not an error.
//
// Unparsable values fall back to their defaults. The one hard failure is
// selecting the postgres engine without a DATABASE_URL.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: failed to load .env file: %w", err)
		}
	}

	cfg := &Config{
		Storage: StorageConfig{
			Engine:      getEnv("STORAGE_ENGINE", EngineSQLite),
			DBPath:      getEnv("DB_PATH", "./memory_db"),
			DatabaseURL: getEnv("DATABASE_URL", ""),
		},
		Summarizer: SummarizerConfig{
			APIKey:   getEnv("OPENROUTER_API_KEY", ""),
			Endpoint: getEnv("OPENROUTER_ENDPOINT", "https://api.openrouter.ai/v1"),
			Model:    getEnv("OPENROUTER_MODEL", "openai/gpt-4o-mini"),
			RPS:      getEnvFloat("OPENROUTER_RPS", 2),
		},
		Embeddings: EmbeddingsConfig{
			Provider:   getEnv("EMBEDDINGS_PROVIDER", EmbeddingsLocal),
			Model:      getEnv("EMBEDDINGS_MODEL", "openai/text-embedding-3-small"),
			Dimensions: getEnvInt("EMBEDDINGS_DIMENSIONS", 1536),
		},
		Retrieval: RetrievalConfig{
			DefaultMaxResults:     getEnvInt("DEFAULT_MAX_RESULTS", 5),
			TinyContentThreshold:  getEnvInt("TINY_CONTENT_THRESHOLD", 500),
			SmallContentThreshold: getEnvInt("SMALL_CONTENT_THRESHOLD", 2000),
		},
		Backup: BackupConfig{
			Enabled:        getEnvBool("ENABLE_AUTO_BACKUP", true),
			IntervalHours:  getEnvInt("BACKUP_INTERVAL_HOURS", 24),
			RetentionCount: getEnvInt("BACKUP_RETENTION_COUNT", 10),
			Path:           getEnv("BACKUP_PATH", "./backups"),
		},
	}

	if cfg.Storage.Engine != EngineSQLite && cfg.Storage.Engine != EnginePostgres {
		return nil, fmt.Errorf("config: unknown STORAGE_ENGINE %q", cfg.Storage.Engine)
	}
	if cfg.Storage.Engine == EnginePostgres && cfg.Storage.DatabaseURL == "" {
		return nil, fmt.Errorf("config: STORAGE_ENGINE=postgres requires DATABASE_URL")
	}

	switch cfg.Embeddings.Provider {
	case EmbeddingsLocal:
	case EmbeddingsOpenRouter:
		if cfg.Summarizer.APIKey == "" {
			return nil, fmt.Errorf("config: EMBEDDINGS_PROVIDER=openrouter requires OPENROUTER_API_KEY")
		}
	default:
		return nil, fmt.Errorf("config: unknown EMBEDDINGS_PROVIDER %q", cfg.Embeddings.Provider)
	}

	return cfg, nil
}

// SQLitePath returns the location of the relational database file inside
// the data directory.
func (c *Config) SQLitePath() string {
	return filepath.Join(c.Storage.DBPath, "memory.sqlite")
}

// VectorPath returns the location of the embedded vector index inside the
// data directory.
func (c *Config) VectorPath() string {
	return filepath.Join(c.Storage.DBPath, "chroma", "vectors.db")
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. If the environment variable exists but cannot be parsed as an
// integer, it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default
// value. If the environment variable exists but cannot be parsed as a
// float, it returns the default value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value.
// It recognizes "true", "1", "yes" as true and "false", "0", "no" as false (case-insensitive).
// If the environment variable exists but cannot be parsed as a boolean,
// it returns the default value.
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
