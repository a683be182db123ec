// Package config loads runtime configuration for the deepresearch
// engine from the environment, with a .env file loaded first if
// present.
//
// Grounded on the teacher's internal/config/config.go, trimmed to the
// settings the new engine actually consumes (LLM/search API keys, model,
// timeouts, memory directory) and dropping the vault/history/event-store
// paths that belonged to the teacher's Obsidian-vault and event-sourced
// presentation layers.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all engine configuration.
type Config struct {
	OpenRouterAPIKey string
	BraveAPIKey      string

	MemoryDir string

	RequestTimeout time.Duration

	Model string

	Verbose bool
}

// Load reads configuration from the environment and defaults. A .env
// file in the working directory is loaded first if present; its
// absence is not an error.
func Load() *Config {
	_ = godotenv.Load()

	home, _ := os.UserHomeDir()

	return &Config{
		OpenRouterAPIKey: os.Getenv("OPENROUTER_API_KEY"),
		BraveAPIKey:      os.Getenv("BRAVE_API_KEY"),

		MemoryDir: getEnvOrDefault("DEEPRESEARCH_MEMORY_DIR", filepath.Join(home, ".deepresearch", "memory")),

		RequestTimeout: 5 * time.Minute,

		Model: getEnvOrDefault("DEEPRESEARCH_MODEL", "alibaba/tongyi-deepresearch-30b-a3b"),

		Verbose: os.Getenv("DEEPRESEARCH_VERBOSE") == "true",
	}
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
