// Package config loads runtime configuration from defaults, an optional
// YAML file, and environment variables, in that order of precedence.
// A .env file in the working directory is folded into the environment
// before overrides are read.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Provider ProviderConfig `yaml:"provider"`
	Storage  StorageConfig  `yaml:"storage"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Query    QueryConfig    `yaml:"query"`
}

// ProviderConfig selects the generative backend. Embeddings always use
// Gemini, so GeminiAPIKey is required regardless of the generator choice.
type ProviderConfig struct {
	Name         string `yaml:"name"` // "gemini" or "groq"
	Model        string `yaml:"model"`
	GeminiAPIKey string `yaml:"-"`
	GroqAPIKey   string `yaml:"-"`
}

type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

type IngestConfig struct {
	ChunkSize    int           `yaml:"chunk_size"`
	Overlap      int           `yaml:"overlap"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	Delay        time.Duration `yaml:"delay"`
	Workers      int           `yaml:"workers"`
}

type QueryConfig struct {
	TopK int `yaml:"top_k"`
}

func defaults() Config {
	return Config{
		Provider: ProviderConfig{
			Name: "gemini",
		},
		Storage: StorageConfig{
			DataDir: "./data",
		},
		Ingest: IngestConfig{
			ChunkSize:    1000,
			Overlap:      200,
			FetchTimeout: 30 * time.Second,
			Delay:        2 * time.Second,
			Workers:      1,
		},
		Query: QueryConfig{
			TopK: 3,
		},
	}
}

// Load reads configuration. An optional YAML file named by SPACEPEDIA_CONFIG
// is applied over the defaults, then environment variables override both.
// A .env file in the working directory is loaded first when present.
func Load() (Config, error) {
	_ = godotenv.Load()
	return loadWith(os.Getenv("SPACEPEDIA_CONFIG"))
}

func loadWith(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if cfg.Provider.GeminiAPIKey == "" {
		return Config{}, fmt.Errorf("missing required config: GEMINI_API_KEY (embeddings run on Gemini)")
	}
	if cfg.Provider.Name == "groq" && cfg.Provider.GroqAPIKey == "" {
		return Config{}, fmt.Errorf("missing required config: GROQ_API_KEY for provider groq")
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setString(&cfg.Provider.Name, "SPACEPEDIA_PROVIDER")
	setString(&cfg.Provider.Model, "SPACEPEDIA_MODEL")
	setString(&cfg.Provider.GeminiAPIKey, "GEMINI_API_KEY")
	setString(&cfg.Provider.GroqAPIKey, "GROQ_API_KEY")
	setString(&cfg.Storage.DataDir, "SPACEPEDIA_DATA_DIR")
	setInt(&cfg.Ingest.ChunkSize, "SPACEPEDIA_CHUNK_SIZE")
	setInt(&cfg.Ingest.Overlap, "SPACEPEDIA_CHUNK_OVERLAP")
	setDuration(&cfg.Ingest.FetchTimeout, "SPACEPEDIA_FETCH_TIMEOUT")
	setDuration(&cfg.Ingest.Delay, "SPACEPEDIA_INGEST_DELAY")
	setInt(&cfg.Ingest.Workers, "SPACEPEDIA_INGEST_WORKERS")
	setInt(&cfg.Query.TopK, "SPACEPEDIA_TOP_K")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
