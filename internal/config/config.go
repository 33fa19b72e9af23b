// Package config loads settings from ~/.recollect/config.yaml with
// RECOLLECT_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jordanmatta/recollect/internal/storage"
)

// Config is the resolved application configuration.
type Config struct {
	Store     StoreConfig     `mapstructure:"store"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Ranking   RankingConfig   `mapstructure:"ranking"`
	Search    SearchConfig    `mapstructure:"search"`
}

type StoreConfig struct {
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"`
	DSN      string `mapstructure:"dsn"`
	Distance string `mapstructure:"distance"`
}

type EmbeddingConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
}

type IngestConfig struct {
	Mode string `mapstructure:"mode"`
}

type WorkerConfig struct {
	BatchSize    int           `mapstructure:"batch_size"`
	IdleInterval time.Duration `mapstructure:"idle_interval"`
	MaxRetries   int           `mapstructure:"max_retries"`
}

type RankingConfig struct {
	RecencyWeight float64       `mapstructure:"recency_weight"`
	Decay         time.Duration `mapstructure:"decay"`
	RecentWindow  time.Duration `mapstructure:"recent_window"`
	RecentBoost   float64       `mapstructure:"recent_boost"`
}

type SearchConfig struct {
	Threshold float64 `mapstructure:"threshold"`
	Limit     int     `mapstructure:"limit"`
}

// Dir returns the application directory, ~/.recollect.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".recollect"), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.distance", "cosine")

	v.SetDefault("embedding.base_url", "http://localhost:11434/v1")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.model", "nomic-embed-text")
	v.SetDefault("embedding.dimensions", 768)

	v.SetDefault("ingest.mode", "sync")

	v.SetDefault("worker.batch_size", 5)
	v.SetDefault("worker.idle_interval", 5*time.Second)
	v.SetDefault("worker.max_retries", 3)

	v.SetDefault("ranking.recency_weight", 0.15)
	v.SetDefault("ranking.decay", 336*time.Hour)
	v.SetDefault("ranking.recent_window", 72*time.Hour)
	v.SetDefault("ranking.recent_boost", 0.05)

	v.SetDefault("search.threshold", 0.5)
	v.SetDefault("search.limit", 10)
}

// Load reads the config file if present and applies env overrides. A missing
// file is not an error; defaults cover everything.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	v.SetEnvPrefix("RECOLLECT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// StorageConfig converts the store section into the storage package's form.
func (c *Config) StorageConfig() *storage.Config {
	sc := storage.DefaultConfig()
	sc.Driver = c.Store.Driver
	sc.Path = c.Store.Path
	sc.DSN = c.Store.DSN
	sc.Dimensions = c.Embedding.Dimensions
	if c.Store.Distance != "" {
		sc.Distance = storage.Distance(c.Store.Distance)
	}
	return sc
}
