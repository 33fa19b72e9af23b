package storage

import (
	"fmt"
	"time"
)

// Config holds backend selection and connection settings.
type Config struct {
	Driver string // sqlite (default) or postgres

	// sqlite
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	BusyTimeout     time.Duration
	CacheSizeKB     int

	// postgres
	DSN string

	// Dimensions is the embedding width the store accepts.
	Dimensions int

	// Distance selects the similarity function (cosine by default).
	Distance Distance
}

// DefaultConfig returns a sqlite configuration with the tuning the CLI uses.
func DefaultConfig() *Config {
	return &Config{
		Driver:          "sqlite",
		MaxOpenConns:    5,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		BusyTimeout:     5 * time.Second,
		CacheSizeKB:     64000,
		Dimensions:      768,
		Distance:        DistanceCosine,
	}
}

// pragmas returns the SQLite PRAGMA statements applied on open.
func (c *Config) pragmas() []string {
	return []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = memory",
		"PRAGMA mmap_size = 30000000000",
		"PRAGMA busy_timeout = " + formatMilliseconds(c.BusyTimeout),
		"PRAGMA foreign_keys = ON",
		"PRAGMA cache_size = -" + formatInt(c.CacheSizeKB),
	}
}

func (c *Config) distance() Distance {
	if c.Distance == "" {
		return DistanceCosine
	}
	return c.Distance
}

func formatMilliseconds(d time.Duration) string {
	return formatInt(int(d.Milliseconds()))
}

func formatInt(i int) string {
	return fmt.Sprintf("%d", i)
}
