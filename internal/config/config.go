package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
)

type Config struct {
	WorkloadsDir     string
	RunsDBPath       string
	RelgenDBDSN      string
	LogLevel         string
	BindAddr         string
	MemoryLimitBytes int64
	DefaultWorkers   int
}

// Load reads RELGEN_* variables. A .env file in the working directory is
// applied first; variables already set in the environment win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		WorkloadsDir: getEnv("RELGEN_WORKLOADS_DIR", "./workloads"),
		RunsDBPath:   getEnv("RELGEN_RUNS_DB", "./relgen-runs.sqlite"),
		RelgenDBDSN:  strings.TrimSpace(os.Getenv("RELGEN_DB")),
		LogLevel:     getEnv("RELGEN_LOG_LEVEL", "info"),
		BindAddr:     getEnv("RELGEN_BIND_ADDR", ":8080"),
	}

	if v := strings.TrimSpace(os.Getenv("RELGEN_MEMORY_LIMIT")); v != "" {
		n, err := ParseMemoryLimit(v)
		if err != nil {
			return nil, fmt.Errorf("RELGEN_MEMORY_LIMIT: %w", err)
		}
		cfg.MemoryLimitBytes = n
	}

	if v := strings.TrimSpace(os.Getenv("RELGEN_DEFAULT_WORKERS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("RELGEN_DEFAULT_WORKERS: invalid worker count %q", v)
		}
		cfg.DefaultWorkers = n
	}

	return cfg, nil
}

// MaxMemoryLimit bounds memory limits so they fit an int64 semaphore weight.
const MaxMemoryLimit = 1 << 62

// ParseMemoryLimit parses a byte size such as "512MiB", "2GB" or "1234567".
// "0" means unlimited.
func ParseMemoryLimit(s string) (int64, error) {
	n, err := humanize.ParseBytes(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n > MaxMemoryLimit {
		return 0, fmt.Errorf("%s is too large", s)
	}
	return int64(n), nil
}

// UsePostgres reports whether run history goes to PostgreSQL.
func (c *Config) UsePostgres() bool { return c.RelgenDBDSN != "" }

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
