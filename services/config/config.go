// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strings"
)

// Config is the process-level configuration for the server and installers.
type Config struct {
	HTTPAddr string

	ClickHouseDSN string
	Database      string
	Table         string
	User          string
	Password      string

	DefaultTimeframe string
}

func mustEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// Load reads the environment with development defaults.
func Load() Config {
	return Config{
		HTTPAddr:         mustEnv("HTTP_ADDR", ":8080"),
		ClickHouseDSN:    mustEnv("CLICKHOUSE_DSN", "clickhouse://default:@localhost:9000?secure=false&compress=lz4"),
		Database:         mustEnv("CH_DATABASE", "motherbar"),
		Table:            mustEnv("CH_TABLE", "second_bars"),
		User:             mustEnv("CH_USER", "default"),
		Password:         mustEnv("CH_PASSWORD", ""),
		DefaultTimeframe: mustEnv("DEFAULT_TIMEFRAME", "1m"),
	}
}
