// Package config loads server configuration from the environment, with an
// optional .env file for development.
package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string
	// DatabaseDSN enables the Postgres snapshot store when non-empty;
	// otherwise the server runs on the in-memory store.
	DatabaseDSN string
	// Dev switches to development logging.
	Dev bool

	JoinTimeout      time.Duration
	ConnectTimeout   time.Duration
	MatchWaitTimeout time.Duration
}

// Load reads the environment. A missing .env file is not an error.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Addr:             ":8080",
		DatabaseDSN:      os.Getenv("DATABASE_URL"),
		Dev:              os.Getenv("ENV") == "dev",
		JoinTimeout:      30 * time.Second,
		ConnectTimeout:   30 * time.Second,
		MatchWaitTimeout: 5 * time.Minute,
	}
	if port := os.Getenv("PORT"); port != "" {
		cfg.Addr = ":" + port
	}
	if addr := os.Getenv("ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if d, err := time.ParseDuration(os.Getenv("JOIN_TIMEOUT")); err == nil {
		cfg.JoinTimeout = d
	}
	if d, err := time.ParseDuration(os.Getenv("CONNECT_TIMEOUT")); err == nil {
		cfg.ConnectTimeout = d
	}
	if d, err := time.ParseDuration(os.Getenv("MATCH_WAIT_TIMEOUT")); err == nil {
		cfg.MatchWaitTimeout = d
	}
	return cfg
}
