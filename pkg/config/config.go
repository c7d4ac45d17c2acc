// Package config loads node configuration: process-level settings from
// environment variables and the richer node profile from YAML.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds server configuration.
type Config struct {
	Port           string
	LogLevel       string
	DatabaseURL    string
	LedgerPath     string
	WorkerInterval time.Duration
	RateLimitRPS   float64
	Production     bool
	AllowedOrigins []string
	AuthSecret     string
	OTLPEndpoint   string
}

// Load reads configuration from environment variables, filling defaults
// for anything unset.
func Load() *Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	ledgerPath := os.Getenv("LEDGER_PATH")
	if ledgerPath == "" {
		ledgerPath = "isnad.jsonl"
	}

	interval := time.Hour
	if v := os.Getenv("WORKER_INTERVAL"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			interval = time.Duration(secs) * time.Second
		}
	}

	rps := 5.0
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			rps = f
		}
	}

	var origins []string
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
	}

	return &Config{
		Port:           port,
		LogLevel:       logLevel,
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		LedgerPath:     ledgerPath,
		WorkerInterval: interval,
		RateLimitRPS:   rps,
		Production:     os.Getenv("ISNAD_PRODUCTION") == "true",
		AllowedOrigins: origins,
		AuthSecret:     os.Getenv("ISNAD_AUTH_SECRET"),
		OTLPEndpoint:   os.Getenv("OTLP_ENDPOINT"),
	}
}
