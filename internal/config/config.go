package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port        int
	DatabaseURL string
	NatsURL     string
	NatsToken   string
	LogLevel    string

	// SECUserAgent is the contact-identifying header EDGAR requires on
	// every request, e.g. "ChangeOnly admin@example.com".
	SECUserAgent string

	RateCapacity     int
	RateRefillPerSec float64
	FetchTimeout     time.Duration
	BackoffBase      time.Duration
	BackoffCap       time.Duration
	MaxAttempts      int

	PollInterval    time.Duration
	Tick            time.Duration
	PollBackoffBase time.Duration
	PollBackoffCap  time.Duration
	Workers         int
	FilingsPerPoll  int
}

func Load() Config {
	return Config{
		Port:        envInt("CHANGEONLY_PORT", 8760),
		DatabaseURL: envStr("DATABASE_URL", ""),
		NatsURL:     envStr("NATS_URL", "nats://localhost:4222"),
		NatsToken:   envStr("NATS_TOKEN", ""),
		LogLevel:    envStr("LOG_LEVEL", "info"),

		SECUserAgent: envStr("SEC_USER_AGENT", ""),

		RateCapacity:     envInt("SEC_RATE_CAPACITY", 10),
		RateRefillPerSec: envFloat("SEC_RATE_REFILL_PER_SEC", 10),
		FetchTimeout:     envDuration("SEC_FETCH_TIMEOUT", 30*time.Second),
		BackoffBase:      envDuration("SEC_BACKOFF_BASE", 500*time.Millisecond),
		BackoffCap:       envDuration("SEC_BACKOFF_CAP", 10*time.Second),
		MaxAttempts:      envInt("SEC_MAX_ATTEMPTS", 5),

		PollInterval:    envDuration("POLL_INTERVAL", 45*time.Minute),
		Tick:            envDuration("POLL_TICK", 15*time.Second),
		PollBackoffBase: envDuration("POLL_BACKOFF_BASE", time.Minute),
		PollBackoffCap:  envDuration("POLL_BACKOFF_CAP", time.Hour),
		Workers:         envInt("POLL_WORKERS", 4),
		FilingsPerPoll:  envInt("POLL_FILINGS_PER_POLL", 12),
	}
}

// Validate catches fatal misconfiguration at startup rather than at request
// time.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.SECUserAgent == "" {
		return fmt.Errorf("SEC_USER_AGENT is required (EDGAR contact header)")
	}
	if c.RateCapacity <= 0 || c.RateRefillPerSec <= 0 {
		return fmt.Errorf("SEC rate limit: capacity and refill must be positive")
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
