package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration
type Config struct {
	Environment          string
	ServerPort           int
	LogLevel             string
	RedisURL             string
	DatabaseHost         string
	DatabasePort         int
	DatabaseUser         string
	DatabasePassword     string
	DatabaseName         string
	DatabaseSSLMode      string
	LoanPeriodDays       int
	LockWaitSeconds      int
	SweepIntervalMinutes int
	LoanCacheTTLSeconds  int
	RateLimitPerMinute   int
	CORSAllowedOrigins   []string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	port, err := strconv.Atoi(getEnv("SERVER_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	dbPort, err := strconv.Atoi(getEnv("POSTGRES_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid POSTGRES_PORT: %w", err)
	}

	loanPeriod, err := strconv.Atoi(getEnv("LOAN_PERIOD_DAYS", "14"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOAN_PERIOD_DAYS: %w", err)
	}
	if loanPeriod <= 0 {
		return nil, fmt.Errorf("LOAN_PERIOD_DAYS must be positive, got %d", loanPeriod)
	}

	lockWait, err := strconv.Atoi(getEnv("LOCK_WAIT_SECONDS", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOCK_WAIT_SECONDS: %w", err)
	}

	sweepInterval, err := strconv.Atoi(getEnv("OVERDUE_SWEEP_INTERVAL_MINUTES", "15"))
	if err != nil {
		return nil, fmt.Errorf("invalid OVERDUE_SWEEP_INTERVAL_MINUTES: %w", err)
	}

	cacheTTL, err := strconv.Atoi(getEnv("LOAN_CACHE_TTL_SECONDS", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOAN_CACHE_TTL_SECONDS: %w", err)
	}

	rateLimit, err := strconv.Atoi(getEnv("RATE_LIMIT_PER_MINUTE", "100"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_PER_MINUTE: %w", err)
	}

	return &Config{
		Environment:          getEnv("ENVIRONMENT", "development"),
		ServerPort:           port,
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		RedisURL:             getEnv("REDIS_URL", "redis://localhost:6379"),
		DatabaseHost:         getEnv("POSTGRES_HOST", "localhost"),
		DatabasePort:         dbPort,
		DatabaseUser:         getEnv("POSTGRES_USER", "biblioteca"),
		DatabasePassword:     getEnv("POSTGRES_PASSWORD", "biblioteca"),
		DatabaseName:         getEnv("POSTGRES_DB", "biblioteca"),
		DatabaseSSLMode:      getEnv("POSTGRES_SSLMODE", "disable"),
		LoanPeriodDays:       loanPeriod,
		LockWaitSeconds:      lockWait,
		SweepIntervalMinutes: sweepInterval,
		LoanCacheTTLSeconds:  cacheTTL,
		RateLimitPerMinute:   rateLimit,
		CORSAllowedOrigins: parseCSVEnv("CORS_ALLOWED_ORIGINS", []string{
			"http://localhost:5173",
			"http://localhost:3000",
		}),
	}, nil
}

// LoanPeriod returns the configured loan duration
func (c *Config) LoanPeriod() time.Duration {
	return time.Duration(c.LoanPeriodDays) * 24 * time.Hour
}

// LockWait returns the bounded wait for a book's serialization point
func (c *Config) LockWait() time.Duration {
	return time.Duration(c.LockWaitSeconds) * time.Second
}

// SweepInterval returns how often the overdue sweep runs
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMinutes) * time.Minute
}

// LoanCacheTTL returns how long cached loan reads stay fresh
func (c *Config) LoanCacheTTL() time.Duration {
	return time.Duration(c.LoanCacheTTLSeconds) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseCSVEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
