// Package config provides configuration management for the refresh agent.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the refresh agent.
type Config struct {
	// Server settings
	Port     int
	LogLevel string

	// Browser settings
	ChromePath       string
	ChromeControlURL string // Connect to an already running Chrome instead of launching one
	Headless         bool
	OpenURLs         []string

	// Storage
	DBPath string

	// Target site and default schedule (globalConfig defaults)
	TargetHost         string
	DefaultMinInterval int
	DefaultMaxInterval int
	AutoEnable         bool

	// Boundary validation for interval bounds supplied by the control panel
	MinAllowedInterval int
	MaxAllowedInterval int

	// Page agent timing
	ChallengePollInterval time.Duration
	ErrorPollInterval     time.Duration
	ReloadCooldown        time.Duration
	ResolveCooldown       time.Duration
	FailureReloadDelay    time.Duration
	ConnectionReloadDelay time.Duration

	// Control API
	APISecret            string // HS256 secret for bearer tokens
	AllowUnauthenticated bool
	APIRateLimit         int // Requests per minute per IP
}

// Load creates a Config from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:                  getEnvInt("PORT", 8192),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		ChromePath:            getEnv("CHROME_PATH", ""),
		ChromeControlURL:      getEnv("CHROME_CONTROL_URL", ""),
		Headless:              getEnv("HEADLESS", "false") == "true",
		OpenURLs:              getEnvList("OPEN_URLS"),
		DBPath:                getEnv("DB_PATH", "data/refresh.db"),
		TargetHost:            getEnv("TARGET_HOST", "goofish.com"),
		DefaultMinInterval:    getEnvInt("DEFAULT_MIN_INTERVAL", 45),
		DefaultMaxInterval:    getEnvInt("DEFAULT_MAX_INTERVAL", 60),
		AutoEnable:            getEnv("AUTO_ENABLE", "true") == "true",
		MinAllowedInterval:    getEnvInt("MIN_ALLOWED_INTERVAL", 30),
		MaxAllowedInterval:    getEnvInt("MAX_ALLOWED_INTERVAL", 300),
		ChallengePollInterval: getEnvDuration("CHALLENGE_POLL_INTERVAL", time.Second),
		ErrorPollInterval:     getEnvDuration("ERROR_POLL_INTERVAL", 2*time.Second),
		ReloadCooldown:        getEnvDuration("RELOAD_COOLDOWN", 10*time.Second),
		ResolveCooldown:       getEnvDuration("RESOLVE_COOLDOWN", 3*time.Second),
		FailureReloadDelay:    getEnvDuration("FAILURE_RELOAD_DELAY", 2*time.Second),
		ConnectionReloadDelay: getEnvDuration("CONNECTION_RELOAD_DELAY", time.Second),
		APISecret:             getEnv("API_SECRET", ""),
		AllowUnauthenticated:  getEnv("ALLOW_UNAUTHENTICATED", "false") == "true",
		APIRateLimit:          getEnvInt("API_RATE_LIMIT", 60),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// getEnvList splits a comma separated value, dropping empty entries.
func getEnvList(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
