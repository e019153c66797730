package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration.
type Config struct {
	Env      string
	HTTPAddr string
	BaseURL  string

	DBDSN     string
	JWTSecret string

	LogLevel string

	RateLimitRPM int

	GeneratorURL       string
	GeneratorTimeoutMS int

	SessionDays     int
	RestoreCodeTTLM int

	AuditRetentionDays int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Env = strings.TrimSpace(os.Getenv("QD_ENV"))
	if cfg.Env == "" {
		return nil, fmt.Errorf("QD_ENV is required")
	}
	if cfg.Env != "dev" && cfg.Env != "prod" {
		return nil, fmt.Errorf("QD_ENV must be one of: dev, prod (got: %s)", cfg.Env)
	}

	cfg.HTTPAddr = getEnvOrDefault("QD_HTTP_ADDR", ":8080")

	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("QD_BASE_URL")), "/")
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("QD_BASE_URL is required")
	}

	cfg.DBDSN = strings.TrimSpace(os.Getenv("QD_DB_DSN"))
	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("QD_DB_DSN is required")
	}

	cfg.JWTSecret = os.Getenv("QD_JWT_SECRET")
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("QD_JWT_SECRET is required")
	}
	if cfg.Env == "prod" && len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("QD_JWT_SECRET must be at least 32 characters (currently %d)", len(cfg.JWTSecret))
	}

	cfg.LogLevel = getEnvOrDefault("QD_LOG_LEVEL", "info")
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("QD_LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", cfg.LogLevel)
	}

	var err error
	cfg.RateLimitRPM, err = getEnvIntOrDefault("QD_RATE_LIMIT_RPM", 120)
	if err != nil {
		return nil, err
	}

	cfg.GeneratorURL = strings.TrimSpace(os.Getenv("QD_GENERATOR_URL"))
	if cfg.GeneratorURL == "" {
		return nil, fmt.Errorf("QD_GENERATOR_URL is required")
	}

	cfg.GeneratorTimeoutMS, err = getEnvIntOrDefault("QD_GENERATOR_TIMEOUT_MS", 30000)
	if err != nil {
		return nil, err
	}
	if cfg.GeneratorTimeoutMS <= 0 || cfg.GeneratorTimeoutMS > 120000 {
		return nil, fmt.Errorf("QD_GENERATOR_TIMEOUT_MS must be between 1 and 120000 (got: %d)", cfg.GeneratorTimeoutMS)
	}

	cfg.SessionDays, err = getEnvIntOrDefault("QD_SESSION_DAYS", 7)
	if err != nil {
		return nil, err
	}

	cfg.RestoreCodeTTLM, err = getEnvIntOrDefault("QD_RESTORE_CODE_TTL_MINUTES", 30)
	if err != nil {
		return nil, err
	}
	if cfg.RestoreCodeTTLM <= 0 {
		return nil, fmt.Errorf("QD_RESTORE_CODE_TTL_MINUTES must be positive (got: %d)", cfg.RestoreCodeTTLM)
	}

	cfg.AuditRetentionDays, err = getEnvIntOrDefault("QD_AUDIT_RETENTION_DAYS", 90)
	if err != nil {
		return nil, err
	}
	if cfg.AuditRetentionDays <= 0 {
		return nil, fmt.Errorf("QD_AUDIT_RETENTION_DAYS must be positive (got: %d)", cfg.AuditRetentionDays)
	}

	return cfg, nil
}

// IsDev returns true if running in development mode.
func (c *Config) IsDev() bool {
	return c.Env == "dev"
}

// RedactedValues returns a map of config values with secrets redacted.
func (c *Config) RedactedValues() map[string]string {
	return map[string]string{
		"QD_ENV":                      c.Env,
		"QD_HTTP_ADDR":                c.HTTPAddr,
		"QD_BASE_URL":                 c.BaseURL,
		"QD_DB_DSN":                   redactDSN(c.DBDSN),
		"QD_JWT_SECRET":               "[REDACTED]",
		"QD_LOG_LEVEL":                c.LogLevel,
		"QD_RATE_LIMIT_RPM":           fmt.Sprintf("%d", c.RateLimitRPM),
		"QD_GENERATOR_URL":            c.GeneratorURL,
		"QD_GENERATOR_TIMEOUT_MS":     fmt.Sprintf("%d", c.GeneratorTimeoutMS),
		"QD_SESSION_DAYS":             fmt.Sprintf("%d", c.SessionDays),
		"QD_RESTORE_CODE_TTL_MINUTES": fmt.Sprintf("%d", c.RestoreCodeTTLM),
		"QD_AUDIT_RETENTION_DAYS":     fmt.Sprintf("%d", c.AuditRetentionDays),
	}
}

func redactDSN(dsn string) string {
	if start := strings.Index(dsn, "://"); start != -1 {
		if end := strings.Index(dsn[start+3:], "@"); end != -1 {
			return dsn[:start+3] + "[REDACTED]" + dsn[start+3+end:]
		}
	}
	return dsn
}

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(key string, defaultValue int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer (got: %q)", key, value)
	}
	return parsed, nil
}
