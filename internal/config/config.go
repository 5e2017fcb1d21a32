package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// ConfigurationError reports missing or invalid setup. It is fatal and
// surfaces at startup, before any request is served.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration for '%s': %s", e.Field, e.Reason)
}

func configError(field, reason string) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: reason}
}

type Config struct {
	API      APIConfig
	Webhooks WebhookConfig
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Audit    AuditConfig
	Worker   WorkerConfig
}

// APIConfig carries the two-mode (sandbox/production) gateway settings.
type APIConfig struct {
	SandboxMode      bool
	SandboxURL       string
	ProductionURL    string
	SandboxAPIKey    string
	ProductionAPIKey string
	MerchantID       string
	Timeout          time.Duration
	ConnectTimeout   time.Duration
	MaxRetries       int
	RetryDelay       time.Duration
}

// BaseURL returns the URL for the active mode.
func (c APIConfig) BaseURL() string {
	if c.SandboxMode {
		return c.SandboxURL
	}
	return c.ProductionURL
}

// APIKey returns the credential for the active mode, or a
// ConfigurationError when it is absent.
func (c APIConfig) APIKey() (string, error) {
	if c.SandboxMode {
		if c.SandboxAPIKey == "" {
			return "", configError("sandbox_api_key", "API key is required for sandbox mode")
		}
		return c.SandboxAPIKey, nil
	}
	if c.ProductionAPIKey == "" {
		return "", configError("production_api_key", "API key is required for production mode")
	}
	return c.ProductionAPIKey, nil
}

type WebhookConfig struct {
	Route       string
	Secret      string
	MaxAttempts int
}

type ServerConfig struct {
	Port   string
	APIKey string
}

type DatabaseConfig struct {
	URL string
}

type RedisConfig struct {
	URL string
}

type AuditConfig struct {
	Enabled bool
}

type WorkerConfig struct {
	SweepInterval time.Duration
}

// Load builds the configuration from environment variables. Call Validate
// before using the result.
func Load() *Config {
	return &Config{
		API: APIConfig{
			SandboxMode:      getEnvBool("PRAHSYS_SANDBOX_MODE", true),
			SandboxURL:       getEnv("PRAHSYS_SANDBOX_URL", "https://sandbox-api.prahsys.com"),
			ProductionURL:    getEnv("PRAHSYS_PRODUCTION_URL", "https://api.prahsys.com"),
			SandboxAPIKey:    os.Getenv("PRAHSYS_SANDBOX_API_KEY"),
			ProductionAPIKey: os.Getenv("PRAHSYS_PRODUCTION_API_KEY"),
			MerchantID:       os.Getenv("PRAHSYS_MERCHANT_ID"),
			Timeout:          time.Duration(getEnvInt("PRAHSYS_API_TIMEOUT", 30)) * time.Second,
			ConnectTimeout:   time.Duration(getEnvInt("PRAHSYS_CONNECT_TIMEOUT", 10)) * time.Second,
			MaxRetries:       getEnvInt("PRAHSYS_MAX_RETRIES", 3),
			RetryDelay:       time.Duration(getEnvInt("PRAHSYS_RETRY_DELAY", 1000)) * time.Millisecond,
		},
		Webhooks: WebhookConfig{
			Route:       getEnv("PRAHSYS_WEBHOOK_ROUTE", "/webhooks/prahsys"),
			Secret:      os.Getenv("PRAHSYS_WEBHOOK_SECRET"),
			MaxAttempts: getEnvInt("PRAHSYS_WEBHOOK_MAX_ATTEMPTS", 3),
		},
		Server: ServerConfig{
			Port:   getEnv("PORT", "8080"),
			APIKey: os.Getenv("CLERK_API_KEY"),
		},
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Audit: AuditConfig{
			Enabled: getEnvBool("CLERK_AUDIT_ENABLED", true),
		},
		Worker: WorkerConfig{
			SweepInterval: getEnvDuration("WORKER_SWEEP_INTERVAL", 5*time.Minute),
		},
	}
}

// Validate checks the whole configuration and returns the first
// ConfigurationError found.
func (c *Config) Validate() error {
	if err := validateURL("sandbox_url", c.API.SandboxURL); err != nil {
		return err
	}
	if err := validateURL("production_url", c.API.ProductionURL); err != nil {
		return err
	}

	key, err := c.API.APIKey()
	if err != nil {
		return err
	}
	if len(key) < 10 {
		field := "production_api_key"
		if c.API.SandboxMode {
			field = "sandbox_api_key"
		}
		return configError(field, "must be at least 10 characters")
	}

	if c.API.MerchantID == "" {
		return configError("merchant_id", "merchant ID is required")
	}
	if c.API.MaxRetries < 0 || c.API.MaxRetries > 10 {
		return configError("max_retries", "must be between 0 and 10")
	}
	if c.API.RetryDelay < 100*time.Millisecond || c.API.RetryDelay > 30*time.Second {
		return configError("retry_delay", "must be between 100 and 30000 milliseconds")
	}
	if c.Webhooks.MaxAttempts < 1 {
		return configError("webhook_max_attempts", "must be at least 1")
	}
	if c.Webhooks.Route == "" {
		return configError("webhook_route", "webhook route is required")
	}
	return nil
}

func validateURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return configError(field, "must be a valid URL")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
