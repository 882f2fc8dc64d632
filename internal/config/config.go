package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"spendtracker/internal/ledger"
	applog "spendtracker/internal/log"
)

const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"

	minJWTSecretLength = 16
)

type Config struct {
	AppEnv string

	// HTTP server
	Port               string
	RateLimitPerMinute int

	// Store
	DataBackend   string
	SQLiteDBPath  string
	BalancePolicy string
	StoreTimeout  time.Duration

	// Auth
	JWTSecret  string
	JWTTTL     time.Duration
	BcryptCost int

	// AMQP; events are disabled when AMQPURL is empty.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Sheets mirror (worker only)
	GoogleSpreadsheetID      string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	LogLevel string

	parseErrors []string
}

// Load reads the environment. Malformed numbers and durations are reported
// by Validate.
func Load() *Config {
	cfg := &Config{}
	cfg.AppEnv = getEnv("APP_ENV", "production")

	cfg.Port = getEnv("PORT", "8081")
	cfg.RateLimitPerMinute = cfg.getEnvInt("RATE_LIMIT_PER_MINUTE", 60)

	cfg.DataBackend = getEnv("DATA_BACKEND", BackendSQLite)
	cfg.SQLiteDBPath = getEnv("SQLITE_DB_PATH", "./data/spendtracker.db")
	cfg.BalancePolicy = getEnv("BALANCE_POLICY", string(ledger.PolicyIncremental))
	cfg.StoreTimeout = cfg.getEnvDuration("STORE_TIMEOUT", 5*time.Second)

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	cfg.JWTTTL = cfg.getEnvDuration("JWT_TTL", 24*time.Hour)
	cfg.BcryptCost = cfg.getEnvInt("BCRYPT_COST", 0)

	cfg.AMQPURL = os.Getenv("AMQP_URL")
	cfg.AMQPExchange = getEnv("AMQP_EXCHANGE", "spendtracker")
	cfg.AMQPQueue = getEnv("AMQP_QUEUE", "ledger_changes")

	cfg.GoogleSpreadsheetID = os.Getenv("GOOGLE_SPREADSHEET_ID")
	cfg.GoogleServiceAccountJSON = os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON")
	cfg.GoogleServiceAccountFile = os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE")

	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	return cfg
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// Validate checks the API server configuration and returns every problem
// found in one error.
func (c *Config) Validate() error {
	errors := slices.Clone(c.parseErrors)

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	validBackends := []string{BackendSQLite, BackendMemory}
	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == BackendSQLite {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	if _, err := ledger.ParsePolicy(c.BalancePolicy); err != nil {
		errors = append(errors, err.Error())
	}
	if c.StoreTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid store timeout %v: must be positive", c.StoreTimeout))
	}

	if len(c.JWTSecret) < minJWTSecretLength && !c.IsDevelopment() {
		errors = append(errors, fmt.Sprintf("JWT_SECRET must be at least %d characters", minJWTSecretLength))
	}
	if c.JWTTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid JWT TTL %v: must be at least 1 minute", c.JWTTTL))
	}
	if c.BcryptCost != 0 && (c.BcryptCost < 4 || c.BcryptCost > 31) {
		errors = append(errors, fmt.Sprintf("invalid bcrypt cost %d: must be between 4 and 31", c.BcryptCost))
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1", c.RateLimitPerMinute))
	}

	errors = append(errors, c.validateAMQP()...)

	if _, err := applog.ParseLevel(c.LogLevel); err != nil {
		errors = append(errors, err.Error())
	}

	return joinErrors(errors)
}

// ValidateWorker checks what the sheets worker needs.
func (c *Config) ValidateWorker() error {
	errors := slices.Clone(c.parseErrors)

	if c.AMQPURL == "" {
		errors = append(errors, "AMQP_URL is required for the sheets worker")
	}
	errors = append(errors, c.validateAMQP()...)

	if c.GoogleSpreadsheetID == "" {
		errors = append(errors, "GOOGLE_SPREADSHEET_ID is required for the sheets worker")
	}
	hasFile := c.GoogleServiceAccountFile != ""
	if !hasFile && c.GoogleServiceAccountJSON == "" {
		errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_SERVICE_ACCOUNT_JSON must be provided")
	}
	if hasFile {
		if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
		}
	}

	if c.DataBackend != BackendSQLite {
		errors = append(errors, "the sheets worker reads the sqlite backend")
	}
	if _, err := applog.ParseLevel(c.LogLevel); err != nil {
		errors = append(errors, err.Error())
	}

	return joinErrors(errors)
}

func (c *Config) validateAMQP() []string {
	if c.AMQPURL == "" {
		return nil
	}
	var errors []string
	if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
		errors = append(errors, fmt.Sprintf("invalid AMQP URL: %v", err))
	} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
		errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
	}
	if c.AMQPExchange == "" {
		errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
	}
	if c.AMQPQueue == "" {
		errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
	}
	return errors
}

func joinErrors(errors []string) error {
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (c *Config) getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		c.parseErrors = append(c.parseErrors, fmt.Sprintf("invalid %s '%s': must be a number", key, value))
		return defaultValue
	}
	return i
}

func (c *Config) getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		c.parseErrors = append(c.parseErrors, fmt.Sprintf("invalid %s '%s': must be a duration like 5s", key, value))
		return defaultValue
	}
	return d
}
