package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prudhvinik1/sessionauth/internal/services"
	"github.com/prudhvinik1/sessionauth/internal/utils"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	// StoreAccount keeps the session on the account record.
	StoreAccount = "account"
)

type Config struct {
	ServerPort  string
	DatabaseURL string
	RedisURL    string

	AccountStore    string
	SessionStore    string
	SessionDuration time.Duration
	SessionName     string
	CookieSecure    bool

	Hasher     string
	BcryptCost int

	LogLevel        string
	LogFormat       string
	LogRedactFields []string

	MetricsEnabled  bool
	MigrateOnStart  bool
	ShutdownTimeout time.Duration
}

func LoadConfig() (*Config, error) {
	bcryptCost, err := strconv.Atoi(getEnv("BCRYPT_COST", strconv.Itoa(utils.BcryptCost)))
	if err != nil {
		return nil, errors.New("invalid BCRYPT_COST format")
	}

	shutdownTimeout, err := time.ParseDuration(getEnv("SHUTDOWN_TIMEOUT", "10s"))
	if err != nil {
		return nil, errors.New("invalid SHUTDOWN_TIMEOUT format")
	}

	metricsEnabled, err := strconv.ParseBool(getEnv("METRICS_ENABLED", "true"))
	if err != nil {
		return nil, errors.New("invalid METRICS_ENABLED format")
	}

	cookieSecure, err := strconv.ParseBool(getEnv("SESSION_COOKIE_SECURE", "false"))
	if err != nil {
		return nil, errors.New("invalid SESSION_COOKIE_SECURE format")
	}

	migrateOnStart, err := strconv.ParseBool(getEnv("MIGRATE_ON_START", "false"))
	if err != nil {
		return nil, errors.New("invalid MIGRATE_ON_START format")
	}

	cfg := &Config{
		ServerPort:      getEnv("SERVER_PORT", "8080"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisURL:        os.Getenv("REDIS_URL"),
		AccountStore:    strings.ToLower(getEnv("ACCOUNT_STORE", StoreMemory)),
		SessionStore:    strings.ToLower(getEnv("SESSION_STORE", StoreMemory)),
		SessionDuration: ParseSessionDuration(os.Getenv("SESSION_DURATION")),
		SessionName:     getEnv("SESSION_NAME", "session_id"),
		CookieSecure:    cookieSecure,
		Hasher:          strings.ToLower(getEnv("HASHER", utils.HasherBcrypt)),
		BcryptCost:      bcryptCost,
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "json"),
		LogRedactFields: splitList(os.Getenv("LOG_REDACT_FIELDS")),
		MetricsEnabled:  metricsEnabled,
		MigrateOnStart:  migrateOnStart,
		ShutdownTimeout: shutdownTimeout,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.AccountStore {
	case StoreMemory, StorePostgres:
	default:
		return fmt.Errorf("invalid ACCOUNT_STORE %q", c.AccountStore)
	}

	switch c.SessionStore {
	case StoreMemory, StoreAccount, StoreRedis, StorePostgres:
	default:
		return fmt.Errorf("invalid SESSION_STORE %q", c.SessionStore)
	}

	switch c.Hasher {
	case utils.HasherBcrypt, utils.HasherArgon2id:
	default:
		return fmt.Errorf("invalid HASHER %q", c.Hasher)
	}

	if c.NeedsPostgres() && c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if c.SessionStore == StorePostgres && c.AccountStore != StorePostgres {
		// user_sessions references accounts.
		return errors.New("SESSION_STORE=postgres requires ACCOUNT_STORE=postgres")
	}
	if c.SessionStore == StoreRedis && c.RedisURL == "" {
		return errors.New("REDIS_URL is required")
	}
	if c.SessionName == "" {
		return errors.New("SESSION_NAME cannot be empty")
	}
	return nil
}

func (c *Config) NeedsPostgres() bool {
	return c.AccountStore == StorePostgres || c.SessionStore == StorePostgres
}

func (c *Config) SessionPolicy() services.SessionPolicy {
	return services.SessionPolicy{Duration: c.SessionDuration}
}

// ParseSessionDuration accepts whole seconds ("3600") or a Go duration
// ("1h"). Anything unparsable or negative means sessions never expire.
func ParseSessionDuration(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// Helper: get env with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
