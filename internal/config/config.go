package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	RateStore RateStoreConfig
	Email     EmailConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	TrustedProxies []string
	AllowedOrigins []string
}

type AuthConfig struct {
	JWTSecret               string
	AccessTokenExpiry       time.Duration
	RefreshTokenExpiry      time.Duration
	RememberedRefreshExpiry time.Duration // refresh TTL when "remember" is set on login
	CleanupInterval         time.Duration

	// Timing mitigation for the login evaluator. Failed attempts are padded
	// to at least the base delay plus random jitter.
	TimingDelayBaseMs    int
	TimingDelayRandomMs  int
	TimingDelayOnSuccess bool
}

// EndpointLimit is a fixed-window cap for one logical endpoint.
type EndpointLimit struct {
	Limit  int
	Window time.Duration
}

// RateLimitConfig holds the per-endpoint fixed-window limits applied to
// state-changing auth endpoints, keyed by client address.
type RateLimitConfig struct {
	Login        EndpointLimit
	Register     EndpointLimit
	ResetRequest EndpointLimit
}

// RateStoreConfig selects the backing store for rate-limit windows.
// Counters are best-effort: the memory driver loses them on restart, which
// is acceptable for a deterrent.
type RateStoreConfig struct {
	Driver        string // "memory" or "redis"
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

type EmailConfig struct {
	Enabled     bool
	AWSRegion   string
	FromAddress string
	AdminNotify string // staff address notified of new reset requests
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "bastion"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			TrustedProxies: getEnvAsList("TRUSTED_PROXIES"),
			AllowedOrigins: parseAllowedOrigins(env),
		},
		Auth: AuthConfig{
			JWTSecret:               jwtSecret,
			AccessTokenExpiry:       getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 15*time.Minute),
			RefreshTokenExpiry:      getEnvAsDuration("REFRESH_TOKEN_EXPIRY", 24*time.Hour),
			RememberedRefreshExpiry: getEnvAsDuration("REMEMBERED_REFRESH_EXPIRY", 30*24*time.Hour),
			CleanupInterval:         getEnvAsDuration("TOKEN_CLEANUP_INTERVAL", 1*time.Hour),
			TimingDelayBaseMs:       getEnvAsInt("TIMING_DELAY_BASE_MS", 100),
			TimingDelayRandomMs:     getEnvAsInt("TIMING_DELAY_RANDOM_MS", 50),
			TimingDelayOnSuccess:    getEnvAsBool("TIMING_DELAY_ON_SUCCESS", false),
		},
		RateLimit: RateLimitConfig{
			Login: EndpointLimit{
				Limit:  getEnvAsInt("RATE_LIMIT_LOGIN", 5),
				Window: getEnvAsDuration("RATE_WINDOW_LOGIN", 60*time.Second),
			},
			Register: EndpointLimit{
				Limit:  getEnvAsInt("RATE_LIMIT_REGISTER", 3),
				Window: getEnvAsDuration("RATE_WINDOW_REGISTER", time.Hour),
			},
			ResetRequest: EndpointLimit{
				Limit:  getEnvAsInt("RATE_LIMIT_RESET_REQUEST", 3),
				Window: getEnvAsDuration("RATE_WINDOW_RESET_REQUEST", time.Hour),
			},
		},
		RateStore: RateStoreConfig{
			Driver:        getEnv("RATE_STORE_DRIVER", "memory"),
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvAsInt("REDIS_DB", 0),
		},
		Email: EmailConfig{
			Enabled:     getEnvAsBool("EMAIL_ENABLED", false),
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("EMAIL_FROM", ""),
			AdminNotify: getEnv("EMAIL_ADMIN_NOTIFY", ""),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	if d := cfg.RateStore.Driver; d != "memory" && d != "redis" {
		return nil, fmt.Errorf("RATE_STORE_DRIVER must be 'memory' or 'redis', got %q", d)
	}

	if cfg.Email.Enabled && cfg.Email.FromAddress == "" {
		return nil, fmt.Errorf("EMAIL_FROM is required when EMAIL_ENABLED is set")
	}

	return cfg, nil
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32 // 256 bits
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		originsStr := getEnv("ALLOWED_ORIGINS", "")
		if originsStr == "" {
			return []string{} // Default to no origins in production
		}
		origins := strings.Split(originsStr, ",")
		for i, origin := range origins {
			origins[i] = strings.TrimSpace(origin)
		}
		return origins
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
	}
}
