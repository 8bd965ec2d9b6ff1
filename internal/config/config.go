package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/yrippert-maker/klg-asutk-app-sub001/internal/pkg/validator"
)

// DevJWTSecret signs stub tokens when STUB_JWT_SECRET is unset. Refused in production.
const DevJWTSecret = "dev-secret-change-me"

type Config struct {
	App      AppConfig
	Realtime RealtimeConfig
	API      APIConfig
	Session  SessionConfig
	Stub     StubConfig
}

// AppConfig holds application configuration
type AppConfig struct {
	Env      string `env:"APP_ENV" validate:"required"`
	LogLevel string `env:"LOG_LEVEL" validate:"oneof=debug info warn warning error"`
}

// RealtimeConfig configures the realtime connection manager
type RealtimeConfig struct {
	BaseURL              string        `env:"REALTIME_BASE_URL" validate:"required,url"`
	HeartbeatInterval    time.Duration `env:"REALTIME_HEARTBEAT_INTERVAL" validate:"gt=0"`
	MaxReconnectAttempts int           `env:"REALTIME_MAX_RECONNECT_ATTEMPTS" validate:"min=1"`
	BaseDelay            time.Duration `env:"REALTIME_BASE_DELAY" validate:"gt=0"`
	MaxDelay             time.Duration `env:"REALTIME_MAX_DELAY" validate:"gt=0"`
}

// APIConfig configures the notification REST client
type APIConfig struct {
	BaseURL string `env:"API_BASE_URL" validate:"required,url"`
	Token   string `env:"API_TOKEN"`
	// Page size of every refresh
	PageSize int `env:"API_PAGE_SIZE" validate:"min=1,max=100"`
	// Zero disables the scheduled refresh
	RefreshInterval time.Duration `env:"API_REFRESH_INTERVAL" validate:"min=0"`
	Timeout         time.Duration `env:"API_TIMEOUT" validate:"gt=0"`
}

// SessionConfig pins the notification scope. When UserID is empty the
// scope comes from the API token claims.
type SessionConfig struct {
	UserID         string `env:"SESSION_USER_ID"`
	OrganizationID string `env:"SESSION_ORG_ID"`
}

// StubConfig configures the development backend
type StubConfig struct {
	Port           int           `env:"STUB_PORT" validate:"min=1,max=65535"`
	JWTSecret      string        `env:"STUB_JWT_SECRET" validate:"required"`
	TokenTTL       time.Duration `env:"STUB_TOKEN_TTL" validate:"gt=0"`
	EmitInterval   time.Duration `env:"STUB_EMIT_INTERVAL" validate:"min=0"`
	AllowedOrigins []string      `env:"STUB_ALLOWED_ORIGINS"`
}

// Load reads the configuration from the environment. A .env file in the
// working directory is loaded first when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	config := &Config{}
	var err error

	// Application configuration
	config.App = AppConfig{
		Env:      getEnv("APP_ENV", "development"),
		LogLevel: strings.ToLower(getEnv("LOG_LEVEL", "info")),
	}

	// Realtime configuration
	config.Realtime.BaseURL = getEnv("REALTIME_BASE_URL", "http://localhost:8080")
	if config.Realtime.HeartbeatInterval, err = getEnvDuration("REALTIME_HEARTBEAT_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}
	if config.Realtime.MaxReconnectAttempts, err = getEnvInt("REALTIME_MAX_RECONNECT_ATTEMPTS", 10); err != nil {
		return nil, err
	}
	if config.Realtime.BaseDelay, err = getEnvDuration("REALTIME_BASE_DELAY", time.Second); err != nil {
		return nil, err
	}
	if config.Realtime.MaxDelay, err = getEnvDuration("REALTIME_MAX_DELAY", 30*time.Second); err != nil {
		return nil, err
	}

	// REST API configuration
	config.API.BaseURL = getEnv("API_BASE_URL", "http://localhost:8080/api/v1")
	config.API.Token = getEnv("API_TOKEN", "")
	if config.API.PageSize, err = getEnvInt("API_PAGE_SIZE", 20); err != nil {
		return nil, err
	}
	if config.API.RefreshInterval, err = getEnvDuration("API_REFRESH_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if config.API.Timeout, err = getEnvDuration("API_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}

	// Session configuration
	config.Session = SessionConfig{
		UserID:         getEnv("SESSION_USER_ID", ""),
		OrganizationID: getEnv("SESSION_ORG_ID", ""),
	}

	// Development backend configuration
	if config.Stub.Port, err = getEnvInt("STUB_PORT", 8080); err != nil {
		return nil, err
	}
	config.Stub.JWTSecret = getEnv("STUB_JWT_SECRET", DevJWTSecret)
	if config.Stub.TokenTTL, err = getEnvDuration("STUB_TOKEN_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if config.Stub.EmitInterval, err = getEnvDuration("STUB_EMIT_INTERVAL", 0); err != nil {
		return nil, err
	}
	config.Stub.AllowedOrigins = getEnvSlice("STUB_ALLOWED_ORIGINS", []string{"http://localhost:3000"})

	// Validate required fields
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	for _, section := range []any{c.App, c.Realtime, c.API, c.Session, c.Stub} {
		if err := validator.Struct(section); err != nil {
			return err
		}
	}
	if c.Realtime.MaxDelay < c.Realtime.BaseDelay {
		return fmt.Errorf("REALTIME_MAX_DELAY must not be below REALTIME_BASE_DELAY")
	}
	if c.IsProduction() && c.Stub.JWTSecret == DevJWTSecret {
		return fmt.Errorf("STUB_JWT_SECRET is required in production")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.App.Env)
	return env == "production" || env == "prod"
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value := getEnv(key, "")
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := getEnv(key, "")
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getEnvSlice(key string, fallback []string) []string {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	var result []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}
