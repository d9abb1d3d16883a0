package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/upb/functions-gateway/utils"
)

// Config represents the complete application configuration. The env tag
// names the variable a field is read from.
type Config struct {
	Server         ServerConfig
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" validate:"gt=0"`
	Functions      FunctionsConfig
	Auth           AuthConfig
	CORS           CORSConfig
	Observability  ObservabilityConfig
	Environment    string `env:"ENVIRONMENT" validate:"required"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `env:"SERVER_HOST"`
	Port            int           `env:"PORT" validate:"gte=0,max=65535"`
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" validate:"gt=0"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" validate:"gt=0"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" validate:"gt=0"`
}

// FunctionsConfig holds handler discovery and dispatch configuration
type FunctionsConfig struct {
	Dir          string `env:"FUNCTIONS_DIR" validate:"required"`
	MountPrefix  string `env:"FUNCTIONS_MOUNT_PREFIX" validate:"required,startswith=/"`
	MaxBodyBytes int64  `env:"FUNCTIONS_MAX_BODY_BYTES"`
}

// AuthConfig holds bearer token verification configuration
type AuthConfig struct {
	JWKSURL            string        `env:"JWKS_URL" validate:"required,http_url"`
	Issuer             string        `env:"JWT_ISSUER"` // Empty disables the issuer check
	Leeway             time.Duration `env:"JWT_LEEWAY" validate:"gte=0"`
	CacheTTL           time.Duration `env:"JWKS_CACHE_TTL" validate:"gt=0"`
	MinRefreshInterval time.Duration `env:"JWKS_MIN_REFRESH_INTERVAL" validate:"gte=0"`
	FetchTimeout       time.Duration `env:"JWKS_FETCH_TIMEOUT" validate:"gt=0"`
	MaxFetchAttempts   int           `env:"JWKS_MAX_FETCH_ATTEMPTS" validate:"gte=1,max=10"`
}

// CORSConfig holds cross-origin configuration. No origins disables CORS.
type CORSConfig struct {
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS"`
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel       string `env:"LOG_LEVEL" validate:"required,oneof=debug info warn error"`
	LogFormat      string `env:"LOG_FORMAT" validate:"required,oneof=json console text"` // json or text
	MetricsEnabled bool   `env:"METRICS_ENABLED"`
}

// New creates a new Config instance by loading environment variables.
// Unparseable values and failed validations are reported together.
func New(ctx context.Context) (*Config, error) {
	loadDotEnv()
	env := &envReader{}

	cfg := &Config{
		Environment: env.str("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            env.str("SERVER_HOST", "0.0.0.0"),
			Port:            env.port(),
			ReadTimeout:     env.duration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    env.duration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: env.duration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		RequestTimeout: env.duration("REQUEST_TIMEOUT", 30*time.Second),
		Functions:      env.functions(),
		Auth: AuthConfig{
			JWKSURL:            env.str("JWKS_URL", ""),
			Issuer:             env.str("JWT_ISSUER", ""),
			Leeway:             env.duration("JWT_LEEWAY", 0),
			CacheTTL:           env.duration("JWKS_CACHE_TTL", time.Hour),
			MinRefreshInterval: env.duration("JWKS_MIN_REFRESH_INTERVAL", 10*time.Second),
			FetchTimeout:       env.duration("JWKS_FETCH_TIMEOUT", 5*time.Second),
			MaxFetchAttempts:   env.integer("JWKS_MAX_FETCH_ATTEMPTS", 3),
		},
		CORS: CORSConfig{
			AllowedOrigins: env.list("CORS_ALLOWED_ORIGINS"),
		},
		Observability: ObservabilityConfig{
			LogLevel:       strings.ToLower(env.str("LOG_LEVEL", "info")),
			LogFormat:      strings.ToLower(env.str("LOG_FORMAT", "json")),
			MetricsEnabled: env.boolean("METRICS_ENABLED", true),
		},
	}

	// Validate the configuration
	if err := env.merge(cfg.Validate()); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadFunctionsConfig reads the handler discovery settings on their own, for
// commands that do not serve requests
func LoadFunctionsConfig() (FunctionsConfig, error) {
	loadDotEnv()
	env := &envReader{}
	fnCfg := env.functions()
	if err := env.merge(nil); err != nil {
		return FunctionsConfig{}, fmt.Errorf("config validation failed: %w", err)
	}
	return fnCfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	return utils.ValidateStruct(c)
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// loadDotEnv loads .env if it exists. Variables already set win.
func loadDotEnv() {
	_ = godotenv.Load(".env")
}

// envReader reads typed variables, remembering every value that fails to
// parse. A bad value yields the default so reading can continue.
type envReader struct {
	invalid map[string]string
}

func (e *envReader) reject(key, value, want string) {
	if e.invalid == nil {
		e.invalid = make(map[string]string)
	}
	e.invalid[key] = fmt.Sprintf("%s must be %s, got %q", key, want, value)
}

// merge folds parse failures into the validation result
func (e *envReader) merge(err error) error {
	if len(e.invalid) == 0 {
		return err
	}
	fields := make(map[string]string, len(e.invalid))
	for key, msg := range utils.GetValidationFields(err) {
		fields[key] = msg
	}
	for key, msg := range e.invalid {
		fields[key] = msg
	}
	return &utils.ValidationError{Message: "Validation failed", Fields: fields}
}

func (e *envReader) functions() FunctionsConfig {
	return FunctionsConfig{
		Dir:          e.str("FUNCTIONS_DIR", "./functions"),
		MountPrefix:  e.str("FUNCTIONS_MOUNT_PREFIX", "/functions"),
		MaxBodyBytes: int64(e.integer("FUNCTIONS_MAX_BODY_BYTES", 1<<20)),
	}
}

// port returns the server port from PORT or SERVER_PORT env vars (default: 9010)
func (e *envReader) port() int {
	if os.Getenv("PORT") != "" {
		return e.integer("PORT", 9010)
	}
	return e.integer("SERVER_PORT", 9010)
}

func (e *envReader) str(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (e *envReader) integer(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		e.reject(key, valueStr, "an integer")
		return defaultValue
	}
	return value
}

func (e *envReader) boolean(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		e.reject(key, valueStr, "a boolean")
		return defaultValue
	}
	return value
}

func (e *envReader) duration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		e.reject(key, valueStr, "a duration such as 30s")
		return defaultValue
	}
	return value
}

// list splits a comma separated value, dropping empty items
func (e *envReader) list(key string) []string {
	var items []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
