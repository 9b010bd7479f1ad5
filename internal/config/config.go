// Package config provides configuration loading and validation for the API server.
// It uses koanf to merge environment variables with optional file overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values for the API server.
type Config struct {
	// Server settings
	Port     int    `koanf:"port"`
	Env      string `koanf:"env"`
	LogLevel string `koanf:"log_level"`

	// Storage
	DatabaseURL   string `koanf:"database_url"`
	MigrationsDir string `koanf:"migrations_dir"`
	RedisURL      string `koanf:"redis_url"` // optional; enables the L2 geocode cache and shared rate limits

	// JWT Authentication
	JWTSecret         string `koanf:"jwt_secret"`
	JWTPreviousSecret string `koanf:"jwt_previous_secret"` // accepted during key rotation
	JWTIssuer         string `koanf:"jwt_issuer"`

	// Geocoding
	GeocoderURL      string `koanf:"geocoder_url"`
	GeocodeTimeoutMS int    `koanf:"geocode_timeout_ms"`
	GeocodeSeedPath  string `koanf:"geocode_seed_path"` // JSON warm set for the coordinate cache

	// Ranking
	CalibrationPath       string `koanf:"ranking_calibration_path"`
	ReciprocalDealBreaker bool   `koanf:"dealbreakers_reciprocal"`
	MaxPool               int    `koanf:"ranking_max_pool"`

	// Tracing
	TracingEnabled    bool    `koanf:"tracing_enabled"`
	TracingExporter   string  `koanf:"otel_exporter_type"`
	TracingEndpoint   string  `koanf:"otel_exporter_otlp_endpoint"`
	TracingSampleRate float64 `koanf:"tracing_sample_rate"`
	TracingInsecure   bool    `koanf:"tracing_insecure"`
}

// Configuration validation errors.
var (
	ErrMissingDatabaseURL  = errors.New("DATABASE_URL is required")
	ErrMissingJWTSecret    = errors.New("JWT_SECRET is required")
	ErrWeakJWTSecret       = errors.New("JWT_SECRET must be at least 32 characters")
	ErrMissingOTLPEndpoint = errors.New("OTEL_EXPORTER_OTLP_ENDPOINT is required when tracing is enabled")
	ErrInvalidPort         = errors.New("PORT must be a valid integer")
	ErrInvalidSampleRate   = errors.New("TRACING_SAMPLE_RATE must be between 0 and 1")
	ErrInvalidExporter     = errors.New("OTEL_EXPORTER_TYPE must be otlp-grpc or otlp-http")
	ErrInvalidTimeout      = errors.New("GEOCODE_TIMEOUT_MS must be positive")
)

// Default values for non-secret configuration.
const (
	DefaultPort              = 8080
	DefaultEnv               = "development"
	DefaultLogLevel          = "info"
	DefaultMigrationsDir     = "migrations"
	DefaultGeocoderURL       = "https://nominatim.openstreetmap.org"
	DefaultGeocodeTimeoutMS  = 2000
	DefaultMaxPool           = 500
	DefaultTracingExporter   = "otlp-http"
	DefaultTracingSampleRate = 0.1
	minJWTSecretLength       = 32
)

// Load reads configuration from environment variables and an optional config file.
// Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if valid).
// If a config file path is provided and the file cannot be loaded, an error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	// Load from YAML file first if provided (lower precedence)
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	// SWIPESTACK_PORT wins over the platform-provided PORT
	port, err := getEnvIntOrDefaultMulti([]string{"SWIPESTACK_PORT", "PORT"}, k.Int("port"), DefaultPort)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}

	geocodeTimeout, err := getEnvIntOrDefault("GEOCODE_TIMEOUT_MS", k.Int("geocode_timeout_ms"), DefaultGeocodeTimeoutMS)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}

	maxPool, err := getEnvIntOrDefault("RANKING_MAX_POOL", k.Int("ranking_max_pool"), DefaultMaxPool)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}

	sampleRate, err := getEnvFloatOrDefault("TRACING_SAMPLE_RATE", k.Float64("tracing_sample_rate"), DefaultTracingSampleRate)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}

	cfg := &Config{
		Port:                  port,
		Env:                   getEnvOrDefaultMulti([]string{"SWIPESTACK_ENV", "ENV", "GO_ENV"}, k.String("env"), DefaultEnv),
		LogLevel:              getEnvOrDefault("LOG_LEVEL", k.String("log_level"), DefaultLogLevel),
		DatabaseURL:           getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		MigrationsDir:         getEnvOrDefault("MIGRATIONS_DIR", k.String("migrations_dir"), DefaultMigrationsDir),
		RedisURL:              getEnvOrKoanf("REDIS_URL", k, "redis_url"),
		JWTSecret:             getEnvOrKoanf("JWT_SECRET", k, "jwt_secret"),
		JWTPreviousSecret:     getEnvOrKoanf("JWT_PREVIOUS_SECRET", k, "jwt_previous_secret"),
		JWTIssuer:             getEnvOrKoanf("JWT_ISSUER", k, "jwt_issuer"),
		GeocoderURL:           getEnvOrDefault("GEOCODER_URL", k.String("geocoder_url"), DefaultGeocoderURL),
		GeocodeTimeoutMS:      geocodeTimeout,
		GeocodeSeedPath:       getEnvOrKoanf("GEOCODE_SEED_PATH", k, "geocode_seed_path"),
		CalibrationPath:       getEnvOrKoanf("RANKING_CALIBRATION_PATH", k, "ranking_calibration_path"),
		ReciprocalDealBreaker: getEnvBoolOrDefault("DEALBREAKERS_RECIPROCAL", k, "dealbreakers_reciprocal", false),
		MaxPool:               maxPool,
		TracingEnabled:        getEnvBoolOrDefault("TRACING_ENABLED", k, "tracing_enabled", false),
		TracingExporter:       getEnvOrDefault("OTEL_EXPORTER_TYPE", k.String("otel_exporter_type"), DefaultTracingExporter),
		TracingEndpoint:       getEnvOrKoanf("OTEL_EXPORTER_OTLP_ENDPOINT", k, "otel_exporter_otlp_endpoint"),
		TracingSampleRate:     sampleRate,
		TracingInsecure:       getEnvBoolOrDefault("TRACING_INSECURE", k, "tracing_insecure", false),
	}

	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvOrDefault returns the environment variable value if set, otherwise the koanf value, or default.
func getEnvOrDefault(envKey string, koanfVal string, defaultVal string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first non-empty value found, otherwise the koanf value, or default.
func getEnvOrDefaultMulti(envKeys []string, koanfVal string, defaultVal string) string {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvBoolOrDefault reads a flag from the environment, then the file.
// Unrecognized env values leave the file or default value in place.
func getEnvBoolOrDefault(envKey string, k *koanf.Koanf, koanfKey string, defaultVal bool) bool {
	v := defaultVal
	if k.Exists(koanfKey) {
		v = k.Bool(koanfKey)
	}
	switch strings.ToLower(os.Getenv(envKey)) {
	case "true", "1", "yes", "on":
		v = true
	case "false", "0", "no", "off":
		v = false
	}
	return v
}

// getEnvIntOrDefault returns the environment variable as int if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	return getEnvIntOrDefaultMulti([]string{envKey}, koanfVal, defaultVal)
}

// getEnvIntOrDefaultMulti tries multiple environment variable keys in order.
// A zero koanf value falls back to the default.
func getEnvIntOrDefaultMulti(envKeys []string, koanfVal int, defaultVal int) (int, error) {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			i, err := strconv.Atoi(val)
			if err != nil {
				if key == "PORT" || strings.HasSuffix(key, "_PORT") {
					return 0, fmt.Errorf("%s must be a valid integer: %w", key, ErrInvalidPort)
				}
				return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
			}
			return i, nil
		}
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvFloatOrDefault returns the environment variable as float64 if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as a float.
func getEnvFloatOrDefault(envKey string, koanfVal float64, defaultVal float64) (float64, error) {
	if val := os.Getenv(envKey); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid float: %w", envKey, err)
		}
		return f, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// Validate checks that all required configuration values are present.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, ErrMissingDatabaseURL)
	}
	switch {
	case c.JWTSecret == "":
		errs = append(errs, ErrMissingJWTSecret)
	case len(c.JWTSecret) < minJWTSecretLength:
		errs = append(errs, ErrWeakJWTSecret)
	}
	if c.GeocodeTimeoutMS <= 0 {
		errs = append(errs, ErrInvalidTimeout)
	}
	if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
		errs = append(errs, ErrInvalidSampleRate)
	}

	// Exporter settings only matter when tracing is on.
	if c.TracingEnabled {
		if c.TracingExporter != "otlp-grpc" && c.TracingExporter != "otlp-http" {
			errs = append(errs, ErrInvalidExporter)
		}
		if c.TracingEndpoint == "" {
			errs = append(errs, ErrMissingOTLPEndpoint)
		}
	}

	return errs
}

// IsProduction reports whether the server runs in production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// LogSummary returns a summary of the configuration suitable for logging.
// All secrets are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                     strconv.Itoa(c.Port),
		"env":                      c.Env,
		"log_level":                c.LogLevel,
		"database_url":             maskDatabaseURL(c.DatabaseURL),
		"migrations_dir":           c.MigrationsDir,
		"redis_url":                maskDatabaseURL(c.RedisURL),
		"jwt_secret":               maskSecret(c.JWTSecret),
		"jwt_previous_secret":      maskSecret(c.JWTPreviousSecret),
		"jwt_issuer":               c.JWTIssuer,
		"geocoder_url":             c.GeocoderURL,
		"geocode_timeout_ms":       strconv.Itoa(c.GeocodeTimeoutMS),
		"geocode_seed_path":        c.GeocodeSeedPath,
		"ranking_calibration_path": c.CalibrationPath,
		"dealbreakers_reciprocal":  strconv.FormatBool(c.ReciprocalDealBreaker),
		"ranking_max_pool":         strconv.Itoa(c.MaxPool),
		"tracing_enabled":          strconv.FormatBool(c.TracingEnabled),
		"otel_exporter_type":       c.TracingExporter,
		"otel_exporter_endpoint":   c.TracingEndpoint,
		"tracing_sample_rate":      strconv.FormatFloat(c.TracingSampleRate, 'f', -1, 64),
	}
}

// maskSecret masks a secret value, showing only the first 4 characters followed by ****
// If the secret is shorter than 8 characters, it's fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskDatabaseURL masks the password in a connection URL.
// Works for postgres:// and redis:// alike.
func maskDatabaseURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.LastIndex(rest, "@")
	if atIndex == -1 {
		return s // No credentials in URL
	}

	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s // No password (only username)
	}

	scheme := s[:schemeEnd+3]
	user := rest[:colonIndex]
	hostAndPath := rest[atIndex:]

	return scheme + user + ":****" + hostAndPath
}
