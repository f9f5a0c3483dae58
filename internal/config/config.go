// Package config defines the configuration of the weather forecast service.
// Configuration is loaded once at process start and is immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// A missing required value or invalid format fails startup.
package config

import "time"

// Config is the top-level configuration struct. Sub-components receive only
// the subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"OTEL_SERVICE_NAME" default:"weather-forecast"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server        ServerConfig
	Security      SecurityConfig
	RateLimit     RateLimitConfig
	Forecast      ForecastConfig
	AWS           AWSConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port               string        `envconfig:"PORT" default:"8080" validate:"required,numeric"`
	RequestTimeout     time.Duration `envconfig:"REQUEST_TIMEOUT" default:"10s" validate:"gt=0"`
	ShutdownTimeout    time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s" validate:"gt=0"`
	TLSCertFile        string        `envconfig:"TLS_CERT_FILE" validate:"required_with=TLSKeyFile"`
	TLSKeyFile         string        `envconfig:"TLS_KEY_FILE" validate:"required_with=TLSCertFile"`
	CompressionEnabled bool          `envconfig:"COMPRESSION_ENABLED" default:"true"`
}

// TLSEnabled reports whether both certificate and key are configured.
func (c ServerConfig) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}

// SecurityConfig holds transport security and CORS settings.
type SecurityConfig struct {
	HTTPSRedirect      bool     `envconfig:"HTTPS_REDIRECT" default:"false"`
	HTTPSPort          string   `envconfig:"HTTPS_PORT" validate:"omitempty,numeric"`
	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	// TrustedProxies lists CIDRs whose X-Forwarded-For is believed. Empty
	// means the client address is always the TCP peer.
	TrustedProxies []string `envconfig:"TRUSTED_PROXIES" validate:"dive,cidr|ip"`
}

// RateLimitConfig holds per-client request throttling. RPS of zero disables
// rate limiting.
type RateLimitConfig struct {
	RPS   float64 `envconfig:"RATE_LIMIT_RPS" default:"50" validate:"gte=0"`
	Burst int     `envconfig:"RATE_LIMIT_BURST" default:"100" validate:"gte=1"`
	// MaxClients caps tracked buckets; the least recently seen is evicted.
	MaxClients int `envconfig:"RATE_LIMIT_MAX_CLIENTS" default:"10000" validate:"gte=1"`
}

// ForecastConfig controls forecast generation.
type ForecastConfig struct {
	// Timezone is the IANA location in which "today" is evaluated.
	Timezone     string `envconfig:"FORECAST_TIMEZONE" default:"UTC" validate:"required,timezone"`
	RandomSource string `envconfig:"FORECAST_RANDOM_SOURCE" default:"pcg" validate:"oneof=pcg crypto"`
	// Seed fixes the PCG sequence; zero seeds from crypto/rand.
	Seed uint64 `envconfig:"FORECAST_SEED" default:"0"`
}

// Location resolves Timezone. The value is validated at load time, so the
// error only surfaces for hand-built configs.
func (c ForecastConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

// AWSConfig holds AWS regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL" validate:"omitempty,url"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricsEnabled       bool          `envconfig:"METRICS_ENABLED" default:"false"`
	MetricNamespace      string        `envconfig:"METRIC_NAMESPACE" default:"WeatherForecast" validate:"required"`
	MetricsFlushInterval time.Duration `envconfig:"METRICS_FLUSH_INTERVAL" default:"60s" validate:"gt=0"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
