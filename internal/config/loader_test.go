package config

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"
)

// testSecretProvider is a configurable mock for testing SSM resolution.
type testSecretProvider struct {
	values     map[string]string
	err        error
	calledWith []string
	callCount  int
}

func (p *testSecretProvider) GetParametersBatch(_ context.Context, keys []string) (map[string]string, error) {
	p.callCount++
	p.calledWith = append(p.calledWith, keys...)
	if p.err != nil {
		return nil, p.err
	}
	result := make(map[string]string)
	for _, k := range keys {
		if v, ok := p.values[k]; ok {
			result[k] = v
		}
	}
	return result, nil
}

// testDeps returns OS-backed deps that skip .env loading and route writes
// through t.Setenv so they are undone after the test.
func testDeps(t *testing.T) loaderDeps {
	t.Helper()
	return loaderDeps{
		lookupEnv: os.LookupEnv,
		setEnv: func(key, value string) error {
			t.Setenv(key, value)
			return nil
		},
		environ: os.Environ,
		dotenv:  func() error { return nil },
	}
}

// clearConfigEnv unsets every variable the loader reads so host settings do
// not leak into assertions.
func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"APP_ENV", "OTEL_SERVICE_NAME", "LOG_LEVEL", "PORT", "REQUEST_TIMEOUT",
		"SHUTDOWN_TIMEOUT", "TLS_CERT_FILE", "TLS_KEY_FILE", "COMPRESSION_ENABLED",
		"HTTPS_REDIRECT", "HTTPS_PORT", "CORS_ALLOWED_ORIGINS", "RATE_LIMIT_RPS",
		"RATE_LIMIT_BURST", "FORECAST_TIMEZONE", "FORECAST_RANDOM_SOURCE",
		"FORECAST_SEED", "AWS_REGION", "AWS_ENDPOINT_URL", "METRICS_ENABLED",
		"METRIC_NAMESPACE", "METRICS_FLUSH_INTERVAL", "TRUSTED_PROXIES", "RATE_LIMIT_MAX_CLIENTS",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("APP_ENV", "local")

	cfg, err := loadConfigWithDeps(nil, testDeps(t))
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	if cfg.Environment != "local" {
		t.Errorf("Environment = %q, want local", cfg.Environment)
	}
	if cfg.Service != "weather-forecast" {
		t.Errorf("Service = %q, want weather-forecast", cfg.Service)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("Server.Port = %q, want 8080", cfg.Server.Port)
	}
	if cfg.Server.RequestTimeout != 10*time.Second {
		t.Errorf("Server.RequestTimeout = %v, want 10s", cfg.Server.RequestTimeout)
	}
	if !cfg.Server.CompressionEnabled {
		t.Error("Server.CompressionEnabled should default to true")
	}
	if cfg.Server.TLSEnabled() {
		t.Error("TLS should be disabled without cert and key")
	}
	if cfg.Security.HTTPSRedirect {
		t.Error("Security.HTTPSRedirect should default to false")
	}
	if len(cfg.Security.CorsAllowedOrigins) != 1 || cfg.Security.CorsAllowedOrigins[0] != "*" {
		t.Errorf("CorsAllowedOrigins = %v, want [*]", cfg.Security.CorsAllowedOrigins)
	}
	if cfg.RateLimit.RPS != 50 || cfg.RateLimit.Burst != 100 || cfg.RateLimit.MaxClients != 10000 {
		t.Errorf("RateLimit = %+v, want 50/100/10000", cfg.RateLimit)
	}
	if len(cfg.Security.TrustedProxies) != 0 {
		t.Errorf("TrustedProxies = %v, want none", cfg.Security.TrustedProxies)
	}
	if cfg.Forecast.Timezone != "UTC" || cfg.Forecast.RandomSource != "pcg" || cfg.Forecast.Seed != 0 {
		t.Errorf("Forecast = %+v, want UTC/pcg/0", cfg.Forecast)
	}
	if cfg.Observability.MetricsEnabled {
		t.Error("MetricsEnabled should default to false")
	}
	if cfg.Observability.MetricNamespace != "WeatherForecast" {
		t.Errorf("MetricNamespace = %q", cfg.Observability.MetricNamespace)
	}
	if cfg.Build.Version != "dev" {
		t.Errorf("Build.Version = %q, want dev", cfg.Build.Version)
	}
	if time.Local != time.UTC {
		t.Error("LoadConfig should force time.Local to UTC")
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("APP_ENV", "local")
	t.Setenv("PORT", "9090")
	t.Setenv("HTTPS_REDIRECT", "true")
	t.Setenv("HTTPS_PORT", "8443")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("RATE_LIMIT_RPS", "0")
	t.Setenv("FORECAST_TIMEZONE", "Europe/Rome")
	t.Setenv("FORECAST_RANDOM_SOURCE", "crypto")
	t.Setenv("FORECAST_SEED", "42")
	t.Setenv("TLS_CERT_FILE", "/etc/tls/cert.pem")
	t.Setenv("TLS_KEY_FILE", "/etc/tls/key.pem")

	cfg, err := loadConfigWithDeps(nil, testDeps(t))
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("Server.Port = %q, want 9090", cfg.Server.Port)
	}
	if !cfg.Security.HTTPSRedirect || cfg.Security.HTTPSPort != "8443" {
		t.Errorf("Security = %+v", cfg.Security)
	}
	if len(cfg.Security.CorsAllowedOrigins) != 2 {
		t.Errorf("CorsAllowedOrigins = %v, want 2 entries", cfg.Security.CorsAllowedOrigins)
	}
	if cfg.RateLimit.RPS != 0 {
		t.Errorf("RateLimit.RPS = %v, want 0", cfg.RateLimit.RPS)
	}
	if cfg.Forecast.RandomSource != "crypto" || cfg.Forecast.Seed != 42 {
		t.Errorf("Forecast = %+v", cfg.Forecast)
	}
	loc, err := cfg.Forecast.Location()
	if err != nil || loc.String() != "Europe/Rome" {
		t.Errorf("Location() = %v, %v", loc, err)
	}
	if !cfg.Server.TLSEnabled() {
		t.Error("TLS should be enabled with cert and key")
	}
}

func TestLoadConfigMissingAppEnv(t *testing.T) {
	clearConfigEnv(t)

	_, err := loadConfigWithDeps(nil, testDeps(t))
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *ConfigError, got %v", err)
	}
	if cfgErr.Type != ErrMissingEnv {
		t.Errorf("Type = %s, want %s", cfgErr.Type, ErrMissingEnv)
	}
}

func TestLoadConfigValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown environment", map[string]string{"APP_ENV": "qa"}},
		{"bad log level", map[string]string{"LOG_LEVEL": "verbose"}},
		{"bad timezone", map[string]string{"FORECAST_TIMEZONE": "Mars/Olympus"}},
		{"bad random source", map[string]string{"FORECAST_RANDOM_SOURCE": "dice"}},
		{"negative rps", map[string]string{"RATE_LIMIT_RPS": "-1"}},
		{"zero burst", map[string]string{"RATE_LIMIT_BURST": "0"}},
		{"cert without key", map[string]string{"TLS_CERT_FILE": "/tmp/cert.pem"}},
		{"non-numeric port", map[string]string{"PORT": "http"}},
		{"bad endpoint", map[string]string{"AWS_ENDPOINT_URL": "not a url"}},
		{"bad trusted proxy", map[string]string{"TRUSTED_PROXIES": "10.0.0.0/8,proxy.internal"}},
		{"zero max clients", map[string]string{"RATE_LIMIT_MAX_CLIENTS": "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearConfigEnv(t)
			t.Setenv("APP_ENV", "local")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := loadConfigWithDeps(nil, testDeps(t))
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected *ConfigError, got %v", err)
			}
			if cfgErr.Type != ErrValidation {
				t.Errorf("Type = %s, want %s (%v)", cfgErr.Type, ErrValidation, err)
			}
		})
	}
}

func TestLoadConfigTrustedProxies(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("APP_ENV", "local")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8,192.0.2.7")

	cfg, err := loadConfigWithDeps(nil, testDeps(t))
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if len(cfg.Security.TrustedProxies) != 2 || cfg.Security.TrustedProxies[1] != "192.0.2.7" {
		t.Errorf("TrustedProxies = %v", cfg.Security.TrustedProxies)
	}
}

func TestLoadConfigParsingFailure(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("APP_ENV", "local")
	t.Setenv("REQUEST_TIMEOUT", "soon")

	_, err := loadConfigWithDeps(nil, testDeps(t))
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Type != ErrParsing {
		t.Fatalf("expected PARSING_FAILED, got %v", err)
	}
}

func TestLoadConfigResolvesSSMParams(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("APP_ENV", "dev")
	t.Setenv("METRIC_NAMESPACE_SSM_PARAM", "/dev/forecast/metric_namespace")
	t.Setenv("FORECAST_TIMEZONE_SSM_PARAM", "/dev/forecast/timezone")

	provider := &testSecretProvider{values: map[string]string{
		"/dev/forecast/metric_namespace": "ForecastDev",
		"/dev/forecast/timezone":         "America/Chicago",
	}}

	cfg, err := loadConfigWithDeps(provider, testDeps(t))
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if provider.callCount != 1 {
		t.Errorf("provider called %d times, want 1 batch", provider.callCount)
	}
	if cfg.Observability.MetricNamespace != "ForecastDev" {
		t.Errorf("MetricNamespace = %q, want ForecastDev", cfg.Observability.MetricNamespace)
	}
	if cfg.Forecast.Timezone != "America/Chicago" {
		t.Errorf("Forecast.Timezone = %q, want America/Chicago", cfg.Forecast.Timezone)
	}
}

func TestLoadConfigEnvBeatsSSM(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("APP_ENV", "prod")
	t.Setenv("METRIC_NAMESPACE", "FromEnv")
	t.Setenv("METRIC_NAMESPACE_SSM_PARAM", "/prod/forecast/metric_namespace")

	provider := &testSecretProvider{values: map[string]string{
		"/prod/forecast/metric_namespace": "FromSSM",
	}}

	cfg, err := loadConfigWithDeps(provider, testDeps(t))
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if provider.callCount != 0 {
		t.Errorf("provider should not be called when env already set")
	}
	if cfg.Observability.MetricNamespace != "FromEnv" {
		t.Errorf("MetricNamespace = %q, want FromEnv", cfg.Observability.MetricNamespace)
	}
}

func TestLoadConfigLocalSkipsSSM(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("APP_ENV", "local")
	t.Setenv("METRIC_NAMESPACE_SSM_PARAM", "/dev/forecast/metric_namespace")

	provider := &testSecretProvider{}
	if _, err := loadConfigWithDeps(provider, testDeps(t)); err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if provider.callCount != 0 {
		t.Error("SSM should be skipped in local mode")
	}
}

func TestLoadConfigSSMFailures(t *testing.T) {
	t.Run("nil provider", func(t *testing.T) {
		clearConfigEnv(t)
		t.Setenv("APP_ENV", "staging")
		t.Setenv("METRIC_NAMESPACE_SSM_PARAM", "/staging/ns")

		_, err := loadConfigWithDeps(nil, testDeps(t))
		assertConfigErrorType(t, err, ErrSSMResolution)
		if !strings.Contains(err.Error(), "METRIC_NAMESPACE") {
			t.Errorf("error should name the unresolved variable: %v", err)
		}
	})

	t.Run("provider error", func(t *testing.T) {
		clearConfigEnv(t)
		t.Setenv("APP_ENV", "staging")
		t.Setenv("METRIC_NAMESPACE_SSM_PARAM", "/staging/ns")

		_, err := loadConfigWithDeps(&testSecretProvider{err: errors.New("throttled")}, testDeps(t))
		assertConfigErrorType(t, err, ErrSSMResolution)
	})

	t.Run("missing parameter", func(t *testing.T) {
		clearConfigEnv(t)
		t.Setenv("APP_ENV", "staging")
		t.Setenv("METRIC_NAMESPACE_SSM_PARAM", "/staging/ns")

		_, err := loadConfigWithDeps(&testSecretProvider{values: map[string]string{}}, testDeps(t))
		assertConfigErrorType(t, err, ErrSSMResolution)
		if !strings.Contains(err.Error(), "not found") {
			t.Errorf("error should report missing parameters: %v", err)
		}
	})
}

func assertConfigErrorType(t *testing.T, err error, want ConfigErrorType) {
	t.Helper()
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *ConfigError, got %v", err)
	}
	if cfgErr.Type != want {
		t.Errorf("Type = %s, want %s", cfgErr.Type, want)
	}
}

func TestConfigErrorFormat(t *testing.T) {
	inner := errors.New("boom")
	err := &ConfigError{Type: ErrParsing, Message: "bad value", Err: inner}
	if got := err.Error(); got != "[PARSING_FAILED] bad value: boom" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(err, inner) {
		t.Error("Unwrap should expose the inner error")
	}
	bare := &ConfigError{Type: ErrMissingEnv, Message: "APP_ENV must be set"}
	if got := bare.Error(); got != "[MISSING_ENV] APP_ENV must be set" {
		t.Errorf("Error() = %q", got)
	}
}
