package core

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"weatherforecast/internal/config"
)

// mockMetricsCollector records RecordRequest calls.
type mockMetricsCollector struct {
	mu    sync.Mutex
	calls []metricsCall
}

type metricsCall struct {
	method, endpoint, status string
	duration                 time.Duration
}

func (m *mockMetricsCollector) RecordRequest(method, endpoint, status string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, metricsCall{method, endpoint, status, duration})
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		Environment: "local",
		Server: config.ServerConfig{
			Port:           "8080",
			RequestTimeout: 5 * time.Second,
		},
		Security: config.SecurityConfig{
			CorsAllowedOrigins: []string{"*"},
		},
	}
}

// newTestServer builds a server with cfg (or testConfig when nil), applies
// the registrars. Callers mount routes themselves.
func newTestServer(t *testing.T, cfg *config.Config, registrars ...RouteRegistrar) *Server {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	srv, err := NewServer(cfg, testLogger())
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	srv.RouteRegistrars = append(srv.RouteRegistrars, registrars...)
	return srv
}
