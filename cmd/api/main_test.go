package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weatherforecast/internal/config"
	"weatherforecast/internal/core"
)

// recordingCloudWatch captures PutMetricData calls.
type recordingCloudWatch struct {
	mu    sync.Mutex
	calls int
}

func (r *recordingCloudWatch) PutMetricData(_ context.Context, _ *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func (r *recordingCloudWatch) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setTestEnv sets the minimal environment variables required by config.LoadConfig
// for a local environment. It uses t.Setenv to ensure cleanup after the test.
func setTestEnv(t *testing.T) {
	t.Helper()

	t.Setenv("APP_ENV", "local")
	t.Setenv("PORT", "8080")
	t.Setenv("FORECAST_SEED", "12345")
	t.Setenv("RATE_LIMIT_RPS", "0")
}

// buildTestServer loads configuration from the environment exactly as run does.
func buildTestServer(t *testing.T) *core.Server {
	t.Helper()
	setTestEnv(t)

	cfg, err := config.LoadConfig(nil)
	require.NoError(t, err)

	srv, _, err := buildServer(cfg, quietLogger(), nil)
	require.NoError(t, err)
	return srv
}

func TestWeatherForecastEndpoint(t *testing.T) {
	srv := buildTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/weatherforecast", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var entries []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 5)
	for _, e := range entries {
		assert.Contains(t, e, "date")
		assert.Contains(t, e, "temperatureC")
		assert.Contains(t, e, "summary")
		assert.Contains(t, e, "temperatureF")
	}

	tomorrow := time.Now().UTC().AddDate(0, 0, 1).Format("2006-01-02")
	dayAfter := time.Now().UTC().AddDate(0, 0, 2).Format("2006-01-02")
	// Tolerate a UTC midnight rollover between the request and this check.
	assert.Contains(t, []string{tomorrow, dayAfter}, entries[0]["date"])
}

// TestHealthEndpoint verifies that the fully wired server reports both
// forecast probes as healthy.
func TestHealthEndpoint(t *testing.T) {
	srv := buildTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Status     string                       `json:"status"`
		Components map[string]map[string]string `json:"components"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "healthy", resp.Components["clock"]["status"])
	assert.Equal(t, "healthy", resp.Components["random_source"]["status"])
}

func TestBuildServer_WiresMetrics(t *testing.T) {
	setTestEnv(t)
	cfg, err := config.LoadConfig(nil)
	require.NoError(t, err)

	cw := &recordingCloudWatch{}
	srv, collector, err := buildServer(cfg, quietLogger(), cw)
	require.NoError(t, err)
	require.NotNil(t, collector)

	srv.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/weatherforecast", nil))
	assert.Equal(t, 2, collector.Buffered())

	require.NoError(t, collector.Flush(context.Background()))
	assert.Equal(t, 1, cw.count())
}

func TestBuildServer_InvalidRandomSource(t *testing.T) {
	setTestEnv(t)
	cfg, err := config.LoadConfig(nil)
	require.NoError(t, err)

	cfg.Forecast.RandomSource = "dice"
	_, _, err = buildServer(cfg, quietLogger(), nil)
	assert.Error(t, err)
}

func TestNewCloudWatchClient_DisabledReturnsNil(t *testing.T) {
	cw, err := newCloudWatchClient(context.Background(), &config.Config{})
	require.NoError(t, err)
	assert.Nil(t, cw)
}

func TestLambdaHandler(t *testing.T) {
	setTestEnv(t)
	cfg, err := config.LoadConfig(nil)
	require.NoError(t, err)

	cw := &recordingCloudWatch{}
	srv, collector, err := buildServer(cfg, quietLogger(), cw)
	require.NoError(t, err)

	handle := lambdaHandler(srv, collector, quietLogger())
	resp, err := handle(context.Background(), events.APIGatewayV2HTTPRequest{
		RawPath: "/weatherforecast",
		Headers: map[string]string{"x-forwarded-proto": "https"},
		RequestContext: events.APIGatewayV2HTTPRequestContext{
			DomainName: "api.example.com",
			HTTP: events.APIGatewayV2HTTPRequestContextHTTPDescription{
				Method:   http.MethodGet,
				SourceIP: "198.51.100.4",
			},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Headers["X-Request-Id"])

	var entries []map[string]any
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &entries))
	assert.Len(t, entries, 5)

	assert.Equal(t, 1, cw.count(), "metrics flushed after the invocation")
	assert.Zero(t, collector.Buffered())
}

func TestRunHTTPServer_StopsOnCancel(t *testing.T) {
	setTestEnv(t)
	t.Setenv("PORT", "0")
	cfg, err := config.LoadConfig(nil)
	require.NoError(t, err)
	cfg.Server.ShutdownTimeout = time.Second

	srv, _, err := buildServer(cfg, quietLogger(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runHTTPServer(ctx, srv, nil, cfg, quietLogger()) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runHTTPServer did not return after cancel")
	}
}

func TestNewSecretProvider(t *testing.T) {
	assert.Nil(t, newSecretProvider("local", "env"))
	assert.Nil(t, newSecretProvider("", ""))
	assert.IsType(t, &config.EnvVarProvider{}, newSecretProvider("prod", "env"))
	assert.IsType(t, &config.SSMProvider{}, newSecretProvider("prod", ""))
}

// TestIsLambdaEnvironment verifies Lambda environment detection logic.
func TestIsLambdaEnvironment(t *testing.T) {
	os.Unsetenv("AWS_LAMBDA_RUNTIME_API")
	os.Unsetenv("_LAMBDA_SERVER_PORT")

	if isLambdaEnvironment() {
		t.Error("isLambdaEnvironment: expected false when no Lambda env vars are set")
	}

	t.Setenv("AWS_LAMBDA_RUNTIME_API", "localhost:8080")
	if !isLambdaEnvironment() {
		t.Error("isLambdaEnvironment: expected true when AWS_LAMBDA_RUNTIME_API is set")
	}
}

// TestNewLogger verifies that the logger factory handles various log levels.
func TestNewLogger(t *testing.T) {
	tests := []struct {
		level string
	}{
		{"debug"},
		{"info"},
		{"warn"},
		{"error"},
		{"unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger := newLogger(tt.level)
			if logger == nil {
				t.Fatalf("newLogger(%q) returned nil", tt.level)
			}
		})
	}
}
