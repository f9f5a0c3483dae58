// Package main is the entry point for the weather forecast API server.
//
// It loads configuration, builds the forecast generator from the configured
// random source and timezone, wires the HTTP chassis (middleware, routing,
// health checks, metrics) and serves requests.
//
// Outside AWS Lambda it runs net/http listeners and the metrics flusher
// under an errgroup. When TLS is configured a second listener serves HTTPS
// on HTTPS_PORT while the plaintext listener on PORT keeps answering (and
// redirecting, when HTTPS_REDIRECT is on). Inside Lambda it serves API
// Gateway v2 events through the lambdaproxy adapter.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"golang.org/x/sync/errgroup"

	"weatherforecast/internal/api/handlers"
	"weatherforecast/internal/config"
	"weatherforecast/internal/core"
	"weatherforecast/internal/forecast"
	"weatherforecast/internal/lambdaproxy"
	"weatherforecast/internal/metrics"
)

// defaultHTTPSPort is used for the TLS listener when HTTPS_PORT is unset.
const defaultHTTPSPort = "443"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig(newSecretProvider(os.Getenv("APP_ENV"), os.Getenv("SECRET_PROVIDER")))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("weather forecast API starting",
		"environment", cfg.Environment,
		"build", cfg.Build,
		"port", cfg.Server.Port,
		"random_source", cfg.Forecast.RandomSource,
		"timezone", cfg.Forecast.Timezone,
	)

	cw, err := newCloudWatchClient(ctx, cfg)
	if err != nil {
		return fmt.Errorf("creating CloudWatch client: %w", err)
	}

	srv, collector, err := buildServer(cfg, logger, cw)
	if err != nil {
		return err
	}

	// AWS Lambda sets AWS_LAMBDA_RUNTIME_API when executing inside the runtime.
	if isLambdaEnvironment() {
		return runLambda(srv, collector, logger)
	}

	return runHTTPServer(ctx, srv, collector, cfg, logger)
}

// buildServer assembles the forecast generator, handlers and chassis. cw may
// be nil, in which case request metrics are not collected.
func buildServer(cfg *config.Config, logger *slog.Logger, cw metrics.CloudWatchClient) (*core.Server, *metrics.CloudWatchCollector, error) {
	source, err := forecast.NewSource(cfg.Forecast.RandomSource, cfg.Forecast.Seed)
	if err != nil {
		return nil, nil, fmt.Errorf("creating random source: %w", err)
	}
	loc, err := cfg.Forecast.Location()
	if err != nil {
		return nil, nil, fmt.Errorf("loading forecast timezone: %w", err)
	}
	gen, err := forecast.NewGenerator(source, forecast.WithLocation(loc))
	if err != nil {
		return nil, nil, fmt.Errorf("creating forecast generator: %w", err)
	}

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("creating server: %w", err)
	}
	srv.RateLimiter = core.NewClientRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst).WithMaxClients(cfg.RateLimit.MaxClients)
	srv.HealthProbes = []core.HealthProbe{
		core.NewProbe("clock", gen.CheckClock),
		core.NewProbe("random_source", gen.CheckSource),
	}

	var collector *metrics.CloudWatchCollector
	if cw != nil {
		collector = metrics.NewCloudWatchCollector(cw, cfg.Observability.MetricNamespace, logger)
		srv.Metrics = collector
	}

	forecastHandler := handlers.NewForecastHandler(gen, logger)
	srv.RouteRegistrars = append(srv.RouteRegistrars, forecastHandler.RegisterRoutes)

	// Mount all routes (middleware chain + forecast + health).
	srv.MountRoutes()
	return srv, collector, nil
}

// newSecretProvider picks the backend for _SSM_PARAM resolution. Local
// development resolves nothing; SECRET_PROVIDER=env reads parameter paths
// from the environment instead of calling SSM.
func newSecretProvider(appEnv, backend string) config.SecretProvider {
	if appEnv == "" || appEnv == "local" {
		return nil
	}
	if backend == "env" {
		return config.NewEnvVarProvider()
	}
	return config.NewSSMProvider(os.Getenv("AWS_REGION"))
}

// newCloudWatchClient returns nil when metrics are disabled.
func newCloudWatchClient(ctx context.Context, cfg *config.Config) (metrics.CloudWatchClient, error) {
	if !cfg.Observability.MetricsEnabled {
		return nil, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config (region=%s): %w", cfg.AWS.Region, err)
	}

	return cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
		// LocalStack Support
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	}), nil
}

// isLambdaEnvironment returns true if the process is running inside AWS Lambda.
func isLambdaEnvironment() bool {
	_, hasRuntimeAPI := os.LookupEnv("AWS_LAMBDA_RUNTIME_API")
	_, hasServerPort := os.LookupEnv("_LAMBDA_SERVER_PORT")
	return hasRuntimeAPI || hasServerPort
}

// lambdaHandler adapts the router to API Gateway v2 events. Buffered metrics
// are flushed after every invocation because the execution environment may
// be frozen between events.
func lambdaHandler(srv *core.Server, collector *metrics.CloudWatchCollector, logger *slog.Logger) func(context.Context, events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	adapter := lambdaproxy.New(srv.Handler())
	return func(ctx context.Context, event events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
		resp, err := adapter.Handle(ctx, event)
		if collector != nil {
			if flushErr := collector.Flush(ctx); flushErr != nil {
				logger.Warn("metrics flush failed", "error", flushErr)
			}
		}
		return resp, err
	}
}

// runLambda hands control to the Lambda runtime. lambda.Start does not return.
func runLambda(srv *core.Server, collector *metrics.CloudWatchCollector, logger *slog.Logger) error {
	logger.Info("starting in Lambda mode")
	lambda.Start(lambdaHandler(srv, collector, logger))
	return nil
}

// newHTTPServer applies the listener timeouts shared by the plaintext and
// TLS servers.
func newHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// runHTTPServer serves until ctx is cancelled or a listener fails, then
// shuts every listener down within Server.ShutdownTimeout.
func runHTTPServer(ctx context.Context, srv *core.Server, collector *metrics.CloudWatchCollector, cfg *config.Config, logger *slog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	servers := []*http.Server{newHTTPServer(":"+cfg.Server.Port, srv.Handler())}
	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", servers[0].Addr)
		if err := servers[0].ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	if cfg.Server.TLSEnabled() {
		httpsPort := cfg.Security.HTTPSPort
		if httpsPort == "" {
			httpsPort = defaultHTTPSPort
		}
		tlsServer := newHTTPServer(":"+httpsPort, srv.Handler())
		servers = append(servers, tlsServer)
		g.Go(func() error {
			logger.Info("HTTPS server listening", "addr", tlsServer.Addr)
			err := tlsServer.ListenAndServeTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("TLS server error: %w", err)
			}
			return nil
		})
	}

	if collector != nil {
		g.Go(func() error {
			return collector.Run(gctx, cfg.Observability.MetricsFlushInterval)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("initiating graceful shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		var errs []error
		for _, s := range servers {
			if err := s.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("shutdown %s: %w", s.Addr, err))
			}
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", "error", err)
		return err
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: false,
	})
	return slog.New(handler)
}
