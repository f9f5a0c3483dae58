// Package metrics publishes API request telemetry to AWS CloudWatch.
//
// Metrics emitted:
//   - APILatency: Dims {Method, Endpoint, Status} in milliseconds
//   - APIRequestCount: Dims {Method, Endpoint, Status}
//
// Datums are buffered in memory by RecordRequest and published in batches
// by Flush, so the request path never blocks on CloudWatch.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/sony/gobreaker/v2"

	"weatherforecast/internal/types"
)

const (
	// maxDatumsPerCall is the PutMetricData service limit.
	maxDatumsPerCall = 1000

	// defaultMaxBuffered caps memory while CloudWatch is unreachable.
	defaultMaxBuffered = 50000

	// finalFlushTimeout bounds the flush performed when Run is cancelled.
	finalFlushTimeout = 5 * time.Second
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchCollector implements core.MetricsCollector by buffering datums
// and publishing them to CloudWatch through a circuit breaker.
type CloudWatchCollector struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
	breaker   *gobreaker.CircuitBreaker[*cloudwatch.PutMetricDataOutput]

	mu          sync.Mutex
	buffer      []cwtypes.MetricDatum
	maxBuffered int
	dropped     int
	now         func() time.Time
}

// Option configures a CloudWatchCollector.
type Option func(*CloudWatchCollector)

// WithMaxBuffered overrides the number of datums held before new ones are dropped.
func WithMaxBuffered(n int) Option {
	return func(c *CloudWatchCollector) {
		if n > 0 {
			c.maxBuffered = n
		}
	}
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(cb *gobreaker.CircuitBreaker[*cloudwatch.PutMetricDataOutput]) Option {
	return func(c *CloudWatchCollector) {
		c.breaker = cb
	}
}

// NewCloudWatchCollector creates a collector that publishes to namespace.
func NewCloudWatchCollector(client CloudWatchClient, namespace string, logger *slog.Logger, opts ...Option) *CloudWatchCollector {
	if logger == nil {
		logger = slog.Default()
	}
	c := &CloudWatchCollector{
		client:      client,
		namespace:   namespace,
		logger:      logger,
		maxBuffered: defaultMaxBuffered,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = NewBreaker("cloudwatch", logger)
	}
	return c
}

// NewBreaker returns the breaker used around PutMetricData. It opens after
// more than five consecutive failures and probes again after 30s.
func NewBreaker(name string, logger *slog.Logger) *gobreaker.CircuitBreaker[*cloudwatch.PutMetricDataOutput] {
	return gobreaker.NewCircuitBreaker[*cloudwatch.PutMetricDataOutput](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("metrics circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
}

// RecordRequest buffers latency and count datums for one completed request.
// endpoint should be the matched route pattern.
func (c *CloudWatchCollector) RecordRequest(method, endpoint, status string, duration time.Duration) {
	dims := []cwtypes.Dimension{
		{Name: aws.String(types.DimMethod), Value: aws.String(method)},
		{Name: aws.String(types.DimEndpoint), Value: aws.String(endpoint)},
		{Name: aws.String(types.DimStatus), Value: aws.String(status)},
	}
	ts := aws.Time(c.now().UTC())

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.buffer)+2 > c.maxBuffered {
		c.dropped += 2
		return
	}
	c.buffer = append(c.buffer,
		cwtypes.MetricDatum{
			MetricName: aws.String(types.MetricAPILatency),
			Value:      aws.Float64(float64(duration.Microseconds()) / 1000),
			Unit:       cwtypes.StandardUnitMilliseconds,
			Dimensions: dims,
			Timestamp:  ts,
		},
		cwtypes.MetricDatum{
			MetricName: aws.String(types.MetricAPIRequestCount),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: dims,
			Timestamp:  ts,
		},
	)
}

// Buffered returns the number of datums awaiting Flush.
func (c *CloudWatchCollector) Buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buffer)
}

// Flush publishes all buffered datums. Datums in a failed batch are
// discarded. Once the breaker is open the remaining batches are requeued
// for the next flush. The returned error joins every batch failure.
func (c *CloudWatchCollector) Flush(ctx context.Context) error {
	c.mu.Lock()
	pending := c.buffer
	dropped := c.dropped
	c.buffer = nil
	c.dropped = 0
	c.mu.Unlock()

	if dropped > 0 {
		c.logger.Warn("metric datums dropped, buffer full", "dropped", dropped)
	}
	if len(pending) == 0 {
		return nil
	}

	var errs []error
	for start := 0; start < len(pending); start += maxDatumsPerCall {
		end := min(start+maxDatumsPerCall, len(pending))
		input := &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(c.namespace),
			MetricData: pending[start:end],
		}

		_, err := c.breaker.Execute(func() (*cloudwatch.PutMetricDataOutput, error) {
			return c.client.PutMetricData(ctx, input)
		})
		if err != nil {
			c.logger.Error("failed to publish metrics",
				"error", err.Error(),
				"datums", end-start,
			)
			errs = append(errs, fmt.Errorf("put metric data: %w", err))
			if errors.Is(err, gobreaker.ErrOpenState) {
				// Nothing from start onward reached CloudWatch.
				kept := c.requeue(pending[start:])
				c.logger.Warn("metrics breaker open, batches deferred",
					"requeued", kept,
					"dropped", len(pending)-start-kept,
				)
				break
			}
		}
	}
	return errors.Join(errs...)
}

// requeue puts unsent datums back ahead of anything recorded since the
// flush began. Only as many as fit under maxBuffered are kept, newest
// first; the rest count as dropped. It returns the number kept.
func (c *CloudWatchCollector) requeue(datums []cwtypes.MetricDatum) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	room := max(c.maxBuffered-len(c.buffer), 0)
	if len(datums) > room {
		c.dropped += len(datums) - room
		datums = datums[len(datums)-room:]
	}
	buf := make([]cwtypes.MetricDatum, 0, len(datums)+len(c.buffer))
	buf = append(buf, datums...)
	c.buffer = append(buf, c.buffer...)
	return len(datums)
}

// Run flushes every interval until ctx is cancelled, then performs a final
// flush bounded by a short timeout. It always returns nil so a metrics
// outage never stops the process.
func (c *CloudWatchCollector) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = c.Flush(ctx)
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalFlushTimeout)
			_ = c.Flush(flushCtx)
			cancel()
			return nil
		}
	}
}
