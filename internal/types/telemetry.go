package types

// Telemetry metric names for CloudWatch.
const (
	// Metric Names
	MetricAPILatency      = "APILatency"
	MetricAPIRequestCount = "APIRequestCount"

	// Dimension Keys
	DimMethod   = "Method"
	DimEndpoint = "Endpoint"
	DimStatus   = "Status"
)
