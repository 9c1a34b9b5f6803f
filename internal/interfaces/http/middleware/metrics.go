package middleware

import (
	"errors"
	"time"

	"github.com/coopledger/backend/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// statement uploads sit in the upper buckets, API bodies in the lower ones
var bodySizeBuckets = []float64{256, 1024, 8192, 65536, 524288, 2097152, 10485760}

type serverInstruments struct {
	requests *telemetry.Counter
	latency  *telemetry.Histogram
	inBytes  *telemetry.Histogram
	outBytes *telemetry.Histogram
	inFlight metric.Int64UpDownCounter
}

func newServerInstruments(meter metric.Meter) (*serverInstruments, error) {
	var errs []error
	keep := func(err error) { errs = append(errs, err) }

	s := &serverInstruments{}
	var err error
	s.requests, err = telemetry.NewCounter(meter, "http_server_request_total", "HTTP requests served", "{request}")
	keep(err)
	s.latency, err = telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "http_server_request_duration_seconds",
		Description: "HTTP request latency",
		Unit:        "s",
		Boundaries:  telemetry.HTTPDurationBuckets,
	})
	keep(err)
	s.inBytes, err = telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "http_server_request_size_bytes",
		Description: "HTTP request body size",
		Unit:        "By",
		Boundaries:  bodySizeBuckets,
	})
	keep(err)
	s.outBytes, err = telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "http_server_response_size_bytes",
		Description: "HTTP response body size",
		Unit:        "By",
		Boundaries:  bodySizeBuckets,
	})
	keep(err)
	s.inFlight, err = meter.Int64UpDownCounter("http_server_active_requests",
		metric.WithDescription("HTTP requests in flight"),
		metric.WithUnit("{request}"),
	)
	keep(err)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *serverInstruments) handle(c *gin.Context) {
	ctx := c.Request.Context()
	began := time.Now()

	s.inFlight.Add(ctx, 1)
	defer s.inFlight.Add(ctx, -1)
	c.Next()

	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	// route and method only; status and cooperative would multiply the series
	routeAttrs := []attribute.KeyValue{
		telemetry.AttrHTTPMethod.String(c.Request.Method),
		telemetry.AttrHTTPRoute.String(route),
	}

	countAttrs := append(routeAttrs[:len(routeAttrs):len(routeAttrs)],
		telemetry.AttrHTTPStatusCode.Int(c.Writer.Status()))
	if coop := c.GetString(CooperativeIDKey); coop != "" {
		countAttrs = append(countAttrs, telemetry.AttrCooperativeID.String(coop))
	}
	s.requests.Inc(ctx, countAttrs...)

	s.latency.RecordDuration(ctx, time.Since(began), routeAttrs...)
	if n := c.Request.ContentLength; n > 0 {
		s.inBytes.Record(ctx, float64(n), routeAttrs...)
	}
	if n := c.Writer.Size(); n > 0 {
		s.outBytes.Record(ctx, float64(n), routeAttrs...)
	}
}

// HTTPMetrics records request count, latency, body sizes and in-flight
// requests. Without an enabled provider it only calls the next handler.
func HTTPMetrics(provider *telemetry.MeterProvider) gin.HandlerFunc {
	if provider == nil || !provider.IsEnabled() {
		return passThrough
	}
	return HTTPMetricsWithMeter(provider.Meter("http.server"))
}

func HTTPMetricsWithMeter(meter metric.Meter) gin.HandlerFunc {
	s, err := newServerInstruments(meter)
	if err != nil {
		return passThrough
	}
	return s.handle
}

func passThrough(c *gin.Context) {
	c.Next()
}
