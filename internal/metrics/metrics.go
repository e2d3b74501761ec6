package metrics

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/blackmoney/storefront/pkg/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

// AppMetrics holds all application metrics
type AppMetrics struct {
	// HTTP Metrics
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestsErrors  metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram

	// Outbound service-call metrics (order, coupon, settings, payment)
	ServiceCallsTotal   metric.Int64Counter
	ServiceCallDuration metric.Float64Histogram

	// Business Metrics
	OrdersPlaced       metric.Int64Counter
	CouponsApplied     metric.Int64Counter
	CouponsRejected    metric.Int64Counter
	CheckoutFailures   metric.Int64Counter
	GatewayUnavailable metric.Int64Counter
	RevenueTotal       metric.Float64Counter
	CartItemsCount     metric.Int64Gauge
	ActiveCheckouts    metric.Int64Gauge

	// Service name for adding to all metrics
	serviceName string
}

// InitMetrics initializes OpenTelemetry metrics
func InitMetrics(ctx context.Context, cfg *config.Config) (*AppMetrics, *sdkmetric.MeterProvider, error) {
	// Resource attributes come from the environment first, with explicit
	// service attributes taking precedence.
	envRes, err := resource.New(ctx, resource.WithFromEnv())
	if err != nil {
		envRes = resource.Empty()
	}

	explicitRes, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.OTELServiceName),
			semconv.ServiceVersion(cfg.OTELServiceVersion),
			attribute.String("deployment.environment", cfg.OTELDeploymentEnvironment),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create explicit resource: %w", err)
	}

	res, err := resource.Merge(envRes, explicitRes)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to merge resources: %w", err)
	}

	exporterOpts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(cfg.OTELExporterOTLPEndpoint),
		otlpmetrichttp.WithURLPath("/v1/metrics"),
	}
	if cfg.OTELExporterOTLPHeaders != "" {
		exporterOpts = append(exporterOpts, otlpmetrichttp.WithHeaders(parseHeaders(cfg.OTELExporterOTLPHeaders)))
	}
	if cfg.OTELExporterOTLPInsecure {
		exporterOpts = append(exporterOpts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, exporterOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	log.Printf("Metrics exporter configured: endpoint=%s service=%s", cfg.OTELExporterOTLPEndpoint, cfg.OTELServiceName)

	reader := sdkmetric.NewPeriodicReader(exporter,
		sdkmetric.WithInterval(10*time.Second),
	)

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(meterProvider)

	meter := meterProvider.Meter(cfg.OTELServiceName)

	appMetrics, err := NewAppMetrics(meter, cfg.OTELServiceName)
	if err != nil {
		return nil, nil, err
	}
	return appMetrics, meterProvider, nil
}

// NewAppMetrics creates the application instruments on the given meter.
func NewAppMetrics(meter metric.Meter, serviceName string) (*AppMetrics, error) {
	// Histogram buckets in milliseconds, expanded to 60s
	buckets := []float64{2, 4, 6, 8, 10, 50, 100, 200, 400, 800, 1000, 1400, 2000, 5000, 10000, 15000, 20000, 30000, 45000, 60000}

	httpRequestsTotal, err := meter.Int64Counter(
		"http.server.request.count",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http requests counter: %w", err)
	}

	httpRequestsErrors, err := meter.Int64Counter(
		"http.server.request.error.count",
		metric.WithDescription("Total number of HTTP error requests"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http errors counter: %w", err)
	}

	httpRequestDuration, err := meter.Float64Histogram(
		"http.server.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(buckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http duration histogram: %w", err)
	}

	serviceCallsTotal, err := meter.Int64Counter(
		"backend.client.request.count",
		metric.WithDescription("Total number of calls to collaborator services"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create service calls counter: %w", err)
	}

	serviceCallDuration, err := meter.Float64Histogram(
		"backend.client.request.duration",
		metric.WithDescription("Collaborator service call duration in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(buckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create service call histogram: %w", err)
	}

	ordersPlaced, err := meter.Int64Counter(
		"orders_placed_total",
		metric.WithDescription("Total number of orders placed through checkout"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create orders counter: %w", err)
	}

	couponsApplied, err := meter.Int64Counter(
		"coupons_applied_total",
		metric.WithDescription("Total number of coupons successfully applied"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create coupons applied counter: %w", err)
	}

	couponsRejected, err := meter.Int64Counter(
		"coupons_rejected_total",
		metric.WithDescription("Total number of coupon validations rejected"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create coupons rejected counter: %w", err)
	}

	checkoutFailures, err := meter.Int64Counter(
		"checkout_failures_total",
		metric.WithDescription("Total number of failed checkout transitions"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout failures counter: %w", err)
	}

	gatewayUnavailable, err := meter.Int64Counter(
		"gateway_unavailable_total",
		metric.WithDescription("Times the payment gateway reported itself unavailable"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway unavailable counter: %w", err)
	}

	revenueTotal, err := meter.Float64Counter(
		"revenue_total",
		metric.WithDescription("Total revenue from placed orders"),
		metric.WithUnit("INR"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create revenue counter: %w", err)
	}

	cartItemsCount, err := meter.Int64Gauge(
		"cart_items_count",
		metric.WithDescription("Current number of line items in the cart"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cart items gauge: %w", err)
	}

	activeCheckouts, err := meter.Int64Gauge(
		"active_checkouts_count",
		metric.WithDescription("Checkout sessions currently in progress"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active checkouts gauge: %w", err)
	}

	return &AppMetrics{
		HTTPRequestsTotal:   httpRequestsTotal,
		HTTPRequestsErrors:  httpRequestsErrors,
		HTTPRequestDuration: httpRequestDuration,
		ServiceCallsTotal:   serviceCallsTotal,
		ServiceCallDuration: serviceCallDuration,
		OrdersPlaced:        ordersPlaced,
		CouponsApplied:      couponsApplied,
		CouponsRejected:     couponsRejected,
		CheckoutFailures:    checkoutFailures,
		GatewayUnavailable:  gatewayUnavailable,
		RevenueTotal:        revenueTotal,
		CartItemsCount:      cartItemsCount,
		ActiveCheckouts:     activeCheckouts,
		serviceName:         serviceName,
	}, nil
}

// WithServiceName adds service.name to attributes
func (m *AppMetrics) WithServiceName(attrs []attribute.KeyValue) []attribute.KeyValue {
	return append(attrs, attribute.String("service.name", m.serviceName))
}

// RecordServiceCall records one outbound call to a collaborator service.
func (m *AppMetrics) RecordServiceCall(ctx context.Context, service, operation string, start time.Time, success bool) {
	duration := time.Since(start).Milliseconds()

	status := "success"
	if !success {
		status = "error"
	}

	attrs := []attribute.KeyValue{
		attribute.String("peer.service", service),
		attribute.String("operation", operation),
		attribute.String("status", status),
	}

	m.ServiceCallsTotal.Add(ctx, 1, metric.WithAttributes(m.WithServiceName(attrs)...))
	m.ServiceCallDuration.Record(ctx, float64(duration), metric.WithAttributes(m.WithServiceName(attrs)...))
}

// parseHeaders parses header string in format "key1=value1,key2=value2"
// and returns a map of headers
func parseHeaders(headerStr string) map[string]string {
	headers := make(map[string]string)
	if headerStr == "" {
		return headers
	}

	pairs := strings.Split(headerStr, ",")
	for _, pair := range pairs {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) == 2 {
			headers[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	return headers
}
