package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("checkin-keeper")

// Metrics holds all application metrics
type Metrics struct {
	CheckInsExecuted   metric.Int64Counter
	CheckInDuration    metric.Float64Histogram
	WafBypassAttempts  metric.Int64Counter
	BalanceFetches     metric.Int64Counter
	RequestDuration    metric.Float64Histogram
	ActiveAccounts     metric.Int64UpDownCounter
	ErrorRate          metric.Int64Counter
	DatabaseOperations metric.Int64Counter
	CircuitBreakerState metric.Int64Gauge
}

// NewMetrics creates and registers all metrics
func NewMetrics() (*Metrics, error) {
	checkInsExecuted, err := meter.Int64Counter(
		"checkins_executed_total",
		metric.WithDescription("Total number of check-in attempts"),
	)
	if err != nil {
		return nil, err
	}

	checkInDuration, err := meter.Float64Histogram(
		"checkin_duration_seconds",
		metric.WithDescription("Check-in execution duration in seconds"),
	)
	if err != nil {
		return nil, err
	}

	wafBypassAttempts, err := meter.Int64Counter(
		"waf_bypass_attempts_total",
		metric.WithDescription("Total number of WAF bypass attempts"),
	)
	if err != nil {
		return nil, err
	}

	balanceFetches, err := meter.Int64Counter(
		"balance_fetches_total",
		metric.WithDescription("Total number of balance fetches"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
	)
	if err != nil {
		return nil, err
	}

	activeAccounts, err := meter.Int64UpDownCounter(
		"active_accounts",
		metric.WithDescription("Number of enabled accounts"),
	)
	if err != nil {
		return nil, err
	}

	errorRate, err := meter.Int64Counter(
		"errors_total",
		metric.WithDescription("Total number of errors"),
	)
	if err != nil {
		return nil, err
	}

	databaseOperations, err := meter.Int64Counter(
		"database_operations_total",
		metric.WithDescription("Total number of database operations"),
	)
	if err != nil {
		return nil, err
	}

	circuitBreakerState, err := meter.Int64Gauge(
		"circuit_breaker_state",
		metric.WithDescription("Circuit breaker state (0=closed, 1=half-open, 2=open)"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		CheckInsExecuted:    checkInsExecuted,
		CheckInDuration:     checkInDuration,
		WafBypassAttempts:   wafBypassAttempts,
		BalanceFetches:      balanceFetches,
		RequestDuration:     requestDuration,
		ActiveAccounts:      activeAccounts,
		ErrorRate:           errorRate,
		DatabaseOperations:  databaseOperations,
		CircuitBreakerState: circuitBreakerState,
	}, nil
}

// RecordCheckIn records a check-in attempt
func (m *Metrics) RecordCheckIn(ctx context.Context, accountID, status string, durationSec float64) {
	attrs := metric.WithAttributes(
		attribute.String("account_id", accountID),
		attribute.String("status", status),
	)
	m.CheckInsExecuted.Add(ctx, 1, attrs)
	m.CheckInDuration.Record(ctx, durationSec, attrs)
}

// RecordWafBypass records a WAF bypass attempt
func (m *Metrics) RecordWafBypass(ctx context.Context, domain string, success bool) {
	m.WafBypassAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("domain", domain),
		attribute.Bool("success", success),
	))
}

// RecordBalanceFetch records a balance fetch
func (m *Metrics) RecordBalanceFetch(ctx context.Context, accountID string, fromCache bool) {
	m.BalanceFetches.Add(ctx, 1, metric.WithAttributes(
		attribute.String("account_id", accountID),
		attribute.Bool("from_cache", fromCache),
	))
}

// RecordRequest records HTTP request metrics
func (m *Metrics) RecordRequest(ctx context.Context, method, path string, statusCode int, durationSec float64) {
	m.RequestDuration.Record(ctx, durationSec, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.Int("status_code", statusCode),
	))
}

// RecordError records an error occurrence
func (m *Metrics) RecordError(ctx context.Context, kind, component string) {
	m.ErrorRate.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("component", component),
	))
}

// RecordDatabaseOperation records a database operation
func (m *Metrics) RecordDatabaseOperation(ctx context.Context, operation, collection string, success bool) {
	m.DatabaseOperations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("collection", collection),
		attribute.Bool("success", success),
	))
}

// RecordCircuitBreakerState records circuit breaker state changes
func (m *Metrics) RecordCircuitBreakerState(ctx context.Context, name string, state int64) {
	m.CircuitBreakerState.Record(ctx, state, metric.WithAttributes(
		attribute.String("breaker", name),
	))
}
