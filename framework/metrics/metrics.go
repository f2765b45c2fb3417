// Package metrics предоставляет систему метрик на основе OpenTelemetry.
package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/akriventsev/potter-repository/framework/core"
)

// MeterName имя meter для метрик репозиториев
const MeterName = "potter-repository"

// Metrics сборщик метрик репозиториев и HTTP слоя
type Metrics struct {
	meter             metric.Meter
	operationsTotal   metric.Int64Counter
	operationDuration metric.Float64Histogram
	errorsTotal       metric.Int64Counter
	resultSize        metric.Int64Histogram
	commitsTotal      metric.Int64Counter
	requestsTotal     metric.Int64Counter
	requestDuration   metric.Float64Histogram
	activeRequests    metric.Int64UpDownCounter
}

// NewMetrics создает сборщик метрик на глобальном MeterProvider
func NewMetrics() (*Metrics, error) {
	return NewMetricsWithProvider(otel.GetMeterProvider())
}

// NewMetricsWithProvider создает сборщик метрик на заданном MeterProvider
func NewMetricsWithProvider(provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(MeterName)

	operationsTotal, err := meter.Int64Counter(
		"repository_operations_total",
		metric.WithDescription("Total number of repository operations"),
	)
	if err != nil {
		return nil, err
	}

	operationDuration, err := meter.Float64Histogram(
		"repository_operation_duration_seconds",
		metric.WithDescription("Repository operation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	errorsTotal, err := meter.Int64Counter(
		"repository_errors_total",
		metric.WithDescription("Total number of failed repository operations"),
	)
	if err != nil {
		return nil, err
	}

	resultSize, err := meter.Int64Histogram(
		"repository_result_size",
		metric.WithDescription("Number of entities returned by All and Find"),
	)
	if err != nil {
		return nil, err
	}

	commitsTotal, err := meter.Int64Counter(
		"repository_commits_total",
		metric.WithDescription("Total number of SaveChanges calls"),
	)
	if err != nil {
		return nil, err
	}

	requestsTotal, err := meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	activeRequests, err := meter.Int64UpDownCounter(
		"http_active_requests",
		metric.WithDescription("Number of HTTP requests being processed"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		meter:             meter,
		operationsTotal:   operationsTotal,
		operationDuration: operationDuration,
		errorsTotal:       errorsTotal,
		resultSize:        resultSize,
		commitsTotal:      commitsTotal,
		requestsTotal:     requestsTotal,
		requestDuration:   requestDuration,
		activeRequests:    activeRequests,
	}, nil
}

// RecordOperation записывает метрику операции репозитория.
// Ошибки дополнительно считаются по коду FrameworkError.
func (m *Metrics) RecordOperation(ctx context.Context, repository, operation string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("repository", repository),
		attribute.String("operation", operation),
		attribute.Bool("success", err == nil),
	}

	m.operationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.operationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))

	if err != nil {
		code := core.CodeOf(err)
		if code == "" {
			code = "UNKNOWN"
		}
		m.errorsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("repository", repository),
			attribute.String("operation", operation),
			attribute.String("code", code),
		))
	}
}

// RecordResultSize записывает количество сущностей, возвращенных запросом
func (m *Metrics) RecordResultSize(ctx context.Context, repository, operation string, size int) {
	m.resultSize.Record(ctx, int64(size), metric.WithAttributes(
		attribute.String("repository", repository),
		attribute.String("operation", operation),
	))
}

// RecordCommit записывает метрику фиксации изменений
func (m *Metrics) RecordCommit(ctx context.Context, repository string, success bool) {
	m.commitsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("repository", repository),
		attribute.Bool("success", success),
	))
}

// RecordRequest записывает метрику HTTP запроса
func (m *Metrics) RecordRequest(ctx context.Context, method, route string, status int, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	}

	m.requestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// IncrementActiveRequests увеличивает счетчик активных запросов
func (m *Metrics) IncrementActiveRequests(ctx context.Context) {
	m.activeRequests.Add(ctx, 1)
}

// DecrementActiveRequests уменьшает счетчик активных запросов
func (m *Metrics) DecrementActiveRequests(ctx context.Context) {
	m.activeRequests.Add(ctx, -1)
}
