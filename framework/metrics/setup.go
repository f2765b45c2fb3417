// Package metrics предоставляет функции для настройки системы метрик.
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// MetricsConfig конфигурация метрик
type MetricsConfig struct {
	// ExporterType "prometheus" или "none"
	ExporterType  string
	ServiceName   string
	ResourceAttrs map[string]string
}

// Setup результат настройки метрик
type Setup struct {
	Provider *metric.MeterProvider
	// Handler отдает метрики в формате Prometheus (nil, если экспорт отключен)
	Handler http.Handler
}

// SetupMetrics настраивает экспорт метрик и устанавливает глобальный MeterProvider
func SetupMetrics(config *MetricsConfig) (*Setup, error) {
	if config == nil {
		config = &MetricsConfig{ExporterType: "prometheus"}
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(buildResourceAttributes(config)...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	opts := []metric.Option{metric.WithResource(res)}
	var handler http.Handler

	switch config.ExporterType {
	case "prometheus", "":
		registry := prometheus.NewRegistry()
		reader, err := setupPrometheusExporter(registry)
		if err != nil {
			return nil, err
		}
		opts = append(opts, metric.WithReader(reader))
		handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
	case "none":
	default:
		return nil, fmt.Errorf("unknown exporter type: %s", config.ExporterType)
	}

	provider := metric.NewMeterProvider(opts...)
	otel.SetMeterProvider(provider)

	return &Setup{Provider: provider, Handler: handler}, nil
}

// setupPrometheusExporter настраивает Prometheus exporter на отдельном реестре
func setupPrometheusExporter(registry *prometheus.Registry) (metric.Reader, error) {
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	return exporter, nil
}

// buildResourceAttributes строит resource attributes
func buildResourceAttributes(config *MetricsConfig) []attribute.KeyValue {
	result := make([]attribute.KeyValue, 0, len(config.ResourceAttrs)+1)
	if config.ServiceName != "" {
		result = append(result, attribute.String("service.name", config.ServiceName))
	}
	for k, v := range config.ResourceAttrs {
		result = append(result, attribute.String(k, v))
	}
	return result
}

// ShutdownMetrics корректно завершает работу метрик
func ShutdownMetrics(ctx context.Context, setup *Setup) error {
	if setup == nil || setup.Provider == nil {
		return nil
	}

	return setup.Provider.Shutdown(ctx)
}
