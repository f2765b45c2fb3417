package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/akriventsev/potter-repository/framework/metrics"
	"github.com/akriventsev/potter-repository/framework/persistence"
)

type instrumentFixture struct {
	repo   *InstrumentedRepository[*order]
	spans  *tracetest.SpanRecorder
	reader *sdkmetric.ManualReader
	logs   *observer.ObservedLogs
}

func newInstrumentFixture(t *testing.T) *instrumentFixture {
	t.Helper()

	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := metrics.NewMetricsWithProvider(mp)
	require.NoError(t, err)

	core, logs := observer.New(zapcore.DebugLevel)

	base, _ := newOrders()
	repo := Instrument[*order](base, "orders",
		WithTracer(tp.Tracer("test")),
		WithMetrics(m),
		WithLogger(zap.New(core)),
	)

	return &instrumentFixture{repo: repo, spans: spans, reader: reader, logs: logs}
}

func (f *instrumentFixture) sum(t *testing.T, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, f.reader.Collect(context.Background(), &rm))

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			if data, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range data.DataPoints {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func TestInstrumentPassesThrough(t *testing.T) {
	ctx := context.Background()
	f := newInstrumentFixture(t)

	_, err := f.repo.Add(ctx, &order{Key: "A1", Total: 10})
	require.NoError(t, err)
	require.NoError(t, f.repo.SaveChanges(ctx))

	got, err := f.repo.Get(ctx, "A1")
	require.NoError(t, err)
	require.True(t, got.IsSome())
	assert.Equal(t, 10.0, got.Value().Total)

	all, err := f.repo.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	found, err := f.repo.Find(ctx, persistence.Where("total", persistence.Gt, 5))
	require.NoError(t, err)
	assert.Len(t, found, 1)

	ended := f.spans.Ended()
	require.Len(t, ended, 5)
	names := make([]string, 0, len(ended))
	for _, s := range ended {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{
		"repository.orders.add",
		"repository.orders.save_changes",
		"repository.orders.get",
		"repository.orders.all",
		"repository.orders.find",
	}, names)

	assert.EqualValues(t, 5, f.sum(t, "repository_operations_total"))
	assert.EqualValues(t, 1, f.sum(t, "repository_commits_total"))
	assert.Zero(t, f.sum(t, "repository_errors_total"))
	assert.Equal(t, 5, f.logs.FilterMessage("repository operation").Len())
}

func TestInstrumentKeepsErrors(t *testing.T) {
	ctx := context.Background()
	f := newInstrumentFixture(t)

	_, err := f.repo.Update(ctx, &order{Key: "ghost"})
	require.Error(t, err)
	assert.True(t, persistence.IsNotFound(err))

	ended := f.spans.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Error, ended[0].Status().Code)

	assert.EqualValues(t, 1, f.sum(t, "repository_errors_total"))

	failed := f.logs.FilterMessage("repository operation failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "NOT_FOUND", failed[0].ContextMap()["code"])
	assert.Equal(t, "orders", failed[0].ContextMap()["repository"])
}

func TestInstrumentUnwrap(t *testing.T) {
	base, _ := newOrders()
	repo := Instrument[*order](base, "orders")

	assert.Same(t, base, repo.Unwrap())
}
