package repository

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/akriventsev/potter-repository/framework/core"
	"github.com/akriventsev/potter-repository/framework/logger"
	"github.com/akriventsev/potter-repository/framework/metrics"
	"github.com/akriventsev/potter-repository/framework/persistence"
)

// InstrumentOption опция инструментированного репозитория
type InstrumentOption func(*instrumentConfig)

type instrumentConfig struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// WithLogger задает логгер
func WithLogger(l *zap.Logger) InstrumentOption {
	return func(c *instrumentConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics задает сборщик метрик
func WithMetrics(m *metrics.Metrics) InstrumentOption {
	return func(c *instrumentConfig) {
		c.metrics = m
	}
}

// WithTracer задает tracer
func WithTracer(t trace.Tracer) InstrumentOption {
	return func(c *instrumentConfig) {
		if t != nil {
			c.tracer = t
		}
	}
}

// InstrumentedRepository декоратор Repository, добавляющий spans, метрики и логи.
// Ошибки и результаты вложенного репозитория возвращаются без изменений.
type InstrumentedRepository[T persistence.Entity] struct {
	next    Repository[T]
	name    string
	logger  *zap.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

var _ Repository[persistence.Entity] = (*InstrumentedRepository[persistence.Entity])(nil)

// Instrument оборачивает репозиторий next
func Instrument[T persistence.Entity](next Repository[T], name string, opts ...InstrumentOption) *InstrumentedRepository[T] {
	cfg := &instrumentConfig{
		logger: zap.NewNop(),
		tracer: otel.Tracer("potter.repository"),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &InstrumentedRepository[T]{
		next:    next,
		name:    name,
		logger:  cfg.logger.With(logger.Repository(name)),
		metrics: cfg.metrics,
		tracer:  cfg.tracer,
	}
}

// Unwrap возвращает вложенный репозиторий
func (r *InstrumentedRepository[T]) Unwrap() Repository[T] {
	return r.next
}

// Add откладывает вставку сущности
func (r *InstrumentedRepository[T]) Add(ctx context.Context, entity T) (T, error) {
	ctx, done := r.begin(ctx, "add", attribute.String("entity.id", entity.ID()))
	result, err := r.next.Add(ctx, entity)
	done(err)
	return result, err
}

// Update откладывает обновление сущности
func (r *InstrumentedRepository[T]) Update(ctx context.Context, entity T) (T, error) {
	ctx, done := r.begin(ctx, "update", attribute.String("entity.id", entity.ID()))
	result, err := r.next.Update(ctx, entity)
	done(err)
	return result, err
}

// Get возвращает сущность по ID
func (r *InstrumentedRepository[T]) Get(ctx context.Context, id string) (core.Option[T], error) {
	ctx, done := r.begin(ctx, "get", attribute.String("entity.id", id))
	result, err := r.next.Get(ctx, id)
	if err == nil {
		trace.SpanFromContext(ctx).SetAttributes(attribute.Bool("entity.found", result.IsSome()))
	}
	done(err)
	return result, err
}

// All возвращает все сущности
func (r *InstrumentedRepository[T]) All(ctx context.Context) ([]T, error) {
	ctx, done := r.begin(ctx, "all")
	result, err := r.next.All(ctx)
	r.recordSize(ctx, "all", len(result), err)
	done(err)
	return result, err
}

// Find возвращает сущности, удовлетворяющие предикату
func (r *InstrumentedRepository[T]) Find(ctx context.Context, predicate *persistence.Predicate) ([]T, error) {
	ctx, done := r.begin(ctx, "find", attribute.String("predicate", predicate.String()))
	result, err := r.next.Find(ctx, predicate)
	r.recordSize(ctx, "find", len(result), err)
	done(err)
	return result, err
}

// SaveChanges фиксирует изменения
func (r *InstrumentedRepository[T]) SaveChanges(ctx context.Context) error {
	ctx, done := r.begin(ctx, "save_changes")
	err := r.next.SaveChanges(ctx)
	if r.metrics != nil {
		r.metrics.RecordCommit(ctx, r.name, err == nil)
	}
	done(err)
	return err
}

// begin открывает span операции и возвращает функцию ее завершения
func (r *InstrumentedRepository[T]) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	attrs = append(attrs,
		attribute.String("repository.name", r.name),
		attribute.String("repository.operation", op),
	)
	ctx, span := r.tracer.Start(ctx, "repository."+r.name+"."+op, trace.WithAttributes(attrs...))

	return ctx, func(err error) {
		duration := time.Since(start)
		defer span.End()

		if r.metrics != nil {
			r.metrics.RecordOperation(ctx, r.name, op, duration, err)
		}

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			r.logger.Warn("repository operation failed",
				logger.Operation(op),
				logger.Duration(duration),
				zap.String("code", core.CodeOf(err)),
				zap.Error(err),
			)
			return
		}

		r.logger.Debug("repository operation",
			logger.Operation(op),
			logger.Duration(duration),
		)
	}
}

func (r *InstrumentedRepository[T]) recordSize(ctx context.Context, op string, size int, err error) {
	if err != nil {
		return
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("result.size", size))
	if r.metrics != nil {
		r.metrics.RecordResultSize(ctx, r.name, op, size)
	}
}
