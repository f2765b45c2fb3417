// Package transport предоставляет HTTP транспорт для сервисов на Potter.
package transport

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/akriventsev/potter-repository/framework/core"
	"github.com/akriventsev/potter-repository/framework/logger"
	"github.com/akriventsev/potter-repository/framework/metrics"
	"github.com/akriventsev/potter-repository/framework/observability"
)

// RESTConfig конфигурация для REST адаптера
type RESTConfig struct {
	Address         string
	BasePath        string
	ServiceName     string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// MetricsPath путь Prometheus метрик (пусто = не публиковать)
	MetricsPath string
	// EnableTracing включает middleware трассировки и correlation ID
	EnableTracing bool
}

// DefaultRESTConfig возвращает конфигурацию REST по умолчанию
func DefaultRESTConfig() RESTConfig {
	return RESTConfig{
		Address:         ":8080",
		BasePath:        "/api/v1",
		ServiceName:     "potter",
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		MetricsPath:     "/metrics",
	}
}

// RESTOption опция REST адаптера
type RESTOption func(*RESTAdapter)

// WithRESTLogger задает логгер адаптера
func WithRESTLogger(l *zap.Logger) RESTOption {
	return func(r *RESTAdapter) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithRESTMetrics задает сборщик метрик HTTP запросов
func WithRESTMetrics(m *metrics.Metrics) RESTOption {
	return func(r *RESTAdapter) {
		r.metrics = m
	}
}

// WithMetricsHandler задает handler, публикуемый по MetricsPath
func WithMetricsHandler(h http.Handler) RESTOption {
	return func(r *RESTAdapter) {
		r.metricsHandler = h
	}
}

// WithDebugManager подключает /healthz и /readyz
func WithDebugManager(dm *observability.DebugManager) RESTOption {
	return func(r *RESTAdapter) {
		r.debug = dm
	}
}

// WithOpenAPI включает проверку запросов API по контракту и публикацию документации
func WithOpenAPI(v *OpenAPIValidator) RESTOption {
	return func(r *RESTAdapter) {
		r.openapi = v
	}
}

// RESTAdapter HTTP сервер на gin с логированием, метриками и health checks
type RESTAdapter struct {
	config         RESTConfig
	router         *gin.Engine
	logger         *zap.Logger
	metrics        *metrics.Metrics
	metricsHandler http.Handler
	debug          *observability.DebugManager
	openapi        *OpenAPIValidator
	server         *http.Server
	running        bool
	mu             sync.RWMutex
}

var _ core.Lifecycle = (*RESTAdapter)(nil)

// NewRESTAdapter создает новый REST адаптер
func NewRESTAdapter(config RESTConfig, opts ...RESTOption) *RESTAdapter {
	r := &RESTAdapter{
		config: config,
		router: gin.New(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.router.Use(gin.Recovery())
	if config.EnableTracing {
		r.router.Use(observability.HTTPTracingMiddleware(config.ServiceName))
		r.router.Use(observability.CorrelationIDMiddleware())
	}
	r.router.Use(r.requestMiddleware())

	if r.metricsHandler != nil && config.MetricsPath != "" {
		r.router.GET(config.MetricsPath, gin.WrapH(r.metricsHandler))
	}
	if r.debug != nil {
		r.router.GET("/healthz", r.debug.HealthCheckHandler())
		r.router.GET("/readyz", r.debug.ReadinessCheckHandler())
	}
	if r.openapi != nil {
		r.openapi.RegisterDocs(r.router)
	}

	return r
}

// Router возвращает gin engine (для тестов и дополнительных маршрутов)
func (r *RESTAdapter) Router() *gin.Engine {
	return r.router
}

// API возвращает группу маршрутов BasePath
func (r *RESTAdapter) API() *gin.RouterGroup {
	group := r.router.Group(r.config.BasePath)
	if r.openapi != nil {
		group.Use(r.openapi.Middleware())
	}
	return group
}

// requestMiddleware пишет access log, метрики запроса и кладет логгер в context
func (r *RESTAdapter) requestMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		ctx := c.Request.Context()

		reqLogger := r.logger.With(
			logger.Method(c.Request.Method),
			logger.Path(c.Request.URL.Path),
		)
		if id := observability.ExtractCorrelationID(ctx); id != "" {
			reqLogger = reqLogger.With(logger.RequestID(id))
		}
		c.Request = c.Request.WithContext(logger.ToContext(ctx, reqLogger))

		if r.metrics != nil {
			r.metrics.IncrementActiveRequests(ctx)
			defer r.metrics.DecrementActiveRequests(ctx)
		}

		c.Next()

		status := c.Writer.Status()
		duration := time.Since(start)
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		if r.metrics != nil {
			r.metrics.RecordRequest(ctx, c.Request.Method, route, status, duration)
		}

		fields := []zap.Field{logger.Status(status), logger.Duration(duration)}
		switch {
		case status >= 500:
			reqLogger.Error("request failed", fields...)
		case status >= 400:
			reqLogger.Warn("request rejected", fields...)
		default:
			reqLogger.Info("request", fields...)
		}
	}
}

// Start запускает HTTP сервер (реализация core.Lifecycle).
// Ошибка привязки к адресу возвращается сразу.
func (r *RESTAdapter) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return nil
	}

	r.server = &http.Server{
		Addr:              r.config.Address,
		Handler:           r.router,
		ReadTimeout:       r.config.ReadTimeout,
		ReadHeaderTimeout: r.config.ReadTimeout,
		WriteTimeout:      r.config.WriteTimeout,
	}

	errCh := make(chan error, 1)
	server := r.server
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("http server failed", zap.Error(err))
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-time.After(100 * time.Millisecond):
	}

	r.running = true
	r.logger.Info("http server started", zap.String("address", r.config.Address))
	return nil
}

// Stop останавливает HTTP сервер (реализация core.Lifecycle)
func (r *RESTAdapter) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.running = false
	if r.server == nil {
		return nil
	}

	timeout := r.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := r.server.Shutdown(shutdownCtx)
	r.server = nil
	r.logger.Info("http server stopped")
	return err
}

// IsRunning проверяет, запущен ли адаптер (реализация core.Lifecycle)
func (r *RESTAdapter) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// Name возвращает имя компонента (реализация core.Component)
func (r *RESTAdapter) Name() string {
	return "rest-adapter"
}

// Type возвращает тип компонента (реализация core.Component)
func (r *RESTAdapter) Type() core.ComponentType {
	return core.ComponentTypeTransport
}
