package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/akriventsev/potter-repository/examples/orders/api"
	"github.com/akriventsev/potter-repository/examples/orders/infrastructure"
	"github.com/akriventsev/potter-repository/framework/adapters/transport"
	"github.com/akriventsev/potter-repository/framework/core"
	"github.com/akriventsev/potter-repository/framework/metrics"
	"github.com/akriventsev/potter-repository/framework/observability"
)

func newServeCommand(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the orders HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), *configFile)
		},
	}
}

func serve(ctx context.Context, configFile string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := bootstrap(ctx, configFile)
	if err != nil {
		return err
	}
	defer a.close(context.Background())
	cfg := a.cfg

	if cfg.Store.SQL.AutoMigrate {
		if err := a.migrate(ctx); err != nil {
			return fmt.Errorf("auto migration failed: %w", err)
		}
	}

	var (
		m            *metrics.Metrics
		metricsSetup *metrics.Setup
	)
	if cfg.Metrics.Enabled {
		metricsSetup, err = metrics.SetupMetrics(&metrics.MetricsConfig{
			ExporterType:  "prometheus",
			ServiceName:   cfg.ServiceName,
			ResourceAttrs: map[string]string{"deployment.environment": cfg.Environment},
		})
		if err != nil {
			return err
		}
		defer func() { _ = metrics.ShutdownMetrics(context.Background(), metricsSetup) }()

		m, err = metrics.NewMetricsWithProvider(metricsSetup.Provider)
		if err != nil {
			return err
		}
	}

	tracing, err := observability.NewTracingManager(observability.TracingConfig{
		Enabled:          cfg.Tracing.Enabled,
		ServiceName:      cfg.ServiceName,
		ServiceVersion:   cfg.Version,
		Exporter:         cfg.Tracing.Exporter,
		ExporterEndpoint: cfg.Tracing.Endpoint,
		SamplingRate:     cfg.Tracing.SamplingRate,
		Environment:      cfg.Environment,
	})
	if err != nil {
		return err
	}

	debugCfg := observability.DefaultDebugConfig()
	debugCfg.EnablePprof = cfg.Debug.Pprof
	debugCfg.PprofPort = cfg.Debug.PprofPort
	debug := observability.NewDebugManager(debugCfg, a.logger)
	if hc, ok := a.store.(core.HealthCheckable); ok {
		check := observability.NewComponentHealthCheck("store", hc)
		debug.RegisterHealthCheck(check)
		debug.RegisterReadinessCheck(check)
	}
	for _, c := range a.components {
		if hc, ok := c.(core.HealthCheckable); ok {
			debug.RegisterHealthCheck(observability.NewComponentHealthCheck(c.Name(), hc))
		}
	}

	restCfg := transport.DefaultRESTConfig()
	restCfg.Address = cfg.Server.Address
	restCfg.BasePath = cfg.Server.BasePath
	restCfg.ServiceName = cfg.ServiceName
	restCfg.ReadTimeout = cfg.Server.ReadTimeout
	restCfg.WriteTimeout = cfg.Server.WriteTimeout
	restCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout
	restCfg.MetricsPath = cfg.Metrics.Path
	restCfg.EnableTracing = cfg.Tracing.Enabled

	opts := []transport.RESTOption{
		transport.WithRESTLogger(a.logger),
		transport.WithDebugManager(debug),
	}
	if cfg.Server.OpenAPI {
		validator, err := api.NewOpenAPIValidator(cfg.Server.BasePath)
		if err != nil {
			return err
		}
		opts = append(opts, transport.WithOpenAPI(validator))
	}
	if metricsSetup != nil {
		opts = append(opts, transport.WithRESTMetrics(m), transport.WithMetricsHandler(metricsSetup.Handler))
	}
	rest := transport.NewRESTAdapter(restCfg, opts...)

	scope := infrastructure.NewScope(infrastructure.ScopeConfig{
		Store:   a.data,
		Logger:  a.logger,
		Metrics: m,
		Tracer:  tracing.Tracer(),
	})
	api.Routes(rest.API(), scope, a.logger)

	extra := []core.Component{tracing, debug, rest}
	if a.hub != nil {
		stream := transport.NewChangeStream(a.hub, transport.DefaultWebSocketConfig(), a.logger)
		api.StreamRoutes(rest.API(), stream)
		extra = append(extra, stream)
	}

	fw, err := a.framework(extra...)
	if err != nil {
		return err
	}
	if err := fw.Initialize(ctx); err != nil {
		return err
	}
	a.logger.Info("service started", zap.String("config", cfg.String()))

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return fw.Shutdown(shutdownCtx)
}
