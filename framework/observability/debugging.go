// Copyright 2024 Potter Framework Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/akriventsev/potter-repository/framework/core"
)

// DebugConfig конфигурация для debugging utilities
type DebugConfig struct {
	EnablePprof bool
	PprofPort   int
	// CheckTimeout ограничение на выполнение всех проверок одного запроса
	CheckTimeout time.Duration
}

// DefaultDebugConfig возвращает конфигурацию по умолчанию
func DefaultDebugConfig() DebugConfig {
	return DebugConfig{
		EnablePprof:  false,
		PprofPort:    6060,
		CheckTimeout: 5 * time.Second,
	}
}

// DebugManager менеджер health/readiness проверок и pprof сервера
type DebugManager struct {
	config          DebugConfig
	logger          *zap.Logger
	pprofServer     *http.Server
	healthChecks    []HealthCheck
	readinessChecks []HealthCheck
	running         bool
	mu              sync.RWMutex
}

// NewDebugManager создает новый DebugManager
func NewDebugManager(config DebugConfig, logger *zap.Logger) *DebugManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.CheckTimeout <= 0 {
		config.CheckTimeout = 5 * time.Second
	}
	return &DebugManager{
		config: config,
		logger: logger,
	}
}

// Start запускает debug server с pprof endpoints
func (dm *DebugManager) Start(ctx context.Context) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.running = true

	if !dm.config.EnablePprof {
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	dm.pprofServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", dm.config.PprofPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	server := dm.pprofServer
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			dm.logger.Error("pprof server failed", zap.Error(err))
		}
	}()
	dm.logger.Info("pprof server started", zap.Int("port", dm.config.PprofPort))

	return nil
}

// Stop останавливает debug server
func (dm *DebugManager) Stop(ctx context.Context) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.running = false

	if dm.pprofServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		err := dm.pprofServer.Shutdown(shutdownCtx)
		dm.pprofServer = nil
		return err
	}

	return nil
}

// IsRunning проверяет статус
func (dm *DebugManager) IsRunning() bool {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.running
}

// Name возвращает имя компонента
func (dm *DebugManager) Name() string {
	return "debug"
}

// Type возвращает тип компонента
func (dm *DebugManager) Type() core.ComponentType {
	return core.ComponentTypeAdapter
}

// RegisterHealthCheck регистрирует health check
func (dm *DebugManager) RegisterHealthCheck(check HealthCheck) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.healthChecks = append(dm.healthChecks, check)
}

// RegisterReadinessCheck регистрирует readiness check
func (dm *DebugManager) RegisterReadinessCheck(check HealthCheck) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.readinessChecks = append(dm.readinessChecks, check)
}

// RunHealthChecks выполняет все health checks
func (dm *DebugManager) RunHealthChecks(ctx context.Context) HealthCheckResult {
	dm.mu.RLock()
	checks := append([]HealthCheck(nil), dm.healthChecks...)
	dm.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, dm.config.CheckTimeout)
	defer cancel()

	result := HealthCheckResult{
		Status:    "healthy",
		Checks:    make(map[string]CheckResult, len(checks)),
		Timestamp: time.Now(),
	}

	for _, check := range checks {
		start := time.Now()
		err := check.Check(ctx)

		cr := CheckResult{Status: "healthy", Duration: time.Since(start)}
		if err != nil {
			cr.Status = "unhealthy"
			cr.Message = err.Error()
			result.Status = "unhealthy"
			dm.logger.Warn("health check failed",
				zap.String("check", check.Name()),
				zap.Error(err),
			)
		}
		result.Checks[check.Name()] = cr
	}

	return result
}

// HealthCheckHandler возвращает Gin handler для health check
func (dm *DebugManager) HealthCheckHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		result := dm.RunHealthChecks(c.Request.Context())
		if result.Status != "healthy" {
			c.JSON(http.StatusServiceUnavailable, result)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// ReadinessCheckHandler возвращает Gin handler для readiness check
func (dm *DebugManager) ReadinessCheckHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), dm.config.CheckTimeout)
		defer cancel()

		dm.mu.RLock()
		checks := append([]HealthCheck(nil), dm.readinessChecks...)
		dm.mu.RUnlock()

		for _, check := range checks {
			if err := check.Check(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "check": check.Name()})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}

// HealthCheck интерфейс для health checks
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// HealthCheckResult результат health check
type HealthCheckResult struct {
	Status    string                 `json:"status"`
	Checks    map[string]CheckResult `json:"checks"`
	Timestamp time.Time              `json:"timestamp"`
}

// CheckResult результат отдельной проверки
type CheckResult struct {
	Status   string        `json:"status"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration"`
}

// ComponentHealthCheck проверка компонента, реализующего core.HealthCheckable
// (например, хранилища)
type ComponentHealthCheck struct {
	name      string
	checkable core.HealthCheckable
}

// NewComponentHealthCheck создает проверку компонента
func NewComponentHealthCheck(name string, checkable core.HealthCheckable) *ComponentHealthCheck {
	return &ComponentHealthCheck{name: name, checkable: checkable}
}

// Name возвращает имя проверки
func (h *ComponentHealthCheck) Name() string {
	return h.name
}

// Check выполняет проверку
func (h *ComponentHealthCheck) Check(ctx context.Context) error {
	if h.checkable == nil {
		return fmt.Errorf("component %s is not configured", h.name)
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := h.checkable.HealthCheck(ctx); err != nil {
		return fmt.Errorf("%s health check failed: %w", h.name, err)
	}
	return nil
}

// FuncHealthCheck проверка на основе функции
type FuncHealthCheck struct {
	name      string
	checkFunc func(ctx context.Context) error
}

// NewFuncHealthCheck создает новый FuncHealthCheck
func NewFuncHealthCheck(name string, checkFunc func(ctx context.Context) error) *FuncHealthCheck {
	return &FuncHealthCheck{name: name, checkFunc: checkFunc}
}

// Name возвращает имя проверки
func (h *FuncHealthCheck) Name() string {
	return h.name
}

// Check выполняет проверку
func (h *FuncHealthCheck) Check(ctx context.Context) error {
	if h.checkFunc == nil {
		return fmt.Errorf("check function is nil")
	}
	return h.checkFunc(ctx)
}
