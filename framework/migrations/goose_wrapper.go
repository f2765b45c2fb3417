// Package migrations предоставляет обертку над goose для управления схемой
// таблиц SQL хранилища. Миграции встроены в бинарник и выбираются по диалекту.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
)

//go:embed sql/postgres/*.sql sql/sqlite/*.sql
var embedded embed.FS

// MigrationStatus представляет статус миграции
type MigrationStatus struct {
	Version   int64
	Name      string
	AppliedAt *time.Time
	Status    string // "pending", "applied"
}

// MigrationResult результат применения или отката одной миграции
type MigrationResult struct {
	Version   int64
	Name      string
	Direction string
	Duration  time.Duration
}

// Runner применяет встроенные миграции к БД
type Runner struct {
	provider *goose.Provider
	dialect  string
}

// NewRunner создает Runner для диалекта "postgres" или "sqlite"
func NewRunner(db *sql.DB, dialect string) (*Runner, error) {
	gooseDialect, dir, err := resolveDialect(dialect)
	if err != nil {
		return nil, err
	}

	fsys, err := fs.Sub(embedded, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	provider, err := goose.NewProvider(gooseDialect, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration provider: %w", err)
	}

	return &Runner{provider: provider, dialect: dialect}, nil
}

func resolveDialect(dialect string) (goose.Dialect, string, error) {
	switch dialect {
	case "postgres", "postgresql", "pgx":
		return goose.DialectPostgres, "sql/postgres", nil
	case "sqlite", "sqlite3":
		return goose.DialectSQLite3, "sql/sqlite", nil
	default:
		return "", "", fmt.Errorf("unsupported migration dialect: %s", dialect)
	}
}

// Up применяет все pending миграции
func (r *Runner) Up(ctx context.Context) ([]MigrationResult, error) {
	results, err := r.provider.Up(ctx)
	if err != nil {
		return convertResults(results), fmt.Errorf("failed to run migrations: %w", err)
	}
	return convertResults(results), nil
}

// UpBy применяет не более steps pending миграций
func (r *Runner) UpBy(ctx context.Context, steps int) ([]MigrationResult, error) {
	if steps <= 0 {
		return r.Up(ctx)
	}

	var applied []MigrationResult
	for i := 0; i < steps; i++ {
		result, err := r.provider.UpByOne(ctx)
		if err != nil {
			if errors.Is(err, goose.ErrNoNextVersion) {
				break
			}
			return applied, fmt.Errorf("failed to run migrations: %w", err)
		}
		applied = append(applied, convertResults([]*goose.MigrationResult{result})...)
	}
	return applied, nil
}

// Down откатывает steps последних миграций
func (r *Runner) Down(ctx context.Context, steps int) ([]MigrationResult, error) {
	if steps <= 0 {
		steps = 1
	}

	var rolledBack []MigrationResult
	for i := 0; i < steps; i++ {
		result, err := r.provider.Down(ctx)
		if err != nil {
			if errors.Is(err, goose.ErrNoNextVersion) {
				break
			}
			return rolledBack, fmt.Errorf("failed to rollback migration: %w", err)
		}
		rolledBack = append(rolledBack, convertResults([]*goose.MigrationResult{result})...)
	}
	return rolledBack, nil
}

// Status возвращает статус всех миграций
func (r *Runner) Status(ctx context.Context) ([]MigrationStatus, error) {
	statuses, err := r.provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get migration status: %w", err)
	}

	out := make([]MigrationStatus, 0, len(statuses))
	for _, s := range statuses {
		status := MigrationStatus{
			Version: s.Source.Version,
			Name:    filepath.Base(s.Source.Path),
			Status:  "pending",
		}
		if s.State == goose.StateApplied {
			appliedAt := s.AppliedAt
			status.AppliedAt = &appliedAt
			status.Status = "applied"
		}
		out = append(out, status)
	}
	return out, nil
}

// Version возвращает текущую версию схемы
func (r *Runner) Version(ctx context.Context) (int64, error) {
	version, err := r.provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}
	return version, nil
}

func convertResults(results []*goose.MigrationResult) []MigrationResult {
	out := make([]MigrationResult, 0, len(results))
	for _, r := range results {
		if r == nil || r.Source == nil {
			continue
		}
		out = append(out, MigrationResult{
			Version:   r.Source.Version,
			Name:      filepath.Base(r.Source.Path),
			Direction: r.Direction,
			Duration:  r.Duration,
		})
	}
	return out
}
