package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/akriventsev/potter-repository/framework/core"
	"github.com/akriventsev/potter-repository/framework/persistence"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLConfig конфигурация для SQL хранилища
type SQLConfig struct {
	// Dialect "postgres" или "sqlite"
	Dialect    string
	DSN        string
	SchemaName string
	// Tables сопоставление коллекций таблицам (по умолчанию таблица = коллекция)
	Tables          map[string]string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // в секундах
}

// Validate проверяет корректность конфигурации
func (c SQLConfig) Validate() error {
	if c.DSN == "" {
		return fmt.Errorf("DSN cannot be empty")
	}
	if _, err := DialectByName(c.Dialect); err != nil {
		return err
	}
	if c.SchemaName != "" && !identifierPattern.MatchString(c.SchemaName) {
		return fmt.Errorf("invalid schema name: %s", c.SchemaName)
	}
	for collection, table := range c.Tables {
		if !identifierPattern.MatchString(table) {
			return fmt.Errorf("invalid table name %q for collection %s", table, collection)
		}
	}
	if c.MaxOpenConns <= 0 {
		return fmt.Errorf("MaxOpenConns must be greater than 0")
	}
	if c.MaxIdleConns <= 0 {
		return fmt.Errorf("MaxIdleConns must be greater than 0")
	}
	return nil
}

// DefaultSQLConfig возвращает конфигурацию SQL по умолчанию
func DefaultSQLConfig() SQLConfig {
	return SQLConfig{
		Dialect:         "postgres",
		SchemaName:      "public",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 300,
	}
}

// SQLStore хранилище JSON документов в реляционной БД.
// Каждая коллекция хранится в таблице (id, data, created_at, updated_at),
// таблицы создаются миграциями (см. framework/migrations).
type SQLStore struct {
	config  SQLConfig
	db      *sqlx.DB
	dialect Dialect
	now     func() time.Time
}

var _ persistence.Store = (*SQLStore)(nil)

// OpenSQLStore открывает соединение и создает SQL хранилище
func OpenSQLStore(ctx context.Context, config SQLConfig) (*SQLStore, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sql config: %w", err)
	}
	dialect, _ := DialectByName(config.Dialect)

	db, err := sqlx.Open(dialect.DriverName(), config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dialect.Name(), err)
	}

	maxOpen := config.MaxOpenConns
	if dialect.Name() == "sqlite" && strings.Contains(config.DSN, ":memory:") {
		// in-memory база SQLite существует только в пределах одного соединения
		maxOpen = 1
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(config.ConnMaxLifetime) * time.Second)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", dialect.Name(), err)
	}

	return NewSQLStore(db, dialect, config), nil
}

// NewSQLStore создает SQL хранилище поверх существующего соединения
func NewSQLStore(db *sqlx.DB, dialect Dialect, config SQLConfig) *SQLStore {
	return &SQLStore{
		config:  config,
		db:      db,
		dialect: dialect,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Start запускает адаптер (реализация core.Lifecycle)
func (s *SQLStore) Start(ctx context.Context) error {
	return nil
}

// Stop останавливает адаптер (реализация core.Lifecycle)
func (s *SQLStore) Stop(ctx context.Context) error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// IsRunning проверяет, запущен ли адаптер (реализация core.Lifecycle)
func (s *SQLStore) IsRunning() bool {
	return s.db != nil
}

// Name возвращает имя компонента (реализация core.Component)
func (s *SQLStore) Name() string {
	return s.dialect.Name() + "-store"
}

// Type возвращает тип компонента (реализация core.Component)
func (s *SQLStore) Type() core.ComponentType {
	return core.ComponentTypeStore
}

// HealthCheck проверяет соединение с БД (реализация core.HealthCheckable)
func (s *SQLStore) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// DB возвращает соединение (используется миграциями)
func (s *SQLStore) DB() *sql.DB {
	return s.db.DB
}

// Dialect возвращает диалект хранилища
func (s *SQLStore) Dialect() Dialect {
	return s.dialect
}

func (s *SQLStore) tableName(collection string) (string, error) {
	table := collection
	if mapped, ok := s.config.Tables[collection]; ok {
		table = mapped
	}
	if !identifierPattern.MatchString(table) {
		return "", persistence.NewValidationError("invalid collection name: %s", collection)
	}
	return s.dialect.TableName(s.config.SchemaName, table), nil
}

type documentRow struct {
	ID   string `db:"id"`
	Data []byte `db:"data"`
}

// Load возвращает документ по ID
func (s *SQLStore) Load(ctx context.Context, collection, id string) ([]byte, bool, error) {
	table, err := s.tableName(collection)
	if err != nil {
		return nil, false, err
	}

	query := s.db.Rebind(fmt.Sprintf("SELECT id, data FROM %s WHERE id = ?", table))

	var row documentRow
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, persistence.NewPersistenceError(err, fmt.Sprintf("failed to load %s/%s", collection, id))
	}
	return row.Data, true, nil
}

// Query возвращает документы, удовлетворяющие предикату, отсортированные по ID
func (s *SQLStore) Query(ctx context.Context, collection string, predicate *persistence.Predicate) ([][]byte, error) {
	query, args, err := s.BuildQuery(collection, predicate)
	if err != nil {
		return nil, err
	}

	var rows []documentRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, persistence.NewPersistenceError(err, fmt.Sprintf("failed to query %s", collection))
	}

	docs := make([][]byte, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, row.Data)
	}
	return docs, nil
}

// BuildQuery строит SQL запрос для предиката (экспортирован для тестирования)
func (s *SQLStore) BuildQuery(collection string, predicate *persistence.Predicate) (string, []interface{}, error) {
	table, err := s.tableName(collection)
	if err != nil {
		return "", nil, err
	}

	parts := []string{"SELECT id, data FROM", table}

	where, args, err := buildWhere(s.dialect, predicate)
	if err != nil {
		return "", nil, err
	}
	if where != "" {
		parts = append(parts, where)
	}
	parts = append(parts, "ORDER BY id")

	return s.db.Rebind(strings.Join(parts, " ")), args, nil
}

// Commit применяет изменения в одной транзакции.
// Нарушение ограничений возвращает ErrValidation, обновление отсутствующей
// строки ErrNotFound, прочие сбои ErrPersistence. При ошибке транзакция
// откатывается.
func (s *SQLStore) Commit(ctx context.Context, changes []persistence.Change) (err error) {
	if len(changes) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return persistence.NewPersistenceError(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := s.now()
	for _, change := range changes {
		if err = s.apply(ctx, tx, change, now); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return s.classify(err, "failed to commit transaction")
	}
	return nil
}

func (s *SQLStore) apply(ctx context.Context, tx *sqlx.Tx, change persistence.Change, now time.Time) error {
	table, err := s.tableName(change.Collection)
	if err != nil {
		return err
	}

	switch change.Kind {
	case persistence.ChangeInsert:
		query := tx.Rebind(fmt.Sprintf("INSERT INTO %s (id, data, created_at, updated_at) VALUES (?, ?, ?, ?)", table))
		if _, err := tx.ExecContext(ctx, query, change.ID, string(change.Data), now, now); err != nil {
			return s.classify(err, fmt.Sprintf("failed to insert %s/%s", change.Collection, change.ID))
		}
		return nil
	case persistence.ChangeUpdate:
		query := tx.Rebind(fmt.Sprintf("UPDATE %s SET data = ?, updated_at = ? WHERE id = ?", table))
		result, err := tx.ExecContext(ctx, query, string(change.Data), now, change.ID)
		if err != nil {
			return s.classify(err, fmt.Sprintf("failed to update %s/%s", change.Collection, change.ID))
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return persistence.NewPersistenceError(err, "failed to read affected rows")
		}
		if affected == 0 {
			return persistence.NewNotFoundError(change.Collection, change.ID)
		}
		return nil
	default:
		return persistence.NewValidationError("unknown change kind %q", change.Kind)
	}
}

func (s *SQLStore) classify(err error, message string) error {
	if s.dialect.IsConstraintViolation(err) {
		return persistence.WrapValidationError(err, message)
	}
	return persistence.NewPersistenceError(err, message)
}
