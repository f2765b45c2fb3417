package store

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/akriventsev/potter-repository/framework/persistence"

	// Регистрация database/sql драйверов
	_ "github.com/jackc/pgx/v5/stdlib"
)

func init() {
	// sqlx не знает драйвер modernc.org/sqlite по имени
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Dialect описывает различия SQL диалектов при работе с JSON документами
type Dialect interface {
	// Name возвращает имя диалекта
	Name() string
	// DriverName возвращает имя database/sql драйвера
	DriverName() string
	// FieldExpr возвращает выражение для поля документа с приведением к kind
	FieldExpr(field string, kind persistence.Kind) string
	// ValueExpr возвращает выражение для плейсхолдера значения kind
	ValueExpr(kind persistence.Kind) string
	// ValueArg преобразует нормализованное значение в аргумент запроса
	ValueArg(value interface{}, kind persistence.Kind) interface{}
	// TableName возвращает квалифицированное имя таблицы
	TableName(schema, table string) string
	// IsConstraintViolation проверяет, что ошибка нарушает ограничение целостности
	IsConstraintViolation(err error) bool
}

// DialectByName возвращает диалект по имени
func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "postgres", "postgresql", "pgx":
		return PostgresDialect{}, nil
	case "sqlite", "sqlite3":
		return SQLiteDialect{}, nil
	default:
		return nil, fmt.Errorf("unknown sql dialect: %s", name)
	}
}

// PostgresDialect диалект PostgreSQL (JSONB колонка data)
type PostgresDialect struct{}

// Name возвращает имя диалекта
func (PostgresDialect) Name() string { return "postgres" }

// DriverName возвращает имя драйвера pgx stdlib
func (PostgresDialect) DriverName() string { return "pgx" }

// FieldExpr возвращает выражение data->>'field' с приведением типа
func (PostgresDialect) FieldExpr(field string, kind persistence.Kind) string {
	if field == persistence.IDField {
		return "id"
	}

	var expr string
	parts := strings.Split(field, ".")
	if len(parts) == 1 {
		expr = fmt.Sprintf("data->>'%s'", field)
	} else {
		expr = fmt.Sprintf("data#>>'{%s}'", strings.Join(parts, ","))
	}

	switch kind {
	case persistence.KindNumber:
		return fmt.Sprintf("(%s)::double precision", expr)
	case persistence.KindBool:
		return fmt.Sprintf("(%s)::boolean", expr)
	case persistence.KindTime:
		return fmt.Sprintf("(%s)::timestamptz", expr)
	}
	return expr
}

// ValueExpr возвращает плейсхолдер
func (PostgresDialect) ValueExpr(kind persistence.Kind) string { return "?" }

// ValueArg возвращает значение без изменений
func (PostgresDialect) ValueArg(value interface{}, kind persistence.Kind) interface{} {
	return value
}

// TableName возвращает schema.table
func (PostgresDialect) TableName(schema, table string) string {
	if schema == "" {
		return table
	}
	return schema + "." + table
}

// IsConstraintViolation проверяет SQLSTATE класса 23 (integrity constraint violation)
func (PostgresDialect) IsConstraintViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, "23")
	}
	return false
}

// SQLiteDialect диалект SQLite (JSON1, колонка data с текстом JSON)
type SQLiteDialect struct{}

// Name возвращает имя диалекта
func (SQLiteDialect) Name() string { return "sqlite" }

// DriverName возвращает имя драйвера modernc.org/sqlite
func (SQLiteDialect) DriverName() string { return "sqlite" }

// FieldExpr возвращает json_extract(data, '$.field').
// Значение другого JSON типа заменяется на NULL: сравнение дает UNKNOWN, как и в памяти.
// Время сравнивается через julianday, чтобы не зависеть от формата дробных секунд.
func (SQLiteDialect) FieldExpr(field string, kind persistence.Kind) string {
	if field == persistence.IDField {
		return "id"
	}
	path := "$." + field
	expr := fmt.Sprintf("json_extract(data, '%s')", path)

	var types string
	switch kind {
	case persistence.KindString, persistence.KindTime:
		types = "'text'"
	case persistence.KindNumber:
		types = "'integer', 'real'"
	case persistence.KindBool:
		types = "'true', 'false'"
	default:
		return expr
	}
	guarded := fmt.Sprintf("CASE WHEN json_type(data, '%s') IN (%s) THEN %s END", path, types, expr)
	if kind == persistence.KindTime {
		return fmt.Sprintf("julianday(%s)", guarded)
	}
	return guarded
}

// ValueExpr возвращает плейсхолдер
func (SQLiteDialect) ValueExpr(kind persistence.Kind) string {
	if kind == persistence.KindTime {
		return "julianday(?)"
	}
	return "?"
}

// ValueArg форматирует время в RFC3339
func (SQLiteDialect) ValueArg(value interface{}, kind persistence.Kind) interface{} {
	if t, ok := value.(time.Time); ok {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return value
}

// TableName возвращает имя таблицы (схемы в SQLite не используются)
func (SQLiteDialect) TableName(schema, table string) string {
	return table
}

// IsConstraintViolation проверяет SQLITE_CONSTRAINT и его расширенные коды
func (SQLiteDialect) IsConstraintViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
	}
	return false
}

// buildWhere строит WHERE clause для предиката.
// Условия внутри OR-групп соединяются AND, группы соединяются OR.
func buildWhere(dialect Dialect, predicate *persistence.Predicate) (string, []interface{}, error) {
	if err := predicate.Validate(); err != nil {
		return "", nil, err
	}
	if predicate.IsEmpty() {
		return "", nil, nil
	}

	var groups []string
	var args []interface{}
	for _, group := range predicate.Groups() {
		parts := make([]string, 0, len(group))
		for _, cond := range group {
			part, condArgs, err := buildCondition(dialect, cond)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, part)
			args = append(args, condArgs...)
		}
		groups = append(groups, "("+strings.Join(parts, " AND ")+")")
	}

	return "WHERE " + strings.Join(groups, " OR "), args, nil
}

func buildCondition(dialect Dialect, cond persistence.Condition) (string, []interface{}, error) {
	var part string
	var args []interface{}

	switch cond.Operator {
	case persistence.IsNull, persistence.IsNotNull:
		part = fmt.Sprintf("%s %s", dialect.FieldExpr(cond.Field, persistence.KindInvalid), cond.Operator)
	case persistence.In, persistence.NotIn:
		values, kind, err := persistence.NormalizedValues(cond.Value)
		if err != nil {
			return "", nil, persistence.NewValidationError("%s on %s: %v", cond.Operator, cond.Field, err)
		}
		placeholders := make([]string, len(values))
		for i, v := range values {
			placeholders[i] = dialect.ValueExpr(kind)
			args = append(args, dialect.ValueArg(v, kind))
		}
		part = fmt.Sprintf("%s %s (%s)", dialect.FieldExpr(cond.Field, kind), cond.Operator, strings.Join(placeholders, ", "))
	case persistence.Between:
		values, kind, err := persistence.NormalizedValues(cond.Value)
		if err != nil {
			return "", nil, persistence.NewValidationError("BETWEEN on %s: %v", cond.Field, err)
		}
		part = fmt.Sprintf("%s BETWEEN %s AND %s", dialect.FieldExpr(cond.Field, kind), dialect.ValueExpr(kind), dialect.ValueExpr(kind))
		args = append(args, dialect.ValueArg(values[0], kind), dialect.ValueArg(values[1], kind))
	case persistence.Like:
		part = fmt.Sprintf("%s LIKE ?", dialect.FieldExpr(cond.Field, persistence.KindString))
		args = append(args, cond.Value)
	default:
		value, kind := persistence.Normalize(cond.Value)
		part = fmt.Sprintf("%s %s %s", dialect.FieldExpr(cond.Field, kind), cond.Operator, dialect.ValueExpr(kind))
		args = append(args, dialect.ValueArg(value, kind))
	}

	if cond.Negate {
		part = fmt.Sprintf("NOT (%s)", part)
	}
	return part, args, nil
}
