package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akriventsev/potter-repository/framework/persistence"
)

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := NewSQLStore(sqlx.NewDb(db, "sqlite"), SQLiteDialect{}, SQLConfig{Dialect: "sqlite"})
	s.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return s, mock
}

func TestSQLStore_CommitSuccess(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO orders (id, data, created_at, updated_at) VALUES (?, ?, ?, ?)")).
		WithArgs("a", `{"total":1}`, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE orders SET data = ?, updated_at = ? WHERE id = ?")).
		WithArgs(`{"total":2}`, sqlmock.AnyArg(), "b").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.Commit(context.Background(), []persistence.Change{
		insert("orders", "a", `{"total":1}`),
		update("orders", "b", `{"total":2}`),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_CommitEmptyIsNoop(t *testing.T) {
	s, mock := newMockStore(t)
	require.NoError(t, s.Commit(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_CommitFailures(t *testing.T) {
	tests := []struct {
		name   string
		expect func(mock sqlmock.Sqlmock)
		check  func(error) bool
	}{
		{
			name: "begin fails",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin().WillReturnError(errors.New("connection refused"))
			},
			check: persistence.IsPersistence,
		},
		{
			name: "insert fails",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec("INSERT INTO orders").WillReturnError(errors.New("disk I/O error"))
				mock.ExpectRollback()
			},
			check: persistence.IsPersistence,
		},
		{
			name: "update matches no rows",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec("INSERT INTO orders").WillReturnResult(sqlmock.NewResult(1, 1))
				mock.ExpectExec("UPDATE orders").WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectRollback()
			},
			check: persistence.IsNotFound,
		},
		{
			name: "commit fails",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec("INSERT INTO orders").WillReturnResult(sqlmock.NewResult(1, 1))
				mock.ExpectExec("UPDATE orders").WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit().WillReturnError(errors.New("database is locked"))
			},
			check: persistence.IsPersistence,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStore(t)
			tt.expect(mock)

			err := s.Commit(context.Background(), []persistence.Change{
				insert("orders", "a", `{}`),
				update("orders", "b", `{}`),
			})
			require.Error(t, err)
			assert.True(t, tt.check(err), err.Error())
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSQLStore_Load(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, data FROM orders WHERE id = ?")).
		WithArgs("a").
		WillReturnRows(sqlmock.NewRows([]string{"id", "data"}).AddRow("a", []byte(`{"total":1}`)))
	mock.ExpectQuery("SELECT id, data FROM orders").
		WithArgs("b").
		WillReturnRows(sqlmock.NewRows([]string{"id", "data"}))
	mock.ExpectQuery("SELECT id, data FROM orders").
		WithArgs("c").
		WillReturnError(errors.New("broken pipe"))

	data, found, err := s.Load(context.Background(), "orders", "a")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `{"total":1}`, string(data))

	_, found, err = s.Load(context.Background(), "orders", "b")
	require.NoError(t, err)
	assert.False(t, found)

	_, _, err = s.Load(context.Background(), "orders", "c")
	assert.True(t, persistence.IsPersistence(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_QueryFailure(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT id, data FROM orders").WillReturnError(errors.New("timeout"))

	_, err := s.Query(context.Background(), "orders", nil)
	assert.True(t, persistence.IsPersistence(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_RejectsDanglingNot(t *testing.T) {
	s, mock := newMockStore(t)

	_, err := s.Query(context.Background(), "orders", persistence.Where("total", persistence.Gt, 1).Or().Not())
	assert.True(t, persistence.IsValidation(err))

	_, err = s.Query(context.Background(), "orders", persistence.NewPredicate().Not())
	assert.True(t, persistence.IsValidation(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_RejectsInvalidCollection(t *testing.T) {
	s, mock := newMockStore(t)

	_, err := s.Query(context.Background(), "orders; DROP TABLE orders", nil)
	assert.True(t, persistence.IsValidation(err))

	mock.ExpectBegin()
	mock.ExpectRollback()
	err = s.Commit(context.Background(), []persistence.Change{insert("bad-name", "a", `{}`)})
	assert.True(t, persistence.IsValidation(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_BuildQueryPostgres(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewSQLStore(sqlx.NewDb(db, "pgx"), PostgresDialect{}, SQLConfig{Dialect: "postgres", SchemaName: "public"})
	since := time.Date(2024, 5, 19, 0, 0, 0, 0, time.UTC)

	p := persistence.Where("total", persistence.Gt, 10).
		And().Where("status", persistence.In, []string{"paid", "shipped"}).
		Or().Not().Where("placed_at", persistence.Gte, since).
		And().Where("customer.name", persistence.IsNotNull, nil)

	query, args, err := s.BuildQuery("orders", p)
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT id, data FROM public.orders WHERE "+
			"((data->>'total')::double precision > $1 AND data->>'status' IN ($2, $3)) OR "+
			"(NOT ((data->>'placed_at')::timestamptz >= $4) AND data#>>'{customer,name}' IS NOT NULL) "+
			"ORDER BY id",
		query)
	assert.Equal(t, []interface{}{10.0, "paid", "shipped", since}, args)
}

func TestSQLStore_BuildQuerySQLite(t *testing.T) {
	s, _ := newMockStore(t)
	since := time.Date(2024, 5, 19, 0, 0, 0, 0, time.UTC)

	query, args, err := s.BuildQuery("orders", persistence.Where("placed_at", persistence.Between, []time.Time{since, since.AddDate(0, 0, 1)}).
		And().Where(persistence.IDField, persistence.NotIn, []string{"a"}))
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT id, data FROM orders WHERE "+
			"(julianday(CASE WHEN json_type(data, '$.placed_at') IN ('text') THEN json_extract(data, '$.placed_at') END) "+
			"BETWEEN julianday(?) AND julianday(?) AND id NOT IN (?)) "+
			"ORDER BY id",
		query)
	assert.Equal(t, []interface{}{"2024-05-19T00:00:00Z", "2024-05-20T00:00:00Z", "a"}, args)
}
