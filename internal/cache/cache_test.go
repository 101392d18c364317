package cache

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestKeyForIsDeterministic(t *testing.T) {
	a := KeyFor([]byte("hello"), []byte("world"))
	b := KeyFor([]byte("hello"), []byte("world"))
	require.Equal(t, a, b)

	c := KeyFor([]byte("hello"), []byte("there"))
	require.NotEqual(t, a, c)
}

func TestSQLiteStoreGetMiss(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT source FROM compile_cache WHERE key = \?`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"source"}))

	store := &SQLiteStore{db: db}
	source, ok, err := store.Get(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, source)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteStoreGetHit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT source FROM compile_cache WHERE key = \?`).
		WithArgs("abc").
		WillReturnRows(sqlmock.NewRows([]string{"source"}).AddRow("local function score() end"))

	store := &SQLiteStore{db: db}
	source, ok, err := store.Get(context.Background(), "abc")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "local function score() end", source)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteStorePut(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO compile_cache`).
		WithArgs("abc", "source").
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := &SQLiteStore{db: db}
	require.NoError(t, store.Put(context.Background(), "abc", "source"))
	require.NoError(t, mock.ExpectationsWereMet())
}
