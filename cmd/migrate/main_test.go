package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/totalaud/contact-safety/internal/pkg/distlock"
)

func writeMigrations(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func TestMigrationFiles_SortedSQLOnly(t *testing.T) {
	dir := writeMigrations(t, map[string]string{
		"002_b.sql": "SELECT 2;",
		"001_a.sql": "SELECT 1;",
		"README.md": "not sql",
	})
	files, err := migrationFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_a.sql", "002_b.sql"}, files)
}

func TestApplyMigrations_SkipsApplied(t *testing.T) {
	dir := writeMigrations(t, map[string]string{
		"001_a.sql": "CREATE TABLE a (id INT);",
		"002_b.sql": "CREATE TABLE b (id INT);",
	})

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT name FROM schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("001_a.sql"))
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TABLE b`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO schema_migrations").WithArgs("002_b.sql").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	var out bytes.Buffer
	ok, failed, err := applyMigrations(db, dir, &out)
	require.NoError(t, err)
	assert.Equal(t, 1, ok)
	assert.Equal(t, 0, failed)
	assert.Contains(t, out.String(), "002_b.sql ... OK")
	assert.NotContains(t, out.String(), "001_a.sql")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyMigrations_FailureRollsBackAndContinues(t *testing.T) {
	dir := writeMigrations(t, map[string]string{
		"001_bad.sql":  "CREATE TABLE broken (;",
		"002_good.sql": "CREATE TABLE good (id INT);",
	})

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT name FROM schema_migrations").WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TABLE broken`).WillReturnError(errors.New("syntax error"))
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TABLE good`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO schema_migrations").WithArgs("002_good.sql").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	var out bytes.Buffer
	ok, failed, err := applyMigrations(db, dir, &out)
	require.NoError(t, err)
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, failed)
	assert.Contains(t, out.String(), "ERROR: syntax error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyMigrations_ShippedSchema(t *testing.T) {
	files, err := migrationFiles(filepath.Join("..", "..", "migrations"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	data, err := os.ReadFile(filepath.Join("..", "..", "migrations", files[0]))
	require.NoError(t, err)
	assert.Contains(t, string(data), "UNIQUE (email_hash, scope)")
}

func TestWithLock_ExclusiveAcrossRuns(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	ctx := context.Background()

	holder := distlock.NewRedisLock(rdb, lockKey, time.Minute)
	ok, err := holder.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ran := false
	err = withLock(ctx, distlock.NewRedisLock(rdb, lockKey, time.Minute), func() error {
		ran = true
		return nil
	})
	assert.ErrorIs(t, err, errLocked)
	assert.False(t, ran)

	require.NoError(t, holder.Release(ctx))
	err = withLock(ctx, distlock.NewRedisLock(rdb, lockKey, time.Minute), func() error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.False(t, mr.Exists("lock:"+lockKey), "lock released after the run")
}
