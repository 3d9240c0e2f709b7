package db

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "file:teesched.db?_busy_timeout=5000&_journal_mode=WAL", sqliteDSN("teesched.db"))
	assert.Equal(t, "file:x.db?mode=rwc&_busy_timeout=5000&_journal_mode=WAL", sqliteDSN("file:x.db?mode=rwc"))
	assert.Equal(t, "file::memory:?_busy_timeout=5000", sqliteDSN(":memory:"))
	assert.Equal(t, "/var/lib/teesched/t.db", sqliteFile("file:/var/lib/teesched/t.db?_busy_timeout=1"))
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "postgres://***@db:5432/tee", redact("postgres://tee:secret@db:5432/tee"))
	assert.Equal(t, "postgres://db/tee", redact("postgres://db/tee"))
}

func TestOpenRejectsUnknownScheme(t *testing.T) {
	_, err := Open(context.Background(), "mysql://u:p@h/db")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "p@h")

	_, err = Open(context.Background(), "  ")
	assert.Error(t, err)
}

func TestOpenSQLiteExecAndQuery(t *testing.T) {
	ctx := context.Background()
	conn, err := Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "nested", "t.db"))
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, SQLite, conn.Dialect())
	require.NoError(t, conn.Exec(ctx, `CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT)`))
	require.NoError(t, conn.Exec(ctx, `INSERT INTO kv (k, v) VALUES (?, ?), (?, ?)`, "a", "1", "b", "2"))

	n, err := conn.ExecRows(ctx, `DELETE FROM kv WHERE k = ?`, "a")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = conn.ExecRows(ctx, `DELETE FROM kv WHERE k = ?`, "a")
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	rows, err := conn.Query(ctx, `SELECT k, v FROM kv`)
	require.NoError(t, err)
	var got []string
	for rows.Next() {
		var k, v string
		require.NoError(t, rows.Scan(&k, &v))
		got = append(got, k+"="+v)
	}
	rows.Close()
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"b=2"}, got)

	var v string
	err = conn.QueryRow(ctx, `SELECT v FROM kv WHERE k = ?`, "zzz").Scan(&v)
	assert.True(t, IsNotFound(err))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(pgx.ErrNoRows))
	assert.True(t, IsNotFound(sql.ErrNoRows))
	assert.False(t, IsNotFound(nil))
}
