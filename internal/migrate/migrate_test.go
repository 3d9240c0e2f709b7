package migrate

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/teesched/internal/db"
)

func TestFiles(t *testing.T) {
	for _, d := range []db.Dialect{db.Postgres, db.SQLite} {
		files, err := Files(d)
		require.NoError(t, err)
		assert.Equal(t, []string{"001_bookings.sql"}, files, d)
	}

	_, err := Files(db.Dialect("mysql"))
	assert.Error(t, err)
}

func TestUpIsIdempotentOnSQLite(t *testing.T) {
	ctx := context.Background()
	conn, err := db.OpenSQLite(ctx, filepath.Join(t.TempDir(), "m.db"))
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, Up(ctx, conn))
	require.NoError(t, Up(ctx, conn))

	var n int
	require.NoError(t, conn.QueryRow(ctx, `SELECT COUNT(1) FROM schema_migrations`).Scan(&n))
	assert.Equal(t, 1, n)

	require.NoError(t, conn.Exec(ctx, `INSERT INTO bookings (owner, facility, target_date, target_time, participants, secret) VALUES (?, ?, ?, ?, ?, ?)`,
		"alice", "Pine Valley", "2026/10/27", "07:40", "Alice,Bob", "00ff"))
	require.NoError(t, conn.QueryRow(ctx, `SELECT attempts FROM bookings WHERE owner = ?`, "alice").Scan(&n))
	assert.Equal(t, 0, n)
}
