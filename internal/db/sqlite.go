package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteDB adapts database/sql + go-sqlite3 to Conn.
type SQLiteDB struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path. A single connection is kept
// so the scheduler and the API never race for the write lock; busy_timeout covers other
// processes holding it.
func OpenSQLite(ctx context.Context, path string) (*SQLiteDB, error) {
	dsn := sqliteDSN(path)
	if file := sqliteFile(path); file != "" && file != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
			return nil, fmt.Errorf("db: create sqlite directory: %w", err)
		}
	}

	d, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("db: open sqlite: %w", err)
	}
	d.SetMaxOpenConns(1)

	s := &SQLiteDB{db: d}
	if err := s.Ping(ctx); err != nil {
		d.Close()
		return nil, fmt.Errorf("db: ping sqlite: %w", err)
	}
	return s, nil
}

func sqliteDSN(path string) string {
	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	if !strings.Contains(dsn, "_busy_timeout") {
		dsn += sep + "_busy_timeout=5000"
		sep = "&"
	}
	if !strings.Contains(dsn, "_journal_mode") && !strings.Contains(dsn, ":memory:") {
		dsn += sep + "_journal_mode=WAL"
	}
	return dsn
}

func sqliteFile(path string) string {
	f := strings.TrimPrefix(path, "file:")
	if i := strings.Index(f, "?"); i >= 0 {
		f = f[:i]
	}
	return f
}

func (s *SQLiteDB) Dialect() Dialect { return SQLite }

func (s *SQLiteDB) Close() {
	_ = s.db.Close()
}

func (s *SQLiteDB) Ping(ctx context.Context) error {
	ctx, cancel := pingTimeout(ctx)
	defer cancel()
	return s.db.PingContext(ctx)
}

func (s *SQLiteDB) Exec(ctx context.Context, query string, args ...any) error {
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

func (s *SQLiteDB) ExecRows(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLiteDB) QueryRow(ctx context.Context, query string, args ...any) Row {
	return s.db.QueryRowContext(ctx, query, args...)
}

func (s *SQLiteDB) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return sqlRows{rows}, nil
}

// sqlRows drops the error from (*sql.Rows).Close to match pgx.Rows.
type sqlRows struct{ *sql.Rows }

func (r sqlRows) Close() { _ = r.Rows.Close() }
