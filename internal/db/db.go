package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// Dialect selects SQL placeholders and migration sets.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// Conn is the slice of a database handle the repositories need. *DB (pgx) and *SQLiteDB
// both implement it.
type Conn interface {
	Dialect() Dialect
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) error
	ExecRows(ctx context.Context, sql string, args ...any) (int64, error)
	QueryRow(ctx context.Context, sql string, args ...any) Row
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
	Close()
}

type Row interface {
	Scan(dest ...any) error
}

type Rows interface {
	Close()
	Err() error
	Next() bool
	Scan(dest ...any) error
}

// Open picks a backend from the URL scheme: postgres:// or postgresql:// use pgx,
// sqlite://path and file: URLs use SQLite.
func Open(ctx context.Context, databaseURL string) (Conn, error) {
	u := strings.TrimSpace(databaseURL)
	switch {
	case strings.HasPrefix(u, "postgres://"), strings.HasPrefix(u, "postgresql://"):
		d, err := OpenPostgres(ctx, u)
		if err != nil {
			return nil, err
		}
		return d, nil
	case strings.HasPrefix(u, "sqlite://"), strings.HasPrefix(u, "file:"), strings.HasSuffix(u, ".db"):
		s, err := OpenSQLite(ctx, strings.TrimPrefix(u, "sqlite://"))
		if err != nil {
			return nil, err
		}
		return s, nil
	case u == "":
		return nil, errors.New("db: empty database url")
	default:
		return nil, fmt.Errorf("db: unsupported database url scheme in %q", redact(u))
	}
}

// IsNotFound reports a single-row query that matched nothing, for either backend.
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows)
}

func pingTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, 3*time.Second)
}

// redact drops userinfo so passwords in DSNs never reach logs or errors.
func redact(u string) string {
	at := strings.LastIndex(u, "@")
	scheme := strings.Index(u, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return u
	}
	return u[:scheme+3] + "***" + u[at:]
}
