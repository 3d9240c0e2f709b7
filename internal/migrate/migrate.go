package migrate

import (
	"context"
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/example/teesched/internal/db"
)

//go:embed postgres/*.sql sqlite/*.sql
var fs embed.FS

// Up applies every embedded migration for the connection's dialect that is not yet
// recorded in schema_migrations. Running it twice is a no-op.
func Up(ctx context.Context, d db.Conn) error {
	dir := string(d.Dialect())
	files, err := Files(d.Dialect())
	if err != nil {
		return err
	}

	if err := d.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY)`); err != nil {
		return err
	}

	ph := "$1"
	if d.Dialect() == db.SQLite {
		ph = "?"
	}

	for _, f := range files {
		var applied int
		if err := d.QueryRow(ctx, `SELECT COUNT(1) FROM schema_migrations WHERE version=`+ph, f).Scan(&applied); err != nil {
			return err
		}
		if applied > 0 {
			continue
		}

		b, err := fs.ReadFile(path.Join(dir, f))
		if err != nil {
			return err
		}

		if err := d.Exec(ctx, string(b)); err != nil {
			return fmt.Errorf("apply %s: %w", f, err)
		}
		if err := d.Exec(ctx, `INSERT INTO schema_migrations(version) VALUES (`+ph+`)`, f); err != nil {
			return err
		}
	}

	return nil
}

// Files lists the migration names for a dialect in apply order.
func Files(dialect db.Dialect) ([]string, error) {
	entries, err := fs.ReadDir(string(dialect))
	if err != nil {
		return nil, fmt.Errorf("migrate: no migrations for dialect %q: %w", dialect, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}
