package datastores

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/oaiiae/contacts-api/datastores/migrations"
)

const migrationTable = "schema_migrations"

// applyMigrations executes the embedded migrations of d at most once per file.
func applyMigrations(ctx context.Context, db *sql.DB, d dialect) error {
	return applyMigrationsFS(ctx, db, d, migrations.FS, d.name)
}

func applyMigrationsFS(ctx context.Context, db *sql.DB, d dialect, fsys fs.FS, root string) error {
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	_, err = db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+migrationTable+` (
    name       TEXT PRIMARY KEY,
    applied_at BIGINT NOT NULL
)`)
	if err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, file := range files {
		if err := applyMigration(ctx, db, d, fsys, path.Join(root, file)); err != nil {
			return fmt.Errorf("migration %s: %w", file, err)
		}
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, d dialect, fsys fs.FS, name string) error {
	content, err := fs.ReadFile(fsys, name)
	if err != nil {
		return err
	}
	return withTx(ctx, db, func(tx *sql.Tx) error {
		var found int
		err := tx.QueryRowContext(ctx, d.rebind(`SELECT 1 FROM `+migrationTable+` WHERE name = ?`), name).Scan(&found)
		switch {
		case err == nil:
			return nil
		case err != sql.ErrNoRows:
			return fmt.Errorf("check applied: %w", err)
		}
		if _, err := tx.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("exec: %w", err)
		}
		_, err = tx.ExecContext(ctx, d.rebind(`INSERT INTO `+migrationTable+` (name, applied_at) VALUES (?, ?)`),
			name, time.Now().UTC().UnixMilli())
		if err != nil {
			return fmt.Errorf("record applied: %w", err)
		}
		return nil
	})
}

// withTx runs fn in a transaction committed when fn returns nil.
func withTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
