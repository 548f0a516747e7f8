// Package sqlitemigrate применяет встроенные SQL-миграции к SQLite.
// Каждый файл *.sql выполняется не более одного раза; из файла берётся только
// секция "-- +migrate Up".
package sqlitemigrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

const table = "schema_migrations"

// Apply выполняет миграции из root внутри fsys в лексикографическом порядке.
func Apply(ctx context.Context, db *sql.DB, fsys fs.FS, root string) error {
	if db == nil {
		return errors.New("sqlitemigrate: db is required")
	}
	root = strings.TrimSpace(root)
	if root == "" {
		root = "."
	}

	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+table+` (
    name TEXT PRIMARY KEY,
    applied_at INTEGER NOT NULL
)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, name := range files {
		if err := applyOne(ctx, db, fsys, path.Join(root, name), name); err != nil {
			return err
		}
	}
	return nil
}

func applyOne(ctx context.Context, db *sql.DB, fsys fs.FS, file, name string) error {
	var one int
	err := db.QueryRowContext(ctx, `SELECT 1 FROM `+table+` WHERE name = ?`, name).Scan(&one)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("check migration %s: %w", name, err)
	}

	content, err := fs.ReadFile(fsys, file)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", name, err)
	}
	up := UpSection(string(content))

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", name, err)
	}
	if strings.TrimSpace(up) != "" {
		if _, err := tx.ExecContext(ctx, up); err != nil && !IsAlreadyExists(err) {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", name, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO `+table+` (name, applied_at) VALUES (?, ?)`,
		name, time.Now().UTC().UnixMilli(),
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record migration %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", name, err)
	}
	return nil
}

// UpSection возвращает SQL между "-- +migrate Up" и "-- +migrate Down".
// Файл без маркеров считается целиком Up-секцией.
func UpSection(content string) string {
	const upMark, downMark = "-- +migrate Up", "-- +migrate Down"
	start := strings.Index(content, upMark)
	if start == -1 {
		return content
	}
	rest := content[start+len(upMark):]
	if end := strings.Index(rest, downMark); end != -1 {
		return rest[:end]
	}
	return rest
}

// IsAlreadyExists — идемпотентный DDL (повторный CREATE / ADD COLUMN).
func IsAlreadyExists(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "duplicate column name")
}
