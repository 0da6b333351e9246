// Package migrations applies the embedded SQLite schema files in name order.
package migrations

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"

	"github.com/rs/zerolog"
)

//go:embed *.sql
var FS embed.FS

// ErrModified means a migration that was already applied has changed on disk.
var ErrModified = errors.New("applied migration was modified")

type migration struct {
	name     string
	body     string
	checksum string
}

// Run applies the embedded migrations.
func Run(ctx context.Context, db *sql.DB, log zerolog.Logger) error {
	return RunFS(ctx, db, FS, log)
}

// RunFS applies every *.sql file in fsys that schema_migrations does not list
// yet, each in its own transaction. Files that were applied before must still
// hash to the recorded checksum.
func RunFS(ctx context.Context, db *sql.DB, fsys fs.FS, log zerolog.Logger) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		name       TEXT PRIMARY KEY,
		checksum   TEXT NOT NULL,
		applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	pending, err := load(fsys)
	if err != nil {
		return err
	}
	recorded, err := checksums(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range pending {
		if sum, ok := recorded[m.name]; ok {
			if sum != m.checksum {
				return fmt.Errorf("%w: %s", ErrModified, m.name)
			}
			continue
		}
		if err := m.apply(ctx, db); err != nil {
			return fmt.Errorf("migration %s: %w", m.name, err)
		}
		log.Info().Str("migration", m.name).Str("checksum", m.checksum[:12]).Msg("migration applied")
	}
	return nil
}

func load(fsys fs.FS) ([]migration, error) {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(names)

	out := make([]migration, 0, len(names))
	for _, name := range names {
		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		sum := sha256.Sum256(body)
		out = append(out, migration{name: path.Base(name), body: string(body), checksum: hex.EncodeToString(sum[:])})
	}
	return out, nil
}

func checksums(ctx context.Context, db *sql.DB) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT name, checksum FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var name, sum string
		if err := rows.Scan(&name, &sum); err != nil {
			return nil, err
		}
		out[name] = sum
	}
	return out, rows.Err()
}

func (m migration) apply(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, m.body); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (name, checksum) VALUES (?, ?)`, m.name, m.checksum); err != nil {
		return err
	}
	return tx.Commit()
}
