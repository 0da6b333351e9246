// Package sqlite is the default credential store, backed by an embedded
// SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/realfinance/estate-api/internal/infrastructure/db/sqlite/migrations"
)

// DB wraps the SQL handle so callers can migrate and close it as one unit.
type DB struct {
	SqlDB *sql.DB
	log   zerolog.Logger
}

// New opens the database at path with WAL journaling, foreign keys and a
// busy timeout applied to every connection.
func New(path string, log zerolog.Logger) (*DB, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite allows a single writer; one connection keeps writes serialised.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{SqlDB: db, log: log}, nil
}

func dsn(path string) string {
	params := url.Values{}
	params.Add("_pragma", "journal_mode(WAL)")
	params.Add("_pragma", "foreign_keys(1)")
	params.Add("_pragma", "busy_timeout(5000)")

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return "file:" + strings.TrimPrefix(path, "file:") + sep + params.Encode()
}

// Migrate applies pending schema migrations.
func (d *DB) Migrate(ctx context.Context) error {
	return migrations.Run(ctx, d.SqlDB, d.log.With().Str("component", "migrations").Logger())
}

func (d *DB) Close() error {
	return d.SqlDB.Close()
}
