package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/docuforge/conversion-engine/internal/config"
)

// Open opens a database connection using the engine config.
func Open(cfg *config.Config) (*sql.DB, error) {
	var driver, dsn string
	switch cfg.Database.Driver {
	case "sqlite":
		driver = "sqlite3"
		dsn = cfg.Database.SQLite.Path
		if cfg.Database.SQLite.JournalMode != "" {
			dsn = fmt.Sprintf("%s?_journal_mode=%s", dsn, cfg.Database.SQLite.JournalMode)
		}
	case "postgres":
		driver = "postgres"
		dsn = cfg.Database.Postgres.DSN
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if cfg.Database.Driver == "sqlite" {
		db.SetMaxOpenConns(cfg.Database.SQLite.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(cfg.Database.Postgres.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.Postgres.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.Database.Postgres.ConnMaxLifetime)
	}

	return db, nil
}

// schema uses types every supported driver understands. Timestamps are stored
// as TIMESTAMP, UUIDs as TEXT.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS tenants (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		plan_tier TEXT NOT NULL DEFAULT 'free',
		contact_email TEXT,
		quota_bytes BIGINT NOT NULL DEFAULT 0,
		settings TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		parent_id TEXT,
		filename TEXT NOT NULL,
		storage_key TEXT NOT NULL,
		mime_type TEXT NOT NULL,
		extension TEXT NOT NULL,
		size_bytes BIGINT NOT NULL,
		sha256 TEXT NOT NULL,
		page_count INTEGER,
		search_text TEXT,
		thumbnail_key TEXT,
		metadata TEXT,
		deleted_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_tenant ON documents (tenant_id, deleted_at)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_parent ON documents (parent_id)`,
	`CREATE TABLE IF NOT EXISTS conversions (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		document_id TEXT NOT NULL,
		result_document_id TEXT,
		from_format TEXT NOT NULL,
		to_format TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		priority TEXT NOT NULL DEFAULT 'default',
		progress INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,
		error_kind TEXT,
		options TEXT,
		retry_count INTEGER NOT NULL DEFAULT 0,
		started_at TIMESTAMP,
		completed_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_conversions_tenant ON conversions (tenant_id)`,
	`CREATE INDEX IF NOT EXISTS idx_conversions_document ON conversions (document_id)`,
	`CREATE INDEX IF NOT EXISTS idx_conversions_status ON conversions (status)`,
}

// Migrate creates the schema if it does not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
