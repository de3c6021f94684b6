package restostore

import (
	"database/sql"
	_ "embed"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// InitializeDatabase opens (creating if absent) the SQLite database at
// dbPath, enables WAL mode and a 5s busy timeout, and
// idempotently creates the restos/vans/sync_queue/sync_metadata tables.
func InitializeDatabase(dbPath string, logger *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logger.Error("failed to enable WAL mode", "error", err)
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		logger.Error("failed to enable foreign keys", "error", err)
		return nil, err
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logger.Error("failed to set busy timeout", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(5)

	logger.Info("applying schema")
	if _, err := db.Exec(schemaSQL); err != nil {
		logger.Error("failed to apply schema", "error", err)
		return nil, err
	}

	logger.Info("database initialized", "path", dbPath)
	return db, nil
}
