package storage

import (
	"database/sql"
	"fmt"
)

// SchemaVersion is the latest schema version supported by the migrator.
const SchemaVersion = 1

// Migrate ensures the SQLite schema exists and is upgraded to SchemaVersion.
func Migrate(db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("migrate: db is nil")
	}

	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY);`)
	if err != nil {
		return fmt.Errorf("migrate: create schema_migrations: %w", err)
	}

	var current int
	err = db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations;`).Scan(&current)
	if err != nil {
		return fmt.Errorf("migrate: read current version: %w", err)
	}
	if current >= SchemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("migrate: begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	steps := []struct {
		name string
		sql  string
	}{
		{"create messages table", `
			CREATE TABLE IF NOT EXISTS messages (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				message_id TEXT UNIQUE NOT NULL,
				chat_id TEXT NOT NULL,
				sender TEXT NOT NULL,
				message TEXT NOT NULL,
				is_group INTEGER NOT NULL DEFAULT 0,
				is_bot INTEGER NOT NULL DEFAULT 0,
				timestamp TEXT NOT NULL,
				created_at TEXT NOT NULL
			);`},
		{"create conversations table", `
			CREATE TABLE IF NOT EXISTS conversations (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				chat_id TEXT UNIQUE NOT NULL,
				last_activity TEXT NOT NULL,
				message_count INTEGER NOT NULL DEFAULT 0,
				created_at TEXT NOT NULL
			);`},
		{"create mood_history table", `
			CREATE TABLE IF NOT EXISTS mood_history (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				mood_name TEXT NOT NULL,
				duration INTEGER NOT NULL,
				timestamp TEXT NOT NULL
			);`},
		{"create idx_messages_chat_ts", `CREATE INDEX IF NOT EXISTS idx_messages_chat_ts ON messages(chat_id, timestamp);`},
	}
	for _, st := range steps {
		if _, err := tx.Exec(st.sql); err != nil {
			return fmt.Errorf("migrate: %s: %w", st.name, err)
		}
	}

	_, err = tx.Exec(`INSERT INTO schema_migrations(version) VALUES (?);`, SchemaVersion)
	if err != nil {
		return fmt.Errorf("migrate: record schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migrate: commit transaction: %w", err)
	}
	return nil
}
