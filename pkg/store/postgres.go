package store

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS records (
	kind TEXT NOT NULL,
	id TEXT NOT NULL,
	data BYTEA NOT NULL,
	seq BIGSERIAL PRIMARY KEY,
	UNIQUE (kind, id)
);
CREATE TABLE IF NOT EXISTS record_index (
	kind TEXT NOT NULL,
	index_name TEXT NOT NULL,
	key TEXT NOT NULL,
	id TEXT NOT NULL,
	seq BIGSERIAL PRIMARY KEY
);
CREATE INDEX IF NOT EXISTS idx_record_index_lookup ON record_index(kind, index_name, key);
`

// NewPostgresBackend opens a Postgres-backed store via lib/pq.
func NewPostgresBackend(databaseURL string) (*SQLBackend, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, &StorageError{Op: "open", Err: err}
	}
	if _, err := db.Exec(postgresSchema); err != nil {
		_ = db.Close()
		return nil, &StorageError{Op: "init-schema", Err: err}
	}
	return &SQLBackend{
		db:          db,
		placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	}, nil
}

// NewPostgresBackendFromDB wraps an existing connection with $n placeholders.
// Used by tests with sqlmock.
func NewPostgresBackendFromDB(db *sql.DB) *SQLBackend {
	return &SQLBackend{
		db:          db,
		placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	}
}
