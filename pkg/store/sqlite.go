package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLBackend implements Backend on database/sql. It is used with the
// embedded sqlite driver for single-node production and, via the pq
// driver, against Postgres (see NewPostgresBackend).
type SQLBackend struct {
	db          *sql.DB
	placeholder func(int) string
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS records (
	kind TEXT NOT NULL,
	id TEXT NOT NULL,
	data BLOB NOT NULL,
	seq INTEGER PRIMARY KEY AUTOINCREMENT
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_records_kind_id ON records(kind, id);
CREATE TABLE IF NOT EXISTS record_index (
	kind TEXT NOT NULL,
	index_name TEXT NOT NULL,
	key TEXT NOT NULL,
	id TEXT NOT NULL,
	seq INTEGER PRIMARY KEY AUTOINCREMENT
);
CREATE INDEX IF NOT EXISTS idx_record_index_lookup ON record_index(kind, index_name, key);
`

// NewSQLiteBackend opens (or creates) an embedded sqlite database at path.
func NewSQLiteBackend(path string) (*SQLBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &StorageError{Op: "open", Err: err}
	}
	// Single writer; sqlite serializes writes anyway.
	db.SetMaxOpenConns(1)

	b := &SQLBackend{db: db, placeholder: func(int) string { return "?" }}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, &StorageError{Op: "init-schema", Err: err}
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=FULL;`); err != nil {
		_ = db.Close()
		return nil, &StorageError{Op: "init-pragma", Err: err}
	}
	return b, nil
}

// NewSQLBackend wraps an existing *sql.DB using ?-style placeholders.
// Used by tests with sqlmock.
func NewSQLBackend(db *sql.DB) *SQLBackend {
	return &SQLBackend{db: db, placeholder: func(int) string { return "?" }}
}

func (b *SQLBackend) ph(n int) []interface{} {
	out := make([]interface{}, n)
	for i := range out {
		out[i] = b.placeholder(i + 1)
	}
	return out
}

func (b *SQLBackend) Put(ctx context.Context, kind Kind, id string, record []byte) error {
	p := b.ph(3)
	query := fmt.Sprintf(
		`INSERT INTO records (kind, id, data) VALUES (%s, %s, %s) ON CONFLICT (kind, id) DO NOTHING`,
		p[0], p[1], p[2])
	if _, err := b.db.ExecContext(ctx, query, string(kind), id, record); err != nil {
		return &StorageError{Op: "put", Err: err}
	}
	return nil
}

func (b *SQLBackend) Get(ctx context.Context, kind Kind, id string) ([]byte, error) {
	p := b.ph(2)
	query := fmt.Sprintf(`SELECT data FROM records WHERE kind = %s AND id = %s`, p[0], p[1])

	var data []byte
	err := b.db.QueryRowContext(ctx, query, string(kind), id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, &StorageError{Op: "get", Err: err}
	}
	return data, nil
}

func (b *SQLBackend) Iter(ctx context.Context, kind Kind) ([][]byte, error) {
	p := b.ph(1)
	query := fmt.Sprintf(`SELECT data FROM records WHERE kind = %s ORDER BY seq`, p[0])

	rows, err := b.db.QueryContext(ctx, query, string(kind))
	if err != nil {
		return nil, &StorageError{Op: "iter", Err: err}
	}
	defer func() { _ = rows.Close() }()

	var out [][]byte
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, &StorageError{Op: "iter-scan", Err: err}
		}
		out = append(out, data)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "iter-rows", Err: err}
	}
	return out, nil
}

func (b *SQLBackend) DeleteByAgent(ctx context.Context, agentID string) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return &StorageError{Op: "erase-begin", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	// Records are opaque JSON; identify matches by scanning, delete by id.
	rows, err := tx.QueryContext(ctx, `SELECT kind, id, data FROM records`)
	if err != nil {
		return &StorageError{Op: "erase-scan", Err: err}
	}

	type target struct{ kind, id string }
	var targets []target
	for rows.Next() {
		var kind, id string
		var data []byte
		if err := rows.Scan(&kind, &id, &data); err != nil {
			_ = rows.Close()
			return &StorageError{Op: "erase-scan", Err: err}
		}
		if recordMentionsAgent(data, agentID) {
			targets = append(targets, target{kind, id})
		}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return &StorageError{Op: "erase-scan", Err: err}
	}
	_ = rows.Close()

	p := b.ph(2)
	delRecord := fmt.Sprintf(`DELETE FROM records WHERE kind = %s AND id = %s`, p[0], p[1])
	delIndex := fmt.Sprintf(`DELETE FROM record_index WHERE kind = %s AND id = %s`, p[0], p[1])
	for _, t := range targets {
		if _, err := tx.ExecContext(ctx, delRecord, t.kind, t.id); err != nil {
			return &StorageError{Op: "erase-delete", Err: err}
		}
		if _, err := tx.ExecContext(ctx, delIndex, t.kind, t.id); err != nil {
			return &StorageError{Op: "erase-delete-index", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &StorageError{Op: "erase-commit", Err: err}
	}
	return nil
}

func (b *SQLBackend) IndexAdd(ctx context.Context, kind Kind, index, key, id string) error {
	p := b.ph(4)
	query := fmt.Sprintf(
		`INSERT INTO record_index (kind, index_name, key, id) VALUES (%s, %s, %s, %s)`,
		p[0], p[1], p[2], p[3])
	if _, err := b.db.ExecContext(ctx, query, string(kind), index, key, id); err != nil {
		return &StorageError{Op: "index-add", Err: err}
	}
	return nil
}

func (b *SQLBackend) IndexLookup(ctx context.Context, kind Kind, index, key string) ([]string, error) {
	p := b.ph(3)
	query := fmt.Sprintf(
		`SELECT id FROM record_index WHERE kind = %s AND index_name = %s AND key = %s ORDER BY seq`,
		p[0], p[1], p[2])

	rows, err := b.db.QueryContext(ctx, query, string(kind), index, key)
	if err != nil {
		return nil, &StorageError{Op: "index-lookup", Err: err}
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, &StorageError{Op: "index-lookup-scan", Err: err}
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "index-lookup-rows", Err: err}
	}
	return ids, nil
}

func (b *SQLBackend) Close() error {
	return b.db.Close()
}
