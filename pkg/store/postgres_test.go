package store

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresPutUsesConflictClause(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	b := NewPostgresBackendFromDB(db)

	mock.ExpectExec(`INSERT INTO records .*ON CONFLICT \(kind, id\) DO NOTHING`).
		WithArgs("attestation", "a1", []byte(`{}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, b.Put(context.Background(), KindAttestation, "a1", []byte(`{}`)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	b := NewPostgresBackendFromDB(db)

	mock.ExpectQuery(`SELECT data FROM records WHERE kind = \$1 AND id = \$2`).
		WithArgs("attestation", "missing").
		WillReturnRows(sqlmock.NewRows([]string{"data"}))

	_, err = b.Get(context.Background(), KindAttestation, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresIndexLookupOrdering(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	b := NewPostgresBackendFromDB(db)

	mock.ExpectQuery(`SELECT id FROM record_index .*ORDER BY seq`).
		WithArgs("attestation", "by_subject", "agent:x").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("a1").AddRow("a2"))

	ids, err := b.IndexLookup(context.Background(), KindAttestation, "by_subject", "agent:x")
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorageErrorWrapping(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	b := NewPostgresBackendFromDB(db)

	mock.ExpectExec(`INSERT INTO records`).
		WillReturnError(assert.AnError)

	err = b.Put(context.Background(), KindAttestation, "a1", []byte(`{}`))
	var se *StorageError
	assert.ErrorAs(t, err, &se)
}
