// Package store defines the persistence contract behind the ledger: a
// key/value log with secondary indexes. The ledger never knows which
// backend is in use.
package store

import (
	"context"
	"errors"
)

// Kind tags a record family within a backend.
type Kind string

const (
	KindAttestation Kind = "attestation"
	KindRevocation  Kind = "revocation"
	KindDelegation  Kind = "delegation"
	KindRotation    Kind = "rotation"
	KindPlatform    Kind = "platform"
	KindProfile     Kind = "profile"
	KindPolicy      Kind = "policy"
)

// ErrNotFound is returned when a record or index entry does not exist.
var ErrNotFound = errors.New("not found")

// StorageError wraps a backend write failure so callers can distinguish
// infrastructure faults from admission-rule rejections.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return "storage: " + e.Op + ": " + e.Err.Error() }
func (e *StorageError) Unwrap() error { return e.Err }

// agentFields are the JSON fields scanned by DeleteByAgent. A record is
// erased when the agent appears in any of them.
var agentFields = []string{"subject", "witness", "principal", "delegate", "revoked_by", "agent_id", "target_id"}

// Backend is the pluggable persistence contract.
//
// Required properties: Put is idempotent (re-put of an existing id is a
// no-op); non-memory backends are durable across restart and crash-safe
// (a partially written record is fully present or absent after restart);
// all backends are safe for concurrent reads with a single writer.
type Backend interface {
	// Put inserts a record. Inserting an id that already exists is a no-op.
	Put(ctx context.Context, kind Kind, id string, record []byte) error

	// Get retrieves a record by id, or ErrNotFound.
	Get(ctx context.Context, kind Kind, id string) ([]byte, error)

	// Iter returns all records of a kind in insertion order.
	Iter(ctx context.Context, kind Kind) ([][]byte, error)

	// DeleteByAgent removes every record in which the agent appears as
	// subject, witness, principal, delegate, revoker, or owner. Used for
	// compliance erasure.
	DeleteByAgent(ctx context.Context, agentID string) error

	// IndexAdd associates id with key under a named secondary index.
	IndexAdd(ctx context.Context, kind Kind, index, key, id string) error

	// IndexLookup returns the ids filed under key, in insertion order.
	IndexLookup(ctx context.Context, kind Kind, index, key string) ([]string, error)

	// Close releases backend resources.
	Close() error
}
