package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// JSONLBackend is an append-only, line-delimited JSON Backend. Every line
// is a self-describing entry with an explicit kind tag; deletions are
// append-only tombstones. The full state is rebuilt from the log on open,
// so a torn final line (crash mid-write) is simply ignored.
type JSONLBackend struct {
	mu   sync.RWMutex
	path string
	file *os.File
	mem  *MemoryBackend // materialized view of the log
}

type jsonlEntry struct {
	Kind   string          `json:"kind"`
	ID     string          `json:"id,omitempty"`
	Record json.RawMessage `json:"record,omitempty"`

	// Index entries.
	Index    string `json:"index,omitempty"`
	IndexKey string `json:"index_key,omitempty"`

	// Tombstones.
	Tombstone bool   `json:"tombstone,omitempty"`
	AgentID   string `json:"agent_id,omitempty"`
}

// NewJSONLBackend opens (or creates) the log at path and replays it.
func NewJSONLBackend(path string) (*JSONLBackend, error) {
	b := &JSONLBackend{path: path, mem: NewMemoryBackend()}
	if err := b.replay(); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, &StorageError{Op: "open", Err: err}
	}
	b.file = f
	return b, nil
}

func (b *JSONLBackend) replay() error {
	f, err := os.Open(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &StorageError{Op: "replay", Err: err}
	}
	defer func() { _ = f.Close() }()

	return b.replayLines(context.Background(), f)
}

func (b *JSONLBackend) replayLines(ctx context.Context, f *os.File) error {
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		var e jsonlEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			// Torn tail from a crash mid-append; everything before it
			// is intact, so stop here.
			break
		}
		switch {
		case e.Tombstone && e.AgentID != "":
			_ = b.mem.DeleteByAgent(ctx, e.AgentID)
		case e.Index != "":
			_ = b.mem.IndexAdd(ctx, Kind(e.Kind), e.Index, e.IndexKey, e.ID)
		default:
			_ = b.mem.Put(ctx, Kind(e.Kind), e.ID, e.Record)
		}
	}
	if err := scanner.Err(); err != nil {
		return &StorageError{Op: "replay-scan", Err: err}
	}
	return nil
}

// appendEntry writes one log line and syncs it to disk.
func (b *JSONLBackend) appendEntry(e jsonlEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return &StorageError{Op: "marshal", Err: err}
	}
	if _, err := b.file.Write(append(data, '\n')); err != nil {
		return &StorageError{Op: "append", Err: err}
	}
	if err := b.file.Sync(); err != nil {
		return &StorageError{Op: "sync", Err: err}
	}
	return nil
}

func (b *JSONLBackend) Put(ctx context.Context, kind Kind, id string, record []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.mem.Get(ctx, kind, id); err == nil {
		return nil
	}
	if err := b.appendEntry(jsonlEntry{Kind: string(kind), ID: id, Record: record}); err != nil {
		return err
	}
	return b.mem.Put(ctx, kind, id, record)
}

func (b *JSONLBackend) Get(ctx context.Context, kind Kind, id string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.mem.Get(ctx, kind, id)
}

func (b *JSONLBackend) Iter(ctx context.Context, kind Kind) ([][]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.mem.Iter(ctx, kind)
}

func (b *JSONLBackend) DeleteByAgent(ctx context.Context, agentID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.appendEntry(jsonlEntry{Kind: "tombstone", Tombstone: true, AgentID: agentID}); err != nil {
		return err
	}
	return b.mem.DeleteByAgent(ctx, agentID)
}

func (b *JSONLBackend) IndexAdd(ctx context.Context, kind Kind, index, key, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.appendEntry(jsonlEntry{Kind: string(kind), ID: id, Index: index, IndexKey: key}); err != nil {
		return err
	}
	return b.mem.IndexAdd(ctx, kind, index, key, id)
}

func (b *JSONLBackend) IndexLookup(ctx context.Context, kind Kind, index, key string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.mem.IndexLookup(ctx, kind, index, key)
}

func (b *JSONLBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.file == nil {
		return nil
	}
	err := b.file.Close()
	b.file = nil
	if err != nil {
		return fmt.Errorf("jsonl close: %w", err)
	}
	return nil
}
