package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/isnad-labs/isnad/pkg/canonicalize"
	"github.com/isnad-labs/isnad/pkg/record"
	"github.com/isnad-labs/isnad/pkg/store"
)

// KeyRegistry tracks key rotations. Each agent ID may rotate away at most
// once; Current follows the rotation chain to the live identity.
type KeyRegistry struct {
	mu      sync.RWMutex
	backend store.Backend

	// next maps an old agent ID to the rotation that superseded it.
	next map[string]*record.KeyRotation
	// prev maps a new agent ID back to the old one.
	prev map[string]string
}

func newKeyRegistry(backend store.Backend) *KeyRegistry {
	return &KeyRegistry{
		backend: backend,
		next:    make(map[string]*record.KeyRotation),
		prev:    make(map[string]string),
	}
}

func (k *KeyRegistry) load(ctx context.Context) error {
	raws, err := k.backend.Iter(ctx, store.KindRotation)
	if err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, raw := range raws {
		var rot record.KeyRotation
		if err := json.Unmarshal(raw, &rot); err != nil {
			continue
		}
		k.admit(&rot)
	}
	return nil
}

// admit updates memory. Caller holds the write lock.
func (k *KeyRegistry) admit(rot *record.KeyRotation) {
	old := rot.OldAgentID()
	if _, exists := k.next[old]; exists {
		return
	}
	k.next[old] = rot
	k.prev[rot.NewAgentID()] = old
}

// Add verifies and persists a key rotation. An agent that already rotated
// away cannot rotate again from the same key.
func (k *KeyRegistry) Add(ctx context.Context, rot *record.KeyRotation) error {
	if err := rot.Verify(); err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	old := rot.OldAgentID()
	if existing, ok := k.next[old]; ok {
		if existing.NewPubkey == rot.NewPubkey {
			return nil
		}
		return fmt.Errorf("%w: key for %s already rotated", record.ErrSchema, old)
	}

	payload, err := rot.CanonicalPayload()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(rot)
	if err != nil {
		return err
	}
	if err := k.backend.Put(ctx, store.KindRotation, canonicalize.ShortHash(payload), raw); err != nil {
		return err
	}
	k.admit(rot)
	return nil
}

// Current follows the rotation chain from agentID to the live agent ID.
// Unknown agents map to themselves.
func (k *KeyRegistry) Current(agentID string) string {
	k.mu.RLock()
	defer k.mu.RUnlock()

	visited := make(map[string]bool)
	cur := agentID
	for {
		if visited[cur] {
			return cur
		}
		visited[cur] = true
		rot, ok := k.next[cur]
		if !ok {
			return cur
		}
		cur = rot.NewAgentID()
	}
}

// History returns the rotation lineage ending at agentID, oldest first.
func (k *KeyRegistry) History(agentID string) []string {
	k.mu.RLock()
	defer k.mu.RUnlock()

	visited := make(map[string]bool)
	lineage := []string{agentID}
	cur := agentID
	for {
		if visited[cur] {
			break
		}
		visited[cur] = true
		old, ok := k.prev[cur]
		if !ok {
			break
		}
		lineage = append(lineage, old)
		cur = old
	}
	for i, j := 0, len(lineage)-1; i < j; i, j = i+1, j-1 {
		lineage[i], lineage[j] = lineage[j], lineage[i]
	}
	return lineage
}

// SameLineage reports whether two agent IDs resolve to the same live key.
func (k *KeyRegistry) SameLineage(a, b string) bool {
	return k.Current(a) == k.Current(b)
}

// EraseAgent drops rotations touching agentID from memory. Backend rows
// are removed by the ledger's DeleteByAgent call.
func (k *KeyRegistry) EraseAgent(agentID string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	for old, rot := range k.next {
		if old == agentID || rot.NewAgentID() == agentID {
			delete(k.prev, rot.NewAgentID())
			delete(k.next, old)
		}
	}
}
