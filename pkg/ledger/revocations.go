package ledger

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/isnad-labs/isnad/pkg/canonicalize"
	"github.com/isnad-labs/isnad/pkg/record"
	"github.com/isnad-labs/isnad/pkg/store"
)

// RevocationRegistry holds verified revocations keyed by target. A global
// revocation (nil scope) masks the target everywhere; a scoped revocation
// masks only the named task label.
type RevocationRegistry struct {
	mu      sync.RWMutex
	backend store.Backend

	byTarget map[string][]*record.Revocation
	order    []*record.Revocation
	seen     map[string]bool
}

func newRevocationRegistry(backend store.Backend) *RevocationRegistry {
	return &RevocationRegistry{
		backend:  backend,
		byTarget: make(map[string][]*record.Revocation),
		seen:     make(map[string]bool),
	}
}

func (r *RevocationRegistry) load(ctx context.Context) error {
	raws, err := r.backend.Iter(ctx, store.KindRevocation)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, raw := range raws {
		var rev record.Revocation
		if err := json.Unmarshal(raw, &rev); err != nil {
			continue
		}
		r.admit(&rev)
	}
	return nil
}

func revocationID(rev *record.Revocation) (string, error) {
	payload, err := rev.CanonicalPayload()
	if err != nil {
		return "", err
	}
	return canonicalize.ShortHash(payload), nil
}

// admit updates memory. Caller holds the write lock.
func (r *RevocationRegistry) admit(rev *record.Revocation) {
	id, err := revocationID(rev)
	if err != nil || r.seen[id] {
		return
	}
	r.seen[id] = true
	r.byTarget[rev.TargetID] = append(r.byTarget[rev.TargetID], rev)
	r.order = append(r.order, rev)
}

// Add persists a verified revocation. Re-adding the same revocation is a
// no-op. The caller is responsible for calling rev.Verify first.
func (r *RevocationRegistry) Add(ctx context.Context, rev *record.Revocation) error {
	id, err := revocationID(rev)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.seen[id] {
		return nil
	}
	raw, err := json.Marshal(rev)
	if err != nil {
		return err
	}
	if err := r.backend.Put(ctx, store.KindRevocation, id, raw); err != nil {
		return err
	}
	r.admit(rev)
	return nil
}

// IsRevoked reports whether target is masked for the given scope. A global
// revocation matches any scope; a scoped one matches only its own label.
// Pass scope "" to ask about global masking only.
func (r *RevocationRegistry) IsRevoked(target, scope string) bool {
	scope = record.NormalizeLabel(scope)

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rev := range r.byTarget[target] {
		if rev.IsGlobal() {
			return true
		}
		if scope != "" && *rev.Scope == scope {
			return true
		}
	}
	return false
}

// ForTarget returns the revocations naming target, in admission order.
func (r *RevocationRegistry) ForTarget(target string) []*record.Revocation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	revs := r.byTarget[target]
	out := make([]*record.Revocation, len(revs))
	copy(out, revs)
	return out
}

// All returns every revocation in admission order.
func (r *RevocationRegistry) All() []*record.Revocation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*record.Revocation, len(r.order))
	copy(out, r.order)
	return out
}

// Size returns the number of distinct revocations.
func (r *RevocationRegistry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// EraseAgent drops in-memory revocations issued by or targeting agentID.
// Backend rows are removed by the ledger's DeleteByAgent call.
func (r *RevocationRegistry) EraseAgent(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.order[:0]
	for _, rev := range r.order {
		if rev.TargetID == agentID || rev.RevokedBy == agentID {
			if id, err := revocationID(rev); err == nil {
				delete(r.seen, id)
			}
			continue
		}
		kept = append(kept, rev)
	}
	r.order = kept

	r.byTarget = make(map[string][]*record.Revocation)
	for _, rev := range r.order {
		r.byTarget[rev.TargetID] = append(r.byTarget[rev.TargetID], rev)
	}
}
