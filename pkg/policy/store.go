package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/isnad-labs/isnad/pkg/store"
)

// ErrUnknownPolicy is returned for lookups of policies that were never
// saved or have been deleted.
var ErrUnknownPolicy = fmt.Errorf("policy: unknown policy")

// storedPolicy is the persisted row. The backend is append-only, so
// updates version the key and deletion is a tombstone row.
type storedPolicy struct {
	Name    string  `json:"name"`
	Policy  *Policy `json:"policy,omitempty"`
	Deleted bool    `json:"deleted,omitempty"`
}

// Registry persists compiled policies in the shared backend with an
// in-memory newest-wins view.
type Registry struct {
	mu       sync.RWMutex
	backend  store.Backend
	policies map[string]*Policy
	order    []string
}

// OpenRegistry loads the policy registry from backend. Rows that fail to
// decode or compile are skipped.
func OpenRegistry(ctx context.Context, backend store.Backend) (*Registry, error) {
	r := &Registry{backend: backend, policies: make(map[string]*Policy)}
	raws, err := backend.Iter(ctx, store.KindPolicy)
	if err != nil {
		return nil, err
	}
	for _, raw := range raws {
		var row storedPolicy
		if err := json.Unmarshal(raw, &row); err != nil {
			continue
		}
		if row.Deleted {
			r.dropLocked(row.Name)
			continue
		}
		if row.Policy == nil || row.Policy.Compile() != nil {
			continue
		}
		r.putLocked(row.Name, row.Policy)
	}
	return r, nil
}

func (r *Registry) putLocked(name string, p *Policy) {
	if _, ok := r.policies[name]; !ok {
		r.order = append(r.order, name)
	}
	r.policies[name] = p
}

func (r *Registry) dropLocked(name string) {
	if _, ok := r.policies[name]; !ok {
		return
	}
	delete(r.policies, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Save compiles and persists a policy, replacing any previous version.
func (r *Registry) Save(ctx context.Context, p *Policy) error {
	if p.Name == "" {
		return fmt.Errorf("policy: name is required")
	}
	if err := p.Compile(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	raw, err := json.Marshal(storedPolicy{Name: p.Name, Policy: p})
	if err != nil {
		return err
	}
	key := fmt.Sprintf("%s|%d", p.Name, time.Now().UnixNano())
	if err := r.backend.Put(ctx, store.KindPolicy, key, raw); err != nil {
		return err
	}
	r.putLocked(p.Name, p)
	return nil
}

// Get returns the named policy.
func (r *Registry) Get(name string) (*Policy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.policies[name]
	if !ok {
		return nil, ErrUnknownPolicy
	}
	return p, nil
}

// List returns every policy in save order.
func (r *Registry) List() []*Policy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Policy, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.policies[name])
	}
	return out
}

// Delete retires a policy by appending a tombstone row.
func (r *Registry) Delete(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.policies[name]; !ok {
		return ErrUnknownPolicy
	}
	raw, err := json.Marshal(storedPolicy{Name: name, Deleted: true})
	if err != nil {
		return err
	}
	key := fmt.Sprintf("%s|%d", name, time.Now().UnixNano())
	if err := r.backend.Put(ctx, store.KindPolicy, key, raw); err != nil {
		return err
	}
	r.dropLocked(name)
	return nil
}
