// Package discovery is the agent directory: profiles declaring names,
// capabilities, and platform URLs, searchable by other agents and fed to
// the platform scanner.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/isnad-labs/isnad/pkg/identity"
	"github.com/isnad-labs/isnad/pkg/record"
	"github.com/isnad-labs/isnad/pkg/scanner"
	"github.com/isnad-labs/isnad/pkg/store"
)

// ErrNotRegistered is returned for lookups of unknown agents.
var ErrNotRegistered = fmt.Errorf("discovery: agent not registered")

// Profile describes an agent to the rest of the network.
type Profile struct {
	AgentID      string   `json:"agent_id"`
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
	PlatformURLs []string `json:"platform_urls,omitempty"`
	RegisteredAt string   `json:"registered_at"`

	// Removed marks a tombstone row; the store is append-only, so
	// removal is the newest row saying so.
	Removed bool `json:"removed,omitempty"`
}

// Registry stores profiles in the shared backend with an in-memory view.
type Registry struct {
	mu       sync.RWMutex
	backend  store.Backend
	profiles map[string]*Profile
	order    []string
}

// Open loads the registry from backend.
func Open(ctx context.Context, backend store.Backend) (*Registry, error) {
	r := &Registry{backend: backend, profiles: make(map[string]*Profile)}
	raws, err := backend.Iter(ctx, store.KindProfile)
	if err != nil {
		return nil, err
	}
	for _, raw := range raws {
		var p Profile
		if err := json.Unmarshal(raw, &p); err != nil {
			continue
		}
		if p.Removed {
			r.dropLocked(p.AgentID)
			continue
		}
		if _, ok := r.profiles[p.AgentID]; !ok {
			r.order = append(r.order, p.AgentID)
		}
		r.profiles[p.AgentID] = &p
	}
	return r, nil
}

// dropLocked removes an agent from the memory view. Caller holds the
// write lock (or is single-threaded during load).
func (r *Registry) dropLocked(agentID string) {
	if _, ok := r.profiles[agentID]; !ok {
		return
	}
	delete(r.profiles, agentID)
	for i, id := range r.order {
		if id == agentID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Register stores or replaces an agent's profile.
func (r *Registry) Register(ctx context.Context, p Profile) error {
	if !identity.IsAgentID(p.AgentID) {
		return fmt.Errorf("%w: bad agent_id %q", record.ErrSchema, p.AgentID)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name is required", record.ErrSchema)
	}
	normalized := make([]string, 0, len(p.Capabilities))
	for _, c := range p.Capabilities {
		if c = record.NormalizeLabel(c); c != "" {
			normalized = append(normalized, c)
		}
	}
	sort.Strings(normalized)
	p.Capabilities = normalized
	if p.RegisteredAt == "" {
		p.RegisteredAt = record.FormatTimestamp(time.Now())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// The backend keeps the first write per key; re-registration versions
	// the key and the memory view points at the newest.
	key := fmt.Sprintf("%s|%d", p.AgentID, time.Now().UnixNano())
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := r.backend.Put(ctx, store.KindProfile, key, raw); err != nil {
		return err
	}
	if _, ok := r.profiles[p.AgentID]; !ok {
		r.order = append(r.order, p.AgentID)
	}
	r.profiles[p.AgentID] = &p
	return nil
}

// Get returns an agent's profile.
func (r *Registry) Get(agentID string) (*Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[agentID]
	if !ok {
		return nil, ErrNotRegistered
	}
	cp := *p
	return &cp, nil
}

// Remove retires an agent's profile by appending a tombstone row.
func (r *Registry) Remove(ctx context.Context, agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.profiles[agentID]; !ok {
		return ErrNotRegistered
	}
	tomb := Profile{
		AgentID:      agentID,
		Name:         "-",
		RegisteredAt: record.FormatTimestamp(time.Now()),
		Removed:      true,
	}
	raw, err := json.Marshal(tomb)
	if err != nil {
		return err
	}
	key := fmt.Sprintf("%s|%d", agentID, time.Now().UnixNano())
	if err := r.backend.Put(ctx, store.KindProfile, key, raw); err != nil {
		return err
	}
	r.dropLocked(agentID)
	return nil
}

// Search returns profiles matching the query: a case-insensitive
// substring of the name or description, or an exact capability. An empty
// query lists everything. Results are in registration order.
func (r *Registry) Search(query string) []Profile {
	needle := strings.ToLower(strings.TrimSpace(query))
	capability := record.NormalizeLabel(query)

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Profile
	for _, id := range r.order {
		p := r.profiles[id]
		if needle == "" || matches(p, needle, capability) {
			out = append(out, *p)
		}
	}
	return out
}

func matches(p *Profile, needle, capability string) bool {
	if strings.Contains(strings.ToLower(p.Name), needle) {
		return true
	}
	if strings.Contains(strings.ToLower(p.Description), needle) {
		return true
	}
	for _, c := range p.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// Profiles feeds the scanner: every registered agent with at least one
// platform URL.
func (r *Registry) Profiles(context.Context) ([]scanner.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []scanner.Profile
	for _, id := range r.order {
		p := r.profiles[id]
		if len(p.PlatformURLs) == 0 {
			continue
		}
		urls := make([]string, len(p.PlatformURLs))
		copy(urls, p.PlatformURLs)
		out = append(out, scanner.Profile{AgentID: p.AgentID, URLs: urls})
	}
	return out, nil
}
