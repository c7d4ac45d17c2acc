package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/isnad-labs/isnad/pkg/record"
	"github.com/isnad-labs/isnad/pkg/store"
)

// ErrUnknownDelegation is returned when a chain references a delegation
// the registry has never admitted.
var ErrUnknownDelegation = fmt.Errorf("ledger: unknown delegation")

// DelegationRegistry holds verified delegations and validates chains back
// to their root grant. Chain validation consults the revocation registry:
// revoking any link, or any principal on the path, severs everything below.
type DelegationRegistry struct {
	mu          sync.RWMutex
	backend     store.Backend
	revocations *RevocationRegistry

	byID        map[string]*record.Delegation
	byDelegate  map[string][]*record.Delegation
	byPrincipal map[string][]*record.Delegation
	order       []*record.Delegation
}

func newDelegationRegistry(backend store.Backend, revocations *RevocationRegistry) *DelegationRegistry {
	return &DelegationRegistry{
		backend:     backend,
		revocations: revocations,
		byID:        make(map[string]*record.Delegation),
		byDelegate:  make(map[string][]*record.Delegation),
		byPrincipal: make(map[string][]*record.Delegation),
	}
}

func (d *DelegationRegistry) load(ctx context.Context) error {
	raws, err := d.backend.Iter(ctx, store.KindDelegation)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, raw := range raws {
		var del record.Delegation
		if err := json.Unmarshal(raw, &del); err != nil {
			continue
		}
		d.admit(&del)
	}
	return nil
}

// admit updates memory. Caller holds the write lock.
func (d *DelegationRegistry) admit(del *record.Delegation) {
	if _, exists := d.byID[del.ID]; exists {
		return
	}
	d.byID[del.ID] = del
	d.byDelegate[del.Delegate] = append(d.byDelegate[del.Delegate], del)
	d.byPrincipal[del.Principal] = append(d.byPrincipal[del.Principal], del)
	d.order = append(d.order, del)
}

// Add verifies and persists a delegation. Sub-delegations are re-checked
// against their admitted parent so that externally constructed records
// cannot escalate scope or depth.
func (d *DelegationRegistry) Add(ctx context.Context, del *record.Delegation) error {
	if err := del.Verify(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.byID[del.ID]; exists {
		return nil
	}

	if del.ParentID != nil {
		parent, ok := d.byID[*del.ParentID]
		if !ok {
			return fmt.Errorf("%w: parent %s", ErrUnknownDelegation, *del.ParentID)
		}
		if err := checkNarrowing(parent, del); err != nil {
			return err
		}
	} else if del.Depth != 0 {
		return fmt.Errorf("%w: root delegation must have depth 0", record.ErrDelegationConstraint)
	}

	raw, err := json.Marshal(del)
	if err != nil {
		return err
	}
	if err := d.backend.Put(ctx, store.KindDelegation, del.ID, raw); err != nil {
		return err
	}
	d.admit(del)
	return nil
}

// checkNarrowing enforces the sub-delegation constraints against the
// admitted parent record.
func checkNarrowing(parent, child *record.Delegation) error {
	if child.Principal != parent.Delegate {
		return fmt.Errorf("%w: principal %s is not the parent delegate %s",
			record.ErrDelegationConstraint, child.Principal, parent.Delegate)
	}
	if child.Depth != parent.Depth+1 {
		return fmt.Errorf("%w: depth %d, want %d", record.ErrDelegationConstraint, child.Depth, parent.Depth+1)
	}
	if child.Depth >= parent.MaxDepth {
		return fmt.Errorf("%w: depth %d exceeds parent max_depth %d",
			record.ErrDelegationConstraint, child.Depth, parent.MaxDepth)
	}
	for _, s := range child.Scopes {
		if !parent.HasScope(s) {
			return fmt.Errorf("%w: scope %q not granted by parent", record.ErrDelegationConstraint, s)
		}
	}
	if parent.ExpiresAt != nil {
		parentExp, err := record.ParseTimestamp(*parent.ExpiresAt)
		if err != nil {
			return err
		}
		if child.ExpiresAt == nil {
			return fmt.Errorf("%w: child must not outlive parent expiry", record.ErrDelegationConstraint)
		}
		childExp, err := record.ParseTimestamp(*child.ExpiresAt)
		if err != nil {
			return err
		}
		if childExp.After(parentExp) {
			return fmt.Errorf("%w: child expiry exceeds parent expiry", record.ErrDelegationConstraint)
		}
	}
	remaining := parent.MaxDepth - parent.Depth - 1
	if child.MaxDepth > remaining {
		return fmt.Errorf("%w: max_depth %d exceeds remaining budget %d",
			record.ErrDelegationConstraint, child.MaxDepth, remaining)
	}
	return nil
}

// Get returns the delegation with the given id, or nil.
func (d *DelegationRegistry) Get(id string) *record.Delegation {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.byID[id]
}

// ByDelegate returns the delegations granted to agentID.
func (d *DelegationRegistry) ByDelegate(agentID string) []*record.Delegation {
	d.mu.RLock()
	defer d.mu.RUnlock()
	dels := d.byDelegate[agentID]
	out := make([]*record.Delegation, len(dels))
	copy(out, dels)
	return out
}

// ByPrincipal returns the delegations granted by agentID.
func (d *DelegationRegistry) ByPrincipal(agentID string) []*record.Delegation {
	d.mu.RLock()
	defer d.mu.RUnlock()
	dels := d.byPrincipal[agentID]
	out := make([]*record.Delegation, len(dels))
	copy(out, dels)
	return out
}

// All returns every delegation in admission order.
func (d *DelegationRegistry) All() []*record.Delegation {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*record.Delegation, len(d.order))
	copy(out, d.order)
	return out
}

// VerifyChain walks from the delegation with the given id back to its
// root, returning the chain root-first. It fails on unknown links, broken
// narrowing, expiry as of now, and revocation of any link or principal.
func (d *DelegationRegistry) VerifyChain(id string, now time.Time) ([]*record.Delegation, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var chain []*record.Delegation
	visited := make(map[string]bool)

	cur, ok := d.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDelegation, id)
	}
	for cur != nil {
		if visited[cur.ID] {
			return nil, fmt.Errorf("%w: cycle at %s", record.ErrDelegationConstraint, cur.ID)
		}
		visited[cur.ID] = true
		chain = append(chain, cur)

		if err := cur.Verify(); err != nil {
			return nil, err
		}
		if cur.ExpiredAt(now) {
			return nil, fmt.Errorf("%w: delegation %s expired", record.ErrDelegationConstraint, cur.ID)
		}
		if d.revocations.IsRevoked(cur.ID, "") || d.revocations.IsRevoked(cur.Principal, "") {
			return nil, fmt.Errorf("%w: delegation %s is revoked", record.ErrDelegationConstraint, cur.ID)
		}

		if cur.ParentID == nil {
			break
		}
		parent, ok := d.byID[*cur.ParentID]
		if !ok {
			return nil, fmt.Errorf("%w: parent %s", ErrUnknownDelegation, *cur.ParentID)
		}
		if err := checkNarrowing(parent, cur); err != nil {
			return nil, err
		}
		cur = parent
	}

	// Reverse to root-first order.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// IsAuthorized reports whether agentID holds an unexpired, unrevoked
// delegation chain granting scope as of now.
func (d *DelegationRegistry) IsAuthorized(agentID, scope string, now time.Time) bool {
	d.mu.RLock()
	candidates := append([]*record.Delegation(nil), d.byDelegate[agentID]...)
	d.mu.RUnlock()

	for _, del := range candidates {
		if !del.HasScope(scope) {
			continue
		}
		if _, err := d.VerifyChain(del.ID, now); err == nil {
			return true
		}
	}
	return false
}

// EraseAgent drops in-memory delegations naming agentID as principal or
// delegate. Backend rows are removed by the ledger's DeleteByAgent call.
func (d *DelegationRegistry) EraseAgent(agentID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	kept := d.order[:0]
	for _, del := range d.order {
		if del.Principal == agentID || del.Delegate == agentID {
			delete(d.byID, del.ID)
			continue
		}
		kept = append(kept, del)
	}
	d.order = kept

	d.byDelegate = make(map[string][]*record.Delegation)
	d.byPrincipal = make(map[string][]*record.Delegation)
	for _, del := range d.order {
		d.byDelegate[del.Delegate] = append(d.byDelegate[del.Delegate], del)
		d.byPrincipal[del.Principal] = append(d.byPrincipal[del.Principal], del)
	}
}
