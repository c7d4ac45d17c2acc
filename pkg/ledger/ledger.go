// Package ledger — append-only attestation ledger with at-most-once
// admission, revocation-aware queries, and secondary indexes.
//
// The ledger is single-writer, many-reader. Admission-rule failures
// (bad signature, revoked target, duplicate) reject silently with a false
// return; only storage faults surface as errors.
package ledger

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/isnad-labs/isnad/pkg/record"
	"github.com/isnad-labs/isnad/pkg/store"
)

const (
	indexBySubject = "by_subject"
	indexByWitness = "by_witness"
)

// Publisher receives ledger lifecycle events. The event bus satisfies it;
// a nil publisher disables eventing.
type Publisher interface {
	Publish(topic string, payload map[string]interface{})
}

// Ledger owns the admitted attestations plus the revocation, delegation,
// and key-rotation registries that share its backend.
type Ledger struct {
	mu      sync.RWMutex
	backend store.Backend
	pub     Publisher
	logger  *slog.Logger

	attestations []*record.Attestation
	byID         map[string]*record.Attestation
	bySubject    map[string][]*record.Attestation
	byWitness    map[string][]*record.Attestation

	revocations *RevocationRegistry
	delegations *DelegationRegistry
	rotations   *KeyRegistry
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithPublisher attaches an event publisher.
func WithPublisher(p Publisher) Option {
	return func(l *Ledger) { l.pub = p }
}

// Open loads a ledger from backend, replaying persisted records into the
// in-memory indexes.
func Open(ctx context.Context, backend store.Backend, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		backend:   backend,
		logger:    slog.Default().With("component", "ledger"),
		byID:      make(map[string]*record.Attestation),
		bySubject: make(map[string][]*record.Attestation),
		byWitness: make(map[string][]*record.Attestation),
	}
	for _, opt := range opts {
		opt(l)
	}

	l.revocations = newRevocationRegistry(backend)
	l.delegations = newDelegationRegistry(backend, l.revocations)
	l.rotations = newKeyRegistry(backend)

	if err := l.load(ctx); err != nil {
		return nil, err
	}
	if err := l.revocations.load(ctx); err != nil {
		return nil, err
	}
	if err := l.delegations.load(ctx); err != nil {
		return nil, err
	}
	if err := l.rotations.load(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Ledger) load(ctx context.Context) error {
	raws, err := l.backend.Iter(ctx, store.KindAttestation)
	if err != nil {
		return err
	}
	for _, raw := range raws {
		var att record.Attestation
		if err := json.Unmarshal(raw, &att); err != nil {
			l.logger.Warn("skipping undecodable attestation record", "error", err)
			continue
		}
		l.admitToMemory(&att)
	}
	return nil
}

// admitToMemory appends to the ordered log and both inverse indexes.
// Caller holds the write lock (or is single-threaded during load).
func (l *Ledger) admitToMemory(att *record.Attestation) {
	l.attestations = append(l.attestations, att)
	l.byID[att.ID] = att
	l.bySubject[att.Subject] = append(l.bySubject[att.Subject], att)
	l.byWitness[att.Witness] = append(l.byWitness[att.Witness], att)
}

// Add runs the admission pipeline. It returns true when the attestation
// was admitted, false when it was rejected or already present. Only
// storage faults return a non-nil error.
func (l *Ledger) Add(ctx context.Context, att *record.Attestation) (bool, error) {
	// Integrity checks happen outside the lock; they are pure.
	if err := att.Verify(); err != nil {
		l.logger.Debug("attestation rejected", "reason", err)
		return false, nil
	}

	id, err := att.ComputeID()
	if err != nil {
		return false, nil
	}
	att.ID = id

	l.mu.Lock()
	defer l.mu.Unlock()

	// Scoped revocations suppress scoring, not admission: only a global
	// revocation of the subject blocks new attestations.
	if l.revocations.IsRevoked(att.ID, "") || l.revocations.IsRevoked(att.Subject, "") {
		l.logger.Debug("attestation rejected: revoked", "attestation_id", att.ID, "subject", att.Subject)
		return false, nil
	}
	if _, exists := l.byID[att.ID]; exists {
		return false, nil
	}

	raw, err := json.Marshal(att)
	if err != nil {
		return false, nil
	}
	if err := l.backend.Put(ctx, store.KindAttestation, att.ID, raw); err != nil {
		return false, err
	}
	if err := l.backend.IndexAdd(ctx, store.KindAttestation, indexBySubject, att.Subject, att.ID); err != nil {
		return false, err
	}
	if err := l.backend.IndexAdd(ctx, store.KindAttestation, indexByWitness, att.Witness, att.ID); err != nil {
		return false, err
	}

	l.admitToMemory(att)

	if l.pub != nil {
		l.pub.Publish("attestation.added", map[string]interface{}{
			"attestation_id": att.ID,
			"subject":        att.Subject,
			"witness":        att.Witness,
			"task":           att.Task,
		})
	}
	return true, nil
}

// Get returns the attestation with the given id, or nil.
func (l *Ledger) Get(id string) *record.Attestation {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.byID[id]
}

// All returns the attestations in insertion order.
func (l *Ledger) All() []*record.Attestation {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*record.Attestation, len(l.attestations))
	copy(out, l.attestations)
	return out
}

// BySubject returns the attestations naming agent as subject, in
// insertion order.
func (l *Ledger) BySubject(agentID string) []*record.Attestation {
	l.mu.RLock()
	defer l.mu.RUnlock()
	atts := l.bySubject[agentID]
	out := make([]*record.Attestation, len(atts))
	copy(out, atts)
	return out
}

// ByWitness returns the attestations naming agent as witness, in
// insertion order.
func (l *Ledger) ByWitness(agentID string) []*record.Attestation {
	l.mu.RLock()
	defer l.mu.RUnlock()
	atts := l.byWitness[agentID]
	out := make([]*record.Attestation, len(atts))
	copy(out, atts)
	return out
}

// Size returns the number of admitted attestations.
func (l *Ledger) Size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.attestations)
}

// Stats summarizes the ledger for bundle envelopes and the CLI.
type Stats struct {
	Count     int `json:"count"`
	Subjects  int `json:"subjects"`
	Witnesses int `json:"witnesses"`
}

// Stats returns attestation counts and distinct participants.
func (l *Ledger) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Stats{
		Count:     len(l.attestations),
		Subjects:  len(l.bySubject),
		Witnesses: len(l.byWitness),
	}
}

// Revocations exposes the revocation registry.
func (l *Ledger) Revocations() *RevocationRegistry { return l.revocations }

// Delegations exposes the delegation registry.
func (l *Ledger) Delegations() *DelegationRegistry { return l.delegations }

// Rotations exposes the key-rotation registry.
func (l *Ledger) Rotations() *KeyRegistry { return l.rotations }

// Revoke verifies and records a revocation, making it visible to Add and
// scoring atomically.
func (l *Ledger) Revoke(ctx context.Context, rev *record.Revocation) error {
	if err := rev.Verify(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.revocations.Add(ctx, rev); err != nil {
		return err
	}
	if l.pub != nil {
		scope := ""
		if rev.Scope != nil {
			scope = *rev.Scope
		}
		l.pub.Publish("revocation.added", map[string]interface{}{
			"target_id":  rev.TargetID,
			"revoked_by": rev.RevokedBy,
			"scope":      scope,
		})
	}
	return nil
}

// IsRevoked reports whether target is revoked for scope ("" = global
// check: any global revocation matches; a scoped check also matches a
// global revocation).
func (l *Ledger) IsRevoked(targetID, scope string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.revocations.IsRevoked(targetID, scope)
}

// Erase removes every record mentioning agentID from the backend and the
// in-memory views. Compliance erasure is the only mutation that removes
// admitted records.
func (l *Ledger) Erase(ctx context.Context, agentID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.backend.DeleteByAgent(ctx, agentID); err != nil {
		return err
	}

	kept := l.attestations[:0]
	for _, att := range l.attestations {
		if att.Subject == agentID || att.Witness == agentID {
			delete(l.byID, att.ID)
			continue
		}
		kept = append(kept, att)
	}
	l.attestations = kept

	l.bySubject = make(map[string][]*record.Attestation)
	l.byWitness = make(map[string][]*record.Attestation)
	for _, att := range l.attestations {
		l.bySubject[att.Subject] = append(l.bySubject[att.Subject], att)
		l.byWitness[att.Witness] = append(l.byWitness[att.Witness], att)
	}

	l.revocations.EraseAgent(agentID)
	l.delegations.EraseAgent(agentID)
	l.rotations.EraseAgent(agentID)

	if l.pub != nil {
		l.pub.Publish("agent.erased", map[string]interface{}{"agent_id": agentID})
	}
	return nil
}
