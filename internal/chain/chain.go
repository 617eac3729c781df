// Package chain implements the delegation chain store: a directed
// graph of delegation records keyed by delegation id, with structural
// (not cryptographic) integrity checks.
package chain

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/dataparency-dev/delegation-core/internal/types"
)

// Delegation is one node in the chain graph.
type Delegation struct {
	ID             string
	ParentID       string // types.RootDelegationID for a root delegation
	From           types.PrincipalID
	To             types.PrincipalID
	Depth          int
	Status         types.DelegationStatus
	ContractID     string
	AttestationID  string
	CreatedAt      string
	CompletedAt    string
}

// ErrNotFound is returned by UpdateStatus when id is absent.
type ErrNotFound struct{ ID string }

func (e *ErrNotFound) Error() string { return fmt.Sprintf("chain: delegation %s not found", e.ID) }

// VerifyResult is the outcome of VerifyChain.
type VerifyResult struct {
	Valid bool
	Error string
}

// Store is an in-memory delegation graph guarded by a RWMutex — the
// store sees far more reads (getChain, getChildren during verification
// flows) than writes, so a plain Mutex would serialize unnecessarily.
type Store struct {
	mu          sync.RWMutex
	delegations map[string]Delegation
}

// NewStore constructs an empty chain store.
func NewStore() *Store {
	return &Store{delegations: make(map[string]Delegation)}
}

// Put inserts or overwrites a delegation by id.
func (s *Store) Put(d Delegation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delegations[d.ID] = d
}

// Get fetches a delegation by id. The bool reports presence.
func (s *Store) Get(id string) (Delegation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.delegations[id]
	return d, ok
}

// GetChildren scans for every delegation whose ParentID equals parentID.
func (s *Store) GetChildren(parentID string) []Delegation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Delegation
	for _, d := range s.delegations {
		if d.ParentID == parentID {
			out = append(out, d)
		}
	}
	return out
}

// UpdateStatus mutates status and, optionally, attestationID; it sets
// CompletedAt to now when status transitions into a terminal state
// (completed or failed). now is caller-supplied RFC3339 for testability.
func (s *Store) UpdateStatus(id string, status types.DelegationStatus, attestationID, now string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.delegations[id]
	if !ok {
		return &ErrNotFound{ID: id}
	}
	d.Status = status
	if attestationID != "" {
		d.AttestationID = attestationID
	}
	if status == types.DelegationCompleted || status == types.DelegationFailed {
		d.CompletedAt = now
	}
	s.delegations[id] = d
	return nil
}

// GetChain walks ParentID links from id up to the root sentinel and
// returns the list ordered root-to-leaf.
func (s *Store) GetChain(id string) ([]Delegation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var reversed []Delegation
	cur := id
	for cur != types.RootDelegationID {
		d, ok := s.delegations[cur]
		if !ok {
			return nil, &ErrNotFound{ID: cur}
		}
		reversed = append(reversed, d)
		cur = d.ParentID
	}
	out := make([]Delegation, len(reversed))
	for i, d := range reversed {
		out[len(reversed)-1-i] = d
	}
	return out, nil
}

// VerifyChain checks root linkage and then, for every adjacent pair in
// the chain, that child.ParentID == parent.ID, child.From == parent.To,
// and child.Depth == parent.Depth + 1. It verifies structural integrity
// only — DCT signature verification is the dct package's job.
func (s *Store) VerifyChain(id string) VerifyResult {
	chain, err := s.GetChain(id)
	if err != nil {
		return VerifyResult{Valid: false, Error: err.Error()}
	}
	if len(chain) > 0 {
		root := chain[0]
		if root.Depth != 0 || root.ParentID != types.RootDelegationID {
			return VerifyResult{Valid: false, Error: fmt.Sprintf("delegation %s is not a valid root: depth=%d parentId=%s", root.ID, root.Depth, root.ParentID)}
		}
	}
	for i := 1; i < len(chain); i++ {
		parent, child := chain[i-1], chain[i]
		if child.ParentID != parent.ID {
			return VerifyResult{Valid: false, Error: fmt.Sprintf("delegation %s parentId does not match %s", child.ID, parent.ID)}
		}
		if child.From != parent.To {
			return VerifyResult{Valid: false, Error: fmt.Sprintf("delegation %s.from does not match parent %s.to", child.ID, parent.ID)}
		}
		if child.Depth != parent.Depth+1 {
			return VerifyResult{Valid: false, Error: fmt.Sprintf("delegation %s.depth is not parent.depth + 1", child.ID)}
		}
	}
	return VerifyResult{Valid: true}
}

// GenerateDelegationID returns "del_" followed by 12 lowercase hex
// characters drawn from 6 random bytes.
func GenerateDelegationID() (string, error) {
	var b [6]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("chain: generate delegation id: %w", err)
	}
	return "del_" + hex.EncodeToString(b[:]), nil
}
