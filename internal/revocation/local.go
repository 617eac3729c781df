package revocation

import (
	"encoding/json"
	"fmt"

	cache "github.com/patrickmn/go-cache"

	"github.com/dataparency-dev/delegation-core/internal/logging"
)

// LocalStore is a single-node revocation store. Entries never expire
// on their own — revocations are permanent until explicitly removed —
// so it uses go-cache purely as a concurrency-safe map, not for TTL
// — this is a single-node store.
type LocalStore struct {
	entries *cache.Cache
	logger  logging.Logger
}

// NewLocalStore constructs an empty local store.
func NewLocalStore(logger logging.Logger) *LocalStore {
	if logger == nil {
		logger = logging.Nop()
	}
	return &LocalStore{entries: cache.New(cache.NoExpiration, cache.NoExpiration), logger: logger}
}

// Add verifies entry.Signature against entry.RevokedBy, then inserts
// it keyed by RevocationID. Idempotent: re-adding the same id succeeds
// without re-verifying.
func (s *LocalStore) Add(entry Entry) error {
	if _, found := s.entries.Get(entry.RevocationID); found {
		return nil
	}
	if !entry.VerifySignature() {
		return fmt.Errorf("revocation: add %s: signature does not verify", entry.RevocationID)
	}
	s.entries.Set(entry.RevocationID, entry, cache.NoExpiration)
	s.logger.Printf("revocation added: %s by %s", entry.RevocationID, entry.RevokedBy)
	return nil
}

// addTrusted inserts entry without verifying its signature. The
// distributed store calls it after verifying the entry itself; FromJSON
// calls it without any verification.
func (s *LocalStore) addTrusted(entry Entry) {
	s.entries.Set(entry.RevocationID, entry, cache.NoExpiration)
}

// IsRevoked reports whether id has a revocation entry.
func (s *LocalStore) IsRevoked(id string) bool {
	_, found := s.entries.Get(id)
	return found
}

// List returns a copy of every stored entry.
func (s *LocalStore) List() []Entry {
	items := s.entries.Items()
	out := make([]Entry, 0, len(items))
	for _, item := range items {
		out = append(out, item.Object.(Entry))
	}
	return out
}

// GetRevocationIDs returns the set of all revoked ids, suitable for a
// VerifyContext.RevocationIDs lookup table.
func (s *LocalStore) GetRevocationIDs() map[string]bool {
	items := s.entries.Items()
	ids := make(map[string]bool, len(items))
	for id := range items {
		ids[id] = true
	}
	return ids
}

// Remove deletes an entry by id. No-op if absent.
func (s *LocalStore) Remove(id string) {
	s.entries.Delete(id)
}

// ToJSON serializes every stored entry.
func (s *LocalStore) ToJSON() ([]byte, error) {
	return json.Marshal(s.List())
}

// FromJSON replaces the store's contents from a JSON entry list,
// bypassing signature re-verification — callers must trust the source.
func (s *LocalStore) FromJSON(data []byte) error {
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("revocation: fromJSON: %w", err)
	}
	for _, e := range entries {
		s.addTrusted(e)
	}
	return nil
}
