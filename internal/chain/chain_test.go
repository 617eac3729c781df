package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataparency-dev/delegation-core/internal/types"
)

func TestGenerateDelegationIDFormat(t *testing.T) {
	id, err := GenerateDelegationID()
	require.NoError(t, err)
	assert.Regexp(t, `^del_[0-9a-f]{12}$`, id)
}

func TestPutGetRoundTrip(t *testing.T) {
	s := NewStore()
	d := Delegation{ID: "del_a", ParentID: types.RootDelegationID, From: "issuer", To: "delegatee", Depth: 0, Status: types.DelegationActive}
	s.Put(d)

	got, ok := s.Get("del_a")
	require.True(t, ok)
	assert.Equal(t, d, got)

	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func TestGetChildren(t *testing.T) {
	s := NewStore()
	s.Put(Delegation{ID: "del_root", ParentID: types.RootDelegationID, From: "a", To: "b", Depth: 0})
	s.Put(Delegation{ID: "del_c1", ParentID: "del_root", From: "b", To: "c", Depth: 1})
	s.Put(Delegation{ID: "del_c2", ParentID: "del_root", From: "b", To: "d", Depth: 1})
	s.Put(Delegation{ID: "del_grandchild", ParentID: "del_c1", From: "c", To: "e", Depth: 2})

	children := s.GetChildren("del_root")
	assert.Len(t, children, 2)
}

func TestUpdateStatusSetsCompletedAtOnTerminalStates(t *testing.T) {
	s := NewStore()
	s.Put(Delegation{ID: "del_a", ParentID: types.RootDelegationID, Status: types.DelegationActive})

	err := s.UpdateStatus("del_a", types.DelegationCompleted, "att_123", "2026-01-01T00:00:00Z")
	require.NoError(t, err)

	got, _ := s.Get("del_a")
	assert.Equal(t, types.DelegationCompleted, got.Status)
	assert.Equal(t, "att_123", got.AttestationID)
	assert.Equal(t, "2026-01-01T00:00:00Z", got.CompletedAt)
}

func TestUpdateStatusNotFound(t *testing.T) {
	s := NewStore()
	err := s.UpdateStatus("del_missing", types.DelegationFailed, "", "2026-01-01T00:00:00Z")
	require.Error(t, err)
	var notFound *ErrNotFound
	assert.ErrorAs(t, err, &notFound)
}

func buildLinearChain(s *Store) {
	s.Put(Delegation{ID: "del_root", ParentID: types.RootDelegationID, From: "a", To: "b", Depth: 0})
	s.Put(Delegation{ID: "del_mid", ParentID: "del_root", From: "b", To: "c", Depth: 1})
	s.Put(Delegation{ID: "del_leaf", ParentID: "del_mid", From: "c", To: "d", Depth: 2})
}

func TestGetChainWalksRootToLeaf(t *testing.T) {
	s := NewStore()
	buildLinearChain(s)

	chain, err := s.GetChain("del_leaf")
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, "del_root", chain[0].ID)
	assert.Equal(t, "del_mid", chain[1].ID)
	assert.Equal(t, "del_leaf", chain[2].ID)
}

func TestVerifyChainAcceptsConsistentChain(t *testing.T) {
	s := NewStore()
	buildLinearChain(s)

	result := s.VerifyChain("del_leaf")
	assert.True(t, result.Valid)
	assert.Empty(t, result.Error)
}

func TestVerifyChainRejectsBrokenFromToLinkage(t *testing.T) {
	s := NewStore()
	s.Put(Delegation{ID: "del_root", ParentID: types.RootDelegationID, From: "a", To: "b", Depth: 0})
	s.Put(Delegation{ID: "del_mid", ParentID: "del_root", From: "someone-else", To: "c", Depth: 1})

	result := s.VerifyChain("del_mid")
	assert.False(t, result.Valid)
	assert.NotEmpty(t, result.Error)
}

func TestVerifyChainRejectsBrokenDepth(t *testing.T) {
	s := NewStore()
	s.Put(Delegation{ID: "del_root", ParentID: types.RootDelegationID, From: "a", To: "b", Depth: 0})
	s.Put(Delegation{ID: "del_mid", ParentID: "del_root", From: "b", To: "c", Depth: 5})

	result := s.VerifyChain("del_mid")
	assert.False(t, result.Valid)
}
