package revocation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataparency-dev/delegation-core/internal/crypto"
	"github.com/dataparency-dev/delegation-core/internal/logging"
	"github.com/dataparency-dev/delegation-core/internal/types"
)

func mustEntry(t *testing.T) (*crypto.Keypair, Entry) {
	t.Helper()
	kp, err := crypto.GenerateKeypair("revoker")
	require.NoError(t, err)
	e, err := NewEntry(kp.Private, types.PrincipalID(kp.PrincipalID()), "block_abc", "2026-01-01T00:00:00Z", ScopeBlock)
	require.NoError(t, err)
	return kp, e
}

func TestNewEntryVerifiesItsOwnSignature(t *testing.T) {
	_, e := mustEntry(t)
	assert.True(t, e.VerifySignature())
}

func TestVerifySignatureRejectsTamperedEntry(t *testing.T) {
	_, e := mustEntry(t)
	e.RevocationID = "block_tampered"
	assert.False(t, e.VerifySignature())
}

func TestLocalStoreAddIsIdempotent(t *testing.T) {
	store := NewLocalStore(logging.Nop())
	_, e := mustEntry(t)

	require.NoError(t, store.Add(e))
	require.NoError(t, store.Add(e)) // re-add succeeds without re-verifying
	assert.True(t, store.IsRevoked(e.RevocationID))
	assert.Len(t, store.List(), 1)
}

func TestLocalStoreAddRejectsBadSignature(t *testing.T) {
	store := NewLocalStore(logging.Nop())
	_, e := mustEntry(t)
	e.Signature = "clearly-not-a-valid-signature"

	err := store.Add(e)
	assert.Error(t, err)
	assert.False(t, store.IsRevoked(e.RevocationID))
}

func TestLocalStoreRemove(t *testing.T) {
	store := NewLocalStore(logging.Nop())
	_, e := mustEntry(t)
	require.NoError(t, store.Add(e))

	store.Remove(e.RevocationID)
	assert.False(t, store.IsRevoked(e.RevocationID))
}

func TestLocalStoreJSONRoundTrip(t *testing.T) {
	store := NewLocalStore(logging.Nop())
	_, e := mustEntry(t)
	require.NoError(t, store.Add(e))

	data, err := store.ToJSON()
	require.NoError(t, err)

	restored := NewLocalStore(logging.Nop())
	require.NoError(t, restored.FromJSON(data))
	assert.True(t, restored.IsRevoked(e.RevocationID))
}

func TestGetRevocationIDsReturnsACopy(t *testing.T) {
	store := NewLocalStore(logging.Nop())
	_, e := mustEntry(t)
	require.NoError(t, store.Add(e))

	ids := store.GetRevocationIDs()
	ids["block_injected"] = true

	assert.False(t, store.IsRevoked("block_injected"))
}
