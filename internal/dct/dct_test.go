package dct

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataparency-dev/delegation-core/internal/crypto"
	"github.com/dataparency-dev/delegation-core/internal/types"
)

func mustKeypair(t *testing.T, name string) *crypto.Keypair {
	t.Helper()
	kp, err := crypto.GenerateKeypair(name)
	require.NoError(t, err)
	return kp
}

func rfc3339(d time.Duration) string {
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(d).Format(time.RFC3339)
}

func baseRootToken(t *testing.T, issuer, delegatee *crypto.Keypair) Serialized {
	t.Helper()
	tok, err := CreateDCT(CreateParams{
		IssuerPrivateKey: issuer.Private,
		Issuer:           types.PrincipalID(issuer.PrincipalID()),
		Delegatee:        types.PrincipalID(delegatee.PrincipalID()),
		Capabilities: []types.Capability{
			{Namespace: "repo", Action: "write", Resource: "pr/**"},
		},
		ContractID:          "ct_abc123",
		DelegationID:        "del_root000001",
		MaxChainDepth:       5,
		MaxBudgetMicrocents: 1_000_000,
		ExpiresAt:           rfc3339(24 * time.Hour),
		IssuedAt:            rfc3339(0),
	})
	require.NoError(t, err)
	return tok
}

func TestCreateAndVerifyRootToken(t *testing.T) {
	issuer := mustKeypair(t, "issuer")
	delegatee := mustKeypair(t, "delegatee")
	tok := baseRootToken(t, issuer, delegatee)

	scope, denial := VerifyDCT(tok, VerifyContext{
		Resource:      "pr/1/diff",
		Operation:     "write",
		Namespace:     "repo",
		Now:           rfc3339(time.Hour),
		RootPublicKey: types.PrincipalID(issuer.PrincipalID()),
		RevocationIDs: map[string]bool{},
	})
	require.Nil(t, denial)
	assert.Equal(t, 0, scope.ChainDepth)
	assert.Equal(t, int64(1_000_000), scope.RemainingBudgetMicrocents)
}

func TestAttenuateNarrowsCapabilitiesBudgetAndExpiry(t *testing.T) {
	issuer := mustKeypair(t, "issuer")
	delegatee := mustKeypair(t, "delegatee")
	subDelegatee := mustKeypair(t, "sub-delegatee")
	root := baseRootToken(t, issuer, delegatee)

	budget := int64(100_000)
	expires := rfc3339(2 * time.Hour)
	child, err := AttenuateDCT(AttenuateParams{
		Parent:               root,
		AttenuatorPrivateKey: delegatee.Private,
		Attenuator:           types.PrincipalID(delegatee.PrincipalID()),
		Delegatee:            types.PrincipalID(subDelegatee.PrincipalID()),
		DelegationID:         "del_child00001",
		ContractID:           "ct_abc123",
		AllowedCapabilities: []types.Capability{
			{Namespace: "repo", Action: "write", Resource: "pr/1/**"},
		},
		MaxBudgetMicrocents: &budget,
		ExpiresAt:           &expires,
	})
	require.NoError(t, err)

	scope, denial := VerifyDCT(child, VerifyContext{
		Resource:      "pr/1/diff",
		Operation:     "write",
		Namespace:     "repo",
		Now:           rfc3339(time.Hour),
		RootPublicKey: types.PrincipalID(issuer.PrincipalID()),
		RevocationIDs: map[string]bool{},
	})
	require.Nil(t, denial)
	assert.Equal(t, 1, scope.ChainDepth)
	assert.Equal(t, int64(100_000), scope.RemainingBudgetMicrocents)

	_, denial = VerifyDCT(child, VerifyContext{
		Resource:      "pr/2/diff",
		Operation:     "write",
		Namespace:     "repo",
		Now:           rfc3339(time.Hour),
		RootPublicKey: types.PrincipalID(issuer.PrincipalID()),
		RevocationIDs: map[string]bool{},
	})
	require.NotNil(t, denial)
	assert.Equal(t, DenialCapabilityNotGranted, denial.Code)
}

func TestAttenuateRejectsCapabilityExpansion(t *testing.T) {
	issuer := mustKeypair(t, "issuer")
	delegatee := mustKeypair(t, "delegatee")
	subDelegatee := mustKeypair(t, "sub-delegatee")
	root := baseRootToken(t, issuer, delegatee)

	_, err := AttenuateDCT(AttenuateParams{
		Parent:               root,
		AttenuatorPrivateKey: delegatee.Private,
		Attenuator:           types.PrincipalID(delegatee.PrincipalID()),
		Delegatee:            types.PrincipalID(subDelegatee.PrincipalID()),
		DelegationID:         "del_child00002",
		ContractID:           "ct_abc123",
		AllowedCapabilities: []types.Capability{
			{Namespace: "repo", Action: "write", Resource: "**"},
		},
	})
	require.Error(t, err)
	var attnErr *AttenuationError
	require.ErrorAs(t, err, &attnErr)
	assert.Equal(t, CapabilityExpansion, attnErr.Code)
}

func TestAttenuateRejectsBudgetAndExpiryExpansion(t *testing.T) {
	issuer := mustKeypair(t, "issuer")
	delegatee := mustKeypair(t, "delegatee")
	subDelegatee := mustKeypair(t, "sub-delegatee")
	root := baseRootToken(t, issuer, delegatee)

	biggerBudget := int64(5_000_000)
	_, err := AttenuateDCT(AttenuateParams{
		Parent:               root,
		AttenuatorPrivateKey: delegatee.Private,
		Attenuator:           types.PrincipalID(delegatee.PrincipalID()),
		Delegatee:            types.PrincipalID(subDelegatee.PrincipalID()),
		DelegationID:         "del_child00003",
		ContractID:           "ct_abc123",
		MaxBudgetMicrocents:  &biggerBudget,
	})
	var attnErr *AttenuationError
	require.ErrorAs(t, err, &attnErr)
	assert.Equal(t, BudgetExpansion, attnErr.Code)

	laterExpiry := rfc3339(48 * time.Hour)
	_, err = AttenuateDCT(AttenuateParams{
		Parent:               root,
		AttenuatorPrivateKey: delegatee.Private,
		Attenuator:           types.PrincipalID(delegatee.PrincipalID()),
		Delegatee:            types.PrincipalID(subDelegatee.PrincipalID()),
		DelegationID:         "del_child00004",
		ContractID:           "ct_abc123",
		ExpiresAt:            &laterExpiry,
	})
	require.ErrorAs(t, err, &attnErr)
	assert.Equal(t, ExpiryExpansion, attnErr.Code)
}

func TestAttenuateRejectsWrongAttenuator(t *testing.T) {
	issuer := mustKeypair(t, "issuer")
	delegatee := mustKeypair(t, "delegatee")
	impostor := mustKeypair(t, "impostor")
	subDelegatee := mustKeypair(t, "sub-delegatee")
	root := baseRootToken(t, issuer, delegatee)

	_, err := AttenuateDCT(AttenuateParams{
		Parent:               root,
		AttenuatorPrivateKey: impostor.Private,
		Attenuator:           types.PrincipalID(impostor.PrincipalID()),
		Delegatee:            types.PrincipalID(subDelegatee.PrincipalID()),
		DelegationID:         "del_child00005",
		ContractID:           "ct_abc123",
	})
	var attnErr *AttenuationError
	require.ErrorAs(t, err, &attnErr)
	assert.Equal(t, AttenuatorMismatch, attnErr.Code)
}

func TestVerifyDCTDeniesExpiredToken(t *testing.T) {
	issuer := mustKeypair(t, "issuer")
	delegatee := mustKeypair(t, "delegatee")
	tok := baseRootToken(t, issuer, delegatee)

	_, denial := VerifyDCT(tok, VerifyContext{
		Resource:      "pr/1/diff",
		Operation:     "write",
		Namespace:     "repo",
		Now:           rfc3339(48 * time.Hour),
		RootPublicKey: types.PrincipalID(issuer.PrincipalID()),
		RevocationIDs: map[string]bool{},
	})
	require.NotNil(t, denial)
	assert.Equal(t, DenialExpired, denial.Code)
}

func TestVerifyDCTDeniesBudgetExceeded(t *testing.T) {
	issuer := mustKeypair(t, "issuer")
	delegatee := mustKeypair(t, "delegatee")
	tok := baseRootToken(t, issuer, delegatee)

	_, denial := VerifyDCT(tok, VerifyContext{
		Resource:        "pr/1/diff",
		Operation:       "write",
		Namespace:       "repo",
		Now:             rfc3339(time.Hour),
		SpentMicrocents: 1_000_000,
		RootPublicKey:   types.PrincipalID(issuer.PrincipalID()),
		RevocationIDs:   map[string]bool{},
	})
	require.NotNil(t, denial)
	assert.Equal(t, DenialBudgetExceeded, denial.Code)
}

func TestVerifyDCTDeniesRevokedBlock(t *testing.T) {
	issuer := mustKeypair(t, "issuer")
	delegatee := mustKeypair(t, "delegatee")
	tok := baseRootToken(t, issuer, delegatee)

	ids, err := AllRevocationIDs(mustDeserializeForTest(t, tok))
	require.NoError(t, err)

	_, denial := VerifyDCT(tok, VerifyContext{
		Resource:      "pr/1/diff",
		Operation:     "write",
		Namespace:     "repo",
		Now:           rfc3339(time.Hour),
		RootPublicKey: types.PrincipalID(issuer.PrincipalID()),
		RevocationIDs: map[string]bool{ids[0]: true},
	})
	require.NotNil(t, denial)
	assert.Equal(t, DenialRevoked, denial.Code)
	assert.Equal(t, ids[0], denial.RevocationID)
}

func TestVerifyDCTDeniesChainDepthExceeded(t *testing.T) {
	issuer := mustKeypair(t, "issuer")
	delegatee := mustKeypair(t, "delegatee")
	subDelegatee := mustKeypair(t, "sub-delegatee")
	root := baseRootToken(t, issuer, delegatee)

	// One attenuation puts the token at depth 1, above a limit of 0.
	tok, err := AttenuateDCT(AttenuateParams{
		Parent:               root,
		AttenuatorPrivateKey: delegatee.Private,
		Attenuator:           types.PrincipalID(delegatee.PrincipalID()),
		Delegatee:            types.PrincipalID(subDelegatee.PrincipalID()),
		DelegationID:         "del_child00006",
		ContractID:           "ct_abc123",
	})
	require.NoError(t, err)

	depthLimit := 0
	_, denial := VerifyDCT(tok, VerifyContext{
		Resource:      "pr/1/diff",
		Operation:     "write",
		Namespace:     "repo",
		Now:           rfc3339(time.Hour),
		RootPublicKey: types.PrincipalID(issuer.PrincipalID()),
		RevocationIDs: map[string]bool{},
		MaxChainDepth: &depthLimit,
	})
	require.NotNil(t, denial)
	assert.Equal(t, DenialChainDepthExceeded, denial.Code)
}

func TestVerifyDCTDeniesWrongRootKey(t *testing.T) {
	issuer := mustKeypair(t, "issuer")
	delegatee := mustKeypair(t, "delegatee")
	impostorRoot := mustKeypair(t, "impostor-root")
	tok := baseRootToken(t, issuer, delegatee)

	_, denial := VerifyDCT(tok, VerifyContext{
		Resource:      "pr/1/diff",
		Operation:     "write",
		Namespace:     "repo",
		Now:           rfc3339(time.Hour),
		RootPublicKey: types.PrincipalID(impostorRoot.PrincipalID()),
		RevocationIDs: map[string]bool{},
	})
	require.NotNil(t, denial)
	assert.Equal(t, DenialInvalidSignature, denial.Code)
}

func TestVerifyDCTRejectsFlippedSignatureByte(t *testing.T) {
	issuer := mustKeypair(t, "issuer")
	delegatee := mustKeypair(t, "delegatee")
	tok := baseRootToken(t, issuer, delegatee)

	decoded := mustDeserializeForTest(t, tok)
	sigBytes, err := crypto.DecodeB64(decoded.Signatures[0].Signature)
	require.NoError(t, err)
	sigBytes[0] ^= 0xFF
	decoded.Signatures[0].Signature = crypto.EncodeB64(sigBytes)

	tampered, err := Serialize(decoded)
	require.NoError(t, err)

	_, denial := VerifyDCT(tampered, VerifyContext{
		Resource:      "pr/1/diff",
		Operation:     "write",
		Namespace:     "repo",
		Now:           rfc3339(time.Hour),
		RootPublicKey: types.PrincipalID(issuer.PrincipalID()),
		RevocationIDs: map[string]bool{},
	})
	require.NotNil(t, denial)
	assert.Equal(t, DenialInvalidSignature, denial.Code)
}

func TestVerifyDCTRejectsMalformedToken(t *testing.T) {
	_, denial := VerifyDCT(Serialized{Token: "not-valid-base64!!!", Format: FormatSJTv1}, VerifyContext{
		RootPublicKey: "anything",
	})
	require.NotNil(t, denial)
	assert.Equal(t, DenialMalformed, denial.Code)
}

func mustDeserializeForTest(t *testing.T, s Serialized) *Token {
	t.Helper()
	tok, err := Deserialize(s)
	require.NoError(t, err)
	return tok
}
