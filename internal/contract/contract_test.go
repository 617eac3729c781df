package contract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataparency-dev/delegation-core/internal/crypto"
	"github.com/dataparency-dev/delegation-core/internal/types"
)

func mustIssuer(t *testing.T) *crypto.Keypair {
	t.Helper()
	kp, err := crypto.GenerateKeypair("issuer")
	require.NoError(t, err)
	return kp
}

func TestCreateContractVerifies(t *testing.T) {
	issuer := mustIssuer(t)
	c, err := CreateContract(issuer.Private, types.PrincipalID(issuer.PrincipalID()),
		TaskSpec{Title: "Summarize PR", Description: "summarize the PR", Input: map[string]any{"prNumber": 42.0}},
		VerificationSpec{Method: types.VerifyDeterministic, CheckName: "field_exists", CheckParams: map[string]any{"fields": []any{"summary"}}},
		Constraints{
			MaxBudgetMicrocents:  1000,
			Deadline:             "2026-02-01T00:00:00Z",
			MaxChainDepth:        3,
			RequiredCapabilities: []string{"repo"},
		},
		"2026-01-01T00:00:00Z",
	)
	require.NoError(t, err)

	assert.Regexp(t, `^ct_[0-9a-f]{12}$`, c.ID)
	assert.Equal(t, ContractVersion, c.Version)
	assert.True(t, VerifyContractSignature(c, types.PrincipalID(issuer.PrincipalID())))
}

func TestVerifyContractSignatureRejectsTamperedConstraints(t *testing.T) {
	issuer := mustIssuer(t)
	c, err := CreateContract(issuer.Private, types.PrincipalID(issuer.PrincipalID()),
		TaskSpec{Description: "x"}, VerificationSpec{Method: types.VerifySchemaMatch},
		Constraints{MaxBudgetMicrocents: 1000}, "2026-01-01T00:00:00Z")
	require.NoError(t, err)

	c.Constraints.MaxBudgetMicrocents = 999_999
	assert.False(t, VerifyContractSignature(c, types.PrincipalID(issuer.PrincipalID())))
}

func TestVerifyContractSignatureRejectsTamperedRequiredCapabilities(t *testing.T) {
	issuer := mustIssuer(t)
	c, err := CreateContract(issuer.Private, types.PrincipalID(issuer.PrincipalID()),
		TaskSpec{Description: "x"}, VerificationSpec{Method: types.VerifySchemaMatch},
		Constraints{MaxBudgetMicrocents: 1000, RequiredCapabilities: []string{"repo"}}, "2026-01-01T00:00:00Z")
	require.NoError(t, err)

	c.Constraints.RequiredCapabilities = append(c.Constraints.RequiredCapabilities, "finance")
	assert.False(t, VerifyContractSignature(c, types.PrincipalID(issuer.PrincipalID())))
}
