package dct

import (
	"crypto/ed25519"

	"github.com/dataparency-dev/delegation-core/internal/crypto"
	"github.com/dataparency-dev/delegation-core/internal/types"
)

// AttenuateParams names the new attenuation to append. Any of the
// narrowing fields left nil means "inherit the parent's effective
// bound".
type AttenuateParams struct {
	Parent               Serialized
	AttenuatorPrivateKey ed25519.PrivateKey
	Attenuator           types.PrincipalID
	Delegatee            types.PrincipalID
	DelegationID         string
	ContractID           string
	AllowedCapabilities  []types.Capability
	MaxBudgetMicrocents  *int64
	ExpiresAt            *string
	MaxChainDepth        *int
}

// AttenuateDCT appends a narrowing attenuation block to parent, signed
// by the attenuator, and returns the re-serialized token.
func AttenuateDCT(p AttenuateParams) (Serialized, error) {
	tok, err := Deserialize(p.Parent)
	if err != nil {
		return Serialized{}, attenuationErr(AttenuateMalformed, err.Error())
	}

	current := effectiveDelegatee(tok, len(tok.Attenuations))
	if p.Attenuator != current {
		return Serialized{}, attenuationErr(AttenuatorMismatch,
			"attenuator "+string(p.Attenuator)+" does not match current delegatee "+string(current))
	}

	parentBounds := foldEffective(tok, len(tok.Attenuations))

	next := AttenuationBlock{
		Attenuator:          p.Attenuator,
		Delegatee:           p.Delegatee,
		DelegationID:        p.DelegationID,
		ContractID:          p.ContractID,
		AllowedCapabilities: p.AllowedCapabilities,
		MaxBudgetMicrocents: p.MaxBudgetMicrocents,
		ExpiresAt:           p.ExpiresAt,
		MaxChainDepth:       p.MaxChainDepth,
	}

	switch validateNarrowing(next, parentBounds) {
	case violationCapabilityExpand:
		return Serialized{}, attenuationErr(CapabilityExpansion, "allowedCapabilities is not a subset of the parent's effective capabilities")
	case violationBudgetExpand:
		return Serialized{}, attenuationErr(BudgetExpansion, "maxBudgetMicrocents exceeds the parent's effective budget")
	case violationExpiryExpand:
		return Serialized{}, attenuationErr(ExpiryExpansion, "expiresAt is later than the parent's effective expiry")
	case violationChainDepthNotNarr:
		return Serialized{}, attenuationErr(ChainDepthNotNarrowed, "maxChainDepth must be strictly less than the parent's effective maxChainDepth")
	}

	newAttenuations := append(append([]AttenuationBlock{}, tok.Attenuations...), next)

	sigB64, err := crypto.SignObject(p.AttenuatorPrivateKey, prefixSigned{
		Authority:    tok.Authority,
		Attenuations: newAttenuations,
	})
	if err != nil {
		return Serialized{}, attenuationErr(AttenuateMalformed, err.Error())
	}

	tok.Attenuations = newAttenuations
	tok.Signatures = append(tok.Signatures, Signature{
		Signer:    p.Attenuator,
		Signature: sigB64,
		Covers:    CoversAttenuation(len(newAttenuations) - 1),
	})

	return Serialize(tok)
}
