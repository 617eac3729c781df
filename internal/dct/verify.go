package dct

import (
	"github.com/dataparency-dev/delegation-core/internal/capability"
	"github.com/dataparency-dev/delegation-core/internal/crypto"
	"github.com/dataparency-dev/delegation-core/internal/types"
)

// DefaultMaxChainDepth is used when a VerifyContext omits MaxChainDepth.
const DefaultMaxChainDepth = 10

// VerifyContext is everything a caller must supply to check one
// request against one token.
type VerifyContext struct {
	Resource        string
	Operation       string
	Namespace       string // "" if the caller does not supply one
	Now             string // RFC3339 "Z"
	SpentMicrocents int64
	RootPublicKey   types.PrincipalID
	RevocationIDs   map[string]bool
	MaxChainDepth   *int // nil uses DefaultMaxChainDepth
}

// AuthorizedScope is the result of a successful verification.
type AuthorizedScope struct {
	Capabilities              []types.Capability
	RemainingBudgetMicrocents int64
	ChainDepth                int
	MaxChainDepth             int
	ContractID                string
	DelegationID              string
}

// VerifyDCT walks the signature chain, checks revocation, expiry,
// budget, chain depth and capability match, and returns either the
// authorized scope or a tagged denial reason.
func VerifyDCT(serialized Serialized, ctx VerifyContext) (*AuthorizedScope, *DenialReason) {
	tok, err := Deserialize(serialized)
	if err != nil {
		return nil, denyMalformed(err.Error())
	}

	// Step 2: revocation check happens before any signature work, so a
	// revoked-but-invalid token still surfaces as Revoked.
	ids, err := AllRevocationIDs(tok)
	if err != nil {
		return nil, denyMalformed(err.Error())
	}
	for _, id := range ids {
		if ctx.RevocationIDs[id] {
			return nil, &DenialReason{Code: DenialRevoked, RevocationID: id, Detail: "block " + id + " is revoked"}
		}
	}

	// Step 3: signature structure + root key.
	if len(tok.Signatures) == 0 || !tok.Signatures[0].Covers.Authority {
		return nil, denyInvalidSignature("signature 0 must exist and cover \"authority\"")
	}
	if tok.Authority.Issuer != ctx.RootPublicKey {
		return nil, denyInvalidSignature("authority issuer does not match the trusted root public key")
	}
	if len(tok.Signatures) != 1+len(tok.Attenuations) {
		return nil, denyInvalidSignature("expected 1 + len(attenuations) signatures")
	}

	// Step 4: authority signature.
	if !crypto.VerifyObjectSignature(string(tok.Authority.Issuer), authoritySigned{Authority: tok.Authority}, tok.Signatures[0].Signature) {
		return nil, denyInvalidSignature("authority signature does not verify")
	}

	// Step 5: each attenuation signature.
	for i := range tok.Attenuations {
		prefix := prefixSigned{Authority: tok.Authority, Attenuations: tok.Attenuations[:i+1]}
		sig := tok.Signatures[i+1]
		if sig.Covers.Authority || sig.Covers.Index != i {
			return nil, denyInvalidSignature("signature covers mismatch at attenuation index")
		}
		if sig.Signer != tok.Attenuations[i].Attenuator {
			return nil, denyInvalidSignature("signature signer does not match attenuator")
		}
		if !crypto.VerifyObjectSignature(string(tok.Attenuations[i].Attenuator), prefix, sig.Signature) {
			return nil, denyInvalidSignature("attenuation signature does not verify")
		}
	}

	// Step 6: attenuation chain traversal — narrowing must hold at every step.
	eff := EffectiveBounds{
		Capabilities:        tok.Authority.Capabilities,
		MaxBudgetMicrocents: tok.Authority.MaxBudgetMicrocents,
		ExpiresAt:           tok.Authority.ExpiresAt,
		MaxChainDepth:       tok.Authority.MaxChainDepth,
		CurrentDelegatee:    tok.Authority.Delegatee,
		ContractID:          tok.Authority.ContractID,
		DelegationID:        tok.Authority.DelegationID,
		ActualDepth:         tok.Authority.ChainDepth,
	}
	for _, a := range tok.Attenuations {
		if a.Attenuator != eff.CurrentDelegatee {
			return nil, &DenialReason{Code: DenialAttenuationViolation, Detail: "attenuator does not match the previous effective delegatee"}
		}
		switch validateNarrowing(a, eff) {
		case violationCapabilityExpand:
			return nil, &DenialReason{Code: DenialAttenuationViolation, Detail: "allowedCapabilities expands beyond the parent's effective capabilities"}
		case violationBudgetExpand:
			return nil, &DenialReason{Code: DenialAttenuationViolation, Detail: "maxBudgetMicrocents expands beyond the parent's effective budget"}
		case violationExpiryExpand:
			return nil, &DenialReason{Code: DenialAttenuationViolation, Detail: "expiresAt expands beyond the parent's effective expiry"}
		case violationChainDepthNotNarr:
			return nil, &DenialReason{Code: DenialAttenuationViolation, Detail: "maxChainDepth is not strictly narrower than the parent's"}
		}
		if a.AllowedCapabilities != nil {
			eff.Capabilities = a.AllowedCapabilities
		}
		if a.MaxBudgetMicrocents != nil {
			eff.MaxBudgetMicrocents = *a.MaxBudgetMicrocents
		}
		if a.ExpiresAt != nil {
			eff.ExpiresAt = *a.ExpiresAt
		}
		if a.MaxChainDepth != nil {
			eff.MaxChainDepth = *a.MaxChainDepth
		}
		eff.CurrentDelegatee = a.Delegatee
		eff.ContractID = a.ContractID
		eff.DelegationID = a.DelegationID
		eff.ActualDepth++
	}

	// Step 7: chain depth.
	depthLimit := DefaultMaxChainDepth
	if ctx.MaxChainDepth != nil {
		depthLimit = *ctx.MaxChainDepth
	}
	actualDepth := tok.Authority.ChainDepth + len(tok.Attenuations)
	if actualDepth > depthLimit {
		return nil, &DenialReason{Code: DenialChainDepthExceeded, MaxDepth: depthLimit, ActualDepth: actualDepth}
	}

	// Step 8: expiry (lexicographic ISO-8601 comparison).
	if ctx.Now > eff.ExpiresAt {
		return nil, &DenialReason{Code: DenialExpired, Detail: "now " + ctx.Now + " is after effective expiry " + eff.ExpiresAt}
	}

	// Step 9: budget.
	if ctx.SpentMicrocents >= eff.MaxBudgetMicrocents {
		return nil, &DenialReason{Code: DenialBudgetExceeded, BudgetLimit: eff.MaxBudgetMicrocents, BudgetSpent: ctx.SpentMicrocents}
	}

	// Step 10: capability match. Namespace falls back to "" when the
	// caller omits one (see DESIGN.md).
	namespace := ctx.Namespace
	var matched bool
	for _, c := range eff.Capabilities {
		if capability.MatchCapability(c, namespace, ctx.Operation, ctx.Resource) {
			matched = true
			break
		}
	}
	if !matched {
		requested := types.Capability{Namespace: namespace, Action: ctx.Operation, Resource: ctx.Resource}
		return nil, &DenialReason{Code: DenialCapabilityNotGranted, Requested: &requested, Granted: eff.Capabilities}
	}

	// Step 11.
	return &AuthorizedScope{
		Capabilities:              eff.Capabilities,
		RemainingBudgetMicrocents: eff.MaxBudgetMicrocents - ctx.SpentMicrocents,
		ChainDepth:                actualDepth,
		MaxChainDepth:             eff.MaxChainDepth,
		ContractID:                eff.ContractID,
		DelegationID:              eff.DelegationID,
	}, nil
}

// InspectDCT returns the effective bounds and the list of all block
// revocation ids without performing any signature check.
func InspectDCT(serialized Serialized) (*EffectiveBounds, []string, error) {
	tok, err := Deserialize(serialized)
	if err != nil {
		return nil, nil, err
	}
	eff := foldEffective(tok, len(tok.Attenuations))
	ids, err := AllRevocationIDs(tok)
	if err != nil {
		return nil, nil, err
	}
	return &eff, ids, nil
}
