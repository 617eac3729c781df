package dct

import (
	"github.com/dataparency-dev/delegation-core/internal/capability"
	"github.com/dataparency-dev/delegation-core/internal/types"
)

// EffectiveBounds is the result of left-folding a token's attenuations
// over its authority block: the narrowest capability/budget/expiry/
// depth bound in force at the current tip of the chain.
type EffectiveBounds struct {
	Capabilities        []types.Capability
	MaxBudgetMicrocents int64
	ExpiresAt           string
	MaxChainDepth       int
	CurrentDelegatee    types.PrincipalID
	ContractID          string
	DelegationID        string
	ActualDepth         int
}

// foldEffective computes the effective bounds after applying the first
// n attenuations (n may be len(tok.Attenuations) for "all of them").
// It performs no validation — callers that need narrowing enforced call
// validateNarrowing per-step alongside this.
func foldEffective(tok *Token, n int) EffectiveBounds {
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
	for i := 0; i < n && i < len(tok.Attenuations); i++ {
		a := tok.Attenuations[i]
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
	return eff
}

// narrowingViolation names which field broke monotonic narrowing, or
// "" if none did.
type narrowingViolation string

const (
	violationNone              narrowingViolation = ""
	violationCapabilityExpand  narrowingViolation = "CapabilityExpansion"
	violationBudgetExpand      narrowingViolation = "BudgetExpansion"
	violationExpiryExpand      narrowingViolation = "ExpiryExpansion"
	violationChainDepthNotNarr narrowingViolation = "ChainDepthNotNarrowed"
)

// validateNarrowing checks one attenuation's optional fields against
// the parent's effective bounds.
func validateNarrowing(a AttenuationBlock, parent EffectiveBounds) narrowingViolation {
	if a.AllowedCapabilities != nil {
		for _, c := range a.AllowedCapabilities {
			if !capability.IsSubset(c, parent.Capabilities) {
				return violationCapabilityExpand
			}
		}
	}
	if a.MaxBudgetMicrocents != nil && *a.MaxBudgetMicrocents > parent.MaxBudgetMicrocents {
		return violationBudgetExpand
	}
	if a.ExpiresAt != nil && *a.ExpiresAt > parent.ExpiresAt {
		return violationExpiryExpand
	}
	if a.MaxChainDepth != nil && *a.MaxChainDepth >= parent.MaxChainDepth {
		return violationChainDepthNotNarr
	}
	return violationNone
}
