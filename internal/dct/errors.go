package dct

import (
	"fmt"

	"github.com/dataparency-dev/delegation-core/internal/types"
)

// DenialCode enumerates the taxonomy of verification denial reasons.
// Go has no sum types, so DenialReason uses the usual struct-keyed-by
// a type field: exhaustive handling over these constants is a
// convention, not a compiler-enforced one.
type DenialCode string

const (
	DenialMalformed            DenialCode = "Malformed"
	DenialRevoked              DenialCode = "Revoked"
	DenialInvalidSignature     DenialCode = "InvalidSignature"
	DenialAttenuationViolation DenialCode = "AttenuationViolation"
	DenialChainDepthExceeded   DenialCode = "ChainDepthExceeded"
	DenialExpired              DenialCode = "Expired"
	DenialBudgetExceeded       DenialCode = "BudgetExceeded"
	DenialCapabilityNotGranted DenialCode = "CapabilityNotGranted"
)

// DenialReason is the tagged result of a failed VerifyDCT call. It
// carries enough context to audit the decision without re-running
// verification.
type DenialReason struct {
	Code         DenialCode
	Detail       string
	RevocationID string             // set for DenialRevoked
	Requested    *types.Capability  // set for DenialCapabilityNotGranted
	Granted      []types.Capability // set for DenialCapabilityNotGranted
	BudgetLimit  int64              // set for DenialBudgetExceeded
	BudgetSpent  int64              // set for DenialBudgetExceeded
	MaxDepth     int                // set for DenialChainDepthExceeded
	ActualDepth  int                // set for DenialChainDepthExceeded
}

func (d *DenialReason) Error() string {
	if d.Detail == "" {
		return string(d.Code)
	}
	return fmt.Sprintf("%s: %s", d.Code, d.Detail)
}

func denyMalformed(detail string) *DenialReason {
	return &DenialReason{Code: DenialMalformed, Detail: detail}
}

func denyInvalidSignature(detail string) *DenialReason {
	return &DenialReason{Code: DenialInvalidSignature, Detail: detail}
}

// AttenuationErrorCode enumerates the unrecoverable-programmer-error
// failures AttenuateDCT can raise.
type AttenuationErrorCode string

const (
	AttenuatorMismatch    AttenuationErrorCode = "AttenuatorMismatch"
	CapabilityExpansion   AttenuationErrorCode = "CapabilityExpansion"
	BudgetExpansion       AttenuationErrorCode = "BudgetExpansion"
	ExpiryExpansion       AttenuationErrorCode = "ExpiryExpansion"
	ChainDepthNotNarrowed AttenuationErrorCode = "ChainDepthNotNarrowed"
	AttenuateMalformed    AttenuationErrorCode = "Malformed"
)

// AttenuationError is returned by AttenuateDCT when a narrowing rule
// is violated or the parent token is malformed.
type AttenuationError struct {
	Code   AttenuationErrorCode
	Detail string
}

func (e *AttenuationError) Error() string {
	return fmt.Sprintf("dct: attenuate: %s: %s", e.Code, e.Detail)
}

func attenuationErr(code AttenuationErrorCode, detail string) *AttenuationError {
	return &AttenuationError{Code: code, Detail: detail}
}
