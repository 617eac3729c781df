// Package attestation implements signed outcome records and the trust
// engine that turns a principal's attestation history into a
// recency-weighted composite score.
package attestation

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/dataparency-dev/delegation-core/internal/crypto"
	"github.com/dataparency-dev/delegation-core/internal/types"
)

// VerificationOutcome carries the dispatcher's verdict for a completion
// attestation, when available, feeding the trust engine's outcome
// recording.
type VerificationOutcome struct {
	Passed bool     `json:"passed"`
	Score  *float64 `json:"score,omitempty"`
}

// Attestation is a signed record of an outcome: either a delegatee's
// own task completion, or one principal's verification of another's
// delegation.
type Attestation struct {
	ID                 string                 `json:"id"`
	Type               types.AttestationType  `json:"type"`
	Signer             types.PrincipalID      `json:"signer"`
	ContractID         string                 `json:"contractId"`
	DelegationID       string                 `json:"delegationId"`
	Success            bool                   `json:"success"`
	Verification       *VerificationOutcome   `json:"verification,omitempty"`
	DurationMs         int64                  `json:"durationMs"`
	ChildAttestations  []string               `json:"childAttestations"`
	IssuedAt           string                 `json:"issuedAt"`
	Signature          string                 `json:"signature"`
}

// signedFields is every Attestation field except Signature.
type signedFields struct {
	ID                string                `json:"id"`
	Type              types.AttestationType `json:"type"`
	Signer            types.PrincipalID     `json:"signer"`
	ContractID        string                `json:"contractId"`
	DelegationID      string                `json:"delegationId"`
	Success           bool                  `json:"success"`
	Verification      *VerificationOutcome  `json:"verification,omitempty"`
	DurationMs        int64                 `json:"durationMs"`
	ChildAttestations []string              `json:"childAttestations"`
	IssuedAt          string                `json:"issuedAt"`
}

func (a Attestation) signedFields() signedFields {
	return signedFields{
		ID: a.ID, Type: a.Type, Signer: a.Signer, ContractID: a.ContractID,
		DelegationID: a.DelegationID, Success: a.Success, Verification: a.Verification,
		DurationMs: a.DurationMs, ChildAttestations: a.ChildAttestations, IssuedAt: a.IssuedAt,
	}
}

// generateID returns "att_" followed by 12 lowercase hex characters.
func generateID() (string, error) {
	var b [6]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("attestation: generate id: %w", err)
	}
	return "att_" + hex.EncodeToString(b[:]), nil
}

func create(signerKey ed25519.PrivateKey, signer types.PrincipalID, kind types.AttestationType,
	contractID, delegationID string, success bool, verification *VerificationOutcome,
	durationMs int64, childAttestations []string, issuedAt string) (Attestation, error) {
	id, err := generateID()
	if err != nil {
		return Attestation{}, err
	}
	if childAttestations == nil {
		childAttestations = []string{}
	}
	a := Attestation{
		ID: id, Type: kind, Signer: signer, ContractID: contractID, DelegationID: delegationID,
		Success: success, Verification: verification, DurationMs: durationMs,
		ChildAttestations: childAttestations, IssuedAt: issuedAt,
	}
	sig, err := crypto.SignObject(signerKey, a.signedFields())
	if err != nil {
		return Attestation{}, fmt.Errorf("attestation: sign: %w", err)
	}
	a.Signature = sig
	return a, nil
}

// CreateCompletionAttestation records a delegatee's own task completion.
func CreateCompletionAttestation(signerKey ed25519.PrivateKey, signer types.PrincipalID, contractID, delegationID string,
	success bool, verification *VerificationOutcome, durationMs int64, childAttestations []string, issuedAt string) (Attestation, error) {
	return create(signerKey, signer, types.AttestationCompletion, contractID, delegationID, success, verification, durationMs, childAttestations, issuedAt)
}

// CreateDelegationVerificationAttestation records one principal's
// verification of a sub-delegation's completion.
func CreateDelegationVerificationAttestation(signerKey ed25519.PrivateKey, signer types.PrincipalID, contractID, delegationID string,
	success bool, verification *VerificationOutcome, durationMs int64, childAttestations []string, issuedAt string) (Attestation, error) {
	return create(signerKey, signer, types.AttestationDelegationVerify, contractID, delegationID, success, verification, durationMs, childAttestations, issuedAt)
}

// VerifyAttestationSignature reports whether a.Signature verifies
// against expectedSignerID, and that a.Signer matches it.
func VerifyAttestationSignature(a Attestation, expectedSignerID types.PrincipalID) bool {
	if a.Signer != expectedSignerID {
		return false
	}
	return crypto.VerifyObjectSignature(string(expectedSignerID), a.signedFields(), a.Signature)
}
