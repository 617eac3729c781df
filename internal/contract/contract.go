// Package contract implements task contracts — the signed agreement
// between a delegator and delegatee about what "done" means — and the
// verification dispatcher that checks an output against one.
package contract

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/dataparency-dev/delegation-core/internal/crypto"
	"github.com/dataparency-dev/delegation-core/internal/types"
)

// ContractVersion is stamped onto every contract this package creates.
const ContractVersion = "0.1"

// VerificationSpec names how a contract's output gets checked. Exactly
// one of Schema/CheckName+CheckParams/Steps applies, selected by
// Method.
type VerificationSpec struct {
	Method        types.VerificationMethod `json:"method"`
	Schema        map[string]any           `json:"schema,omitempty"`
	CheckName     string                   `json:"checkName,omitempty"`
	CheckParams   map[string]any           `json:"checkParams,omitempty"`
	ExpectedResult *CheckResult            `json:"expectedResult,omitempty"`
	Steps         []VerificationSpec       `json:"steps,omitempty"`
	Mode          types.CompositeMode      `json:"mode,omitempty"`
	Weights       []float64                `json:"weights,omitempty"`
	PassThreshold *float64                 `json:"passThreshold,omitempty"`
}

// Constraints bounds a delegated task: budget, deadline, the maximum
// delegation chain depth this task may be re-delegated across, and the
// capability namespaces any delegatee must be granted from.
type Constraints struct {
	MaxBudgetMicrocents  int64    `json:"maxBudgetMicrocents"`
	Deadline             string   `json:"deadline"`
	MaxChainDepth        int64    `json:"maxChainDepth"`
	RequiredCapabilities []string `json:"requiredCapabilities"`
}

// TaskSpec is the structured description of the work a contract covers:
// a human-readable title/description, the caller-supplied input, and
// the JSON-Schema fragment the task's output is expected to conform to.
type TaskSpec struct {
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	Input        map[string]any `json:"input"`
	OutputSchema map[string]any `json:"outputSchema,omitempty"`
}

// TaskContract is the signed agreement a DCT's contractId refers to.
type TaskContract struct {
	ID           string            `json:"id"`
	Version      string            `json:"version"`
	Issuer       types.PrincipalID `json:"issuer"`
	Task         TaskSpec          `json:"task"`
	Verification VerificationSpec  `json:"verification"`
	Constraints  Constraints       `json:"constraints"`
	IssuedAt     string            `json:"issuedAt"`
	Signature    string            `json:"signature"`
}

type signedFields struct {
	ID           string            `json:"id"`
	Version      string            `json:"version"`
	Issuer       types.PrincipalID `json:"issuer"`
	Task         TaskSpec          `json:"task"`
	Verification VerificationSpec  `json:"verification"`
	Constraints  Constraints       `json:"constraints"`
	IssuedAt     string            `json:"issuedAt"`
}

func (c TaskContract) signedFields() signedFields {
	return signedFields{
		ID: c.ID, Version: c.Version, Issuer: c.Issuer, Task: c.Task,
		Verification: c.Verification, Constraints: c.Constraints, IssuedAt: c.IssuedAt,
	}
}

func generateID() (string, error) {
	var b [6]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("contract: generate id: %w", err)
	}
	return "ct_" + hex.EncodeToString(b[:]), nil
}

// CreateContract assembles and signs a TaskContract: generate an id,
// set version 0.1, stamp the issue time, assemble the fields, then
// sign everything but the signature itself.
func CreateContract(issuerKey ed25519.PrivateKey, issuer types.PrincipalID, task TaskSpec,
	verification VerificationSpec, constraints Constraints, issuedAt string) (TaskContract, error) {
	id, err := generateID()
	if err != nil {
		return TaskContract{}, err
	}
	c := TaskContract{
		ID: id, Version: ContractVersion, Issuer: issuer, Task: task,
		Verification: verification, Constraints: constraints, IssuedAt: issuedAt,
	}
	sig, err := crypto.SignObject(issuerKey, c.signedFields())
	if err != nil {
		return TaskContract{}, fmt.Errorf("contract: sign: %w", err)
	}
	c.Signature = sig
	return c, nil
}

// VerifyContractSignature reports whether c.Signature verifies against
// expectedSignerID, analogous to attestation signature verification.
func VerifyContractSignature(c TaskContract, expectedSignerID types.PrincipalID) bool {
	if c.Issuer != expectedSignerID {
		return false
	}
	return crypto.VerifyObjectSignature(string(expectedSignerID), c.signedFields(), c.Signature)
}
