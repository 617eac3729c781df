// Package revocation implements the revocation subsystem: signed
// revocation entries, a local store, and a distributed gossip store
// with dedup and anti-entropy sync.
package revocation

import (
	"crypto/ed25519"
	"fmt"

	"github.com/dataparency-dev/delegation-core/internal/crypto"
	"github.com/dataparency-dev/delegation-core/internal/types"
)

// Scope is advisory metadata on a revocation entry — the engine treats
// any matching id as revoked regardless of scope.
type Scope string

const (
	ScopeBlock Scope = "block"
	ScopeChain Scope = "chain"
)

// Entry is a signed revocation of one DCT block.
type Entry struct {
	RevocationID string            `json:"revocationId"`
	RevokedBy    types.PrincipalID `json:"revokedBy"`
	RevokedAt    string            `json:"revokedAt"`
	Scope        Scope             `json:"scope"`
	Signature    string            `json:"signature"`
}

// signedFields is every field of Entry except Signature — what gets
// canonicalized and signed: every field except the signature itself.
type signedFields struct {
	RevocationID string            `json:"revocationId"`
	RevokedBy    types.PrincipalID `json:"revokedBy"`
	RevokedAt    string            `json:"revokedAt"`
	Scope        Scope             `json:"scope"`
}

func (e Entry) signedFields() signedFields {
	return signedFields{RevocationID: e.RevocationID, RevokedBy: e.RevokedBy, RevokedAt: e.RevokedAt, Scope: e.Scope}
}

// NewEntry builds a revocation entry and signs every field except the
// signature. It does not add the entry to any store.
func NewEntry(signerKey ed25519.PrivateKey, revokedBy types.PrincipalID, revocationID, revokedAt string, scope Scope) (Entry, error) {
	e := Entry{RevocationID: revocationID, RevokedBy: revokedBy, RevokedAt: revokedAt, Scope: scope}
	sig, err := crypto.SignObject(signerKey, e.signedFields())
	if err != nil {
		return Entry{}, fmt.Errorf("revocation: sign entry: %w", err)
	}
	e.Signature = sig
	return e, nil
}

// VerifySignature reports whether e.Signature verifies against e.RevokedBy.
func (e Entry) VerifySignature() bool {
	return crypto.VerifyObjectSignature(string(e.RevokedBy), e.signedFields(), e.Signature)
}
