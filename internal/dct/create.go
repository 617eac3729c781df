package dct

import (
	"crypto/ed25519"
	"fmt"

	"github.com/dataparency-dev/delegation-core/internal/crypto"
	"github.com/dataparency-dev/delegation-core/internal/types"
)

// CreateParams assembles the authority block for a fresh DCT. Callers
// (brokers, orchestrators) are responsible for meaningful initial
// bounds — CreateDCT performs no semantic validation beyond signing.
type CreateParams struct {
	IssuerPrivateKey    ed25519.PrivateKey
	Issuer              types.PrincipalID
	Delegatee           types.PrincipalID
	Capabilities        []types.Capability
	ContractID          string
	DelegationID        string
	ParentDelegationID  string // defaults to types.RootDelegationID when empty
	ChainDepth          int
	MaxChainDepth       int
	MaxBudgetMicrocents int64
	ExpiresAt           string // RFC3339 "Z"
	IssuedAt            string // RFC3339 "Z" — caller-supplied "now"
}

// CreateDCT assembles the authority block, signs {authority} with the
// issuer's private key, and returns the serialized token.
func CreateDCT(p CreateParams) (Serialized, error) {
	if len(p.IssuerPrivateKey) != ed25519.PrivateKeySize {
		return Serialized{}, fmt.Errorf("dct: create: %w", &crypto.Error{Code: crypto.ErrInvalidKey, Detail: "issuer private key must be 32 bytes (64-byte expanded form)"})
	}
	parentID := p.ParentDelegationID
	if parentID == "" {
		parentID = types.RootDelegationID
	}

	authority := AuthorityBlock{
		Issuer:              p.Issuer,
		Delegatee:           p.Delegatee,
		Capabilities:        p.Capabilities,
		ContractID:          p.ContractID,
		DelegationID:        p.DelegationID,
		ParentDelegationID:  parentID,
		ChainDepth:          p.ChainDepth,
		MaxChainDepth:       p.MaxChainDepth,
		MaxBudgetMicrocents: p.MaxBudgetMicrocents,
		ExpiresAt:           p.ExpiresAt,
		IssuedAt:            p.IssuedAt,
	}

	sigB64, err := crypto.SignObject(p.IssuerPrivateKey, authoritySigned{Authority: authority})
	if err != nil {
		return Serialized{}, fmt.Errorf("dct: create: sign authority: %w", err)
	}

	tok := &Token{
		Format:       FormatSJTv1,
		Authority:    authority,
		Attenuations: []AttenuationBlock{},
		Signatures: []Signature{
			{Signer: p.Issuer, Signature: sigB64, Covers: CoversAuthority()},
		},
	}
	return Serialize(tok)
}
