// Package dct implements the Delegation Capability Token engine:
// creation, attenuation, and verification of the signed JSON token
// format (SJT v1). This is the dominant component of the core.
package dct

import (
	"encoding/json"
	"fmt"

	"github.com/dataparency-dev/delegation-core/internal/crypto"
	"github.com/dataparency-dev/delegation-core/internal/types"
)

// FormatSJTv1 tags the signed-JSON-token encoding, distinguishing it
// from any future Datalog/biscuit-style encoding. The backend is chosen
// once, not per verification call, so this package only ever
// implements one.
const FormatSJTv1 = "delegateos-sjt-v1"

// AuthorityBlock is the root block of a DCT; the issuer signs this.
type AuthorityBlock struct {
	Issuer              types.PrincipalID  `json:"issuer"`
	Delegatee           types.PrincipalID  `json:"delegatee"`
	Capabilities        []types.Capability `json:"capabilities"`
	ContractID          string             `json:"contractId"`
	DelegationID        string             `json:"delegationId"`
	ParentDelegationID  string             `json:"parentDelegationId"`
	ChainDepth          int                `json:"chainDepth"`
	MaxChainDepth       int                `json:"maxChainDepth"`
	MaxBudgetMicrocents int64              `json:"maxBudgetMicrocents"`
	ExpiresAt           string             `json:"expiresAt"`
	IssuedAt            string             `json:"issuedAt"`
}

// AttenuationBlock appends a narrowing step, handing the token to a
// new delegatee. Absent optional fields inherit the parent's effective
// bound.
type AttenuationBlock struct {
	Attenuator          types.PrincipalID  `json:"attenuator"`
	Delegatee           types.PrincipalID  `json:"delegatee"`
	DelegationID        string             `json:"delegationId"`
	ContractID          string             `json:"contractId"`
	AllowedCapabilities []types.Capability `json:"allowedCapabilities,omitempty"`
	MaxBudgetMicrocents *int64             `json:"maxBudgetMicrocents,omitempty"`
	ExpiresAt           *string            `json:"expiresAt,omitempty"`
	MaxChainDepth       *int               `json:"maxChainDepth,omitempty"`
}

// Covers identifies which prefix of the token a signature covers:
// either the literal string "authority", or the index of the
// attenuation it covers (the signature covers authority plus
// attenuations[0..=index]).
type Covers struct {
	Authority bool
	Index     int
}

// MarshalJSON renders Covers as an "authority" | <int> union.
func (c Covers) MarshalJSON() ([]byte, error) {
	if c.Authority {
		return json.Marshal("authority")
	}
	return json.Marshal(c.Index)
}

// UnmarshalJSON parses either a JSON string "authority" or a JSON number.
func (c *Covers) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != "authority" {
			return fmt.Errorf("dct: invalid covers string %q", s)
		}
		c.Authority = true
		c.Index = 0
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("dct: invalid covers value: %w", err)
	}
	c.Authority = false
	c.Index = n
	return nil
}

// CoversAuthority and CoversAttenuation build Covers values.
func CoversAuthority() Covers         { return Covers{Authority: true} }
func CoversAttenuation(i int) Covers  { return Covers{Index: i} }

// Signature is one entry in the token's signature chain.
type Signature struct {
	Signer    types.PrincipalID `json:"signer"`
	Signature string            `json:"signature"`
	Covers    Covers            `json:"covers"`
}

// Token is the full decoded SJT document.
type Token struct {
	Format       string             `json:"format"`
	Authority    AuthorityBlock     `json:"authority"`
	Attenuations []AttenuationBlock `json:"attenuations"`
	Signatures   []Signature        `json:"signatures"`
}

// Serialized is the outer wire envelope: base64url(canonical JSON) plus
// a format tag.
type Serialized struct {
	Token  string `json:"token"`
	Format string `json:"format"`
}

// authoritySigned and prefixSigned are the exact subsets signed for
// signature 0 and signatures 1..N respectively: signature 0 covers
// {authority}, and signature i+1 covers {authority, attenuations[0..=i]}.
type authoritySigned struct {
	Authority AuthorityBlock `json:"authority"`
}

type prefixSigned struct {
	Authority    AuthorityBlock     `json:"authority"`
	Attenuations []AttenuationBlock `json:"attenuations"`
}

// Serialize canonicalizes and base64url-encodes a Token into its wire envelope.
func Serialize(tok *Token) (Serialized, error) {
	canon, err := crypto.Canonicalize(tok)
	if err != nil {
		return Serialized{}, fmt.Errorf("dct: serialize: %w", err)
	}
	return Serialized{Token: crypto.EncodeB64(canon), Format: tok.Format}, nil
}

// Deserialize decodes a wire envelope back into a Token. Returns a
// plain error (the caller, typically VerifyDCT, maps this to Malformed).
func Deserialize(s Serialized) (*Token, error) {
	raw, err := crypto.DecodeB64(s.Token)
	if err != nil {
		return nil, fmt.Errorf("dct: invalid base64: %w", err)
	}
	var tok Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("dct: invalid json: %w", err)
	}
	return &tok, nil
}

// effectiveDelegatee returns the delegatee after folding i attenuations
// (i may be len(tok.Attenuations) to get the current delegatee).
func effectiveDelegatee(tok *Token, uptoExclusive int) types.PrincipalID {
	if uptoExclusive == 0 {
		return tok.Authority.Delegatee
	}
	return tok.Attenuations[uptoExclusive-1].Delegatee
}

// blockRevocationID computes the stable revocation id of a single block.
func blockRevocationID(block any) (string, error) {
	return crypto.RevocationIDOf(block)
}

// AllRevocationIDs returns the revocation id of the authority block
// followed by each attenuation block, in order.
func AllRevocationIDs(tok *Token) ([]string, error) {
	ids := make([]string, 0, 1+len(tok.Attenuations))
	id, err := blockRevocationID(tok.Authority)
	if err != nil {
		return nil, err
	}
	ids = append(ids, id)
	for _, a := range tok.Attenuations {
		id, err := blockRevocationID(a)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
