// Package crypto implements the cryptographic primitives the rest of
// the delegation core builds on: Ed25519 sign/verify, BLAKE2b-256
// hashing, RFC 8785 canonical JSON, and base64url encode/decode with
// tolerant padding. Nothing here touches domain types — it operates on
// bytes and on arbitrary values that can be marshaled to JSON.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
	"golang.org/x/crypto/blake2b"
)

// ErrorCode enumerates the ways a crypto primitive can fail. Go has no
// sum types, so this uses the usual struct-keyed-by-an-enum fallback.
type ErrorCode string

const (
	ErrInvalidKey        ErrorCode = "invalid_key"
	ErrInvalidMessage    ErrorCode = "invalid_message"
	ErrInvalidSignature  ErrorCode = "invalid_signature"
	ErrCanonicalize      ErrorCode = "canonicalize_error"
)

// Error is the typed error the exported functions in this package
// return on failure, except DecodeB64, which returns the encoding/base64
// error as is.
type Error struct {
	Code   ErrorCode
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("crypto: %s: %s", e.Code, e.Detail)
}

func newErr(code ErrorCode, detail string) *Error {
	return &Error{Code: code, Detail: detail}
}

// Keypair owns an Ed25519 key pair. The private key is never given a
// json tag anywhere in the core and this type is never marshaled.
type Keypair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
	Name    string
}

// GenerateKeypair creates a fresh, uniformly random Ed25519 key pair.
func GenerateKeypair(name string) (*Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, newErr(ErrInvalidKey, err.Error())
	}
	return &Keypair{Public: pub, Private: priv, Name: name}, nil
}

// PrincipalID returns the base64url (no padding) encoding of the
// public key — the core's sole notion of identity.
func (k *Keypair) PrincipalID() string {
	return EncodeB64(k.Public)
}

// Sign computes an Ed25519 signature over message.
func Sign(private ed25519.PrivateKey, message []byte) ([]byte, error) {
	if len(private) != ed25519.PrivateKeySize {
		return nil, newErr(ErrInvalidKey, "private key must be 32 bytes (64-byte expanded form)")
	}
	if message == nil {
		return nil, newErr(ErrInvalidMessage, "message must not be nil")
	}
	return ed25519.Sign(private, message), nil
}

// Verify reports whether signature is a valid Ed25519 signature of
// message under publicKey. It never raises — any malformed input
// simply yields false.
func Verify(publicKey ed25519.PublicKey, message, signature []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize {
		return false
	}
	if len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(publicKey, message, signature)
}

// Blake2b256 returns the 32-byte BLAKE2b-256 digest of data.
func Blake2b256(data []byte) [32]byte {
	return blake2b.Sum256(data)
}

// Canonicalize produces RFC 8785 canonical JSON bytes for value. It
// first marshals via encoding/json (so Go struct tags control field
// names/omitempty), then re-serializes through jcs.Transform to enforce
// RFC 8785 key ordering and number formatting. Any value that cannot be
// represented (cycles, channels, funcs, NaN/Inf floats) fails here.
func Canonicalize(value any) ([]byte, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, newErr(ErrCanonicalize, err.Error())
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return nil, newErr(ErrCanonicalize, err.Error())
	}
	return canon, nil
}

// SignObject canonicalizes value, hashes it, signs the hash, and
// returns the signature as base64url.
func SignObject(private ed25519.PrivateKey, value any) (string, error) {
	canon, err := Canonicalize(value)
	if err != nil {
		return "", err
	}
	digest := Blake2b256(canon)
	sig, err := Sign(private, digest[:])
	if err != nil {
		return "", err
	}
	return EncodeB64(sig), nil
}

// VerifyObjectSignature reports whether signatureB64 is a valid
// signature (by the scheme SignObject uses) of value under the
// principal whose public key is publicKeyB64. It never raises: any
// malformed base64, wrong-length key, or canonicalization failure
// simply yields false.
func VerifyObjectSignature(publicKeyB64 string, value any, signatureB64 string) bool {
	pub, err := DecodeB64(publicKeyB64)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	sig, err := DecodeB64(signatureB64)
	if err != nil {
		return false
	}
	canon, err := Canonicalize(value)
	if err != nil {
		return false
	}
	digest := Blake2b256(canon)
	return Verify(ed25519.PublicKey(pub), digest[:], sig)
}

// EncodeB64 is base64url without padding, the core's sole byte encoding.
func EncodeB64(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// DecodeB64 decodes base64url, tolerating both padded and unpadded input.
func DecodeB64(s string) ([]byte, error) {
	if b, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.URLEncoding.DecodeString(s)
}

// RevocationIDOf computes the stable, block-local identity of any
// canonicalizable value: base64url(BLAKE2b-256(canonical JSON)).
func RevocationIDOf(block any) (string, error) {
	canon, err := Canonicalize(block)
	if err != nil {
		return "", err
	}
	digest := Blake2b256(canon)
	return EncodeB64(digest[:]), nil
}
