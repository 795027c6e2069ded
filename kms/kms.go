// Package kms provides key generation, signing and verification for the
// key types used by DID documents and credential proofs. Private key bytes
// never cross the KeyManager interface; callers hold opaque handles.
package kms

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/base58"
)

// KeyType identifies a supported signing algorithm family.
type KeyType string

const (
	KeyTypeEd25519   KeyType = "Ed25519"
	KeyTypeSecp256k1 KeyType = "Secp256k1"
)

// Algorithm returns the JOSE algorithm name for the key type.
func (kt KeyType) Algorithm() (string, error) {
	switch kt {
	case KeyTypeEd25519:
		return "EdDSA", nil
	case KeyTypeSecp256k1:
		return "ES256K", nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedKeyType, kt)
	}
}

// KeyHandle is an opaque reference to a key held by a KeyManager.
type KeyHandle string

// PublicKey carries raw public key material together with its type.
// Ed25519 keys are 32 raw bytes, secp256k1 keys are 33 compressed bytes.
type PublicKey struct {
	Type  KeyType
	Bytes []byte
}

// Base58 returns the key material in base58btc, the encoding used by
// Ed25519 verification methods.
func (p PublicKey) Base58() string {
	return base58.Encode(p.Bytes)
}

// Hex returns the key material as 0x-prefixed hex, the encoding used by
// secp256k1 verification methods.
func (p PublicKey) Hex() string {
	return "0x" + hex.EncodeToString(p.Bytes)
}

var (
	ErrUnsupportedKeyType = errors.New("unsupported key type")
	ErrKeyNotFound        = errors.New("key not found")
	ErrRemoteGenerate     = errors.New("remote key manager cannot generate keys")
)

// KeyManager generates keys and signs with them by handle.
type KeyManager interface {
	// Generate creates a new key pair and returns its handle.
	Generate(kt KeyType) (KeyHandle, error)
	// PublicKey returns the public half of the referenced key.
	PublicKey(h KeyHandle) (PublicKey, error)
	// Sign signs the given message. Digesting is key-type specific:
	// Ed25519 signs the message directly, secp256k1 signs its SHA-256 digest.
	Sign(h KeyHandle, data []byte) ([]byte, error)
}

// Signer binds a key handle to its manager so signing components need a
// single reference.
type Signer struct {
	km     KeyManager
	handle KeyHandle
	pub    PublicKey
}

// NewSigner resolves the handle's public key and returns a bound signer.
func NewSigner(km KeyManager, h KeyHandle) (*Signer, error) {
	if km == nil {
		return nil, fmt.Errorf("key manager is required")
	}

	pub, err := km.PublicKey(h)
	if err != nil {
		return nil, fmt.Errorf("failed to load public key: %w", err)
	}

	return &Signer{km: km, handle: h, pub: pub}, nil
}

// Sign signs the payload with the bound key.
func (s *Signer) Sign(data []byte) ([]byte, error) {
	return s.km.Sign(s.handle, data)
}

// Public returns the bound key's public material.
func (s *Signer) Public() PublicKey {
	return s.pub
}

// KeyType returns the bound key's type.
func (s *Signer) KeyType() KeyType {
	return s.pub.Type
}

// Algorithm returns the JOSE algorithm name of the bound key.
func (s *Signer) Algorithm() string {
	alg, _ := s.pub.Type.Algorithm()
	return alg
}

// Handle returns the bound key handle.
func (s *Signer) Handle() KeyHandle {
	return s.handle
}

// DecodeHex converts hex key material, with or without 0x prefix, to bytes.
func DecodeHex(key string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(key, "0x"))
}
