package kms

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/ethereum/go-ethereum/crypto"
)

// Verify checks a signature against public key material, dispatching on the
// key type. Verification never needs a KeyManager.
func Verify(pub PublicKey, message, signature []byte) (bool, error) {
	switch pub.Type {
	case KeyTypeEd25519:
		return VerifyEd25519(pub.Bytes, message, signature), nil
	case KeyTypeSecp256k1:
		return VerifySecp256k1(pub.Bytes, message, signature), nil
	default:
		return false, fmt.Errorf("%w: %s", ErrUnsupportedKeyType, pub.Type)
	}
}

// VerifyEd25519 verifies an Ed25519 signature over the raw message.
// The public key is 32 bytes, the signature 64 bytes.
func VerifyEd25519(publicKey, message, signature []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return false
	}

	return ed25519.Verify(ed25519.PublicKey(publicKey), message, signature)
}

// VerifySecp256k1 verifies a secp256k1 signature over the SHA-256 digest of
// the message. The public key is 33 compressed bytes. The signature is
// 65 bytes (64 bytes + 1 recovery byte) or 64 bytes without the recovery byte.
func VerifySecp256k1(publicKey, message, signature []byte) bool {
	if len(signature) != 65 || len(publicKey) != 33 || len(message) == 0 {
		return verifySecp256k1WithoutV(publicKey, message, signature)
	}

	hash := sha256.Sum256(message)

	// Recover the public key from the signature
	recoveredPubKey, err := crypto.Ecrecover(hash[:], signature)
	if err != nil {
		return false
	}

	recoveredPubKeyObj, err := crypto.UnmarshalPubkey(recoveredPubKey)
	if err != nil {
		return false
	}

	// Compare in compressed form
	compressed := crypto.CompressPubkey(recoveredPubKeyObj)

	return bytes.Equal(compressed, publicKey)
}

func verifySecp256k1WithoutV(publicKey, message, signature []byte) bool {
	if len(signature) != 64 || len(publicKey) != 33 || len(message) == 0 {
		return false
	}

	hash := sha256.Sum256(message)

	return crypto.VerifySignature(publicKey, hash[:], signature)
}

// ParseCompressedSecp256k1 validates compressed secp256k1 key material.
func ParseCompressedSecp256k1(publicKey []byte) error {
	if len(publicKey) != 33 || (publicKey[0] != 0x02 && publicKey[0] != 0x03) {
		return fmt.Errorf("public key must be 33 compressed bytes")
	}

	if _, err := btcec.ParsePubKey(publicKey); err != nil {
		return fmt.Errorf("failed to parse compressed public key: %w", err)
	}

	return nil
}
