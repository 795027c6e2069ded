// Package verificationmethod selects verification methods from resolved DID
// documents and extracts their key material for signature checks.
package verificationmethod

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/base58"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/pilacorp/go-ssi-sdk/did"
	"github.com/pilacorp/go-ssi-sdk/kms"
)

var (
	// ErrMismatch reports a verification method that does not exist in the
	// document or is controlled by another DID.
	ErrMismatch = errors.New("verification method does not belong to document")

	// ErrNoAssertionMethod reports a document without a usable assertionMethod
	// entry to fall back on.
	ErrNoAssertionMethod = errors.New("document has no assertion method")
)

// Select picks the verification method to sign with. An explicit id must
// exist in the document and be controlled by it. Without an explicit id the
// first resolvable assertionMethod entry is used.
func Select(doc *did.Document, explicit string) (*did.VerificationMethod, error) {
	if doc == nil {
		return nil, fmt.Errorf("document is required")
	}

	if explicit != "" {
		vm, ok := doc.FindVerificationMethod(explicit)
		if !ok {
			return nil, fmt.Errorf("%w: %s not found in %s", ErrMismatch, explicit, doc.ID)
		}
		if vm.Controller != "" && vm.Controller != doc.ID {
			return nil, fmt.Errorf("%w: %s is controlled by %s", ErrMismatch, vm.ID, vm.Controller)
		}

		return vm, nil
	}

	for _, ref := range doc.AssertionMethod {
		if vm, ok := doc.FindVerificationMethod(ref); ok {
			return vm, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrNoAssertionMethod, doc.ID)
}

// PublicKey extracts the public key material of a verification method.
func PublicKey(vm *did.VerificationMethod) (kms.PublicKey, error) {
	if vm == nil {
		return kms.PublicKey{}, fmt.Errorf("verification method is required")
	}

	switch vm.Type {
	case did.VMTypeEd25519VerificationKey2018:
		return ed25519PublicKey(vm)
	case did.VMTypeEcdsaSecp256k1VerificationKey2019:
		return secp256k1PublicKey(vm)
	default:
		return kms.PublicKey{}, fmt.Errorf("unsupported verification method type %q on %s", vm.Type, vm.ID)
	}
}

func ed25519PublicKey(vm *did.VerificationMethod) (kms.PublicKey, error) {
	var raw []byte

	switch {
	case vm.PublicKeyBase58 != "":
		raw = base58.Decode(vm.PublicKeyBase58)
	case vm.PublicKeyJwk != nil:
		if vm.PublicKeyJwk.Kty != "OKP" || vm.PublicKeyJwk.Crv != "Ed25519" {
			return kms.PublicKey{}, fmt.Errorf("verification method %s carries a non-Ed25519 JWK", vm.ID)
		}
		decoded, err := base64.RawURLEncoding.DecodeString(vm.PublicKeyJwk.X)
		if err != nil {
			return kms.PublicKey{}, fmt.Errorf("invalid JWK on %s: %w", vm.ID, err)
		}
		raw = decoded
	default:
		return kms.PublicKey{}, fmt.Errorf("verification method %s carries no key material", vm.ID)
	}

	if len(raw) != ed25519.PublicKeySize {
		return kms.PublicKey{}, fmt.Errorf("invalid Ed25519 public key on %s", vm.ID)
	}

	return kms.PublicKey{Type: kms.KeyTypeEd25519, Bytes: raw}, nil
}

func secp256k1PublicKey(vm *did.VerificationMethod) (kms.PublicKey, error) {
	var raw []byte

	switch {
	case vm.PublicKeyHex != "":
		decoded, err := kms.DecodeHex(vm.PublicKeyHex)
		if err != nil {
			return kms.PublicKey{}, fmt.Errorf("invalid publicKeyHex on %s: %w", vm.ID, err)
		}
		raw = decoded
	case vm.PublicKeyJwk != nil:
		if vm.PublicKeyJwk.Kty != "EC" || vm.PublicKeyJwk.Crv != "secp256k1" {
			return kms.PublicKey{}, fmt.Errorf("verification method %s carries a non-secp256k1 JWK", vm.ID)
		}
		x, err := base64.RawURLEncoding.DecodeString(vm.PublicKeyJwk.X)
		if err != nil {
			return kms.PublicKey{}, fmt.Errorf("invalid JWK on %s: %w", vm.ID, err)
		}
		y, err := base64.RawURLEncoding.DecodeString(vm.PublicKeyJwk.Y)
		if err != nil {
			return kms.PublicKey{}, fmt.Errorf("invalid JWK on %s: %w", vm.ID, err)
		}
		raw = append([]byte{0x04}, append(x, y...)...)
	default:
		return kms.PublicKey{}, fmt.Errorf("verification method %s carries no key material", vm.ID)
	}

	// Uncompressed keys are accepted from foreign documents and compressed
	// to the 33-byte form the verifiers expect.
	if len(raw) == 65 && raw[0] == 0x04 {
		pub, err := crypto.UnmarshalPubkey(raw)
		if err != nil {
			return kms.PublicKey{}, fmt.Errorf("invalid secp256k1 public key on %s: %w", vm.ID, err)
		}
		raw = crypto.CompressPubkey(pub)
	}

	if err := kms.ParseCompressedSecp256k1(raw); err != nil {
		return kms.PublicKey{}, fmt.Errorf("invalid secp256k1 public key on %s: %w", vm.ID, err)
	}

	return kms.PublicKey{Type: kms.KeyTypeSecp256k1, Bytes: raw}, nil
}

// DIDFromVerificationMethod extracts the DID portion of a verification method
// URL. A bare DID without a fragment passes through unchanged.
func DIDFromVerificationMethod(vmURL string) (string, error) {
	if vmURL == "" {
		return "", fmt.Errorf("verification method is empty")
	}

	didPart, _, _ := strings.Cut(vmURL, "#")
	if _, _, err := did.Parse(didPart); err != nil {
		return "", fmt.Errorf("verification method %q does not reference a DID: %w", vmURL, err)
	}

	return didPart, nil
}
