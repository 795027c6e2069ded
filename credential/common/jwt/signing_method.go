package jwt

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pilacorp/go-ssi-sdk/kms"
)

// SigningMethodKMS adapts a key-manager-backed signer to the golang-jwt
// signing method interface. Sign expects a *kms.Signer, Verify a
// kms.PublicKey.
type SigningMethodKMS struct {
	alg     string
	keyType kms.KeyType
}

var (
	// ES256K signs with secp256k1 over the SHA-256 of the signing string.
	ES256K = &SigningMethodKMS{alg: "ES256K", keyType: kms.KeyTypeSecp256k1}

	// EdDSA signs the signing string directly with Ed25519.
	EdDSA = &SigningMethodKMS{alg: "EdDSA", keyType: kms.KeyTypeEd25519}
)

func init() {
	// golang-jwt ships no ES256K method. EdDSA stays unregistered since the
	// library's own EdDSA entry expects stdlib key types; our instance is
	// always passed explicitly.
	jwt.RegisterSigningMethod(ES256K.Alg(), func() jwt.SigningMethod {
		return ES256K
	})
}

// MethodForAlgorithm returns the signing method for a JOSE algorithm name.
func MethodForAlgorithm(alg string) (*SigningMethodKMS, error) {
	switch alg {
	case ES256K.alg:
		return ES256K, nil
	case EdDSA.alg:
		return EdDSA, nil
	default:
		return nil, fmt.Errorf("unsupported JWT algorithm %q", alg)
	}
}

// Alg returns the algorithm name.
func (m *SigningMethodKMS) Alg() string {
	return m.alg
}

// Sign signs the signing string with the bound key.
func (m *SigningMethodKMS) Sign(signingString string, key interface{}) ([]byte, error) {
	signer, ok := key.(*kms.Signer)
	if !ok {
		return nil, fmt.Errorf("invalid key type %T, expected *kms.Signer", key)
	}
	if signer.KeyType() != m.keyType {
		return nil, fmt.Errorf("%s requires a %s key, got %s", m.alg, m.keyType, signer.KeyType())
	}

	signature, err := signer.Sign([]byte(signingString))
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	// secp256k1 signatures carry a recovery byte; JOSE wants plain R||S.
	if m.keyType == kms.KeyTypeSecp256k1 && len(signature) == 65 {
		signature = signature[:64]
	}

	return signature, nil
}

// Verify checks a signature against the signing string.
func (m *SigningMethodKMS) Verify(signingString string, signature []byte, key interface{}) error {
	pub, ok := key.(kms.PublicKey)
	if !ok {
		return fmt.Errorf("invalid key type %T, expected kms.PublicKey", key)
	}
	if pub.Type != m.keyType {
		return fmt.Errorf("%s requires a %s key, got %s", m.alg, m.keyType, pub.Type)
	}

	valid, err := kms.Verify(pub, []byte(signingString), signature)
	if err != nil {
		return fmt.Errorf("failed to verify token: %w", err)
	}
	if !valid {
		return fmt.Errorf("signature verification failed")
	}

	return nil
}
