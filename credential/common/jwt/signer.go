package jwt

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pilacorp/go-ssi-sdk/kms"
)

// Signer issues compact JWS tokens with a key-manager-backed key.
type Signer struct {
	signer *kms.Signer
	keyID  string
}

// NewSigner creates a token signer. The key ID is set as the kid header on
// every issued token.
func NewSigner(signer *kms.Signer, keyID string) (*Signer, error) {
	if signer == nil {
		return nil, fmt.Errorf("signer is required")
	}
	if keyID == "" {
		return nil, fmt.Errorf("key ID is required")
	}

	return &Signer{signer: signer, keyID: keyID}, nil
}

// Algorithm returns the JOSE algorithm name of the underlying key.
func (s *Signer) Algorithm() string {
	return s.signer.Algorithm()
}

// KeyID returns the kid header value set on issued tokens.
func (s *Signer) KeyID() string {
	return s.keyID
}

// SignClaims builds a compact token from the claim set and signs it.
func (s *Signer) SignClaims(claims map[string]interface{}) (string, error) {
	method, err := MethodForAlgorithm(s.signer.Algorithm())
	if err != nil {
		return "", err
	}

	token := jwt.NewWithClaims(method, jwt.MapClaims(claims))
	token.Header["typ"] = "JWT"
	token.Header["kid"] = s.keyID

	signedString, err := token.SignedString(s.signer)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signedString, nil
}
