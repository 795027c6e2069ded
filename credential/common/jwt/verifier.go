package jwt

import (
	"encoding/base64"
	"fmt"

	"github.com/pilacorp/go-ssi-sdk/kms"
)

// VerifyToken checks the signature of a compact token against a public key.
// The signing method is chosen from the alg header.
func VerifyToken(tokenString string, pub kms.PublicKey) error {
	parts, err := splitToken(tokenString)
	if err != nil {
		return err
	}

	header, err := decodeHeader(parts[0])
	if err != nil {
		return err
	}

	alg, ok := header["alg"].(string)
	if !ok {
		return fmt.Errorf("alg not found in header")
	}

	method, err := MethodForAlgorithm(alg)
	if err != nil {
		return err
	}

	signature, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return fmt.Errorf("invalid signature encoding: %w", err)
	}

	signingString := parts[0] + "." + parts[1]

	return method.Verify(signingString, signature, pub)
}

// KeyID extracts the kid header without verifying the token.
func KeyID(tokenString string) (string, error) {
	parts, err := splitToken(tokenString)
	if err != nil {
		return "", err
	}

	header, err := decodeHeader(parts[0])
	if err != nil {
		return "", err
	}

	kid, ok := header["kid"].(string)
	if !ok || kid == "" {
		return "", fmt.Errorf("kid not found in header")
	}

	return kid, nil
}
