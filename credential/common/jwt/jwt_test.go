package jwt

import (
	"strings"
	"testing"

	"github.com/pilacorp/go-ssi-sdk/kms"
)

func newTestSigner(t *testing.T, kt kms.KeyType) *kms.Signer {
	t.Helper()

	km := kms.NewLocalKeyManager()
	handle, err := km.Generate(kt)
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}

	signer, err := kms.NewSigner(km, handle)
	if err != nil {
		t.Fatalf("Failed to create signer: %v", err)
	}

	return signer
}

func TestSignAndVerifySecp256k1(t *testing.T) {
	keySigner := newTestSigner(t, kms.KeyTypeSecp256k1)
	issuerDID := "did:ebsi:zvHWX359A3CvfJnCYaAiAde"

	signer, err := NewSigner(keySigner, issuerDID+"#key-1")
	if err != nil {
		t.Fatalf("Failed to create JWT signer: %v", err)
	}

	if signer.Algorithm() != "ES256K" {
		t.Fatalf("Expected ES256K algorithm, got %s", signer.Algorithm())
	}

	claims := map[string]interface{}{
		"iss": issuerDID,
		"sub": issuerDID,
		"vc": map[string]interface{}{
			"@context": []string{"https://www.w3.org/2018/credentials/v1"},
			"type":     []string{"VerifiableCredential"},
			"credentialSubject": map[string]interface{}{
				"name": "Alice Doe",
			},
		},
	}

	signedJWT, err := signer.SignClaims(claims)
	if err != nil {
		t.Fatalf("Failed to sign claims: %v", err)
	}

	parts := strings.Split(signedJWT, ".")
	if len(parts) != 3 {
		t.Fatalf("JWT should have 3 parts, got %d", len(parts))
	}

	if err := VerifyToken(signedJWT, keySigner.Public()); err != nil {
		t.Fatalf("Failed to verify JWT: %v", err)
	}
}

func TestSignAndVerifyEd25519(t *testing.T) {
	keySigner := newTestSigner(t, kms.KeyTypeEd25519)

	signer, err := NewSigner(keySigner, "did:key:z6Mk#key-1")
	if err != nil {
		t.Fatalf("Failed to create JWT signer: %v", err)
	}

	if signer.Algorithm() != "EdDSA" {
		t.Fatalf("Expected EdDSA algorithm, got %s", signer.Algorithm())
	}

	signedJWT, err := signer.SignClaims(map[string]interface{}{"iss": "did:key:z6Mk"})
	if err != nil {
		t.Fatalf("Failed to sign claims: %v", err)
	}

	if err := VerifyToken(signedJWT, keySigner.Public()); err != nil {
		t.Fatalf("Failed to verify JWT: %v", err)
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	keySigner := newTestSigner(t, kms.KeyTypeSecp256k1)
	otherSigner := newTestSigner(t, kms.KeyTypeSecp256k1)

	signer, err := NewSigner(keySigner, "did:ebsi:zvHWX359A3CvfJnCYaAiAde#key-1")
	if err != nil {
		t.Fatalf("Failed to create JWT signer: %v", err)
	}

	signedJWT, err := signer.SignClaims(map[string]interface{}{"iss": "did:ebsi:zvHWX359A3CvfJnCYaAiAde"})
	if err != nil {
		t.Fatalf("Failed to sign claims: %v", err)
	}

	if err := VerifyToken(signedJWT, otherSigner.Public()); err == nil {
		t.Fatal("Verification should fail with a different key")
	}
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	keySigner := newTestSigner(t, kms.KeyTypeEd25519)

	signer, err := NewSigner(keySigner, "did:key:z6Mk#key-1")
	if err != nil {
		t.Fatalf("Failed to create JWT signer: %v", err)
	}

	signedJWT, err := signer.SignClaims(map[string]interface{}{"iss": "did:key:z6Mk"})
	if err != nil {
		t.Fatalf("Failed to sign claims: %v", err)
	}

	parts := strings.Split(signedJWT, ".")
	tampered := parts[0] + ".eyJpc3MiOiJkaWQ6a2V5OnpGb3JnZWQifQ." + parts[2]

	if err := VerifyToken(tampered, keySigner.Public()); err == nil {
		t.Fatal("Verification should fail for a tampered payload")
	}
}

func TestKeyID(t *testing.T) {
	keySigner := newTestSigner(t, kms.KeyTypeSecp256k1)
	keyID := "did:ebsi:zvHWX359A3CvfJnCYaAiAde#keys-1"

	signer, err := NewSigner(keySigner, keyID)
	if err != nil {
		t.Fatalf("Failed to create JWT signer: %v", err)
	}

	signedJWT, err := signer.SignClaims(map[string]interface{}{"iss": "did:ebsi:zvHWX359A3CvfJnCYaAiAde"})
	if err != nil {
		t.Fatalf("Failed to sign claims: %v", err)
	}

	gotKid, err := KeyID(signedJWT)
	if err != nil {
		t.Fatalf("Failed to extract kid: %v", err)
	}
	if gotKid != keyID {
		t.Fatalf("Expected kid %s, got %s", keyID, gotKid)
	}
}

func TestDocumentFromToken(t *testing.T) {
	keySigner := newTestSigner(t, kms.KeyTypeSecp256k1)

	signer, err := NewSigner(keySigner, "did:ebsi:zvHWX359A3CvfJnCYaAiAde#key-1")
	if err != nil {
		t.Fatalf("Failed to create JWT signer: %v", err)
	}

	signedJWT, err := signer.SignClaims(map[string]interface{}{
		"iss": "did:ebsi:zvHWX359A3CvfJnCYaAiAde",
		"vc": map[string]interface{}{
			"type": []interface{}{"VerifiableCredential"},
		},
	})
	if err != nil {
		t.Fatalf("Failed to sign claims: %v", err)
	}

	doc, err := DocumentFromToken(signedJWT, "vc")
	if err != nil {
		t.Fatalf("Failed to extract vc claim: %v", err)
	}
	if _, ok := doc["type"]; !ok {
		t.Fatal("Extracted document should contain the type field")
	}

	if _, err := DocumentFromToken(signedJWT, "vp"); err == nil {
		t.Fatal("Extracting a missing claim should fail")
	}
}

func TestMethodForAlgorithm(t *testing.T) {
	method, err := MethodForAlgorithm("ES256K")
	if err != nil || method != ES256K {
		t.Fatalf("Expected ES256K method, got %v (err %v)", method, err)
	}

	method, err = MethodForAlgorithm("EdDSA")
	if err != nil || method != EdDSA {
		t.Fatalf("Expected EdDSA method, got %v (err %v)", method, err)
	}

	if _, err := MethodForAlgorithm("RS256"); err == nil {
		t.Fatal("Unsupported algorithm should be rejected")
	}
}

func TestSignRejectsKeyTypeMismatch(t *testing.T) {
	edSigner := newTestSigner(t, kms.KeyTypeEd25519)

	if _, err := ES256K.Sign("header.payload", edSigner); err == nil {
		t.Fatal("ES256K should reject an Ed25519 signer")
	}

	if err := EdDSA.Verify("header.payload", []byte("sig"), edSigner.Public()); err == nil {
		t.Fatal("Verify should fail for a bogus signature")
	}
}
