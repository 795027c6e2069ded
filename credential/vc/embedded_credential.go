package vc

import (
	"encoding/json"
	"fmt"

	"github.com/pilacorp/go-ssi-sdk/credential/common/dto"
	"github.com/pilacorp/go-ssi-sdk/credential/common/jsonmap"
	"github.com/pilacorp/go-ssi-sdk/kms"
)

// EmbeddedCredential is a credential carrying a linked-data proof inside the
// JSON document itself.
type EmbeddedCredential struct {
	document jsonmap.JSONMap
}

// NewEmbeddedCredential builds an unsigned embedded credential from
// structured contents.
func NewEmbeddedCredential(vcc CredentialContents, opts ...CredentialOpt) (*EmbeddedCredential, error) {
	options := getOptions(opts...)

	m, err := serializeCredentialContents(&vcc)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize credential contents: %w", err)
	}

	if options.validateSchema {
		if err := validateCredential(m); err != nil {
			return nil, fmt.Errorf("failed to validate credential: %w", err)
		}
	}

	return &EmbeddedCredential{document: m}, nil
}

// ParseEmbeddedCredential parses a credential JSON document.
func ParseEmbeddedCredential(raw []byte, opts ...CredentialOpt) (*EmbeddedCredential, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("credential is empty")
	}

	options := getOptions(opts...)

	var m jsonmap.JSONMap
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credential: %w", err)
	}

	if options.validateSchema {
		if err := validateCredential(m); err != nil {
			return nil, fmt.Errorf("failed to validate credential: %w", err)
		}
	}

	return &EmbeddedCredential{document: m}, nil
}

// AddProof canonicalizes the document and attaches a data-integrity proof
// with purpose assertionMethod. Without an explicit verification method the
// issuer's #key-1 is recorded.
func (e *EmbeddedCredential) AddProof(signer *kms.Signer, opts ...ProofOption) error {
	options := getProofOptions(opts...)

	verificationMethod := options.verificationMethod
	if verificationMethod == "" {
		issuer, ok := e.document["issuer"].(string)
		if !ok || issuer == "" {
			return fmt.Errorf("%w: credential has no issuer to derive a verification method from", ErrSigningFailed)
		}
		verificationMethod = fmt.Sprintf("%s#%s", issuer, "key-1")
	}

	var proofOpts []jsonmap.ProofOpt
	if options.documentLoader != nil {
		proofOpts = append(proofOpts, jsonmap.WithDocumentLoader(options.documentLoader))
	}

	if err := e.document.AddDataIntegrityProof(signer, verificationMethod, "assertionMethod", proofOpts...); err != nil {
		return fmt.Errorf("%w: %s", ErrSigningFailed, err)
	}

	return nil
}

// Serialize returns the credential document as JSON. The document must carry
// a proof.
func (e *EmbeddedCredential) Serialize() (string, error) {
	if e.document["proof"] == nil {
		return "", fmt.Errorf("credential must have proof before serialization")
	}

	data, err := e.document.ToJSON()
	if err != nil {
		return "", fmt.Errorf("failed to serialize credential: %w", err)
	}

	return string(data), nil
}

// Contents returns the structured credential data.
func (e *EmbeddedCredential) Contents() (CredentialContents, error) {
	return parseCredentialContents(e.document)
}

// Kind reports the embedded proof encoding.
func (e *EmbeddedCredential) Kind() ProofKind {
	return ProofKindEmbedded
}

// Document returns the underlying JSON document.
func (e *EmbeddedCredential) Document() jsonmap.JSONMap {
	return e.document
}

// Proof returns the attached proof.
func (e *EmbeddedCredential) Proof() (dto.Proof, error) {
	return e.document.Proof()
}
