package vp

import (
	"encoding/json"
	"fmt"

	"github.com/pilacorp/go-ssi-sdk/credential/common/dto"
	"github.com/pilacorp/go-ssi-sdk/credential/common/jsonmap"
	"github.com/pilacorp/go-ssi-sdk/credential/vc"
	"github.com/pilacorp/go-ssi-sdk/kms"
)

// EmbeddedPresentation is a presentation envelope carrying a linked-data
// proof inside the JSON document.
type EmbeddedPresentation struct {
	document jsonmap.JSONMap
}

// NewEmbeddedPresentation builds an unsigned envelope from structured
// contents. Member credentials must be JSON documents.
func NewEmbeddedPresentation(vpc PresentationContents) (*EmbeddedPresentation, error) {
	m, err := serializePresentationContents(&vpc, vc.ProofKindEmbedded)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize presentation contents: %w", err)
	}

	return &EmbeddedPresentation{document: m}, nil
}

// ParseEmbeddedPresentation parses a presentation JSON envelope.
func ParseEmbeddedPresentation(raw []byte) (*EmbeddedPresentation, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("presentation is empty")
	}

	var m jsonmap.JSONMap
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal presentation: %w", err)
	}

	return &EmbeddedPresentation{document: m}, nil
}

// AddProof canonicalizes the envelope and attaches a data-integrity proof
// with purpose authentication. The nonce becomes the proof challenge, the
// verifier the proof domain.
func (e *EmbeddedPresentation) AddProof(signer *kms.Signer, opts ...ProofOption) error {
	options := getProofOptions(opts...)

	verificationMethod := options.verificationMethod
	if verificationMethod == "" {
		holder, ok := e.document["holder"].(string)
		if !ok || holder == "" {
			return fmt.Errorf("%w: presentation has no holder to derive a verification method from", vc.ErrSigningFailed)
		}
		verificationMethod = fmt.Sprintf("%s#%s", holder, "key-1")
	}

	var proofOpts []jsonmap.ProofOpt
	if options.nonce != "" {
		proofOpts = append(proofOpts, jsonmap.WithChallenge(options.nonce))
	}
	if options.verifier != "" {
		proofOpts = append(proofOpts, jsonmap.WithDomain(options.verifier))
	}
	if options.documentLoader != nil {
		proofOpts = append(proofOpts, jsonmap.WithDocumentLoader(options.documentLoader))
	}

	if err := e.document.AddDataIntegrityProof(signer, verificationMethod, "authentication", proofOpts...); err != nil {
		return fmt.Errorf("%w: %s", vc.ErrSigningFailed, err)
	}

	return nil
}

// Serialize returns the envelope as JSON. The envelope must carry a proof.
func (e *EmbeddedPresentation) Serialize() (string, error) {
	if e.document["proof"] == nil {
		return "", fmt.Errorf("presentation must have proof before serialization")
	}

	data, err := e.document.ToJSON()
	if err != nil {
		return "", fmt.Errorf("failed to serialize presentation: %w", err)
	}

	return string(data), nil
}

// Contents returns the structured presentation data. The verifier is read
// from the proof domain.
func (e *EmbeddedPresentation) Contents() (PresentationContents, error) {
	contents, err := parsePresentationContents(e.document)
	if err != nil {
		return contents, err
	}

	if proof, err := e.document.Proof(); err == nil {
		contents.Verifier = proof.Domain
	}

	return contents, nil
}

// Kind reports the embedded proof encoding.
func (e *EmbeddedPresentation) Kind() vc.ProofKind {
	return vc.ProofKindEmbedded
}

// Document returns the underlying envelope document.
func (e *EmbeddedPresentation) Document() jsonmap.JSONMap {
	return e.document
}

// Proof returns the attached proof.
func (e *EmbeddedPresentation) Proof() (dto.Proof, error) {
	return e.document.Proof()
}
