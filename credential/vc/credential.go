// Package vc models W3C verifiable credentials with two interchangeable
// proof encodings: embedded linked-data proofs and compact JWT tokens.
package vc

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/piprate/json-gold/ld"

	"github.com/pilacorp/go-ssi-sdk/credential/common/jsonmap"
	"github.com/pilacorp/go-ssi-sdk/kms"
)

// ProofKind identifies how a credential carries its proof.
type ProofKind string

const (
	// ProofKindEmbedded marks a JSON document with a linked-data proof member.
	ProofKindEmbedded ProofKind = "embedded"

	// ProofKindToken marks a compact JWT encoding.
	ProofKindToken ProofKind = "token"
)

// ErrSigningFailed reports a failure to produce a proof.
var ErrSigningFailed = errors.New("signing failed")

// tokenPattern matches the three dot-separated base64url segments of a
// compact JWS.
var tokenPattern = regexp.MustCompile(`^[A-Za-z0-9-_]+\.[A-Za-z0-9-_]+\.[A-Za-z0-9-_]+$`)

// Credential is a verifiable credential in one of the two proof encodings.
type Credential interface {
	// AddProof signs the credential in place.
	AddProof(signer *kms.Signer, opts ...ProofOption) error

	// Serialize returns the credential in its wire form: the JSON document
	// for embedded proofs, the compact token for JWT proofs.
	Serialize() (string, error)

	// Contents returns the structured credential data.
	Contents() (CredentialContents, error)

	// Kind reports the proof encoding.
	Kind() ProofKind
}

// CredentialContents represents the structured contents of a credential.
type CredentialContents struct {
	Context        []interface{}
	ID             string
	Types          []string
	Issuer         string
	IssuanceDate   time.Time
	ExpirationDate *time.Time
	Subject        []Subject
	Schemas        []Schema
	Status         []Status
}

// Subject represents the credentialSubject field.
type Subject struct {
	ID           string
	CustomFields map[string]interface{}
}

// Schema represents a credentialSchema entry.
type Schema struct {
	ID   string
	Type string
}

// Status represents a credentialStatus entry. Status data is carried as-is;
// revocation checks are outside this package.
type Status struct {
	ID                   string `json:"id,omitempty"`
	Type                 string `json:"type"`
	StatusPurpose        string `json:"statusPurpose,omitempty"`
	StatusListIndex      string `json:"statusListIndex,omitempty"`
	StatusListCredential string `json:"statusListCredential,omitempty"`
}

// CredentialOpt configures credential parsing and construction.
type CredentialOpt func(*credentialOptions)

type credentialOptions struct {
	validateSchema bool
	documentLoader ld.DocumentLoader
}

// WithSchemaValidation validates the credential against the schemas its
// credentialSchema entries reference.
func WithSchemaValidation() CredentialOpt {
	return func(o *credentialOptions) {
		o.validateSchema = true
	}
}

// WithCredentialDocumentLoader overrides the JSON-LD context loader used for
// canonicalization of embedded proofs.
func WithCredentialDocumentLoader(loader ld.DocumentLoader) CredentialOpt {
	return func(o *credentialOptions) {
		o.documentLoader = loader
	}
}

func getOptions(opts ...CredentialOpt) *credentialOptions {
	options := &credentialOptions{}
	for _, opt := range opts {
		opt(options)
	}

	return options
}

// ProofOption configures proof creation.
type ProofOption func(*proofOptions)

type proofOptions struct {
	verificationMethod string
	documentLoader     ld.DocumentLoader
}

// WithVerificationMethod selects the verification method recorded in the
// proof (embedded) or the kid header (token).
func WithVerificationMethod(id string) ProofOption {
	return func(o *proofOptions) {
		o.verificationMethod = id
	}
}

// WithProofDocumentLoader overrides the JSON-LD context loader used when
// signing an embedded proof.
func WithProofDocumentLoader(loader ld.DocumentLoader) ProofOption {
	return func(o *proofOptions) {
		o.documentLoader = loader
	}
}

func getProofOptions(opts ...ProofOption) *proofOptions {
	options := &proofOptions{}
	for _, opt := range opts {
		opt(options)
	}

	return options
}

// ClassifyProof determines how a raw credential carries its proof. Three
// dot-separated base64url segments classify as a token; a JSON object
// bearing a proof member classifies as embedded. Anything else, including
// JSON without a proof, is rejected.
func ClassifyProof(raw []byte) (ProofKind, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return "", fmt.Errorf("credential is empty")
	}

	if tokenPattern.MatchString(strings.Trim(trimmed, `"`)) {
		return ProofKindToken, nil
	}

	var document map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &document); err != nil {
		return "", fmt.Errorf("credential is neither a compact token nor a JSON document")
	}

	if _, ok := document["proof"]; !ok {
		return "", fmt.Errorf("credential document carries no proof")
	}

	return ProofKindEmbedded, nil
}

// NewCredential wraps an unsigned credential document in the encoder for
// the requested proof kind.
func NewCredential(document jsonmap.JSONMap, kind ProofKind) (Credential, error) {
	switch kind {
	case ProofKindEmbedded:
		return &EmbeddedCredential{document: document}, nil
	case ProofKindToken:
		return &JWTCredential{document: document}, nil
	default:
		return nil, fmt.Errorf("unsupported proof kind: %q", kind)
	}
}

// ParseCredential parses a credential from either wire encoding.
func ParseCredential(raw []byte, opts ...CredentialOpt) (Credential, error) {
	kind, err := ClassifyProof(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credential: %w", err)
	}

	switch kind {
	case ProofKindToken:
		return ParseJWTCredential(strings.Trim(strings.TrimSpace(string(raw)), `"`), opts...)
	default:
		return ParseEmbeddedCredential(raw, opts...)
	}
}
