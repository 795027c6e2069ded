// Package jsonmap holds a credential or presentation as an order-insensitive
// JSON object and implements the data-integrity proof operations over it.
package jsonmap

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/multiformats/go-multibase"
	"github.com/piprate/json-gold/ld"

	"github.com/pilacorp/go-ssi-sdk/credential/common/dto"
	"github.com/pilacorp/go-ssi-sdk/credential/common/processor"
	"github.com/pilacorp/go-ssi-sdk/credential/common/util"
	"github.com/pilacorp/go-ssi-sdk/kms"
)

// JSONMap represents a JSON object as a map.
type JSONMap map[string]interface{}

type proofConfig struct {
	challenge string
	domain    string
	loader    ld.DocumentLoader
}

// ProofOpt configures proof construction and verification.
type ProofOpt func(*proofConfig)

// WithChallenge binds the proof to a verifier-supplied challenge.
func WithChallenge(challenge string) ProofOpt {
	return func(c *proofConfig) {
		c.challenge = challenge
	}
}

// WithDomain binds the proof to the relying party's domain.
func WithDomain(domain string) ProofOpt {
	return func(c *proofConfig) {
		c.domain = domain
	}
}

// WithDocumentLoader overrides the JSON-LD context loader used during
// canonicalization.
func WithDocumentLoader(loader ld.DocumentLoader) ProofOpt {
	return func(c *proofConfig) {
		c.loader = loader
	}
}

func (c *proofConfig) processorOpts() []processor.Opt {
	if c.loader == nil {
		return nil
	}

	return []processor.Opt{processor.WithDocumentLoader(c.loader)}
}

// ToJSON serializes the JSONMap to JSON.
func (m *JSONMap) ToJSON() ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("JSONMap is nil")
	}

	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSONMap: %w", err)
	}

	return data, nil
}

// Canonicalize produces the signing input for the document: the SHA-256
// digest of its URDNA2015 canonical form, excluding the proof field.
func (m *JSONMap) Canonicalize(opts ...processor.Opt) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("JSONMap is nil")
	}

	mCopy := make(map[string]interface{}, len(*m))
	for k, v := range *m {
		if k != "proof" {
			mCopy[k] = v
		}
	}

	canonicalDoc, err := processor.CanonicalizeDocument(mCopy, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize document: %w", err)
	}

	return processor.ComputeDigest(canonicalDoc)
}

// CryptosuiteFor maps a key type to its data-integrity cryptosuite name.
func CryptosuiteFor(kt kms.KeyType) (string, error) {
	switch kt {
	case kms.KeyTypeEd25519:
		return "eddsa-rdfc-2022", nil
	case kms.KeyTypeSecp256k1:
		return "ecdsa-rdfc-2019", nil
	default:
		return "", fmt.Errorf("%w: %s", kms.ErrUnsupportedKeyType, kt)
	}
}

// AddDataIntegrityProof signs the canonical document and attaches a
// DataIntegrityProof block. The signature encodes as a multibase base58btc
// proofValue.
func (m *JSONMap) AddDataIntegrityProof(signer *kms.Signer, verificationMethod, proofPurpose string, opts ...ProofOpt) error {
	if m == nil {
		return fmt.Errorf("JSONMap is nil")
	}
	if signer == nil {
		return fmt.Errorf("signer is required")
	}
	if verificationMethod == "" {
		return fmt.Errorf("verification method is required")
	}
	if proofPurpose == "" {
		return fmt.Errorf("proof purpose is required")
	}

	config := &proofConfig{}
	for _, opt := range opts {
		opt(config)
	}

	cryptosuite, err := CryptosuiteFor(signer.KeyType())
	if err != nil {
		return err
	}

	proof := &dto.Proof{
		Type:               "DataIntegrityProof",
		Created:            time.Now().UTC().Format(time.RFC3339),
		VerificationMethod: verificationMethod,
		ProofPurpose:       proofPurpose,
		Cryptosuite:        cryptosuite,
		Challenge:          config.challenge,
		Domain:             config.domain,
	}

	signData, err := m.Canonicalize(config.processorOpts()...)
	if err != nil {
		return fmt.Errorf("failed to canonicalize JSONMap: %w", err)
	}

	signature, err := signer.Sign(signData)
	if err != nil {
		return fmt.Errorf("failed to sign proof: %w", err)
	}

	proof.ProofValue, err = multibase.Encode(multibase.Base58BTC, signature)
	if err != nil {
		return fmt.Errorf("failed to encode proof value: %w", err)
	}

	(*m)["proof"] = util.SerializeProofs([]dto.Proof{*proof})

	return nil
}

// AddCustomProof attaches an externally produced proof to the JSONMap.
func (m *JSONMap) AddCustomProof(proof *dto.Proof) error {
	if m == nil {
		return fmt.Errorf("JSONMap is nil")
	}
	if proof == nil {
		return fmt.Errorf("proof is nil")
	}

	(*m)["proof"] = util.SerializeProofs([]dto.Proof{*proof})

	return nil
}

// Proof returns the document's first proof entry.
func (m *JSONMap) Proof() (dto.Proof, error) {
	if m == nil {
		return dto.Proof{}, fmt.Errorf("JSONMap is nil")
	}

	raw, exists := (*m)["proof"]
	if !exists {
		return dto.Proof{}, fmt.Errorf("document has no proof")
	}

	if list, ok := raw.([]interface{}); ok {
		if len(list) == 0 {
			return dto.Proof{}, fmt.Errorf("document has an empty proof list")
		}
		raw = list[0]
	}

	return ParseRawToProof(raw)
}

// VerifyProof checks the document's proof signature against the given
// public key.
func (m *JSONMap) VerifyProof(pub kms.PublicKey, opts ...ProofOpt) error {
	config := &proofConfig{}
	for _, opt := range opts {
		opt(config)
	}

	proof, err := m.Proof()
	if err != nil {
		return err
	}

	if proof.ProofValue == "" {
		return fmt.Errorf("proof has no proofValue")
	}

	encoding, signature, err := multibase.Decode(proof.ProofValue)
	if err != nil {
		return fmt.Errorf("failed to decode proof value: %w", err)
	}
	if encoding != multibase.Base58BTC {
		return fmt.Errorf("proof value is not base58btc encoded")
	}

	signData, err := m.Canonicalize(config.processorOpts()...)
	if err != nil {
		return fmt.Errorf("failed to canonicalize JSONMap: %w", err)
	}

	valid, err := kms.Verify(pub, signData, signature)
	if err != nil {
		return fmt.Errorf("failed to verify proof: %w", err)
	}
	if !valid {
		return fmt.Errorf("invalid proof")
	}

	return nil
}

// ParseRawToProof converts a JSON value to a Proof struct.
func ParseRawToProof(proof interface{}) (dto.Proof, error) {
	proofMap, ok := proof.(map[string]interface{})
	if !ok {
		return dto.Proof{}, fmt.Errorf("invalid proof format: expected map[string]interface{}, got %T", proof)
	}

	return util.ParseProof(proofMap)
}
