package vc

import (
	"context"
	"fmt"
	"strings"

	"github.com/piprate/json-gold/ld"

	"github.com/pilacorp/go-ssi-sdk/credential/common/jsonmap"
	"github.com/pilacorp/go-ssi-sdk/credential/common/jwt"
	verificationmethod "github.com/pilacorp/go-ssi-sdk/credential/common/verification-method"
	"github.com/pilacorp/go-ssi-sdk/did"
)

// Resolver resolves DID documents for signature verification. *did.Engine
// satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, did string) (*did.Resolution, error)
}

// Verifier checks credential proofs against resolved issuer documents.
type Verifier struct {
	resolver Resolver
	loader   ld.DocumentLoader
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithVerifierDocumentLoader overrides the JSON-LD context loader used when
// re-canonicalizing embedded proofs.
func WithVerifierDocumentLoader(loader ld.DocumentLoader) VerifierOption {
	return func(v *Verifier) {
		v.loader = loader
	}
}

// NewVerifier creates a credential verifier.
func NewVerifier(resolver Resolver, opts ...VerifierOption) (*Verifier, error) {
	if resolver == nil {
		return nil, fmt.Errorf("resolver is required")
	}

	v := &Verifier{resolver: resolver}
	for _, opt := range opts {
		opt(v)
	}

	return v, nil
}

// Verify checks the signature of a credential in either wire encoding. The
// signing key is located through the proof's verification method in the
// resolved issuer document; a deactivated issuer fails verification.
func (v *Verifier) Verify(ctx context.Context, raw []byte) error {
	kind, err := ClassifyProof(raw)
	if err != nil {
		return fmt.Errorf("failed to verify credential: %w", err)
	}

	if kind == ProofKindToken {
		return v.verifyToken(ctx, strings.Trim(strings.TrimSpace(string(raw)), `"`))
	}

	return v.verifyEmbedded(ctx, raw)
}

func (v *Verifier) verifyToken(ctx context.Context, token string) error {
	kid, err := jwt.KeyID(token)
	if err != nil {
		return fmt.Errorf("failed to locate signing key: %w", err)
	}

	vm, err := v.lookupVerificationMethod(ctx, kid)
	if err != nil {
		return err
	}

	pub, err := verificationmethod.PublicKey(vm)
	if err != nil {
		return fmt.Errorf("failed to extract public key: %w", err)
	}

	return jwt.VerifyToken(token, pub)
}

func (v *Verifier) verifyEmbedded(ctx context.Context, raw []byte) error {
	credential, err := ParseEmbeddedCredential(raw)
	if err != nil {
		return err
	}

	proof, err := credential.Proof()
	if err != nil {
		return err
	}
	if proof.VerificationMethod == "" {
		return fmt.Errorf("proof has no verification method")
	}

	vm, err := v.lookupVerificationMethod(ctx, proof.VerificationMethod)
	if err != nil {
		return err
	}

	pub, err := verificationmethod.PublicKey(vm)
	if err != nil {
		return fmt.Errorf("failed to extract public key: %w", err)
	}

	var opts []jsonmap.ProofOpt
	if v.loader != nil {
		opts = append(opts, jsonmap.WithDocumentLoader(v.loader))
	}

	return credential.document.VerifyProof(pub, opts...)
}

// lookupVerificationMethod resolves the DID named by a verification method
// URL and returns the matching method. A bare DID without a fragment falls
// back to the document's assertion method.
func (v *Verifier) lookupVerificationMethod(ctx context.Context, vmURL string) (*did.VerificationMethod, error) {
	didID, err := verificationmethod.DIDFromVerificationMethod(vmURL)
	if err != nil {
		return nil, err
	}

	res, err := v.resolver.Resolve(ctx, didID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", didID, err)
	}
	if res.Metadata.Deactivated {
		return nil, fmt.Errorf("%w: issuer %s", did.ErrDeactivated, didID)
	}

	if vmURL == didID {
		return verificationmethod.Select(res.Document, "")
	}

	vm, ok := res.Document.FindVerificationMethod(vmURL)
	if !ok {
		return nil, fmt.Errorf("verification method %s not found in %s", vmURL, didID)
	}

	return vm, nil
}
