package vp

import (
	"context"
	"fmt"
	"strings"

	"github.com/piprate/json-gold/ld"
	"golang.org/x/sync/errgroup"

	"github.com/pilacorp/go-ssi-sdk/credential/common/jsonmap"
	"github.com/pilacorp/go-ssi-sdk/credential/common/jwt"
	verificationmethod "github.com/pilacorp/go-ssi-sdk/credential/common/verification-method"
	"github.com/pilacorp/go-ssi-sdk/credential/vc"
	"github.com/pilacorp/go-ssi-sdk/did"
)

// Verifier checks presentation envelopes and their member credentials.
type Verifier struct {
	resolver    Resolver
	loader      ld.DocumentLoader
	credentials *vc.Verifier
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

// NewVerifier creates a presentation verifier.
func NewVerifier(resolver Resolver, opts ...VerifierOption) (*Verifier, error) {
	if resolver == nil {
		return nil, fmt.Errorf("resolver is required")
	}

	v := &Verifier{resolver: resolver}
	for _, opt := range opts {
		opt(v)
	}

	var credentialOpts []vc.VerifierOption
	if v.loader != nil {
		credentialOpts = append(credentialOpts, vc.WithVerifierDocumentLoader(v.loader))
	}

	credentials, err := vc.NewVerifier(resolver, credentialOpts...)
	if err != nil {
		return nil, err
	}
	v.credentials = credentials

	return v, nil
}

// Verify checks the holder signature on the envelope, then every member
// credential concurrently.
func (v *Verifier) Verify(ctx context.Context, raw []byte) error {
	presentation, err := ParsePresentation(raw)
	if err != nil {
		return fmt.Errorf("failed to verify presentation: %w", err)
	}

	switch p := presentation.(type) {
	case *JWTPresentation:
		if err := v.verifyToken(ctx, p); err != nil {
			return err
		}
	case *EmbeddedPresentation:
		if err := v.verifyEmbedded(ctx, p); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported presentation encoding %T", presentation)
	}

	contents, err := presentation.Contents()
	if err != nil {
		return fmt.Errorf("failed to parse presentation contents: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	for i, credential := range contents.Credentials {
		i, credential := i, credential
		g.Go(func() error {
			if err := v.credentials.Verify(ctx, []byte(credential)); err != nil {
				return fmt.Errorf("credential at index %d: %w", i, err)
			}
			return nil
		})
	}

	return g.Wait()
}

func (v *Verifier) verifyToken(ctx context.Context, p *JWTPresentation) error {
	token, err := p.Serialize()
	if err != nil {
		return err
	}
	token = strings.Trim(strings.TrimSpace(token), `"`)

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

func (v *Verifier) verifyEmbedded(ctx context.Context, p *EmbeddedPresentation) error {
	proof, err := p.Proof()
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

	return p.document.VerifyProof(pub, opts...)
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
		return nil, fmt.Errorf("%w: holder %s", did.ErrDeactivated, didID)
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
