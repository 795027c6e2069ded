package vp

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/piprate/json-gold/ld"
	"github.com/rs/zerolog"

	verificationmethod "github.com/pilacorp/go-ssi-sdk/credential/common/verification-method"
	"github.com/pilacorp/go-ssi-sdk/credential/vc"
	"github.com/pilacorp/go-ssi-sdk/did"
	"github.com/pilacorp/go-ssi-sdk/kms"
)

// Resolver resolves holder documents. *did.Engine satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, did string) (*did.Resolution, error)
}

// KeySource maps locally known identifiers to signing key handles.
// *did.Engine satisfies it.
type KeySource interface {
	KeyFor(did string) (kms.KeyHandle, bool)
}

// Aggregator builds holder-signed presentations from issued credentials.
type Aggregator struct {
	resolver Resolver
	keys     KeySource
	km       kms.KeyManager
	loader   ld.DocumentLoader
	logger   zerolog.Logger
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithLogger attaches a logger; the default aggregator is silent.
func WithLogger(logger zerolog.Logger) AggregatorOption {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

// WithDocumentLoader sets the JSON-LD context loader used when
// canonicalizing embedded proofs.
func WithDocumentLoader(loader ld.DocumentLoader) AggregatorOption {
	return func(a *Aggregator) {
		a.loader = loader
	}
}

// NewAggregator builds an aggregator over the given resolver, key source
// and key manager.
func NewAggregator(resolver Resolver, keys KeySource, km kms.KeyManager, opts ...AggregatorOption) (*Aggregator, error) {
	if resolver == nil {
		return nil, fmt.Errorf("resolver is required")
	}
	if keys == nil {
		return nil, fmt.Errorf("key source is required")
	}
	if km == nil {
		return nil, fmt.Errorf("key manager is required")
	}

	a := &Aggregator{
		resolver: resolver,
		keys:     keys,
		km:       km,
		logger:   zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(a)
	}

	return a, nil
}

// CreateOption configures a single aggregation request.
type CreateOption func(*createOptions)

type createOptions struct {
	id         string
	verifier   string
	nonce      string
	expiration *time.Time
}

// WithID pins the presentation id. A urn:uuid is generated otherwise.
func WithID(id string) CreateOption {
	return func(o *createOptions) {
		o.id = id
	}
}

// WithVerifier addresses the presentation to a verifier: the aud claim for
// tokens, the proof domain for embedded proofs.
func WithVerifier(verifier string) CreateOption {
	return func(o *createOptions) {
		o.verifier = verifier
	}
}

// WithNonce binds the presentation to a verifier-supplied nonce: the nonce
// claim for tokens, the proof challenge for embedded proofs.
func WithNonce(nonce string) CreateOption {
	return func(o *createOptions) {
		o.nonce = nonce
	}
}

// WithExpiration bounds token presentations with an exp claim.
func WithExpiration(t time.Time) CreateOption {
	return func(o *createOptions) {
		o.expiration = &t
	}
}

// ClassifyCredentials determines the shared proof kind of the given
// credential wire forms. Credentials of different kinds cannot share a
// presentation.
func ClassifyCredentials(credentials []string) (vc.ProofKind, error) {
	if len(credentials) == 0 {
		return "", ErrEmptyPresentation
	}

	kind, err := vc.ClassifyProof([]byte(credentials[0]))
	if err != nil {
		return "", fmt.Errorf("credential at index 0: %w", err)
	}

	for i, credential := range credentials[1:] {
		k, err := vc.ClassifyProof([]byte(credential))
		if err != nil {
			return "", fmt.Errorf("credential at index %d: %w", i+1, err)
		}
		if k != kind {
			return "", fmt.Errorf("%w: found both %s and %s", ErrMixedProofTypes, kind, k)
		}
	}

	return kind, nil
}

// CreatePresentation aggregates the given credentials into a presentation
// signed by the holder. The presentation encoding follows the shared proof
// kind of its members; precondition failures surface before any signing
// work begins.
func (a *Aggregator) CreatePresentation(ctx context.Context, credentials []string, holderDID string, opts ...CreateOption) (string, error) {
	if len(credentials) == 0 {
		return "", ErrEmptyPresentation
	}
	if holderDID == "" {
		return "", fmt.Errorf("holder DID is required")
	}

	options := &createOptions{}
	for _, opt := range opts {
		opt(options)
	}

	kind, err := ClassifyCredentials(credentials)
	if err != nil {
		return "", err
	}

	resolution, err := a.resolver.Resolve(ctx, holderDID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve holder %s: %w", holderDID, err)
	}
	if resolution.Metadata.Deactivated {
		return "", fmt.Errorf("%w: holder %s", did.ErrDeactivated, holderDID)
	}

	vm, err := verificationmethod.Select(resolution.Document, "")
	if err != nil {
		return "", err
	}

	id := options.id
	if id == "" {
		id = "urn:uuid:" + uuid.NewString()
	}

	vpc := PresentationContents{
		Context:     []interface{}{ContextCredentialsV1},
		ID:          id,
		Types:       []string{"VerifiablePresentation"},
		Holder:      holderDID,
		Verifier:    options.verifier,
		Credentials: credentials,
	}

	var presentation Presentation
	switch kind {
	case vc.ProofKindToken:
		presentation, err = NewJWTPresentation(vpc)
	default:
		presentation, err = NewEmbeddedPresentation(vpc)
	}
	if err != nil {
		return "", err
	}

	signer, err := a.signerFor(holderDID)
	if err != nil {
		return "", err
	}

	proofOpts := []ProofOption{WithProofVerificationMethod(vm.ID)}
	if options.nonce != "" {
		proofOpts = append(proofOpts, WithProofNonce(options.nonce))
	}
	if options.verifier != "" {
		proofOpts = append(proofOpts, WithProofVerifier(options.verifier))
	}
	if options.expiration != nil {
		proofOpts = append(proofOpts, WithProofExpiration(*options.expiration))
	}
	if a.loader != nil {
		proofOpts = append(proofOpts, WithProofDocumentLoader(a.loader))
	}

	if err := presentation.AddProof(signer, proofOpts...); err != nil {
		return "", err
	}

	serialized, err := presentation.Serialize()
	if err != nil {
		return "", err
	}

	a.logger.Debug().
		Str("holder", holderDID).
		Str("proofType", string(kind)).
		Int("credentials", len(credentials)).
		Msg("created presentation")

	return serialized, nil
}

// signerFor binds the holder's stored key handle to a signer.
func (a *Aggregator) signerFor(didID string) (*kms.Signer, error) {
	handle, ok := a.keys.KeyFor(didID)
	if !ok {
		return nil, fmt.Errorf("%w: no signing key for %s", vc.ErrSigningFailed, didID)
	}

	signer, err := kms.NewSigner(a.km, handle)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", vc.ErrSigningFailed, err)
	}

	return signer, nil
}
