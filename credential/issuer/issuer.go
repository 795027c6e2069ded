// Package issuer issues verifiable credentials from named templates. The
// issuer resolves the issuing identifier, selects a verification method,
// populates the template and signs the result in the requested encoding.
package issuer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/piprate/json-gold/ld"
	"github.com/rs/zerolog"

	"github.com/pilacorp/go-ssi-sdk/credential/common/jsonmap"
	verificationmethod "github.com/pilacorp/go-ssi-sdk/credential/common/verification-method"
	"github.com/pilacorp/go-ssi-sdk/credential/template"
	"github.com/pilacorp/go-ssi-sdk/credential/vc"
	"github.com/pilacorp/go-ssi-sdk/did"
	"github.com/pilacorp/go-ssi-sdk/kms"
)

// ErrTemplateNotFound mirrors the registry sentinel so callers can match
// issuance failures without importing the template package.
var ErrTemplateNotFound = template.ErrTemplateNotFound

// Resolver resolves issuer documents. *did.Engine satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, did string) (*did.Resolution, error)
}

// KeySource maps locally known identifiers to signing key handles.
// *did.Engine satisfies it.
type KeySource interface {
	KeyFor(did string) (kms.KeyHandle, bool)
}

// ProofConfig describes a single issuance request.
type ProofConfig struct {
	// SubjectDID becomes the credentialSubject id.
	SubjectDID string

	// IssuerDID signs the credential. Its document must be resolvable and
	// the identifier must hold a signing key.
	IssuerDID string

	// VerificationMethod pins the signing method by id. Empty selects the
	// document's first assertionMethod entry.
	VerificationMethod string

	// ProofType selects the encoding. Empty defaults to an embedded
	// linked-data proof.
	ProofType vc.ProofKind

	// ExpirationDate bounds credential validity when set.
	ExpirationDate *time.Time
}

// Issuer populates credential templates and signs them.
type Issuer struct {
	resolver  Resolver
	keys      KeySource
	km        kms.KeyManager
	templates *template.Registry
	loader    ld.DocumentLoader
	logger    zerolog.Logger
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithLogger attaches a logger; the default issuer is silent.
func WithLogger(logger zerolog.Logger) Option {
	return func(i *Issuer) {
		i.logger = logger
	}
}

// WithDocumentLoader sets the JSON-LD context loader used when
// canonicalizing embedded proofs.
func WithDocumentLoader(loader ld.DocumentLoader) Option {
	return func(i *Issuer) {
		i.loader = loader
	}
}

// New builds an issuer over the given resolver, key source, key manager and
// template registry.
func New(resolver Resolver, keys KeySource, km kms.KeyManager, templates *template.Registry, opts ...Option) (*Issuer, error) {
	if resolver == nil {
		return nil, fmt.Errorf("resolver is required")
	}
	if keys == nil {
		return nil, fmt.Errorf("key source is required")
	}
	if km == nil {
		return nil, fmt.Errorf("key manager is required")
	}
	if templates == nil {
		return nil, fmt.Errorf("template registry is required")
	}

	i := &Issuer{
		resolver:  resolver,
		keys:      keys,
		km:        km,
		templates: templates,
		logger:    zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(i)
	}

	return i, nil
}

// Issue loads the named template, fills in the participant identifiers and
// signs the result with the issuer's key. The returned string is the
// credential wire form: a JSON document for embedded proofs, a compact
// token otherwise. Failures are never retried here.
func (i *Issuer) Issue(ctx context.Context, templateName string, cfg ProofConfig) (string, error) {
	if cfg.IssuerDID == "" {
		return "", fmt.Errorf("issuer DID is required")
	}
	if cfg.SubjectDID == "" {
		return "", fmt.Errorf("subject DID is required")
	}

	document, err := i.templates.Load(templateName)
	if err != nil {
		return "", err
	}

	resolution, err := i.resolver.Resolve(ctx, cfg.IssuerDID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve issuer %s: %w", cfg.IssuerDID, err)
	}
	if resolution.Metadata.Deactivated {
		return "", fmt.Errorf("%w: issuer %s", did.ErrDeactivated, cfg.IssuerDID)
	}

	vm, err := verificationmethod.Select(resolution.Document, cfg.VerificationMethod)
	if err != nil {
		return "", err
	}

	populate(document, cfg)

	signer, err := i.signerFor(cfg.IssuerDID)
	if err != nil {
		return "", err
	}

	proofType := cfg.ProofType
	if proofType == "" {
		proofType = vc.ProofKindEmbedded
	}

	credential, err := vc.NewCredential(document, proofType)
	if err != nil {
		return "", err
	}

	proofOpts := []vc.ProofOption{vc.WithVerificationMethod(vm.ID)}
	if i.loader != nil {
		proofOpts = append(proofOpts, vc.WithProofDocumentLoader(i.loader))
	}

	if err := credential.AddProof(signer, proofOpts...); err != nil {
		return "", err
	}

	serialized, err := credential.Serialize()
	if err != nil {
		return "", err
	}

	i.logger.Debug().
		Str("template", templateName).
		Str("issuer", cfg.IssuerDID).
		Str("subject", cfg.SubjectDID).
		Str("proofType", string(proofType)).
		Msg("issued credential")

	return serialized, nil
}

// signerFor binds the issuer's stored key handle to a signer.
func (i *Issuer) signerFor(didID string) (*kms.Signer, error) {
	handle, ok := i.keys.KeyFor(didID)
	if !ok {
		return nil, fmt.Errorf("%w: no signing key for %s", vc.ErrSigningFailed, didID)
	}

	signer, err := kms.NewSigner(i.km, handle)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", vc.ErrSigningFailed, err)
	}

	return signer, nil
}

// populate fills the lifecycle fields of a loaded template document.
func populate(document jsonmap.JSONMap, cfg ProofConfig) {
	document["id"] = "urn:uuid:" + uuid.NewString()
	document["issuer"] = cfg.IssuerDID
	document["issuanceDate"] = time.Now().UTC().Format(time.RFC3339)
	if cfg.ExpirationDate != nil {
		document["expirationDate"] = cfg.ExpirationDate.UTC().Format(time.RFC3339)
	}

	subject, ok := document["credentialSubject"].(map[string]interface{})
	if !ok {
		subject = map[string]interface{}{}
	}
	subject["id"] = cfg.SubjectDID
	document["credentialSubject"] = subject
}
