// Package ssi assembles the DID engine, key management and credential
// pipeline behind one facade. Construction is explicit: every collaborator
// is built from the Config (or injected through an Option) and handed down,
// so two SDK instances never share state.
package ssi

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/piprate/json-gold/ld"
	"github.com/rs/zerolog"

	"github.com/pilacorp/go-ssi-sdk/credential/common/util"
	"github.com/pilacorp/go-ssi-sdk/credential/issuer"
	"github.com/pilacorp/go-ssi-sdk/credential/template"
	"github.com/pilacorp/go-ssi-sdk/credential/vc"
	"github.com/pilacorp/go-ssi-sdk/credential/vp"
	"github.com/pilacorp/go-ssi-sdk/did"
	"github.com/pilacorp/go-ssi-sdk/did/ebsi"
	"github.com/pilacorp/go-ssi-sdk/did/iota"
	"github.com/pilacorp/go-ssi-sdk/did/key"
	"github.com/pilacorp/go-ssi-sdk/did/transport"
	"github.com/pilacorp/go-ssi-sdk/did/web"
	"github.com/pilacorp/go-ssi-sdk/kms"
)

// SDK is the top-level entry point. It owns an engine with all four method
// drivers, a key manager, the credential template registry and the
// issuance, presentation and verification pipelines.
type SDK struct {
	config        Config
	km            kms.KeyManager
	engine        *did.Engine
	templates     *template.Registry
	issuer        *issuer.Issuer
	aggregator    *vp.Aggregator
	credentials   *vc.Verifier
	presentations *vp.Verifier
	logger        zerolog.Logger
}

type sdkOptions struct {
	km         kms.KeyManager
	store      did.Store
	logger     *zerolog.Logger
	loader     ld.DocumentLoader
	httpClient *http.Client
}

// Option overrides one collaborator of the SDK under construction.
type Option func(*sdkOptions)

// WithKeyManager replaces the config-derived key manager.
func WithKeyManager(km kms.KeyManager) Option {
	return func(o *sdkOptions) {
		o.km = km
	}
}

// WithStore replaces the in-memory identifier store.
func WithStore(store did.Store) Option {
	return func(o *sdkOptions) {
		o.store = store
	}
}

// WithLogger replaces the config-derived logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *sdkOptions) {
		o.logger = &logger
	}
}

// WithDocumentLoader sets the JSON-LD context loader used when signing and
// verifying linked-data proofs. The default loader fetches contexts over
// the network.
func WithDocumentLoader(loader ld.DocumentLoader) Option {
	return func(o *sdkOptions) {
		o.loader = loader
	}
}

// WithHTTPClient replaces the shared outbound HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *sdkOptions) {
		o.httpClient = c
	}
}

// New builds an SDK instance from the configuration.
func New(cfg Config, opts ...Option) (*SDK, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var options sdkOptions
	for _, opt := range opts {
		opt(&options)
	}

	logger := zerolog.New(os.Stdout).Level(cfg.LogLevel)
	if options.logger != nil {
		logger = *options.logger
	}

	client := options.httpClient
	if client == nil {
		transportOpts := []transport.Option{transport.WithTimeout(cfg.HTTP.Timeout)}
		if cfg.HTTP.Retries > 0 {
			transportOpts = append(transportOpts, transport.WithRetry(cfg.HTTP.Retries, cfg.HTTP.RetryInterval))
		}
		client = transport.NewClient(transportOpts...)
	}

	km := options.km
	if km == nil {
		var err error
		km, err = buildKeyManager(cfg, client)
		if err != nil {
			return nil, err
		}
	}

	store := options.store
	if store == nil {
		store = did.NewMemoryStore()
	}

	engine, err := buildEngine(cfg, km, store, client, logger)
	if err != nil {
		return nil, err
	}

	templates, err := template.NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to load credential templates: %w", err)
	}

	issuerOpts := []issuer.Option{issuer.WithLogger(logger)}
	if options.loader != nil {
		issuerOpts = append(issuerOpts, issuer.WithDocumentLoader(options.loader))
	}
	iss, err := issuer.New(engine, engine, km, templates, issuerOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build issuer: %w", err)
	}

	aggregatorOpts := []vp.AggregatorOption{vp.WithLogger(logger)}
	if options.loader != nil {
		aggregatorOpts = append(aggregatorOpts, vp.WithDocumentLoader(options.loader))
	}
	aggregator, err := vp.NewAggregator(engine, engine, km, aggregatorOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build aggregator: %w", err)
	}

	var credentialOpts []vc.VerifierOption
	var presentationOpts []vp.VerifierOption
	if options.loader != nil {
		credentialOpts = append(credentialOpts, vc.WithVerifierDocumentLoader(options.loader))
		presentationOpts = append(presentationOpts, vp.WithVerifierDocumentLoader(options.loader))
	}
	credentials, err := vc.NewVerifier(engine, credentialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build credential verifier: %w", err)
	}
	presentations, err := vp.NewVerifier(engine, presentationOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build presentation verifier: %w", err)
	}

	return &SDK{
		config:        cfg,
		km:            km,
		engine:        engine,
		templates:     templates,
		issuer:        iss,
		aggregator:    aggregator,
		credentials:   credentials,
		presentations: presentations,
		logger:        logger,
	}, nil
}

func buildKeyManager(cfg Config, client *http.Client) (kms.KeyManager, error) {
	if cfg.Signer.Endpoint == "" {
		return kms.NewLocalKeyManager(), nil
	}

	km, err := kms.NewRemoteKeyManager(cfg.Signer.Endpoint, cfg.Signer.APIKey, kms.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to build remote key manager: %w", err)
	}
	return km, nil
}

func buildEngine(cfg Config, km kms.KeyManager, store did.Store, client *http.Client, logger zerolog.Logger) (*did.Engine, error) {
	ebsiDriver, err := ebsi.New(cfg.EBSI.Registry,
		ebsi.WithVersion(cfg.EBSI.Version),
		ebsi.WithHTTPClient(client),
		ebsi.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build ebsi driver: %w", err)
	}

	iotaDriver, err := iota.New(cfg.IOTA.Indexer,
		iota.WithHTTPClient(client),
		iota.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build iota driver: %w", err)
	}

	engineOpts := []did.EngineOption{
		did.WithDriver(key.New()),
		did.WithDriver(web.New(web.WithHTTPClient(client), web.WithLogger(logger))),
		did.WithDriver(ebsiDriver),
		did.WithDriver(iotaDriver),
		did.WithLogger(logger),
	}
	if cfg.Cache.Enabled {
		engineOpts = append(engineOpts, did.WithDocumentCache(cfg.Cache.TTL))
	}

	engine, err := did.NewEngine(km, store, engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build engine: %w", err)
	}
	return engine, nil
}

// CreateDID creates an identifier for the given method. A fresh key pair
// is generated through the key manager unless did.WithKey supplies one.
func (s *SDK) CreateDID(ctx context.Context, method string, opts ...did.CreateOption) (string, error) {
	return s.engine.Create(ctx, method, opts...)
}

// ResolveDID resolves an identifier to its document and metadata.
func (s *SDK) ResolveDID(ctx context.Context, didID string) (*did.Resolution, error) {
	return s.engine.Resolve(ctx, didID)
}

// ResolveDIDRaw returns the method's registry response verbatim where the
// method supports it, and the canonical document marshal elsewhere.
func (s *SDK) ResolveDIDRaw(ctx context.Context, didID string) ([]byte, error) {
	return s.engine.ResolveRaw(ctx, didID)
}

// ImportDID brings an externally created identifier under local control.
// Source is either a DID to resolve or a raw document. Imports without a
// key handle are read-only for signing.
func (s *SDK) ImportDID(ctx context.Context, source string, key kms.KeyHandle) (string, error) {
	return s.engine.Import(ctx, source, key)
}

// ListDIDs returns the locally known identifiers in creation order.
func (s *SDK) ListDIDs() []string {
	return s.engine.List()
}

// DeactivateDID ends the lifecycle of a locally known identifier.
func (s *SDK) DeactivateDID(ctx context.Context, didID string) error {
	return s.engine.Deactivate(ctx, didID)
}

// IssueCredential instantiates the named template and signs it according
// to the proof configuration. The result is a JSON document for embedded
// proofs or a compact token for JWT proofs.
func (s *SDK) IssueCredential(ctx context.Context, templateName string, cfg issuer.ProofConfig) (string, error) {
	return s.issuer.Issue(ctx, templateName, cfg)
}

// CreatePresentation wraps the credentials in a presentation signed by the
// holder. All members must carry the same proof kind.
func (s *SDK) CreatePresentation(ctx context.Context, credentials []string, holderDID string, opts ...vp.CreateOption) (string, error) {
	return s.aggregator.CreatePresentation(ctx, credentials, holderDID, opts...)
}

// VerifyCredential checks a serialized credential against its issuer's
// resolved document.
func (s *SDK) VerifyCredential(ctx context.Context, raw string) error {
	return s.credentials.Verify(ctx, []byte(raw))
}

// VerifyPresentation checks a serialized presentation and every member
// credential inside it.
func (s *SDK) VerifyPresentation(ctx context.Context, raw string) error {
	return s.presentations.Verify(ctx, []byte(raw))
}

// CompressPresentation gzips a serialized presentation into a base64url
// string for size-constrained transports.
func (s *SDK) CompressPresentation(raw string) (string, error) {
	return util.CompressToBase64URL([]byte(raw))
}

// DecompressPresentation reverses CompressPresentation.
func (s *SDK) DecompressPresentation(encoded string) (string, error) {
	data, err := util.DecompressFromBase64URL(encoded)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// KeyManager exposes the key manager for callers that need to generate or
// import key material directly.
func (s *SDK) KeyManager() kms.KeyManager {
	return s.km
}

// Engine exposes the DID engine for lower-level lifecycle control.
func (s *SDK) Engine() *did.Engine {
	return s.engine
}

// Templates exposes the registry so callers can register their own
// credential templates before issuing.
func (s *SDK) Templates() *template.Registry {
	return s.templates
}
