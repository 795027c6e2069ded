// Package ebsi implements the did:ebsi method against an EBSI DID
// registry. The registry API is version-gated: v1 serves the document
// directly, v2 wraps it in a versioned envelope. Raw resolution returns
// the registry payload verbatim.
package ebsi

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/multiformats/go-multibase"
	"github.com/rs/zerolog"

	"github.com/pilacorp/go-ssi-sdk/did"
	"github.com/pilacorp/go-ssi-sdk/did/transport"
	"github.com/pilacorp/go-ssi-sdk/kms"
)

// Registry API versions with distinct endpoint shapes.
const (
	VersionV1 = 1
	VersionV2 = 2
)

// Driver talks to an EBSI DID registry.
type Driver struct {
	registry string
	version  int
	client   *http.Client
	logger   zerolog.Logger
}

// Option configures the driver.
type Option func(*Driver)

// WithVersion selects the registry API version (default v1).
func WithVersion(version int) Option {
	return func(d *Driver) {
		d.version = version
	}
}

// WithHTTPClient replaces the default instrumented client.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Driver) {
		d.client = c
	}
}

// WithLogger attaches a logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(d *Driver) {
		d.logger = logger
	}
}

// New creates a did:ebsi driver for the given registry base URL.
func New(registryURL string, opts ...Option) (*Driver, error) {
	if strings.TrimSpace(registryURL) == "" {
		return nil, fmt.Errorf("registry URL is required")
	}

	d := &Driver{
		registry: strings.TrimRight(registryURL, "/"),
		version:  VersionV1,
		client:   transport.NewClient(),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.version != VersionV1 && d.version != VersionV2 {
		return nil, fmt.Errorf("unsupported registry version %d", d.version)
	}

	return d, nil
}

// Accept implements did.Driver.
func (d *Driver) Accept(method string) bool {
	return method == did.MethodEBSI
}

// KeyType implements did.Driver.
func (d *Driver) KeyType() kms.KeyType {
	return kms.KeyTypeSecp256k1
}

// Create derives a new did:ebsi identifier and its document. v1 identifiers
// are random subject ids, v2 identifiers are bound to the public key.
// Anchoring the document in the registry is a separate, out-of-band step.
func (d *Driver) Create(_ context.Context, req *did.CreateRequest) (*did.Document, error) {
	if req.PublicKey.Type != kms.KeyTypeSecp256k1 {
		return nil, fmt.Errorf("did:ebsi requires a Secp256k1 key, got %s", req.PublicKey.Type)
	}

	version := req.Options.Version
	if version == 0 {
		version = d.version
	}

	var subject []byte
	switch version {
	case VersionV1:
		subject = make([]byte, 16)
		if _, err := rand.Read(subject); err != nil {
			return nil, fmt.Errorf("failed to derive subject id: %w", err)
		}
	case VersionV2:
		sum := sha256.Sum256(req.PublicKey.Bytes)
		subject = sum[:16]
	default:
		return nil, fmt.Errorf("unsupported registry version %d", version)
	}

	msid, err := multibase.Encode(multibase.Base58BTC, subject)
	if err != nil {
		return nil, fmt.Errorf("failed to encode subject id: %w", err)
	}

	id := "did:ebsi:" + msid
	vmID := id + "#key-1"

	return &did.Document{
		Context: did.StringList{
			did.ContextSecurityV1,
			did.ContextDIDV1,
		},
		ID: id,
		VerificationMethod: []did.VerificationMethod{
			{
				ID:           vmID,
				Type:         did.VMTypeEcdsaSecp256k1VerificationKey2019,
				Controller:   id,
				PublicKeyHex: req.PublicKey.Hex(),
			},
		},
		Authentication:  did.StringList{vmID},
		AssertionMethod: did.StringList{vmID},
	}, nil
}

// Resolve fetches and, for v2, unwraps the registry document.
func (d *Driver) Resolve(ctx context.Context, didID string) (*did.Resolution, error) {
	raw, err := d.fetch(ctx, didID)
	if err != nil {
		return nil, err
	}

	payload := raw
	if d.version == VersionV2 {
		var envelope struct {
			DIDDoc  json.RawMessage `json:"didDoc"`
			Version int             `json:"version"`
		}
		if err := json.Unmarshal(raw, &envelope); err != nil || len(envelope.DIDDoc) == 0 {
			return nil, fmt.Errorf("%w: registry envelope for %s", did.ErrMalformed, didID)
		}
		payload = envelope.DIDDoc
	}

	doc, err := did.ParseDocument(payload)
	if err != nil {
		return nil, err
	}

	return &did.Resolution{Document: doc}, nil
}

// ResolveRaw returns the registry response without interpretation.
func (d *Driver) ResolveRaw(ctx context.Context, didID string) ([]byte, error) {
	return d.fetch(ctx, didID)
}

// Deactivate has no registry action here; lifecycle transactions are
// out-of-band, the caller's store records the state.
func (d *Driver) Deactivate(context.Context, string) error {
	return nil
}

func (d *Driver) fetch(ctx context.Context, didID string) ([]byte, error) {
	method, _, err := did.Parse(didID)
	if err != nil {
		return nil, err
	}
	if !d.Accept(method) {
		return nil, fmt.Errorf("%w: %s", did.ErrUnsupportedMethod, method)
	}

	endpoint := fmt.Sprintf("%s/did-registry/v%d/identifiers/%s",
		d.registry, d.version, url.PathEscape(didID))

	d.logger.Debug().Str("did", didID).Str("endpoint", endpoint).Msg("resolving did:ebsi")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", did.ErrTransport, err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query registry: %v", did.ErrTransport, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", did.ErrNotFound, didID)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: registry returned status %d", did.ErrTransport, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read registry response: %v", did.ErrTransport, err)
	}

	return body, nil
}
