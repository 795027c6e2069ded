// Package iota implements the did:iota method against a ledger indexer
// node. Resolution queries the indexer; ledger publication and state
// transitions are out-of-band.
package iota

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pilacorp/go-ssi-sdk/did"
	"github.com/pilacorp/go-ssi-sdk/did/transport"
	"github.com/pilacorp/go-ssi-sdk/kms"
)

// Driver resolves did:iota identifiers through an indexer node.
type Driver struct {
	indexer string
	client  *http.Client
	logger  zerolog.Logger
}

// Option configures the driver.
type Option func(*Driver)

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

// New creates a did:iota driver for the given indexer base URL.
func New(indexerURL string, opts ...Option) (*Driver, error) {
	if strings.TrimSpace(indexerURL) == "" {
		return nil, fmt.Errorf("indexer URL is required")
	}

	d := &Driver{
		indexer: strings.TrimRight(indexerURL, "/"),
		client:  transport.NewClient(),
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}

	return d, nil
}

// Accept implements did.Driver.
func (d *Driver) Accept(method string) bool {
	return method == did.MethodIOTA
}

// KeyType implements did.Driver.
func (d *Driver) KeyType() kms.KeyType {
	return kms.KeyTypeEd25519
}

// Create derives the alias identifier from the public key and builds the
// initial document. Publishing it to the ledger is the caller's step.
func (d *Driver) Create(_ context.Context, req *did.CreateRequest) (*did.Document, error) {
	if req.PublicKey.Type != kms.KeyTypeEd25519 {
		return nil, fmt.Errorf("did:iota requires an Ed25519 key, got %s", req.PublicKey.Type)
	}

	alias := sha256.Sum256(req.PublicKey.Bytes)
	id := "did:iota:0x" + hex.EncodeToString(alias[:])
	vmID := id + "#key-1"

	return &did.Document{
		Context: did.StringList{
			did.ContextSecurityV1,
			did.ContextDIDV1,
		},
		ID: id,
		VerificationMethod: []did.VerificationMethod{
			{
				ID:              vmID,
				Type:            did.VMTypeEd25519VerificationKey2018,
				Controller:      id,
				PublicKeyBase58: req.PublicKey.Base58(),
			},
		},
		Authentication:  did.StringList{vmID},
		AssertionMethod: did.StringList{vmID},
	}, nil
}

// Resolve queries the indexer. Identifiers deactivated on the ledger
// resolve with deactivated metadata.
func (d *Driver) Resolve(ctx context.Context, didID string) (*did.Resolution, error) {
	method, _, err := did.Parse(didID)
	if err != nil {
		return nil, err
	}
	if !d.Accept(method) {
		return nil, fmt.Errorf("%w: %s", did.ErrUnsupportedMethod, method)
	}

	endpoint := fmt.Sprintf("%s/api/indexer/v1/dids/%s", d.indexer, url.PathEscape(didID))

	d.logger.Debug().Str("did", didID).Str("endpoint", endpoint).Msg("resolving did:iota")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", did.ErrTransport, err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query indexer: %v", did.ErrTransport, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", did.ErrNotFound, didID)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: indexer returned status %d", did.ErrTransport, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read indexer response: %v", did.ErrTransport, err)
	}

	var out struct {
		Document json.RawMessage `json:"document"`
		Metadata struct {
			Deactivated bool `json:"deactivated"`
		} `json:"metadata"`
	}
	if err := json.Unmarshal(body, &out); err != nil || len(out.Document) == 0 {
		return nil, fmt.Errorf("%w: indexer response for %s", did.ErrMalformed, didID)
	}

	doc, err := did.ParseDocument(out.Document)
	if err != nil {
		return nil, err
	}

	return &did.Resolution{
		Document: doc,
		Metadata: did.ResolutionMetadata{Deactivated: out.Metadata.Deactivated},
	}, nil
}

// Deactivate has no indexer action; the state transition is a ledger
// transaction owned by the caller.
func (d *Driver) Deactivate(context.Context, string) error {
	return nil
}
