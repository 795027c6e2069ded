// Package web implements the did:web method. Documents are hosted by the
// identifier's authority and fetched over HTTPS; the endpoint is computed
// from the identifier, never rewritten from response bodies.
package web

import (
	"context"
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

const (
	defaultPath  = "/.well-known/did.json"
	documentPath = "/did.json"
)

// Driver resolves and creates did:web identifiers.
type Driver struct {
	client  *http.Client
	useHTTP bool
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

// WithHTTP switches document fetches to plain HTTP, for local development
// hosts only.
func WithHTTP() Option {
	return func(d *Driver) {
		d.useHTTP = true
	}
}

// WithLogger attaches a logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(d *Driver) {
		d.logger = logger
	}
}

// New creates the did:web driver.
func New(opts ...Option) *Driver {
	d := &Driver{
		client: transport.NewClient(),
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Accept implements did.Driver.
func (d *Driver) Accept(method string) bool {
	return method == did.MethodWeb
}

// KeyType implements did.Driver.
func (d *Driver) KeyType() kms.KeyType {
	return kms.KeyTypeEd25519
}

// Create builds a document for the caller to host under the given domain.
// Nothing is uploaded; publishing the document is the host's job.
func (d *Driver) Create(_ context.Context, req *did.CreateRequest) (*did.Document, error) {
	if req.Options.Domain == "" {
		return nil, fmt.Errorf("did:web requires a domain")
	}
	if req.PublicKey.Type != kms.KeyTypeEd25519 {
		return nil, fmt.Errorf("did:web requires an Ed25519 key, got %s", req.PublicKey.Type)
	}

	id := "did:web:" + url.QueryEscape(req.Options.Domain)
	if path := strings.Trim(req.Options.Path, "/"); path != "" {
		id += ":" + strings.ReplaceAll(path, "/", ":")
	}

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

// Resolve fetches the hosted document and checks it answers for the
// queried identifier.
func (d *Driver) Resolve(ctx context.Context, didID string) (*did.Resolution, error) {
	endpoint, err := Endpoint(didID, d.useHTTP)
	if err != nil {
		return nil, err
	}

	d.logger.Debug().Str("did", didID).Str("endpoint", endpoint).Msg("resolving did:web")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", did.ErrTransport, err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to fetch %s: %v", did.ErrTransport, endpoint, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", did.ErrNotFound, didID)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: %s returned status %d", did.ErrTransport, endpoint, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %v", did.ErrTransport, endpoint, err)
	}

	doc, err := did.ParseDocument(body)
	if err != nil {
		return nil, err
	}
	if doc.ID != didID {
		return nil, fmt.Errorf("%w: document id %q does not match %q", did.ErrMalformed, doc.ID, didID)
	}

	return &did.Resolution{Document: doc}, nil
}

// Deactivate has no protocol action; removing the hosted document is the
// host's operation.
func (d *Driver) Deactivate(context.Context, string) error {
	return nil
}

// Endpoint computes the document URL for a did:web identifier. The first
// identifier segment is the percent-decoded authority, remaining segments
// map to path elements.
func Endpoint(didID string, useHTTP bool) (string, error) {
	method, msid, err := did.Parse(didID)
	if err != nil {
		return "", err
	}
	if method != did.MethodWeb {
		return "", fmt.Errorf("%w: %s", did.ErrUnsupportedMethod, method)
	}

	parts := strings.Split(msid, ":")

	authority, err := url.QueryUnescape(parts[0])
	if err != nil {
		return "", fmt.Errorf("%w: invalid authority in %q", did.ErrMalformed, didID)
	}

	scheme := "https://"
	if useHTTP {
		scheme = "http://"
	}

	if len(parts) == 1 {
		return scheme + authority + defaultPath, nil
	}

	return scheme + authority + "/" + strings.Join(parts[1:], "/") + documentPath, nil
}
