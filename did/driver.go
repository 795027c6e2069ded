package did

import (
	"context"

	"github.com/pilacorp/go-ssi-sdk/kms"
)

// Driver implements one DID method. Drivers are stateless with respect to
// the local identifier store; the engine owns persistence and lifecycle
// flags.
type Driver interface {
	// Accept reports whether the driver handles the given method name.
	Accept(method string) bool
	// KeyType is the method's default signing algorithm.
	KeyType() kms.KeyType
	// Create builds a new document around the supplied key material.
	Create(ctx context.Context, req *CreateRequest) (*Document, error)
	// Resolve fetches or derives the document for a DID of this method.
	Resolve(ctx context.Context, did string) (*Resolution, error)
	// Deactivate performs the method's protocol-level deactivation, if any.
	// Methods without an on-protocol lifecycle succeed without effect.
	Deactivate(ctx context.Context, did string) error
}

// RawResolver is implemented by registry-backed drivers whose registry
// response is richer than the canonical document.
type RawResolver interface {
	ResolveRaw(ctx context.Context, did string) ([]byte, error)
}

// CreateRequest carries the key material and method options for Create.
type CreateRequest struct {
	Key       kms.KeyHandle
	PublicKey kms.PublicKey
	Options   CreateOptions
}

// CreateOptions holds the method-specific creation parameters.
type CreateOptions struct {
	// Domain is the hosting authority for did:web.
	Domain string
	// Path is the optional sub-path for did:web documents.
	Path string
	// Version selects the did:ebsi identifier derivation (1 or 2).
	Version int
}

type createConfig struct {
	key     kms.KeyHandle
	options CreateOptions
}

// CreateOption configures a single Create call.
type CreateOption func(*createConfig)

// WithKey reuses an existing key instead of generating a fresh one.
func WithKey(h kms.KeyHandle) CreateOption {
	return func(c *createConfig) {
		c.key = h
	}
}

// WithDomain sets the hosting domain for did:web creation.
func WithDomain(domain string) CreateOption {
	return func(c *createConfig) {
		c.options.Domain = domain
	}
}

// WithPath sets the document path under the domain for did:web creation.
func WithPath(path string) CreateOption {
	return func(c *createConfig) {
		c.options.Path = path
	}
}

// WithVersion selects the did:ebsi identifier derivation version.
func WithVersion(version int) CreateOption {
	return func(c *createConfig) {
		c.options.Version = version
	}
}
