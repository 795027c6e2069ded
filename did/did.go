// Package did manages decentralized identifier lifecycles across method
// drivers. The engine owns the local identifier store and dispatches
// create, resolve, import and deactivate calls to the driver that accepts
// the identifier's method.
package did

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog"

	"github.com/pilacorp/go-ssi-sdk/kms"
)

// Engine dispatches lifecycle operations to method drivers and tracks
// locally known identifiers. Operations never retry; retry policy belongs
// to the transport layer.
type Engine struct {
	km      kms.KeyManager
	store   Store
	drivers []Driver
	cache   *ttlcache.Cache[string, *Resolution]
	logger  zerolog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithDriver registers a method driver. The driver set is fixed once the
// engine is constructed.
func WithDriver(d Driver) EngineOption {
	return func(e *Engine) {
		e.drivers = append(e.drivers, d)
	}
}

// WithLogger attaches a logger; the default engine is silent.
func WithLogger(logger zerolog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithDocumentCache caches driver resolutions for the given TTL.
// Deactivated results are never cached.
func WithDocumentCache(ttl time.Duration) EngineOption {
	return func(e *Engine) {
		e.cache = ttlcache.New[string, *Resolution](
			ttlcache.WithTTL[string, *Resolution](ttl),
		)
	}
}

// NewEngine creates an engine over the given key manager and store.
func NewEngine(km kms.KeyManager, store Store, opts ...EngineOption) (*Engine, error) {
	if km == nil {
		return nil, fmt.Errorf("key manager is required")
	}
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}

	e := &Engine{
		km:     km,
		store:  store,
		logger: zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(e)
	}

	if len(e.drivers) == 0 {
		return nil, fmt.Errorf("at least one method driver is required")
	}

	return e, nil
}

func (e *Engine) driverFor(method string) (Driver, error) {
	for _, d := range e.drivers {
		if d.Accept(method) {
			return d, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, method)
}

// Create generates a key pair (unless one is supplied), builds the document
// through the method driver, persists the identifier and returns the DID.
func (e *Engine) Create(ctx context.Context, method string, opts ...CreateOption) (string, error) {
	driver, err := e.driverFor(method)
	if err != nil {
		return "", err
	}

	var cfg createConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	key := cfg.key
	if key == "" {
		key, err = e.km.Generate(driver.KeyType())
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrKeyGeneration, err)
		}
	}

	pub, err := e.km.PublicKey(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}

	doc, err := driver.Create(ctx, &CreateRequest{Key: key, PublicKey: pub, Options: cfg.options})
	if err != nil {
		return "", fmt.Errorf("failed to create did:%s: %w", method, err)
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to serialize document: %w", err)
	}

	if err := e.store.Put(doc.ID, Entry{Key: key, Document: raw}); err != nil {
		return "", fmt.Errorf("failed to store %s: %w", doc.ID, err)
	}

	e.logger.Debug().Str("did", doc.ID).Str("method", method).Msg("created did")

	return doc.ID, nil
}

// Resolve returns the document for a DID. Identifiers deactivated locally
// resolve with deactivated metadata instead of an error.
func (e *Engine) Resolve(ctx context.Context, did string) (*Resolution, error) {
	method, _, err := Parse(did)
	if err != nil {
		return nil, err
	}

	if entry, ok := e.store.Get(did); ok && entry.Deactivated {
		res := &Resolution{
			Metadata: ResolutionMetadata{
				Method:      method,
				Deactivated: true,
				Retrieved:   time.Now().UTC(),
			},
		}
		if len(entry.Document) > 0 {
			if doc, parseErr := ParseDocument(entry.Document); parseErr == nil {
				res.Document = doc
			}
		}

		return res, nil
	}

	if e.cache != nil {
		if item := e.cache.Get(did); item != nil {
			e.logger.Debug().Str("did", did).Msg("document cache hit")
			return item.Value(), nil
		}
	}

	driver, err := e.driverFor(method)
	if err != nil {
		return nil, err
	}

	res, err := driver.Resolve(ctx, did)
	if err != nil {
		return nil, err
	}

	res.Metadata.Method = method
	if res.Metadata.Retrieved.IsZero() {
		res.Metadata.Retrieved = time.Now().UTC()
	}

	if e.cache != nil && !res.Metadata.Deactivated {
		e.cache.Set(did, res, ttlcache.DefaultTTL)
	}

	return res, nil
}

// ResolveRaw returns the resolver's payload verbatim for registry-backed
// methods, and the canonical document marshalling otherwise. Deactivated
// local identifiers fail with ErrDeactivated since raw output carries no
// metadata channel.
func (e *Engine) ResolveRaw(ctx context.Context, did string) ([]byte, error) {
	method, _, err := Parse(did)
	if err != nil {
		return nil, err
	}

	if entry, ok := e.store.Get(did); ok && entry.Deactivated {
		return nil, fmt.Errorf("%w: %s", ErrDeactivated, did)
	}

	driver, err := e.driverFor(method)
	if err != nil {
		return nil, err
	}

	if rr, ok := driver.(RawResolver); ok {
		return rr.ResolveRaw(ctx, did)
	}

	res, err := driver.Resolve(ctx, did)
	if err != nil {
		return nil, err
	}

	return json.Marshal(res.Document)
}

// Import persists an externally controlled identifier. The source is either
// a DID to resolve or a serialized document. Without a key handle the entry
// is read-only for signing purposes.
func (e *Engine) Import(ctx context.Context, source string, key kms.KeyHandle) (string, error) {
	var (
		doc         *Document
		raw         json.RawMessage
		deactivated bool
	)

	if strings.HasPrefix(source, "did:") {
		res, err := e.Resolve(ctx, source)
		if err != nil {
			return "", fmt.Errorf("failed to import %s: %w", source, err)
		}
		if res.Document == nil {
			return "", fmt.Errorf("failed to import %s: %w", source, ErrDeactivated)
		}

		doc = res.Document
		deactivated = res.Metadata.Deactivated

		raw, err = json.Marshal(doc)
		if err != nil {
			return "", fmt.Errorf("failed to serialize document: %w", err)
		}
	} else {
		var err error
		doc, err = ParseDocument([]byte(source))
		if err != nil {
			return "", fmt.Errorf("failed to import document: %w", err)
		}
		raw = json.RawMessage(source)
	}

	entry := Entry{
		Key:         key,
		Document:    raw,
		ReadOnly:    key == "",
		Deactivated: deactivated,
	}
	if err := e.store.Put(doc.ID, entry); err != nil {
		return "", fmt.Errorf("failed to store %s: %w", doc.ID, err)
	}

	e.logger.Debug().Str("did", doc.ID).Bool("readonly", entry.ReadOnly).Msg("imported did")

	return doc.ID, nil
}

// Deactivate ends the lifecycle of a locally known identifier. The driver
// runs its protocol-level deactivation first, then the store records the
// state so later resolutions report it.
func (e *Engine) Deactivate(ctx context.Context, did string) error {
	method, _, err := Parse(did)
	if err != nil {
		return err
	}

	if _, ok := e.store.Get(did); !ok {
		return fmt.Errorf("%w: %s is not locally known", ErrNotFound, did)
	}

	driver, err := e.driverFor(method)
	if err != nil {
		return err
	}

	if err := driver.Deactivate(ctx, did); err != nil {
		return fmt.Errorf("failed to deactivate %s: %w", did, err)
	}

	if err := e.store.Deactivate(did); err != nil {
		return err
	}

	if e.cache != nil {
		e.cache.Delete(did)
	}

	e.logger.Info().Str("did", did).Msg("deactivated did")

	return nil
}

// List returns all locally known identifiers in creation order.
func (e *Engine) List() []string {
	return e.store.List()
}

// SetKey re-binds the signing key association of a locally known DID.
func (e *Engine) SetKey(did string, h kms.KeyHandle) error {
	return e.store.SetKey(did, h)
}

// KeyFor returns the signing key handle of a locally known identifier.
// Read-only and deactivated entries carry no signing capability.
func (e *Engine) KeyFor(did string) (kms.KeyHandle, bool) {
	entry, ok := e.store.Get(did)
	if !ok || entry.ReadOnly || entry.Deactivated || entry.Key == "" {
		return "", false
	}

	return entry.Key, true
}
