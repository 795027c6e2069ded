// Package processor wraps JSON-LD canonicalization for linked-data proofs.
// Documents are normalized with URDNA2015 to n-quads before digesting, so
// semantically equal documents sign identically regardless of key order.
package processor

import (
	"crypto/sha256"
	"fmt"

	"github.com/piprate/json-gold/ld"
)

// Opt configures a canonicalization call.
type Opt func(*options)

type options struct {
	documentLoader ld.DocumentLoader
}

// WithDocumentLoader overrides the document loader, e.g. to serve contexts
// from memory in tests.
func WithDocumentLoader(loader ld.DocumentLoader) Opt {
	return func(o *options) {
		o.documentLoader = loader
	}
}

// defaultDocumentLoader caches remote contexts across calls.
var defaultDocumentLoader ld.DocumentLoader

func init() {
	defaultDocumentLoader = ld.NewCachingDocumentLoader(ld.NewDefaultDocumentLoader(nil))
}

// CanonicalizeDocument normalizes a JSON-LD document to its canonical
// n-quads form.
func CanonicalizeDocument(doc map[string]interface{}, opts ...Opt) ([]byte, error) {
	if doc == nil {
		return nil, fmt.Errorf("failed to canonicalize document: document is nil")
	}

	o := &options{documentLoader: defaultDocumentLoader}
	for _, opt := range opts {
		opt(o)
	}

	jsonldOptions := ld.NewJsonLdOptions("")
	jsonldOptions.Format = "application/n-quads"
	jsonldOptions.Algorithm = ld.AlgorithmURDNA2015
	jsonldOptions.DocumentLoader = o.documentLoader

	canonicalized, err := ld.NewJsonLdProcessor().Normalize(doc, jsonldOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize document: %w", err)
	}

	return []byte(canonicalized.(string)), nil
}

// ComputeDigest computes the SHA-256 digest of the input data.
func ComputeDigest(data []byte) ([]byte, error) {
	if data == nil {
		return nil, fmt.Errorf("failed to compute digest: input data is nil")
	}

	hash := sha256.Sum256(data)

	return hash[:], nil
}
