// Package vp aggregates verifiable credentials into verifiable
// presentations. A presentation carries its member credentials in a single
// proof encoding: a JSON envelope with a linked-data proof, or a compact
// JWT whose vp claim lists member tokens.
package vp

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/piprate/json-gold/ld"

	"github.com/pilacorp/go-ssi-sdk/credential/common/jsonmap"
	"github.com/pilacorp/go-ssi-sdk/credential/common/util"
	"github.com/pilacorp/go-ssi-sdk/credential/vc"
	"github.com/pilacorp/go-ssi-sdk/kms"
)

// ContextCredentialsV1 is the envelope context of built presentations.
const ContextCredentialsV1 = "https://www.w3.org/2018/credentials/v1"

var (
	// ErrEmptyPresentation rejects aggregation without any credentials.
	ErrEmptyPresentation = errors.New("presentation requires at least one credential")

	// ErrMixedProofTypes rejects aggregation of credentials with different
	// proof encodings.
	ErrMixedProofTypes = errors.New("presentation cannot mix credential proof types")
)

// tokenPattern matches the three dot-separated base64url segments of a
// compact JWS.
var tokenPattern = regexp.MustCompile(`^[A-Za-z0-9-_]+\.[A-Za-z0-9-_]+\.[A-Za-z0-9-_]+$`)

// Presentation is a verifiable presentation in one of the two proof
// encodings.
type Presentation interface {
	// AddProof signs the presentation in place with purpose authentication.
	AddProof(signer *kms.Signer, opts ...ProofOption) error

	// Serialize returns the presentation in its wire form: the JSON
	// envelope for embedded proofs, the compact token for JWT proofs.
	Serialize() (string, error)

	// Contents returns the structured presentation data.
	Contents() (PresentationContents, error)

	// Kind reports the proof encoding.
	Kind() vc.ProofKind
}

// PresentationContents represents the structured contents of a
// presentation. Credentials hold the member credentials in their wire form,
// in envelope order.
type PresentationContents struct {
	Context     []interface{}
	ID          string
	Types       []string
	Holder      string
	Verifier    string
	Credentials []string
}

// ProofOption configures presentation signing.
type ProofOption func(*proofOptions)

type proofOptions struct {
	verificationMethod string
	nonce              string
	verifier           string
	expiration         *time.Time
	documentLoader     ld.DocumentLoader
}

// WithProofVerificationMethod selects the verification method recorded in
// the proof (embedded) or the kid header (token).
func WithProofVerificationMethod(id string) ProofOption {
	return func(o *proofOptions) {
		o.verificationMethod = id
	}
}

// WithProofNonce binds the proof to a verifier-supplied nonce: the proof
// challenge for embedded presentations, the nonce claim for tokens.
func WithProofNonce(nonce string) ProofOption {
	return func(o *proofOptions) {
		o.nonce = nonce
	}
}

// WithProofVerifier binds the proof to its intended verifier: the proof
// domain for embedded presentations, the aud claim for tokens.
func WithProofVerifier(verifier string) ProofOption {
	return func(o *proofOptions) {
		o.verifier = verifier
	}
}

// WithProofExpiration bounds token presentations with an exp claim.
// Embedded presentations ignore it.
func WithProofExpiration(t time.Time) ProofOption {
	return func(o *proofOptions) {
		o.expiration = &t
	}
}

// WithProofDocumentLoader overrides the JSON-LD context loader used when
// signing an embedded proof.
func WithProofDocumentLoader(loader ld.DocumentLoader) ProofOption {
	return func(o *proofOptions) {
		o.documentLoader = loader
	}
}

func getProofOptions(opts ...ProofOption) *proofOptions {
	options := &proofOptions{}
	for _, opt := range opts {
		opt(options)
	}

	return options
}

// ParsePresentation parses a presentation from either wire encoding.
func ParsePresentation(raw []byte) (Presentation, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return nil, fmt.Errorf("presentation is empty")
	}

	if tokenPattern.MatchString(strings.Trim(trimmed, `"`)) {
		return ParseJWTPresentation(strings.Trim(trimmed, `"`))
	}

	var m jsonmap.JSONMap
	if err := json.Unmarshal([]byte(trimmed), &m); err != nil {
		return nil, fmt.Errorf("presentation is neither a compact token nor a JSON document")
	}

	if _, ok := m["proof"]; !ok {
		return nil, fmt.Errorf("presentation document carries no proof")
	}

	return &EmbeddedPresentation{document: m}, nil
}

// serializePresentationContents builds the envelope document. Member
// credentials keep their wire form: documents for the embedded encoding,
// token strings otherwise.
func serializePresentationContents(vpc *PresentationContents, kind vc.ProofKind) (jsonmap.JSONMap, error) {
	m := make(jsonmap.JSONMap)

	if len(vpc.Context) > 0 {
		contexts, err := util.SerializeContexts(vpc.Context)
		if err != nil {
			return nil, fmt.Errorf("invalid @context: %w", err)
		}
		m["@context"] = contexts
	}
	if vpc.ID != "" {
		m["id"] = vpc.ID
	}
	if len(vpc.Types) > 0 {
		m["type"] = util.SerializeTypes(vpc.Types)
	}
	if vpc.Holder != "" {
		m["holder"] = vpc.Holder
	}

	if len(vpc.Credentials) > 0 {
		members := make([]interface{}, 0, len(vpc.Credentials))
		for i, credential := range vpc.Credentials {
			if kind == vc.ProofKindToken {
				members = append(members, strings.Trim(strings.TrimSpace(credential), `"`))
				continue
			}

			var doc map[string]interface{}
			if err := json.Unmarshal([]byte(credential), &doc); err != nil {
				return nil, fmt.Errorf("credential at index %d is not a JSON document: %w", i, err)
			}
			members = append(members, doc)
		}
		m["verifiableCredential"] = members
	}

	return m, nil
}

// parsePresentationContents extracts structured data from an envelope
// document.
func parsePresentationContents(m jsonmap.JSONMap) (PresentationContents, error) {
	var contents PresentationContents

	switch ctx := m["@context"].(type) {
	case nil:
	case string:
		contents.Context = append(contents.Context, ctx)
	case []interface{}:
		contents.Context = append(contents.Context, ctx...)
	default:
		return contents, fmt.Errorf("unsupported @context type: %T", ctx)
	}

	if id, ok := m["id"].(string); ok {
		contents.ID = id
	}

	switch types := m["type"].(type) {
	case nil:
	case string:
		contents.Types = append(contents.Types, types)
	case []interface{}:
		for _, t := range types {
			if s, ok := t.(string); ok {
				contents.Types = append(contents.Types, s)
			}
		}
	default:
		return contents, fmt.Errorf("unsupported type field: %T", types)
	}

	if holder, ok := m["holder"].(string); ok {
		contents.Holder = holder
	}

	credentials, err := credentialStrings(m["verifiableCredential"])
	if err != nil {
		return contents, err
	}
	contents.Credentials = credentials

	return contents, nil
}

// credentialStrings normalizes envelope members back to their wire form.
func credentialStrings(raw interface{}) ([]string, error) {
	if raw == nil {
		return nil, nil
	}

	list, ok := raw.([]interface{})
	if !ok {
		list = []interface{}{raw}
	}

	out := make([]string, 0, len(list))
	for i, item := range list {
		switch v := item.(type) {
		case string:
			out = append(out, v)
		case map[string]interface{}:
			data, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("failed to serialize credential at index %d: %w", i, err)
			}
			out = append(out, string(data))
		default:
			return nil, fmt.Errorf("unsupported credential type at index %d: %T", i, v)
		}
	}

	return out, nil
}
