package did

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Supported DID methods.
const (
	MethodKey  = "key"
	MethodWeb  = "web"
	MethodEBSI = "ebsi"
	MethodIOTA = "iota"
)

// Verification method types emitted by the drivers.
const (
	VMTypeEd25519VerificationKey2018        = "Ed25519VerificationKey2018"
	VMTypeEcdsaSecp256k1VerificationKey2019 = "EcdsaSecp256k1VerificationKey2019"
)

// Contexts carried by generated DID documents.
const (
	ContextSecurityV1 = "https://w3id.org/security/v1"
	ContextDIDV1      = "https://www.w3.org/ns/did/v1"
)

var methodPattern = regexp.MustCompile(`^[a-z0-9]+$`)

// Parse splits a DID into method and method-specific identifier. The method
// is taken strictly from the second colon-separated segment; identifiers
// that merely contain a method name elsewhere do not match.
func Parse(did string) (method, msid string, err error) {
	parts := strings.SplitN(did, ":", 3)
	if len(parts) != 3 || parts[0] != "did" {
		return "", "", fmt.Errorf("%w: %q", ErrMalformed, did)
	}
	if !methodPattern.MatchString(parts[1]) {
		return "", "", fmt.Errorf("%w: invalid method name in %q", ErrMalformed, did)
	}
	if parts[2] == "" {
		return "", "", fmt.Errorf("%w: empty method-specific id in %q", ErrMalformed, did)
	}

	return parts[1], parts[2], nil
}

// StringList unmarshals JSON members that appear either as a single string
// or as a list. Non-string entries (embedded verification methods, inline
// context maps) contribute their "id" when present and are skipped
// otherwise; typed resolution is not required to round-trip them.
type StringList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *StringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = StringList{single}
		return nil
	}

	var items []interface{}
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}

	out := make(StringList, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			out = append(out, v)
		case map[string]interface{}:
			if id, ok := v["id"].(string); ok {
				out = append(out, id)
			}
		}
	}
	*l = out

	return nil
}

// JWK is the subset of a JSON Web Key accepted when parsing foreign
// documents. Generated documents never emit JWK material.
type JWK struct {
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y,omitempty"`
}

// VerificationMethod is a single verification method of a DID document.
// Exactly one of the public key members is set.
type VerificationMethod struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	Controller      string `json:"controller"`
	PublicKeyBase58 string `json:"publicKeyBase58,omitempty"`
	PublicKeyHex    string `json:"publicKeyHex,omitempty"`
	PublicKeyJwk    *JWK   `json:"publicKeyJwk,omitempty"`
}

// Service is a service endpoint entry of a DID document.
type Service struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	ServiceEndpoint string `json:"serviceEndpoint"`
}

// Document is a W3C DID document. Verification relationships hold
// references into the verificationMethod list.
type Document struct {
	Context              StringList           `json:"@context"`
	ID                   string               `json:"id"`
	Controller           string               `json:"controller,omitempty"`
	VerificationMethod   []VerificationMethod `json:"verificationMethod,omitempty"`
	Authentication       StringList           `json:"authentication,omitempty"`
	AssertionMethod      StringList           `json:"assertionMethod,omitempty"`
	KeyAgreement         StringList           `json:"keyAgreement,omitempty"`
	CapabilityInvocation StringList           `json:"capabilityInvocation,omitempty"`
	CapabilityDelegation StringList           `json:"capabilityDelegation,omitempty"`
	Service              []Service            `json:"service,omitempty"`
}

// ParseDocument decodes and validates a serialized DID document.
func ParseDocument(raw []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: failed to decode document: %v", ErrMalformed, err)
	}

	if err := doc.Validate(); err != nil {
		return nil, err
	}

	return &doc, nil
}

// Validate checks the structural invariants of the document.
func (doc *Document) Validate() error {
	if doc.ID == "" {
		return fmt.Errorf("%w: document has no id", ErrMalformed)
	}
	if _, _, err := Parse(doc.ID); err != nil {
		return fmt.Errorf("%w: document id %q is not a did", ErrMalformed, doc.ID)
	}

	for _, vm := range doc.VerificationMethod {
		if vm.ID == "" || vm.Type == "" {
			return fmt.Errorf("%w: verification method missing id or type", ErrMalformed)
		}
	}

	return nil
}

// FindVerificationMethod looks up a verification method by full id or by
// bare fragment ("#key-1").
func (doc *Document) FindVerificationMethod(id string) (*VerificationMethod, bool) {
	if strings.HasPrefix(id, "#") {
		id = doc.ID + id
	}

	for i := range doc.VerificationMethod {
		if doc.VerificationMethod[i].ID == id {
			return &doc.VerificationMethod[i], true
		}
	}

	return nil, false
}

// ResolutionMetadata describes how a resolution result was produced.
type ResolutionMetadata struct {
	Method      string
	Deactivated bool
	Retrieved   time.Time
}

// Resolution is the result of resolving a DID.
type Resolution struct {
	Document *Document
	Metadata ResolutionMetadata
}

// FileName derives a deterministic, filesystem-safe cache file name for a
// DID. Method separators map to dashes and percent escapes to underscores;
// the mapping is stable across runs.
func FileName(did string) string {
	name := strings.ReplaceAll(did, ":", "-")
	name = strings.ReplaceAll(name, "%", "_")

	return name + ".json"
}
