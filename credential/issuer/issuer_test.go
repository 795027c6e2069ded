package issuer_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/piprate/json-gold/ld"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	verificationmethod "github.com/pilacorp/go-ssi-sdk/credential/common/verification-method"
	"github.com/pilacorp/go-ssi-sdk/credential/issuer"
	"github.com/pilacorp/go-ssi-sdk/credential/template"
	"github.com/pilacorp/go-ssi-sdk/credential/vc"
	"github.com/pilacorp/go-ssi-sdk/did"
	"github.com/pilacorp/go-ssi-sdk/kms"
)

const (
	issuerDID  = "did:ebsi:zvHWX359A3CvfJnCYaAiAde"
	subjectDID = "did:key:z6MkhaXgBZDvotDkL5257faiztiGiC2QtKLGpbnnEGta2doK"
)

// credentialsContext stands in for the W3C credentials context so template
// canonicalization never leaves the test process.
const credentialsContext = `{
	"@context": {
		"id": "@id",
		"type": "@type",
		"cred": "https://www.w3.org/2018/credentials#",
		"xsd": "http://www.w3.org/2001/XMLSchema#",
		"VerifiableCredential": "cred:VerifiableCredential",
		"issuer": {"@id": "cred:issuer", "@type": "@id"},
		"issuanceDate": {"@id": "cred:issuanceDate", "@type": "xsd:dateTime"},
		"expirationDate": {"@id": "cred:expirationDate", "@type": "xsd:dateTime"},
		"credentialSubject": {"@id": "cred:credentialSubject", "@type": "@id"}
	}
}`

// offlineTemplate keeps every context term inline so embedded signing never
// consults a document loader.
var offlineTemplate = template.Template{
	Name: "MembershipBadge",
	Credential: []byte(`{
		"@context": [{
			"name": "https://example.org/vocab#name",
			"level": "https://example.org/vocab#level"
		}],
		"type": ["VerifiableCredential", "MembershipBadge"],
		"credentialSubject": {"name": "Gold Tier", "level": "gold"}
	}`),
}

type fakeResolver struct {
	docs map[string]*did.Resolution
}

func (r *fakeResolver) Resolve(_ context.Context, id string) (*did.Resolution, error) {
	res, ok := r.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", did.ErrNotFound, id)
	}

	return res, nil
}

type fakeKeySource struct {
	handles map[string]kms.KeyHandle
}

func (s *fakeKeySource) KeyFor(didID string) (kms.KeyHandle, bool) {
	h, ok := s.handles[didID]
	return h, ok
}

func signerDocument(didID string, pub kms.PublicKey) *did.Document {
	vmID := didID + "#key-1"
	vm := did.VerificationMethod{ID: vmID, Controller: didID}

	switch pub.Type {
	case kms.KeyTypeEd25519:
		vm.Type = did.VMTypeEd25519VerificationKey2018
		vm.PublicKeyBase58 = pub.Base58()
	case kms.KeyTypeSecp256k1:
		vm.Type = did.VMTypeEcdsaSecp256k1VerificationKey2019
		vm.PublicKeyHex = pub.Hex()
	}

	return &did.Document{
		Context:            did.StringList{did.ContextDIDV1},
		ID:                 didID,
		VerificationMethod: []did.VerificationMethod{vm},
		Authentication:     did.StringList{vmID},
		AssertionMethod:    did.StringList{vmID},
	}
}

// newIssuerFixture creates an issuer whose issuerDID is backed by a real
// local key manager entry.
func newIssuerFixture(t *testing.T, kt kms.KeyType, opts ...issuer.Option) (*issuer.Issuer, *fakeResolver, *template.Registry, kms.PublicKey) {
	t.Helper()

	km := kms.NewLocalKeyManager()
	handle, err := km.Generate(kt)
	require.NoError(t, err)

	pub, err := km.PublicKey(handle)
	require.NoError(t, err)

	resolver := &fakeResolver{docs: map[string]*did.Resolution{
		issuerDID: {
			Document: signerDocument(issuerDID, pub),
			Metadata: did.ResolutionMetadata{Method: "ebsi"},
		},
	}}
	keys := &fakeKeySource{handles: map[string]kms.KeyHandle{issuerDID: handle}}

	registry, err := template.NewRegistry()
	require.NoError(t, err)
	require.NoError(t, registry.Register(offlineTemplate))

	iss, err := issuer.New(resolver, keys, km, registry, opts...)
	require.NoError(t, err)

	return iss, resolver, registry, pub
}

// seededLoader caches a local stand-in for the W3C credentials context so
// canonicalizing the standard templates never fetches it.
func seededLoader(t *testing.T) ld.DocumentLoader {
	t.Helper()

	loader := ld.NewCachingDocumentLoader(ld.NewDefaultDocumentLoader(nil))

	document, err := ld.DocumentFromReader(strings.NewReader(credentialsContext))
	require.NoError(t, err)
	loader.AddDocument("https://www.w3.org/2018/credentials/v1", document)

	return loader
}

func TestIssueEmbedded(t *testing.T) {
	iss, resolver, _, _ := newIssuerFixture(t, kms.KeyTypeEd25519)

	serialized, err := iss.Issue(context.Background(), "MembershipBadge", issuer.ProofConfig{
		SubjectDID: subjectDID,
		IssuerDID:  issuerDID,
		ProofType:  vc.ProofKindEmbedded,
	})
	require.NoError(t, err)

	assert.Contains(t, serialized, "Gold Tier")
	assert.Contains(t, serialized, issuerDID)

	parsed, err := vc.ParseCredential([]byte(serialized))
	require.NoError(t, err)
	assert.Equal(t, vc.ProofKindEmbedded, parsed.Kind())

	contents, err := parsed.Contents()
	require.NoError(t, err)
	assert.Equal(t, issuerDID, contents.Issuer)
	require.Len(t, contents.Subject, 1)
	assert.Equal(t, subjectDID, contents.Subject[0].ID)
	assert.True(t, strings.HasPrefix(contents.ID, "urn:uuid:"))

	embedded, ok := parsed.(*vc.EmbeddedCredential)
	require.True(t, ok)
	proof, err := embedded.Proof()
	require.NoError(t, err)
	assert.Equal(t, issuerDID+"#key-1", proof.VerificationMethod)
	assert.Equal(t, "assertionMethod", proof.ProofPurpose)
	assert.Equal(t, "eddsa-rdfc-2022", proof.Cryptosuite)

	verifier, err := vc.NewVerifier(resolver)
	require.NoError(t, err)
	require.NoError(t, verifier.Verify(context.Background(), []byte(serialized)))
}

func TestIssueEmbeddedIsDefaultProofType(t *testing.T) {
	iss, _, _, _ := newIssuerFixture(t, kms.KeyTypeEd25519)

	serialized, err := iss.Issue(context.Background(), "MembershipBadge", issuer.ProofConfig{
		SubjectDID: subjectDID,
		IssuerDID:  issuerDID,
	})
	require.NoError(t, err)

	kind, err := vc.ClassifyProof([]byte(serialized))
	require.NoError(t, err)
	assert.Equal(t, vc.ProofKindEmbedded, kind)
}

func TestIssueEmbeddedEuropass(t *testing.T) {
	loader := seededLoader(t)
	iss, resolver, registry, _ := newIssuerFixture(t, kms.KeyTypeEd25519, issuer.WithDocumentLoader(loader))

	serialized, err := iss.Issue(context.Background(), "Europass", issuer.ProofConfig{
		SubjectDID: subjectDID,
		IssuerDID:  issuerDID,
		ProofType:  vc.ProofKindEmbedded,
	})
	require.NoError(t, err)

	assert.Contains(t, serialized, "Master of Science in Applied Mathematics")
	assert.Contains(t, serialized, "Technische Universiteit Delft")

	parsed, err := vc.ParseCredential([]byte(serialized))
	require.NoError(t, err)

	embedded, ok := parsed.(*vc.EmbeddedCredential)
	require.True(t, ok)
	proof, err := embedded.Proof()
	require.NoError(t, err)
	assert.Equal(t, "DataIntegrityProof", proof.Type)
	assert.NotEmpty(t, proof.ProofValue)

	require.NoError(t, registry.Validate("Europass", embedded.Document()))

	verifier, err := vc.NewVerifier(resolver, vc.WithVerifierDocumentLoader(loader))
	require.NoError(t, err)
	require.NoError(t, verifier.Verify(context.Background(), []byte(serialized)))
}

func TestIssueToken(t *testing.T) {
	iss, resolver, registry, _ := newIssuerFixture(t, kms.KeyTypeSecp256k1)
	expiry := time.Now().Add(365 * 24 * time.Hour).UTC()

	token, err := iss.Issue(context.Background(), "Europass", issuer.ProofConfig{
		SubjectDID:     subjectDID,
		IssuerDID:      issuerDID,
		ProofType:      vc.ProofKindToken,
		ExpirationDate: &expiry,
	})
	require.NoError(t, err)
	assert.Len(t, strings.Split(token, "."), 3)

	parsed, err := vc.ParseCredential([]byte(token))
	require.NoError(t, err)
	assert.Equal(t, vc.ProofKindToken, parsed.Kind())

	contents, err := parsed.Contents()
	require.NoError(t, err)
	assert.Equal(t, issuerDID, contents.Issuer)
	assert.Contains(t, contents.Types, "Europass")
	require.Len(t, contents.Subject, 1)
	assert.Equal(t, subjectDID, contents.Subject[0].ID)
	require.NotNil(t, contents.ExpirationDate)

	achievement, ok := contents.Subject[0].CustomFields["learningAchievement"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Master of Science in Applied Mathematics", achievement["title"])

	jwtCredential, ok := parsed.(*vc.JWTCredential)
	require.True(t, ok)
	require.NoError(t, registry.Validate("Europass", jwtCredential.Document()))

	verifier, err := vc.NewVerifier(resolver)
	require.NoError(t, err)
	require.NoError(t, verifier.Verify(context.Background(), []byte(token)))
}

func TestIssueUnknownTemplate(t *testing.T) {
	iss, _, _, _ := newIssuerFixture(t, kms.KeyTypeEd25519)

	_, err := iss.Issue(context.Background(), "OpenBadge", issuer.ProofConfig{
		SubjectDID: subjectDID,
		IssuerDID:  issuerDID,
	})
	require.ErrorIs(t, err, issuer.ErrTemplateNotFound)
	assert.Contains(t, err.Error(), "OpenBadge")
}

func TestIssueDeactivatedIssuer(t *testing.T) {
	iss, resolver, _, _ := newIssuerFixture(t, kms.KeyTypeEd25519)
	resolver.docs[issuerDID].Metadata.Deactivated = true

	_, err := iss.Issue(context.Background(), "MembershipBadge", issuer.ProofConfig{
		SubjectDID: subjectDID,
		IssuerDID:  issuerDID,
	})
	require.ErrorIs(t, err, did.ErrDeactivated)
}

func TestIssueUnresolvableIssuer(t *testing.T) {
	iss, _, _, _ := newIssuerFixture(t, kms.KeyTypeEd25519)

	_, err := iss.Issue(context.Background(), "MembershipBadge", issuer.ProofConfig{
		SubjectDID: subjectDID,
		IssuerDID:  "did:ebsi:zUnknown",
	})
	require.ErrorIs(t, err, did.ErrNotFound)
}

func TestIssueForeignVerificationMethod(t *testing.T) {
	iss, _, _, _ := newIssuerFixture(t, kms.KeyTypeEd25519)

	_, err := iss.Issue(context.Background(), "MembershipBadge", issuer.ProofConfig{
		SubjectDID:         subjectDID,
		IssuerDID:          issuerDID,
		VerificationMethod: "did:ebsi:zSomeoneElse#key-9",
	})
	require.ErrorIs(t, err, verificationmethod.ErrMismatch)
}

func TestIssueNoAssertionMethod(t *testing.T) {
	iss, resolver, _, _ := newIssuerFixture(t, kms.KeyTypeEd25519)
	resolver.docs[issuerDID].Document.AssertionMethod = nil

	_, err := iss.Issue(context.Background(), "MembershipBadge", issuer.ProofConfig{
		SubjectDID: subjectDID,
		IssuerDID:  issuerDID,
	})
	require.ErrorIs(t, err, verificationmethod.ErrNoAssertionMethod)
}

func TestIssueWithoutSigningKey(t *testing.T) {
	km := kms.NewLocalKeyManager()
	handle, err := km.Generate(kms.KeyTypeEd25519)
	require.NoError(t, err)

	pub, err := km.PublicKey(handle)
	require.NoError(t, err)

	resolver := &fakeResolver{docs: map[string]*did.Resolution{
		issuerDID: {
			Document: signerDocument(issuerDID, pub),
			Metadata: did.ResolutionMetadata{Method: "ebsi"},
		},
	}}
	registry, err := template.NewRegistry()
	require.NoError(t, err)
	require.NoError(t, registry.Register(offlineTemplate))

	iss, err := issuer.New(resolver, &fakeKeySource{handles: map[string]kms.KeyHandle{}}, km, registry)
	require.NoError(t, err)

	_, err = iss.Issue(context.Background(), "MembershipBadge", issuer.ProofConfig{
		SubjectDID: subjectDID,
		IssuerDID:  issuerDID,
	})
	require.ErrorIs(t, err, vc.ErrSigningFailed)
}

func TestIssueRequiresParticipants(t *testing.T) {
	iss, _, _, _ := newIssuerFixture(t, kms.KeyTypeEd25519)

	_, err := iss.Issue(context.Background(), "MembershipBadge", issuer.ProofConfig{SubjectDID: subjectDID})
	require.Error(t, err)

	_, err = iss.Issue(context.Background(), "MembershipBadge", issuer.ProofConfig{IssuerDID: issuerDID})
	require.Error(t, err)
}
