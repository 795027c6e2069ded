package ssi_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ssi "github.com/pilacorp/go-ssi-sdk"
	"github.com/pilacorp/go-ssi-sdk/credential/issuer"
	"github.com/pilacorp/go-ssi-sdk/credential/template"
	"github.com/pilacorp/go-ssi-sdk/credential/vc"
	"github.com/pilacorp/go-ssi-sdk/credential/vp"
	"github.com/pilacorp/go-ssi-sdk/did"
	"github.com/pilacorp/go-ssi-sdk/kms"
)

const subjectDID = "did:key:z6MkhaXgBZDvotDkL5257faiztiGiC2QtKLGpbnnEGta2doK"

// membershipTemplate keeps every JSON-LD term inline so linked-data proofs
// never fetch a remote context.
const membershipTemplate = `{
	"@context": [{
		"tier": "https://membership.example/vocab#tier"
	}],
	"type": ["VerifiableCredential", "MembershipCredential"],
	"credentialSubject": {"tier": "platinum"}
}`

func newSDK(t *testing.T) *ssi.SDK {
	t.Helper()

	sdk, err := ssi.New(ssi.DefaultConfig())
	require.NoError(t, err)

	return sdk
}

func TestNewValidatesConfig(t *testing.T) {
	cfg := ssi.DefaultConfig()
	cfg.EBSI.Registry = ""

	_, err := ssi.New(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registry URL is required")
}

func TestNewBuildsRemoteKeyManagerFromConfig(t *testing.T) {
	cfg := ssi.DefaultConfig()
	cfg.Signer.Endpoint = "https://signer.example.com"
	cfg.Signer.APIKey = "secret"

	sdk, err := ssi.New(cfg)
	require.NoError(t, err)

	_, ok := sdk.KeyManager().(*kms.RemoteKeyManager)
	assert.True(t, ok)
}

func TestNewDefaultsToLocalKeyManager(t *testing.T) {
	sdk := newSDK(t)

	_, ok := sdk.KeyManager().(*kms.LocalKeyManager)
	assert.True(t, ok)
}

func TestAccessors(t *testing.T) {
	sdk := newSDK(t)

	assert.NotNil(t, sdk.Engine())
	assert.NotNil(t, sdk.KeyManager())
	assert.NotNil(t, sdk.Templates())
	assert.Empty(t, sdk.ListDIDs())
}

func TestDIDLifecycle(t *testing.T) {
	ctx := context.Background()
	sdk := newSDK(t)

	didID, err := sdk.CreateDID(ctx, "key")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(didID, "did:key:z6Mk"))

	resolution, err := sdk.ResolveDID(ctx, didID)
	require.NoError(t, err)
	assert.Equal(t, didID, resolution.Document.ID)
	assert.False(t, resolution.Metadata.Deactivated)
	require.NotEmpty(t, resolution.Document.VerificationMethod)

	raw, err := sdk.ResolveDIDRaw(ctx, didID)
	require.NoError(t, err)
	assert.Contains(t, string(raw), didID)

	assert.Equal(t, []string{didID}, sdk.ListDIDs())

	require.NoError(t, sdk.DeactivateDID(ctx, didID))

	resolution, err = sdk.ResolveDID(ctx, didID)
	require.NoError(t, err)
	assert.True(t, resolution.Metadata.Deactivated)

	err = sdk.DeactivateDID(ctx, "did:key:z6MkunknownUnknownUnknownUnknownUnknownUnknown1")
	assert.ErrorIs(t, err, did.ErrNotFound)
}

func TestImportDIDDocument(t *testing.T) {
	ctx := context.Background()
	sdk := newSDK(t)

	didID, err := sdk.CreateDID(ctx, "key")
	require.NoError(t, err)

	resolution, err := sdk.ResolveDID(ctx, didID)
	require.NoError(t, err)
	document, err := json.Marshal(resolution.Document)
	require.NoError(t, err)

	other := newSDK(t)
	imported, err := other.ImportDID(ctx, string(document), "")
	require.NoError(t, err)
	assert.Equal(t, didID, imported)
	assert.Equal(t, []string{didID}, other.ListDIDs())

	// No key handle came with the document, so the import cannot sign.
	_, err = other.IssueCredential(ctx, "Europass", issuer.ProofConfig{
		IssuerDID:  didID,
		SubjectDID: subjectDID,
		ProofType:  vc.ProofKindToken,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, vc.ErrSigningFailed)
}

func TestIssueAndPresentToken(t *testing.T) {
	ctx := context.Background()
	sdk := newSDK(t)

	issuerDID, err := sdk.CreateDID(ctx, "key")
	require.NoError(t, err)
	holderDID, err := sdk.CreateDID(ctx, "key")
	require.NoError(t, err)

	expiry := time.Now().Add(24 * time.Hour).UTC()
	credential, err := sdk.IssueCredential(ctx, "Europass", issuer.ProofConfig{
		IssuerDID:      issuerDID,
		SubjectDID:     subjectDID,
		ProofType:      vc.ProofKindToken,
		ExpirationDate: &expiry,
	})
	require.NoError(t, err)

	kind, err := vc.ClassifyProof([]byte(credential))
	require.NoError(t, err)
	assert.Equal(t, vc.ProofKindToken, kind)

	require.NoError(t, sdk.VerifyCredential(ctx, credential))

	presentation, err := sdk.CreatePresentation(ctx, []string{credential}, holderDID,
		vp.WithVerifier("did:web:verifier.example.com"),
		vp.WithNonce("nonce-123"),
	)
	require.NoError(t, err)
	require.NoError(t, sdk.VerifyPresentation(ctx, presentation))

	parsed, err := vp.ParsePresentation([]byte(presentation))
	require.NoError(t, err)
	contents, err := parsed.Contents()
	require.NoError(t, err)
	assert.Equal(t, holderDID, contents.Holder)
	assert.Equal(t, "did:web:verifier.example.com", contents.Verifier)
	assert.Equal(t, []string{credential}, contents.Credentials)
}

func TestIssueEmbeddedWithCustomTemplate(t *testing.T) {
	ctx := context.Background()
	sdk := newSDK(t)

	require.NoError(t, sdk.Templates().Register(template.Template{
		Name:       "MembershipCredential",
		Credential: json.RawMessage(membershipTemplate),
	}))

	issuerDID, err := sdk.CreateDID(ctx, "key")
	require.NoError(t, err)

	credential, err := sdk.IssueCredential(ctx, "MembershipCredential", issuer.ProofConfig{
		IssuerDID:  issuerDID,
		SubjectDID: subjectDID,
	})
	require.NoError(t, err)

	kind, err := vc.ClassifyProof([]byte(credential))
	require.NoError(t, err)
	assert.Equal(t, vc.ProofKindEmbedded, kind)
	assert.Contains(t, credential, "platinum")

	require.NoError(t, sdk.VerifyCredential(ctx, credential))
}

func TestCreatePresentationRejectsMixedKinds(t *testing.T) {
	ctx := context.Background()
	sdk := newSDK(t)

	require.NoError(t, sdk.Templates().Register(template.Template{
		Name:       "MembershipCredential",
		Credential: json.RawMessage(membershipTemplate),
	}))

	issuerDID, err := sdk.CreateDID(ctx, "key")
	require.NoError(t, err)
	holderDID, err := sdk.CreateDID(ctx, "key")
	require.NoError(t, err)

	token, err := sdk.IssueCredential(ctx, "Europass", issuer.ProofConfig{
		IssuerDID:  issuerDID,
		SubjectDID: subjectDID,
		ProofType:  vc.ProofKindToken,
	})
	require.NoError(t, err)

	embedded, err := sdk.IssueCredential(ctx, "MembershipCredential", issuer.ProofConfig{
		IssuerDID:  issuerDID,
		SubjectDID: subjectDID,
		ProofType:  vc.ProofKindEmbedded,
	})
	require.NoError(t, err)

	_, err = sdk.CreatePresentation(ctx, []string{token, embedded}, holderDID)
	assert.ErrorIs(t, err, vp.ErrMixedProofTypes)
}

func TestIssueUnknownTemplate(t *testing.T) {
	ctx := context.Background()
	sdk := newSDK(t)

	issuerDID, err := sdk.CreateDID(ctx, "key")
	require.NoError(t, err)

	_, err = sdk.IssueCredential(ctx, "OpenBadge", issuer.ProofConfig{
		IssuerDID:  issuerDID,
		SubjectDID: subjectDID,
	})
	assert.ErrorIs(t, err, issuer.ErrTemplateNotFound)
}

func TestCompressPresentationRoundTrip(t *testing.T) {
	ctx := context.Background()
	sdk := newSDK(t)

	issuerDID, err := sdk.CreateDID(ctx, "key")
	require.NoError(t, err)
	holderDID, err := sdk.CreateDID(ctx, "key")
	require.NoError(t, err)

	credential, err := sdk.IssueCredential(ctx, "Europass", issuer.ProofConfig{
		IssuerDID:  issuerDID,
		SubjectDID: subjectDID,
		ProofType:  vc.ProofKindToken,
	})
	require.NoError(t, err)

	presentation, err := sdk.CreatePresentation(ctx, []string{credential}, holderDID)
	require.NoError(t, err)

	encoded, err := sdk.CompressPresentation(presentation)
	require.NoError(t, err)
	assert.NotEqual(t, presentation, encoded)

	decoded, err := sdk.DecompressPresentation(encoded)
	require.NoError(t, err)
	assert.Equal(t, presentation, decoded)
}
