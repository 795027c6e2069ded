package verificationmethod

import (
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilacorp/go-ssi-sdk/did"
	"github.com/pilacorp/go-ssi-sdk/kms"
)

const testDID = "did:ebsi:zvHWX359A3CvfJnCYaAiAde"

func testPublicKey(t *testing.T, kt kms.KeyType) kms.PublicKey {
	t.Helper()

	km := kms.NewLocalKeyManager()
	handle, err := km.Generate(kt)
	require.NoError(t, err)

	pub, err := km.PublicKey(handle)
	require.NoError(t, err)

	return pub
}

func testDocument(pub kms.PublicKey) *did.Document {
	return &did.Document{
		Context: did.StringList{did.ContextDIDV1},
		ID:      testDID,
		VerificationMethod: []did.VerificationMethod{
			{
				ID:           testDID + "#key-1",
				Type:         did.VMTypeEcdsaSecp256k1VerificationKey2019,
				Controller:   testDID,
				PublicKeyHex: pub.Hex(),
			},
		},
		Authentication:  did.StringList{testDID + "#key-1"},
		AssertionMethod: did.StringList{testDID + "#key-1"},
	}
}

func TestSelectExplicit(t *testing.T) {
	doc := testDocument(testPublicKey(t, kms.KeyTypeSecp256k1))

	vm, err := Select(doc, testDID+"#key-1")
	require.NoError(t, err)
	assert.Equal(t, testDID+"#key-1", vm.ID)

	vm, err = Select(doc, "#key-1")
	require.NoError(t, err)
	assert.Equal(t, testDID+"#key-1", vm.ID)
}

func TestSelectExplicitNotFound(t *testing.T) {
	doc := testDocument(testPublicKey(t, kms.KeyTypeSecp256k1))

	_, err := Select(doc, testDID+"#key-9")
	require.ErrorIs(t, err, ErrMismatch)
}

func TestSelectExplicitForeignController(t *testing.T) {
	doc := testDocument(testPublicKey(t, kms.KeyTypeSecp256k1))
	doc.VerificationMethod[0].Controller = "did:ebsi:zother"

	_, err := Select(doc, testDID+"#key-1")
	require.ErrorIs(t, err, ErrMismatch)
}

func TestSelectFallback(t *testing.T) {
	doc := testDocument(testPublicKey(t, kms.KeyTypeSecp256k1))

	vm, err := Select(doc, "")
	require.NoError(t, err)
	assert.Equal(t, testDID+"#key-1", vm.ID)
}

func TestSelectFallbackSkipsDanglingRefs(t *testing.T) {
	doc := testDocument(testPublicKey(t, kms.KeyTypeSecp256k1))
	doc.AssertionMethod = did.StringList{testDID + "#gone", testDID + "#key-1"}

	vm, err := Select(doc, "")
	require.NoError(t, err)
	assert.Equal(t, testDID+"#key-1", vm.ID)
}

func TestSelectNoAssertionMethod(t *testing.T) {
	doc := testDocument(testPublicKey(t, kms.KeyTypeSecp256k1))
	doc.AssertionMethod = nil

	_, err := Select(doc, "")
	require.ErrorIs(t, err, ErrNoAssertionMethod)
}

func TestPublicKeyEd25519Base58(t *testing.T) {
	pub := testPublicKey(t, kms.KeyTypeEd25519)

	vm := &did.VerificationMethod{
		ID:              "did:key:z6Mk#key-1",
		Type:            did.VMTypeEd25519VerificationKey2018,
		PublicKeyBase58: pub.Base58(),
	}

	got, err := PublicKey(vm)
	require.NoError(t, err)
	assert.Equal(t, kms.KeyTypeEd25519, got.Type)
	assert.Equal(t, pub.Bytes, got.Bytes)
}

func TestPublicKeyEd25519JWK(t *testing.T) {
	pub := testPublicKey(t, kms.KeyTypeEd25519)

	vm := &did.VerificationMethod{
		ID:   "did:key:z6Mk#key-1",
		Type: did.VMTypeEd25519VerificationKey2018,
		PublicKeyJwk: &did.JWK{
			Kty: "OKP",
			Crv: "Ed25519",
			X:   base64.RawURLEncoding.EncodeToString(pub.Bytes),
		},
	}

	got, err := PublicKey(vm)
	require.NoError(t, err)
	assert.Equal(t, pub.Bytes, got.Bytes)
}

func TestPublicKeySecp256k1Hex(t *testing.T) {
	pub := testPublicKey(t, kms.KeyTypeSecp256k1)

	vm := &did.VerificationMethod{
		ID:           testDID + "#key-1",
		Type:         did.VMTypeEcdsaSecp256k1VerificationKey2019,
		PublicKeyHex: "0x" + pub.Hex(),
	}

	got, err := PublicKey(vm)
	require.NoError(t, err)
	assert.Equal(t, kms.KeyTypeSecp256k1, got.Type)
	assert.Equal(t, pub.Bytes, got.Bytes)
}

func TestPublicKeySecp256k1UncompressedHex(t *testing.T) {
	pub := testPublicKey(t, kms.KeyTypeSecp256k1)

	ecdsaPub, err := crypto.DecompressPubkey(pub.Bytes)
	require.NoError(t, err)
	uncompressed := crypto.FromECDSAPub(ecdsaPub)
	require.Len(t, uncompressed, 65)

	vm := &did.VerificationMethod{
		ID:           testDID + "#key-1",
		Type:         did.VMTypeEcdsaSecp256k1VerificationKey2019,
		PublicKeyHex: hex.EncodeToString(uncompressed),
	}

	got, err := PublicKey(vm)
	require.NoError(t, err)
	assert.Equal(t, pub.Bytes, got.Bytes)
}

func TestPublicKeyErrors(t *testing.T) {
	_, err := PublicKey(nil)
	require.Error(t, err)

	_, err = PublicKey(&did.VerificationMethod{ID: "x", Type: "RsaVerificationKey2018"})
	require.Error(t, err)

	_, err = PublicKey(&did.VerificationMethod{ID: "x", Type: did.VMTypeEd25519VerificationKey2018})
	require.Error(t, err)

	_, err = PublicKey(&did.VerificationMethod{
		ID:              "x",
		Type:            did.VMTypeEd25519VerificationKey2018,
		PublicKeyBase58: "abc",
	})
	require.Error(t, err)
}

func TestDIDFromVerificationMethod(t *testing.T) {
	got, err := DIDFromVerificationMethod(testDID + "#key-1")
	require.NoError(t, err)
	assert.Equal(t, testDID, got)

	got, err = DIDFromVerificationMethod(testDID)
	require.NoError(t, err)
	assert.Equal(t, testDID, got)

	_, err = DIDFromVerificationMethod("")
	require.Error(t, err)

	_, err = DIDFromVerificationMethod("urn:uuid:123#key-1")
	require.Error(t, err)
}
