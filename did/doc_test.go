package did_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilacorp/go-ssi-sdk/did"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantMethod string
		wantMSID   string
		wantErr    bool
	}{
		{name: "key", input: "did:key:z6Mkh", wantMethod: "key", wantMSID: "z6Mkh"},
		{name: "web with path", input: "did:web:example.com:user:alice", wantMethod: "web", wantMSID: "example.com:user:alice"},
		{name: "method is a strict prefix segment", input: "did:keyfoo:xyz", wantMethod: "keyfoo", wantMSID: "xyz"},
		{name: "method name elsewhere does not leak", input: "did:foo:key", wantMethod: "foo", wantMSID: "key"},
		{name: "missing did prefix", input: "key:z6Mkh", wantErr: true},
		{name: "empty msid", input: "did:key:", wantErr: true},
		{name: "no method", input: "did:", wantErr: true},
		{name: "uppercase method", input: "did:KEY:abc", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method, msid, err := did.Parse(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, did.ErrMalformed)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantMethod, method)
			assert.Equal(t, tt.wantMSID, msid)
		})
	}
}

func TestStringListUnmarshal(t *testing.T) {
	var doc did.Document

	raw := `{
		"@context": "https://www.w3.org/ns/did/v1",
		"id": "did:web:example.com",
		"verificationMethod": [
			{"id": "did:web:example.com#key-1", "type": "Ed25519VerificationKey2018", "controller": "did:web:example.com", "publicKeyBase58": "B12NYF8RrR3h41TDCTJojY59usg3mbtbjnFs7Eud1Y6u"}
		],
		"authentication": [
			"did:web:example.com#key-1",
			{"id": "did:web:example.com#key-2", "type": "Ed25519VerificationKey2018", "controller": "did:web:example.com"}
		]
	}`
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))

	assert.Equal(t, did.StringList{"https://www.w3.org/ns/did/v1"}, doc.Context)
	assert.Equal(t, did.StringList{"did:web:example.com#key-1", "did:web:example.com#key-2"}, doc.Authentication)
}

func TestParseDocument(t *testing.T) {
	doc, err := did.ParseDocument([]byte(`{"@context":["https://www.w3.org/ns/did/v1"],"id":"did:web:example.com"}`))
	require.NoError(t, err)
	assert.Equal(t, "did:web:example.com", doc.ID)

	_, err = did.ParseDocument([]byte(`not json`))
	assert.ErrorIs(t, err, did.ErrMalformed)

	_, err = did.ParseDocument([]byte(`{"@context":["https://www.w3.org/ns/did/v1"]}`))
	assert.ErrorIs(t, err, did.ErrMalformed)

	_, err = did.ParseDocument([]byte(`{"id":"not-a-did"}`))
	assert.ErrorIs(t, err, did.ErrMalformed)
}

func TestFindVerificationMethod(t *testing.T) {
	doc := &did.Document{
		ID: "did:web:example.com",
		VerificationMethod: []did.VerificationMethod{
			{ID: "did:web:example.com#key-1", Type: did.VMTypeEd25519VerificationKey2018, Controller: "did:web:example.com"},
			{ID: "did:web:example.com#key-2", Type: did.VMTypeEd25519VerificationKey2018, Controller: "did:web:example.com"},
		},
	}

	vm, ok := doc.FindVerificationMethod("did:web:example.com#key-2")
	require.True(t, ok)
	assert.Equal(t, "did:web:example.com#key-2", vm.ID)

	vm, ok = doc.FindVerificationMethod("#key-1")
	require.True(t, ok)
	assert.Equal(t, "did:web:example.com#key-1", vm.ID)

	_, ok = doc.FindVerificationMethod("#key-9")
	assert.False(t, ok)
}

func TestFileName(t *testing.T) {
	name := did.FileName("did:web:example.com%3A8443:user:alice")

	assert.Equal(t, "did-web-example.com_3A8443-user-alice.json", name)
	assert.NotContains(t, name, ":")
	assert.NotContains(t, name, "%")

	// deterministic
	assert.Equal(t, name, did.FileName("did:web:example.com%3A8443:user:alice"))
	assert.Equal(t, "did-key-z6Mkh.json", did.FileName("did:key:z6Mkh"))
}
