// Package key implements the did:key method. Documents are derived from
// the key fingerprint alone; no operation performs network I/O.
package key

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcutil/base58"
	"github.com/multiformats/go-multibase"

	"github.com/pilacorp/go-ssi-sdk/did"
	"github.com/pilacorp/go-ssi-sdk/kms"
)

// multicodec varint prefix for Ed25519 public keys.
var ed25519Codec = []byte{0xed, 0x01}

// Driver derives did:key identifiers from Ed25519 public keys.
type Driver struct{}

// New creates the did:key driver.
func New() *Driver {
	return &Driver{}
}

// Accept implements did.Driver.
func (d *Driver) Accept(method string) bool {
	return method == did.MethodKey
}

// KeyType implements did.Driver.
func (d *Driver) KeyType() kms.KeyType {
	return kms.KeyTypeEd25519
}

// Create derives the identifier and document from the public key.
func (d *Driver) Create(_ context.Context, req *did.CreateRequest) (*did.Document, error) {
	if req.PublicKey.Type != kms.KeyTypeEd25519 {
		return nil, fmt.Errorf("did:key requires an Ed25519 key, got %s", req.PublicKey.Type)
	}

	fp, err := Fingerprint(req.PublicKey.Bytes)
	if err != nil {
		return nil, err
	}

	return buildDocument(fp, req.PublicKey.Bytes), nil
}

// Resolve rebuilds the document from the fingerprint in the identifier.
func (d *Driver) Resolve(_ context.Context, didID string) (*did.Resolution, error) {
	method, msid, err := did.Parse(didID)
	if err != nil {
		return nil, err
	}
	if !d.Accept(method) {
		return nil, fmt.Errorf("%w: %s", did.ErrUnsupportedMethod, method)
	}

	pub, err := PublicKeyFromFingerprint(msid)
	if err != nil {
		return nil, err
	}

	return &did.Resolution{Document: buildDocument(msid, pub)}, nil
}

// Deactivate has no protocol action for a derivational method; lifecycle
// state lives in the caller's store.
func (d *Driver) Deactivate(context.Context, string) error {
	return nil
}

// Fingerprint encodes an Ed25519 public key as a multibase base58btc
// fingerprint with the ed25519-pub multicodec prefix.
func Fingerprint(pubKey []byte) (string, error) {
	buf := make([]byte, 0, len(ed25519Codec)+len(pubKey))
	buf = append(buf, ed25519Codec...)
	buf = append(buf, pubKey...)

	fp, err := multibase.Encode(multibase.Base58BTC, buf)
	if err != nil {
		return "", fmt.Errorf("failed to encode fingerprint: %w", err)
	}

	return fp, nil
}

// PublicKeyFromFingerprint reverses Fingerprint.
func PublicKeyFromFingerprint(fp string) ([]byte, error) {
	encoding, data, err := multibase.Decode(fp)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid fingerprint %q: %v", did.ErrMalformed, fp, err)
	}
	if encoding != multibase.Base58BTC {
		return nil, fmt.Errorf("%w: fingerprint %q is not base58btc", did.ErrMalformed, fp)
	}
	if len(data) <= len(ed25519Codec) || data[0] != ed25519Codec[0] || data[1] != ed25519Codec[1] {
		return nil, fmt.Errorf("%w: unsupported key multicodec in %q", did.ErrMalformed, fp)
	}

	return data[len(ed25519Codec):], nil
}

func buildDocument(fp string, pubKey []byte) *did.Document {
	id := fmt.Sprintf("did:key:%s", fp)
	vmID := fmt.Sprintf("%s#%s", id, fp)

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
				PublicKeyBase58: base58.Encode(pubKey),
			},
		},
		Authentication:  did.StringList{vmID},
		AssertionMethod: did.StringList{vmID},
	}
}
