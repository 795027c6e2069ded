package kms

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

type localKey struct {
	keyType KeyType
	ed      ed25519.PrivateKey
	ec      *ecdsa.PrivateKey
}

// LocalKeyManager keeps generated keys in process memory. Writes are
// mutually exclusive per manager; reads may run concurrently.
type LocalKeyManager struct {
	mu   sync.RWMutex
	keys map[KeyHandle]*localKey
}

// NewLocalKeyManager creates an empty in-memory key manager.
func NewLocalKeyManager() *LocalKeyManager {
	return &LocalKeyManager{keys: make(map[KeyHandle]*localKey)}
}

// Generate creates a new key pair of the given type.
func (m *LocalKeyManager) Generate(kt KeyType) (KeyHandle, error) {
	key := &localKey{keyType: kt}

	switch kt {
	case KeyTypeEd25519:
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return "", fmt.Errorf("failed to generate ed25519 key: %w", err)
		}
		key.ed = priv
	case KeyTypeSecp256k1:
		priv, err := crypto.GenerateKey()
		if err != nil {
			return "", fmt.Errorf("failed to generate secp256k1 key: %w", err)
		}
		key.ec = priv
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedKeyType, kt)
	}

	h := KeyHandle(uuid.NewString())

	m.mu.Lock()
	m.keys[h] = key
	m.mu.Unlock()

	return h, nil
}

// Import registers existing private key material and returns its handle.
// Ed25519 accepts a 32-byte seed or a 64-byte private key, secp256k1 a
// 32-byte scalar.
func (m *LocalKeyManager) Import(kt KeyType, priv []byte) (KeyHandle, error) {
	key := &localKey{keyType: kt}

	switch kt {
	case KeyTypeEd25519:
		switch len(priv) {
		case ed25519.SeedSize:
			key.ed = ed25519.NewKeyFromSeed(priv)
		case ed25519.PrivateKeySize:
			key.ed = ed25519.PrivateKey(priv)
		default:
			return "", fmt.Errorf("ed25519 private key must be %d or %d bytes, got %d",
				ed25519.SeedSize, ed25519.PrivateKeySize, len(priv))
		}
	case KeyTypeSecp256k1:
		ec, err := crypto.ToECDSA(priv)
		if err != nil {
			return "", fmt.Errorf("failed to parse secp256k1 private key: %w", err)
		}
		key.ec = ec
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedKeyType, kt)
	}

	h := KeyHandle(uuid.NewString())

	m.mu.Lock()
	m.keys[h] = key
	m.mu.Unlock()

	return h, nil
}

// PublicKey returns the public half of the referenced key.
func (m *LocalKeyManager) PublicKey(h KeyHandle) (PublicKey, error) {
	m.mu.RLock()
	key, ok := m.keys[h]
	m.mu.RUnlock()
	if !ok {
		return PublicKey{}, fmt.Errorf("%w: %s", ErrKeyNotFound, h)
	}

	switch key.keyType {
	case KeyTypeEd25519:
		pub := key.ed.Public().(ed25519.PublicKey)
		return PublicKey{Type: KeyTypeEd25519, Bytes: []byte(pub)}, nil
	case KeyTypeSecp256k1:
		return PublicKey{Type: KeyTypeSecp256k1, Bytes: crypto.CompressPubkey(&key.ec.PublicKey)}, nil
	default:
		return PublicKey{}, fmt.Errorf("%w: %s", ErrUnsupportedKeyType, key.keyType)
	}
}

// Sign signs the message with the referenced key. Ed25519 signs the message
// directly; secp256k1 signs its SHA-256 digest and yields a 65-byte
// [r, s, v] signature.
func (m *LocalKeyManager) Sign(h KeyHandle, data []byte) ([]byte, error) {
	m.mu.RLock()
	key, ok := m.keys[h]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, h)
	}

	switch key.keyType {
	case KeyTypeEd25519:
		return ed25519.Sign(key.ed, data), nil
	case KeyTypeSecp256k1:
		hash := sha256.Sum256(data)

		signature, err := crypto.Sign(hash[:], key.ec)
		if err != nil {
			return nil, fmt.Errorf("failed to sign payload: %w", err)
		}
		if len(signature) != 65 {
			return nil, fmt.Errorf("invalid signature length: expected 65 bytes, got %d", len(signature))
		}

		return signature, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKeyType, key.keyType)
	}
}
