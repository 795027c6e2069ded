package kms

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// RemoteKeyManager signs with keys held by a remote signing service. Key
// generation stays with the service operator, so Generate is not supported.
type RemoteKeyManager struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// RemoteOption configures a RemoteKeyManager.
type RemoteOption func(*RemoteKeyManager)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) RemoteOption {
	return func(m *RemoteKeyManager) {
		m.client = c
	}
}

// NewRemoteKeyManager creates a manager backed by a remote signing API.
func NewRemoteKeyManager(endpoint, apiKey string, opts ...RemoteOption) (*RemoteKeyManager, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, fmt.Errorf("endpoint required")
	}

	m := &RemoteKeyManager{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 10 * time.Second},
	}

	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// Generate is not supported for remotely held keys.
func (m *RemoteKeyManager) Generate(KeyType) (KeyHandle, error) {
	return "", ErrRemoteGenerate
}

// PublicKey fetches the public half of a remotely held key.
func (m *RemoteKeyManager) PublicKey(h KeyHandle) (PublicKey, error) {
	req, err := http.NewRequestWithContext(
		context.Background(),
		http.MethodGet,
		fmt.Sprintf("%s/keys/%s", m.endpoint, h),
		nil,
	)
	if err != nil {
		return PublicKey{}, err
	}
	m.setHeaders(req)

	resp, err := m.client.Do(req)
	if err != nil {
		return PublicKey{}, fmt.Errorf("failed to fetch remote key: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return PublicKey{}, fmt.Errorf("%w: %s", ErrKeyNotFound, h)
	}
	if resp.StatusCode != http.StatusOK {
		return PublicKey{}, fmt.Errorf("remote signer http %d", resp.StatusCode)
	}

	var out struct {
		KeyType      KeyType `json:"key_type"`
		PublicKeyHex string  `json:"public_key_hex"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return PublicKey{}, err
	}

	pub, err := DecodeHex(out.PublicKeyHex)
	if err != nil {
		return PublicKey{}, fmt.Errorf("failed to decode remote public key: %w", err)
	}

	return PublicKey{Type: out.KeyType, Bytes: pub}, nil
}

// Sign signs the payload using the remote API.
func (m *RemoteKeyManager) Sign(h KeyHandle, data []byte) ([]byte, error) {
	reqBody, _ := json.Marshal(map[string]any{
		"payload_hex": hex.EncodeToString(data),
	})

	req, err := http.NewRequestWithContext(
		context.Background(),
		http.MethodPost,
		fmt.Sprintf("%s/keys/%s/sign", m.endpoint, h),
		bytes.NewReader(reqBody),
	)
	if err != nil {
		return nil, err
	}
	m.setHeaders(req)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call remote signer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, h)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("remote signer http %d", resp.StatusCode)
	}

	var out struct {
		SignatureHex string `json:"signature_hex"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}

	sig, err := DecodeHex(out.SignatureHex)
	if err != nil {
		return nil, fmt.Errorf("failed to decode remote signature: %w", err)
	}

	return sig, nil
}

func (m *RemoteKeyManager) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if m.apiKey != "" {
		req.Header.Set("x-api-key", m.apiKey)
	}
}
