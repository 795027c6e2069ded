package ssi

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
)

// Config holds the settings for an SDK instance. Every field can be set
// through the environment with the SSI_ prefix, underscores mapping to
// nesting (SSI_EBSI_REGISTRY, SSI_HTTP_TIMEOUT, SSI_LOGLEVEL, ...).
type Config struct {
	// EBSI holds the did:ebsi registry settings.
	EBSI EBSIConfig `koanf:"ebsi"`
	// IOTA holds the did:iota indexer settings.
	IOTA IOTAConfig `koanf:"iota"`
	// HTTP holds the shared outbound transport settings.
	HTTP HTTPConfig `koanf:"http"`
	// Cache holds the resolved-document cache settings.
	Cache CacheConfig `koanf:"cache"`
	// Signer holds the remote signing service settings. When the endpoint
	// is empty the SDK keeps keys in process.
	Signer   SignerConfig  `koanf:"signer"`
	LogLevel zerolog.Level `koanf:"loglevel"`
}

// EBSIConfig configures the did:ebsi registry driver.
type EBSIConfig struct {
	// Registry is the DID registry base URL.
	Registry string `koanf:"registry"`
	// Version selects the registry protocol version (1 or 2).
	Version int `koanf:"version"`
}

// IOTAConfig configures the did:iota indexer driver.
type IOTAConfig struct {
	// Indexer is the ledger indexer node base URL.
	Indexer string `koanf:"indexer"`
}

// HTTPConfig configures the transport shared by all network drivers.
type HTTPConfig struct {
	Timeout time.Duration `koanf:"timeout"`
	// Retries is the number of retry attempts for idempotent requests.
	// Zero disables retrying.
	Retries uint64 `koanf:"retries"`
	// RetryInterval is the constant backoff between attempts.
	RetryInterval time.Duration `koanf:"retryinterval"`
}

// CacheConfig configures the engine-level resolution cache.
type CacheConfig struct {
	Enabled bool          `koanf:"enabled"`
	TTL     time.Duration `koanf:"ttl"`
}

// SignerConfig configures the optional remote signing service.
type SignerConfig struct {
	Endpoint string `koanf:"endpoint"`
	APIKey   string `koanf:"apikey"`
}

// DefaultConfig returns the configuration the SDK runs with when nothing
// is overridden: public EBSI conformance registry, public IOTA mainnet
// indexer, in-process keys, no retries, no cache.
func DefaultConfig() Config {
	return Config{
		EBSI: EBSIConfig{
			Registry: "https://api-conformance.ebsi.eu",
			Version:  1,
		},
		IOTA: IOTAConfig{
			Indexer: "https://api.stardust-mainnet.iotaledger.net",
		},
		HTTP: HTTPConfig{
			Timeout:       10 * time.Second,
			RetryInterval: time.Second,
		},
		Cache: CacheConfig{
			TTL: 5 * time.Minute,
		},
		LogLevel: zerolog.InfoLevel,
	}
}

// LoadConfig reads the configuration from SSI_-prefixed environment
// variables on top of the defaults.
func LoadConfig() (Config, error) {
	result := DefaultConfig()

	k := koanf.New(".")
	err := k.Load(env.Provider("SSI_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "SSI_")), "_", ".", -1)
	}), nil)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := k.Unmarshal("", &result); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := result.Validate(); err != nil {
		return Config{}, err
	}

	return result, nil
}

// Validate reports the first configuration mistake.
func (c Config) Validate() error {
	if strings.TrimSpace(c.EBSI.Registry) == "" {
		return fmt.Errorf("invalid ebsi configuration: registry URL is required")
	}
	if c.EBSI.Version != 1 && c.EBSI.Version != 2 {
		return fmt.Errorf("invalid ebsi configuration: unsupported registry version %d", c.EBSI.Version)
	}
	if strings.TrimSpace(c.IOTA.Indexer) == "" {
		return fmt.Errorf("invalid iota configuration: indexer URL is required")
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("invalid http configuration: timeout must be positive")
	}
	if c.HTTP.Retries > 0 && c.HTTP.RetryInterval <= 0 {
		return fmt.Errorf("invalid http configuration: retry interval must be positive")
	}
	if c.Cache.Enabled && c.Cache.TTL <= 0 {
		return fmt.Errorf("invalid cache configuration: ttl must be positive")
	}
	return nil
}
