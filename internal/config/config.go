package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/better-wallet/better-signer/internal/keyexec"
	"github.com/better-wallet/better-signer/pkg/types"
)

// Ledger transports
const (
	LedgerTransportWebsocket = "websocket"
	LedgerTransportTCP       = "tcp"
)

// Config holds the signer's infrastructure configuration
type Config struct {
	// Network
	NetworkID   types.NetworkID
	EpochWindow uint64
	GatewayURL  string

	// Seed storage
	MnemonicStorePath      string
	SeedEncryptionProvider string // local, aws-kms or vault
	SeedLocalMasterKey     string
	SeedAWSKMSKeyID        string
	SeedAWSKMSRegion       string
	SeedVaultAddress       string
	SeedVaultToken         string
	SeedVaultTransitKey    string

	// Hardware wallet bridge
	LedgerTransport  string // websocket or tcp
	LedgerBridgeURL  string
	LedgerBridgeHost string
	LedgerBridgePort int
	LedgerTimeout    time.Duration

	// Profile database, optional
	PostgresDSN string

	// Metrics listen address, empty disables the endpoint
	MetricsAddr string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	network, err := getEnvUint("NETWORK_ID", uint64(types.NetworkStokenet), 8)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	window, err := getEnvUint("EPOCH_WINDOW", 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg := &Config{
		NetworkID:              types.NetworkID(network),
		EpochWindow:            window,
		GatewayURL:             getEnv("GATEWAY_URL", ""),
		MnemonicStorePath:      getEnv("MNEMONIC_STORE_PATH", "./data/mnemonics"),
		SeedEncryptionProvider: getEnv("SEED_ENCRYPTION_PROVIDER", "local"),
		SeedLocalMasterKey:     getEnv("SEED_LOCAL_MASTER_KEY", ""),
		SeedAWSKMSKeyID:        getEnv("SEED_AWS_KMS_KEY_ID", ""),
		SeedAWSKMSRegion:       getEnv("SEED_AWS_KMS_REGION", ""),
		SeedVaultAddress:       getEnv("SEED_VAULT_ADDRESS", ""),
		SeedVaultToken:         getEnv("SEED_VAULT_TOKEN", ""),
		SeedVaultTransitKey:    getEnv("SEED_VAULT_TRANSIT_KEY", ""),
		LedgerTransport:        getEnv("LEDGER_TRANSPORT", LedgerTransportWebsocket),
		LedgerBridgeURL:        getEnv("LEDGER_BRIDGE_URL", "ws://127.0.0.1:21111/ledger"),
		LedgerBridgeHost:       getEnv("LEDGER_BRIDGE_HOST", "127.0.0.1"),
		LedgerBridgePort:       getEnvInt("LEDGER_BRIDGE_PORT", 21112),
		LedgerTimeout:          getEnvDuration("LEDGER_TIMEOUT", 2*time.Minute),
		PostgresDSN:            getEnv("POSTGRES_DSN", ""),
		MetricsAddr:            getEnv("METRICS_ADDR", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.NetworkID == 0 {
		return fmt.Errorf("NETWORK_ID must be non-zero")
	}
	if c.EpochWindow == 0 {
		return fmt.Errorf("EPOCH_WINDOW must be positive")
	}

	if c.GatewayURL != "" {
		u, err := url.Parse(c.GatewayURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("GATEWAY_URL must be an http(s) URL, got: %s", c.GatewayURL)
		}
	}

	if c.MnemonicStorePath == "" {
		return fmt.Errorf("MNEMONIC_STORE_PATH is required")
	}

	switch c.SeedEncryptionProvider {
	case string(keyexec.SealerLocal):
		if c.SeedLocalMasterKey == "" {
			return fmt.Errorf("SEED_LOCAL_MASTER_KEY is required when SEED_ENCRYPTION_PROVIDER is 'local'")
		}
	case string(keyexec.SealerAWSKMS):
		if c.SeedAWSKMSKeyID == "" {
			return fmt.Errorf("SEED_AWS_KMS_KEY_ID is required when SEED_ENCRYPTION_PROVIDER is 'aws-kms'")
		}
	case string(keyexec.SealerVault):
		if c.SeedVaultAddress == "" || c.SeedVaultToken == "" || c.SeedVaultTransitKey == "" {
			return fmt.Errorf("SEED_VAULT_ADDRESS, SEED_VAULT_TOKEN and SEED_VAULT_TRANSIT_KEY are required when SEED_ENCRYPTION_PROVIDER is 'vault'")
		}
	default:
		return fmt.Errorf("SEED_ENCRYPTION_PROVIDER must be 'local', 'aws-kms' or 'vault', got: %s", c.SeedEncryptionProvider)
	}

	switch c.LedgerTransport {
	case LedgerTransportWebsocket:
		u, err := url.Parse(c.LedgerBridgeURL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			return fmt.Errorf("LEDGER_BRIDGE_URL must be a ws(s) URL, got: %s", c.LedgerBridgeURL)
		}
	case LedgerTransportTCP:
		if c.LedgerBridgePort <= 0 || c.LedgerBridgePort > 65535 {
			return fmt.Errorf("LEDGER_BRIDGE_PORT must be between 1 and 65535, got: %d", c.LedgerBridgePort)
		}
	default:
		return fmt.Errorf("LEDGER_TRANSPORT must be 'websocket' or 'tcp', got: %s", c.LedgerTransport)
	}

	if c.LedgerTimeout <= 0 {
		return fmt.Errorf("LEDGER_TIMEOUT must be positive")
	}

	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvUint parses an unsigned variable; unlike getEnvInt a malformed value is an error
func getEnvUint(key string, defaultValue uint64, bits int) (uint64, error) {
	valueStr := strings.TrimSpace(os.Getenv(key))
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseUint(valueStr, 0, bits)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return value, nil
}

// getEnvDuration gets a duration environment variable with a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// SealerConfig returns the seed encryption settings for keyexec.NewSeedSealer
func (c *Config) SealerConfig() *keyexec.SealerConfig {
	return &keyexec.SealerConfig{
		Provider:          c.SeedEncryptionProvider,
		LocalMasterKeyHex: c.SeedLocalMasterKey,
		AWSKMSKeyID:       c.SeedAWSKMSKeyID,
		AWSKMSRegion:      c.SeedAWSKMSRegion,
		VaultAddress:      c.SeedVaultAddress,
		VaultToken:        c.SeedVaultToken,
		VaultTransitKey:   c.SeedVaultTransitKey,
	}
}
