package keyexec

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	vault "github.com/hashicorp/vault/api"
)

// SeedSealer encrypts mnemonics at rest. The associated data binds a
// ciphertext to the factor source it belongs to, so a sealed mnemonic copied
// under another id fails to open.
type SeedSealer interface {
	Seal(ctx context.Context, plaintext, associatedData []byte) ([]byte, error)
	Open(ctx context.Context, sealed, associatedData []byte) ([]byte, error)

	// Provider returns the provider name (e.g., "local", "aws-kms", "vault")
	Provider() string
}

// SealerProviderType represents supported sealing backends
type SealerProviderType string

const (
	// SealerLocal uses a local master key with AES-GCM
	SealerLocal SealerProviderType = "local"

	// SealerAWSKMS uses AWS KMS with an encryption context
	SealerAWSKMS SealerProviderType = "aws-kms"

	// SealerVault uses the HashiCorp Vault Transit engine
	SealerVault SealerProviderType = "vault"
)

// SealerConfig contains configuration for seed sealers
type SealerConfig struct {
	// Provider specifies which backend to use
	Provider string

	// Local provider config, 32 bytes hex encoded
	LocalMasterKeyHex string

	// AWS KMS config
	AWSKMSKeyID  string
	AWSKMSRegion string

	// Vault config
	VaultAddress    string
	VaultToken      string
	VaultTransitKey string
}

// LocalSealer implements SeedSealer with AES-256-GCM and a local master key.
// Suitable for development or single-device deployments.
type LocalSealer struct {
	masterKey []byte
}

// NewLocalSealer creates a sealer from a hex-encoded 32-byte key
func NewLocalSealer(masterKeyHex string) (*LocalSealer, error) {
	if masterKeyHex == "" {
		return nil, fmt.Errorf("master key is required for local sealer")
	}
	masterKey, err := hex.DecodeString(masterKeyHex)
	if err != nil {
		return nil, fmt.Errorf("master key must be hex encoded: %w", err)
	}
	if len(masterKey) != 32 {
		return nil, fmt.Errorf("master key must be 32 bytes, got %d", len(masterKey))
	}
	return &LocalSealer{masterKey: masterKey}, nil
}

func (p *LocalSealer) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(p.masterKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Seal encrypts plaintext, returning nonce || ciphertext
func (p *LocalSealer) Seal(ctx context.Context, plaintext, associatedData []byte) ([]byte, error) {
	gcm, err := p.gcm()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, associatedData), nil
}

// Open decrypts data produced by Seal with the same associated data
func (p *LocalSealer) Open(ctx context.Context, sealed, associatedData []byte) ([]byte, error) {
	gcm, err := p.gcm()
	if err != nil {
		return nil, err
	}
	nonceSize := gcm.NonceSize()
	if len(sealed) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, associatedData)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

// Provider returns the provider name
func (p *LocalSealer) Provider() string {
	return string(SealerLocal)
}

// kmsAPI is the subset of the AWS KMS client the sealer uses
type kmsAPI interface {
	Encrypt(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

const encryptionContextKey = "factor_source_id"

// AWSKMSSealer implements SeedSealer using AWS KMS
type AWSKMSSealer struct {
	keyID  string
	client kmsAPI
}

// NewAWSKMSSealer creates a sealer backed by the given KMS key
func NewAWSKMSSealer(keyID, region string) (*AWSKMSSealer, error) {
	if keyID == "" {
		return nil, fmt.Errorf("AWS KMS key ID is required")
	}
	if region == "" {
		return nil, fmt.Errorf("AWS region is required")
	}

	// Uses default credential chain: env vars, shared config, IAM role, etc.
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSKMSSealer{keyID: keyID, client: kms.NewFromConfig(cfg)}, nil
}

// Seal encrypts plaintext under the KMS key with the associated data as encryption context
func (p *AWSKMSSealer) Seal(ctx context.Context, plaintext, associatedData []byte) ([]byte, error) {
	output, err := p.client.Encrypt(ctx, &kms.EncryptInput{
		KeyId:             aws.String(p.keyID),
		Plaintext:         plaintext,
		EncryptionContext: map[string]string{encryptionContextKey: string(associatedData)},
	})
	if err != nil {
		return nil, fmt.Errorf("AWS KMS encrypt failed: %w", err)
	}
	return output.CiphertextBlob, nil
}

// Open decrypts a ciphertext blob. KMS rejects it if the context differs.
func (p *AWSKMSSealer) Open(ctx context.Context, sealed, associatedData []byte) ([]byte, error) {
	output, err := p.client.Decrypt(ctx, &kms.DecryptInput{
		KeyId:             aws.String(p.keyID),
		CiphertextBlob:    sealed,
		EncryptionContext: map[string]string{encryptionContextKey: string(associatedData)},
	})
	if err != nil {
		return nil, fmt.Errorf("AWS KMS decrypt failed: %w", err)
	}
	return output.Plaintext, nil
}

// Provider returns the provider name
func (p *AWSKMSSealer) Provider() string {
	return string(SealerAWSKMS)
}

// VaultSealer implements SeedSealer using the Vault Transit engine. The
// transit key must be an AEAD key type for associated data to be enforced.
type VaultSealer struct {
	transitKey string
	client     *vault.Client
}

// NewVaultSealer creates a Vault transit sealer
func NewVaultSealer(address, token, transitKey string) (*VaultSealer, error) {
	if address == "" {
		return nil, fmt.Errorf("vault address is required")
	}
	if token == "" {
		return nil, fmt.Errorf("vault token is required")
	}
	if transitKey == "" {
		return nil, fmt.Errorf("vault transit key name is required")
	}

	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = address

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(token)

	return &VaultSealer{transitKey: transitKey, client: client}, nil
}

// Seal encrypts plaintext with the transit key
func (p *VaultSealer) Seal(ctx context.Context, plaintext, associatedData []byte) ([]byte, error) {
	path := fmt.Sprintf("transit/encrypt/%s", p.transitKey)
	secret, err := p.client.Logical().WriteWithContext(ctx, path, map[string]interface{}{
		"plaintext":       base64.StdEncoding.EncodeToString(plaintext),
		"associated_data": base64.StdEncoding.EncodeToString(associatedData),
	})
	if err != nil {
		return nil, fmt.Errorf("vault transit encrypt failed: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("vault transit encrypt returned empty response")
	}
	ciphertext, ok := secret.Data["ciphertext"].(string)
	if !ok {
		return nil, fmt.Errorf("vault transit encrypt: ciphertext not found in response")
	}
	// vault:v1:... string
	return []byte(ciphertext), nil
}

// Open decrypts a transit ciphertext
func (p *VaultSealer) Open(ctx context.Context, sealed, associatedData []byte) ([]byte, error) {
	path := fmt.Sprintf("transit/decrypt/%s", p.transitKey)
	secret, err := p.client.Logical().WriteWithContext(ctx, path, map[string]interface{}{
		"ciphertext":      string(sealed),
		"associated_data": base64.StdEncoding.EncodeToString(associatedData),
	})
	if err != nil {
		return nil, fmt.Errorf("vault transit decrypt failed: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("vault transit decrypt returned empty response")
	}
	plaintextB64, ok := secret.Data["plaintext"].(string)
	if !ok {
		return nil, fmt.Errorf("vault transit decrypt: plaintext not found in response")
	}
	plaintext, err := base64.StdEncoding.DecodeString(plaintextB64)
	if err != nil {
		return nil, fmt.Errorf("vault transit decrypt: failed to decode plaintext: %w", err)
	}
	return plaintext, nil
}

// Provider returns the provider name
func (p *VaultSealer) Provider() string {
	return string(SealerVault)
}

// NewSeedSealer creates a SeedSealer based on the configuration
func NewSeedSealer(cfg *SealerConfig) (SeedSealer, error) {
	provider := SealerProviderType(cfg.Provider)

	switch provider {
	case SealerLocal, "":
		return NewLocalSealer(cfg.LocalMasterKeyHex)
	case SealerAWSKMS:
		return NewAWSKMSSealer(cfg.AWSKMSKeyID, cfg.AWSKMSRegion)
	case SealerVault:
		return NewVaultSealer(cfg.VaultAddress, cfg.VaultToken, cfg.VaultTransitKey)
	default:
		return nil, fmt.Errorf("unsupported seed sealer: %s (supported: %s, %s, %s)",
			provider, SealerLocal, SealerAWSKMS, SealerVault)
	}
}

var (
	_ SeedSealer = (*LocalSealer)(nil)
	_ SeedSealer = (*AWSKMSSealer)(nil)
	_ SeedSealer = (*VaultSealer)(nil)
)
