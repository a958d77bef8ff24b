package validation

import (
	"fmt"
	"net/url"
	"unicode/utf8"

	"github.com/better-wallet/better-signer/pkg/types"
)

// Limits on user supplied transaction content
const (
	MaxMessageBytes  = 2048
	MaxManifestBytes = 1 << 20
	MaxOriginLength  = 2048
)

// ValidateEntityAddress validates an account or persona address: bech32m
// checksum, human readable part for kind on network, and entity type byte
func ValidateEntityAddress(address types.Address, kind types.EntityKind, network types.NetworkID) error {
	if address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	wantHRP, err := types.AddressHRP(kind, network)
	if err != nil {
		return err
	}
	hrp, payload, err := types.DecodeAddress(address)
	if err != nil {
		return err
	}
	if hrp != wantHRP {
		return fmt.Errorf("address %s is not a %s on network %d (prefix %s, expected %s)", address, kind, network, hrp, wantHRP)
	}

	if !entityTypeMatches(kind, payload[0]) {
		return fmt.Errorf("address %s has entity type 0x%02x, not a %s", address, payload[0], kind)
	}
	return nil
}

func entityTypeMatches(kind types.EntityKind, entityType byte) bool {
	switch kind {
	case types.EntityKindAccount:
		return entityType == types.EntityTypeGlobalAccount ||
			entityType == types.EntityTypeGlobalVirtualEd25519Account ||
			entityType == types.EntityTypeGlobalVirtualSecp256k1Account
	case types.EntityKindPersona:
		return entityType == types.EntityTypeGlobalIdentity ||
			entityType == types.EntityTypeGlobalVirtualEd25519Identity ||
			entityType == types.EntityTypeGlobalVirtualSecp256k1Identity
	default:
		return false
	}
}

// ValidateMessage validates a plaintext intent message
func ValidateMessage(message string) error {
	if !utf8.ValidString(message) {
		return fmt.Errorf("message must be valid UTF-8")
	}
	if len(message) > MaxMessageBytes {
		return fmt.Errorf("message too large: %d bytes > %d bytes max", len(message), MaxMessageBytes)
	}
	return nil
}

// ValidateManifest validates manifest size and that it has instructions
func ValidateManifest(m types.Manifest) error {
	if len(m.Instructions) == 0 {
		return fmt.Errorf("manifest has no instructions")
	}
	size := len(m.Instructions)
	for _, b := range m.Blobs {
		size += len(b)
	}
	if size > MaxManifestBytes {
		return fmt.Errorf("manifest too large: %d bytes > %d bytes max", size, MaxManifestBytes)
	}
	return nil
}

// ValidateOrigin validates the origin a dApp presents in an auth request
func ValidateOrigin(origin string) error {
	if origin == "" {
		return fmt.Errorf("origin cannot be empty")
	}
	if len(origin) > MaxOriginLength {
		return fmt.Errorf("origin too long")
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return fmt.Errorf("invalid origin %q: must be an http(s) URL", origin)
	}
	return nil
}

// ValidateTransaction performs the checks a transaction request must pass
// before a signing ceremony starts
func ValidateTransaction(m types.Manifest, message string) error {
	if err := ValidateManifest(m); err != nil {
		return fmt.Errorf("invalid manifest: %w", err)
	}
	if err := ValidateMessage(message); err != nil {
		return fmt.Errorf("invalid message: %w", err)
	}
	return nil
}
