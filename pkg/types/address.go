package types

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

// Entity type bytes leading the address payload
const (
	EntityTypeGlobalAccount                  byte = 0xc1
	EntityTypeGlobalIdentity                 byte = 0xc2
	EntityTypeGlobalVirtualSecp256k1Account  byte = 0xd1
	EntityTypeGlobalVirtualSecp256k1Identity byte = 0xd2
	EntityTypeGlobalVirtualEd25519Account    byte = 0x51
	EntityTypeGlobalVirtualEd25519Identity   byte = 0x52
)

const (
	addressPayloadLen = 30
	addressHashLen    = addressPayloadLen - 1
)

func entityPrefix(kind EntityKind) (string, error) {
	switch kind {
	case EntityKindAccount:
		return "account_", nil
	case EntityKindPersona:
		return "identity_", nil
	default:
		return "", fmt.Errorf("unknown entity kind: %s", kind)
	}
}

func virtualEntityType(kind EntityKind, curve Curve) (byte, error) {
	switch {
	case kind == EntityKindAccount && curve == CurveCurve25519:
		return EntityTypeGlobalVirtualEd25519Account, nil
	case kind == EntityKindAccount && curve == CurveSecp256k1:
		return EntityTypeGlobalVirtualSecp256k1Account, nil
	case kind == EntityKindPersona && curve == CurveCurve25519:
		return EntityTypeGlobalVirtualEd25519Identity, nil
	case kind == EntityKindPersona && curve == CurveSecp256k1:
		return EntityTypeGlobalVirtualSecp256k1Identity, nil
	default:
		return 0, fmt.Errorf("no virtual entity type for %s on %s", kind, curve)
	}
}

// AddressHRP is the human readable part of an entity address on network
func AddressHRP(kind EntityKind, network NetworkID) (string, error) {
	prefix, err := entityPrefix(kind)
	if err != nil {
		return "", err
	}
	return prefix + network.HRPSuffix(), nil
}

// VirtualEntityAddress is the address of the entity controlled by pub before
// any on-ledger state exists for it: the entity type byte followed by the
// last 29 bytes of the key hash, bech32m encoded
func VirtualEntityAddress(kind EntityKind, network NetworkID, pub PublicKey) (Address, error) {
	hrp, err := AddressHRP(kind, network)
	if err != nil {
		return "", err
	}
	entityType, err := virtualEntityType(kind, pub.Curve)
	if err != nil {
		return "", err
	}

	hash := Blake2b256(pub.Bytes)
	payload := make([]byte, 0, addressPayloadLen)
	payload = append(payload, entityType)
	payload = append(payload, hash[len(hash)-addressHashLen:]...)

	groups, err := bech32.ConvertBits(payload, 8, 5, true)
	if err != nil {
		return "", err
	}
	encoded, err := bech32.EncodeM(hrp, groups)
	if err != nil {
		return "", fmt.Errorf("failed to encode address: %w", err)
	}
	return Address(encoded), nil
}

// DecodeAddress checks the bech32m checksum and returns the human readable
// part and the 30 byte payload
func DecodeAddress(a Address) (string, []byte, error) {
	hrp, groups, version, err := bech32.DecodeGeneric(string(a))
	if err != nil {
		return "", nil, fmt.Errorf("invalid address %q: %w", a, err)
	}
	if version != bech32.VersionM {
		return "", nil, fmt.Errorf("invalid address %q: not bech32m", a)
	}
	payload, err := bech32.ConvertBits(groups, 5, 8, false)
	if err != nil {
		return "", nil, fmt.Errorf("invalid address %q: %w", a, err)
	}
	if len(payload) != addressPayloadLen {
		return "", nil, fmt.Errorf("invalid address %q: payload is %d bytes", a, len(payload))
	}
	return strings.ToLower(hrp), payload, nil
}
