package types

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Curve identifies the elliptic curve a key or signature belongs to
type Curve uint8

const (
	CurveCurve25519 Curve = iota + 1
	CurveSecp256k1
)

func (c Curve) String() string {
	switch c {
	case CurveCurve25519:
		return "curve25519"
	case CurveSecp256k1:
		return "secp256k1"
	default:
		return fmt.Sprintf("curve(%d)", uint8(c))
	}
}

// ParseCurve parses the string form produced by Curve.String
func ParseCurve(s string) (Curve, error) {
	switch strings.ToLower(s) {
	case "curve25519", "ed25519":
		return CurveCurve25519, nil
	case "secp256k1":
		return CurveSecp256k1, nil
	default:
		return 0, fmt.Errorf("unknown curve: %s", s)
	}
}

// Hash is a 32-byte blake2b digest
type Hash [32]byte

// Blake2b256 hashes the concatenation of the given byte slices
func Blake2b256(parts ...[]byte) Hash {
	h, _ := blake2b.New256(nil)
	for _, p := range parts {
		h.Write(p)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// Hex returns the lowercase hex encoding of the hash
func (h Hash) Hex() string {
	return hex.EncodeToString(h[:])
}

// Bytes returns a copy of the hash as a slice
func (h Hash) Bytes() []byte {
	out := make([]byte, len(h))
	copy(out, h[:])
	return out
}

// HashFromHex parses a 64-character hex string
func HashFromHex(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return h, fmt.Errorf("invalid hash hex: %w", err)
	}
	if len(b) != len(h) {
		return h, fmt.Errorf("hash must be %d bytes, got %d", len(h), len(b))
	}
	copy(h[:], b)
	return h, nil
}

// PublicKey is a curve-tagged public key.
// Curve25519 keys are 32 bytes, secp256k1 keys are 33-byte compressed points.
type PublicKey struct {
	Curve Curve
	Bytes []byte
}

// Hex returns the hex encoding of the key material (no curve prefix)
func (p PublicKey) Hex() string {
	return hex.EncodeToString(p.Bytes)
}

// Equal reports whether both keys are on the same curve with identical bytes
func (p PublicKey) Equal(other PublicKey) bool {
	return p.Curve == other.Curve && p.Hex() == other.Hex()
}

func (p PublicKey) String() string {
	return p.Curve.String() + ":" + p.Hex()
}

// PublicKeyFromHex builds a public key from its hex form and validates the length
func PublicKeyFromHex(curve Curve, s string) (PublicKey, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return PublicKey{}, fmt.Errorf("invalid public key hex: %w", err)
	}
	switch curve {
	case CurveCurve25519:
		if len(b) != 32 {
			return PublicKey{}, fmt.Errorf("curve25519 public key must be 32 bytes, got %d", len(b))
		}
	case CurveSecp256k1:
		if len(b) != 33 {
			return PublicKey{}, fmt.Errorf("secp256k1 public key must be 33 bytes, got %d", len(b))
		}
	default:
		return PublicKey{}, fmt.Errorf("unsupported curve: %s", curve)
	}
	return PublicKey{Curve: curve, Bytes: b}, nil
}

// Signature is a curve-tagged signature.
// Curve25519 signatures are 64 bytes, secp256k1 signatures are 65 bytes (r || s || v).
type Signature struct {
	Curve Curve
	Bytes []byte
}

// Hex returns the hex encoding of the signature bytes
func (s Signature) Hex() string {
	return hex.EncodeToString(s.Bytes)
}

// SignatureWithPublicKey pairs a signature with the key that produced it
type SignatureWithPublicKey struct {
	Signature Signature
	PublicKey PublicKey
}

// DerivationPath is a BIP32 path in string form, e.g. "m/44H/1022H/1H/525H/1460H/0H".
// Hardened segments may be written with an H, h or ' suffix.
type DerivationPath string

func (d DerivationPath) String() string {
	return string(d)
}
