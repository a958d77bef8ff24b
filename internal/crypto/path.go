package crypto

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/better-wallet/better-signer/pkg/types"
)

// HardenedOffset is added to an index to put it in the hardened range
const HardenedOffset uint32 = 0x80000000

// Radix derivation constants
const (
	purposeBIP44       uint32 = 44
	coinTypeRadix      uint32 = 1022
	keyKindTxSigning   uint32 = 1460
	entityKindAccount  uint32 = 525
	entityKindIdentity uint32 = 618
)

// FactorSourceIDPath is the path whose public key identifies a seed
const FactorSourceIDPath types.DerivationPath = "m/44H/1022H/365H"

// ParsePath parses "m/44H/1022H/..." into child indices. Segments may use an
// H, h or ' suffix for hardened derivation.
func ParsePath(path types.DerivationPath) ([]uint32, error) {
	segments := strings.Split(string(path), "/")
	if len(segments) < 2 || segments[0] != "m" {
		return nil, fmt.Errorf("invalid derivation path %q", path)
	}
	out := make([]uint32, 0, len(segments)-1)
	for _, s := range segments[1:] {
		number, hardened := cutHardened(s)
		index, err := strconv.ParseUint(number, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid derivation path segment %q in %q", s, path)
		}
		if uint32(index) >= HardenedOffset {
			return nil, fmt.Errorf("derivation index %d too large in %q", index, path)
		}
		if hardened {
			index += uint64(HardenedOffset)
		}
		out = append(out, uint32(index))
	}
	return out, nil
}

func cutHardened(s string) (string, bool) {
	for _, suffix := range []string{"H", "h", "'"} {
		if n, ok := strings.CutSuffix(s, suffix); ok {
			return n, true
		}
	}
	return s, false
}

// AllHardened reports whether every segment of the path is hardened
func AllHardened(indices []uint32) bool {
	for _, i := range indices {
		if i < HardenedOffset {
			return false
		}
	}
	return true
}

// EntityPath builds the transaction signing path for an account or persona
func EntityPath(network types.NetworkID, kind types.EntityKind, index uint32) types.DerivationPath {
	entity := entityKindAccount
	if kind == types.EntityKindPersona {
		entity = entityKindIdentity
	}
	return types.DerivationPath(fmt.Sprintf("m/%dH/%dH/%dH/%dH/%dH/%dH",
		purposeBIP44, coinTypeRadix, network, entity, keyKindTxSigning, index))
}

// CurveForPath picks the curve a path is used with. Fully hardened paths are
// Curve25519 (SLIP-10), anything with a non-hardened segment is a legacy
// secp256k1 BIP44 path.
func CurveForPath(path types.DerivationPath) (types.Curve, error) {
	indices, err := ParsePath(path)
	if err != nil {
		return 0, err
	}
	if AllHardened(indices) {
		return types.CurveCurve25519, nil
	}
	return types.CurveSecp256k1, nil
}
