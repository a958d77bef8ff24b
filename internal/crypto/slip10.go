package crypto

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"fmt"

	"github.com/better-wallet/better-signer/pkg/types"
)

var ed25519Curve = []byte("ed25519 seed")

// deriveEd25519 walks a SLIP-10 ed25519 path. Only hardened children exist on this curve.
func deriveEd25519(seed []byte, path types.DerivationPath) (ed25519.PrivateKey, error) {
	indices, err := ParsePath(path)
	if err != nil {
		return nil, err
	}
	if !AllHardened(indices) {
		return nil, fmt.Errorf("curve25519 derivation requires a fully hardened path, got %q", path)
	}

	mac := hmac.New(sha512.New, ed25519Curve)
	mac.Write(seed)
	i := mac.Sum(nil)
	key, chainCode := i[:32], i[32:]

	for _, index := range indices {
		data := make([]byte, 0, 1+32+4)
		data = append(data, 0x00)
		data = append(data, key...)
		data = binary.BigEndian.AppendUint32(data, index)

		mac = hmac.New(sha512.New, chainCode)
		mac.Write(data)
		zero(i)
		i = mac.Sum(nil)
		key, chainCode = i[:32], i[32:]
	}

	priv := ed25519.NewKeyFromSeed(key)
	zero(i)
	return priv, nil
}
