package crypto

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/better-wallet/better-signer/pkg/types"
)

// deriveSecp256k1 walks a BIP32 path from the seed and returns the child private key
func deriveSecp256k1(seed []byte, path types.DerivationPath) (*ecdsa.PrivateKey, error) {
	indices, err := ParsePath(path)
	if err != nil {
		return nil, err
	}

	pos, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("failed to create master key: %w", err)
	}
	for _, index := range indices {
		pos, err = pos.Derive(index)
		if err != nil {
			return nil, fmt.Errorf("failed to derive %q: %w", path, err)
		}
	}

	ecPriv, err := pos.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("failed to extract private key: %w", err)
	}
	raw := ecPriv.Serialize()
	defer zero(raw)
	return ethcrypto.ToECDSA(raw)
}
