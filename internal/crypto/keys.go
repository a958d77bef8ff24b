package crypto

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/better-wallet/better-signer/pkg/types"
)

// GenerateNotaryKey generates a fresh ephemeral Curve25519 (Ed25519) key
func GenerateNotaryKey() (ed25519.PrivateKey, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate notary key: %w", err)
	}
	return priv, nil
}

// Ed25519PublicKey wraps the public half of an Ed25519 key
func Ed25519PublicKey(priv ed25519.PrivateKey) types.PublicKey {
	pub := priv.Public().(ed25519.PublicKey)
	return types.PublicKey{Curve: types.CurveCurve25519, Bytes: append([]byte{}, pub...)}
}

// SignEd25519 signs a hash with an Ed25519 key
func SignEd25519(priv ed25519.PrivateKey, hash types.Hash) types.Signature {
	return types.Signature{Curve: types.CurveCurve25519, Bytes: ed25519.Sign(priv, hash[:])}
}

// Verify checks a signature over hash against pub. Curves must agree.
func Verify(pub types.PublicKey, hash types.Hash, sig types.Signature) bool {
	if pub.Curve != sig.Curve {
		return false
	}
	switch pub.Curve {
	case types.CurveCurve25519:
		if len(pub.Bytes) != ed25519.PublicKeySize || len(sig.Bytes) != ed25519.SignatureSize {
			return false
		}
		return ed25519.Verify(ed25519.PublicKey(pub.Bytes), hash[:], sig.Bytes)
	case types.CurveSecp256k1:
		// r || s || v, the recovery byte is not part of verification
		if len(sig.Bytes) != 65 {
			return false
		}
		return ethcrypto.VerifySignature(pub.Bytes, hash[:], sig.Bytes[:64])
	default:
		return false
	}
}

func secp256k1PublicKey(priv *ecdsa.PrivateKey) types.PublicKey {
	return types.PublicKey{Curve: types.CurveSecp256k1, Bytes: ethcrypto.CompressPubkey(&priv.PublicKey)}
}

func signSecp256k1(priv *ecdsa.PrivateKey, hash types.Hash) (types.Signature, error) {
	sig, err := ethcrypto.Sign(hash[:], priv)
	if err != nil {
		return types.Signature{}, fmt.Errorf("failed to sign: %w", err)
	}
	return types.Signature{Curve: types.CurveSecp256k1, Bytes: sig}, nil
}
