package crypto

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tyler-smith/go-bip39"

	"github.com/better-wallet/better-signer/pkg/types"
)

// ErrInvalidMnemonic is returned when words fail the BIP39 word list or checksum
var ErrInvalidMnemonic = errors.New("invalid mnemonic")

// MnemonicWithPassphrase is a BIP39 phrase plus its optional 25th word
type MnemonicWithPassphrase struct {
	Mnemonic   string `json:"mnemonic"`
	Passphrase string `json:"passphrase"`
}

// NewMnemonicWithPassphrase normalizes the words and validates the checksum
func NewMnemonicWithPassphrase(words []string, passphrase string) (MnemonicWithPassphrase, error) {
	normalized := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			normalized = append(normalized, w)
		}
	}
	m := MnemonicWithPassphrase{Mnemonic: strings.Join(normalized, " "), Passphrase: passphrase}
	if err := m.Validate(); err != nil {
		return MnemonicWithPassphrase{}, err
	}
	return m, nil
}

// GenerateMnemonic creates a fresh 24 word mnemonic
func GenerateMnemonic(passphrase string) (MnemonicWithPassphrase, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return MnemonicWithPassphrase{}, fmt.Errorf("failed to generate entropy: %w", err)
	}
	defer zero(entropy)
	words, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return MnemonicWithPassphrase{}, fmt.Errorf("failed to generate mnemonic: %w", err)
	}
	return MnemonicWithPassphrase{Mnemonic: words, Passphrase: passphrase}, nil
}

// Validate checks the word list and checksum
func (m MnemonicWithPassphrase) Validate() error {
	if _, err := bip39.EntropyFromMnemonic(m.Mnemonic); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMnemonic, err)
	}
	return nil
}

// WordCount is the number of words in the phrase
func (m MnemonicWithPassphrase) WordCount() int {
	return len(strings.Fields(m.Mnemonic))
}

// ToSeed derives the BIP39 seed. Callers must Destroy it.
func (m MnemonicWithPassphrase) ToSeed() (*Seed, error) {
	b, err := bip39.NewSeedWithErrorChecking(m.Mnemonic, m.Passphrase)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMnemonic, err)
	}
	return newSeed(b), nil
}

// FactorSourceID derives the id of the factor source this mnemonic backs
func (m MnemonicWithPassphrase) FactorSourceID(kind types.FactorSourceKind) (types.FactorSourceID, error) {
	seed, err := m.ToSeed()
	if err != nil {
		return types.FactorSourceID{}, err
	}
	defer seed.Destroy()
	return seed.FactorSourceID(kind)
}

// Seed is BIP39 seed material held in locked memory when the OS allows it
type Seed struct {
	b      []byte
	locked bool
}

func newSeed(b []byte) *Seed {
	return &Seed{b: b, locked: lock(b)}
}

// Destroy zeroes the seed. The Seed is unusable afterwards.
func (s *Seed) Destroy() {
	if s == nil || s.b == nil {
		return
	}
	zero(s.b)
	if s.locked {
		unlock(s.b)
	}
	s.b = nil
}

// FactorSourceID hashes the Curve25519 public key at FactorSourceIDPath
func (s *Seed) FactorSourceID(kind types.FactorSourceKind) (types.FactorSourceID, error) {
	pub, err := s.DerivePublicKey(types.CurveCurve25519, FactorSourceIDPath)
	if err != nil {
		return types.FactorSourceID{}, err
	}
	return types.FactorSourceID{Kind: kind, Body: types.Blake2b256(pub.Bytes)}, nil
}

// DerivePublicKey derives the public key at path on the given curve
func (s *Seed) DerivePublicKey(curve types.Curve, path types.DerivationPath) (types.PublicKey, error) {
	if s == nil || s.b == nil {
		return types.PublicKey{}, errors.New("seed destroyed")
	}
	switch curve {
	case types.CurveCurve25519:
		priv, err := deriveEd25519(s.b, path)
		if err != nil {
			return types.PublicKey{}, err
		}
		defer zero(priv)
		return Ed25519PublicKey(priv), nil
	case types.CurveSecp256k1:
		priv, err := deriveSecp256k1(s.b, path)
		if err != nil {
			return types.PublicKey{}, err
		}
		return secp256k1PublicKey(priv), nil
	default:
		return types.PublicKey{}, fmt.Errorf("unsupported curve: %s", curve)
	}
}

// Sign signs hash with the key at path on the given curve
func (s *Seed) Sign(curve types.Curve, path types.DerivationPath, hash types.Hash) (types.SignatureWithPublicKey, error) {
	if s == nil || s.b == nil {
		return types.SignatureWithPublicKey{}, errors.New("seed destroyed")
	}
	switch curve {
	case types.CurveCurve25519:
		priv, err := deriveEd25519(s.b, path)
		if err != nil {
			return types.SignatureWithPublicKey{}, err
		}
		defer zero(priv)
		return types.SignatureWithPublicKey{
			Signature: SignEd25519(priv, hash),
			PublicKey: Ed25519PublicKey(priv),
		}, nil
	case types.CurveSecp256k1:
		priv, err := deriveSecp256k1(s.b, path)
		if err != nil {
			return types.SignatureWithPublicKey{}, err
		}
		sig, err := signSecp256k1(priv, hash)
		if err != nil {
			return types.SignatureWithPublicKey{}, err
		}
		return types.SignatureWithPublicKey{Signature: sig, PublicKey: secp256k1PublicKey(priv)}, nil
	default:
		return types.SignatureWithPublicKey{}, fmt.Errorf("unsupported curve: %s", curve)
	}
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
