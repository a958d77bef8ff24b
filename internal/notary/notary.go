// Package notary holds the ephemeral key that notarizes a transaction and the
// signers it was resolved together with.
package notary

import (
	"crypto/ed25519"
	"fmt"

	"github.com/better-wallet/better-signer/internal/crypto"
	"github.com/better-wallet/better-signer/pkg/types"
)

// NotaryAndSigners pairs the resolved signers of a transaction with its notary key.
// When nobody else has to sign, the notary counts as a signatory.
type NotaryAndSigners struct {
	Signers []types.Entity

	key ed25519.PrivateKey
}

// New uses a caller-supplied notary key
func New(signers []types.Entity, key ed25519.PrivateKey) (*NotaryAndSigners, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("notary key must be %d bytes, got %d", ed25519.PrivateKeySize, len(key))
	}
	return &NotaryAndSigners{Signers: signers, key: key}, nil
}

// Generate creates a fresh notary key for one ceremony
func Generate(signers []types.Entity) (*NotaryAndSigners, error) {
	key, err := crypto.GenerateNotaryKey()
	if err != nil {
		return nil, err
	}
	return &NotaryAndSigners{Signers: signers, key: key}, nil
}

// NotaryIsSignatory is true iff there are no signers
func (n *NotaryAndSigners) NotaryIsSignatory() bool {
	return len(n.Signers) == 0
}

// NotaryPublicKey is the Curve25519 public key written into the header
func (n *NotaryAndSigners) NotaryPublicKey() types.PublicKey {
	return crypto.Ed25519PublicKey(n.key)
}

// SignWithNotary signs the hash of the fully signed intent
func (n *NotaryAndSigners) SignWithNotary(hash types.SignedIntentHash) types.Signature {
	return crypto.SignEd25519(n.key, hash.Hash())
}
