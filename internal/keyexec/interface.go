package keyexec

import (
	"context"
	"errors"

	"github.com/better-wallet/better-signer/internal/crypto"
	"github.com/better-wallet/better-signer/pkg/types"
)

// FactorSourceAccess is the capability every factor source kind implements
type FactorSourceAccess interface {
	// DerivePublicKeys derives one factor instance per path
	DerivePublicKeys(ctx context.Context, fs types.FactorSource, paths []types.DerivationPath) ([]types.FactorInstance, error)

	// SignMono signs every (payload, owned instance) pair of the input. The
	// outcome is either complete or an error, never a partial list.
	SignMono(ctx context.Context, fs types.FactorSource, input types.PerFactorSourceInput) (*types.PerFactorOutcome, error)

	// SpotCheck confirms the factor source is reachable and yields the expected key material
	SpotCheck(ctx context.Context, fs types.FactorSource) (bool, error)
}

// ErrMnemonicNotFound is returned by a MnemonicStore when no mnemonic is saved for an id
var ErrMnemonicNotFound = errors.New("mnemonic not found")

// MnemonicStore is secure seed storage
type MnemonicStore interface {
	Exists(ctx context.Context, id types.FactorSourceID) (bool, error)
	Read(ctx context.Context, id types.FactorSourceID) (crypto.MnemonicWithPassphrase, error)
}

// ErrGateDeclined is returned by an AccessGate when the user declines the prompt
var ErrGateDeclined = errors.New("access gate declined")

// AccessGate is the local user-presence check guarding device seeds
type AccessGate interface {
	Authenticate(ctx context.Context, reason string) error
}

// LastUsedRecorder persists the "last used" timestamp of a factor source
type LastUsedRecorder interface {
	UpdateLastUsed(ctx context.Context, id types.FactorSourceID) error
}
