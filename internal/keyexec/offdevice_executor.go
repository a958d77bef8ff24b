package keyexec

import (
	"context"
	"fmt"
	"sync"

	"github.com/better-wallet/better-signer/internal/crypto"
	"github.com/better-wallet/better-signer/internal/logger"
	apperrors "github.com/better-wallet/better-signer/pkg/errors"
	"github.com/better-wallet/better-signer/pkg/types"
)

// SeedPhraseValidity is the outcome of checking user-entered seed words
type SeedPhraseValidity int

const (
	SeedPhraseValid SeedPhraseValidity = iota
	SeedPhraseInvalidMnemonic
	SeedPhraseDoesNotDeriveFactorSourceID
)

func (v SeedPhraseValidity) String() string {
	switch v {
	case SeedPhraseValid:
		return "valid"
	case SeedPhraseInvalidMnemonic:
		return "invalid_mnemonic"
	case SeedPhraseDoesNotDeriveFactorSourceID:
		return "does_not_derive_factor_source_id"
	default:
		return fmt.Sprintf("seed_phrase_validity(%d)", int(v))
	}
}

// Err maps a failed validity to its error kind. Valid maps to nil.
func (v SeedPhraseValidity) Err() error {
	switch v {
	case SeedPhraseValid:
		return nil
	case SeedPhraseInvalidMnemonic:
		return apperrors.ErrInvalidMnemonic
	default:
		return apperrors.ErrMnemonicMismatch
	}
}

// ValidateSeedPhrase checks the words against the BIP39 checksum and then
// against the factor source id they must re-derive
func ValidateSeedPhrase(id types.FactorSourceID, words []string, passphrase string) (crypto.MnemonicWithPassphrase, SeedPhraseValidity) {
	m, err := crypto.NewMnemonicWithPassphrase(words, passphrase)
	if err != nil {
		return crypto.MnemonicWithPassphrase{}, SeedPhraseInvalidMnemonic
	}
	derived, err := m.FactorSourceID(id.Kind)
	if err != nil {
		return crypto.MnemonicWithPassphrase{}, SeedPhraseInvalidMnemonic
	}
	if derived != id {
		return crypto.MnemonicWithPassphrase{}, SeedPhraseDoesNotDeriveFactorSourceID
	}
	return m, SeedPhraseValid
}

// SeedPhrasePrompter is told when a ceremony is waiting for the user to type
// a seed phrase. It must not block; answers arrive through
// OnSeedPhraseConfirmed or OnSeedPhraseCancelled.
type SeedPhrasePrompter interface {
	RequestSeedPhrase(ctx context.Context, fs types.FactorSource)
}

type confirmation struct {
	mnemonic  crypto.MnemonicWithPassphrase
	cancelled bool
}

type pendingConfirmation struct {
	result chan confirmation
}

// OffDeviceExecutor signs with a mnemonic that is never stored. Each
// operation suspends until the user re-enters words that derive the factor
// source id, then computes locally.
type OffDeviceExecutor struct {
	prompter SeedPhrasePrompter
	recorder LastUsedRecorder

	mu      sync.Mutex
	pending map[types.FactorSourceID]*pendingConfirmation
}

// NewOffDeviceExecutor creates an off-device mnemonic executor
func NewOffDeviceExecutor(prompter SeedPhrasePrompter, recorder LastUsedRecorder) *OffDeviceExecutor {
	return &OffDeviceExecutor{
		prompter: prompter,
		recorder: recorder,
		pending:  make(map[types.FactorSourceID]*pendingConfirmation),
	}
}

// OnSeedPhraseConfirmed validates user input. Only Valid releases the
// waiting operation; on other outcomes it keeps waiting so the user can retry.
func (o *OffDeviceExecutor) OnSeedPhraseConfirmed(id types.FactorSourceID, words []string, passphrase string) SeedPhraseValidity {
	m, validity := ValidateSeedPhrase(id, words, passphrase)
	if validity != SeedPhraseValid {
		return validity
	}
	o.deliver(id, confirmation{mnemonic: m})
	return validity
}

// OnSeedPhraseCancelled ends the waiting operation with RejectedByUser
func (o *OffDeviceExecutor) OnSeedPhraseCancelled(id types.FactorSourceID) {
	o.deliver(id, confirmation{cancelled: true})
}

// Pending reports whether an operation is waiting for the given factor source
func (o *OffDeviceExecutor) Pending(id types.FactorSourceID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.pending[id]
	return ok
}

func (o *OffDeviceExecutor) deliver(id types.FactorSourceID, c confirmation) {
	o.mu.Lock()
	p, ok := o.pending[id]
	if ok {
		delete(o.pending, id)
	}
	o.mu.Unlock()
	if ok {
		p.result <- c
	}
}

// DerivePublicKeys derives factor instances after the seed phrase is confirmed
func (o *OffDeviceExecutor) DerivePublicKeys(ctx context.Context, fs types.FactorSource, paths []types.DerivationPath) ([]types.FactorInstance, error) {
	seed, err := o.awaitSeed(ctx, fs)
	if err != nil {
		return nil, err
	}
	defer seed.Destroy()

	instances, err := deriveWithSeed(seed, fs.ID, paths)
	if err != nil {
		return nil, err
	}
	recordUsage(ctx, o.recorder, fs.ID)
	return instances, nil
}

// SignMono signs the whole batch after the seed phrase is confirmed
func (o *OffDeviceExecutor) SignMono(ctx context.Context, fs types.FactorSource, input types.PerFactorSourceInput) (*types.PerFactorOutcome, error) {
	seed, err := o.awaitSeed(ctx, fs)
	if err != nil {
		return nil, err
	}
	defer seed.Destroy()

	signatures, err := signWithSeed(seed, input)
	if err != nil {
		return nil, err
	}

	recordUsage(ctx, o.recorder, fs.ID)
	return types.SignedOutcome(fs.ID, signatures), nil
}

// SpotCheck succeeds once the user enters words that derive the factor source id
func (o *OffDeviceExecutor) SpotCheck(ctx context.Context, fs types.FactorSource) (bool, error) {
	seed, err := o.awaitSeed(ctx, fs)
	if err != nil {
		return false, err
	}
	seed.Destroy()
	recordUsage(ctx, o.recorder, fs.ID)
	return true, nil
}

func (o *OffDeviceExecutor) awaitSeed(ctx context.Context, fs types.FactorSource) (*crypto.Seed, error) {
	p := &pendingConfirmation{result: make(chan confirmation, 1)}

	o.mu.Lock()
	if _, busy := o.pending[fs.ID]; busy {
		o.mu.Unlock()
		return nil, apperrors.PrepareTransactionFailed(fmt.Errorf("seed phrase confirmation already pending for %s", fs.ID))
	}
	o.pending[fs.ID] = p
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		if o.pending[fs.ID] == p {
			delete(o.pending, fs.ID)
		}
		o.mu.Unlock()
	}()

	logger.Info(ctx, "waiting for seed phrase confirmation", "factor_source", fs.ID.String())
	if o.prompter != nil {
		o.prompter.RequestSeedPhrase(ctx, fs)
	}

	select {
	case c := <-p.result:
		if c.cancelled {
			return nil, apperrors.ErrRejectedByUser.WithFactorSource(fs.ID)
		}
		seed, err := c.mnemonic.ToSeed()
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInvalidMnemonic, err).WithFactorSource(fs.ID)
		}
		return seed, nil
	case <-ctx.Done():
		if !cancelledByUser(ctx) {
			return nil, apperrors.PrepareTransactionFailed(fmt.Errorf("seed phrase not entered: %w", ctx.Err())).WithFactorSource(fs.ID)
		}
		return nil, apperrors.Wrap(apperrors.ErrRejectedByUser, ctx.Err()).WithFactorSource(fs.ID)
	}
}
