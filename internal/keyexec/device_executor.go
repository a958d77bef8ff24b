package keyexec

import (
	"context"
	"errors"
	"fmt"

	"github.com/better-wallet/better-signer/internal/crypto"
	"github.com/better-wallet/better-signer/internal/logger"
	apperrors "github.com/better-wallet/better-signer/pkg/errors"
	"github.com/better-wallet/better-signer/pkg/types"
)

// DeviceExecutor signs with a mnemonic kept in encrypted local storage. Every
// operation passes the access gate before the mnemonic is read.
type DeviceExecutor struct {
	store    MnemonicStore
	gate     AccessGate
	recorder LastUsedRecorder
}

// NewDeviceExecutor creates a device executor
func NewDeviceExecutor(store MnemonicStore, gate AccessGate, recorder LastUsedRecorder) *DeviceExecutor {
	return &DeviceExecutor{store: store, gate: gate, recorder: recorder}
}

// DerivePublicKeys derives factor instances from the stored mnemonic
func (d *DeviceExecutor) DerivePublicKeys(ctx context.Context, fs types.FactorSource, paths []types.DerivationPath) ([]types.FactorInstance, error) {
	seed, err := d.loadSeed(ctx, fs, "Derive public keys")
	if err != nil {
		return nil, err
	}
	defer seed.Destroy()

	instances, err := deriveWithSeed(seed, fs.ID, paths)
	if err != nil {
		return nil, err
	}
	recordUsage(ctx, d.recorder, fs.ID)
	return instances, nil
}

// SignMono signs the whole batch with the stored mnemonic
func (d *DeviceExecutor) SignMono(ctx context.Context, fs types.FactorSource, input types.PerFactorSourceInput) (*types.PerFactorOutcome, error) {
	seed, err := d.loadSeed(ctx, fs, "Sign transaction")
	if err != nil {
		return nil, err
	}
	defer seed.Destroy()

	signatures, err := signWithSeed(seed, input)
	if err != nil {
		return nil, err
	}

	recordUsage(ctx, d.recorder, fs.ID)
	logger.Debug(ctx, "device factor source signed", "signatures", len(signatures))
	return types.SignedOutcome(fs.ID, signatures), nil
}

// SpotCheck confirms the stored mnemonic still derives the factor source id
func (d *DeviceExecutor) SpotCheck(ctx context.Context, fs types.FactorSource) (bool, error) {
	seed, err := d.loadSeed(ctx, fs, "Verify factor source")
	if err != nil {
		return false, err
	}
	defer seed.Destroy()

	id, err := seed.FactorSourceID(fs.Kind())
	if err != nil {
		return false, apperrors.Wrap(apperrors.ErrSecureReadFailed, err)
	}
	if id != fs.ID {
		return false, nil
	}
	recordUsage(ctx, d.recorder, fs.ID)
	return true, nil
}

// loadSeed runs exists → gate → read. Gate failures never touch storage.
func (d *DeviceExecutor) loadSeed(ctx context.Context, fs types.FactorSource, reason string) (*crypto.Seed, error) {
	exists, err := d.store.Exists(ctx, fs.ID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrSecureReadFailed, err).WithFactorSource(fs.ID)
	}
	if !exists {
		return nil, apperrors.ErrMissingMnemonic.WithFactorSource(fs.ID)
	}

	if err := d.gate.Authenticate(ctx, reason); err != nil {
		if errors.Is(err, ErrGateDeclined) || cancelledByUser(ctx) {
			return nil, apperrors.Wrap(apperrors.ErrRejectedByUser, err).WithFactorSource(fs.ID)
		}
		return nil, apperrors.Wrap(apperrors.ErrAccessGateFailed, err).WithFactorSource(fs.ID)
	}

	mnemonic, err := d.store.Read(ctx, fs.ID)
	if err != nil {
		if errors.Is(err, ErrMnemonicNotFound) {
			return nil, apperrors.ErrMissingMnemonic.WithFactorSource(fs.ID)
		}
		return nil, apperrors.Wrap(apperrors.ErrSecureReadFailed, err).WithFactorSource(fs.ID)
	}

	seed, err := mnemonic.ToSeed()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrSecureReadFailed, fmt.Errorf("stored mnemonic is unusable: %w", err)).WithFactorSource(fs.ID)
	}
	return seed, nil
}
