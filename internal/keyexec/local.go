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

// signWithSeed produces one HDSignature per owned instance of every payload.
// Any failure discards everything signed so far.
func signWithSeed(seed *crypto.Seed, input types.PerFactorSourceInput) ([]types.HDSignature, error) {
	signatures := make([]types.HDSignature, 0, input.ExpectedSignatures())
	for _, tx := range input.PerTransaction {
		payloadID := tx.Payload.PayloadID()
		for _, owned := range tx.OwnedFactorInstances {
			instance := owned.FactorInstance
			if !instance.FactorSourceID.SameSeed(input.FactorSourceID) {
				return nil, apperrors.PrepareTransactionFailed(fmt.Errorf(
					"instance of %s owned by %s routed to factor source %s",
					instance.FactorSourceID, owned.Owner, input.FactorSourceID))
			}

			sig, err := seed.Sign(instance.PublicKey.Curve, instance.DerivationPath, payloadID.Hash())
			if err != nil {
				return nil, apperrors.PrepareTransactionFailed(fmt.Errorf("sign %s for %s: %w", payloadID, owned.Owner, err))
			}
			if !sig.PublicKey.Equal(instance.PublicKey) {
				return nil, apperrors.PrepareTransactionFailed(fmt.Errorf(
					"path %s derives %s, expected %s for %s",
					instance.DerivationPath, sig.PublicKey.Hex(), instance.PublicKey.Hex(), owned.Owner))
			}

			signatures = append(signatures, types.HDSignature{
				Input:     types.HDSignatureInput{PayloadID: payloadID, OwnedFactorInstance: owned},
				Signature: sig,
			})
		}
	}
	return signatures, nil
}

// deriveWithSeed derives one factor instance per path, picking the curve from the path shape
func deriveWithSeed(seed *crypto.Seed, id types.FactorSourceID, paths []types.DerivationPath) ([]types.FactorInstance, error) {
	instances := make([]types.FactorInstance, 0, len(paths))
	for _, path := range paths {
		curve, err := crypto.CurveForPath(path)
		if err != nil {
			return nil, apperrors.PrepareTransactionFailed(err)
		}
		pub, err := seed.DerivePublicKey(curve, path)
		if err != nil {
			return nil, apperrors.PrepareTransactionFailed(fmt.Errorf("derive %s: %w", path, err))
		}
		instances = append(instances, types.FactorInstance{FactorSourceID: id, PublicKey: pub, DerivationPath: path})
	}
	return instances, nil
}

// recordUsage updates the last used timestamp once after a successful
// operation. The result is already valid, so a persistence failure is only logged.
func recordUsage(ctx context.Context, recorder LastUsedRecorder, id types.FactorSourceID) {
	if recorder == nil {
		return
	}
	if err := recorder.UpdateLastUsed(ctx, id); err != nil {
		logger.Warn(ctx, "failed to update factor source last used", "factor_source", id.String(), "error", err)
	}
}

// cancelledByUser reports whether ctx was cancelled. An expired deadline is a
// timeout, not a user decision.
func cancelledByUser(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.Canceled)
}
