package ceremony

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/better-wallet/better-signer/internal/notary"
	apperrors "github.com/better-wallet/better-signer/pkg/errors"
	"github.com/better-wallet/better-signer/pkg/types"
)

// DefaultEpochWindow is the number of epochs a transaction stays valid for
const DefaultEpochWindow uint64 = 10

// EpochSource reports the current ledger epoch
type EpochSource interface {
	CurrentEpoch(ctx context.Context) (uint64, error)
}

// FixedEpoch is an EpochSource that never changes, for offline use
type FixedEpoch uint64

// CurrentEpoch returns the fixed epoch
func (f FixedEpoch) CurrentEpoch(ctx context.Context) (uint64, error) {
	return uint64(f), ctx.Err()
}

// NonceSource produces transaction nonces
type NonceSource func() (uint32, error)

func randomNonce() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func (o *Orchestrator) transactionHeader(ctx context.Context, network types.NetworkID, n *notary.NotaryAndSigners, tip uint16) (types.TransactionHeader, error) {
	epoch, err := o.epochs.CurrentEpoch(ctx)
	if err != nil {
		return types.TransactionHeader{}, apperrors.PrepareTransactionFailed(fmt.Errorf("failed to read current epoch: %w", err))
	}
	nonce, err := o.nonce()
	if err != nil {
		return types.TransactionHeader{}, apperrors.PrepareTransactionFailed(err)
	}
	return types.TransactionHeader{
		NetworkID:           network,
		StartEpochInclusive: epoch,
		EndEpochExclusive:   epoch + o.epochWindow,
		Nonce:               nonce,
		NotaryPublicKey:     n.NotaryPublicKey(),
		NotaryIsSignatory:   n.NotaryIsSignatory(),
		TipPercentage:       tip,
	}, nil
}

// SubintentHeader builds the header of a subintent valid for the configured epoch window
func (o *Orchestrator) SubintentHeader(ctx context.Context, network types.NetworkID) (types.SubintentHeader, error) {
	epoch, err := o.epochs.CurrentEpoch(ctx)
	if err != nil {
		return types.SubintentHeader{}, apperrors.PrepareTransactionFailed(fmt.Errorf("failed to read current epoch: %w", err))
	}
	nonce, err := o.nonce()
	if err != nil {
		return types.SubintentHeader{}, apperrors.PrepareTransactionFailed(err)
	}
	return types.SubintentHeader{
		NetworkID:           network,
		StartEpochInclusive: epoch,
		EndEpochExclusive:   epoch + o.epochWindow,
		Nonce:               nonce,
	}, nil
}
