package ceremony

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/better-wallet/better-signer/internal/keyexec"
	"github.com/better-wallet/better-signer/internal/logger"
	"github.com/better-wallet/better-signer/internal/metrics"
	"github.com/better-wallet/better-signer/internal/signers"
	apperrors "github.com/better-wallet/better-signer/pkg/errors"
	"github.com/better-wallet/better-signer/pkg/types"
)

// groupByFactorSource splits the owned instances of every request into one
// batch per factor source, in the order factor sources are first seen
func groupByFactorSource(requests []types.TransactionSignRequestInput) []types.PerFactorSourceInput {
	var order []types.FactorSourceID
	groups := make(map[types.FactorSourceID]*types.PerFactorSourceInput)

	for _, req := range requests {
		var reqOrder []types.FactorSourceID
		byFactorSource := make(map[types.FactorSourceID][]types.OwnedFactorInstance)
		for _, owned := range req.OwnedFactorInstances {
			id := owned.FactorInstance.FactorSourceID
			if _, seen := byFactorSource[id]; !seen {
				reqOrder = append(reqOrder, id)
			}
			byFactorSource[id] = append(byFactorSource[id], owned)
		}

		for _, id := range reqOrder {
			group, ok := groups[id]
			if !ok {
				group = &types.PerFactorSourceInput{FactorSourceID: id}
				groups[id] = group
				order = append(order, id)
			}
			group.PerTransaction = append(group.PerTransaction, types.TransactionSignRequestInput{
				Payload:              req.Payload,
				OwnedFactorInstances: byFactorSource[id],
			})
			group.InvalidTransactionsIfNeglected = append(group.InvalidTransactionsIfNeglected, req.Payload.PayloadID())
		}
	}

	inputs := make([]types.PerFactorSourceInput, 0, len(order))
	for _, id := range order {
		inputs = append(inputs, *groups[id])
	}
	return inputs
}

// signGroups runs every batch strictly one after the other and stops at the
// first factor source that does not sign
func (o *Orchestrator) signGroups(ctx context.Context, profile *signers.ProfileSnapshot, inputs []types.PerFactorSourceInput) ([]*types.PerFactorOutcome, error) {
	outcomes := make([]*types.PerFactorOutcome, 0, len(inputs))
	for _, input := range inputs {
		outcome, err := o.signGroup(ctx, profile, input)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

func (o *Orchestrator) signGroup(ctx context.Context, profile *signers.ProfileSnapshot, input types.PerFactorSourceInput) (*types.PerFactorOutcome, error) {
	id := input.FactorSourceID
	ctx = logger.WithFactorSource(ctx, id.String())

	fs, ok := profile.FactorSource(id)
	if !ok {
		return nil, apperrors.PrepareTransactionFailed(fmt.Errorf("factor source %s is not in the profile", id)).WithFactorSource(id)
	}
	access, err := o.registry.For(fs.Kind())
	if err != nil {
		return nil, translateFailure(err, id)
	}

	logger.Info(ctx, "signing with factor source", "payloads", len(input.PerTransaction), "signatures", input.ExpectedSignatures())
	start := time.Now()
	outcome, err := access.SignMono(ctx, fs, input)
	if err == nil {
		err = checkOutcome(input, outcome)
	}
	elapsed := time.Since(start)

	if err != nil {
		err = translateFailure(err, id)
		label := metrics.OutcomeFailure
		if apperrors.IsSilent(err) {
			label = metrics.OutcomeSilent
		}
		o.metrics.RecordFactorBatch(string(fs.Kind()), label, 0, elapsed)
		logger.Warn(ctx, "factor source did not sign",
			"code", apperrors.KindOf(err),
			"invalid_payloads", len(input.InvalidTransactionsIfNeglected),
		)
		return nil, err
	}

	o.metrics.RecordFactorBatch(string(fs.Kind()), metrics.OutcomeSuccess, len(outcome.Outcome.Signed), elapsed)
	return outcome, nil
}

// checkOutcome rejects anything but a complete Signed outcome for input
func checkOutcome(input types.PerFactorSourceInput, outcome *types.PerFactorOutcome) error {
	if outcome == nil {
		return apperrors.PrepareTransactionFailed(errors.New("factor source returned no outcome"))
	}
	if outcome.FactorSourceID != input.FactorSourceID {
		return apperrors.PrepareTransactionFailed(fmt.Errorf("outcome is for %s", outcome.FactorSourceID))
	}
	if neglected := outcome.Outcome.Neglected; neglected != nil {
		if neglected.Reason == types.NeglectUserExplicitlySkipped {
			return apperrors.ErrRejectedByUser
		}
		return neglectFailure(input.FactorSourceID.Kind, fmt.Errorf("factor source neglected: %s", neglected.Reason))
	}
	if got, want := len(outcome.Outcome.Signed), input.ExpectedSignatures(); got != want {
		return apperrors.PrepareTransactionFailed(fmt.Errorf("factor source returned %d signatures, expected %d", got, want))
	}
	return nil
}

// neglectFailure is the error kind a backend reports when it gives up
// without saying why
func neglectFailure(kind types.FactorSourceKind, err error) error {
	switch kind {
	case types.FactorSourceLedger:
		return apperrors.Wrap(apperrors.ErrHardwareCommunicationFailed, err)
	case types.FactorSourceDevice:
		return apperrors.Wrap(apperrors.ErrSecureReadFailed, err)
	default:
		return apperrors.PrepareTransactionFailed(err)
	}
}

// translateFailure tags err with the failing factor source. A declined
// interaction that reached here untyped becomes rejected_by_user.
func translateFailure(err error, id types.FactorSourceID) error {
	if appErr, ok := apperrors.IsAppError(err); ok {
		if appErr.FactorSourceID == "" {
			return appErr.WithFactorSource(id)
		}
		return appErr
	}
	if errors.Is(err, keyexec.ErrGateDeclined) || errors.Is(err, context.Canceled) {
		return apperrors.Wrap(apperrors.ErrRejectedByUser, err).WithFactorSource(id)
	}
	return apperrors.PrepareTransactionFailed(err).WithFactorSource(id)
}

// aggregate collects the signatures for payload from every outcome as a set
// keyed by public key and checks that each owned instance is covered. The
// result is sorted by public key so it does not depend on batch order.
func aggregate(payload types.PayloadID, owned []types.OwnedFactorInstance, outcomes []*types.PerFactorOutcome) ([]types.HDSignature, error) {
	set := make(map[string]types.HDSignature)
	for _, outcome := range outcomes {
		for _, sig := range outcome.Outcome.Signed {
			if sig.Input.PayloadID != payload {
				continue
			}
			key := sig.PublicKey().Hex()
			if _, dup := set[key]; !dup {
				set[key] = sig
			}
		}
	}

	for _, instance := range owned {
		if _, ok := set[instance.FactorInstance.PublicKey.Hex()]; !ok {
			return nil, apperrors.PrepareTransactionFailed(fmt.Errorf("no signature from %s for %s", instance.Owner, payload))
		}
	}

	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	signatures := make([]types.HDSignature, 0, len(keys))
	for _, key := range keys {
		signatures = append(signatures, set[key])
	}
	return signatures, nil
}

func intentSignatures(signatures []types.HDSignature) []types.SignatureWithPublicKey {
	out := make([]types.SignatureWithPublicKey, 0, len(signatures))
	for _, sig := range signatures {
		out = append(out, sig.Signature)
	}
	return out
}
