package ceremony

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"

	"github.com/better-wallet/better-signer/internal/logger"
	apperrors "github.com/better-wallet/better-signer/pkg/errors"
)

// Ceremony states
const (
	StateResolvingSigners = "resolving_signers"
	StatePerFactorSigning = "per_factor_signing"
	StateAggregating      = "aggregating"
	StateNotarizing       = "notarizing"
	StateNotarized        = "notarized"
	StateFailed           = "failed"
)

const (
	eventSignersResolved = "signers_resolved"
	eventSigned          = "signed"
	eventAggregated      = "aggregated"
	eventNotarized       = "notarized"
	eventFinalized       = "finalized"
	eventFail            = "fail"
)

// StateListener observes every state change of a ceremony
type StateListener func(ctx context.Context, ceremonyID, from, to string)

type machine struct {
	fsm *fsm.FSM
}

func newMachine(ceremonyID string, listener StateListener) *machine {
	return &machine{fsm: fsm.NewFSM(
		StateResolvingSigners,
		fsm.Events{
			{Name: eventSignersResolved, Src: []string{StateResolvingSigners}, Dst: StatePerFactorSigning},
			{Name: eventSigned, Src: []string{StatePerFactorSigning}, Dst: StateAggregating},
			{Name: eventAggregated, Src: []string{StateAggregating}, Dst: StateNotarizing},
			{Name: eventNotarized, Src: []string{StateNotarizing}, Dst: StateNotarized},
			// subintents and auth proofs are complete once aggregated
			{Name: eventFinalized, Src: []string{StateAggregating}, Dst: StateNotarized},
			{Name: eventFail, Src: []string{StateResolvingSigners, StatePerFactorSigning, StateAggregating, StateNotarizing}, Dst: StateFailed},
		},
		fsm.Callbacks{
			"enter_state": func(ctx context.Context, e *fsm.Event) {
				logger.Debug(ctx, "ceremony state changed", "from", e.Src, "to", e.Dst)
				if listener != nil {
					listener(ctx, ceremonyID, e.Src, e.Dst)
				}
			},
		},
	)}
}

func (m *machine) current() string {
	return m.fsm.Current()
}

// advance fires event. A transition the machine does not allow is a bug in
// the caller and is reported as a preparation failure.
func (m *machine) advance(ctx context.Context, event string) error {
	from := m.fsm.Current()
	if err := m.fsm.Event(context.WithoutCancel(ctx), event); err != nil {
		return apperrors.PrepareTransactionFailed(fmt.Errorf("ceremony cannot %s from %s: %w", event, from, err))
	}
	return nil
}

// fail moves the machine to failed and returns err as an AppError
func (m *machine) fail(ctx context.Context, err error) error {
	if ferr := m.fsm.Event(context.WithoutCancel(ctx), eventFail); ferr != nil {
		logger.Warn(ctx, "ceremony could not enter failed state", "state", m.fsm.Current(), "error", ferr)
	}
	if _, ok := apperrors.IsAppError(err); ok {
		return err
	}
	return apperrors.PrepareTransactionFailed(err)
}
