package keyexec_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/better-wallet/better-signer/internal/crypto"
	"github.com/better-wallet/better-signer/internal/keyexec"
	"github.com/better-wallet/better-signer/internal/ledger"
	apperrors "github.com/better-wallet/better-signer/pkg/errors"
	"github.com/better-wallet/better-signer/pkg/types"
	"github.com/better-wallet/better-signer/tests/fixtures"
	"github.com/better-wallet/better-signer/tests/mocks"
)

type ledgerSetup struct {
	fs        *fixtures.TestFactorSource
	sim       *ledger.Simulator
	transport *mocks.MockLedgerTransport
	recorder  *mocks.MockLastUsedRecorder
	executor  *keyexec.LedgerExecutor
}

func newLedgerSetup(t *testing.T) *ledgerSetup {
	t.Helper()
	fs := fixtures.NewTestFactorSource(types.FactorSourceLedger, fixtures.MnemonicLetter)
	sim, err := ledger.NewSimulator(fs.Mnemonic, types.LedgerModelNanoSPlus)
	require.NoError(t, err)
	t.Cleanup(sim.Close)
	require.Equal(t, fs.ID(), sim.FactorSourceID())

	transport := mocks.NewMockLedgerTransport(sim)
	recorder := mocks.NewMockLastUsedRecorder()
	return &ledgerSetup{
		fs:        fs,
		sim:       sim,
		transport: transport,
		recorder:  recorder,
		executor:  keyexec.NewLedgerExecutor(transport, recorder),
	}
}

func TestLedgerExecutor_SignMono_Transaction(t *testing.T) {
	s := newLedgerSetup(t)
	first := fixtures.NewTestAccount(s.fs, 0)
	second := fixtures.NewTestAccount(s.fs, 1)
	payload := transferPayload(first, second)

	outcome, err := s.executor.SignMono(context.Background(), s.fs.Source,
		fixtures.NewSignInput(s.fs.ID(), payload, fixtures.Owned(first, second)...))
	require.NoError(t, err)
	require.Len(t, outcome.Outcome.Signed, 2)
	for _, sig := range outcome.Outcome.Signed {
		assert.True(t, crypto.Verify(sig.PublicKey(), payload.IntentHash().Hash(), sig.Signature.Signature))
	}

	requests := s.transport.Requests()
	require.Len(t, requests, 1, "one request per payload")
	req := requests[0]
	assert.Equal(t, ledger.OpSignTransaction, req.Operation)
	assert.NotEmpty(t, req.CompiledIntentHex)
	assert.Len(t, req.Keys, 2)
	require.NotNil(t, req.Device)
	assert.Equal(t, s.fs.ID().Body.Hex(), req.Device.ID)
	_, err = uuid.Parse(req.InteractionID)
	assert.NoError(t, err, "interaction id is a uuid")

	assert.Equal(t, 1, s.recorder.Calls(s.fs.ID()))
}

func TestLedgerExecutor_RequestShaping(t *testing.T) {
	s := newLedgerSetup(t)
	account := fixtures.NewTestAccount(s.fs, 0)
	persona := fixtures.NewTestPersona(s.fs, 0)

	subintent, err := fixtures.NewTestSubintent(types.NetworkStokenet, fixtures.TransferManifest(persona.Address, account.Address)).Compile()
	require.NoError(t, err)
	auth := fixtures.NewTestAuthIntent(types.NetworkStokenet, "challenge")

	input := types.PerFactorSourceInput{
		FactorSourceID: s.fs.ID(),
		PerTransaction: []types.TransactionSignRequestInput{
			{Payload: subintent, OwnedFactorInstances: fixtures.Owned(account)},
			{Payload: auth, OwnedFactorInstances: fixtures.Owned(persona)},
		},
	}

	outcome, err := s.executor.SignMono(context.Background(), s.fs.Source, input)
	require.NoError(t, err)
	assert.Len(t, outcome.Outcome.Signed, 2)

	requests := s.transport.Requests()
	require.Len(t, requests, 2)

	assert.Equal(t, ledger.OpSignSubintentHash, requests[0].Operation)
	assert.Equal(t, subintent.SubintentHash().Hash().Hex(), requests[0].SubintentHashHex)
	assert.Empty(t, requests[0].CompiledIntentHex)

	assert.Equal(t, ledger.OpSignAuth, requests[1].Operation)
	assert.Equal(t, auth.Challenge.Hex(), requests[1].ChallengeHex)
	assert.Equal(t, auth.Origin, requests[1].Origin)
	assert.Equal(t, string(auth.DappDefinitionAddress), requests[1].DappDefinitionAddress)

	assert.NotEqual(t, requests[0].InteractionID, requests[1].InteractionID)
}

func TestLedgerExecutor_ResponseMatching(t *testing.T) {
	other := fixtures.NewTestFactorSource(types.FactorSourceLedger, fixtures.MnemonicZoo)
	stranger := other.Instance(crypto.EntityPath(types.NetworkStokenet, types.EntityKindAccount, 0))

	tests := []struct {
		name    string
		tamper  func(resp *ledger.Response)
		wantErr bool
		wantLen int
	}{
		{
			name: "key not requested",
			tamper: func(resp *ledger.Response) {
				resp.Signatures[0].PublicKeyHex = stranger.PublicKey.Hex()
			},
			wantErr: true,
		},
		{
			name: "signature does not verify",
			tamper: func(resp *ledger.Response) {
				b := []byte(resp.Signatures[1].SignatureHex)
				if b[0] == 'a' {
					b[0] = 'b'
				} else {
					b[0] = 'a'
				}
				resp.Signatures[1].SignatureHex = string(b)
			},
			wantErr: true,
		},
		{
			name: "duplicates collapse",
			tamper: func(resp *ledger.Response) {
				resp.Signatures = append(resp.Signatures, resp.Signatures...)
			},
			wantLen: 2,
		},
		{
			name: "invalid duplicate before a valid one",
			tamper: func(resp *ledger.Response) {
				bad := resp.Signatures[0]
				bad.SignatureHex = strings.Repeat("00", 64)
				resp.Signatures = append([]ledger.SignatureOfSigner{bad}, resp.Signatures...)
			},
			wantLen: 2,
		},
		{
			name: "unmatched extras are dropped",
			tamper: func(resp *ledger.Response) {
				extra := resp.Signatures[0]
				extra.PublicKeyHex = stranger.PublicKey.Hex()
				resp.Signatures = append(resp.Signatures, extra)
			},
			wantLen: 2,
		},
		{
			name: "upper case key hex",
			tamper: func(resp *ledger.Response) {
				for i := range resp.Signatures {
					resp.Signatures[i].PublicKeyHex = strings.ToUpper(resp.Signatures[i].PublicKeyHex)
				}
			},
			wantLen: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newLedgerSetup(t)
			s.sim.Tamper = tt.tamper
			first := fixtures.NewTestAccount(s.fs, 0)
			second := fixtures.NewTestAccount(s.fs, 1)

			outcome, err := s.executor.SignMono(context.Background(), s.fs.Source,
				fixtures.NewSignInput(s.fs.ID(), transferPayload(first, second), fixtures.Owned(first, second)...))
			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, outcome)
				assert.ErrorIs(t, err, apperrors.ErrHardwareCommunicationFailed)
				assert.Zero(t, s.recorder.Total())
				return
			}
			require.NoError(t, err)
			assert.Len(t, outcome.Outcome.Signed, tt.wantLen)
		})
	}
}

func TestLedgerExecutor_Failures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(s *ledgerSetup) context.Context
		want  *apperrors.AppError
	}{
		{
			name: "user rejects on device",
			setup: func(s *ledgerSetup) context.Context {
				s.sim.Approve = func(*ledger.Request) bool { return false }
				return context.Background()
			},
			want: apperrors.ErrRejectedByUser,
		},
		{
			name: "transport fails",
			setup: func(s *ledgerSetup) context.Context {
				s.transport.SetShouldFail(true)
				return context.Background()
			},
			want: apperrors.ErrHardwareCommunicationFailed,
		},
		{
			name: "caller cancels",
			setup: func(s *ledgerSetup) context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			},
			want: apperrors.ErrRejectedByUser,
		},
		{
			name: "response for another interaction",
			setup: func(s *ledgerSetup) context.Context {
				s.transport.Rewrite = func(_ *ledger.Request, resp *ledger.Response) {
					resp.InteractionID = "stale"
				}
				return context.Background()
			},
			want: apperrors.ErrHardwareCommunicationFailed,
		},
		{
			name: "device reports internal error",
			setup: func(s *ledgerSetup) context.Context {
				s.transport.Rewrite = func(req *ledger.Request, resp *ledger.Response) {
					*resp = *ledger.Failure(req.InteractionID, ledger.ErrCodeInternal, "app crashed")
				}
				return context.Background()
			},
			want: apperrors.ErrHardwareCommunicationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newLedgerSetup(t)
			ctx := tt.setup(s)
			account := fixtures.NewTestAccount(s.fs, 0)

			outcome, err := s.executor.SignMono(ctx, s.fs.Source,
				fixtures.NewSignInput(s.fs.ID(), transferPayload(account), fixtures.Owned(account)...))
			require.Error(t, err)
			assert.Nil(t, outcome)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLedgerExecutor_CallerDeadlineIsNotARejection(t *testing.T) {
	s := newLedgerSetup(t)
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	account := fixtures.NewTestAccount(s.fs, 0)

	_, err := s.executor.SignMono(ctx, s.fs.Source,
		fixtures.NewSignInput(s.fs.ID(), transferPayload(account), fixtures.Owned(account)...))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrHardwareCommunicationFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, apperrors.IsSilent(err))
}

func TestLedgerExecutor_MisroutedInstanceNeverReachesDevice(t *testing.T) {
	s := newLedgerSetup(t)
	mine := fixtures.NewTestAccount(s.fs, 0)
	theirs := fixtures.NewTestAccount(fixtures.NewTestFactorSource(types.FactorSourceDevice, fixtures.MnemonicZoo), 0)

	outcome, err := s.executor.SignMono(context.Background(), s.fs.Source,
		fixtures.NewSignInput(s.fs.ID(), transferPayload(mine, theirs), fixtures.Owned(mine, theirs)...))
	assert.Nil(t, outcome)
	assert.ErrorIs(t, err, apperrors.ErrPrepareTransactionFailed)
	assert.Zero(t, s.transport.CallCount())
	assert.Zero(t, s.recorder.Total())
}

func TestLedgerExecutor_WrongDeviceConnected(t *testing.T) {
	s := newLedgerSetup(t)
	impostor, err := ledger.NewSimulator(fixtures.Mnemonic(fixtures.MnemonicZoo), types.LedgerModelNanoX)
	require.NoError(t, err)
	defer impostor.Close()

	executor := keyexec.NewLedgerExecutor(mocks.NewMockLedgerTransport(impostor), s.recorder)
	account := fixtures.NewTestAccount(s.fs, 0)

	_, err = executor.SignMono(context.Background(), s.fs.Source,
		fixtures.NewSignInput(s.fs.ID(), transferPayload(account), fixtures.Owned(account)...))
	assert.ErrorIs(t, err, apperrors.ErrHardwareCommunicationFailed)

	ok, err := executor.SpotCheck(context.Background(), s.fs.Source)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, s.recorder.Total())
}

func TestLedgerExecutor_FailureOnLaterPayloadDiscardsEarlier(t *testing.T) {
	s := newLedgerSetup(t)
	s.transport.SetFailOnNthCall(2)
	account := fixtures.NewTestAccount(s.fs, 0)
	auth := fixtures.NewTestAuthIntent(types.NetworkStokenet, "second")

	input := types.PerFactorSourceInput{
		FactorSourceID: s.fs.ID(),
		PerTransaction: []types.TransactionSignRequestInput{
			{Payload: transferPayload(account), OwnedFactorInstances: fixtures.Owned(account)},
			{Payload: auth, OwnedFactorInstances: fixtures.Owned(account)},
		},
	}

	outcome, err := s.executor.SignMono(context.Background(), s.fs.Source, input)
	require.Error(t, err)
	assert.Nil(t, outcome)
	assert.Equal(t, 2, s.transport.CallCount())
	assert.Zero(t, s.recorder.Total())
}

func TestLedgerExecutor_DerivePublicKeys(t *testing.T) {
	s := newLedgerSetup(t)
	paths := []types.DerivationPath{
		crypto.EntityPath(types.NetworkStokenet, types.EntityKindAccount, 5),
		"m/44H/1022H/0H/0/1H",
	}

	instances, err := s.executor.DerivePublicKeys(context.Background(), s.fs.Source, paths)
	require.NoError(t, err)
	require.Len(t, instances, 2)
	for i, path := range paths {
		assert.Equal(t, s.fs.Instance(path), instances[i])
	}

	requests := s.transport.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, ledger.OpDerivePublicKeys, requests[0].Operation)
	assert.Equal(t, 1, s.recorder.Calls(s.fs.ID()))
}

func TestLedgerExecutor_SpotCheck(t *testing.T) {
	s := newLedgerSetup(t)

	ok, err := s.executor.SpotCheck(context.Background(), s.fs.Source)
	require.NoError(t, err)
	assert.True(t, ok)

	requests := s.transport.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, ledger.OpGetDeviceInfo, requests[0].Operation)
	assert.Nil(t, requests[0].Device, "spot check asks whichever device is connected")
	assert.Equal(t, 1, s.recorder.Calls(s.fs.ID()))
}

func TestLedgerExecutor_DeviceInfo(t *testing.T) {
	s := newLedgerSetup(t)

	fs, err := s.executor.DeviceInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, s.fs.ID(), fs.ID)
	assert.Equal(t, types.LedgerModelNanoSPlus, fs.Hint.Model)

	t.Run("transport down", func(t *testing.T) {
		s := newLedgerSetup(t)
		s.transport.SetShouldFail(true)

		_, err := s.executor.DeviceInfo(context.Background())
		assert.Equal(t, apperrors.ErrCodeHardwareCommunicationFailed, apperrors.KindOf(err))
	})
}
