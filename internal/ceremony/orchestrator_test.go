package ceremony

import (
	"context"
	"crypto/ed25519"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/better-wallet/better-signer/internal/crypto"
	"github.com/better-wallet/better-signer/internal/keyexec"
	"github.com/better-wallet/better-signer/internal/ledger"
	"github.com/better-wallet/better-signer/internal/manifest"
	"github.com/better-wallet/better-signer/internal/metrics"
	"github.com/better-wallet/better-signer/internal/signers"
	apperrors "github.com/better-wallet/better-signer/pkg/errors"
	"github.com/better-wallet/better-signer/pkg/types"
	"github.com/better-wallet/better-signer/tests/fixtures"
	"github.com/better-wallet/better-signer/tests/mocks"
)

const (
	testEpoch = 5000
	testNonce = 99
)

type stateLog struct {
	mu      sync.Mutex
	visited []string
}

func (l *stateLog) listen(ctx context.Context, ceremonyID, from, to string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.visited = append(l.visited, to)
}

func (l *stateLog) states() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.visited...)
}

type harness struct {
	device    *fixtures.TestFactorSource
	other     *fixtures.TestFactorSource
	hardware  *fixtures.TestFactorSource
	offDevice *fixtures.TestFactorSource

	sim       *ledger.Simulator
	transport *mocks.MockLedgerTransport
	store     *mocks.MockMnemonicStore
	gate      *mocks.MockAccessGate
	prompter  *mocks.MockSeedPhrasePrompter
	recorder  *mocks.MockLastUsedRecorder
	registry  *keyexec.Registry
	metrics   *prometheus.Registry
	log       *stateLog

	alice   types.Entity // device
	bob     types.Entity // device
	carol   types.Entity // other device
	dave    types.Entity // hardware
	erin    types.Entity // off device
	persona types.Entity // device

	profile      *signers.ProfileSnapshot
	orchestrator *Orchestrator
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		device:    fixtures.NewTestFactorSource(types.FactorSourceDevice, fixtures.MnemonicAbandon),
		other:     fixtures.NewTestFactorSource(types.FactorSourceDevice, fixtures.MnemonicZoo),
		hardware:  fixtures.NewTestFactorSource(types.FactorSourceLedger, fixtures.MnemonicLetter),
		offDevice: fixtures.NewTestFactorSource(types.FactorSourceOffDeviceMnemonic, fixtures.MnemonicLegal),
		store:     mocks.NewMockMnemonicStore(),
		gate:      mocks.NewMockAccessGate(),
		prompter:  mocks.NewMockSeedPhrasePrompter(),
		recorder:  mocks.NewMockLastUsedRecorder(),
		registry:  keyexec.NewRegistry(),
		metrics:   prometheus.NewRegistry(),
		log:       &stateLog{},
	}

	sim, err := ledger.NewSimulator(h.hardware.Mnemonic, types.LedgerModelNanoSPlus)
	require.NoError(t, err)
	t.Cleanup(sim.Close)
	h.sim = sim
	h.transport = mocks.NewMockLedgerTransport(sim)

	h.store.Put(h.device.ID(), h.device.Mnemonic)
	h.store.Put(h.other.ID(), h.other.Mnemonic)

	offDevice := keyexec.NewOffDeviceExecutor(h.prompter, h.recorder)
	h.prompter.OnRequest = func(fs types.FactorSource) {
		offDevice.OnSeedPhraseConfirmed(fs.ID, strings.Fields(fixtures.MnemonicLegal), "")
	}

	h.registry.Register(types.FactorSourceDevice, keyexec.NewDeviceExecutor(h.store, h.gate, h.recorder))
	h.registry.Register(types.FactorSourceLedger, keyexec.NewLedgerExecutor(h.transport, h.recorder))
	h.registry.Register(types.FactorSourceOffDeviceMnemonic, offDevice)

	h.alice = fixtures.NewTestAccount(h.device, 0)
	h.bob = fixtures.NewTestAccount(h.device, 1)
	h.carol = fixtures.NewTestAccount(h.other, 0)
	h.dave = fixtures.NewTestAccount(h.hardware, 0)
	h.erin = fixtures.NewTestAccount(h.offDevice, 0)
	h.persona = fixtures.NewTestPersona(h.device, 0)

	h.profile = signers.NewProfileSnapshot(types.NetworkStokenet,
		[]types.Entity{h.alice, h.bob, h.carol, h.dave, h.erin, h.persona},
	).WithFactorSources(h.device.Source, h.other.Source, h.hardware.Source, h.offDevice.Source)

	defaults := []Option{
		WithNonceSource(func() (uint32, error) { return testNonce, nil }),
		WithMetrics(metrics.New(h.metrics)),
		WithStateListener(h.log.listen),
	}
	h.orchestrator = New(h.registry, manifest.NewAnalyzer(), FixedEpoch(testEpoch), append(defaults, opts...)...)
	return h
}

func (h *harness) transfer(entities ...types.Entity) TransactionRequest {
	senders := make([]types.Address, 0, len(entities))
	for _, e := range entities {
		senders = append(senders, e.Address)
	}
	return TransactionRequest{
		Manifest: fixtures.TransferManifest(fixtures.NewDappAddress(types.NetworkStokenet), senders...),
		Message:  "test transfer",
	}
}

func (h *harness) ceremonies(t *testing.T, outcome string) float64 {
	t.Helper()
	families, err := h.metrics.Gather()
	require.NoError(t, err)

	total := 0.0
	for _, f := range families {
		if f.GetName() != "signer_ceremony_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "outcome" && l.GetValue() == outcome {
					total += m.GetCounter().GetValue()
				}
			}
		}
	}
	return total
}

func assertNotarized(t *testing.T, result *types.NotarizationResult) {
	t.Helper()
	intent := result.NotarizedTransaction.SignedIntent.Intent

	compiled, err := intent.Compile()
	require.NoError(t, err)
	assert.Equal(t, result.IntentHash, compiled.IntentHash())

	for _, sig := range result.NotarizedTransaction.SignedIntent.IntentSignatures {
		assert.True(t, crypto.Verify(sig.PublicKey, result.IntentHash.Hash(), sig.Signature), "intent signature by %s", sig.PublicKey)
	}

	hash, err := result.NotarizedTransaction.SignedIntent.Hash()
	require.NoError(t, err)
	assert.True(t, crypto.Verify(intent.Header.NotaryPublicKey, hash.Hash(), result.NotarizedTransaction.NotarySignature))

	bytes, err := result.NotarizedTransaction.Compile()
	require.NoError(t, err)
	assert.Equal(t, bytes, result.Compiled)
}

func TestSignTransaction_SingleDeviceAccount(t *testing.T) {
	h := newHarness(t)

	result, err := h.orchestrator.SignTransaction(context.Background(), h.profile, h.transfer(h.alice))
	require.NoError(t, err)
	assertNotarized(t, result)

	header := result.NotarizedTransaction.SignedIntent.Intent.Header
	assert.False(t, header.NotaryIsSignatory)
	assert.Equal(t, types.NetworkStokenet, header.NetworkID)
	assert.Equal(t, uint64(testEpoch), header.StartEpochInclusive)
	assert.Equal(t, uint64(testEpoch)+DefaultEpochWindow, header.EndEpochExclusive)
	assert.Equal(t, header.EndEpochExclusive, result.EndEpoch)
	assert.Equal(t, uint32(testNonce), header.Nonce)

	signatures := result.NotarizedTransaction.SignedIntent.IntentSignatures
	require.Len(t, signatures, 1)
	assert.True(t, signatures[0].PublicKey.Equal(h.alice.SecurityState.Unsecured.TransactionSigning.PublicKey))

	assert.Equal(t, []string{StatePerFactorSigning, StateAggregating, StateNotarizing, StateNotarized}, h.log.states())
	assert.Equal(t, 1, h.recorder.Calls(h.device.ID()))
	assert.Equal(t, 1.0, h.ceremonies(t, metrics.OutcomeSuccess))
}

func TestSignTransaction_NoSigners(t *testing.T) {
	h := newHarness(t)

	result, err := h.orchestrator.SignTransaction(context.Background(), h.profile, TransactionRequest{
		Manifest: fixtures.FaucetManifest(h.alice.Address),
	})
	require.NoError(t, err)
	assertNotarized(t, result)

	assert.True(t, result.NotarizedTransaction.SignedIntent.Intent.Header.NotaryIsSignatory)
	assert.Empty(t, result.NotarizedTransaction.SignedIntent.IntentSignatures)
	assert.NotEmpty(t, result.NotarizedTransaction.NotarySignature.Bytes)

	assert.Zero(t, h.gate.Calls())
	assert.Zero(t, h.transport.CallCount())
	assert.Zero(t, h.recorder.Total())
}

func TestSignTransaction_MixedFactorSources(t *testing.T) {
	h := newHarness(t)

	result, err := h.orchestrator.SignTransaction(context.Background(), h.profile,
		h.transfer(h.alice, h.dave, h.bob, h.carol, h.erin))
	require.NoError(t, err)
	assertNotarized(t, result)

	signatures := result.NotarizedTransaction.SignedIntent.IntentSignatures
	require.Len(t, signatures, 5)

	got := make([]string, 0, len(signatures))
	for _, sig := range signatures {
		got = append(got, sig.PublicKey.Hex())
	}
	assert.True(t, sort.StringsAreSorted(got), "signatures are ordered by public key")

	want := make([]string, 0, 5)
	for _, e := range []types.Entity{h.alice, h.dave, h.bob, h.carol, h.erin} {
		want = append(want, e.SecurityState.Unsecured.TransactionSigning.PublicKey.Hex())
	}
	assert.ElementsMatch(t, want, got)

	// alice and bob share one device factor source: one gate, one batch
	assert.Equal(t, 2, h.gate.Calls())
	assert.Equal(t, 1, h.recorder.Calls(h.device.ID()))
	assert.Equal(t, 1, h.recorder.Calls(h.other.ID()))
	assert.Equal(t, 1, h.recorder.Calls(h.hardware.ID()))
	assert.Equal(t, 1, h.recorder.Calls(h.offDevice.ID()))
	assert.Equal(t, 1, h.transport.CallCount())
	assert.Equal(t, []types.FactorSourceID{h.offDevice.ID()}, h.prompter.Prompted())
}

func TestSignTransaction_FailFast(t *testing.T) {
	tests := []struct {
		name          string
		setup         func(h *harness)
		signers       func(h *harness) []types.Entity
		wantErr       *apperrors.AppError
		wantSilent    bool
		wantFactor    func(h *harness) types.FactorSourceID
		wantLedgerHit bool
	}{
		{
			name:       "device gate declined",
			setup:      func(h *harness) { h.gate.Decline() },
			signers:    func(h *harness) []types.Entity { return []types.Entity{h.alice, h.dave} },
			wantErr:    apperrors.ErrRejectedByUser,
			wantSilent: true,
			wantFactor: func(h *harness) types.FactorSourceID { return h.device.ID() },
		},
		{
			name:       "device gate errored",
			setup:      func(h *harness) { h.gate.Err = errors.New("sensor unavailable") },
			signers:    func(h *harness) []types.Entity { return []types.Entity{h.alice, h.dave} },
			wantErr:    apperrors.ErrAccessGateFailed,
			wantFactor: func(h *harness) types.FactorSourceID { return h.device.ID() },
		},
		{
			name:       "mnemonic missing",
			setup:      func(h *harness) { h.store.Delete(h.device.ID()) },
			signers:    func(h *harness) []types.Entity { return []types.Entity{h.alice, h.dave} },
			wantErr:    apperrors.ErrMissingMnemonic,
			wantFactor: func(h *harness) types.FactorSourceID { return h.device.ID() },
		},
		{
			name:          "rejected on hardware device",
			setup:         func(h *harness) { h.sim.Approve = func(*ledger.Request) bool { return false } },
			signers:       func(h *harness) []types.Entity { return []types.Entity{h.dave, h.alice} },
			wantErr:       apperrors.ErrRejectedByUser,
			wantSilent:    true,
			wantFactor:    func(h *harness) types.FactorSourceID { return h.hardware.ID() },
			wantLedgerHit: true,
		},
		{
			name: "hardware returns a key nobody asked for",
			setup: func(h *harness) {
				stranger := h.carol.SecurityState.Unsecured.TransactionSigning.PublicKey.Hex()
				h.sim.Tamper = func(resp *ledger.Response) {
					for i := range resp.Signatures {
						resp.Signatures[i].PublicKeyHex = stranger
					}
				}
			},
			signers:       func(h *harness) []types.Entity { return []types.Entity{h.dave, h.alice} },
			wantErr:       apperrors.ErrHardwareCommunicationFailed,
			wantFactor:    func(h *harness) types.FactorSourceID { return h.hardware.ID() },
			wantLedgerHit: true,
		},
		{
			name:          "hardware transport down",
			setup:         func(h *harness) { h.transport.SetShouldFail(true) },
			signers:       func(h *harness) []types.Entity { return []types.Entity{h.dave, h.alice} },
			wantErr:       apperrors.ErrHardwareCommunicationFailed,
			wantFactor:    func(h *harness) types.FactorSourceID { return h.hardware.ID() },
			wantLedgerHit: true,
		},
		{
			name: "seed phrase entry cancelled",
			setup: func(h *harness) {
				executor, err := h.registry.For(types.FactorSourceOffDeviceMnemonic)
				if err != nil {
					panic(err)
				}
				h.prompter.OnRequest = func(fs types.FactorSource) {
					executor.(*keyexec.OffDeviceExecutor).OnSeedPhraseCancelled(fs.ID)
				}
			},
			signers:    func(h *harness) []types.Entity { return []types.Entity{h.erin, h.dave} },
			wantErr:    apperrors.ErrRejectedByUser,
			wantSilent: true,
			wantFactor: func(h *harness) types.FactorSourceID { return h.offDevice.ID() },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.setup(h)

			result, err := h.orchestrator.SignTransaction(context.Background(), h.profile, h.transfer(tt.signers(h)...))
			require.Error(t, err)
			assert.Nil(t, result)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantSilent, apperrors.IsSilent(err))

			appErr, ok := apperrors.IsAppError(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantFactor(h).String(), appErr.FactorSourceID)

			states := h.log.states()
			assert.Equal(t, StateFailed, states[len(states)-1])
			assert.NotContains(t, states, StateAggregating)
			assert.NotContains(t, states, StateNotarizing)

			if tt.wantLedgerHit {
				assert.Equal(t, 1, h.transport.CallCount())
				assert.Zero(t, h.gate.Calls(), "groups after the failing one are not attempted")
			} else {
				assert.Zero(t, h.transport.CallCount(), "groups after the failing one are not attempted")
			}

			if tt.wantSilent {
				assert.Equal(t, 1.0, h.ceremonies(t, metrics.OutcomeSilent))
			} else {
				assert.Equal(t, 1.0, h.ceremonies(t, metrics.OutcomeFailure))
			}
		})
	}
}

func TestSignTransaction_UnknownEntity(t *testing.T) {
	h := newHarness(t)
	stranger := fixtures.NewTestAccount(fixtures.NewTestFactorSource(types.FactorSourceDevice, fixtures.MnemonicLetter), 9)

	_, err := h.orchestrator.SignTransaction(context.Background(), h.profile, h.transfer(h.alice, stranger))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnknownEntity)
	assert.Equal(t, []string{StateFailed}, h.log.states())
	assert.Zero(t, h.gate.Calls())
}

func TestSignTransaction_PreparationFailures(t *testing.T) {
	t.Run("epoch unavailable", func(t *testing.T) {
		h := newHarness(t)
		h.orchestrator.epochs = failingEpochs{}

		_, err := h.orchestrator.SignTransaction(context.Background(), h.profile, h.transfer(h.alice))
		assert.ErrorIs(t, err, apperrors.ErrPrepareTransactionFailed)
		assert.Zero(t, h.gate.Calls())
	})

	t.Run("nonce unavailable", func(t *testing.T) {
		h := newHarness(t, WithNonceSource(func() (uint32, error) { return 0, errors.New("no entropy") }))

		_, err := h.orchestrator.SignTransaction(context.Background(), h.profile, h.transfer(h.alice))
		assert.ErrorIs(t, err, apperrors.ErrPrepareTransactionFailed)
	})

	t.Run("factor source not in profile", func(t *testing.T) {
		h := newHarness(t)
		profile := signers.NewProfileSnapshot(types.NetworkStokenet, []types.Entity{h.alice})

		_, err := h.orchestrator.SignTransaction(context.Background(), profile, h.transfer(h.alice))
		assert.ErrorIs(t, err, apperrors.ErrPrepareTransactionFailed)
		assert.Zero(t, h.gate.Calls())
	})

	t.Run("no strategy for kind", func(t *testing.T) {
		h := newHarness(t)
		h.orchestrator.registry = keyexec.NewRegistry()

		_, err := h.orchestrator.SignTransaction(context.Background(), h.profile, h.transfer(h.alice))
		assert.ErrorIs(t, err, apperrors.ErrPrepareTransactionFailed)
	})

	t.Run("bad notary key", func(t *testing.T) {
		h := newHarness(t)
		req := h.transfer(h.alice)
		req.NotaryKey = ed25519.PrivateKey{1, 2, 3}

		_, err := h.orchestrator.SignTransaction(context.Background(), h.profile, req)
		assert.ErrorIs(t, err, apperrors.ErrPrepareTransactionFailed)
	})
}

type failingEpochs struct{}

func (failingEpochs) CurrentEpoch(ctx context.Context) (uint64, error) {
	return 0, errors.New("gateway unreachable")
}

func TestSignTransaction_NotaryKey(t *testing.T) {
	_, key, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	h := newHarness(t, WithEpochWindow(3))
	req := h.transfer(h.alice, h.dave)
	req.NotaryKey = key
	req.TipPercentage = 5

	first, err := h.orchestrator.SignTransaction(context.Background(), h.profile, req)
	require.NoError(t, err)
	header := first.NotarizedTransaction.SignedIntent.Intent.Header
	assert.True(t, header.NotaryPublicKey.Equal(crypto.Ed25519PublicKey(key)))
	assert.Equal(t, uint16(5), header.TipPercentage)
	assert.Equal(t, uint64(testEpoch+3), first.EndEpoch)

	second, err := h.orchestrator.SignTransaction(context.Background(), h.profile, req)
	require.NoError(t, err)
	assert.Equal(t, first.Compiled, second.Compiled, "same inputs notarize to the same bytes")

	t.Run("fresh key per ceremony when none is supplied", func(t *testing.T) {
		req.NotaryKey = nil
		a, err := h.orchestrator.SignTransaction(context.Background(), h.profile, req)
		require.NoError(t, err)
		b, err := h.orchestrator.SignTransaction(context.Background(), h.profile, req)
		require.NoError(t, err)
		assert.False(t, a.NotarizedTransaction.SignedIntent.Intent.Header.NotaryPublicKey.Equal(
			b.NotarizedTransaction.SignedIntent.Intent.Header.NotaryPublicKey))
	})
}

func TestSignTransaction_CancelledWhileOnDevice(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.sim.Approve = func(*ledger.Request) bool {
		cancel()
		return true
	}

	_, err := h.orchestrator.SignTransaction(ctx, h.profile, h.transfer(h.dave))
	require.Error(t, err)
	assert.True(t, apperrors.IsSilent(err))
	states := h.log.states()
	assert.Equal(t, StateFailed, states[len(states)-1])
	assert.Zero(t, h.recorder.Total())
}

func TestSignSubintent(t *testing.T) {
	h := newHarness(t)
	m := fixtures.NewTestManifest(
		fixtures.MethodCall{Address: h.alice.Address, Method: "withdraw"},
		fixtures.MethodCall{Address: h.persona.Address, Method: "create_proof"},
		fixtures.MethodCall{Address: h.dave.Address, Method: "lock_fee"},
	)
	subintent := fixtures.NewTestSubintent(types.NetworkStokenet, m)

	signed, err := h.orchestrator.SignSubintent(context.Background(), h.profile, subintent)
	require.NoError(t, err)
	assert.Equal(t, subintent, signed.Subintent)
	require.Len(t, signed.Signatures, 3)

	compiled, err := subintent.Compile()
	require.NoError(t, err)
	for _, sig := range signed.Signatures {
		assert.True(t, crypto.Verify(sig.PublicKey, compiled.SubintentHash().Hash(), sig.Signature))
	}

	assert.Equal(t, []string{StatePerFactorSigning, StateAggregating, StateNotarized}, h.log.states())
	assert.Equal(t, 1, h.gate.Calls(), "account and persona share a factor source")

	requests := h.transport.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, ledger.OpSignSubintentHash, requests[0].Operation)
}

func TestSignSubintent_WrongNetwork(t *testing.T) {
	h := newHarness(t)
	subintent := fixtures.NewTestSubintent(types.NetworkMainnet, h.transfer(h.alice).Manifest)

	_, err := h.orchestrator.SignSubintent(context.Background(), h.profile, subintent)
	assert.ErrorIs(t, err, apperrors.ErrPrepareTransactionFailed)
	assert.Zero(t, h.gate.Calls())
}

func TestSignAuth(t *testing.T) {
	h := newHarness(t)
	intent := fixtures.NewTestAuthIntent(types.NetworkStokenet, "challenge")

	proofs, err := h.orchestrator.SignAuth(context.Background(), h.profile, intent,
		[]types.Address{h.persona.Address, h.dave.Address, h.persona.Address})
	require.NoError(t, err)
	require.Len(t, proofs, 2)

	assert.Equal(t, h.persona.Address, proofs[0].Entity)
	assert.Equal(t, h.dave.Address, proofs[1].Entity)
	for i, e := range []types.Entity{h.persona, h.dave} {
		assert.True(t, proofs[i].PublicKey.Equal(e.SecurityState.Unsecured.TransactionSigning.PublicKey))
		assert.True(t, crypto.Verify(proofs[i].PublicKey, intent.AuthHash().Hash(), proofs[i].Signature))
	}
	assert.Equal(t, []string{StatePerFactorSigning, StateAggregating, StateNotarized}, h.log.states())
}

func TestSignAuth_Errors(t *testing.T) {
	intent := fixtures.NewTestAuthIntent(types.NetworkStokenet, "challenge")

	t.Run("no addresses", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.orchestrator.SignAuth(context.Background(), h.profile, intent, nil)
		assert.ErrorIs(t, err, apperrors.ErrPrepareTransactionFailed)
	})

	t.Run("unknown address", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.orchestrator.SignAuth(context.Background(), h.profile, intent,
			[]types.Address{h.alice.Address, "account_tdx_2_1unknown"})
		assert.ErrorIs(t, err, apperrors.ErrUnknownEntity)
		assert.Zero(t, h.gate.Calls())
	})
}

func TestDeriveEntityInstances(t *testing.T) {
	h := newHarness(t)

	instances, err := h.orchestrator.DeriveEntityInstances(context.Background(), h.device.Source,
		types.NetworkStokenet, types.EntityKindAccount, 0, 2)
	require.NoError(t, err)
	require.Len(t, instances, 2)
	assert.Equal(t, h.alice.SecurityState.Unsecured.TransactionSigning, instances[0])
	assert.Equal(t, h.bob.SecurityState.Unsecured.TransactionSigning, instances[1])

	instances, err = h.orchestrator.DerivePublicKeys(context.Background(), h.hardware.Source,
		[]types.DerivationPath{crypto.EntityPath(types.NetworkStokenet, types.EntityKindAccount, 0)})
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.Equal(t, h.dave.SecurityState.Unsecured.TransactionSigning, instances[0])

	h.gate.Decline()
	_, err = h.orchestrator.DerivePublicKeys(context.Background(), h.device.Source,
		[]types.DerivationPath{crypto.EntityPath(types.NetworkStokenet, types.EntityKindAccount, 0)})
	assert.True(t, apperrors.IsSilent(err))
}

func TestSpotCheck(t *testing.T) {
	h := newHarness(t)

	for _, fs := range []*fixtures.TestFactorSource{h.device, h.hardware, h.offDevice} {
		t.Run(string(fs.Source.Kind()), func(t *testing.T) {
			ok, err := h.orchestrator.SpotCheck(context.Background(), fs.Source)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}

	t.Run("unregistered kind", func(t *testing.T) {
		o := New(keyexec.NewRegistry(), manifest.NewAnalyzer(), FixedEpoch(1))
		_, err := o.SpotCheck(context.Background(), h.device.Source)
		assert.ErrorIs(t, err, apperrors.ErrPrepareTransactionFailed)
	})
}
