package keyexec_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/better-wallet/better-signer/internal/keyexec"
	apperrors "github.com/better-wallet/better-signer/pkg/errors"
	"github.com/better-wallet/better-signer/pkg/types"
	"github.com/better-wallet/better-signer/tests/fixtures"
	"github.com/better-wallet/better-signer/tests/mocks"
)

func TestValidateSeedPhrase(t *testing.T) {
	fs := fixtures.NewTestFactorSource(types.FactorSourceOffDeviceMnemonic, fixtures.MnemonicLegal)

	tests := []struct {
		name       string
		words      string
		passphrase string
		want       keyexec.SeedPhraseValidity
		wantErr    *apperrors.AppError
	}{
		{"exact match", fixtures.MnemonicLegal, "", keyexec.SeedPhraseValid, nil},
		{"exact match with spacing and case", "  LEGAL winner thank year wave sausage worth useful legal winner thank yellow ", "", keyexec.SeedPhraseValid, nil},
		{"bad checksum", "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon", "", keyexec.SeedPhraseInvalidMnemonic, apperrors.ErrInvalidMnemonic},
		{"word not in list", "legal winner thank year wave sausage worth useful legal winner thank yellw", "", keyexec.SeedPhraseInvalidMnemonic, apperrors.ErrInvalidMnemonic},
		{"valid but another seed", fixtures.MnemonicZoo, "", keyexec.SeedPhraseDoesNotDeriveFactorSourceID, apperrors.ErrMnemonicMismatch},
		{"right words wrong passphrase", fixtures.MnemonicLegal, "extra", keyexec.SeedPhraseDoesNotDeriveFactorSourceID, apperrors.ErrMnemonicMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, got := keyexec.ValidateSeedPhrase(fs.ID(), strings.Fields(tt.words), tt.passphrase)
			assert.Equal(t, tt.want, got)
			if tt.wantErr == nil {
				assert.NoError(t, got.Err())
			} else {
				assert.ErrorIs(t, got.Err(), tt.wantErr)
			}
		})
	}
}

type offDeviceSetup struct {
	fs       *fixtures.TestFactorSource
	prompter *mocks.MockSeedPhrasePrompter
	recorder *mocks.MockLastUsedRecorder
	executor *keyexec.OffDeviceExecutor
}

func newOffDeviceSetup(t *testing.T) *offDeviceSetup {
	t.Helper()
	prompter := mocks.NewMockSeedPhrasePrompter()
	recorder := mocks.NewMockLastUsedRecorder()
	return &offDeviceSetup{
		fs:       fixtures.NewTestFactorSource(types.FactorSourceOffDeviceMnemonic, fixtures.MnemonicLegal),
		prompter: prompter,
		recorder: recorder,
		executor: keyexec.NewOffDeviceExecutor(prompter, recorder),
	}
}

func TestOffDeviceExecutor_OnlyValidUnlocksSigning(t *testing.T) {
	s := newOffDeviceSetup(t)
	account := fixtures.NewTestAccount(s.fs, 0)

	answers := make(chan keyexec.SeedPhraseValidity, 3)
	s.prompter.OnRequest = func(fs types.FactorSource) {
		go func() {
			for _, attempt := range []string{
				"abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon",
				fixtures.MnemonicZoo,
				fixtures.MnemonicLegal,
			} {
				answers <- s.executor.OnSeedPhraseConfirmed(fs.ID, strings.Fields(attempt), "")
			}
		}()
	}

	outcome, err := s.executor.SignMono(context.Background(), s.fs.Source,
		fixtures.NewSignInput(s.fs.ID(), transferPayload(account), fixtures.Owned(account)...))
	require.NoError(t, err)
	assert.Len(t, outcome.Outcome.Signed, 1)
	assert.Equal(t, 1, s.recorder.Calls(s.fs.ID()))

	want := []keyexec.SeedPhraseValidity{
		keyexec.SeedPhraseInvalidMnemonic,
		keyexec.SeedPhraseDoesNotDeriveFactorSourceID,
		keyexec.SeedPhraseValid,
	}
	for _, w := range want {
		select {
		case got := <-answers:
			assert.Equal(t, w, got)
		case <-time.After(time.Second):
			t.Fatal("missing seed phrase answer")
		}
	}
	assert.False(t, s.executor.Pending(s.fs.ID()))
}

func TestOffDeviceExecutor_WaitsForConfirmation(t *testing.T) {
	s := newOffDeviceSetup(t)
	account := fixtures.NewTestAccount(s.fs, 0)

	done := make(chan error, 1)
	go func() {
		_, err := s.executor.SignMono(context.Background(), s.fs.Source,
			fixtures.NewSignInput(s.fs.ID(), transferPayload(account), fixtures.Owned(account)...))
		done <- err
	}()

	require.Eventually(t, func() bool { return s.executor.Pending(s.fs.ID()) }, time.Second, 5*time.Millisecond)
	select {
	case <-done:
		t.Fatal("signing must wait for the seed phrase")
	default:
	}
	assert.Equal(t, []types.FactorSourceID{s.fs.ID()}, s.prompter.Prompted())

	assert.Equal(t, keyexec.SeedPhraseValid, s.executor.OnSeedPhraseConfirmed(s.fs.ID(), strings.Fields(fixtures.MnemonicLegal), ""))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("signing did not resume")
	}
}

func TestOffDeviceExecutor_Cancelled(t *testing.T) {
	t.Run("user cancels", func(t *testing.T) {
		s := newOffDeviceSetup(t)
		s.prompter.OnRequest = func(fs types.FactorSource) {
			s.executor.OnSeedPhraseCancelled(fs.ID)
		}

		ok, err := s.executor.SpotCheck(context.Background(), s.fs.Source)
		assert.False(t, ok)
		assert.ErrorIs(t, err, apperrors.ErrRejectedByUser)
		assert.True(t, apperrors.IsSilent(err))
	})

	t.Run("caller cancels", func(t *testing.T) {
		s := newOffDeviceSetup(t)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		s.prompter.OnRequest = func(types.FactorSource) { cancel() }

		_, err := s.executor.DerivePublicKeys(ctx, s.fs.Source, []types.DerivationPath{"m/44H/1022H/2H/525H/1460H/0H"})
		assert.ErrorIs(t, err, apperrors.ErrRejectedByUser)
		assert.False(t, s.executor.Pending(s.fs.ID()))
	})

	t.Run("deadline passes", func(t *testing.T) {
		s := newOffDeviceSetup(t)
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := s.executor.DerivePublicKeys(ctx, s.fs.Source, []types.DerivationPath{"m/44H/1022H/2H/525H/1460H/0H"})
		assert.ErrorIs(t, err, apperrors.ErrPrepareTransactionFailed)
		assert.False(t, apperrors.IsSilent(err))
		assert.False(t, s.executor.Pending(s.fs.ID()))
	})
}

func TestOffDeviceExecutor_ConfirmWithoutWaiter(t *testing.T) {
	s := newOffDeviceSetup(t)
	// Nothing is waiting; a valid answer is still reported as valid and dropped
	assert.Equal(t, keyexec.SeedPhraseValid, s.executor.OnSeedPhraseConfirmed(s.fs.ID(), strings.Fields(fixtures.MnemonicLegal), ""))
	s.executor.OnSeedPhraseCancelled(s.fs.ID())
	assert.False(t, s.executor.Pending(s.fs.ID()))
}

func TestOffDeviceExecutor_SecondWaiterRejected(t *testing.T) {
	s := newOffDeviceSetup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go s.executor.SpotCheck(ctx, s.fs.Source)
	require.Eventually(t, func() bool { return s.executor.Pending(s.fs.ID()) }, time.Second, 5*time.Millisecond)

	_, err := s.executor.SpotCheck(context.Background(), s.fs.Source)
	assert.ErrorIs(t, err, apperrors.ErrPrepareTransactionFailed)
}

func TestOffDeviceExecutor_DerivePublicKeys(t *testing.T) {
	s := newOffDeviceSetup(t)
	s.prompter.OnRequest = func(fs types.FactorSource) {
		s.executor.OnSeedPhraseConfirmed(fs.ID, strings.Fields(fixtures.MnemonicLegal), "")
	}
	path := types.DerivationPath("m/44H/1022H/2H/618H/1460H/4H")

	instances, err := s.executor.DerivePublicKeys(context.Background(), s.fs.Source, []types.DerivationPath{path})
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.Equal(t, s.fs.Instance(path), instances[0])
	assert.Equal(t, 1, s.recorder.Calls(s.fs.ID()))
}

func TestRegistry(t *testing.T) {
	registry := keyexec.NewRegistry()
	device := keyexec.NewDeviceExecutor(mocks.NewMockMnemonicStore(), mocks.NewMockAccessGate(), nil)
	registry.Register(types.FactorSourceDevice, device)

	got, err := registry.For(types.FactorSourceDevice)
	require.NoError(t, err)
	assert.Same(t, device, got)

	_, err = registry.For(types.FactorSourceLedger)
	assert.ErrorIs(t, err, apperrors.ErrPrepareTransactionFailed)
}
