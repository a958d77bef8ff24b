// Package fixtures provides test data factories for creating test objects.
package fixtures

import (
	"fmt"
	"strings"
	"time"

	"github.com/better-wallet/better-signer/internal/crypto"
	"github.com/better-wallet/better-signer/pkg/types"
)

// =============================================================================
// MNEMONIC FIXTURES
// =============================================================================

// Well-known BIP39 test vectors. Each yields a distinct factor source id.
const (
	MnemonicAbandon = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	MnemonicZoo     = "zoo zoo zoo zoo zoo zoo zoo zoo zoo zoo zoo wrong"
	MnemonicLegal   = "legal winner thank year wave sausage worth useful legal winner thank yellow"
	MnemonicLetter  = "letter advice cage absurd amount doctor acoustic avoid letter advice cage above"
)

// Mnemonic parses one of the fixture phrases. It panics on invalid input.
func Mnemonic(phrase string) crypto.MnemonicWithPassphrase {
	m, err := crypto.NewMnemonicWithPassphrase(strings.Fields(phrase), "")
	if err != nil {
		panic(fmt.Sprintf("fixtures: invalid mnemonic %q: %v", phrase, err))
	}
	return m
}

// =============================================================================
// FACTOR SOURCE FIXTURES
// =============================================================================

// TestFactorSource is a factor source together with the mnemonic behind it.
type TestFactorSource struct {
	Source   types.FactorSource
	Mnemonic crypto.MnemonicWithPassphrase
}

// NewTestFactorSource creates a factor source of the given kind from a fixture phrase.
func NewTestFactorSource(kind types.FactorSourceKind, phrase string) *TestFactorSource {
	m := Mnemonic(phrase)
	id, err := m.FactorSourceID(kind)
	if err != nil {
		panic(fmt.Sprintf("fixtures: factor source id: %v", err))
	}

	hint := types.FactorSourceHint{Label: fmt.Sprintf("test-%s", kind)}
	switch kind {
	case types.FactorSourceLedger:
		hint.Model = types.LedgerModelNanoSPlus
	case types.FactorSourceOffDeviceMnemonic:
		hint.WordCount = m.WordCount()
	}

	return &TestFactorSource{
		Source: types.FactorSource{
			ID:      id,
			Hint:    hint,
			AddedOn: time.Now().Add(-24 * time.Hour),
		},
		Mnemonic: m,
	}
}

// ID returns the factor source id.
func (f *TestFactorSource) ID() types.FactorSourceID {
	return f.Source.ID
}

// Instance derives the factor instance at path. The curve follows the path shape.
func (f *TestFactorSource) Instance(path types.DerivationPath) types.FactorInstance {
	curve, err := crypto.CurveForPath(path)
	if err != nil {
		panic(fmt.Sprintf("fixtures: %v", err))
	}
	seed, err := f.Mnemonic.ToSeed()
	if err != nil {
		panic(fmt.Sprintf("fixtures: seed: %v", err))
	}
	defer seed.Destroy()

	pub, err := seed.DerivePublicKey(curve, path)
	if err != nil {
		panic(fmt.Sprintf("fixtures: derive %s: %v", path, err))
	}
	return types.FactorInstance{FactorSourceID: f.Source.ID, PublicKey: pub, DerivationPath: path}
}

// =============================================================================
// ENTITY FIXTURES
// =============================================================================

// NewTestEntity creates an unsecured entity controlled by fs at the standard
// entity path for index.
func NewTestEntity(fs *TestFactorSource, kind types.EntityKind, network types.NetworkID, index uint32) types.Entity {
	instance := fs.Instance(crypto.EntityPath(network, kind, index))
	return types.Entity{
		Address:     NewTestAddress(kind, network, instance.PublicKey),
		Kind:        kind,
		NetworkID:   network,
		DisplayName: fmt.Sprintf("%s %d", kind, index),
		SecurityState: types.SecurityState{
			Unsecured: &types.UnsecuredEntityControl{TransactionSigning: instance},
		},
	}
}

// NewTestAccount creates a stokenet account controlled by fs.
func NewTestAccount(fs *TestFactorSource, index uint32) types.Entity {
	return NewTestEntity(fs, types.EntityKindAccount, types.NetworkStokenet, index)
}

// NewTestPersona creates a stokenet persona controlled by fs.
func NewTestPersona(fs *TestFactorSource, index uint32) types.Entity {
	return NewTestEntity(fs, types.EntityKindPersona, types.NetworkStokenet, index)
}

// NewTestAddress builds a deterministic address for a public key.
func NewTestAddress(kind types.EntityKind, network types.NetworkID, pub types.PublicKey) types.Address {
	prefix := "account_"
	if kind == types.EntityKindPersona {
		prefix = "identity_"
	}
	body := types.Blake2b256(pub.Bytes).Hex()[:54]
	return types.Address(prefix + network.HRPSuffix() + "1" + body)
}

// NewDappAddress builds a dApp definition address.
func NewDappAddress(network types.NetworkID) types.Address {
	return types.Address("account_" + network.HRPSuffix() + "1" + strings.Repeat("d", 54))
}

// =============================================================================
// MANIFEST FIXTURES
// =============================================================================

// MethodCall is one CALL_METHOD instruction.
type MethodCall struct {
	Address types.Address
	Method  string
	Args    []string
}

// NewTestManifest renders method calls as manifest instructions.
func NewTestManifest(calls ...MethodCall) types.Manifest {
	var b strings.Builder
	for _, c := range calls {
		fmt.Fprintf(&b, "CALL_METHOD\n    Address(\"%s\")\n    \"%s\"\n", c.Address, c.Method)
		for _, a := range c.Args {
			fmt.Fprintf(&b, "    %s\n", a)
		}
		b.WriteString(";\n")
	}
	return types.Manifest{Instructions: b.String()}
}

// TransferManifest withdraws from every sender and deposits into recipient.
func TransferManifest(recipient types.Address, senders ...types.Address) types.Manifest {
	calls := make([]MethodCall, 0, len(senders)+1)
	for _, s := range senders {
		calls = append(calls, MethodCall{Address: s, Method: "withdraw", Args: []string{`Address("resource_tdx_2_1xrd")`, `Decimal("10")`}})
	}
	calls = append(calls, MethodCall{Address: recipient, Method: "try_deposit_batch_or_abort", Args: []string{`Expression("ENTIRE_WORKTOP")`, `None`}})
	return NewTestManifest(calls...)
}

// FaucetManifest needs no entity authorization; the fee is locked by the faucet component.
func FaucetManifest(recipient types.Address) types.Manifest {
	return NewTestManifest(
		MethodCall{Address: "component_tdx_2_1faucet", Method: "lock_fee", Args: []string{`Decimal("5")`}},
		MethodCall{Address: "component_tdx_2_1faucet", Method: "free"},
		MethodCall{Address: recipient, Method: "try_deposit_batch_or_abort", Args: []string{`Expression("ENTIRE_WORKTOP")`, `None`}},
	)
}

// =============================================================================
// PAYLOAD FIXTURES
// =============================================================================

// NewTestTransactionIntent builds an intent with a fixed header.
func NewTestTransactionIntent(network types.NetworkID, manifest types.Manifest) types.TransactionIntent {
	return types.TransactionIntent{
		Header: types.TransactionHeader{
			NetworkID:           network,
			StartEpochInclusive: 1000,
			EndEpochExclusive:   1010,
			Nonce:               42,
			NotaryPublicKey:     types.PublicKey{Curve: types.CurveCurve25519, Bytes: make([]byte, 32)},
		},
		Manifest: manifest,
		Message:  "fixture",
	}
}

// NewTestCompiledIntent compiles a fixture intent. It panics on failure.
func NewTestCompiledIntent(network types.NetworkID, manifest types.Manifest) types.CompiledTransactionIntent {
	compiled, err := NewTestTransactionIntent(network, manifest).Compile()
	if err != nil {
		panic(fmt.Sprintf("fixtures: %v", err))
	}
	return compiled
}

// NewTestSubintent builds a subintent with a fixed header.
func NewTestSubintent(network types.NetworkID, manifest types.Manifest) types.Subintent {
	return types.Subintent{
		Header: types.SubintentHeader{
			NetworkID:           network,
			StartEpochInclusive: 1000,
			EndEpochExclusive:   1010,
			Nonce:               7,
		},
		Manifest: manifest,
	}
}

// NewTestAuthIntent builds a login challenge from a fixed seed string.
func NewTestAuthIntent(network types.NetworkID, seed string) types.AuthIntent {
	return types.AuthIntent{
		Challenge:             types.Blake2b256([]byte(seed)),
		Origin:                "https://dashboard.example.com",
		DappDefinitionAddress: NewDappAddress(network),
	}
}

// Owned tags the transaction signing instance of each entity with its address.
func Owned(entities ...types.Entity) []types.OwnedFactorInstance {
	out := make([]types.OwnedFactorInstance, 0, len(entities))
	for _, e := range entities {
		instance, ok := e.TransactionSigningInstance()
		if !ok {
			panic(fmt.Sprintf("fixtures: %s has no transaction signing instance", e.Address))
		}
		out = append(out, types.OwnedFactorInstance{Owner: e.Address, FactorInstance: instance})
	}
	return out
}

// NewSignInput builds a single-payload batch for one factor source.
func NewSignInput(id types.FactorSourceID, payload types.SignablePayload, owned ...types.OwnedFactorInstance) types.PerFactorSourceInput {
	return types.PerFactorSourceInput{
		FactorSourceID: id,
		PerTransaction: []types.TransactionSignRequestInput{
			{Payload: payload, OwnedFactorInstances: owned},
		},
		InvalidTransactionsIfNeglected: []types.PayloadID{payload.PayloadID()},
	}
}
