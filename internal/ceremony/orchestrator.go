// Package ceremony runs signing ceremonies: it resolves the signers of a
// payload, collects one batch of signatures per factor source and assembles
// the notarized transaction, signed subintent or auth proofs.
package ceremony

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/better-wallet/better-signer/internal/crypto"
	"github.com/better-wallet/better-signer/internal/keyexec"
	"github.com/better-wallet/better-signer/internal/logger"
	"github.com/better-wallet/better-signer/internal/metrics"
	"github.com/better-wallet/better-signer/internal/notary"
	"github.com/better-wallet/better-signer/internal/signers"
	apperrors "github.com/better-wallet/better-signer/pkg/errors"
	"github.com/better-wallet/better-signer/pkg/types"
)

// AccessRegistry returns the access strategy of a factor source kind
type AccessRegistry interface {
	For(kind types.FactorSourceKind) (keyexec.FactorSourceAccess, error)
}

// Orchestrator runs ceremonies. It holds no per-ceremony state and is safe
// for concurrent use; each call is one ceremony.
type Orchestrator struct {
	registry    AccessRegistry
	analyzer    signers.ManifestAnalyzer
	epochs      EpochSource
	epochWindow uint64
	nonce       NonceSource
	metrics     *metrics.Metrics
	listener    StateListener
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithEpochWindow sets how many epochs a transaction stays valid for
func WithEpochWindow(window uint64) Option {
	return func(o *Orchestrator) {
		if window > 0 {
			o.epochWindow = window
		}
	}
}

// WithNonceSource replaces the random nonce generator
func WithNonceSource(nonce NonceSource) Option {
	return func(o *Orchestrator) { o.nonce = nonce }
}

// WithMetrics records ceremonies on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithStateListener reports every state change
func WithStateListener(listener StateListener) Option {
	return func(o *Orchestrator) { o.listener = listener }
}

// New creates an orchestrator
func New(registry AccessRegistry, analyzer signers.ManifestAnalyzer, epochs EpochSource, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:    registry,
		analyzer:    analyzer,
		epochs:      epochs,
		epochWindow: DefaultEpochWindow,
		nonce:       randomNonce,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// TransactionRequest describes the transaction to sign
type TransactionRequest struct {
	Manifest      types.Manifest
	Message       string
	TipPercentage uint16

	// NotaryKey is used instead of a freshly generated key when set
	NotaryKey ed25519.PrivateKey
}

type ceremony struct {
	id      string
	kind    types.PayloadKind
	start   time.Time
	machine *machine
}

func (o *Orchestrator) begin(ctx context.Context, kind types.PayloadKind) (context.Context, *ceremony) {
	c := &ceremony{id: uuid.NewString(), kind: kind, start: time.Now()}
	c.machine = newMachine(c.id, o.listener)
	ctx = logger.WithCeremonyID(ctx, c.id)
	logger.Info(ctx, "ceremony started", "kind", kind)
	return ctx, c
}

func (o *Orchestrator) finish(ctx context.Context, c *ceremony, err error) {
	elapsed := time.Since(c.start)
	switch {
	case err == nil:
		o.metrics.RecordCeremony(string(c.kind), metrics.OutcomeSuccess, "", elapsed)
		logger.Info(ctx, "ceremony completed", "kind", c.kind, "duration_ms", elapsed.Milliseconds())
	case apperrors.IsSilent(err):
		o.metrics.RecordCeremony(string(c.kind), metrics.OutcomeSilent, apperrors.KindOf(err), elapsed)
		logger.Info(ctx, "ceremony cancelled by user", "kind", c.kind)
	default:
		o.metrics.RecordCeremony(string(c.kind), metrics.OutcomeFailure, apperrors.KindOf(err), elapsed)
		logger.Error(ctx, "ceremony failed", "kind", c.kind, "code", apperrors.KindOf(err), "error", err)
	}
}

// SignTransaction resolves the signers of req.Manifest, builds and signs the
// intent and notarizes it
func (o *Orchestrator) SignTransaction(ctx context.Context, profile *signers.ProfileSnapshot, req TransactionRequest) (result *types.NotarizationResult, err error) {
	ctx, c := o.begin(ctx, types.PayloadTransaction)
	defer func() { o.finish(ctx, c, err) }()

	entities, err := signers.NewResolver(o.analyzer, profile).Resolve(ctx, req.Manifest)
	if err != nil {
		return nil, c.machine.fail(ctx, err)
	}
	notaryAndSigners, err := newNotary(entities, req.NotaryKey)
	if err != nil {
		return nil, c.machine.fail(ctx, err)
	}
	header, err := o.transactionHeader(ctx, profile.NetworkID(), notaryAndSigners, req.TipPercentage)
	if err != nil {
		return nil, c.machine.fail(ctx, err)
	}
	intent := types.TransactionIntent{Header: header, Manifest: req.Manifest, Message: req.Message}
	compiled, err := intent.Compile()
	if err != nil {
		return nil, c.machine.fail(ctx, err)
	}
	owned, err := signers.OwnedInstances(entities)
	if err != nil {
		return nil, c.machine.fail(ctx, err)
	}
	logger.Info(ctx, "transaction signers resolved",
		"intent_hash", compiled.IntentHash().String(),
		"signers", len(entities),
		"notary_is_signatory", notaryAndSigners.NotaryIsSignatory(),
	)

	signatures, err := o.collect(ctx, c, profile, compiled, owned)
	if err != nil {
		return nil, err
	}

	signed := types.SignedIntent{Intent: intent, IntentSignatures: intentSignatures(signatures)}
	if err := c.machine.advance(ctx, eventAggregated); err != nil {
		return nil, c.machine.fail(ctx, err)
	}

	notarized, bytes, err := notarize(c.machine, notaryAndSigners, signed)
	if err != nil {
		return nil, c.machine.fail(ctx, err)
	}
	if err := c.machine.advance(ctx, eventNotarized); err != nil {
		return nil, c.machine.fail(ctx, err)
	}

	return &types.NotarizationResult{
		IntentHash:           compiled.IntentHash(),
		EndEpoch:             header.EndEpochExclusive,
		NotarizedTransaction: notarized,
		Compiled:             bytes,
	}, nil
}

// SignSubintent signs a subintent with every entity its manifest requires.
// Subintents are not notarized.
func (o *Orchestrator) SignSubintent(ctx context.Context, profile *signers.ProfileSnapshot, subintent types.Subintent) (result *types.SignedSubintent, err error) {
	ctx, c := o.begin(ctx, types.PayloadSubintent)
	defer func() { o.finish(ctx, c, err) }()

	if subintent.Header.NetworkID != profile.NetworkID() {
		return nil, c.machine.fail(ctx, fmt.Errorf("subintent is for network %d, profile is on %d", subintent.Header.NetworkID, profile.NetworkID()))
	}
	entities, err := signers.NewResolver(o.analyzer, profile).Resolve(ctx, subintent.Manifest)
	if err != nil {
		return nil, c.machine.fail(ctx, err)
	}
	compiled, err := subintent.Compile()
	if err != nil {
		return nil, c.machine.fail(ctx, err)
	}
	owned, err := signers.OwnedInstances(entities)
	if err != nil {
		return nil, c.machine.fail(ctx, err)
	}

	signatures, err := o.collect(ctx, c, profile, compiled, owned)
	if err != nil {
		return nil, err
	}
	if err := c.machine.advance(ctx, eventFinalized); err != nil {
		return nil, c.machine.fail(ctx, err)
	}
	return &types.SignedSubintent{Subintent: subintent, Signatures: intentSignatures(signatures)}, nil
}

// SignAuth proves control of every address with a signature over the auth intent
func (o *Orchestrator) SignAuth(ctx context.Context, profile *signers.ProfileSnapshot, intent types.AuthIntent, addresses []types.Address) (proofs []types.AuthProof, err error) {
	ctx, c := o.begin(ctx, types.PayloadAuth)
	defer func() { o.finish(ctx, c, err) }()

	if len(addresses) == 0 {
		return nil, c.machine.fail(ctx, errors.New("auth requires at least one entity"))
	}
	entities, err := signers.NewResolver(o.analyzer, profile).ResolveAuth(ctx, addresses)
	if err != nil {
		return nil, c.machine.fail(ctx, err)
	}
	owned, err := signers.OwnedInstances(entities)
	if err != nil {
		return nil, c.machine.fail(ctx, err)
	}

	signatures, err := o.collect(ctx, c, profile, intent, owned)
	if err != nil {
		return nil, err
	}

	byOwner := make(map[types.Address]types.HDSignature, len(signatures))
	for _, sig := range signatures {
		byOwner[sig.Input.OwnedFactorInstance.Owner] = sig
	}
	proofs = make([]types.AuthProof, 0, len(owned))
	for _, instance := range owned {
		sig, ok := byOwner[instance.Owner]
		if !ok {
			return nil, c.machine.fail(ctx, fmt.Errorf("no auth signature for %s", instance.Owner))
		}
		proofs = append(proofs, types.AuthProof{
			Entity:    instance.Owner,
			PublicKey: sig.PublicKey(),
			Signature: sig.Signature.Signature,
		})
	}
	if err := c.machine.advance(ctx, eventFinalized); err != nil {
		return nil, c.machine.fail(ctx, err)
	}
	return proofs, nil
}

// collect runs the per factor signing and aggregating steps for one payload
func (o *Orchestrator) collect(ctx context.Context, c *ceremony, profile *signers.ProfileSnapshot, payload types.SignablePayload, owned []types.OwnedFactorInstance) ([]types.HDSignature, error) {
	if err := c.machine.advance(ctx, eventSignersResolved); err != nil {
		return nil, c.machine.fail(ctx, err)
	}

	inputs := groupByFactorSource([]types.TransactionSignRequestInput{{Payload: payload, OwnedFactorInstances: owned}})
	outcomes, err := o.signGroups(ctx, profile, inputs)
	if err != nil {
		return nil, c.machine.fail(ctx, err)
	}
	if err := c.machine.advance(ctx, eventSigned); err != nil {
		return nil, c.machine.fail(ctx, err)
	}

	signatures, err := aggregate(payload.PayloadID(), owned, outcomes)
	if err != nil {
		return nil, c.machine.fail(ctx, err)
	}
	return signatures, nil
}

func newNotary(entities []types.Entity, key ed25519.PrivateKey) (*notary.NotaryAndSigners, error) {
	if key != nil {
		return notary.New(entities, key)
	}
	return notary.Generate(entities)
}

// notarize signs the hash of the signed intent. It is only valid once the
// machine has reached notarizing.
func notarize(m *machine, n *notary.NotaryAndSigners, signed types.SignedIntent) (types.NotarizedTransaction, []byte, error) {
	if state := m.current(); state != StateNotarizing {
		return types.NotarizedTransaction{}, nil, fmt.Errorf("cannot notarize in state %s", state)
	}
	hash, err := signed.Hash()
	if err != nil {
		return types.NotarizedTransaction{}, nil, err
	}
	notarized := types.NotarizedTransaction{SignedIntent: signed, NotarySignature: n.SignWithNotary(hash)}
	bytes, err := notarized.Compile()
	if err != nil {
		return types.NotarizedTransaction{}, nil, err
	}
	return notarized, bytes, nil
}

// DerivePublicKeys derives one factor instance per path with fs
func (o *Orchestrator) DerivePublicKeys(ctx context.Context, fs types.FactorSource, paths []types.DerivationPath) ([]types.FactorInstance, error) {
	ctx = logger.WithFactorSource(ctx, fs.ID.String())
	access, err := o.registry.For(fs.Kind())
	if err != nil {
		return nil, err
	}
	instances, err := access.DerivePublicKeys(ctx, fs, paths)
	if err != nil {
		return nil, translateFailure(err, fs.ID)
	}
	logger.Debug(ctx, "derived public keys", "count", len(instances))
	return instances, nil
}

// DeriveEntityInstances derives the transaction signing instances for count
// new entities of kind, starting at index start
func (o *Orchestrator) DeriveEntityInstances(ctx context.Context, fs types.FactorSource, network types.NetworkID, kind types.EntityKind, start, count uint32) ([]types.FactorInstance, error) {
	paths := make([]types.DerivationPath, 0, count)
	for i := uint32(0); i < count; i++ {
		paths = append(paths, crypto.EntityPath(network, kind, start+i))
	}
	return o.DerivePublicKeys(ctx, fs, paths)
}

// SpotCheck confirms fs is reachable and still yields its registered id
func (o *Orchestrator) SpotCheck(ctx context.Context, fs types.FactorSource) (bool, error) {
	ctx = logger.WithFactorSource(ctx, fs.ID.String())
	access, err := o.registry.For(fs.Kind())
	if err != nil {
		return false, err
	}
	ok, err := access.SpotCheck(ctx, fs)
	if err != nil {
		return false, translateFailure(err, fs.ID)
	}
	logger.Info(ctx, "spot check finished", "matches", ok)
	return ok, nil
}
