package keyexec

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/better-wallet/better-signer/internal/crypto"
	"github.com/better-wallet/better-signer/internal/ledger"
	"github.com/better-wallet/better-signer/internal/logger"
	apperrors "github.com/better-wallet/better-signer/pkg/errors"
	"github.com/better-wallet/better-signer/pkg/types"
)

// LedgerExecutor signs on a hardware device. Each operation is one request
// per payload carrying a fresh interaction id; the device returns only public
// keys and signatures, so results are matched back by public key.
type LedgerExecutor struct {
	transport LedgerTransport
	recorder  LastUsedRecorder
	newID     func() string
}

// NewLedgerExecutor creates a hardware device executor
func NewLedgerExecutor(transport LedgerTransport, recorder LastUsedRecorder) *LedgerExecutor {
	return &LedgerExecutor{
		transport: transport,
		recorder:  recorder,
		newID:     uuid.NewString,
	}
}

// DerivePublicKeys asks the device for the public key at every path
func (l *LedgerExecutor) DerivePublicKeys(ctx context.Context, fs types.FactorSource, paths []types.DerivationPath) ([]types.FactorInstance, error) {
	keys := make([]ledger.KeyParameters, 0, len(paths))
	curves := make(map[string]types.Curve, len(paths))
	for _, path := range paths {
		curve, err := crypto.CurveForPath(path)
		if err != nil {
			return nil, apperrors.PrepareTransactionFailed(err)
		}
		keys = append(keys, ledger.KeyParameters{Curve: curve.String(), DerivationPath: string(path)})
		curves[string(path)] = curve
	}

	resp, err := l.exchange(ctx, fs, &ledger.Request{Operation: ledger.OpDerivePublicKeys, Keys: keys}, true)
	if err != nil {
		return nil, err
	}

	byPath := make(map[string]types.PublicKey, len(resp.PublicKeys))
	for _, k := range resp.PublicKeys {
		curve, ok := curves[k.DerivationPath]
		if !ok {
			continue
		}
		pub, err := types.PublicKeyFromHex(curve, k.PublicKeyHex)
		if err != nil {
			return nil, apperrors.HardwareCommunicationFailed(err.Error()).WithFactorSource(fs.ID)
		}
		byPath[k.DerivationPath] = pub
	}

	instances := make([]types.FactorInstance, 0, len(paths))
	for _, path := range paths {
		pub, ok := byPath[string(path)]
		if !ok {
			return nil, apperrors.HardwareCommunicationFailed(fmt.Sprintf("device returned no key for %s", path)).WithFactorSource(fs.ID)
		}
		instances = append(instances, types.FactorInstance{FactorSourceID: fs.ID, PublicKey: pub, DerivationPath: path})
	}
	recordUsage(ctx, l.recorder, fs.ID)
	return instances, nil
}

// SignMono sends one sign request per payload and verifies every returned signature
func (l *LedgerExecutor) SignMono(ctx context.Context, fs types.FactorSource, input types.PerFactorSourceInput) (*types.PerFactorOutcome, error) {
	signatures := make([]types.HDSignature, 0, input.ExpectedSignatures())
	for _, tx := range input.PerTransaction {
		req, err := shapeSignRequest(tx.Payload)
		if err != nil {
			return nil, err
		}
		for _, owned := range tx.OwnedFactorInstances {
			instance := owned.FactorInstance
			if !instance.FactorSourceID.SameSeed(input.FactorSourceID) {
				return nil, apperrors.PrepareTransactionFailed(fmt.Errorf(
					"instance of %s owned by %s routed to factor source %s",
					instance.FactorSourceID, owned.Owner, input.FactorSourceID))
			}
			req.Keys = append(req.Keys, ledger.KeyParameters{
				Curve:          instance.PublicKey.Curve.String(),
				DerivationPath: string(instance.DerivationPath),
			})
		}

		resp, err := l.exchange(ctx, fs, req, true)
		if err != nil {
			return nil, err
		}

		matched, err := matchSignatures(tx.Payload.PayloadID(), tx.OwnedFactorInstances, resp.Signatures)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrHardwareCommunicationFailed, err).WithFactorSource(fs.ID)
		}
		signatures = append(signatures, matched...)
	}

	recordUsage(ctx, l.recorder, fs.ID)
	return types.SignedOutcome(fs.ID, signatures), nil
}

// SpotCheck compares the connected device's id to the registered one
func (l *LedgerExecutor) SpotCheck(ctx context.Context, fs types.FactorSource) (bool, error) {
	resp, err := l.exchange(ctx, fs, &ledger.Request{Operation: ledger.OpGetDeviceInfo}, false)
	if err != nil {
		return false, err
	}
	if resp.DeviceInfo == nil {
		return false, apperrors.HardwareCommunicationFailed("device info missing from response").WithFactorSource(fs.ID)
	}
	if !strings.EqualFold(resp.DeviceInfo.ID, fs.ID.Body.Hex()) {
		logger.Warn(ctx, "connected device does not match factor source", "device_id", resp.DeviceInfo.ID)
		return false, nil
	}
	recordUsage(ctx, l.recorder, fs.ID)
	return true, nil
}

// DeviceInfo asks whichever device is connected for its id and model, used
// when registering a new hardware factor source
func (l *LedgerExecutor) DeviceInfo(ctx context.Context) (types.FactorSource, error) {
	req := &ledger.Request{InteractionID: l.newID(), Operation: ledger.OpGetDeviceInfo}
	resp, err := l.transport.Exchange(ctx, req)
	if err != nil {
		return types.FactorSource{}, apperrors.Wrap(apperrors.ErrHardwareCommunicationFailed, err)
	}
	if !resp.Success || resp.DeviceInfo == nil {
		return types.FactorSource{}, apperrors.HardwareCommunicationFailed("device info unavailable")
	}
	body, err := types.HashFromHex(resp.DeviceInfo.ID)
	if err != nil {
		return types.FactorSource{}, apperrors.HardwareCommunicationFailed(fmt.Sprintf("malformed device id: %v", err))
	}
	return types.FactorSource{
		ID:   types.FactorSourceID{Kind: types.FactorSourceLedger, Body: body},
		Hint: types.FactorSourceHint{Model: resp.DeviceInfo.Model},
	}, nil
}

func (l *LedgerExecutor) exchange(ctx context.Context, fs types.FactorSource, req *ledger.Request, addressed bool) (*ledger.Response, error) {
	req.InteractionID = l.newID()
	if addressed {
		req.Device = &ledger.Device{ID: fs.ID.Body.Hex(), Model: fs.Hint.Model, Label: fs.Hint.Label}
	}

	logger.Debug(ctx, "sending device request", "interaction_id", req.InteractionID, "operation", req.Operation, "transport", l.transport.Name())
	resp, err := l.transport.Exchange(ctx, req)
	if err != nil {
		if cancelledByUser(ctx) {
			return nil, apperrors.Wrap(apperrors.ErrRejectedByUser, err).WithFactorSource(fs.ID)
		}
		return nil, apperrors.Wrap(apperrors.ErrHardwareCommunicationFailed, err).WithFactorSource(fs.ID)
	}
	if resp.InteractionID != req.InteractionID {
		return nil, apperrors.HardwareCommunicationFailed(
			fmt.Sprintf("response for interaction %s, expected %s", resp.InteractionID, req.InteractionID)).WithFactorSource(fs.ID)
	}
	if !resp.Success {
		if resp.Error != nil && resp.Error.Code == ledger.ErrCodeRejectedByUser {
			return nil, apperrors.Wrap(apperrors.ErrRejectedByUser, resp.Error).WithFactorSource(fs.ID)
		}
		detail := "device reported failure"
		if resp.Error != nil {
			detail = resp.Error.Error()
		}
		return nil, apperrors.HardwareCommunicationFailed(detail).WithFactorSource(fs.ID)
	}
	return resp, nil
}

// shapeSignRequest builds the payload part of a sign request
func shapeSignRequest(payload types.SignablePayload) (*ledger.Request, error) {
	switch p := payload.(type) {
	case types.CompiledTransactionIntent:
		return &ledger.Request{
			Operation:         ledger.OpSignTransaction,
			CompiledIntentHex: hex.EncodeToString(p.Bytes),
			DisplayHash:       true,
		}, nil
	case types.CompiledSubintent:
		return &ledger.Request{
			Operation:        ledger.OpSignSubintentHash,
			SubintentHashHex: p.SubintentHash().Hash().Hex(),
		}, nil
	case types.AuthIntent:
		return &ledger.Request{
			Operation:             ledger.OpSignAuth,
			ChallengeHex:          p.Challenge.Hex(),
			Origin:                p.Origin,
			DappDefinitionAddress: string(p.DappDefinitionAddress),
		}, nil
	default:
		return nil, apperrors.PrepareTransactionFailed(fmt.Errorf("unsupported payload type %T", payload))
	}
}

// matchSignatures pairs every requested instance with a verified signature
// carrying its public key. A requested key without a match fails the whole
// payload; several matches for one key collapse to the first valid one;
// signatures for keys nobody asked for are dropped.
func matchSignatures(payloadID types.PayloadID, owned []types.OwnedFactorInstance, returned []ledger.SignatureOfSigner) ([]types.HDSignature, error) {
	byKey := make(map[string][]ledger.SignatureOfSigner, len(returned))
	for _, s := range returned {
		k := strings.ToLower(s.PublicKeyHex)
		byKey[k] = append(byKey[k], s)
	}

	hash := payloadID.Hash()
	out := make([]types.HDSignature, 0, len(owned))
	used := 0
	for _, o := range owned {
		pub := o.FactorInstance.PublicKey
		candidates := byKey[pub.Hex()]
		if len(candidates) == 0 {
			return nil, fmt.Errorf("no signature for public key %s of %s", pub.Hex(), o.Owner)
		}

		var accepted *types.Signature
		for _, c := range candidates {
			b, err := hex.DecodeString(c.SignatureHex)
			if err != nil {
				continue
			}
			sig := types.Signature{Curve: pub.Curve, Bytes: b}
			if crypto.Verify(pub, hash, sig) {
				accepted = &sig
				break
			}
		}
		if accepted == nil {
			return nil, fmt.Errorf("no valid signature for public key %s of %s", pub.Hex(), o.Owner)
		}
		used++

		out = append(out, types.HDSignature{
			Input:     types.HDSignatureInput{PayloadID: payloadID, OwnedFactorInstance: o},
			Signature: types.SignatureWithPublicKey{Signature: *accepted, PublicKey: pub},
		})
	}

	if extra := len(returned) - used; extra > 0 {
		logger.Debug(context.Background(), "discarded unmatched device signatures", "payload", payloadID.String(), "count", extra)
	}
	return out, nil
}
