package ledger

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/better-wallet/better-signer/internal/crypto"
	"github.com/better-wallet/better-signer/pkg/types"
)

// Simulator is a software stand-in for a hardware signing device
type Simulator struct {
	seed     *crypto.Seed
	deviceID string
	model    types.LedgerModel

	// Approve decides whether the user confirms a sign request on the device.
	// Nil approves everything.
	Approve func(req *Request) bool

	// Delay is how long the simulated user takes to confirm
	Delay time.Duration

	// Tamper, when set, may rewrite every successful response before it is returned
	Tamper func(resp *Response)
}

// NewSimulator builds a simulator holding the given mnemonic
func NewSimulator(m crypto.MnemonicWithPassphrase, model types.LedgerModel) (*Simulator, error) {
	seed, err := m.ToSeed()
	if err != nil {
		return nil, err
	}
	id, err := seed.FactorSourceID(types.FactorSourceLedger)
	if err != nil {
		seed.Destroy()
		return nil, err
	}
	return &Simulator{seed: seed, deviceID: id.Body.Hex(), model: model}, nil
}

// FactorSourceID is the id the device registers as
func (s *Simulator) FactorSourceID() types.FactorSourceID {
	body, _ := types.HashFromHex(s.deviceID)
	return types.FactorSourceID{Kind: types.FactorSourceLedger, Body: body}
}

// Close wipes the simulated seed
func (s *Simulator) Close() {
	s.seed.Destroy()
}

// Handle answers one request
func (s *Simulator) Handle(ctx context.Context, req *Request) *Response {
	if req.Device != nil && req.Device.ID != s.deviceID {
		return Failure(req.InteractionID, ErrCodeWrongDevice, "connected device does not match")
	}

	switch req.Operation {
	case OpGetDeviceInfo:
		return &Response{
			InteractionID: req.InteractionID,
			Success:       true,
			DeviceInfo:    &DeviceInfo{ID: s.deviceID, Model: s.model},
		}
	case OpDerivePublicKeys:
		keys := make([]DerivedKey, 0, len(req.Keys))
		for _, k := range req.Keys {
			dk, err := s.derive(k)
			if err != nil {
				return Failure(req.InteractionID, ErrCodeBadRequest, err.Error())
			}
			keys = append(keys, dk)
		}
		return s.finish(&Response{InteractionID: req.InteractionID, Success: true, PublicKeys: keys})
	case OpSignTransaction, OpSignSubintentHash, OpSignAuth:
		hash, err := payloadHash(req)
		if err != nil {
			return Failure(req.InteractionID, ErrCodeBadRequest, err.Error())
		}
		if rejected := s.confirm(ctx, req); rejected != nil {
			return rejected
		}
		sigs := make([]SignatureOfSigner, 0, len(req.Keys))
		for _, k := range req.Keys {
			sig, err := s.sign(k, hash)
			if err != nil {
				return Failure(req.InteractionID, ErrCodeBadRequest, err.Error())
			}
			sigs = append(sigs, sig)
		}
		return s.finish(&Response{InteractionID: req.InteractionID, Success: true, Signatures: sigs})
	default:
		return Failure(req.InteractionID, ErrCodeBadRequest, fmt.Sprintf("unsupported operation: %s", req.Operation))
	}
}

func (s *Simulator) confirm(ctx context.Context, req *Request) *Response {
	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return Failure(req.InteractionID, ErrCodeCancelled, "request cancelled")
		}
	}
	if s.Approve != nil && !s.Approve(req) {
		return Failure(req.InteractionID, ErrCodeRejectedByUser, "user rejected on device")
	}
	return nil
}

func (s *Simulator) finish(resp *Response) *Response {
	if s.Tamper != nil {
		s.Tamper(resp)
	}
	return resp
}

func (s *Simulator) derive(k KeyParameters) (DerivedKey, error) {
	curve, err := types.ParseCurve(k.Curve)
	if err != nil {
		return DerivedKey{}, err
	}
	pub, err := s.seed.DerivePublicKey(curve, types.DerivationPath(k.DerivationPath))
	if err != nil {
		return DerivedKey{}, err
	}
	return DerivedKey{Curve: k.Curve, DerivationPath: k.DerivationPath, PublicKeyHex: pub.Hex()}, nil
}

func (s *Simulator) sign(k KeyParameters, hash types.Hash) (SignatureOfSigner, error) {
	curve, err := types.ParseCurve(k.Curve)
	if err != nil {
		return SignatureOfSigner{}, err
	}
	sig, err := s.seed.Sign(curve, types.DerivationPath(k.DerivationPath), hash)
	if err != nil {
		return SignatureOfSigner{}, err
	}
	return SignatureOfSigner{
		DerivedKey:   DerivedKey{Curve: k.Curve, DerivationPath: k.DerivationPath, PublicKeyHex: sig.PublicKey.Hex()},
		SignatureHex: sig.Signature.Hex(),
	}, nil
}

// payloadHash recomputes the hash the device displays and signs
func payloadHash(req *Request) (types.Hash, error) {
	switch req.Operation {
	case OpSignTransaction:
		b, err := hex.DecodeString(req.CompiledIntentHex)
		if err != nil {
			return types.Hash{}, fmt.Errorf("invalid compiled intent: %w", err)
		}
		compiled := types.CompiledTransactionIntent{Bytes: b}
		if _, err := compiled.Decompile(); err != nil {
			return types.Hash{}, err
		}
		return compiled.IntentHash().Hash(), nil
	case OpSignSubintentHash:
		return types.HashFromHex(req.SubintentHashHex)
	case OpSignAuth:
		challenge, err := types.HashFromHex(req.ChallengeHex)
		if err != nil {
			return types.Hash{}, fmt.Errorf("invalid challenge: %w", err)
		}
		auth := types.AuthIntent{
			Challenge:             challenge,
			Origin:                req.Origin,
			DappDefinitionAddress: types.Address(req.DappDefinitionAddress),
		}
		return auth.AuthHash().Hash(), nil
	default:
		return types.Hash{}, fmt.Errorf("operation %s has no payload", req.Operation)
	}
}
