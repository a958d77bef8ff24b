// Package ledger defines the request/response messages exchanged with a
// hardware signing device bridge, their length-prefixed framing, and a
// software simulator of the device.
package ledger

import "github.com/better-wallet/better-signer/pkg/types"

// Operation names a device request
type Operation string

const (
	OpGetDeviceInfo     Operation = "get_device_info"
	OpDerivePublicKeys  Operation = "derive_public_keys"
	OpSignTransaction   Operation = "sign_transaction"
	OpSignSubintentHash Operation = "sign_subintent_hash"
	OpSignAuth          Operation = "sign_auth"
	OpCancel            Operation = "cancel"
)

// Error codes reported by the device
const (
	ErrCodeRejectedByUser = "rejected_by_user"
	ErrCodeWrongDevice    = "wrong_device"
	ErrCodeBadRequest     = "bad_request"
	ErrCodeDeviceLocked   = "device_locked"
	ErrCodeInternal       = "internal"
	ErrCodeCancelled      = "cancelled"
)

// Device identifies the device a request is addressed to. ID is the hex body
// of the factor source id recorded at registration.
type Device struct {
	ID    string            `json:"id"`
	Model types.LedgerModel `json:"model,omitempty"`
	Label string            `json:"label,omitempty"`
}

// KeyParameters asks for a key on a curve at a path
type KeyParameters struct {
	Curve          string `json:"curve"`
	DerivationPath string `json:"derivation_path"`
}

// Request is one message to the device. Exactly one payload field is set for sign operations.
type Request struct {
	InteractionID string          `json:"interaction_id"`
	Operation     Operation       `json:"operation"`
	Device        *Device         `json:"device,omitempty"`
	Keys          []KeyParameters `json:"keys,omitempty"`

	// sign_transaction
	CompiledIntentHex string `json:"compiled_intent_hex,omitempty"`
	DisplayHash       bool   `json:"display_hash,omitempty"`

	// sign_subintent_hash
	SubintentHashHex string `json:"subintent_hash_hex,omitempty"`

	// sign_auth
	ChallengeHex          string `json:"challenge_hex,omitempty"`
	Origin                string `json:"origin,omitempty"`
	DappDefinitionAddress string `json:"dapp_definition_address,omitempty"`
}

// DerivedKey is a public key the device derived
type DerivedKey struct {
	Curve          string `json:"curve"`
	DerivationPath string `json:"derivation_path"`
	PublicKeyHex   string `json:"public_key_hex"`
}

// SignatureOfSigner is one signature the device produced
type SignatureOfSigner struct {
	DerivedKey
	SignatureHex string `json:"signature_hex"`
}

// DeviceInfo is returned for get_device_info
type DeviceInfo struct {
	ID    string            `json:"id"`
	Model types.LedgerModel `json:"model"`
}

// Error is a device-reported failure
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// Response is the device's answer, correlated by InteractionID
type Response struct {
	InteractionID string              `json:"interaction_id"`
	Success       bool                `json:"success"`
	Error         *Error              `json:"error,omitempty"`
	DeviceInfo    *DeviceInfo         `json:"device_info,omitempty"`
	PublicKeys    []DerivedKey        `json:"public_keys,omitempty"`
	Signatures    []SignatureOfSigner `json:"signatures,omitempty"`
}

// Failure builds an unsuccessful response
func Failure(interactionID, code, message string) *Response {
	return &Response{
		InteractionID: interactionID,
		Error:         &Error{Code: code, Message: message},
	}
}
