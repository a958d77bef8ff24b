package errors

import (
	"errors"
	"fmt"
)

// AppError is the single error type surfaced by a signing ceremony. Code is
// one of the closed set of codes below.
type AppError struct {
	Code           string `json:"code"`
	Message        string `json:"message"`
	Detail         string `json:"detail,omitempty"`
	FactorSourceID string `json:"factor_source_id,omitempty"`
	Err            error  `json:"-"`
}

func (e *AppError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Detail != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Detail)
	}
	if e.FactorSourceID != "" {
		msg = fmt.Sprintf("%s [factor_source=%s]", msg, e.FactorSourceID)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches on Code so sentinel errors work with errors.Is
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithFactorSource returns a copy tagged with the failing factor source
func (e *AppError) WithFactorSource(id fmt.Stringer) *AppError {
	cp := *e
	cp.FactorSourceID = id.String()
	return &cp
}

// Error codes
const (
	ErrCodeUnknownEntity               = "unknown_entity"
	ErrCodeMissingMnemonic             = "missing_mnemonic"
	ErrCodeAccessGateFailed            = "access_gate_failed"
	ErrCodeSecureReadFailed            = "secure_read_failed"
	ErrCodeHardwareCommunicationFailed = "hardware_communication_failed"
	ErrCodeRejectedByUser              = "rejected_by_user"
	ErrCodeInvalidMnemonic             = "invalid_mnemonic"
	ErrCodeMnemonicMismatch            = "mnemonic_mismatch"
	ErrCodePrepareTransactionFailed    = "prepare_transaction_failed"
)

// Predefined errors, usable as errors.Is targets
var (
	ErrUnknownEntity = &AppError{
		Code:    ErrCodeUnknownEntity,
		Message: "Required signer is not a known active entity",
	}

	ErrMissingMnemonic = &AppError{
		Code:    ErrCodeMissingMnemonic,
		Message: "No mnemonic registered for factor source",
	}

	ErrAccessGateFailed = &AppError{
		Code:    ErrCodeAccessGateFailed,
		Message: "Access gate failed",
	}

	ErrSecureReadFailed = &AppError{
		Code:    ErrCodeSecureReadFailed,
		Message: "Mnemonic exists but could not be read",
	}

	ErrHardwareCommunicationFailed = &AppError{
		Code:    ErrCodeHardwareCommunicationFailed,
		Message: "Hardware device communication failed",
	}

	ErrRejectedByUser = &AppError{
		Code:    ErrCodeRejectedByUser,
		Message: "Rejected by user",
	}

	ErrInvalidMnemonic = &AppError{
		Code:    ErrCodeInvalidMnemonic,
		Message: "Invalid mnemonic",
	}

	ErrMnemonicMismatch = &AppError{
		Code:    ErrCodeMnemonicMismatch,
		Message: "Mnemonic does not derive the expected factor source",
	}

	ErrPrepareTransactionFailed = &AppError{
		Code:    ErrCodePrepareTransactionFailed,
		Message: "Failed to prepare transaction",
	}
)

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// NewWithDetail creates a new AppError with additional detail
func NewWithDetail(code, message, detail string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Detail:  detail,
	}
}

// Wrap returns a copy of base carrying err as its cause
func Wrap(base *AppError, err error) *AppError {
	cp := *base
	cp.Err = err
	return &cp
}

// UnknownEntity creates an unknown entity error for the given address
func UnknownEntity(address string) *AppError {
	return &AppError{
		Code:    ErrCodeUnknownEntity,
		Message: ErrUnknownEntity.Message,
		Detail:  fmt.Sprintf("address: %s", address),
	}
}

// HardwareCommunicationFailed creates a hardware error with the given detail
func HardwareCommunicationFailed(detail string) *AppError {
	return &AppError{
		Code:    ErrCodeHardwareCommunicationFailed,
		Message: ErrHardwareCommunicationFailed.Message,
		Detail:  detail,
	}
}

// PrepareTransactionFailed wraps a failure to build a header, signed intent or notarized artifact
func PrepareTransactionFailed(err error) *AppError {
	return Wrap(ErrPrepareTransactionFailed, err)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf returns the code of the first AppError in err's chain, or
// prepare_transaction_failed for foreign errors
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	if appErr, ok := IsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodePrepareTransactionFailed
}

// IsSilent reports whether the error should end the flow without an error
// dialog (the user declined)
func IsSilent(err error) bool {
	return KindOf(err) == ErrCodeRejectedByUser
}
