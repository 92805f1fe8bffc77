package multipay

import (
	"errors"
	"fmt"
)

// SettlementError represents an engine-specific error. Every failure carries
// a stable code identifying the violated rule, never a generic reason.
type SettlementError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *SettlementError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Common error codes
const (
	ErrCodeUnauthorized         = "unauthorized"
	ErrCodeAlreadyInitialized   = "already_initialized"
	ErrCodeNotInitialized       = "not_initialized"
	ErrCodeFeeTooHigh           = "fee_too_high"
	ErrCodeZeroAddress          = "zero_address"
	ErrCodeWrongProtocolVersion = "wrong_protocol_version"
	ErrCodeZeroTokenAddress     = "zero_token_address"
	ErrCodeEmptyAmounts         = "empty_amounts"
	ErrCodeLengthMismatch       = "length_mismatch"
	ErrCodeZeroReceiverAddress  = "zero_receiver_address"
	ErrCodeWrongSwapOrigin      = "wrong_swap_origin"
	ErrCodeReentrantCall        = "reentrant_call"
	ErrCodeInvalidAmount        = "invalid_amount"
	ErrCodeHookAborted          = "hook_aborted"
	ErrCodeRouterNotConfigured  = "router_not_configured"
)

// NewSettlementError creates a new settlement error
func NewSettlementError(code, message string, details map[string]interface{}) *SettlementError {
	return &SettlementError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// ErrorCode extracts the settlement error code from err, or returns the
// empty string if err is not a SettlementError. Upstream token and router
// failures propagate verbatim and therefore carry no code.
func ErrorCode(err error) string {
	var se *SettlementError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}
