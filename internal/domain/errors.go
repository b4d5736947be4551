package domain

import (
	"errors"
	"fmt"
)

// Code classifies a rejected request. Every failure in the core is one of
// these well-defined rejections; there is no fatal internal error category.
type Code string

const (
	CodeInvalidParameters Code = "invalid_parameters"
	CodeNotFound          Code = "not_found"
	CodeUnauthorized      Code = "unauthorized"
	CodePolicyInactive    Code = "policy_inactive"
	CodeNotYetActive      Code = "not_yet_active"
	CodeExpired           Code = "expired"
	CodeAlreadySettled    Code = "already_settled"
	CodeThresholdNotMet   Code = "threshold_not_met"
	CodeInsufficientFunds Code = "insufficient_funds"
	CodeNothingToWithdraw Code = "nothing_to_withdraw"
)

// Error is a coded rejection. All state is left unchanged when one is returned.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Errorf builds a coded error with a formatted message.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the rejection code from an error chain.
// Returns an empty Code for nil or uncoded errors.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsCode reports whether err carries the given rejection code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
