package usecase

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrorConfiguration        ErrorCode = "CONFIGURATION_ERROR"
	ErrorGatewayNoise         ErrorCode = "GATEWAY_NOISE"
	ErrorNormalizationDiscard ErrorCode = "NORMALIZATION_DISCARD"
	ErrorDuplicateEvent       ErrorCode = "DUPLICATE_EVENT"
	ErrorConcurrencyBusy      ErrorCode = "CONCURRENCY_BUSY"
	ErrorBackend              ErrorCode = "BACKEND_ERROR"
	ErrorBackendTimeout       ErrorCode = "BACKEND_TIMEOUT"
	ErrorDelivery             ErrorCode = "DELIVERY_ERROR"
	ErrorInternal             ErrorCode = "INTERNAL_ERROR"
)

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// CodeOf returns the ErrorCode carried by err, or ErrorInternal for errors
// that did not originate here. A nil error has no code.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Code
	}
	return ErrorInternal
}

// Silent reports whether err is an expected drop rather than a failure an
// operator should see.
func Silent(err error) bool {
	switch CodeOf(err) {
	case ErrorGatewayNoise, ErrorNormalizationDiscard, ErrorDuplicateEvent, ErrorConcurrencyBusy:
		return true
	}
	return false
}
