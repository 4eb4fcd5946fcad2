package ledger

import (
	"errors"
	"fmt"
)

// Code classifies a rejected ledger operation.
type Code string

const (
	CodeUnauthorized          Code = "Unauthorized"
	CodeInsufficientBalance   Code = "InsufficientBalance"
	CodeInsufficientAllowance Code = "InsufficientAllowance"
	CodeInsufficientKarma     Code = "InsufficientKarma"
	CodeEmptyContent          Code = "EmptyContent"
	CodeNoSuchToken           Code = "NoSuchToken"
	CodeUntrustedForwarder    Code = "UntrustedForwarder"
	CodeReserveExhausted      Code = "ReserveExhausted"
	CodeOverflow              Code = "Overflow"
	CodeInvalidAddress        Code = "InvalidAddress"
	CodeReplayed              Code = "Replayed"
)

// Error is a caller visible rejection of one operation. Nothing the
// operation did is committed when an Error is returned.
type Error struct {
	Code   Code
	Op     string
	Detail string
}

func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Is matches any *Error with the same code, so errors.Is(err, ErrNoSuchToken)
// works on errors carrying an op and detail.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrUnauthorized          = &Error{Code: CodeUnauthorized}
	ErrInsufficientBalance   = &Error{Code: CodeInsufficientBalance}
	ErrInsufficientAllowance = &Error{Code: CodeInsufficientAllowance}
	ErrInsufficientKarma     = &Error{Code: CodeInsufficientKarma}
	ErrEmptyContent          = &Error{Code: CodeEmptyContent}
	ErrNoSuchToken           = &Error{Code: CodeNoSuchToken}
	ErrUntrustedForwarder    = &Error{Code: CodeUntrustedForwarder}
	ErrReserveExhausted      = &Error{Code: CodeReserveExhausted}
	ErrOverflow              = &Error{Code: CodeOverflow}
	ErrInvalidAddress        = &Error{Code: CodeInvalidAddress}
	ErrReplayed              = &Error{Code: CodeReplayed}
)

func fail(code Code, op, format string, args ...any) *Error {
	return &Error{Code: code, Op: op, Detail: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the ledger code from err, or "" when err is not a ledger
// rejection.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
