package errors

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error type mapped to process exit codes.
type Code int

const (
	CodeSuccess        Code = 0
	CodeInternal       Code = 1
	CodeUsage          Code = 2
	CodeAuth           Code = 10
	CodeRateLimited    Code = 11
	CodeUnavailable    Code = 12
	CodeUnsupported    Code = 13
	CodeBlocked        Code = 16
	CodeParse          Code = 20
	CodeResolutionMiss Code = 21
	CodeState          Code = 23
	CodeUpstreamQuote  Code = 24
)

// Error is a typed error that carries a stable error code.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

func CodeOf(err error) Code {
	if err == nil {
		return CodeSuccess
	}
	if e, ok := As(err); ok {
		return e.Code
	}
	return CodeInternal
}

func ExitCode(err error) int {
	return int(CodeOf(err))
}

// IsProviderFailure reports whether err came from a single external call
// (transport, auth, rate limit, unsupported input) rather than a clean miss.
func IsProviderFailure(err error) bool {
	switch CodeOf(err) {
	case CodeAuth, CodeRateLimited, CodeUnavailable, CodeUnsupported, CodeInternal:
		return err != nil
	default:
		return false
	}
}

// IsMiss reports whether err is a normal "not found" outcome.
func IsMiss(err error) bool {
	return CodeOf(err) == CodeResolutionMiss
}

// TypeName is the envelope error type for a code.
func TypeName(code Code) string {
	switch code {
	case CodeUsage:
		return "usage_error"
	case CodeAuth:
		return "auth_error"
	case CodeRateLimited:
		return "rate_limited"
	case CodeUnavailable:
		return "unavailable"
	case CodeUnsupported:
		return "unsupported"
	case CodeBlocked:
		return "intent_blocked"
	case CodeParse:
		return "parse_error"
	case CodeResolutionMiss:
		return "resolution_miss"
	case CodeState:
		return "state_error"
	case CodeUpstreamQuote:
		return "upstream_quote_error"
	default:
		return "internal_error"
	}
}

// UserMessage renders err for an end user. Provider names, causes and
// internal details never leak; only the top-level message of user-facing
// codes is shown.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	e, ok := As(err)
	if !ok {
		return "Something went wrong. Please try again."
	}
	switch e.Code {
	case CodeParse:
		return "I couldn't parse that. Try something like \"swap 10 USDC for ETH\" or \"bridge 0.1 ETH to base\"."
	case CodeResolutionMiss, CodeUsage, CodeBlocked:
		return e.Message
	case CodeUpstreamQuote:
		return "I couldn't get a quote: " + e.Message
	case CodeState:
		return "Confirmations are temporarily unavailable. Please send the full command again."
	case CodeAuth, CodeRateLimited, CodeUnavailable, CodeUnsupported:
		return "I couldn't get a quote right now. Please try again shortly."
	default:
		return "Something went wrong. Please try again."
	}
}
