package nostr

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies wallet call failures. Every failure of the transport
// layer is one of these; callers never see a bare nil-vs-missing ambiguity.
type ErrorKind string

const (
	// KindMalformedConnection: bad secret/relay/pubkey shape, detected
	// before any network I/O.
	KindMalformedConnection ErrorKind = "malformed_connection"
	// KindTransport: socket or relay failure.
	KindTransport ErrorKind = "transport_error"
	// KindTimeout: no matching response within the call deadline.
	KindTimeout ErrorKind = "timeout"
	// KindProtocol: the wallet returned an explicit error.
	KindProtocol ErrorKind = "protocol_error"
)

// Error is the tagged failure type for wallet calls.
type Error struct {
	Kind    ErrorKind
	Code    string // wallet error code, set for protocol errors
	Message string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func newError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the ErrorKind of err, or "" if err is not a wallet Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsTimeout reports whether err is a wallet call timeout.
func IsTimeout(err error) bool {
	return KindOf(err) == KindTimeout
}

// Standard wallet error codes (NIP-47).
const (
	CodeRateLimited         = "RATE_LIMITED"
	CodeNotImplemented      = "NOT_IMPLEMENTED"
	CodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	CodeQuotaExceeded       = "QUOTA_EXCEEDED"
	CodeRestricted          = "RESTRICTED"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeInternal            = "INTERNAL"
	CodePaymentFailed       = "PAYMENT_FAILED"
	CodeNotFound            = "NOT_FOUND"
	CodeOther               = "OTHER"
)

// IsRetryable reports whether a failed call might succeed on retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch KindOf(err) {
	case KindTimeout, KindTransport:
		return true
	case KindProtocol:
		var e *Error
		errors.As(err, &e)
		return e.Code == CodeRateLimited || strings.Contains(e.Message, "timeout")
	}
	return false
}
