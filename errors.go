package walletauth

import (
	"errors"
	"fmt"
)

// Kind classifies a rejection. Every kind maps to one caller-visible outcome.
type Kind string

const (
	KindMissingFields         Kind = "missing-fields"
	KindUnexpectedFields      Kind = "unexpected-fields"
	KindInvalidJSON           Kind = "invalid-json"
	KindInvalidAddress        Kind = "invalid-address"
	KindUIDMismatch           Kind = "uid-mismatch"
	KindInvalidSignature      Kind = "invalid-signature"
	KindMalformedTransaction  Kind = "malformed-transaction"
	KindAddressNotSigner      Kind = "address-not-a-signer"
	KindSignatureMissing      Kind = "signature-missing"
	KindMemoMissing           Kind = "memo-missing"
	KindMemoMismatch          Kind = "memo-mismatch"
	KindInsufficientBalance   Kind = "insufficient-balance"
	KindDependencyUnavailable Kind = "dependency-unavailable"
	KindInvalidToken          Kind = "invalid-or-expired-token"
	KindInternal              Kind = "internal"
)

// Error is a rejection of a single request. Detail is safe to show to the
// caller; Err is the underlying cause and is meant for logs only.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Detail != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	case e.Detail != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind, so callers can write
// errors.Is(err, &Error{Kind: KindMemoMismatch}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Detail == "" && t.Err == nil
}

func newError(kind Kind, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

// KindOf returns the kind of err, or KindInternal for errors that did not
// originate as a rejection.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
