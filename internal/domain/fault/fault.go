// Package fault defines the error taxonomy shared by the domain packages.
//
// Every business failure is a *Error carrying a Kind (what the caller should
// do about it) and a stable machine-readable Code. Domain packages declare
// their failures as package-level sentinels so callers can still match them
// with errors.Is, while transport layers only need KindOf and CodeOf.
package fault

import (
	"github.com/go-faster/errors"
)

// Kind classifies a failure by how a client is expected to react.
type Kind uint8

const (
	// Internal is an unexpected failure (storage outage, bug).
	Internal Kind = iota
	// NotFound means the code, order or rule does not exist for the caller.
	NotFound
	// InvalidInput means the request itself is malformed; fix it and resend.
	InvalidInput
	// Conflict means a concurrent writer or uniqueness constraint won; retry
	// or pick another code.
	Conflict
	// InvalidState means the order is not in the status the operation needs.
	InvalidState
	// RuleUnusable means the voucher or promotion cannot apply; try another code.
	RuleUnusable
	// CapExhausted means the order already carries the maximum discount.
	CapExhausted
	// Unauthorized means the caller identity is missing or invalid.
	Unauthorized
	// Forbidden means the caller is known but lacks the required role.
	Forbidden
)

var kindNames = [...]string{
	Internal:     "internal",
	NotFound:     "not_found",
	InvalidInput: "invalid_input",
	Conflict:     "conflict",
	InvalidState: "invalid_state",
	RuleUnusable: "rule_unusable",
	CapExhausted: "cap_exhausted",
	Unauthorized: "unauthorized",
	Forbidden:    "forbidden",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Error is a classified domain failure.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

// New creates a classified error. It is meant for package-level sentinels.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func (e *Error) Error() string {
	return e.Message
}

// Detail returns an error classified like base with a request-specific
// message. The returned error matches base with errors.Is.
func Detail(base *Error, message string) error {
	return &detailed{base: base, message: message}
}

// Invalid returns an InvalidInput error with a request-specific message.
// The returned error matches ErrInvalidInput with errors.Is.
func Invalid(message string) error {
	return Detail(ErrInvalidInput, message)
}

// ErrInvalidInput is the generic InvalidInput sentinel.
var ErrInvalidInput = New(InvalidInput, "INVALID_INPUT", "invalid input")

// detailed keeps the classification of base while overriding the message.
type detailed struct {
	base    *Error
	message string
}

func (d *detailed) Error() string { return d.message }

func (d *detailed) Unwrap() error { return d.base }

// KindOf reports the Kind of err. Unclassified errors are Internal.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Internal
}

// CodeOf reports the machine code of err, or "INTERNAL" when unclassified.
func CodeOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return "INTERNAL"
}

// MessageOf returns a message safe to expose to clients. Unclassified errors
// are hidden behind a generic text.
func MessageOf(err error) string {
	if KindOf(err) == Internal {
		return "internal error"
	}
	var d *detailed
	if errors.As(err, &d) {
		return d.message
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Message
	}
	return err.Error()
}
