// Package apperr defines the closed error taxonomy returned by entity
// operations. Every domain failure carries exactly one Kind; transports map
// kinds to their own status codes without parsing messages.
package apperr

import "errors"

type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindInvalidState Kind = "invalid_state"
	KindIllegalInput Kind = "illegal_input"
	KindCapacity     Kind = "capacity"
)

type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func NotFound(msg string) *Error     { return &Error{Kind: KindNotFound, Msg: msg} }
func Conflict(msg string) *Error     { return &Error{Kind: KindConflict, Msg: msg} }
func InvalidState(msg string) *Error { return &Error{Kind: KindInvalidState, Msg: msg} }
func IllegalInput(msg string) *Error { return &Error{Kind: KindIllegalInput, Msg: msg} }
func Capacity(msg string) *Error     { return &Error{Kind: KindCapacity, Msg: msg} }

// KindOf returns the Kind carried by err, or "" for non-domain errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err is a domain error of the given kind.
func IsKind(err error, k Kind) bool { return KindOf(err) == k }
