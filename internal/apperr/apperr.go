// Package apperr defines the error taxonomy shared by the business layer.
// Handlers translate kinds to HTTP status codes; services never inspect
// error strings.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a business-rule violation.
type Kind int

const (
	// KindUnknown is any error not produced through this package.
	KindUnknown Kind = iota
	// KindNotFound means a referenced machine/session/payment is absent.
	KindNotFound
	// KindConflict means a uniqueness rule would be violated (machine busy,
	// user already active, duplicate name).
	KindConflict
	// KindInvalidState means the operation is forbidden in the entity's
	// current state (e.g. extending a closed session).
	KindInvalidState
	// KindConfig means a configuration problem such as an unknown pricing
	// zone. Not user-recoverable.
	KindConfig
)

// Error carries a kind alongside the message.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// New returns a typed error with the given kind.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf is New with formatting.
func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind from err, unwrapping as needed.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
