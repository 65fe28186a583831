// Package errors implements the error type returned by every producer-facing
// operation of the asynchronous array writer. Errors carry a Kind — the
// canonical error kind a caller can switch on — and may chain an underlying
// cause, in the style of github.com/grailbio/base/errors. Unlike that
// package, there is no RPC boundary here, so errors are not gob-encodable
// and carry no severity; a Kind is enough to implement the propagation
// policy of the error handling design (producer-side kinds are returned to
// the caller, worker-side kinds are fatal).
package errors

import (
	"bytes"
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Separator divides chained errors in an Error's message.
var Separator = ":\n\t"

// Kind is the canonical error kind of a failed operation.
type Kind int

const (
	// Other is an unclassified error.
	Other Kind = iota
	// Invalid means the caller supplied invalid arguments: a null instance,
	// rank > MaxRank, lbounds[d] > ubounds[d], ubounds[d] > dims[d], or an
	// empty name.
	Invalid
	// OOM means an allocation or a staging buffer growth failed and no
	// synchronous fallback was possible.
	OOM
	// StagingOverflow means fixed or mapped staging could not hold the
	// pending data and the synchronous fallback also failed.
	StagingOverflow
	// Storage means the external hierarchical-data library returned a
	// failure.
	Storage
	// Internal means a synchronization primitive failed.
	Internal

	maxKind
)

var kinds = map[Kind]string{
	Other:           "unknown error",
	Invalid:         "invalid argument",
	OOM:             "out of memory",
	StagingOverflow: "staging buffer overflow",
	Storage:         "storage failure",
	Internal:        "internal error",
}

// String returns a human-readable name for k.
func (k Kind) String() string { return kinds[k] }

// Error is the standard error type returned by this module's operations. It
// carries a Kind and an optional chained cause; construct one with E.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// E constructs an error from its arguments, interpreted by type:
//
//   - Kind: sets the error's kind
//   - string: appended to the error's message (space separated)
//   - *Error: copied and chained as the cause
//   - error: chained as the cause
//
// If no Kind is given but the chained cause is itself an *Error, the kind is
// inherited from it.
func E(args ...interface{}) error {
	if len(args) == 0 {
		panic("errors.E: no args")
	}
	e := new(Error)
	var msg strings.Builder
	for _, arg := range args {
		switch arg := arg.(type) {
		case Kind:
			e.Kind = arg
		case string:
			if msg.Len() > 0 {
				msg.WriteString(" ")
			}
			msg.WriteString(arg)
		case *Error:
			cp := *arg
			if len(args) == 1 {
				return &cp
			}
			e.Err = &cp
		case error:
			e.Err = arg
		default:
			_, file, line, _ := runtime.Caller(1)
			return &Error{
				Kind:    Invalid,
				Message: fmt.Sprintf("errors.E: bad argument type %T from %s:%d", arg, file, line),
			}
		}
	}
	e.Message = msg.String()
	if e.Err == nil {
		return e
	}
	if prev, ok := e.Err.(*Error); ok && (prev.Kind == e.Kind || e.Kind == Other) {
		e.Kind = prev.Kind
		prev.Kind = Other
	}
	return e
}

// Recover wraps err in an *Error, unless it already is one.
func Recover(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	return E(err).(*Error)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b bytes.Buffer
	e.writeError(&b)
	return b.String()
}

func (e *Error) writeError(b *bytes.Buffer) {
	if e.Message != "" {
		pad(b, ": ")
		b.WriteString(e.Message)
	}
	if e.Kind != Other {
		pad(b, ": ")
		b.WriteString(e.Kind.String())
	}
	if e.Err == nil {
		return
	}
	if err, ok := e.Err.(*Error); ok {
		pad(b, Separator)
		b.WriteString(err.Error())
	} else {
		pad(b, ": ")
		b.WriteString(e.Err.Error())
	}
}

// Unwrap lets the standard library's errors.Unwrap/Is/As traverse the chain.
func (e *Error) Unwrap() error { return e.Err }

// Is tells whether e's kind matches the Kind carried by target, if target is
// itself an *Error; this lets errors.Is(err, &Error{Kind: Invalid}) work.
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok || te == nil {
		return false
	}
	return e.Kind != Other && e.Kind == te.Kind
}

// Is tells whether err's kind is kind, descending through Other-kinded links
// in the chain until a classified kind is found.
func Is(kind Kind, err error) bool {
	if err == nil {
		return false
	}
	return is(kind, Recover(err))
}

func is(kind Kind, e *Error) bool {
	if e.Kind != Other {
		return e.Kind == kind
	}
	if e.Err != nil {
		if e2, ok := e.Err.(*Error); ok {
			return is(kind, e2)
		}
	}
	return false
}

// GetKind returns err's canonical kind, or Other if err is not an *Error (or
// chains to one).
func GetKind(err error) Kind {
	if err == nil {
		return Other
	}
	e := Recover(err)
	for e.Kind == Other {
		next, ok := e.Err.(*Error)
		if !ok {
			break
		}
		e = next
	}
	return e.Kind
}

// Visit calls callback for every error object in the chain, including err
// itself, stopping after the first link that is not an *Error.
func Visit(err error, callback func(err error)) {
	callback(err)
	for {
		next, ok := err.(*Error)
		if !ok {
			break
		}
		err = next.Err
		callback(err)
	}
}

// New is errors.New, provided here so callers need only import one errors
// package.
func New(msg string) error { return errors.New(msg) }

func pad(b *bytes.Buffer, s string) {
	if b.Len() == 0 {
		return
	}
	b.WriteString(s)
}
