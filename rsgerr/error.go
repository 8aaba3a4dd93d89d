// Package rsgerr defines the error taxonomy shared by the scene graph store,
// the update dispatcher, the codecs and the query runner.
//
// Every failure is reported as an *Error carrying the failed operation, a
// Kind and the underlying cause. Kinds can be matched with errors.Is against
// the sentinel errors of this package:
//
//	if errors.Is(err, rsgerr.ErrNotFound) {
//	    // the id did not resolve
//	}
package rsgerr

import (
	"errors"
	"fmt"
)

// Kind categorizes a failure.
type Kind string

const (
	// KindNotFound means an ID did not resolve to a live entity.
	KindNotFound Kind = "not_found"

	// KindIDAlreadyExists means a forced ID collided with an existing entity.
	KindIDAlreadyExists Kind = "id_already_exists"

	// KindTypeMismatch means the operation does not apply to the entity's kind.
	KindTypeMismatch Kind = "type_mismatch"

	// KindSyntax means a message or argument was malformed or incomplete.
	KindSyntax Kind = "syntax_error"

	// KindEncode means a codec could not render a mutation.
	KindEncode Kind = "encode_failure"

	// KindDecode means a codec could not interpret a message.
	KindDecode Kind = "decode_failure"

	// KindTransport means the output port rejected a message.
	KindTransport Kind = "transport_failure"

	// KindInternal covers recovered panics and other unexpected faults.
	KindInternal Kind = "internal"
)

// Sentinel errors, one per kind.
var (
	ErrNotFound        = errors.New("not found")
	ErrIDAlreadyExists = errors.New("id already exists")
	ErrTypeMismatch    = errors.New("type mismatch")
	ErrSyntax          = errors.New("syntax error")
	ErrEncode          = errors.New("encode failure")
	ErrDecode          = errors.New("decode failure")
	ErrTransport       = errors.New("transport failure")
	ErrInternal        = errors.New("internal error")
)

var sentinels = map[Kind]error{
	KindNotFound:        ErrNotFound,
	KindIDAlreadyExists: ErrIDAlreadyExists,
	KindTypeMismatch:    ErrTypeMismatch,
	KindSyntax:          ErrSyntax,
	KindEncode:          ErrEncode,
	KindDecode:          ErrDecode,
	KindTransport:       ErrTransport,
	KindInternal:        ErrInternal,
}

// Error is a structured failure with the operation that produced it.
type Error struct {
	// Op is the failed operation (e.g. "scene.AddNode", "jsoncodec.Apply").
	Op string

	// Kind categorizes the failure.
	Kind Kind

	// Err is the underlying cause. May be nil.
	Err error

	// Context carries optional debugging values such as IDs.
	Context map[string]any
}

// New creates an *Error of the given kind with a formatted message.
func New(op string, kind Kind, format string, args ...any) *Error {
	return &Error{
		Op:   op,
		Kind: kind,
		Err:  fmt.Errorf(format, args...),
	}
}

// Wrap wraps cause as an *Error. If cause is already an *Error its kind is
// kept and op is prepended.
func Wrap(op string, kind Kind, cause error) *Error {
	var existing *Error
	if errors.As(cause, &existing) {
		return &Error{Op: op, Kind: existing.Kind, Err: cause}
	}
	return &Error{Op: op, Kind: kind, Err: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("rsg: %s: %s", e.Op, e.Kind)
	}
	if len(e.Context) > 0 {
		return fmt.Sprintf("rsg: %s (%s): %v [context: %+v]", e.Op, e.Kind, e.Err, e.Context)
	}
	return fmt.Sprintf("rsg: %s (%s): %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches kind sentinels and other *Error values with the same kind.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if sentinel, ok := sentinels[e.Kind]; ok && sentinel == target {
		return true
	}
	if t, ok := target.(*Error); ok {
		if t.Kind != "" && t.Kind == e.Kind {
			return t.Op == "" || t.Op == e.Op
		}
	}
	return false
}

// WithContext returns a copy of e with the given values merged into its context.
func (e *Error) WithContext(ctx map[string]any) *Error {
	out := *e
	out.Context = make(map[string]any, len(e.Context)+len(ctx))
	for k, v := range e.Context {
		out.Context[k] = v
	}
	for k, v := range ctx {
		out.Context[k] = v
	}
	return &out
}

// KindOf returns the kind of the first *Error in err's chain.
// It returns the empty Kind for nil and KindInternal for foreign errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns the innermost human-readable message of err, without the
// "rsg: op (kind):" prefixes added by nested *Error values.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	for errors.As(err, &e) {
		if e.Err == nil {
			return string(e.Kind)
		}
		err = e.Err
		e = nil
	}
	return err.Error()
}
