package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorKind is the machine-readable classification of an RBF error.
type ErrorKind string

const (
	// KindArgument marks invalid caller input.
	KindArgument ErrorKind = "ArgumentError"
	// KindFraming marks a structural inconsistency in the on-disk bytes.
	KindFraming ErrorKind = "FramingError"
	// KindCrcMismatch marks a payload or trailer checksum failure.
	KindCrcMismatch ErrorKind = "CrcMismatchError"
	// KindBufferTooSmall marks a caller buffer that cannot hold the result.
	KindBufferTooSmall ErrorKind = "BufferTooSmallError"
	// KindState marks a protocol-state violation (stale builder, closed file, ...).
	KindState ErrorKind = "StateError"
)

// Detail keys shared across packages.
const (
	DetailChecksum = "checksum"
	DetailRequired = "required"
	DetailProvided = "provided"
	DetailOffset   = "offset"
	DetailLength   = "length"
	DetailExpected = "expected"
	DetailActual   = "actual"
)

// Values stored under DetailChecksum.
const (
	ChecksumPayload = "payload"
	ChecksumTrailer = "trailer"
)

// Sentinels for errors.Is. A sentinel matches every error of its kind.
var (
	ErrArgument       = &Error{Kind: KindArgument}
	ErrFraming        = &Error{Kind: KindFraming}
	ErrCrcMismatch    = &Error{Kind: KindCrcMismatch}
	ErrBufferTooSmall = &Error{Kind: KindBufferTooSmall}
	ErrState          = &Error{Kind: KindState}
)

// Error is the structured error returned by every fallible RBF operation.
type Error struct {
	Kind    ErrorKind
	Message string
	// Hint optionally tells the caller how to recover.
	Hint    string
	Details map[string]any
	Cause   error
}

// NewError creates an error of the given kind.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// ArgumentError creates a KindArgument error.
func ArgumentError(format string, args ...any) *Error {
	return NewError(KindArgument, format, args...)
}

// FramingError creates a KindFraming error.
func FramingError(format string, args ...any) *Error {
	return NewError(KindFraming, format, args...)
}

// StateError creates a KindState error.
func StateError(format string, args ...any) *Error {
	return NewError(KindState, format, args...)
}

// CrcMismatchError creates a KindCrcMismatch error for the named checksum.
func CrcMismatchError(which string, expected, actual uint32) *Error {
	return NewError(KindCrcMismatch, "%s crc mismatch", which).
		WithDetail(DetailChecksum, which).
		WithDetail(DetailExpected, fmt.Sprintf("0x%08x", expected)).
		WithDetail(DetailActual, fmt.Sprintf("0x%08x", actual))
}

// BufferTooSmallError creates a KindBufferTooSmall error carrying both sizes.
func BufferTooSmallError(required, provided int) *Error {
	return NewError(KindBufferTooSmall, "buffer too small").
		WithDetail(DetailRequired, required).
		WithDetail(DetailProvided, provided).
		WithHint(fmt.Sprintf("provide a buffer of at least %d bytes", required))
}

// WithHint sets the recovery hint and returns e.
func (e *Error) WithHint(hint string) *Error {
	e.Hint = hint
	return e
}

// WithDetail adds a key/value detail and returns e.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any, 2)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the wrapped cause and returns e.
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("rbf: ")
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.Details[k])
		}
		b.WriteString(")")
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is the sentinel of e's kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Cause == nil && t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// DetailOf returns a detail of the first *Error in err's chain.
func DetailOf(err error, key string) (any, bool) {
	var e *Error
	if !errors.As(err, &e) || e.Details == nil {
		return nil, false
	}
	v, ok := e.Details[key]
	return v, ok
}

// IsArgumentError checks if an error is an ArgumentError.
func IsArgumentError(err error) bool { return errors.Is(err, ErrArgument) }

// IsFramingError checks if an error is a FramingError.
func IsFramingError(err error) bool { return errors.Is(err, ErrFraming) }

// IsCrcMismatch checks if an error is a CrcMismatchError.
func IsCrcMismatch(err error) bool { return errors.Is(err, ErrCrcMismatch) }

// IsBufferTooSmall checks if an error is a BufferTooSmallError.
func IsBufferTooSmall(err error) bool { return errors.Is(err, ErrBufferTooSmall) }

// IsStateError checks if an error is a StateError.
func IsStateError(err error) bool { return errors.Is(err, ErrState) }

// IsPayloadCrcMismatch checks if err is a CrcMismatchError raised by the
// payload checksum (tier L3) rather than the trailer checksum.
func IsPayloadCrcMismatch(err error) bool {
	if !IsCrcMismatch(err) {
		return false
	}
	v, _ := DetailOf(err, DetailChecksum)
	return v == ChecksumPayload
}
