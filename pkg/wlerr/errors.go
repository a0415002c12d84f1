// Package wlerr provides error codes and an error type shared across every
// layer of the Wildland daemon. This is a leaf package with no internal
// dependencies, designed to be imported by the manifest codec, signature
// context, storage backends, and the control protocol without causing
// import cycles.
//
// Import graph: wlerr <- manifest/sig/storage <- resolver/daemon <- cmd
package wlerr

import (
	"errors"
	"fmt"
	"syscall"
)

// Code identifies the kind of failure, independent of the layer that
// raised it.
type Code int

const (
	// Envelope and schema failures.
	MissingSeparator Code = iota + 1
	HeaderParse
	SchemaError
	ManifestParse

	// Signature context failures. Never retried.
	BadSignature
	UnknownKey
	KeyNotFound

	// VFS-level failures, returned as errno through the callback interface.
	EACCES
	EROFS
	ENOENT
	ENOTDIR
	EXDEV
	EEXIST
	ENOSYS
	EISDIR
	ENOTEMPTY

	// Backend and daemon failures.
	BackendUnsupported
	HashMismatch
	ControlError
	BackendMountFailed
	IOError
)

func (c Code) String() string {
	switch c {
	case MissingSeparator:
		return "MissingSeparator"
	case HeaderParse:
		return "HeaderParse"
	case SchemaError:
		return "SchemaError"
	case ManifestParse:
		return "ManifestParse"
	case BadSignature:
		return "BadSignature"
	case UnknownKey:
		return "UnknownKey"
	case KeyNotFound:
		return "KeyNotFound"
	case EACCES:
		return "EACCES"
	case EROFS:
		return "EROFS"
	case ENOENT:
		return "ENOENT"
	case ENOTDIR:
		return "ENOTDIR"
	case EXDEV:
		return "EXDEV"
	case EEXIST:
		return "EEXIST"
	case ENOSYS:
		return "ENOSYS"
	case EISDIR:
		return "EISDIR"
	case ENOTEMPTY:
		return "ENOTEMPTY"
	case BackendUnsupported:
		return "BackendUnsupported"
	case HashMismatch:
		return "HashMismatch"
	case ControlError:
		return "ControlError"
	case BackendMountFailed:
		return "BackendMountFailed"
	case IOError:
		return "IOError"
	default:
		return "Unknown"
	}
}

// Error wraps a Code with a human-readable message and, for SchemaError,
// the dotted path of the field that failed validation.
type Error struct {
	Code       Code
	Message    string
	SchemaPath string
	Cause      error
}

func (e *Error) Error() string {
	if e.SchemaPath != "" {
		return fmt.Sprintf("%s: %s (at %s)", e.Code, e.Message, e.SchemaPath)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with a code and a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error around a causing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// WithSchemaPath attaches a dotted schema path to a SchemaError.
func (e *Error) WithSchemaPath(path string) *Error {
	e.SchemaPath = path
	return e
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf extracts the Code from err, or 0 if err isn't a *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}

// Errno maps a Wildland error to the errno the FUSE-like proxy layer must
// return to the kernel. Any code not mapped here defaults to EIO; the
// mapping never panics.
func Errno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	switch CodeOf(err) {
	case EACCES:
		return syscall.EACCES
	case EROFS:
		return syscall.EROFS
	case ENOENT:
		return syscall.ENOENT
	case ENOTDIR:
		return syscall.ENOTDIR
	case EXDEV:
		return syscall.EXDEV
	case EEXIST:
		return syscall.EEXIST
	case ENOSYS:
		return syscall.ENOSYS
	case EISDIR:
		return syscall.EISDIR
	case ENOTEMPTY:
		return syscall.ENOTEMPTY
	default:
		return syscall.EIO
	}
}
