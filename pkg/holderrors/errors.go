// Package holderrors defines the closed error taxonomy shared by every
// holdfast component, along with the policy (fatal vs. per-file skip) each
// kind carries.
package holderrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind identifies which of the fixed error categories an Error belongs to.
// Callers switch on Kind rather than matching concrete error types, keeping
// the variant space closed.
type Kind int

const (
	// RepoNotFound indicates discovery could not find an enclosing VCS
	// work tree. Fatal to the pipeline.
	RepoNotFound Kind = iota
	// InvalidPath indicates a non-UTF-8 entry was found in the VCS index.
	// Fatal.
	InvalidPath
	// InvalidFileType indicates an operation required a regular file but
	// found a symlink or directory. Per-file skip during classification,
	// fatal when a regular file was explicitly requested.
	InvalidFileType
	// IoError wraps any read/stat/read-dir failure, with path context.
	// Per-file skip during classify; fatal during record/restore.
	IoError
	// SetTimestampError indicates a file's modification time could not be
	// set. Per-file fatal.
	SetTimestampError
	// SerializationError indicates the manifest could not be encoded.
	// Fatal.
	SerializationError
	// DeserializationError indicates the manifest could not be decoded in
	// any known schema version. The manifest codec recovers from this
	// automatically (see pkg/manifest); it is not otherwise fatal.
	DeserializationError
	// ConfigError indicates an unsupported manifest schema version or a
	// missing required option. Fatal, with guidance.
	ConfigError
	// InvalidSizeSpec indicates a user-supplied size string could not be
	// parsed. Fatal.
	InvalidSizeSpec
	// GcError indicates a garbage-collection-stage-only failure (e.g. an
	// indeterminate artifact root). Fatal to the GC stage only.
	GcError
)

// String renders a Kind for diagnostic output.
func (k Kind) String() string {
	switch k {
	case RepoNotFound:
		return "repo-not-found"
	case InvalidPath:
		return "invalid-path"
	case InvalidFileType:
		return "invalid-file-type"
	case IoError:
		return "io-error"
	case SetTimestampError:
		return "set-timestamp-error"
	case SerializationError:
		return "serialization-error"
	case DeserializationError:
		return "deserialization-error"
	case ConfigError:
		return "config-error"
	case InvalidSizeSpec:
		return "invalid-size-spec"
	case GcError:
		return "gc-error"
	default:
		return "unknown"
	}
}

// Error is the concrete error type every holdfast component returns. It
// carries a Kind for policy dispatch, an optional Path for context, and an
// optional wrapped cause.
type Error struct {
	Kind    Kind
	Path    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Path != "" && e.Message != "":
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Path, e.Message)
	case e.Path != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Path)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	default:
		return e.Kind.String()
	}
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As and to
// github.com/pkg/errors' Cause-chain walking.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether err (or anything it wraps) is a holderrors.Error of the
// given kind.
func Is(err error, kind Kind) bool {
	var herr *Error
	for err != nil {
		if he, ok := err.(*Error); ok {
			herr = he
			break
		}
		err = errors.Unwrap(err)
	}
	return herr != nil && herr.Kind == kind
}

// IO wraps an I/O failure with path context.
func IO(path string, cause error) error {
	return &Error{Kind: IoError, Path: path, Cause: errors.WithStack(cause)}
}

// FileType reports that path is not a regular file and why.
func FileType(path, message string) error {
	return &Error{Kind: InvalidFileType, Path: path, Message: message}
}

// SetTimestamp wraps a failure to set a file's modification time.
func SetTimestamp(path string, cause error) error {
	return &Error{Kind: SetTimestampError, Path: path, Cause: errors.WithStack(cause)}
}

// Config reports a configuration-level failure.
func Config(message string) error {
	return &Error{Kind: ConfigError, Message: message}
}

// InvalidSize reports a size string that failed to parse.
func InvalidSize(raw, reason string) error {
	return &Error{Kind: InvalidSizeSpec, Message: fmt.Sprintf("%q: %s", raw, reason)}
}

// Gc reports a garbage-collection-stage failure.
func Gc(message string, cause error) error {
	return &Error{Kind: GcError, Message: message, Cause: cause}
}

// RepoNotFoundAt reports that no VCS work tree was found at or above path.
func RepoNotFoundAt(path string) error {
	return &Error{Kind: RepoNotFound, Path: path}
}

// InvalidPathEntry reports a non-UTF-8 path in the VCS index.
func InvalidPathEntry(message string) error {
	return &Error{Kind: InvalidPath, Message: message}
}

// Deserialization wraps a manifest decode failure.
func Deserialization(cause error) error {
	return &Error{Kind: DeserializationError, Cause: errors.WithStack(cause)}
}

// Serialization wraps a manifest encode failure.
func Serialization(cause error) error {
	return &Error{Kind: SerializationError, Cause: errors.WithStack(cause)}
}
