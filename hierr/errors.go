// Package hierr defines the small set of sentinel error kinds used across
// hierplan. Every error returned by the core packages wraps one of these via
// fmt.Errorf("...: %w", err) so callers can classify failures with errors.Is
// without hierplan inventing a stack-trace framework of its own.
package hierr

import (
	"errors"
	"fmt"
)

// Kind is one of the abstract error kinds from the error-handling design.
// All of them are fatal: there is no retry or partial-result path anywhere
// in hierplan, so a Kind only exists to let the top-level CLI handler decide
// how to phrase the single line it prints to stderr.
type Kind error

var (
	// ErrInputMalformed marks a schema, partition, query, or plan fragment
	// that did not meet its invariants.
	ErrInputMalformed Kind = errors.New("input malformed")
	// ErrInvariantViolation marks an internal contract failure, e.g. a
	// split that does not conserve row counts.
	ErrInvariantViolation Kind = errors.New("invariant violation")
	// ErrUnsupportedOperation marks an operation undefined for a value
	// kind, e.g. midpoint of strings.
	ErrUnsupportedOperation Kind = errors.New("unsupported operation")
	// ErrNotFound marks a failed attribute lookup by name.
	ErrNotFound Kind = errors.New("not found")
	// ErrTypeMismatch marks arithmetic or comparison across incompatible
	// value kinds.
	ErrTypeMismatch Kind = errors.New("type mismatch")
)

// Wrap annotates err (normally one of the sentinels above) with a message,
// preserving errors.Is/errors.As against the sentinel.
func Wrap(kind Kind, msg string) error {
	return fmt.Errorf("%s: %w", msg, kind)
}
