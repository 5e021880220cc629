// Package errdefs defines the error kinds surfaced by the container
// lifecycle engine and their mapping to process exit codes, so that
// callers can tell "the container never ran" apart from "the container
// ran and failed".
package errdefs

import (
	"errors"
	"fmt"
)

// Sentinel errors for each failure kind. Components wrap these with
// Wrap / Wrapf so errors.Is keeps working through the chain.
var (
	// ErrPrivilege indicates insufficient rights to create namespaces
	// or mount filesystems. Reported before any resource allocation.
	ErrPrivilege = errors.New("insufficient privilege")

	// ErrImageNotFound indicates the requested base image is missing.
	// Reported before any process creation.
	ErrImageNotFound = errors.New("image not found")

	// ErrNamespace indicates clone / unshare / setns failed.
	ErrNamespace = errors.New("namespace creation failed")

	// ErrMount indicates an overlay, pivot_root or auxiliary mount failed.
	ErrMount = errors.New("mount failed")

	// ErrCgroup indicates control-group creation or a limit write failed.
	ErrCgroup = errors.New("cgroup operation failed")

	// ErrNetworkSetup indicates loopback bring-up failed. Non-fatal:
	// logged as a warning, container startup continues.
	ErrNetworkSetup = errors.New("network setup failed")

	// ErrNotFound indicates a container id is not known to the registry.
	ErrNotFound = errors.New("container not found")
)

// SetupExitCode is the process exit code for any failure that prevented
// the contained command from running. The contained command's own exit
// code is passed through unchanged on a completed run.
const SetupExitCode = 125

type kindError struct {
	kind  error
	cause error
	msg   string
}

func (e *kindError) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("%s: %v", e.msg, e.kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.msg, e.kind, e.cause)
}

func (e *kindError) Is(target error) bool {
	return target == e.kind
}

func (e *kindError) Unwrap() error {
	return e.cause
}

// Wrap annotates err with the given failure kind, keeping both
// reachable from errors.Is.
func Wrap(kind, err error, msg string) error {
	return &kindError{kind: kind, cause: err, msg: msg}
}

// Wrapf is Wrap with a format string.
func Wrapf(kind, err error, format string, a ...interface{}) error {
	return Wrap(kind, err, fmt.Sprintf(format, a...))
}

// ExitCode maps an error from a run to the process exit code reported
// to the caller.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return SetupExitCode
}

// IsFatal reports whether the error kind aborts the run. Only network
// setup failures are survivable.
func IsFatal(err error) bool {
	return err != nil && !errors.Is(err, ErrNetworkSetup)
}
