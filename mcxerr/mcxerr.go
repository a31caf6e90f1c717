// Package mcxerr defines the closed set of error kinds the co-simulation
// master can surface, plus the one-line diagnostic wrapper every subsystem
// uses to report a failure back across the master boundary.
package mcxerr

import (
	"errors"
	"fmt"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var phaseCaser = cases.Title(language.English)

// Kind is the closed set of error kinds the co-simulation master can
// surface.
type Kind int

const (
	// ConfigInvalid marks an input description that violated a structural
	// rule.
	ConfigInvalid Kind = iota
	// TypeMismatch marks a connection whose endpoints disagree on type.
	TypeMismatch
	// MultipleSources marks a sink channel with more than one source.
	MultipleSources
	// UnknownVariable marks a named channel absent from the foreign
	// description.
	UnknownVariable
	// ForeignFailure marks a foreign call that returned error, fatal, or a
	// spurious discard.
	ForeignFailure
	// ForeignTimeout marks a foreign call that exceeded its budget.
	ForeignTimeout
	// InitialLoopDiverged marks a fixed-point that failed to converge during
	// initialization.
	InitialLoopDiverged
	// StepLoopDiverged marks a fixed-point that failed to converge during
	// stepping.
	StepLoopDiverged
	// NonFinite marks a NaN/Inf produced under the active NaN-check policy.
	NonFinite
	// Cancelled marks a cooperative cancellation that was honoured.
	Cancelled
	// IOFailure marks an extraction, result-write, or cleanup failure.
	IOFailure
)

func (k Kind) String() string {
	switch k {
	case ConfigInvalid:
		return "ConfigInvalid"
	case TypeMismatch:
		return "TypeMismatch"
	case MultipleSources:
		return "MultipleSources"
	case UnknownVariable:
		return "UnknownVariable"
	case ForeignFailure:
		return "ForeignFailure"
	case ForeignTimeout:
		return "ForeignTimeout"
	case InitialLoopDiverged:
		return "InitialLoopDiverged"
	case StepLoopDiverged:
		return "StepLoopDiverged"
	case NonFinite:
		return "NonFinite"
	case Cancelled:
		return "Cancelled"
	case IOFailure:
		return "IOFailure"
	default:
		return "Unknown"
	}
}

// Error is the single error type that crosses subsystem boundaries. It
// always names the kind, the component the error originated in (may be
// empty for run-wide errors such as ConfigInvalid), and the phase in which
// it happened — a single-line error class plus a one-line diagnostic
// context (component name + phase).
type Error struct {
	Kind      Kind
	Component string
	Phase     string
	Cause     error
}

// New builds an Error with no wrapped cause.
func New(kind Kind, component, phase, msg string) *Error {
	return &Error{Kind: kind, Component: component, Phase: phase, Cause: errors.New(msg)}
}

// Wrap builds an Error around an existing cause.
func Wrap(kind Kind, component, phase string, cause error) *Error {
	return &Error{Kind: kind, Component: component, Phase: phase, Cause: cause}
}

func (e *Error) Error() string {
	phase := phaseCaser.String(e.Phase)
	if e.Component == "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, phase, e.Cause)
	}
	return fmt.Sprintf("%s: %s[%s]: %v", e.Kind, phase, e.Component, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same Kind, so callers can
// write errors.Is(err, mcxerr.New(mcxerr.NonFinite, "", "", "")) style checks
// via a sentinel built with the Kind alone.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
