// Package fmi implements the Component Adapter: a version-agnostic
// operations surface over a black-box FMI-1.0/2.0 co-simulation instance,
// plus the small foreign-surface interface that a foreign binding
// implements. The only implementation in this module is the fmi/fake test
// double; there is no binding to the real FMI C ABI.
package fmi

// Status is the foreign call outcome, mapped 1:1 from the FMI return
// status.
type Status int

const (
	OK Status = iota
	Warning
	Discard
	StatusError
	Fatal
)

func (s Status) String() string {
	switch s {
	case OK:
		return "ok"
	case Warning:
		return "warning"
	case Discard:
		return "discard"
	case StatusError:
		return "error"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Recoverable reports whether a status leaves the run able to continue
// (true) rather than aborting it immediately (false).
// OK, Warning and Discard are all recoverable in the sense that the
// scheduler decides what to do with them; Error and Fatal never are.
func (s Status) Recoverable() bool {
	return s == OK || s == Warning || s == Discard
}
