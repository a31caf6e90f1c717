package fmi

// Description is the opaque handle returned by parsing a packaged model's
// description, via parseDescription(path) -> handle. The core never looks
// inside it.
type Description interface {
	// Path is the on-disk location the description was parsed from, needed
	// by Library.Instantiate.
	Path() string
}

// Library is the factory surface of the foreign FMI adapter collaborator:
// parsing a packaged model's description and instantiating it.
type Library interface {
	ParseDescription(path string) (Description, error)
	Instantiate(desc Description, name string, kind Kind) (Instance, error)
	FreeDescription(desc Description)
}

// Kind mirrors model.FmiKind without importing the model package, keeping
// the foreign-surface interface free of the rest of the core's vocabulary.
type Kind int

const (
	V1CoSim Kind = iota
	V2CoSim
)

// Instance is the uniform, version-agnostic operations surface demanded
// over a single instantiated foreign component. fmi/fake implements it in
// pure Go; this module contains no implementation over the real FMI 1.0/2.0
// C ABI.
type Instance interface {
	// SetupExperiment corresponds to fmi2_setupExperiment; FMI-1
	// implementations treat it as a no-op and fold startTime into
	// InitializeSlave instead.
	SetupExperiment(startTime float64, tolerance *float64, stopTime *float64) Status

	// EnterInitializationMode / ExitInitializationMode are FMI-2 only; FMI-1
	// implementations must return OK without side effects.
	EnterInitializationMode() Status
	ExitInitializationMode() Status

	// InitializeSlave is FMI-1 only (it also triggers the initial
	// computation); FMI-2 implementations must return OK without side
	// effects.
	InitializeSlave(startTime float64) Status

	SetReal(valueRef uint32, v float64) Status
	SetInteger(valueRef uint32, v int64) Status
	SetBoolean(valueRef uint32, v bool) Status
	SetString(valueRef uint32, v string) Status
	SetBinary(valueRef uint32, v []byte) Status

	GetReal(valueRef uint32) (float64, Status)
	GetInteger(valueRef uint32) (int64, Status)
	GetBoolean(valueRef uint32) (bool, Status)
	GetString(valueRef uint32) (string, Status)
	GetBinary(valueRef uint32) ([]byte, Status)

	DoStep(t, dt float64, newStep bool) Status

	// Terminated corresponds to getBooleanStatus(instance, terminated),
	// FMI-2 only; used after a Discard status to tell a spurious discard
	// from a deliberate one. FMI-1 implementations report true.
	Terminated() (bool, Status)

	Terminate() Status
	Free()

	// InitialDependencies returns, for each in-channel value reference, the
	// set of out-channel value references whose initial-unknowns declare a
	// dependency on it. ok is false when the instance declares no such
	// structure at all (every out then depends on every in, the conservative
	// fallback).
	InitialDependencies() (deps map[uint32][]uint32, ok bool)
}
