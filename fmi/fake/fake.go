// Package fake provides a pure-Go double of the foreign FMI surface
// (fmi.Library/fmi.Instance) for unit tests that need a running component
// without the real FMI binary ABI. Each fake instance computes its Real
// outputs from its Real inputs through a test-supplied function, so tests can
// assert on data flow and convergence without a real foreign binary.
package fake

import (
	"fmt"

	"github.com/sarchlab/mcx/fmi"
)

// Library is a fake fmi.Library: ParseDescription/Instantiate never touch
// disk, returning instances wired up by the test via Registry.
type Library struct {
	Registry map[string]func() *Instance
}

// NewLibrary builds an empty fake Library.
func NewLibrary() *Library {
	return &Library{Registry: make(map[string]func() *Instance)}
}

// Register associates an instance name with a factory invoked on
// Instantiate, so each test run gets a fresh Instance.
func (l *Library) Register(name string, factory func() *Instance) {
	l.Registry[name] = factory
}

type description struct{ path string }

func (d description) Path() string { return d.path }

func (l *Library) ParseDescription(path string) (fmi.Description, error) {
	return description{path: path}, nil
}

func (l *Library) Instantiate(desc fmi.Description, name string, kind fmi.Kind) (fmi.Instance, error) {
	factory, ok := l.Registry[name]
	if !ok {
		return nil, fmt.Errorf("fake: no registered instance for %q", name)
	}
	inst := factory()
	inst.kind = kind
	return inst, nil
}

func (l *Library) FreeDescription(desc fmi.Description) {}

// Instance is a fake FMI instance whose out-channels are computed by
// Compute from the Real values of In on every DoStep, InitializeSlave and
// GetReal call. DiscardAt, ErrorAt and FatalAt, when non-nil, make DoStep
// return Discard, StatusError or Fatal at the named simulation time
// (compared with a small epsilon), letting tests exercise §7's error paths
// deterministically.
type Instance struct {
	kind fmi.Kind

	reals    map[uint32]float64
	integers map[uint32]int64
	booleans map[uint32]bool
	strings  map[uint32]string
	binaries map[uint32][]byte

	// Compute, if set, recomputes Out from In on every DoStep; a nil
	// Compute leaves outputs untouched (a pure pass-through memory).
	Compute func(in map[uint32]float64) map[uint32]float64
	In, Out []uint32

	DiscardAt      *float64
	TrulyTerminated bool
	ErrorAt        *float64
	FatalAt        *float64

	Deps map[uint32][]uint32

	EnterInitCalls int
	ExitInitCalls  int
	StepCalls      int
	Terminated_    bool
	Freed          bool
}

// NewInstance returns an Instance with all value maps initialized.
func NewInstance() *Instance {
	return &Instance{
		reals:    make(map[uint32]float64),
		integers: make(map[uint32]int64),
		booleans: make(map[uint32]bool),
		strings:  make(map[uint32]string),
		binaries: make(map[uint32][]byte),
	}
}

func (i *Instance) SetupExperiment(startTime float64, tolerance, stopTime *float64) fmi.Status {
	return fmi.OK
}

func (i *Instance) EnterInitializationMode() fmi.Status {
	i.EnterInitCalls++
	return fmi.OK
}

func (i *Instance) ExitInitializationMode() fmi.Status {
	i.ExitInitCalls++
	return fmi.OK
}

func (i *Instance) InitializeSlave(startTime float64) fmi.Status {
	i.EnterInitCalls++
	i.recompute()
	return fmi.OK
}

func (i *Instance) SetReal(vr uint32, v float64) fmi.Status {
	i.reals[vr] = v
	return fmi.OK
}
func (i *Instance) SetInteger(vr uint32, v int64) fmi.Status {
	i.integers[vr] = v
	return fmi.OK
}
func (i *Instance) SetBoolean(vr uint32, v bool) fmi.Status {
	i.booleans[vr] = v
	return fmi.OK
}
func (i *Instance) SetString(vr uint32, v string) fmi.Status {
	i.strings[vr] = v
	return fmi.OK
}
func (i *Instance) SetBinary(vr uint32, v []byte) fmi.Status {
	i.binaries[vr] = v
	return fmi.OK
}

func (i *Instance) GetReal(vr uint32) (float64, fmi.Status) {
	i.recompute()
	return i.reals[vr], fmi.OK
}
func (i *Instance) GetInteger(vr uint32) (int64, fmi.Status)   { return i.integers[vr], fmi.OK }
func (i *Instance) GetBoolean(vr uint32) (bool, fmi.Status)    { return i.booleans[vr], fmi.OK }
func (i *Instance) GetString(vr uint32) (string, fmi.Status)   { return i.strings[vr], fmi.OK }
func (i *Instance) GetBinary(vr uint32) ([]byte, fmi.Status)   { return i.binaries[vr], fmi.OK }

func (i *Instance) recompute() {
	if i.Compute == nil {
		return
	}
	in := make(map[uint32]float64, len(i.In))
	for _, vr := range i.In {
		in[vr] = i.reals[vr]
	}
	out := i.Compute(in)
	for vr, v := range out {
		i.reals[vr] = v
	}
}

func (i *Instance) DoStep(t, dt float64, newStep bool) fmi.Status {
	i.StepCalls++

	if i.FatalAt != nil && closeEnough(t, *i.FatalAt) {
		return fmi.Fatal
	}
	if i.ErrorAt != nil && closeEnough(t, *i.ErrorAt) {
		return fmi.StatusError
	}
	if i.DiscardAt != nil && closeEnough(t, *i.DiscardAt) {
		i.Terminated_ = i.TrulyTerminated
		return fmi.Discard
	}

	i.recompute()
	return fmi.OK
}

func closeEnough(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < 1e-9
}

func (i *Instance) Terminated() (bool, fmi.Status) {
	return i.Terminated_, fmi.OK
}

func (i *Instance) Terminate() fmi.Status {
	return fmi.OK
}

func (i *Instance) Free() {
	i.Freed = true
}

func (i *Instance) InitialDependencies() (map[uint32][]uint32, bool) {
	if i.Deps == nil {
		return nil, false
	}
	return i.Deps, true
}
