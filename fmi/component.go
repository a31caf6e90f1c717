package fmi

import (
	"path/filepath"

	"github.com/sarchlab/mcx/mcxerr"
	"github.com/sarchlab/mcx/model"
)

// LifecycleState is a Component's position in the setup/initialization/run
// state machine: only its drawn transitions are legal, and errors from any
// state route to Terminated/Destroyed while respecting InstantiatedOk/RunOk.
type LifecycleState int

const (
	Created LifecycleState = iota
	Configured
	Instantiated
	Initializing
	Running
	Terminated
	Destroyed
)

// Bucket is the named value group SetValues/GetValues operate over.
type Bucket int

const (
	Params Bucket = iota
	InitialValues
	Inputs
	Tunables
	Outputs
	Locals
)

// Component is the adapter: a uniform view over one black-box FMI instance,
// uniquely owning its Ports/Channels (via Desc), its foreign instance
// handle, and its extracted working directory. InstantiatedOk/RunOk track
// which foreign teardown calls are legal, so a partially-set-up component
// never gets an illegal terminate/free call.
type Component struct {
	Desc     *model.ComponentDesc
	Instance Instance

	state LifecycleState

	InstantiatedOk bool
	RunOk          bool
	Finished       bool

	WorkingDir    string
	LastCommPoint float64

	// RealTimeFactor is the synthetic per-component channel: wall-clock
	// time spent in the last Step call, divided by that step's Δt. Zero
	// until the scheduler has run at least one step with the real-time-
	// factor option enabled.
	RealTimeFactor float64

	lastTunable map[*model.Channel]model.Value
}

// NewComponent wraps a description; the returned Component starts in
// Created and has no foreign instance yet.
func NewComponent(desc *model.ComponentDesc) *Component {
	return &Component{Desc: desc, state: Created}
}

// State returns the component's current lifecycle state.
func (c *Component) State() LifecycleState { return c.state }

// Setup records tempRoot/<encodedName>_<md5OfPackage> as WorkingDir, loads
// the package via lib, and acquires the instance. It does not unpack the
// package or create WorkingDir on disk.
func (c *Component) Setup(tempRoot string, lib Library) error {
	if c.state != Created && c.state != Configured {
		return mcxerr.New(mcxerr.ConfigInvalid, c.Desc.Name, "setup", "component not in Created/Configured state")
	}

	dirName, err := ExtractionDirName(c.Desc.Name, c.Desc.PackagePath)
	if err != nil {
		return mcxerr.Wrap(mcxerr.IOFailure, c.Desc.Name, "setup", err)
	}
	c.WorkingDir = filepath.Join(tempRoot, dirName)

	desc, err := lib.ParseDescription(c.Desc.PackagePath)
	if err != nil {
		return mcxerr.Wrap(mcxerr.ConfigInvalid, c.Desc.Name, "setup", err)
	}

	kind := V2CoSim
	if c.Desc.Kind == model.Fmi1CoSim {
		kind = V1CoSim
	}

	inst, err := lib.Instantiate(desc, c.Desc.Name, kind)
	if err != nil {
		return mcxerr.Wrap(mcxerr.ForeignFailure, c.Desc.Name, "setup", err)
	}

	c.Instance = inst
	c.InstantiatedOk = true
	c.state = Instantiated
	return nil
}

// channelsForBucket returns the channels belonging to bucket. It does not
// look at DefinedDuringInit; SetValues applies that filter.
func (c *Component) channelsForBucket(bucket Bucket) []*model.Channel {
	var out []*model.Channel
	for _, p := range c.Desc.Ports {
		for _, ch := range p.Channels {
			switch bucket {
			case Params:
				if _, ok := c.Desc.Params[ch.Name]; ok {
					out = append(out, ch)
				}
			case InitialValues:
				if _, ok := c.Desc.InitialValues[ch.Name]; ok {
					out = append(out, ch)
				}
			case Inputs:
				if p.Direction == model.In && !ch.Tunable {
					out = append(out, ch)
				}
			case Tunables:
				if ch.Tunable {
					out = append(out, ch)
				}
			case Outputs:
				if p.Direction == model.Out {
					out = append(out, ch)
				}
			case Locals:
				// Locals are channels on neither an In nor genuine Out
				// port of the public interface; represented here as Out
				// channels flagged discrete-but-not-connected is out of
				// scope for the adapter itself, so Locals mirrors Outputs
				// for any port explicitly marked Optional.
				if p.Direction == model.Out && p.Mode == model.Optional {
					out = append(out, ch)
				}
			}
		}
	}
	return out
}

// SetValues writes every channel of bucket to the instance. For the Params
// and InitialValues buckets, channels whose DefinedDuringInit flag is false
// are skipped; the other buckets write every channel that has a value.
func (c *Component) SetValues(bucket Bucket) error {
	for _, ch := range c.channelsForBucket(bucket) {
		if !ch.DefinedDuringInit && (bucket == Params || bucket == InitialValues) {
			continue
		}
		v, ok := ch.Latest()
		if !ok {
			if iv, ok2 := initialValueFor(c, bucket, ch); ok2 {
				v = iv
			} else {
				continue
			}
		}
		if st := setOne(c.Instance, ch, v); !st.Recoverable() {
			return mcxerr.New(mcxerr.ForeignFailure, c.Desc.Name, "setValues", "foreign set returned "+st.String())
		} else if st == Warning {
			continue
		}
	}
	return nil
}

// SetChangedTunables writes only the Tunable channels whose latest value
// differs from the last value this Component wrote for them, so tunables
// are only re-written when their value changes. A channel marked Discrete
// but not Tunable is not handled here; it belongs to the Inputs bucket and
// is written on every step. The first
// call for any given channel always writes, since there is no prior written
// value to compare against.
func (c *Component) SetChangedTunables() error {
	if c.lastTunable == nil {
		c.lastTunable = make(map[*model.Channel]model.Value)
	}
	for _, ch := range c.channelsForBucket(Tunables) {
		v, ok := ch.Latest()
		if !ok {
			continue
		}
		if prev, seen := c.lastTunable[ch]; seen && valueEqual(ch.Type, prev, v) {
			continue
		}
		if st := setOne(c.Instance, ch, v); !st.Recoverable() {
			return mcxerr.New(mcxerr.ForeignFailure, c.Desc.Name, "step", "foreign set (tunable) returned "+st.String())
		}
		c.lastTunable[ch] = v
	}
	return nil
}

func initialValueFor(c *Component, bucket Bucket, ch *model.Channel) (model.Value, bool) {
	switch bucket {
	case Params:
		if v, ok := c.Desc.Params[ch.Name]; ok {
			return v, true
		}
	case InitialValues:
		if v, ok := c.Desc.InitialValues[ch.Name]; ok {
			return v, true
		}
	}
	if ch.Initial != nil {
		return *ch.Initial, true
	}
	if ch.Default != nil {
		return *ch.Default, true
	}
	return model.Value{}, false
}

func setOne(inst Instance, ch *model.Channel, v model.Value) Status {
	switch ch.Type {
	case model.Real:
		return inst.SetReal(ch.ValueReference, v.Real)
	case model.Integer:
		return inst.SetInteger(ch.ValueReference, v.Integer)
	case model.Boolean:
		return inst.SetBoolean(ch.ValueReference, v.Boolean)
	case model.String:
		return inst.SetString(ch.ValueReference, v.String)
	case model.Binary:
		return inst.SetBinary(ch.ValueReference, v.Binary)
	default:
		return StatusError
	}
}

// GetValues reads every channel of bucket back from the instance into the
// channel's latest value.
func (c *Component) GetValues(bucket Bucket) error {
	for _, ch := range c.channelsForBucket(bucket) {
		v, st := getOne(c.Instance, ch)
		if !st.Recoverable() {
			return mcxerr.New(mcxerr.ForeignFailure, c.Desc.Name, "getValues", "foreign get returned "+st.String())
		}
		ch.StoreRaw(v)
	}
	return nil
}

func valueEqual(t model.Type, a, b model.Value) bool {
	switch t {
	case model.Real:
		return a.Real == b.Real
	case model.Integer:
		return a.Integer == b.Integer
	case model.Boolean:
		return a.Boolean == b.Boolean
	case model.String:
		return a.String == b.String
	case model.Binary:
		return string(a.Binary) == string(b.Binary)
	default:
		return false
	}
}

func getOne(inst Instance, ch *model.Channel) (model.Value, Status) {
	switch ch.Type {
	case model.Real:
		r, st := inst.GetReal(ch.ValueReference)
		return model.Value{Real: r}, st
	case model.Integer:
		i, st := inst.GetInteger(ch.ValueReference)
		return model.Value{Integer: i}, st
	case model.Boolean:
		b, st := inst.GetBoolean(ch.ValueReference)
		return model.Value{Boolean: b}, st
	case model.String:
		s, st := inst.GetString(ch.ValueReference)
		return model.Value{String: s}, st
	case model.Binary:
		b, st := inst.GetBinary(ch.ValueReference)
		return model.Value{Binary: b}, st
	default:
		return model.Value{}, StatusError
	}
}

// Step advances the component by dt from t, interpreting the returned
// status: warning logs and continues, discard is resolved via Terminated(),
// error/fatal are unrecoverable and poison RunOk so teardown skips
// Terminate.
func (c *Component) Step(t, dt float64) (Status, error) {
	st := c.Instance.DoStep(t, dt, true)
	c.LastCommPoint = t + dt

	switch st {
	case OK, Warning:
		return st, nil
	case Discard:
		terminated, tst := c.Instance.Terminated()
		if !tst.Recoverable() || !terminated {
			c.RunOk = false
			return st, mcxerr.New(mcxerr.ForeignFailure, c.Desc.Name, "step", "spurious discard")
		}
		c.Finished = true
		return st, nil
	default:
		c.RunOk = false
		return st, mcxerr.New(mcxerr.ForeignFailure, c.Desc.Name, "step", "foreign step returned "+st.String())
	}
}

// EnterInitializationMode dispatches to the version-appropriate entry
// point: enter-init for FMI-2, slave-initialize for FMI-1 (which also
// triggers the initial computation).
func (c *Component) EnterInitializationMode(startTime float64) error {
	c.state = Initializing
	var st Status
	if c.Desc.Kind == model.Fmi2CoSim {
		if st = c.Instance.SetupExperiment(startTime, nil, nil); !st.Recoverable() {
			return mcxerr.New(mcxerr.ForeignFailure, c.Desc.Name, "enterInit", "setupExperiment failed")
		}
		st = c.Instance.EnterInitializationMode()
	} else {
		st = c.Instance.InitializeSlave(startTime)
	}
	if !st.Recoverable() {
		return mcxerr.New(mcxerr.ForeignFailure, c.Desc.Name, "enterInit", "entry point returned "+st.String())
	}
	c.RunOk = true
	return nil
}

// ExitInitializationMode is FMI-2.0 only.
func (c *Component) ExitInitializationMode() error {
	c.state = Running
	if c.Desc.Kind != model.Fmi2CoSim {
		return nil
	}
	if st := c.Instance.ExitInitializationMode(); !st.Recoverable() {
		return mcxerr.New(mcxerr.ForeignFailure, c.Desc.Name, "exitInit", "exitInitializationMode failed")
	}
	return nil
}

// InitialDependencies returns the sparse in-channel -> out-channel
// dependency relation, falling back to "every out depends on every in"
// when the instance declares no structure at all. A declared structure is
// returned as is: an out-channel that no entry lists is not given the
// all-inputs fallback, whatever its initial kind.
func (c *Component) InitialDependencies() map[uint32][]uint32 {
	deps, ok := c.Instance.InitialDependencies()
	if ok {
		return deps
	}

	all := c.outValueRefs()
	deps = make(map[uint32][]uint32)
	for _, p := range c.Desc.Ports {
		if p.Direction != model.In {
			continue
		}
		for _, ch := range p.Channels {
			deps[ch.ValueReference] = all
		}
	}
	return deps
}

func (c *Component) outValueRefs() []uint32 {
	var out []uint32
	for _, p := range c.Desc.Ports {
		if p.Direction != model.Out {
			continue
		}
		for _, ch := range p.Channels {
			out = append(out, ch.ValueReference)
		}
	}
	return out
}

// Terminate calls the foreign terminate() only if RunOk.
func (c *Component) Terminate() error {
	if !c.RunOk {
		return nil
	}
	st := c.Instance.Terminate()
	c.state = Terminated
	if !st.Recoverable() {
		return mcxerr.New(mcxerr.ForeignFailure, c.Desc.Name, "terminate", "terminate returned "+st.String())
	}
	return nil
}

// Free calls the foreign freeInstance() only if InstantiatedOk.
func (c *Component) Free() {
	if !c.InstantiatedOk {
		return
	}
	c.Instance.Free()
	c.state = Destroyed
}
