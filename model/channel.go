// Package model holds the core data model consumed by every subsystem: the
// typed Channel slots, the Ports that group them, the Connections between
// them, the per-run Task configuration, and the in-memory input description
// the (external) XML reader is expected to produce. None of these types
// suspend or perform I/O; they are the shared vocabulary of bus, fmi, graph,
// initialize and schedule.
package model

// Type is the closed set of channel value types.
type Type int

const (
	Real Type = iota
	Integer
	Boolean
	String
	Binary
)

func (t Type) String() string {
	switch t {
	case Real:
		return "Real"
	case Integer:
		return "Integer"
	case Boolean:
		return "Boolean"
	case String:
		return "String"
	case Binary:
		return "Binary"
	default:
		return "Unknown"
	}
}

// ResolutionPolicy governs what an unconnected input channel resolves to.
type ResolutionPolicy int

const (
	UseDefault ResolutionPolicy = iota
	UseInitial
	ErrorIfUnconnected
)

// Value is the tagged union a Channel's latest value holds. Only the field
// matching Type is meaningful.
type Value struct {
	Real    float64
	Integer int64
	Boolean bool
	String  string
	Binary  []byte
}

// Transform is the affine map applied to Real channels before clamping:
// y = Scale*x + Offset.
type Transform struct {
	Scale  float64
	Offset float64
}

// Identity is the no-op transform.
var Identity = Transform{Scale: 1, Offset: 0}

// Bounds is an optional clamp range. HasMin/HasMax report whether each bound
// is configured; Min/Max are only meaningful when the matching flag is set.
type Bounds struct {
	HasMin, HasMax bool
	Min, Max       float64
}

// Clamp applies the bounds to x, if configured.
func (b Bounds) Clamp(x float64) float64 {
	if b.HasMin && x < b.Min {
		x = b.Min
	}
	if b.HasMax && x > b.Max {
		x = b.Max
	}
	return x
}

// Channel is a single typed scalar value-slot. Type is immutable after
// creation. Transform and Bounds apply only when Type == Real.
type Channel struct {
	Name string
	Type Type

	Unit      string
	Transform Transform
	Bounds    Bounds

	Default *Value
	Initial *Value

	Discrete               bool
	Tunable                bool
	DefinedDuringInit      bool
	ValueReference         uint32

	latest Value
	set    bool
}

// NewChannel constructs a Channel with the identity transform and no bounds.
func NewChannel(name string, typ Type, valueRef uint32) *Channel {
	return &Channel{
		Name:           name,
		Type:           typ,
		ValueReference: valueRef,
		Transform:      Identity,
	}
}

// Latest returns the last stored value and whether one has ever been set.
func (c *Channel) Latest() (Value, bool) {
	return c.latest, c.set
}

// setLatest stores v unconditionally; StoreRaw is its exported entry point.
func (c *Channel) setLatest(v Value) {
	c.latest = v
	c.set = true
}

// StoreRaw stores v unconditionally, applying no transform or clamp itself.
// The Value Bus calls it once it has applied transform and clamp; it is also
// used to record a value read directly back from a foreign instance (an
// output or local channel's own computed value) and for initial-value
// seeding.
func (c *Channel) StoreRaw(v Value) {
	c.setLatest(v)
}

// ResolvedInitial returns the value an unconnected channel should adopt,
// per its ResolutionPolicy (carried on the owning Port, not the Channel
// itself — see Port.Resolution).
func (c *Channel) ResolvedInitial(policy ResolutionPolicy) (Value, bool) {
	switch policy {
	case UseInitial:
		if c.Initial != nil {
			return *c.Initial, true
		}
	case UseDefault:
		if c.Default != nil {
			return *c.Default, true
		}
	}
	return Value{}, false
}
