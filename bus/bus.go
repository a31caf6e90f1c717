// Package bus implements the Value Bus: typed channel wiring, the
// affine-transform-then-clamp publish path, and NaN/Inf policing. It is the
// one subsystem the scheduler and initialization engine both call on every
// communication point, and it is non-suspending: every method here returns
// without blocking.
package bus

import (
	"log/slog"
	"math"
	"sync"

	"github.com/sarchlab/mcx/mcxerr"
	"github.com/sarchlab/mcx/model"
)

// Bus carries values between channels with deterministic transform
// semantics. A Bus is built once per run and shared (read and written
// single-threaded within the propagation/store phases).
type Bus struct {
	mu     sync.Mutex
	log    *slog.Logger
	policy model.NanCheckPolicy
	maxMsg int

	sinkSources map[*model.Channel]*model.Channel
	connected   map[*model.Channel]bool
	nanMessages int
}

// Builder constructs a Bus via an immutable With-chain pattern.
type Builder struct {
	log    *slog.Logger
	policy model.NanCheckPolicy
	maxMsg int
}

// NewBuilder returns a Builder defaulting to NanCheckOff and the
// package-default logger.
func NewBuilder() Builder {
	return Builder{log: slog.Default(), maxMsg: 10}
}

func (b Builder) WithLogger(log *slog.Logger) Builder {
	b.log = log
	return b
}

func (b Builder) WithNanCheck(policy model.NanCheckPolicy) Builder {
	b.policy = policy
	return b
}

func (b Builder) WithMaxNanMessages(n int) Builder {
	b.maxMsg = n
	return b
}

// Build creates the Bus.
func (b Builder) Build() *Bus {
	return &Bus{
		log:         b.log,
		policy:      b.policy,
		maxMsg:      b.maxMsg,
		sinkSources: make(map[*model.Channel]*model.Channel),
		connected:   make(map[*model.Channel]bool),
	}
}

// Connect records source as the sole source of sink. It fails with
// TypeMismatch or MultipleSources; it never mutates either channel.
func (bus *Bus) Connect(source, sink *model.Channel) error {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	if source.Type != sink.Type {
		return mcxerr.New(mcxerr.TypeMismatch, sink.Name, "connect",
			"source type "+source.Type.String()+" != sink type "+sink.Type.String())
	}
	if _, exists := bus.sinkSources[sink]; exists {
		return mcxerr.New(mcxerr.MultipleSources, sink.Name, "connect",
			"sink already has a source")
	}

	bus.sinkSources[sink] = source
	bus.connected[sink] = true
	return nil
}

// Connected reports whether ch has a recorded source (used by the
// "connected" NaN-check policy and by unconnected-input resolution).
func (bus *Bus) Connected(ch *model.Channel) bool {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	return bus.connected[ch]
}

// Sample returns the last stored value of ch.
func (bus *Bus) Sample(ch *model.Channel) (model.Value, bool) {
	return ch.Latest()
}

// Publish applies the affine transform (Real only) then the clamp bounds
// then stores the result into sink. On a NonFinite failure under the active
// policy, the previous value is retained (publish never leaves a
// partially-updated channel).
func (bus *Bus) Publish(sink *model.Channel, raw model.Value) error {
	v := raw

	if sink.Type == model.Real {
		t := sink.Transform
		y := t.Scale*raw.Real + t.Offset
		y = sink.Bounds.Clamp(y)
		v.Real = y

		if bus.shouldCheck(sink) && !isFinite(y) {
			return bus.reportNonFinite(sink, y)
		}
	}

	sink.StoreRaw(v)
	return nil
}

// PublishVia applies an explicit transform override (a per-connection
// override from model.Connection.EffectiveTransform) instead of the sink
// channel's own transform.
func (bus *Bus) PublishVia(sink *model.Channel, raw model.Value, t model.Transform) error {
	if sink.Type != model.Real {
		sink.StoreRaw(raw)
		return nil
	}

	y := t.Scale*raw.Real + t.Offset
	y = sink.Bounds.Clamp(y)

	if bus.shouldCheck(sink) && !isFinite(y) {
		return bus.reportNonFinite(sink, y)
	}

	sink.StoreRaw(model.Value{Real: y})
	return nil
}

func (bus *Bus) shouldCheck(ch *model.Channel) bool {
	switch bus.policy {
	case model.NanCheckAlways:
		return true
	case model.NanCheckConnectedOnly:
		return bus.Connected(ch)
	default:
		return false
	}
}

func (bus *Bus) reportNonFinite(ch *model.Channel, y float64) error {
	bus.mu.Lock()
	bus.nanMessages++
	n := bus.nanMessages
	bus.mu.Unlock()

	if n <= bus.maxMsg {
		bus.log.Warn("non-finite value published", "channel", ch.Name, "value", y, "occurrence", n)
	}

	return mcxerr.New(mcxerr.NonFinite, ch.Name, "publish", "non-finite value published")
}

func isFinite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
