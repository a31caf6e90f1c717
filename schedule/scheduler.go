// Package schedule implements the Step Scheduler: the propagate/step/store
// loop that advances the coupled system one
// communication point at a time from t=start to t=end, honouring the SCC
// group ordering computed once at setup, the optional parallel-group runner,
// and cooperative cancellation.
package schedule

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sarchlab/mcx/bus"
	"github.com/sarchlab/mcx/fmi"
	"github.com/sarchlab/mcx/graph"
	"github.com/sarchlab/mcx/mcxerr"
	"github.com/sarchlab/mcx/model"
	"github.com/sarchlab/mcx/result"
)

// Scheduler drives one run's communication-point loop.
type Scheduler struct {
	bus   *bus.Bus
	store result.Store
	log   *slog.Logger
	task  *model.Task
}

// Builder constructs a Scheduler via an immutable With-chain.
type Builder struct {
	bus   *bus.Bus
	store result.Store
	log   *slog.Logger
	task  *model.Task
}

func NewBuilder() Builder {
	return Builder{log: slog.Default(), store: result.NopStore{}}
}

func (b Builder) WithBus(bus *bus.Bus) Builder       { b.bus = bus; return b }
func (b Builder) WithStore(s result.Store) Builder   { b.store = s; return b }
func (b Builder) WithLogger(log *slog.Logger) Builder {
	b.log = log
	return b
}
func (b Builder) WithTask(t *model.Task) Builder { b.task = t; return b }

func (b Builder) Build() *Scheduler {
	return &Scheduler{bus: b.bus, store: b.store, log: b.log, task: b.task}
}

// Result is Run's outcome.
type Result struct {
	CommunicationPoints int
	Warnings            int
}

// rowCounters tracks, per store kind, how many rows have been emitted so
// far — the decimation counters are independent per kind, not tied to the
// communication-point index.
type rowCounters struct {
	counts map[result.Kind]int
	ticks  map[result.Kind]int
}

func newRowCounters() *rowCounters {
	return &rowCounters{counts: make(map[result.Kind]int), ticks: make(map[result.Kind]int)}
}

func (r *rowCounters) due(kind result.Kind, every int) (int, bool) {
	r.ticks[kind]++
	if r.ticks[kind]%every != 0 {
		return 0, false
	}
	row := r.counts[kind]
	r.counts[kind]++
	return row, true
}

// RunState is the per-run bookkeeping computed once at setup and threaded
// through every communication point: the SCC group ordering, the
// channel-to-component index, and the per-kind decimation counters. Run
// builds one internally; Master builds and keeps its own so it can drive
// StepOnce from an akita tick instead of a blocking loop.
type RunState struct {
	order   *graph.OrderedGroups
	indexOf map[*model.Channel]int
	counters *rowCounters
}

// Order exposes the resolved group ordering, which can be rendered via
// graph.OrderedGroups.DOT without re-running the resolver.
func (rs *RunState) Order() *graph.OrderedGroups { return rs.order }

// NewRunState computes the SCC ordering for components/conns once, at
// run-setup rather than per step.
func NewRunState(components []*fmi.Component, conns []*model.Connection) *RunState {
	adj := BuildGraph(components, conns)
	order := graph.Solve(adj, len(components)).WithDefaultCutNodes()

	indexOf := make(map[*model.Channel]int)
	for i, c := range components {
		for _, p := range c.Desc.Ports {
			for _, ch := range p.Channels {
				indexOf[ch] = i
			}
		}
	}

	return &RunState{order: order, indexOf: indexOf, counters: newRowCounters()}
}

// Run advances components from startTime to endTime, per conns' wiring,
// checking ctx for cancellation between communication points and between
// groups. Components already Instantiated/Running is the caller's
// responsibility (the master orchestrates Setup/Initialize before Run).
func (s *Scheduler) Run(ctx context.Context, components []*fmi.Component, conns []*model.Connection) (Result, error) {
	var res Result
	defer func() {
		if err := s.store.Finished(); err != nil {
			s.log.Warn("store finished() returned an error", "err", err)
		}
	}()

	rs := NewRunState(components, conns)

	step := s.task.Step
	start, end := s.task.Start, s.task.End

	for t := start; t < end; t += step {
		if err := ctx.Err(); err != nil {
			return res, mcxerr.New(mcxerr.Cancelled, "", "schedule", "cancelled at communication point")
		}

		dt := step
		if t+dt > end {
			dt = end - t
		}

		if err := s.StepOnce(ctx, rs, components, conns, t, dt); err != nil {
			return res, err
		}

		res.CommunicationPoints++
	}

	return res, nil
}

// StepOnce performs exactly one communication point — propagate, step every
// group in SCC order, store — against the state rs accumulated across
// calls. Exported so master can drive it one point per akita tick instead
// of through Run's blocking loop.
func (s *Scheduler) StepOnce(ctx context.Context, rs *RunState, components []*fmi.Component, conns []*model.Connection, t, dt time.Duration) error {
	if err := s.bus.PropagateAll(conns); err != nil {
		return err
	}

	for _, g := range rs.order.Groups {
		if err := ctx.Err(); err != nil {
			return mcxerr.New(mcxerr.Cancelled, "", "schedule", "cancelled between groups")
		}

		if g.IsLoop {
			if err := s.resolveStepLoop(components, conns, g, t, dt); err != nil {
				return err
			}
			continue
		}

		if s.task.Parallel {
			if err := s.stepGroupParallel(components, g.Nodes, t, dt); err != nil {
				return err
			}
		} else {
			if err := s.stepGroupSequential(components, g.Nodes, t, dt); err != nil {
				return err
			}
		}

		if err := s.bus.PropagateConns(conns, inGroup(rs.indexOf, g.Nodes)); err != nil {
			return err
		}
	}

	return s.storeRow(components, rs.counters)
}

func inGroup(indexOf map[*model.Channel]int, nodes []int) func(*model.Channel) bool {
	set := make(map[int]bool, len(nodes))
	for _, n := range nodes {
		set[n] = true
	}
	return func(ch *model.Channel) bool { return set[indexOf[ch]] }
}

// stepOne advances one component across dt, sub-stepping per
// Desc.StepSizeOverride when set, and latches a finished component by
// skipping it entirely.
func (s *Scheduler) stepOne(c *fmi.Component, t, dt time.Duration) error {
	if c.Finished {
		return nil
	}

	if err := c.SetValues(fmi.Inputs); err != nil {
		return err
	}
	if err := c.SetChangedTunables(); err != nil {
		return err
	}

	sub := dt
	n := 1
	if c.Desc.StepSizeOverride > 0 && c.Desc.StepSizeOverride < dt {
		sub = c.Desc.StepSizeOverride
		n = int(dt / sub)
	}

	cursor := t
	for i := 0; i < n; i++ {
		stepDt := sub
		if i == n-1 {
			stepDt = t + dt - cursor
		}

		started := time.Now()
		_, err := c.Step(cursor.Seconds(), stepDt.Seconds())
		elapsed := time.Since(started)

		if s.task.RealTimeFactor && stepDt > 0 {
			c.RealTimeFactor = elapsed.Seconds() / stepDt.Seconds()
		}

		if err != nil {
			return err
		}
		if c.Finished {
			break
		}
		cursor += stepDt
	}

	if err := c.GetValues(fmi.Outputs); err != nil {
		return err
	}
	return c.GetValues(fmi.Locals)
}

func (s *Scheduler) stepGroupSequential(components []*fmi.Component, nodes []int, t, dt time.Duration) error {
	for _, n := range nodes {
		if err := s.stepOne(components[n], t, dt); err != nil {
			return err
		}
	}
	return nil
}

// stepGroupParallel advances every component of a non-loop group
// concurrently via an errgroup, joining on the first error — disjoint
// in-channels/out-channels by construction, so no synchronization is needed
// beyond the join.
func (s *Scheduler) stepGroupParallel(components []*fmi.Component, nodes []int, t, dt time.Duration) error {
	g := new(errgroup.Group)
	for _, n := range nodes {
		c := components[n]
		g.Go(func() error { return s.stepOne(c, t, dt) })
	}
	return g.Wait()
}

// resolveStepLoop runs the bounded runtime fixed-point iteration over a loop
// group — identical in shape to the initialization engine's, but bounded
// more tightly.
func (s *Scheduler) resolveStepLoop(components []*fmi.Component, conns []*model.Connection, g graph.Group, t, dt time.Duration) error {
	cut := cutOutputChannels(components, g.CutNodes)

	budget := s.task.StepLoopIterationBudget
	if budget <= 0 {
		budget = 20
	}

	indexOf := make(map[*model.Channel]int)
	for i, c := range components {
		for _, p := range c.Desc.Ports {
			for _, ch := range p.Channels {
				indexOf[ch] = i
			}
		}
	}
	include := inGroup(indexOf, g.Nodes)

	for iter := 0; iter < budget; iter++ {
		prev := snapshotReal(cut)

		for _, n := range g.Nodes {
			if err := s.stepOne(components[n], t, dt); err != nil {
				return err
			}
			if err := s.bus.PropagateConns(conns, include); err != nil {
				return err
			}
		}

		next := snapshotReal(cut)
		if converged(prev, next, s.task.AbsTol, s.task.RelTol) {
			return nil
		}
	}

	return mcxerr.New(mcxerr.StepLoopDiverged, "", "step",
		"fixed-point iteration did not converge within the budget")
}

func cutOutputChannels(components []*fmi.Component, cutNodes []int) []*model.Channel {
	var out []*model.Channel
	for _, n := range cutNodes {
		for _, p := range components[n].Desc.Ports {
			if p.Direction != model.Out {
				continue
			}
			out = append(out, p.Channels...)
		}
	}
	return out
}

func snapshotReal(chs []*model.Channel) []float64 {
	vals := make([]float64, len(chs))
	for i, ch := range chs {
		v, _ := ch.Latest()
		vals[i] = v.Real
	}
	return vals
}

// storeRow decides once per communication point, per kind, whether this
// point is due to be stored (the decimation counters are shared across every
// component so all components are sampled at the same points), then emits a
// row for each component that carries a channel of that kind.
func (s *Scheduler) storeRow(components []*fmi.Component, counters *rowCounters) error {
	rowIn, dueIn := counters.due(result.In, s.task.SampleEvery(string(result.In)))
	rowOut, dueOut := counters.due(result.Out, s.task.SampleEvery(string(result.Out)))
	rowLocal, dueLocal := counters.due(result.Local, s.task.SampleEvery(string(result.Local)))

	var rowRtf int
	var dueRtf bool
	if s.task.RealTimeFactor {
		rowRtf, dueRtf = counters.due(result.RealTimeFactor, s.task.SampleEvery(string(result.RealTimeFactor)))
	}

	for idx, c := range components {
		if dueIn && hasDirection(c, model.In) {
			if err := s.store.Store(result.In, idx, rowIn); err != nil {
				return mcxerr.Wrap(mcxerr.IOFailure, c.Desc.Name, "store", err)
			}
		}
		if dueOut && hasDirection(c, model.Out) {
			if err := s.store.Store(result.Out, idx, rowOut); err != nil {
				return mcxerr.Wrap(mcxerr.IOFailure, c.Desc.Name, "store", err)
			}
		}
		if dueLocal && hasLocal(c) {
			if err := s.store.Store(result.Local, idx, rowLocal); err != nil {
				return mcxerr.Wrap(mcxerr.IOFailure, c.Desc.Name, "store", err)
			}
		}
		if dueRtf {
			if err := s.store.Store(result.RealTimeFactor, idx, rowRtf); err != nil {
				return mcxerr.Wrap(mcxerr.IOFailure, c.Desc.Name, "store", err)
			}
		}
	}
	return nil
}

func hasDirection(c *fmi.Component, dir model.Direction) bool {
	for _, p := range c.Desc.Ports {
		if p.Direction == dir {
			return true
		}
	}
	return false
}

// hasLocal reports whether c exposes a Locals bucket: an Out port explicitly
// marked Optional, mirroring fmi.Component.channelsForBucket's own
// classification of Locals.
func hasLocal(c *fmi.Component) bool {
	for _, p := range c.Desc.Ports {
		if p.Direction == model.Out && p.Mode == model.Optional {
			return true
		}
	}
	return false
}
