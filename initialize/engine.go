// Package initialize implements the Initialization Engine: it drives every
// component from Instantiated to Running in lock step, using
// the initial-dependency graph (package graph, over the adjacency this
// package derives) to order groups and a bounded fixed-point iteration to
// resolve algebraic loops.
package initialize

import (
	"log/slog"

	"github.com/sarchlab/mcx/bus"
	"github.com/sarchlab/mcx/fmi"
	"github.com/sarchlab/mcx/graph"
	"github.com/sarchlab/mcx/mcxerr"
	"github.com/sarchlab/mcx/model"
)

// Engine drives the initialization protocol once per run.
type Engine struct {
	bus             *bus.Bus
	log             *slog.Logger
	iterationBudget int
	absTol, relTol  float64
}

// Builder constructs an Engine via an immutable With-chain.
type Builder struct {
	bus             *bus.Bus
	log             *slog.Logger
	iterationBudget int
	absTol, relTol  float64
}

func NewBuilder() Builder {
	return Builder{log: slog.Default(), iterationBudget: 100, absTol: 1e-6, relTol: 1e-6}
}

func (b Builder) WithBus(bus *bus.Bus) Builder { b.bus = bus; return b }
func (b Builder) WithLogger(log *slog.Logger) Builder {
	b.log = log
	return b
}
func (b Builder) WithIterationBudget(n int) Builder { b.iterationBudget = n; return b }
func (b Builder) WithTolerance(abs, rel float64) Builder {
	b.absTol, b.relTol = abs, rel
	return b
}

func (b Builder) Build() *Engine {
	return &Engine{bus: b.bus, log: b.log, iterationBudget: b.iterationBudget, absTol: b.absTol, relTol: b.relTol}
}

// Result is Run's outcome: how many warnings were logged along the way.
type Result struct {
	Warnings int
}

// Run executes the five-step initialization protocol over components,
// connected by conns, starting at startTime. On any error, components already
// Instantiated are left that way for the caller to tear down (Run never
// calls Terminate/Free itself).
func (e *Engine) Run(components []*fmi.Component, conns []*model.Connection, startTime float64) (Result, error) {
	var res Result

	// Step 1: pre-init value assignment.
	for _, c := range components {
		e.seedUnconnectedInputs(c)
		if err := c.SetValues(fmi.Params); err != nil {
			return res, err
		}
		if err := c.SetValues(fmi.InitialValues); err != nil {
			return res, err
		}
		if err := c.SetValues(fmi.Inputs); err != nil {
			return res, err
		}
	}

	// Step 2: enter initialization mode.
	for _, c := range components {
		if err := c.EnterInitializationMode(startTime); err != nil {
			return res, err
		}
	}

	// Step 3: re-assert inputs.
	for _, c := range components {
		if err := c.SetValues(fmi.InitialValues); err != nil {
			return res, err
		}
		if err := c.SetValues(fmi.Inputs); err != nil {
			return res, err
		}
	}

	// Step 4: propagate through groups.
	adj := BuildGraph(components, conns)
	order := graph.Solve(adj, len(components)).WithDefaultCutNodes()

	for _, g := range order.Groups {
		if !g.IsLoop {
			if err := e.evaluateGroup(components, conns, g.Nodes); err != nil {
				return res, err
			}
			continue
		}

		if err := e.resolveLoop(components, conns, g); err != nil {
			return res, err
		}
	}

	// Step 5: exit initialization mode, in the same group order.
	for _, g := range order.Groups {
		for _, n := range g.Nodes {
			if err := components[n].ExitInitializationMode(); err != nil {
				return res, err
			}
		}
	}

	return res, nil
}

func (e *Engine) seedUnconnectedInputs(c *fmi.Component) {
	for _, p := range c.Desc.Ports {
		if p.Direction != model.In {
			continue
		}
		for _, ch := range p.Channels {
			if _, ok := ch.Latest(); ok {
				continue
			}
			if v, ok := ch.ResolvedInitial(p.Resolution); ok {
				ch.StoreRaw(v)
			}
		}
	}
}

// evaluateGroup performs one pass over nodes: for each node in turn,
// propagate inputs from their sources (including outputs of nodes already
// evaluated in this pass), write them to the foreign instance and trigger
// output computation; then publish those outputs back onto the bus.
func (e *Engine) evaluateGroup(components []*fmi.Component, conns []*model.Connection, nodes []int) error {
	inGroup := func(idx int) bool {
		for _, n := range nodes {
			if n == idx {
				return true
			}
		}
		return false
	}

	indexOf := make(map[*model.Channel]int)
	for i, c := range components {
		for _, p := range c.Desc.Ports {
			for _, ch := range p.Channels {
				indexOf[ch] = i
			}
		}
	}

	include := func(sink *model.Channel) bool {
		return inGroup(indexOf[sink])
	}

	for _, n := range nodes {
		if err := e.bus.PropagateConns(conns, include); err != nil {
			return err
		}
		c := components[n]
		if err := c.SetValues(fmi.Inputs); err != nil {
			return err
		}
		if err := c.GetValues(fmi.Outputs); err != nil {
			return err
		}
	}

	return e.bus.PropagateConns(conns, include)
}

// resolveLoop runs the bounded fixed-point iteration over a loop group,
// seeding cut-node outputs with their initial values and
// stopping once every cut value converges under the configured tolerance.
func (e *Engine) resolveLoop(components []*fmi.Component, conns []*model.Connection, g graph.Group) error {
	cutChannels := cutOutputChannels(components, g.CutNodes)

	for _, ch := range cutChannels {
		if ch.Initial != nil {
			ch.StoreRaw(*ch.Initial)
		} else if _, ok := ch.Latest(); !ok {
			ch.StoreRaw(model.Value{})
		}
	}

	for iter := 0; iter < e.iterationBudget; iter++ {
		prev := snapshotReal(cutChannels)

		if err := e.evaluateGroup(components, conns, g.Nodes); err != nil {
			return err
		}

		next := snapshotReal(cutChannels)
		if converged(prev, next, e.absTol, e.relTol) {
			return nil
		}
	}

	return mcxerr.New(mcxerr.InitialLoopDiverged, "", "initialize",
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
