// Package master is the top-level orchestrator: it owns the full lifecycle
// of one run — Setup, the Initialization Engine, the communication-point
// loop, and teardown in reverse creation order — and is the only package
// that wires the akita discrete-event engine, generalizing the usual
// per-cycle Tick into a per-communication-point Tick.
package master

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/sarchlab/akita/v4/monitoring"
	"github.com/sarchlab/akita/v4/sim"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/mcx/bus"
	"github.com/sarchlab/mcx/fmi"
	"github.com/sarchlab/mcx/initialize"
	"github.com/sarchlab/mcx/model"
	"github.com/sarchlab/mcx/result"
	"github.com/sarchlab/mcx/schedule"
)

// masterComponent is the single top-level ticking component registered with
// the akita engine. Unlike a typical per-cycle Tick (one simulated clock
// edge per call), this Tick drives exactly one communication point of the
// Step Scheduler — the engine's "run until no progress is made" idiom maps
// directly onto "run communication points until end is reached".
type masterComponent struct {
	*sim.TickingComponent

	ctx   context.Context
	sched *schedule.Scheduler
	rs    *schedule.RunState

	components []*fmi.Component
	conns      []*model.Connection

	cursor time.Duration
	end    time.Duration
	step   time.Duration

	err error
}

func (m *masterComponent) Tick(now sim.VTimeInSec) (madeProgress bool) {
	if m.err != nil || m.cursor >= m.end {
		return false
	}

	dt := m.step
	if m.cursor+dt > m.end {
		dt = m.end - m.cursor
	}

	if err := m.sched.StepOnce(m.ctx, m.rs, m.components, m.conns, m.cursor, dt); err != nil {
		m.err = err
		return false
	}

	m.cursor += dt
	return m.cursor < m.end
}

// Master drives one run end to end.
type Master struct {
	log *slog.Logger

	lib fmi.Library

	tempRoot   string
	useTempDir bool

	bus   *bus.Bus
	store result.Store
	task  *model.Task

	enableMonitor bool
}

// Builder constructs a Master via an immutable With-chain.
type Builder struct {
	log *slog.Logger

	lib fmi.Library

	tempRoot   string
	useTempDir bool

	bus   *bus.Bus
	store result.Store
	task  *model.Task

	enableMonitor bool
}

func NewBuilder() Builder {
	return Builder{log: slog.Default(), store: result.NopStore{}}
}

func (b Builder) WithLogger(log *slog.Logger) Builder { b.log = log; return b }
func (b Builder) WithLibrary(lib fmi.Library) Builder { b.lib = lib; return b }

// WithTempRoot sets the extraction root and whether it was auto-created
// (true) versus supplied by USE_TEMP_DIR (false); only auto-created
// directories are removed on clean shutdown.
func (b Builder) WithTempRoot(dir string, autoCreated bool) Builder {
	b.tempRoot, b.useTempDir = dir, autoCreated
	return b
}

func (b Builder) WithBus(bus *bus.Bus) Builder     { b.bus = bus; return b }
func (b Builder) WithStore(s result.Store) Builder { b.store = s; return b }
func (b Builder) WithTask(t *model.Task) Builder   { b.task = t; return b }

// WithMonitor enables registering the engine and the master component with
// an akita/v4/monitoring.Monitor and starting its HTTP server, the same way
// an akita driver/device pair would.
func (b Builder) WithMonitor(enable bool) Builder { b.enableMonitor = enable; return b }

func (b Builder) Build() *Master {
	return &Master{
		log: b.log, lib: b.lib,
		tempRoot: b.tempRoot, useTempDir: b.useTempDir,
		bus: b.bus, store: b.store, task: b.task,
		enableMonitor: b.enableMonitor,
	}
}

// Run builds one fmi.Component per desc, executes Setup, the Initialization
// Engine, the communication-point loop, and teardown (always, regardless of
// outcome), returning the end-of-run summary.
func (m *Master) Run(ctx context.Context, descs []*model.ComponentDesc, conns []*model.Connection) (result.Summary, error) {
	components := make([]*fmi.Component, len(descs))
	for i, d := range descs {
		components[i] = fmi.NewComponent(d)
	}

	if err := m.setupAll(components); err != nil {
		m.teardown(components)
		return m.summary(components, 0, err), err
	}

	initBudget := m.task.InitLoopIterationBudget
	if initBudget <= 0 {
		initBudget = 100
	}
	absTol, relTol := m.task.AbsTol, m.task.RelTol
	if absTol <= 0 && relTol <= 0 {
		absTol, relTol = 1e-6, 1e-6
	}

	initEng := initialize.NewBuilder().
		WithBus(m.bus).
		WithLogger(m.log).
		WithIterationBudget(initBudget).
		WithTolerance(absTol, relTol).
		Build()

	initRes, err := initEng.Run(components, conns, m.task.Start.Seconds())
	if err != nil {
		m.teardown(components)
		return m.summary(components, initRes.Warnings, err), err
	}

	runErr := m.runSchedule(ctx, components, conns)

	m.teardown(components)

	return m.summary(components, initRes.Warnings, runErr), runErr
}

// runSchedule wires the akita serial engine around one Scheduler and drives
// it to completion, per the DOMAIN STACK's "generalizing NewTickingComponent
// to a single top-level ticking masterComponent" design.
func (m *Master) runSchedule(ctx context.Context, components []*fmi.Component, conns []*model.Connection) error {
	sched := schedule.NewBuilder().
		WithBus(m.bus).
		WithStore(m.store).
		WithLogger(m.log).
		WithTask(m.task).
		Build()
	rs := schedule.NewRunState(components, conns)

	engine := sim.NewSerialEngine()

	mc := &masterComponent{
		ctx: ctx, sched: sched, rs: rs,
		components: components, conns: conns,
		cursor: m.task.Start, end: m.task.End, step: m.task.Step,
	}

	freq := sim.Freq(1 / m.task.Step.Seconds())
	mc.TickingComponent = sim.NewTickingComponent("Master", engine, freq, mc)

	if m.enableMonitor {
		monitor := monitoring.NewMonitor()
		monitor.RegisterEngine(engine)
		monitor.RegisterComponent(mc)
		monitor.StartServer()
	}

	// Best-effort safety net: if the process exits via atexit.Exit from
	// anywhere in the process before the normal
	// teardown path below runs, auto-created extraction directories still
	// get removed. removeAutoExtracted is idempotent (os.RemoveAll on an
	// already-gone directory is not an error), so registering it here never
	// conflicts with Master.teardown's own call.
	atexit.Register(func() { m.removeAutoExtracted(components) })

	runErr := engine.Run()
	if runErr == nil {
		runErr = mc.err
	}

	if err := m.store.Finished(); err != nil {
		m.log.Warn("store finished() returned an error", "err", err)
		if runErr == nil {
			runErr = err
		}
	}

	return runErr
}

func (m *Master) setupAll(components []*fmi.Component) error {
	for _, c := range components {
		if err := c.Setup(m.tempRoot, m.lib); err != nil {
			return err
		}
	}
	return nil
}

// teardown calls Terminate/Free in reverse creation order — respecting
// InstantiatedOk/RunOk, which each method already checks — then removes any
// auto-created extraction directories. It never aborts early: every
// component gets a teardown attempt regardless of an earlier one's error.
func (m *Master) teardown(components []*fmi.Component) {
	for i := len(components) - 1; i >= 0; i-- {
		c := components[i]
		if err := c.Terminate(); err != nil {
			m.log.Warn("terminate failed", "component", c.Desc.Name, "err", err)
		}
		c.Free()
	}
	m.removeAutoExtracted(components)
}

func (m *Master) removeAutoExtracted(components []*fmi.Component) {
	if !m.useTempDir {
		return
	}
	for _, c := range components {
		if c.WorkingDir == "" {
			continue
		}
		if err := os.RemoveAll(c.WorkingDir); err != nil {
			m.log.Warn("extraction cleanup failed", "component", c.Desc.Name, "dir", c.WorkingDir, "err", err)
		}
	}
}

func (m *Master) summary(components []*fmi.Component, warnings int, runErr error) result.Summary {
	status := result.Completed
	switch {
	case runErr != nil:
		status = result.Failed
	case warnings > 0:
		status = result.CompletedWithWarnings
	}

	stepSeconds := m.task.Step.Seconds()
	rows := make([]result.ComponentSummary, len(components))
	for i, c := range components {
		n := 0
		if stepSeconds > 0 {
			n = int(c.LastCommPoint/stepSeconds + 0.5)
		}
		rows[i] = result.ComponentSummary{Name: c.Desc.Name, Rows: n, Finished: c.Finished}
	}

	return result.Summary{Status: status, Err: runErr, Components: rows}
}
