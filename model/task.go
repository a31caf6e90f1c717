package model

import "time"

// NanCheckPolicy selects when publish() checks a Real value for NaN/Inf,
// mirroring the MC_NAN_CHECK environment variable.
type NanCheckPolicy int

const (
	NanCheckOff NanCheckPolicy = iota
	NanCheckConnectedOnly
	NanCheckAlways
)

// InitMode records the MC_COSIM_INIT setting (strict or relaxed). The
// Initialization Engine does not read it; convergence is enforced the same
// way in both modes.
type InitMode int

const (
	InitModeStrict InitMode = iota
	InitModeRelaxed
)

// Task configures one run: start/end time, synchronization step, output
// sampling, and the initialization/NaN-check policy flags.
type Task struct {
	Start time.Duration
	End   time.Duration
	Step  time.Duration

	// SampleInterval maps a store kind (see package result) to how many
	// communication points elapse between stored rows for that kind. A
	// missing entry defaults to 1 (store every point).
	SampleInterval map[string]int

	InitMode InitMode
	NanCheck NanCheckPolicy

	// MaxNanMessages bounds how many NonFinite occurrences get logged
	// before the check just aborts silently, per MC_NUM_NAN_CHECK_MESSAGES.
	MaxNanMessages int

	// InitLoopIterationBudget / StepLoopIterationBudget bound the
	// fixed-point iteration counts of §4.D/§4.E. Step is tighter by
	// default.
	InitLoopIterationBudget int
	StepLoopIterationBudget int

	// AbsTol/RelTol are epsilon_abs and epsilon_rel of the convergence
	// check |new-old| <= AbsTol + RelTol*|new|.
	AbsTol, RelTol float64

	// RealTimeFactor enables the synthetic per-component output channel
	// carrying step wall-clock / Δt.
	RealTimeFactor bool

	// Parallel enables the optional worker pool for non-loop groups.
	Parallel bool
}

// SampleEvery returns the configured decimation for kind, defaulting to 1.
func (t *Task) SampleEvery(kind string) int {
	if t.SampleInterval == nil {
		return 1
	}
	if n, ok := t.SampleInterval[kind]; ok && n > 0 {
		return n
	}
	return 1
}
