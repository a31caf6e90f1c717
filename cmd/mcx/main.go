// Command mcx runs one co-simulation from a JSON input description: it
// wires the Value Bus, builds one fmi.Component per declared component
// (backed by the in-process fake library, since a real FMI binary ABI is
// out of scope), drives master.Master end to end, and renders the result.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sarchlab/mcx/bus"
	"github.com/sarchlab/mcx/fmi"
	"github.com/sarchlab/mcx/fmi/fake"
	"github.com/sarchlab/mcx/graph"
	"github.com/sarchlab/mcx/master"
	"github.com/sarchlab/mcx/model"
	"github.com/sarchlab/mcx/schedule"
)

type cliFlags struct {
	tempDir    string
	resultDir  string
	logFile    string
	graphOut   string
	verbose    bool
}

func main() {
	var flags cliFlags

	root := &cobra.Command{
		Use:   "mcx INPUTFILE",
		Short: "Run a co-simulation described by INPUTFILE",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], flags)
		},
		SilenceUsage: true,
	}

	root.Flags().StringVarP(&flags.tempDir, "tempdir", "t", "", "extraction directory (default: a fresh temp dir, removed on exit)")
	root.Flags().StringVarP(&flags.resultDir, "resultdir", "r", "", "result output directory (default: current directory)")
	root.Flags().StringVarP(&flags.logFile, "logfile", "L", "", "log file path (default: stderr)")
	root.Flags().StringVarP(&flags.graphOut, "graph", "g", "", "write the resolved dependency graph as Graphviz DOT to this path")
	root.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug-level logging")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(inputFile string, flags cliFlags) error {
	applyEnvOverrides(&flags)

	log, closeLog, err := buildLogger(flags)
	if err != nil {
		return err
	}
	defer closeLog()

	task, descs, conns, err := loadConfig(inputFile)
	if err != nil {
		return err
	}

	applyTaskEnvOverrides(task)

	valueBus := bus.NewBuilder().
		WithLogger(log).
		WithNanCheck(nanCheckFromEnv()).
		WithMaxNanMessages(intFromEnv("MC_NUM_NAN_CHECK_MESSAGES", 10)).
		Build()

	// Connect validates every wire (type match, single source) before the
	// run starts; PropagateAll/PropagateConns only need the channels
	// themselves, but surfacing a bad connection here is cheaper than
	// surfacing it mid-run.
	for _, conn := range conns {
		if err := valueBus.Connect(conn.SourceChannel, conn.SinkChannel); err != nil {
			return err
		}
	}

	tempRoot, useTempDir, err := resolveTempRoot(flags.tempDir)
	if err != nil {
		return err
	}
	if useTempDir {
		defer os.RemoveAll(tempRoot)
	}

	lib := fake.NewLibrary()
	for _, d := range descs {
		registerFakePassthrough(lib, d)
	}

	m := master.NewBuilder().
		WithLogger(log).
		WithLibrary(lib).
		WithTempRoot(tempRoot, useTempDir).
		WithBus(valueBus).
		WithStore(newFileStore(flags.resultDir, descs)).
		WithTask(task).
		WithMonitor(flags.verbose).
		Build()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, runErr := m.Run(ctx, descs, conns)

	if flags.graphOut != "" {
		if err := writeGraph(flags.graphOut, descs, conns); err != nil {
			log.Warn("failed to write dependency graph", "err", err)
		}
	}

	fmt.Println(summary.Render())

	return runErr
}

func buildLogger(flags cliFlags) (*slog.Logger, func(), error) {
	level := slog.LevelInfo
	if flags.verbose {
		level = slog.LevelDebug
	}

	out := os.Stderr
	closer := func() {}
	if flags.logFile != "" {
		f, err := os.OpenFile(flags.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, err
		}
		out = f
		closer = func() { f.Close() }
	}

	log := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	return log, closer, nil
}

func resolveTempRoot(flagVal string) (string, bool, error) {
	if dir := os.Getenv("USE_TEMP_DIR"); dir != "" {
		return dir, false, nil
	}
	if flagVal != "" {
		return flagVal, false, nil
	}
	dir, err := os.MkdirTemp("", "mcx-")
	if err != nil {
		return "", false, err
	}
	return dir, true, nil
}

func applyEnvOverrides(flags *cliFlags) {
	if v := os.Getenv("MC_ENABLE_GRAPHS"); v != "" && flags.graphOut == "" {
		if ok, _ := strconv.ParseBool(v); ok {
			flags.graphOut = "mcx-graph.dot"
		}
	}
}

func applyTaskEnvOverrides(task *model.Task) {
	if n := intFromEnv("MC_NUM_NAN_CHECK_MESSAGES", -1); n >= 0 {
		task.MaxNanMessages = n
	}
	task.NanCheck = nanCheckFromEnv()

	switch os.Getenv("MC_COSIM_INIT") {
	case "relaxed":
		task.InitMode = model.InitModeRelaxed
	case "strict":
		task.InitMode = model.InitModeStrict
	}

	if boolFromEnv("SUM_TIME", false) {
		task.RealTimeFactor = true
	}
}

func nanCheckFromEnv() model.NanCheckPolicy {
	switch intFromEnv("MC_NAN_CHECK", 0) {
	case 2:
		return model.NanCheckAlways
	case 1:
		return model.NanCheckConnectedOnly
	default:
		return model.NanCheckOff
	}
}

func boolFromEnv(name string, def bool) bool {
	v, ok := os.LookupEnv(name)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func intFromEnv(name string, def int) int {
	v, ok := os.LookupEnv(name)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// registerFakePassthrough wires a component's declared name to a fake
// instance that sets every Real out-channel to the sum of all Real
// in-channel values, recomputed on every DoStep/InitializeSlave/GetReal call. Real FMI binary
// loading is out of scope (see the Non-goals this binary's design note
// documents in DESIGN.md); this lets the CLI run an actual wired model
// end to end instead of requiring a test harness to supply one.
func registerFakePassthrough(lib *fake.Library, desc *model.ComponentDesc) {
	var inRefs, outRefs []uint32
	for _, p := range desc.Ports {
		for _, ch := range p.Channels {
			if ch.Type != model.Real {
				continue
			}
			if p.Direction == model.In {
				inRefs = append(inRefs, ch.ValueReference)
			} else {
				outRefs = append(outRefs, ch.ValueReference)
			}
		}
	}

	lib.Register(desc.Name, func() *fake.Instance {
		inst := fake.NewInstance()
		inst.In, inst.Out = inRefs, outRefs
		inst.Compute = func(in map[uint32]float64) map[uint32]float64 {
			out := make(map[uint32]float64, len(outRefs))
			var sum float64
			for _, vr := range inRefs {
				sum += in[vr]
			}
			for _, vr := range outRefs {
				out[vr] = sum
			}
			return out
		}
		return inst
	})
}

func writeGraph(path string, descs []*model.ComponentDesc, conns []*model.Connection) error {
	labels := make([]string, len(descs))
	components := make([]*fmi.Component, len(descs))
	for i, d := range descs {
		labels[i] = d.Name
		components[i] = fmi.NewComponent(d)
	}

	adj := schedule.BuildGraph(components, conns)
	order := graph.Solve(adj, len(components)).WithDefaultCutNodes()

	return os.WriteFile(path, []byte(order.DOT(labels)), 0o644)
}
