package initialize_test

import (
	"log/slog"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/mcx/bus"
	"github.com/sarchlab/mcx/fmi"
	"github.com/sarchlab/mcx/fmi/fake"
	"github.com/sarchlab/mcx/initialize"
	"github.com/sarchlab/mcx/mcxerr"
	"github.com/sarchlab/mcx/model"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// chain builds two components, A -> B, A's output feeding B's input, both
// over the fake library, and wires a Bus + one Connection between them.
func chainFixture() (*fmi.Component, *fmi.Component, []*model.Connection, *bus.Bus) {
	aOut := model.NewChannel("a.out", model.Real, 1)
	bIn := model.NewChannel("b.in", model.Real, 10)
	bOut := model.NewChannel("b.out", model.Real, 11)

	descA := &model.ComponentDesc{
		Name: "A",
		Kind: model.Fmi2CoSim,
		Ports: []*model.Port{
			{Name: "out", Direction: model.Out, Channels: []*model.Channel{aOut}},
		},
	}
	descB := &model.ComponentDesc{
		Name: "B",
		Kind: model.Fmi2CoSim,
		Ports: []*model.Port{
			{Name: "in", Direction: model.In, Channels: []*model.Channel{bIn}},
			{Name: "out", Direction: model.Out, Channels: []*model.Channel{bOut}},
		},
	}

	lib := fake.NewLibrary()
	lib.Register("A", func() *fake.Instance {
		inst := fake.NewInstance()
		inst.Out = []uint32{1}
		inst.Compute = func(map[uint32]float64) map[uint32]float64 {
			return map[uint32]float64{1: 5}
		}
		return inst
	})
	lib.Register("B", func() *fake.Instance {
		inst := fake.NewInstance()
		inst.In, inst.Out = []uint32{10}, []uint32{11}
		inst.Compute = func(in map[uint32]float64) map[uint32]float64 {
			return map[uint32]float64{11: in[10] * 2}
		}
		return inst
	})

	cA := fmi.NewComponent(descA)
	cB := fmi.NewComponent(descB)
	Expect(cA.Setup("", lib)).To(Succeed())
	Expect(cB.Setup("", lib)).To(Succeed())

	conns := []*model.Connection{
		{SourceComponent: "A", SourceChannel: aOut, SinkComponent: "B", SinkChannel: bIn},
	}

	b := bus.NewBuilder().WithLogger(newTestLogger()).Build()
	Expect(b.Connect(aOut, bIn)).To(Succeed())

	return cA, cB, conns, b
}

var _ = Describe("Initialization Engine", func() {
	It("propagates a non-loop chain to a consistent start state", func() {
		cA, cB, conns, b := chainFixture()
		eng := initialize.NewBuilder().WithBus(b).WithLogger(newTestLogger()).Build()

		_, err := eng.Run([]*fmi.Component{cA, cB}, conns, 0)
		Expect(err).NotTo(HaveOccurred())

		v, ok := conns[0].SinkChannel.Latest()
		Expect(ok).To(BeTrue())
		Expect(v.Real).To(Equal(5.0))
	})

	It("resolves an algebraic loop via bounded fixed-point iteration", func() {
		// A feeds B, B feeds back into A: a two-node loop whose fixed point
		// is a.out = 10 - b.out, b.out = a.out / 2.
		aIn := model.NewChannel("a.in", model.Real, 2)
		aOut := model.NewChannel("a.out", model.Real, 1)
		bIn := model.NewChannel("b.in", model.Real, 10)
		bOut := model.NewChannel("b.out", model.Real, 11)

		descA := &model.ComponentDesc{
			Name: "A",
			Kind: model.Fmi2CoSim,
			Ports: []*model.Port{
				{Name: "in", Direction: model.In, Channels: []*model.Channel{aIn}},
				{Name: "out", Direction: model.Out, Channels: []*model.Channel{aOut}},
			},
		}
		descB := &model.ComponentDesc{
			Name: "B",
			Kind: model.Fmi2CoSim,
			Ports: []*model.Port{
				{Name: "in", Direction: model.In, Channels: []*model.Channel{bIn}},
				{Name: "out", Direction: model.Out, Channels: []*model.Channel{bOut}},
			},
		}

		lib := fake.NewLibrary()
		lib.Register("A", func() *fake.Instance {
			inst := fake.NewInstance()
			inst.In, inst.Out = []uint32{2}, []uint32{1}
			inst.Compute = func(in map[uint32]float64) map[uint32]float64 {
				return map[uint32]float64{1: 10 - in[2]}
			}
			return inst
		})
		lib.Register("B", func() *fake.Instance {
			inst := fake.NewInstance()
			inst.In, inst.Out = []uint32{10}, []uint32{11}
			inst.Compute = func(in map[uint32]float64) map[uint32]float64 {
				return map[uint32]float64{11: in[10] / 2}
			}
			return inst
		})

		cA := fmi.NewComponent(descA)
		cB := fmi.NewComponent(descB)
		Expect(cA.Setup("", lib)).To(Succeed())
		Expect(cB.Setup("", lib)).To(Succeed())

		conns := []*model.Connection{
			{SourceComponent: "A", SourceChannel: aOut, SinkComponent: "B", SinkChannel: bIn},
			{SourceComponent: "B", SourceChannel: bOut, SinkComponent: "A", SinkChannel: aIn},
		}

		b := bus.NewBuilder().WithLogger(newTestLogger()).Build()
		Expect(b.Connect(aOut, bIn)).To(Succeed())
		Expect(b.Connect(bOut, aIn)).To(Succeed())

		eng := initialize.NewBuilder().WithBus(b).WithLogger(newTestLogger()).
			WithIterationBudget(100).WithTolerance(1e-9, 1e-9).Build()

		_, err := eng.Run([]*fmi.Component{cA, cB}, conns, 0)
		Expect(err).NotTo(HaveOccurred())

		av, _ := aOut.Latest()
		bv, _ := bOut.Latest()
		Expect(av.Real).To(BeNumerically("~", 20.0/3.0, 1e-6))
		Expect(bv.Real).To(BeNumerically("~", 10.0/3.0, 1e-6))
	})

	It("reports InitialLoopDiverged when the iteration budget is exhausted", func() {
		// A amplifies and inverts (out = -2*in), B passes through
		// unchanged; wired into a loop this never settles, so the
		// fixed-point iteration must exhaust its budget.
		aIn := model.NewChannel("a.in", model.Real, 2)
		aOut := model.NewChannel("a.out", model.Real, 1)
		seed := model.Value{Real: 1}
		aOut.Initial = &seed
		bIn := model.NewChannel("b.in", model.Real, 10)
		bOut := model.NewChannel("b.out", model.Real, 11)

		descA := &model.ComponentDesc{
			Name: "A",
			Kind: model.Fmi2CoSim,
			Ports: []*model.Port{
				{Name: "in", Direction: model.In, Channels: []*model.Channel{aIn}},
				{Name: "out", Direction: model.Out, Channels: []*model.Channel{aOut}},
			},
		}
		descB := &model.ComponentDesc{
			Name: "B",
			Kind: model.Fmi2CoSim,
			Ports: []*model.Port{
				{Name: "in", Direction: model.In, Channels: []*model.Channel{bIn}},
				{Name: "out", Direction: model.Out, Channels: []*model.Channel{bOut}},
			},
		}

		lib := fake.NewLibrary()
		lib.Register("A", func() *fake.Instance {
			inst := fake.NewInstance()
			inst.In, inst.Out = []uint32{2}, []uint32{1}
			inst.Compute = func(in map[uint32]float64) map[uint32]float64 {
				return map[uint32]float64{1: -2 * in[2]}
			}
			return inst
		})
		lib.Register("B", func() *fake.Instance {
			inst := fake.NewInstance()
			inst.In, inst.Out = []uint32{10}, []uint32{11}
			inst.Compute = func(in map[uint32]float64) map[uint32]float64 {
				return map[uint32]float64{11: in[10]}
			}
			return inst
		})

		cA := fmi.NewComponent(descA)
		cB := fmi.NewComponent(descB)
		Expect(cA.Setup("", lib)).To(Succeed())
		Expect(cB.Setup("", lib)).To(Succeed())

		conns := []*model.Connection{
			{SourceComponent: "A", SourceChannel: aOut, SinkComponent: "B", SinkChannel: bIn},
			{SourceComponent: "B", SourceChannel: bOut, SinkComponent: "A", SinkChannel: aIn},
		}

		b := bus.NewBuilder().WithLogger(newTestLogger()).Build()
		Expect(b.Connect(aOut, bIn)).To(Succeed())
		Expect(b.Connect(bOut, aIn)).To(Succeed())

		eng := initialize.NewBuilder().WithBus(b).WithLogger(newTestLogger()).
			WithIterationBudget(5).WithTolerance(1e-12, 0).Build()

		_, err := eng.Run([]*fmi.Component{cA, cB}, conns, 0)
		Expect(err).To(HaveOccurred())
		kind, ok := mcxerr.KindOf(err)
		Expect(ok).To(BeTrue())
		Expect(kind).To(Equal(mcxerr.InitialLoopDiverged))
	})
})
