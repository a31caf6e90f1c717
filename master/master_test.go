package master_test

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/mcx/bus"
	"github.com/sarchlab/mcx/fmi/fake"
	"github.com/sarchlab/mcx/master"
	"github.com/sarchlab/mcx/mcxerr"
	"github.com/sarchlab/mcx/model"
	"github.com/sarchlab/mcx/result"
)

func tempPackage(name string) string {
	f, err := os.CreateTemp("", name+"-*.fmu")
	Expect(err).NotTo(HaveOccurred())
	_, _ = f.WriteString("fake fmu bytes for " + name)
	f.Close()
	DeferCleanup(func() { os.Remove(f.Name()) })
	return f.Name()
}

func gainChainFixture() ([]*model.ComponentDesc, []*model.Connection, *fake.Library) {
	aOut := model.NewChannel("a.out", model.Real, 1)
	bIn := model.NewChannel("b.in", model.Real, 10)
	bOut := model.NewChannel("b.out", model.Real, 11)

	descA := &model.ComponentDesc{
		Name: "A", Kind: model.Fmi2CoSim, PackagePath: tempPackage("A"),
		Ports: []*model.Port{{Name: "out", Direction: model.Out, Channels: []*model.Channel{aOut}}},
	}
	descB := &model.ComponentDesc{
		Name: "B", Kind: model.Fmi2CoSim, PackagePath: tempPackage("B"),
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
			return map[uint32]float64{1: 3}
		}
		return inst
	})
	lib.Register("B", func() *fake.Instance {
		inst := fake.NewInstance()
		inst.In, inst.Out = []uint32{10}, []uint32{11}
		inst.Compute = func(in map[uint32]float64) map[uint32]float64 {
			return map[uint32]float64{11: 2 * in[10]}
		}
		return inst
	})

	conns := []*model.Connection{
		{SourceComponent: "A", SourceChannel: aOut, SinkComponent: "B", SinkChannel: bIn},
	}

	return []*model.ComponentDesc{descA, descB}, conns, lib
}

var _ = Describe("Master", func() {
	It("drives a component chain from setup through teardown to a completed summary", func() {
		descs, conns, lib := gainChainFixture()
		task := &model.Task{Start: 0, End: 300 * time.Millisecond, Step: 100 * time.Millisecond}

		tempRoot, err := os.MkdirTemp("", "mcx-master-")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { os.RemoveAll(tempRoot) })

		m := master.NewBuilder().
			WithLibrary(lib).
			WithTempRoot(tempRoot, true).
			WithBus(bus.NewBuilder().Build()).
			WithTask(task).
			Build()

		summary, err := m.Run(context.Background(), descs, conns)
		Expect(err).NotTo(HaveOccurred())
		Expect(summary.Status).To(Equal(result.Completed))
		Expect(summary.Components).To(HaveLen(2))
		for _, c := range summary.Components {
			Expect(c.Finished).To(BeFalse())
		}

		entries, err := os.ReadDir(tempRoot)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(BeEmpty())
	})

	It("tears down already-setup components and reports the failure when a later setup fails", func() {
		descs, conns, lib := gainChainFixture()
		descs[1].PackagePath = filepath.Join(os.TempDir(), "mcx-master-does-not-exist.fmu")
		task := &model.Task{Start: 0, End: 200 * time.Millisecond, Step: 100 * time.Millisecond}

		m := master.NewBuilder().
			WithLibrary(lib).
			WithTempRoot(os.TempDir(), false).
			WithBus(bus.NewBuilder().Build()).
			WithTask(task).
			Build()

		summary, err := m.Run(context.Background(), descs, conns)
		Expect(err).To(HaveOccurred())
		kind, ok := mcxerr.KindOf(err)
		Expect(ok).To(BeTrue())
		Expect(kind).To(Equal(mcxerr.IOFailure))
		Expect(summary.Status).To(Equal(result.Failed))
	})

	It("propagates InitialLoopDiverged through to a failed summary", func() {
		aIn := model.NewChannel("a.in", model.Real, 2)
		aOut := model.NewChannel("a.out", model.Real, 1)
		bIn := model.NewChannel("b.in", model.Real, 10)
		bOut := model.NewChannel("b.out", model.Real, 11)
		aOut.Initial = &model.Value{Real: 1}

		descA := &model.ComponentDesc{
			Name: "A", Kind: model.Fmi2CoSim, PackagePath: tempPackage("loopA"),
			Ports: []*model.Port{
				{Name: "in", Direction: model.In, Channels: []*model.Channel{aIn}},
				{Name: "out", Direction: model.Out, Channels: []*model.Channel{aOut}},
			},
		}
		descB := &model.ComponentDesc{
			Name: "B", Kind: model.Fmi2CoSim, PackagePath: tempPackage("loopB"),
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

		conns := []*model.Connection{
			{SourceComponent: "A", SourceChannel: aOut, SinkComponent: "B", SinkChannel: bIn},
			{SourceComponent: "B", SourceChannel: bOut, SinkComponent: "A", SinkChannel: aIn},
		}

		task := &model.Task{
			Start: 0, End: 100 * time.Millisecond, Step: 100 * time.Millisecond,
			InitLoopIterationBudget: 5, AbsTol: 1e-12, RelTol: 0,
		}

		m := master.NewBuilder().
			WithLibrary(lib).
			WithTempRoot(os.TempDir(), false).
			WithBus(bus.NewBuilder().Build()).
			WithTask(task).
			Build()

		summary, err := m.Run(context.Background(), []*model.ComponentDesc{descA, descB}, conns)
		Expect(err).To(HaveOccurred())
		kind, ok := mcxerr.KindOf(err)
		Expect(ok).To(BeTrue())
		Expect(kind).To(Equal(mcxerr.InitialLoopDiverged))
		Expect(summary.Status).To(Equal(result.Failed))
	})

	It("honours cooperative cancellation during stepping", func() {
		descs, conns, lib := gainChainFixture()
		task := &model.Task{Start: 0, End: time.Second, Step: 100 * time.Millisecond}

		m := master.NewBuilder().
			WithLibrary(lib).
			WithTempRoot(os.TempDir(), false).
			WithBus(bus.NewBuilder().Build()).
			WithTask(task).
			Build()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := m.Run(ctx, descs, conns)
		Expect(err).To(HaveOccurred())
		kind, ok := mcxerr.KindOf(err)
		Expect(ok).To(BeTrue())
		Expect(kind).To(Equal(mcxerr.Cancelled))
	})

	It("calls the store's Finished exactly once on a completed run", func() {
		descs, conns, lib := gainChainFixture()
		task := &model.Task{Start: 0, End: 300 * time.Millisecond, Step: 100 * time.Millisecond}
		store := newCountingStore()

		m := master.NewBuilder().
			WithLibrary(lib).
			WithTempRoot(os.TempDir(), false).
			WithBus(bus.NewBuilder().Build()).
			WithStore(store).
			WithTask(task).
			Build()

		_, err := m.Run(context.Background(), descs, conns)
		Expect(err).NotTo(HaveOccurred())
		Expect(store.finished).To(Equal(1))
	})

	It("calls the store's Finished exactly once even when the run is cancelled", func() {
		descs, conns, lib := gainChainFixture()
		task := &model.Task{Start: 0, End: time.Second, Step: 100 * time.Millisecond}
		store := newCountingStore()

		m := master.NewBuilder().
			WithLibrary(lib).
			WithTempRoot(os.TempDir(), false).
			WithBus(bus.NewBuilder().Build()).
			WithStore(store).
			WithTask(task).
			Build()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := m.Run(ctx, descs, conns)
		Expect(err).To(HaveOccurred())
		Expect(store.finished).To(Equal(1))
	})
})

// countingStore counts Finished calls, for assertions that don't need
// gomock's call-order machinery.
type countingStore struct {
	finished int
}

func newCountingStore() *countingStore { return &countingStore{} }

func (s *countingStore) Store(result.Kind, int, int) error { return nil }

func (s *countingStore) Finished() error {
	s.finished++
	return nil
}
