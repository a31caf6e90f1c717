package fmi_test

import (
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/mcx/fmi"
	"github.com/sarchlab/mcx/fmi/fake"
	"github.com/sarchlab/mcx/model"
)

func newDesc(pkgPath string) *model.ComponentDesc {
	in := model.NewChannel("A.in", model.Real, 1)
	out := model.NewChannel("A.out", model.Real, 2)
	return &model.ComponentDesc{
		Name:        "A",
		Kind:        model.Fmi2CoSim,
		PackagePath: pkgPath,
		Ports: []*model.Port{
			{Name: "in", Direction: model.In, Channels: []*model.Channel{in}},
			{Name: "out", Direction: model.Out, Channels: []*model.Channel{out}},
		},
	}
}

var _ = Describe("Component", func() {
	var pkgPath string

	BeforeEach(func() {
		f, err := os.CreateTemp("", "fake-*.fmu")
		Expect(err).NotTo(HaveOccurred())
		_, _ = f.WriteString("fake fmu bytes")
		f.Close()
		pkgPath = f.Name()
		DeferCleanup(func() { os.Remove(pkgPath) })
	})

	It("extracts to a deterministic md5-keyed directory name", func() {
		d1, err := fmi.ExtractionDirName("A", pkgPath)
		Expect(err).NotTo(HaveOccurred())
		d2, err := fmi.ExtractionDirName("A", pkgPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(d1).To(Equal(d2))
		Expect(d1).To(HavePrefix("A_"))
	})

	It("percent-encodes reserved characters in the instance name", func() {
		Expect(fmi.EncodeName("a b")).To(Equal("a%20b"))
	})

	It("goes through setup, init, step, terminate, free", func() {
		desc := newDesc(pkgPath)
		lib := fake.NewLibrary()
		lib.Register("A", func() *fake.Instance {
			inst := fake.NewInstance()
			inst.In = []uint32{1}
			inst.Out = []uint32{2}
			inst.Compute = func(in map[uint32]float64) map[uint32]float64 {
				return map[uint32]float64{2: in[1] * 2}
			}
			return inst
		})

		c := fmi.NewComponent(desc)
		Expect(c.Setup(os.TempDir(), lib)).To(Succeed())
		Expect(c.State()).To(Equal(fmi.Instantiated))
		Expect(c.InstantiatedOk).To(BeTrue())

		Expect(c.EnterInitializationMode(0)).To(Succeed())
		Expect(c.State()).To(Equal(fmi.Initializing))
		Expect(c.RunOk).To(BeTrue())

		desc.InitialValues = map[string]model.Value{"A.in": {Real: 3}}
		desc.ChannelByName("A.in").DefinedDuringInit = true
		Expect(c.SetValues(fmi.InitialValues)).To(Succeed())
		Expect(c.ExitInitializationMode()).To(Succeed())
		Expect(c.State()).To(Equal(fmi.Running))

		st, err := c.Step(0, 0.1)
		Expect(err).NotTo(HaveOccurred())
		Expect(st).To(Equal(fmi.OK))

		Expect(c.GetValues(fmi.Outputs)).To(Succeed())
		out := desc.ChannelByName("A.out")
		v, ok := out.Latest()
		Expect(ok).To(BeTrue())
		Expect(v.Real).To(Equal(6.0))

		Expect(c.Terminate()).To(Succeed())
		c.Free()
		Expect(c.State()).To(Equal(fmi.Destroyed))
	})

	It("falls back to all-inputs-to-all-outputs when no dependency structure is declared", func() {
		desc := newDesc(pkgPath)
		lib := fake.NewLibrary()
		lib.Register("A", func() *fake.Instance { return fake.NewInstance() })
		c := fmi.NewComponent(desc)
		Expect(c.Setup(os.TempDir(), lib)).To(Succeed())

		deps := c.InitialDependencies()
		Expect(deps[1]).To(ConsistOf(uint32(2)))
	})

	It("marks the component finished on a deliberate discard", func() {
		desc := newDesc(pkgPath)
		lib := fake.NewLibrary()
		lib.Register("A", func() *fake.Instance {
			inst := fake.NewInstance()
			t := 0.3
			inst.DiscardAt = &t
			inst.TrulyTerminated = true
			return inst
		})
		c := fmi.NewComponent(desc)
		Expect(c.Setup(os.TempDir(), lib)).To(Succeed())
		Expect(c.EnterInitializationMode(0)).To(Succeed())

		st, err := c.Step(0.3, 0.1)
		Expect(err).NotTo(HaveOccurred())
		Expect(st).To(Equal(fmi.Discard))
		Expect(c.Finished).To(BeTrue())
	})

	It("surfaces a spurious discard as an error", func() {
		desc := newDesc(pkgPath)
		lib := fake.NewLibrary()
		lib.Register("A", func() *fake.Instance {
			inst := fake.NewInstance()
			t := 0.3
			inst.DiscardAt = &t
			inst.TrulyTerminated = false
			return inst
		})
		c := fmi.NewComponent(desc)
		Expect(c.Setup(os.TempDir(), lib)).To(Succeed())
		Expect(c.EnterInitializationMode(0)).To(Succeed())

		_, err := c.Step(0.3, 0.1)
		Expect(err).To(HaveOccurred())
		Expect(c.RunOk).To(BeFalse())
	})
})
