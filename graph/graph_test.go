package graph_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/mcx/graph"
)

func mat(n int, edges [][2]int) [][]bool {
	adj := make([][]bool, n)
	for i := range adj {
		adj[i] = make([]bool, n)
	}
	for _, e := range edges {
		adj[e[0]][e[1]] = true
	}
	return adj
}

var _ = Describe("Solve", func() {
	It("orders a simple chain topologically", func() {
		adj := mat(3, [][2]int{{0, 1}, {1, 2}})
		out := graph.Solve(adj, 3)
		Expect(out.Groups).To(HaveLen(3))
		Expect(out.GroupOf(0)).To(BeNumerically("<", out.GroupOf(1)))
		Expect(out.GroupOf(1)).To(BeNumerically("<", out.GroupOf(2)))
		for _, g := range out.Groups {
			Expect(g.IsLoop).To(BeFalse())
		}
	})

	It("marks a 3-cycle as a single loop group", func() {
		adj := mat(3, [][2]int{{0, 1}, {1, 2}, {2, 0}})
		out := graph.Solve(adj, 3)
		Expect(out.Groups).To(HaveLen(1))
		Expect(out.Groups[0].IsLoop).To(BeTrue())
		Expect(out.Groups[0].Nodes).To(ConsistOf(0, 1, 2))
	})

	It("marks a self-loop singleton as a loop", func() {
		adj := mat(2, [][2]int{{0, 0}, {0, 1}})
		out := graph.Solve(adj, 2)
		Expect(out.GroupOf(0)).NotTo(Equal(out.GroupOf(1)))
		Expect(out.Groups[out.GroupOf(0)].IsLoop).To(BeTrue())
		Expect(out.Groups[out.GroupOf(1)].IsLoop).To(BeFalse())
	})

	It("respects edge ordering across distinct groups (property 3)", func() {
		adj := mat(5, [][2]int{{0, 1}, {1, 2}, {2, 3}, {1, 3}, {3, 4}})
		out := graph.Solve(adj, 5)
		for u := 0; u < 5; u++ {
			for v := 0; v < 5; v++ {
				if adj[u][v] && out.GroupOf(u) != out.GroupOf(v) {
					Expect(out.GroupOf(u)).To(BeNumerically("<", out.GroupOf(v)))
				}
			}
		}
	})

	It("assigns the lowest-index node as the default cut node", func() {
		adj := mat(3, [][2]int{{0, 1}, {1, 2}, {2, 0}})
		out := graph.Solve(adj, 3).WithDefaultCutNodes()
		Expect(out.Groups[0].CutNodes).To(Equal([]int{0}))
	})

	It("renders DOT output without panicking on an empty graph", func() {
		out := graph.Solve(mat(0, nil), 0)
		Expect(out.DOT(nil)).To(ContainSubstring("digraph"))
	})
})
