// Package graph implements the Dependency Resolver: Tarjan's
// strongly-connected-components algorithm over a dense adjacency relation,
// producing a topologically-ordered sequence of groups. Groups are
// represented as flat index slices into an arena, never as cyclic owning
// references.
package graph

// Group is one strongly-connected component of the resolved graph. Nodes
// are node indices into the caller's adjacency matrix. IsLoop is true
// whenever the group has more than one node or contains a self-loop.
// CutNodes is populated later (see WithDefaultCutNodes) as break points for iterative loop resolution; it is empty
// on a freshly resolved graph.
type Group struct {
	Nodes    []int
	IsLoop   bool
	CutNodes []int
}

// OrderedGroups is the resolver's output: dependencies first, in
// topological order. For every edge u->v with u, v in distinct groups,
// u's group precedes v's.
type OrderedGroups struct {
	Groups []Group

	// groupOf maps a node index to its position in Groups, for
	// CutNodes/heuristics and for tests.
	groupOf []int
}

// GroupOf returns the index into Groups that node n belongs to.
func (o *OrderedGroups) GroupOf(n int) int {
	return o.groupOf[n]
}

// WithDefaultCutNodes assigns each loop group a single cut node: the
// lowest-index node in the SCC. Non-loop groups are left with an empty
// CutNodes.
func (o *OrderedGroups) WithDefaultCutNodes() *OrderedGroups {
	for i := range o.Groups {
		g := &o.Groups[i]
		if !g.IsLoop || len(g.CutNodes) > 0 {
			continue
		}
		min := g.Nodes[0]
		for _, n := range g.Nodes[1:] {
			if n < min {
				min = n
			}
		}
		g.CutNodes = []int{min}
	}
	return o
}

// Solve runs Tarjan's algorithm over the n x n dense adjacency matrix
// (adj[u][v] == true means an edge u -> v exists) and returns the
// topologically ordered groups. O(n^2) time, acceptable at the scale these
// component graphs reach.
func Solve(adj [][]bool, n int) *OrderedGroups {
	s := &solver{
		adj:     adj,
		n:       n,
		index:   make([]int, n),
		lowlink: make([]int, n),
		onStack: make([]bool, n),
		visited: make([]bool, n),
		result:  &OrderedGroups{groupOf: make([]int, n)},
	}
	for i := range s.index {
		s.index[i] = -1
	}

	for v := 0; v < n; v++ {
		if !s.visited[v] {
			s.strongConnect(v)
		}
	}

	reverseGroups(s.result)
	for gi, g := range s.result.Groups {
		for _, n := range g.Nodes {
			s.result.groupOf[n] = gi
		}
	}

	return s.result
}

type solver struct {
	adj     [][]bool
	n       int
	counter int

	index   []int
	lowlink []int
	onStack []bool
	visited []bool
	stack   []int

	result *OrderedGroups
}

// strongConnect is the classical recursive Tarjan visit. Tarjan naturally
// emits SCCs in reverse topological order (a group is finished only after
// everything reachable from it, i.e. everything that depends on it), so
// Solve reverses the accumulated slice once
// the recursion completes.
func (s *solver) strongConnect(v int) {
	s.index[v] = s.counter
	s.lowlink[v] = s.counter
	s.counter++
	s.visited[v] = true
	s.stack = append(s.stack, v)
	s.onStack[v] = true

	for w := 0; w < s.n; w++ {
		if !s.adj[v][w] {
			continue
		}
		if s.index[w] == -1 {
			s.strongConnect(w)
			if s.lowlink[w] < s.lowlink[v] {
				s.lowlink[v] = s.lowlink[w]
			}
		} else if s.onStack[w] {
			if s.index[w] < s.lowlink[v] {
				s.lowlink[v] = s.index[w]
			}
		}
	}

	if s.lowlink[v] != s.index[v] {
		return
	}

	var nodes []int
	for {
		w := s.stack[len(s.stack)-1]
		s.stack = s.stack[:len(s.stack)-1]
		s.onStack[w] = false
		nodes = append(nodes, w)
		if w == v {
			break
		}
	}

	isLoop := len(nodes) > 1
	if !isLoop {
		isLoop = s.adj[nodes[0]][nodes[0]]
	}

	s.result.Groups = append(s.result.Groups, Group{Nodes: nodes, IsLoop: isLoop})
}

func reverseGroups(o *OrderedGroups) {
	for i, j := 0, len(o.Groups)-1; i < j; i, j = i+1, j-1 {
		o.Groups[i], o.Groups[j] = o.Groups[j], o.Groups[i]
	}
}
