package graph

import (
	"fmt"
	"strconv"
	"strings"
)

// DOT renders the ordered groups as Graphviz DOT text, one cluster per
// group, so the (external) CLI wrapper can write it to a file when the -g
// flag is set. labels, if non-nil, names node i instead of its bare index.
func (o *OrderedGroups) DOT(labels []string) string {
	var b strings.Builder
	b.WriteString("digraph dependencies {\n")

	name := func(n int) string {
		if labels != nil && n < len(labels) && labels[n] != "" {
			return strconv.Quote(labels[n])
		}
		return strconv.Quote("n" + strconv.Itoa(n))
	}

	for gi, g := range o.Groups {
		fmt.Fprintf(&b, "  subgraph cluster_%d {\n", gi)
		fmt.Fprintf(&b, "    label=%q;\n", loopLabel(g))
		for _, n := range g.Nodes {
			fmt.Fprintf(&b, "    %s;\n", name(n))
		}
		b.WriteString("  }\n")
	}

	b.WriteString("}\n")
	return b.String()
}

func loopLabel(g Group) string {
	if g.IsLoop {
		return fmt.Sprintf("group %v (loop, cut=%v)", g.Nodes, g.CutNodes)
	}
	return fmt.Sprintf("group %v", g.Nodes)
}
