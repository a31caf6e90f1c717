package initialize

import (
	"github.com/sarchlab/mcx/fmi"
	"github.com/sarchlab/mcx/model"
)

// BuildGraph derives a component-level adjacency matrix for the
// initialization protocol from each connection plus the receiving
// component's declared initial-dependency relation: an edge
// source -> sink exists whenever some out-channel of the sink component
// depends (per its own initial-dependency matrix) on the in-channel that
// connection feeds. Components is the node order (component i is node i).
func BuildGraph(components []*fmi.Component, conns []*model.Connection) [][]bool {
	n := len(components)
	adj := make([][]bool, n)
	for i := range adj {
		adj[i] = make([]bool, n)
	}

	indexByChannel := make(map[*model.Channel]int, n*4)
	depsByComponent := make([]map[uint32][]uint32, n)
	for i, c := range components {
		depsByComponent[i] = c.InitialDependencies()
		for _, p := range c.Desc.Ports {
			for _, ch := range p.Channels {
				indexByChannel[ch] = i
			}
		}
	}

	for _, conn := range conns {
		srcIdx, ok := indexByChannel[conn.SourceChannel]
		if !ok {
			continue
		}
		sinkIdx, ok := indexByChannel[conn.SinkChannel]
		if !ok {
			continue
		}
		if sinkIdx == srcIdx {
			continue
		}
		if dependsOnSomeOutput(depsByComponent[sinkIdx], conn.SinkChannel.ValueReference) {
			adj[srcIdx][sinkIdx] = true
		}
	}

	return adj
}

func dependsOnSomeOutput(deps map[uint32][]uint32, inRef uint32) bool {
	outs, ok := deps[inRef]
	return ok && len(outs) > 0
}
