package schedule

import (
	"github.com/sarchlab/mcx/fmi"
	"github.com/sarchlab/mcx/model"
)

// BuildGraph derives the component-level adjacency the Step Scheduler orders
// its groups from: an edge source -> sink whenever some connection feeds
// source's channel into sink's channel, keeping the group order consistent
// with the live connection graph's SCC ordering. Unlike the initialization
// engine's graph, this one carries no declared-dependency filtering — at
// runtime every connected pair is a real data dependency.
func BuildGraph(components []*fmi.Component, conns []*model.Connection) [][]bool {
	n := len(components)
	adj := make([][]bool, n)
	for i := range adj {
		adj[i] = make([]bool, n)
	}

	indexByChannel := make(map[*model.Channel]int, n*4)
	for i, c := range components {
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
		if srcIdx == sinkIdx {
			continue
		}
		adj[srcIdx][sinkIdx] = true
	}

	return adj
}
