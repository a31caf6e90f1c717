package model

// Connection is a directed edge from an out-Channel (Source) to an
// in-Channel (Sink), optionally carrying its own transform override (the
// input description may specify scale/offset per-connection rather than
// per-sink-channel; when absent the sink Channel's own Transform applies).
// Connection holds weak references only: it never owns the channels it
// names, and is destroyed without touching them.
type Connection struct {
	SourceComponent string
	SourceChannel   *Channel

	SinkComponent string
	SinkChannel   *Channel

	// Override, when non-nil, replaces SinkChannel.Transform for this edge
	// only.
	Override *Transform
}

// EffectiveTransform returns the per-edge override if set, else the sink
// channel's own transform.
func (c *Connection) EffectiveTransform() Transform {
	if c.Override != nil {
		return *c.Override
	}
	return c.SinkChannel.Transform
}
