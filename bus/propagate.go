package bus

import "github.com/sarchlab/mcx/model"

// PropagateAll reads every connection's source channel and publishes it to
// the sink, applying the connection's effective transform. Used both by the
// scheduler's per-communication-point propagation and by the initialization
// engine's group propagation.
func (bus *Bus) PropagateAll(conns []*model.Connection) error {
	for _, conn := range conns {
		v, ok := bus.Sample(conn.SourceChannel)
		if !ok {
			continue
		}
		if err := bus.PublishVia(conn.SinkChannel, v, conn.EffectiveTransform()); err != nil {
			return err
		}
	}
	return nil
}

// PropagateConns is like PropagateAll but restricted to the connections
// whose sink channel satisfies include. Used to propagate only into a
// specific resolver group.
func (bus *Bus) PropagateConns(conns []*model.Connection, include func(sink *model.Channel) bool) error {
	for _, conn := range conns {
		if !include(conn.SinkChannel) {
			continue
		}
		v, ok := bus.Sample(conn.SourceChannel)
		if !ok {
			continue
		}
		if err := bus.PublishVia(conn.SinkChannel, v, conn.EffectiveTransform()); err != nil {
			return err
		}
	}
	return nil
}
