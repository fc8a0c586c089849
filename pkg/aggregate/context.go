package aggregate

import (
	"fmt"
	"time"
)

// Context is the execution context of one round on one device.
// It is created by Device.Round, handed to the program, and discarded when the
// round commits; coordination functions must not retain it.
type Context struct {
	self     DeviceID
	round    uint64
	now      time.Time
	elapsed  time.Duration
	position Vec3

	nbrs []Message

	prev    map[Trace]any
	next    map[Trace]any
	visited map[Trace]struct{}
	export  Export
}

// Self returns the id of the device running the round
func (c *Context) Self() DeviceID {
	return c.self
}

// Round returns the number of rounds completed before this one
func (c *Context) Round() uint64 {
	return c.round
}

// Now returns the local time of the round
func (c *Context) Now() time.Time {
	return c.now
}

// Elapsed returns the local time since the previous round (zero on the first)
func (c *Context) Elapsed() time.Duration {
	return c.elapsed
}

// Position returns the device position read at the start of the round
func (c *Context) Position() Vec3 {
	return c.position
}

// Neighbors returns the ids of the neighbors heard from this round, sorted
func (c *Context) Neighbors() []DeviceID {
	ids := make([]DeviceID, len(c.nbrs))
	for i, m := range c.nbrs {
		ids[i] = m.From
	}
	return ids
}

// visit marks a trace as executed in this round.
// A call site reached twice in the same round is a bug in the program: the two
// visits would overwrite each other's state and exports.
func (c *Context) visit(p Path) Trace {
	t := p.Trace()
	if _, dup := c.visited[t]; dup {
		panic(fmt.Sprintf("aggregate: trace %08x visited twice in round %d on device %d", uint32(t), c.round, c.self))
	}
	c.visited[t] = struct{}{}
	return t
}

func previous[T any](c *Context, t Trace, init T) T {
	if v, ok := c.prev[t].(T); ok {
		return v
	}
	return init
}

func fieldAt[T any](c *Context, t Trace, self T) Field[T] {
	f := Field[T]{selfID: c.self, self: self}
	for _, m := range c.nbrs {
		raw, ok := m.Export[t]
		if !ok {
			continue
		}
		v, ok := raw.(T)
		if !ok {
			continue
		}
		f.ids = append(f.ids, m.From)
		f.vals = append(f.vals, v)
	}
	return f
}
