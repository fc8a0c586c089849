// Package collection delivers the logs produced anywhere in the network to
// sink devices.
//
// Logs travel along two hop-count trees, one rooted at the sinks with an even
// id and one rooted at the sinks with an odd id. On each tree a device keeps
//
//	r = (up - down) ∪ new
//
// where up merges the r values of the neighbors farther from the sink and down
// the r values of the neighbors closer to it: a log a closer device already
// carries is not pushed again, so logs move toward the sink as a wave instead
// of bouncing between devices. A sink reports the logs of its r that were not
// in its r of the previous round.
package collection

import (
	"github.com/heitortanoue/warehouse-swarm/pkg/aggregate"
	"github.com/heitortanoue/warehouse-swarm/pkg/logset"
	"github.com/heitortanoue/warehouse-swarm/pkg/routing"
)

// Parity selects one of the two collection trees
type Parity uint8

const (
	Even Parity = 0
	Odd  Parity = 1
)

// ParityOf returns the tree a sink roots
func ParityOf(id aggregate.DeviceID) Parity {
	return Parity(id % 2)
}

// CollectTree runs log collection on a single tree. isSink tells whether the
// device is a sink of that tree; only sinks return collected logs.
func CollectTree(ctx *aggregate.Context, p aggregate.Path, isSink bool, newLogs logset.Set) logset.Set {
	hops := routing.HopDistance(ctx, p.At(1), isSink)
	nbrHops := aggregate.Share(ctx, p.At(2), hops)

	r := aggregate.Nbr(ctx, p.At(3), logset.Set(nil), func(f aggregate.Field[logset.Set]) logset.Set {
		var up, down logset.Set
		f.Each(func(id aggregate.DeviceID, logs logset.Set) {
			h, ok := nbrHops.Get(id)
			switch {
			case !ok:
			case h > hops:
				up = logset.Merge(up, logs)
			case h < hops:
				down = logset.Merge(down, logs)
			}
		})
		return logset.Merge(logset.Subtract(up, down), newLogs)
	})

	prev := aggregate.Old(ctx, p.At(4), logset.Set(nil), r)
	if !isSink {
		return nil
	}
	return logset.Subtract(r, prev)
}

// Collect runs log collection on both trees. isSink tells whether the device
// collects logs; it roots the tree matching the parity of its id. The logs
// collected on the even tree are returned if any, otherwise those of the odd one.
func Collect(ctx *aggregate.Context, p aggregate.Path, isSink bool, newLogs logset.Set) logset.Set {
	parity := ParityOf(ctx.Self())
	even := CollectTree(ctx, p.At(1), isSink && parity == Even, newLogs)
	odd := CollectTree(ctx, p.At(2), isSink && parity == Odd, newLogs)
	if len(even) > 0 {
		return even
	}
	return odd
}
