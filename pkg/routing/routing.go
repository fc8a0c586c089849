// Package routing builds self-stabilizing shortest path trees toward sources.
package routing

import (
	"math"

	"github.com/heitortanoue/warehouse-swarm/pkg/aggregate"
)

// Unreachable is the hop count of devices with no sink in reach
const Unreachable = math.MaxUint16

// Route is the outcome of a gradient computation on one device
type Route struct {
	// Distance to the closest source, +Inf when none is reachable
	Distance float64
	// Waypoint is the next hop toward that source; the device itself at a
	// source or when unreachable
	Waypoint aggregate.DeviceID
	// Root is the source the waypoint chain leads to
	Root aggregate.DeviceID
}

// Reachable reports whether some source is known
func (r Route) Reachable() bool {
	return !math.IsInf(r.Distance, 1)
}

type hop struct {
	Dist float64
	Root aggregate.DeviceID
}

// DistanceWaypoint computes the distance to the nearest source and the
// neighbor to go through to reach it.
//
// Every hop adds distortion to the path length, so a device relaying a stale
// value always looks farther than the source it heard about. Candidates of equal
// length are resolved in favour of the smallest neighbor id.
func DistanceWaypoint(ctx *aggregate.Context, p aggregate.Path, isSource bool, distortion float64) Route {
	links := aggregate.NbrDist(ctx)
	self := ctx.Self()

	var route Route
	aggregate.Nbr(ctx, p, hop{Dist: math.Inf(1), Root: self}, func(f aggregate.Field[hop]) hop {
		best := hop{Dist: math.Inf(1), Root: self}
		if isSource {
			best.Dist = -distortion
		}
		waypoint := self
		f.Each(func(id aggregate.DeviceID, h hop) {
			link, ok := links.Get(id)
			if !ok {
				return
			}
			if c := h.Dist + link; c < best.Dist {
				best = hop{Dist: c, Root: h.Root}
				waypoint = id
			}
		})

		d := best.Dist + distortion
		if d < 0 {
			d = 0
		}
		if math.IsInf(d, 1) {
			best.Root = self
		}
		route = Route{Distance: d, Waypoint: waypoint, Root: best.Root}
		return hop{Dist: d, Root: best.Root}
	})
	return route
}

// HopDistance returns the number of hops to the nearest sink, or Unreachable
func HopDistance(ctx *aggregate.Context, p aggregate.Path, isSink bool) uint16 {
	return aggregate.Nbr(ctx, p, uint16(Unreachable), func(f aggregate.Field[uint16]) uint16 {
		if isSink {
			return 0
		}
		best := uint16(Unreachable)
		f.Each(func(_ aggregate.DeviceID, h uint16) {
			if h < Unreachable-1 && h+1 < best {
				best = h + 1
			}
		})
		return best
	})
}
