package warehouse

import (
	"math"

	"github.com/heitortanoue/warehouse-swarm/pkg/aggregate"
	"github.com/heitortanoue/warehouse-swarm/pkg/routing"
	"github.com/heitortanoue/warehouse-swarm/pkg/spawn"
	"github.com/heitortanoue/warehouse-swarm/pkg/state"
)

// search spawns a process from the requesting wearable, bounded by the search
// range, that runs a gradient from the pallets matching the payload. The
// requester gets the route to the best pallet.
func search(ctx *aggregate.Context, p aggregate.Path, params Params, active bool, payload state.Goods, match func(state.Goods) bool) routing.Route {
	self := ctx.Self()
	key := spawn.Key[state.Goods]{Source: self, Payload: payload}

	var local []spawn.Key[state.Goods]
	if active {
		local = append(local, key)
	}
	out := spawn.Spawn(ctx, p, func(ctx *aggregate.Context, pp aggregate.Path, k spawn.Key[state.Goods], source bool) (routing.Route, spawn.Status) {
		requester := routing.DistanceWaypoint(ctx, pp.At(1), source, 0)
		if requester.Distance > params.SearchRange {
			return routing.Route{}, spawn.Terminated
		}
		r := routing.DistanceWaypoint(ctx, pp.At(2), match(k.Payload), params.Distortion)
		if source {
			return r, spawn.InternalOutput
		}
		return r, spawn.Internal
	}, local)

	if r, ok := out[key]; ok && active {
		return r
	}
	return routing.Route{Distance: math.Inf(1), Waypoint: self, Root: self}
}

// FindGoods routes a querying wearable toward the closest pallet loaded with
// the goods it asks for. Pallets being handled are not candidates.
func FindGoods(ctx *aggregate.Context, p aggregate.Path, s state.Snapshot, params Params) routing.Route {
	active := s.Type == state.Wearable && s.Query != state.NoGoods
	return search(ctx, p, params, active, s.Query, func(g state.Goods) bool {
		return s.Type == state.Pallet && !s.Handled && s.Loaded == g
	})
}

// FindSpace routes a wearable carrying a pallet toward a stored pallet with a
// free slot next to it.
func FindSpace(ctx *aggregate.Context, p aggregate.Path, s state.Snapshot, params Params) routing.Route {
	types := aggregate.Share(ctx, p.At(1), s.Type)
	dists := aggregate.NbrDist(ctx)
	adjacent := aggregate.FoldHood(types, 0, func(n int, id aggregate.DeviceID, t state.DeviceType) int {
		if d, ok := dists.Get(id); ok && t == state.Pallet && d <= params.GridStep*1.5 {
			n++
		}
		return n
	})

	active := s.Type == state.Wearable && s.Placing
	return search(ctx, p.At(2), params, active, state.Undefined, func(state.Goods) bool {
		return s.Type == state.Pallet && !s.Handled && s.Loaded != state.NoGoods && adjacent < params.MaxAdjacent
	})
}
