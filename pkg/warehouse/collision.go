package warehouse

import (
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/heitortanoue/warehouse-swarm/pkg/aggregate"
	"github.com/heitortanoue/warehouse-swarm/pkg/logset"
	"github.com/heitortanoue/warehouse-swarm/pkg/routing"
	"github.com/heitortanoue/warehouse-swarm/pkg/spawn"
	"github.com/heitortanoue/warehouse-swarm/pkg/state"
)

// Approach describes another wearable as seen from a wearable
type Approach struct {
	Wearable aggregate.DeviceID
	Distance float64
	// Speed is positive when the two are getting closer
	Speed float64
}

// CollisionDetection watches the wearables around this one.
//
// Every wearable spawns a monitor that spreads up to the collision radius and
// measures the distance from it. Wearables reached by a monitor derive the
// closing speed from how that distance changed since their previous round.
// A wearable is at risk while the closing speed toward its nearest fellow
// wearable reaches the threshold; RiskStart and RiskEnd are logged on entering
// and leaving that condition.
func CollisionDetection(ctx *aggregate.Context, p aggregate.Path, s state.Snapshot, params Params, clock time.Duration) (bool, []logset.Entry) {
	self := ctx.Self()
	isWearable := s.Type == state.Wearable

	var local []spawn.Key[uint8]
	if isWearable {
		local = []spawn.Key[uint8]{{Source: self}}
	}
	seen := spawn.Spawn(ctx, p.At(1), func(ctx *aggregate.Context, pp aggregate.Path, k spawn.Key[uint8], source bool) (Approach, spawn.Status) {
		r := routing.DistanceWaypoint(ctx, pp.At(1), source, 0)
		prev := aggregate.Old(ctx, pp.At(2), r.Distance, r.Distance)
		if r.Distance > params.CollisionRadius {
			return Approach{}, spawn.Terminated
		}
		if source || !isWearable {
			return Approach{}, spawn.Internal
		}
		a := Approach{Wearable: k.Source, Distance: r.Distance}
		if dt := ctx.Elapsed().Seconds(); dt > 0 && !math.IsInf(prev, 1) {
			a.Speed = (prev - r.Distance) / dt
		}
		return a, spawn.InternalOutput
	}, local)

	nearest, found := Approach{}, false
	for _, a := range seen {
		if !found || a.Distance < nearest.Distance || (a.Distance == nearest.Distance && a.Wearable < nearest.Wearable) {
			nearest, found = a, true
		}
	}
	risk := found && nearest.Speed >= params.CollisionSpeed

	partner := aggregate.Old(ctx, p.At(2), aggregate.DeviceID(0), nearest.Wearable)
	was := aggregate.Old(ctx, p.At(3), false, risk)

	var logs []logset.Entry
	switch {
	case risk && !was:
		log.Warn().
			Str("component", "collision").
			Uint32("wearable", uint32(self)).
			Uint32("other", uint32(nearest.Wearable)).
			Float64("distance", nearest.Distance).
			Float64("speed", nearest.Speed).
			Msg("collision risk")
		logs = append(logs, newEntry(ctx, RiskStart, clock, params.Quantum, uint32(nearest.Wearable)))
	case !risk && was:
		log.Info().
			Str("component", "collision").
			Uint32("wearable", uint32(self)).
			Msg("collision risk cleared")
		logs = append(logs, newEntry(ctx, RiskEnd, clock, params.Quantum, uint32(partner)))
	}
	return risk, logs
}
