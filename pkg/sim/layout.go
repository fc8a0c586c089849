package sim

import (
	"math"
	"math/rand"

	"github.com/heitortanoue/warehouse-swarm/pkg/aggregate"
	"github.com/heitortanoue/warehouse-swarm/pkg/state"
)

// Warehouse geometry, in centimeters. Pallets are stored in aisles of slots
// three high; the loading zone is a free strip along one side.
const (
	GridCell  = 150.0
	SameSpace = 100.0 // below GridCell
	MaxSpeed  = 280.0 // cm/s

	aisleRows    = 22
	aisleColumns = 45
	slotLevels   = 3
)

// LoadingZone bounds the area where wearables start and pallets are dropped
var LoadingZone = struct{ Min, Max aggregate.Vec3 }{
	Min: aggregate.Vec3{GridCell * 2, GridCell * 2, 0},
	Max: aggregate.Vec3{GridCell * 34, GridCell * 8, 0},
}

type slot struct{ row, col, level int }

// SlotPosition returns the center of a storage slot. Rows come in pairs
// separated by corridors; every fifteen columns there is a cross corridor.
func SlotPosition(row, col, level int) aggregate.Vec3 {
	x := float64((row/2)*3+row)*GridCell + GridCell/2
	y := float64((col/15)*3+col+9)*GridCell + GridCell/2
	return aggregate.Vec3{x, y, float64(level) * GridCell}
}

func randomSlot(rng *rand.Rand) slot {
	return slot{row: 1 + rng.Intn(aisleRows), col: rng.Intn(aisleColumns), level: rng.Intn(slotLevels)}
}

// randomGood draws a goods type with probability decreasing harmonically, so
// that a few goods are far more common than the rest.
func randomGood(rng *rand.Rand) state.Goods {
	const total = 5.187377517639621 // H(100)
	r := rng.Float64() * total
	for i := 1; i <= int(state.MaxGoods); i++ {
		r -= 1 / float64(i)
		if r < 0 {
			return state.Goods(i - 1)
		}
	}
	return state.MaxGoods - 1
}

func loadingZoneSpot(rng *rand.Rand) aggregate.Vec3 {
	return aggregate.Vec3{
		LoadingZone.Min[0] + float64(1+rng.Intn(33))*GridCell,
		LoadingZone.Min[1] + float64(rng.Intn(4))*GridCell,
		0,
	}
}

func loadingZonePoint(rng *rand.Rand) aggregate.Vec3 {
	return aggregate.Vec3{
		LoadingZone.Min[0] + rng.Float64()*(LoadingZone.Max[0]-LoadingZone.Min[0]),
		LoadingZone.Min[1] + rng.Float64()*(LoadingZone.Max[1]-LoadingZone.Min[1]),
		0,
	}
}

func horizontalDist(a, b aggregate.Vec3) float64 {
	return a.Horizontal().Dist(b.Horizontal())
}

// WaypointTarget returns the next point to head for on the way from p to q,
// moving along the corridors between the aisles.
func WaypointTarget(p, q aggregate.Vec3) aggregate.Vec3 {
	p = p.Scale(1 / GridCell)
	q = q.Scale(1 / GridCell)
	grid := func(x, y float64) aggregate.Vec3 { return aggregate.Vec3{x, y, 0}.Scale(GridCell) }

	qx := math.Trunc((q[0]-1)/5)*5 + 3.5
	switch {
	case math.Abs(qx-p[0]) <= 2.5 && math.Abs(q[1]-p[1]) <= 1:
		// close to the target
		return grid(q[0], q[1])
	case math.Abs(qx-p[0]) <= 1:
		// same vertical corridor
		return grid(p[0], q[1])
	case int(p[1])%18 == 7:
		// horizontal corridor
		return grid(qx, p[1])
	case int(p[0])%5 == 3:
		// vertical corridor: reach the horizontal one halfway
		qy := (p[1] + q[1]) / 2
		qy = math.Trunc((qy+1.5)/18)*18 + 7.5
		return grid(p[0], qy)
	}
	return grid(math.Trunc((p[0]-1)/5)*5+3.5, p[1])
}
