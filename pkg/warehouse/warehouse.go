// Package warehouse composes the coordination building blocks into the
// program run by pallets and wearables: goods hand-off, collision warnings,
// goods and space search, and log collection toward the wearables.
package warehouse

import (
	"time"

	"github.com/heitortanoue/warehouse-swarm/pkg/aggregate"
	"github.com/heitortanoue/warehouse-swarm/pkg/logset"
)

// Log content types
const (
	PalletLoaded uint8 = iota + 1
	PalletUnloaded
	HandoffDone
	RiskStart
	RiskEnd
	GoodsFound
)

// LogTypeName returns a readable name of a log content type
func LogTypeName(t uint8) string {
	switch t {
	case PalletLoaded:
		return "pallet_loaded"
	case PalletUnloaded:
		return "pallet_unloaded"
	case HandoffDone:
		return "handoff_done"
	case RiskStart:
		return "risk_start"
	case RiskEnd:
		return "risk_end"
	case GoodsFound:
		return "goods_found"
	}
	return "unknown"
}

// Params tunes the warehouse program
type Params struct {
	// Distortion is added per hop by search gradients
	Distortion float64
	// HandoffRange is how close a wearable must be to the pallet it loads
	HandoffRange float64
	// CollisionRadius bounds the collision monitors around each wearable
	CollisionRadius float64
	// CollisionSpeed is the closing speed (units per second) that raises a risk
	CollisionSpeed float64
	// SearchRange bounds goods and space searches around the requester
	SearchRange float64
	// GridStep is the side of a storage slot
	GridStep float64
	// MaxAdjacent is the number of occupied neighboring slots above which a
	// pallet has no free space next to it
	MaxAdjacent int
	// Quantum is the resolution of log timestamps
	Quantum time.Duration
}

// DefaultParams returns the parameters of the reference warehouse
func DefaultParams() Params {
	return Params{
		Distortion:      10,
		HandoffRange:    100,
		CollisionRadius: 2000,
		CollisionSpeed:  300,
		SearchRange:     5000,
		GridStep:        150,
		MaxAdjacent:     4,
		Quantum:         logset.Quantum,
	}
}

func newEntry(ctx *aggregate.Context, typ uint8, clock time.Duration, q time.Duration, content uint32) logset.Entry {
	return logset.Entry{
		Type:    typ,
		Logger:  ctx.Self(),
		Time:    logset.Discretize(clock, q),
		Content: content,
	}
}
