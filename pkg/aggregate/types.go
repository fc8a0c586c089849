package aggregate

import (
	"fmt"
	"math"
	"time"
)

// DeviceID identifies a device for its whole lifetime
type DeviceID uint32

// Vec3 is a position or velocity in millimetres
type Vec3 [3]float64

// Add returns v+o
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v[0] + o[0], v[1] + o[1], v[2] + o[2]}
}

// Sub returns v-o
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v[0] - o[0], v[1] - o[1], v[2] - o[2]}
}

// Scale returns v*k
func (v Vec3) Scale(k float64) Vec3 {
	return Vec3{v[0] * k, v[1] * k, v[2] * k}
}

// Norm returns the euclidean length of v
func (v Vec3) Norm() float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

// Dist returns the euclidean distance between v and o
func (v Vec3) Dist(o Vec3) float64 {
	return v.Sub(o).Norm()
}

// Horizontal drops the height component
func (v Vec3) Horizontal() Vec3 {
	return Vec3{v[0], v[1], 0}
}

func (v Vec3) String() string {
	return fmt.Sprintf("(%.0f,%.0f,%.0f)", v[0], v[1], v[2])
}

// Export is the snapshot a device broadcasts after a round.
// It maps call-site traces to the values exposed at those sites and must not be
// mutated once the round that produced it has committed.
type Export map[Trace]any

// Message is the latest export received from one neighbor
type Message struct {
	From     DeviceID
	Position Vec3
	Export   Export
	Received time.Time
}
