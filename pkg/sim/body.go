package sim

import (
	"time"

	"github.com/heitortanoue/warehouse-swarm/pkg/aggregate"
)

// Body is the physical state of a simulated device: it moves in a straight
// line at constant velocity until told otherwise.
type Body struct {
	pos aggregate.Vec3
	vel aggregate.Vec3
	at  time.Time
}

// NewBody creates a body at rest
func NewBody(pos aggregate.Vec3, at time.Time) *Body {
	return &Body{pos: pos, at: at}
}

// Position returns where the body is at now
func (b *Body) Position(now time.Time) aggregate.Vec3 {
	return b.pos.Add(b.vel.Scale(now.Sub(b.at).Seconds()))
}

// Velocity returns the current velocity
func (b *Body) Velocity() aggregate.Vec3 {
	return b.vel
}

func (b *Body) advance(now time.Time) {
	b.pos = b.Position(now)
	b.at = now
}

// Place moves the body to pos and stops it
func (b *Body) Place(pos aggregate.Vec3, now time.Time) {
	b.pos, b.vel, b.at = pos, aggregate.Vec3{}, now
}

// Stop halts the body where it is
func (b *Body) Stop(now time.Time) {
	b.advance(now)
	b.vel = aggregate.Vec3{}
}

// FollowTarget heads toward target so as to reach it within horizon, never
// faster than maxSpeed.
func (b *Body) FollowTarget(target aggregate.Vec3, maxSpeed float64, horizon time.Duration, now time.Time) {
	b.advance(now)
	diff := target.Sub(b.pos)
	if horizon <= 0 {
		horizon = time.Second
	}
	v := diff.Scale(1 / horizon.Seconds())
	if n := v.Norm(); n > maxSpeed && n > 0 {
		v = v.Scale(maxSpeed / n)
	}
	b.vel = v
}
