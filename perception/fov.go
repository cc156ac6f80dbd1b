// Package perception provides visibility predicates that restrict which
// neighbors an agent can react to. The predicates plug into the force
// model's alignment term; they never affect physical forces.
package perception

import (
	"math"

	"github.com/murmursim/murmur/swarm"
)

// FieldOfView limits perception to a cone around the agent's heading.
type FieldOfView struct {
	cosHalf float32
}

// NewFieldOfView builds a cone predicate from the full opening angle in
// radians. An angle of 2*pi (or more) sees everything.
func NewFieldOfView(angle float32) *FieldOfView {
	half := float64(angle) * 0.5
	if half > math.Pi {
		half = math.Pi
	}
	return &FieldOfView{cosHalf: float32(math.Cos(half))}
}

// Visible reports whether a neighbor at the given offset falls inside the
// viewer's cone. A stationary viewer has no heading and sees everything;
// a coincident neighbor is always visible.
func (f *FieldOfView) Visible(viewerVel, offset swarm.Vec3) bool {
	speed2 := viewerVel.NormSq()
	dist2 := offset.NormSq()
	if speed2 < 1e-12 || dist2 < 1e-12 {
		return true
	}
	// dot >= cos * |v| * |d| avoids normalizing either vector.
	rhs := f.cosHalf * float32(math.Sqrt(float64(speed2*dist2)))
	return viewerVel.Dot(offset) >= rhs
}

// Func adapts the cone test to the force model's predicate type.
func (f *FieldOfView) Func() swarm.VisibilityFunc {
	return f.Visible
}
