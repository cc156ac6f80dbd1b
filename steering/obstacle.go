package steering

import (
	"math"

	"github.com/murmursim/murmur/swarm"
)

// Sphere is a solid spherical obstacle.
type Sphere struct {
	Center swarm.Vec3 `yaml:"center"`
	Radius float32    `yaml:"radius"`
}

// ObstacleField pushes agents away from sphere surfaces with an
// exponentially decaying normal force. Inside a sphere the force points
// outward at full strength.
type ObstacleField struct {
	spheres []Sphere

	// Strength is the force magnitude at the surface.
	Strength float32
	// Decay is the e-folding distance of the repulsion outside the
	// surface. Beyond about three decay lengths the force is ignored.
	Decay float32
}

// NewObstacleField builds a field over the given spheres.
func NewObstacleField(spheres []Sphere, strength, decay float32) *ObstacleField {
	if decay <= 0 {
		decay = 1.0
	}
	return &ObstacleField{spheres: spheres, Strength: strength, Decay: decay}
}

// Spheres returns the obstacle list for serialization.
func (o *ObstacleField) Spheres() []Sphere { return o.spheres }

// Force implements swarm.ForceContributor.
func (o *ObstacleField) Force(i int, pos, vel swarm.Vec3) swarm.Vec3 {
	var out swarm.Vec3
	cutoff := 3 * o.Decay
	for _, s := range o.spheres {
		away := pos.Sub(s.Center)
		dist := away.Norm()
		if dist < 1e-6 {
			// Dead center: push along +x so the agent leaves next step.
			out = out.Add(swarm.Vec3{X: o.Strength})
			continue
		}
		gap := dist - s.Radius
		if gap > cutoff {
			continue
		}
		mag := o.Strength
		if gap > 0 {
			mag *= float32(math.Exp(float64(-gap / o.Decay)))
		}
		out = out.Add(away.Scale(mag / dist))
	}
	return out
}
