// Package swarm implements the flocking core: agent state arrays, a uniform
// spatial grid, the Morse/alignment force model, a velocity-Verlet integrator
// with configurable boundaries, and grid-accelerated group detection.
package swarm

import "math"

// Vec3 is a 3-component float32 vector. Value semantics; methods return new
// values and never mutate the receiver.
type Vec3 struct {
	X, Y, Z float32
}

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

// Scale returns v scaled by s.
func (v Vec3) Scale(s float32) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}

// Dot returns the dot product of v and o.
func (v Vec3) Dot(o Vec3) float32 {
	return v.X*o.X + v.Y*o.Y + v.Z*o.Z
}

// Cross returns the cross product v × o.
func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		v.Y*o.Z - v.Z*o.Y,
		v.Z*o.X - v.X*o.Z,
		v.X*o.Y - v.Y*o.X,
	}
}

// NormSq returns the squared length of v.
func (v Vec3) NormSq() float32 {
	return v.X*v.X + v.Y*v.Y + v.Z*v.Z
}

// Norm returns the length of v.
func (v Vec3) Norm() float32 {
	return float32(math.Sqrt(float64(v.NormSq())))
}

// Normalized returns v scaled to unit length, or the zero vector when v is
// shorter than eps.
func (v Vec3) Normalized() Vec3 {
	n := v.Norm()
	if n < 1e-6 {
		return Vec3{}
	}
	return v.Scale(1 / n)
}
