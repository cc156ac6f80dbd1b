package ecology

import (
	"math/rand"

	"github.com/murmursim/murmur/swarm"
)

// Patch is one renewable forage site.
type Patch struct {
	Pos      swarm.Vec3
	Amount   float32
	Capacity float32
}

// ResourceField holds the forage patches. Consumption and regeneration run
// single-threaded between simulation steps.
type ResourceField struct {
	patches []Patch
	regen   float32
}

// NewResourceField scatters n full patches uniformly inside a cube of the
// given half-width.
func NewResourceField(n int, capacity, regen, half float32, rng *rand.Rand) *ResourceField {
	f := &ResourceField{
		patches: make([]Patch, n),
		regen:   regen,
	}
	for i := range f.patches {
		f.patches[i] = Patch{
			Pos: swarm.Vec3{
				X: (2*rng.Float32() - 1) * half,
				Y: (2*rng.Float32() - 1) * half,
				Z: (2*rng.Float32() - 1) * half,
			},
			Amount:   capacity,
			Capacity: capacity,
		}
	}
	return f
}

// Patches returns the patch list for serialization.
func (f *ResourceField) Patches() []Patch { return f.patches }

// Regen grows every patch toward capacity.
func (f *ResourceField) Regen(dt float32) {
	for i := range f.patches {
		p := &f.patches[i]
		if p.Amount < p.Capacity {
			p.Amount += f.regen * dt
			if p.Amount > p.Capacity {
				p.Amount = p.Capacity
			}
		}
	}
}

// Nearest returns the index of the closest non-empty patch and its squared
// distance, or -1 when every patch is exhausted.
func (f *ResourceField) Nearest(pos swarm.Vec3) (int, float32) {
	best := -1
	var bestD2 float32
	for i := range f.patches {
		if f.patches[i].Amount <= 0 {
			continue
		}
		d2 := f.patches[i].Pos.Sub(pos).NormSq()
		if best < 0 || d2 < bestD2 {
			best = i
			bestD2 = d2
		}
	}
	return best, bestD2
}

// Consume takes up to amount from patch i and returns what was actually
// available.
func (f *ResourceField) Consume(i int, amount float32) float32 {
	p := &f.patches[i]
	if amount > p.Amount {
		amount = p.Amount
	}
	p.Amount -= amount
	return amount
}

// Total sums the energy stored across all patches.
func (f *ResourceField) Total() float32 {
	var sum float32
	for i := range f.patches {
		sum += f.patches[i].Amount
	}
	return sum
}
