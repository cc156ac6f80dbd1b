package swarm

import "math"

// VisibilityFunc decides whether a neighbor at the given offset is visible
// to a viewer moving with the given velocity. It gates only the alignment
// interaction; the Morse force acts regardless of perception. A nil func
// means every neighbor is visible.
type VisibilityFunc func(viewerVel, offset Vec3) bool

// ForceContributor adds an external steering force for one agent. Extra
// contributors run after the pairwise terms and must be safe for concurrent
// calls with distinct i.
type ForceContributor interface {
	Force(i int, pos, vel Vec3) Vec3
}

// Forces computes the per-agent net force: pairwise Morse attraction and
// repulsion plus Cucker-Smale velocity alignment over grid neighbors within
// the cutoff, then any registered contributors. Each agent writes only its
// own force slot, so the pass parallelizes per agent with no locking.
type Forces struct {
	params  Params
	visible VisibilityFunc
	extra   []ForceContributor
}

// NewForces builds a force model for the given parameters.
func NewForces(params Params, visible VisibilityFunc, extra ...ForceContributor) *Forces {
	return &Forces{params: params, visible: visible, extra: extra}
}

// displacement returns xj - xi under the configured boundary mode. Periodic
// boxes use the minimum-image convention per axis.
func (f *Forces) displacement(xi, xj Vec3) Vec3 {
	r := xj.Sub(xi)
	if f.params.Boundary != BoundaryPeriodic {
		return r
	}
	box := f.params.BoxSize
	half := box * 0.5
	if r.X > half {
		r.X -= box
	} else if r.X < -half {
		r.X += box
	}
	if r.Y > half {
		r.Y -= box
	} else if r.Y < -half {
		r.Y += box
	}
	if r.Z > half {
		r.Z -= box
	} else if r.Z < -half {
		r.Z += box
	}
	return r
}

// Compute fills st.Force for every active agent from the current positions
// and velocities. The grid must have been assigned from the same positions.
func (f *Forces) Compute(st *Store, g *Grid, pool *kernelPool) {
	p := f.params
	invLa := 1.0 / p.La
	invLr := 1.0 / p.Lr
	rc2 := p.Rc * p.Rc

	pool.run(st.N, func(start, end int) {
		var cellBuf [27]int
		for i := start; i < end; i++ {
			if !st.Active[i] {
				st.Force[i] = Vec3{}
				continue
			}

			xi := st.Pos[i]
			vi := st.Vel[i]
			betaI := st.betaOf(i, p.Beta)

			var force Vec3
			var vSum Vec3
			neighbors := 0

			cell := int(g.AgentCell(i))
			if cell < 0 {
				cell = g.CellOf(xi)
			}
			nc := g.NeighborCells(cell, &cellBuf)
			for k := 0; k < nc; k++ {
				for _, jj := range g.Members(cellBuf[k]) {
					j := int(jj)
					if j == i || !st.Active[j] {
						continue
					}

					rij := f.displacement(xi, st.Pos[j])
					r2 := rij.NormSq()
					// Skip outside the cutoff and guard against coincident
					// points, which would blow up the unit direction.
					if r2 > rc2 || r2 < 1e-6 {
						continue
					}

					r := float32(math.Sqrt(float64(r2)))
					invR := 1.0 / r

					expA := float32(math.Exp(float64(-r * invLa)))
					expR := float32(math.Exp(float64(-r * invLr)))
					coeff := p.Ca*invLa*expA - p.Cr*invLr*expR
					force = force.Add(rij.Scale(coeff * invR))

					if betaI > 0 {
						if f.visible == nil || f.visible(vi, rij) {
							vSum = vSum.Add(st.Vel[j])
							neighbors++
						}
					}
				}
			}

			// Alignment relaxes toward the mean neighbor velocity. The mean,
			// not the sum: the force must not grow with neighbor count.
			if betaI > 0 && neighbors > 0 {
				vAvg := vSum.Scale(1 / float32(neighbors))
				force = force.Add(vAvg.Sub(vi).Scale(betaI))
			}

			if p.Boundary == BoundaryReflective && p.WallStiffness > 0 {
				force = force.Add(f.wallForce(xi))
			}

			for _, c := range f.extra {
				force = force.Add(c.Force(i, xi, vi))
			}

			st.Force[i] = force
		}
	})
}

// wallForce pushes agents away from reflective box faces with an
// exponentially decaying normal force. The repulsion length Lr doubles as
// the wall decay scale so there is no separate knob.
func (f *Forces) wallForce(x Vec3) Vec3 {
	half := f.params.BoxSize * 0.5
	k := f.params.WallStiffness
	lr := f.params.Lr

	axisForce := func(c float32) float32 {
		d := half - c // distance to the +face
		var out float32
		if d < 3*lr {
			out -= k * float32(math.Exp(float64(-d/lr)))
		}
		d = c + half // distance to the -face
		if d < 3*lr {
			out += k * float32(math.Exp(float64(-d/lr)))
		}
		return out
	}
	return Vec3{axisForce(x.X), axisForce(x.Y), axisForce(x.Z)}
}
