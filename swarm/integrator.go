package swarm

import "math"

// Integrator advances the simulation with a two-stage velocity-Verlet
// scheme. Stage one applies a half velocity kick and the position drift,
// stage two applies the second half kick followed by Rayleigh friction and
// Vicsek angular noise. Forces must be recomputed between the stages.
type Integrator struct {
	params Params
	dt     float32
}

// NewIntegrator builds an integrator for the given parameters and timestep.
func NewIntegrator(params Params, dt float32) *Integrator {
	return &Integrator{params: params, dt: dt}
}

// Dt returns the configured timestep.
func (in *Integrator) Dt() float32 { return in.dt }

// Step1 applies the first half kick, drifts positions, and enforces the
// boundary condition.
func (in *Integrator) Step1(st *Store, pool *kernelPool) {
	p := in.params
	dt := in.dt
	half := p.BoxSize * 0.5

	pool.run(st.N, func(start, end int) {
		for i := start; i < end; i++ {
			if !st.Active[i] {
				continue
			}
			m := st.massOf(i, p.Mass)
			v := st.Vel[i].Add(st.Force[i].Scale(0.5 * dt / m))
			x := st.Pos[i].Add(v.Scale(dt))

			switch p.Boundary {
			case BoundaryPeriodic:
				x = wrap(x, p.BoxSize)
			case BoundaryReflective:
				x, v = reflect(x, v, half)
			case BoundaryAbsorbing:
				if x.X < -half || x.X > half ||
					x.Y < -half || x.Y > half ||
					x.Z < -half || x.Z > half {
					// Stick to the wall: keep the old position, kill the
					// velocity, stay active. Removing the agent is a
					// population-management decision made elsewhere.
					st.Vel[i] = Vec3{}
					continue
				}
			}

			st.Pos[i] = x
			st.Vel[i] = v
		}
	})
}

// Step2 applies the second half kick, Rayleigh friction, and per-agent
// angular noise. Friction relaxes the speed toward the preferred cruise
// speed; the noise rotates the velocity without changing its magnitude.
func (in *Integrator) Step2(st *Store, pool *kernelPool) {
	p := in.params
	dt := in.dt

	pool.run(st.N, func(start, end int) {
		for i := start; i < end; i++ {
			if !st.Active[i] {
				continue
			}
			m := st.massOf(i, p.Mass)
			v := st.Vel[i].Add(st.Force[i].Scale(0.5 * dt / m))

			v0 := st.v0Of(i, p.V0)
			speed2 := v.NormSq()
			v = v.Add(v.Scale(dt * p.Alpha * (1 - speed2/(v0*v0+1e-12))))

			// Stationary agents keep their (zero) heading and leave their
			// noise stream untouched.
			eta := st.etaOf(i, p.Eta)
			if eta > 0 && v.NormSq() > 1e-12 {
				v = rotateNoise(v, eta, &st.RNG[i])
			}

			st.Vel[i] = v
		}
	})
}

// wrap maps a position into the periodic box [-box/2, box/2) per axis.
func wrap(x Vec3, box float32) Vec3 {
	half := box * 0.5
	wrap1 := func(c float32) float32 {
		for c >= half {
			c -= box
		}
		for c < -half {
			c += box
		}
		return c
	}
	return Vec3{wrap1(x.X), wrap1(x.Y), wrap1(x.Z)}
}

// reflect clamps an out-of-box position back onto the wall and flips the
// corresponding velocity component.
func reflect(x, v Vec3, half float32) (Vec3, Vec3) {
	if x.X > half {
		x.X = half
		v.X = -abs32(v.X)
	} else if x.X < -half {
		x.X = -half
		v.X = abs32(v.X)
	}
	if x.Y > half {
		x.Y = half
		v.Y = -abs32(v.Y)
	} else if x.Y < -half {
		x.Y = -half
		v.Y = abs32(v.Y)
	}
	if x.Z > half {
		x.Z = half
		v.Z = -abs32(v.Z)
	} else if x.Z < -half {
		x.Z = -half
		v.Z = abs32(v.Z)
	}
	return x, v
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

// rotateNoise rotates v by a uniform random angle in [-eta, eta] about a
// uniformly distributed random axis, advancing the agent's RNG state in
// place. Speed is preserved exactly up to float rounding.
func rotateNoise(v Vec3, eta float32, state *uint32) Vec3 {
	s := *state
	s = xorshift32(s)
	angle := eta * (2*randUniform(s) - 1)
	s = xorshift32(s)
	u := 2*randUniform(s) - 1
	s = xorshift32(s)
	w := 2*randUniform(s) - 1
	*state = s

	// Marsaglia (1972): a point (u, w) inside the unit disk maps to a
	// uniform direction on the sphere.
	var axis Vec3
	d2 := u*u + w*w
	if d2 > 1e-6 && d2 < 1 {
		f := float32(math.Sqrt(float64(1 - d2)))
		axis = Vec3{2 * u * f, 2 * w * f, 1 - 2*d2}
	} else {
		// Rejected sample: fall back to any direction perpendicular to v
		// so the rotation still perturbs the heading.
		axis = perpendicular(v)
	}

	return rodrigues(v, axis, angle)
}

// perpendicular returns a unit vector orthogonal to v, choosing the cross
// with whichever basis axis is least aligned with v.
func perpendicular(v Vec3) Vec3 {
	basis := Vec3{1, 0, 0}
	if abs32(v.X) > abs32(v.Y) {
		basis = Vec3{0, 1, 0}
	}
	p := v.Cross(basis)
	if p.NormSq() < 1e-12 {
		return Vec3{0, 0, 1}
	}
	return p.Normalized()
}

// rodrigues rotates v around the unit axis k by the given angle.
func rodrigues(v, k Vec3, angle float32) Vec3 {
	c := float32(math.Cos(float64(angle)))
	s := float32(math.Sin(float64(angle)))
	return v.Scale(c).
		Add(k.Cross(v).Scale(s)).
		Add(k.Scale(k.Dot(v) * (1 - c)))
}
