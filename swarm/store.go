package swarm

import "math/rand"

// ParamTable supplies optional per-agent parameter overrides for
// heterogeneous populations. A nil table, or a nil slice inside it, falls
// back to the homogeneous values in Params. Slices are read-only inputs as
// far as the core is concerned.
type ParamTable struct {
	Beta []float32
	Eta  []float32
	V0   []float32
	Mass []float32
}

// Store holds the per-agent state as flat parallel arrays indexed by agent
// id. N is fixed for the store's lifetime; population dynamics are expressed
// by toggling Active slots from the outside.
type Store struct {
	N     int
	Pos   []Vec3
	Vel   []Vec3
	Force []Vec3

	// RNG holds one xorshift32 state per agent, mutated only by noise
	// application for that agent.
	RNG []uint32

	// Active marks live slots. Inactive agents are skipped by every kernel.
	Active []bool

	// Table is the optional heterogeneity overlay.
	Table *ParamTable
}

// NewStore allocates state for n agents, all active, with zeroed kinematics.
// Call Seed before stepping with noise enabled.
func NewStore(n int) *Store {
	s := &Store{
		N:      n,
		Pos:    make([]Vec3, n),
		Vel:    make([]Vec3, n),
		Force:  make([]Vec3, n),
		RNG:    make([]uint32, n),
		Active: make([]bool, n),
	}
	for i := range s.Active {
		s.Active[i] = true
	}
	return s
}

// Seed fills every agent's RNG stream from a single seeded source. Zero
// states would stick forever, so they are bumped to the agent index + 1.
func (s *Store) Seed(seed int64) {
	r := rand.New(rand.NewSource(seed))
	for i := range s.RNG {
		st := r.Uint32()
		if st == 0 {
			st = uint32(i) + 1
		}
		s.RNG[i] = st
	}
}

// InitUniform places agents uniformly in a centered cube of side 2*spawnHalf
// with uniform velocities in [-vScale, vScale] per component, drawn from the
// given seed. The RNG streams are seeded from the same source.
func (s *Store) InitUniform(seed int64, spawnHalf, vScale float32) {
	r := rand.New(rand.NewSource(seed))
	uni := func(scale float32) float32 {
		return (r.Float32()*2 - 1) * scale
	}
	for i := 0; i < s.N; i++ {
		s.Pos[i] = Vec3{uni(spawnHalf), uni(spawnHalf), uni(spawnHalf)}
		s.Vel[i] = Vec3{uni(vScale), uni(vScale), uni(vScale)}
	}
	for i := range s.RNG {
		st := r.Uint32()
		if st == 0 {
			st = uint32(i) + 1
		}
		s.RNG[i] = st
	}
}

// betaOf returns the alignment strength for agent i.
func (s *Store) betaOf(i int, def float32) float32 {
	if s.Table != nil && s.Table.Beta != nil {
		return s.Table.Beta[i]
	}
	return def
}

// etaOf returns the noise amplitude for agent i.
func (s *Store) etaOf(i int, def float32) float32 {
	if s.Table != nil && s.Table.Eta != nil {
		return s.Table.Eta[i]
	}
	return def
}

// v0Of returns the target speed for agent i.
func (s *Store) v0Of(i int, def float32) float32 {
	if s.Table != nil && s.Table.V0 != nil {
		return s.Table.V0[i]
	}
	return def
}

// massOf returns the mass for agent i.
func (s *Store) massOf(i int, def float32) float32 {
	if s.Table != nil && s.Table.Mass != nil {
		return s.Table.Mass[i]
	}
	return def
}
