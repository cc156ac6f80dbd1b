package swarm

import "fmt"

// Options configures a Simulation. Zero values fall back to sensible
// defaults where noted.
type Options struct {
	// N is the number of agent slots. Required.
	N int

	Params Params

	// Dt is the integration timestep. Defaults to 0.02.
	Dt float32

	// CellSize is the grid cell edge. Defaults to the interaction cutoff.
	CellSize float32

	// Seed drives the per-agent noise streams and the initial placement.
	Seed int64

	// SpawnHalf is the half-width of the initial placement cube. Defaults
	// to a quarter of the box so reflective runs do not start on a wall.
	SpawnHalf float32

	// VSpread scales the random initial velocities. Defaults to Params.V0.
	VSpread float32

	// Workers sets the kernel pool size; 0 means one per CPU.
	Workers int

	Groups GroupParams

	// Visibility optionally gates alignment by a perception test.
	Visibility VisibilityFunc

	// Contributors are extra per-agent steering forces.
	Contributors []ForceContributor

	// Table supplies per-agent parameter overrides, or nil for a
	// homogeneous population.
	Table *ParamTable
}

// Simulation ties the store, grid, force model, and integrator into a
// stepping loop. It is not safe for concurrent use; callers drive it from
// one goroutine and read state between steps.
type Simulation struct {
	store    *Store
	grid     *Grid
	forces   *Forces
	integ    *Integrator
	detector *GroupDetector
	pool     *kernelPool

	// groupGrid is sized by the clustering radius rather than the force
	// cutoff, so group neighbors stay inside the 27-cell window. Built
	// lazily by UpdateGroups.
	groupGrid *Grid

	// autoCell is set when the force grid cell size was derived from Rc,
	// in which case SetParams re-derives it.
	autoCell bool

	opts Options
	step uint64
}

// New builds a simulation, places the agents, and starts the worker pool.
// Close must be called when done.
func New(opts Options) (*Simulation, error) {
	if opts.N <= 0 {
		return nil, fmt.Errorf("simulation: agent count must be positive, got %d", opts.N)
	}
	if err := opts.Params.Validate(); err != nil {
		return nil, err
	}
	if opts.Dt <= 0 {
		opts.Dt = 0.02
	}
	autoCell := opts.CellSize <= 0
	if autoCell {
		opts.CellSize = opts.Params.Rc
	}
	if opts.SpawnHalf <= 0 {
		opts.SpawnHalf = opts.Params.BoxSize * 0.25
	}
	if opts.VSpread <= 0 {
		opts.VSpread = opts.Params.V0
	}
	if opts.Groups == (GroupParams{}) {
		opts.Groups = DefaultGroupParams()
	}

	s := &Simulation{
		store:    NewStore(opts.N),
		grid:     NewGrid(opts.Params.BoxSize, opts.CellSize, opts.N),
		forces:   NewForces(opts.Params, opts.Visibility, opts.Contributors...),
		integ:    NewIntegrator(opts.Params, opts.Dt),
		detector: NewGroupDetector(opts.Groups, opts.N),
		pool:     newKernelPool(opts.Workers),
		autoCell: autoCell,
		opts:     opts,
	}
	s.store.Table = opts.Table
	s.store.InitUniform(opts.Seed, opts.SpawnHalf, opts.VSpread)
	s.pool.start()
	return s, nil
}

// Close stops the worker pool. The simulation must not be stepped after.
func (s *Simulation) Close() { s.pool.stop() }

// Store exposes the agent state for readers and population managers.
func (s *Simulation) Store() *Store { return s.store }

// Positions returns the position slice. Valid until the next Step.
func (s *Simulation) Positions() []Vec3 { return s.store.Pos }

// Velocities returns the velocity slice. Valid until the next Step.
func (s *Simulation) Velocities() []Vec3 { return s.store.Vel }

// Grid exposes the spatial index as assigned by the last step.
func (s *Simulation) Grid() *Grid { return s.grid }

// Params returns the current simulation parameters.
func (s *Simulation) Params() Params { return s.opts.Params }

// Dt returns the integration timestep.
func (s *Simulation) Dt() float32 { return s.integ.Dt() }

// StepCount returns the number of completed steps.
func (s *Simulation) StepCount() uint64 { return s.step }

// SetParams swaps the physics parameters between steps. The box size and
// boundary mode are fixed at construction and keep their original values.
// When the cell size tracks the cutoff, a changed Rc rebuilds the grid so
// the 27-cell window still covers the interaction range; an explicit
// Options.CellSize stays pinned.
func (s *Simulation) SetParams(p Params) error {
	p.BoxSize = s.opts.Params.BoxSize
	p.Boundary = s.opts.Params.Boundary
	if err := p.Validate(); err != nil {
		return err
	}
	if s.autoCell && p.Rc != s.opts.CellSize {
		s.opts.CellSize = p.Rc
		s.grid = NewGrid(p.BoxSize, p.Rc, s.opts.N)
	}
	s.opts.Params = p
	s.forces = NewForces(p, s.opts.Visibility, s.opts.Contributors...)
	s.integ = NewIntegrator(p, s.opts.Dt)
	return nil
}

// Step advances the simulation by one timestep: forces on the current
// positions, half kick and drift, forces on the drifted positions, then the
// second half kick with friction and noise.
func (s *Simulation) Step() {
	s.grid.Assign(s.pool, s.store.Pos, s.store.Active, nil)
	s.forces.Compute(s.store, s.grid, s.pool)
	s.integ.Step1(s.store, s.pool)

	s.grid.Assign(s.pool, s.store.Pos, s.store.Active, nil)
	s.forces.Compute(s.store, s.grid, s.pool)
	s.integ.Step2(s.store, s.pool)

	s.step++
}

// SetGroupParams swaps the clustering criteria used by later UpdateGroups
// calls.
func (s *Simulation) SetGroupParams(p GroupParams) {
	s.detector.params = p
}

// SetGroupExclusion installs a predicate that keeps matching agents out of
// group detection.
func (s *Simulation) SetGroupExclusion(fn func(i int) bool) {
	s.detector.Exclude = fn
}

// UpdateGroups reruns cluster detection on the current state and returns
// the group summaries. Detection uses its own grid, celled at the
// clustering radius, assigned fresh so the latest positions are indexed.
func (s *Simulation) UpdateGroups() []Group {
	radius := s.detector.params.Radius
	if radius <= 0 {
		radius = s.opts.Params.Rc
	}
	if s.groupGrid == nil || s.groupGrid.CellSize != radius {
		s.groupGrid = NewGrid(s.opts.Params.BoxSize, radius, s.opts.N)
	}
	s.groupGrid.Assign(s.pool, s.store.Pos, s.store.Active, nil)
	s.detector.Update(s.store, s.groupGrid, s.opts.Params, s.pool)
	return s.detector.Groups(s.store)
}

// GroupLabels returns the per-agent labels from the last UpdateGroups.
func (s *Simulation) GroupLabels() []int32 { return s.detector.Labels() }

// Stats computes the instantaneous flock diagnostics.
func (s *Simulation) Stats() Stats { return ComputeStats(s.store, s.pool) }
