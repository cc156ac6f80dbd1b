package swarm

import (
	"math"
	"sort"
	"sync/atomic"
)

// Group is one detected cluster of agents moving together.
type Group struct {
	ID           int
	Size         int
	Centroid     Vec3
	MeanVelocity Vec3
}

// GroupParams configures cluster detection. Two agents bond when they are
// closer than Radius and their velocity headings differ by less than
// MaxAngle (radians). Groups smaller than MinSize are discarded.
type GroupParams struct {
	Radius   float32 `yaml:"radius"`
	MaxAngle float32 `yaml:"max_angle"`
	MaxIter  int     `yaml:"max_iter"`
	MinSize  int     `yaml:"min_size"`
}

// DefaultGroupParams returns the detection settings used when the config
// leaves them unset.
func DefaultGroupParams() GroupParams {
	return GroupParams{Radius: 5.0, MaxAngle: 30 * math.Pi / 180, MaxIter: 10, MinSize: 2}
}

// GroupDetector assigns a cluster label to every agent by min-label
// propagation over the spatial grid. Each round every agent pulls the
// smallest label among its bonded neighbors; connected components converge
// to the smallest member index within MaxIter rounds on typical flocks.
type GroupDetector struct {
	params GroupParams

	labels []int32
	next   []int32

	// Exclude drops an agent from clustering entirely when it returns
	// true. Excluded agents keep label -1. Nil means nobody is excluded.
	Exclude func(i int) bool
}

// NewGroupDetector builds a detector sized for n agents.
func NewGroupDetector(params GroupParams, n int) *GroupDetector {
	if params.MaxIter <= 0 {
		params.MaxIter = DefaultGroupParams().MaxIter
	}
	return &GroupDetector{
		params: params,
		labels: make([]int32, n),
		next:   make([]int32, n),
	}
}

// Labels returns the per-agent group labels from the last Update. A label
// of -1 means unclustered.
func (d *GroupDetector) Labels() []int32 { return d.labels }

// Update recomputes the labels from the current store state. The grid must
// be assigned from the same positions. Boundary and box size come from the
// force parameters so periodic distances use the minimum image.
func (d *GroupDetector) Update(st *Store, g *Grid, p Params, pool *kernelPool) {
	r2 := d.params.Radius * d.params.Radius
	cosMax := float32(math.Cos(float64(d.params.MaxAngle)))
	periodic := p.Boundary == BoundaryPeriodic
	box := p.BoxSize
	half := box * 0.5

	// Every agent starts as its own singleton. Agents that are inactive,
	// excluded, or not moving never join a cluster.
	pool.run(st.N, func(start, end int) {
		for i := start; i < end; i++ {
			if !st.Active[i] || (d.Exclude != nil && d.Exclude(i)) ||
				st.Vel[i].NormSq() < 1e-12 {
				d.labels[i] = -1
				continue
			}
			d.labels[i] = int32(i)
		}
	})

	minImage := func(r Vec3) Vec3 {
		if !periodic {
			return r
		}
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

	var changed atomic.Bool
	for iter := 0; iter < d.params.MaxIter; iter++ {
		changed.Store(false)

		pool.run(st.N, func(start, end int) {
			var cellBuf [27]int
			for i := start; i < end; i++ {
				cur := d.labels[i]
				if cur < 0 {
					d.next[i] = cur
					continue
				}
				best := cur
				xi := st.Pos[i]
				vi := st.Vel[i]
				speedI := vi.Norm()

				cell := int(g.AgentCell(i))
				if cell < 0 {
					cell = g.CellOf(xi)
				}
				nc := g.NeighborCells(cell, &cellBuf)
				for k := 0; k < nc; k++ {
					for _, jj := range g.Members(cellBuf[k]) {
						j := int(jj)
						lj := d.labels[j]
						if j == i || lj < 0 || lj >= best {
							continue
						}
						rij := minImage(st.Pos[j].Sub(xi))
						if rij.NormSq() >= r2 {
							continue
						}
						vj := st.Vel[j]
						// Heading test on normalized velocities; both
						// speeds are nonzero here by construction.
						if vi.Dot(vj) <= cosMax*speedI*vj.Norm() {
							continue
						}
						best = lj
					}
				}
				d.next[i] = best
				if best != cur {
					changed.Store(true)
				}
			}
		})

		d.labels, d.next = d.next, d.labels
		if !changed.Load() {
			break
		}
	}
}

// Groups aggregates the current labels into group summaries, ordered by
// descending size with the label as tiebreak. Labels of agents in groups
// below MinSize are reset to -1 and the rest are renumbered to compact
// group IDs, so call Groups once per Update.
func (d *GroupDetector) Groups(st *Store) []Group {
	sizes := make(map[int32]int)
	for i := 0; i < st.N; i++ {
		if l := d.labels[i]; l >= 0 {
			sizes[l]++
		}
	}

	minSize := d.params.MinSize
	if minSize < 1 {
		minSize = 1
	}

	agg := make(map[int32]*Group)
	for i := 0; i < st.N; i++ {
		l := d.labels[i]
		if l < 0 {
			continue
		}
		if sizes[l] < minSize {
			d.labels[i] = -1
			continue
		}
		grp, ok := agg[l]
		if !ok {
			grp = &Group{}
			agg[l] = grp
		}
		grp.Size++
		grp.Centroid = grp.Centroid.Add(st.Pos[i])
		grp.MeanVelocity = grp.MeanVelocity.Add(st.Vel[i])
	}

	roots := make([]int32, 0, len(agg))
	for l := range agg {
		roots = append(roots, l)
	}
	sort.Slice(roots, func(a, b int) bool {
		if agg[roots[a]].Size != agg[roots[b]].Size {
			return agg[roots[a]].Size > agg[roots[b]].Size
		}
		return roots[a] < roots[b]
	})

	// Renumber to compact IDs and relabel members to match.
	idOf := make(map[int32]int, len(roots))
	groups := make([]Group, len(roots))
	for id, root := range roots {
		grp := agg[root]
		inv := 1 / float32(grp.Size)
		grp.ID = id
		grp.Centroid = grp.Centroid.Scale(inv)
		grp.MeanVelocity = grp.MeanVelocity.Scale(inv)
		groups[id] = *grp
		idOf[root] = id
	}
	for i := 0; i < st.N; i++ {
		if l := d.labels[i]; l >= 0 {
			d.labels[i] = int32(idOf[l])
		}
	}
	return groups
}
