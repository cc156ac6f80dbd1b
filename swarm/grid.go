package swarm

import (
	"sort"
	"sync/atomic"
)

// minResolution is the smallest grid resolution per axis regardless of how
// large the cell size is relative to the box.
const minResolution = 4

// Grid is a uniform cell index over the centered simulation box. It is
// rebuilt from scratch for every force pass (and for every clustering pass,
// with a different cell size); it carries no state between rebuilds.
//
// Cells have fixed capacity. When a cell fills up, further insertions into it
// are dropped from that cell's member list and queries simply miss those
// agents. This is a soft degradation, counted in dropped, never an error.
type Grid struct {
	CellSize float32
	Res      int

	box        float32
	maxPerCell int

	counts  []int32
	members []int32 // flattened: cell*maxPerCell + slot

	// agentCell caches each agent's cell id (-1 when skipped) so consumers
	// do not recompute the hash per query.
	agentCell []int32

	dropped atomic.Int64
}

// NewGrid builds an empty grid for a box of the given side length. Capacity
// per cell is sized from the mean density with a 4x safety margin, never
// below 32.
func NewGrid(box, cellSize float32, n int) *Grid {
	res := int(box/cellSize) + 1
	if res < minResolution {
		res = minResolution
	}
	total := res * res * res

	perCell := 4 * n / total
	if perCell < 32 {
		perCell = 32
	}

	return &Grid{
		CellSize:   cellSize,
		Res:        res,
		box:        box,
		maxPerCell: perCell,
		counts:     make([]int32, total),
		members:    make([]int32, total*perCell),
		agentCell:  make([]int32, n),
	}
}

// CellOf maps a position to its linear cell id. Coordinates are shifted into
// [0, box) and clamped, so positions slightly outside the box (reflective
// bounce overshoot, absorbing freeze) still land in a valid edge cell.
func (g *Grid) CellOf(p Vec3) int {
	half := g.box * 0.5
	ix := g.clampIndex((p.X + half) / g.CellSize)
	iy := g.clampIndex((p.Y + half) / g.CellSize)
	iz := g.clampIndex((p.Z + half) / g.CellSize)
	return ix + iy*g.Res + iz*g.Res*g.Res
}

func (g *Grid) clampIndex(v float32) int {
	i := int(v)
	if i < 0 {
		return 0
	}
	if i >= g.Res {
		return g.Res - 1
	}
	return i
}

// Assign rebuilds the index from positions. Agents with active[i] == false,
// or rejected by the optional skip predicate, are left out with cell id -1.
// Insertion claims a slot with an atomic add and then writes the member, so
// parallel assignment is race-free; member lists are sorted afterwards to
// make neighbor iteration order independent of scheduling.
func (g *Grid) Assign(pool *kernelPool, pos []Vec3, active []bool, skip func(i int) bool) {
	for c := range g.counts {
		g.counts[c] = 0
	}

	pool.run(len(pos), func(start, end int) {
		for i := start; i < end; i++ {
			if !active[i] || (skip != nil && skip(i)) {
				g.agentCell[i] = -1
				continue
			}
			cell := g.CellOf(pos[i])
			g.agentCell[i] = int32(cell)

			slot := atomic.AddInt32(&g.counts[cell], 1) - 1
			if int(slot) < g.maxPerCell {
				g.members[cell*g.maxPerCell+int(slot)] = int32(i)
			} else {
				g.dropped.Add(1)
			}
		}
	})

	pool.run(len(g.counts), func(start, end int) {
		for c := start; c < end; c++ {
			n := int(g.counts[c])
			if n > g.maxPerCell {
				g.counts[c] = int32(g.maxPerCell)
				n = g.maxPerCell
			}
			if n > 1 {
				m := g.members[c*g.maxPerCell : c*g.maxPerCell+n]
				sort.Slice(m, func(a, b int) bool { return m[a] < m[b] })
			}
		}
	})
}

// Members returns the member list of a cell, valid until the next Assign.
func (g *Grid) Members(cell int) []int32 {
	n := int(g.counts[cell])
	return g.members[cell*g.maxPerCell : cell*g.maxPerCell+n]
}

// AgentCell returns the cell id agent i was assigned to, or -1 when the
// agent was skipped.
func (g *Grid) AgentCell(i int) int32 {
	return g.agentCell[i]
}

// NeighborCells writes the linear ids of the 3x3x3 window around cell into
// buf and returns how many are in range. There is no wrap-around: periodic
// correctness is the distance function's job, not the grid topology's.
func (g *Grid) NeighborCells(cell int, buf *[27]int) int {
	res := g.Res
	iz := cell / (res * res)
	rem := cell % (res * res)
	iy := rem / res
	ix := rem % res

	n := 0
	for dz := -1; dz <= 1; dz++ {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				nx, ny, nz := ix+dx, iy+dy, iz+dz
				if nx < 0 || nx >= res || ny < 0 || ny >= res || nz < 0 || nz >= res {
					continue
				}
				buf[n] = nx + ny*res + nz*res*res
				n++
			}
		}
	}
	return n
}

// TotalCount sums the per-cell counts. After Assign with no skips it equals
// the number of active agents minus Dropped deltas.
func (g *Grid) TotalCount() int {
	total := 0
	for _, c := range g.counts {
		total += int(c)
	}
	return total
}

// Dropped reports how many insertions have been lost to full cells since the
// grid was created.
func (g *Grid) Dropped() int64 {
	return g.dropped.Load()
}
