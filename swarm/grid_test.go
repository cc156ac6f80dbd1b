package swarm

import (
	"math/rand"
	"testing"
)

func randomPositions(n int, half float32, seed int64) []Vec3 {
	r := rand.New(rand.NewSource(seed))
	pos := make([]Vec3, n)
	for i := range pos {
		pos[i] = Vec3{
			X: (2*r.Float32() - 1) * half,
			Y: (2*r.Float32() - 1) * half,
			Z: (2*r.Float32() - 1) * half,
		}
	}
	return pos
}

func TestGridAssignComplete(t *testing.T) {
	pool := newTestPool(t)

	const n = 500
	pos := randomPositions(n, 25, 3)
	active := make([]bool, n)
	for i := range active {
		active[i] = true
	}

	g := NewGrid(50, 5, n)
	g.Assign(pool, pos, active, nil)

	if got := g.TotalCount(); got != n {
		t.Errorf("grid holds %d agents, want %d", got, n)
	}

	// Every agent must be listed in the cell it reports.
	for i := 0; i < n; i++ {
		cell := int(g.AgentCell(i))
		found := false
		for _, m := range g.Members(cell) {
			if int(m) == i {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("agent %d missing from its cell %d", i, cell)
		}
	}
}

func TestGridSkipsInactive(t *testing.T) {
	pool := newTestPool(t)

	pos := []Vec3{{}, {X: 1}, {X: 2}}
	active := []bool{true, false, true}

	g := NewGrid(50, 5, len(pos))
	g.Assign(pool, pos, active, nil)

	if got := g.TotalCount(); got != 2 {
		t.Errorf("grid holds %d agents, want 2", got)
	}
	if g.AgentCell(1) >= 0 {
		t.Errorf("inactive agent has cell %d, want -1", g.AgentCell(1))
	}
}

func TestGridOutOfBoundsClamped(t *testing.T) {
	pool := newTestPool(t)

	// Positions far outside the box must land in edge cells, not panic.
	pos := []Vec3{{X: 1e6, Y: -1e6, Z: 300}, {X: -1e6}}
	active := []bool{true, true}

	g := NewGrid(50, 5, len(pos))
	g.Assign(pool, pos, active, nil)

	if got := g.TotalCount(); got != 2 {
		t.Errorf("grid holds %d agents, want 2", got)
	}
}

func TestGridMemberOrderDeterministic(t *testing.T) {
	pool := newTestPool(t)

	// 100 agents split over four cells, interleaved so worker chunks
	// race to insert into the same cells.
	const n = 100
	centers := []Vec3{{X: -10}, {X: 10}, {Y: -10}, {Y: 10}}
	pos := make([]Vec3, n)
	active := make([]bool, n)
	for i := range pos {
		pos[i] = centers[i%len(centers)]
		active[i] = true
	}

	g := NewGrid(50, 5, n)
	g.Assign(pool, pos, active, nil)
	firsts := make(map[int][]int32, len(centers))
	for _, c := range centers {
		cell := g.CellOf(c)
		firsts[cell] = append([]int32(nil), g.Members(cell)...)
	}

	for trial := 0; trial < 5; trial++ {
		g.Assign(pool, pos, active, nil)
		for cell, first := range firsts {
			got := g.Members(cell)
			if len(got) != len(first) {
				t.Fatalf("trial %d: cell %d count %d, want %d", trial, cell, len(got), len(first))
			}
			for k := range got {
				if got[k] != first[k] {
					t.Fatalf("trial %d: cell %d order differs at %d: %d vs %d",
						trial, cell, k, got[k], first[k])
				}
			}
		}
	}
}

func TestGridOverflowCounted(t *testing.T) {
	pool := newTestPool(t)

	// Small n keeps per-cell capacity at its floor of 32; cram 100 agents
	// into one cell so 68 insertions must be dropped.
	const n = 100
	pos := make([]Vec3, n)
	active := make([]bool, n)
	for i := range active {
		active[i] = true
	}

	g := NewGrid(4, 1, n)
	g.Assign(pool, pos, active, nil)

	if g.Dropped() == 0 {
		t.Error("expected dropped insertions on an overfull cell")
	}
	cell := g.CellOf(Vec3{})
	if len(g.Members(cell)) > 32 {
		t.Errorf("cell holds %d members, capacity is 32", len(g.Members(cell)))
	}
	if got := g.TotalCount() + int(g.Dropped()); got != n {
		t.Errorf("held %d + dropped %d != %d", g.TotalCount(), g.Dropped(), n)
	}
}

func TestNeighborCellsNoWrap(t *testing.T) {
	g := NewGrid(50, 5, 10)
	var buf [27]int

	// A corner cell has only 8 neighbors inside the box.
	corner := g.CellOf(Vec3{X: -24.9, Y: -24.9, Z: -24.9})
	if got := g.NeighborCells(corner, &buf); got != 8 {
		t.Errorf("corner window has %d cells, want 8", got)
	}

	center := g.CellOf(Vec3{})
	if got := g.NeighborCells(center, &buf); got != 27 {
		t.Errorf("interior window has %d cells, want 27", got)
	}
}
