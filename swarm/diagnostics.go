package swarm

import (
	"math"
	"sync"
)

// Stats holds the instantaneous order parameters of the flock, computed
// over active agents only.
type Stats struct {
	Active           int
	MeanSpeed        float32
	StdSpeed         float32
	RadiusOfGyration float32
	Polarization     float32
}

type statsPartial struct {
	n        int
	speedSum float64
	speed2   float64
	posSum   [3]float64
	velSum   [3]float64
}

// ComputeStats reduces the store into flock-level diagnostics. Speeds use a
// two-pass-free mean/variance from sum and sum of squares; polarization is
// the norm of the summed velocities over the summed speeds; the radius of
// gyration is the RMS distance from the active-agent centroid.
func ComputeStats(st *Store, pool *kernelPool) Stats {
	workers := pool.workers
	if workers < 1 {
		workers = 1
	}
	partials := make([]statsPartial, workers)
	chunk := (st.N + workers - 1) / workers

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * chunk
		end := start + chunk
		if end > st.N {
			end = st.N
		}
		if start >= end {
			continue
		}
		wg.Add(1)
		go func(w, start, end int) {
			defer wg.Done()
			p := &partials[w]
			for i := start; i < end; i++ {
				if !st.Active[i] {
					continue
				}
				p.n++
				v := st.Vel[i]
				speed := float64(v.Norm())
				p.speedSum += speed
				p.speed2 += speed * speed
				x := st.Pos[i]
				p.posSum[0] += float64(x.X)
				p.posSum[1] += float64(x.Y)
				p.posSum[2] += float64(x.Z)
				p.velSum[0] += float64(v.X)
				p.velSum[1] += float64(v.Y)
				p.velSum[2] += float64(v.Z)
			}
		}(w, start, end)
	}
	wg.Wait()

	var total statsPartial
	for w := range partials {
		p := &partials[w]
		total.n += p.n
		total.speedSum += p.speedSum
		total.speed2 += p.speed2
		for a := 0; a < 3; a++ {
			total.posSum[a] += p.posSum[a]
			total.velSum[a] += p.velSum[a]
		}
	}

	var out Stats
	out.Active = total.n
	if total.n == 0 {
		return out
	}
	n := float64(total.n)

	mean := total.speedSum / n
	out.MeanSpeed = float32(mean)
	variance := total.speed2/n - mean*mean
	if variance > 0 {
		out.StdSpeed = float32(math.Sqrt(variance))
	}

	if total.speedSum > 0 {
		out.Polarization = float32(math.Sqrt(
			total.velSum[0]*total.velSum[0]+
				total.velSum[1]*total.velSum[1]+
				total.velSum[2]*total.velSum[2]) / total.speedSum)
	}

	// Second pass for the gyration radius needs the centroid first.
	cx := total.posSum[0] / n
	cy := total.posSum[1] / n
	cz := total.posSum[2] / n
	var sum2 float64
	for i := 0; i < st.N; i++ {
		if !st.Active[i] {
			continue
		}
		dx := float64(st.Pos[i].X) - cx
		dy := float64(st.Pos[i].Y) - cy
		dz := float64(st.Pos[i].Z) - cz
		sum2 += dx*dx + dy*dy + dz*dz
	}
	out.RadiusOfGyration = float32(math.Sqrt(sum2 / n))
	return out
}
