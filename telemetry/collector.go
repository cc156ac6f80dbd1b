package telemetry

import "github.com/murmursim/murmur/swarm"

// Collector accumulates events within time windows and produces WindowStats.
type Collector struct {
	windowSteps uint64
	dt          float64

	windowStart uint64

	// Event counters for current window
	births  int
	deaths  int
	kills   int
	attacks int
	foraged float64
}

// NewCollector creates a stats collector emitting one window every
// windowSteps simulation steps.
func NewCollector(windowSteps int, dt float64) *Collector {
	if windowSteps < 1 {
		windowSteps = 1
	}
	return &Collector{windowSteps: uint64(windowSteps), dt: dt}
}

// RecordEvents folds one batch of ecology events into the current window.
func (c *Collector) RecordEvents(births, deaths, kills, attacks int, foraged float64) {
	c.births += births
	c.deaths += deaths
	c.kills += kills
	c.attacks += attacks
	c.foraged += foraged
}

// WindowDue reports whether the window ending at step should be emitted.
func (c *Collector) WindowDue(step uint64) bool {
	return step > 0 && step%c.windowSteps == 0
}

// Snapshot holds the instantaneous state sampled at window end.
type Snapshot struct {
	Stats         swarm.Stats
	Groups        []swarm.Group
	Energies      []float64
	Predators     int
	TotalResource float64
}

// EmitWindow builds the stats record for the window ending at step and
// resets the event counters for the next one.
func (c *Collector) EmitWindow(step uint64, snap Snapshot) WindowStats {
	ws := WindowStats{
		WindowStartStep: c.windowStart,
		WindowEndStep:   step,
		SimTimeSec:      float64(step) * c.dt,

		Population: snap.Stats.Active,
		Predators:  snap.Predators,

		Births:  c.births,
		Deaths:  c.deaths,
		Kills:   c.kills,
		Attacks: c.attacks,

		EnergyForaged: c.foraged,

		MeanSpeed:        float64(snap.Stats.MeanSpeed),
		StdSpeed:         float64(snap.Stats.StdSpeed),
		Polarization:     float64(snap.Stats.Polarization),
		RadiusOfGyration: float64(snap.Stats.RadiusOfGyration),

		TotalResource: snap.TotalResource,
	}

	if c.attacks > 0 {
		ws.HitRate = float64(c.kills) / float64(c.attacks)
	}

	ws.NumGroups = len(snap.Groups)
	grouped := 0
	for _, g := range snap.Groups {
		grouped += g.Size
		if g.Size > ws.LargestGroup {
			ws.LargestGroup = g.Size
		}
	}
	if snap.Stats.Active > 0 {
		ws.GroupedFraction = float64(grouped) / float64(snap.Stats.Active)
	}

	ws.EnergyMean, ws.EnergyP10, ws.EnergyP50, ws.EnergyP90 = ComputeEnergyStats(snap.Energies)

	c.windowStart = step
	c.births, c.deaths, c.kills, c.attacks = 0, 0, 0, 0
	c.foraged = 0
	return ws
}
