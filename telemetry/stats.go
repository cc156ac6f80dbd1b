package telemetry

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// WindowStats holds aggregated statistics for a time window.
type WindowStats struct {
	WindowStartStep uint64  `csv:"-"`
	WindowEndStep   uint64  `csv:"window_end"`
	SimTimeSec      float64 `csv:"sim_time"`

	// Population at window end
	Population int `csv:"population"`
	Predators  int `csv:"predators"`

	// Events during window
	Births  int `csv:"births"`
	Deaths  int `csv:"deaths"`
	Kills   int `csv:"kills"`
	Attacks int `csv:"attacks"`

	HitRate       float64 `csv:"hit_rate"`
	EnergyForaged float64 `csv:"energy_foraged"`

	// Flock order parameters (sampled at window end)
	MeanSpeed        float64 `csv:"mean_speed"`
	StdSpeed         float64 `csv:"std_speed"`
	Polarization     float64 `csv:"polarization"`
	RadiusOfGyration float64 `csv:"radius_gyration"`

	// Group structure
	NumGroups       int     `csv:"n_groups"`
	LargestGroup    int     `csv:"largest_group"`
	GroupedFraction float64 `csv:"grouped_fraction"`

	// Energy distribution (sampled at window end)
	EnergyMean float64 `csv:"energy_mean"`
	EnergyP10  float64 `csv:"energy_p10"`
	EnergyP50  float64 `csv:"energy_p50"`
	EnergyP90  float64 `csv:"energy_p90"`

	// Resource pool
	TotalResource float64 `csv:"total_resource"`
}

// ComputeEnergyStats calculates mean and empirical percentiles from energy
// values. Returns zeros for an empty slice.
func ComputeEnergyStats(values []float64) (mean, p10, p50, p90 float64) {
	if len(values) == 0 {
		return 0, 0, 0, 0
	}

	mean = stat.Mean(values, nil)

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	p10 = stat.Quantile(0.10, stat.Empirical, sorted, nil)
	p50 = stat.Quantile(0.50, stat.Empirical, sorted, nil)
	p90 = stat.Quantile(0.90, stat.Empirical, sorted, nil)
	return mean, p10, p50, p90
}

// LogValue renders the window as structured log attributes.
func (ws WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("step", ws.WindowEndStep),
		slog.Int("population", ws.Population),
		slog.Int("births", ws.Births),
		slog.Int("deaths", ws.Deaths),
		slog.Int("kills", ws.Kills),
		slog.Float64("mean_speed", ws.MeanSpeed),
		slog.Float64("polarization", ws.Polarization),
		slog.Int("n_groups", ws.NumGroups),
		slog.Float64("energy_mean", ws.EnergyMean),
	)
}
