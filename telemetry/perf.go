package telemetry

import (
	"log/slog"
	"time"
)

// Phase names for the simulation step.
const (
	PhasePhysics   = "physics"
	PhaseEcology   = "ecology"
	PhaseGrouping  = "grouping"
	PhaseTelemetry = "telemetry"
	PhaseStreaming = "streaming"
)

// PerfSample holds timing data for a single step.
type PerfSample struct {
	StepDuration time.Duration
	Phases       map[string]time.Duration
}

// PerfCollector tracks step timings over a rolling window.
type PerfCollector struct {
	windowSize  int
	samples     []PerfSample
	writeIndex  int
	sampleCount int

	currentPhases map[string]time.Duration
	stepStart     time.Time
	phaseStart    time.Time
	lastPhase     string
}

// NewPerfCollector creates a performance collector averaging over
// windowSize steps.
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 100
	}
	return &PerfCollector{
		windowSize:    windowSize,
		samples:       make([]PerfSample, windowSize),
		currentPhases: make(map[string]time.Duration),
	}
}

// StartStep begins timing a new simulation step.
func (p *PerfCollector) StartStep() {
	p.stepStart = time.Now()
	p.currentPhases = make(map[string]time.Duration)
	p.lastPhase = ""
}

// StartPhase begins timing a specific phase, closing the previous one.
func (p *PerfCollector) StartPhase(phase string) {
	now := time.Now()
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}
	p.phaseStart = now
	p.lastPhase = phase
}

// EndStep finishes timing the current step and records the sample.
func (p *PerfCollector) EndStep() {
	now := time.Now()
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}

	p.samples[p.writeIndex] = PerfSample{
		StepDuration: now.Sub(p.stepStart),
		Phases:       p.currentPhases,
	}
	p.writeIndex = (p.writeIndex + 1) % p.windowSize
	if p.sampleCount < p.windowSize {
		p.sampleCount++
	}
}

// PerfStats holds aggregated performance statistics.
type PerfStats struct {
	AvgStepDuration time.Duration
	MinStepDuration time.Duration
	MaxStepDuration time.Duration

	// Phase breakdown (average durations)
	PhaseAvg map[string]time.Duration

	StepsPerSecond float64
}

// Stats computes aggregated statistics over the current window.
func (p *PerfCollector) Stats() PerfStats {
	if p.sampleCount == 0 {
		return PerfStats{PhaseAvg: make(map[string]time.Duration)}
	}

	var total, min, max time.Duration
	phaseSum := make(map[string]time.Duration)

	for i := 0; i < p.sampleCount; i++ {
		s := p.samples[i]
		total += s.StepDuration
		if i == 0 || s.StepDuration < min {
			min = s.StepDuration
		}
		if s.StepDuration > max {
			max = s.StepDuration
		}
		for phase, dur := range s.Phases {
			phaseSum[phase] += dur
		}
	}

	avg := total / time.Duration(p.sampleCount)
	phaseAvg := make(map[string]time.Duration, len(phaseSum))
	for phase, sum := range phaseSum {
		phaseAvg[phase] = sum / time.Duration(p.sampleCount)
	}

	var stepsPerSec float64
	if avg > 0 {
		stepsPerSec = float64(time.Second) / float64(avg)
	}

	return PerfStats{
		AvgStepDuration: avg,
		MinStepDuration: min,
		MaxStepDuration: max,
		PhaseAvg:        phaseAvg,
		StepsPerSecond:  stepsPerSec,
	}
}

// LogValue renders the aggregate as structured log attributes.
func (s PerfStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("avg_step_us", s.AvgStepDuration.Microseconds()),
		slog.Int64("min_step_us", s.MinStepDuration.Microseconds()),
		slog.Int64("max_step_us", s.MaxStepDuration.Microseconds()),
		slog.Int("steps_per_sec", int(s.StepsPerSecond)),
	)
}

// PerfStatsCSV is the flattened form written to perf.csv.
type PerfStatsCSV struct {
	WindowEndStep uint64 `csv:"window_end"`
	AvgStepUs     int64  `csv:"avg_step_us"`
	MinStepUs     int64  `csv:"min_step_us"`
	MaxStepUs     int64  `csv:"max_step_us"`
	StepsPerSec   int    `csv:"steps_per_sec"`
	PhysicsUs     int64  `csv:"physics_us"`
	EcologyUs     int64  `csv:"ecology_us"`
	GroupingUs    int64  `csv:"grouping_us"`
}

// ToCSV flattens the stats for CSV output.
func (s PerfStats) ToCSV(windowEnd uint64) PerfStatsCSV {
	return PerfStatsCSV{
		WindowEndStep: windowEnd,
		AvgStepUs:     s.AvgStepDuration.Microseconds(),
		MinStepUs:     s.MinStepDuration.Microseconds(),
		MaxStepUs:     s.MaxStepDuration.Microseconds(),
		StepsPerSec:   int(s.StepsPerSecond),
		PhysicsUs:     s.PhaseAvg[PhasePhysics].Microseconds(),
		EcologyUs:     s.PhaseAvg[PhaseEcology].Microseconds(),
		GroupingUs:    s.PhaseAvg[PhaseGrouping].Microseconds(),
	}
}
