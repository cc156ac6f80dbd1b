package telemetry

import (
	"math"
	"testing"

	"github.com/murmursim/murmur/swarm"
)

func TestCollectorWindowDue(t *testing.T) {
	c := NewCollector(100, 0.02)

	if c.WindowDue(0) {
		t.Error("step 0 must not emit a window")
	}
	if c.WindowDue(99) {
		t.Error("step 99 must not emit a window")
	}
	if !c.WindowDue(100) {
		t.Error("step 100 must emit a window")
	}
	if !c.WindowDue(200) {
		t.Error("step 200 must emit a window")
	}
}

func TestCollectorEmitWindow(t *testing.T) {
	c := NewCollector(100, 0.02)
	c.RecordEvents(3, 1, 2, 4, 12.5)
	c.RecordEvents(1, 0, 0, 1, 0)

	snap := Snapshot{
		Stats: swarm.Stats{
			Active:       50,
			MeanSpeed:    1.2,
			Polarization: 0.8,
		},
		Groups: []swarm.Group{
			{ID: 0, Size: 30},
			{ID: 1, Size: 10},
		},
		Energies:      []float64{40, 60},
		Predators:     2,
		TotalResource: 500,
	}
	ws := c.EmitWindow(100, snap)

	if ws.Births != 4 || ws.Deaths != 1 || ws.Kills != 2 || ws.Attacks != 5 {
		t.Errorf("event totals wrong: %+v", ws)
	}
	if math.Abs(ws.HitRate-0.4) > 1e-9 {
		t.Errorf("hit rate = %v, want 0.4", ws.HitRate)
	}
	if math.Abs(ws.SimTimeSec-2.0) > 1e-9 {
		t.Errorf("sim time = %v, want 2.0", ws.SimTimeSec)
	}
	if ws.NumGroups != 2 || ws.LargestGroup != 30 {
		t.Errorf("group summary wrong: n=%d largest=%d", ws.NumGroups, ws.LargestGroup)
	}
	if math.Abs(ws.GroupedFraction-0.8) > 1e-9 {
		t.Errorf("grouped fraction = %v, want 0.8", ws.GroupedFraction)
	}
	if ws.EnergyMean != 50 {
		t.Errorf("energy mean = %v, want 50", ws.EnergyMean)
	}

	// Counters reset for the next window.
	ws2 := c.EmitWindow(200, Snapshot{})
	if ws2.Births != 0 || ws2.Kills != 0 || ws2.EnergyForaged != 0 {
		t.Errorf("counters not reset: %+v", ws2)
	}
	if ws2.WindowStartStep != 100 {
		t.Errorf("window start = %d, want 100", ws2.WindowStartStep)
	}
}

func TestPerfCollectorAggregates(t *testing.T) {
	p := NewPerfCollector(10)

	for i := 0; i < 3; i++ {
		p.StartStep()
		p.StartPhase(PhasePhysics)
		p.StartPhase(PhaseEcology)
		p.EndStep()
	}

	s := p.Stats()
	if s.AvgStepDuration <= 0 {
		t.Error("average step duration should be positive")
	}
	if s.MaxStepDuration < s.MinStepDuration {
		t.Error("max below min")
	}
	if _, ok := s.PhaseAvg[PhasePhysics]; !ok {
		t.Error("physics phase missing from breakdown")
	}
}
