package ecology

import (
	"fmt"
	"math/rand"

	"github.com/mlange-42/ark/ecs"

	"github.com/murmursim/murmur/config"
	"github.com/murmursim/murmur/steering"
	"github.com/murmursim/murmur/swarm"
)

// Events counts what happened since the last TakeEvents call. The telemetry
// collector drains it once per window.
type Events struct {
	Births           int
	Deaths           int
	Kills            int
	AttacksAttempted int
	EnergyForaged    float32
}

// World runs the ecological layer: it owns the ECS entities, maps them onto
// swarm store slots, and mutates energy, goals, and the active mask between
// physics steps.
type World struct {
	cfg *config.Config
	sim *swarm.Simulation

	world  *ecs.World
	mapper *ecs.Map4[Slot, Caste, Energy, Hunter]
	filter *ecs.Filter4[Slot, Caste, Energy, Hunter]

	energyMap *ecs.Map1[Energy]
	hunterMap *ecs.Map1[Hunter]

	// bySlot maps store slots to entities; occupied marks which slots hold
	// a live entity. Slots of absorbed or dead agents go back on free.
	bySlot   []ecs.Entity
	occupied []bool
	free     []int

	// predator mirrors the Caste flag per slot for the group-detection
	// exclusion predicate.
	predator []bool

	table     *swarm.ParamTable
	goals     *steering.GoalField
	resources *ResourceField
	rng       *rand.Rand

	events Events
}

// NewWorld spawns the initial population described by the config into the
// simulation's store slots. The param table and goal field must be the ones
// the simulation was built with.
func NewWorld(cfg *config.Config, sim *swarm.Simulation, table *swarm.ParamTable, goals *steering.GoalField) (*World, error) {
	n := sim.Store().N

	world := ecs.NewWorld()
	w := &World{
		cfg:       cfg,
		sim:       sim,
		world:     world,
		mapper:    ecs.NewMap4[Slot, Caste, Energy, Hunter](world),
		filter:    ecs.NewFilter4[Slot, Caste, Energy, Hunter](world),
		energyMap: ecs.NewMap1[Energy](world),
		hunterMap: ecs.NewMap1[Hunter](world),
		bySlot:    make([]ecs.Entity, n),
		occupied:  make([]bool, n),
		predator:  make([]bool, n),
		table:     table,
		goals:     goals,
		rng:       rand.New(rand.NewSource(cfg.Simulation.Seed)),
	}

	half := cfg.Physics.BoxSize * 0.5
	w.resources = NewResourceField(
		cfg.Resource.Patches,
		float32(cfg.Resource.Amount),
		float32(cfg.Resource.RegenRate),
		half*0.9,
		w.rng,
	)

	if err := w.spawnInitialPopulation(); err != nil {
		return nil, err
	}
	// The initial population is not a birth event.
	w.events = Events{}
	sim.SetGroupExclusion(w.IsPredator)
	return w, nil
}

// Resources exposes the forage field for serialization.
func (w *World) Resources() *ResourceField { return w.resources }

// IsPredator reports whether the agent in the given slot is a predator.
// Predators never join groups.
func (w *World) IsPredator(slot int) bool { return w.predator[slot] }

// Alive returns the number of occupied slots.
func (w *World) Alive() int {
	n := 0
	for _, occ := range w.occupied {
		if occ {
			n++
		}
	}
	return n
}

// PredatorCount returns the number of live predators.
func (w *World) PredatorCount() int {
	n := 0
	for slot, occ := range w.occupied {
		if occ && w.predator[slot] {
			n++
		}
	}
	return n
}

// FillCastes writes per-slot caste ids into buf, 255 for empty slots.
func (w *World) FillCastes(buf []uint8) {
	for i := range buf {
		buf[i] = 255
	}
	query := w.filter.Query()
	for query.Next() {
		sl, cs, _, _ := query.Get()
		buf[sl.Index] = cs.ID
	}
}

// FillEnergies writes per-slot energy into buf, zero for empty slots.
func (w *World) FillEnergies(buf []float32) {
	for i := range buf {
		buf[i] = 0
	}
	query := w.filter.Query()
	for query.Next() {
		sl, _, en, _ := query.Get()
		buf[sl.Index] = en.Value
	}
}

// EnergyValues collects the energies of live agents for statistics.
func (w *World) EnergyValues() []float64 {
	out := make([]float64, 0, len(w.occupied))
	query := w.filter.Query()
	for query.Next() {
		_, _, en, _ := query.Get()
		if en.Alive {
			out = append(out, float64(en.Value))
		}
	}
	return out
}

// TakeEvents returns the event counters accumulated since the last call and
// resets them.
func (w *World) TakeEvents() Events {
	ev := w.events
	w.events = Events{}
	return ev
}

// spawnInitialPopulation fills store slots caste by caste. The store's
// random placement is kept; only the behavioral parameters are overlaid.
// Without per-caste counts every slot gets the first caste, giving a flat
// homogeneous population.
func (w *World) spawnInitialPopulation() error {
	if len(w.cfg.Population.Counts) == 0 {
		for slot := 0; slot < w.sim.Store().N; slot++ {
			w.spawnInto(slot, 0, float32(w.cfg.Energy.Initial))
		}
		return nil
	}
	slot := 0
	for id, caste := range w.cfg.Castes {
		count := w.cfg.Population.Counts[caste.Name]
		for i := 0; i < count; i++ {
			if slot >= w.sim.Store().N {
				return fmt.Errorf("ecology: caste counts exceed %d store slots", w.sim.Store().N)
			}
			w.spawnInto(slot, uint8(id), float32(w.cfg.Energy.Initial))
			slot++
		}
	}
	// Leftover slots stay empty and join the free list.
	for ; slot < w.sim.Store().N; slot++ {
		w.sim.Store().Active[slot] = false
		w.free = append(w.free, slot)
	}
	return nil
}

// spawnInto creates an entity for a store slot and installs the caste's
// physics overrides.
func (w *World) spawnInto(slot int, casteID uint8, energy float32) ecs.Entity {
	caste := &w.cfg.Castes[casteID]

	w.table.Beta[slot] = float32(caste.Beta)
	w.table.Eta[slot] = float32(caste.Eta)
	w.table.V0[slot] = float32(caste.V0)
	w.table.Mass[slot] = float32(caste.Mass)
	w.predator[slot] = caste.Predator

	sl := Slot{Index: slot}
	cs := Caste{ID: casteID, Predator: caste.Predator, GoalStrength: float32(caste.GoalStrength)}
	en := Energy{Value: energy, Max: float32(w.cfg.Energy.Max), Alive: true,
		ReproCooldown: float32(w.cfg.Reproduction.Cooldown)}
	hu := Hunter{PreySlot: -1}

	entity := w.mapper.NewEntity(&sl, &cs, &en, &hu)
	w.bySlot[slot] = entity
	w.occupied[slot] = true
	w.sim.Store().Active[slot] = true
	w.events.Births++
	return entity
}

// Update advances the ecological layer by one physics step. It runs between
// simulation steps, single-threaded, so it may freely mutate the store.
func (w *World) Update(dt float32) {
	w.updateMetabolism(dt)
	w.updateForaging(dt)
	w.updateWander()
	w.updatePredation(dt)
	w.updateReproduction(dt)
	w.cleanupDead()
	w.resources.Regen(dt)
}

// updateMetabolism drains energy by the base cost plus a speed-dependent
// term. Boundary handling never deactivates agents, so an occupied slot
// that is inactive was turned off externally; reconcile it as a death.
func (w *World) updateMetabolism(dt float32) {
	st := w.sim.Store()
	base := float32(w.cfg.Energy.BaseCost)
	velFactor := float32(w.cfg.Energy.VelocityFactor)

	query := w.filter.Query()
	for query.Next() {
		sl, _, en, hu := query.Get()
		if !en.Alive {
			continue
		}
		if !st.Active[sl.Index] {
			// Deactivated outside the ecology; reap on the cleanup pass.
			en.Alive = false
			continue
		}
		speed := st.Vel[sl.Index].Norm()
		en.Value -= (base + velFactor*speed) * dt
		if en.Value <= 0 {
			en.Value = 0
			en.Alive = false
		}
		if en.ReproCooldown > 0 {
			en.ReproCooldown -= dt
		}
		if hu.AttackCooldown > 0 {
			hu.AttackCooldown -= dt
		}
	}
}

// updateForaging points hungry non-predators at the nearest stocked patch
// and feeds the ones already inside the feed radius.
func (w *World) updateForaging(dt float32) {
	st := w.sim.Store()
	hunger := float32(w.cfg.Resource.HungerThreshold)
	feedR2 := float32(w.cfg.Resource.FeedRadius * w.cfg.Resource.FeedRadius)
	feedRate := float32(w.cfg.Resource.FeedRate)

	query := w.filter.Query()
	for query.Next() {
		sl, cs, en, _ := query.Get()
		if !en.Alive || cs.Predator {
			continue
		}
		if en.Value >= hunger {
			// Not hungry: drop any forage goal so wander logic can take over.
			if cs.GoalStrength == 0 {
				w.goals.ClearGoal(sl.Index)
			}
			continue
		}

		pos := st.Pos[sl.Index]
		patch, d2 := w.resources.Nearest(pos)
		if patch < 0 {
			w.goals.ClearGoal(sl.Index)
			continue
		}
		w.goals.SetGoal(sl.Index, w.resources.Patches()[patch].Pos, 1.5)

		if d2 <= feedR2 {
			room := en.Max - en.Value
			want := feedRate * dt
			if want > room {
				want = room
			}
			got := w.resources.Consume(patch, want)
			en.Value += got
			w.events.EnergyForaged += got
		}
	}
}

// updateWander gives well-fed leaders a roaming goal and refreshes it on
// arrival.
func (w *World) updateWander() {
	st := w.sim.Store()
	hunger := float32(w.cfg.Resource.HungerThreshold)
	half := w.cfg.Physics.BoxSize * 0.4

	query := w.filter.Query()
	for query.Next() {
		sl, cs, en, _ := query.Get()
		if !en.Alive || cs.GoalStrength == 0 || en.Value < hunger {
			continue
		}
		goal, has := w.goals.Goal(sl.Index)
		if has && goal.Sub(st.Pos[sl.Index]).Norm() > 2*w.goals.ArriveRadius {
			continue
		}
		next := swarm.Vec3{
			X: (2*w.rng.Float32() - 1) * half,
			Y: (2*w.rng.Float32() - 1) * half,
			Z: (2*w.rng.Float32() - 1) * half,
		}
		w.goals.SetGoal(sl.Index, next, cs.GoalStrength)
	}
}

// updatePredation drives predators at the nearest prey and resolves attacks.
func (w *World) updatePredation(dt float32) {
	st := w.sim.Store()
	huntR2 := float32(w.cfg.Predation.HuntRange * w.cfg.Predation.HuntRange)
	attackR2 := float32(w.cfg.Predation.AttackRange * w.cfg.Predation.AttackRange)

	query := w.filter.Query()
	for query.Next() {
		sl, cs, en, hu := query.Get()
		if !en.Alive || !cs.Predator {
			continue
		}
		pos := st.Pos[sl.Index]

		// Revalidate the locked target; it may have died or fled.
		if hu.PreySlot >= 0 {
			if !w.occupied[hu.PreySlot] || w.predator[hu.PreySlot] ||
				st.Pos[hu.PreySlot].Sub(pos).NormSq() > huntR2 {
				hu.PreySlot = -1
			}
		}
		if hu.PreySlot < 0 {
			hu.PreySlot = w.nearestPrey(pos, huntR2)
		}
		if hu.PreySlot < 0 {
			w.goals.ClearGoal(sl.Index)
			continue
		}

		preyPos := st.Pos[hu.PreySlot]
		w.goals.SetGoal(sl.Index, preyPos, 2.0)

		if hu.AttackCooldown > 0 || preyPos.Sub(pos).NormSq() > attackR2 {
			continue
		}
		hu.AttackCooldown = float32(w.cfg.Predation.AttackCooldown)
		w.events.AttacksAttempted++

		// Weak prey is easier to bring down: the base rate scales up
		// with how far below full energy the target is.
		preyEnergy := w.energyMap.Get(w.bySlot[hu.PreySlot])
		weakness := float64(1 - preyEnergy.Value/preyEnergy.Max)
		if w.rng.Float64() < w.cfg.Predation.SuccessRate*(1+weakness) {
			gain := preyEnergy.Value * float32(w.cfg.Predation.TransferRatio)
			if en.Value+gain > en.Max {
				gain = en.Max - en.Value
			}
			en.Value += gain
			preyEnergy.Value = 0
			preyEnergy.Alive = false
			w.events.Kills++
			hu.PreySlot = -1
		} else {
			en.Value -= float32(w.cfg.Predation.FailPenalty)
			if en.Value <= 0 {
				en.Value = 0
				en.Alive = false
			}
		}
	}
}

// nearestPrey scans for the closest live non-predator within range. Predator
// counts are small, so a linear scan beats a grid walk at hunt ranges that
// span many cells.
func (w *World) nearestPrey(pos swarm.Vec3, maxD2 float32) int {
	st := w.sim.Store()
	best := -1
	bestD2 := maxD2
	for slot := 0; slot < st.N; slot++ {
		if !w.occupied[slot] || w.predator[slot] || !st.Active[slot] {
			continue
		}
		d2 := st.Pos[slot].Sub(pos).NormSq()
		if d2 <= bestD2 {
			best = slot
			bestD2 = d2
		}
	}
	return best
}

// updateReproduction splits energy-rich agents into a free slot next to the
// parent.
func (w *World) updateReproduction(dt float32) {
	st := w.sim.Store()
	threshold := float32(w.cfg.Reproduction.Threshold)
	offset := float32(w.cfg.Reproduction.SpawnOffset)
	ratio := float32(w.cfg.Reproduction.OffspringRatio)

	type birth struct {
		parentSlot int
		casteID    uint8
		energy     float32
	}
	var births []birth

	query := w.filter.Query()
	for query.Next() {
		sl, cs, en, _ := query.Get()
		if !en.Alive || en.Value < threshold || en.ReproCooldown > 0 {
			continue
		}
		if len(w.free) == len(births) {
			break // no slots left this step
		}
		give := en.Value * ratio
		en.Value -= give
		en.ReproCooldown = float32(w.cfg.Reproduction.Cooldown)
		births = append(births, birth{parentSlot: sl.Index, casteID: cs.ID, energy: give})
	}

	for _, b := range births {
		slot := w.free[len(w.free)-1]
		w.free = w.free[:len(w.free)-1]

		dir := randomUnit(w.rng)
		st.Pos[slot] = st.Pos[b.parentSlot].Add(dir.Scale(offset))
		st.Vel[slot] = st.Vel[b.parentSlot]
		w.spawnInto(slot, b.casteID, b.energy)
	}
}

// cleanupDead removes dead entities and frees their slots. Collection and
// removal are separate passes because removal invalidates the query.
func (w *World) cleanupDead() {
	st := w.sim.Store()

	type deadInfo struct {
		entity ecs.Entity
		slot   int
	}
	var toRemove []deadInfo

	query := w.filter.Query()
	for query.Next() {
		sl, _, en, _ := query.Get()
		if !en.Alive {
			toRemove = append(toRemove, deadInfo{entity: query.Entity(), slot: sl.Index})
		}
	}

	for _, dead := range toRemove {
		w.mapper.Remove(dead.entity)
		st.Active[dead.slot] = false
		st.Vel[dead.slot] = swarm.Vec3{}
		w.occupied[dead.slot] = false
		w.predator[dead.slot] = false
		w.goals.ClearGoal(dead.slot)
		w.free = append(w.free, dead.slot)
		w.events.Deaths++
	}
}

// randomUnit draws a uniform direction on the unit sphere.
func randomUnit(rng *rand.Rand) swarm.Vec3 {
	for {
		v := swarm.Vec3{
			X: 2*rng.Float32() - 1,
			Y: 2*rng.Float32() - 1,
			Z: 2*rng.Float32() - 1,
		}
		if n2 := v.NormSq(); n2 > 1e-4 && n2 <= 1 {
			return v.Normalized()
		}
	}
}
