// Package ecology layers population dynamics over the flocking core: castes,
// energy metabolism, foraging, predation, and reproduction. Agents live as
// ECS entities whose kinematic state is held in the swarm store; the Slot
// component ties the two together.
package ecology

// Slot links an entity to its agent index in the swarm store.
type Slot struct {
	Index int
}

// Caste identifies the behavioral template an agent was spawned from.
type Caste struct {
	ID           uint8
	Predator     bool
	GoalStrength float32 // leaders wander toward goals; zero disables
}

// Energy holds metabolic state. Alive flips false at zero energy; the
// entity is reaped on the next cleanup pass.
type Energy struct {
	Value float32
	Max   float32
	Alive bool

	// ReproCooldown counts down in seconds; reproduction requires zero.
	ReproCooldown float32
}

// Hunter holds predator hunting state. PreySlot is the store index of the
// locked target, or -1 when idle.
type Hunter struct {
	PreySlot       int
	AttackCooldown float32
}
