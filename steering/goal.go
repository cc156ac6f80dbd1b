// Package steering supplies external force contributors: goal seeking and
// obstacle avoidance. Contributors are configured between steps and read
// concurrently during the force pass, so mutation mid-step is not allowed.
package steering

import "github.com/murmursim/murmur/swarm"

// GoalField pulls selected agents toward per-agent target points with a
// constant-magnitude force. Agents without a goal are unaffected.
type GoalField struct {
	goals    []swarm.Vec3
	strength []float32
	has      []bool

	// ArriveRadius fades the pull linearly inside this distance so agents
	// settle on the goal instead of orbiting it.
	ArriveRadius float32
}

// NewGoalField builds an empty field for n agents.
func NewGoalField(n int) *GoalField {
	return &GoalField{
		goals:    make([]swarm.Vec3, n),
		strength: make([]float32, n),
		has:      make([]bool, n),

		ArriveRadius: 1.0,
	}
}

// SetGoal points agent i at pos with the given pull strength.
func (g *GoalField) SetGoal(i int, pos swarm.Vec3, strength float32) {
	g.goals[i] = pos
	g.strength[i] = strength
	g.has[i] = true
}

// ClearGoal removes agent i's goal.
func (g *GoalField) ClearGoal(i int) { g.has[i] = false }

// Goal returns agent i's current target, if any.
func (g *GoalField) Goal(i int) (swarm.Vec3, bool) {
	return g.goals[i], g.has[i]
}

// Force implements swarm.ForceContributor.
func (g *GoalField) Force(i int, pos, vel swarm.Vec3) swarm.Vec3 {
	if !g.has[i] {
		return swarm.Vec3{}
	}
	to := g.goals[i].Sub(pos)
	dist := to.Norm()
	if dist < 1e-6 {
		return swarm.Vec3{}
	}
	k := g.strength[i]
	if g.ArriveRadius > 0 && dist < g.ArriveRadius {
		k *= dist / g.ArriveRadius
	}
	return to.Scale(k / dist)
}
