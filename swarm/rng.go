package swarm

// Each agent owns a private xorshift32 stream, advanced only when noise is
// applied to that agent. Because no stream is ever shared, trajectories do
// not depend on how agents are scheduled across workers.

// xorshift32 advances a 32-bit xorshift state. A zero state is a fixed point
// and must be avoided at seeding time.
func xorshift32(s uint32) uint32 {
	s ^= s << 13
	s ^= s >> 17
	s ^= s << 5
	return s
}

// randUniform maps a state to [0, 1).
func randUniform(s uint32) float32 {
	return float32(s) / 4294967296.0
}
