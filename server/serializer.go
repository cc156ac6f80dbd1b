// Package server streams simulation frames to websocket clients and feeds
// their control messages back to the run loop.
package server

import (
	"encoding/binary"
	"math"

	"github.com/murmursim/murmur/ecology"
	"github.com/murmursim/murmur/steering"
	"github.com/murmursim/murmur/swarm"
)

// Frame layout, little-endian throughout:
//
//	header (20 bytes): u32 agent slots, u32 step, u8 has_resources,
//	                   u8 has_obstacles, 10 reserved
//	positions:  3*N f32
//	velocities: 3*N f32
//	castes:     N u8 (255 = empty slot), padded to 4-byte alignment
//	energies:   N f32 (0 for empty slots)
//	labels:     N i32 group ids (-1 = ungrouped or empty)
//	stats (64 bytes): 7 f32 (mean speed, std speed, polarization,
//	                  radius of gyration, mean energy, total resource,
//	                  active count), u32 group count, 32 reserved
//	resources (optional): u32 count, then per patch x, y, z, amount as f32
//	obstacles (optional): u32 count, then per sphere x, y, z, radius as f32
//
// Every slot is serialized whether occupied or not, so the frame size is
// constant for a run and clients can index agents by slot.

const headerSize = 20
const statsBlockSize = 64

// Frame gathers everything one serialized frame needs. Slices are read
// during Serialize and never retained.
type Frame struct {
	Step      uint64
	Store     *swarm.Store
	Castes    []uint8 // per-slot caste id, 255 for empty
	Energies  []float32
	Labels    []int32
	Stats     swarm.Stats
	NumGroups int

	Resources *ecology.ResourceField // optional
	Obstacles []steering.Sphere      // optional
}

// Serializer encodes frames into a reused buffer. Not safe for concurrent
// use; the run loop owns it.
type Serializer struct {
	buf []byte
}

// Serialize encodes the frame. The returned slice is valid until the next
// call.
func (s *Serializer) Serialize(f Frame) []byte {
	n := f.Store.N
	size := headerSize + n*(4*3*2+1+4+4) + pad4(n) + statsBlockSize
	if f.Resources != nil {
		size += 4 + len(f.Resources.Patches())*16
	}
	if f.Obstacles != nil {
		size += 4 + len(f.Obstacles)*16
	}
	if cap(s.buf) < size {
		s.buf = make([]byte, 0, size)
	}
	b := s.buf[:0]

	// Header
	b = binary.LittleEndian.AppendUint32(b, uint32(n))
	b = binary.LittleEndian.AppendUint32(b, uint32(f.Step))
	b = append(b, boolByte(f.Resources != nil), boolByte(f.Obstacles != nil))
	b = append(b, make([]byte, 10)...)

	for i := 0; i < n; i++ {
		b = appendVec(b, f.Store.Pos[i])
	}
	for i := 0; i < n; i++ {
		b = appendVec(b, f.Store.Vel[i])
	}

	b = append(b, f.Castes...)
	b = append(b, make([]byte, pad4(n))...)

	for i := 0; i < n; i++ {
		b = appendF32(b, f.Energies[i])
	}
	for i := 0; i < n; i++ {
		b = binary.LittleEndian.AppendUint32(b, uint32(f.Labels[i]))
	}

	// Stats block
	statsStart := len(b)
	b = appendF32(b, f.Stats.MeanSpeed)
	b = appendF32(b, f.Stats.StdSpeed)
	b = appendF32(b, f.Stats.Polarization)
	b = appendF32(b, f.Stats.RadiusOfGyration)
	var energyMean, totalRes float32
	if f.Stats.Active > 0 {
		var sum float32
		for i := 0; i < n; i++ {
			sum += f.Energies[i]
		}
		energyMean = sum / float32(f.Stats.Active)
	}
	if f.Resources != nil {
		totalRes = f.Resources.Total()
	}
	b = appendF32(b, energyMean)
	b = appendF32(b, totalRes)
	b = appendF32(b, float32(f.Stats.Active))
	b = binary.LittleEndian.AppendUint32(b, uint32(f.NumGroups))
	b = append(b, make([]byte, statsBlockSize-(len(b)-statsStart))...)

	if f.Resources != nil {
		patches := f.Resources.Patches()
		b = binary.LittleEndian.AppendUint32(b, uint32(len(patches)))
		for i := range patches {
			b = appendVec(b, patches[i].Pos)
			b = appendF32(b, patches[i].Amount)
		}
	}
	if f.Obstacles != nil {
		b = binary.LittleEndian.AppendUint32(b, uint32(len(f.Obstacles)))
		for _, sp := range f.Obstacles {
			b = appendVec(b, sp.Center)
			b = appendF32(b, sp.Radius)
		}
	}

	s.buf = b
	return b
}

func pad4(n int) int {
	return (4 - n%4) % 4
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

func appendF32(b []byte, v float32) []byte {
	return binary.LittleEndian.AppendUint32(b, math.Float32bits(v))
}

func appendVec(b []byte, v swarm.Vec3) []byte {
	b = appendF32(b, v.X)
	b = appendF32(b, v.Y)
	return appendF32(b, v.Z)
}
