package renderer

import (
	"github.com/go-gl/mathgl/mgl32"
)

type MorphTarget struct {
	Name           string
	PositionDeltas []mgl32.Vec3
}

// Mesh is one morphable primitive of a character model. Influences are
// written by the animation controller and read by Deform.
type Mesh struct {
	ID            string
	Name          string
	BasePositions []mgl32.Vec3
	Indices       []uint32
	MorphTargets  []MorphTarget

	dict       map[string]int
	influences []float32
	deformed   []mgl32.Vec3
}

func NewMesh(id string, base []mgl32.Vec3, targets []MorphTarget) *Mesh {
	m := &Mesh{
		ID:            id,
		Name:          id,
		BasePositions: base,
		MorphTargets:  targets,
		influences:    make([]float32, len(targets)),
		deformed:      make([]mgl32.Vec3, len(base)),
	}
	m.rebuildDictionary()
	return m
}

func (m *Mesh) rebuildDictionary() {
	m.dict = make(map[string]int, len(m.MorphTargets))
	for i, t := range m.MorphTargets {
		if _, dup := m.dict[t.Name]; !dup {
			m.dict[t.Name] = i
		}
	}
}

func (m *Mesh) MeshID() string {
	return m.ID
}

func (m *Mesh) MorphTargetDictionary() map[string]int {
	return m.dict
}

func (m *Mesh) MorphTargetInfluences() []float32 {
	return m.influences
}

// SetInfluences copies default weights, ignoring extras.
func (m *Mesh) SetInfluences(weights []float32) {
	copy(m.influences, weights)
}

// Deform returns base positions displaced by every target weighted by its
// influence. The returned slice is reused across calls.
func (m *Mesh) Deform() []mgl32.Vec3 {
	copy(m.deformed, m.BasePositions)

	for ti, target := range m.MorphTargets {
		weight := m.influences[ti]
		if weight < 0.001 {
			continue
		}
		for vi, delta := range target.PositionDeltas {
			if vi < len(m.deformed) {
				m.deformed[vi] = m.deformed[vi].Add(delta.Mul(weight))
			}
		}
	}

	return m.deformed
}

// Bounds returns the axis-aligned extent of the deformed mesh.
func (m *Mesh) Bounds() (lo, hi mgl32.Vec3) {
	pos := m.Deform()
	if len(pos) == 0 {
		return
	}
	lo, hi = pos[0], pos[0]
	for _, p := range pos[1:] {
		for i := 0; i < 3; i++ {
			lo[i] = min(lo[i], p[i])
			hi[i] = max(hi[i], p[i])
		}
	}
	return lo, hi
}
