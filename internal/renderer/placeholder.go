package renderer

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// NewPlaceholderHead builds a sphere whose morph targets carry the canonical
// blendshape names, for running without a character model.
func NewPlaceholderHead(names []string) *Model {
	base := spherePositions(16, 8, 0.15)

	targets := make([]MorphTarget, 0, len(names))
	for i, name := range names {
		deltas := make([]mgl32.Vec3, len(base))
		// Each target pushes a different band of the sphere outward.
		for vi, p := range base {
			band := int(float32(len(names)) * (p.Y() + 0.15) / 0.3)
			if band == i {
				deltas[vi] = p.Normalize().Mul(0.02)
			}
		}
		targets = append(targets, MorphTarget{Name: name, PositionDeltas: deltas})
	}

	model := NewModel("placeholder")
	model.AddMesh(NewMesh("placeholder/head", base, targets))
	model.AddMesh(NewMesh("placeholder/body", spherePositions(8, 4, 0.3), nil))
	return model
}

func spherePositions(segments, rings int, radius float32) []mgl32.Vec3 {
	var out []mgl32.Vec3
	for y := 0; y <= rings; y++ {
		for x := 0; x <= segments; x++ {
			xSeg := float64(x) / float64(segments)
			ySeg := float64(y) / float64(rings)

			xPos := float32(math.Cos(2*math.Pi*xSeg) * math.Sin(math.Pi*ySeg))
			yPos := float32(math.Cos(math.Pi * ySeg))
			zPos := float32(math.Sin(2*math.Pi*xSeg) * math.Sin(math.Pi*ySeg))

			out = append(out, mgl32.Vec3{xPos * radius, yPos * radius, zPos * radius})
		}
	}
	return out
}
