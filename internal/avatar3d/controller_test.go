package avatar3d

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestControllerLerpIdempotentAtTarget(t *testing.T) {
	m := newFakeMesh("m", "jawOpen", "mouthWide")
	c := NewController(0.3)
	c.SetRegistry(BuildRegistry(fakeGraph{m}, ""))

	var target Frame
	target.Set(JawOpen, 0.6)
	target.Set(MouthWide, 0.2)
	m.influences[0] = 0.6
	m.influences[1] = 0.2

	require.True(t, c.Apply(target))
	assert.InDelta(t, 0.6, m.influences[0], 1e-7)
	assert.InDelta(t, 0.2, m.influences[1], 1e-7)
}

func TestControllerSmoothsTowardTarget(t *testing.T) {
	m := newFakeMesh("m", "NVIDIA_blendshape_jawOpen", "NVIDIA_blendshape_mouthOpen", "NVIDIA_blendshape_mouthWide", "NVIDIA_blendshape_browInnerUp")
	c := NewController(0.3)
	c.SetRegistry(BuildRegistry(fakeGraph{m}, DefaultVendorPrefix))

	target := Map(AudioSample{Volume: 0.4, Pitch: 0.8, IsSpeaking: true}, DefaultMapperConfig())
	require.True(t, c.Apply(target))

	assert.InDelta(t, 0.3*0.42, m.influences[0], 1e-6)
	assert.InDelta(t, 0.3*0.336, m.influences[1], 1e-6)
	assert.InDelta(t, 0.3*0.3, m.influences[2], 1e-6)
	assert.InDelta(t, 0.3*0.12, m.influences[3], 1e-6)
}

func TestControllerSmoothingBounds(t *testing.T) {
	m := newFakeMesh("m", "jawOpen")
	var target Frame
	target.Set(JawOpen, 1)

	c := NewController(0)
	c.SetRegistry(BuildRegistry(fakeGraph{m}, ""))
	c.Apply(target)
	assert.Equal(t, float32(0), m.influences[0])

	c.SetSmoothing(1)
	c.Apply(target)
	assert.Equal(t, float32(1), m.influences[0])
}

func TestControllerEmptyRegistry(t *testing.T) {
	c := NewController(0.3)
	assert.False(t, c.Apply(Frame{}))

	c.SetRegistry(BuildRegistry(fakeGraph{newFakeMesh("bare")}, ""))
	assert.False(t, c.Apply(Frame{}))
	assert.Equal(t, uint64(0), c.Applied())
}

func TestControllerSkipsUnresolved(t *testing.T) {
	m := newFakeMesh("m", "jawOpen", "somethingElse")
	m.influences = []float32{0, 0}
	c := NewController(1)
	r := BuildRegistry(fakeGraph{m}, "")
	c.SetRegistry(r)
	m.influences[1] = 0.4

	var target Frame
	target.Set(JawOpen, 0.5)
	target.Set(EyesClosed, 1)
	c.Apply(target)

	assert.Equal(t, []float32{0.5, 0.4}, m.influences)
}
