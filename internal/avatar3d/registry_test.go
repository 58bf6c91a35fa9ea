package avatar3d

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRegistrySkipsMeshesWithoutTargets(t *testing.T) {
	head := newFakeMesh("head", "jawOpen", "mouthOpen")
	body := newFakeMesh("body")
	head.influences[0] = 0.7
	head.influences[1] = 0.2

	r := BuildRegistry(fakeGraph{head, body}, DefaultVendorPrefix)

	require.Equal(t, 1, r.Len())
	assert.Equal(t, "head", r.Entries()[0].MeshID)
	assert.Equal(t, []float32{0, 0}, head.influences)
}

func TestBuildRegistryNilGraph(t *testing.T) {
	r := BuildRegistry(nil, DefaultVendorPrefix)
	assert.True(t, r.Empty())
}

func TestRegistryNameResolution(t *testing.T) {
	tests := []struct {
		name    string
		targets []string
		want    int
	}{
		{"prefixed only", []string{"mouthSmile", "NVIDIA_blendshape_jawOpen"}, 1},
		{"bare only", []string{"jawOpen"}, 0},
		{"prefixed wins over bare", []string{"jawOpen", "NVIDIA_blendshape_jawOpen"}, 1},
		{"neither", []string{"JawOpen", "jaw_open"}, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newFakeMesh("m", tt.targets...)
			r := BuildRegistry(fakeGraph{m}, DefaultVendorPrefix)
			assert.Equal(t, tt.want, r.Lookup("m", JawOpen))
		})
	}
}

func TestRegistryIgnoresOutOfRangeIndex(t *testing.T) {
	m := newFakeMesh("m", "jawOpen")
	m.dict["mouthOpen"] = 5

	r := BuildRegistry(fakeGraph{m}, "")

	assert.Equal(t, 0, r.Lookup("m", JawOpen))
	assert.Equal(t, -1, r.Lookup("m", MouthOpen))
}

func TestRegistrySnapshotCopies(t *testing.T) {
	m := newFakeMesh("m", "jawOpen")
	r := BuildRegistry(fakeGraph{m}, "")

	snap := r.Snapshot()
	m.influences[0] = 0.5

	assert.Equal(t, []float32{0}, snap["m"])
}

func TestResolveRegistryKeepsInfluences(t *testing.T) {
	m := newFakeMesh("m", "jawOpen", "eyesClosed")
	m.influences[1] = 0.4

	r := ResolveRegistry(fakeGraph{m}, "")
	assert.Equal(t, 1, r.Lookup("m", EyesClosed))
	assert.Equal(t, float32(0.4), m.influences[1])

	r.Reset()
	assert.Equal(t, []float32{0, 0}, m.influences)
}
