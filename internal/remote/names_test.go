package remote

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/normanking/audioface/internal/avatar3d"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNameTable(t *testing.T) {
	table, err := ParseNameTable([]byte(`
names:
  JawOpen: jawOpen
  EyeBlinkLeft: eyesClosed
`))
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())

	resolve := table.Resolver(avatar3d.DefaultVendorPrefix)

	b, ok := resolve("EyeBlinkLeft")
	assert.True(t, ok)
	assert.Equal(t, avatar3d.EyesClosed, b)

	b, ok = resolve("NVIDIA_blendshape_browInnerUp")
	assert.True(t, ok)
	assert.Equal(t, avatar3d.BrowInnerUp, b)

	_, ok = resolve("TongueOut")
	assert.False(t, ok)
}

func TestParseNameTableRejectsUnknownTarget(t *testing.T) {
	_, err := ParseNameTable([]byte("names:\n  Foo: tongueOut\n"))
	assert.Error(t, err)

	_, err = ParseNameTable([]byte("names: [not, a, map]"))
	assert.Error(t, err)
}

func TestLoadNameTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "names.yaml")
	require.NoError(t, os.WriteFile(path, []byte("names:\n  MouthFunnel: mouthPucker\n"), 0o644))

	table, err := LoadNameTable(path)
	require.NoError(t, err)
	assert.Equal(t, 1, table.Len())

	_, err = LoadNameTable(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestNilNameTableResolver(t *testing.T) {
	var table *NameTable
	b, ok := table.Resolver("")("mouthWide")
	assert.True(t, ok)
	assert.Equal(t, avatar3d.MouthWide, b)
}

func TestFrames(t *testing.T) {
	resp := &Response{Blendshapes: []map[string]float64{
		{"jawOpen": 0.3, "unknown": 1},
		{"NVIDIA_blendshape_jawOpen": 0.6},
	}}

	frames := Frames(resp, (*NameTable)(nil).Resolver(avatar3d.DefaultVendorPrefix))
	require.Len(t, frames, 2)
	assert.InDelta(t, 0.3, frames[0].Get(avatar3d.JawOpen), 1e-6)
	assert.InDelta(t, 0.6, frames[1].Get(avatar3d.JawOpen), 1e-6)
}

func TestParsePreset(t *testing.T) {
	p, err := ParsePreset(" james ")
	require.NoError(t, err)
	assert.Equal(t, PresetJames, p)
	assert.Equal(t, "52f51a79-324c-4dbe-90ad-798ab665ad64", p.ModelID())

	_, err = ParsePreset("ALICE")
	assert.ErrorIs(t, err, ErrUnknownPreset)

	assert.Equal(t, []ModelPreset{PresetClaire, PresetJames, PresetMark}, Presets())
}
