package remote

import (
	"fmt"
	"os"

	"github.com/normanking/audioface/internal/avatar3d"
	"gopkg.in/yaml.v3"
)

// NameTable maps service-specific blendshape names onto canonical ones.
type NameTable struct {
	Names map[string]string `yaml:"names"`

	resolved map[string]avatar3d.Blendshape
}

// LoadNameTable reads a YAML name table from disk
func LoadNameTable(path string) (*NameTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read name table %s: %w", path, err)
	}
	return ParseNameTable(data)
}

// ParseNameTable decodes a name table and rejects unknown canonical targets
func ParseNameTable(data []byte) (*NameTable, error) {
	var t NameTable
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse name table: %w", err)
	}

	t.resolved = make(map[string]avatar3d.Blendshape, len(t.Names))
	for remoteName, canonical := range t.Names {
		b, ok := avatar3d.BlendshapeFromName(canonical)
		if !ok {
			return nil, fmt.Errorf("name table: %q maps to unknown blendshape %q", remoteName, canonical)
		}
		t.resolved[remoteName] = b
	}
	return &t, nil
}

// Len returns the number of explicit mappings
func (t *NameTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.resolved)
}

// Resolver returns a lookup that prefers explicit entries, then bare or
// prefixed canonical names. A nil table resolves names directly.
func (t *NameTable) Resolver(prefix string) func(string) (avatar3d.Blendshape, bool) {
	return func(name string) (avatar3d.Blendshape, bool) {
		if t != nil {
			if b, ok := t.resolved[name]; ok {
				return b, true
			}
		}
		return avatar3d.BlendshapeFromRemoteName(name, prefix)
	}
}

// Frames converts a response into canonical frames
func Frames(resp *Response, resolve func(string) (avatar3d.Blendshape, bool)) []avatar3d.Frame {
	frames := make([]avatar3d.Frame, 0, len(resp.Blendshapes))
	for _, w := range resp.Blendshapes {
		frames = append(frames, avatar3d.FrameFromWeights(w, resolve))
	}
	return frames
}
