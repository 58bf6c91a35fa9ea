package avatar3d

// MorphMesh is a renderable sub-mesh carrying morph targets. The influence
// slice is owned by the mesh and written in place.
type MorphMesh interface {
	MeshID() string
	MorphTargetDictionary() map[string]int
	MorphTargetInfluences() []float32
}

// MeshGraph enumerates the sub-meshes of a loaded character model.
type MeshGraph interface {
	VisitMeshes(fn func(MorphMesh))
}

type RegistryEntry struct {
	MeshID     string
	Index      [BlendshapeCount]int
	Influences []float32
}

func (e *RegistryEntry) Resolved(b Blendshape) bool {
	return e.Index[b] >= 0
}

// Registry is the flattened list of meshes that can be animated, with each
// canonical blendshape resolved to a morph index per mesh.
type Registry struct {
	prefix  string
	entries []RegistryEntry
}

// BuildRegistry resolves the graph and zeroes the influences of every
// registered mesh.
func BuildRegistry(graph MeshGraph, prefix string) *Registry {
	r := ResolveRegistry(graph, prefix)
	r.Reset()
	return r
}

// ResolveRegistry walks the graph and keeps meshes with a non-empty morph
// dictionary. Influences are left untouched. A nil graph yields an empty
// registry.
func ResolveRegistry(graph MeshGraph, prefix string) *Registry {
	r := &Registry{prefix: prefix}
	if graph == nil {
		return r
	}

	graph.VisitMeshes(func(m MorphMesh) {
		dict := m.MorphTargetDictionary()
		if len(dict) == 0 {
			return
		}
		influences := m.MorphTargetInfluences()

		entry := RegistryEntry{MeshID: m.MeshID(), Influences: influences}
		for b := Blendshape(0); b < BlendshapeCount; b++ {
			entry.Index[b] = resolveIndex(dict, len(influences), prefix, BlendshapeNames[b])
		}
		r.entries = append(r.entries, entry)
	})

	return r
}

func resolveIndex(dict map[string]int, n int, prefix, name string) int {
	candidates := [2]string{prefix + name, name}
	for _, c := range candidates {
		if idx, ok := dict[c]; ok && idx >= 0 && idx < n {
			return idx
		}
	}
	return -1
}

// Reset zeroes every registered influence.
func (r *Registry) Reset() {
	for _, e := range r.Entries() {
		for i := range e.Influences {
			e.Influences[i] = 0
		}
	}
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}

func (r *Registry) Empty() bool {
	return r.Len() == 0
}

func (r *Registry) Prefix() string {
	return r.prefix
}

func (r *Registry) Entries() []RegistryEntry {
	if r == nil {
		return nil
	}
	return r.entries
}

// Lookup returns the morph index for b on the given mesh, or -1.
func (r *Registry) Lookup(meshID string, b Blendshape) int {
	for i := range r.Entries() {
		if r.entries[i].MeshID == meshID {
			return r.entries[i].Index[b]
		}
	}
	return -1
}

// Snapshot copies the current influences of every registered mesh.
func (r *Registry) Snapshot() map[string][]float32 {
	out := make(map[string][]float32, r.Len())
	for _, e := range r.Entries() {
		cp := make([]float32, len(e.Influences))
		copy(cp, e.Influences)
		out[e.MeshID] = cp
	}
	return out
}
