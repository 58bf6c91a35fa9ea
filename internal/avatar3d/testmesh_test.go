package avatar3d

type fakeMesh struct {
	id         string
	dict       map[string]int
	influences []float32
}

func newFakeMesh(id string, names ...string) *fakeMesh {
	m := &fakeMesh{id: id, dict: make(map[string]int, len(names)), influences: make([]float32, len(names))}
	for i, n := range names {
		m.dict[n] = i
	}
	return m
}

func (m *fakeMesh) MeshID() string                        { return m.id }
func (m *fakeMesh) MorphTargetDictionary() map[string]int { return m.dict }
func (m *fakeMesh) MorphTargetInfluences() []float32      { return m.influences }

type fakeGraph []*fakeMesh

func (g fakeGraph) VisitMeshes(fn func(MorphMesh)) {
	for _, m := range g {
		fn(m)
	}
}
