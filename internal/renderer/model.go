// Package renderer loads character models and exposes their morphable
// meshes to the animation controller.
package renderer

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/normanking/audioface/internal/avatar3d"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
)

var ErrNoMorphTargets = errors.New("model has no morph targets")

// Model is a loaded character. Its identity is the pointer; reloading a
// file yields a new Model.
type Model struct {
	Name string
	Path string

	mu     sync.RWMutex
	meshes []*Mesh
}

func NewModel(name string) *Model {
	return &Model{Name: name}
}

func (m *Model) AddMesh(mesh *Mesh) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meshes = append(m.meshes, mesh)
}

func (m *Model) Meshes() []*Mesh {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Mesh, len(m.meshes))
	copy(out, m.meshes)
	return out
}

// VisitMeshes walks every mesh in load order.
func (m *Model) VisitMeshes(fn func(avatar3d.MorphMesh)) {
	for _, mesh := range m.Meshes() {
		fn(mesh)
	}
}

// MorphTargetCount sums targets across all meshes.
func (m *Model) MorphTargetCount() int {
	n := 0
	for _, mesh := range m.Meshes() {
		n += len(mesh.MorphTargets)
	}
	return n
}

// LoadModel opens a .gltf or .glb file. A model without morph targets is
// returned together with ErrNoMorphTargets.
func LoadModel(path string) (*Model, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gltf: %w", err)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	model, err := FromDocument(doc, name)
	if model == nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	model.Path = path
	if err != nil {
		return model, fmt.Errorf("%s: %w", path, err)
	}
	return model, nil
}

// FromDocument walks the default scene and builds one Mesh per primitive.
// Meshes are named "<node>/<primitive>" so several nodes can share one
// glTF mesh without colliding.
func FromDocument(doc *gltf.Document, name string) (*Model, error) {
	model := NewModel(name)

	roots := sceneRoots(doc)
	seen := make(map[int]bool)

	var walk func(nodeIdx int) error
	walk = func(nodeIdx int) error {
		if nodeIdx < 0 || nodeIdx >= len(doc.Nodes) || seen[nodeIdx] {
			return nil
		}
		seen[nodeIdx] = true

		node := doc.Nodes[nodeIdx]
		if node.Mesh != nil {
			if err := model.addGLTFMesh(doc, nodeIdx, *node.Mesh); err != nil {
				return err
			}
		}
		for _, child := range node.Children {
			if err := walk(child); err != nil {
				return err
			}
		}
		return nil
	}

	for _, root := range roots {
		if err := walk(root); err != nil {
			return nil, err
		}
	}

	if model.MorphTargetCount() == 0 {
		return model, ErrNoMorphTargets
	}
	return model, nil
}

func sceneRoots(doc *gltf.Document) []int {
	if len(doc.Scenes) > 0 {
		scene := 0
		if doc.Scene != nil && *doc.Scene < len(doc.Scenes) {
			scene = *doc.Scene
		}
		return doc.Scenes[scene].Nodes
	}
	roots := make([]int, len(doc.Nodes))
	for i := range doc.Nodes {
		roots[i] = i
	}
	return roots
}

func (m *Model) addGLTFMesh(doc *gltf.Document, nodeIdx, meshIdx int) error {
	if meshIdx < 0 || meshIdx >= len(doc.Meshes) {
		return fmt.Errorf("node %d: mesh index %d out of range", nodeIdx, meshIdx)
	}
	gm := doc.Meshes[meshIdx]
	names := targetNames(gm)

	nodeName := doc.Nodes[nodeIdx].Name
	if nodeName == "" {
		nodeName = fmt.Sprintf("node%d", nodeIdx)
	}

	for pi, prim := range gm.Primitives {
		posIdx, ok := prim.Attributes[gltf.POSITION]
		if !ok {
			continue
		}
		positions, err := readVec3(doc, posIdx)
		if err != nil {
			return fmt.Errorf("read positions: %w", err)
		}

		targets := make([]MorphTarget, 0, len(prim.Targets))
		for ti, target := range prim.Targets {
			mt := MorphTarget{Name: fmt.Sprintf("target_%d", ti)}
			if ti < len(names) && names[ti] != "" {
				mt.Name = names[ti]
			}
			if idx, ok := target[gltf.POSITION]; ok {
				mt.PositionDeltas, err = readVec3(doc, idx)
				if err != nil {
					return fmt.Errorf("read target %q: %w", mt.Name, err)
				}
			}
			targets = append(targets, mt)
		}

		mesh := NewMesh(fmt.Sprintf("%s/%d", nodeName, pi), positions, targets)
		mesh.Name = gm.Name
		if prim.Indices != nil {
			mesh.Indices, err = modeler.ReadIndices(doc, doc.Accessors[*prim.Indices], nil)
			if err != nil {
				return fmt.Errorf("read indices: %w", err)
			}
		}

		weights := make([]float32, len(gm.Weights))
		for i, w := range gm.Weights {
			weights[i] = float32(w)
		}
		mesh.SetInfluences(weights)

		m.AddMesh(mesh)
	}
	return nil
}

// targetNames reads the conventional extras.targetNames list.
func targetNames(gm *gltf.Mesh) []string {
	extras, ok := gm.Extras.(map[string]interface{})
	if !ok {
		return nil
	}
	raw, ok := extras["targetNames"].([]interface{})
	if !ok {
		return nil
	}
	names := make([]string, len(raw))
	for i, v := range raw {
		names[i], _ = v.(string)
	}
	return names
}

func readVec3(doc *gltf.Document, accessorIdx int) ([]mgl32.Vec3, error) {
	if accessorIdx < 0 || accessorIdx >= len(doc.Accessors) {
		return nil, fmt.Errorf("accessor %d out of range", accessorIdx)
	}
	raw, err := modeler.ReadPosition(doc, doc.Accessors[accessorIdx], nil)
	if err != nil {
		return nil, err
	}
	out := make([]mgl32.Vec3, len(raw))
	for i, p := range raw {
		out[i] = mgl32.Vec3(p)
	}
	return out, nil
}
