package avatar3d

import (
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
)

// LoadRig opens a glTF/GLB (VRM exported as GLB works) and extracts the
// parts and joints the animation core needs. Geometry is not read.
func LoadRig(path string) (*Rig, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gltf: %w", err)
	}
	rig, err := RigFromDocument(doc)
	if err != nil {
		return nil, err
	}
	rig.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return rig, nil
}

// RigFromDocument walks the default scene depth first. Every node with a
// mesh becomes a Part; every node referenced by a skin becomes a Joint.
func RigFromDocument(doc *gltf.Document) (*Rig, error) {
	if doc == nil || len(doc.Nodes) == 0 {
		return nil, fmt.Errorf("no nodes in document")
	}

	isJoint := make(map[int]bool)
	for _, skin := range doc.Skins {
		for _, j := range skin.Joints {
			isJoint[int(j)] = true
		}
	}

	joints := make(map[int]*Joint)
	for idx := range isJoint {
		if idx < 0 || idx >= len(doc.Nodes) {
			continue
		}
		n := doc.Nodes[idx]
		joints[idx] = &Joint{Name: n.Name, Rotation: nodeEuler(n.Rotation)}
	}

	rig := &Rig{}
	visited := make(map[int]bool)

	var visit func(idx int)
	visit = func(idx int) {
		if idx < 0 || idx >= len(doc.Nodes) || visited[idx] {
			return
		}
		visited[idx] = true
		n := doc.Nodes[idx]

		if n.Mesh != nil {
			mi := int(*n.Mesh)
			if mi >= 0 && mi < len(doc.Meshes) {
				rig.Parts = append(rig.Parts, partFromMesh(n.Name, doc.Meshes[mi]))
			}
		}
		if j, ok := joints[idx]; ok {
			rig.Joints = append(rig.Joints, j)
			for _, c := range n.Children {
				if cj, ok := joints[int(c)]; ok {
					j.Children = append(j.Children, cj)
				}
			}
		}
		for _, c := range n.Children {
			visit(int(c))
		}
	}

	for _, root := range sceneRoots(doc) {
		visit(root)
	}
	return rig, nil
}

func sceneRoots(doc *gltf.Document) []int {
	if len(doc.Scenes) > 0 {
		si := 0
		if doc.Scene != nil {
			si = int(*doc.Scene)
		}
		if si >= 0 && si < len(doc.Scenes) {
			roots := make([]int, 0, len(doc.Scenes[si].Nodes))
			for _, n := range doc.Scenes[si].Nodes {
				roots = append(roots, int(n))
			}
			return roots
		}
	}

	// No scene: every node that is nobody's child is a root.
	child := make(map[int]bool)
	for _, n := range doc.Nodes {
		for _, c := range n.Children {
			child[int(c)] = true
		}
	}
	var roots []int
	for i := range doc.Nodes {
		if !child[i] {
			roots = append(roots, i)
		}
	}
	return roots
}

func partFromMesh(nodeName string, m *gltf.Mesh) *Part {
	count := 0
	for _, prim := range m.Primitives {
		if len(prim.Targets) > count {
			count = len(prim.Targets)
		}
	}
	names := targetNames(m.Extras)
	if len(names) > count {
		count = len(names)
	}

	morphs := make([]string, count)
	for i := range morphs {
		if i < len(names) && names[i] != "" {
			morphs[i] = names[i]
		} else {
			morphs[i] = fmt.Sprintf("target_%d", i)
		}
	}

	name := nodeName
	if name == "" {
		name = m.Name
	}
	p := NewPart(name, morphs)
	for i, w := range m.Weights {
		p.SetWeight(i, float32(w))
	}
	return p
}

// targetNames reads the de facto extras.targetNames morph name list.
func targetNames(extras any) []string {
	var raw map[string]any
	switch v := extras.(type) {
	case map[string]any:
		raw = v
	case json.RawMessage:
		_ = json.Unmarshal(v, &raw)
	case []byte:
		_ = json.Unmarshal(v, &raw)
	}
	list, ok := raw["targetNames"].([]any)
	if !ok {
		return nil
	}
	names := make([]string, len(list))
	for i, n := range list {
		if s, ok := n.(string); ok {
			names[i] = s
		}
	}
	return names
}

// nodeEuler converts a glTF [x y z w] quaternion to XYZ Euler angles.
func nodeEuler(r [4]float64) mgl32.Vec3 {
	if r == [4]float64{} {
		return mgl32.Vec3{}
	}
	q := mgl32.Quat{W: float32(r[3]), V: mgl32.Vec3{float32(r[0]), float32(r[1]), float32(r[2])}}
	return quatToEulerXYZ(q.Normalize())
}

func quatToEulerXYZ(q mgl32.Quat) mgl32.Vec3 {
	m := q.Mat4()
	m11, m12, m13 := float64(m.At(0, 0)), float64(m.At(0, 1)), float64(m.At(0, 2))
	m22, m23 := float64(m.At(1, 1)), float64(m.At(1, 2))
	m32, m33 := float64(m.At(2, 1)), float64(m.At(2, 2))

	y := math.Asin(math.Max(-1, math.Min(1, m13)))
	var x, z float64
	if math.Abs(m13) < 0.9999999 {
		x = math.Atan2(-m23, m33)
		z = math.Atan2(-m12, m11)
	} else {
		x = math.Atan2(m32, m22)
	}
	return mgl32.Vec3{float32(x), float32(y), float32(z)}
}
