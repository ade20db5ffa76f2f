package avatar3d

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Part is a renderable mesh. Shapes maps morph target names to slots in
// Weights.
type Part struct {
	Name    string
	Shapes  map[string]int
	Weights []float32

	order []string
}

// NewPart builds a part whose slot i carries morphs[i].
func NewPart(name string, morphs []string) *Part {
	p := &Part{
		Name:    name,
		Shapes:  make(map[string]int, len(morphs)),
		Weights: make([]float32, len(morphs)),
		order:   make([]string, 0, len(morphs)),
	}
	for i, m := range morphs {
		if _, dup := p.Shapes[m]; dup {
			continue
		}
		p.Shapes[m] = i
		p.order = append(p.order, m)
	}
	return p
}

// ShapeNames lists morph names in slot order.
func (p *Part) ShapeNames() []string {
	return p.order
}

func (p *Part) SetWeight(slot int, w float32) {
	if slot < 0 || slot >= len(p.Weights) {
		return
	}
	p.Weights[slot] = clamp(w, 0, 1)
}

func (p *Part) Weight(slot int) float32 {
	if slot < 0 || slot >= len(p.Weights) {
		return 0
	}
	return p.Weights[slot]
}

// Joint is a bone with a local Euler rotation (XYZ order, radians).
type Joint struct {
	Name     string
	Rotation mgl32.Vec3
	Children []*Joint
}

func (j *Joint) IsLeaf() bool {
	return len(j.Children) == 0
}

// Rig is a loaded avatar asset. Parts and Joints are in scene traversal
// order (depth first, parents before children).
type Rig struct {
	Name   string
	Parts  []*Part
	Joints []*Joint
}

func (r *Rig) Joint(name string) *Joint {
	for _, j := range r.Joints {
		if j.Name == name {
			return j
		}
	}
	return nil
}

func (r *Rig) Part(name string) *Part {
	for _, p := range r.Parts {
		if p.Name == name {
			return p
		}
	}
	return nil
}
