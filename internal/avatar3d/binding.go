package avatar3d

import (
	"strings"

	"github.com/go-gl/mathgl/mgl32"
)

// BindingConfig names the asset conventions the Binding looks for.
type BindingConfig struct {
	FacePrefix string     `mapstructure:"face_prefix"`
	Shapes     ShapeNames `mapstructure:"-"`
	BlinkName  string     `mapstructure:"blink_name"`
	HairToken  string     `mapstructure:"hair_token"`
	EarToken   string     `mapstructure:"ear_token"`
	HeadJoint  string     `mapstructure:"head_joint"`
	LeftEye    string     `mapstructure:"left_eye"`
	RightEye   string     `mapstructure:"right_eye"`
}

func DefaultBindingConfig() BindingConfig {
	return BindingConfig{
		FacePrefix: "Face_(merged)",
		Shapes:     DefaultShapeNames,
		BlinkName:  "Fcl_EYE_Close",
		HairToken:  "hair",
		EarToken:   "ear",
		HeadJoint:  "J_Bip_C_Head",
		LeftEye:    "J_Adj_L_FaceEye",
		RightEye:   "J_Adj_R_FaceEye",
	}
}

// JointBinding is a joint claimed by one of the idle motion groups.
type JointBinding struct {
	Joint *Joint
	Index int
	Leaf  bool
}

type faceSlots struct {
	part  *Part
	slots [ShapeCount]int
	blink int
}

// Binding is the typed result of scanning a Rig once at load time.
// Animation code only goes through it and never looks names up per frame.
type Binding struct {
	rig       *Rig
	config    BindingConfig
	face      []faceSlots
	blinkName string

	hair []JointBinding
	ears []JointBinding
	head *JointBinding
	eyes []JointBinding

	rest map[*Joint]mgl32.Vec3
}

// Bind resolves face parts, shape slots, the eyelid slot, idle motion
// joints and their rest poses. Missing pieces disable the matching
// feature; Bind never fails.
func Bind(rig *Rig, cfg BindingConfig) *Binding {
	def := DefaultBindingConfig()
	if cfg.FacePrefix == "" {
		cfg.FacePrefix = def.FacePrefix
	}
	if cfg.Shapes == (ShapeNames{}) {
		cfg.Shapes = def.Shapes
	}
	if cfg.HairToken == "" {
		cfg.HairToken = def.HairToken
	}
	if cfg.EarToken == "" {
		cfg.EarToken = def.EarToken
	}

	b := &Binding{
		rig:    rig,
		config: cfg,
		rest:   make(map[*Joint]mgl32.Vec3),
	}
	if rig == nil {
		return b
	}

	for _, p := range rig.Parts {
		if !strings.HasPrefix(p.Name, cfg.FacePrefix) || len(p.Shapes) == 0 {
			continue
		}
		fs := faceSlots{part: p, blink: -1}
		for s := Shape(0); s < ShapeCount; s++ {
			fs.slots[s] = -1
			if idx, ok := p.Shapes[cfg.Shapes[s]]; ok {
				fs.slots[s] = idx
			}
		}
		b.face = append(b.face, fs)
	}

	if len(b.face) > 0 {
		b.blinkName = resolveBlinkName(b.face[0].part, cfg.BlinkName)
		if b.blinkName != "" {
			for i := range b.face {
				if idx, ok := b.face[i].part.Shapes[b.blinkName]; ok {
					b.face[i].blink = idx
				}
			}
		}
	}

	hairToken := strings.ToLower(cfg.HairToken)
	earToken := strings.ToLower(cfg.EarToken)
	for _, j := range rig.Joints {
		// Exact names claim a joint first so no joint has two writers.
		switch {
		case j.Name == "":
			continue
		case j.Name == cfg.HeadJoint:
			if b.head == nil {
				b.head = &JointBinding{Joint: j, Leaf: j.IsLeaf()}
			}
			continue
		case j.Name == cfg.LeftEye || j.Name == cfg.RightEye:
			b.eyes = append(b.eyes, JointBinding{Joint: j, Index: len(b.eyes), Leaf: j.IsLeaf()})
			continue
		}

		lower := strings.ToLower(j.Name)
		switch {
		case strings.Contains(lower, hairToken):
			b.hair = append(b.hair, JointBinding{Joint: j, Index: len(b.hair), Leaf: j.IsLeaf()})
		case strings.Contains(lower, earToken):
			b.ears = append(b.ears, JointBinding{Joint: j, Index: len(b.ears), Leaf: j.IsLeaf()})
		}
	}

	for _, group := range [][]JointBinding{b.hair, b.ears, b.eyes} {
		for _, jb := range group {
			b.capture(jb.Joint)
		}
	}
	if b.head != nil {
		b.capture(b.head.Joint)
	}
	return b
}

// resolveBlinkName prefers the canonical name, then the first morph (in
// slot order) mentioning blink or close.
func resolveBlinkName(p *Part, canonical string) string {
	if canonical != "" {
		if _, ok := p.Shapes[canonical]; ok {
			return canonical
		}
	}
	for _, name := range p.ShapeNames() {
		lower := strings.ToLower(name)
		if strings.Contains(lower, "blink") || strings.Contains(lower, "close") {
			return name
		}
	}
	return ""
}

func (b *Binding) capture(j *Joint) {
	if _, ok := b.rest[j]; ok {
		return
	}
	b.rest[j] = j.Rotation
}

func (b *Binding) Rig() *Rig {
	return b.rig
}

func (b *Binding) FaceParts() []*Part {
	parts := make([]*Part, len(b.face))
	for i, fs := range b.face {
		parts[i] = fs.part
	}
	return parts
}

// HasShape reports whether at least one face part carries s.
func (b *Binding) HasShape(s Shape) bool {
	for _, fs := range b.face {
		if fs.slots[s] >= 0 {
			return true
		}
	}
	return false
}

// SetShape writes the same weight into every face part carrying s.
func (b *Binding) SetShape(s Shape, w float32) {
	for _, fs := range b.face {
		fs.part.SetWeight(fs.slots[s], w)
	}
}

func (b *Binding) Shape(s Shape) float32 {
	for _, fs := range b.face {
		if fs.slots[s] >= 0 {
			return fs.part.Weight(fs.slots[s])
		}
	}
	return 0
}

// ShapeName is the morph target name s resolved to.
func (b *Binding) ShapeName(s Shape) string {
	return b.config.Shapes[s]
}

func (b *Binding) HasBlink() bool {
	return b.blinkName != ""
}

func (b *Binding) BlinkName() string {
	return b.blinkName
}

func (b *Binding) SetBlink(w float32) {
	for _, fs := range b.face {
		fs.part.SetWeight(fs.blink, w)
	}
}

func (b *Binding) Blink() float32 {
	if len(b.face) == 0 {
		return 0
	}
	return b.face[0].part.Weight(b.face[0].blink)
}

func (b *Binding) Hair() []JointBinding {
	return b.hair
}

func (b *Binding) Ears() []JointBinding {
	return b.ears
}

func (b *Binding) Head() (JointBinding, bool) {
	if b.head == nil {
		return JointBinding{}, false
	}
	return *b.head, true
}

func (b *Binding) Eyes() []JointBinding {
	return b.eyes
}

// RestPose returns the rotation j had when the rig was bound.
func (b *Binding) RestPose(j *Joint) (mgl32.Vec3, bool) {
	r, ok := b.rest[j]
	return r, ok
}

// AnimatedJoints lists every joint the idle driver writes, in rig order.
func (b *Binding) AnimatedJoints() []*Joint {
	if b.rig == nil {
		return nil
	}
	joints := make([]*Joint, 0, len(b.rest))
	for _, j := range b.rig.Joints {
		if _, ok := b.rest[j]; ok {
			joints = append(joints, j)
		}
	}
	return joints
}

// BindingReport summarizes what resolved and which features degrade.
type BindingReport struct {
	Rig        string          `json:"rig" yaml:"rig"`
	FaceParts  []string        `json:"faceParts" yaml:"face_parts"`
	Shapes     map[string]bool `json:"shapes" yaml:"shapes"`
	Blink      string          `json:"blink,omitempty" yaml:"blink,omitempty"`
	HairJoints int             `json:"hairJoints" yaml:"hair_joints"`
	EarJoints  int             `json:"earJoints" yaml:"ear_joints"`
	Head       bool            `json:"head" yaml:"head"`
	Eyes       int             `json:"eyes" yaml:"eyes"`
	Disabled   []string        `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

func (b *Binding) Report() BindingReport {
	r := BindingReport{
		Shapes:     make(map[string]bool, ShapeCount),
		Blink:      b.blinkName,
		HairJoints: len(b.hair),
		EarJoints:  len(b.ears),
		Head:       b.head != nil,
		Eyes:       len(b.eyes),
	}
	if b.rig != nil {
		r.Rig = b.rig.Name
	}
	for _, fs := range b.face {
		r.FaceParts = append(r.FaceParts, fs.part.Name)
	}
	for s := Shape(0); s < ShapeCount; s++ {
		has := b.HasShape(s)
		r.Shapes[s.String()] = has
		if !has {
			r.Disabled = append(r.Disabled, "shape:"+s.String())
		}
	}
	if len(b.face) == 0 {
		r.Disabled = append(r.Disabled, "face")
	}
	if !b.HasBlink() {
		r.Disabled = append(r.Disabled, "blink")
	}
	if len(b.hair) == 0 {
		r.Disabled = append(r.Disabled, "hair")
	}
	if len(b.ears) == 0 {
		r.Disabled = append(r.Disabled, "ears")
	}
	if b.head == nil {
		r.Disabled = append(r.Disabled, "head")
	}
	if len(b.eyes) == 0 {
		r.Disabled = append(r.Disabled, "eyes")
	}
	return r
}
