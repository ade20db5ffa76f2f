package avatar3d

import (
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

// Options configures every controller an Avatar drives.
type Options struct {
	Binding BindingConfig
	LipSync LipSyncConfig
	Eyes    EyeConfig
	Idle    IdleConfig
	Random  Random
}

func DefaultOptions() Options {
	return Options{
		Binding: DefaultBindingConfig(),
		LipSync: DefaultLipSyncConfig(),
		Eyes:    DefaultEyeConfig(),
		Idle:    DefaultIdleConfig(),
	}
}

// Avatar ties a bound rig to its controllers. Expression and lip sync
// write disjoint shape slots; eyes, blink and idle sway write disjoint
// joints and the eyelid slot, so Update order between them is free.
type Avatar struct {
	mu sync.RWMutex

	opts    Options
	rig     *Rig
	binding *Binding

	expression *ExpressionController
	lipSync    *LipSyncController
	eyes       *EyeController
	idle       *IdleAnimator

	frame uint64
}

func NewAvatar(rig *Rig, opts Options) *Avatar {
	a := &Avatar{opts: opts}
	a.bind(rig)
	return a
}

// bind rebuilds every controller for rig, carrying the current expression
// and gaze over.
func (a *Avatar) bind(rig *Rig) {
	state := NeutralState
	var gaze GazeTarget
	if a.expression != nil {
		state = a.expression.State()
	}
	if a.eyes != nil {
		gaze = a.eyes.Gaze()
	}

	a.rig = rig
	a.binding = Bind(rig, a.opts.Binding)
	a.expression = NewExpressionController(a.binding)
	a.lipSync = NewLipSyncController(a.binding, a.opts.LipSync)
	a.eyes = NewEyeController(a.binding, a.opts.Eyes, a.opts.Random)
	a.idle = NewIdleAnimator(a.binding, a.opts.Idle)

	a.expression.Set(state)
	a.eyes.SetGaze(gaze)
}

// SetRig swaps the asset. The binding is rebuilt from scratch.
func (a *Avatar) SetRig(rig *Rig) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bind(rig)
}

func (a *Avatar) Rig() *Rig {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.rig
}

func (a *Avatar) Binding() *Binding {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.binding
}

func (a *Avatar) SetExpression(state ExpressionState) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.expression.Set(state)
}

func (a *Avatar) Expression() ExpressionState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.expression.State()
}

func (a *Avatar) SetPhoneme(p Phoneme) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lipSync.SetPhoneme(p)
}

func (a *Avatar) Phoneme() Phoneme {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lipSync.Phoneme()
}

func (a *Avatar) SetGaze(target GazeTarget) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.eyes.SetGaze(target)
}

func (a *Avatar) SetIdleEnabled(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.idle.SetEnabled(enabled)
}

// SetIdleConfig retunes idle motion without rebinding.
func (a *Avatar) SetIdleConfig(cfg IdleConfig) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.opts.Idle = cfg
	a.idle.SetConfig(cfg)
}

// Update advances one frame. elapsed is loop time since start and drives
// idle sway; dt drives the eased and timed controllers.
func (a *Avatar) Update(elapsed time.Duration, dt float32) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.frame++
	a.lipSync.Update(dt)
	a.eyes.Update(dt)
	a.idle.Update(elapsed)
}

// Pose is everything a renderer needs to reproduce one frame.
type Pose struct {
	Frame      uint64                `json:"frame"`
	Expression string                `json:"expression"`
	Phoneme    string                `json:"phoneme"`
	Blink      float32               `json:"blink"`
	Parts      []string              `json:"parts"`
	Morphs     map[string]float32    `json:"morphs"`
	Joints     map[string]mgl32.Vec3 `json:"joints"`
	Shapes     ShapeWeights          `json:"-"`
}

// Snapshot captures the bound morph weights (by asset morph name) and
// every animated joint rotation.
func (a *Avatar) Snapshot() Pose {
	a.mu.RLock()
	defer a.mu.RUnlock()

	b := a.binding
	p := Pose{
		Frame:      a.frame,
		Expression: a.expression.State().String(),
		Phoneme:    string(a.lipSync.Phoneme()),
		Blink:      b.Blink(),
		Morphs:     make(map[string]float32, ShapeCount+1),
		Joints:     make(map[string]mgl32.Vec3),
	}
	for _, part := range b.FaceParts() {
		p.Parts = append(p.Parts, part.Name)
	}
	for s := Shape(0); s < ShapeCount; s++ {
		if !b.HasShape(s) {
			continue
		}
		w := b.Shape(s)
		p.Shapes.Set(s, w)
		p.Morphs[b.ShapeName(s)] = w
	}
	if b.HasBlink() {
		p.Morphs[b.BlinkName()] = p.Blink
	}
	for _, j := range b.AnimatedJoints() {
		p.Joints[j.Name] = j.Rotation
	}
	return p
}
