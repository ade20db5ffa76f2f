package avatar3d

import (
	"math/rand"
	"time"
)

// Random is the source blink intervals are drawn from.
type Random interface {
	Float64() float64
}

type EyeConfig struct {
	BlinkMin      float64 `mapstructure:"blink_min"`
	BlinkSpread   float64 `mapstructure:"blink_spread"`
	BlinkDuration float64 `mapstructure:"blink_duration"`
	MaxYaw        float32 `mapstructure:"max_yaw"`
	MaxPitch      float32 `mapstructure:"max_pitch"`
}

func DefaultEyeConfig() EyeConfig {
	return EyeConfig{
		BlinkMin:      2.5,
		BlinkSpread:   2.5,
		BlinkDuration: 0.15,
		MaxYaw:        0.175,
		MaxPitch:      0.05,
	}
}

type GazeTarget struct {
	X float32 // -1 (left) to +1 (right)
	Y float32 // -1 (down) to +1 (up)
}

// NormalizePointer maps a pixel position inside a w by h viewport to
// [-1, 1] on both axes, y up.
func NormalizePointer(px, py, w, h float64) GazeTarget {
	if w <= 0 || h <= 0 {
		return GazeTarget{}
	}
	x := px/w*2 - 1
	y := -(py/h*2 - 1)
	return GazeTarget{X: clamp(float32(x), -1, 1), Y: clamp(float32(y), -1, 1)}
}

// EyeController runs the blink timer and points the eye joints at the
// latest pointer position. One timer serves every face part.
type EyeController struct {
	binding *Binding
	config  EyeConfig
	rng     Random

	blinkTimer    float64
	blinkProgress float64
	blinkRate     float64
	blink         float32

	gaze GazeTarget
}

func NewEyeController(b *Binding, cfg EyeConfig, rng Random) *EyeController {
	def := DefaultEyeConfig()
	if cfg.BlinkMin <= 0 {
		cfg.BlinkMin = def.BlinkMin
	}
	if cfg.BlinkSpread < 0 {
		cfg.BlinkSpread = def.BlinkSpread
	}
	if cfg.BlinkDuration <= 0 {
		cfg.BlinkDuration = def.BlinkDuration
	}
	if cfg.MaxYaw == 0 && cfg.MaxPitch == 0 {
		cfg.MaxYaw, cfg.MaxPitch = def.MaxYaw, def.MaxPitch
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	ec := &EyeController{
		binding:   b,
		config:    cfg,
		rng:       rng,
		blinkRate: 1 / cfg.BlinkDuration,
	}
	ec.blinkTimer = ec.nextBlinkGap()
	return ec
}

func (ec *EyeController) nextBlinkGap() float64 {
	return ec.config.BlinkMin + ec.rng.Float64()*ec.config.BlinkSpread
}

// SetGaze records the normalized pointer position. It takes effect on the
// next Update.
func (ec *EyeController) SetGaze(target GazeTarget) {
	ec.gaze = GazeTarget{X: clamp(target.X, -1, 1), Y: clamp(target.Y, -1, 1)}
}

func (ec *EyeController) Gaze() GazeTarget {
	return ec.gaze
}

// Blink is the eyelid weight written by the last Update.
func (ec *EyeController) Blink() float32 {
	return ec.blink
}

// NextBlinkIn is the time left before the next blink starts. Zero or
// negative while a blink is in progress.
func (ec *EyeController) NextBlinkIn() time.Duration {
	return time.Duration(ec.blinkTimer * float64(time.Second))
}

func (ec *EyeController) Update(dt float32) {
	ec.updateBlink(float64(dt))
	if ec.binding.HasBlink() {
		ec.binding.SetBlink(ec.blink)
	}
	ec.applyGaze()
}

// updateBlink counts the gap down; once it crosses zero, the overshoot is
// the time spent inside the blink. Weight ramps 0 to 1 over the first half
// and back over the second.
func (ec *EyeController) updateBlink(dt float64) {
	ec.blinkTimer -= dt
	ec.blink = 0
	if ec.blinkTimer > 0 {
		return
	}

	ec.blinkProgress = -ec.blinkTimer * ec.blinkRate
	switch p := ec.blinkProgress; {
	case p < 0.5:
		ec.blink = float32(p * 2)
	case p < 1-1e-6:
		ec.blink = float32((1 - p) * 2)
	default:
		ec.blinkTimer = ec.nextBlinkGap()
		ec.blinkProgress = 0
	}
}

func (ec *EyeController) applyGaze() {
	for _, eye := range ec.binding.Eyes() {
		rest, ok := ec.binding.RestPose(eye.Joint)
		if !ok {
			continue
		}
		eye.Joint.Rotation[0] = rest[0] - ec.gaze.Y*ec.config.MaxPitch
		eye.Joint.Rotation[1] = rest[1] + ec.gaze.X*ec.config.MaxYaw
		eye.Joint.Rotation[2] = rest[2]
	}
}
