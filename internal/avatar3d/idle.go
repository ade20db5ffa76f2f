package avatar3d

import (
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

type IdleConfig struct {
	Enabled   bool    `mapstructure:"enabled"`
	Intensity float32 `mapstructure:"intensity"`

	HairFreq   [3]float64 `mapstructure:"hair_freq"`
	HairPhase  float64    `mapstructure:"hair_phase"`
	HairAmp    float32    `mapstructure:"hair_amp"`
	HairTipAmp float32    `mapstructure:"hair_tip_amp"`

	EarFreq  [2]float64 `mapstructure:"ear_freq"`
	EarPhase float64    `mapstructure:"ear_phase"`
	EarAmp   float32    `mapstructure:"ear_amp"`

	HeadFreq [2]float64 `mapstructure:"head_freq"`
	HeadAmp  float32    `mapstructure:"head_amp"`
}

func DefaultIdleConfig() IdleConfig {
	return IdleConfig{
		Enabled:    true,
		Intensity:  1,
		HairFreq:   [3]float64{0.7, 0.5, 0.6},
		HairPhase:  0.7,
		HairAmp:    0.35,
		HairTipAmp: 0.04,
		EarFreq:    [2]float64{0.8, 0.6},
		EarPhase:   3,
		EarAmp:     0.1,
		HeadFreq:   [2]float64{0.7, 0.5},
		HeadAmp:    0.08,
	}
}

// IdleAnimator sways hair, ears and head around their rest poses. Every
// rotation is recomputed from the rest pose and elapsed time, so nothing
// accumulates between frames.
type IdleAnimator struct {
	binding *Binding
	config  IdleConfig
	time    float64
}

func NewIdleAnimator(b *Binding, cfg IdleConfig) *IdleAnimator {
	return &IdleAnimator{binding: b, config: cfg}
}

func (ia *IdleAnimator) SetEnabled(enabled bool) {
	ia.config.Enabled = enabled
	if !enabled {
		ia.restore()
	}
}

// SetConfig swaps the tuning in place. The phase keeps following loop
// time, so the sway does not jump.
func (ia *IdleAnimator) SetConfig(cfg IdleConfig) {
	ia.config = cfg
	if !cfg.Enabled {
		ia.restore()
	}
}

func (ia *IdleAnimator) SetIntensity(intensity float32) {
	ia.config.Intensity = clamp(intensity, 0, 1)
}

func (ia *IdleAnimator) Time() float64 {
	return ia.time
}

// Update poses every swaying joint for loop time elapsed. The phase comes
// from the clock rather than summed frame deltas, which the loop clamps
// after a stall.
func (ia *IdleAnimator) Update(elapsed time.Duration) {
	ia.time = elapsed.Seconds()
	if !ia.config.Enabled || ia.config.Intensity <= 0 {
		return
	}
	ia.applyHair()
	ia.applyEars()
	ia.applyHead()
}

func (ia *IdleAnimator) applyHair() {
	c := ia.config
	for _, jb := range ia.binding.Hair() {
		amp := c.HairAmp
		if jb.Leaf {
			amp = c.HairTipAmp
		}
		amp *= c.Intensity
		phase := float64(jb.Index) * c.HairPhase
		ia.sway(jb.Joint, mgl32.Vec3{
			wave(math.Sin, ia.time*c.HairFreq[0]+phase) * amp,
			wave(math.Cos, ia.time*c.HairFreq[1]+phase) * amp * 0.5,
			wave(math.Sin, ia.time*c.HairFreq[2]+phase) * amp * 0.7,
		})
	}
}

func (ia *IdleAnimator) applyEars() {
	c := ia.config
	amp := c.EarAmp * c.Intensity
	for _, jb := range ia.binding.Ears() {
		phase := float64(jb.Index) * c.EarPhase
		ia.sway(jb.Joint, mgl32.Vec3{
			wave(math.Sin, ia.time*c.EarFreq[0]+phase) * amp,
			wave(math.Cos, ia.time*c.EarFreq[1]+phase) * amp * 0.5,
			0,
		})
	}
}

func (ia *IdleAnimator) applyHead() {
	head, ok := ia.binding.Head()
	if !ok {
		return
	}
	c := ia.config
	amp := c.HeadAmp * c.Intensity
	ia.sway(head.Joint, mgl32.Vec3{
		wave(math.Sin, ia.time*c.HeadFreq[0]) * amp,
		wave(math.Cos, ia.time*c.HeadFreq[1]) * amp * 0.5,
		0,
	})
}

func (ia *IdleAnimator) sway(j *Joint, offset mgl32.Vec3) {
	rest, ok := ia.binding.RestPose(j)
	if !ok {
		return
	}
	j.Rotation = rest.Add(offset)
}

func (ia *IdleAnimator) restore() {
	groups := [][]JointBinding{ia.binding.Hair(), ia.binding.Ears()}
	if head, ok := ia.binding.Head(); ok {
		groups = append(groups, []JointBinding{head})
	}
	for _, group := range groups {
		for _, jb := range group {
			if rest, ok := ia.binding.RestPose(jb.Joint); ok {
				jb.Joint.Rotation = rest
			}
		}
	}
}

func wave(f func(float64) float64, x float64) float32 {
	return float32(f(x))
}
