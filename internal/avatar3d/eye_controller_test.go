package avatar3d

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlinkCycle(t *testing.T) {
	b := Bind(testRig(), DefaultBindingConfig())
	ec := NewEyeController(b, DefaultEyeConfig(), fixedRandom(0))

	ec.Update(2.5)
	assert.InDelta(t, 0, ec.Blink(), 1e-4)

	ec.Update(0.075)
	assert.InDelta(t, 1, ec.Blink(), 1e-4)
	assert.InDelta(t, 1, b.Blink(), 1e-4)

	ec.Update(0.075)
	assert.Equal(t, float32(0), ec.Blink())
	assert.Equal(t, float32(0), b.Blink())
	// A new gap was drawn.
	assert.InDelta(t, 2.5, ec.NextBlinkIn().Seconds(), 1e-6)
}

func TestBlinkFrameByFrame(t *testing.T) {
	b := Bind(testRig(), DefaultBindingConfig())
	ec := NewEyeController(b, DefaultEyeConfig(), fixedRandom(0.5))

	// 3.75s gap, then a 0.15s blink.
	var peak float32
	blinks := 0
	open := true
	for i := 0; i < 60*8; i++ {
		ec.Update(frame60)
		w := ec.Blink()
		assert.GreaterOrEqual(t, w, float32(0))
		assert.LessOrEqual(t, w, float32(1))
		if w > peak {
			peak = w
		}
		if open && w > 0 {
			blinks++
		}
		open = w == 0
	}
	assert.Equal(t, 2, blinks)
	assert.Greater(t, peak, float32(0.85))
}

func TestBlinkDisabledWithoutSlot(t *testing.T) {
	rig := &Rig{Parts: []*Part{NewPart("Face_(merged)", []string{"Fcl_ALL_Joy"})}}
	b := Bind(rig, DefaultBindingConfig())
	ec := NewEyeController(b, DefaultEyeConfig(), fixedRandom(0))

	assert.NotPanics(t, func() {
		ec.Update(2.6)
	})
	assert.Equal(t, float32(0), rig.Parts[0].Weight(0))
}

func TestNormalizePointer(t *testing.T) {
	assert.Equal(t, GazeTarget{X: 0, Y: 0}, NormalizePointer(400, 300, 800, 600))
	assert.Equal(t, GazeTarget{X: -1, Y: 1}, NormalizePointer(0, 0, 800, 600))
	assert.Equal(t, GazeTarget{X: 1, Y: -1}, NormalizePointer(800, 600, 800, 600))
	assert.Equal(t, GazeTarget{X: 1, Y: -1}, NormalizePointer(5000, 5000, 800, 600))
	assert.Equal(t, GazeTarget{}, NormalizePointer(10, 10, 0, 0))
}

func TestEyeTracking(t *testing.T) {
	rig := testRig()
	b := Bind(rig, DefaultBindingConfig())
	ec := NewEyeController(b, DefaultEyeConfig(), fixedRandom(0))

	ec.SetGaze(GazeTarget{X: 1, Y: 1})
	ec.Update(frame60)

	eyeR := rig.Joint("J_Adj_R_FaceEye")
	require.NotNil(t, eyeR)
	assert.InDelta(t, -0.05, eyeR.Rotation[0], 1e-6)
	assert.InDelta(t, 0.02+0.175, eyeR.Rotation[1], 1e-6)
	assert.InDelta(t, 0, eyeR.Rotation[2], 1e-6)

	// Out of range input is clamped, so the offset never exceeds the limits.
	ec.SetGaze(GazeTarget{X: -7, Y: 0})
	ec.Update(frame60)
	assert.InDelta(t, 0.02-0.175, eyeR.Rotation[1], 1e-6)
	assert.InDelta(t, 0, eyeR.Rotation[0], 1e-6)
}
