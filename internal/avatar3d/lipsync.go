package avatar3d

import "math"

type LipSyncConfig struct {
	// Target is the weight the active vowel shape eases toward.
	Target float32 `mapstructure:"target"`
	// Smoothing is the fraction of the remaining distance covered per
	// 60 Hz frame.
	Smoothing float32 `mapstructure:"smoothing"`
	// Snap drops weights below this to zero.
	Snap float32 `mapstructure:"snap"`
}

func DefaultLipSyncConfig() LipSyncConfig {
	return LipSyncConfig{
		Target:    0.6,
		Smoothing: 0.4,
		Snap:      0.01,
	}
}

// LipSyncController owns the five mouth shapes. A single openness weight
// is carried by whichever vowel is active, so at most one mouth shape is
// ever nonzero. Switching vowels eases the current shape closed, hands
// over to the pending shape once it reaches zero, then eases that open.
type LipSyncController struct {
	binding *Binding
	config  LipSyncConfig

	phoneme Phoneme
	active  Shape
	pending Shape
	weight  float32
}

func NewLipSyncController(b *Binding, cfg LipSyncConfig) *LipSyncController {
	def := DefaultLipSyncConfig()
	if cfg.Target <= 0 {
		cfg.Target = def.Target
	}
	if cfg.Smoothing <= 0 || cfg.Smoothing > 1 {
		cfg.Smoothing = def.Smoothing
	}
	if cfg.Snap <= 0 {
		cfg.Snap = def.Snap
	}
	return &LipSyncController{
		binding: b,
		config:  cfg,
		active:  -1,
		pending: -1,
	}
}

// SetPhoneme changes the target vowel. PhonemeNone closes the mouth.
func (l *LipSyncController) SetPhoneme(p Phoneme) {
	l.phoneme = p
	s, ok := p.Shape()
	switch {
	case !ok:
		l.pending = -1
	case l.active < 0 || l.weight == 0:
		l.active = s
		l.pending = -1
	case s == l.active:
		l.pending = -1
	default:
		l.pending = s
	}
}

func (l *LipSyncController) Phoneme() Phoneme {
	return l.phoneme
}

// Clear closes the mouth immediately.
func (l *LipSyncController) Clear() {
	l.phoneme = PhonemeNone
	l.active = -1
	l.pending = -1
	l.weight = 0
	l.apply()
}

func (l *LipSyncController) Update(dt float32) {
	target := float32(0)
	if l.phoneme != PhonemeNone && l.pending < 0 {
		target = l.config.Target
	}

	factor := l.config.Smoothing
	if dt > 0 {
		factor = 1 - float32(math.Pow(float64(1-l.config.Smoothing), float64(dt*60)))
	}
	l.weight += (target - l.weight) * factor

	if diff := target - l.weight; diff < l.config.Snap && diff > -l.config.Snap {
		l.weight = target
	}
	if l.weight == 0 {
		l.active = l.pending
		l.pending = -1
	}
	l.apply()
}

func (l *LipSyncController) apply() {
	for _, s := range mouthShapes {
		w := float32(0)
		if s == l.active {
			w = l.weight
		}
		l.binding.SetShape(s, w)
	}
}

// Weight is the current openness of the active mouth shape.
func (l *LipSyncController) Weight() float32 {
	return l.weight
}

// Active returns the mouth shape currently carrying weight.
func (l *LipSyncController) Active() (Shape, bool) {
	if l.active < 0 {
		return -1, false
	}
	return l.active, true
}

func (l *LipSyncController) IsSpeaking() bool {
	return l.weight > 0.05
}
