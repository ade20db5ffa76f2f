package reveal

import (
	"github.com/rs/zerolog"

	"github.com/normanking/robinavatar/internal/avatar3d"
	"github.com/normanking/robinavatar/internal/frameloop"
)

// Revealer runs at most one reveal cycle at a time:
//
//	Idle -> Armed -> Revealing -> Settling -> Idle
//
// Every scheduled callback carries the cycle id it was created for and
// does nothing once a newer cycle has started. It must only be used from
// the frame loop goroutine.
type Revealer struct {
	sched  frameloop.Scheduler
	sink   Sink
	config Config
	logger zerolog.Logger

	cycle uint64
	state State

	text     string
	runes    []rune
	revealed int

	expression avatar3d.ExpressionState
	phoneme    avatar3d.Phoneme
	fadeStep   int

	audio       Audio
	unsubscribe func()
	frame       frameloop.Handle
	timer       frameloop.Handle

	observers []func(Transition)
}

func New(sched frameloop.Scheduler, sink Sink, cfg Config, logger zerolog.Logger) *Revealer {
	def := DefaultConfig()
	if cfg.ProgressTimeout <= 0 {
		cfg.ProgressTimeout = def.ProgressTimeout
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = def.SettleDelay
	}
	if cfg.FadeInterval <= 0 {
		cfg.FadeInterval = def.FadeInterval
	}
	if cfg.FadeStep <= 0 {
		cfg.FadeStep = def.FadeStep
	}
	return &Revealer{
		sched:      sched,
		sink:       sink,
		config:     cfg,
		logger:     logger.With().Str("component", "revealer").Logger(),
		expression: avatar3d.NeutralState,
	}
}

// OnTransition registers an observer called after every state change.
func (r *Revealer) OnTransition(fn func(Transition)) {
	r.observers = append(r.observers, fn)
}

func (r *Revealer) State() State {
	return r.state
}

func (r *Revealer) Cycle() uint64 {
	return r.cycle
}

// Revealed is the number of codepoints shown so far in this cycle.
func (r *Revealer) Revealed() int {
	return r.revealed
}

// Active reports whether a cycle is waiting for or following playback.
func (r *Revealer) Active() bool {
	return r.state == StateArmed || r.state == StateRevealing
}

func (r *Revealer) Progress() Progress {
	return Progress{
		Cycle:      r.cycle,
		State:      r.state.String(),
		Revealed:   r.revealed,
		Total:      len(r.runes),
		Expression: r.expression.String(),
		Phoneme:    string(r.phoneme),
	}
}

// Begin starts a new cycle for text spoken by audio, cancelling whatever
// the previous cycle still had scheduled. A nil audio reveals everything
// on the next frame.
func (r *Revealer) Begin(text string, audio Audio) uint64 {
	prev := r.state
	r.release()

	r.cycle++
	id := r.cycle
	r.text = text
	r.runes = []rune(text)
	r.revealed = 0
	r.fadeStep = 0
	r.audio = audio

	r.expression = avatar3d.FullExpression(avatar3d.ClassifyEmotion(text))
	r.sink.SetExpression(r.expression)
	r.phoneme = avatar3d.PhonemeNone
	r.sink.SetPhoneme(r.phoneme)

	if prev != StateIdle {
		r.notify(id-1, prev, StateIdle, ReasonCancelled)
	}
	r.transition(StateArmed, ReasonBegin)

	r.logger.Debug().
		Uint64("cycle", id).
		Int("chars", len(r.runes)).
		Str("expression", r.expression.String()).
		Msg("Reveal armed")

	if audio != nil {
		r.unsubscribe = audio.Subscribe(func(ev PlaybackEvent) {
			if id == r.cycle {
				r.handleEvent(ev)
			}
		})
	}
	r.timer = r.sched.AfterFunc(r.config.ProgressTimeout, func() {
		if id != r.cycle || r.state != StateArmed {
			return
		}
		r.finalize(ReasonTimeout)
	})

	if audio == nil || !audio.Paused() {
		r.startRevealing(ReasonPlayback)
	} else {
		r.frame = r.sched.RequestFrame(func() { r.pollArmed(id) })
	}
	return id
}

// Finish reveals the full text now and moves on to the fade, as if
// playback had completed. It does nothing outside Armed and Revealing.
func (r *Revealer) Finish() {
	if r.Active() {
		r.finalize(ReasonFinish)
	}
}

// Cancel drops the current cycle and returns the face to neutral with the
// mouth closed. Nothing is written for the cycle afterwards.
func (r *Revealer) Cancel() {
	if r.state == StateIdle {
		return
	}
	prev, id := r.state, r.cycle
	r.release()
	r.expression = avatar3d.NeutralState
	r.sink.SetExpression(r.expression)
	r.phoneme = avatar3d.PhonemeNone
	r.sink.SetPhoneme(r.phoneme)
	r.notify(id, prev, StateIdle, ReasonCancelled)
}

func (r *Revealer) handleEvent(ev PlaybackEvent) {
	switch ev.Kind {
	case EventPlay:
		if r.state == StateArmed {
			r.startRevealing(ReasonPlayback)
		}
	case EventEnded:
		if r.Active() {
			r.finalize(ReasonEnded)
		}
	case EventError:
		if r.Active() {
			r.logger.Debug().Err(ev.Err).Uint64("cycle", r.cycle).Msg("Playback failed, revealing all")
			r.finalize(ReasonError)
		}
	}
}

// pollArmed catches playback that started without a play event.
func (r *Revealer) pollArmed(id uint64) {
	r.frame = 0
	if id != r.cycle || r.state != StateArmed {
		return
	}
	if !r.audio.Paused() {
		r.startRevealing(ReasonPlayback)
		return
	}
	r.frame = r.sched.RequestFrame(func() { r.pollArmed(id) })
}

func (r *Revealer) startRevealing(reason Reason) {
	id := r.cycle
	r.cancelTimer()
	r.cancelFrame()
	r.transition(StateRevealing, reason)
	r.frame = r.sched.RequestFrame(func() { r.sample(id) })
}

// sample runs once per frame while revealing.
func (r *Revealer) sample(id uint64) {
	r.frame = 0
	if id != r.cycle || r.state != StateRevealing {
		return
	}
	if r.audio == nil {
		r.finalize(ReasonUnknownDuration)
		return
	}
	duration, ok := r.audio.Duration()
	if !ok || duration <= 0 {
		r.finalize(ReasonUnknownDuration)
		return
	}

	fraction := float64(r.audio.Position()) / float64(duration)
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}

	if count := int(fraction * float64(len(r.runes))); count > r.revealed {
		r.revealed = count
		r.sink.SetText(id, string(r.runes[:count]), false)
		if p := avatar3d.PhonemeOf(r.runes[count-1]); p != r.phoneme {
			r.phoneme = p
			r.sink.SetPhoneme(p)
		}
	}

	if fraction >= 1 {
		r.finalize(ReasonComplete)
		return
	}
	r.frame = r.sched.RequestFrame(func() { r.sample(id) })
}

// finalize shows the full text exactly once, closes the mouth and
// schedules the fade back to neutral.
func (r *Revealer) finalize(reason Reason) {
	if !r.Active() {
		return
	}
	id := r.cycle
	r.cancelFrame()
	r.cancelTimer()
	r.unsubscribeAudio()

	r.revealed = len(r.runes)
	r.sink.SetText(id, r.text, true)
	if r.phoneme != avatar3d.PhonemeNone {
		r.phoneme = avatar3d.PhonemeNone
		r.sink.SetPhoneme(r.phoneme)
	}
	r.transition(StateSettling, reason)

	r.timer = r.sched.AfterFunc(r.config.SettleDelay, func() { r.fade(id) })
}

func (r *Revealer) fade(id uint64) {
	r.timer = 0
	if id != r.cycle || r.state != StateSettling {
		return
	}
	if r.expression.IsNeutral() {
		r.expression = avatar3d.NeutralState
		r.transition(StateIdle, ReasonFaded)
		return
	}

	r.fadeStep++
	blend := 1 - float32(r.fadeStep)*r.config.FadeStep
	if blend <= 0 {
		r.expression = avatar3d.NeutralState
		r.sink.SetExpression(r.expression)
		r.transition(StateIdle, ReasonFaded)
		return
	}
	r.expression.Blend = blend
	r.sink.SetExpression(r.expression)
	r.timer = r.sched.AfterFunc(r.config.FadeInterval, func() { r.fade(id) })
}

func (r *Revealer) transition(to State, reason Reason) {
	from := r.state
	r.state = to
	r.notify(r.cycle, from, to, reason)
}

func (r *Revealer) notify(cycle uint64, from, to State, reason Reason) {
	t := Transition{Cycle: cycle, From: from, To: to, Reason: reason}
	r.logger.Debug().
		Uint64("cycle", cycle).
		Str("from", from.String()).
		Str("to", to.String()).
		Str("reason", string(reason)).
		Msg("Reveal transition")
	for _, fn := range r.observers {
		fn(t)
	}
}

// release cancels everything the current cycle has scheduled.
func (r *Revealer) release() {
	r.cancelFrame()
	r.cancelTimer()
	r.unsubscribeAudio()
	r.audio = nil
	r.state = StateIdle
}

func (r *Revealer) cancelFrame() {
	if r.frame != 0 {
		r.sched.Cancel(r.frame)
		r.frame = 0
	}
}

func (r *Revealer) cancelTimer() {
	if r.timer != 0 {
		r.sched.Cancel(r.timer)
		r.timer = 0
	}
}

func (r *Revealer) unsubscribeAudio() {
	if r.unsubscribe != nil {
		r.unsubscribe()
		r.unsubscribe = nil
	}
}
