// Package reveal synchronizes progressive text reveal, lip sync phonemes
// and the expression fade-back to the playback position of a speech track.
package reveal

import (
	"time"

	"github.com/normanking/robinavatar/internal/avatar3d"
)

type State int

const (
	StateIdle State = iota
	StateArmed
	StateRevealing
	StateSettling
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateRevealing:
		return "revealing"
	case StateSettling:
		return "settling"
	}
	return "unknown"
}

// Reason explains why a transition happened.
type Reason string

const (
	ReasonBegin           Reason = "begin"
	ReasonPlayback        Reason = "playback"
	ReasonComplete        Reason = "complete"
	ReasonEnded           Reason = "ended"
	ReasonTimeout         Reason = "timeout"
	ReasonUnknownDuration Reason = "unknown_duration"
	ReasonError           Reason = "error"
	ReasonFinish          Reason = "finish"
	ReasonFaded           Reason = "faded"
	ReasonCancelled       Reason = "cancelled"
)

type Transition struct {
	Cycle  uint64
	From   State
	To     State
	Reason Reason
}

type EventKind int

const (
	EventPlay EventKind = iota
	EventEnded
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventPlay:
		return "play"
	case EventEnded:
		return "ended"
	case EventError:
		return "error"
	}
	return "unknown"
}

type PlaybackEvent struct {
	Kind EventKind
	Err  error
}

// Audio is a playing (or about to play) speech track. All methods and
// subscribed callbacks are used on the frame loop goroutine.
type Audio interface {
	Position() time.Duration
	// Duration reports false while the length is unknown or unbounded.
	Duration() (time.Duration, bool)
	Paused() bool
	Subscribe(fn func(PlaybackEvent)) (unsubscribe func())
}

// Sink receives everything a cycle writes. Cycle ids let the sink tell a
// new response from an update of the current one.
type Sink interface {
	SetExpression(state avatar3d.ExpressionState)
	SetPhoneme(p avatar3d.Phoneme)
	SetText(cycle uint64, text string, final bool)
}

type Config struct {
	ProgressTimeout time.Duration `mapstructure:"progress_timeout"`
	SettleDelay     time.Duration `mapstructure:"settle_delay"`
	FadeInterval    time.Duration `mapstructure:"fade_interval"`
	FadeStep        float32       `mapstructure:"fade_step"`
}

func DefaultConfig() Config {
	return Config{
		ProgressTimeout: 1500 * time.Millisecond,
		SettleDelay:     300 * time.Millisecond,
		FadeInterval:    30 * time.Millisecond,
		FadeStep:        0.08,
	}
}

// Progress is a point-in-time view of the current cycle.
type Progress struct {
	Cycle      uint64 `json:"cycle"`
	State      string `json:"state"`
	Revealed   int    `json:"revealed"`
	Total      int    `json:"total"`
	Expression string `json:"expression"`
	Phoneme    string `json:"phoneme"`
}
