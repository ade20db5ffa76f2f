package avatar

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/normanking/robinavatar/internal/avatar3d"
	"github.com/normanking/robinavatar/internal/bus"
	"github.com/normanking/robinavatar/internal/conversation"
	"github.com/normanking/robinavatar/internal/frameloop"
	"github.com/normanking/robinavatar/internal/reveal"
	"github.com/normanking/robinavatar/internal/stage"
)

// Loop is the frame loop a session runs on. frameloop.Loop and
// frameloop.Manual both satisfy it.
type Loop interface {
	frameloop.Scheduler
	frameloop.Poster
	OnFrame(fn frameloop.FrameFunc)
}

// Stage is where frames and transcript changes go and where renderer
// input comes from. stage.Hub satisfies it.
type Stage interface {
	conversation.Player
	Broadcast(msgType string, payload any) error
	Send(clientID, msgType string, payload any) error
	ClientCount() int
	OnChat(fn func(clientID, text string) error)
	OnPointer(fn func(stage.PointerMessage))
	OnConnect(fn func(clientID string))
}

type Config struct {
	// FrameEvery sends a frame to renderers every n loop frames (default: 1)
	FrameEvery int `mapstructure:"frame_every"`

	Reveal     reveal.Config                 `mapstructure:"reveal"`
	Transcript conversation.TranscriptConfig `mapstructure:"transcript"`
	Controller conversation.ControllerConfig `mapstructure:"controller"`
}

func DefaultConfig() Config {
	return Config{
		FrameEvery: 1,
		Reveal:     reveal.DefaultConfig(),
		Transcript: conversation.DefaultTranscriptConfig(),
		Controller: conversation.DefaultControllerConfig(),
	}
}

type Deps struct {
	Loop   Loop
	Avatar *avatar3d.Avatar
	Stage  Stage
	// Player defaults to Stage.
	Player conversation.Player
	Chat   conversation.ChatClient
	Speech conversation.SpeechClient
	Bus    *bus.EventBus
}

// Session owns one avatar and its conversation. Everything except the
// constructor and Snapshot runs on the loop goroutine.
type Session struct {
	config Config
	loop   Loop
	avatar *avatar3d.Avatar
	stage  Stage
	bus    *bus.EventBus
	logger zerolog.Logger

	revealer   *reveal.Revealer
	transcript *conversation.Transcript
	controller *conversation.Controller

	frames  uint64
	last    State
	onState func(State)

	mu    sync.RWMutex
	frame Frame

	unsubscribe func()
}

// NewSession wires the revealer, transcript and controller together and
// hooks them onto the loop and the stage.
func NewSession(ctx context.Context, deps Deps, cfg Config, logger zerolog.Logger) *Session {
	if cfg.FrameEvery <= 0 {
		cfg.FrameEvery = 1
	}
	if deps.Bus == nil {
		deps.Bus = bus.NewEventBus()
	}
	if deps.Player == nil && deps.Stage != nil {
		deps.Player = deps.Stage
	}
	if deps.Avatar == nil {
		deps.Avatar = avatar3d.NewAvatar(nil, avatar3d.DefaultOptions())
	}

	s := &Session{
		config: cfg,
		loop:   deps.Loop,
		avatar: deps.Avatar,
		stage:  deps.Stage,
		bus:    deps.Bus,
		logger: logger.With().Str("component", "session").Logger(),
	}

	s.transcript = conversation.NewTranscript(cfg.Transcript, s.bus)
	s.revealer = reveal.New(s.loop, s, cfg.Reveal, logger)
	s.revealer.OnTransition(s.onTransition)
	s.controller = conversation.NewController(ctx, conversation.ControllerDeps{
		Poster:     s.loop,
		Chat:       deps.Chat,
		Speech:     deps.Speech,
		Player:     deps.Player,
		Revealer:   s.revealer,
		Transcript: s.transcript,
		Bus:        s.bus,
	}, cfg.Controller, logger)

	s.unsubscribe = s.bus.SubscribeMultiple(
		[]bus.EventType{bus.EventTypeMessageAppended, bus.EventTypeMessageUpdated},
		s.forwardMessage,
	)

	if s.stage != nil {
		s.stage.OnChat(func(_ string, text string) error { return s.controller.Submit(text) })
		s.stage.OnPointer(s.pointer)
		s.stage.OnConnect(s.greet)
	}
	s.loop.OnFrame(s.tick)

	s.last = s.state()
	s.logBinding()
	return s
}

func (s *Session) Avatar() *avatar3d.Avatar {
	return s.avatar
}

func (s *Session) Revealer() *reveal.Revealer {
	return s.revealer
}

func (s *Session) Controller() *conversation.Controller {
	return s.controller
}

func (s *Session) Transcript() *conversation.Transcript {
	return s.transcript
}

// OnState registers a callback for state changes, checked once per frame.
func (s *Session) OnState(fn func(State)) {
	s.onState = fn
}

// Submit sends a user message, as if typed into a renderer.
func (s *Session) Submit(text string) error {
	return s.controller.Submit(text)
}

// SetRig swaps the avatar asset and rebinds it.
func (s *Session) SetRig(rig *avatar3d.Rig) {
	s.avatar.SetRig(rig)
	s.logBinding()
}

// Snapshot returns the last frame built by the loop. Safe from any
// goroutine.
func (s *Session) Snapshot() Frame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frame
}

func (s *Session) Close() {
	s.controller.Stop()
	s.revealer.Cancel()
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// SetExpression, SetPhoneme and SetText make the session the revealer's
// sink.
func (s *Session) SetExpression(state avatar3d.ExpressionState) {
	s.avatar.SetExpression(state)
	s.bus.Publish(bus.Event{
		Type: bus.EventTypeExpressionChanged,
		Data: map[string]any{"expression": state.String()},
	})
}

func (s *Session) SetPhoneme(p avatar3d.Phoneme) {
	s.avatar.SetPhoneme(p)
	s.bus.Publish(bus.Event{
		Type: bus.EventTypePhonemeChanged,
		Data: map[string]any{"phoneme": string(p)},
	})
}

func (s *Session) SetText(cycle uint64, text string, final bool) {
	s.transcript.SetReply(cycle, text, final)
}

func (s *Session) state() State {
	progress := s.revealer.Progress()
	busy := s.controller.Busy()
	return State{
		Expression: s.avatar.Expression().String(),
		Phoneme:    string(s.avatar.Phoneme()),
		Reveal:     progress.State,
		Cycle:      progress.Cycle,
		IsSpeaking: s.revealer.State() == reveal.StateRevealing,
		IsThinking: busy && !s.revealer.Active(),
		Busy:       busy,
	}
}

// tick is the per-frame hook: advance animation, publish the frame.
func (s *Session) tick(dt float32) {
	s.avatar.Update(s.loop.Now(), dt)
	s.frames++

	st := s.state()
	frame := Frame{State: st, Pose: s.avatar.Snapshot()}
	s.mu.Lock()
	s.frame = frame
	s.mu.Unlock()

	if st != s.last {
		s.last = st
		if s.onState != nil {
			s.onState(st)
		}
		s.broadcastStatus(st)
	}

	if s.stage != nil && s.frames%uint64(s.config.FrameEvery) == 0 && s.stage.ClientCount() > 0 {
		if err := s.stage.Broadcast(stage.TypeFrame, frame); err != nil {
			s.logger.Error().Err(err).Msg("Failed to broadcast frame")
		}
	}
}

func (s *Session) status(st State) stage.StatusMessage {
	clients := 0
	if s.stage != nil {
		clients = s.stage.ClientCount()
	}
	return stage.StatusMessage{Busy: st.Busy, State: st.Reveal, Cycle: st.Cycle, Clients: clients}
}

func (s *Session) broadcastStatus(st State) {
	if s.stage == nil {
		return
	}
	if err := s.stage.Broadcast(stage.TypeStatus, s.status(st)); err != nil {
		s.logger.Error().Err(err).Msg("Failed to broadcast status")
	}
}

// greet brings a newly connected renderer up to date.
func (s *Session) greet(clientID string) {
	history := s.transcript.Messages()
	if err := s.stage.Send(clientID, stage.TypeMessage, stage.TranscriptMessage{Op: stage.OpReset, Messages: history}); err != nil {
		s.logger.Warn().Err(err).Str("client", clientID).Msg("Failed to send transcript")
	}
	_ = s.stage.Send(clientID, stage.TypeStatus, s.status(s.last))
}

func (s *Session) pointer(p stage.PointerMessage) {
	s.avatar.SetGaze(avatar3d.NormalizePointer(float64(p.X), float64(p.Y), float64(p.Width), float64(p.Height)))
}

// forwardMessage runs on a bus goroutine; the stage is safe to use from
// there.
func (s *Session) forwardMessage(e bus.Event) {
	if s.stage == nil {
		return
	}
	msg, ok := e.Data["message"].(conversation.Message)
	if !ok {
		return
	}
	op := stage.OpAppend
	if e.Type == bus.EventTypeMessageUpdated {
		op = stage.OpUpdate
	}
	if err := s.stage.Broadcast(stage.TypeMessage, stage.TranscriptMessage{Op: op, Message: &msg}); err != nil {
		s.logger.Error().Err(err).Msg("Failed to broadcast message")
	}
}

func (s *Session) onTransition(t reveal.Transition) {
	s.bus.Publish(bus.Event{
		Type: bus.EventTypeRevealTransition,
		Data: map[string]any{
			"cycle":  t.Cycle,
			"from":   t.From.String(),
			"to":     t.To.String(),
			"reason": string(t.Reason),
		},
	})
}

func (s *Session) logBinding() {
	report := s.avatar.Binding().Report()
	ev := s.logger.Info()
	if len(report.Disabled) > 0 {
		ev = s.logger.Warn().Strs("disabled", report.Disabled)
	}
	ev.Strs("face_parts", report.FaceParts).
		Bool("blink", report.Blink != "").
		Int("hair", report.HairJoints).
		Int("ears", report.EarJoints).
		Msg("Avatar bound")

	s.bus.Publish(bus.Event{
		Type: bus.EventTypeRigLoaded,
		Data: map[string]any{"report": report},
	})
}
