package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/robinavatar/internal/bus"
	"github.com/normanking/robinavatar/internal/frameloop"
	"github.com/normanking/robinavatar/internal/reveal"
)

// ErrorText is appended as an AI message when the chat or speech request
// fails.
const ErrorText = "Error: Could not connect to AI."

var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrBusy         = errors.New("a reply is still in progress")
)

// Track is a loaded speech resource the revealer can follow.
type Track interface {
	reveal.Audio
	ID() string
	Play() error
	Stop()
}

// Player turns synthesized audio into a playable Track.
type Player interface {
	Load(audio []byte, contentType string) (Track, error)
}

// Revealer is the part of reveal.Revealer the controller drives.
type Revealer interface {
	Begin(text string, audio reveal.Audio) uint64
	Finish()
	Active() bool
}

type ControllerConfig struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{RequestTimeout: 90 * time.Second}
}

// Controller runs one request/response cycle at a time: user message,
// chat reply, synthesized speech, then the synchronized reveal.
//
// Submit and everything touching controller state run on the frame loop
// goroutine; network calls run on their own goroutine and post results
// back through the Poster.
type Controller struct {
	ctx      context.Context
	poster   frameloop.Poster
	chat     ChatClient
	speech   SpeechClient
	player   Player
	revealer Revealer

	transcript *Transcript
	bus        *bus.EventBus
	config     ControllerConfig
	logger     zerolog.Logger

	pending bool
	current Track
}

type ControllerDeps struct {
	Poster     frameloop.Poster
	Chat       ChatClient
	Speech     SpeechClient
	Player     Player
	Revealer   Revealer
	Transcript *Transcript
	Bus        *bus.EventBus
}

func NewController(ctx context.Context, deps ControllerDeps, cfg ControllerConfig, logger zerolog.Logger) *Controller {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultControllerConfig().RequestTimeout
	}
	if deps.Transcript == nil {
		deps.Transcript = NewTranscript(DefaultTranscriptConfig(), deps.Bus)
	}
	return &Controller{
		ctx:        ctx,
		poster:     deps.Poster,
		chat:       deps.Chat,
		speech:     deps.Speech,
		player:     deps.Player,
		revealer:   deps.Revealer,
		transcript: deps.Transcript,
		bus:        deps.Bus,
		config:     cfg,
		logger:     logger.With().Str("component", "conversation").Logger(),
	}
}

func (c *Controller) Transcript() *Transcript {
	return c.transcript
}

// Busy reports whether a request is outstanding or a reply is still being
// revealed. Input should be disabled while it is true.
func (c *Controller) Busy() bool {
	return c.pending || c.revealer.Active()
}

// Current returns the track that is playing, if any.
func (c *Controller) Current() Track {
	return c.current
}

// Submit starts a cycle for text. It returns immediately; the reply
// arrives through the transcript and the revealer.
func (c *Controller) Submit(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	if c.Busy() {
		return ErrBusy
	}

	c.transcript.Append(SenderUser, text)
	c.pending = true
	c.publish(bus.EventTypeChatRequested, map[string]any{"message": text})

	go c.request(text)
	return nil
}

// request runs off the loop.
func (c *Controller) request(text string) {
	ctx, cancel := context.WithTimeout(c.ctx, c.config.RequestTimeout)
	defer cancel()

	start := time.Now()
	reply, err := c.chat.Chat(ctx, text)
	if err != nil {
		c.post(func() { c.fail(bus.EventTypeChatFailed, err) })
		return
	}
	chatLatency := time.Since(start)

	c.post(func() {
		c.publish(bus.EventTypeChatCompleted, map[string]any{
			"reply":   reply,
			"latency": chatLatency,
		})
		c.stopCurrent()
	})

	start = time.Now()
	speech, err := c.speech.Synthesize(ctx, reply)
	if err != nil {
		c.post(func() { c.fail(bus.EventTypeSpeechFailed, err) })
		return
	}
	speechLatency := time.Since(start)

	c.post(func() {
		c.publish(bus.EventTypeSpeechCompleted, map[string]any{
			"bytes":   len(speech.Audio),
			"latency": speechLatency,
		})
		c.speak(reply, speech)
	})
}

// speak hands the reply to the revealer. A track that will not load or
// play still gets its text revealed, just without audio to follow.
func (c *Controller) speak(reply string, speech *Speech) {
	c.pending = false
	c.stopCurrent()

	track, err := c.player.Load(speech.Audio, speech.ContentType)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Speech could not be loaded, revealing without audio")
		c.revealer.Begin(reply, nil)
		return
	}
	c.current = track
	c.revealer.Begin(reply, track)
	if err := track.Play(); err != nil {
		c.logger.Warn().Err(err).Str("track", track.ID()).Msg("Playback did not start")
	}
}

func (c *Controller) fail(eventType bus.EventType, err error) {
	c.pending = false
	c.logger.Error().Err(err).Str("stage", string(eventType)).Msg("Conversation request failed")
	if c.revealer.Active() {
		c.revealer.Finish()
	}
	c.transcript.Append(SenderAI, ErrorText)
	c.publish(eventType, map[string]any{"error": err.Error()})
}

func (c *Controller) stopCurrent() {
	if c.current == nil {
		return
	}
	c.current.Stop()
	c.current = nil
}

// Stop releases the playing track and finishes any active reveal.
func (c *Controller) Stop() {
	c.stopCurrent()
	if c.revealer.Active() {
		c.revealer.Finish()
	}
}

func (c *Controller) post(fn func()) {
	if !c.poster.Post(fn) {
		c.logger.Debug().Msg("Frame loop stopped, dropping conversation result")
	}
}

func (c *Controller) publish(eventType bus.EventType, data map[string]any) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(bus.Event{Type: eventType, Data: data})
}
