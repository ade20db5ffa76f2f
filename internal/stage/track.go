package stage

import (
	"errors"
	"time"

	"github.com/normanking/robinavatar/internal/reveal"
)

// ErrNoRenderer is returned by Play when no renderer is connected to
// play the track.
var ErrNoRenderer = errors.New("no renderer connected")

// RemoteTrack is a speech track played by the connected renderers. Its
// playback state is whatever they last reported; reports are applied on
// the frame loop goroutine, which is also the only goroutine that reads
// it.
type RemoteTrack struct {
	id          string
	contentType string
	audio       []byte
	hub         *Hub

	position time.Duration
	duration time.Duration
	known    bool
	paused   bool
	stopped  bool

	nextSub int
	subs    map[int]func(reveal.PlaybackEvent)
}

func newRemoteTrack(hub *Hub, id string, audio []byte, contentType string) *RemoteTrack {
	return &RemoteTrack{
		id:          id,
		contentType: contentType,
		audio:       audio,
		hub:         hub,
		paused:      true,
		subs:        make(map[int]func(reveal.PlaybackEvent)),
	}
}

func (t *RemoteTrack) ID() string {
	return t.id
}

func (t *RemoteTrack) ContentType() string {
	return t.contentType
}

func (t *RemoteTrack) Position() time.Duration {
	return t.position
}

func (t *RemoteTrack) Duration() (time.Duration, bool) {
	return t.duration, t.known
}

func (t *RemoteTrack) Paused() bool {
	return t.paused
}

func (t *RemoteTrack) Subscribe(fn func(reveal.PlaybackEvent)) func() {
	id := t.nextSub
	t.nextSub++
	t.subs[id] = fn
	return func() { delete(t.subs, id) }
}

// Play tells the renderers to fetch and start the track.
func (t *RemoteTrack) Play() error {
	if t.stopped {
		return errors.New("track stopped")
	}
	n := t.hub.broadcastMessage(TypeTrack, TrackMessage{
		Action:      TrackPlay,
		ID:          t.id,
		URL:         t.hub.audioURL(t.id),
		ContentType: t.contentType,
	})
	if n == 0 {
		return ErrNoRenderer
	}
	return nil
}

// Stop halts playback on the renderers and releases the audio. Reports
// that arrive afterwards are ignored.
func (t *RemoteTrack) Stop() {
	if t.stopped {
		return
	}
	t.stopped = true
	t.paused = true
	t.subs = map[int]func(reveal.PlaybackEvent){}
	t.hub.broadcastMessage(TypeTrack, TrackMessage{Action: TrackStop, ID: t.id})
	t.hub.forget(t.id)
}

// apply folds a renderer report into the track and notifies subscribers.
func (t *RemoteTrack) apply(msg AudioMessage) {
	if t.stopped {
		return
	}
	if d, ok := msg.KnownDuration(); ok {
		t.duration, t.known = d, true
	} else if msg.Duration != nil {
		t.duration, t.known = 0, false
	}
	if pos := msg.PositionDuration(); pos > t.position || msg.Event == AudioPlay {
		t.position = pos
	}

	switch msg.Event {
	case AudioPlay:
		t.paused = false
		t.emit(reveal.PlaybackEvent{Kind: reveal.EventPlay})
	case AudioPause:
		t.paused = true
	case AudioProgress:
		if t.paused && t.position > 0 {
			t.paused = false
		}
	case AudioEnded:
		if t.known {
			t.position = t.duration
		}
		t.paused = true
		t.emit(reveal.PlaybackEvent{Kind: reveal.EventEnded})
	case AudioError:
		t.paused = true
		reason := msg.Error
		if reason == "" {
			reason = "playback failed"
		}
		t.emit(reveal.PlaybackEvent{Kind: reveal.EventError, Err: errors.New(reason)})
	}
}

func (t *RemoteTrack) emit(ev reveal.PlaybackEvent) {
	for _, fn := range t.subs {
		fn(ev)
	}
}
