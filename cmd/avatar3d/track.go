package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/normanking/robinavatar/internal/conversation"
	"github.com/normanking/robinavatar/internal/frameloop"
	"github.com/normanking/robinavatar/internal/reveal"
)

var errPlaybackFailed = errors.New("simulated playback failure")

// simPlayer stands in for a renderer's audio element. Tracks play for
// PerByte per audio byte of loop time, then end.
type simPlayer struct {
	sched   frameloop.Scheduler
	perByte time.Duration
	unknown bool
	failAt  float64

	tracks []*simTrack
	seq    int
}

func (p *simPlayer) Load(audio []byte, contentType string) (conversation.Track, error) {
	if len(audio) == 0 {
		return nil, errors.New("no audio")
	}
	p.seq++
	t := &simTrack{
		id:          fmt.Sprintf("sim-%d", p.seq),
		contentType: contentType,
		sched:       p.sched,
		length:      time.Duration(len(audio)) * p.perByte,
		unknown:     p.unknown,
		paused:      true,
	}
	if p.failAt > 0 {
		t.failAt = time.Duration(p.failAt * float64(t.length))
	}
	p.tracks = append(p.tracks, t)
	return t, nil
}

// tick runs every frame and ends or fails tracks whose time is up.
func (p *simPlayer) tick(float32) {
	live := p.tracks[:0]
	for _, t := range p.tracks {
		if t.tick() {
			live = append(live, t)
		}
	}
	p.tracks = live
}

type simTrack struct {
	id          string
	contentType string
	sched       frameloop.Scheduler
	length      time.Duration
	unknown     bool
	failAt      time.Duration

	paused  bool
	stopped bool
	started time.Duration
	at      time.Duration
	subs    map[int]func(reveal.PlaybackEvent)
	nextSub int
}

func (t *simTrack) ID() string { return t.id }

func (t *simTrack) Position() time.Duration {
	if t.paused {
		return t.at
	}
	pos := t.sched.Now() - t.started
	if pos > t.length {
		pos = t.length
	}
	return pos
}

func (t *simTrack) Duration() (time.Duration, bool) {
	if t.unknown {
		return 0, false
	}
	return t.length, true
}

func (t *simTrack) Paused() bool { return t.paused }

func (t *simTrack) Subscribe(fn func(reveal.PlaybackEvent)) func() {
	if t.subs == nil {
		t.subs = make(map[int]func(reveal.PlaybackEvent))
	}
	id := t.nextSub
	t.nextSub++
	t.subs[id] = fn
	return func() { delete(t.subs, id) }
}

func (t *simTrack) Play() error {
	if t.stopped {
		return errors.New("track stopped")
	}
	t.paused = false
	t.started = t.sched.Now() - t.at
	t.emit(reveal.PlaybackEvent{Kind: reveal.EventPlay})
	return nil
}

func (t *simTrack) Stop() {
	t.at = t.Position()
	t.paused = true
	t.stopped = true
	t.subs = nil
}

// tick reports whether the track is still live.
func (t *simTrack) tick() bool {
	if t.stopped {
		return false
	}
	if t.paused {
		return true
	}
	pos := t.Position()
	switch {
	case t.failAt > 0 && pos >= t.failAt:
		t.at = pos
		t.paused = true
		t.emit(reveal.PlaybackEvent{Kind: reveal.EventError, Err: errPlaybackFailed})
		return false
	case pos >= t.length:
		t.at = t.length
		t.paused = true
		t.emit(reveal.PlaybackEvent{Kind: reveal.EventEnded})
		return false
	}
	return true
}

func (t *simTrack) emit(ev reveal.PlaybackEvent) {
	for _, fn := range t.subs {
		fn(ev)
	}
}
