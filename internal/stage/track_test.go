package stage

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/robinavatar/internal/frameloop"
	"github.com/normanking/robinavatar/internal/reveal"
)

func seconds(v float64) *float64 {
	return &v
}

func newTestTrack(t *testing.T) (*Hub, *RemoteTrack, *[]reveal.EventKind) {
	t.Helper()
	hub := New(DefaultConfig(), frameloop.NewManual(0), nil, zerolog.Nop())
	loaded, err := hub.Load([]byte("ID3"), "")
	require.NoError(t, err)
	track := loaded.(*RemoteTrack)

	var events []reveal.EventKind
	track.Subscribe(func(ev reveal.PlaybackEvent) { events = append(events, ev.Kind) })
	return hub, track, &events
}

func TestRemoteTrackLifecycle(t *testing.T) {
	_, track, events := newTestTrack(t)

	assert.True(t, track.Paused())
	assert.Equal(t, "audio/mpeg", track.ContentType())
	_, known := track.Duration()
	assert.False(t, known)

	track.apply(AudioMessage{Track: track.ID(), Event: AudioPlay, Duration: seconds(4)})
	assert.False(t, track.Paused())
	d, known := track.Duration()
	assert.True(t, known)
	assert.Equal(t, 4*time.Second, d)

	track.apply(AudioMessage{Event: AudioProgress, Position: 1.5})
	assert.Equal(t, 1500*time.Millisecond, track.Position())

	// Stale progress never moves the position back.
	track.apply(AudioMessage{Event: AudioProgress, Position: 1.0})
	assert.Equal(t, 1500*time.Millisecond, track.Position())

	track.apply(AudioMessage{Event: AudioEnded, Position: 3.9})
	assert.Equal(t, 4*time.Second, track.Position())
	assert.True(t, track.Paused())

	assert.Equal(t, []reveal.EventKind{reveal.EventPlay, reveal.EventEnded}, *events)
}

func TestRemoteTrackUnknownDuration(t *testing.T) {
	_, track, _ := newTestTrack(t)

	track.apply(AudioMessage{Event: AudioPlay, Duration: seconds(3)})
	track.apply(AudioMessage{Event: AudioProgress, Position: 0.5, Duration: seconds(-1)})

	_, known := track.Duration()
	assert.False(t, known)
}

func TestRemoteTrackError(t *testing.T) {
	_, track, events := newTestTrack(t)

	var errText string
	track.Subscribe(func(ev reveal.PlaybackEvent) {
		if ev.Err != nil {
			errText = ev.Err.Error()
		}
	})
	track.apply(AudioMessage{Event: AudioError, Error: "decode failed"})

	assert.Equal(t, []reveal.EventKind{reveal.EventError}, *events)
	assert.Equal(t, "decode failed", errText)
}

func TestRemoteTrackStopIgnoresLaterReports(t *testing.T) {
	hub, track, events := newTestTrack(t)

	track.Stop()
	track.apply(AudioMessage{Event: AudioPlay, Duration: seconds(2)})

	assert.Empty(t, *events)
	assert.True(t, track.Paused())
	assert.Nil(t, hub.track(track.ID()))
	assert.Error(t, track.Play())
}

func TestRemoteTrackUnsubscribe(t *testing.T) {
	_, track, events := newTestTrack(t)

	count := 0
	unsubscribe := track.Subscribe(func(reveal.PlaybackEvent) { count++ })
	unsubscribe()
	track.apply(AudioMessage{Event: AudioPlay})

	assert.Zero(t, count)
	assert.Len(t, *events, 1)
}

func TestPlayWithoutRenderer(t *testing.T) {
	_, track, _ := newTestTrack(t)
	assert.ErrorIs(t, track.Play(), ErrNoRenderer)
}

func TestAudioMessageDurations(t *testing.T) {
	tests := []struct {
		name  string
		dur   *float64
		known bool
	}{
		{"absent", nil, false},
		{"negative", seconds(-1), false},
		{"zero", seconds(0), false},
		{"positive", seconds(2.5), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, known := AudioMessage{Duration: tt.dur}.KnownDuration()
			assert.Equal(t, tt.known, known)
		})
	}
}
