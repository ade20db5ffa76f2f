// Package stage connects renderers to the avatar session over a websocket.
// Renderers receive frame snapshots, transcript updates and audio to play;
// they send back pointer position, chat input and playback reports for
// the audio they were told to play.
package stage

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/normanking/robinavatar/internal/conversation"
)

// Server to client message types
const (
	TypeFrame   = "frame"
	TypeMessage = "message"
	TypeTrack   = "track"
	TypeStatus  = "status"
	TypeError   = "error"
)

// Client to server message types
const (
	TypePointer = "pointer"
	TypeChat    = "chat"
	TypeAudio   = "audio"
)

// Envelope wraps every message on the socket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func encode(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}

// TranscriptOp says whether a transcript message is new or grew.
type TranscriptOp string

const (
	OpAppend TranscriptOp = "append"
	OpUpdate TranscriptOp = "update"
	OpReset  TranscriptOp = "reset"
)

// TranscriptMessage carries transcript changes. A reset replaces the
// renderer's whole list with Messages.
type TranscriptMessage struct {
	Op       TranscriptOp           `json:"op"`
	Message  *conversation.Message  `json:"message,omitempty"`
	Messages []conversation.Message `json:"messages,omitempty"`
}

// TrackAction tells a renderer what to do with a track.
type TrackAction string

const (
	TrackPlay TrackAction = "play"
	TrackStop TrackAction = "stop"
)

// TrackMessage asks renderers to fetch and play, or stop, a speech track.
type TrackMessage struct {
	Action      TrackAction `json:"action"`
	ID          string      `json:"id"`
	URL         string      `json:"url,omitempty"`
	ContentType string      `json:"content_type,omitempty"`
}

// StatusMessage carries the busy indicator and connection info.
type StatusMessage struct {
	Busy    bool   `json:"busy"`
	State   string `json:"state"`
	Cycle   uint64 `json:"cycle"`
	Clients int    `json:"clients"`
}

type ErrorMessage struct {
	Message string `json:"message"`
}

// PointerMessage is the cursor position in renderer pixels.
type PointerMessage struct {
	X      float32 `json:"x"`
	Y      float32 `json:"y"`
	Width  float32 `json:"width"`
	Height float32 `json:"height"`
}

type ChatMessage struct {
	Message string `json:"message"`
}

// AudioEvent is what a renderer observed on the audio element.
type AudioEvent string

const (
	AudioPlay     AudioEvent = "play"
	AudioPause    AudioEvent = "pause"
	AudioProgress AudioEvent = "progress"
	AudioEnded    AudioEvent = "ended"
	AudioError    AudioEvent = "error"
)

// AudioMessage reports playback of a track. Position and Duration are in
// seconds; a missing, negative or non-finite duration means unknown.
type AudioMessage struct {
	Track    string     `json:"track"`
	Event    AudioEvent `json:"event"`
	Position float64    `json:"position"`
	Duration *float64   `json:"duration,omitempty"`
	Error    string     `json:"error,omitempty"`
}

// PositionDuration converts the reported position.
func (m AudioMessage) PositionDuration() time.Duration {
	if m.Position <= 0 || math.IsNaN(m.Position) || math.IsInf(m.Position, 0) {
		return 0
	}
	return time.Duration(m.Position * float64(time.Second))
}

// KnownDuration returns the reported duration and whether it is usable.
func (m AudioMessage) KnownDuration() (time.Duration, bool) {
	if m.Duration == nil {
		return 0, false
	}
	d := *m.Duration
	if d <= 0 || math.IsNaN(d) || math.IsInf(d, 0) {
		return 0, false
	}
	return time.Duration(d * float64(time.Second)), true
}
