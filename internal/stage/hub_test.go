package stage

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/robinavatar/internal/bus"
	"github.com/normanking/robinavatar/internal/frameloop"
)

type stageFixture struct {
	hub    *Hub
	loop   *frameloop.Manual
	server *httptest.Server
}

func newStageFixture(t *testing.T, cfg Config) *stageFixture {
	t.Helper()
	loop := frameloop.NewManual(0)
	hub := New(cfg, loop, bus.NewEventBus(), zerolog.Nop())
	mux := http.NewServeMux()
	hub.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return &stageFixture{hub: hub, loop: loop, server: srv}
}

func (f *stageFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return f.hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	return conn
}

// flushUntil runs posted renderer input until cond holds.
func (f *stageFixture) flushUntil(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		f.loop.Flush()
		return cond()
	}, time.Second, 5*time.Millisecond)
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func writeEnvelope(t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	data, err := encode(msgType, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func TestHubTrackRoundTrip(t *testing.T) {
	f := newStageFixture(t, DefaultConfig())
	conn := f.dial(t)

	loaded, err := f.hub.Load([]byte("ID3-audio"), "audio/mpeg")
	require.NoError(t, err)
	track := loaded.(*RemoteTrack)
	require.NoError(t, track.Play())

	env := readEnvelope(t, conn)
	require.Equal(t, TypeTrack, env.Type)
	var msg TrackMessage
	require.NoError(t, json.Unmarshal(env.Payload, &msg))
	assert.Equal(t, TrackPlay, msg.Action)
	assert.Equal(t, track.ID(), msg.ID)
	assert.Equal(t, "/api/audio/"+track.ID(), msg.URL)

	resp, err := http.Get(f.server.URL + msg.URL)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "audio/mpeg", resp.Header.Get("Content-Type"))
	assert.Equal(t, "ID3-audio", string(body))

	writeEnvelope(t, conn, TypeAudio, AudioMessage{Track: track.ID(), Event: AudioPlay, Duration: seconds(2)})
	f.flushUntil(t, func() bool { return !track.Paused() })

	track.Stop()
	env = readEnvelope(t, conn)
	require.NoError(t, json.Unmarshal(env.Payload, &msg))
	assert.Equal(t, TrackStop, msg.Action)

	resp, err = http.Get(f.server.URL + "/api/audio/" + track.ID())
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHubDispatchesInput(t *testing.T) {
	f := newStageFixture(t, DefaultConfig())

	var connected string
	var pointer PointerMessage
	var chats []string
	f.hub.OnConnect(func(id string) { connected = id })
	f.hub.OnPointer(func(p PointerMessage) { pointer = p })
	f.hub.OnChat(func(id, text string) error {
		chats = append(chats, text)
		if text == "again" {
			return errors.New("a reply is still in progress")
		}
		return nil
	})

	conn := f.dial(t)
	f.flushUntil(t, func() bool { return connected != "" })

	writeEnvelope(t, conn, TypePointer, PointerMessage{X: 10, Y: 20, Width: 100, Height: 200})
	writeEnvelope(t, conn, TypeChat, ChatMessage{Message: "hello"})
	writeEnvelope(t, conn, TypeChat, ChatMessage{Message: "again"})
	f.flushUntil(t, func() bool { return len(chats) == 2 })

	assert.Equal(t, PointerMessage{X: 10, Y: 20, Width: 100, Height: 200}, pointer)
	assert.Equal(t, []string{"hello", "again"}, chats)

	env := readEnvelope(t, conn)
	assert.Equal(t, TypeError, env.Type)
	assert.Contains(t, string(env.Payload), "still in progress")
}

func TestHubRejectsUnknownMessages(t *testing.T) {
	f := newStageFixture(t, DefaultConfig())
	conn := f.dial(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"dance"}`)))
	env := readEnvelope(t, conn)
	assert.Equal(t, TypeError, env.Type)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	env = readEnvelope(t, conn)
	assert.Equal(t, TypeError, env.Type)

	// The connection survives malformed input.
	assert.Equal(t, 1, f.hub.ClientCount())
}

func TestHubBroadcastAndDisconnect(t *testing.T) {
	f := newStageFixture(t, DefaultConfig())
	conn := f.dial(t)

	require.NoError(t, f.hub.Broadcast(TypeStatus, StatusMessage{Busy: true, State: "revealing", Clients: 1}))
	env := readEnvelope(t, conn)
	var status StatusMessage
	require.NoError(t, json.Unmarshal(env.Payload, &status))
	assert.True(t, status.Busy)
	assert.Equal(t, "revealing", status.State)

	conn.Close()
	require.Eventually(t, func() bool { return f.hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
	assert.Error(t, f.hub.Send("nobody", TypeStatus, StatusMessage{}))
}

func TestHubEvictsOldTracks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTracks = 2
	hub := New(cfg, frameloop.NewManual(0), nil, zerolog.Nop())

	var ids []string
	for range 3 {
		tr, err := hub.Load([]byte("x"), "audio/wav")
		require.NoError(t, err)
		ids = append(ids, tr.ID())
	}

	assert.Nil(t, hub.track(ids[0]))
	assert.NotNil(t, hub.track(ids[1]))
	assert.NotNil(t, hub.track(ids[2]))

	_, err := hub.Load(nil, "")
	assert.Error(t, err)
}

func TestHubCheckOrigin(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowedOrigins = []string{"http://localhost:3000"}
	hub := New(cfg, frameloop.NewManual(0), nil, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	assert.True(t, hub.checkOrigin(req))

	req.Header.Set("Origin", "http://evil.example")
	assert.False(t, hub.checkOrigin(req))
}
