package stage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/normanking/robinavatar/internal/bus"
	"github.com/normanking/robinavatar/internal/conversation"
	"github.com/normanking/robinavatar/internal/frameloop"
)

// Config configures the Hub.
type Config struct {
	// AudioPath prefixes track URLs handed to renderers (default: /api/audio/)
	AudioPath string `mapstructure:"audio_path"`

	// AllowedOrigins restricts websocket origins; empty allows all
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	PongTimeout    time.Duration `mapstructure:"pong_timeout"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`

	// MaxTracks bounds how many tracks stay fetchable (default: 8)
	MaxTracks int `mapstructure:"max_tracks"`
}

func DefaultConfig() Config {
	return Config{
		AudioPath:      "/api/audio/",
		WriteTimeout:   10 * time.Second,
		PongTimeout:    60 * time.Second,
		SendBuffer:     64,
		MaxMessageSize: 64 << 10,
		MaxTracks:      8,
	}
}

type client struct {
	id     string
	remote string
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// Hub fans session output out to every connected renderer and feeds their
// input back onto the frame loop. It also acts as the conversation
// Player: tracks it loads are played by the renderers.
type Hub struct {
	config   Config
	poster   frameloop.Poster
	bus      *bus.EventBus
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client
	tracks  map[string]*RemoteTrack
	order   []string

	// Handlers run on the frame loop goroutine.
	onChat    func(clientID, text string) error
	onPointer func(PointerMessage)
	onConnect func(clientID string)
}

// New creates a hub that posts renderer input through poster. eventBus
// may be nil.
func New(cfg Config, poster frameloop.Poster, eventBus *bus.EventBus, logger zerolog.Logger) *Hub {
	def := DefaultConfig()
	if cfg.AudioPath == "" {
		cfg.AudioPath = def.AudioPath
	}
	if !strings.HasSuffix(cfg.AudioPath, "/") {
		cfg.AudioPath += "/"
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = def.PongTimeout
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = def.SendBuffer
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if cfg.MaxTracks <= 0 {
		cfg.MaxTracks = def.MaxTracks
	}

	h := &Hub{
		config:  cfg,
		poster:  poster,
		bus:     eventBus,
		logger:  logger.With().Str("component", "stage").Logger(),
		clients: make(map[string]*client),
		tracks:  make(map[string]*RemoteTrack),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) OnChat(fn func(clientID, text string) error) {
	h.onChat = fn
}

func (h *Hub) OnPointer(fn func(PointerMessage)) {
	h.onPointer = fn
}

// OnConnect registers a callback for new renderers, typically used to
// send them the transcript so far.
func (h *Hub) OnConnect(fn func(clientID string)) {
	h.onConnect = fn
}

// RegisterRoutes registers the websocket and audio routes on mux.
func (h *Hub) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", h.ServeWS)
	mux.HandleFunc("GET "+h.config.AudioPath+"{id}", h.ServeAudio)
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.config.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || slices.Contains(h.config.AllowedOrigins, origin)
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Load stores audio under a fresh track id. Only the most recent
// MaxTracks tracks stay fetchable.
func (h *Hub) Load(audio []byte, contentType string) (conversation.Track, error) {
	if len(audio) == 0 {
		return nil, errors.New("empty audio")
	}
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	t := newRemoteTrack(h, uuid.NewString(), audio, contentType)

	h.mu.Lock()
	h.tracks[t.id] = t
	h.order = append(h.order, t.id)
	for len(h.order) > h.config.MaxTracks {
		delete(h.tracks, h.order[0])
		h.order = h.order[1:]
	}
	h.mu.Unlock()

	h.logger.Debug().Str("track", t.id).Int("bytes", len(audio)).Msg("Track loaded")
	return t, nil
}

func (h *Hub) track(id string) *RemoteTrack {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.tracks[id]
}

func (h *Hub) forget(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.tracks, id)
	if i := slices.Index(h.order, id); i >= 0 {
		h.order = slices.Delete(h.order, i, i+1)
	}
}

func (h *Hub) audioURL(id string) string {
	return h.config.AudioPath + id
}

// ServeAudio serves the bytes of a loaded track, with range support.
func (h *Hub) ServeAudio(w http.ResponseWriter, r *http.Request) {
	t := h.track(r.PathValue("id"))
	if t == nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", t.contentType)
	w.Header().Set("Cache-Control", "no-store")
	http.ServeContent(w, r, t.id, time.Time{}, bytes.NewReader(t.audio))
}

// Broadcast sends a message to every renderer. Renderers whose send
// buffer is full miss it.
func (h *Hub) Broadcast(msgType string, payload any) error {
	data, err := encode(msgType, payload)
	if err != nil {
		return err
	}
	h.broadcast(msgType, data)
	return nil
}

func (h *Hub) broadcastMessage(msgType string, payload any) int {
	data, err := encode(msgType, payload)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode broadcast")
		return 0
	}
	return h.broadcast(msgType, data)
}

func (h *Hub) broadcast(msgType string, data []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for _, c := range h.clients {
		select {
		case c.send <- data:
			delivered++
		default:
			if msgType != TypeFrame {
				h.logger.Warn().Str("client", c.id).Str("type", msgType).Msg("Send buffer full, message dropped")
			}
		}
	}
	return delivered
}

// Send delivers a message to one renderer.
func (h *Hub) Send(clientID, msgType string, payload any) error {
	data, err := encode(msgType, payload)
	if err != nil {
		return err
	}

	h.mu.RLock()
	c, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("client %s not connected", clientID)
	}

	select {
	case c.send <- data:
		return nil
	default:
		return fmt.Errorf("client %s send buffer full", clientID)
	}
}

// ServeWS upgrades a renderer connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}

	c := &client{
		id:     uuid.NewString(),
		remote: r.RemoteAddr,
		conn:   conn,
		send:   make(chan []byte, h.config.SendBuffer),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	h.clients[c.id] = c
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Info().Str("client", c.id).Str("remote", c.remote).Int("clients", count).Msg("Renderer connected")
	h.publish(bus.EventTypeClientConnected, map[string]any{"client": c.id, "clients": count})

	go h.writePump(c)
	if h.onConnect != nil {
		h.post(func() { h.onConnect(c.id) })
	}
	h.readPump(c)
}

func (h *Hub) remove(c *client) {
	c.close()

	h.mu.Lock()
	_, ok := h.clients[c.id]
	delete(h.clients, c.id)
	count := len(h.clients)
	h.mu.Unlock()

	if ok {
		h.logger.Info().Str("client", c.id).Int("clients", count).Msg("Renderer disconnected")
		h.publish(bus.EventTypeClientDisconnected, map[string]any{"client": c.id, "clients": count})
	}
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(h.config.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(h.config.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.config.PongTimeout))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Str("client", c.id).Msg("Read failed")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(h.config.PongTimeout))

		if err := h.dispatch(c.id, data); err != nil {
			h.logger.Debug().Err(err).Str("client", c.id).Msg("Ignoring malformed message")
			_ = h.Send(c.id, TypeError, ErrorMessage{Message: err.Error()})
		}
	}
}

func (h *Hub) writePump(c *client) {
	pingEvery := h.config.PongTimeout * 9 / 10
	ticker := time.NewTicker(pingEvery)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Debug().Err(err).Str("client", c.id).Msg("Write failed")
				h.remove(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		}
	}
}

// dispatch decodes one renderer message and posts it onto the loop.
func (h *Hub) dispatch(clientID string, data []byte) error {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Type {
	case TypePointer:
		var msg PointerMessage
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			return fmt.Errorf("decode pointer: %w", err)
		}
		if h.onPointer != nil {
			h.post(func() { h.onPointer(msg) })
		}

	case TypeChat:
		var msg ChatMessage
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			return fmt.Errorf("decode chat: %w", err)
		}
		if h.onChat != nil {
			h.post(func() {
				if err := h.onChat(clientID, msg.Message); err != nil {
					_ = h.Send(clientID, TypeError, ErrorMessage{Message: err.Error()})
				}
			})
		}

	case TypeAudio:
		var msg AudioMessage
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			return fmt.Errorf("decode audio: %w", err)
		}
		h.post(func() { h.applyAudio(msg) })

	default:
		return fmt.Errorf("unknown message type %q", env.Type)
	}
	return nil
}

// applyAudio runs on the frame loop goroutine.
func (h *Hub) applyAudio(msg AudioMessage) {
	t := h.track(msg.Track)
	if t == nil {
		h.logger.Debug().Str("track", msg.Track).Str("event", string(msg.Event)).Msg("Report for unknown track")
		return
	}
	t.apply(msg)
	if msg.Event != AudioProgress {
		h.publish(bus.EventTypeTrackEvent, map[string]any{"track": msg.Track, "event": string(msg.Event)})
	}
}

func (h *Hub) post(fn func()) {
	if !h.poster.Post(fn) {
		h.logger.Debug().Msg("Frame loop stopped, dropping renderer input")
	}
}

func (h *Hub) publish(eventType bus.EventType, data map[string]any) {
	if h.bus != nil {
		h.bus.Publish(bus.Event{Type: eventType, Data: data})
	}
}

// Close disconnects every renderer.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.close()
	}
}
