// Package proxy serves the HTTP side of the companion: the chat and speech
// endpoints the conversation controller calls, plus health and metrics.
// Other components (the stage hub) mount their routes on the same mux.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/normanking/robinavatar/internal/metrics"
	"github.com/normanking/robinavatar/internal/tts"
)

// ChatBackend produces a reply for one user message. llm.Client
// satisfies it.
type ChatBackend interface {
	Chat(ctx context.Context, message string) (string, error)
}

type healthChecker interface {
	Health(ctx context.Context) error
}

// Routes is anything that can register handlers on the server's mux.
type Routes interface {
	RegisterRoutes(mux *http.ServeMux)
}

type Config struct {
	Addr           string        `mapstructure:"addr"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes"`
	// AllowedOrigins for CORS; empty allows any origin
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func DefaultConfig() Config {
	return Config{
		Addr:           ":3001",
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   120 * time.Second,
		IdleTimeout:    60 * time.Second,
		RequestTimeout: 120 * time.Second,
		MaxBodyBytes:   1 << 20,
	}
}

// Server represents the HTTP server
type Server struct {
	config     Config
	chat       ChatBackend
	speech     tts.Provider
	metrics    *metrics.Metrics
	mux        *http.ServeMux
	httpServer *http.Server
	startTime  time.Time
	logger     zerolog.Logger
}

// New builds the server and registers its own routes. metrics may be nil.
func New(cfg Config, chat ChatBackend, speech tts.Provider, m *metrics.Metrics, logger zerolog.Logger) *Server {
	def := DefaultConfig()
	if cfg.Addr == "" {
		cfg.Addr = def.Addr
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = def.MaxBodyBytes
	}

	s := &Server{
		config:    cfg,
		chat:      chat,
		speech:    speech,
		metrics:   m,
		mux:       http.NewServeMux(),
		startTime: time.Now(),
		logger:    logger.With().Str("component", "proxy").Logger(),
	}

	s.handle("POST /api/chat", "/api/chat", s.chatHandler)
	s.handle("POST /api/tts", "/api/tts", s.ttsHandler)
	s.handle("GET /api/voices", "/api/voices", s.voicesHandler)
	s.handle("GET /health", "/health", s.healthHandler)
	if m != nil {
		s.mux.Handle("GET /metrics", m.Handler())
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

func (s *Server) handle(pattern, endpoint string, fn http.HandlerFunc) {
	var h http.Handler = fn
	if s.metrics != nil {
		h = s.metrics.Middleware(endpoint, h)
	}
	s.mux.Handle(pattern, h)
}

// Mount lets another component add routes, e.g. the stage websocket.
func (s *Server) Mount(r Routes) {
	r.RegisterRoutes(s.mux)
}

// Handler is the full handler chain: request ids, CORS, routes.
func (s *Server) Handler() http.Handler {
	return s.requestID(s.cors(s.mux))
}

func (s *Server) Addr() string {
	return s.config.Addr
}

// Start blocks serving until Shutdown.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.config.Addr).Msg("HTTP server starting")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Response string `json:"response"`
}

type ttsRequest struct {
	Text    string `json:"text"`
	VoiceID string `json:"voice_id,omitempty"`
}

func (s *Server) chatHandler(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Message is required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
	defer cancel()

	reply, err := s.chat.Chat(ctx, req.Message)
	if err != nil {
		s.log(r).Error().Err(err).Msg("Chat backend failed")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to connect to Ollama",
			Details: err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{Response: reply})
}

func (s *Server) ttsHandler(w http.ResponseWriter, r *http.Request) {
	var req ttsRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Text is required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
	defer cancel()

	resp, err := s.speech.Synthesize(ctx, &tts.SynthesizeRequest{Text: req.Text, VoiceID: req.VoiceID})
	if err != nil {
		s.log(r).Error().Err(err).Str("provider", s.speech.Name()).Msg("Speech synthesis failed")
		writeJSON(w, ttsStatus(err), ttsError(s.speech.Name(), err))
		return
	}

	w.Header().Set("Content-Type", resp.ContentType)
	w.Header().Set("Content-Length", fmt.Sprint(len(resp.Audio)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp.Audio)
}

func ttsStatus(err error) int {
	if errors.Is(err, tts.ErrTextTooLong) || errors.Is(err, tts.ErrEmptyText) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// ttsError shapes a provider failure: upstream rejections carry the
// provider's own error text, anything else is a connection failure.
func ttsError(provider string, err error) ErrorResponse {
	var apiErr *tts.APIError
	switch {
	case errors.As(err, &apiErr):
		return ErrorResponse{Error: "TTS failed", Details: apiErr.Body}
	case errors.Is(err, tts.ErrTextTooLong):
		return ErrorResponse{Error: "Text is too long", Details: err.Error()}
	}
	return ErrorResponse{Error: "Failed to connect to " + displayName(provider), Details: err.Error()}
}

func displayName(provider string) string {
	switch provider {
	case "elevenlabs":
		return "ElevenLabs"
	case "openai":
		return "OpenAI"
	case "polly":
		return "Amazon Polly"
	case "gcp":
		return "Google Cloud TTS"
	}
	return provider
}

func (s *Server) voicesHandler(w http.ResponseWriter, r *http.Request) {
	voices, err := s.speech.ListVoices(r.Context())
	if err != nil {
		writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: "Failed to list voices", Details: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"provider": s.speech.Name(), "voices": voices})
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string                   `json:"status"`
	Uptime    string                   `json:"uptime"`
	Services  map[string]ServiceHealth `json:"services"`
	Timestamp string                   `json:"timestamp"`
}

// ServiceHealth represents a service health status
type ServiceHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// healthHandler always answers 200 while the process serves; upstream
// trouble shows as status "degraded".
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	services := map[string]ServiceHealth{
		"http": {Healthy: true},
	}
	if hc, ok := s.chat.(healthChecker); ok {
		services["chat"] = check(ctx, hc)
	}
	services["tts"] = check(ctx, s.speech)

	status := "healthy"
	for _, svc := range services {
		if !svc.Healthy {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    status,
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Services:  services,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func check(ctx context.Context, hc healthChecker) ServiceHealth {
	if err := hc.Health(ctx); err != nil {
		return ServiceHealth{Healthy: false, Message: err.Error()}
	}
	return ServiceHealth{Healthy: true}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid JSON", Details: err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type requestIDKey struct{}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func (s *Server) log(r *http.Request) *zerolog.Logger {
	l := s.logger.With().Str("path", r.URL.Path).Logger()
	if id, ok := r.Context().Value(requestIDKey{}).(string); ok {
		l = l.With().Str("request_id", id).Logger()
	}
	return &l
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			if len(s.config.AllowedOrigins) == 0 {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		}
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	if len(s.config.AllowedOrigins) == 0 {
		return true
	}
	for _, o := range s.config.AllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}
