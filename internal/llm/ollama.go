// Package llm is the chat backend behind /api/chat: a single-shot Ollama
// generate call prefixed with the companion's system prompt.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultSystemPrompt is the companion's persona.
const DefaultSystemPrompt = "You are a kind, emotionally supportive anime-style AI companion. Speak gently, use emojis, and encourage positivity."

var (
	ErrEmptyMessage  = errors.New("message is required")
	ErrEmptyResponse = errors.New("ollama returned an empty response")
)

// Config holds Ollama client configuration
type Config struct {
	URL          string        `mapstructure:"url"`
	Model        string        `mapstructure:"model"`
	SystemPrompt string        `mapstructure:"system_prompt"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

func DefaultConfig() Config {
	return Config{
		URL:          "http://localhost:11434",
		Model:        "llama2",
		SystemPrompt: DefaultSystemPrompt,
		Timeout:      120 * time.Second,
	}
}

// StatusError is a non-200 answer from Ollama.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ollama returned status %d: %s", e.Status, e.Body)
}

// Client is an Ollama generate client
type Client struct {
	baseURL    string
	config     Config
	httpClient *http.Client
	logger     zerolog.Logger
}

func NewClient(cfg Config, logger zerolog.Logger) *Client {
	def := DefaultConfig()
	if cfg.URL == "" {
		cfg.URL = def.URL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = def.SystemPrompt
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With().Str("component", "ollama").Logger(),
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Model     string `json:"model"`
	Response  string `json:"response"`
	Done      bool   `json:"done"`
	EvalCount int    `json:"eval_count"`
}

// Prompt builds the full prompt for one user message.
func (c *Client) Prompt(message string) string {
	return c.config.SystemPrompt + "\nUser: " + message + "\nAI:"
}

// Chat sends one message and returns the model's reply.
func (c *Client) Chat(ctx context.Context, message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", ErrEmptyMessage
	}

	body, err := json.Marshal(generateRequest{
		Model:  c.config.Model,
		Prompt: c.Prompt(message),
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return "", &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if out.Response == "" {
		return "", ErrEmptyResponse
	}

	c.logger.Debug().
		Str("model", out.Model).
		Int("tokens", out.EvalCount).
		Dur("latency", time.Since(start)).
		Msg("Generated reply")
	return out.Response, nil
}

// Health checks that Ollama answers /api/tags.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("create health request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama health check returned status %d", resp.StatusCode)
	}
	return nil
}
