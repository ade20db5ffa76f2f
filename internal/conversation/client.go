package conversation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ChatClient sends one user message and returns the AI reply.
type ChatClient interface {
	Chat(ctx context.Context, message string) (string, error)
}

// Speech is a synthesized audio payload.
type Speech struct {
	Audio       []byte
	ContentType string
}

// SpeechClient turns reply text into audio.
type SpeechClient interface {
	Synthesize(ctx context.Context, text string) (*Speech, error)
}

// APIError is a non-success answer from the proxy.
type APIError struct {
	Endpoint string `json:"-"`
	Status   int    `json:"-"`
	Message  string `json:"error"`
	Details  string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %d %s: %s", e.Endpoint, e.Status, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %d %s", e.Endpoint, e.Status, e.Message)
}

// ProxyClient talks to the chat and speech endpoints of the proxy. It
// implements both ChatClient and SpeechClient.
type ProxyClient struct {
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

func NewProxyClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *ProxyClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ProxyClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With().Str("component", "proxy-client").Logger(),
	}
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Response string `json:"response"`
}

type speechRequest struct {
	Text string `json:"text"`
}

func (c *ProxyClient) Chat(ctx context.Context, message string) (string, error) {
	resp, err := c.post(ctx, "/api/chat", chatRequest{Message: message})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	return out.Response, nil
}

func (c *ProxyClient) Synthesize(ctx context.Context, text string) (*Speech, error) {
	resp, err := c.post(ctx, "/api/tts", speechRequest{Text: text})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read speech: %w", err)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/mpeg"
	}

	c.logger.Debug().Int("bytes", len(audio)).Str("content_type", contentType).Msg("Speech received")
	return &Speech{Audio: audio, ContentType: contentType}, nil
}

// post sends body as JSON and returns the response only on 2xx.
func (c *ProxyClient) post(ctx context.Context, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	defer resp.Body.Close()
	apiErr := &APIError{Endpoint: path, Status: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(raw, apiErr) != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	c.logger.Warn().Str("path", path).Int("status", resp.StatusCode).Str("error", apiErr.Message).Msg("Proxy request failed")
	return nil, apiErr
}
