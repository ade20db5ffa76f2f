// Package tts provides Text-to-Speech synthesis for the avatar's replies.
package tts

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Common errors
var (
	ErrProviderUnavailable = errors.New("TTS provider unavailable")
	ErrEmptyText           = errors.New("text cannot be empty")
	ErrTextTooLong         = errors.New("text exceeds maximum length")
	ErrUnknownProvider     = errors.New("unknown TTS provider")
)

// Provider is the interface all TTS providers must implement
type Provider interface {
	// Name returns the provider identifier (e.g., "elevenlabs", "polly")
	Name() string

	// Synthesize converts text to audio
	Synthesize(ctx context.Context, req *SynthesizeRequest) (*SynthesizeResponse, error)

	// ListVoices returns available voices
	ListVoices(ctx context.Context) ([]Voice, error)

	// Health checks if the provider is available
	Health(ctx context.Context) error

	// Capabilities returns the provider's feature set
	Capabilities() ProviderCapabilities
}

// SynthesizeRequest represents a synthesis request
type SynthesizeRequest struct {
	Text    string  `json:"text"`
	VoiceID string  `json:"voice_id,omitempty"`
	Speed   float64 `json:"speed,omitempty"`  // 0.25 to 4.0, provider permitting
	Format  string  `json:"format,omitempty"` // mp3, ogg, wav
}

// SynthesizeResponse represents a synthesis result
type SynthesizeResponse struct {
	Audio          []byte        `json:"audio"`
	Format         string        `json:"format"`
	ContentType    string        `json:"content_type"`
	SampleRate     int           `json:"sample_rate,omitempty"`
	ProcessingTime time.Duration `json:"processing_time"`
	VoiceID        string        `json:"voice_id"`
	Provider       string        `json:"provider"`
}

// Voice represents an available TTS voice
type Voice struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Language    string `json:"language"`
	Gender      string `json:"gender"` // male, female, neutral
	Description string `json:"description,omitempty"`
}

// ProviderCapabilities describes what features a provider supports
type ProviderCapabilities struct {
	SupportedLanguages []string `json:"supported_languages"`
	SupportedFormats   []string `json:"supported_formats"`
	MaxTextLength      int      `json:"max_text_length"`
	AvgLatencyMs       int      `json:"avg_latency_ms"`
	IsLocal            bool     `json:"is_local"`
}

// APIError is a non-success answer from a provider's HTTP API. Body is the
// provider's raw error text.
type APIError struct {
	Provider string
	Status   int
	Body     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error %d: %s", e.Provider, e.Status, e.Body)
}

// Config selects and configures the provider used by the proxy.
type Config struct {
	Provider   string           `mapstructure:"provider"` // elevenlabs, openai, polly, gcp
	Timeout    time.Duration    `mapstructure:"timeout"`
	ElevenLabs ElevenLabsConfig `mapstructure:"elevenlabs"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	Polly      PollyConfig      `mapstructure:"polly"`
	GCP        GCPConfig        `mapstructure:"gcp"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:   "elevenlabs",
		Timeout:    30 * time.Second,
		ElevenLabs: DefaultElevenLabsConfig(),
		OpenAI:     DefaultOpenAIConfig(),
		Polly:      DefaultPollyConfig(),
		GCP:        DefaultGCPConfig(),
	}
}

// contentTypeFor maps an audio format name to its MIME type.
func contentTypeFor(format string) string {
	switch format {
	case "ogg", "ogg_vorbis", "opus", "ogg_opus":
		return "audio/ogg"
	case "wav", "linear16":
		return "audio/wav"
	case "pcm":
		return "audio/L16"
	default:
		return "audio/mpeg"
	}
}

func checkText(text string, max int) error {
	if text == "" {
		return ErrEmptyText
	}
	if max > 0 && len([]rune(text)) > max {
		return fmt.Errorf("%w: %d > %d", ErrTextTooLong, len([]rune(text)), max)
	}
	return nil
}
