package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// OpenAI TTS voices
const (
	VoiceAlloy   = "alloy"   // Neutral, balanced
	VoiceEcho    = "echo"    // Male, warm
	VoiceFable   = "fable"   // British, expressive
	VoiceOnyx    = "onyx"    // Male, deep
	VoiceNova    = "nova"    // Female, warm and natural
	VoiceShimmer = "shimmer" // Female, clear and bright
)

// OpenAIProvider implements TTS using OpenAI's TTS API
type OpenAIProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
	config  OpenAIConfig
}

// OpenAIConfig holds OpenAI TTS configuration
type OpenAIConfig struct {
	APIKey       string  `mapstructure:"api_key"`
	BaseURL      string  `mapstructure:"base_url"`
	Model        string  `mapstructure:"model"`         // tts-1 or tts-1-hd
	DefaultVoice string  `mapstructure:"default_voice"` // alloy, echo, fable, onyx, nova, shimmer
	Speed        float64 `mapstructure:"speed"`         // 0.25 to 4.0
	Format       string  `mapstructure:"format"`        // mp3, opus, wav
}

// DefaultOpenAIConfig returns sensible defaults
func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		BaseURL:      "https://api.openai.com/v1",
		Model:        "tts-1",
		DefaultVoice: VoiceNova,
		Speed:        1.0,
		Format:       "mp3",
	}
}

// NewOpenAIProvider creates a new OpenAI TTS provider
func NewOpenAIProvider(logger zerolog.Logger, config OpenAIConfig, timeout time.Duration) *OpenAIProvider {
	def := DefaultOpenAIConfig()
	if config.BaseURL == "" {
		config.BaseURL = def.BaseURL
	}
	if config.Model == "" {
		config.Model = def.Model
	}
	if config.DefaultVoice == "" {
		config.DefaultVoice = def.DefaultVoice
	}
	if config.Format == "" {
		config.Format = def.Format
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	// Get API key from config or environment
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}

	return &OpenAIProvider{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With().Str("provider", "openai-tts").Logger(),
		config:  config,
	}
}

// Name returns the provider identifier
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// IsAvailable checks if the provider has an API key configured
func (p *OpenAIProvider) IsAvailable() bool {
	return p.apiKey != ""
}

// openAITTSRequest is the request format for OpenAI TTS API
type openAITTSRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format,omitempty"`
	Speed          float64 `json:"speed,omitempty"`
}

// Synthesize converts text to audio using OpenAI TTS
func (p *OpenAIProvider) Synthesize(ctx context.Context, req *SynthesizeRequest) (*SynthesizeResponse, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key not configured: %w", ErrProviderUnavailable)
	}
	if err := checkText(req.Text, p.Capabilities().MaxTextLength); err != nil {
		return nil, err
	}

	startTime := time.Now()

	voice := p.mapVoice(req.VoiceID)

	speed := req.Speed
	if speed == 0 {
		speed = p.config.Speed
	}
	format := req.Format
	if format == "" {
		format = p.config.Format
	}

	body, err := json.Marshal(openAITTSRequest{
		Model:          p.config.Model,
		Input:          req.Text,
		Voice:          voice,
		ResponseFormat: format,
		Speed:          speed,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/audio/speech", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	p.logger.Debug().
		Str("voice", voice).
		Str("model", p.config.Model).
		Int("textLen", len(req.Text)).
		Msg("Sending TTS request to OpenAI")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		p.logger.Error().
			Int("status", resp.StatusCode).
			Str("body", string(bodyBytes)).
			Msg("OpenAI TTS request failed")
		return nil, &APIError{Provider: p.Name(), Status: resp.StatusCode, Body: string(bodyBytes)}
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	processingTime := time.Since(startTime)

	p.logger.Info().
		Str("voice", voice).
		Int("audioBytes", len(audioData)).
		Dur("processingTime", processingTime).
		Msg("OpenAI TTS synthesis complete")

	return &SynthesizeResponse{
		Audio:          audioData,
		Format:         format,
		ContentType:    contentTypeFor(format),
		SampleRate:     24000,
		ProcessingTime: processingTime,
		VoiceID:        voice,
		Provider:       p.Name(),
	}, nil
}

// mapVoice falls back to the configured voice for anything OpenAI does
// not know.
func (p *OpenAIProvider) mapVoice(voiceID string) string {
	switch voiceID {
	case VoiceAlloy, VoiceEcho, VoiceFable, VoiceOnyx, VoiceNova, VoiceShimmer:
		return voiceID
	}
	return p.config.DefaultVoice
}

// ListVoices returns available OpenAI voices
func (p *OpenAIProvider) ListVoices(ctx context.Context) ([]Voice, error) {
	return []Voice{
		{ID: VoiceNova, Name: "Nova (Female, Warm)", Language: "en", Gender: "female"},
		{ID: VoiceShimmer, Name: "Shimmer (Female, Clear)", Language: "en", Gender: "female"},
		{ID: VoiceAlloy, Name: "Alloy (Neutral)", Language: "en", Gender: "neutral"},
		{ID: VoiceEcho, Name: "Echo (Male, Warm)", Language: "en", Gender: "male"},
		{ID: VoiceOnyx, Name: "Onyx (Male, Deep)", Language: "en", Gender: "male"},
		{ID: VoiceFable, Name: "Fable (British)", Language: "en", Gender: "neutral"},
	}, nil
}

func (p *OpenAIProvider) Health(ctx context.Context) error {
	if p.apiKey == "" {
		return ErrProviderUnavailable
	}
	return nil
}

func (p *OpenAIProvider) Capabilities() ProviderCapabilities {
	return ProviderCapabilities{
		SupportedLanguages: []string{"en", "es", "fr", "de", "it", "pt", "pl", "ja", "ko", "zh"},
		SupportedFormats:   []string{"mp3", "opus", "wav"},
		MaxTextLength:      4096,
		AvgLatencyMs:       500,
		IsLocal:            false,
	}
}
