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

const (
	ElevenLabsAPIEndpoint  = "https://api.elevenlabs.io/v1"
	ElevenLabsDefaultVoice = "eVItLK1UvXctxuaRV2Oq"
)

type ElevenLabsProvider struct {
	apiKey  string
	baseURL string
	logger  zerolog.Logger
	config  ElevenLabsConfig
	client  *http.Client
}

type ElevenLabsConfig struct {
	APIKey          string  `mapstructure:"api_key"`
	BaseURL         string  `mapstructure:"base_url"`
	VoiceID         string  `mapstructure:"voice_id"`
	ModelID         string  `mapstructure:"model_id"`
	Stability       float64 `mapstructure:"stability"`
	SimilarityBoost float64 `mapstructure:"similarity_boost"`
	Style           float64 `mapstructure:"style"`
	UseSpeakerBoost bool    `mapstructure:"use_speaker_boost"`
}

// DefaultElevenLabsConfig is the expressive companion voice.
func DefaultElevenLabsConfig() ElevenLabsConfig {
	return ElevenLabsConfig{
		BaseURL:         ElevenLabsAPIEndpoint,
		VoiceID:         ElevenLabsDefaultVoice,
		ModelID:         "eleven_multilingual_v2",
		Stability:       0.4,
		SimilarityBoost: 0.8,
		Style:           0.7,
		UseSpeakerBoost: true,
	}
}

// NewElevenLabsProvider creates the provider. The API key falls back to
// ELEVENLABS_API_KEY.
func NewElevenLabsProvider(logger zerolog.Logger, config ElevenLabsConfig, timeout time.Duration) *ElevenLabsProvider {
	def := DefaultElevenLabsConfig()
	if config.BaseURL == "" {
		config.BaseURL = def.BaseURL
	}
	if config.VoiceID == "" {
		config.VoiceID = def.VoiceID
	}
	if config.ModelID == "" {
		config.ModelID = def.ModelID
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ELEVENLABS_API_KEY")
	}

	return &ElevenLabsProvider{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		logger:  logger.With().Str("provider", "elevenlabs-tts").Logger(),
		config:  config,
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *ElevenLabsProvider) Name() string {
	return "elevenlabs"
}

func (p *ElevenLabsProvider) IsAvailable() bool {
	return p.apiKey != ""
}

type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

type elevenLabsRequest struct {
	Text          string                  `json:"text"`
	ModelID       string                  `json:"model_id"`
	VoiceSettings elevenLabsVoiceSettings `json:"voice_settings"`
}

func (p *ElevenLabsProvider) Synthesize(ctx context.Context, req *SynthesizeRequest) (*SynthesizeResponse, error) {
	if !p.IsAvailable() {
		return nil, fmt.Errorf("ElevenLabs API key not set: %w", ErrProviderUnavailable)
	}
	if err := checkText(req.Text, p.Capabilities().MaxTextLength); err != nil {
		return nil, err
	}

	startTime := time.Now()

	voiceID := req.VoiceID
	if voiceID == "" {
		voiceID = p.config.VoiceID
	}

	jsonData, err := json.Marshal(elevenLabsRequest{
		Text:    req.Text,
		ModelID: p.config.ModelID,
		VoiceSettings: elevenLabsVoiceSettings{
			Stability:       p.config.Stability,
			SimilarityBoost: p.config.SimilarityBoost,
			Style:           p.config.Style,
			UseSpeakerBoost: p.config.UseSpeakerBoost,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/text-to-speech/%s", p.baseURL, voiceID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("xi-api-key", p.apiKey)
	httpReq.Header.Set("Accept", "audio/mpeg")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, &APIError{Provider: p.Name(), Status: resp.StatusCode, Body: string(body)}
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}

	processingTime := time.Since(startTime)

	p.logger.Info().
		Str("voice", voiceID).
		Int("audioBytes", len(audioData)).
		Dur("processingTime", processingTime).
		Msg("ElevenLabs TTS synthesis complete")

	return &SynthesizeResponse{
		Audio:          audioData,
		Format:         "mp3",
		ContentType:    "audio/mpeg",
		SampleRate:     44100,
		ProcessingTime: processingTime,
		VoiceID:        voiceID,
		Provider:       p.Name(),
	}, nil
}

type elevenLabsVoicesResponse struct {
	Voices []struct {
		VoiceID string            `json:"voice_id"`
		Name    string            `json:"name"`
		Labels  map[string]string `json:"labels"`
	} `json:"voices"`
}

// ListVoices asks the API for the voices available to this key.
func (p *ElevenLabsProvider) ListVoices(ctx context.Context) ([]Voice, error) {
	if !p.IsAvailable() {
		return nil, ErrProviderUnavailable
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("xi-api-key", p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, &APIError{Provider: p.Name(), Status: resp.StatusCode, Body: string(body)}
	}

	var out elevenLabsVoicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode voices: %w", err)
	}

	voices := make([]Voice, 0, len(out.Voices))
	for _, v := range out.Voices {
		voices = append(voices, Voice{
			ID:          v.VoiceID,
			Name:        v.Name,
			Language:    v.Labels["language"],
			Gender:      v.Labels["gender"],
			Description: v.Labels["description"],
		})
	}
	return voices, nil
}

func (p *ElevenLabsProvider) Health(ctx context.Context) error {
	if !p.IsAvailable() {
		return ErrProviderUnavailable
	}
	return nil
}

func (p *ElevenLabsProvider) Capabilities() ProviderCapabilities {
	return ProviderCapabilities{
		SupportedLanguages: []string{"en", "ja", "de", "pl", "es", "it", "fr", "pt", "hi"},
		SupportedFormats:   []string{"mp3"},
		MaxTextLength:      5000,
		AvgLatencyMs:       500,
		IsLocal:            false,
	}
}
