package tts

import (
	"context"
	"fmt"
	"strings"
	"time"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/rs/zerolog"
)

// GCPClient is the part of the Cloud Text-to-Speech client the provider
// uses. *texttospeech.Client satisfies it.
type GCPClient interface {
	ListVoices(ctx context.Context, req *texttospeechpb.ListVoicesRequest, opts ...gax.CallOption) (*texttospeechpb.ListVoicesResponse, error)
	SynthesizeSpeech(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest, opts ...gax.CallOption) (*texttospeechpb.SynthesizeSpeechResponse, error)
	Close() error
}

type GCPConfig struct {
	Voice    string `mapstructure:"voice"`
	Language string `mapstructure:"language"`
	Format   string `mapstructure:"format"` // mp3, wav, ogg
}

func DefaultGCPConfig() GCPConfig {
	return GCPConfig{
		Voice:    "en-US-Neural2-F",
		Language: "en-US",
		Format:   "mp3",
	}
}

// GCPProvider implements TTS using Google Cloud Text-to-Speech.
// Credentials come from Application Default Credentials.
type GCPProvider struct {
	client GCPClient
	config GCPConfig
	logger zerolog.Logger
}

func NewGCPProvider(ctx context.Context, config GCPConfig, logger zerolog.Logger) (*GCPProvider, error) {
	client, err := texttospeech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create GCP TTS client: %w", err)
	}
	return NewGCPProviderWithClient(client, config, logger), nil
}

func NewGCPProviderWithClient(client GCPClient, config GCPConfig, logger zerolog.Logger) *GCPProvider {
	def := DefaultGCPConfig()
	if config.Voice == "" {
		config.Voice = def.Voice
	}
	if config.Language == "" {
		config.Language = def.Language
	}
	if config.Format == "" {
		config.Format = def.Format
	}
	return &GCPProvider{
		client: client,
		config: config,
		logger: logger.With().Str("provider", "gcp-tts").Logger(),
	}
}

func (p *GCPProvider) Name() string {
	return "gcp"
}

func (p *GCPProvider) Synthesize(ctx context.Context, req *SynthesizeRequest) (*SynthesizeResponse, error) {
	if err := checkText(req.Text, p.Capabilities().MaxTextLength); err != nil {
		return nil, err
	}

	startTime := time.Now()

	voice := req.VoiceID
	if voice == "" {
		voice = p.config.Voice
	}
	format := req.Format
	if format == "" {
		format = p.config.Format
	}

	resp, err := p.client.SynthesizeSpeech(ctx, &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: req.Text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: languageOf(voice, p.config.Language),
			Name:         voice,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding: gcpEncoding(format),
			SpeakingRate:  speakingRate(req.Speed),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gcp synthesize: %w", err)
	}

	processingTime := time.Since(startTime)
	p.logger.Info().
		Str("voice", voice).
		Int("audioBytes", len(resp.AudioContent)).
		Dur("processingTime", processingTime).
		Msg("GCP TTS synthesis complete")

	return &SynthesizeResponse{
		Audio:          resp.AudioContent,
		Format:         format,
		ContentType:    contentTypeFor(format),
		ProcessingTime: processingTime,
		VoiceID:        voice,
		Provider:       p.Name(),
	}, nil
}

// languageOf takes the language from a voice name like en-US-Neural2-F.
func languageOf(voice, fallback string) string {
	parts := strings.Split(voice, "-")
	if len(parts) >= 2 {
		return parts[0] + "-" + parts[1]
	}
	return fallback
}

func gcpEncoding(format string) texttospeechpb.AudioEncoding {
	switch strings.ToLower(format) {
	case "wav", "linear16":
		return texttospeechpb.AudioEncoding_LINEAR16
	case "ogg", "ogg_opus":
		return texttospeechpb.AudioEncoding_OGG_OPUS
	default:
		return texttospeechpb.AudioEncoding_MP3
	}
}

func speakingRate(speed float64) float64 {
	switch {
	case speed <= 0:
		return 1.0
	case speed < 0.25:
		return 0.25
	case speed > 4.0:
		return 4.0
	}
	return speed
}

func (p *GCPProvider) ListVoices(ctx context.Context) ([]Voice, error) {
	resp, err := p.client.ListVoices(ctx, &texttospeechpb.ListVoicesRequest{})
	if err != nil {
		return nil, fmt.Errorf("list GCP voices: %w", err)
	}

	var voices []Voice
	for _, v := range resp.Voices {
		gender := "neutral"
		switch v.SsmlGender {
		case texttospeechpb.SsmlVoiceGender_MALE:
			gender = "male"
		case texttospeechpb.SsmlVoiceGender_FEMALE:
			gender = "female"
		}
		lang := ""
		if len(v.LanguageCodes) > 0 {
			lang = v.LanguageCodes[0]
		}
		voices = append(voices, Voice{
			ID:       v.Name,
			Name:     v.Name,
			Language: lang,
			Gender:   gender,
		})
	}
	return voices, nil
}

func (p *GCPProvider) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := p.client.ListVoices(ctx, &texttospeechpb.ListVoicesRequest{LanguageCode: p.config.Language}); err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	return nil
}

func (p *GCPProvider) Capabilities() ProviderCapabilities {
	return ProviderCapabilities{
		SupportedLanguages: []string{"en", "es", "fr", "de", "it", "pt", "ja", "ko", "zh", "hi"},
		SupportedFormats:   []string{"mp3", "wav", "ogg"},
		MaxTextLength:      5000,
		AvgLatencyMs:       350,
		IsLocal:            false,
	}
}

func (p *GCPProvider) Close() error {
	return p.client.Close()
}
