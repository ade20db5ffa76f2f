package tts

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/rs/zerolog"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// PollyClient is the part of the Polly API the provider uses.
type PollyClient interface {
	DescribeVoices(ctx context.Context, params *polly.DescribeVoicesInput, optFns ...func(*polly.Options)) (*polly.DescribeVoicesOutput, error)
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

type PollyConfig struct {
	Region  string `mapstructure:"region"`
	VoiceID string `mapstructure:"voice_id"`
	Engine  string `mapstructure:"engine"` // standard, neural, long-form, generative
	Format  string `mapstructure:"format"` // mp3, ogg, pcm
}

func DefaultPollyConfig() PollyConfig {
	return PollyConfig{
		Region:  "us-east-1",
		VoiceID: "Joanna",
		Engine:  "neural",
		Format:  "mp3",
	}
}

// PollyProvider implements TTS using Amazon Polly
type PollyProvider struct {
	client PollyClient
	config PollyConfig
	logger zerolog.Logger
}

// NewPollyProvider loads the default AWS credential chain for the
// configured region.
func NewPollyProvider(ctx context.Context, config PollyConfig, logger zerolog.Logger) (*PollyProvider, error) {
	config = fillPolly(config)
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(config.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return NewPollyProviderWithClient(polly.NewFromConfig(awsCfg), config, logger), nil
}

// NewPollyProviderWithClient uses an existing client.
func NewPollyProviderWithClient(client PollyClient, config PollyConfig, logger zerolog.Logger) *PollyProvider {
	return &PollyProvider{
		client: client,
		config: fillPolly(config),
		logger: logger.With().Str("provider", "polly-tts").Logger(),
	}
}

func fillPolly(c PollyConfig) PollyConfig {
	def := DefaultPollyConfig()
	if c.Region == "" {
		c.Region = def.Region
	}
	if c.VoiceID == "" {
		c.VoiceID = def.VoiceID
	}
	if c.Engine == "" {
		c.Engine = def.Engine
	}
	if c.Format == "" {
		c.Format = def.Format
	}
	return c
}

func (p *PollyProvider) Name() string {
	return "polly"
}

func (p *PollyProvider) Synthesize(ctx context.Context, req *SynthesizeRequest) (*SynthesizeResponse, error) {
	if err := checkText(req.Text, p.Capabilities().MaxTextLength); err != nil {
		return nil, err
	}

	startTime := time.Now()

	voiceID := req.VoiceID
	if voiceID == "" {
		voiceID = p.config.VoiceID
	}
	format := req.Format
	if format == "" {
		format = p.config.Format
	}

	outputFormat, err := pollyFormat(format)
	if err != nil {
		return nil, err
	}

	input := &polly.SynthesizeSpeechInput{
		Text:         aws.String(req.Text),
		VoiceId:      types.VoiceId(voiceID),
		OutputFormat: outputFormat,
		Engine:       p.engine(),
		TextType:     types.TextTypeText,
	}
	if strings.Contains(req.Text, "<speak>") {
		input.TextType = types.TextTypeSsml
	}

	p.logger.Debug().
		Str("voice", voiceID).
		Str("format", string(outputFormat)).
		Str("engine", string(input.Engine)).
		Msg("Sending TTS request to Polly")

	out, err := p.client.SynthesizeSpeech(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("polly synthesize: %w", err)
	}
	defer out.AudioStream.Close()

	audioData, err := io.ReadAll(out.AudioStream)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}

	contentType := aws.ToString(out.ContentType)
	if contentType == "" {
		contentType = contentTypeFor(format)
	}

	processingTime := time.Since(startTime)
	p.logger.Info().
		Str("voice", voiceID).
		Int("audioBytes", len(audioData)).
		Dur("processingTime", processingTime).
		Msg("Polly TTS synthesis complete")

	return &SynthesizeResponse{
		Audio:          audioData,
		Format:         format,
		ContentType:    contentType,
		ProcessingTime: processingTime,
		VoiceID:        voiceID,
		Provider:       p.Name(),
	}, nil
}

func pollyFormat(format string) (types.OutputFormat, error) {
	switch strings.ToLower(format) {
	case "mp3":
		return types.OutputFormatMp3, nil
	case "ogg", "ogg_vorbis":
		return types.OutputFormatOggVorbis, nil
	case "pcm":
		return types.OutputFormatPcm, nil
	}
	return "", fmt.Errorf("unsupported audio format: %s", format)
}

func (p *PollyProvider) engine() types.Engine {
	switch strings.ToLower(p.config.Engine) {
	case "standard":
		return types.EngineStandard
	case "long-form":
		return types.EngineLongForm
	case "generative":
		return types.EngineGenerative
	case "neural":
		return types.EngineNeural
	}
	p.logger.Warn().Str("engine", p.config.Engine).Msg("Unknown engine, using neural")
	return types.EngineNeural
}

func (p *PollyProvider) ListVoices(ctx context.Context) ([]Voice, error) {
	out, err := p.client.DescribeVoices(ctx, &polly.DescribeVoicesInput{})
	if err != nil {
		return nil, fmt.Errorf("list Polly voices: %w", err)
	}

	title := cases.Title(language.English)
	voices := make([]Voice, 0, len(out.Voices))
	for _, v := range out.Voices {
		engines := make([]string, len(v.SupportedEngines))
		for i, e := range v.SupportedEngines {
			engines[i] = string(e)
		}
		voice := Voice{
			ID:          string(v.Id),
			Name:        aws.ToString(v.Name),
			Language:    string(v.LanguageCode),
			Description: fmt.Sprintf("%s voice (%s)", title.String(string(v.Gender)), strings.Join(engines, ", ")),
		}
		switch v.Gender {
		case types.GenderFemale:
			voice.Gender = "female"
		case types.GenderMale:
			voice.Gender = "male"
		}
		voices = append(voices, voice)
	}
	return voices, nil
}

// Health lists voices with a short deadline.
func (p *PollyProvider) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := p.client.DescribeVoices(ctx, &polly.DescribeVoicesInput{}); err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	return nil
}

func (p *PollyProvider) Capabilities() ProviderCapabilities {
	return ProviderCapabilities{
		SupportedLanguages: []string{"en", "es", "fr", "de", "it", "pt", "ja", "ko", "zh"},
		SupportedFormats:   []string{"mp3", "ogg", "pcm"},
		MaxTextLength:      3000,
		AvgLatencyMs:       400,
		IsLocal:            false,
	}
}
