package tts

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/googleapis/gax-go/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPollyClient struct {
	mock.Mock
}

func (m *mockPollyClient) DescribeVoices(ctx context.Context, params *polly.DescribeVoicesInput, optFns ...func(*polly.Options)) (*polly.DescribeVoicesOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*polly.DescribeVoicesOutput), args.Error(1)
}

func (m *mockPollyClient) SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*polly.SynthesizeSpeechOutput), args.Error(1)
}

func TestPollySynthesize(t *testing.T) {
	client := new(mockPollyClient)
	client.On("SynthesizeSpeech", mock.Anything, mock.MatchedBy(func(in *polly.SynthesizeSpeechInput) bool {
		return aws.ToString(in.Text) == "Hello" &&
			in.VoiceId == types.VoiceId("Joanna") &&
			in.OutputFormat == types.OutputFormatMp3 &&
			in.Engine == types.EngineNeural &&
			in.TextType == types.TextTypeText
	})).Return(&polly.SynthesizeSpeechOutput{
		AudioStream: io.NopCloser(strings.NewReader("mp3data")),
		ContentType: aws.String("audio/mpeg"),
	}, nil)

	p := NewPollyProviderWithClient(client, PollyConfig{}, zerolog.Nop())
	resp, err := p.Synthesize(context.Background(), &SynthesizeRequest{Text: "Hello"})
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3data"), resp.Audio)
	assert.Equal(t, "audio/mpeg", resp.ContentType)
	assert.Equal(t, "Joanna", resp.VoiceID)
	client.AssertExpectations(t)
}

func TestPollyRejectsUnknownFormat(t *testing.T) {
	client := new(mockPollyClient)
	p := NewPollyProviderWithClient(client, PollyConfig{}, zerolog.Nop())

	_, err := p.Synthesize(context.Background(), &SynthesizeRequest{Text: "Hello", Format: "flac"})
	assert.ErrorContains(t, err, "unsupported audio format")
	client.AssertNotCalled(t, "SynthesizeSpeech", mock.Anything, mock.Anything)
}

func TestPollyListVoices(t *testing.T) {
	client := new(mockPollyClient)
	client.On("DescribeVoices", mock.Anything, mock.Anything).Return(&polly.DescribeVoicesOutput{
		Voices: []types.Voice{{
			Id:               types.VoiceIdJoanna,
			Name:             aws.String("Joanna"),
			LanguageCode:     types.LanguageCodeEnUs,
			Gender:           types.GenderFemale,
			SupportedEngines: []types.Engine{types.EngineNeural, types.EngineStandard},
		}},
	}, nil)

	p := NewPollyProviderWithClient(client, PollyConfig{}, zerolog.Nop())
	voices, err := p.ListVoices(context.Background())
	require.NoError(t, err)
	require.Len(t, voices, 1)
	assert.Equal(t, "female", voices[0].Gender)
	assert.Equal(t, "en-US", voices[0].Language)
	assert.Equal(t, "Female voice (neural, standard)", voices[0].Description)
}

func TestPollyHealth(t *testing.T) {
	client := new(mockPollyClient)
	client.On("DescribeVoices", mock.Anything, mock.Anything).Return(nil, errors.New("no credentials"))

	p := NewPollyProviderWithClient(client, PollyConfig{}, zerolog.Nop())
	assert.ErrorIs(t, p.Health(context.Background()), ErrProviderUnavailable)
}

type mockGCPClient struct {
	mock.Mock
}

func (m *mockGCPClient) ListVoices(ctx context.Context, req *texttospeechpb.ListVoicesRequest, opts ...gax.CallOption) (*texttospeechpb.ListVoicesResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*texttospeechpb.ListVoicesResponse), args.Error(1)
}

func (m *mockGCPClient) SynthesizeSpeech(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest, opts ...gax.CallOption) (*texttospeechpb.SynthesizeSpeechResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*texttospeechpb.SynthesizeSpeechResponse), args.Error(1)
}

func (m *mockGCPClient) Close() error {
	return nil
}

func TestGCPSynthesize(t *testing.T) {
	client := new(mockGCPClient)
	client.On("SynthesizeSpeech", mock.Anything, mock.MatchedBy(func(req *texttospeechpb.SynthesizeSpeechRequest) bool {
		return req.GetInput().GetText() == "Hi" &&
			req.GetVoice().GetName() == "ja-JP-Neural2-B" &&
			req.GetVoice().GetLanguageCode() == "ja-JP" &&
			req.GetAudioConfig().GetAudioEncoding() == texttospeechpb.AudioEncoding_OGG_OPUS &&
			req.GetAudioConfig().GetSpeakingRate() == 4.0
	})).Return(&texttospeechpb.SynthesizeSpeechResponse{AudioContent: []byte("opus")}, nil)

	p := NewGCPProviderWithClient(client, GCPConfig{}, zerolog.Nop())
	resp, err := p.Synthesize(context.Background(), &SynthesizeRequest{
		Text:    "Hi",
		VoiceID: "ja-JP-Neural2-B",
		Format:  "ogg",
		Speed:   9,
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("opus"), resp.Audio)
	assert.Equal(t, "audio/ogg", resp.ContentType)
	client.AssertExpectations(t)
}

func TestGCPListVoices(t *testing.T) {
	client := new(mockGCPClient)
	client.On("ListVoices", mock.Anything, mock.Anything).Return(&texttospeechpb.ListVoicesResponse{
		Voices: []*texttospeechpb.Voice{
			{Name: "en-US-Neural2-F", LanguageCodes: []string{"en-US"}, SsmlGender: texttospeechpb.SsmlVoiceGender_FEMALE},
			{Name: "en-US-Neural2-D", LanguageCodes: []string{"en-US"}, SsmlGender: texttospeechpb.SsmlVoiceGender_MALE},
		},
	}, nil)

	p := NewGCPProviderWithClient(client, GCPConfig{}, zerolog.Nop())
	voices, err := p.ListVoices(context.Background())
	require.NoError(t, err)
	require.Len(t, voices, 2)
	assert.Equal(t, "female", voices[0].Gender)
	assert.Equal(t, "male", voices[1].Gender)
}

func TestGCPHelpers(t *testing.T) {
	assert.Equal(t, "en-GB", languageOf("en-GB-Wavenet-A", "en-US"))
	assert.Equal(t, "en-US", languageOf("custom", "en-US"))
	assert.Equal(t, texttospeechpb.AudioEncoding_MP3, gcpEncoding("anything"))
	assert.Equal(t, texttospeechpb.AudioEncoding_LINEAR16, gcpEncoding("WAV"))
	assert.Equal(t, 1.0, speakingRate(0))
	assert.Equal(t, 0.25, speakingRate(0.1))
	assert.Equal(t, 1.5, speakingRate(1.5))
}
