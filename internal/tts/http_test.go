package tts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestElevenLabsSynthesize(t *testing.T) {
	var got elevenLabsRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/text-to-speech/"+ElevenLabsDefaultVoice, r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("xi-api-key"))
		assert.Equal(t, "audio/mpeg", r.Header.Get("Accept"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3audio"))
	}))
	defer server.Close()

	cfg := DefaultElevenLabsConfig()
	cfg.APIKey = "secret"
	cfg.BaseURL = server.URL
	p := NewElevenLabsProvider(zerolog.Nop(), cfg, time.Second)

	resp, err := p.Synthesize(context.Background(), &SynthesizeRequest{Text: "Hello there"})
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3audio"), resp.Audio)
	assert.Equal(t, "audio/mpeg", resp.ContentType)
	assert.Equal(t, "elevenlabs", resp.Provider)

	assert.Equal(t, "Hello there", got.Text)
	assert.Equal(t, "eleven_multilingual_v2", got.ModelID)
	assert.Equal(t, 0.4, got.VoiceSettings.Stability)
	assert.Equal(t, 0.8, got.VoiceSettings.SimilarityBoost)
	assert.Equal(t, 0.7, got.VoiceSettings.Style)
	assert.True(t, got.VoiceSettings.UseSpeakerBoost)
}

func TestElevenLabsAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusUnauthorized)
	}))
	defer server.Close()

	p := NewElevenLabsProvider(zerolog.Nop(), ElevenLabsConfig{APIKey: "k", BaseURL: server.URL}, time.Second)
	_, err := p.Synthesize(context.Background(), &SynthesizeRequest{Text: "hi"})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Contains(t, apiErr.Body, "quota exceeded")
}

func TestElevenLabsWithoutKey(t *testing.T) {
	t.Setenv("ELEVENLABS_API_KEY", "")
	p := NewElevenLabsProvider(zerolog.Nop(), ElevenLabsConfig{}, 0)

	_, err := p.Synthesize(context.Background(), &SynthesizeRequest{Text: "hi"})
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.ErrorIs(t, p.Health(context.Background()), ErrProviderUnavailable)
}

func TestElevenLabsKeyFromEnv(t *testing.T) {
	t.Setenv("ELEVENLABS_API_KEY", "from-env")
	p := NewElevenLabsProvider(zerolog.Nop(), ElevenLabsConfig{}, 0)
	assert.True(t, p.IsAvailable())
}

func TestElevenLabsListVoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/voices", r.URL.Path)
		_, _ = w.Write([]byte(`{"voices":[{"voice_id":"v1","name":"Rin","labels":{"gender":"female","language":"en"}}]}`))
	}))
	defer server.Close()

	p := NewElevenLabsProvider(zerolog.Nop(), ElevenLabsConfig{APIKey: "k", BaseURL: server.URL}, time.Second)
	voices, err := p.ListVoices(context.Background())
	require.NoError(t, err)
	require.Len(t, voices, 1)
	assert.Equal(t, Voice{ID: "v1", Name: "Rin", Language: "en", Gender: "female"}, voices[0])
}

func TestSynthesizeRejectsBadText(t *testing.T) {
	p := NewElevenLabsProvider(zerolog.Nop(), ElevenLabsConfig{APIKey: "k"}, 0)

	_, err := p.Synthesize(context.Background(), &SynthesizeRequest{})
	assert.ErrorIs(t, err, ErrEmptyText)

	long := make([]rune, 5001)
	for i := range long {
		long[i] = 'a'
	}
	_, err = p.Synthesize(context.Background(), &SynthesizeRequest{Text: string(long)})
	assert.ErrorIs(t, err, ErrTextTooLong)
}

func TestOpenAISynthesize(t *testing.T) {
	var got openAITTSRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/speech", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte("OggS"))
	}))
	defer server.Close()

	cfg := DefaultOpenAIConfig()
	cfg.APIKey = "sk-test"
	cfg.BaseURL = server.URL + "/"
	p := NewOpenAIProvider(zerolog.Nop(), cfg, time.Second)

	resp, err := p.Synthesize(context.Background(), &SynthesizeRequest{Text: "hey", VoiceID: "robot", Format: "opus"})
	require.NoError(t, err)
	assert.Equal(t, []byte("OggS"), resp.Audio)
	assert.Equal(t, "audio/ogg", resp.ContentType)
	assert.Equal(t, VoiceNova, resp.VoiceID)

	assert.Equal(t, "tts-1", got.Model)
	assert.Equal(t, VoiceNova, got.Voice)
	assert.Equal(t, "opus", got.ResponseFormat)
	assert.Equal(t, 1.0, got.Speed)
}

func TestOpenAIAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer server.Close()

	p := NewOpenAIProvider(zerolog.Nop(), OpenAIConfig{APIKey: "k", BaseURL: server.URL}, time.Second)
	_, err := p.Synthesize(context.Background(), &SynthesizeRequest{Text: "hi"})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "openai", apiErr.Provider)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
}

func TestContentTypeFor(t *testing.T) {
	tests := map[string]string{
		"mp3":        "audio/mpeg",
		"":           "audio/mpeg",
		"ogg_vorbis": "audio/ogg",
		"opus":       "audio/ogg",
		"wav":        "audio/wav",
		"pcm":        "audio/L16",
	}
	for format, want := range tests {
		t.Run(format, func(t *testing.T) {
			assert.Equal(t, want, contentTypeFor(format))
		})
	}
}

func TestFactory(t *testing.T) {
	cfg := DefaultConfig()

	p, err := New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "elevenlabs", p.Name())

	cfg.Provider = "OpenAI"
	p, err = New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())

	cfg.Provider = "festival"
	_, err = New(context.Background(), cfg, zerolog.Nop())
	assert.ErrorIs(t, err, ErrUnknownProvider)
}
