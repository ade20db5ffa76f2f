package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProxyStub(t *testing.T, handler http.HandlerFunc) *ProxyClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewProxyClient(srv.URL+"/", 5*time.Second, zerolog.Nop())
}

func TestProxyClientChat(t *testing.T) {
	client := newProxyStub(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "hello", req["message"])

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"response": "Hi there!"})
	})

	reply, err := client.Chat(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "Hi there!", reply)
}

func TestProxyClientChatError(t *testing.T) {
	client := newProxyStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Failed to get response from Ollama","details":"connection refused"}`))
	})

	_, err := client.Chat(context.Background(), "hello")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.Equal(t, "/api/chat", apiErr.Endpoint)
	assert.Equal(t, "Failed to get response from Ollama", apiErr.Message)
	assert.Equal(t, "connection refused", apiErr.Details)
}

func TestProxyClientPlainTextError(t *testing.T) {
	client := newProxyStub(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})

	_, err := client.Synthesize(context.Background(), "hi")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "bad gateway", apiErr.Message)
	assert.Equal(t, "/api/tts", apiErr.Endpoint)
}

func TestProxyClientSynthesize(t *testing.T) {
	audio := []byte{0x49, 0x44, 0x33, 0x04, 0x00}
	client := newProxyStub(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tts", r.URL.Path)
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Hi there!", req["text"])

		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write(audio)
	})

	speech, err := client.Synthesize(context.Background(), "Hi there!")
	require.NoError(t, err)
	assert.Equal(t, audio, speech.Audio)
	assert.Equal(t, "audio/mpeg", speech.ContentType)
}

func TestProxyClientContextCancelled(t *testing.T) {
	client := newProxyStub(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := client.Chat(ctx, "hello")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
