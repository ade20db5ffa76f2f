package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatSendsPrompt(t *testing.T) {
	var got generateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"model":"llama2","response":"Hi there! 😊","done":true}`))
	}))
	defer server.Close()

	c := NewClient(Config{URL: server.URL}, zerolog.Nop())
	reply, err := c.Chat(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "Hi there! 😊", reply)

	assert.Equal(t, "llama2", got.Model)
	assert.False(t, got.Stream)
	assert.Equal(t, DefaultSystemPrompt+"\nUser: hello\nAI:", got.Prompt)
}

func TestChatErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{name: "empty response", status: http.StatusOK, body: `{"response":""}`, wantErr: ErrEmptyResponse},
		{name: "status", status: http.StatusNotFound, body: `model "llama2" not found`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewClient(Config{URL: server.URL}, zerolog.Nop()).Chat(context.Background(), "hi")
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			var statusErr *StatusError
			require.ErrorAs(t, err, &statusErr)
			assert.Equal(t, tt.status, statusErr.Status)
			assert.Contains(t, statusErr.Body, "not found")
		})
	}
}

func TestChatRejectsBlank(t *testing.T) {
	_, err := NewClient(Config{}, zerolog.Nop()).Chat(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestChatConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewClient(Config{URL: url}, zerolog.Nop()).Chat(context.Background(), "hi")
	assert.ErrorContains(t, err, "request failed")
}
