package tts

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// New builds the provider named by cfg.Provider.
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (Provider, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if name == "" {
		name = "elevenlabs"
	}

	switch name {
	case "elevenlabs":
		return NewElevenLabsProvider(logger, cfg.ElevenLabs, cfg.Timeout), nil
	case "openai":
		return NewOpenAIProvider(logger, cfg.OpenAI, cfg.Timeout), nil
	case "polly":
		return NewPollyProvider(ctx, cfg.Polly, logger)
	case "gcp", "google":
		return NewGCPProvider(ctx, cfg.GCP, logger)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
}
