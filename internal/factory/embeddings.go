package factory

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Thianvelaz/Cognio/internal/config"
	emb "github.com/Thianvelaz/Cognio/internal/embeddings"
	"github.com/Thianvelaz/Cognio/internal/embeddings/cache"
	"github.com/Thianvelaz/Cognio/internal/embeddings/hashing"
	"github.com/Thianvelaz/Cognio/internal/embeddings/ollama"
	"github.com/Thianvelaz/Cognio/internal/embeddings/openai"
)

// NewEmbeddingProvider builds the configured provider, optionally cached.
// Vector length is checked by the memory service. Remote providers are warmed up
// in the background so startup is not blocked.
func NewEmbeddingProvider(ctx context.Context, cfg *config.Config, log zerolog.Logger) (emb.Provider, error) {
	var provider emb.Provider
	remote := true

	switch cfg.EmbedProvider {
	case "", "hashing":
		provider = hashing.New(cfg.EmbedDimension)
		remote = false
	case "ollama":
		provider = ollama.New(cfg.OllamaURL, cfg.EmbedModel)
	case "openai":
		provider = openai.New(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.EmbedModel, cfg.EmbedDimension)
	default:
		return nil, fmt.Errorf("unknown EMBED_PROVIDER: %s", cfg.EmbedProvider)
	}

	if cfg.EmbedCacheSize > 0 {
		cached, err := cache.Wrap(provider, cfg.EmbedCacheSize)
		if err != nil {
			return nil, fmt.Errorf("embedding cache: %w", err)
		}
		provider = cached
	}

	if remote {
		go func() {
			warmupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()

			if _, err := provider.Embed(warmupCtx, "factory-warmup-check"); err != nil {
				log.Warn().Err(err).
					Str("provider", cfg.EmbedProvider).Str("model", cfg.EmbedModel).
					Msg("embedding provider warmup failed")
			} else {
				log.Debug().Str("provider", cfg.EmbedProvider).Str("model", cfg.EmbedModel).
					Msg("embedding provider warmup completed")
			}
		}()
	}
	return provider, nil
}
