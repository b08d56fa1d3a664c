package embed

import (
	"github.com/semidex/semidex/internal/config"
)

// FromConfig constructs the embedder named by the configuration.
func FromConfig(cfg *config.Config) (Embedder, error) {
	switch cfg.SelectedProvider() {
	case config.ProviderOllama:
		return NewOllama(OllamaConfig{
			BaseURL:    cfg.OllamaBaseURL,
			Model:      cfg.EmbeddingModel,
			Dimensions: cfg.EmbeddingDimension,
		})
	case config.ProviderCompat:
		return NewCompatible(OpenAIConfig{
			APIKey:     cfg.CompatAPIKey,
			BaseURL:    cfg.CompatBaseURL,
			Model:      cfg.EmbeddingModel,
			Dimensions: cfg.EmbeddingDimension,
		})
	default:
		return NewOpenAI(OpenAIConfig{
			APIKey:     cfg.OpenAIAPIKey,
			Model:      cfg.EmbeddingModel,
			Dimensions: cfg.EmbeddingDimension,
		})
	}
}
