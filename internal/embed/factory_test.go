package embed

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/kernel-memory/internal/config"
)

// Test Plan for New():
// - Creates a generator per embeddings variant with the configured dimensions
// - Wraps the generator in Cached when a cache is given
// - Rejects Azure managed identity and a nil config with ErrUnsupported

func TestNew_Variants(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  config.EmbeddingsConfig
		want string
	}{
		{"ollama", &config.OllamaEmbeddingsConfig{Model: "m", BaseURL: config.DefaultOllamaBaseURL}, "Ollama"},
		{"openai", &config.OpenAIEmbeddingsConfig{Model: "m", APIKey: "k"}, "OpenAI"},
		{"azure", &config.AzureOpenAIEmbeddingsConfig{Endpoint: "https://x", Deployment: "d", APIKey: "k", APIVersion: "v"}, "AzureOpenAI"},
		{"huggingface", &config.HuggingFaceEmbeddingsConfig{Model: "m", BaseURL: config.DefaultHuggingFaceBaseURL}, "HuggingFace"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g, err := New(tt.cfg, 768, Options{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, g.Name())
			assert.Equal(t, 768, g.Dimensions())
		})
	}
}

func TestNew_WithCache(t *testing.T) {
	t.Parallel()

	g, err := New(&config.OllamaEmbeddingsConfig{Model: "m"}, 3, Options{Cache: newMemStore(), Logger: zerolog.Nop()})
	require.NoError(t, err)
	assert.IsType(t, &Cached{}, g)
	assert.Equal(t, "Ollama", g.Name())
}

func TestNew_Unsupported(t *testing.T) {
	t.Parallel()

	_, err := New(&config.AzureOpenAIEmbeddingsConfig{Endpoint: "https://x", Deployment: "d", UseManagedIdentity: true}, 3, Options{})
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = New(nil, 3, Options{})
	assert.ErrorIs(t, err, ErrUnsupported)
}
