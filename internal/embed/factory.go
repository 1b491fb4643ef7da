package embed

import (
	"fmt"
	"net/http"

	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"

	"github.com/mvp-joe/kernel-memory/internal/config"
)

// Options carries the shared collaborators of every generator.
type Options struct {
	// HTTPClient is used by the Ollama and HuggingFace generators.
	HTTPClient *http.Client

	// OpenAIOptions are appended to the OpenAI client options (tests point
	// the client at a local server with these).
	OpenAIOptions []option.RequestOption

	// Cache, when set, wraps the generator in Cached.
	Cache Store

	Logger zerolog.Logger
}

// New creates the generator described by cfg producing vectors of the given
// dimensionality.
func New(cfg config.EmbeddingsConfig, dimensions int, opts Options) (Generator, error) {
	client := opts.HTTPClient
	if client == nil {
		client = defaultHTTPClient()
	}

	var g Generator
	switch c := cfg.(type) {
	case *config.OllamaEmbeddingsConfig:
		g = newOllamaGenerator(c.BaseURL, c.Model, dimensions, client)
	case *config.OpenAIEmbeddingsConfig:
		g = newOpenAIGenerator(c.APIKey, c.BaseURL, c.Model, dimensions, opts.OpenAIOptions...)
	case *config.AzureOpenAIEmbeddingsConfig:
		if c.UseManagedIdentity {
			return nil, fmt.Errorf("%w: azureOpenAI managed identity", ErrUnsupported)
		}
		g = newAzureOpenAIGenerator(c.Endpoint, c.Deployment, c.APIVersion, c.APIKey, dimensions, opts.OpenAIOptions...)
	case *config.HuggingFaceEmbeddingsConfig:
		g = newHuggingFaceGenerator(c.BaseURL, c.Model, c.APIKey, dimensions, client)
	case nil:
		return nil, fmt.Errorf("%w: no embeddings configured", ErrUnsupported)
	default:
		return nil, fmt.Errorf("%w: embeddings type %s", ErrUnsupported, cfg.TypeName())
	}

	if opts.Cache != nil {
		return NewCached(g, opts.Cache, opts.Logger), nil
	}
	return g, nil
}
