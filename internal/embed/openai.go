package embed

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"
)

// openAIGenerator serves both OpenAI and Azure OpenAI. For Azure the model
// is the deployment name.
type openAIGenerator struct {
	client     openai.Client
	name       string
	model      string
	dimensions int
	// sendDimensions is set for models that accept a dimensions parameter.
	sendDimensions bool
}

func newOpenAIGenerator(apiKey, baseURL, model string, dimensions int, extra ...option.RequestOption) *openAIGenerator {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	opts = append(opts, extra...)

	return &openAIGenerator{
		client:         openai.NewClient(opts...),
		name:           "OpenAI",
		model:          model,
		dimensions:     dimensions,
		sendDimensions: strings.HasPrefix(model, "text-embedding-3"),
	}
}

func newAzureOpenAIGenerator(endpoint, deployment, apiVersion, apiKey string, dimensions int, extra ...option.RequestOption) *openAIGenerator {
	opts := []option.RequestOption{
		azure.WithEndpoint(endpoint, apiVersion),
		azure.WithAPIKey(apiKey),
	}
	opts = append(opts, extra...)

	return &openAIGenerator{
		client:         openai.NewClient(opts...),
		name:           "AzureOpenAI",
		model:          deployment,
		dimensions:     dimensions,
		sendDimensions: true,
	}
}

func (g *openAIGenerator) Name() string    { return g.name }
func (g *openAIGenerator) Model() string   { return g.model }
func (g *openAIGenerator) Dimensions() int { return g.dimensions }

// Embed sends one request for the batch. Usage is reported per request, so
// TokenCount is only set when a single text was embedded.
func (g *openAIGenerator) Embed(ctx context.Context, texts []string) ([]Embedding, error) {
	if len(texts) == 0 {
		return []Embedding{}, nil
	}

	params := openai.EmbeddingNewParams{
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model:          openai.EmbeddingModel(g.model),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	}
	if g.sendDimensions && g.dimensions > 0 {
		params.Dimensions = openai.Int(int64(g.dimensions))
	}

	resp, err := g.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%s embeddings request failed: %w", g.name, err)
	}

	out := make([]Embedding, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) {
			return nil, fmt.Errorf("%s returned embedding index %d for %d texts", g.name, d.Index, len(texts))
		}
		vec := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			vec[i] = float32(f)
		}
		out[d.Index] = Embedding{Vector: vec}
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%s returned %d embeddings for %d texts", g.name, len(resp.Data), len(texts))
	}
	if len(texts) == 1 && resp.Usage.PromptTokens > 0 {
		out[0].TokenCount = intPtr(int(resp.Usage.PromptTokens))
	}

	if err := checkBatch(g, texts, out); err != nil {
		return nil, err
	}
	return out, nil
}
