package embed

import (
	"context"
	"net/http"
	"strings"
)

// ollamaGenerator calls a local Ollama server's /api/embed endpoint.
type ollamaGenerator struct {
	baseURL    string
	model      string
	dimensions int
	client     *http.Client
}

type ollamaRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func newOllamaGenerator(baseURL, model string, dimensions int, client *http.Client) *ollamaGenerator {
	return &ollamaGenerator{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		dimensions: dimensions,
		client:     client,
	}
}

func (g *ollamaGenerator) Name() string    { return "Ollama" }
func (g *ollamaGenerator) Model() string   { return g.model }
func (g *ollamaGenerator) Dimensions() int { return g.dimensions }

// Embed sends the whole batch in one request. Ollama reports only a batch
// token total, so TokenCount stays nil.
func (g *ollamaGenerator) Embed(ctx context.Context, texts []string) ([]Embedding, error) {
	if len(texts) == 0 {
		return []Embedding{}, nil
	}

	var resp ollamaResponse
	err := postJSON(ctx, g.client, g.baseURL+"/api/embed", nil, ollamaRequest{Model: g.model, Input: texts}, &resp)
	if err != nil {
		return nil, err
	}

	out := make([]Embedding, len(resp.Embeddings))
	for i, v := range resp.Embeddings {
		out[i] = Embedding{Vector: v}
	}
	if err := checkBatch(g, texts, out); err != nil {
		return nil, err
	}
	return out, nil
}
