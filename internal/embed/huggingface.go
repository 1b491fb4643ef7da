package embed

import (
	"context"
	"net/http"
	"strings"
)

// huggingFaceGenerator calls the HuggingFace inference API feature
// extraction pipeline.
type huggingFaceGenerator struct {
	baseURL    string
	model      string
	apiKey     string
	dimensions int
	client     *http.Client
}

type huggingFaceRequest struct {
	Inputs  []string          `json:"inputs"`
	Options huggingFaceOption `json:"options"`
}

type huggingFaceOption struct {
	WaitForModel bool `json:"wait_for_model"`
}

func newHuggingFaceGenerator(baseURL, model, apiKey string, dimensions int, client *http.Client) *huggingFaceGenerator {
	return &huggingFaceGenerator{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		apiKey:     apiKey,
		dimensions: dimensions,
		client:     client,
	}
}

func (g *huggingFaceGenerator) Name() string    { return "HuggingFace" }
func (g *huggingFaceGenerator) Model() string   { return g.model }
func (g *huggingFaceGenerator) Dimensions() int { return g.dimensions }

func (g *huggingFaceGenerator) Embed(ctx context.Context, texts []string) ([]Embedding, error) {
	if len(texts) == 0 {
		return []Embedding{}, nil
	}

	endpoint := g.baseURL + "/pipeline/feature-extraction/" + g.model

	headers := map[string]string{}
	if g.apiKey != "" {
		headers["Authorization"] = "Bearer " + g.apiKey
	}

	var vectors [][]float32
	body := huggingFaceRequest{Inputs: texts, Options: huggingFaceOption{WaitForModel: true}}
	if err := postJSON(ctx, g.client, endpoint, headers, body, &vectors); err != nil {
		return nil, err
	}

	out := make([]Embedding, len(vectors))
	for i, v := range vectors {
		out[i] = Embedding{Vector: v}
	}
	if err := checkBatch(g, texts, out); err != nil {
		return nil, err
	}
	return out, nil
}
