package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/kernel-memory/internal/config"
)

// Test Plan for provider generators:
// - Ollama posts {model, input} to /api/embed and returns vectors in order
// - HuggingFace posts to /pipeline/feature-extraction/<model> with a bearer token
// - OpenAI sends the dimensions parameter for text-embedding-3 models and reorders by index
// - Azure OpenAI routes to the deployment and authenticates with api-key
// - Non-200 responses surface the status code
// - Vectors of the wrong length fail with ErrDimensionMismatch
// - Empty input makes no request

func TestOllamaGenerator_Embed(t *testing.T) {
	t.Parallel()

	var got ollamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]any{
			"embeddings": [][]float32{{1, 0, 0}, {0, 1, 0}},
		})
	}))
	defer srv.Close()

	g, err := New(&config.OllamaEmbeddingsConfig{Model: "qwen3-embedding:0.6b", BaseURL: srv.URL + "/"}, 3, Options{})
	require.NoError(t, err)
	assert.Equal(t, "Ollama", g.Name())

	out, err := g.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, "qwen3-embedding:0.6b", got.Model)
	assert.Equal(t, []string{"a", "b"}, got.Input)
	require.Len(t, out, 2)
	assert.Equal(t, []float32{0, 1, 0}, out[1].Vector)
	assert.Nil(t, out[0].TokenCount)
}

func TestOllamaGenerator_Errors(t *testing.T) {
	t.Parallel()

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer failing.Close()

	g := newOllamaGenerator(failing.URL, "m", 3, failing.Client())
	_, err := g.Embed(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "model not found")

	wrongDims := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float32{{1, 2}}})
	}))
	defer wrongDims.Close()

	g = newOllamaGenerator(wrongDims.URL, "m", 3, wrongDims.Client())
	_, err = g.Embed(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestOllamaGenerator_EmptyInput(t *testing.T) {
	t.Parallel()

	g := newOllamaGenerator("http://127.0.0.1:1", "m", 3, http.DefaultClient)
	out, err := g.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestHuggingFaceGenerator_Embed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pipeline/feature-extraction/sentence-transformers/all-MiniLM-L6-v2", r.URL.Path)
		assert.Equal(t, "Bearer hf-key", r.Header.Get("Authorization"))

		var req huggingFaceRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Options.WaitForModel)
		json.NewEncoder(w).Encode([][]float32{{0.5, 0.5}})
	}))
	defer srv.Close()

	g, err := New(&config.HuggingFaceEmbeddingsConfig{
		Model:   "sentence-transformers/all-MiniLM-L6-v2",
		APIKey:  "hf-key",
		BaseURL: srv.URL,
	}, 2, Options{HTTPClient: srv.Client()})
	require.NoError(t, err)

	out, err := g.Embed(context.Background(), []string{"hello"})
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.5}, out[0].Vector)
}

func openAIHandler(t *testing.T, check func(r *http.Request, body map[string]any)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		check(r, body)

		inputs := body["input"].([]any)
		data := make([]map[string]any, 0, len(inputs))
		// reversed order exercises index-based placement
		for i := len(inputs) - 1; i >= 0; i-- {
			data = append(data, map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float64{float64(i), 1},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  body["model"],
			"usage":  map[string]any{"prompt_tokens": 4, "total_tokens": 4},
		})
	}
}

func TestOpenAIGenerator_Embed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(openAIHandler(t, func(r *http.Request, body map[string]any) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/embeddings"))
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "text-embedding-3-small", body["model"])
		assert.EqualValues(t, 2, body["dimensions"])
	}))
	defer srv.Close()

	g, err := New(&config.OpenAIEmbeddingsConfig{Model: "text-embedding-3-small", APIKey: "sk-test", BaseURL: srv.URL},
		2, Options{OpenAIOptions: []option.RequestOption{option.WithMaxRetries(0)}})
	require.NoError(t, err)
	assert.Equal(t, "OpenAI", g.Name())

	out, err := g.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, []float32{0, 1}, out[0].Vector)
	assert.Equal(t, []float32{1, 1}, out[1].Vector)
	assert.Nil(t, out[0].TokenCount)

	single, err := EmbedOne(context.Background(), g, "a")
	require.NoError(t, err)
	require.NotNil(t, single.TokenCount)
	assert.Equal(t, 4, *single.TokenCount)
}

func TestOpenAIGenerator_LegacyModelOmitsDimensions(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(openAIHandler(t, func(r *http.Request, body map[string]any) {
		_, ok := body["dimensions"]
		assert.False(t, ok)
	}))
	defer srv.Close()

	g := newOpenAIGenerator("sk", srv.URL, "text-embedding-ada-002", 2, option.WithMaxRetries(0))
	_, err := g.Embed(context.Background(), []string{"x"})
	require.NoError(t, err)
}

func TestAzureOpenAIGenerator_Embed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(openAIHandler(t, func(r *http.Request, body map[string]any) {
		assert.Contains(t, r.URL.Path, "/openai/deployments/emb/embeddings")
		assert.Equal(t, config.DefaultAzureAPIVersion, r.URL.Query().Get("api-version"))
		assert.Equal(t, "azure-key", r.Header.Get("Api-Key"))
	}))
	defer srv.Close()

	g, err := New(&config.AzureOpenAIEmbeddingsConfig{
		Endpoint:   srv.URL,
		Deployment: "emb",
		APIVersion: config.DefaultAzureAPIVersion,
		APIKey:     "azure-key",
	}, 2, Options{OpenAIOptions: []option.RequestOption{option.WithMaxRetries(0)}})
	require.NoError(t, err)
	assert.Equal(t, "AzureOpenAI", g.Name())
	assert.Equal(t, "emb", g.Model())

	out, err := g.Embed(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Len(t, out, 1)
}
