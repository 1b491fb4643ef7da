package config

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for Validate:
// - Rejects nil config and empty Nodes with ErrNoNodes
// - Rejects empty node key, empty Id and Id/key mismatch
// - Rejects unknown access levels
// - Rejects every negative weight; accepts zero and positive weights
// - Requires a content index and its Path/ConnectionString
// - Enforces Azure Blobs authentication exclusivity (both, neither, partial)
// - Requires positive Dimensions and an embeddings provider for vector indexes
// - Enforces Azure OpenAI ApiKey XOR UseManagedIdentity
// - Rejects duplicate search index ids within a node
// - Enforces cache Path XOR ConnectionString per type
// - DefaultMinRelevance outside [0,1] fails citing the field
// - DefaultLimit, MaxResultsPerNode, MaxQueryDepth must be positive
// - SearchTimeoutSeconds and SnippetLength must be non-negative
// - Contradictory DefaultNodes/ExcludeNodes fail unless the wildcard is used
// - DefaultNodes must reference configured nodes
// - Highlight markers must be non-empty
// - Traversal is deterministic: the first failing node in sorted order is reported

func validConfig() *AppConfig {
	return &AppConfig{
		Nodes: map[string]*NodeConfig{
			"a": {
				ID:           "a",
				Access:       AccessFull,
				Weight:       1,
				ContentIndex: &SqliteContentIndexConfig{Path: "a.db"},
				SearchIndexes: []SearchIndexConfig{
					&SqliteFTSIndexConfig{SearchIndexBase: SearchIndexBase{ID: "fts"}, Path: "fts.db"},
				},
			},
			"b": {
				ID:           "b",
				Access:       AccessReadOnly,
				Weight:       0.5,
				ContentIndex: &SqliteContentIndexConfig{Path: "b.db"},
			},
		},
		Search: DefaultSearchConfig(),
	}
}

func requireConfigError(t *testing.T, err error, path string, msgContains string) {
	t.Helper()
	require.Error(t, err)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, path, cfgErr.ConfigPath)
	assert.Contains(t, cfgErr.Message, msgContains)
}

func TestValidate_AcceptsValidConfig(t *testing.T) {
	t.Parallel()
	require.NoError(t, Validate(validConfig()))
}

func TestValidate_NoNodes(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, Validate(nil), ErrNoNodes)

	cfg := validConfig()
	cfg.Nodes = map[string]*NodeConfig{}
	err := Validate(cfg)
	require.ErrorIs(t, err, ErrNoNodes)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidate_NodeIdentity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*AppConfig)
		path   string
		msg    string
	}{
		{
			name: "empty key",
			mutate: func(c *AppConfig) {
				c.Nodes[""] = &NodeConfig{ID: "", Access: AccessFull, ContentIndex: &SqliteContentIndexConfig{Path: "x"}}
			},
			path: "Nodes",
			msg:  "non-empty",
		},
		{
			name:   "empty id",
			mutate: func(c *AppConfig) { c.Nodes["a"].ID = "" },
			path:   "Nodes.a.Id",
			msg:    "required",
		},
		{
			name:   "id mismatch",
			mutate: func(c *AppConfig) { c.Nodes["a"].ID = "z" },
			path:   "Nodes.a.Id",
			msg:    "must match",
		},
		{
			name:   "bad access",
			mutate: func(c *AppConfig) { c.Nodes["a"].Access = "Admin" },
			path:   "Nodes.a.Access",
			msg:    "Full or ReadOnly",
		},
		{
			name:   "missing content index",
			mutate: func(c *AppConfig) { c.Nodes["a"].ContentIndex = nil },
			path:   "Nodes.a.ContentIndex",
			msg:    "required",
		},
		{
			name:   "content index without path",
			mutate: func(c *AppConfig) { c.Nodes["a"].ContentIndex = &SqliteContentIndexConfig{} },
			path:   "Nodes.a.ContentIndex.Path",
			msg:    "required",
		},
		{
			name:   "postgres without connection string",
			mutate: func(c *AppConfig) { c.Nodes["a"].ContentIndex = &PostgresContentIndexConfig{} },
			path:   "Nodes.a.ContentIndex.ConnectionString",
			msg:    "required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(cfg)
			requireConfigError(t, Validate(cfg), tt.path, tt.msg)
		})
	}
}

func TestValidate_Weight(t *testing.T) {
	t.Parallel()

	for _, w := range []float64{-0.0001, -1, -100} {
		cfg := validConfig()
		cfg.Nodes["a"].Weight = w
		err := Validate(cfg)
		require.Error(t, err, "weight %v", w)
		var cfgErr *ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Contains(t, cfgErr.ConfigPath, "Weight")
		assert.Contains(t, cfgErr.Message, "non-negative")
	}

	for _, w := range []float64{0, 0.5, 1, 42} {
		cfg := validConfig()
		cfg.Nodes["a"].Weight = w
		assert.NoError(t, Validate(cfg), "weight %v", w)
	}
}

func TestValidate_AzureBlobsAuthentication(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		storage *AzureBlobsStorageConfig
		path    string
		msg     string
	}{
		{
			name:    "connection string and api key",
			storage: &AzureBlobsStorageConfig{Container: "c", ConnectionString: "cs", APIKey: "k"},
			path:    "Nodes.a.FileStorage.ConnectionString",
			msg:     "Specify only one authentication method",
		},
		{
			name:    "connection string and account",
			storage: &AzureBlobsStorageConfig{Container: "c", ConnectionString: "cs", Account: "acct", APIKey: "k"},
			path:    "Nodes.a.FileStorage.ConnectionString",
			msg:     "Specify only one authentication method",
		},
		{
			name:    "neither",
			storage: &AzureBlobsStorageConfig{Container: "c"},
			path:    "Nodes.a.FileStorage.ConnectionString",
			msg:     "requires either ConnectionString or Account+ApiKey",
		},
		{
			name:    "account without key",
			storage: &AzureBlobsStorageConfig{Container: "c", Account: "acct"},
			path:    "Nodes.a.FileStorage.ApiKey",
			msg:     "required",
		},
		{
			name:    "missing container",
			storage: &AzureBlobsStorageConfig{ConnectionString: "cs"},
			path:    "Nodes.a.FileStorage.Container",
			msg:     "required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			cfg.Nodes["a"].FileStorage = tt.storage
			requireConfigError(t, Validate(cfg), tt.path, tt.msg)
		})
	}

	t.Run("valid variants", func(t *testing.T) {
		t.Parallel()
		for _, s := range []*AzureBlobsStorageConfig{
			{Container: "c", ConnectionString: "cs"},
			{Container: "c", Account: "acct", APIKey: "k"},
		} {
			cfg := validConfig()
			cfg.Nodes["a"].RepoStorage = s
			assert.NoError(t, Validate(cfg))
		}
	})
}

func TestValidate_SearchIndexes(t *testing.T) {
	t.Parallel()

	ollama := &OllamaEmbeddingsConfig{Model: "m"}
	tests := []struct {
		name  string
		index SearchIndexConfig
		path  string
		msg   string
	}{
		{
			name:  "missing id",
			index: &SqliteFTSIndexConfig{Path: "x"},
			path:  "Nodes.a.SearchIndexes[1].Id",
			msg:   "required",
		},
		{
			name:  "fts without path",
			index: &BleveFTSIndexConfig{SearchIndexBase: SearchIndexBase{ID: "b"}},
			path:  "Nodes.a.SearchIndexes[1].Path",
			msg:   "required",
		},
		{
			name:  "zero dimensions",
			index: &SqliteVectorIndexConfig{SearchIndexBase: SearchIndexBase{ID: "v"}, Path: "v.db", Embeddings: ollama},
			path:  "Nodes.a.SearchIndexes[1].Dimensions",
			msg:   "positive",
		},
		{
			name:  "missing embeddings",
			index: &ChromemVectorIndexConfig{SearchIndexBase: SearchIndexBase{ID: "v"}, Path: "v", Dimensions: 3},
			path:  "Nodes.a.SearchIndexes[1].Embeddings",
			msg:   "required",
		},
		{
			name:  "embeddings without model",
			index: &SqliteVectorIndexConfig{SearchIndexBase: SearchIndexBase{ID: "v"}, Path: "v.db", Dimensions: 3, Embeddings: &OllamaEmbeddingsConfig{}},
			path:  "Nodes.a.SearchIndexes[1].Embeddings.Model",
			msg:   "required",
		},
		{
			name:  "openai without key",
			index: &SqliteVectorIndexConfig{SearchIndexBase: SearchIndexBase{ID: "v"}, Path: "v.db", Dimensions: 3, Embeddings: &OpenAIEmbeddingsConfig{Model: "m"}},
			path:  "Nodes.a.SearchIndexes[1].Embeddings.ApiKey",
			msg:   "required",
		},
		{
			name: "azure openai with both auth methods",
			index: &SqliteVectorIndexConfig{SearchIndexBase: SearchIndexBase{ID: "v"}, Path: "v.db", Dimensions: 3,
				Embeddings: &AzureOpenAIEmbeddingsConfig{Endpoint: "e", Deployment: "d", APIKey: "k", UseManagedIdentity: true}},
			path: "Nodes.a.SearchIndexes[1].Embeddings.ApiKey",
			msg:  "Specify only one authentication method",
		},
		{
			name: "azure openai with no auth",
			index: &SqliteVectorIndexConfig{SearchIndexBase: SearchIndexBase{ID: "v"}, Path: "v.db", Dimensions: 3,
				Embeddings: &AzureOpenAIEmbeddingsConfig{Endpoint: "e", Deployment: "d"}},
			path: "Nodes.a.SearchIndexes[1].Embeddings.ApiKey",
			msg:  "requires either",
		},
		{
			name:  "duplicate id",
			index: &GraphIndexConfig{SearchIndexBase: SearchIndexBase{ID: "fts"}, Path: "g.db"},
			path:  "Nodes.a.SearchIndexes[1].Id",
			msg:   "Duplicate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			cfg.Nodes["a"].SearchIndexes = append(cfg.Nodes["a"].SearchIndexes, tt.index)
			requireConfigError(t, Validate(cfg), tt.path, tt.msg)
		})
	}
}

func TestValidate_Cache(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		cache *CacheConfig
		path  string
		msg   string
	}{
		{"both", &CacheConfig{Type: CacheTypeSqlite, Path: "p", ConnectionString: "c"}, "EmbeddingsCache", "not both"},
		{"sqlite without path", &CacheConfig{Type: CacheTypeSqlite}, "EmbeddingsCache.Path", "required"},
		{"postgres without connection", &CacheConfig{Type: CacheTypePostgres}, "EmbeddingsCache.ConnectionString", "required"},
		{"postgres with path only", &CacheConfig{Type: CacheTypePostgres, Path: "p"}, "EmbeddingsCache.ConnectionString", "required"},
		{"unknown type", &CacheConfig{Type: "Redis", Path: "p"}, "EmbeddingsCache.Type", "Sqlite or Postgres"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			cfg.EmbeddingsCache = tt.cache
			requireConfigError(t, Validate(cfg), tt.path, tt.msg)
		})
	}

	t.Run("llm cache validated too", func(t *testing.T) {
		t.Parallel()
		cfg := validConfig()
		cfg.LLMCache = &CacheConfig{Type: CacheTypeSqlite}
		requireConfigError(t, Validate(cfg), "LLMCache.Path", "required")
	})
}

func TestValidate_SearchConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*SearchConfig)
		path   string
		msg    string
	}{
		{"min relevance below zero", func(s *SearchConfig) { s.DefaultMinRelevance = -0.1 }, "Search.DefaultMinRelevance", "between 0 and 1"},
		{"min relevance above one", func(s *SearchConfig) { s.DefaultMinRelevance = 1.01 }, "Search.DefaultMinRelevance", "between 0 and 1"},
		{"zero limit", func(s *SearchConfig) { s.DefaultLimit = 0 }, "Search.DefaultLimit", "positive"},
		{"negative timeout", func(s *SearchConfig) { s.SearchTimeoutSeconds = -1 }, "Search.SearchTimeoutSeconds", "non-negative"},
		{"zero max results", func(s *SearchConfig) { s.MaxResultsPerNode = 0 }, "Search.MaxResultsPerNode", "positive"},
		{"empty default nodes", func(s *SearchConfig) { s.DefaultNodes = nil }, "Search.DefaultNodes", "at least one"},
		{"blank default node", func(s *SearchConfig) { s.DefaultNodes = []string{"a", " "} }, "Search.DefaultNodes[1]", "non-empty"},
		{"unknown default node", func(s *SearchConfig) { s.DefaultNodes = []string{"a", "ghost"} }, "Search.DefaultNodes", "unknown node 'ghost'"},
		{"zero depth", func(s *SearchConfig) { s.MaxQueryDepth = 0 }, "Search.MaxQueryDepth", "positive"},
		{"negative snippet", func(s *SearchConfig) { s.SnippetLength = -5 }, "Search.SnippetLength", "non-negative"},
		{"empty prefix", func(s *SearchConfig) { s.HighlightPrefix = "" }, "Search.HighlightPrefix", "non-empty"},
		{"empty suffix", func(s *SearchConfig) { s.HighlightSuffix = "" }, "Search.HighlightSuffix", "non-empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(&cfg.Search)
			requireConfigError(t, Validate(cfg), tt.path, tt.msg)
		})
	}

	t.Run("boundaries accepted", func(t *testing.T) {
		t.Parallel()
		for _, r := range []float64{0, 0.5, 1} {
			cfg := validConfig()
			cfg.Search.DefaultMinRelevance = r
			cfg.Search.SearchTimeoutSeconds = 0
			cfg.Search.SnippetLength = 0
			assert.NoError(t, Validate(cfg), "relevance %v", r)
		}
	})
}

func TestValidate_ContradictoryNodes(t *testing.T) {
	t.Parallel()

	pairs := []struct {
		defaults []string
		exclude  []string
	}{
		{[]string{"a"}, []string{"a"}},
		{[]string{"a", "b"}, []string{"b"}},
		{[]string{"b"}, []string{"x", "b"}},
	}
	for _, p := range pairs {
		cfg := validConfig()
		cfg.Search.DefaultNodes = p.defaults
		cfg.Search.ExcludeNodes = p.exclude
		err := Validate(cfg)
		require.Error(t, err, fmt.Sprintf("%v / %v", p.defaults, p.exclude))
		assert.Contains(t, err.Error(), "Contradictory")
	}

	// Test: the wildcard makes exclusions legitimate
	cfg := validConfig()
	cfg.Search.DefaultNodes = []string{AllNodes}
	cfg.Search.ExcludeNodes = []string{"a"}
	assert.NoError(t, Validate(cfg))

	// Test: contradiction is reported before unknown-node checks
	cfg = validConfig()
	cfg.Search.DefaultNodes = []string{"ghost", "a"}
	cfg.Search.ExcludeNodes = []string{"a"}
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Contradictory")
}

func TestValidate_DeterministicNodeOrder(t *testing.T) {
	t.Parallel()

	for i := 0; i < 20; i++ {
		cfg := validConfig()
		cfg.Nodes["a"].Weight = -1
		cfg.Nodes["b"].Weight = -1
		requireConfigError(t, Validate(cfg), "Nodes.a.Weight", "non-negative")
	}
}
