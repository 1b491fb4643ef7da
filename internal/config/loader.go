package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// Loader provides configuration loading capabilities.
type Loader interface {
	// Load reads the configuration file, creating a default one when the
	// file does not exist.
	Load() (*AppConfig, error)
}

type loader struct {
	path string
}

// NewLoader creates a loader for the configuration file at path.
func NewLoader(path string) Loader {
	return &loader{path: path}
}

func (l *loader) Load() (*AppConfig, error) {
	return LoadFromFile(l.path)
}

// LoadFromFile loads and validates the configuration at path.
//
// When the file is missing, parent directories are created and a default
// configuration rooted at the file's directory is written and returned.
// I/O errors are returned as-is; parse and validation failures are
// *ConfigError values.
func LoadFromFile(path string) (*AppConfig, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return createDefaultFile(path)
	}
	if err != nil {
		return nil, err
	}

	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}
	cfg.resolvePaths(ExpandPath)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func createDefaultFile(path string) (*AppConfig, error) {
	dir := filepath.Dir(path)
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	cfg := CreateDefault(dir)
	if err := Save(cfg, path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg as indented JSON. Optional sections that are unset are
// omitted rather than written as null.
func Save(cfg *AppConfig, path string) error {
	data, err := Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Marshal renders cfg in the on-disk format.
func Marshal(cfg *AppConfig) ([]byte, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// CreateDefault builds the configuration used on first run: a single
// "personal" node under baseDir with full-text and vector search, plus an
// SQLite embeddings cache.
func CreateDefault(baseDir string) *AppConfig {
	nodeDir := filepath.Join(baseDir, "nodes", DefaultNodeID)

	return &AppConfig{
		Nodes: map[string]*NodeConfig{
			DefaultNodeID: {
				ID:     DefaultNodeID,
				Access: AccessFull,
				Weight: 1.0,
				ContentIndex: &SqliteContentIndexConfig{
					Path: filepath.Join(nodeDir, "content.db"),
				},
				SearchIndexes: []SearchIndexConfig{
					&SqliteFTSIndexConfig{
						SearchIndexBase: SearchIndexBase{ID: "sqlite-fts", Required: true},
						Path:            filepath.Join(nodeDir, "fts.db"),
						EnableStemming:  true,
					},
					&SqliteVectorIndexConfig{
						SearchIndexBase: SearchIndexBase{ID: "sqlite-vector"},
						Path:            filepath.Join(nodeDir, "vector.db"),
						Dimensions:      1024,
						Embeddings: &OllamaEmbeddingsConfig{
							Model:   "qwen3-embedding:0.6b",
							BaseURL: DefaultOllamaBaseURL,
						},
					},
				},
			},
		},
		EmbeddingsCache: &CacheConfig{
			Type:       CacheTypeSqlite,
			Path:       filepath.Join(baseDir, "embeddings-cache.db"),
			AllowRead:  true,
			AllowWrite: true,
		},
		Search: DefaultSearchConfig(),
	}
}
