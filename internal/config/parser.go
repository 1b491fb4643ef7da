package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/tidwall/jsonc"
)

// ParseFromString parses and validates a configuration document without
// touching the filesystem. Comments ("//" and "/* */") are allowed and keys
// match case-insensitively.
func ParseFromString(content string) (*AppConfig, error) {
	cfg, err := parse([]byte(content))
	if err != nil {
		return nil, err
	}
	cfg.resolvePaths(ExpandPath)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parse decodes a document into an AppConfig with defaults applied.
// It performs no validation.
func parse(data []byte) (*AppConfig, error) {
	clean := jsonc.ToJSON(data)

	var raw map[string]any
	if err := json.Unmarshal(clean, &raw); err != nil {
		return nil, parseError(clean, err)
	}
	if raw == nil {
		return nil, &ConfigError{Message: "Failed to parse configuration: document is empty"}
	}

	cfg := &AppConfig{}
	if err := decode(raw, cfg); err != nil {
		return nil, &ConfigError{
			Message: "Failed to parse configuration: " + err.Error(),
			Err:     err,
		}
	}
	return cfg, nil
}

func parseError(data []byte, err error) error {
	var offset int64 = -1
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr):
		offset = syntaxErr.Offset
	case errors.As(err, &typeErr):
		offset = typeErr.Offset
	}

	msg := "Failed to parse configuration: " + strings.TrimPrefix(err.Error(), "json: ")
	if offset >= 0 {
		line, col := lineAndColumn(data, offset)
		msg = fmt.Sprintf("%s (line %d, column %d)", msg, line, col)
	}
	return &ConfigError{Message: msg}
}

// lineAndColumn converts the byte offset reported by encoding/json into
// 1-based line and column numbers. The offset counts the bytes consumed,
// so the offending byte sits at offset-1.
func lineAndColumn(data []byte, offset int64) (int, int) {
	pos := int(offset) - 1
	if pos < 0 {
		pos = 0
	}
	if pos > len(data) {
		pos = len(data)
	}
	before := data[:pos]
	line := bytes.Count(before, []byte("\n")) + 1
	col := pos - bytes.LastIndexByte(before, '\n')
	return line, col
}

func decode(input any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			defaultsHook,
			variantHook,
			enumHook,
		),
		Result: out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

type variantFactory func() variant

var variantFactories = map[reflect.Type]map[string]variantFactory{
	reflect.TypeOf((*ContentIndexConfig)(nil)).Elem(): {
		ContentIndexTypeSqlite:   func() variant { return &SqliteContentIndexConfig{} },
		ContentIndexTypePostgres: func() variant { return &PostgresContentIndexConfig{} },
	},
	reflect.TypeOf((*StorageConfig)(nil)).Elem(): {
		StorageTypeDisk:       func() variant { return &DiskStorageConfig{} },
		StorageTypeAzureBlobs: func() variant { return &AzureBlobsStorageConfig{} },
	},
	reflect.TypeOf((*SearchIndexConfig)(nil)).Elem(): {
		SearchIndexTypeSqliteFTS:     func() variant { return &SqliteFTSIndexConfig{} },
		SearchIndexTypeBleveFTS:      func() variant { return &BleveFTSIndexConfig{} },
		SearchIndexTypeSqliteVector:  func() variant { return &SqliteVectorIndexConfig{} },
		SearchIndexTypeChromemVector: func() variant { return &ChromemVectorIndexConfig{} },
		SearchIndexTypeGraph:         func() variant { return &GraphIndexConfig{} },
	},
	reflect.TypeOf((*EmbeddingsConfig)(nil)).Elem(): {
		EmbeddingsTypeOllama:      func() variant { return &OllamaEmbeddingsConfig{} },
		EmbeddingsTypeOpenAI:      func() variant { return &OpenAIEmbeddingsConfig{} },
		EmbeddingsTypeAzureOpenAI: func() variant { return &AzureOpenAIEmbeddingsConfig{} },
		EmbeddingsTypeHuggingFace: func() variant { return &HuggingFaceEmbeddingsConfig{} },
	},
}

// variantHook replaces a JSON object destined for a polymorphic interface
// field with the concrete variant named by its discriminator.
func variantHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	factories, ok := variantFactories[to]
	if !ok {
		return data, nil
	}
	m, ok := data.(map[string]any)
	if !ok {
		return data, nil
	}

	typeName, ok := discriminator(m)
	if !ok {
		return nil, fmt.Errorf("%w for %s (expected one of %s)", ErrMissingType, to.Name(), knownTypes(factories))
	}

	var factory variantFactory
	for name, f := range factories {
		if strings.EqualFold(name, typeName) {
			factory = f
			break
		}
	}
	if factory == nil {
		return nil, fmt.Errorf("%w '%s' for %s (expected one of %s)", ErrUnknownType, typeName, to.Name(), knownTypes(factories))
	}

	v := factory()
	if err := decode(m, v); err != nil {
		return nil, err
	}
	if d, ok := v.(interface{ applyDefaults() }); ok {
		d.applyDefaults()
	}
	return v, nil
}

func discriminator(m map[string]any) (string, bool) {
	for _, key := range []string{"$type", "type"} {
		for k, v := range m {
			if strings.EqualFold(k, key) {
				if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
					return s, true
				}
			}
		}
	}
	return "", false
}

func knownTypes(factories map[string]variantFactory) string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

var (
	appConfigType    = reflect.TypeOf(AppConfig{})
	nodeConfigType   = reflect.TypeOf(NodeConfig{})
	cacheConfigType  = reflect.TypeOf(CacheConfig{})
	searchConfigType = reflect.TypeOf(SearchConfig{})
	accessLevelType  = reflect.TypeOf(AccessLevel(""))
	cacheTypeType    = reflect.TypeOf(CacheType(""))
)

// defaultsHook fills keys that are absent from the document before the
// struct is decoded, so explicit zero values survive.
func defaultsHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	m, ok := data.(map[string]any)
	if !ok {
		return data, nil
	}
	if to.Kind() == reflect.Ptr {
		to = to.Elem()
	}

	switch to {
	case appConfigType:
		return withDefaults(m, map[string]any{"search": map[string]any{}}), nil
	case nodeConfigType:
		return withDefaults(m, map[string]any{"access": string(AccessFull), "weight": 1.0}), nil
	case cacheConfigType:
		return withDefaults(m, map[string]any{"allowRead": true, "allowWrite": true}), nil
	case searchConfigType:
		defaults, err := toMap(DefaultSearchConfig())
		if err != nil {
			return nil, err
		}
		return withDefaults(m, defaults), nil
	}
	return data, nil
}

// enumHook canonicalizes enum spellings ("full", "READONLY", "sqlite").
func enumHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	s, ok := data.(string)
	if !ok {
		return data, nil
	}
	switch to {
	case accessLevelType:
		return canonical(s, string(AccessFull), string(AccessReadOnly)), nil
	case cacheTypeType:
		return canonical(s, string(CacheTypeSqlite), string(CacheTypePostgres)), nil
	}
	return data, nil
}

func canonical(s string, options ...string) string {
	for _, o := range options {
		if strings.EqualFold(s, o) {
			return o
		}
	}
	return s
}

func withDefaults(m map[string]any, defaults map[string]any) map[string]any {
	out := make(map[string]any, len(m)+len(defaults))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range defaults {
		if !hasKey(m, k) {
			out[k] = v
		}
	}
	return out
}

func hasKey(m map[string]any, key string) bool {
	for k := range m {
		if strings.EqualFold(k, key) {
			return true
		}
	}
	return false
}

func toMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func (o *OllamaEmbeddingsConfig) applyDefaults() {
	if o.BaseURL == "" {
		o.BaseURL = DefaultOllamaBaseURL
	}
}

func (h *HuggingFaceEmbeddingsConfig) applyDefaults() {
	if h.BaseURL == "" {
		h.BaseURL = DefaultHuggingFaceBaseURL
	}
}

func (a *AzureOpenAIEmbeddingsConfig) applyDefaults() {
	if a.APIVersion == "" {
		a.APIVersion = DefaultAzureAPIVersion
	}
}

// resolvePaths rewrites every declared filesystem path.
func (c *AppConfig) resolvePaths(resolve func(string) string) {
	for _, node := range c.Nodes {
		if node == nil {
			continue
		}
		if node.ContentIndex != nil {
			node.ContentIndex.resolvePaths(resolve)
		}
		if node.FileStorage != nil {
			node.FileStorage.resolvePaths(resolve)
		}
		if node.RepoStorage != nil {
			node.RepoStorage.resolvePaths(resolve)
		}
		for _, idx := range node.SearchIndexes {
			if idx != nil {
				idx.resolvePaths(resolve)
			}
		}
	}
	for _, cache := range []*CacheConfig{c.EmbeddingsCache, c.LLMCache} {
		if cache != nil && cache.Path != "" {
			cache.Path = resolve(cache.Path)
		}
	}
}
