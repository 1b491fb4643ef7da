package config

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Discriminator values for the polymorphic sub-configurations.
const (
	ContentIndexTypeSqlite   = "sqlite"
	ContentIndexTypePostgres = "postgres"

	StorageTypeDisk       = "disk"
	StorageTypeAzureBlobs = "azureBlobs"

	SearchIndexTypeSqliteFTS     = "sqliteFTS"
	SearchIndexTypeBleveFTS      = "bleveFTS"
	SearchIndexTypeSqliteVector  = "sqliteVector"
	SearchIndexTypeChromemVector = "chromemVector"
	SearchIndexTypeGraph         = "graph"

	EmbeddingsTypeOllama      = "ollama"
	EmbeddingsTypeOpenAI      = "openAI"
	EmbeddingsTypeAzureOpenAI = "azureOpenAI"
	EmbeddingsTypeHuggingFace = "huggingFace"
)

// Defaults for optional embedding provider fields.
const (
	DefaultOllamaBaseURL      = "http://localhost:11434"
	DefaultHuggingFaceBaseURL = "https://api-inference.huggingface.co"
	DefaultAzureAPIVersion    = "2024-06-01"
)

type variant interface {
	// TypeName returns the "$type" discriminator of the variant.
	TypeName() string
	validate(path string) error
	resolvePaths(resolve func(string) string)
}

// ContentIndexConfig is the primary content store of a node.
type ContentIndexConfig interface {
	variant
	contentIndex()
}

// StorageConfig is a blob storage backend for original files.
type StorageConfig interface {
	variant
	storage()
}

// SearchIndexConfig is one queryable index layered over a node's content.
type SearchIndexConfig interface {
	variant
	IndexID() string
	IsRequired() bool
}

// EmbeddingsConfig selects an embedding generator.
type EmbeddingsConfig interface {
	variant
	embeddings()
}

// marshalTagged prepends the "$type" discriminator to the JSON object of v.
func marshalTagged(typeName string, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	tag := fmt.Sprintf(`{"$type":%q`, typeName)
	if string(body) == "{}" {
		return []byte(tag + "}"), nil
	}
	return append([]byte(tag+","), body[1:]...), nil
}

func requireString(path, field, value string) error {
	if strings.TrimSpace(value) == "" {
		return newError(path+"."+field, field+" is required")
	}
	return nil
}

// --- content indexes ---

// SqliteContentIndexConfig stores content in a local SQLite file.
type SqliteContentIndexConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

func (*SqliteContentIndexConfig) TypeName() string { return ContentIndexTypeSqlite }
func (*SqliteContentIndexConfig) contentIndex()    {}

func (c *SqliteContentIndexConfig) validate(path string) error {
	return requireString(path, "Path", c.Path)
}

func (c *SqliteContentIndexConfig) resolvePaths(resolve func(string) string) {
	c.Path = resolve(c.Path)
}

func (c SqliteContentIndexConfig) MarshalJSON() ([]byte, error) {
	type plain SqliteContentIndexConfig
	return marshalTagged(ContentIndexTypeSqlite, plain(c))
}

// PostgresContentIndexConfig stores content in a Postgres database.
type PostgresContentIndexConfig struct {
	ConnectionString string `json:"connectionString" mapstructure:"connectionString"`
}

func (*PostgresContentIndexConfig) TypeName() string { return ContentIndexTypePostgres }
func (*PostgresContentIndexConfig) contentIndex()    {}

func (c *PostgresContentIndexConfig) validate(path string) error {
	return requireString(path, "ConnectionString", c.ConnectionString)
}

func (*PostgresContentIndexConfig) resolvePaths(func(string) string) {}

func (c PostgresContentIndexConfig) MarshalJSON() ([]byte, error) {
	type plain PostgresContentIndexConfig
	return marshalTagged(ContentIndexTypePostgres, plain(c))
}

// --- storage ---

// DiskStorageConfig keeps files under a local directory.
type DiskStorageConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

func (*DiskStorageConfig) TypeName() string { return StorageTypeDisk }
func (*DiskStorageConfig) storage()         {}

func (c *DiskStorageConfig) validate(path string) error {
	return requireString(path, "Path", c.Path)
}

func (c *DiskStorageConfig) resolvePaths(resolve func(string) string) {
	c.Path = resolve(c.Path)
}

func (c DiskStorageConfig) MarshalJSON() ([]byte, error) {
	type plain DiskStorageConfig
	return marshalTagged(StorageTypeDisk, plain(c))
}

// AzureBlobsStorageConfig keeps files in an Azure Blob container.
// Exactly one authentication method must be configured.
type AzureBlobsStorageConfig struct {
	Container        string `json:"container" mapstructure:"container"`
	ConnectionString string `json:"connectionString,omitempty" mapstructure:"connectionString"`
	Account          string `json:"account,omitempty" mapstructure:"account"`
	APIKey           string `json:"apiKey,omitempty" mapstructure:"apiKey"`
}

func (*AzureBlobsStorageConfig) TypeName() string { return StorageTypeAzureBlobs }
func (*AzureBlobsStorageConfig) storage()         {}

func (c *AzureBlobsStorageConfig) validate(path string) error {
	if err := requireString(path, "Container", c.Container); err != nil {
		return err
	}
	hasConn := strings.TrimSpace(c.ConnectionString) != ""
	hasAccount := strings.TrimSpace(c.Account) != ""
	hasKey := strings.TrimSpace(c.APIKey) != ""

	switch {
	case hasConn && (hasAccount || hasKey):
		return newError(path+".ConnectionString",
			"Specify only one authentication method: ConnectionString or Account+ApiKey")
	case hasConn:
		return nil
	case hasAccount && hasKey:
		return nil
	case hasAccount:
		return newError(path+".ApiKey", "ApiKey is required when Account is set")
	case hasKey:
		return newError(path+".Account", "Account is required when ApiKey is set")
	default:
		return newError(path+".ConnectionString",
			"Azure Blobs storage requires either ConnectionString or Account+ApiKey")
	}
}

func (*AzureBlobsStorageConfig) resolvePaths(func(string) string) {}

func (c AzureBlobsStorageConfig) MarshalJSON() ([]byte, error) {
	type plain AzureBlobsStorageConfig
	return marshalTagged(StorageTypeAzureBlobs, plain(c))
}

// --- search indexes ---

// SearchIndexBase carries the fields shared by every search index.
type SearchIndexBase struct {
	ID       string `json:"id" mapstructure:"id"`
	Required bool   `json:"required,omitempty" mapstructure:"required"`
}

func (b *SearchIndexBase) IndexID() string  { return b.ID }
func (b *SearchIndexBase) IsRequired() bool { return b.Required }

func (b *SearchIndexBase) validateBase(path string) error {
	return requireString(path, "Id", b.ID)
}

// SqliteFTSIndexConfig is an FTS5 full-text index.
type SqliteFTSIndexConfig struct {
	SearchIndexBase `mapstructure:",squash"`
	Path            string `json:"path" mapstructure:"path"`
	EnableStemming  bool   `json:"enableStemming,omitempty" mapstructure:"enableStemming"`
}

func (*SqliteFTSIndexConfig) TypeName() string { return SearchIndexTypeSqliteFTS }

func (c *SqliteFTSIndexConfig) validate(path string) error {
	if err := c.validateBase(path); err != nil {
		return err
	}
	return requireString(path, "Path", c.Path)
}

func (c *SqliteFTSIndexConfig) resolvePaths(resolve func(string) string) {
	c.Path = resolve(c.Path)
}

func (c SqliteFTSIndexConfig) MarshalJSON() ([]byte, error) {
	type plain SqliteFTSIndexConfig
	return marshalTagged(SearchIndexTypeSqliteFTS, plain(c))
}

// BleveFTSIndexConfig is a bleve full-text index stored in a directory.
type BleveFTSIndexConfig struct {
	SearchIndexBase `mapstructure:",squash"`
	Path            string `json:"path" mapstructure:"path"`
}

func (*BleveFTSIndexConfig) TypeName() string { return SearchIndexTypeBleveFTS }

func (c *BleveFTSIndexConfig) validate(path string) error {
	if err := c.validateBase(path); err != nil {
		return err
	}
	return requireString(path, "Path", c.Path)
}

func (c *BleveFTSIndexConfig) resolvePaths(resolve func(string) string) {
	c.Path = resolve(c.Path)
}

func (c BleveFTSIndexConfig) MarshalJSON() ([]byte, error) {
	type plain BleveFTSIndexConfig
	return marshalTagged(SearchIndexTypeBleveFTS, plain(c))
}

// SqliteVectorIndexConfig stores embeddings in a SQLite table.
type SqliteVectorIndexConfig struct {
	SearchIndexBase `mapstructure:",squash"`
	Path            string           `json:"path" mapstructure:"path"`
	Dimensions      int              `json:"dimensions" mapstructure:"dimensions"`
	UseSqliteVec    bool             `json:"useSqliteVec,omitempty" mapstructure:"useSqliteVec"`
	Embeddings      EmbeddingsConfig `json:"embeddings" mapstructure:"embeddings"`
}

func (*SqliteVectorIndexConfig) TypeName() string { return SearchIndexTypeSqliteVector }

func (c *SqliteVectorIndexConfig) validate(path string) error {
	if err := c.validateBase(path); err != nil {
		return err
	}
	if err := requireString(path, "Path", c.Path); err != nil {
		return err
	}
	return validateVector(path, c.Dimensions, c.Embeddings)
}

func (c *SqliteVectorIndexConfig) resolvePaths(resolve func(string) string) {
	c.Path = resolve(c.Path)
}

func (c SqliteVectorIndexConfig) MarshalJSON() ([]byte, error) {
	type plain SqliteVectorIndexConfig
	return marshalTagged(SearchIndexTypeSqliteVector, plain(c))
}

// ChromemVectorIndexConfig stores embeddings in a persistent chromem collection.
type ChromemVectorIndexConfig struct {
	SearchIndexBase `mapstructure:",squash"`
	Path            string           `json:"path" mapstructure:"path"`
	Dimensions      int              `json:"dimensions" mapstructure:"dimensions"`
	Compress        bool             `json:"compress,omitempty" mapstructure:"compress"`
	Embeddings      EmbeddingsConfig `json:"embeddings" mapstructure:"embeddings"`
}

func (*ChromemVectorIndexConfig) TypeName() string { return SearchIndexTypeChromemVector }

func (c *ChromemVectorIndexConfig) validate(path string) error {
	if err := c.validateBase(path); err != nil {
		return err
	}
	if err := requireString(path, "Path", c.Path); err != nil {
		return err
	}
	return validateVector(path, c.Dimensions, c.Embeddings)
}

func (c *ChromemVectorIndexConfig) resolvePaths(resolve func(string) string) {
	c.Path = resolve(c.Path)
}

func (c ChromemVectorIndexConfig) MarshalJSON() ([]byte, error) {
	type plain ChromemVectorIndexConfig
	return marshalTagged(SearchIndexTypeChromemVector, plain(c))
}

func validateVector(path string, dimensions int, emb EmbeddingsConfig) error {
	if dimensions <= 0 {
		return newError(path+".Dimensions", "Dimensions must be positive")
	}
	if emb == nil {
		return newError(path+".Embeddings", "Embeddings is required")
	}
	return emb.validate(path + ".Embeddings")
}

// GraphIndexConfig links content through shared entities.
type GraphIndexConfig struct {
	SearchIndexBase `mapstructure:",squash"`
	Path            string `json:"path" mapstructure:"path"`
}

func (*GraphIndexConfig) TypeName() string { return SearchIndexTypeGraph }

func (c *GraphIndexConfig) validate(path string) error {
	if err := c.validateBase(path); err != nil {
		return err
	}
	return requireString(path, "Path", c.Path)
}

func (c *GraphIndexConfig) resolvePaths(resolve func(string) string) {
	c.Path = resolve(c.Path)
}

func (c GraphIndexConfig) MarshalJSON() ([]byte, error) {
	type plain GraphIndexConfig
	return marshalTagged(SearchIndexTypeGraph, plain(c))
}

// --- embeddings ---

// OllamaEmbeddingsConfig calls a local Ollama server.
type OllamaEmbeddingsConfig struct {
	Model   string `json:"model" mapstructure:"model"`
	BaseURL string `json:"baseUrl,omitempty" mapstructure:"baseUrl"`
}

func (*OllamaEmbeddingsConfig) TypeName() string { return EmbeddingsTypeOllama }
func (*OllamaEmbeddingsConfig) embeddings()      {}

func (c *OllamaEmbeddingsConfig) validate(path string) error {
	return requireString(path, "Model", c.Model)
}

func (*OllamaEmbeddingsConfig) resolvePaths(func(string) string) {}

func (c OllamaEmbeddingsConfig) MarshalJSON() ([]byte, error) {
	type plain OllamaEmbeddingsConfig
	return marshalTagged(EmbeddingsTypeOllama, plain(c))
}

// OpenAIEmbeddingsConfig calls the OpenAI embeddings API.
type OpenAIEmbeddingsConfig struct {
	Model   string `json:"model" mapstructure:"model"`
	APIKey  string `json:"apiKey" mapstructure:"apiKey"`
	BaseURL string `json:"baseUrl,omitempty" mapstructure:"baseUrl"`
}

func (*OpenAIEmbeddingsConfig) TypeName() string { return EmbeddingsTypeOpenAI }
func (*OpenAIEmbeddingsConfig) embeddings()      {}

func (c *OpenAIEmbeddingsConfig) validate(path string) error {
	if err := requireString(path, "Model", c.Model); err != nil {
		return err
	}
	return requireString(path, "ApiKey", c.APIKey)
}

func (*OpenAIEmbeddingsConfig) resolvePaths(func(string) string) {}

func (c OpenAIEmbeddingsConfig) MarshalJSON() ([]byte, error) {
	type plain OpenAIEmbeddingsConfig
	return marshalTagged(EmbeddingsTypeOpenAI, plain(c))
}

// AzureOpenAIEmbeddingsConfig calls an Azure OpenAI deployment.
type AzureOpenAIEmbeddingsConfig struct {
	Endpoint           string `json:"endpoint" mapstructure:"endpoint"`
	Deployment         string `json:"deployment" mapstructure:"deployment"`
	APIVersion         string `json:"apiVersion,omitempty" mapstructure:"apiVersion"`
	APIKey             string `json:"apiKey,omitempty" mapstructure:"apiKey"`
	UseManagedIdentity bool   `json:"useManagedIdentity,omitempty" mapstructure:"useManagedIdentity"`
}

func (*AzureOpenAIEmbeddingsConfig) TypeName() string { return EmbeddingsTypeAzureOpenAI }
func (*AzureOpenAIEmbeddingsConfig) embeddings()      {}

func (c *AzureOpenAIEmbeddingsConfig) validate(path string) error {
	if err := requireString(path, "Endpoint", c.Endpoint); err != nil {
		return err
	}
	if err := requireString(path, "Deployment", c.Deployment); err != nil {
		return err
	}
	hasKey := strings.TrimSpace(c.APIKey) != ""
	if hasKey && c.UseManagedIdentity {
		return newError(path+".ApiKey",
			"Specify only one authentication method: ApiKey or UseManagedIdentity")
	}
	if !hasKey && !c.UseManagedIdentity {
		return newError(path+".ApiKey",
			"Azure OpenAI requires either ApiKey or UseManagedIdentity")
	}
	return nil
}

func (*AzureOpenAIEmbeddingsConfig) resolvePaths(func(string) string) {}

func (c AzureOpenAIEmbeddingsConfig) MarshalJSON() ([]byte, error) {
	type plain AzureOpenAIEmbeddingsConfig
	return marshalTagged(EmbeddingsTypeAzureOpenAI, plain(c))
}

// HuggingFaceEmbeddingsConfig calls the HuggingFace inference API.
type HuggingFaceEmbeddingsConfig struct {
	Model   string `json:"model" mapstructure:"model"`
	APIKey  string `json:"apiKey" mapstructure:"apiKey"`
	BaseURL string `json:"baseUrl,omitempty" mapstructure:"baseUrl"`
}

func (*HuggingFaceEmbeddingsConfig) TypeName() string { return EmbeddingsTypeHuggingFace }
func (*HuggingFaceEmbeddingsConfig) embeddings()      {}

func (c *HuggingFaceEmbeddingsConfig) validate(path string) error {
	if err := requireString(path, "Model", c.Model); err != nil {
		return err
	}
	return requireString(path, "ApiKey", c.APIKey)
}

func (*HuggingFaceEmbeddingsConfig) resolvePaths(func(string) string) {}

func (c HuggingFaceEmbeddingsConfig) MarshalJSON() ([]byte, error) {
	type plain HuggingFaceEmbeddingsConfig
	return marshalTagged(EmbeddingsTypeHuggingFace, plain(c))
}
