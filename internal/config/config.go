// Package config provides the node configuration model for km.
//
// A configuration document describes one or more nodes. Every node owns a
// content index and an ordered list of search indexes, and may declare file
// and repository storage. Sub-configurations are tagged unions selected by a
// "$type" discriminator ("type" is accepted as well).
//
// Lifecycle:
//
//  1. LoadFromFile reads a JSON-with-comments document (or writes a default
//     one when the file is missing)
//  2. Paths are normalized (leading "~" expanded)
//  3. Validate runs once; callers only ever see a fully valid AppConfig
//
// The returned configuration is treated as read-only for the life of the
// process.
//
// Example usage:
//
//	cfg, err := config.LoadFromFile("~/.km/config.json")
//	if err != nil {
//	    return err
//	}
//	for _, id := range cfg.NodeIDs() {
//	    fmt.Println(id, cfg.Nodes[id].Weight)
//	}
package config

import (
	"sort"
)

// DefaultNodeID is the node synthesized by CreateDefault.
const DefaultNodeID = "personal"

// AllNodes is the DefaultNodes wildcard selecting every configured node.
const AllNodes = "*"

// AccessLevel controls whether a node accepts writes.
type AccessLevel string

const (
	AccessFull     AccessLevel = "Full"
	AccessReadOnly AccessLevel = "ReadOnly"
)

// AppConfig is the root of the configuration tree.
type AppConfig struct {
	Nodes           map[string]*NodeConfig `json:"nodes" mapstructure:"nodes"`
	EmbeddingsCache *CacheConfig           `json:"embeddingsCache,omitempty" mapstructure:"embeddingsCache"`
	LLMCache        *CacheConfig           `json:"llmCache,omitempty" mapstructure:"llmCache"`
	Search          SearchConfig           `json:"search" mapstructure:"search"`
}

// NodeConfig describes one logical knowledge partition.
type NodeConfig struct {
	ID            string              `json:"id" mapstructure:"id"`
	Access        AccessLevel         `json:"access" mapstructure:"access"`
	Weight        float64             `json:"weight" mapstructure:"weight"`
	ContentIndex  ContentIndexConfig  `json:"contentIndex" mapstructure:"contentIndex"`
	FileStorage   StorageConfig       `json:"fileStorage,omitempty" mapstructure:"fileStorage"`
	RepoStorage   StorageConfig       `json:"repoStorage,omitempty" mapstructure:"repoStorage"`
	SearchIndexes []SearchIndexConfig `json:"searchIndexes,omitempty" mapstructure:"searchIndexes"`
}

// Writable reports whether the node accepts writes.
func (n *NodeConfig) Writable() bool {
	return n.Access != AccessReadOnly
}

// CacheType selects the backend of a CacheConfig.
type CacheType string

const (
	CacheTypeSqlite   CacheType = "Sqlite"
	CacheTypePostgres CacheType = "Postgres"
)

// CacheConfig describes an embeddings or LLM-response cache.
type CacheConfig struct {
	Type             CacheType `json:"type" mapstructure:"type"`
	Path             string    `json:"path,omitempty" mapstructure:"path"`
	ConnectionString string    `json:"connectionString,omitempty" mapstructure:"connectionString"`
	AllowRead        bool      `json:"allowRead" mapstructure:"allowRead"`
	AllowWrite       bool      `json:"allowWrite" mapstructure:"allowWrite"`
}

// SearchConfig holds global search behavior.
type SearchConfig struct {
	DefaultMinRelevance  float64  `json:"defaultMinRelevance" mapstructure:"defaultMinRelevance"`
	DefaultLimit         int      `json:"defaultLimit" mapstructure:"defaultLimit"`
	SearchTimeoutSeconds int      `json:"searchTimeoutSeconds" mapstructure:"searchTimeoutSeconds"`
	MaxResultsPerNode    int      `json:"maxResultsPerNode" mapstructure:"maxResultsPerNode"`
	DefaultNodes         []string `json:"defaultNodes" mapstructure:"defaultNodes"`
	ExcludeNodes         []string `json:"excludeNodes,omitempty" mapstructure:"excludeNodes"`
	MaxQueryDepth        int      `json:"maxQueryDepth" mapstructure:"maxQueryDepth"`
	SnippetLength        int      `json:"snippetLength" mapstructure:"snippetLength"`
	HighlightPrefix      string   `json:"highlightPrefix" mapstructure:"highlightPrefix"`
	HighlightSuffix      string   `json:"highlightSuffix" mapstructure:"highlightSuffix"`
}

// DefaultSearchConfig returns the search defaults applied to absent fields.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		DefaultMinRelevance:  0.3,
		DefaultLimit:         20,
		SearchTimeoutSeconds: 30,
		MaxResultsPerNode:    1000,
		DefaultNodes:         []string{AllNodes},
		MaxQueryDepth:        10,
		SnippetLength:        200,
		HighlightPrefix:      "<mark>",
		HighlightSuffix:      "</mark>",
	}
}

// IncludesAllNodes reports whether DefaultNodes carries the wildcard.
func (s *SearchConfig) IncludesAllNodes() bool {
	for _, n := range s.DefaultNodes {
		if n == AllNodes {
			return true
		}
	}
	return false
}

// NodeIDs returns the configured node IDs in sorted order.
func (c *AppConfig) NodeIDs() []string {
	ids := make([]string, 0, len(c.Nodes))
	for id := range c.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Node returns the node with the given ID, or nil.
func (c *AppConfig) Node(id string) *NodeConfig {
	return c.Nodes[id]
}
