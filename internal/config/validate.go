package config

import (
	"fmt"
	"math"
	"strings"
)

// Validate checks that the configuration is valid and complete.
//
// Nodes are visited in sorted key order and fields in declaration order;
// validation stops at the first violation and returns a *ConfigError naming
// the offending field.
func Validate(cfg *AppConfig) error {
	if cfg == nil || len(cfg.Nodes) == 0 {
		return &ConfigError{ConfigPath: "Nodes", Message: "At least one node must be configured", Err: ErrNoNodes}
	}

	for _, key := range cfg.NodeIDs() {
		if err := validateNode(key, cfg.Nodes[key]); err != nil {
			return err
		}
	}

	if cfg.EmbeddingsCache != nil {
		if err := validateCache("EmbeddingsCache", cfg.EmbeddingsCache); err != nil {
			return err
		}
	}
	if cfg.LLMCache != nil {
		if err := validateCache("LLMCache", cfg.LLMCache); err != nil {
			return err
		}
	}

	return validateSearch("Search", &cfg.Search, cfg.Nodes)
}

func validateNode(key string, node *NodeConfig) error {
	if strings.TrimSpace(key) == "" {
		return newError("Nodes", "Node key must be non-empty")
	}
	path := "Nodes." + key
	if node == nil {
		return newError(path, "Node configuration is required")
	}
	if strings.TrimSpace(node.ID) == "" {
		return newError(path+".Id", "Id is required")
	}
	if node.ID != key {
		return newError(path+".Id", fmt.Sprintf("Id '%s' must match node key '%s'", node.ID, key))
	}
	if node.Access != AccessFull && node.Access != AccessReadOnly {
		return newError(path+".Access", fmt.Sprintf("Access must be Full or ReadOnly, got '%s'", node.Access))
	}
	if node.Weight < 0 || math.IsNaN(node.Weight) {
		return newError(path+".Weight", "Weight must be non-negative")
	}

	if node.ContentIndex == nil {
		return newError(path+".ContentIndex", "ContentIndex is required")
	}
	if err := node.ContentIndex.validate(path + ".ContentIndex"); err != nil {
		return err
	}

	if node.FileStorage != nil {
		if err := node.FileStorage.validate(path + ".FileStorage"); err != nil {
			return err
		}
	}
	if node.RepoStorage != nil {
		if err := node.RepoStorage.validate(path + ".RepoStorage"); err != nil {
			return err
		}
	}

	seen := make(map[string]bool, len(node.SearchIndexes))
	for i, idx := range node.SearchIndexes {
		idxPath := fmt.Sprintf("%s.SearchIndexes[%d]", path, i)
		if idx == nil {
			return newError(idxPath, "Search index configuration is required")
		}
		if err := idx.validate(idxPath); err != nil {
			return err
		}
		if seen[idx.IndexID()] {
			return newError(idxPath+".Id", fmt.Sprintf("Duplicate search index id '%s'", idx.IndexID()))
		}
		seen[idx.IndexID()] = true
	}

	return nil
}

func validateCache(path string, c *CacheConfig) error {
	hasPath := strings.TrimSpace(c.Path) != ""
	hasConn := strings.TrimSpace(c.ConnectionString) != ""

	if hasPath && hasConn {
		return newError(path, "Specify either Path or ConnectionString, not both")
	}

	switch c.Type {
	case CacheTypeSqlite:
		if !hasPath {
			return newError(path+".Path", "Path is required for Sqlite cache")
		}
	case CacheTypePostgres:
		if !hasConn {
			return newError(path+".ConnectionString", "ConnectionString is required for Postgres cache")
		}
	default:
		return newError(path+".Type", fmt.Sprintf("Type must be Sqlite or Postgres, got '%s'", c.Type))
	}
	return nil
}

func validateSearch(path string, s *SearchConfig, nodes map[string]*NodeConfig) error {
	if s.DefaultMinRelevance < 0 || s.DefaultMinRelevance > 1 || math.IsNaN(s.DefaultMinRelevance) {
		return newError(path+".DefaultMinRelevance", "DefaultMinRelevance must be between 0 and 1")
	}
	if s.DefaultLimit <= 0 {
		return newError(path+".DefaultLimit", "DefaultLimit must be positive")
	}
	if s.SearchTimeoutSeconds < 0 {
		return newError(path+".SearchTimeoutSeconds", "SearchTimeoutSeconds must be non-negative")
	}
	if s.MaxResultsPerNode <= 0 {
		return newError(path+".MaxResultsPerNode", "MaxResultsPerNode must be positive")
	}
	if len(s.DefaultNodes) == 0 {
		return newError(path+".DefaultNodes", "DefaultNodes must contain at least one node or '*'")
	}
	for i, id := range s.DefaultNodes {
		if strings.TrimSpace(id) == "" {
			return newError(fmt.Sprintf("%s.DefaultNodes[%d]", path, i), "Node id must be non-empty")
		}
	}

	if !s.IncludesAllNodes() {
		excluded := make(map[string]bool, len(s.ExcludeNodes))
		for _, id := range s.ExcludeNodes {
			excluded[id] = true
		}
		for _, id := range s.DefaultNodes {
			if excluded[id] {
				return newError(path+".ExcludeNodes",
					fmt.Sprintf("Contradictory configuration: node '%s' is both in DefaultNodes and ExcludeNodes", id))
			}
		}
		for _, id := range s.DefaultNodes {
			if _, ok := nodes[id]; !ok {
				return newError(path+".DefaultNodes", fmt.Sprintf("DefaultNodes references unknown node '%s'", id))
			}
		}
	}

	if s.MaxQueryDepth <= 0 {
		return newError(path+".MaxQueryDepth", "MaxQueryDepth must be positive")
	}
	if s.SnippetLength < 0 {
		return newError(path+".SnippetLength", "SnippetLength must be non-negative")
	}
	if s.HighlightPrefix == "" {
		return newError(path+".HighlightPrefix", "HighlightPrefix must be non-empty")
	}
	if s.HighlightSuffix == "" {
		return newError(path+".HighlightSuffix", "HighlightSuffix must be non-empty")
	}
	return nil
}
