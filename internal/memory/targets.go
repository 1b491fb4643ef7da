package memory

import (
	"errors"
	"fmt"

	"github.com/mvp-joe/kernel-memory/internal/config"
)

var (
	// ErrUnknownNode is returned when a node id is not configured.
	ErrUnknownNode = errors.New("unknown node")

	// ErrNoTargetNodes is returned when exclusions remove every node.
	ErrNoTargetNodes = errors.New("no nodes selected")

	// ErrNoWritableNode is returned when no node accepts writes.
	ErrNoWritableNode = errors.New("no writable node")
)

// ResolveTargets returns the nodes a request addresses, in order.
//
// requested falls back to Search.DefaultNodes when empty. The "*" wildcard
// expands to every node in sorted order. Search.ExcludeNodes and exclude
// are removed afterwards. Duplicates keep their first position.
func ResolveTargets(cfg *config.AppConfig, requested, exclude []string) ([]string, error) {
	selection := requested
	if len(selection) == 0 {
		selection = cfg.Search.DefaultNodes
	}

	excluded := make(map[string]bool)
	for _, ids := range [][]string{cfg.Search.ExcludeNodes, exclude} {
		for _, id := range ids {
			excluded[id] = true
		}
	}

	seen := make(map[string]bool)
	var targets []string
	add := func(id string) {
		if !seen[id] && !excluded[id] {
			seen[id] = true
			targets = append(targets, id)
		}
	}

	for _, id := range selection {
		if id == config.AllNodes {
			for _, all := range cfg.NodeIDs() {
				add(all)
			}
			continue
		}
		if cfg.Node(id) == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownNode, id)
		}
		add(id)
	}

	if len(targets) == 0 {
		return nil, ErrNoTargetNodes
	}
	return targets, nil
}

// WriteTarget picks the node a write goes to. An explicit id must exist;
// otherwise the first default node with full access is used.
func WriteTarget(cfg *config.AppConfig, nodeID string) (string, error) {
	if nodeID != "" {
		if cfg.Node(nodeID) == nil {
			return "", fmt.Errorf("%w: %s", ErrUnknownNode, nodeID)
		}
		return nodeID, nil
	}

	targets, err := ResolveTargets(cfg, nil, nil)
	if err != nil {
		return "", err
	}
	for _, id := range targets {
		if cfg.Node(id).Writable() {
			return id, nil
		}
	}
	return "", ErrNoWritableNode
}

// ReadTarget picks the node a single-node read goes to: the explicit id, or
// the first default node.
func ReadTarget(cfg *config.AppConfig, nodeID string) (string, error) {
	if nodeID != "" {
		if cfg.Node(nodeID) == nil {
			return "", fmt.Errorf("%w: %s", ErrUnknownNode, nodeID)
		}
		return nodeID, nil
	}
	targets, err := ResolveTargets(cfg, nil, nil)
	if err != nil {
		return "", err
	}
	return targets[0], nil
}
