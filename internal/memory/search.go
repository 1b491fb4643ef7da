package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mvp-joe/kernel-memory/internal/search"
)

// ErrInvalidRequest is returned for out-of-range search parameters.
var ErrInvalidRequest = errors.New("invalid search request")

// SearchRequest is a multi-node query. Zero values fall back to the
// search configuration.
type SearchRequest struct {
	Query        string            `json:"query"`
	Nodes        []string          `json:"nodes,omitempty"`
	ExcludeNodes []string          `json:"excludeNodes,omitempty"`
	Limit        int               `json:"limit,omitempty"`
	MinRelevance *float64          `json:"minRelevance,omitempty"`
	Tags         map[string]string `json:"tags,omitempty"`
}

// Result is one merged search result.
type Result struct {
	ID        string            `json:"id" yaml:"id"`
	NodeID    string            `json:"nodeId" yaml:"nodeId"`
	Score     float64           `json:"score" yaml:"score"`
	Relevance float64           `json:"relevance" yaml:"relevance"`
	Title     string            `json:"title,omitempty" yaml:"title,omitempty"`
	Content   string            `json:"content" yaml:"content"`
	Snippet   string            `json:"snippet,omitempty" yaml:"snippet,omitempty"`
	Tags      map[string]string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// SkippedNode names a node left out of a search and why.
type SkippedNode struct {
	NodeID string `json:"nodeId" yaml:"nodeId"`
	Reason string `json:"reason" yaml:"reason"`
}

// SearchResponse is the merged answer of a multi-node search.
type SearchResponse struct {
	Query        string        `json:"query" yaml:"query"`
	TotalResults int           `json:"totalResults" yaml:"totalResults"`
	Results      []Result      `json:"results" yaml:"results"`
	SkippedNodes []SkippedNode `json:"skippedNodes" yaml:"skippedNodes"`
}

// Search sends the query to every target node concurrently and merges the
// answers by weighted score.
//
// A node that is broken, fails or exceeds SearchTimeoutSeconds is skipped
// and reported in SkippedNodes; the search itself still succeeds.
func (s *Service) Search(ctx context.Context, req SearchRequest) (resp *SearchResponse, err error) {
	start := time.Now()
	defer func() {
		total := 0
		if resp != nil {
			total = resp.TotalResults
		}
		s.metrics.ObserveSearch(time.Since(start), total, err)
	}()

	sc := s.cfg.Search
	if strings.TrimSpace(req.Query) == "" {
		return nil, search.ErrEmptyQuery
	}
	limit := req.Limit
	if limit == 0 {
		limit = sc.DefaultLimit
	}
	if limit < 0 {
		return nil, fmt.Errorf("%w: limit must be positive", ErrInvalidRequest)
	}
	minRelevance := sc.DefaultMinRelevance
	if req.MinRelevance != nil {
		minRelevance = *req.MinRelevance
	}
	if minRelevance < 0 || minRelevance > 1 {
		return nil, fmt.Errorf("%w: minRelevance must be between 0 and 1", ErrInvalidRequest)
	}

	targets, err := ResolveTargets(s.cfg, req.Nodes, req.ExcludeNodes)
	if err != nil {
		return nil, err
	}

	perNode := make([][]Result, len(targets))
	failures := make([]error, len(targets))

	var g errgroup.Group
	for i, id := range targets {
		g.Go(func() error {
			nodeStart := time.Now()
			perNode[i], failures[i] = s.searchNodeWithTimeout(ctx, id, req, minRelevance)
			s.metrics.ObserveNodeSearch(id, time.Since(nodeStart))
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp = &SearchResponse{
		Query:        req.Query,
		Results:      []Result{},
		SkippedNodes: []SkippedNode{},
	}
	for i, id := range targets {
		if failures[i] != nil {
			s.logger.Warn().Err(failures[i]).Str("node", id).Msg("skipping broken node")
			s.metrics.NodeSkipped(id)
			resp.SkippedNodes = append(resp.SkippedNodes, SkippedNode{NodeID: id, Reason: failures[i].Error()})
			continue
		}
		resp.Results = append(resp.Results, perNode[i]...)
	}

	// Results arrive in node order then rank, so a stable sort breaks
	// score ties the same way.
	sort.SliceStable(resp.Results, func(a, b int) bool {
		return resp.Results[a].Score > resp.Results[b].Score
	})
	if len(resp.Results) > limit {
		resp.Results = resp.Results[:limit]
	}
	resp.TotalResults = len(resp.Results)
	return resp, nil
}

type nodeAnswer struct {
	results []Result
	err     error
}

// searchNodeWithTimeout bounds a node search by SearchTimeoutSeconds even
// when an index does not observe cancellation.
func (s *Service) searchNodeWithTimeout(ctx context.Context, nodeID string, req SearchRequest, minRelevance float64) ([]Result, error) {
	if secs := s.cfg.Search.SearchTimeoutSeconds; secs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(secs)*time.Second)
		defer cancel()
	}

	done := make(chan nodeAnswer, 1)
	go func() {
		results, err := s.searchNode(ctx, nodeID, req, minRelevance)
		done <- nodeAnswer{results: results, err: err}
	}()

	select {
	case a := <-done:
		return a.results, a.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("timed out after %ds", s.cfg.Search.SearchTimeoutSeconds)
		}
		return nil, ctx.Err()
	}
}

func (s *Service) searchNode(ctx context.Context, nodeID string, req SearchRequest, minRelevance float64) ([]Result, error) {
	n, release, err := s.nodes.Acquire(ctx, nodeID, false)
	if err != nil {
		return nil, err
	}
	defer release()

	sc := s.cfg.Search
	hits, err := n.Search(ctx, search.Query{
		Text:     req.Query,
		Limit:    sc.MaxResultsPerNode,
		MaxDepth: sc.MaxQueryDepth,
	})
	if err != nil {
		return nil, err
	}
	if sc.MaxResultsPerNode > 0 && len(hits) > sc.MaxResultsPerNode {
		hits = hits[:sc.MaxResultsPerNode]
	}

	relevant := hits[:0]
	for _, h := range hits {
		if h.Relevance >= minRelevance {
			relevant = append(relevant, h)
		}
	}
	if len(relevant) == 0 {
		return nil, nil
	}

	ids := make([]string, len(relevant))
	for i, h := range relevant {
		ids[i] = h.ID
	}
	docs, err := n.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	highlighter := Highlighter{Length: sc.SnippetLength, Prefix: sc.HighlightPrefix, Suffix: sc.HighlightSuffix}
	results := make([]Result, 0, len(relevant))
	for _, h := range relevant {
		doc, ok := docs[h.ID]
		if !ok {
			// Index entry without content; the record was deleted.
			continue
		}
		if !matchesTags(doc.Tags, req.Tags) {
			continue
		}
		results = append(results, Result{
			ID:        doc.ID,
			NodeID:    nodeID,
			Score:     h.Relevance * n.Weight(),
			Relevance: h.Relevance,
			Title:     doc.Title,
			Content:   doc.Content,
			Snippet:   highlighter.Snippet(doc.Content, req.Query),
			Tags:      doc.Tags,
		})
	}
	return results, nil
}
