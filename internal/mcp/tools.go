package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mvp-joe/kernel-memory/internal/memory"
	"github.com/mvp-joe/kernel-memory/internal/node"
	"github.com/mvp-joe/kernel-memory/internal/search"
	"github.com/mvp-joe/kernel-memory/internal/storage"
)

// Memory is the part of memory.Service the tools call.
type Memory interface {
	Search(ctx context.Context, req memory.SearchRequest) (*memory.SearchResponse, error)
	Get(ctx context.Context, nodeID, id string) (*memory.Record, error)
	Put(ctx context.Context, nodeID string, doc *storage.Content) (*node.PutResult, error)
}

type searchArgs struct {
	Query        string            `json:"query"`
	Nodes        []string          `json:"nodes,omitempty"`
	ExcludeNodes []string          `json:"exclude_nodes,omitempty"`
	Limit        int               `json:"limit,omitempty"`
	MinRelevance *float64          `json:"min_relevance,omitempty"`
	Tags         map[string]string `json:"tags,omitempty"`
}

type getArgs struct {
	ID   string `json:"id"`
	Node string `json:"node,omitempty"`
}

type putArgs struct {
	Content string            `json:"content"`
	ID      string            `json:"id,omitempty"`
	Node    string            `json:"node,omitempty"`
	Title   string            `json:"title,omitempty"`
	Tags    map[string]string `json:"tags,omitempty"`
}

// AddSearchTool registers km_search.
func AddSearchTool(s *server.MCPServer, m Memory) {
	tool := mcp.NewTool(
		"km_search",
		mcp.WithDescription("Search the user's memory nodes. Results from every selected node are merged by relevance scaled with the node weight. Nodes that cannot be searched are listed in skippedNodes."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query, e.g. 'certificate renewal' or '#project-x'")),
		mcp.WithArray("nodes",
			mcp.WithStringItems(),
			mcp.Description("Nodes to search. Defaults to the configured default nodes; '*' selects all.")),
		mcp.WithArray("exclude_nodes",
			mcp.WithStringItems(),
			mcp.Description("Nodes to leave out")),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results (default from configuration)")),
		mcp.WithNumber("min_relevance",
			mcp.Description("Minimum relevance between 0 and 1")),
		mcp.WithObject("tags",
			mcp.Description("Only return records carrying every key/value pair")),
	)
	s.AddTool(tool, searchHandler(m))
}

func searchHandler(m Memory) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args searchArgs
		if err := bindArguments(request, &args); err != nil {
			return mcp.NewToolResultError("invalid arguments: " + err.Error()), nil
		}

		resp, err := m.Search(ctx, memory.SearchRequest{
			Query:        args.Query,
			Nodes:        args.Nodes,
			ExcludeNodes: args.ExcludeNodes,
			Limit:        args.Limit,
			MinRelevance: args.MinRelevance,
			Tags:         args.Tags,
		})
		if err != nil {
			if isUserError(err) {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return nil, fmt.Errorf("search failed: %w", err)
		}
		return jsonResult(resp)
	}
}

// AddGetTool registers km_get.
func AddGetTool(s *server.MCPServer, m Memory) {
	tool := mcp.NewTool(
		"km_get",
		mcp.WithDescription("Fetch a stored record by id. Without a node the default nodes are tried in order."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Record id")),
		mcp.WithString("node", mcp.Description("Node holding the record")),
	)
	s.AddTool(tool, getHandler(m))
}

func getHandler(m Memory) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args getArgs
		if err := bindArguments(request, &args); err != nil {
			return mcp.NewToolResultError("invalid arguments: " + err.Error()), nil
		}
		if args.ID == "" {
			return mcp.NewToolResultError("id parameter is required"), nil
		}

		rec, err := m.Get(ctx, args.Node, args.ID)
		if err != nil {
			if isUserError(err) {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return nil, fmt.Errorf("get failed: %w", err)
		}
		return jsonResult(rec)
	}
}

// AddPutTool registers km_put.
func AddPutTool(s *server.MCPServer, m Memory) {
	tool := mcp.NewTool(
		"km_put",
		mcp.WithDescription("Store a piece of text in a memory node so it can be found later with km_search."),
		mcp.WithString("content", mcp.Required(), mcp.Description("Text to store")),
		mcp.WithString("id", mcp.Description("Record id; an existing record is replaced. Generated when empty.")),
		mcp.WithString("node", mcp.Description("Target node. Defaults to the first writable default node.")),
		mcp.WithString("title", mcp.Description("Short title")),
		mcp.WithObject("tags", mcp.Description("Key/value tags, e.g. {\"topic\": \"ops\"}")),
	)
	s.AddTool(tool, putHandler(m))
}

func putHandler(m Memory) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args putArgs
		if err := bindArguments(request, &args); err != nil {
			return mcp.NewToolResultError("invalid arguments: " + err.Error()), nil
		}
		if args.Content == "" {
			return mcp.NewToolResultError("content parameter is required"), nil
		}

		res, err := m.Put(ctx, args.Node, &storage.Content{
			ID:      args.ID,
			Title:   args.Title,
			Content: args.Content,
			Tags:    args.Tags,
		})
		if err != nil {
			if isUserError(err) {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return nil, fmt.Errorf("put failed: %w", err)
		}
		return jsonResult(res)
	}
}

// isUserError reports errors caused by the arguments rather than the
// server; they are returned to the model as tool errors.
func isUserError(err error) bool {
	for _, target := range []error{
		search.ErrEmptyQuery,
		memory.ErrInvalidRequest,
		memory.ErrUnknownNode,
		memory.ErrNoTargetNodes,
		memory.ErrNoWritableNode,
		node.ErrReadOnly,
		storage.ErrNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
