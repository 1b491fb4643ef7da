// Package mcp exposes km over the Model Context Protocol.
package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
)

// Server serves the km tools on stdio.
type Server struct {
	mcp    *server.MCPServer
	logger zerolog.Logger
}

// NewServer creates an MCP server exposing km_search, km_get and km_put.
func NewServer(m Memory, version string, logger zerolog.Logger) *Server {
	s := server.NewMCPServer(
		"km",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	AddSearchTool(s, m)
	AddGetTool(s, m)
	AddPutTool(s, m)
	return &Server{mcp: s, logger: logger}
}

// MCP returns the underlying server.
func (s *Server) MCP() *server.MCPServer { return s.mcp }

// Serve runs the stdio transport until ctx is done or stdin closes.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Msg("starting MCP server on stdio")
		errCh <- server.ServeStdio(s.mcp)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info().Msg("MCP server stopping")
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("MCP server error: %w", err)
		}
		return nil
	}
}
