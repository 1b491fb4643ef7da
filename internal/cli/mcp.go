package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/kernel-memory/internal/mcp"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server on stdio",
	Long: `Start the Model Context Protocol (MCP) server that lets LLM assistants
search and write the configured memory nodes.

Tools:
- km_search: search across nodes
- km_get:    fetch a record by id
- km_put:    store content

Logs never go to stdout, which carries the protocol.

Example:
  km mcp --log-file ~/.km/mcp.log`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, done, err := openService(ctx, serviceOptions{pooled: true})
	if err != nil {
		return err
	}
	defer done()

	return mcp.NewServer(svc, Version, appLog.Logger).Serve(ctx)
}
