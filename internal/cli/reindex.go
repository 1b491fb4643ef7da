package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild a node's search indexes from its content",
	Long: `Rebuild every search index of a node from its content index. Use it after
adding an index to the configuration or changing an embedding model.`,
	Args: cobra.NoArgs,
	RunE: runReindex,
}

func init() {
	rootCmd.AddCommand(reindexCmd)
	reindexCmd.Flags().String("node", "", "node to rebuild (default: first writable default node)")
	reindexCmd.Flags().BoolP("quiet", "q", false, "hide progress bars")
}

func runReindex(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	nodeID, _ := cmd.Flags().GetString("node")
	quiet, _ := cmd.Flags().GetBool("quiet")

	svc, done, err := openService(ctx, serviceOptions{})
	if err != nil {
		return err
	}
	defer done()

	progress := NewCLIProgressReporter(cmd.ErrOrStderr(), quiet || settings.Format != formatHuman)
	stats, err := svc.Reindex(ctx, nodeID, progress)
	if err != nil {
		return err
	}

	p := newPrinter(cmd)
	for _, idx := range stats.FailedIndexes {
		p.warn("index %s could not be rebuilt", idx)
	}
	return p.print(stats, func(w io.Writer) {
		fmt.Fprintf(w, "%s Reindexed %s records of %s into %s in %.1fs\n",
			styles.ok.Render("✓"), formatNumber(stats.Records), stats.NodeID,
			strings.Join(stats.Indexes, ", "), stats.Duration.Seconds())
	})
}
