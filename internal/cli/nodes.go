package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/kernel-memory/internal/memory"
)

var nodesCmd = &cobra.Command{
	Use:   "nodes",
	Short: "List the configured nodes",
	Long: `List the configured nodes with their access level, weight, indexes and
record count. Nodes whose database does not exist yet are reported as missing.`,
	Args: cobra.NoArgs,
	RunE: runNodes,
}

func init() {
	rootCmd.AddCommand(nodesCmd)
}

func runNodes(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, done, err := openService(ctx, serviceOptions{})
	if err != nil {
		return err
	}
	defer done()

	summaries := svc.Nodes(ctx)
	return newPrinter(cmd).print(summaries, func(w io.Writer) { printNodes(w, summaries) })
}

func printNodes(w io.Writer, summaries []memory.NodeSummary) {
	rows := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		indexes := make([]string, 0, len(s.SearchIndexes))
		for _, idx := range s.SearchIndexes {
			name := idx.ID + ":" + idx.Type
			if idx.Required {
				name += "*"
			}
			indexes = append(indexes, name)
		}
		status := s.Status
		switch status {
		case memory.StatusOK:
			status = styles.ok.Render(status)
		case memory.StatusMissing:
			status = styles.dim.Render(status)
		default:
			status = styles.err.Render(truncate(status, 40))
		}
		rows = append(rows, []string{
			s.ID, s.Access, strconv.FormatFloat(s.Weight, 'g', -1, 64),
			strconv.Itoa(s.Records), strings.Join(indexes, ", "), status,
		})
	}
	printTable(w, []string{"NODE", "ACCESS", "WEIGHT", "RECORDS", "INDEXES", "STATUS"}, rows)
	fmt.Fprintln(w, styles.dim.Render("* required index"))
}
