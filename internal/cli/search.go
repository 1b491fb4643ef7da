package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/kernel-memory/internal/memory"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search across nodes",
	Long: `Search every selected node and merge the results by weighted relevance.

Without --node the configured default nodes are searched. Nodes that cannot
be opened, fail or time out are skipped with a warning.

Examples:
  km search "certificate renewal"
  km search kubernetes --node work --node personal --limit 5
  km search deploy --tag topic=ops --min-relevance 0.5 --format json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	flags := searchCmd.Flags()
	flags.StringSlice("node", nil, "nodes to search (repeatable, \"*\" for all)")
	flags.StringSlice("exclude", nil, "nodes to leave out (repeatable)")
	flags.Int("limit", 0, "maximum number of results (default from config)")
	flags.Float64("min-relevance", 0, "minimum relevance in [0,1] (default from config)")
	flags.StringArray("tag", nil, "only results tagged key=value (repeatable)")
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	flags := cmd.Flags()

	req := memory.SearchRequest{Query: strings.Join(args, " ")}
	req.Nodes, _ = flags.GetStringSlice("node")
	req.ExcludeNodes, _ = flags.GetStringSlice("exclude")
	req.Limit, _ = flags.GetInt("limit")
	if flags.Changed("min-relevance") {
		minRel, _ := flags.GetFloat64("min-relevance")
		req.MinRelevance = &minRel
	}
	tagValues, _ := flags.GetStringArray("tag")
	tags, err := parseTags(tagValues)
	if err != nil {
		return err
	}
	req.Tags = tags

	svc, done, err := openService(ctx, serviceOptions{})
	if err != nil {
		return err
	}
	defer done()

	resp, err := svc.Search(ctx, req)
	if err != nil {
		return err
	}

	p := newPrinter(cmd)
	for _, s := range resp.SkippedNodes {
		p.warn("skipping broken node %s: %s", s.NodeID, s.Reason)
	}
	return p.print(resp, func(w io.Writer) { printSearch(w, resp) })
}

func printSearch(w io.Writer, resp *memory.SearchResponse) {
	if resp.TotalResults == 0 {
		fmt.Fprintf(w, "No results for %q\n", resp.Query)
		return
	}
	fmt.Fprintf(w, "%s\n\n", styles.title.Render(fmt.Sprintf("%d results for %q", resp.TotalResults, resp.Query)))
	for i, r := range resp.Results {
		heading := r.ID
		if r.Title != "" {
			heading = r.Title + " " + styles.dim.Render("("+r.ID+")")
		}
		fmt.Fprintf(w, "%d. %s\n", i+1, heading)
		fmt.Fprintf(w, "   %s\n", styles.label.Render(fmt.Sprintf("node %s  score %.3f  relevance %.3f", r.NodeID, r.Score, r.Relevance)))
		if len(r.Tags) > 0 {
			fmt.Fprintf(w, "   %s\n", styles.label.Render("tags "+formatTags(r.Tags)))
		}
		fmt.Fprintf(w, "   %s\n\n", truncate(strings.Join(strings.Fields(r.Content), " "), 300))
	}
}
