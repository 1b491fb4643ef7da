package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"

	"github.com/mvp-joe/kernel-memory/internal/memory"
	"github.com/mvp-joe/kernel-memory/internal/node"
	"github.com/mvp-joe/kernel-memory/internal/storage"
)

var putCmd = &cobra.Command{
	Use:   "put [content]",
	Short: "Store content in a node",
	Long: `Store content in a node and index it in every search index of the node.

Content is taken from the argument, from --file, or from stdin when the
argument is "-". Without --node the first default node with full access is
used. A record with an existing --id is replaced.

Examples:
  km put "Remember to renew the certificate" --tag topic=ops
  km put --file notes/meeting.md --title "Weekly sync"
  echo "from a pipe" | km put -`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPut,
}

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a stored record",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a record from a node",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the records of a node",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(putCmd, getCmd, deleteCmd, listCmd)

	putCmd.Flags().String("id", "", "record id (generated when empty)")
	putCmd.Flags().String("node", "", "target node")
	putCmd.Flags().String("title", "", "record title")
	putCmd.Flags().StringArray("tag", nil, "tag as key=value (repeatable)")
	putCmd.Flags().String("file", "", "read content from this file and keep a copy in the node's file storage")

	getCmd.Flags().String("node", "", "node to read from (default: search the default nodes)")
	deleteCmd.Flags().String("node", "", "node to delete from")

	listCmd.Flags().String("node", "", "node to list")
	listCmd.Flags().Int("skip", 0, "records to skip")
	listCmd.Flags().Int("take", 20, "records to return")
}

type putOutput struct {
	ID            string   `json:"id" yaml:"id"`
	NodeID        string   `json:"nodeId" yaml:"nodeId"`
	Completed     bool     `json:"completed" yaml:"completed"`
	FailedIndexes []string `json:"failedIndexes,omitempty" yaml:"failedIndexes,omitempty"`
	File          string   `json:"file,omitempty" yaml:"file,omitempty"`
}

func runPut(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	flags := cmd.Flags()
	id, _ := flags.GetString("id")
	nodeID, _ := flags.GetString("node")
	title, _ := flags.GetString("title")
	tagValues, _ := flags.GetStringArray("tag")
	file, _ := flags.GetString("file")

	tags, err := parseTags(tagValues)
	if err != nil {
		return err
	}

	doc := &storage.Content{ID: id, Title: title, Tags: tags}
	var raw []byte
	switch {
	case file != "":
		if len(args) > 0 {
			return errors.New("give either content or --file, not both")
		}
		if raw, err = os.ReadFile(file); err != nil {
			return fmt.Errorf("failed to read %s: %w", file, err)
		}
		doc.Content = string(raw)
		doc.MimeType = mimetype.Detect(raw).String()
		if doc.Title == "" {
			doc.Title = filepath.Base(file)
		}
	case len(args) == 1 && args[0] == "-":
		if raw, err = io.ReadAll(cmd.InOrStdin()); err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		doc.Content = string(raw)
	case len(args) == 1:
		doc.Content = args[0]
	default:
		return errors.New("no content given")
	}
	if strings.TrimSpace(doc.Content) == "" {
		return errors.New("content is empty")
	}

	svc, done, err := openService(ctx, serviceOptions{})
	if err != nil {
		return err
	}
	defer done()

	res, err := svc.Put(ctx, nodeID, doc)
	if err != nil {
		return err
	}
	out := putOutput{ID: res.ID, NodeID: res.NodeID, Completed: res.Completed, FailedIndexes: res.FailedIndexes}

	if file != "" {
		key, err := svc.AttachFile(ctx, res.NodeID, res.ID, file, strings.NewReader(string(raw)))
		switch {
		case errors.Is(err, node.ErrNoFileStorage):
			appLog.Debug().Str("node", res.NodeID).Msg("node has no file storage, source file not kept")
		case err != nil:
			return err
		default:
			out.File = key
		}
	}

	p := newPrinter(cmd)
	for _, idx := range res.FailedIndexes {
		p.warn("index %s failed to store %s", idx, res.ID)
	}
	return p.print(out, func(w io.Writer) {
		fmt.Fprintf(w, "%s Stored %s in %s\n", styles.ok.Render("✓"), res.ID, res.NodeID)
		if !res.Completed {
			fmt.Fprintf(w, "  %s\n", styles.warn.Render("incomplete: "+strings.Join(res.FailedIndexes, ", ")))
		}
	})
}

func runGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	nodeID, _ := cmd.Flags().GetString("node")

	svc, done, err := openService(ctx, serviceOptions{})
	if err != nil {
		return err
	}
	defer done()

	rec, err := svc.Get(ctx, nodeID, args[0])
	if err != nil {
		return err
	}
	return newPrinter(cmd).print(rec, func(w io.Writer) { printRecord(w, rec) })
}

func printRecord(w io.Writer, rec *memory.Record) {
	if rec.Title != "" {
		fmt.Fprintln(w, styles.title.Render(rec.Title))
	}
	printKV(w, "ID", rec.ID)
	printKV(w, "Node", rec.NodeID)
	if rec.MimeType != "" {
		printKV(w, "Type", rec.MimeType)
	}
	if len(rec.Tags) > 0 {
		printKV(w, "Tags", formatTags(rec.Tags))
	}
	printKV(w, "Updated", rec.UpdatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintln(w)
	fmt.Fprintln(w, rec.Content.Content)
}

type deleteOutput struct {
	ID      string `json:"id" yaml:"id"`
	Deleted bool   `json:"deleted" yaml:"deleted"`
}

func runDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	nodeID, _ := cmd.Flags().GetString("node")

	svc, done, err := openService(ctx, serviceOptions{})
	if err != nil {
		return err
	}
	defer done()

	existed, err := svc.Delete(ctx, nodeID, args[0])
	if err != nil {
		return err
	}
	out := deleteOutput{ID: args[0], Deleted: existed}
	return newPrinter(cmd).print(out, func(w io.Writer) {
		if existed {
			fmt.Fprintf(w, "%s Deleted %s\n", styles.ok.Render("✓"), args[0])
		} else {
			fmt.Fprintf(w, "%s not found\n", args[0])
		}
	})
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	nodeID, _ := cmd.Flags().GetString("node")
	skip, _ := cmd.Flags().GetInt("skip")
	take, _ := cmd.Flags().GetInt("take")
	if skip < 0 || take <= 0 {
		return errors.New("--skip must be >= 0 and --take > 0")
	}

	svc, done, err := openService(ctx, serviceOptions{})
	if err != nil {
		return err
	}
	defer done()

	page, err := svc.List(ctx, nodeID, skip, take)
	if err != nil {
		return err
	}
	return newPrinter(cmd).print(page, func(w io.Writer) {
		fmt.Fprintf(w, "%s %d records in %s\n", styles.title.Render("Node "+page.NodeID+":"), page.Total, page.NodeID)
		rows := make([][]string, 0, len(page.Items))
		for _, c := range page.Items {
			rows = append(rows, []string{c.ID, truncate(c.Title, 30), truncate(strings.Join(strings.Fields(c.Content), " "), 60)})
		}
		if len(rows) > 0 {
			printTable(w, []string{"ID", "TITLE", "CONTENT"}, rows)
		}
	})
}
