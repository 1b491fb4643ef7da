package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/mvp-joe/kernel-memory/internal/ingest"
	"github.com/mvp-joe/kernel-memory/internal/memory"
)

var importCmd = &cobra.Command{
	Use:   "import <dir>",
	Short: "Import text files from a directory",
	Long: `Import every matching text file below a directory into a node.

Each file becomes one record whose id is derived from its path relative to
the directory, so importing again replaces earlier copies. Binary files are
skipped.

Examples:
  km import ~/notes
  km import ./docs --include "**.md" --exclude "archive/**" --node work`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
	addImportFlags(importCmd)
	importCmd.Flags().BoolP("quiet", "q", false, "hide progress bars")
}

func addImportFlags(cmd *cobra.Command) {
	cmd.Flags().StringSlice("include", nil, "glob patterns to import (default: common text formats)")
	cmd.Flags().StringSlice("exclude", nil, "glob patterns to skip")
	cmd.Flags().String("node", "", "target node")
}

// newImporter builds an importer for dir from the command's flags.
func newImporter(cmd *cobra.Command, dir string, w ingest.Writer) (*ingest.Importer, error) {
	include, _ := cmd.Flags().GetStringSlice("include")
	exclude, _ := cmd.Flags().GetStringSlice("exclude")
	nodeID, _ := cmd.Flags().GetString("node")

	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	matcher, err := ingest.NewMatcher(include, exclude)
	if err != nil {
		return nil, err
	}
	return &ingest.Importer{
		Fs:      afero.NewOsFs(),
		Root:    root,
		NodeID:  nodeID,
		Matcher: matcher,
		Writer:  w,
		Logger:  appLog.Logger,
	}, nil
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	quiet, _ := cmd.Flags().GetBool("quiet")

	svc, done, err := openService(ctx, serviceOptions{pooled: true})
	if err != nil {
		return err
	}
	defer done()

	im, err := newImporter(cmd, args[0], svc)
	if err != nil {
		return err
	}
	im.Progress = NewCLIProgressReporter(cmd.ErrOrStderr(), quiet || settings.Format != formatHuman)

	stats, err := importAll(ctx, im, svc)
	if err != nil {
		return err
	}
	p := newPrinter(cmd)
	for _, f := range stats.Failed {
		p.warn("failed to import %s", f)
	}
	return p.print(stats, func(w io.Writer) {
		if quiet {
			fmt.Fprintf(w, "%d imported, %d skipped, %d failed\n", stats.Imported, stats.Skipped, len(stats.Failed))
		}
	})
}

// importAll resolves the target node up front so every record lands in the
// same node even when --node is empty.
func importAll(ctx context.Context, im *ingest.Importer, svc *memory.Service) (*ingest.Stats, error) {
	target, err := memory.WriteTarget(svc.Config(), im.NodeID)
	if err != nil {
		return nil, err
	}
	im.NodeID = target
	appLog.Info().Str("root", im.Root).Str("node", target).Msg("import starting")
	return im.ImportAll(ctx)
}
