package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/kernel-memory/internal/ingest"
	"github.com/mvp-joe/kernel-memory/internal/lock"
	"github.com/mvp-joe/kernel-memory/internal/memory"
	"github.com/mvp-joe/kernel-memory/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Import a directory and keep it in sync",
	Long: `Import a directory, then watch it and re-import files as they change.
Deleted files are removed from the node. Stop with Ctrl+C.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	addImportFlags(watchCmd)
	watchCmd.Flags().Bool("skip-initial", false, "do not import existing files first")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	skipInitial, _ := cmd.Flags().GetBool("skip-initial")

	svc, done, err := openService(ctx, serviceOptions{pooled: true})
	if err != nil {
		return err
	}
	defer done()

	im, err := newImporter(cmd, args[0], svc)
	if err != nil {
		return err
	}
	p := newPrinter(cmd)

	// One watcher per directory.
	dirLock := lock.New(filepath.Join(filepath.Dir(settings.ConfigPath), "locks"), "watch:"+im.Root)
	if err := dirLock.TryAcquire(); err != nil {
		if errors.Is(err, lock.ErrHeld) {
			return fmt.Errorf("%s is already being watched", im.Root)
		}
		return err
	}
	defer dirLock.Release()

	if im.NodeID, err = memory.WriteTarget(svc.Config(), im.NodeID); err != nil {
		return err
	}

	w, err := watcher.New([]string{im.Root}, watcher.Options{
		Filter: func(path string) bool {
			rel, err := filepath.Rel(im.Root, path)
			return err == nil && im.Matcher.Match(filepath.ToSlash(rel))
		},
		Logger: appLog.Logger,
	})
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", im.Root, err)
	}
	defer w.Stop()

	// Changes made during the initial import are delivered once it is done.
	w.Pause()
	if err := w.Start(ctx, func(files []string) { syncChanged(ctx, im, p, files) }); err != nil {
		return err
	}
	if !skipInitial {
		stats, err := importAll(ctx, im, svc)
		if err != nil {
			return err
		}
		fmt.Fprintf(p.errOut, "Imported %d files from %s\n", stats.Imported, im.Root)
	}
	w.Resume()

	fmt.Fprintf(p.errOut, "Watching %s (node %s), press Ctrl+C to stop\n", im.Root, im.NodeID)
	<-ctx.Done()
	return nil
}

// syncChanged re-imports one debounced batch. The callback runs on the
// watcher goroutine, so batches never overlap.
func syncChanged(ctx context.Context, im *ingest.Importer, p *printer, files []string) {
	rels := make([]string, 0, len(files))
	for _, f := range files {
		if rel, err := filepath.Rel(im.Root, f); err == nil {
			rels = append(rels, filepath.ToSlash(rel))
		}
	}
	sort.Strings(rels)

	stats, err := im.Import(ctx, rels)
	if err != nil {
		appLog.Warn().Err(err).Msg("sync interrupted")
		return
	}
	for _, f := range stats.Failed {
		p.warn("failed to import %s", f)
	}
	appLog.Info().
		Int("imported", stats.Imported).
		Int("deleted", stats.Deleted).
		Int("failed", len(stats.Failed)).
		Msg("directory synced")
	fmt.Fprintf(p.errOut, "Synced %d changed, %d deleted\n", stats.Imported, stats.Deleted)
}
