package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/mvp-joe/kernel-memory/internal/ingest"
)

// CLIProgressReporter draws progress bars on stderr for reindex and import
// runs. It implements node.ProgressReporter and ingest.ProgressReporter.
type CLIProgressReporter struct {
	quiet     bool
	out       io.Writer
	bar       *progressbar.ProgressBar
	processed int
	startTime time.Time
}

// NewCLIProgressReporter creates a new CLI progress reporter.
func NewCLIProgressReporter(out io.Writer, quiet bool) *CLIProgressReporter {
	return &CLIProgressReporter{
		quiet:     quiet,
		out:       out,
		startTime: time.Now(),
	}
}

func (c *CLIProgressReporter) newBar(total int, description, unit string) {
	if c.bar != nil {
		c.bar.Finish()
	}
	c.processed = 0
	c.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(c.out),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString(unit),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(c.out)
		}),
	)
}

func (c *CLIProgressReporter) OnIndexStart(indexID string, totalRecords int) {
	if c.quiet {
		return
	}
	c.newBar(totalRecords, "Rebuilding "+indexID, "rec/s")
}

func (c *CLIProgressReporter) OnRecordsIndexed(indexID string, processed int) {
	if c.quiet || c.bar == nil {
		return
	}
	if delta := processed - c.processed; delta > 0 {
		c.bar.Add(delta)
		c.processed = processed
	}
}

func (c *CLIProgressReporter) OnIndexComplete(indexID string, processed int, duration time.Duration) {
	if c.quiet {
		return
	}
	if c.bar != nil {
		c.bar.Finish()
		c.bar = nil
	}
	fmt.Fprintf(c.out, "%s %s: %s records (took %.1fs)\n",
		styles.ok.Render("✓"), indexID, formatNumber(processed), duration.Seconds())
}

func (c *CLIProgressReporter) OnImportStart(total int) {
	if c.quiet {
		return
	}
	c.newBar(total, "Importing files", "files/s")
}

func (c *CLIProgressReporter) OnFileImported(rel string, err error) {
	if c.quiet || c.bar == nil {
		return
	}
	c.processed++
	c.bar.Add(1)
}

func (c *CLIProgressReporter) OnImportComplete(stats *ingest.Stats) {
	if c.quiet {
		return
	}
	if c.bar != nil {
		c.bar.Finish()
		c.bar = nil
	}
	fmt.Fprintf(c.out, "%s Import complete in %.1fs: %s imported, %s skipped, %s deleted, %d failed\n",
		styles.ok.Render("✓"), time.Since(c.startTime).Seconds(),
		formatNumber(stats.Imported), formatNumber(stats.Skipped), formatNumber(stats.Deleted), len(stats.Failed))
}
