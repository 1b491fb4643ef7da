package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/mvp-joe/kernel-memory/internal/node"
	"github.com/mvp-joe/kernel-memory/internal/storage"
)

// MaxFileSize bounds the files read into a single record.
const MaxFileSize = 4 << 20

// ErrNotText is returned for files whose detected type is not textual.
var ErrNotText = errors.New("not a text file")

// Writer is the part of the memory service the importer needs.
type Writer interface {
	Put(ctx context.Context, nodeID string, doc *storage.Content) (*node.PutResult, error)
	Delete(ctx context.Context, nodeID, id string) (bool, error)
}

// ProgressReporter receives import progress.
type ProgressReporter interface {
	OnImportStart(total int)
	OnFileImported(rel string, err error)
	OnImportComplete(stats *Stats)
}

// NoOpProgressReporter discards progress.
type NoOpProgressReporter struct{}

func (NoOpProgressReporter) OnImportStart(int)            {}
func (NoOpProgressReporter) OnFileImported(string, error) {}
func (NoOpProgressReporter) OnImportComplete(*Stats)      {}

// Stats summarizes an import run.
type Stats struct {
	Imported int      `json:"imported" yaml:"imported"`
	Skipped  int      `json:"skipped" yaml:"skipped"`
	Deleted  int      `json:"deleted" yaml:"deleted"`
	Failed   []string `json:"failed,omitempty" yaml:"failed,omitempty"`
}

// Importer reads matching files below Root and writes them to a node.
type Importer struct {
	Fs       afero.Fs
	Root     string
	NodeID   string
	Matcher  *Matcher
	Writer   Writer
	Progress ProgressReporter
	Logger   zerolog.Logger
}

// RecordID derives a stable content id from a root-relative path so that
// re-importing a file replaces its record.
func RecordID(rel string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("km:"+filepath.ToSlash(rel))).String()
}

// Discover returns the root-relative paths of every matching file in
// sorted order.
func (im *Importer) Discover() ([]string, error) {
	var files []string
	err := afero.Walk(im.Fs, im.Root, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			if p == im.Root {
				return err
			}
			im.Logger.Warn().Err(err).Str("path", p).Msg("skipping unreadable path")
			return nil
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(im.Root, p)
		if err != nil {
			return nil
		}
		if im.Matcher.Match(rel) {
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", im.Root, err)
	}
	sort.Strings(files)
	return files, nil
}

// ImportAll imports every matching file below Root.
func (im *Importer) ImportAll(ctx context.Context) (*Stats, error) {
	files, err := im.Discover()
	if err != nil {
		return nil, err
	}
	return im.Import(ctx, files)
}

// Import imports the given root-relative files. Unmatched and non-text
// files are skipped; files that no longer exist are deleted from the node.
func (im *Importer) Import(ctx context.Context, rels []string) (*Stats, error) {
	progress := im.Progress
	if progress == nil {
		progress = NoOpProgressReporter{}
	}

	stats := &Stats{}
	progress.OnImportStart(len(rels))
	for _, rel := range rels {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		err := im.importOne(ctx, rel, stats)
		if err != nil {
			stats.Failed = append(stats.Failed, rel)
			im.Logger.Warn().Err(err).Str("file", rel).Msg("import failed")
		}
		progress.OnFileImported(rel, err)
	}
	progress.OnImportComplete(stats)
	return stats, nil
}

func (im *Importer) importOne(ctx context.Context, rel string, stats *Stats) error {
	if !im.Matcher.Match(rel) {
		stats.Skipped++
		return nil
	}
	full := filepath.Join(im.Root, filepath.FromSlash(rel))
	id := RecordID(rel)

	info, err := im.Fs.Stat(full)
	if errors.Is(err, fs.ErrNotExist) {
		existed, err := im.Writer.Delete(ctx, im.NodeID, id)
		if err != nil {
			return err
		}
		if existed {
			stats.Deleted++
		}
		return nil
	}
	if err != nil {
		return err
	}
	if info.IsDir() || info.Size() > MaxFileSize {
		stats.Skipped++
		return nil
	}

	data, err := afero.ReadFile(im.Fs, full)
	if err != nil {
		return err
	}
	mime, err := detect(data)
	if errors.Is(err, ErrNotText) {
		im.Logger.Debug().Str("file", rel).Str("mime", mime).Msg("skipping binary file")
		stats.Skipped++
		return nil
	}

	doc := &storage.Content{
		ID:       id,
		Title:    titleOf(rel, data),
		Content:  string(data),
		MimeType: mime,
		Tags:     map[string]string{"source": rel},
	}
	if _, err := im.Writer.Put(ctx, im.NodeID, doc); err != nil {
		return err
	}
	stats.Imported++
	return nil
}

// detect returns the MIME type of data and ErrNotText unless it is
// textual.
func detect(data []byte) (string, error) {
	m := mimetype.Detect(data)
	mime := m.String()
	for t := m; t != nil; t = t.Parent() {
		if t.Is("text/plain") {
			return mime, nil
		}
	}
	if len(data) == 0 || (utf8.Valid(data) && !bytes.ContainsRune(data, 0)) {
		return mime, nil
	}
	return mime, ErrNotText
}

// titleOf uses the first Markdown heading, falling back to the file name.
func titleOf(rel string, data []byte) string {
	for _, line := range strings.SplitN(string(data), "\n", 20) {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(line[2:])
		}
	}
	return strings.TrimSuffix(path.Base(rel), path.Ext(rel))
}
