package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/mvp-joe/kernel-memory/internal/config"
)

// FileStore keeps original files and repository snapshots next to a node's
// content. Names are slash-separated and always relative to the store root.
type FileStore struct {
	fs afero.Fs
}

// NewFileStore wraps any afero filesystem.
func NewFileStore(fsys afero.Fs) *FileStore {
	return &FileStore{fs: fsys}
}

// OpenFileStore opens the storage described by cfg. Disk storage is rooted
// at its path, which is created when missing.
func OpenFileStore(cfg config.StorageConfig) (*FileStore, error) {
	switch c := cfg.(type) {
	case *config.DiskStorageConfig:
		if err := os.MkdirAll(c.Path, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory %s: %w", c.Path, err)
		}
		return NewFileStore(afero.NewBasePathFs(afero.NewOsFs(), c.Path)), nil
	case *config.AzureBlobsStorageConfig:
		return nil, fmt.Errorf("%w: azureBlobs storage (container %s)", ErrUnsupported, c.Container)
	default:
		return nil, fmt.Errorf("%w: storage %T", ErrUnsupported, cfg)
	}
}

func cleanName(name string) (string, error) {
	name = strings.TrimPrefix(path.Clean("/"+filepath.ToSlash(name)), "/")
	if name == "" || name == "." {
		return "", errors.New("file name is required")
	}
	return name, nil
}

// Write stores r under name, replacing any existing file, and returns the
// number of bytes written.
func (s *FileStore) Write(name string, r io.Reader) (int64, error) {
	name, err := cleanName(name)
	if err != nil {
		return 0, err
	}
	if err := s.fs.MkdirAll(path.Dir(name), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create directory for %s: %w", name, err)
	}

	f, err := s.fs.Create(name)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", name, err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("failed to write %s: %w", name, err)
	}
	return n, nil
}

// Open returns a reader for name or ErrNotFound.
func (s *FileStore) Open(name string) (io.ReadCloser, error) {
	name, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	f, err := s.fs.Open(name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: file %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	return f, nil
}

// Read returns the full contents of name.
func (s *FileStore) Read(name string) ([]byte, error) {
	rc, err := s.Open(name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Exists reports whether name is a stored file.
func (s *FileStore) Exists(name string) (bool, error) {
	name, err := cleanName(name)
	if err != nil {
		return false, err
	}
	return afero.Exists(s.fs, name)
}

// Remove deletes name and every file stored under it as a directory. It
// reports whether anything was removed.
func (s *FileStore) Remove(name string) (bool, error) {
	name, err := cleanName(name)
	if err != nil {
		return false, err
	}
	ok, err := afero.Exists(s.fs, name)
	if err != nil || !ok {
		return false, err
	}
	if err := s.fs.RemoveAll(name); err != nil {
		return false, fmt.Errorf("failed to remove %s: %w", name, err)
	}
	return true, nil
}

// List returns the names of all files under prefix ("" for everything),
// sorted.
func (s *FileStore) List(prefix string) ([]string, error) {
	root := "."
	if prefix != "" {
		p, err := cleanName(prefix)
		if err != nil {
			return nil, err
		}
		root = p
	}

	var names []string
	err := afero.Walk(s.fs, root, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			return err
		}
		if !info.IsDir() {
			names = append(names, strings.TrimPrefix(filepath.ToSlash(p), "./"))
		}
		return nil
	})
	if err != nil && !errors.Is(err, filepath.SkipDir) {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	sort.Strings(names)
	return names, nil
}
