package workflow

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// File is the binary handle chosen by the user.
type File interface {
	Name() string
	Size() int64
	Open() (io.ReadCloser, error)
}

// Discarder is implemented by files the agent owns (browser uploads copied
// into the cache) and must remove once the selection is superseded.
type Discarder interface {
	Discard() error
}

// LocalFile is a File backed by a path on disk.
type LocalFile struct {
	path  string
	name  string
	size  int64
	owned bool
}

// NewLocalFile stats path and returns a handle to it.
func NewLocalFile(path string) (*LocalFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	return &LocalFile{path: path, name: filepath.Base(path), size: info.Size()}, nil
}

// NewOwnedFile wraps a file the agent wrote itself. name is the original
// filename as the user saw it; Discard removes the file from disk.
func NewOwnedFile(path, name string) (*LocalFile, error) {
	f, err := NewLocalFile(path)
	if err != nil {
		return nil, err
	}
	if name != "" {
		f.name = name
	}
	f.owned = true
	return f, nil
}

func (f *LocalFile) Name() string { return f.name }
func (f *LocalFile) Size() int64  { return f.size }
func (f *LocalFile) Path() string { return f.path }
func (f *LocalFile) Owned() bool  { return f.owned }

func (f *LocalFile) Open() (io.ReadCloser, error) {
	return os.Open(f.path)
}

func (f *LocalFile) Discard() error {
	if !f.owned {
		return nil
	}
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Selection is the current input: the file plus its local preview reference.
// PreviewRef is empty once a processed result replaced the preview.
type Selection struct {
	File       File
	PreviewRef string
}

// Basename returns the final path component, treating '/' and '\' alike.
func Basename(p string) string {
	if i := strings.LastIndexAny(p, `/\`); i >= 0 {
		return p[i+1:]
	}
	return p
}
