package preview

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alicas/linecall-agent/internal/workflow"
)

var ErrTooLarge = errors.New("upload exceeds size limit")

// UploadCache stores videos the browser sends to the agent so they can be
// previewed locally and re-uploaded to the backend on retry.
type UploadCache struct {
	dir      string
	maxBytes int64
	logger   *slog.Logger
}

func NewUploadCache(dir string, maxBytes int64, logger *slog.Logger) (*UploadCache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload cache: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &UploadCache{dir: dir, maxBytes: maxBytes, logger: logger}, nil
}

// Save copies r into the cache. The returned file is owned by the agent and
// is removed once a newer selection supersedes it.
func (c *UploadCache) Save(name string, r io.Reader) (*workflow.LocalFile, error) {
	name = workflow.Basename(name)
	ext := strings.ToLower(filepath.Ext(name))
	path := filepath.Join(c.dir, uuid.NewString()+ext)

	out, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create cached upload: %w", err)
	}

	src := r
	if c.maxBytes > 0 {
		src = io.LimitReader(r, c.maxBytes+1)
	}
	n, err := io.Copy(out, src)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err == nil && c.maxBytes > 0 && n > c.maxBytes {
		err = fmt.Errorf("%w of %d bytes", ErrTooLarge, c.maxBytes)
	}
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("save upload: %w", err)
	}

	c.logger.Info("cached browser upload", "name", name, "bytes", n)
	return workflow.NewOwnedFile(path, name)
}

// Prune removes cached uploads older than maxAge, except keep.
func (c *UploadCache) Prune(maxAge time.Duration, keep string) int {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		c.logger.Warn("failed to read upload cache", "error", err)
		return 0
	}

	now := time.Now()
	deleted := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(c.dir, e.Name())
		if path == keep {
			continue
		}
		info, err := e.Info()
		if err != nil || now.Sub(info.ModTime()) <= maxAge {
			continue
		}
		if err := os.Remove(path); err != nil {
			c.logger.Warn("failed to delete cached upload", "path", path, "error", err)
			continue
		}
		deleted++
	}
	if deleted > 0 {
		c.logger.Info("pruned upload cache", "deleted", deleted)
	}
	return deleted
}
