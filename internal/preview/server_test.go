package preview

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicas/linecall-agent/internal/workflow"
)

func writeVideo(t *testing.T, content string) *workflow.LocalFile {
	t.Helper()
	path := filepath.Join(t.TempDir(), "match.mp4")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write video: %v", err)
	}
	f, err := workflow.NewLocalFile(path)
	if err != nil {
		t.Fatalf("NewLocalFile() error = %v", err)
	}
	return f
}

type pathless struct{}

func (pathless) Name() string                 { return "x.mp4" }
func (pathless) Size() int64                  { return 0 }
func (pathless) Open() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader("")), nil }

func TestRegistry_IssueAndRelease(t *testing.T) {
	reg := NewRegistry(nil)
	f := writeVideo(t, "0123456789")

	ref := reg.Issue(f)
	if !strings.HasPrefix(ref, RoutePrefix) {
		t.Fatalf("ref = %q, want %s prefix", ref, RoutePrefix)
	}
	path, ok := reg.Lookup(strings.TrimPrefix(ref, RoutePrefix))
	if !ok || path != f.Path() {
		t.Fatalf("Lookup() = %q, %v", path, ok)
	}

	reg.Release(ref)
	if reg.Len() != 0 {
		t.Errorf("Len() = %d after release, want 0", reg.Len())
	}
	reg.Release(ref)
}

func TestRegistry_PathlessFile(t *testing.T) {
	reg := NewRegistry(nil)
	if ref := reg.Issue(pathless{}); ref != "" {
		t.Errorf("Issue() = %q, want empty for a file without a path", ref)
	}
}

func TestServer_ServeToken(t *testing.T) {
	reg := NewRegistry(nil)
	srv := NewServer(reg, nil)
	f := writeVideo(t, "0123456789")
	token := strings.TrimPrefix(reg.Issue(f), RoutePrefix)

	t.Run("full", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/preview/"+token, nil)
		if err := srv.ServeToken(rr, req, token); err != nil {
			t.Fatalf("ServeToken() error = %v", err)
		}
		if rr.Code != http.StatusOK || rr.Body.String() != "0123456789" {
			t.Errorf("got %d %q", rr.Code, rr.Body.String())
		}
		if rr.Header().Get("Content-Type") != "video/mp4" {
			t.Errorf("content type = %q", rr.Header().Get("Content-Type"))
		}
	})

	t.Run("partial", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/preview/"+token, nil)
		req.Header.Set("Range", "bytes=2-5")
		if err := srv.ServeToken(rr, req, token); err != nil {
			t.Fatalf("ServeToken() error = %v", err)
		}
		if rr.Code != http.StatusPartialContent || rr.Body.String() != "2345" {
			t.Errorf("got %d %q", rr.Code, rr.Body.String())
		}
		if got := rr.Header().Get("Content-Range"); got != "bytes 2-5/10" {
			t.Errorf("content range = %q", got)
		}
	})

	t.Run("unsatisfiable", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/preview/"+token, nil)
		req.Header.Set("Range", "bytes=50-")
		srv.ServeToken(rr, req, token)
		if rr.Code != http.StatusRequestedRangeNotSatisfiable {
			t.Errorf("status = %d, want 416", rr.Code)
		}
	})

	t.Run("released", func(t *testing.T) {
		reg.Release(token)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/preview/"+token, nil)
		srv.ServeToken(rr, req, token)
		if rr.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rr.Code)
		}
	})
}

func TestUploadCache_Save(t *testing.T) {
	cache, err := NewUploadCache(filepath.Join(t.TempDir(), "uploads"), 0, nil)
	if err != nil {
		t.Fatalf("NewUploadCache() error = %v", err)
	}

	f, err := cache.Save(`C:\Users\me\rally.MP4`, strings.NewReader("video"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if f.Name() != "rally.MP4" {
		t.Errorf("Name() = %q, want rally.MP4", f.Name())
	}
	if !f.Owned() || filepath.Ext(f.Path()) != ".mp4" {
		t.Errorf("file = %+v", f)
	}

	if err := f.Discard(); err != nil {
		t.Fatalf("Discard() error = %v", err)
	}
	if _, err := os.Stat(f.Path()); !os.IsNotExist(err) {
		t.Errorf("cached file still present: %v", err)
	}
}

func TestUploadCache_SaveTooLarge(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")
	cache, err := NewUploadCache(dir, 4, nil)
	if err != nil {
		t.Fatalf("NewUploadCache() error = %v", err)
	}

	if _, err := cache.Save("big.mp4", strings.NewReader("0123456789")); err == nil {
		t.Fatal("Save() should reject oversized uploads")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("cache has %d entries after rejected upload, want 0", len(entries))
	}
}

func TestUploadCache_Prune(t *testing.T) {
	dir := t.TempDir()
	cache, err := NewUploadCache(dir, 0, nil)
	if err != nil {
		t.Fatalf("NewUploadCache() error = %v", err)
	}

	old := filepath.Join(dir, "old.mp4")
	keep := filepath.Join(dir, "keep.mp4")
	fresh := filepath.Join(dir, "fresh.mp4")
	for _, p := range []string{old, keep, fresh} {
		if err := os.WriteFile(p, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	past := time.Now().Add(-48 * time.Hour)
	os.Chtimes(old, past, past)
	os.Chtimes(keep, past, past)

	if n := cache.Prune(24*time.Hour, keep); n != 1 {
		t.Errorf("Prune() = %d, want 1", n)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("old upload should be pruned")
	}
	for _, p := range []string{keep, fresh} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("%s should survive: %v", filepath.Base(p), err)
		}
	}
}
