package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicas/linecall-agent/internal/preview"
	"github.com/alicas/linecall-agent/internal/workflow"
)

type gatedBackend struct {
	mu      sync.Mutex
	uploads int
	gate    chan struct{}
}

func (b *gatedBackend) Upload(ctx context.Context, f workflow.File) (string, error) {
	b.mu.Lock()
	b.uploads++
	b.mu.Unlock()
	select {
	case <-b.gate:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return "abc123", nil
}

func (b *gatedBackend) Process(ctx context.Context, filename string, opts workflow.Options) (*workflow.Processed, error) {
	return &workflow.Processed{
		OutputVideo: `outputs\abc123_processed.mp4`,
		Decisions: []workflow.Decision{
			{Frame: 10, Call: workflow.CallOut},
			{Frame: 55, Call: workflow.CallIn},
		},
	}, nil
}

func (b *gatedBackend) MediaURL(basename string) string {
	return "http://backend.test/outputs/" + basename
}

type fakeProber struct {
	err error
}

func (p fakeProber) Ping(ctx context.Context) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	return "Badminton line call API", nil
}

func (p fakeProber) BaseURL() string { return "http://backend.test" }

type testServer struct {
	handler  http.Handler
	ctrl     *workflow.Controller
	backend  *gatedBackend
	registry *preview.Registry
}

func newTestServer(t *testing.T, prober BackendProber) *testServer {
	t.Helper()
	logger := discardLogger()

	registry := preview.NewRegistry(logger)
	backend := &gatedBackend{gate: make(chan struct{})}
	ctrl := workflow.NewController(workflow.Config{Backend: backend, Previewer: registry, Logger: logger})
	cache, err := preview.NewUploadCache(t.TempDir(), 1024, logger)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	handler := NewRouter(ServerConfig{
		Controller:     ctrl,
		Previews:       preview.NewServer(registry, logger),
		Uploads:        cache,
		Repository:     newFakeRepo(),
		Backend:        prober,
		RunContext:     ctx,
		MaxUploadBytes: 1024,
		Logger:         logger,
		StartTime:      time.Now(),
		DeviceID:       "device-1",
		Version:        "test",
	})
	return &testServer{handler: handler, ctrl: ctrl, backend: backend, registry: registry}
}

func (s *testServer) do(t *testing.T, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = "127.0.0.1:40000"
	req.Header.Set("Authorization", "Bearer "+testToken)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

func (s *testServer) doJSON(t *testing.T, method, path string, v interface{}) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return s.do(t, method, path, bytes.NewReader(b), "application/json")
}

func (s *testServer) selectVideo(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rally.mp4")
	if err := os.WriteFile(path, []byte("0123456789"), 0644); err != nil {
		t.Fatal(err)
	}
	rr := s.doJSON(t, http.MethodPost, "/selection/path", SelectPathRequest{Path: path})
	if rr.Code != http.StatusOK {
		t.Fatalf("select path status = %d: %s", rr.Code, rr.Body.String())
	}
	return path
}

func waitForStatus(t *testing.T, ctrl *workflow.Controller, want workflow.Status) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ctrl.State().Status() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %s, want %s", ctrl.State(), want)
}

func decodeJSONBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response body: %v\n%s", err, rr.Body.String())
	}
	return body
}

func TestHealthHandler(t *testing.T) {
	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeJSONBody(t, rr)
	if body["status"] != "ok" || body["device_id"] != "device-1" {
		t.Errorf("body = %v", body)
	}
}

func TestRun_NoSelection(t *testing.T) {
	s := newTestServer(t, nil)

	rr := s.do(t, http.MethodPost, "/run", nil, "")

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	if body := decodeJSONBody(t, rr); body["code"] != "NO_SELECTION" {
		t.Errorf("code = %v", body["code"])
	}
}

func TestRun_AcceptedThenConflict(t *testing.T) {
	s := newTestServer(t, nil)
	s.selectVideo(t)

	rr := s.do(t, http.MethodPost, "/run", nil, "")
	if rr.Code != http.StatusAccepted {
		t.Fatalf("first run status = %d, want 202", rr.Code)
	}
	if body := decodeJSONBody(t, rr); body["status"] != "uploading" {
		t.Errorf("status = %v, want uploading", body["status"])
	}

	rr = s.do(t, http.MethodPost, "/run", nil, "")
	if rr.Code != http.StatusConflict {
		t.Fatalf("second run status = %d, want 409", rr.Code)
	}

	close(s.backend.gate)
	waitForStatus(t, s.ctrl, workflow.StatusSucceeded)

	s.backend.mu.Lock()
	uploads := s.backend.uploads
	s.backend.mu.Unlock()
	if uploads != 1 {
		t.Errorf("uploads = %d, want 1", uploads)
	}
}

func TestOptions(t *testing.T) {
	s := newTestServer(t, nil)

	rr := s.doJSON(t, http.MethodPut, "/options", OptionsRequest{Mode: "doubles", ShotType: "rally"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	want := workflow.Options{Mode: workflow.ModeDoubles, ShotType: workflow.ShotRally}
	if got := s.ctrl.Options(); got != want {
		t.Errorf("options = %+v, want %+v", got, want)
	}

	rr = s.doJSON(t, http.MethodPut, "/options", OptionsRequest{Mode: "mixed"})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("invalid mode status = %d, want 400", rr.Code)
	}
	if got := s.ctrl.Options(); got != want {
		t.Errorf("options changed by invalid request: %+v", got)
	}
}

func TestOptions_FrozenWhileInFlight(t *testing.T) {
	s := newTestServer(t, nil)
	s.selectVideo(t)

	if rr := s.do(t, http.MethodPost, "/run", nil, ""); rr.Code != http.StatusAccepted {
		t.Fatalf("run status = %d", rr.Code)
	}

	rr := s.doJSON(t, http.MethodPut, "/options", OptionsRequest{Mode: "doubles"})
	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rr.Code)
	}
	if s.ctrl.Options().Mode != workflow.ModeSingles {
		t.Error("mode changed during a run")
	}

	close(s.backend.gate)
	waitForStatus(t, s.ctrl, workflow.StatusSucceeded)
}

func TestSelectPath_Invalid(t *testing.T) {
	s := newTestServer(t, nil)

	if rr := s.doJSON(t, http.MethodPost, "/selection/path", SelectPathRequest{}); rr.Code != http.StatusBadRequest {
		t.Errorf("empty path status = %d, want 400", rr.Code)
	}
	if rr := s.doJSON(t, http.MethodPost, "/selection/path", SelectPathRequest{Path: "/nonexistent/x.mp4"}); rr.Code != http.StatusBadRequest {
		t.Errorf("missing file status = %d, want 400", rr.Code)
	}
	if rr := s.do(t, http.MethodPost, "/selection/path", strings.NewReader("{"), "application/json"); rr.Code != http.StatusBadRequest {
		t.Errorf("bad json status = %d, want 400", rr.Code)
	}
}

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(content)
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestUploadSelection_ServesPreview(t *testing.T) {
	s := newTestServer(t, nil)

	body, ct := multipartBody(t, "file", "clip.mp4", []byte("0123456789"))
	rr := s.do(t, http.MethodPost, "/selection", body, ct)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}

	resp := decodeJSONBody(t, rr)
	if resp["file_name"] != "clip.mp4" {
		t.Errorf("file_name = %v", resp["file_name"])
	}
	media, ok := resp["media"].(map[string]interface{})
	if !ok {
		t.Fatalf("media missing: %v", resp)
	}
	ref, _ := media["url"].(string)

	rr = s.do(t, http.MethodGet, ref, nil, "")
	if rr.Code != http.StatusOK || rr.Body.String() != "0123456789" {
		t.Fatalf("preview = %d %q", rr.Code, rr.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, ref, nil)
	req.RemoteAddr = "127.0.0.1:40000"
	req.Header.Set("Range", "bytes=2-4")
	rr = httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusPartialContent || rr.Body.String() != "234" {
		t.Errorf("range preview = %d %q", rr.Code, rr.Body.String())
	}
}

func TestUploadSelection_Errors(t *testing.T) {
	s := newTestServer(t, nil)

	body, ct := multipartBody(t, "other", "clip.mp4", []byte("x"))
	if rr := s.do(t, http.MethodPost, "/selection", body, ct); rr.Code != http.StatusBadRequest {
		t.Errorf("missing file field status = %d, want 400", rr.Code)
	}

	body, ct = multipartBody(t, "file", "big.mp4", bytes.Repeat([]byte("x"), 2048))
	if rr := s.do(t, http.MethodPost, "/selection", body, ct); rr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized status = %d, want 413", rr.Code)
	}

	if rr := s.do(t, http.MethodPost, "/selection", strings.NewReader("x"), "text/plain"); rr.Code != http.StatusBadRequest {
		t.Errorf("non-multipart status = %d, want 400", rr.Code)
	}
	if s.ctrl.Snapshot().Selection != nil {
		t.Error("failed uploads must not change the selection")
	}
}

func TestPreview_ReleasedAfterSuccess(t *testing.T) {
	s := newTestServer(t, nil)
	s.selectVideo(t)
	ref := s.ctrl.Snapshot().Selection.PreviewRef

	close(s.backend.gate)
	if rr := s.do(t, http.MethodPost, "/run", nil, ""); rr.Code != http.StatusAccepted {
		t.Fatalf("run status = %d", rr.Code)
	}
	waitForStatus(t, s.ctrl, workflow.StatusSucceeded)

	if rr := s.do(t, http.MethodGet, ref, nil, ""); rr.Code != http.StatusNotFound {
		t.Errorf("released preview status = %d, want 404", rr.Code)
	}
}

func TestStatusHandler(t *testing.T) {
	s := newTestServer(t, fakeProber{})
	s.selectVideo(t)
	close(s.backend.gate)
	s.do(t, http.MethodPost, "/run", nil, "")
	waitForStatus(t, s.ctrl, workflow.StatusSucceeded)

	rr := s.do(t, http.MethodGet, "/status", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	var resp StatusResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Backend.Reachable || resp.Backend.URL != "http://backend.test" {
		t.Errorf("backend = %+v", resp.Backend)
	}
	if resp.Final == nil || resp.Final.Frame != 55 || resp.Final.Call != workflow.CallIn {
		t.Errorf("final = %+v", resp.Final)
	}
	if resp.Media == nil || resp.Media.URL != "http://backend.test/outputs/abc123_processed.mp4" {
		t.Errorf("media = %+v", resp.Media)
	}
}

func TestStatusHandler_BackendDown(t *testing.T) {
	s := newTestServer(t, fakeProber{err: errors.New("connection refused")})

	var resp StatusResponse
	rr := s.do(t, http.MethodGet, "/status", nil, "")
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Backend.Reachable || resp.Backend.Error == "" {
		t.Errorf("backend = %+v, want unreachable", resp.Backend)
	}
	if resp.Status != workflow.StatusIdle || resp.CanRun {
		t.Errorf("view = %+v", resp.View)
	}
}

func TestPageHandler_TokenSetsCookie(t *testing.T) {
	s := newTestServer(t, fakeProber{})

	req := httptest.NewRequest(http.MethodGet, "/?token="+testToken, nil)
	req.RemoteAddr = "127.0.0.1:40000"
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rr.Code)
	}
	cookies := rr.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != TokenCookie || cookies[0].Value != testToken {
		t.Fatalf("cookies = %+v", cookies)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "127.0.0.1:40000"
	rr = httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Analyze") {
		t.Errorf("page = %d", rr.Code)
	}
}

func TestPageHandler_BadTokenNoCookie(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/?token=wrong", nil)
	req.RemoteAddr = "127.0.0.1:40000"
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)

	if len(rr.Result().Cookies()) != 0 {
		t.Error("invalid token must not set a cookie")
	}
}
