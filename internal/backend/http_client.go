// Package backend talks to the ALiCaS-B analysis service: it uploads a
// video, asks for it to be processed and builds URLs for the results.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alicas/linecall-agent/internal/workflow"
)

const (
	DefaultTimeout = 30 * time.Minute

	maxErrorBody    = 4096
	maxResponseBody = 4 << 20
)

// HTTPClient is the workflow.Backend used in production.
type HTTPClient struct {
	baseURL     string
	mediaPrefix string
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewHTTPClient returns a client for the backend at baseURL. Processed videos
// are served under mediaPrefix; an empty prefix means {baseURL}/outputs.
// Processing a long match can take minutes, so timeout covers the whole
// request including the analysis.
func NewHTTPClient(baseURL, mediaPrefix string, timeout time.Duration, logger *slog.Logger) *HTTPClient {
	baseURL = strings.TrimRight(baseURL, "/")
	if mediaPrefix == "" {
		mediaPrefix = baseURL + "/outputs"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &HTTPClient{
		baseURL:     baseURL,
		mediaPrefix: strings.TrimRight(mediaPrefix, "/"),
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger,
	}
}

func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

// Ping calls GET / and returns the backend's greeting.
func (c *HTTPClient) Ping(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("backend unhealthy: HTTP %d", resp.StatusCode)
	}

	var root rootResponse
	if err := json.Unmarshal(body, &root); err != nil {
		return "", fmt.Errorf("unmarshal health response: %w", err)
	}
	return root.Message, nil
}

// Upload streams the file as the "file" field of a multipart form.
func (c *HTTPClient) Upload(ctx context.Context, file workflow.File) (string, error) {
	src, err := file.Open()
	if err != nil {
		return "", &UploadError{Err: fmt.Errorf("open %s: %w", file.Name(), err)}
	}
	defer src.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", file.Name())
		if err == nil {
			_, err = io.Copy(part, src)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	u := c.baseURL + "/upload"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, pr)
	if err != nil {
		pr.CloseWithError(err)
		return "", &UploadError{Err: fmt.Errorf("create request: %w", err)}
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Request-Id", requestID)

	c.logger.Info("uploading video to backend",
		"url", u,
		"request_id", requestID,
		"name", file.Name(),
		"bytes", file.Size(),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &UploadError{Err: fmt.Errorf("http request failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", &UploadError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var result UploadResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&result); err != nil {
		return "", &UploadError{StatusCode: resp.StatusCode, Err: fmt.Errorf("unmarshal upload response: %w", err)}
	}
	if result.Filename == "" {
		return "", &UploadError{StatusCode: resp.StatusCode, Err: errors.New("upload response has no filename")}
	}

	c.logger.Info("video upload succeeded",
		"request_id", requestID,
		"filename", result.Filename,
		"original_filename", result.OriginalFilename,
	)
	return result.Filename, nil
}

// Process asks the backend to analyze filename with opts.
func (c *HTTPClient) Process(ctx context.Context, filename string, opts workflow.Options) (*workflow.Processed, error) {
	q := url.Values{}
	q.Set("mode", string(opts.Mode))
	q.Set("shot_type", string(opts.ShotType))
	u := fmt.Sprintf("%s/process/%s?%s", c.baseURL, url.PathEscape(filename), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return nil, &ProcessingError{Err: fmt.Errorf("create request: %w", err)}
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-Id", requestID)

	c.logger.Info("requesting video processing",
		"url", u,
		"request_id", requestID,
		"filename", filename,
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ProcessingError{Err: fmt.Errorf("http request failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &ProcessingError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var result ProcessResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&result); err != nil {
		return nil, &ProcessingError{StatusCode: resp.StatusCode, Err: fmt.Errorf("unmarshal process response: %w", err)}
	}
	if result.OutputVideo == "" {
		return nil, &ProcessingError{StatusCode: resp.StatusCode, Err: errors.New("process response has no output_video")}
	}

	decisions, err := toDecisions(result.ResultsSummary)
	if err != nil {
		return nil, &ProcessingError{StatusCode: resp.StatusCode, Err: err}
	}

	c.logger.Info("video processing succeeded",
		"request_id", requestID,
		"output_video", result.OutputVideo,
		"decisions", len(decisions),
	)
	return &workflow.Processed{OutputVideo: result.OutputVideo, Decisions: decisions}, nil
}

// MediaURL joins the static-serving prefix and a processed video basename.
func (c *HTTPClient) MediaURL(basename string) string {
	return c.mediaPrefix + "/" + url.PathEscape(basename)
}

func toDecisions(items []DecisionItem) ([]workflow.Decision, error) {
	decisions := make([]workflow.Decision, 0, len(items))
	for i, item := range items {
		if item.Frame < 0 {
			return nil, fmt.Errorf("results_summary[%d]: negative frame %d", i, item.Frame)
		}
		call, err := workflow.ParseCall(item.Decision)
		if err != nil {
			return nil, fmt.Errorf("results_summary[%d]: %w", i, err)
		}
		decisions = append(decisions, workflow.Decision{Frame: item.Frame, Call: call})
	}
	return decisions, nil
}
