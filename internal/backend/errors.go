package backend

import "fmt"

// UploadError is a failed POST /upload: either a transport error (Err set)
// or a non-2xx response.
type UploadError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *UploadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("video upload failed: %v", e.Err)
	}
	return fmt.Sprintf("video upload failed: HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *UploadError) Unwrap() error { return e.Err }

// IsRetryable returns true for server errors (5xx) and transport errors.
// Client errors (4xx) are considered permanent.
func (e *UploadError) IsRetryable() bool {
	return e.Err != nil || e.StatusCode >= 500
}

// ProcessingError is a failed POST /process, including analysis failures the
// backend reports as a non-2xx status and malformed success bodies.
type ProcessingError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *ProcessingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("video processing failed: %v", e.Err)
	}
	return fmt.Sprintf("video processing failed: HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

func (e *ProcessingError) IsRetryable() bool {
	return e.Err != nil || e.StatusCode >= 500
}
