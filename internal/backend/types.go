package backend

// UploadResponse is the body returned by POST /upload.
type UploadResponse struct {
	Filename         string `json:"filename"`
	OriginalFilename string `json:"original_filename,omitempty"`
	Location         string `json:"location,omitempty"`
	Message          string `json:"message,omitempty"`
}

// ProcessResponse is the body returned by POST /process/{filename}.
// OutputVideo is a server-side path and may use either separator.
type ProcessResponse struct {
	Message        string         `json:"message,omitempty"`
	OutputVideo    string         `json:"output_video"`
	ResultsSummary []DecisionItem `json:"results_summary"`
}

type DecisionItem struct {
	Frame    int    `json:"frame"`
	Decision string `json:"decision"`
}

type rootResponse struct {
	Message string `json:"message"`
}
