// Package render turns controller snapshots into what the user sees: a view
// model shared by the browser page, the JSON status endpoint and the CLI.
package render

import (
	"github.com/alicas/linecall-agent/internal/workflow"
)

// User-facing texts.
const (
	TextUploading   = "Uploading video..."
	TextProcessing  = "Processing video (this may take a while)..."
	TextComplete    = "Processing complete!"
	TextErrorBanner = "Failed to process video. Ensure backend is running."
)

// DecisionRow is one entry of the decision list. Index is the position in
// the backend's list and serves as the row key.
type DecisionRow struct {
	Index int           `json:"index"`
	Frame int           `json:"frame"`
	Call  workflow.Call `json:"decision"`
}

// Media is the single video shown on the page: the local preview of the
// selection, or the processed video once a run has succeeded.
type Media struct {
	URL       string `json:"url"`
	Processed bool   `json:"processed"`
}

type View struct {
	Status        workflow.Status  `json:"status"`
	StatusText    string           `json:"status_text,omitempty"`
	Error         string           `json:"error,omitempty"`
	FileName      string           `json:"file_name,omitempty"`
	Options       workflow.Options `json:"options"`
	Media         *Media           `json:"media,omitempty"`
	Decisions     []DecisionRow    `json:"decisions"`
	Final         *DecisionRow     `json:"final,omitempty"`
	CanRun        bool             `json:"can_run"`
	OptionsLocked bool             `json:"options_locked"`
}

// NewView maps a snapshot to a view. Decisions keep the backend's order.
func NewView(snap workflow.Snapshot) View {
	state := snap.State
	v := View{
		Status:        state.Status(),
		Options:       snap.Options,
		Decisions:     []DecisionRow{},
		OptionsLocked: state.InFlight(),
		CanRun:        snap.Selection != nil && !state.InFlight(),
	}

	switch state.Status() {
	case workflow.StatusUploading:
		v.StatusText = TextUploading
	case workflow.StatusProcessing:
		v.StatusText = TextProcessing
	case workflow.StatusSucceeded:
		v.StatusText = TextComplete
	case workflow.StatusFailed:
		v.Error = TextErrorBanner
	}

	if snap.Selection != nil {
		v.FileName = snap.Selection.File.Name()
		if ref := snap.Selection.PreviewRef; ref != "" {
			v.Media = &Media{URL: ref}
		}
	}

	if result, ok := state.Result(); ok {
		if result.ProcessedVideoRef != "" {
			v.Media = &Media{URL: result.ProcessedVideoRef, Processed: true}
		}
		for i, d := range result.Decisions {
			v.Decisions = append(v.Decisions, DecisionRow{Index: i, Frame: d.Frame, Call: d.Call})
		}
		if d, ok := result.Final(); ok {
			v.Final = &DecisionRow{Index: len(result.Decisions) - 1, Frame: d.Frame, Call: d.Call}
		}
	}
	return v
}
