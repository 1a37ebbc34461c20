// Package menu derives the tray menu texts from controller snapshots and
// opens the browser page. It has no GUI dependencies.
package menu

import (
	"fmt"

	"github.com/alicas/linecall-agent/internal/render"
	"github.com/alicas/linecall-agent/internal/workflow"
)

// Labels are the menu texts derived from one controller snapshot.
type Labels struct {
	Status   string
	File     string
	LastCall string
	CanRun   bool
}

func LabelsFor(snap workflow.Snapshot) Labels {
	v := render.NewView(snap)
	l := Labels{File: "File: none", LastCall: "Last call: -", CanRun: v.CanRun}

	switch v.Status {
	case workflow.StatusUploading:
		l.Status = "Status: Uploading"
	case workflow.StatusProcessing:
		l.Status = "Status: Processing"
	case workflow.StatusSucceeded:
		l.Status = "Status: Complete"
	case workflow.StatusFailed:
		l.Status = "Status: Failed"
	default:
		l.Status = "Status: Idle"
	}
	if v.FileName != "" {
		l.File = "File: " + v.FileName
	}
	if v.Final != nil {
		l.LastCall = fmt.Sprintf("Last call: %s (frame %d)", v.Final.Call, v.Final.Frame)
	}
	return l
}
