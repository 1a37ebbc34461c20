package render

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/alicas/linecall-agent/internal/workflow"
)

// Text writes the view for a terminal.
func Text(w io.Writer, v View) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	if v.FileName != "" {
		fmt.Fprintf(tw, "File:\t%s\n", v.FileName)
	}
	fmt.Fprintf(tw, "Options:\t%s / %s\n", v.Options.Mode, v.Options.ShotType)
	if v.StatusText != "" {
		fmt.Fprintf(tw, "Status:\t%s\n", v.StatusText)
	}
	if v.Error != "" {
		fmt.Fprintf(tw, "Error:\t%s\n", v.Error)
	}
	if v.Media != nil && v.Media.Processed {
		fmt.Fprintf(tw, "Video:\t%s\n", v.Media.URL)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(v.Decisions) > 0 {
		fmt.Fprintln(w, "Decisions:")
		for _, d := range v.Decisions {
			fmt.Fprintf(w, "  %3d. frame %-6d %s\n", d.Index+1, d.Frame, d.Call)
		}
	}
	if v.Final != nil {
		_, err := fmt.Fprintf(w, "Final call: %s (frame %d)\n", v.Final.Call, v.Final.Frame)
		return err
	}
	if v.Status == workflow.StatusSucceeded {
		_, err := fmt.Fprintln(w, "No decisions detected.")
		return err
	}
	return nil
}
