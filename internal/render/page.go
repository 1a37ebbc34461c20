package render

import (
	"embed"
	"html/template"
	"io"

	"github.com/alicas/linecall-agent/internal/workflow"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplate = template.Must(
	template.New("index.html").Funcs(template.FuncMap{
		"isIn": func(c workflow.Call) bool { return c == workflow.CallIn },
	}).ParseFS(templateFS, "templates/index.html"),
)

// PageData is everything the page template needs besides the view.
type PageData struct {
	View    View
	Version string
	// Backend is the analysis service base URL, shown in the footer.
	Backend string
	Modes   []workflow.Mode
	Shots   []workflow.ShotType
}

func NewPageData(v View, version, backend string) PageData {
	return PageData{
		View:    v,
		Version: version,
		Backend: backend,
		Modes:   []workflow.Mode{workflow.ModeSingles, workflow.ModeDoubles},
		Shots:   []workflow.ShotType{workflow.ShotServe, workflow.ShotRally},
	}
}

// Page writes the HTML page.
func Page(w io.Writer, data PageData) error {
	return pageTemplate.Execute(w, data)
}
